package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"chat-quiz-service/internal/app"
	"chat-quiz-service/internal/domain"
	"github.com/julienschmidt/httprouter"
)

// OperatorHandler exposes the quiz host's controls over HTTP.
type OperatorHandler struct {
	service *app.QuizService
}

func NewOperatorHandler(service *app.QuizService) *OperatorHandler {
	return &OperatorHandler{service: service}
}

type scoreRequest struct {
	Answer string `json:"answer"`
}

type closedResponse struct {
	QuestionNumber int `json:"questionNumber"`
}

type summaryResponse struct {
	Summary string `json:"summary"`
}

func (h *OperatorHandler) State(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	st, err := h.service.State(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *OperatorHandler) Reset(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := h.service.Reset(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	log.Printf("quiz reset")
	w.WriteHeader(http.StatusNoContent)
}

func (h *OperatorHandler) Open(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	opened, err := h.service.OpenQuestion(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	log.Printf("question %d opened", opened.QuestionNumber)
	writeJSON(w, http.StatusOK, opened)
}

func (h *OperatorHandler) Close(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	number, err := h.service.CloseQuestion(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	log.Printf("question %d closed", number)
	writeJSON(w, http.StatusOK, closedResponse{QuestionNumber: number})
}

// Score validates the closed question. An empty body or answer uses the question bank.
func (h *OperatorHandler) Score(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req scoreRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid score payload", http.StatusBadRequest)
			return
		}
	}

	var (
		round domain.RoundResult
		err   error
	)
	if req.Answer == "" {
		round, err = h.service.ScoreFromBank(r.Context())
	} else {
		round, err = h.service.ScoreQuestion(r.Context(), req.Answer)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	log.Printf("question %d scored, %d correct", round.QuestionNumber, len(round.FastestCorrect))
	writeJSON(w, http.StatusOK, round)
}

func (h *OperatorHandler) Leaderboard(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	n := h.service.TopN()
	if raw := r.URL.Query().Get("top"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid top", http.StatusBadRequest)
			return
		}
		n = parsed
	}
	lb, err := h.service.Leaderboard(r.Context(), n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (h *OperatorHandler) Summary(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	person, err := personFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	summary, err := h.service.PersonalSummary(r.Context(), person)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{Summary: summary})
}

var errMissingPerson = errors.New("missing or invalid chatId or name")

func personFromQuery(r *http.Request) (domain.Person, error) {
	q := r.URL.Query()
	name := q.Get("name")
	chatID, err := strconv.ParseInt(q.Get("chatId"), 10, 64)
	if err != nil || name == "" {
		return domain.Person{}, errMissingPerson
	}
	return domain.Person{ChatID: chatID, Name: name}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

// statusFor maps quiz errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAlreadyOpen),
		errors.Is(err, domain.ErrScoringWhileOpen),
		errors.Is(err, domain.ErrOutOfRange):
		return http.StatusConflict
	case errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrQuizNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrClockSkew):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	writeJSON(w, status, errorPayload{Message: err.Error()})
}
