package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"chat-quiz-service/internal/app"
	"chat-quiz-service/internal/domain"
	"gopkg.in/telebot.v4"
)

const (
	msgWelcome      = "Welcome to the quiz! While a question is open, send your answer as a plain message. Use /me to see your score."
	msgOperatorOnly = "This command is for the quiz host."
	msgFailed       = "Something went wrong, please try again."
)

// Handlers maps chat commands and messages onto the quiz service.
type Handlers struct {
	service    *app.QuizService
	isOperator func(chatID int64) bool
}

func NewHandlers(service *app.QuizService, isOperator func(chatID int64) bool) *Handlers {
	if isOperator == nil {
		isOperator = func(int64) bool { return false }
	}
	return &Handlers{service: service, isOperator: isOperator}
}

// OperatorOnly rejects commands from chats that are not configured as operators.
func (h *Handlers) OperatorOnly(next telebot.HandlerFunc) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		chat := c.Chat()
		if chat == nil || !h.isOperator(chat.ID) {
			return c.Send(msgOperatorOnly)
		}
		return next(c)
	}
}

func (h *Handlers) Start(c telebot.Context) error {
	return c.Send(msgWelcome)
}

// Me replies with the sender's own totals.
func (h *Handlers) Me(c telebot.Context) error {
	person, ok := personOf(c)
	if !ok {
		return nil
	}
	summary, err := h.service.PersonalSummary(context.Background(), person)
	if err != nil {
		return h.fail(c, "summary", err)
	}
	return c.Send(summary)
}

func (h *Handlers) Reset(c telebot.Context) error {
	if err := h.service.Reset(context.Background()); err != nil {
		return h.fail(c, "reset", err)
	}
	return c.Send("Quiz reset. Next question: 1.")
}

func (h *Handlers) Open(c telebot.Context) error {
	opened, err := h.service.OpenQuestion(context.Background())
	if err != nil {
		return h.fail(c, "open", err)
	}
	text := fmt.Sprintf("Question %d is open.", opened.QuestionNumber)
	if opened.Prompt != "" {
		text += "\n" + opened.Prompt
	}
	return c.Send(text)
}

func (h *Handlers) Close(c telebot.Context) error {
	number, err := h.service.CloseQuestion(context.Background())
	if err != nil {
		return h.fail(c, "close", err)
	}
	return c.Send(fmt.Sprintf("Question %d is closed.", number))
}

// Score validates the closed question with the given answer, or the bank answer without one.
func (h *Handlers) Score(c telebot.Context) error {
	answer := strings.Join(c.Args(), " ")
	var (
		round domain.RoundResult
		err   error
	)
	if answer == "" {
		round, err = h.service.ScoreFromBank(context.Background())
	} else {
		round, err = h.service.ScoreQuestion(context.Background(), answer)
	}
	if err != nil {
		return h.fail(c, "score", err)
	}
	return c.Send(formatRound(round))
}

// Top sends the leaderboard, optionally limited by the first argument.
func (h *Handlers) Top(c telebot.Context) error {
	n := h.service.TopN()
	if args := c.Args(); len(args) > 0 {
		parsed, err := strconv.Atoi(args[0])
		if err != nil {
			return c.Send("Usage: /top [n]")
		}
		n = parsed
	}
	lb, err := h.service.Leaderboard(context.Background(), n)
	if err != nil {
		return h.fail(c, "leaderboard", err)
	}
	return c.Send(lb.Summary)
}

// Answer treats any plain text as a submission timestamped with the message date.
func (h *Handlers) Answer(c telebot.Context) error {
	person, ok := personOf(c)
	if !ok {
		return nil
	}
	msg := c.Message()
	if msg == nil {
		return nil
	}
	text := c.Text()
	if text == "" {
		return nil
	}

	result, err := h.service.SubmitAnswer(context.Background(), person, text, msg.Unixtime)
	if err != nil {
		return h.fail(c, "submit", err)
	}
	switch result.Outcome {
	case domain.OutcomeAccepted:
		return c.Send(fmt.Sprintf("Answer to question %d received after %d sec.", result.QuestionNumber, result.ElapsedSeconds))
	case domain.OutcomeAlreadyAnswered:
		return c.Send(fmt.Sprintf("You already answered question %d.", result.QuestionNumber))
	default:
		return c.Send("No question is open right now.")
	}
}

func (h *Handlers) fail(c telebot.Context, op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrAlreadyOpen):
		return c.Send("The current question is already open or waiting to be scored.")
	case errors.Is(err, domain.ErrScoringWhileOpen):
		return c.Send("Close the question before scoring it.")
	case errors.Is(err, domain.ErrOutOfRange):
		return c.Send("The current question has not been opened yet.")
	case errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrQuestionNotFound):
		return c.Send("No answer in the question bank, use /score <answer>.")
	case errors.Is(err, domain.ErrClockSkew):
		return c.Send("Your answer arrived before the question opened.")
	}
	log.Printf("telegram %s: %v", op, err)
	return c.Send(msgFailed)
}

func formatRound(round domain.RoundResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question %d scored. Correct answer: %s\n", round.QuestionNumber, round.CorrectAnswer)
	if len(round.FastestCorrect) == 0 {
		b.WriteString("Nobody answered correctly.")
		return b.String()
	}
	b.WriteString("Correct answers: ")
	b.WriteString(strings.Join(round.FastestCorrect, ", "))
	return b.String()
}

// personOf identifies the participant by chat id and the sender's first name.
func personOf(c telebot.Context) (domain.Person, bool) {
	chat := c.Chat()
	if chat == nil {
		return domain.Person{}, false
	}
	name := chat.FirstName
	if u := c.Sender(); u != nil {
		switch {
		case u.FirstName != "":
			name = u.FirstName
		case u.Username != "":
			name = u.Username
		}
	}
	if name == "" {
		name = chat.Username
	}
	if name == "" {
		name = strconv.FormatInt(chat.ID, 10)
	}
	return domain.Person{ChatID: chat.ID, Name: name}, true
}
