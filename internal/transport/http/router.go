package http

import (
	"log"
	"net/http"

	"chat-quiz-service/internal/app"
	"github.com/julienschmidt/httprouter"
)

// RouterOptions configures optional routes.
type RouterOptions struct {
	JoinURL string
}

// NewRouter wires the operator API, the participant websocket and the join QR.
func NewRouter(service *app.QuizService, opts RouterOptions) *httprouter.Router {
	mux := httprouter.New()
	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		log.Printf("panic serving %s %s: %v", r.Method, r.URL.Path, v)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}

	operator := NewOperatorHandler(service)
	ws := NewWSHandler(service)

	mux.GET("/healthz", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.GET("/quiz/state", operator.State)
	mux.POST("/quiz/reset", operator.Reset)
	mux.POST("/quiz/open", operator.Open)
	mux.POST("/quiz/close", operator.Close)
	mux.POST("/quiz/score", operator.Score)
	mux.GET("/quiz/leaderboard", operator.Leaderboard)
	mux.GET("/quiz/summary", operator.Summary)
	mux.GET("/quiz/join.png", JoinQR(opts.JoinURL))
	mux.HandlerFunc(http.MethodGet, "/ws", ws.ServeWS)
	return mux
}
