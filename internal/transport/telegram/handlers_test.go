package telegram

import (
	"context"
	"strings"
	"testing"
	"time"

	"chat-quiz-service/internal/app"
	"chat-quiz-service/internal/domain"
	"chat-quiz-service/internal/infra/memory"
	"gopkg.in/telebot.v4"
)

const operatorChat = 100

// fakeContext implements the telebot.Context methods the handlers use.
// Calling anything else panics on the nil embedded interface.
type fakeContext struct {
	telebot.Context
	chat   *telebot.Chat
	sender *telebot.User
	msg    *telebot.Message
	args   []string
	sent   []string
}

func newFakeContext(chatID int64, name, text string, unix int64) *fakeContext {
	chat := &telebot.Chat{ID: chatID, FirstName: name}
	user := &telebot.User{ID: chatID, FirstName: name}
	return &fakeContext{
		chat:   chat,
		sender: user,
		msg:    &telebot.Message{Text: text, Unixtime: unix, Chat: chat, Sender: user},
	}
}

func (c *fakeContext) Chat() *telebot.Chat       { return c.chat }
func (c *fakeContext) Sender() *telebot.User     { return c.sender }
func (c *fakeContext) Message() *telebot.Message { return c.msg }
func (c *fakeContext) Text() string              { return c.msg.Text }
func (c *fakeContext) Args() []string            { return c.args }

func (c *fakeContext) Send(what interface{}, _ ...interface{}) error {
	c.sent = append(c.sent, what.(string))
	return nil
}

func (c *fakeContext) last() string {
	if len(c.sent) == 0 {
		return ""
	}
	return c.sent[len(c.sent)-1]
}

func TestOperatorCommandsRequireOperator(t *testing.T) {
	h, _ := newTestHandlers()

	c := newFakeContext(5, "Alice", "/open", 0)
	if err := h.OperatorOnly(h.Open)(c); err != nil {
		t.Fatalf("open: %v", err)
	}
	if c.last() != msgOperatorOnly {
		t.Fatalf("expected operator rejection, got %q", c.last())
	}

	op := newFakeContext(operatorChat, "Host", "/open", 0)
	if err := h.OperatorOnly(h.Open)(op); err != nil {
		t.Fatalf("open: %v", err)
	}
	if !strings.HasPrefix(op.last(), "Question 1 is open.") || !strings.Contains(op.last(), "Which animal meows?") {
		t.Fatalf("unexpected open reply %q", op.last())
	}
}

func TestChatRound(t *testing.T) {
	h, service := newTestHandlers()
	start := service.Now().Unix()

	op := newFakeContext(operatorChat, "Host", "/open", 0)
	mustHandle(t, h.Open, op)

	alice := newFakeContext(1, "Alice", "cat", start+3)
	mustHandle(t, h.Answer, alice)
	if alice.last() != "Answer to question 1 received after 3 sec." {
		t.Fatalf("unexpected answer reply %q", alice.last())
	}
	again := newFakeContext(1, "Alice", "dog", start+4)
	mustHandle(t, h.Answer, again)
	if again.last() != "You already answered question 1." {
		t.Fatalf("unexpected duplicate reply %q", again.last())
	}
	early := newFakeContext(2, "Bob", "cat", start-5)
	mustHandle(t, h.Answer, early)
	if early.last() != "Your answer arrived before the question opened." {
		t.Fatalf("unexpected skew reply %q", early.last())
	}

	op.args = []string{"cat"}
	mustHandle(t, h.Score, op)
	if op.last() != "Close the question before scoring it." {
		t.Fatalf("unexpected score-while-open reply %q", op.last())
	}
	mustHandle(t, h.Close, op)
	if op.last() != "Question 1 is closed." {
		t.Fatalf("unexpected close reply %q", op.last())
	}

	late := newFakeContext(3, "Carol", "cat", start+10)
	mustHandle(t, h.Answer, late)
	if late.last() != "No question is open right now." {
		t.Fatalf("unexpected closed reply %q", late.last())
	}

	mustHandle(t, h.Score, op)
	if op.last() != "Question 1 scored. Correct answer: cat\nCorrect answers: Alice (3 sec)" {
		t.Fatalf("unexpected score reply %q", op.last())
	}

	op.args = nil
	mustHandle(t, h.Top, op)
	if op.last() != "Total questions: 1\n\n1 - Alice (1) - Correct: 1 - Ellapsed: 3" {
		t.Fatalf("unexpected leaderboard %q", op.last())
	}
	op.args = []string{"many"}
	mustHandle(t, h.Top, op)
	if op.last() != "Usage: /top [n]" {
		t.Fatalf("unexpected usage reply %q", op.last())
	}

	me := newFakeContext(1, "Alice", "/me", 0)
	mustHandle(t, h.Me, me)
	if me.last() != "You answered 1 questions correctly in 3 seconds overall. Thanks for taking part in the quiz!" {
		t.Fatalf("unexpected summary %q", me.last())
	}

	mustHandle(t, h.Reset, op)
	st, _ := service.State(context.Background())
	if st.QuestionIndex != 0 || len(st.Tally) != 0 {
		t.Fatalf("expected reset session, got %+v", st)
	}
}

func TestScoreFromBankWithoutOpenQuestion(t *testing.T) {
	h, _ := newTestHandlers()
	op := newFakeContext(operatorChat, "Host", "/score", 0)
	mustHandle(t, h.Score, op)
	if op.last() != "The current question has not been opened yet." {
		t.Fatalf("unexpected reply %q", op.last())
	}
}

func TestAnswerTextIsStoredVerbatim(t *testing.T) {
	h, service := newTestHandlers()
	start := service.Now().Unix()

	op := newFakeContext(operatorChat, "Host", "/open", 0)
	mustHandle(t, h.Open, op)
	mustHandle(t, h.Answer, newFakeContext(1, "Alice", "cat ", start+2))
	mustHandle(t, h.Answer, newFakeContext(2, "Bob", "cat", start+3))
	mustHandle(t, h.Close, op)

	round, err := service.ScoreQuestion(context.Background(), "cat")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if round.Correctness[1] || !round.Correctness[2] {
		t.Fatalf("exact matching must see the raw text, got %+v", round.Correctness)
	}
}

func TestPersonOfFallsBackToUsername(t *testing.T) {
	c := newFakeContext(9, "", "hi", 0)
	c.sender.Username = "zed"
	person, ok := personOf(c)
	if !ok || person.Name != "zed" || person.ChatID != 9 {
		t.Fatalf("unexpected person %+v", person)
	}

	c = newFakeContext(9, "", "hi", 0)
	person, _ = personOf(c)
	if person.Name != "9" {
		t.Fatalf("expected chat id as name, got %q", person.Name)
	}
}

func mustHandle(t *testing.T, handler telebot.HandlerFunc, c *fakeContext) {
	t.Helper()
	if err := handler(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
}

func newTestHandlers() (*Handlers, *app.QuizService) {
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": {
			ID: "quiz-1",
			Questions: []domain.Question{
				{ID: "q1", Prompt: "Which animal meows?", Answer: "cat"},
			},
		},
	}), time.Minute)
	service := app.NewQuizService(memory.NewStore(), quizzes, app.Options{QuizID: "quiz-1"})
	return NewHandlers(service, func(chatID int64) bool { return chatID == operatorChat }), service
}
