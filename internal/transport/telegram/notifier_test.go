package telegram

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"chat-quiz-service/internal/domain"
	"gopkg.in/telebot.v4"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *recordingSender) Send(to telebot.Recipient, what interface{}, _ ...interface{}) (*telebot.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, fmt.Sprintf("%s|%v", to.Recipient(), what))
	return &telebot.Message{}, nil
}

func (s *recordingSender) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]string(nil), s.sent...)
	sort.Strings(out)
	return out
}

func TestNotifierSendsRoundCorrectness(t *testing.T) {
	_, service := newTestHandlers()
	sender := &recordingSender{}
	ctx, cancel := context.WithCancel(context.Background())
	done := NewNotifier(service, sender).Start(ctx)

	if _, err := service.OpenQuestion(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	now := service.Now().Unix()
	for _, p := range []struct {
		person domain.Person
		text   string
	}{
		{domain.Person{ChatID: 1, Name: "Alice"}, "cat"},
		{domain.Person{ChatID: 2, Name: "Bob"}, "dog"},
	} {
		if _, err := service.SubmitAnswer(ctx, p.person, p.text, now); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	if _, err := service.CloseQuestion(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := service.ScoreQuestion(ctx, "cat"); err != nil {
		t.Fatalf("score: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(sender.snapshot()) < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	got := sender.snapshot()
	want := []string{
		"1|Question 1: correct!",
		"2|Question 1: not correct. The answer was cat.",
	}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("unexpected notifications %v", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("notifier did not stop")
	}
}
