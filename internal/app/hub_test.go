package app

import (
	"testing"

	"chat-quiz-service/internal/domain"
)

func TestHubDropsStaleEventsForSlowSubscribers(t *testing.T) {
	h := newHub()
	ch, cancel := h.subscribe()

	for i := 1; i <= 20; i++ {
		h.publish(domain.Event{Type: domain.EventQuestionOpened, QuestionNumber: i})
	}

	var last domain.Event
	n := 0
	for len(ch) > 0 {
		last = <-ch
		n++
	}
	if n != cap(ch) {
		t.Fatalf("expected a full buffer of %d events, got %d", cap(ch), n)
	}
	if last.QuestionNumber != 20 {
		t.Fatalf("expected newest event kept, got %d", last.QuestionNumber)
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel closed after cancel")
	}
	if h.size() != 0 {
		t.Fatalf("expected no subscribers, got %d", h.size())
	}
	h.publish(domain.Event{Type: domain.EventReset})
}
