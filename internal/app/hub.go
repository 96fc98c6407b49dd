package app

import (
	"sync"

	"chat-quiz-service/internal/domain"
)

// hub fans quiz events out to subscribers.
type hub struct {
	mu          sync.Mutex
	subscribers map[chan domain.Event]struct{}
}

func newHub() *hub {
	return &hub{subscribers: make(map[chan domain.Event]struct{})}
}

func (h *hub) subscribe() (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, 8)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *hub) publish(ev domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop its oldest pending event so broadcast never blocks.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

func (h *hub) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}
