package telegram

import (
	"context"
	"fmt"
	"log"

	"chat-quiz-service/internal/app"
	"chat-quiz-service/internal/domain"
	"gopkg.in/telebot.v4"
)

// Sender is the part of *telebot.Bot the notifier needs.
type Sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// Notifier tells every participant of a scored round whether they were right.
type Notifier struct {
	service *app.QuizService
	sender  Sender
}

func NewNotifier(service *app.QuizService, sender Sender) *Notifier {
	return &Notifier{service: service, sender: sender}
}

// Start subscribes immediately and delivers notifications until ctx is done.
// The returned channel closes when delivery stops.
func (n *Notifier) Start(ctx context.Context) <-chan struct{} {
	events, cancel := n.service.Subscribe(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if ev.Type == domain.EventRoundScored && ev.Round != nil {
					n.notifyRound(*ev.Round)
				}
			}
		}
	}()
	return done
}

func (n *Notifier) notifyRound(round domain.RoundResult) {
	for chatID, correct := range round.Correctness {
		text := fmt.Sprintf("Question %d: correct!", round.QuestionNumber)
		if !correct {
			text = fmt.Sprintf("Question %d: not correct. The answer was %s.", round.QuestionNumber, round.CorrectAnswer)
		}
		if _, err := n.sender.Send(telebot.ChatID(chatID), text); err != nil {
			log.Printf("notify chat %d: %v", chatID, err)
		}
	}
}
