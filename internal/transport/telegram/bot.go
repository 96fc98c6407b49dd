package telegram

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"chat-quiz-service/internal/app"
	"gopkg.in/telebot.v4"
)

// Settings configures the chat front end.
type Settings struct {
	Token       string
	PollTimeout time.Duration
	Debug       bool
	IsOperator  func(chatID int64) bool
}

// Bot runs the quiz over a Telegram long poller.
type Bot struct {
	bot      *telebot.Bot
	notifier *Notifier
}

func NewBot(service *app.QuizService, s Settings) (*Bot, error) {
	if s.PollTimeout <= 0 {
		s.PollTimeout = 10 * time.Second
	}
	bot, err := telebot.NewBot(telebot.Settings{
		Token:  s.Token,
		Poller: &telebot.LongPoller{Timeout: s.PollTimeout},
		OnError: func(err error, c telebot.Context) {
			log.Printf("telegram handler error: %v", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telebot.NewBot: %w", err)
	}

	bot.Use(Recover())
	if s.Debug {
		bot.Use(Logger(log.New(os.Stdout, "[bot] ", log.LstdFlags)))
	}
	register(bot, NewHandlers(service, s.IsOperator))

	return &Bot{bot: bot, notifier: NewNotifier(service, bot)}, nil
}

func register(bot *telebot.Bot, h *Handlers) {
	bot.Handle("/start", h.Start)
	bot.Handle("/me", h.Me)
	bot.Handle(telebot.OnText, h.Answer)

	operator := bot.Group()
	operator.Use(h.OperatorOnly)
	operator.Handle("/reset", h.Reset)
	operator.Handle("/open", h.Open)
	operator.Handle("/close", h.Close)
	operator.Handle("/score", h.Score)
	operator.Handle("/top", h.Top)
}

// Run polls for updates until ctx is done.
func (b *Bot) Run(ctx context.Context) {
	notified := b.notifier.Start(ctx)
	go b.bot.Start()
	log.Printf("telegram bot @%s started", b.bot.Me.Username)

	<-ctx.Done()
	b.bot.Stop()
	<-notified
	log.Printf("telegram bot stopped")
}
