package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-quiz-service/internal/app"
	"chat-quiz-service/internal/config"
	"chat-quiz-service/internal/infra/memory"
	"chat-quiz-service/internal/infra/postgres"
	infraredis "chat-quiz-service/internal/infra/redis"
	transport "chat-quiz-service/internal/transport/http"
	"chat-quiz-service/internal/transport/telegram"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server and, if configured, the Telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	store, err := newStore(cfg.Quiz.Store, redisClient, redisTTL, pool)
	if err != nil {
		return err
	}
	matcher, err := app.MatcherFor(cfg.Quiz.Matching)
	if err != nil {
		return err
	}

	service := app.NewQuizService(store, newQuizRepository(cfg, redisClient, pool), app.Options{
		QuizID:  cfg.Quiz.ID,
		Matcher: matcher,
		TopN:    cfg.Quiz.TopN,
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(service, transport.RouterOptions{JoinURL: cfg.Quiz.JoinURL}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
			stop()
		}
	}()

	botDone := make(chan struct{})
	if cfg.Telegram.Token != "" {
		bot, err := telegram.NewBot(service, telegram.Settings{
			Token:       cfg.Telegram.Token,
			PollTimeout: config.TTLDuration(cfg.Telegram.PollTimeout, 10*time.Second),
			Debug:       cfg.Telegram.Debug,
			IsOperator:  cfg.Telegram.IsOperator,
		})
		if err != nil {
			return err
		}
		go func() {
			defer close(botDone)
			bot.Run(ctx)
		}()
	} else {
		close(botDone)
	}

	<-ctx.Done()
	log.Println("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	<-botDone
	return err
}

// newStore picks where the session and answers live.
func newStore(kind string, redisClient *redis.Client, redisTTL time.Duration, pool *pgxpool.Pool) (app.Store, error) {
	if kind == "" {
		switch {
		case redisClient != nil:
			kind = "redis"
		case pool != nil:
			kind = "postgres"
		default:
			kind = "memory"
		}
	}
	switch kind {
	case "memory":
		return memory.NewStore(), nil
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("quiz store %q needs redis.addr", kind)
		}
		return infraredis.NewStore(redisClient, redisTTL), nil
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("quiz store %q needs postgres.url", kind)
		}
		return postgres.NewStore(pool), nil
	default:
		return nil, fmt.Errorf("unknown quiz store %q", kind)
	}
}

// newQuizRepository builds the optional question bank. Postgres wins over a questions file.
func newQuizRepository(cfg config.Config, redisClient *redis.Client, pool *pgxpool.Pool) app.QuizRepository {
	if cfg.Quiz.ID == "" {
		return nil
	}

	var loader memory.QuizLoader
	switch {
	case pool != nil:
		loader = postgres.NewQuizLoader(pool)
	case cfg.Quiz.QuestionsFile != "":
		loader = memory.NewFileQuizLoader(cfg.Quiz.QuestionsFile)
	default:
		log.Printf("quiz %q configured without postgres or questions_file, scoring needs an explicit answer", cfg.Quiz.ID)
		return nil
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if redisClient != nil {
		return infraredis.NewQuizRepository(redisClient, loader, quizTTL)
	}
	return memory.NewQuizRepository(loader, quizTTL)
}
