package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chat-quiz-service/internal/app"
	"chat-quiz-service/internal/domain"
	"chat-quiz-service/internal/infra/postgres"
	pgmigrations "chat-quiz-service/internal/infra/postgres/migrations"
	infraredis "chat-quiz-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestQuizRoundEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuiz(t, ctx, pgURL, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()
	quizRepo := infraredis.NewQuizRepository(redisClient, postgres.NewQuizLoader(pool), 5*time.Minute)

	for name, store := range map[string]app.Store{
		"postgres": postgres.NewStore(pool),
		"redis":    infraredis.NewStore(redisClient, time.Hour),
	} {
		t.Run(name, func(t *testing.T) {
			playRound(t, ctx, app.NewQuizService(store, quizRepo, app.Options{QuizID: "quiz-1", Matcher: app.FoldMatcher{}}))
		})
		t.Run(name+"_close_race", func(t *testing.T) {
			closeRacesSubmits(t, ctx, store)
		})
	}
}

type answerLister interface {
	AnswersForQuestion(ctx context.Context, questionIndex int) ([]domain.AnswerRecord, error)
}

// closeRacesSubmits plays two instances over one store: participants submit
// through one while the operator closes and scores through the other. Every
// accepted answer must be scored and nothing may land after the score.
func closeRacesSubmits(t *testing.T, ctx context.Context, store app.Store) {
	t.Helper()
	operator := app.NewQuizService(store, nil, app.Options{})
	participant := app.NewQuizService(store, nil, app.Options{})
	if err := operator.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	opened, err := operator.OpenQuestion(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	start := opened.StartedAt.Unix()

	var wg sync.WaitGroup
	var accepted int32
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(chatID int64) {
			defer wg.Done()
			res, err := participant.SubmitAnswer(ctx, domain.Person{ChatID: chatID, Name: "P"}, "4", start+1)
			if err != nil {
				t.Errorf("submit: %v", err)
				return
			}
			if res.Outcome == domain.OutcomeAccepted {
				atomic.AddInt32(&accepted, 1)
			}
		}(int64(100 + i))
	}
	if _, err := operator.CloseQuestion(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	round, err := operator.ScoreQuestion(ctx, "4")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	wg.Wait()

	recs, err := store.(answerLister).AnswersForQuestion(ctx, 0)
	if err != nil {
		t.Fatalf("answers: %v", err)
	}
	if len(recs) != int(accepted) || len(round.Correctness) != len(recs) {
		t.Fatalf("accepted %d, stored %d, scored %d", accepted, len(recs), len(round.Correctness))
	}
	for _, rec := range recs {
		if !rec.Scored() {
			t.Fatalf("answer from %d stored but never scored", rec.ChatID)
		}
	}
}

func playRound(t *testing.T, ctx context.Context, service *app.QuizService) {
	t.Helper()
	if err := service.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	opened, err := service.OpenQuestion(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened.Prompt != "What is 2 + 2?" {
		t.Fatalf("expected bank prompt, got %q", opened.Prompt)
	}
	start := opened.StartedAt.Unix()

	alice := domain.Person{ChatID: 1, Name: "Alice"}
	bob := domain.Person{ChatID: 2, Name: "Bob"}

	var wg sync.WaitGroup
	var accepted int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := service.SubmitAnswer(ctx, bob, fmt.Sprintf(" Four %d", i), start+2)
			if err != nil {
				t.Errorf("submit: %v", err)
				return
			}
			if res.Outcome == domain.OutcomeAccepted {
				atomic.AddInt32(&accepted, 1)
			}
		}(i)
	}
	wg.Wait()
	if accepted != 1 {
		t.Fatalf("expected exactly one accepted answer, got %d", accepted)
	}
	if _, err := service.SubmitAnswer(ctx, alice, "FOUR", start+5); err != nil {
		t.Fatalf("submit alice: %v", err)
	}

	if _, err := service.CloseQuestion(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	round, err := service.ScoreFromBank(ctx)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if !round.Correctness[1] || round.Correctness[2] {
		t.Fatalf("unexpected correctness %+v", round.Correctness)
	}
	if len(round.FastestCorrect) != 1 || round.FastestCorrect[0] != "Alice (5 sec)" {
		t.Fatalf("unexpected fastest %v", round.FastestCorrect)
	}

	lb, err := service.Leaderboard(ctx, 5)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if lb.TotalQuestions != 1 || len(lb.Entries) != 1 || lb.Entries[0].ChatID != 1 {
		t.Fatalf("unexpected leaderboard %+v", lb)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedQuiz(t *testing.T, ctx context.Context, dsn string, quiz domain.Quiz) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, data) VALUES (? , ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, quiz.ID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID: "quiz-1",
		Questions: []domain.Question{
			{ID: "q1", Prompt: "What is 2 + 2?", Answer: "four"},
			{ID: "q2", Prompt: "What is 3 + 3?", Answer: "six"},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
