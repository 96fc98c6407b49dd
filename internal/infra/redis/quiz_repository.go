package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"chat-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches a question bank from a backing store (file, Postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository caches question banks in Redis and falls back to a loader on miss.
// Questions are stored as: HSET quiz:bank:{quizID} {index} {question JSON}
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.cached(ctx, quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := r.cached(ctx, quizID); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		key := bankKey(quizID)
		pipe := r.client.TxPipeline()
		pipe.Del(ctx, key)
		for i, q := range quiz.Questions {
			data, err := json.Marshal(q)
			if err != nil {
				return domain.Quiz{}, fmt.Errorf("encode question: %w", err)
			}
			pipe.HSet(ctx, key, strconv.Itoa(i), data)
		}
		if ttl := r.ttlWithJitter(); ttl > 0 && len(quiz.Questions) > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		// Cache fill is best effort; the loaded bank is still served.
		_, _ = pipe.Exec(ctx)

		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// Invalidate drops the cached bank.
func (r *QuizRepository) Invalidate(ctx context.Context, quizID string) error {
	return r.client.Del(ctx, bankKey(quizID)).Err()
}

func (r *QuizRepository) cached(ctx context.Context, quizID string) (domain.Quiz, bool) {
	fields, err := r.client.HGetAll(ctx, bankKey(quizID)).Result()
	if err != nil || len(fields) == 0 {
		return domain.Quiz{}, false
	}
	quiz, err := buildQuizFromCache(quizID, fields)
	if err != nil {
		return domain.Quiz{}, false
	}
	return quiz, true
}

func bankKey(quizID string) string {
	return "quiz:bank:" + quizID
}

// buildQuizFromCache restores question order from the hash field indexes.
func buildQuizFromCache(quizID string, fields map[string]string) (domain.Quiz, error) {
	type indexed struct {
		index    int
		question domain.Question
	}
	items := make([]indexed, 0, len(fields))
	for field, raw := range fields {
		idx, err := strconv.Atoi(field)
		if err != nil {
			return domain.Quiz{}, fmt.Errorf("bad question index %q: %w", field, err)
		}
		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return domain.Quiz{}, fmt.Errorf("decode question: %w", err)
		}
		items = append(items, indexed{index: idx, question: q})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].index < items[j].index })

	questions := make([]domain.Question, 0, len(items))
	for _, it := range items {
		questions = append(questions, it.question)
	}
	return domain.Quiz{ID: quizID, Questions: questions}, nil
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
