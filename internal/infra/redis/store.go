package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"chat-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKey    = "quiz:session"
	answersPrefix = "quiz:answers:"
	maxTxRetries  = 16
)

// Store keeps the quiz session and answers in Redis so several bot or HTTP
// instances can share one quiz.
//
//	GET   quiz:session            -> JSON session state (WATCH/MULTI for updates)
//	HSETNX quiz:answers:{index} {chatID} -> JSON answer record
//
// A positive ttl expires an abandoned quiz; every write refreshes it.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) LoadSession(ctx context.Context) (domain.SessionState, error) {
	return s.loadSession(ctx, s.client)
}

// stringGetter is satisfied by both *redis.Client and *redis.Tx.
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *Store) loadSession(ctx context.Context, c stringGetter) (domain.SessionState, error) {
	raw, err := c.Get(ctx, sessionKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.NewSessionState(), nil
	}
	if err != nil {
		return domain.SessionState{}, fmt.Errorf("get session: %w", err)
	}
	st, err := domain.DecodeSession(raw)
	if err != nil {
		return domain.SessionState{}, fmt.Errorf("decode session: %w", err)
	}
	return st, nil
}

// UpdateSession applies fn inside an optimistic WATCH transaction, retrying when
// another writer touched the session concurrently. Answer writes queued by fn go
// into the same MULTI as the session.
func (s *Store) UpdateSession(ctx context.Context, fn func(*domain.SessionState, domain.AnswerTx) error) (domain.SessionState, error) {
	var updated domain.SessionState
	txf := func(tx *redis.Tx) error {
		st, err := s.loadSession(ctx, tx)
		if err != nil {
			return err
		}
		answers := &answerTx{tx: tx, staleUpTo: len(st.QuestionStartTimestamps)}
		if err := fn(&st, answers); err != nil {
			return err
		}
		data, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		stale, err := answers.keysToDelete(ctx)
		if err != nil {
			return err
		}
		writes, err := s.encodeAnswers(answers.saved)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(stale) > 0 {
				pipe.Del(ctx, stale...)
			}
			for key, fields := range writes {
				pipe.HSet(ctx, key, fields)
				if s.ttl > 0 {
					pipe.Expire(ctx, key, s.ttl)
				}
			}
			pipe.Set(ctx, sessionKey, data, s.ttl)
			return nil
		})
		if err == nil {
			updated = st
		}
		return err
	}

	if err := s.watchSession(ctx, txf); err != nil {
		return domain.SessionState{}, err
	}
	return updated, nil
}

// watchSession runs txf under WATCH on the session key, retrying lost races.
func (s *Store) watchSession(ctx context.Context, txf func(*redis.Tx) error) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, sessionKey)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("session contended: %w", redis.TxFailedErr)
}

func (s *Store) encodeAnswers(recs []domain.AnswerRecord) (map[string]map[string]interface{}, error) {
	writes := make(map[string]map[string]interface{})
	for _, rec := range recs {
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("encode answer: %w", err)
		}
		key := answersKey(rec.QuestionIndex)
		if writes[key] == nil {
			writes[key] = make(map[string]interface{})
		}
		writes[key][chatField(rec.ChatID)] = data
	}
	return writes, nil
}

func (s *Store) GetAnswer(ctx context.Context, chatID int64, questionIndex int) (domain.AnswerRecord, bool, error) {
	raw, err := s.client.HGet(ctx, answersKey(questionIndex), chatField(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.AnswerRecord{}, false, nil
	}
	if err != nil {
		return domain.AnswerRecord{}, false, fmt.Errorf("get answer: %w", err)
	}
	var rec domain.AnswerRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.AnswerRecord{}, false, fmt.Errorf("decode answer: %w", err)
	}
	return rec, true, nil
}

// CreateAnswer watches the session while it checks the window, so a close,
// score or reset committed before the HSETNX aborts it and the retry sees the
// new state. HSETNX keeps one record per participant and question.
func (s *Store) CreateAnswer(ctx context.Context, rec domain.AnswerRecord) (domain.Outcome, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode answer: %w", err)
	}
	key := answersKey(rec.QuestionIndex)

	var outcome domain.Outcome
	txf := func(tx *redis.Tx) error {
		st, err := s.loadSession(ctx, tx)
		if err != nil {
			return err
		}
		if !st.AcceptsAnswersFor(rec.QuestionIndex) {
			outcome = domain.OutcomeWindowClosed
			return nil
		}
		var created *redis.BoolCmd
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			created = pipe.HSetNX(ctx, key, chatField(rec.ChatID), data)
			if s.ttl > 0 {
				pipe.Expire(ctx, key, s.ttl)
			}
			return nil
		})
		if err != nil {
			return err
		}
		outcome = domain.OutcomeAlreadyAnswered
		if created.Val() {
			outcome = domain.OutcomeAccepted
		}
		return nil
	}

	if err := s.watchSession(ctx, txf); err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	return outcome, nil
}

// AnswersForQuestion lists the committed answers for a question, ordered by chat ID.
func (s *Store) AnswersForQuestion(ctx context.Context, questionIndex int) ([]domain.AnswerRecord, error) {
	return listAnswers(ctx, s.client, questionIndex)
}

// hashGetter is satisfied by both *redis.Client and *redis.Tx.
type hashGetter interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func listAnswers(ctx context.Context, c hashGetter, questionIndex int) ([]domain.AnswerRecord, error) {
	fields, err := c.HGetAll(ctx, answersKey(questionIndex)).Result()
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	out := make([]domain.AnswerRecord, 0, len(fields))
	for _, raw := range fields {
		var rec domain.AnswerRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode answer: %w", err)
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out, nil
}

// answerTx reads through the watching connection and queues writes for the
// session's MULTI.
type answerTx struct {
	tx        *redis.Tx
	saved     []domain.AnswerRecord
	deleteAll bool
	// staleUpTo bounds the question indices that can hold answers for the
	// watched session; creates only land on an opened index.
	staleUpTo int
}

func (a *answerTx) AnswersForQuestion(ctx context.Context, questionIndex int) ([]domain.AnswerRecord, error) {
	return listAnswers(ctx, a.tx, questionIndex)
}

func (a *answerTx) SaveAnswers(recs []domain.AnswerRecord) {
	a.saved = append(a.saved, recs...)
}

func (a *answerTx) DeleteAllAnswers() {
	a.deleteAll = true
	a.saved = nil
}

// keysToDelete names every answer hash a reset must drop: each opened index of
// the watched session plus whatever else SCAN finds under the prefix.
func (a *answerTx) keysToDelete(ctx context.Context) ([]string, error) {
	if !a.deleteAll {
		return nil, nil
	}
	seen := make(map[string]struct{})
	var keys []string
	add := func(key string) {
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	for i := 0; i < a.staleUpTo; i++ {
		add(answersKey(i))
	}
	iter := a.tx.Scan(ctx, 0, answersPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		add(iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan answers: %w", err)
	}
	return keys, nil
}

func answersKey(questionIndex int) string {
	return answersPrefix + strconv.Itoa(questionIndex)
}

func chatField(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}
