package memory

import (
	"context"
	"sort"
	"sync"

	"chat-quiz-service/internal/domain"
)

type answerKey struct {
	chatID        int64
	questionIndex int
}

// Store is an in-memory implementation of app.Store.
//
// Lock order is sessionMu then answersMu.
type Store struct {
	sessionMu sync.Mutex
	session   domain.SessionState

	answersMu sync.RWMutex
	answers   map[answerKey]domain.AnswerRecord
}

func NewStore() *Store {
	return &Store{
		session: domain.NewSessionState(),
		answers: make(map[answerKey]domain.AnswerRecord),
	}
}

func (s *Store) LoadSession(_ context.Context) (domain.SessionState, error) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	return s.session.Clone(), nil
}

func (s *Store) UpdateSession(ctx context.Context, fn func(*domain.SessionState, domain.AnswerTx) error) (domain.SessionState, error) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	next := s.session.Clone()
	tx := &answerTx{store: s}
	if err := fn(&next, tx); err != nil {
		return domain.SessionState{}, err
	}

	s.answersMu.Lock()
	if tx.deleteAll {
		s.answers = make(map[answerKey]domain.AnswerRecord)
	}
	for _, rec := range tx.saved {
		s.answers[answerKey{rec.ChatID, rec.QuestionIndex}] = copyRecord(rec)
	}
	s.answersMu.Unlock()

	s.session = next
	return next.Clone(), nil
}

func (s *Store) GetAnswer(_ context.Context, chatID int64, questionIndex int) (domain.AnswerRecord, bool, error) {
	s.answersMu.RLock()
	defer s.answersMu.RUnlock()
	rec, ok := s.answers[answerKey{chatID, questionIndex}]
	return copyRecord(rec), ok, nil
}

// CreateAnswer holds the session lock so no transition can slip between the gate and the insert.
func (s *Store) CreateAnswer(_ context.Context, rec domain.AnswerRecord) (domain.Outcome, error) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	if !s.session.AcceptsAnswersFor(rec.QuestionIndex) {
		return domain.OutcomeWindowClosed, nil
	}

	s.answersMu.Lock()
	defer s.answersMu.Unlock()
	key := answerKey{rec.ChatID, rec.QuestionIndex}
	if _, ok := s.answers[key]; ok {
		return domain.OutcomeAlreadyAnswered, nil
	}
	s.answers[key] = copyRecord(rec)
	return domain.OutcomeAccepted, nil
}

// AnswersForQuestion returns the records of one question ordered by chat id.
func (s *Store) AnswersForQuestion(_ context.Context, questionIndex int) ([]domain.AnswerRecord, error) {
	s.answersMu.RLock()
	defer s.answersMu.RUnlock()
	out := make([]domain.AnswerRecord, 0)
	for key, rec := range s.answers {
		if key.questionIndex == questionIndex {
			out = append(out, copyRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out, nil
}

// Len reports how many answer records are stored.
func (s *Store) Len() int {
	s.answersMu.RLock()
	defer s.answersMu.RUnlock()
	return len(s.answers)
}

type answerTx struct {
	store     *Store
	saved     []domain.AnswerRecord
	deleteAll bool
}

func (t *answerTx) AnswersForQuestion(ctx context.Context, questionIndex int) ([]domain.AnswerRecord, error) {
	return t.store.AnswersForQuestion(ctx, questionIndex)
}

func (t *answerTx) SaveAnswers(recs []domain.AnswerRecord) {
	for _, rec := range recs {
		t.saved = append(t.saved, copyRecord(rec))
	}
}

func (t *answerTx) DeleteAllAnswers() {
	t.deleteAll = true
	t.saved = nil
}

func copyRecord(rec domain.AnswerRecord) domain.AnswerRecord {
	if rec.Correct != nil {
		c := *rec.Correct
		rec.Correct = &c
	}
	return rec
}
