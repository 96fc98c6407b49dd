package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chat-quiz-service/internal/domain"
)

// DefaultTopN is the leaderboard size used when none is requested.
const DefaultTopN = 5

// Store abstracts where the quiz session and its answers live (in-memory, Redis, Postgres).
type Store interface {
	LoadSession(ctx context.Context) (domain.SessionState, error)
	// UpdateSession runs fn against the stored session as one atomic read-modify-write.
	// Answer writes queued on the AnswerTx commit together with the session.
	// If fn returns an error nothing is written. fn may be retried and must be repeatable.
	UpdateSession(ctx context.Context, fn func(*domain.SessionState, domain.AnswerTx) error) (domain.SessionState, error)
	GetAnswer(ctx context.Context, chatID int64, questionIndex int) (domain.AnswerRecord, bool, error)
	// CreateAnswer inserts rec only while the stored session accepts answers for
	// rec.QuestionIndex and no record exists for (ChatID, QuestionIndex). The gate
	// and the insert are one atomic step across every process sharing the store.
	CreateAnswer(ctx context.Context, rec domain.AnswerRecord) (domain.Outcome, error)
}

// QuizRepository loads question banks (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Options tunes a QuizService. Zero values pick defaults.
type Options struct {
	// QuizID selects the question bank. Ignored without a QuizRepository.
	QuizID  string
	Matcher Matcher
	TopN    int
	Now     func() time.Time
}

// QuizService contains the quiz use cases for the single running session.
//
// Submissions hold the read lock and run concurrently; operator transitions hold
// the write lock, so a window never closes between a submission's gate check and
// its write. Cross-process atomicity comes from the Store.
type QuizService struct {
	store   Store
	quizzes QuizRepository
	quizID  string
	matcher Matcher
	topN    int
	now     func() time.Time
	hub     *hub

	mu sync.RWMutex
}

func NewQuizService(store Store, quizzes QuizRepository, opts Options) *QuizService {
	s := &QuizService{
		store:   store,
		quizzes: quizzes,
		quizID:  opts.QuizID,
		matcher: opts.Matcher,
		topN:    opts.TopN,
		now:     opts.Now,
		hub:     newHub(),
	}
	if s.matcher == nil {
		s.matcher = ExactMatcher{}
	}
	if s.topN <= 0 {
		s.topN = DefaultTopN
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// TopN is the configured default leaderboard size.
func (s *QuizService) TopN() int {
	return s.topN
}

// Now is the service clock; transports without their own timestamp use it for submissions.
func (s *QuizService) Now() time.Time {
	return s.now()
}

// Reset wipes stored answers and the session, starting a new quiz run.
func (s *QuizService) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.store.UpdateSession(ctx, func(st *domain.SessionState, answers domain.AnswerTx) error {
		answers.DeleteAllAnswers()
		st.Reset()
		return nil
	}); err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	s.hub.publish(domain.Event{Type: domain.EventReset, QuestionNumber: 1})
	return nil
}

// OpenQuestion starts accepting answers for the current question.
func (s *QuizService) OpenQuestion(ctx context.Context) (domain.OpenedQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	startedAt := s.now().Unix()
	st, err := s.store.UpdateSession(ctx, func(st *domain.SessionState, _ domain.AnswerTx) error {
		return st.OpenQuestion(startedAt)
	})
	if err != nil {
		return domain.OpenedQuestion{}, err
	}

	opened := domain.OpenedQuestion{
		QuestionNumber: st.QuestionNumber(),
		StartedAt:      time.Unix(startedAt, 0).UTC(),
		Prompt:         s.promptAt(ctx, st.QuestionIndex),
	}
	s.hub.publish(domain.Event{Type: domain.EventQuestionOpened, QuestionNumber: opened.QuestionNumber, Prompt: opened.Prompt})
	return opened, nil
}

// CloseQuestion stops accepting answers and returns the closed question number.
// Closing an already closed question changes nothing.
func (s *QuizService) CloseQuestion(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasOpen := false
	st, err := s.store.UpdateSession(ctx, func(st *domain.SessionState, _ domain.AnswerTx) error {
		wasOpen = st.AcceptingAnswers
		st.CloseQuestion()
		return nil
	})
	if err != nil {
		return 0, err
	}
	if wasOpen {
		s.hub.publish(domain.Event{Type: domain.EventQuestionClosed, QuestionNumber: st.QuestionNumber()})
	}
	return st.QuestionNumber(), nil
}

// ScoreQuestion validates every answer for the current question against
// correctAnswer, updates the tally and advances to the next question.
// The window must be closed first.
func (s *QuizService) ScoreQuestion(ctx context.Context, correctAnswer string) (domain.RoundResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scoreLocked(ctx, correctAnswer)
}

// ScoreFromBank scores the current question with the answer from the question bank.
func (s *QuizService) ScoreFromBank(ctx context.Context) (domain.RoundResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.store.LoadSession(ctx)
	if err != nil {
		return domain.RoundResult{}, err
	}
	if err := checkScorable(st); err != nil {
		return domain.RoundResult{}, err
	}
	if s.quizzes == nil || s.quizID == "" {
		return domain.RoundResult{}, domain.ErrQuizNotFound
	}
	quiz, err := s.quizzes.GetQuiz(ctx, s.quizID)
	if err != nil {
		return domain.RoundResult{}, err
	}
	question, err := quiz.QuestionAt(st.QuestionIndex)
	if err != nil {
		return domain.RoundResult{}, err
	}
	return s.scoreLocked(ctx, question.Answer)
}

func (s *QuizService) scoreLocked(ctx context.Context, correctAnswer string) (domain.RoundResult, error) {
	var result domain.RoundResult
	st, err := s.store.UpdateSession(ctx, func(st *domain.SessionState, tx domain.AnswerTx) error {
		if err := checkScorable(*st); err != nil {
			return err
		}
		answers, err := tx.AnswersForQuestion(ctx, st.QuestionIndex)
		if err != nil {
			return fmt.Errorf("load answers: %w", err)
		}
		marked, round := scoreRound(st, answers, correctAnswer, s.matcher)
		tx.SaveAnswers(marked)
		result = round
		return nil
	})
	if err != nil {
		return domain.RoundResult{}, err
	}

	lb := buildLeaderboard(st, s.topN, s.now())
	round := result
	s.hub.publish(domain.Event{
		Type:           domain.EventRoundScored,
		QuestionNumber: result.QuestionNumber,
		Round:          &round,
		Leaderboard:    &lb,
	})
	return result, nil
}

// checkScorable rejects scoring while the window is open or before the current question was opened.
func checkScorable(st domain.SessionState) error {
	if st.AcceptingAnswers {
		return domain.ErrScoringWhileOpen
	}
	_, err := st.CurrentWindowStart()
	return err
}

// SubmitAnswer records a participant's answer to the current question.
// Closed windows and duplicate answers are reported through the outcome, not as errors.
func (s *QuizService) SubmitAnswer(ctx context.Context, person domain.Person, text string, submittedAt int64) (domain.SubmitResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, err := s.store.LoadSession(ctx)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	result := domain.SubmitResult{QuestionNumber: st.QuestionNumber()}
	if !st.AcceptingAnswers {
		result.Outcome = domain.OutcomeWindowClosed
		return result, nil
	}

	if _, found, err := s.store.GetAnswer(ctx, person.ChatID, st.QuestionIndex); err != nil {
		return domain.SubmitResult{}, err
	} else if found {
		result.Outcome = domain.OutcomeAlreadyAnswered
		return result, nil
	}

	start, err := st.CurrentWindowStart()
	if err != nil {
		return domain.SubmitResult{}, err
	}
	elapsed := submittedAt - start
	if elapsed < 0 {
		return domain.SubmitResult{}, fmt.Errorf("%w: submitted %ds before question %d opened", domain.ErrClockSkew, -elapsed, result.QuestionNumber)
	}

	outcome, err := s.store.CreateAnswer(ctx, domain.AnswerRecord{
		ChatID:         person.ChatID,
		QuestionIndex:  st.QuestionIndex,
		Name:           person.Name,
		Text:           text,
		ElapsedSeconds: elapsed,
	})
	if err != nil {
		return domain.SubmitResult{}, err
	}
	result.Outcome = outcome
	if outcome == domain.OutcomeAccepted {
		result.ElapsedSeconds = elapsed
	}
	return result, nil
}

// Leaderboard ranks the cumulative tally and returns at most n entries.
func (s *QuizService) Leaderboard(ctx context.Context, n int) (domain.Leaderboard, error) {
	st, err := s.store.LoadSession(ctx)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return buildLeaderboard(st, n, s.now()), nil
}

// PersonalSummary describes a participant's own totals.
func (s *QuizService) PersonalSummary(ctx context.Context, person domain.Person) (string, error) {
	st, err := s.store.LoadSession(ctx)
	if err != nil {
		return "", err
	}
	return personalSummary(st, person), nil
}

// State returns a snapshot of the session.
func (s *QuizService) State(ctx context.Context) (domain.SessionState, error) {
	return s.store.LoadSession(ctx)
}

// Subscribe returns a channel of quiz events.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe(_ context.Context) (<-chan domain.Event, func()) {
	return s.hub.subscribe()
}

// promptAt looks up the bank prompt for a question; the bank is optional.
func (s *QuizService) promptAt(ctx context.Context, index int) string {
	if s.quizzes == nil || s.quizID == "" {
		return ""
	}
	quiz, err := s.quizzes.GetQuiz(ctx, s.quizID)
	if err != nil {
		return ""
	}
	q, err := quiz.QuestionAt(index)
	if err != nil {
		return ""
	}
	return q.Prompt
}
