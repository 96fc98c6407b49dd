package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"chat-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// sessionRowID is the primary key of the single quiz session row.
const sessionRowID = "current"

// Store persists the session as a JSONB row and answers as one row per
// (chat_id, question_index).
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) LoadSession(ctx context.Context) (domain.SessionState, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT state FROM quiz_sessions WHERE id=$1`, sessionRowID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewSessionState(), nil
	}
	if err != nil {
		return domain.SessionState{}, fmt.Errorf("load session: %w", err)
	}
	st, err := domain.DecodeSession(raw)
	if err != nil {
		return domain.SessionState{}, fmt.Errorf("decode session: %w", err)
	}
	return st, nil
}

// UpdateSession locks the session row for the duration of fn. Answer reads and
// writes made through the AnswerTx run on the same transaction.
func (s *Store) UpdateSession(ctx context.Context, fn func(*domain.SessionState, domain.AnswerTx) error) (domain.SessionState, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.SessionState{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	fresh, err := json.Marshal(domain.NewSessionState())
	if err != nil {
		return domain.SessionState{}, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO quiz_sessions (id, state) VALUES ($1, $2::jsonb) ON CONFLICT (id) DO NOTHING`, sessionRowID, string(fresh)); err != nil {
		return domain.SessionState{}, fmt.Errorf("ensure session: %w", err)
	}

	var raw []byte
	if err := tx.QueryRow(ctx, `SELECT state FROM quiz_sessions WHERE id=$1 FOR UPDATE`, sessionRowID).Scan(&raw); err != nil {
		return domain.SessionState{}, fmt.Errorf("lock session: %w", err)
	}
	st, err := domain.DecodeSession(raw)
	if err != nil {
		return domain.SessionState{}, fmt.Errorf("decode session: %w", err)
	}
	answers := &answerTx{tx: tx}
	if err := fn(&st, answers); err != nil {
		return domain.SessionState{}, err
	}
	if err := answers.flush(ctx); err != nil {
		return domain.SessionState{}, err
	}

	data, err := json.Marshal(st)
	if err != nil {
		return domain.SessionState{}, fmt.Errorf("encode session: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE quiz_sessions SET state=$2::jsonb, updated_at=now() WHERE id=$1`, sessionRowID, string(data)); err != nil {
		return domain.SessionState{}, fmt.Errorf("write session: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.SessionState{}, fmt.Errorf("commit: %w", err)
	}
	return st, nil
}

func (s *Store) GetAnswer(ctx context.Context, chatID int64, questionIndex int) (domain.AnswerRecord, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT chat_id, question_index, name, answer, correct, elapsed_seconds
		FROM quiz_answers WHERE chat_id=$1 AND question_index=$2`, chatID, questionIndex)
	rec, err := scanAnswer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AnswerRecord{}, false, nil
	}
	if err != nil {
		return domain.AnswerRecord{}, false, fmt.Errorf("get answer: %w", err)
	}
	return rec, true, nil
}

// CreateAnswer holds a share lock on the session row while it checks the window
// and inserts, so a close or score waits for it or makes it see the closed state.
// Duplicates rely on the (chat_id, question_index) primary key.
func (s *Store) CreateAnswer(ctx context.Context, rec domain.AnswerRecord) (domain.Outcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var raw []byte
	err = tx.QueryRow(ctx, `SELECT state FROM quiz_sessions WHERE id=$1 FOR SHARE`, sessionRowID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.OutcomeWindowClosed, nil
	}
	if err != nil {
		return "", fmt.Errorf("lock session: %w", err)
	}
	st, err := domain.DecodeSession(raw)
	if err != nil {
		return "", fmt.Errorf("decode session: %w", err)
	}
	if !st.AcceptsAnswersFor(rec.QuestionIndex) {
		return domain.OutcomeWindowClosed, nil
	}

	tag, err := tx.Exec(ctx, `INSERT INTO quiz_answers (chat_id, question_index, name, answer, correct, elapsed_seconds)
		VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (chat_id, question_index) DO NOTHING`,
		rec.ChatID, rec.QuestionIndex, rec.Name, rec.Text, rec.Correct, rec.ElapsedSeconds)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.OutcomeAlreadyAnswered, nil
	}
	return domain.OutcomeAccepted, nil
}

// answerTx binds answer access to the session transaction. Writes are queued
// and flushed just before the session row is written.
type answerTx struct {
	tx        pgx.Tx
	saved     []domain.AnswerRecord
	deleteAll bool
}

// AnswersForQuestion lists the committed answers for a question, ordered by chat ID.
func (s *Store) AnswersForQuestion(ctx context.Context, questionIndex int) ([]domain.AnswerRecord, error) {
	return listAnswers(ctx, s.pool, questionIndex)
}

func (a *answerTx) AnswersForQuestion(ctx context.Context, questionIndex int) ([]domain.AnswerRecord, error) {
	return listAnswers(ctx, a.tx, questionIndex)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

func listAnswers(ctx context.Context, q querier, questionIndex int) ([]domain.AnswerRecord, error) {
	rows, err := q.Query(ctx, `SELECT chat_id, question_index, name, answer, correct, elapsed_seconds
		FROM quiz_answers WHERE question_index=$1 ORDER BY chat_id`, questionIndex)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	out := make([]domain.AnswerRecord, 0)
	for rows.Next() {
		rec, err := scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (a *answerTx) SaveAnswers(recs []domain.AnswerRecord) {
	a.saved = append(a.saved, recs...)
}

func (a *answerTx) DeleteAllAnswers() {
	a.deleteAll = true
	a.saved = nil
}

func (a *answerTx) flush(ctx context.Context) error {
	if a.deleteAll {
		if _, err := a.tx.Exec(ctx, `DELETE FROM quiz_answers`); err != nil {
			return fmt.Errorf("delete answers: %w", err)
		}
	}
	if len(a.saved) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range a.saved {
		batch.Queue(`UPDATE quiz_answers SET correct=$3 WHERE chat_id=$1 AND question_index=$2`,
			rec.ChatID, rec.QuestionIndex, rec.Correct)
	}
	br := a.tx.SendBatch(ctx, batch)
	for range a.saved {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("save answers: %w", err)
		}
	}
	return br.Close()
}

func scanAnswer(row pgx.Row) (domain.AnswerRecord, error) {
	var rec domain.AnswerRecord
	err := row.Scan(&rec.ChatID, &rec.QuestionIndex, &rec.Name, &rec.Text, &rec.Correct, &rec.ElapsedSeconds)
	return rec, err
}
