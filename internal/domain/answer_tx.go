package domain

import "context"

// AnswerTx gives a session update access to the stored answers. Reads see the
// committed records; queued writes land together with the session write, or
// not at all when the update fails.
type AnswerTx interface {
	AnswersForQuestion(ctx context.Context, questionIndex int) ([]AnswerRecord, error)
	SaveAnswers(recs []AnswerRecord)
	DeleteAllAnswers()
}
