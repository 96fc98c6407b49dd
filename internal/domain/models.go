package domain

import "time"

// Person identifies a participant as delivered by the chat transport.
type Person struct {
	ChatID int64  `json:"chatId"`
	Name   string `json:"name"`
}

// AnswerRecord is a single submission for one question. Correct stays nil until scored.
type AnswerRecord struct {
	ChatID         int64  `json:"chatId"`
	QuestionIndex  int    `json:"questionIndex"`
	Name           string `json:"name"`
	Text           string `json:"text"`
	Correct        *bool  `json:"correct,omitempty"`
	ElapsedSeconds int64  `json:"elapsedSeconds"`
}

// Scored reports whether the record has been validated.
func (a AnswerRecord) Scored() bool {
	return a.Correct != nil
}

// Outcome is the participant-visible result of a submission.
type Outcome string

const (
	OutcomeAccepted        Outcome = "accepted"
	OutcomeWindowClosed    Outcome = "windowClosed"
	OutcomeAlreadyAnswered Outcome = "alreadyAnswered"
)

// SubmitResult is returned for every submission attempt. ElapsedSeconds is only set when accepted.
type SubmitResult struct {
	QuestionNumber int     `json:"questionNumber"`
	Outcome        Outcome `json:"outcome"`
	ElapsedSeconds int64   `json:"elapsedSeconds"`
}

// RoundResult summarizes the scoring of one question.
type RoundResult struct {
	QuestionNumber int            `json:"questionNumber"`
	CorrectAnswer  string         `json:"correctAnswer"`
	Correctness    map[int64]bool `json:"correctness"`
	FastestCorrect []string       `json:"fastestCorrect"`
}

// OpenedQuestion describes a freshly opened answer window.
type OpenedQuestion struct {
	QuestionNumber int       `json:"questionNumber"`
	StartedAt      time.Time `json:"startedAt"`
	Prompt         string    `json:"prompt,omitempty"`
}

// LeaderboardEntry is one ranked row of the cumulative tally.
type LeaderboardEntry struct {
	Rank           int    `json:"rank"`
	ChatID         int64  `json:"chatId"`
	DisplayName    string `json:"displayName"`
	Correct        int    `json:"correct"`
	ElapsedSeconds int64  `json:"elapsedSeconds"`
}

// Leaderboard captures the ranked tally and its rendered summary.
type Leaderboard struct {
	TotalQuestions int                `json:"totalQuestions"`
	Entries        []LeaderboardEntry `json:"entries"`
	Summary        string             `json:"summary"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// ChatIDs returns participant ids in rank order.
func (l Leaderboard) ChatIDs() []int64 {
	ids := make([]int64, 0, len(l.Entries))
	for _, e := range l.Entries {
		ids = append(ids, e.ChatID)
	}
	return ids
}

// EventType names a quiz lifecycle notification.
type EventType string

const (
	EventReset          EventType = "reset"
	EventQuestionOpened EventType = "questionOpened"
	EventQuestionClosed EventType = "questionClosed"
	EventRoundScored    EventType = "roundScored"
)

// Event is fanned out to subscribers on every operator transition.
type Event struct {
	Type           EventType    `json:"type"`
	QuestionNumber int          `json:"questionNumber"`
	Prompt         string       `json:"prompt,omitempty"`
	Round          *RoundResult `json:"round,omitempty"`
	Leaderboard    *Leaderboard `json:"leaderboard,omitempty"`
}

// Question is one entry of a question bank.
type Question struct {
	ID     string `json:"id" yaml:"id"`
	Prompt string `json:"prompt" yaml:"prompt"`
	Answer string `json:"answer" yaml:"answer"`
}

// Quiz is an ordered question bank. Question i is asked at question index i.
type Quiz struct {
	ID        string     `json:"id" yaml:"id"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// QuestionAt returns the question asked at the given zero-based index.
func (q Quiz) QuestionAt(index int) (Question, error) {
	if index < 0 || index >= len(q.Questions) {
		return Question{}, ErrQuestionNotFound
	}
	return q.Questions[index], nil
}
