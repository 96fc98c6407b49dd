package domain

import "errors"

var (
	// ErrOutOfRange is returned when the current question index has no start timestamp.
	ErrOutOfRange = errors.New("no question opened at current index")
	// ErrClockSkew indicates a submission timestamped before its question opened.
	ErrClockSkew = errors.New("submission precedes question start")
	// ErrScoringWhileOpen is returned when scoring is requested before the window is closed.
	ErrScoringWhileOpen = errors.New("cannot score while answers are accepted")
	// ErrAlreadyOpen is returned when the current question was already opened and not yet scored.
	ErrAlreadyOpen = errors.New("question already opened")
	// ErrQuizNotFound indicates the question bank could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates the question bank has no question at the current index.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidParticipantKey is returned when a participant key cannot be parsed.
	ErrInvalidParticipantKey = errors.New("invalid participant key")
)
