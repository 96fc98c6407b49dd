package domain

import "encoding/json"

// SessionState is the control state of the single running quiz.
//
// Between rounds len(QuestionStartTimestamps) == QuestionIndex. Opening a question
// appends its start time, so while a question is open or waiting to be scored the
// list is one longer than the index.
type SessionState struct {
	QuestionIndex           int                           `json:"questionIndex"`
	AcceptingAnswers        bool                          `json:"acceptingAnswers"`
	QuestionStartTimestamps []int64                       `json:"questionStartTimestamps"`
	Tally                   map[ParticipantKey]TallyEntry `json:"tally"`
}

// NewSessionState returns a freshly reset session.
func NewSessionState() SessionState {
	s := SessionState{}
	s.Reset()
	return s
}

// Reset clears all session fields. Stored answers are keyed independently and
// must be cleared by the caller.
func (s *SessionState) Reset() {
	s.QuestionIndex = 0
	s.AcceptingAnswers = false
	s.QuestionStartTimestamps = []int64{}
	s.Tally = make(map[ParticipantKey]TallyEntry)
}

// OpenQuestion starts the answer window for the current index at now (unix seconds).
func (s *SessionState) OpenQuestion(now int64) error {
	if s.AcceptingAnswers || len(s.QuestionStartTimestamps) > s.QuestionIndex {
		return ErrAlreadyOpen
	}
	s.QuestionStartTimestamps = append(s.QuestionStartTimestamps, now)
	s.AcceptingAnswers = true
	return nil
}

// CloseQuestion stops accepting answers. Closing twice is a no-op.
func (s *SessionState) CloseQuestion() {
	s.AcceptingAnswers = false
}

// CurrentWindowStart returns the start timestamp of the current question.
func (s SessionState) CurrentWindowStart() (int64, error) {
	if s.QuestionIndex < 0 || s.QuestionIndex >= len(s.QuestionStartTimestamps) {
		return 0, ErrOutOfRange
	}
	return s.QuestionStartTimestamps[s.QuestionIndex], nil
}

// AcceptsAnswersFor reports whether the window of questionIndex is open right now.
func (s SessionState) AcceptsAnswersFor(questionIndex int) bool {
	return s.AcceptingAnswers && s.QuestionIndex == questionIndex
}

// QuestionNumber is the 1-based number of the current question.
func (s SessionState) QuestionNumber() int {
	return s.QuestionIndex + 1
}

// Clone returns a deep copy so stores can hand out snapshots safely.
func (s SessionState) Clone() SessionState {
	out := SessionState{
		QuestionIndex:           s.QuestionIndex,
		AcceptingAnswers:        s.AcceptingAnswers,
		QuestionStartTimestamps: append([]int64{}, s.QuestionStartTimestamps...),
		Tally:                   make(map[ParticipantKey]TallyEntry, len(s.Tally)),
	}
	for k, v := range s.Tally {
		out.Tally[k] = v
	}
	return out
}

// DecodeSession parses a JSON-encoded session, filling in empty collections.
func DecodeSession(raw []byte) (SessionState, error) {
	var s SessionState
	if err := json.Unmarshal(raw, &s); err != nil {
		return SessionState{}, err
	}
	if s.QuestionStartTimestamps == nil {
		s.QuestionStartTimestamps = []int64{}
	}
	if s.Tally == nil {
		s.Tally = make(map[ParticipantKey]TallyEntry)
	}
	return s, nil
}
