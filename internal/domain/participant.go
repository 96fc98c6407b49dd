package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ParticipantKey identifies a tally entry. Two people sharing a display name stay
// distinct through their chat id, and a participant who renames starts a new entry.
type ParticipantKey struct {
	ChatID int64
	Name   string
}

// KeyFor builds the tally key of a person.
func KeyFor(p Person) ParticipantKey {
	return ParticipantKey{ChatID: p.ChatID, Name: p.Name}
}

// String renders the key for leaderboards, e.g. "Alice (42)".
func (k ParticipantKey) String() string {
	return fmt.Sprintf("%s (%d)", k.Name, k.ChatID)
}

// MarshalText encodes the key as "<chatID>:<name>".
func (k ParticipantKey) MarshalText() ([]byte, error) {
	return []byte(strconv.FormatInt(k.ChatID, 10) + ":" + k.Name), nil
}

// UnmarshalText decodes a key produced by MarshalText. The chat id never contains
// a colon, so splitting on the first one is unambiguous.
func (k *ParticipantKey) UnmarshalText(text []byte) error {
	raw := string(text)
	idx := strings.IndexByte(raw, ':')
	if idx <= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidParticipantKey, raw)
	}
	id, err := strconv.ParseInt(raw[:idx], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidParticipantKey, raw)
	}
	k.ChatID = id
	k.Name = raw[idx+1:]
	return nil
}

// TallyEntry holds a participant's running totals across closed questions.
type TallyEntry struct {
	ChatID         int64  `json:"chatId"`
	Name           string `json:"name"`
	Correct        int    `json:"correct"`
	ElapsedSeconds int64  `json:"elapsedSeconds"`
}
