package domain

import (
	"errors"
	"testing"
)

func TestParticipantKeyText(t *testing.T) {
	key := KeyFor(Person{ChatID: -100123, Name: "Bob: 1 (2)"})
	raw, err := key.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != "-100123:Bob: 1 (2)" {
		t.Fatalf("unexpected text %q", raw)
	}

	var back ParticipantKey
	if err := back.UnmarshalText(raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != key {
		t.Fatalf("expected %+v, got %+v", key, back)
	}
	if key.String() != "Bob: 1 (2) (-100123)" {
		t.Fatalf("unexpected display %q", key.String())
	}
}

func TestParticipantKeyRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", ":Alice", "abc:Alice", "12"} {
		var k ParticipantKey
		if err := k.UnmarshalText([]byte(raw)); !errors.Is(err, ErrInvalidParticipantKey) {
			t.Fatalf("expected invalid key for %q, got %v", raw, err)
		}
	}
}

func TestQuizQuestionAt(t *testing.T) {
	q := Quiz{ID: "quiz-1", Questions: []Question{{ID: "q1", Answer: "cat"}}}
	if got, err := q.QuestionAt(0); err != nil || got.Answer != "cat" {
		t.Fatalf("expected q1, got %+v (%v)", got, err)
	}
	if _, err := q.QuestionAt(1); !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
