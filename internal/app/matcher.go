package app

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Matcher decides whether a submitted answer equals the correct one.
type Matcher interface {
	Match(submitted, correct string) bool
}

// ExactMatcher compares answers byte for byte.
type ExactMatcher struct{}

func (ExactMatcher) Match(submitted, correct string) bool {
	return submitted == correct
}

// FoldMatcher ignores case, Unicode normalization form and surrounding or repeated whitespace.
type FoldMatcher struct{}

func (FoldMatcher) Match(submitted, correct string) bool {
	return foldAnswer(submitted) == foldAnswer(correct)
}

func foldAnswer(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return cases.Fold().String(norm.NFC.String(s))
}

// MatcherFor resolves a configured matching policy ("exact" or "fold"). Empty means exact.
func MatcherFor(policy string) (Matcher, error) {
	switch strings.ToLower(strings.TrimSpace(policy)) {
	case "", "exact":
		return ExactMatcher{}, nil
	case "fold":
		return FoldMatcher{}, nil
	default:
		return nil, fmt.Errorf("unknown matching policy %q", policy)
	}
}
