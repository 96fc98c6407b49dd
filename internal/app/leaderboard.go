package app

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"chat-quiz-service/internal/domain"
)

const nobodyCorrectMessage = "Nobody answered any question correctly."

// rankTally orders the tally by correct answers (desc) then total elapsed time (asc).
func rankTally(tally map[domain.ParticipantKey]domain.TallyEntry) []domain.ParticipantKey {
	keys := make([]domain.ParticipantKey, 0, len(tally))
	for k := range tally {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := tally[keys[i]], tally[keys[j]]
		if a.Correct != b.Correct {
			return a.Correct > b.Correct
		}
		if a.ElapsedSeconds != b.ElapsedSeconds {
			return a.ElapsedSeconds < b.ElapsedSeconds
		}
		if keys[i].ChatID != keys[j].ChatID {
			return keys[i].ChatID < keys[j].ChatID
		}
		return keys[i].Name < keys[j].Name
	})
	return keys
}

// buildLeaderboard takes the first n ranked entries and renders the summary text.
func buildLeaderboard(state domain.SessionState, n int, now time.Time) domain.Leaderboard {
	if n < 0 {
		n = 0
	}
	ranked := rankTally(state.Tally)
	if len(ranked) > n {
		ranked = ranked[:n]
	}

	entries := make([]domain.LeaderboardEntry, 0, len(ranked))
	for i, key := range ranked {
		t := state.Tally[key]
		entries = append(entries, domain.LeaderboardEntry{
			Rank:           i + 1,
			ChatID:         t.ChatID,
			DisplayName:    key.String(),
			Correct:        t.Correct,
			ElapsedSeconds: t.ElapsedSeconds,
		})
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Total questions: %d\n\n", state.QuestionIndex)
	if len(entries) == 0 {
		b.WriteString(nobodyCorrectMessage)
	} else {
		lines := make([]string, 0, len(entries))
		for _, e := range entries {
			lines = append(lines, fmt.Sprintf("%d - %s - Correct: %d - Ellapsed: %d", e.Rank, e.DisplayName, e.Correct, e.ElapsedSeconds))
		}
		b.WriteString(strings.Join(lines, "\n"))
	}

	return domain.Leaderboard{
		TotalQuestions: state.QuestionIndex,
		Entries:        entries,
		Summary:        b.String(),
		UpdatedAt:      now,
	}
}

func personalSummary(state domain.SessionState, person domain.Person) string {
	entry, ok := state.Tally[domain.KeyFor(person)]
	if !ok {
		return "You answered 0 questions correctly."
	}
	return fmt.Sprintf("You answered %d questions correctly in %d seconds overall. Thanks for taking part in the quiz!", entry.Correct, entry.ElapsedSeconds)
}
