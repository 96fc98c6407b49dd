package app

import (
	"fmt"
	"sort"

	"chat-quiz-service/internal/domain"
)

// scoreRound marks every answer for the current question, folds the correct ones
// into the tally and advances the question index. answers must all belong to
// state.QuestionIndex; the returned slice is the marked copy to persist.
func scoreRound(state *domain.SessionState, answers []domain.AnswerRecord, correctAnswer string, matcher Matcher) ([]domain.AnswerRecord, domain.RoundResult) {
	if state.Tally == nil {
		state.Tally = make(map[domain.ParticipantKey]domain.TallyEntry)
	}

	marked := make([]domain.AnswerRecord, 0, len(answers))
	result := domain.RoundResult{
		QuestionNumber: state.QuestionNumber(),
		CorrectAnswer:  correctAnswer,
		Correctness:    make(map[int64]bool, len(answers)),
		FastestCorrect: []string{},
	}

	var winners []domain.AnswerRecord
	for _, a := range answers {
		correct := matcher.Match(a.Text, correctAnswer)
		a.Correct = &correct
		marked = append(marked, a)
		result.Correctness[a.ChatID] = correct
		if !correct {
			continue
		}
		winners = append(winners, a)

		key := domain.ParticipantKey{ChatID: a.ChatID, Name: a.Name}
		entry, ok := state.Tally[key]
		if !ok {
			entry = domain.TallyEntry{ChatID: a.ChatID, Name: a.Name}
		}
		entry.Correct++
		entry.ElapsedSeconds += a.ElapsedSeconds
		state.Tally[key] = entry
	}

	sort.SliceStable(winners, func(i, j int) bool {
		if winners[i].ElapsedSeconds != winners[j].ElapsedSeconds {
			return winners[i].ElapsedSeconds < winners[j].ElapsedSeconds
		}
		return winners[i].ChatID < winners[j].ChatID
	})
	for _, w := range winners {
		result.FastestCorrect = append(result.FastestCorrect, fmt.Sprintf("%s (%d sec)", w.Name, w.ElapsedSeconds))
	}

	state.QuestionIndex++
	return marked, result
}
