package domain

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Difficulty of the questions requested for a whole session.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty accepts the lower-case names used by the trivia API.
func ParseDifficulty(raw string) (Difficulty, error) {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(raw))); d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d, nil
	}
	return "", NewValidationError("level", fmt.Sprintf("unknown difficulty %q", raw))
}

// Category is a trivia topic as listed by the catalog.
type Category struct {
	ID   int    `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Outcome of a single question.
type Outcome string

const (
	OutcomeCorrect Outcome = "correct"
	OutcomeWrong   Outcome = "wrong"
	OutcomeSkipped Outcome = "skipped"
)

func ParseOutcome(raw string) (Outcome, error) {
	switch o := Outcome(raw); o {
	case OutcomeCorrect, OutcomeWrong, OutcomeSkipped:
		return o, nil
	}
	return "", NewValidationError("outcome", fmt.Sprintf("unknown outcome %q", raw))
}

// Question as served by the trivia source, entities already decoded.
type Question struct {
	Category         string     `json:"category"`
	Type             string     `json:"type"`
	Difficulty       Difficulty `json:"difficulty"`
	Text             string     `json:"question"`
	CorrectAnswer    string     `json:"correctAnswer"`
	IncorrectAnswers []string   `json:"incorrectAnswers"`
}

// Answers returns the correct answer followed by the incorrect ones.
func (q Question) Answers() []string {
	answers := make([]string, 0, len(q.IncorrectAnswers)+1)
	answers = append(answers, q.CorrectAnswer)
	return append(answers, q.IncorrectAnswers...)
}

// ShuffledAnswers returns a random permutation of Answers.
func (q Question) ShuffledAnswers() []string {
	return lo.Shuffle(q.Answers())
}

// IsCorrect reports whether answer is the question's correct answer.
func (q Question) IsCorrect(answer string) bool {
	return answer == q.CorrectAnswer
}
