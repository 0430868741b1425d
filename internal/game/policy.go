package game

import (
	"fmt"
	"time"

	"open-trivia-rounds/internal/domain"
)

// Policy carries the bounds and timings a session is validated against.
type Policy struct {
	MinNameLength int
	MaxNameLength int
	MinRounds     int
	MaxRounds     int
	MinQuestions  int
	MaxQuestions  int

	// RandomMinID and RandomMaxID bound the id range a Random pick falls back
	// to when the category catalog could not be fetched.
	RandomMinID int
	RandomMaxID int

	Timeouts map[domain.Difficulty]time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MinNameLength: 3,
		MaxNameLength: 15,
		MinRounds:     1,
		MaxRounds:     3,
		MinQuestions:  1,
		MaxQuestions:  10,
		RandomMinID:   9,
		RandomMaxID:   32,
		Timeouts: map[domain.Difficulty]time.Duration{
			domain.DifficultyEasy:   90 * time.Second,
			domain.DifficultyMedium: 60 * time.Second,
			domain.DifficultyHard:   30 * time.Second,
		},
	}
}

// QuestionTimeout returns the countdown for one question at the given level.
func (p Policy) QuestionTimeout(d domain.Difficulty) time.Duration {
	if t, ok := p.Timeouts[d]; ok {
		return t
	}
	return DefaultPolicy().Timeouts[d]
}

func (p Policy) Validate() error {
	switch {
	case p.MinNameLength < 1 || p.MaxNameLength < p.MinNameLength:
		return fmt.Errorf("policy: name length bounds %d..%d", p.MinNameLength, p.MaxNameLength)
	case p.MinRounds < 1 || p.MaxRounds < p.MinRounds:
		return fmt.Errorf("policy: rounds bounds %d..%d", p.MinRounds, p.MaxRounds)
	case p.MinQuestions < 1 || p.MaxQuestions < p.MinQuestions:
		return fmt.Errorf("policy: questions bounds %d..%d", p.MinQuestions, p.MaxQuestions)
	case p.RandomMaxID < p.RandomMinID:
		return fmt.Errorf("policy: random id range %d..%d", p.RandomMinID, p.RandomMaxID)
	}
	for d, t := range p.Timeouts {
		if t <= 0 {
			return fmt.Errorf("policy: timeout for %s must be positive", d)
		}
	}
	return nil
}
