package game

import (
	"open-trivia-rounds/internal/domain"
)

// Status of a game session.
type Status string

const (
	StatusConfiguring       Status = "configuring"
	StatusSelectingCategory Status = "selectingCategory"
	StatusInProgress        Status = "inProgress"
	StatusRoundComplete     Status = "roundComplete"
	StatusFinished          Status = "finished"
)

// Session is the aggregate for one player's multi-round game. It is a value:
// Apply never mutates the session it is given.
type Session struct {
	PlayerName        string            `json:"playerName"`
	Level             domain.Difficulty `json:"level"`
	TotalRounds       int               `json:"totalRounds"`
	QuestionsPerRound int               `json:"questionsPerRound"`
	CurrentRound      int               `json:"currentRound"`
	UsedCategoryIDs   []int             `json:"usedCategoryIds"`
	Rounds            domain.Ledger     `json:"rounds"`
	TotalDurationMs   int64             `json:"totalDurationMs"`
	Status            Status            `json:"status"`
}

// New returns the initial empty session.
func New() Session {
	return Session{Status: StatusConfiguring}
}

// CurrentTally is the tally of the round being played.
func (s Session) CurrentTally() domain.AnswerTally {
	t, _ := s.Rounds.TallyAt(s.CurrentRound)
	return t
}

// RoundHasRoom reports whether another outcome may be recorded in the current round.
func (s Session) RoundHasRoom() bool {
	return s.Status == StatusInProgress && s.CurrentTally().Total() < s.QuestionsPerRound
}

// IsLastRound reports whether the current round is the final one.
func (s Session) IsLastRound() bool {
	return s.CurrentRound == s.TotalRounds
}

// CurrentCategory returns the category of the round being played.
func (s Session) CurrentCategory() (domain.Category, bool) {
	r, ok := s.Rounds.Current()
	if !ok {
		return domain.Category{}, false
	}
	return domain.Category{ID: r.CategoryID, Name: r.CategoryName}, true
}
