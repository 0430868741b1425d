package game

import (
	"github.com/shopspring/decimal"

	"open-trivia-rounds/internal/domain"
)

var (
	hundred     = decimal.NewFromInt(100)
	msPerSecond = decimal.NewFromInt(1000)
	msPerMinute = decimal.NewFromInt(60_000)
)

// Summary is the end-of-game score sheet.
type Summary struct {
	PlayerName      string             `json:"playerName"`
	Level           domain.Difficulty  `json:"level"`
	Status          Status             `json:"status"`
	Totals          domain.AnswerTally `json:"totals"`
	TotalQuestions  int                `json:"totalQuestions"`
	Answered        int                `json:"answered"`
	AccuracyPercent decimal.Decimal    `json:"accuracyPercent"`
	DurationMs      int64              `json:"durationMs"`
	DurationMinutes int64              `json:"durationMinutes"`
	Rounds          []RoundSummary     `json:"rounds"`
	Timeline        []TimelinePoint    `json:"timeline"`
}

// RoundSummary is one bar of the per-round breakdown.
type RoundSummary struct {
	Round        int                `json:"round"`
	CategoryID   int                `json:"categoryId"`
	CategoryName string             `json:"categoryName,omitempty"`
	Tally        domain.AnswerTally `json:"tally"`
	ElapsedMs    int64              `json:"elapsedTimeMs"`
}

// TimelinePoint is the time spent on one question, in play order.
type TimelinePoint struct {
	Question int             `json:"question"`
	Round    int             `json:"round"`
	Seconds  decimal.Decimal `json:"seconds"`
}

// Summarize builds the score sheet from every outcome recorded so far.
func Summarize(s Session) Summary {
	sum := Summary{
		PlayerName:      s.PlayerName,
		Level:           s.Level,
		Status:          s.Status,
		TotalQuestions:  s.TotalRounds * s.QuestionsPerRound,
		AccuracyPercent: decimal.Zero,
		DurationMs:      s.Rounds.TotalElapsedMs(),
		Rounds:          []RoundSummary{},
		Timeline:        []TimelinePoint{},
	}

	q := 0
	for _, r := range s.Rounds.Rounds() {
		sum.Totals = sum.Totals.Add(r.Tally)
		sum.Rounds = append(sum.Rounds, RoundSummary{
			Round:        r.Ordinal,
			CategoryID:   r.CategoryID,
			CategoryName: r.CategoryName,
			Tally:        r.Tally,
			ElapsedMs:    r.ElapsedMs,
		})
		for _, ms := range r.QuestionTimesMs {
			q++
			sum.Timeline = append(sum.Timeline, TimelinePoint{
				Question: q,
				Round:    r.Ordinal,
				Seconds:  decimal.NewFromInt(ms).Div(msPerSecond),
			})
		}
	}
	sum.Answered = sum.Totals.Total()

	if sum.TotalQuestions > 0 {
		sum.AccuracyPercent = decimal.NewFromInt(int64(sum.Totals.Correct)).
			Mul(hundred).
			Div(decimal.NewFromInt(int64(sum.TotalQuestions))).
			Round(1)
	}
	sum.DurationMinutes = decimal.NewFromInt(sum.DurationMs).Div(msPerMinute).Round(0).IntPart()
	return sum
}
