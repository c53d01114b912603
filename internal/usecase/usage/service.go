package usage

import (
	"context"
	"time"
)

// Period selects the reporting window.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// Report summarizes token budget consumption for one period. A zero limit
// means no budget is configured; Remaining is -1 in that case.
type Report struct {
	Period      Period `json:"period"`
	PeriodStart int64  `json:"period_start"` // unix millis, UTC
	PeriodEnd   int64  `json:"period_end"`
	TokensLimit int64  `json:"tokens_limit"`
	TokensUsed  int64  `json:"tokens_used"`
	Remaining   int64  `json:"tokens_remaining"`
	Exhausted   bool   `json:"exhausted"`
}

// Service handles usage reporting.
type Service struct {
	br BudgetReader
}

// New creates a Service. br can be nil (unlimited mode).
func New(br BudgetReader) *Service {
	return &Service{br: br}
}

// GetReport builds a usage report for the given period. An unknown period
// is treated as month.
func (s *Service) GetReport(_ context.Context, period Period) Report {
	now := time.Now().UTC()

	var rep Report
	switch period {
	case PeriodDay:
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		rep = Report{
			Period:      PeriodDay,
			PeriodStart: dayStart.UnixMilli(),
			PeriodEnd:   dayStart.Add(24 * time.Hour).UnixMilli(),
			Remaining:   -1,
		}
		if s.br != nil {
			rep.TokensLimit = s.br.DailyLimit()
			rep.TokensUsed = s.br.DailyUsed()
			rep.Remaining = s.br.RemainingDaily()
		}
	default:
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		rep = Report{
			Period:      PeriodMonth,
			PeriodStart: monthStart.UnixMilli(),
			PeriodEnd:   monthStart.AddDate(0, 1, 0).UnixMilli(),
			Remaining:   -1,
		}
		if s.br != nil {
			rep.TokensLimit = s.br.MonthlyLimit()
			rep.TokensUsed = s.br.MonthlyUsed()
			rep.Remaining = s.br.RemainingMonthly()
		}
	}

	rep.Exhausted = rep.TokensLimit > 0 && rep.Remaining <= 0
	return rep
}
