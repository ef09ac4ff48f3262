// Package usage reports token consumption against the per-provider budgets.
package usage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kailas-cloud/catalograg/internal/domain"
)

// Period is the aggregation granularity.
type Period string

// Aggregation period constants.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// ParsePeriod accepts "day", "month" or an empty string (day).
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "", PeriodDay:
		return PeriodDay, nil
	case PeriodMonth:
		return PeriodMonth, nil
	}
	return "", fmt.Errorf("%w: unknown period %q", domain.ErrInvalidInput, s)
}

// ProviderBudget is one provider's standing within a period. Limit 0 and
// Remaining -1 mean unlimited.
type ProviderBudget struct {
	Provider  string `json:"provider"`
	Limit     int64  `json:"tokensLimit"`
	Used      int64  `json:"tokensUsed"`
	Remaining int64  `json:"tokensRemaining"`
	Exhausted bool   `json:"isExhausted"`
}

// Report is a token usage report for a time period.
type Report struct {
	Period      Period           `json:"period"`
	PeriodStart int64            `json:"periodStart"` // unix millis
	PeriodEnd   int64            `json:"periodEnd"`   // unix millis, also when counters reset
	Providers   []ProviderBudget `json:"providers"`
}

// Service handles usage reporting.
type Service struct {
	readers []BudgetReader
	now     func() time.Time
}

// New creates a Service. No readers means nothing is tracked.
func New(readers ...BudgetReader) *Service {
	return &Service{readers: readers, now: time.Now}
}

// GetReport builds a usage report for the given period, providers sorted by name.
func (s *Service) GetReport(_ context.Context, period Period) Report {
	now := s.now().UTC()
	var start, end time.Time

	switch period {
	case PeriodMonth:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, 0)
	default:
		period = PeriodDay
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		end = start.Add(24 * time.Hour)
	}

	providers := make([]ProviderBudget, 0, len(s.readers))
	for _, br := range s.readers {
		var b ProviderBudget
		if period == PeriodMonth {
			b = ProviderBudget{Limit: br.MonthlyLimit(), Used: br.MonthlyUsed(), Remaining: br.RemainingMonthly()}
		} else {
			b = ProviderBudget{Limit: br.DailyLimit(), Used: br.DailyUsed(), Remaining: br.RemainingDaily()}
		}
		b.Provider = br.Provider()
		b.Exhausted = b.Limit > 0 && b.Remaining <= 0
		providers = append(providers, b)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i].Provider < providers[j].Provider })

	return Report{
		Period:      period,
		PeriodStart: start.UnixMilli(),
		PeriodEnd:   end.UnixMilli(),
		Providers:   providers,
	}
}
