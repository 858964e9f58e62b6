// Package forecast projects savings progress toward a goal.
package forecast

import (
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/finch/internal/domain"
	"github.com/opensource-finance/finch/internal/stats"
)

// DaysPerMonth converts a monthly income into a daily one.
const DaysPerMonth = 30

var (
	ErrInvalidTarget = errors.New("target amount must be positive")
	ErrInvalidDate   = errors.New("invalid target date")
)

// Goal is a savings target.
type Goal struct {
	TargetAmount float64 `json:"target_amount"`
	TargetDate   string  `json:"target_date"`
}

// Project forecasts whether the current daily surplus reaches the goal by
// its date. A target date before today is taken to mean the same day next
// year, and at least one day always remains.
func Project(goal Goal, monthlyIncome, avgDaily float64, today time.Time) (*domain.Forecast, error) {
	if goal.TargetAmount <= 0 {
		return nil, fmt.Errorf("%w: got %g", ErrInvalidTarget, goal.TargetAmount)
	}
	target, err := domain.ParseDate(goal.TargetDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}

	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	if target.Before(today) {
		target = target.AddDate(1, 0, 0)
	}

	days := max(1, int(target.Sub(today).Hours()/24))

	dailyIncome := monthlyIncome / DaysPerMonth
	surplus := dailyIncome - avgDaily
	projected := surplus * float64(days)

	f := &domain.Forecast{
		TargetAmount:     stats.Round(goal.TargetAmount, 2),
		TargetDate:       domain.FormatDate(target),
		DaysRemaining:    days,
		DailyIncome:      stats.Round(dailyIncome, 2),
		DailySpend:       stats.Round(avgDaily, 2),
		DailySurplus:     stats.Round(surplus, 2),
		ProjectedSavings: stats.Round(projected, 2),
		OnTrack:          projected >= goal.TargetAmount,
	}
	if !f.OnTrack {
		shortfall := goal.TargetAmount - projected
		f.Shortfall = stats.Round(shortfall, 2)
		f.RequiredExtraDaily = stats.Round(shortfall/float64(days), 2)
	}
	return f, nil
}
