package analysis

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/opensource-finance/finch/internal/domain"
	"github.com/opensource-finance/finch/internal/stats"
)

// ErrMalformedTransaction is returned when a transaction cannot take part in
// a computation (for example, it has no date).
var ErrMalformedTransaction = errors.New("malformed transaction")

// DefaultFixedCategories are the withdrawal categories counted as fixed
// monthly costs.
var DefaultFixedCategories = []string{"Housing", "Utilities"}

// CalculateFinancialStats aggregates the ledger relative to now.
// fixedCategories selects the withdrawals that make up total_monthly_fixed;
// when empty, DefaultFixedCategories is used. Subscriptions are not included
// here; callers add them on top.
func CalculateFinancialStats(txs []domain.Transaction, now time.Time, fixedCategories ...string) (*domain.FinancialStats, error) {
	if len(fixedCategories) == 0 {
		fixedCategories = DefaultFixedCategories
	}

	var deposited, withdrawn, fixed float64
	var first, last time.Time
	for i, tx := range txs {
		if !tx.HasDate() {
			return nil, fmt.Errorf("transaction %d at index %d has no date: %w", tx.ID, i, ErrMalformedTransaction)
		}
		if first.IsZero() || tx.Date.Before(first) {
			first = tx.Date
		}
		if last.IsZero() || tx.Date.After(last) {
			last = tx.Date
		}

		switch {
		case tx.IsDeposit():
			deposited += tx.Amount
		case tx.IsWithdrawal():
			withdrawn += tx.Amount
			if slices.Contains(fixedCategories, tx.Category) {
				fixed += tx.Amount
			}
		}
	}

	saved := deposited - withdrawn

	var avgMonthly, avgDaily, avgFixed float64
	if len(txs) > 0 {
		days := max(1, daysBetween(first, last))
		months := max(1, monthSpan(first, last))
		avgMonthly = withdrawn / float64(months)
		avgDaily = withdrawn / float64(days)
		avgFixed = fixed / float64(months)
	}

	var savingsRate float64
	if deposited > 0 {
		savingsRate = saved / deposited * 100
	}

	thisMonth := monthStart(now)
	lastMonth := thisMonth.AddDate(0, -1, 0)
	priorMonth := thisMonth.AddDate(0, -2, 0)

	lastSpend := monthSpend(txs, lastMonth)
	priorSpend := monthSpend(txs, priorMonth)
	var momChange float64
	if priorSpend > 0 {
		momChange = (lastSpend - priorSpend) / priorSpend * 100
	}

	currentSpend := monthSpend(txs, thisMonth)
	daysInMonth := thisMonth.AddDate(0, 1, -1).Day()
	daysPassed := max(1, now.Day())
	expected := avgMonthly / float64(daysInMonth) * float64(daysPassed)
	var burnRate float64
	if expected > 0 {
		burnRate = currentSpend / expected * 100
	}

	return &domain.FinancialStats{
		Saved:             stats.Round(saved, 2),
		TotalSpent:        stats.Round(withdrawn, 2),
		AvgMonthly:        stats.Round(avgMonthly, 2),
		AvgDaily:          stats.Round(avgDaily, 2),
		SavingsRate:       stats.Round(savingsRate, 1),
		MoMChange:         stats.Round(momChange, 1),
		BurnRate:          stats.Round(burnRate, 0),
		TotalMonthlyFixed: stats.Round(avgFixed, 2),
	}, nil
}

// monthSpend sums withdrawals falling in the calendar month starting at month.
func monthSpend(txs []domain.Transaction, month time.Time) float64 {
	var total float64
	for _, tx := range txs {
		if tx.IsWithdrawal() && sameMonth(tx.Date, month) {
			total += tx.Amount
		}
	}
	return total
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// monthSpan counts calendar months from a to b inclusive.
func monthSpan(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month()) + 1
}

// daysBetween returns the whole days from a to b. Both are calendar dates.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}
