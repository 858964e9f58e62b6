package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/opensource-finance/finch/internal/domain"
)

// GenerateInsights returns short statements about the latest month in the
// ledger. Currently a single insight naming the top spending category.
func GenerateInsights(txs []domain.Transaction) []string {
	var latest domain.Transaction
	for _, tx := range txs {
		if tx.HasDate() && tx.Date.After(latest.Date) {
			latest = tx
		}
	}
	if !latest.HasDate() {
		return []string{}
	}

	totals := make(map[string]float64)
	for _, tx := range txs {
		if tx.IsWithdrawal() && sameMonth(tx.Date, latest.Date) {
			totals[tx.Category] += tx.Amount
		}
	}
	if len(totals) == 0 {
		return []string{}
	}

	categories := make([]string, 0, len(totals))
	for c := range totals {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	top := categories[0]
	for _, c := range categories[1:] {
		if totals[c] > totals[top] {
			top = c
		}
	}

	return []string{
		fmt.Sprintf("Spending is highest in **%s** this month ($%s).", top, formatDollars(totals[top])),
	}
}

// formatDollars renders a whole-dollar amount with thousands separators.
func formatDollars(v float64) string {
	return humanize.Comma(int64(math.RoundToEven(v)))
}
