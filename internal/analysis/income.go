package analysis

import (
	"sort"

	"github.com/opensource-finance/finch/internal/domain"
	"github.com/opensource-finance/finch/internal/stats"
)

// DaysInMonth is the mean Gregorian month length (365.25 / 12).
const DaysInMonth = 30.4375

const (
	minGigWindowDays = 30

	weeklyMaxGap   = 10
	biweeklyMaxGap = 24
	monthlyMaxGap  = 45
)

// DetectIncomeType classifies the income cadence of a ledger and estimates
// monthly income. Transactions without a date are ignored.
func DetectIncomeType(txs []domain.Transaction) *domain.IncomeProfile {
	var income []domain.Transaction
	for _, tx := range txs {
		if tx.IsIncomeLike() && tx.HasDate() {
			income = append(income, tx)
		}
	}

	if len(income) == 0 {
		return &domain.IncomeProfile{
			IncomeType:             domain.IncomeUnknown,
			EstimatedMonthlyIncome: 0,
			IncomeFrequency:        domain.FrequencyUnknown,
		}
	}

	sort.SliceStable(income, func(i, j int) bool {
		return income[i].Date.Before(income[j].Date)
	})

	amounts := make([]float64, len(income))
	for i, tx := range income {
		amounts[i] = tx.Amount
	}

	gaps := make([]float64, 0, len(income)-1)
	for i := 1; i < len(income); i++ {
		gaps = append(gaps, float64(daysBetween(income[i-1].Date, income[i].Date)))
	}

	frequency := domain.FrequencyUnknown
	if len(gaps) > 0 {
		frequency = classifyFrequency(stats.Median(gaps))
	}

	avgDeposit := stats.Mean(amounts)
	gapVariability := stats.PopStdDev(gaps)
	amountVariability := 0.0
	if avgDeposit > 0 {
		amountVariability = stats.PopStdDev(amounts) / avgDeposit
	}

	incomeType := classifyIncome(frequency, gapVariability, amountVariability)

	var monthly float64
	if incomeType == domain.IncomeRecurring {
		monthly = avgDeposit * frequencyMultiplier(frequency)
	} else {
		first, last := income[0].Date, income[len(income)-1].Date
		activeDays := max(minGigWindowDays, daysBetween(first, last))
		monthly = stats.Sum(amounts) / float64(activeDays) * DaysInMonth
	}

	last := domain.FormatDate(income[len(income)-1].Date)
	return &domain.IncomeProfile{
		IncomeType:             incomeType,
		EstimatedMonthlyIncome: stats.Round(monthly, 2),
		IncomeFrequency:        frequency,
		LastIncomeDate:         &last,
	}
}

func classifyFrequency(medianGap float64) domain.IncomeFrequency {
	switch {
	case medianGap <= weeklyMaxGap:
		return domain.FrequencyWeekly
	case medianGap <= biweeklyMaxGap:
		return domain.FrequencyBiweekly
	case medianGap <= monthlyMaxGap:
		return domain.FrequencyMonthly
	default:
		return domain.FrequencyIrregular
	}
}

// classifyIncome applies the strict recurring test first, then the gig test,
// then a cadence-based fallback for thin histories.
func classifyIncome(freq domain.IncomeFrequency, gapVariability, amountVariability float64) domain.IncomeType {
	regular := freq == domain.FrequencyWeekly || freq == domain.FrequencyBiweekly || freq == domain.FrequencyMonthly

	switch {
	case gapVariability < 5 && amountVariability < 0.25 && regular:
		return domain.IncomeRecurring
	case gapVariability > 10 || amountVariability > 0.4:
		return domain.IncomeGig
	case freq == domain.FrequencyIrregular:
		return domain.IncomeGig
	default:
		return domain.IncomeRecurring
	}
}

func frequencyMultiplier(freq domain.IncomeFrequency) float64 {
	switch freq {
	case domain.FrequencyWeekly:
		return DaysInMonth / 7
	case domain.FrequencyBiweekly:
		return DaysInMonth / 14
	default:
		return 1.0
	}
}
