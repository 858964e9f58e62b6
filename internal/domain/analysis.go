package domain

// Severity grades a flagged transaction.
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Flag reasons attached to anomalies.
const (
	ReasonExtremeValue   = "Extreme Value"
	ReasonUnusualPattern = "Unusual Pattern"
)

// AnomalyRecord is a flagged withdrawal together with the statistics that
// flagged it. It is recomputed on every analysis and never persisted.
type AnomalyRecord struct {
	ID          int64    `json:"id"`
	Date        string   `json:"date"`
	Amount      float64  `json:"amount"`
	Type        string   `json:"type"`
	Category    string   `json:"category"`
	Description string   `json:"description,omitempty"`
	ZScore      float64  `json:"z_score"`
	FlagReasons []string `json:"flag_reasons"`
	Severity    Severity `json:"severity"`
}

// AnalysisResult is the output of a full ledger analysis.
type AnalysisResult struct {
	Anomalies []AnomalyRecord `json:"anomalies"`
	Insights  []string        `json:"insights"`
}

// HighSeverityCount returns how many anomalies are graded high.
func (r *AnalysisResult) HighSeverityCount() int {
	n := 0
	for _, a := range r.Anomalies {
		if a.Severity == SeverityHigh {
			n++
		}
	}
	return n
}

// IncomeType classifies how income arrives.
type IncomeType string

const (
	IncomeRecurring IncomeType = "recurring"
	IncomeGig       IncomeType = "gig"
	IncomeUnknown   IncomeType = "unknown"
)

// IncomeFrequency is the detected income cadence.
type IncomeFrequency string

const (
	FrequencyWeekly    IncomeFrequency = "weekly"
	FrequencyBiweekly  IncomeFrequency = "biweekly"
	FrequencyMonthly   IncomeFrequency = "monthly"
	FrequencyIrregular IncomeFrequency = "irregular"
	FrequencyUnknown   IncomeFrequency = "unknown"
)

// IncomeProfile describes the income side of a ledger snapshot.
// LastIncomeDate is nil when there is no income.
type IncomeProfile struct {
	IncomeType             IncomeType      `json:"income_type"`
	EstimatedMonthlyIncome float64         `json:"estimated_monthly_income"`
	IncomeFrequency        IncomeFrequency `json:"income_frequency"`
	LastIncomeDate         *string         `json:"last_income_date"`
}

// FinancialStats is an aggregate snapshot of a ledger.
type FinancialStats struct {
	Saved             float64 `json:"saved"`
	TotalSpent        float64 `json:"total_spent"`
	AvgMonthly        float64 `json:"avg_monthly"`
	AvgDaily          float64 `json:"avg_daily"`
	SavingsRate       float64 `json:"savings_rate"`
	MoMChange         float64 `json:"mom_change"`
	BurnRate          float64 `json:"burn_rate"`
	TotalMonthlyFixed float64 `json:"total_monthly_fixed"`
}
