package domain

import "time"

// DigestStatus is the overall verdict of a digest.
type DigestStatus string

const (
	StatusOnTrack        DigestStatus = "on_track"
	StatusNeedsAttention DigestStatus = "needs_attention"
)

// Digest summarises one ledger snapshot for a tenant.
type Digest struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	Fingerprint  string          `json:"fingerprint"`
	GeneratedAt  time.Time       `json:"generated_at"`
	Status       DigestStatus    `json:"status"`
	Score        float64         `json:"score"`
	Threshold    float64         `json:"threshold"`
	Stats        *FinancialStats `json:"stats"`
	Profile      *IncomeProfile  `json:"income_profile"`
	Nudges       []Nudge         `json:"nudges"`
	TopAnomalies []AnomalyRecord `json:"top_anomalies"`
	Insights     []string        `json:"insights"`
	Metadata     DigestMetadata  `json:"metadata"`
}

// DigestMetadata contains processing details.
type DigestMetadata struct {
	AnomalyCount      int   `json:"anomaly_count"`
	HighSeverityCount int   `json:"high_severity_count"`
	NudgesFired       int   `json:"nudges_fired"`
	DecisionMs        int64 `json:"decision_ms"`
	TotalMs           int64 `json:"total_ms"`
}

// Forecast projects progress toward a savings goal.
type Forecast struct {
	TargetAmount       float64 `json:"target_amount"`
	TargetDate         string  `json:"target_date"`
	DaysRemaining      int     `json:"days_remaining"`
	DailyIncome        float64 `json:"daily_income"`
	DailySpend         float64 `json:"daily_spend"`
	DailySurplus       float64 `json:"daily_surplus"`
	ProjectedSavings   float64 `json:"projected_savings"`
	OnTrack            bool    `json:"on_track"`
	Shortfall          float64 `json:"shortfall"`
	RequiredExtraDaily float64 `json:"required_extra_daily"`
}
