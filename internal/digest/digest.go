// Package digest aggregates analysis results and fired nudges into a
// single verdict on a tenant's finances.
package digest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/finch/internal/domain"
	"github.com/opensource-finance/finch/internal/stats"
)

const (
	DefaultThreshold = 0.6
	MaxTopAnomalies  = 5
	MaxInsights      = 3
)

// Processor turns analysis output into a Digest.
type Processor struct {
	// Score at or above which the digest needs attention
	Threshold float64
}

// NewProcessor creates a processor. A non-positive threshold uses DefaultThreshold.
func NewProcessor(threshold float64) *Processor {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Processor{Threshold: threshold}
}

// Input contains everything a digest is built from. Nil parts are treated
// as empty.
type Input struct {
	TenantID    string
	Fingerprint string
	Stats       *domain.FinancialStats
	Profile     *domain.IncomeProfile
	Analysis    *domain.AnalysisResult
	Nudges      []domain.Nudge
	StartTime   time.Time
}

// Process scores the fired nudges and decides the digest status.
// The score is the sum of fired nudge weights, capped at 1. Any high
// severity anomaly needs attention regardless of score.
func (p *Processor) Process(ctx context.Context, input *Input) *domain.Digest {
	start := time.Now()

	analysis := input.Analysis
	if analysis == nil {
		analysis = &domain.AnalysisResult{}
	}
	nudges := input.Nudges
	if nudges == nil {
		nudges = []domain.Nudge{}
	}

	score := 0.0
	for _, n := range nudges {
		if n.Weight > 0 {
			score += n.Weight
		}
	}
	score = stats.Round(min(score, 1), 2)

	high := analysis.HighSeverityCount()
	status := domain.StatusOnTrack
	if score >= p.Threshold || high > 0 {
		status = domain.StatusNeedsAttention
	}

	d := &domain.Digest{
		ID:           uuid.NewString(),
		TenantID:     input.TenantID,
		Fingerprint:  input.Fingerprint,
		GeneratedAt:  time.Now().UTC(),
		Status:       status,
		Score:        score,
		Threshold:    p.Threshold,
		Stats:        input.Stats,
		Profile:      input.Profile,
		Nudges:       nudges,
		TopAnomalies: head(analysis.Anomalies, MaxTopAnomalies),
		Insights:     head(analysis.Insights, MaxInsights),
	}

	d.Metadata = domain.DigestMetadata{
		AnomalyCount:      len(analysis.Anomalies),
		HighSeverityCount: high,
		NudgesFired:       len(nudges),
		DecisionMs:        time.Since(start).Milliseconds(),
	}
	if !input.StartTime.IsZero() {
		d.Metadata.TotalMs = time.Since(input.StartTime).Milliseconds()
	}
	return d
}

// head returns at most n leading elements, never nil.
func head[T any](s []T, n int) []T {
	if len(s) > n {
		s = s[:n]
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}

// NeedsAttention reports whether the digest calls for action.
func NeedsAttention(d *domain.Digest) bool {
	return d.Status == domain.StatusNeedsAttention
}

// Reasons lists why a digest needs attention, strongest first.
func Reasons(d *domain.Digest) []string {
	var reasons []string
	if n := d.Metadata.HighSeverityCount; n > 0 {
		reasons = append(reasons, fmt.Sprintf("%d high-severity anomal%s", n, plural(n, "y", "ies")))
	}
	for _, n := range d.Nudges {
		if n.Message != "" {
			reasons = append(reasons, n.Message)
		}
	}
	return reasons
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
