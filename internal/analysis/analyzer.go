// Package analysis implements the statistical ledger analysis: per-category
// anomaly detection, income profiling, insights and aggregate statistics.
package analysis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/finch/internal/domain"
)

var tracer = otel.Tracer("finch-analysis")

// DefaultSeed pins the outlier model so repeated runs agree.
const DefaultSeed uint64 = 42

// Analyzer runs the anomaly detector over every spending category of a
// ledger and merges the results.
type Analyzer struct {
	model      OutlierModel
	maxWorkers int
}

// NewAnalyzer creates an analyzer. A nil model selects a seeded isolation
// forest; maxWorkers bounds the per-category fan-out.
func NewAnalyzer(model OutlierModel, maxWorkers int) *Analyzer {
	if model == nil {
		model = NewIsolationForest(DefaultSeed)
	}
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	return &Analyzer{
		model:      model,
		maxWorkers: maxWorkers,
	}
}

// AnalyzeTransactions flags anomalous withdrawals and generates insights.
// Anomalies are ordered newest first; equal dates keep category order.
func (a *Analyzer) AnalyzeTransactions(ctx context.Context, txs []domain.Transaction) (*domain.AnalysisResult, error) {
	ctx, span := tracer.Start(ctx, "analysis.AnalyzeTransactions")
	defer span.End()

	start := time.Now()

	var order []string
	byCategory := make(map[string][]domain.Transaction)
	for i, tx := range txs {
		if !tx.HasDate() {
			return nil, fmt.Errorf("transaction %d at index %d has no date: %w", tx.ID, i, ErrMalformedTransaction)
		}
		if !tx.IsWithdrawal() {
			continue
		}
		if _, seen := byCategory[tx.Category]; !seen {
			order = append(order, tx.Category)
		}
		byCategory[tx.Category] = append(byCategory[tx.Category], tx)
	}

	perCategory := make([][]domain.AnomalyRecord, len(order))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.maxWorkers)
	for i, category := range order {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perCategory[i] = DetectCategoryAnomalies(byCategory[category], a.model)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("category analysis: %w", err)
	}

	anomalies := make([]domain.AnomalyRecord, 0)
	for _, recs := range perCategory {
		anomalies = append(anomalies, recs...)
	}
	// ISO dates sort lexically.
	sort.SliceStable(anomalies, func(i, j int) bool {
		return anomalies[i].Date > anomalies[j].Date
	})

	result := &domain.AnalysisResult{
		Anomalies: anomalies,
		Insights:  GenerateInsights(txs),
	}

	span.SetAttributes(
		attribute.Int("analysis.transactions", len(txs)),
		attribute.Int("analysis.categories", len(order)),
		attribute.Int("analysis.anomalies", len(anomalies)),
		attribute.Int64("analysis.duration_ms", time.Since(start).Milliseconds()),
	)

	return result, nil
}
