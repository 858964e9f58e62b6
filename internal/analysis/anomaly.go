package analysis

import (
	"math"

	"github.com/opensource-finance/finch/internal/domain"
	"github.com/opensource-finance/finch/internal/stats"
)

// Detector thresholds.
const (
	// MinCategorySize is the smallest category sample that is analysed at all.
	MinCategorySize = 5

	// MinEnsembleSize is the smallest sample the outlier model is fitted on.
	MinEnsembleSize = 15

	// consistency constant for normal distributions
	madScale = 0.6745

	extremeZ  = 8.0
	patternZ  = 2.5
	highZ     = 10.0
	spreadEps = 1e-9
)

// DetectCategoryAnomalies runs the hybrid detector over the withdrawals of a
// single category. model labels outliers once the sample reaches
// MinEnsembleSize; below that every point is treated as an inlier.
// Fewer than MinCategorySize transactions yields no anomalies.
func DetectCategoryAnomalies(txs []domain.Transaction, model OutlierModel) []domain.AnomalyRecord {
	if len(txs) < MinCategorySize {
		return nil
	}

	amounts := make([]float64, len(txs))
	for i, tx := range txs {
		amounts[i] = tx.Amount
	}

	median := stats.Median(amounts)
	spread := robustSpread(amounts)

	outliers := noEnsemble.Outliers(amounts)
	if len(txs) >= MinEnsembleSize && model != nil {
		if labels := model.Outliers(amounts); len(labels) == len(amounts) {
			outliers = labels
		}
	}

	var anomalies []domain.AnomalyRecord
	for i, tx := range txs {
		z := madScale * (tx.Amount - median) / spread
		absZ := math.Abs(z)

		var reasons []string
		if absZ > extremeZ {
			reasons = append(reasons, domain.ReasonExtremeValue)
		}
		if outliers[i] && absZ > patternZ {
			reasons = append(reasons, domain.ReasonUnusualPattern)
		}
		if len(reasons) == 0 {
			continue
		}

		severity := domain.SeverityMedium
		if absZ > highZ {
			severity = domain.SeverityHigh
		}

		anomalies = append(anomalies, domain.AnomalyRecord{
			ID:          tx.ID,
			Date:        domain.FormatDate(tx.Date),
			Amount:      tx.Amount,
			Type:        tx.Type,
			Category:    tx.Category,
			Description: tx.Description,
			ZScore:      z,
			FlagReasons: reasons,
			Severity:    severity,
		})
	}

	return anomalies
}

// robustSpread returns the MAD, falling back to the sample standard
// deviation and then to a tiny epsilon when the sample has no spread.
func robustSpread(amounts []float64) float64 {
	if mad := stats.MAD(amounts); mad != 0 {
		return mad
	}
	if std := stats.SampleStdDev(amounts); std != 0 && !math.IsNaN(std) {
		return std
	}
	return spreadEps
}
