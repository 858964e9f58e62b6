// Benchmark tool for scoring the Finch anomaly detector against labeled data.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/labeled.csv
//
// This tool:
//  1. Reads a ledger CSV carrying an is_anomaly label column
//  2. Runs the anomaly detector over it once per seed
//  3. Compares flagged transactions with the labels
//  4. Calculates precision, recall, F1-score, and confusion matrix
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/finch/internal/analysis"
	"github.com/opensource-finance/finch/internal/domain"
	"github.com/opensource-finance/finch/internal/ledger"
)

// Metrics tracks benchmark results across all runs.
type Metrics struct {
	TruePositives  int64 // labeled anomaly, flagged
	FalsePositives int64 // normal, flagged
	TrueNegatives  int64 // normal, not flagged
	FalseNegatives int64 // labeled anomaly, missed

	Runs           int64
	ProcessingTime atomic.Int64 // nanoseconds
}

func main() {
	csvPath := flag.String("csv", "", "Path to a labeled ledger CSV")
	labelColumn := flag.String("label", "is_anomaly", "Name of the boolean label column")
	seed := flag.Uint64("seed", 42, "First isolation forest seed")
	runs := flag.Int("runs", 5, "Number of seeds to evaluate")
	workers := flag.Int("workers", 4, "Number of concurrent runs")
	verbose := flag.Bool("verbose", false, "Print every flagged transaction")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/labeled.csv [-runs 5]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if *runs < 1 {
		*runs = 1
	}

	fmt.Println("FINCH BENCHMARK - anomaly detection")
	fmt.Printf("\nCSV File:  %s\n", *csvPath)
	fmt.Printf("Label:     %s\n", *labelColumn)
	fmt.Printf("Seeds:     %d..%d\n", *seed, *seed+uint64(*runs)-1)
	fmt.Printf("Workers:   %d\n", *workers)
	fmt.Println()

	txs, labels, err := readLedger(*csvPath, *labelColumn)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}

	positives := 0
	for _, l := range labels {
		if l {
			positives++
		}
	}
	fmt.Printf("Loaded %s transactions\n", humanize.Comma(int64(len(txs))))
	fmt.Printf("  - Labeled anomalies: %s\n", humanize.Comma(int64(positives)))
	fmt.Printf("  - Normal:            %s\n", humanize.Comma(int64(len(txs)-positives)))

	startTime := time.Now()
	metrics, err := runBenchmark(context.Background(), txs, labels, *seed, *runs, *workers, *verbose)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	printResults(metrics, len(txs), time.Since(startTime))
}

func readLedger(path, labelColumn string) ([]domain.Transaction, []bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return ledger.ReadLabeledCSV(f, labelColumn)
}

// runBenchmark analyzes the ledger once per seed and accumulates the
// confusion matrix over every run.
func runBenchmark(ctx context.Context, txs []domain.Transaction, labels []bool, firstSeed uint64, runs, workers int, verbose bool) (*Metrics, error) {
	metrics := &Metrics{Runs: int64(runs)}

	labelByID := make(map[int64]bool, len(txs))
	for i, tx := range txs {
		labelByID[tx.ID] = labels[i]
	}

	var tp, fp, fn atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))

	for i := range runs {
		seed := firstSeed + uint64(i)
		g.Go(func() error {
			analyzer := analysis.NewAnalyzer(analysis.NewIsolationForest(seed), 0)

			start := time.Now()
			result, err := analyzer.AnalyzeTransactions(gctx, txs)
			metrics.ProcessingTime.Add(int64(time.Since(start)))
			if err != nil {
				return fmt.Errorf("seed %d: %w", seed, err)
			}

			flagged := make(map[int64]bool, len(result.Anomalies))
			for _, a := range result.Anomalies {
				flagged[a.ID] = true
				if verbose {
					status := "✓"
					if !labelByID[a.ID] {
						status = "✗"
					}
					fmt.Printf("%s seed=%-4d | %-10s | %-14s | $%10.2f | z=%6.2f | %s\n",
						status, seed, a.Date, a.Category, a.Amount, a.ZScore, a.Severity)
				}
			}

			for id, actual := range labelByID {
				predicted := flagged[id]
				switch {
				case predicted && actual:
					tp.Add(1)
				case predicted && !actual:
					fp.Add(1)
				case !predicted && actual:
					fn.Add(1)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	metrics.TruePositives = tp.Load()
	metrics.FalsePositives = fp.Load()
	metrics.FalseNegatives = fn.Load()
	metrics.TrueNegatives = int64(len(labelByID))*int64(runs) - metrics.TruePositives - metrics.FalsePositives - metrics.FalseNegatives
	return metrics, nil
}

func printResults(m *Metrics, ledgerSize int, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	fmt.Printf("\nCONFUSION MATRIX (summed over %d runs)\n", m.Runs)
	fmt.Println("                     Predicted")
	fmt.Println("                 FLAGGED    NORMAL")
	fmt.Printf("   Actual  A  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("           N  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flags, how many were labeled anomalies)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of labeled anomalies, how many were flagged)\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)
	fmt.Printf("   Accuracy:   %.4f\n", accuracy)

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Wall time:        %v\n", duration.Round(time.Millisecond))
	if m.Runs > 0 {
		perRun := time.Duration(m.ProcessingTime.Load() / m.Runs)
		fmt.Printf("   Avg per run:      %v\n", perRun.Round(time.Microsecond))
		if perRun > 0 {
			fmt.Printf("   Throughput:       %s tx/sec\n",
				humanize.Commaf(float64(ledgerSize)/perRun.Seconds()))
		}
	}

	fmt.Println()
}
