// Package ledger reads transaction ledgers and serves per-tenant snapshots.
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/opensource-finance/finch/internal/domain"
)

// ErrMalformedRecord is returned for CSV rows whose id or amount cannot be used.
var ErrMalformedRecord = errors.New("malformed ledger record")

var requiredColumns = []string{"id", "date", "amount", "type", "category"}

// ReadCSV parses a ledger with a header row naming at least
// id, date, amount, type and category. Column order is free and a
// description column is optional. Rows with an unparseable date are skipped.
func ReadCSV(r io.Reader) ([]domain.Transaction, error) {
	txs, _, err := readCSV(r, "")
	return txs, err
}

// ReadLabeledCSV is ReadCSV for ledgers that carry a boolean label column,
// such as is_anomaly in evaluation datasets. labels[i] belongs to txs[i].
func ReadLabeledCSV(r io.Reader, labelColumn string) ([]domain.Transaction, []bool, error) {
	if labelColumn == "" {
		return nil, nil, errors.New("label column is required")
	}
	return readCSV(r, labelColumn)
}

func readCSV(r io.Reader, labelColumn string) ([]domain.Transaction, []bool, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("%w: missing header", ErrMalformedRecord)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, nil, fmt.Errorf("%w: missing column %q", ErrMalformedRecord, name)
		}
	}
	labelIdx := -1
	if labelColumn != "" {
		idx, ok := cols[strings.ToLower(labelColumn)]
		if !ok {
			return nil, nil, fmt.Errorf("%w: missing column %q", ErrMalformedRecord, labelColumn)
		}
		labelIdx = idx
	}
	descIdx, hasDesc := cols["description"]

	var txs []domain.Transaction
	var labels []bool
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read record: %w", err)
		}
		line, _ := reader.FieldPos(0)

		field := func(idx int) string {
			if idx < len(record) {
				return strings.TrimSpace(record[idx])
			}
			return ""
		}

		id, err := strconv.ParseInt(field(cols["id"]), 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: line %d: bad id %q", ErrMalformedRecord, line, field(cols["id"]))
		}
		amount, err := strconv.ParseFloat(field(cols["amount"]), 64)
		if err != nil || !domain.ValidAmount(amount) {
			return nil, nil, fmt.Errorf("%w: line %d: bad amount %q", ErrMalformedRecord, line, field(cols["amount"]))
		}
		date, err := domain.ParseDate(field(cols["date"]))
		if err != nil {
			slog.Warn("skipping ledger row with unparseable date",
				"line", line,
				"id", id,
				"date", field(cols["date"]),
			)
			continue
		}

		tx := domain.Transaction{
			ID:       id,
			Date:     date,
			Amount:   amount,
			Type:     field(cols["type"]),
			Category: field(cols["category"]),
		}
		if hasDesc {
			tx.Description = field(descIdx)
		}
		txs = append(txs, tx)

		if labelIdx >= 0 {
			labels = append(labels, parseLabel(field(labelIdx)))
		}
	}

	return txs, labels, nil
}

func parseLabel(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y", "t":
		return true
	}
	return false
}
