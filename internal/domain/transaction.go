package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date format used on the wire.
const DateLayout = "2006-01-02"

// Transaction types with dedicated handling.
const (
	TypeDeposit    = "deposit"
	TypeWithdrawal = "withdrawal"
)

// incomeMarkers are the substrings that make a transaction type income-like.
var incomeMarkers = []string{"deposit", "income", "payment", "payout"}

// ValidAmount reports whether v is a finite, non-negative amount.
func ValidAmount(v float64) bool {
	return v >= 0 && !math.IsInf(v, 1)
}

// Transaction is a single ledger entry.
// Amount is never negative; direction is carried by Type.
type Transaction struct {
	ID          int64     `json:"id"`
	Date        time.Time `json:"date"`
	Amount      float64   `json:"amount"`
	Type        string    `json:"type"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
}

// IsWithdrawal reports whether the transaction is spending.
func (t Transaction) IsWithdrawal() bool {
	return t.Type == TypeWithdrawal
}

// IsDeposit reports whether the transaction is a plain deposit.
func (t Transaction) IsDeposit() bool {
	return t.Type == TypeDeposit
}

// IsIncomeLike reports whether the transaction type looks like money coming in
// (deposit, income, payment, payout; case-insensitive substring match).
func (t Transaction) IsIncomeLike() bool {
	typ := strings.ToLower(t.Type)
	for _, m := range incomeMarkers {
		if strings.Contains(typ, m) {
			return true
		}
	}
	return false
}

// HasDate reports whether the transaction carries a usable calendar date.
func (t Transaction) HasDate() bool {
	return !t.Date.IsZero()
}

type transactionJSON struct {
	ID          int64   `json:"id"`
	Date        string  `json:"date"`
	Amount      float64 `json:"amount"`
	Type        string  `json:"type"`
	Category    string  `json:"category"`
	Description string  `json:"description,omitempty"`
}

// MarshalJSON emits the date as an ISO calendar string.
func (t Transaction) MarshalJSON() ([]byte, error) {
	out := transactionJSON{
		ID:          t.ID,
		Amount:      t.Amount,
		Type:        t.Type,
		Category:    t.Category,
		Description: t.Description,
	}
	if t.HasDate() {
		out.Date = t.Date.Format(DateLayout)
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts ISO dates with or without a time component.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var in transactionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	*t = Transaction{
		ID:          in.ID,
		Amount:      in.Amount,
		Type:        in.Type,
		Category:    in.Category,
		Description: in.Description,
	}

	if in.Date == "" {
		return nil
	}
	d, err := ParseDate(in.Date)
	if err != nil {
		return err
	}
	t.Date = d
	return nil
}

var dateLayouts = []string{
	DateLayout,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006",
}

// ParseDate parses a calendar date in any of the accepted layouts and
// truncates it to midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// FormatDate renders a date as an ISO calendar string, or "" for the zero date.
func FormatDate(d time.Time) string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}
