// Package coach produces conversational coaching replies and subscription
// detection on top of a generative language model.
package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/opensource-finance/finch/internal/domain"
)

// FallbackReply is what users see when the model cannot answer.
const FallbackReply = "Sorry, I ran into an issue processing that request."

// DefaultHistoryTurns is how many earlier chat messages go into a prompt.
const DefaultHistoryTurns = 5

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("empty response from model")

// Coach answers chat messages and spots subscriptions in a ledger.
type Coach interface {
	Reply(ctx context.Context, req *ReplyRequest) (string, error)
	DetectSubscriptions(ctx context.Context, txs []domain.Transaction) ([]Subscription, error)
}

// Model generates text for a prompt under a system instruction.
type Model interface {
	Generate(ctx context.Context, systemInstruction, prompt string) (string, error)
}

// ReplyRequest carries a user message and the financial picture to ground
// the reply in. Every part except Message may be nil.
type ReplyRequest struct {
	Message  string
	Profile  *domain.IncomeProfile
	Analysis *domain.AnalysisResult
	Digest   *domain.Digest
	Forecast *domain.Forecast
	History  []domain.ChatMessage
}

// Subscription is a recurring discretionary charge found in a ledger.
type Subscription struct {
	Name       string  `json:"name"`
	Amount     float64 `json:"amount"`
	Frequency  string  `json:"frequency"`
	Confidence string  `json:"confidence"`
	Type       string  `json:"type"`
	AINote     string  `json:"ai_note"`
}

// TotalAmount sums the recurring amounts of subs.
func TotalAmount(subs []Subscription) float64 {
	var total float64
	for _, s := range subs {
		total += s.Amount
	}
	return total
}

// LLMCoach implements Coach on any Model.
type LLMCoach struct {
	model        Model
	historyTurns int
}

// NewLLMCoach wraps model. historyTurns <= 0 uses DefaultHistoryTurns.
func NewLLMCoach(model Model, historyTurns int) *LLMCoach {
	if historyTurns <= 0 {
		historyTurns = DefaultHistoryTurns
	}
	return &LLMCoach{model: model, historyTurns: historyTurns}
}

// Reply asks the model for a short reply grounded in the request's data.
func (c *LLMCoach) Reply(ctx context.Context, req *ReplyRequest) (string, error) {
	text, err := c.model.Generate(ctx, coachInstruction, buildReplyPrompt(req, c.historyTurns))
	if err != nil {
		return "", fmt.Errorf("failed to generate reply: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// DetectSubscriptions asks the model to list subscriptions among the
// ledger's withdrawals. A response without a JSON array yields an empty list.
func (c *LLMCoach) DetectSubscriptions(ctx context.Context, txs []domain.Transaction) ([]Subscription, error) {
	withdrawals := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.IsWithdrawal() {
			withdrawals = append(withdrawals, tx)
		}
	}
	if len(withdrawals) == 0 {
		return []Subscription{}, nil
	}

	ledger, err := json.Marshal(withdrawals)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transactions: %w", err)
	}

	text, err := c.model.Generate(ctx, subscriptionInstruction, buildSubscriptionPrompt(ledger))
	if err != nil {
		return nil, fmt.Errorf("failed to detect subscriptions: %w", err)
	}

	clean, ok := cleanModelJSON(text)
	if !ok {
		slog.Warn("no JSON array in subscription response", "response_len", len(text))
		return []Subscription{}, nil
	}

	var subs []Subscription
	if err := json.Unmarshal([]byte(clean), &subs); err != nil {
		slog.Warn("unparseable subscription response", "error", err)
		return []Subscription{}, nil
	}
	if subs == nil {
		subs = []Subscription{}
	}
	return subs, nil
}

// cleanModelJSON strips markdown fences and any text around the outermost
// JSON array. ok is false when no array is present.
func cleanModelJSON(raw string) (string, bool) {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start == -1 || end <= start {
		return "", false
	}
	return strings.TrimSpace(s[start : end+1]), true
}
