package domain

import "time"

// NudgeRule is a coaching rule: a CEL expression over the financial context
// that, when true, produces a nudge carrying Message.
type NudgeRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression; must evaluate to bool
	Expression string `json:"expression"`

	Message string `json:"message"`

	// Weight in the digest score (0.0-1.0)
	Weight float64 `json:"weight"`

	Enabled bool `json:"enabled"`
}

// Nudge is a fired coaching rule.
type Nudge struct {
	RuleID    string  `json:"ruleId"`
	Name      string  `json:"name"`
	Message   string  `json:"message"`
	Weight    float64 `json:"weight"`
	ProcessMs int64   `json:"processMs"`
}

// ChatMessage is one turn of a coaching conversation.
type ChatMessage struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	SessionID string    `json:"sessionId"`
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Chat roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// GlobalTenantID owns rules that apply to every tenant.
const GlobalTenantID = "*"
