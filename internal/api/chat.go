package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/finch/internal/coach"
	"github.com/opensource-finance/finch/internal/domain"
	"github.com/opensource-finance/finch/internal/forecast"
)

// DefaultSessionID is used when a chat request names no session.
const DefaultSessionID = "default_user"

// chatWindow is the rate-limit window for chat turns.
const chatWindow = time.Minute

// ChatRequest is the request body for POST /api/chat.
type ChatRequest struct {
	Message   string         `json:"message"`
	SessionID string         `json:"session_id"`
	Goal      *forecast.Goal `json:"goal,omitempty"`
}

// ChatResponse is the response for POST /api/chat.
type ChatResponse struct {
	Reply         string                 `json:"reply"`
	MLInsights    []string               `json:"ml_insights"`
	Anomalies     []domain.AnomalyRecord `json:"anomalies"`
	Nudges        []domain.Nudge         `json:"nudges"`
	Forecast      *domain.Forecast       `json:"forecast"`
	SessionID     string                 `json:"session_id"`
	HistoryLength int                    `json:"history_length"`
}

// Chat answers a coaching message grounded in the tenant's finances.
// Model failures degrade to coach.FallbackReply; the turn is still stored.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "Empty message",
		})
		return
	}
	if req.SessionID == "" {
		req.SessionID = DefaultSessionID
	}

	if h.cache != nil && h.chatRateLimit > 0 {
		n, err := h.cache.IncrementCounter(ctx, tenantID, "chat:"+req.SessionID, chatWindow)
		if err != nil {
			slog.Warn("chat rate counter unavailable", "tenant_id", tenantID, "error", err)
		} else if n > int64(h.chatRateLimit) {
			w.Header().Set("Retry-After", fmt.Sprint(int(chatWindow.Seconds())))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "too many messages, slow down",
			})
			return
		}
	}

	ov, err := h.reports.Overview(ctx, tenantID)
	if err != nil {
		writeError(w, r, "analysis failed", err)
		return
	}
	dg := h.reports.DigestOf(ctx, ov, start)

	var fc *domain.Forecast
	if req.Goal != nil {
		fc, err = forecast.Project(*req.Goal, ov.Profile.EstimatedMonthlyIncome, ov.Stats.AvgDaily, h.reports.Now())
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
	}

	var history []domain.ChatMessage
	if h.repo != nil {
		history, err = h.repo.ListChatMessages(ctx, tenantID, req.SessionID, h.historyTurns)
		if err != nil {
			slog.Warn("failed to load chat history",
				"tenant_id", tenantID,
				"session_id", req.SessionID,
				"error", err,
			)
		}
	}

	reply := coach.FallbackReply
	if h.coach != nil {
		text, err := h.coach.Reply(ctx, &coach.ReplyRequest{
			Message:  req.Message,
			Profile:  ov.Profile,
			Analysis: ov.Analysis,
			Digest:   dg,
			Forecast: fc,
			History:  history,
		})
		if err != nil {
			slog.Error("coach reply failed",
				"tenant_id", tenantID,
				"session_id", req.SessionID,
				"error", err,
			)
		} else {
			reply = text
		}
	}

	historyLength := h.recordTurn(ctx, tenantID, req.SessionID, req.Message, reply)

	writeJSON(w, http.StatusOK, ChatResponse{
		Reply:         reply,
		MLInsights:    ov.Analysis.Insights,
		Anomalies:     ov.Analysis.Anomalies,
		Nudges:        ov.Nudges,
		Forecast:      fc,
		SessionID:     req.SessionID,
		HistoryLength: historyLength,
	})
}

// recordTurn stores the user message and the reply and returns the
// session's length afterwards.
func (h *Handler) recordTurn(ctx context.Context, tenantID, sessionID, message, reply string) int {
	if h.repo == nil {
		return 0
	}

	now := time.Now().UTC()
	turns := []*domain.ChatMessage{
		{ID: uuid.NewString(), SessionID: sessionID, Role: domain.RoleUser, Content: message, CreatedAt: now},
		{ID: uuid.NewString(), SessionID: sessionID, Role: domain.RoleAssistant, Content: reply, CreatedAt: now.Add(time.Microsecond)},
	}
	for _, m := range turns {
		m.TenantID = tenantID
		if err := h.repo.AppendChatMessage(ctx, tenantID, m); err != nil {
			slog.Error("failed to store chat message",
				"tenant_id", tenantID,
				"session_id", sessionID,
				"role", m.Role,
				"error", err,
			)
		}
	}

	n, err := h.repo.CountChatMessages(ctx, tenantID, sessionID)
	if err != nil {
		slog.Warn("failed to count chat messages", "tenant_id", tenantID, "error", err)
	}
	return n
}
