package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/finch/internal/domain"
	"github.com/opensource-finance/finch/internal/repository"
)

// ListRules returns the rules loaded in the engine.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.LoadedRules()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a stored rule by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")
	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	if h.repo == nil {
		for _, rule := range h.engine.LoadedRules() {
			if rule.ID == ruleID {
				writeJSON(w, http.StatusOK, rule)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
		return
	}

	rule, err := h.repo.GetNudgeRule(r.Context(), domain.GlobalTenantID, ruleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule not found",
			})
			return
		}
		slog.Error("failed to get rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get rule",
		})
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Expression  string  `json:"expression"`
	Message     string  `json:"message"`
	Weight      float64 `json:"weight"`
	Enabled     bool    `json:"enabled"`
}

// CreateRule validates a rule, saves it for every tenant and reloads the
// engine. Saving an existing ID replaces that rule.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, expression, and message are required",
		})
		return
	}

	rule := &domain.NudgeRule{
		ID:          req.ID,
		TenantID:    domain.GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Message:     req.Message,
		Weight:      req.Weight,
		Enabled:     req.Enabled,
	}

	if err := h.engine.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule: " + err.Error(),
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}
	if err := h.repo.SaveNudgeRule(ctx, domain.GlobalTenantID, rule); err != nil {
		slog.Error("failed to save rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	count, err := h.reload(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "rule saved but reload failed: " + err.Error(),
		})
		return
	}

	slog.Info("rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":         rule,
		"rules_loaded": count,
	})
}

// DeleteRule disables a stored rule and reloads the engine.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.DeleteNudgeRule(ctx, domain.GlobalTenantID, ruleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule not found",
			})
			return
		}
		slog.Error("failed to delete rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete rule",
		})
		return
	}

	count, err := h.reload(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "rule deleted but reload failed: " + err.Error(),
		})
		return
	}

	slog.Info("rule deleted", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted":      ruleID,
		"rules_loaded": count,
	})
}

// ReloadRules reloads all rules from the database into the engine.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	count, err := h.reload(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   count,
	})
}

// reload swaps the engine's rules for the stored global set and returns
// how many are loaded.
func (h *Handler) reload(ctx context.Context) (int, error) {
	dbRules, err := h.repo.ListNudgeRules(ctx, domain.GlobalTenantID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		return 0, err
	}
	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		return 0, err
	}

	slog.Info("rules reloaded from database", "count", h.engine.RulesCount())
	return h.engine.RulesCount(), nil
}
