package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/opensource-finance/finch/internal/analysis"
	"github.com/opensource-finance/finch/internal/coach"
	"github.com/opensource-finance/finch/internal/digest"
	"github.com/opensource-finance/finch/internal/domain"
	"github.com/opensource-finance/finch/internal/forecast"
	"github.com/opensource-finance/finch/internal/ledger"
	"github.com/opensource-finance/finch/internal/report"
	"github.com/opensource-finance/finch/internal/repository"
	"github.com/opensource-finance/finch/internal/rules"
	"github.com/opensource-finance/finch/internal/stats"
)

// maxImportBytes caps CSV import bodies.
const maxImportBytes = 10 << 20

// Dependencies wires a Handler. Cache, Bus and Coach may be nil.
type Dependencies struct {
	Repo    domain.Repository
	Cache   domain.Cache
	Bus     domain.EventBus
	Store   *ledger.Store
	Reports *report.Service
	Engine  *rules.Engine
	Coach   coach.Coach

	Version       string
	DefaultTenant string

	// Coaching chat limits
	HistoryTurns  int
	ChatRateLimit int

	// ResultTTL bounds cached subscription detections
	ResultTTL time.Duration
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	store   *ledger.Store
	reports *report.Service
	engine  *rules.Engine
	coach   coach.Coach

	version       string
	historyTurns  int
	chatRateLimit int
	resultTTL     time.Duration
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies) *Handler {
	if deps.HistoryTurns <= 0 {
		deps.HistoryTurns = coach.DefaultHistoryTurns
	}
	if deps.ResultTTL <= 0 {
		deps.ResultTTL = time.Hour
	}
	return &Handler{
		repo:          deps.Repo,
		cache:         deps.Cache,
		bus:           deps.Bus,
		store:         deps.Store,
		reports:       deps.Reports,
		engine:        deps.Engine,
		coach:         deps.Coach,
		version:       deps.Version,
		historyTurns:  deps.HistoryTurns,
		chatRateLimit: deps.ChatRateLimit,
		resultTTL:     deps.ResultTTL,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.version,
		"coach":   h.coach != nil,
	})
}

// Ready reports whether the server can serve traffic: storage and the
// event bus must answer.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false"})
		return
	}
	if err := h.repo.Ping(r.Context()); err != nil {
		slog.Warn("readiness check failed", "component", "repository", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false"})
		return
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			slog.Warn("readiness check failed", "component", "bus", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"ready": "true"})
}

// ListTransactions returns the tenant's ledger, newest first.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	snap, err := h.reports.Snapshot(ctx, tenantID)
	if err != nil {
		writeError(w, r, "failed to load transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, snap.Transactions)
}

// SaveTransactions stores a JSON array of transactions.
func (h *Handler) SaveTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var txs []domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&txs); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(txs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least one transaction is required",
		})
		return
	}
	for _, tx := range txs {
		if tx.Type == "" || tx.Category == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "type and category are required",
			})
			return
		}
	}

	h.save(ctx, w, tenantID, txs, "api")
}

// ImportTransactions stores a CSV ledger sent as the request body.
func (h *Handler) ImportTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	txs, err := ledger.ReadCSV(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	h.save(ctx, w, tenantID, txs, "import")
}

func (h *Handler) save(ctx context.Context, w http.ResponseWriter, tenantID string, txs []domain.Transaction, source string) {
	if err := h.store.Save(ctx, tenantID, txs, source); err != nil {
		if errors.Is(err, repository.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("failed to save transactions",
			"tenant_id", tenantID,
			"count", len(txs),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save transactions",
		})
		return
	}

	slog.Info("transactions saved",
		"tenant_id", tenantID,
		"count", len(txs),
		"source", source,
	)
	writeJSON(w, http.StatusCreated, map[string]any{
		"saved":  len(txs),
		"source": source,
	})
}

// GetAnalysis returns the anomalies and insights for the tenant's ledger.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	result, err := h.reports.Analysis(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		writeError(w, r, "analysis failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetIncomeProfile returns the tenant's income profile.
func (h *Handler) GetIncomeProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.reports.IncomeProfile(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		writeError(w, r, "income profiling failed", err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// GetStats returns dashboard statistics. Detected subscriptions are added
// to total_monthly_fixed when a coach is configured.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	st, err := h.reports.Stats(ctx, tenantID)
	if err != nil {
		writeError(w, r, "failed to calculate stats", err)
		return
	}

	if h.coach != nil {
		subs, err := h.subscriptions(ctx, tenantID)
		if err != nil {
			slog.Warn("subscription detection failed, fixed costs exclude subscriptions",
				"tenant_id", tenantID,
				"error", err,
			)
		} else {
			st.TotalMonthlyFixed = stats.Round(st.TotalMonthlyFixed+coach.TotalAmount(subs), 2)
		}
	}

	writeJSON(w, http.StatusOK, st)
}

// GetNudges returns the coaching rules that fire for the tenant.
func (h *Handler) GetNudges(w http.ResponseWriter, r *http.Request) {
	nudges, err := h.reports.Nudges(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		writeError(w, r, "rule evaluation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"nudges": nudges,
		"count":  len(nudges),
	})
}

// DigestResponse wraps a digest with the reasons it needs attention.
type DigestResponse struct {
	*domain.Digest
	Reasons []string `json:"reasons,omitempty"`
	Version string   `json:"version"`
}

// GetDigest returns the tenant's digest.
func (h *Handler) GetDigest(w http.ResponseWriter, r *http.Request) {
	d, err := h.reports.Digest(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		writeError(w, r, "digest failed", err)
		return
	}
	writeJSON(w, http.StatusOK, DigestResponse{
		Digest:  d,
		Reasons: digest.Reasons(d),
		Version: h.version,
	})
}

// ForecastRequest is the request body for POST /api/forecast.
type ForecastRequest struct {
	Name string `json:"name,omitempty"`
	forecast.Goal
}

// Forecast projects the tenant's savings toward a goal.
func (h *Handler) Forecast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req ForecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	profile, err := h.reports.IncomeProfile(ctx, tenantID)
	if err != nil {
		writeError(w, r, "income profiling failed", err)
		return
	}
	st, err := h.reports.Stats(ctx, tenantID)
	if err != nil {
		writeError(w, r, "failed to calculate stats", err)
		return
	}

	fc, err := forecast.Project(req.Goal, profile.EstimatedMonthlyIncome, st.AvgDaily, h.reports.Now())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"name":     req.Name,
		"forecast": fc,
	})
}

// DetectSubscriptions lists recurring charges found by the coach.
func (h *Handler) DetectSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.coach == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "coach not configured",
		})
		return
	}

	subs, err := h.subscriptions(ctx, tenantID)
	if err != nil {
		slog.Error("subscription detection failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": "subscription detection failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"subscriptions": subs,
		"total":         stats.Round(coach.TotalAmount(subs), 2),
	})
}

// subscriptions asks the coach once per ledger snapshot and caches the answer.
func (h *Handler) subscriptions(ctx context.Context, tenantID string) ([]coach.Subscription, error) {
	snap, err := h.reports.Snapshot(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	key := "subscriptions:" + snap.Fingerprint
	if h.cache != nil {
		if data, err := h.cache.Get(ctx, tenantID, key); err == nil && data != nil {
			var subs []coach.Subscription
			if err := json.Unmarshal(data, &subs); err == nil {
				return subs, nil
			}
		}
	}

	subs, err := h.coach.DetectSubscriptions(ctx, snap.Transactions)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		if data, err := json.Marshal(subs); err == nil {
			if err := h.cache.Set(ctx, tenantID, key, data, h.resultTTL); err != nil {
				slog.Warn("failed to cache subscriptions", "tenant_id", tenantID, "error", err)
			}
		}
	}
	return subs, nil
}

// writeError maps pipeline errors onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, analysis.ErrMalformedTransaction),
		errors.Is(err, repository.ErrInvalidInput),
		errors.Is(err, report.ErrTenantRequired):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": msg + ": " + err.Error(),
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": msg + ": request cancelled",
		})
	default:
		slog.Error(msg,
			"error", err,
			"tenant_id", GetTenantID(r.Context()),
			"trace_id", GetTraceID(r.Context()),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": msg,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
