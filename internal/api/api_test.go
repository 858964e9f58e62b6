package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/finch/internal/bus"
	"github.com/opensource-finance/finch/internal/cache"
	"github.com/opensource-finance/finch/internal/coach"
	"github.com/opensource-finance/finch/internal/domain"
	"github.com/opensource-finance/finch/internal/ledger"
	"github.com/opensource-finance/finch/internal/report"
	"github.com/opensource-finance/finch/internal/repository"
	"github.com/opensource-finance/finch/internal/rules"
)

type fakeCoach struct {
	mu          sync.Mutex
	reply       string
	err         error
	subs        []coach.Subscription
	detectCalls int
	lastReq     *coach.ReplyRequest
}

func (f *fakeCoach) Reply(ctx context.Context, req *coach.ReplyRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = req
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeCoach) DetectSubscriptions(ctx context.Context, txs []domain.Transaction) ([]coach.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detectCalls++
	return f.subs, nil
}

type testOptions struct {
	defaultTenant string
	coach         coach.Coach
	rateLimit     int
}

// createTestServer wires a server over a temp SQLite database, the channel
// bus and the LRU cache, with the default nudge rules stored and loaded.
func createTestServer(t *testing.T, opts testOptions) (*Server, domain.Repository) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "api-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	lru := cache.NewLRUCache(1000)
	store := ledger.NewStore(repo, eventBus)

	engine, err := rules.NewEngine(func(ctx context.Context, tenantID string, windowDays int) (float64, error) {
		return 0, nil
	}, 4)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	for _, rule := range rules.DefaultNudgeRules() {
		if err := repo.SaveNudgeRule(context.Background(), domain.GlobalTenantID, rule); err != nil {
			t.Fatalf("failed to seed rule: %v", err)
		}
	}
	if err := engine.LoadRules(rules.DefaultNudgeRules()); err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}

	reports := report.NewService(report.Options{
		Store:     store,
		Cache:     lru,
		Engine:    engine,
		Analysis:  domain.DefaultConfig().Analysis,
		ResultTTL: time.Minute,
	})

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}
	server := NewServer(cfg, Dependencies{
		Repo:          repo,
		Cache:         lru,
		Bus:           eventBus,
		Store:         store,
		Reports:       reports,
		Engine:        engine,
		Coach:         opts.coach,
		Version:       "test-v1",
		DefaultTenant: opts.defaultTenant,
		ChatRateLimit: opts.rateLimit,
	})
	return server, repo
}

func doRequest(t *testing.T, server *Server, method, path, tenantID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if tenantID != "" {
		req.Header.Set(TenantIDHeader, tenantID)
	}
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
	return v
}

// spikeLedgerJSON is a paycheck, rent, 20 ordinary purchases and one $3500
// purchase.
func spikeLedgerJSON(t *testing.T) string {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	txs := []domain.Transaction{
		{ID: 1, Date: base, Amount: 3000, Type: domain.TypeDeposit, Category: "Income"},
		{ID: 2, Date: base.AddDate(0, 0, 1), Amount: 1200, Type: domain.TypeWithdrawal, Category: "Housing"},
	}
	for i := 0; i < 20; i++ {
		txs = append(txs, domain.Transaction{
			ID:       int64(10 + i),
			Date:     base.AddDate(0, 0, i*3),
			Amount:   float64(20 + i),
			Type:     domain.TypeWithdrawal,
			Category: "Shopping",
		})
	}
	txs = append(txs, domain.Transaction{
		ID: 99, Date: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), Amount: 3500,
		Type: domain.TypeWithdrawal, Category: "Shopping", Description: "Laptop",
	})
	body, err := json.Marshal(txs)
	if err != nil {
		t.Fatalf("failed to marshal ledger: %v", err)
	}
	return string(body)
}

func TestHealthEndpoints(t *testing.T) {
	server, _ := createTestServer(t, testOptions{})

	t.Run("Health", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/health", "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		resp := decode[map[string]any](t, rr)
		if resp["status"] != "healthy" || resp["version"] != "test-v1" {
			t.Errorf("unexpected health response %v", resp)
		}
	})

	t.Run("Ready", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/ready", "", "")
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("TraceHeaders", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/health", "", "")
		if rr.Header().Get(RequestIDHeader) == "" || rr.Header().Get(TraceIDHeader) == "" {
			t.Error("expected request and trace id headers")
		}
	})
}

func TestTenantResolution(t *testing.T) {
	t.Run("MissingTenantID", func(t *testing.T) {
		server, _ := createTestServer(t, testOptions{})
		rr := doRequest(t, server, http.MethodGet, "/api/analysis", "", "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("DefaultTenant", func(t *testing.T) {
		server, _ := createTestServer(t, testOptions{defaultTenant: "default_user"})
		rr := doRequest(t, server, http.MethodPost, "/api/transactions", "", spikeLedgerJSON(t))
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		rr = doRequest(t, server, http.MethodGet, "/api/transactions", "default_user", "")
		txs := decode[[]domain.Transaction](t, rr)
		if len(txs) != 23 {
			t.Errorf("expected the default tenant's 23 transactions, got %d", len(txs))
		}
	})

	t.Run("GlobalTenantRejected", func(t *testing.T) {
		server, _ := createTestServer(t, testOptions{})
		rr := doRequest(t, server, http.MethodGet, "/api/analysis", domain.GlobalTenantID, "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestTransactionEndpoints(t *testing.T) {
	server, _ := createTestServer(t, testOptions{})
	tenantID := "tenant-001"

	t.Run("SaveAndList", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/api/transactions", tenantID, spikeLedgerJSON(t))
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		rr = doRequest(t, server, http.MethodGet, "/api/transactions", tenantID, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		txs := decode[[]domain.Transaction](t, rr)
		if len(txs) != 23 {
			t.Fatalf("expected 23 transactions, got %d", len(txs))
		}
		if txs[0].ID != 99 {
			t.Errorf("expected newest first, got id %d", txs[0].ID)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/api/transactions", "tenant-002", "")
		txs := decode[[]domain.Transaction](t, rr)
		if len(txs) != 0 {
			t.Errorf("expected no transactions for another tenant, got %d", len(txs))
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/api/transactions", tenantID, "not-json")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("EmptyArray", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/api/transactions", tenantID, "[]")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingDate", func(t *testing.T) {
		body := `[{"id":500,"amount":5,"type":"withdrawal","category":"Food"}]`
		rr := doRequest(t, server, http.MethodPost, "/api/transactions", tenantID, body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("ImportCSV", func(t *testing.T) {
		csv := "id,date,amount,type,category,description\n" +
			"200,2024-03-18,12.50,withdrawal,Food,Lunch\n" +
			"201,2024-03-19,8.00,withdrawal,Food,Coffee\n"
		rr := doRequest(t, server, http.MethodPost, "/api/transactions/import", "tenant-003", csv)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
		resp := decode[map[string]any](t, rr)
		if resp["saved"] != float64(2) || resp["source"] != "import" {
			t.Errorf("unexpected import response %v", resp)
		}
	})

	t.Run("ImportMalformedCSV", func(t *testing.T) {
		csv := "id,date,amount,type,category\n1,2024-03-18,lots,withdrawal,Food\n"
		rr := doRequest(t, server, http.MethodPost, "/api/transactions/import", "tenant-003", csv)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestAnalysisEndpoints(t *testing.T) {
	fc := &fakeCoach{subs: []coach.Subscription{
		{Name: "Netflix", Amount: 15.99, Frequency: "monthly"},
		{Name: "Gym", Amount: 40, Frequency: "monthly"},
	}}
	server, _ := createTestServer(t, testOptions{coach: fc})
	tenantID := "tenant-001"

	if rr := doRequest(t, server, http.MethodPost, "/api/transactions", tenantID, spikeLedgerJSON(t)); rr.Code != http.StatusCreated {
		t.Fatalf("failed to seed ledger: %d %s", rr.Code, rr.Body.String())
	}

	t.Run("Analysis", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/api/analysis", tenantID, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		result := decode[domain.AnalysisResult](t, rr)
		if result.HighSeverityCount() != 1 {
			t.Fatalf("expected 1 high-severity anomaly, got %+v", result.Anomalies)
		}
		if result.Anomalies[0].ID != 99 {
			t.Errorf("expected the $3500 purchase flagged, got id %d", result.Anomalies[0].ID)
		}
		if result.Insights == nil {
			t.Error("expected an insights array")
		}
	})

	t.Run("IncomeProfile", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/api/income-profile", tenantID, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		profile := decode[domain.IncomeProfile](t, rr)
		if profile.LastIncomeDate == nil || *profile.LastIncomeDate != "2024-01-01" {
			t.Errorf("expected last income date 2024-01-01, got %v", profile.LastIncomeDate)
		}
	})

	t.Run("StatsIncludeSubscriptions", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/api/stats", tenantID, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		st := decode[domain.FinancialStats](t, rr)
		// Housing 1200 over Jan-Mar is 400 a month, plus 55.99 of subscriptions.
		if st.TotalMonthlyFixed != 455.99 {
			t.Errorf("expected total_monthly_fixed 455.99, got %v", st.TotalMonthlyFixed)
		}
	})

	t.Run("SubscriptionsCachedPerSnapshot", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/api/subscriptions", tenantID, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		resp := decode[map[string]any](t, rr)
		if resp["total"] != 55.99 {
			t.Errorf("expected total 55.99, got %v", resp["total"])
		}

		fc.mu.Lock()
		calls := fc.detectCalls
		fc.mu.Unlock()
		if calls != 1 {
			t.Errorf("expected one detection across stats and subscriptions, got %d", calls)
		}
	})

	t.Run("Nudges", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/api/nudges", tenantID, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		resp := decode[struct {
			Nudges []domain.Nudge `json:"nudges"`
			Count  int           `json:"count"`
		}](t, rr)
		if resp.Count != len(resp.Nudges) || resp.Count == 0 {
			t.Fatalf("expected fired nudges, got %+v", resp)
		}
		for i := 1; i < len(resp.Nudges); i++ {
			if resp.Nudges[i-1].Weight < resp.Nudges[i].Weight {
				t.Errorf("expected nudges sorted by weight, got %+v", resp.Nudges)
			}
		}
	})

	t.Run("Digest", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/api/digest", tenantID, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var d DigestResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &d); err != nil {
			t.Fatalf("failed to parse digest: %v", err)
		}
		if d.Digest == nil || d.Status != domain.StatusNeedsAttention {
			t.Fatalf("expected needs_attention digest, got %s", rr.Body.String())
		}
		if len(d.Reasons) == 0 || !strings.Contains(d.Reasons[0], "high-severity") {
			t.Errorf("expected the anomaly as first reason, got %v", d.Reasons)
		}
		if d.Version != "test-v1" {
			t.Errorf("expected version test-v1, got %s", d.Version)
		}
	})

	t.Run("Forecast", func(t *testing.T) {
		body := `{"name":"Trip","target_amount":1000,"target_date":"2999-01-01"}`
		rr := doRequest(t, server, http.MethodPost, "/api/forecast", tenantID, body)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		resp := decode[struct {
			Name     string           `json:"name"`
			Forecast *domain.Forecast `json:"forecast"`
		}](t, rr)
		if resp.Name != "Trip" || resp.Forecast == nil || resp.Forecast.TargetAmount != 1000 {
			t.Errorf("unexpected forecast %+v", resp)
		}
	})

	t.Run("ForecastInvalidTarget", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/api/forecast", tenantID, `{"target_amount":0,"target_date":"2999-01-01"}`)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestSubscriptionsWithoutCoach(t *testing.T) {
	server, _ := createTestServer(t, testOptions{})
	rr := doRequest(t, server, http.MethodPost, "/api/subscriptions", "tenant-001", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rr.Code)
	}
}

func TestChatEndpoint(t *testing.T) {
	tenantID := "tenant-001"

	t.Run("RepliesAndKeepsHistory", func(t *testing.T) {
		fc := &fakeCoach{reply: "Skip one takeout meal a week to save about $60."}
		server, _ := createTestServer(t, testOptions{coach: fc})
		doRequest(t, server, http.MethodPost, "/api/transactions", tenantID, spikeLedgerJSON(t))

		body := `{"message":"How am I doing?","session_id":"s1","goal":{"target_amount":500,"target_date":"2999-06-01"}}`
		rr := doRequest(t, server, http.MethodPost, "/api/chat", tenantID, body)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		resp := decode[ChatResponse](t, rr)
		if resp.Reply != fc.reply {
			t.Errorf("expected coach reply, got %q", resp.Reply)
		}
		if resp.SessionID != "s1" || resp.HistoryLength != 2 {
			t.Errorf("unexpected session state %q/%d", resp.SessionID, resp.HistoryLength)
		}
		if len(resp.Anomalies) == 0 || resp.Forecast == nil {
			t.Errorf("expected anomalies and forecast in the response, got %+v", resp)
		}

		rr = doRequest(t, server, http.MethodPost, "/api/chat", tenantID, `{"message":"And now?","session_id":"s1"}`)
		resp = decode[ChatResponse](t, rr)
		if resp.HistoryLength != 4 {
			t.Errorf("expected history length 4, got %d", resp.HistoryLength)
		}

		fc.mu.Lock()
		defer fc.mu.Unlock()
		if len(fc.lastReq.History) != 2 || fc.lastReq.History[0].Role != domain.RoleUser {
			t.Errorf("expected the first turn passed as history, got %+v", fc.lastReq.History)
		}
		if fc.lastReq.Digest == nil {
			t.Error("expected the digest in the reply request")
		}
	})

	t.Run("DefaultSession", func(t *testing.T) {
		server, _ := createTestServer(t, testOptions{coach: &fakeCoach{reply: "ok"}})
		rr := doRequest(t, server, http.MethodPost, "/api/chat", tenantID, `{"message":"hi"}`)
		resp := decode[ChatResponse](t, rr)
		if resp.SessionID != DefaultSessionID {
			t.Errorf("expected session %q, got %q", DefaultSessionID, resp.SessionID)
		}
	})

	t.Run("EmptyMessage", func(t *testing.T) {
		server, _ := createTestServer(t, testOptions{})
		rr := doRequest(t, server, http.MethodPost, "/api/chat", tenantID, `{"message":"   "}`)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("CoachFailureFallsBack", func(t *testing.T) {
		server, _ := createTestServer(t, testOptions{coach: &fakeCoach{err: errors.New("quota exceeded")}})
		rr := doRequest(t, server, http.MethodPost, "/api/chat", tenantID, `{"message":"hi"}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if resp := decode[ChatResponse](t, rr); resp.Reply != coach.FallbackReply {
			t.Errorf("expected fallback reply, got %q", resp.Reply)
		}
	})

	t.Run("NoCoachFallsBack", func(t *testing.T) {
		server, _ := createTestServer(t, testOptions{})
		rr := doRequest(t, server, http.MethodPost, "/api/chat", tenantID, `{"message":"hi"}`)
		if resp := decode[ChatResponse](t, rr); resp.Reply != coach.FallbackReply {
			t.Errorf("expected fallback reply, got %q", resp.Reply)
		}
	})

	t.Run("RateLimited", func(t *testing.T) {
		server, _ := createTestServer(t, testOptions{coach: &fakeCoach{reply: "ok"}, rateLimit: 2})
		for i := 0; i < 2; i++ {
			if rr := doRequest(t, server, http.MethodPost, "/api/chat", tenantID, `{"message":"hi","session_id":"busy"}`); rr.Code != http.StatusOK {
				t.Fatalf("request %d: expected status 200, got %d", i, rr.Code)
			}
		}
		rr := doRequest(t, server, http.MethodPost, "/api/chat", tenantID, `{"message":"hi","session_id":"busy"}`)
		if rr.Code != http.StatusTooManyRequests {
			t.Errorf("expected status 429, got %d", rr.Code)
		}

		rr = doRequest(t, server, http.MethodPost, "/api/chat", tenantID, `{"message":"hi","session_id":"other"}`)
		if rr.Code != http.StatusOK {
			t.Errorf("expected another session to pass, got %d", rr.Code)
		}
	})
}

func TestRuleEndpoints(t *testing.T) {
	server, _ := createTestServer(t, testOptions{})
	tenantID := "tenant-001"
	defaults := len(rules.DefaultNudgeRules())

	t.Run("ListRules", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/api/rules", tenantID, "")
		resp := decode[map[string]any](t, rr)
		if resp["count"] != float64(defaults) {
			t.Errorf("expected %d rules, got %v", defaults, resp["count"])
		}
	})

	t.Run("CreateRule", func(t *testing.T) {
		body := `{"id":"big-spender","name":"Big spender","expression":"total_spent > 100.0","message":"You spend a lot.","weight":0.1,"enabled":true}`
		rr := doRequest(t, server, http.MethodPost, "/api/rules", tenantID, body)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
		resp := decode[map[string]any](t, rr)
		if resp["rules_loaded"] != float64(defaults+1) {
			t.Errorf("expected %d rules loaded, got %v", defaults+1, resp["rules_loaded"])
		}
	})

	t.Run("CreateRuleNonBool", func(t *testing.T) {
		body := `{"id":"bad","name":"Bad","expression":"total_spent * 2.0","message":"m","weight":0.1,"enabled":true}`
		rr := doRequest(t, server, http.MethodPost, "/api/rules", tenantID, body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("CreateRuleMissingFields", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/api/rules", tenantID, `{"id":"x"}`)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("GetRule", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/api/rules/big-spender", tenantID, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		rule := decode[domain.NudgeRule](t, rr)
		if rule.Expression != "total_spent > 100.0" || rule.TenantID != domain.GlobalTenantID {
			t.Errorf("unexpected rule %+v", rule)
		}

		rr = doRequest(t, server, http.MethodGet, "/api/rules/missing", tenantID, "")
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("DeleteRule", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodDelete, "/api/rules/big-spender", tenantID, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if server.Handler().engine.RulesCount() != defaults {
			t.Errorf("expected %d rules after delete, got %d", defaults, server.Handler().engine.RulesCount())
		}

		rr = doRequest(t, server, http.MethodDelete, "/api/rules/big-spender", tenantID, "")
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404 on second delete, got %d", rr.Code)
		}
	})

	t.Run("ReloadRules", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/api/rules/reload", tenantID, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		resp := decode[map[string]any](t, rr)
		if resp["count"] != float64(defaults) {
			t.Errorf("expected %d rules, got %v", defaults, resp["count"])
		}
	})
}
