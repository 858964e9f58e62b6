// Package report computes a tenant's derived financial results from the
// current ledger snapshot and caches them by snapshot fingerprint.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/finch/internal/analysis"
	"github.com/opensource-finance/finch/internal/digest"
	"github.com/opensource-finance/finch/internal/domain"
	"github.com/opensource-finance/finch/internal/ledger"
	"github.com/opensource-finance/finch/internal/rules"
)

var ErrTenantRequired = errors.New("tenantID is required")

// Service is shared by the HTTP handlers and the background worker.
type Service struct {
	store    *ledger.Store
	cache    domain.Cache
	analyzer *analysis.Analyzer
	engine   *rules.Engine
	digester *digest.Processor

	fixedCategories []string
	recentDays      int
	ttl             time.Duration
	now             func() time.Time
}

// Options configures a Service. Cache and Engine may be nil.
type Options struct {
	Store     *ledger.Store
	Cache     domain.Cache
	Analyzer  *analysis.Analyzer
	Engine    *rules.Engine
	Digester  *digest.Processor
	Analysis  domain.AnalysisConfig
	ResultTTL time.Duration
}

// NewService creates a report service.
func NewService(opts Options) *Service {
	if opts.Analyzer == nil {
		opts.Analyzer = analysis.NewAnalyzer(nil, opts.Analysis.MaxWorkers)
	}
	if opts.Digester == nil {
		opts.Digester = digest.NewProcessor(opts.Analysis.DigestThreshold)
	}
	fixed := opts.Analysis.FixedCategories
	if len(fixed) == 0 {
		fixed = analysis.DefaultFixedCategories
	}
	recent := opts.Analysis.RecentSpendDays
	if recent <= 0 {
		recent = 7
	}
	ttl := opts.ResultTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{
		store:           opts.Store,
		cache:           opts.Cache,
		analyzer:        opts.Analyzer,
		engine:          opts.Engine,
		digester:        opts.Digester,
		fixedCategories: fixed,
		recentDays:      recent,
		ttl:             ttl,
		now:             time.Now,
	}
}

// Result is the analysis and income profile of one ledger snapshot.
type Result struct {
	Snapshot *ledger.Snapshot
	Analysis *domain.AnalysisResult
	Profile  *domain.IncomeProfile
}

// Results returns the cached results for the tenant's current snapshot,
// computing and caching them on a miss.
func (s *Service) Results(ctx context.Context, tenantID string) (*Result, error) {
	return s.results(ctx, tenantID, true)
}

// Refresh recomputes the tenant's results from the current snapshot and
// overwrites the cached entries.
func (s *Service) Refresh(ctx context.Context, tenantID string) (*Result, error) {
	return s.results(ctx, tenantID, false)
}

func (s *Service) results(ctx context.Context, tenantID string, useCache bool) (*Result, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	snap, err := s.store.Snapshot(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	res := &Result{Snapshot: snap}

	if useCache && s.cache != nil {
		res.Analysis, res.Profile = s.cached(ctx, tenantID, snap.Fingerprint)
	}

	computed := false
	if res.Analysis == nil {
		res.Analysis, err = s.analyzer.AnalyzeTransactions(ctx, snap.Transactions)
		if err != nil {
			return nil, fmt.Errorf("analysis failed: %w", err)
		}
		computed = true
	}
	if res.Profile == nil {
		res.Profile = analysis.DetectIncomeType(snap.Transactions)
		computed = true
	}

	if computed && s.cache != nil {
		s.writeCache(ctx, tenantID, snap.Fingerprint, res)
	}
	return res, nil
}

func (s *Service) cached(ctx context.Context, tenantID, fingerprint string) (*domain.AnalysisResult, *domain.IncomeProfile) {
	result, err := s.cache.GetAnalysis(ctx, tenantID, fingerprint)
	if err != nil {
		slog.Warn("cached analysis unreadable", "tenant_id", tenantID, "error", err)
		result = nil
	}
	profile, err := s.cache.GetIncomeProfile(ctx, tenantID, fingerprint)
	if err != nil {
		slog.Warn("cached income profile unreadable", "tenant_id", tenantID, "error", err)
		profile = nil
	}
	return result, profile
}

func (s *Service) writeCache(ctx context.Context, tenantID, fingerprint string, res *Result) {
	if err := s.cache.SetAnalysis(ctx, tenantID, fingerprint, res.Analysis, s.ttl); err != nil {
		slog.Warn("failed to cache analysis", "tenant_id", tenantID, "error", err)
	}
	if err := s.cache.SetIncomeProfile(ctx, tenantID, fingerprint, res.Profile, s.ttl); err != nil {
		slog.Warn("failed to cache income profile", "tenant_id", tenantID, "error", err)
	}
}

// Analysis returns the anomalies and insights for the tenant's ledger.
func (s *Service) Analysis(ctx context.Context, tenantID string) (*domain.AnalysisResult, error) {
	res, err := s.Results(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return res.Analysis, nil
}

// IncomeProfile returns the tenant's income profile.
func (s *Service) IncomeProfile(ctx context.Context, tenantID string) (*domain.IncomeProfile, error) {
	res, err := s.Results(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return res.Profile, nil
}

// Stats aggregates the tenant's ledger. Stats depend on the current month
// and are not cached.
func (s *Service) Stats(ctx context.Context, tenantID string) (*domain.FinancialStats, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	snap, err := s.store.Snapshot(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return analysis.CalculateFinancialStats(snap.Transactions, s.now(), s.fixedCategories...)
}

// Overview is everything known about a tenant's finances at one moment.
type Overview struct {
	*Result
	Stats  *domain.FinancialStats
	Nudges []domain.Nudge
}

// Overview gathers results, stats and fired nudges.
func (s *Service) Overview(ctx context.Context, tenantID string) (*Overview, error) {
	res, err := s.Results(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	st, err := analysis.CalculateFinancialStats(res.Snapshot.Transactions, s.now(), s.fixedCategories...)
	if err != nil {
		return nil, err
	}

	nudges := []domain.Nudge{}
	if s.engine != nil {
		nudges, err = s.engine.Evaluate(ctx, &rules.Input{
			TenantID:   tenantID,
			Stats:      st,
			Profile:    res.Profile,
			Analysis:   res.Analysis,
			RecentDays: s.recentDays,
		})
		if err != nil {
			return nil, fmt.Errorf("rule evaluation failed: %w", err)
		}
	}

	return &Overview{Result: res, Stats: st, Nudges: nudges}, nil
}

// Nudges evaluates the coaching rules against the tenant's finances.
func (s *Service) Nudges(ctx context.Context, tenantID string) ([]domain.Nudge, error) {
	ov, err := s.Overview(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return ov.Nudges, nil
}

// Digest builds the tenant's digest.
func (s *Service) Digest(ctx context.Context, tenantID string) (*domain.Digest, error) {
	start := time.Now()
	ov, err := s.Overview(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return s.DigestOf(ctx, ov, start), nil
}

// DigestOf builds a digest from an already gathered overview.
func (s *Service) DigestOf(ctx context.Context, ov *Overview, start time.Time) *domain.Digest {
	return s.digester.Process(ctx, &digest.Input{
		TenantID:    ov.Snapshot.TenantID,
		Fingerprint: ov.Snapshot.Fingerprint,
		Stats:       ov.Stats,
		Profile:     ov.Profile,
		Analysis:    ov.Analysis,
		Nudges:      ov.Nudges,
		StartTime:   start,
	})
}

// Snapshot returns the tenant's current ledger snapshot.
func (s *Service) Snapshot(ctx context.Context, tenantID string) (*ledger.Snapshot, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	return s.store.Snapshot(ctx, tenantID)
}

// Now returns the service clock.
func (s *Service) Now() time.Time {
	return s.now()
}
