// Package rules evaluates CEL coaching rules against a tenant's financial picture.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/finch/internal/domain"
)

// Engine is the CEL-based nudge evaluation engine.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	spendGetter   SpendGetter
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.NudgeRule
	Program cel.Program
}

// SpendGetter returns what a tenant withdrew over the trailing window of days.
type SpendGetter func(ctx context.Context, tenantID string, windowDays int) (float64, error)

// NewEngine creates a new rule evaluation engine. spendGetter may be nil,
// in which case recent_spend is always 0.
func NewEngine(spendGetter SpendGetter, maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("savings_rate", cel.DoubleType),
		cel.Variable("burn_rate", cel.DoubleType),
		cel.Variable("mom_change", cel.DoubleType),
		cel.Variable("avg_daily", cel.DoubleType),
		cel.Variable("avg_monthly", cel.DoubleType),
		cel.Variable("saved", cel.DoubleType),
		cel.Variable("total_spent", cel.DoubleType),
		cel.Variable("total_monthly_fixed", cel.DoubleType),
		cel.Variable("monthly_income", cel.DoubleType),
		cel.Variable("income_type", cel.StringType),
		cel.Variable("income_frequency", cel.StringType),
		cel.Variable("anomaly_count", cel.IntType),
		cel.Variable("high_severity_count", cel.IntType),
		cel.Variable("recent_spend", cel.DoubleType),
		cel.Variable("recent_days", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		spendGetter:   spendGetter,
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles a rule without touching the loaded set.
func (e *Engine) ValidateRule(cfg *domain.NudgeRule) error {
	if cfg == nil {
		return fmt.Errorf("rule is required")
	}
	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.NudgeRule) error {
	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.compiledRules[cfg.ID] = compiled
	e.mu.Unlock()
	return nil
}

// LoadRules compiles and loads the enabled rules.
func (e *Engine) LoadRules(configs []*domain.NudgeRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules swaps the loaded set for the enabled rules in configs.
// On a compile error the previous set stays loaded.
func (e *Engine) ReloadRules(configs []*domain.NudgeRule) error {
	newRules := make(map[string]*CompiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.mu.Lock()
	e.compiledRules = newRules
	e.mu.Unlock()
	return nil
}

// Input is the financial picture rules are evaluated against.
// Nil parts evaluate as zero values.
type Input struct {
	TenantID   string
	Stats      *domain.FinancialStats
	Profile    *domain.IncomeProfile
	Analysis   *domain.AnalysisResult
	RecentDays int
}

// Evaluate runs every loaded rule in parallel and returns the nudges whose
// expression held, heaviest first. Rules that fail at runtime are skipped.
func (e *Engine) Evaluate(ctx context.Context, input *Input) ([]domain.Nudge, error) {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return []domain.Nudge{}, nil
	}

	activation := e.activation(ctx, input)

	fired := make([]*domain.Nudge, len(rules))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}
			fired[idx] = e.evaluateRule(r, activation, input.TenantID)
		}(i, rule)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	nudges := make([]domain.Nudge, 0, len(fired))
	for _, n := range fired {
		if n != nil {
			nudges = append(nudges, *n)
		}
	}
	sort.Slice(nudges, func(i, j int) bool {
		if nudges[i].Weight != nudges[j].Weight {
			return nudges[i].Weight > nudges[j].Weight
		}
		return nudges[i].RuleID < nudges[j].RuleID
	})
	return nudges, nil
}

func (e *Engine) activation(ctx context.Context, input *Input) map[string]any {
	vars := map[string]any{
		"savings_rate":        0.0,
		"burn_rate":           0.0,
		"mom_change":          0.0,
		"avg_daily":           0.0,
		"avg_monthly":         0.0,
		"saved":               0.0,
		"total_spent":         0.0,
		"total_monthly_fixed": 0.0,
		"monthly_income":      0.0,
		"income_type":         string(domain.IncomeUnknown),
		"income_frequency":    string(domain.FrequencyUnknown),
		"anomaly_count":       int64(0),
		"high_severity_count": int64(0),
		"recent_spend":        0.0,
		"recent_days":         int64(input.RecentDays),
	}

	if s := input.Stats; s != nil {
		vars["savings_rate"] = s.SavingsRate
		vars["burn_rate"] = s.BurnRate
		vars["mom_change"] = s.MoMChange
		vars["avg_daily"] = s.AvgDaily
		vars["avg_monthly"] = s.AvgMonthly
		vars["saved"] = s.Saved
		vars["total_spent"] = s.TotalSpent
		vars["total_monthly_fixed"] = s.TotalMonthlyFixed
	}
	if p := input.Profile; p != nil {
		vars["monthly_income"] = p.EstimatedMonthlyIncome
		vars["income_type"] = string(p.IncomeType)
		vars["income_frequency"] = string(p.IncomeFrequency)
	}
	if a := input.Analysis; a != nil {
		vars["anomaly_count"] = int64(len(a.Anomalies))
		vars["high_severity_count"] = int64(a.HighSeverityCount())
	}

	if e.spendGetter != nil && input.RecentDays > 0 {
		spend, err := e.spendGetter(ctx, input.TenantID, input.RecentDays)
		if err != nil {
			slog.Warn("recent spend unavailable",
				"tenant_id", input.TenantID,
				"window_days", input.RecentDays,
				"error", err,
			)
		} else {
			vars["recent_spend"] = spend
		}
	}
	return vars
}

// evaluateRule returns a nudge when the rule holds, nil otherwise.
func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any, tenantID string) *domain.Nudge {
	start := time.Now()

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		slog.Warn("nudge rule evaluation failed",
			"tenant_id", tenantID,
			"rule_id", rule.Config.ID,
			"error", err,
		)
		return nil
	}
	if held, ok := out.(types.Bool); !ok || !bool(held) {
		return nil
	}

	return &domain.Nudge{
		RuleID:    rule.Config.ID,
		Name:      rule.Config.Name,
		Message:   rule.Config.Message,
		Weight:    rule.Config.Weight,
		ProcessMs: time.Since(start).Milliseconds(),
	}
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// LoadedRules returns the loaded rule configurations ordered by id.
func (e *Engine) LoadedRules() []*domain.NudgeRule {
	e.mu.RLock()
	rules := make([]*domain.NudgeRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	e.mu.RUnlock()

	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// Close unloads every rule.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.NudgeRule) (*CompiledRule, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("rule id is required")
	}
	if cfg.Weight < 0 || cfg.Weight > 1 {
		return nil, fmt.Errorf("rule %s: weight must be between 0 and 1, got %g", cfg.ID, cfg.Weight)
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{Config: cfg, Program: program}, nil
}
