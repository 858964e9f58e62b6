package rules

import "github.com/opensource-finance/finch/internal/domain"

// DefaultNudgeRules is the starter rule set seeded when no rules are stored.
// Rules belong to the global tenant and apply to everyone.
func DefaultNudgeRules() []*domain.NudgeRule {
	rule := func(id, name, expr, msg string, weight float64) *domain.NudgeRule {
		return &domain.NudgeRule{
			ID:         id,
			TenantID:   domain.GlobalTenantID,
			Name:       name,
			Version:    "1.0.0",
			Expression: expr,
			Message:    msg,
			Weight:     weight,
			Enabled:    true,
		}
	}

	return []*domain.NudgeRule{
		rule("low-savings-rate", "Low savings rate",
			`total_spent > 0.0 && savings_rate < 10.0`,
			"You're saving less than 10% of what comes in. Moving a small fixed amount right after payday can help.",
			0.3),
		rule("spending-pace", "Spending ahead of pace",
			`burn_rate > 110.0`,
			"You're spending faster than usual this month. A few quiet days would bring you back on pace.",
			0.3),
		rule("month-over-month-jump", "Spending jump",
			`mom_change > 20.0`,
			"Last month's spending rose by more than a fifth. Worth a look at what changed.",
			0.2),
		rule("high-severity-anomaly", "Unusual transaction",
			`high_severity_count > 0`,
			"A transaction stands far outside your usual pattern. Take a moment to confirm it's expected.",
			0.4),
		rule("gig-income-buffer", "Gig income buffer",
			`income_type == "gig" && monthly_income > 0.0 && saved < monthly_income`,
			"Your income varies from month to month. Building a buffer of one month's income smooths out the dips.",
			0.2),
		rule("recent-spend-spike", "Recent spending spike",
			`recent_days > 0 && avg_daily > 0.0 && recent_spend > avg_daily * double(recent_days) * 1.5`,
			"You've spent noticeably more over the last few days than your daily average.",
			0.2),
	}
}
