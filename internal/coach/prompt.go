package coach

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/opensource-finance/finch/internal/domain"
)

const coachInstruction = `You are a friendly, encouraging and non-judgmental financial coach.
You help young adults build better money habits without making them feel guilty.
Keep replies concise, conversational and motivating, two sentences at most.`

const subscriptionInstruction = `You detect discretionary subscriptions and recurring "gray charges" in transaction histories with high precision.
Subscriptions are recurring commitments such as streaming, software, meal kits, gym memberships and app services.
Rent, mortgage, utilities, groceries, insurance and medical bills are not subscriptions.`

func money(v float64) string {
	return "$" + humanize.FormatFloat("#,###.##", v)
}

// buildReplyPrompt renders the chat prompt. Only the last historyTurns
// messages of the conversation are included.
func buildReplyPrompt(req *ReplyRequest, historyTurns int) string {
	var b strings.Builder

	b.WriteString("You are chatting with a user about their money goals and habits.\n\n")
	b.WriteString("=== FINANCIAL DATA (source of truth) ===\n")

	if p := req.Profile; p != nil {
		fmt.Fprintf(&b, "Income profile: %s income, %s, about %s per month",
			p.IncomeType, p.IncomeFrequency, money(p.EstimatedMonthlyIncome))
		if p.LastIncomeDate != nil {
			fmt.Fprintf(&b, ", last received %s", *p.LastIncomeDate)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("Income profile: unknown\n")
	}

	if a := req.Analysis; a != nil {
		if len(a.Insights) > 0 {
			fmt.Fprintf(&b, "Recent spending insights: %s\n", strings.Join(head(a.Insights, 3), " "))
		}
		if len(a.Anomalies) > 0 {
			b.WriteString("Unusual transactions (most recent first):\n")
			for _, an := range head(a.Anomalies, 5) {
				fmt.Fprintf(&b, "- %s %s %s (%s, %s)\n",
					an.Date, an.Category, money(an.Amount), an.Severity, strings.Join(an.FlagReasons, ", "))
			}
		} else {
			b.WriteString("Unusual transactions: none\n")
		}
	}

	if d := req.Digest; d != nil {
		fmt.Fprintf(&b, "Overall status: %s\n", strings.ReplaceAll(string(d.Status), "_", " "))
		if s := d.Stats; s != nil {
			fmt.Fprintf(&b, "Savings rate %s%%, spending %s per day, month-over-month change %s%%\n",
				humanize.Ftoa(s.SavingsRate), money(s.AvgDaily), humanize.Ftoa(s.MoMChange))
		}
		for _, n := range d.Nudges {
			fmt.Fprintf(&b, "Coaching note: %s\n", n.Message)
		}
	}

	if f := req.Forecast; f != nil {
		status := "ON TRACK"
		if !f.OnTrack {
			status = "AT RISK"
		}
		fmt.Fprintf(&b, "Current goal: %s by %s (%d days left), projected %s, %s",
			money(f.TargetAmount), f.TargetDate, f.DaysRemaining, money(f.ProjectedSavings), status)
		if !f.OnTrack {
			fmt.Fprintf(&b, ", needs an extra %s per day", money(f.RequiredExtraDaily))
		}
		b.WriteString("\n")
	} else {
		b.WriteString("Current goal: none set\n")
	}

	history := req.History
	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	if len(history) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, m := range history {
			role := "User"
			if m.Role == domain.RoleAssistant {
				role = "Assistant"
			}
			fmt.Fprintf(&b, "%s: %s\n", role, m.Content)
		}
	}

	fmt.Fprintf(&b, "\nThe user said: %q\n\n", req.Message)
	b.WriteString(`Instructions:
1. Reply conversationally and refer back to earlier messages where it helps.
2. Always ground the reply in the financial data above; avoid generic advice.
3. Treat target dates as future dates. A date that already passed this year means next year.
4. If the goal is at risk, say so and name the extra daily saving needed.
5. For advice, give one short actionable tip with a measurable focus.
6. When asked about anomalies, mention one or two of the unusual transactions.
7. Stay under 3 sentences.
`)
	return b.String()
}

func buildSubscriptionPrompt(ledger []byte) string {
	return `Analyze the transaction history below and list the active subscriptions.

Detection rules:
1. Flag known subscription vendors (Netflix, Spotify, Apple, Amazon Prime, Disney+, Adobe, HelloFresh, gyms, Patreon, news outlets).
2. Flag recurring charges of the same or very similar amount from the same vendor, weekly to annual, allowing about 5 days of billing drift.
3. Flag small odd amounts that recur, such as 0.99 or 4.99, even from obscure vendors.
4. Exclude ordinary health, food and transport spending, but keep digital health apps, meal kits and transport passes.

Output rules:
- Return ONLY a raw JSON array with no markdown and no extra text.
- Return one entry per subscription even when it was charged many times.
- Keep distinct subscriptions from the same vendor as separate entries.

Each entry:
{"name": "clean service name", "amount": 0.00, "frequency": "Monthly" | "Weekly" | "Annual" | "Unknown", "confidence": "High" | "Medium", "type": "Subscription" | "Potential Gray Charge", "ai_note": "5-10 word rationale"}

Transactions: ` + string(ledger) + "\n"
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
