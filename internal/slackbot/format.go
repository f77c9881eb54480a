package slackbot

import (
	"fmt"
	"strings"

	"tradebot/internal/accounts"
	"tradebot/internal/config"
	"tradebot/internal/domain"
	"tradebot/internal/engine"
)

// formatTradeResult renders an executed trade with its risk commentary.
func formatTradeResult(r *engine.TradeResult) string {
	var sb strings.Builder

	icon := ":white_check_mark:"
	verb := "Submitted"
	if r.Order.Status == domain.OrderStatusFilled {
		verb = "Filled"
	}
	if r.Order.Status == domain.OrderStatusRejected {
		icon = ":x:"
		verb = "Rejected"
	}

	fmt.Fprintf(&sb, "%s *%s* %s %s %s", icon, verb, r.Order.Side, r.Order.Qty, r.Order.Symbol)
	switch {
	case r.Order.FilledAvgPrice != nil:
		fmt.Fprintf(&sb, " @ $%s", r.Order.FilledAvgPrice.StringFixed(2))
	case r.Order.LimitPrice != nil:
		fmt.Fprintf(&sb, " limit $%s", r.Order.LimitPrice.StringFixed(2))
	default:
		fmt.Fprintf(&sb, " @ ~$%s", r.RefPrice.StringFixed(2))
	}
	fmt.Fprintf(&sb, " on account `%s` (order `%s`)", r.Assignment.AccountID, r.Order.ID)

	if !r.MarketOpen {
		sb.WriteString("\n:clock4: The market is closed; the order will work at the next session.")
	}
	if r.Analysis != nil {
		sb.WriteString("\n")
		sb.WriteString(formatRisk(r.Analysis))
	}
	return sb.String()
}

// formatRisk renders a risk assessment in one compact block.
func formatRisk(a *domain.RiskAnalysis) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s *Risk: %d/100 (%s)*", riskIcon(a.Level), a.Score, a.Level)
	if a.FromCache {
		sb.WriteString(" _(cached)_")
	}
	if a.Fallback {
		sb.WriteString(" _(heuristic)_")
	}
	if a.Commentary != "" {
		sb.WriteString("\n> ")
		sb.WriteString(a.Commentary)
	}
	for _, f := range a.Factors {
		fmt.Fprintf(&sb, "\n• *%s* (%s): %s", f.Name, f.Impact, f.Description)
	}
	return sb.String()
}

func riskIcon(level domain.RiskLevel) string {
	switch level {
	case domain.RiskLevelLow:
		return ":large_green_circle:"
	case domain.RiskLevelModerate:
		return ":large_yellow_circle:"
	default:
		return ":red_circle:"
	}
}

// formatAccountInfo renders the user's assignment and account snapshot.
func formatAccountInfo(name string, assignment *domain.Assignment, acct *domain.AccountInfo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s* (`%s`)\n", name, assignment.AccountID)
	fmt.Fprintf(&sb, "Assigned %s by %s (%s)\n",
		assignment.AssignedAt.Format("2006-01-02"), assignment.AssignedBy, assignment.Reason)
	fmt.Fprintf(&sb, "Equity: $%s · Cash: $%s · Buying power: $%s",
		acct.Equity.StringFixed(2), acct.Cash.StringFixed(2), acct.BuyingPower.StringFixed(2))
	if acct.PatternDay {
		fmt.Fprintf(&sb, "\n:warning: Pattern day trader (%d day trades)", acct.DaytradeCount)
	}
	if acct.TradingBlocked {
		sb.WriteString("\n:no_entry: Trading is blocked on this account.")
	}
	return sb.String()
}

// formatPositions renders open positions as a bulleted list.
func formatPositions(positions []domain.Position) string {
	var sb strings.Builder
	sb.WriteString("*Positions*")
	for _, p := range positions {
		fmt.Fprintf(&sb, "\n• %s %s @ $%s (value $%s, P/L $%s)",
			p.Qty, p.Symbol, p.AvgEntryPrice.StringFixed(2),
			p.MarketValue.StringFixed(2), p.UnrealizedPL.StringFixed(2))
	}
	return sb.String()
}

// formatOrders renders recent orders, newest first.
func formatOrders(orders []domain.Order) string {
	var sb strings.Builder
	sb.WriteString("*Recent orders*")
	for _, o := range orders {
		fmt.Fprintf(&sb, "\n• %s %s %s %s — %s",
			o.CreatedAt.Format("01-02 15:04"), o.Side, o.Qty, o.Symbol, o.Status)
	}
	return sb.String()
}

// formatAccountList renders all configured accounts with status and load.
func formatAccountList(accts []config.Account, statuses map[string]domain.AccountStatus, counts map[string]int) string {
	var sb strings.Builder
	sb.WriteString("*Configured accounts*")
	for _, a := range accts {
		status := statuses[a.ID]
		if status == "" {
			status = domain.AccountStatusActive
		}
		fmt.Fprintf(&sb, "\n%s `%s` — %s", statusIcon(status), a.ID, a.Name)
		if a.Department != "" {
			fmt.Fprintf(&sb, " (%s)", a.Department)
		}
		if a.MaxUsers > 0 {
			fmt.Fprintf(&sb, " · %d/%d users", counts[a.ID], a.MaxUsers)
		} else {
			fmt.Fprintf(&sb, " · %d users", counts[a.ID])
		}
		if a.Paper {
			sb.WriteString(" · paper")
		}
	}
	return sb.String()
}

func statusIcon(status domain.AccountStatus) string {
	switch status {
	case domain.AccountStatusActive:
		return ":large_green_circle:"
	case domain.AccountStatusDegraded:
		return ":large_yellow_circle:"
	default:
		return ":red_circle:"
	}
}

// formatAccountUsers renders the active users on one account.
func formatAccountUsers(name string, users []string) string {
	if len(users) == 0 {
		return fmt.Sprintf("*%s*: no assigned users", name)
	}
	mentions := make([]string, len(users))
	for i, u := range users {
		mentions[i] = "<@" + u + ">"
	}
	return fmt.Sprintf("*%s* (%d): %s", name, len(users), strings.Join(mentions, ", "))
}

// formatAuditEvent renders an assignment change for the audit channel.
func formatAuditEvent(e accounts.Event) string {
	a := e.Assignment
	switch e.Type {
	case "assigned":
		return fmt.Sprintf(":link: <@%s> assigned to `%s` by %s (%s)",
			a.UserID, a.AccountID, a.AssignedBy, a.Reason)
	case "deactivated":
		return fmt.Sprintf(":heavy_minus_sign: <@%s> unassigned from `%s` by %s (%s)",
			a.UserID, a.AccountID, a.AssignedBy, a.Reason)
	default:
		return fmt.Sprintf("assignment event %s for <@%s>", e.Type, a.UserID)
	}
}
