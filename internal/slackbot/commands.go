package slackbot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/slack-go/slack"

	"tradebot/internal/accounts"
	"tradebot/internal/domain"
	"tradebot/internal/engine"
	"tradebot/internal/risk"
	"tradebot/internal/router"
)

const (
	usageBuySell = "Usage: `%s SYMBOL QTY [limit PRICE]` — e.g. `%s AAPL 10` or `%s AAPL 10 limit 185.50`"
	usageAssign  = "Usage: `/assign-account @user ACCOUNT_ID [reason]`"
)

// mentionRE matches Slack's escaped mention format <@U123ABC|name>.
var mentionRE = regexp.MustCompile(`^<@([A-Z0-9]+)(?:\|[^>]*)?>$`)

// cmdTrade opens the trade modal, optionally prefilled from "SYMBOL QTY".
func (b *Bot) cmdTrade(_ context.Context, cmd slack.SlashCommand) {
	var prefillSymbol, prefillQty string
	if fields := strings.Fields(cmd.Text); len(fields) >= 1 {
		prefillSymbol = strings.ToUpper(fields[0])
		if len(fields) >= 2 {
			prefillQty = fields[1]
		}
	}

	modal := buildTradeModal(cmd.ChannelID, prefillSymbol, prefillQty)
	if _, err := b.api.OpenView(cmd.TriggerID, modal); err != nil {
		b.log.Warn("opening trade modal", "user", cmd.UserID, "error", err)
		b.ephemeral(cmd.ChannelID, cmd.UserID, genericErrMsg)
	}
}

// cmdBuySell parses "SYMBOL QTY [limit PRICE]" and executes immediately.
func (b *Bot) cmdBuySell(ctx context.Context, cmd slack.SlashCommand, side string) {
	req, err := parseTradeText(cmd.Text)
	if err != nil {
		b.ephemeral(cmd.ChannelID, cmd.UserID,
			err.Error()+"\n"+fmt.Sprintf(usageBuySell, cmd.Command, cmd.Command, cmd.Command))
		return
	}
	req.UserID = cmd.UserID
	req.UserName = cmd.UserName
	req.ChannelID = cmd.ChannelID
	req.Side = domain.OrderSide(side)

	b.executeAndReport(ctx, req)
}

// executeAndReport runs a trade through the engine and posts the outcome as
// an ephemeral message in the originating channel.
func (b *Bot) executeAndReport(ctx context.Context, req *domain.TradeRequest) {
	result, err := b.engine.ExecuteTrade(ctx, req, b.department(req.UserID))
	if err != nil {
		b.log.Warn("trade failed", "user", req.UserID, "symbol", req.Symbol, "error", err)
		b.ephemeral(req.ChannelID, req.UserID, formatTradeError(err))
		return
	}
	b.ephemeral(req.ChannelID, req.UserID, formatTradeResult(result))
}

// cmdAccounts lists all configured accounts with status and user counts.
func (b *Bot) cmdAccounts(_ context.Context, cmd slack.SlashCommand) {
	b.ephemeral(cmd.ChannelID, cmd.UserID,
		formatAccountList(b.cfg.Accounts, b.router.Statuses(), b.manager.Counts()))
}

// cmdAssignAccount manually maps a user to an account. Admin only.
func (b *Bot) cmdAssignAccount(_ context.Context, cmd slack.SlashCommand) {
	if !b.cfg.IsAdmin(cmd.UserID) {
		b.ephemeral(cmd.ChannelID, cmd.UserID, ":no_entry: `/assign-account` is restricted to admins.")
		return
	}

	fields := strings.Fields(cmd.Text)
	if len(fields) < 2 {
		b.ephemeral(cmd.ChannelID, cmd.UserID, usageAssign)
		return
	}

	targetUser := parseMention(fields[0])
	if targetUser == "" {
		b.ephemeral(cmd.ChannelID, cmd.UserID, "Could not parse the user mention.\n"+usageAssign)
		return
	}
	accountID := fields[1]
	reason := "manual"
	if len(fields) > 2 {
		reason = strings.Join(fields[2:], " ")
	}

	a, err := b.manager.Assign(targetUser, accountID, cmd.UserID, reason)
	if err != nil {
		b.ephemeral(cmd.ChannelID, cmd.UserID, formatAssignError(err, accountID))
		return
	}
	b.ephemeral(cmd.ChannelID, cmd.UserID,
		fmt.Sprintf(":white_check_mark: <@%s> is now assigned to *%s*.", a.UserID, b.accountName(a.AccountID)))
}

// cmdMyAccount shows the caller's assignment plus a live account snapshot,
// positions, and recent orders.
func (b *Bot) cmdMyAccount(ctx context.Context, cmd slack.SlashCommand) {
	acct, assignment, err := b.engine.AccountSnapshot(ctx, cmd.UserID, b.department(cmd.UserID))
	if err != nil {
		b.log.Warn("account snapshot failed", "user", cmd.UserID, "error", err)
		b.ephemeral(cmd.ChannelID, cmd.UserID, formatTradeError(err))
		return
	}

	var sb strings.Builder
	sb.WriteString(formatAccountInfo(b.accountName(assignment.AccountID), assignment, acct))

	if positions, _, err := b.engine.Positions(ctx, cmd.UserID, ""); err == nil && len(positions) > 0 {
		sb.WriteString("\n")
		sb.WriteString(formatPositions(positions))
	}
	if orders, err := b.engine.RecentOrders(ctx, cmd.UserID, 5); err == nil && len(orders) > 0 {
		sb.WriteString("\n")
		sb.WriteString(formatOrders(orders))
	}
	b.ephemeral(cmd.ChannelID, cmd.UserID, sb.String())
}

// cmdAccountUsers lists the users assigned to one account, or to all of them
// when no account ID is given.
func (b *Bot) cmdAccountUsers(_ context.Context, cmd slack.SlashCommand) {
	accountID := strings.TrimSpace(cmd.Text)

	if accountID != "" {
		if b.cfg.AccountByID(accountID) == nil {
			b.ephemeral(cmd.ChannelID, cmd.UserID, fmt.Sprintf("Unknown account `%s`.", accountID))
			return
		}
		b.ephemeral(cmd.ChannelID, cmd.UserID,
			formatAccountUsers(b.accountName(accountID), b.manager.UsersFor(accountID)))
		return
	}

	var sb strings.Builder
	for i, a := range b.cfg.Accounts {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(formatAccountUsers(a.Name, b.manager.UsersFor(a.ID)))
	}
	b.ephemeral(cmd.ChannelID, cmd.UserID, sb.String())
}

// accountName resolves a configured account's display name, falling back to
// the raw ID.
func (b *Bot) accountName(accountID string) string {
	if a := b.cfg.AccountByID(accountID); a != nil {
		return a.Name
	}
	return accountID
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// parseTradeText parses "SYMBOL QTY [limit PRICE]" into a partial request.
// Side and user fields are filled by the caller.
func parseTradeText(text string) (*domain.TradeRequest, error) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return nil, errors.New("Missing symbol or quantity.")
	}

	symbol := strings.ToUpper(fields[0])
	qty, err := decimal.NewFromString(fields[1])
	if err != nil || !qty.IsPositive() {
		return nil, fmt.Errorf("Quantity %q must be a positive number.", fields[1])
	}

	req := &domain.TradeRequest{
		Symbol: symbol,
		Type:   domain.OrderTypeMarket,
		Qty:    qty,
	}

	switch {
	case len(fields) == 2:
	case len(fields) == 4 && strings.EqualFold(fields[2], "limit"):
		price, err := decimal.NewFromString(fields[3])
		if err != nil || !price.IsPositive() {
			return nil, fmt.Errorf("Limit price %q must be a positive number.", fields[3])
		}
		req.Type = domain.OrderTypeLimit
		req.LimitPrice = &price
	default:
		return nil, errors.New("Could not parse the order.")
	}
	return req, nil
}

// parseMention extracts the user ID from Slack's <@U123|name> escape, or
// accepts a bare user ID.
func parseMention(s string) string {
	if m := mentionRE.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if strings.HasPrefix(s, "U") || strings.HasPrefix(s, "W") {
		return s
	}
	return ""
}

// formatAssignError maps manager sentinels onto user-facing text.
func formatAssignError(err error, accountID string) string {
	switch {
	case errors.Is(err, accounts.ErrUnknownAccount):
		return fmt.Sprintf("Unknown account `%s`. Use `/accounts` to list the configured accounts.", accountID)
	case errors.Is(err, accounts.ErrAccountFull):
		return fmt.Sprintf(":no_entry: Account `%s` is at its user limit.", accountID)
	case errors.Is(err, accounts.ErrAccountUnavailable):
		return fmt.Sprintf(":no_entry: Account `%s` is currently unavailable.", accountID)
	default:
		return genericErrMsg
	}
}

// formatTradeError maps engine and routing errors onto user-facing text.
func formatTradeError(err error) string {
	switch {
	case errors.Is(err, engine.ErrInvalidRequest):
		return ":warning: " + err.Error()
	case errors.Is(err, router.ErrAccountDisabled):
		return ":no_entry: Your account is currently disabled. Contact an admin."
	case errors.Is(err, accounts.ErrNoAccounts):
		return ":no_entry: No trading account is available for assignment right now."
	case errors.Is(err, risk.ErrGMVExceeded):
		return ":no_entry: Trade rejected: order value exceeds the per-trade limit."
	case errors.Is(err, risk.ErrPositionTooLarge):
		return ":no_entry: Trade rejected: the resulting position would be too large for the account."
	case errors.Is(err, risk.ErrInsufficientPower):
		return ":no_entry: Trade rejected: not enough buying power."
	default:
		return genericErrMsg
	}
}
