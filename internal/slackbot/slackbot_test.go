package slackbot

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/slack-go/slack"

	"tradebot/internal/accounts"
	"tradebot/internal/domain"
	"tradebot/internal/engine"
	"tradebot/internal/risk"
	"tradebot/internal/router"
)

func TestParseTradeText(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		wantErr bool
		symbol  string
		qty     string
		typ     domain.OrderType
		limit   string
	}{
		{name: "market", text: "AAPL 10", symbol: "AAPL", qty: "10", typ: domain.OrderTypeMarket},
		{name: "lowercase symbol", text: "aapl 10", symbol: "AAPL", qty: "10", typ: domain.OrderTypeMarket},
		{name: "fractional qty", text: "AAPL 0.5", symbol: "AAPL", qty: "0.5", typ: domain.OrderTypeMarket},
		{name: "limit", text: "MSFT 5 limit 410.25", symbol: "MSFT", qty: "5", typ: domain.OrderTypeLimit, limit: "410.25"},
		{name: "limit keyword case", text: "MSFT 5 LIMIT 410", symbol: "MSFT", qty: "5", typ: domain.OrderTypeLimit, limit: "410"},
		{name: "empty", text: "", wantErr: true},
		{name: "missing qty", text: "AAPL", wantErr: true},
		{name: "bad qty", text: "AAPL ten", wantErr: true},
		{name: "negative qty", text: "AAPL -5", wantErr: true},
		{name: "limit missing price", text: "AAPL 10 limit", wantErr: true},
		{name: "bad limit price", text: "AAPL 10 limit abc", wantErr: true},
		{name: "trailing junk", text: "AAPL 10 yolo now", wantErr: true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req, err := parseTradeText(c.text)
			if c.wantErr {
				if err == nil {
					t.Fatalf("parseTradeText(%q) = %+v, want error", c.text, req)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseTradeText(%q) returned error: %v", c.text, err)
			}
			if req.Symbol != c.symbol {
				t.Errorf("symbol = %q, want %q", req.Symbol, c.symbol)
			}
			if req.Qty.String() != c.qty {
				t.Errorf("qty = %s, want %s", req.Qty, c.qty)
			}
			if req.Type != c.typ {
				t.Errorf("type = %q, want %q", req.Type, c.typ)
			}
			if c.limit == "" {
				if req.LimitPrice != nil {
					t.Errorf("limit price = %v, want nil", req.LimitPrice)
				}
			} else if req.LimitPrice == nil || req.LimitPrice.String() != c.limit {
				t.Errorf("limit price = %v, want %s", req.LimitPrice, c.limit)
			}
		})
	}
}

func TestParseMention(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"<@U12345>", "U12345"},
		{"<@U12345|alice>", "U12345"},
		{"<@W12345|bob>", "W12345"},
		{"U12345", "U12345"},
		{"alice", ""},
		{"<#C12345|general>", ""},
	}
	for _, c := range cases {
		if got := parseMention(c.in); got != c.want {
			t.Errorf("parseMention(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func modalState(symbol, side, qty, orderType, limit string) map[string]map[string]slack.BlockAction {
	return map[string]map[string]slack.BlockAction{
		blockSymbol: {actionSymbol: {Value: symbol}},
		blockSide:   {actionSide: {SelectedOption: slack.OptionBlockObject{Value: side}}},
		blockQty:    {actionQty: {Value: qty}},
		blockType:   {actionType: {SelectedOption: slack.OptionBlockObject{Value: orderType}}},
		blockLimit:  {actionLimit: {Value: limit}},
	}
}

func TestParseTradeModalState(t *testing.T) {
	req, fieldErrs := parseTradeModalState(modalState("aapl", "buy", "10", "market", ""))
	if len(fieldErrs) != 0 {
		t.Fatalf("field errors = %v, want none", fieldErrs)
	}
	if req.Symbol != "AAPL" || req.Side != domain.OrderSideBuy || req.Type != domain.OrderTypeMarket {
		t.Errorf("request = %+v", req)
	}
	if !req.Qty.Equal(decimal.NewFromInt(10)) {
		t.Errorf("qty = %s, want 10", req.Qty)
	}

	req, fieldErrs = parseTradeModalState(modalState("MSFT", "sell", "5", "limit", "410.25"))
	if len(fieldErrs) != 0 {
		t.Fatalf("field errors = %v, want none", fieldErrs)
	}
	if req.LimitPrice == nil || req.LimitPrice.String() != "410.25" {
		t.Errorf("limit price = %v, want 410.25", req.LimitPrice)
	}
}

func TestParseTradeModalStateErrors(t *testing.T) {
	cases := []struct {
		name      string
		state     map[string]map[string]slack.BlockAction
		wantBlock string
	}{
		{"empty symbol", modalState("", "buy", "10", "market", ""), blockSymbol},
		{"bad qty", modalState("AAPL", "buy", "ten", "market", ""), blockQty},
		{"zero qty", modalState("AAPL", "buy", "0", "market", ""), blockQty},
		{"limit without price", modalState("AAPL", "buy", "10", "limit", ""), blockLimit},
		{"market with price", modalState("AAPL", "buy", "10", "market", "100"), blockLimit},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req, fieldErrs := parseTradeModalState(c.state)
			if req != nil {
				t.Fatalf("request = %+v, want nil", req)
			}
			if _, ok := fieldErrs[c.wantBlock]; !ok {
				t.Errorf("field errors = %v, want entry for %s", fieldErrs, c.wantBlock)
			}
		})
	}
}

func TestBuildTradeModal(t *testing.T) {
	modal := buildTradeModal("C123", "AAPL", "10")

	if modal.CallbackID != tradeModalCallbackID {
		t.Errorf("callback ID = %q, want %q", modal.CallbackID, tradeModalCallbackID)
	}
	if modal.PrivateMetadata != "C123" {
		t.Errorf("private metadata = %q, want channel ID", modal.PrivateMetadata)
	}
	if got := len(modal.Blocks.BlockSet); got != 5 {
		t.Fatalf("block count = %d, want 5", got)
	}

	input, ok := modal.Blocks.BlockSet[0].(*slack.InputBlock)
	if !ok {
		t.Fatalf("first block is %T, want *slack.InputBlock", modal.Blocks.BlockSet[0])
	}
	text, ok := input.Element.(*slack.PlainTextInputBlockElement)
	if !ok {
		t.Fatalf("symbol element is %T, want plain text input", input.Element)
	}
	if text.InitialValue != "AAPL" {
		t.Errorf("symbol prefill = %q, want AAPL", text.InitialValue)
	}

	limitBlock, ok := modal.Blocks.BlockSet[4].(*slack.InputBlock)
	if !ok || !limitBlock.Optional {
		t.Error("limit price block must be optional")
	}
}

func TestFormatTradeResult(t *testing.T) {
	price := decimal.NewFromFloat(185.5)
	result := &engine.TradeResult{
		Order: &domain.Order{
			ID:             "ord-1",
			Symbol:         "AAPL",
			Side:           domain.OrderSideBuy,
			Status:         domain.OrderStatusFilled,
			Qty:            decimal.NewFromInt(10),
			FilledAvgPrice: &price,
		},
		Assignment: &domain.Assignment{AccountID: "acct-1"},
		Analysis: &domain.RiskAnalysis{
			Score:      72,
			Level:      domain.RiskLevelHigh,
			Commentary: "Concentrated position.",
			FromCache:  true,
		},
		RefPrice:   price,
		MarketOpen: false,
	}

	got := formatTradeResult(result)
	for _, want := range []string{"Filled", "AAPL", "$185.50", "acct-1", "72/100", "(cached)", "market is closed", "Concentrated position."} {
		if !strings.Contains(got, want) {
			t.Errorf("formatTradeResult output missing %q:\n%s", want, got)
		}
	}
}

func TestFormatTradeError(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{router.ErrAccountDisabled, "disabled"},
		{accounts.ErrNoAccounts, "No trading account"},
		{risk.ErrGMVExceeded, "per-trade limit"},
		{risk.ErrInsufficientPower, "buying power"},
		{errors.New("mystery"), "Something went wrong"},
	}
	for _, c := range cases {
		if got := formatTradeError(c.err); !strings.Contains(got, c.want) {
			t.Errorf("formatTradeError(%v) = %q, want substring %q", c.err, got, c.want)
		}
	}
}

func TestFormatAuditEvent(t *testing.T) {
	e := accounts.Event{
		Type: "assigned",
		Assignment: domain.Assignment{
			UserID:     "U1",
			AccountID:  "acct-1",
			AssignedBy: "system",
			Reason:     "auto:round_robin",
			AssignedAt: time.Now(),
		},
	}
	got := formatAuditEvent(e)
	for _, want := range []string{"<@U1>", "acct-1", "auto:round_robin"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatAuditEvent output missing %q: %s", want, got)
		}
	}
}

func TestFormatAccountUsers(t *testing.T) {
	if got := formatAccountUsers("Desk A", nil); !strings.Contains(got, "no assigned users") {
		t.Errorf("empty account output = %q", got)
	}
	got := formatAccountUsers("Desk A", []string{"U1", "U2"})
	for _, want := range []string{"<@U1>", "<@U2>", "(2)"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q: %s", want, got)
		}
	}
}
