package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestGMV(t *testing.T) {
	req := TradeRequest{
		Symbol: "AAPL",
		Side:   OrderSideBuy,
		Type:   OrderTypeMarket,
		Qty:    decimal.NewFromInt(10),
	}

	ref := decimal.NewFromFloat(150.25)
	if got, want := req.GMV(ref), decimal.NewFromFloat(1502.5); !got.Equal(want) {
		t.Errorf("GMV(market) = %s, want %s", got, want)
	}

	// Limit orders use the limit price, not the reference price.
	limit := decimal.NewFromFloat(148)
	req.Type = OrderTypeLimit
	req.LimitPrice = &limit
	if got, want := req.GMV(ref), decimal.NewFromInt(1480); !got.Equal(want) {
		t.Errorf("GMV(limit) = %s, want %s", got, want)
	}
}

func TestLevelForScore(t *testing.T) {
	cases := []struct {
		score int
		want  RiskLevel
	}{
		{0, RiskLevelLow},
		{33, RiskLevelLow},
		{34, RiskLevelModerate},
		{66, RiskLevelModerate},
		{67, RiskLevelHigh},
		{100, RiskLevelHigh},
	}
	for _, c := range cases {
		if got := LevelForScore(c.score); got != c.want {
			t.Errorf("LevelForScore(%d) = %q, want %q", c.score, got, c.want)
		}
	}
}

func TestEnumValues(t *testing.T) {
	if OrderSideBuy != "buy" || OrderSideSell != "sell" {
		t.Error("OrderSide constants have unexpected values")
	}
	if OrderStatusCancelled != "canceled" {
		t.Errorf("OrderStatusCancelled = %q, want %q", OrderStatusCancelled, "canceled")
	}
	if AccountStatusActive != "active" || AccountStatusDisabled != "disabled" {
		t.Error("AccountStatus constants have unexpected values")
	}
}

func TestAssignmentZeroValue(t *testing.T) {
	a := Assignment{}
	if a.IsActive {
		t.Error("zero-value Assignment must be inactive")
	}
	if !a.AssignedAt.IsZero() {
		t.Error("expected zero AssignedAt for zero-value Assignment")
	}

	now := time.Now()
	a = Assignment{UserID: "U123", AccountID: "alpaca-1", AssignedAt: now, AssignedBy: "system", Reason: "auto", IsActive: true}
	if a.AccountID != "alpaca-1" {
		t.Errorf("a.AccountID = %q, want %q", a.AccountID, "alpaca-1")
	}
}
