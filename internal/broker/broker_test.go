package broker

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"tradebot/internal/domain"
)

func TestAlpacaBrokerName(t *testing.T) {
	b := NewAlpacaBroker("alpaca-1", "key", "secret", "https://paper-api.alpaca.markets", "")
	if got := b.Name(); got != "alpaca" {
		t.Errorf("AlpacaBroker.Name() = %q, want %q", got, "alpaca")
	}
}

func TestSimulatorMarketBuyAndSell(t *testing.T) {
	ctx := context.Background()
	b := NewSimulatorBroker("sim-1", decimal.NewFromInt(10000))
	b.SetPrice("AAPL", decimal.NewFromInt(100))

	order, err := b.SubmitOrder(ctx, &domain.TradeRequest{
		UserID: "U1",
		Symbol: "AAPL",
		Side:   domain.OrderSideBuy,
		Type:   domain.OrderTypeMarket,
		Qty:    decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("SubmitOrder(buy) returned error: %v", err)
	}
	if order.Status != domain.OrderStatusFilled {
		t.Errorf("order.Status = %q, want %q", order.Status, domain.OrderStatusFilled)
	}
	if order.FilledAvgPrice == nil || !order.FilledAvgPrice.Equal(decimal.NewFromInt(100)) {
		t.Errorf("order.FilledAvgPrice = %v, want 100", order.FilledAvgPrice)
	}

	acct, err := b.GetAccount(ctx)
	if err != nil {
		t.Fatalf("GetAccount returned error: %v", err)
	}
	if want := decimal.NewFromInt(9000); !acct.Cash.Equal(want) {
		t.Errorf("acct.Cash = %s, want %s", acct.Cash, want)
	}
	// Equity = cash + position value = 9000 + 10*100.
	if want := decimal.NewFromInt(10000); !acct.Equity.Equal(want) {
		t.Errorf("acct.Equity = %s, want %s", acct.Equity, want)
	}

	pos, err := b.GetPosition(ctx, "AAPL")
	if err != nil {
		t.Fatalf("GetPosition returned error: %v", err)
	}
	if pos == nil || !pos.Qty.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("position = %+v, want qty 10", pos)
	}

	// Sell half at a higher price.
	b.SetPrice("AAPL", decimal.NewFromInt(110))
	if _, err := b.SubmitOrder(ctx, &domain.TradeRequest{
		UserID: "U1",
		Symbol: "AAPL",
		Side:   domain.OrderSideSell,
		Type:   domain.OrderTypeMarket,
		Qty:    decimal.NewFromInt(5),
	}); err != nil {
		t.Fatalf("SubmitOrder(sell) returned error: %v", err)
	}

	acct, _ = b.GetAccount(ctx)
	if want := decimal.NewFromInt(9550); !acct.Cash.Equal(want) {
		t.Errorf("acct.Cash after sell = %s, want %s", acct.Cash, want)
	}
}

func TestSimulatorRejectsInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	b := NewSimulatorBroker("sim-1", decimal.NewFromInt(100))
	b.SetPrice("TSLA", decimal.NewFromInt(500))

	_, err := b.SubmitOrder(ctx, &domain.TradeRequest{
		Symbol: "TSLA",
		Side:   domain.OrderSideBuy,
		Type:   domain.OrderTypeMarket,
		Qty:    decimal.NewFromInt(1),
	})
	if err == nil {
		t.Fatal("SubmitOrder should fail on insufficient cash")
	}
}

func TestSimulatorRejectsOversell(t *testing.T) {
	ctx := context.Background()
	b := NewSimulatorBroker("sim-1", decimal.NewFromInt(10000))
	b.SetPrice("AAPL", decimal.NewFromInt(100))

	_, err := b.SubmitOrder(ctx, &domain.TradeRequest{
		Symbol: "AAPL",
		Side:   domain.OrderSideSell,
		Type:   domain.OrderTypeMarket,
		Qty:    decimal.NewFromInt(1),
	})
	if err == nil {
		t.Fatal("SubmitOrder should fail when selling with no position")
	}
}

func TestSimulatorLimitOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	b := NewSimulatorBroker("sim-1", decimal.NewFromInt(10000))
	b.SetPrice("AAPL", decimal.NewFromInt(100))

	limit := decimal.NewFromInt(95)
	order, err := b.SubmitOrder(ctx, &domain.TradeRequest{
		Symbol:     "AAPL",
		Side:       domain.OrderSideBuy,
		Type:       domain.OrderTypeLimit,
		Qty:        decimal.NewFromInt(10),
		LimitPrice: &limit,
	})
	if err != nil {
		t.Fatalf("SubmitOrder(limit) returned error: %v", err)
	}
	if order.Status != domain.OrderStatusAccepted {
		t.Errorf("limit order status = %q, want %q", order.Status, domain.OrderStatusAccepted)
	}

	if err := b.CancelOrder(ctx, order.ID); err != nil {
		t.Fatalf("CancelOrder returned error: %v", err)
	}

	orders, err := b.ListOrders(ctx, 10)
	if err != nil {
		t.Fatalf("ListOrders returned error: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("len(orders) = %d, want 1", len(orders))
	}
	if orders[0].Status != domain.OrderStatusCancelled {
		t.Errorf("orders[0].Status = %q, want %q", orders[0].Status, domain.OrderStatusCancelled)
	}

	// Cancelling an unknown order is an error.
	if err := b.CancelOrder(ctx, "nope"); err == nil {
		t.Error("CancelOrder(nope) should fail")
	}
}

func TestSimulatorAveragesEntryPrice(t *testing.T) {
	ctx := context.Background()
	b := NewSimulatorBroker("sim-1", decimal.NewFromInt(100000))
	b.SetPrice("AAPL", decimal.NewFromInt(100))

	buy := func(qty int64) {
		t.Helper()
		if _, err := b.SubmitOrder(ctx, &domain.TradeRequest{
			Symbol: "AAPL",
			Side:   domain.OrderSideBuy,
			Type:   domain.OrderTypeMarket,
			Qty:    decimal.NewFromInt(qty),
		}); err != nil {
			t.Fatalf("buy failed: %v", err)
		}
	}

	buy(10)
	b.SetPrice("AAPL", decimal.NewFromInt(200))
	buy(10)

	pos, _ := b.GetPosition(ctx, "AAPL")
	if pos == nil {
		t.Fatal("expected position")
	}
	if want := decimal.NewFromInt(150); !pos.AvgEntryPrice.Equal(want) {
		t.Errorf("AvgEntryPrice = %s, want %s", pos.AvgEntryPrice, want)
	}
}
