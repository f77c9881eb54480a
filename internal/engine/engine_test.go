package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"tradebot/internal/accounts"
	"tradebot/internal/broker"
	"tradebot/internal/config"
	"tradebot/internal/domain"
	"tradebot/internal/risk"
	"tradebot/internal/router"
)

// staticAnalyzer returns a fixed assessment without touching any LLM.
type staticAnalyzer struct{ score int }

func (s staticAnalyzer) Analyze(_ context.Context, _ *domain.TradeRequest, _ *domain.AccountInfo, _ decimal.Decimal) *domain.RiskAnalysis {
	return &domain.RiskAnalysis{Score: s.score, Level: domain.LevelForScore(s.score)}
}

// memJournal collects recorded orders in memory.
type memJournal struct {
	mu     sync.Mutex
	orders []domain.Order
}

func (j *memJournal) Record(_ context.Context, o *domain.Order) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.orders = append(j.orders, *o)
	return nil
}

func (j *memJournal) OrdersForUser(_ context.Context, userID string, limit int) ([]domain.Order, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []domain.Order
	for i := len(j.orders) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if j.orders[i].UserID == userID {
			out = append(out, j.orders[i])
		}
	}
	return out, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEngine(t *testing.T) (*Engine, *broker.SimulatorBroker, *memJournal) {
	t.Helper()
	sim := broker.NewSimulatorBroker("sim-1", decimal.NewFromInt(100000))
	sim.SetPrice("AAPL", decimal.NewFromInt(100))

	mgr := accounts.NewManager(
		[]config.Account{{ID: "sim-1", Name: "Sim"}},
		accounts.LeastLoaded{},
		filepath.Join(t.TempDir(), "a.json"),
		quietLogger(),
	)
	r := router.New(mgr, map[string]broker.Broker{"sim-1": sim}, quietLogger())
	limits := risk.NewLimits(config.RiskConfig{MaxTradeGMV: 50000, MaxPositionPct: 0.5})
	journal := &memJournal{}
	return New(r, limits, staticAnalyzer{score: 35}, journal, quietLogger()), sim, journal
}

func buyRequest(qty int64) *domain.TradeRequest {
	return &domain.TradeRequest{
		UserID: "U1",
		Symbol: "AAPL",
		Side:   domain.OrderSideBuy,
		Type:   domain.OrderTypeMarket,
		Qty:    decimal.NewFromInt(qty),
	}
}

func TestExecuteTrade(t *testing.T) {
	e, _, journal := newTestEngine(t)

	result, err := e.ExecuteTrade(context.Background(), buyRequest(10), "")
	if err != nil {
		t.Fatalf("ExecuteTrade returned error: %v", err)
	}

	if result.Order.Status != domain.OrderStatusFilled {
		t.Errorf("order status = %q, want filled", result.Order.Status)
	}
	if result.Order.RiskScore != 35 {
		t.Errorf("order risk score = %d, want 35", result.Order.RiskScore)
	}
	if result.Assignment == nil || result.Assignment.AccountID != "sim-1" {
		t.Errorf("assignment = %+v, want sim-1", result.Assignment)
	}
	if result.Analysis == nil || result.Analysis.Level != domain.RiskLevelModerate {
		t.Errorf("analysis = %+v, want moderate", result.Analysis)
	}
	if !result.RefPrice.Equal(decimal.NewFromInt(100)) {
		t.Errorf("RefPrice = %s, want 100", result.RefPrice)
	}

	if len(journal.orders) != 1 {
		t.Fatalf("journaled orders = %d, want 1", len(journal.orders))
	}
	if journal.orders[0].UserID != "U1" {
		t.Errorf("journaled UserID = %q, want U1", journal.orders[0].UserID)
	}
}

func TestExecuteTradeValidation(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  *domain.TradeRequest
	}{
		{"empty symbol", &domain.TradeRequest{UserID: "U1", Side: domain.OrderSideBuy, Type: domain.OrderTypeMarket, Qty: decimal.NewFromInt(1)}},
		{"zero qty", &domain.TradeRequest{UserID: "U1", Symbol: "AAPL", Side: domain.OrderSideBuy, Type: domain.OrderTypeMarket}},
		{"bad side", &domain.TradeRequest{UserID: "U1", Symbol: "AAPL", Side: "hold", Type: domain.OrderTypeMarket, Qty: decimal.NewFromInt(1)}},
		{"limit without price", &domain.TradeRequest{UserID: "U1", Symbol: "AAPL", Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit, Qty: decimal.NewFromInt(1)}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := e.ExecuteTrade(ctx, c.req, ""); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestExecuteTradeLimitRejection(t *testing.T) {
	e, _, journal := newTestEngine(t)

	// 600 × 100 = 60000 GMV > 50000 limit.
	_, err := e.ExecuteTrade(context.Background(), buyRequest(600), "")
	if !errors.Is(err, risk.ErrGMVExceeded) {
		t.Fatalf("error = %v, want ErrGMVExceeded", err)
	}
	if len(journal.orders) != 0 {
		t.Error("rejected trade must not be journaled")
	}
}

func TestExecuteTradeSymbolNormalized(t *testing.T) {
	e, _, _ := newTestEngine(t)

	req := buyRequest(1)
	req.Symbol = " aapl "
	result, err := e.ExecuteTrade(context.Background(), req, "")
	if err != nil {
		t.Fatalf("ExecuteTrade returned error: %v", err)
	}
	if result.Order.Symbol != "AAPL" {
		t.Errorf("order symbol = %q, want AAPL", result.Order.Symbol)
	}
}

func TestAccountSnapshotAndPositions(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.ExecuteTrade(ctx, buyRequest(10), ""); err != nil {
		t.Fatal(err)
	}

	acct, assignment, err := e.AccountSnapshot(ctx, "U1", "")
	if err != nil {
		t.Fatalf("AccountSnapshot returned error: %v", err)
	}
	if assignment.AccountID != "sim-1" {
		t.Errorf("assignment = %q, want sim-1", assignment.AccountID)
	}
	if want := decimal.NewFromInt(99000); !acct.Cash.Equal(want) {
		t.Errorf("cash = %s, want %s", acct.Cash, want)
	}

	positions, _, err := e.Positions(ctx, "U1", "")
	if err != nil {
		t.Fatalf("Positions returned error: %v", err)
	}
	if len(positions) != 1 || positions[0].Symbol != "AAPL" {
		t.Errorf("positions = %+v, want one AAPL position", positions)
	}
}

func TestRecentOrders(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	for range 3 {
		if _, err := e.ExecuteTrade(ctx, buyRequest(1), ""); err != nil {
			t.Fatal(err)
		}
	}

	orders, err := e.RecentOrders(ctx, "U1", 2)
	if err != nil {
		t.Fatalf("RecentOrders returned error: %v", err)
	}
	if len(orders) != 2 {
		t.Errorf("len(orders) = %d, want 2", len(orders))
	}
}

func TestCancelOrder(t *testing.T) {
	e, sim, _ := newTestEngine(t)
	ctx := context.Background()

	limit := decimal.NewFromInt(90)
	req := &domain.TradeRequest{
		UserID:     "U1",
		Symbol:     "AAPL",
		Side:       domain.OrderSideBuy,
		Type:       domain.OrderTypeLimit,
		Qty:        decimal.NewFromInt(5),
		LimitPrice: &limit,
	}
	result, err := e.ExecuteTrade(ctx, req, "")
	if err != nil {
		t.Fatalf("ExecuteTrade returned error: %v", err)
	}

	if err := e.CancelOrder(ctx, "U1", "", result.Order.ID); err != nil {
		t.Fatalf("CancelOrder returned error: %v", err)
	}

	orders, _ := sim.ListOrders(ctx, 10)
	if orders[0].Status != domain.OrderStatusCancelled {
		t.Errorf("order status = %q, want canceled", orders[0].Status)
	}
}
