package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradebot/internal/domain"
)

// Compile-time interface check.
var _ Broker = (*SimulatorBroker)(nil)

// SimulatorBroker implements the Broker interface for paper trading and
// tests. Market orders fill immediately at the configured price; limit orders
// stay open until cancelled. No external calls are made.
type SimulatorBroker struct {
	accountID string

	mu        sync.Mutex
	cash      decimal.Decimal
	prices    map[string]decimal.Decimal
	positions map[string]*domain.Position
	orders    map[string]*domain.Order
	seq       int
}

// NewSimulatorBroker creates a SimulatorBroker with the given starting cash.
func NewSimulatorBroker(accountID string, startingCash decimal.Decimal) *SimulatorBroker {
	return &SimulatorBroker{
		accountID: accountID,
		cash:      startingCash,
		prices:    make(map[string]decimal.Decimal),
		positions: make(map[string]*domain.Position),
		orders:    make(map[string]*domain.Order),
	}
}

// SetPrice sets the simulated market price for a symbol.
func (b *SimulatorBroker) SetPrice(symbol string, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices[symbol] = price
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// GetAccount returns simulated account information. Equity is cash plus the
// marked-to-market value of all positions.
func (b *SimulatorBroker) GetAccount(_ context.Context) (*domain.AccountInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	equity := b.cash
	for sym, pos := range b.positions {
		if price, ok := b.prices[sym]; ok {
			equity = equity.Add(pos.Qty.Mul(price))
		} else {
			equity = equity.Add(pos.Qty.Mul(pos.AvgEntryPrice))
		}
	}

	return &domain.AccountInfo{
		AccountID:      b.accountID,
		AccountNumber:  "SIM-" + b.accountID,
		Currency:       "USD",
		Cash:           b.cash,
		Equity:         equity,
		BuyingPower:    b.cash,
		PortfolioValue: equity,
	}, nil
}

// SubmitOrder records the order and simulates execution. Market orders fill
// at the current simulated price; limit orders are accepted and left open.
func (b *SimulatorBroker) SubmitOrder(_ context.Context, req *domain.TradeRequest) (*domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	price, ok := b.prices[req.Symbol]
	if !ok {
		return nil, fmt.Errorf("simulator: no price for %s", req.Symbol)
	}

	b.seq++
	now := time.Now()
	order := &domain.Order{
		ID:            fmt.Sprintf("sim-%d", b.seq),
		ClientOrderID: "tradebot-" + uuid.NewString(),
		AccountID:     b.accountID,
		UserID:        req.UserID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		TimeInForce:   req.TimeInForce,
		Qty:           req.Qty,
		LimitPrice:    req.LimitPrice,
		CreatedAt:     now,
	}

	if req.Type != domain.OrderTypeMarket {
		order.Status = domain.OrderStatusAccepted
		b.orders[order.ID] = order
		return order, nil
	}

	if err := b.fill(req, price); err != nil {
		return nil, err
	}

	filled := now
	order.Status = domain.OrderStatusFilled
	order.FilledQty = req.Qty
	order.FilledAvgPrice = &price
	order.FilledAt = &filled
	b.orders[order.ID] = order
	return order, nil
}

// fill applies the cash and position effects of an immediate execution.
// Must be called with mu held.
func (b *SimulatorBroker) fill(req *domain.TradeRequest, price decimal.Decimal) error {
	notional := price.Mul(req.Qty)
	pos := b.positions[req.Symbol]

	switch req.Side {
	case domain.OrderSideBuy:
		if b.cash.LessThan(notional) {
			return fmt.Errorf("simulator: insufficient cash: have %s, need %s", b.cash, notional)
		}
		b.cash = b.cash.Sub(notional)
		if pos == nil {
			b.positions[req.Symbol] = &domain.Position{
				Symbol:        req.Symbol,
				Qty:           req.Qty,
				AvgEntryPrice: price,
				Side:          "long",
			}
		} else {
			total := pos.Qty.Add(req.Qty)
			pos.AvgEntryPrice = pos.AvgEntryPrice.Mul(pos.Qty).Add(notional).Div(total)
			pos.Qty = total
		}

	case domain.OrderSideSell:
		if pos == nil || pos.Qty.LessThan(req.Qty) {
			return fmt.Errorf("simulator: insufficient position in %s", req.Symbol)
		}
		b.cash = b.cash.Add(notional)
		pos.Qty = pos.Qty.Sub(req.Qty)
		if pos.Qty.IsZero() {
			delete(b.positions, req.Symbol)
		}

	default:
		return fmt.Errorf("simulator: unknown side %q", req.Side)
	}
	return nil
}

// CancelOrder marks an open order as cancelled.
func (b *SimulatorBroker) CancelOrder(_ context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("simulator: unknown order %s", orderID)
	}
	if o.Status == domain.OrderStatusFilled {
		return fmt.Errorf("simulator: order %s already filled", orderID)
	}
	o.Status = domain.OrderStatusCancelled
	return nil
}

// GetPositions returns all simulated positions marked to the current price.
func (b *SimulatorBroker) GetPositions(_ context.Context) ([]domain.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	positions := make([]domain.Position, 0, len(b.positions))
	for sym, p := range b.positions {
		out := *p
		if price, ok := b.prices[sym]; ok {
			out.CurrentPrice = price
			out.MarketValue = p.Qty.Mul(price)
			out.UnrealizedPL = price.Sub(p.AvgEntryPrice).Mul(p.Qty)
		}
		positions = append(positions, out)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })
	return positions, nil
}

// GetPosition returns the simulated position for a symbol, or nil when flat.
func (b *SimulatorBroker) GetPosition(_ context.Context, symbol string) (*domain.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.positions[symbol]
	if !ok {
		return nil, nil
	}
	out := *p
	if price, ok := b.prices[symbol]; ok {
		out.CurrentPrice = price
		out.MarketValue = p.Qty.Mul(price)
		out.UnrealizedPL = price.Sub(p.AvgEntryPrice).Mul(p.Qty)
	}
	return &out, nil
}

// ListOrders returns simulated orders, newest first.
func (b *SimulatorBroker) ListOrders(_ context.Context, limit int) ([]domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	orders := make([]domain.Order, 0, len(b.orders))
	for _, o := range b.orders {
		orders = append(orders, *o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

// LatestPrice returns the simulated price for a symbol.
func (b *SimulatorBroker) LatestPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	price, ok := b.prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("simulator: no price for %s", symbol)
	}
	return price, nil
}
