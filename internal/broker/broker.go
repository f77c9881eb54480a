// Package broker defines the Broker interface and provides implementations
// for executing orders and managing accounts across different brokerages.
package broker

import (
	"context"

	"github.com/shopspring/decimal"

	"tradebot/internal/domain"
)

// Broker abstracts brokerage operations for order execution and account
// management. Each configured brokerage account gets its own Broker.
type Broker interface {
	// Name returns the broker identifier (e.g. "alpaca", "simulator").
	Name() string

	// GetAccount returns a snapshot of the account's financial metrics.
	GetAccount(ctx context.Context) (*domain.AccountInfo, error)

	// SubmitOrder sends a trade request to the brokerage for execution.
	SubmitOrder(ctx context.Context, req *domain.TradeRequest) (*domain.Order, error)

	// CancelOrder requests cancellation of an open order by its ID.
	CancelOrder(ctx context.Context, orderID string) error

	// GetPositions returns all current positions held at the brokerage.
	GetPositions(ctx context.Context) ([]domain.Position, error)

	// GetPosition returns the position for a single symbol, or nil when flat.
	GetPosition(ctx context.Context, symbol string) (*domain.Position, error)

	// ListOrders returns the most recent orders, newest first, up to limit.
	ListOrders(ctx context.Context, limit int) ([]domain.Order, error)

	// LatestPrice returns the last traded price for a symbol.
	LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}
