package broker

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradebot/internal/domain"
)

// Compile-time interface check.
var _ Broker = (*AlpacaBroker)(nil)

// AlpacaBroker implements the Broker interface against one Alpaca brokerage
// account using the official SDK.
type AlpacaBroker struct {
	accountID string
	trading   *alpaca.Client
	data      *marketdata.Client
}

// NewAlpacaBroker creates an AlpacaBroker for the account identified by
// accountID, configured with the given credentials and API endpoints.
func NewAlpacaBroker(accountID, apiKey, apiSecret, baseURL, dataURL string) *AlpacaBroker {
	dataOpts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		dataOpts.BaseURL = dataURL
	}

	return &AlpacaBroker{
		accountID: accountID,
		trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		data: marketdata.NewClient(dataOpts),
	}
}

// Name returns "alpaca".
func (b *AlpacaBroker) Name() string {
	return "alpaca"
}

// GetAccount returns the current account information from the Alpaca API.
func (b *AlpacaBroker) GetAccount(ctx context.Context) (*domain.AccountInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acct, err := b.trading.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("alpaca account %s: %w", b.accountID, err)
	}
	return &domain.AccountInfo{
		AccountID:      b.accountID,
		AccountNumber:  acct.AccountNumber,
		Currency:       acct.Currency,
		Cash:           acct.Cash,
		Equity:         acct.Equity,
		BuyingPower:    acct.BuyingPower,
		PortfolioValue: acct.PortfolioValue,
		DaytradeCount:  acct.DaytradeCount,
		PatternDay:     acct.PatternDayTrader,
		TradingBlocked: acct.TradingBlocked,
	}, nil
}

// SubmitOrder sends a trade request to the Alpaca API for execution.
func (b *AlpacaBroker) SubmitOrder(ctx context.Context, req *domain.TradeRequest) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	qty := req.Qty
	placeReq := alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          alpaca.Side(req.Side),
		Type:          alpaca.OrderType(req.Type),
		TimeInForce:   alpaca.TimeInForce(req.TimeInForce),
		LimitPrice:    req.LimitPrice,
		ClientOrderID: "tradebot-" + uuid.NewString(),
	}
	if placeReq.TimeInForce == "" {
		placeReq.TimeInForce = alpaca.Day
	}

	order, err := b.trading.PlaceOrder(placeReq)
	if err != nil {
		return nil, fmt.Errorf("placing %s %s %s: %w", req.Side, req.Qty, req.Symbol, err)
	}
	return b.toDomainOrder(order, req.UserID), nil
}

// CancelOrder requests cancellation of an open order via the Alpaca API.
func (b *AlpacaBroker) CancelOrder(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.trading.CancelOrder(orderID); err != nil {
		return fmt.Errorf("cancelling order %s: %w", orderID, err)
	}
	return nil
}

// GetPositions returns all current positions from the Alpaca account.
func (b *AlpacaBroker) GetPositions(ctx context.Context) ([]domain.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	positions, err := b.trading.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("listing positions: %w", err)
	}

	out := make([]domain.Position, 0, len(positions))
	for i := range positions {
		out = append(out, toDomainPosition(&positions[i]))
	}
	return out, nil
}

// GetPosition returns the position for a symbol. A flat symbol yields
// (nil, nil): Alpaca reports it as a 404 which is not an error here.
func (b *AlpacaBroker) GetPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pos, err := b.trading.GetPosition(symbol)
	if err != nil {
		if apiErr, ok := err.(*alpaca.APIError); ok && apiErr.StatusCode == 404 {
			return nil, nil
		}
		return nil, fmt.Errorf("position %s: %w", symbol, err)
	}
	p := toDomainPosition(pos)
	return &p, nil
}

// ListOrders returns the most recent orders for the account, newest first.
func (b *AlpacaBroker) ListOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	orders, err := b.trading.GetOrders(alpaca.GetOrdersRequest{
		Status: "all",
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	out := make([]domain.Order, 0, len(orders))
	for i := range orders {
		out = append(out, *b.toDomainOrder(&orders[i], ""))
	}
	return out, nil
}

// LatestPrice returns the last traded price for a symbol from the Alpaca
// market-data API.
func (b *AlpacaBroker) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	trade, err := b.data.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return decimal.Zero, fmt.Errorf("latest trade %s: %w", symbol, err)
	}
	return decimal.NewFromFloat(trade.Price), nil
}

// toDomainOrder converts an SDK order into the domain representation.
func (b *AlpacaBroker) toDomainOrder(o *alpaca.Order, userID string) *domain.Order {
	out := &domain.Order{
		ID:             o.ID,
		ClientOrderID:  o.ClientOrderID,
		AccountID:      b.accountID,
		UserID:         userID,
		Symbol:         o.Symbol,
		Side:           domain.OrderSide(o.Side),
		Type:           domain.OrderType(o.Type),
		Status:         domain.OrderStatus(o.Status),
		TimeInForce:    domain.TimeInForce(o.TimeInForce),
		FilledQty:      o.FilledQty,
		LimitPrice:     o.LimitPrice,
		FilledAvgPrice: o.FilledAvgPrice,
		CreatedAt:      o.CreatedAt,
		FilledAt:       o.FilledAt,
	}
	if o.Qty != nil {
		out.Qty = *o.Qty
	}
	return out
}

func toDomainPosition(p *alpaca.Position) domain.Position {
	return domain.Position{
		Symbol:        p.Symbol,
		Qty:           p.Qty,
		AvgEntryPrice: p.AvgEntryPrice,
		MarketValue:   derefDecimal(p.MarketValue),
		UnrealizedPL:  derefDecimal(p.UnrealizedPL),
		CurrentPrice:  derefDecimal(p.CurrentPrice),
		Side:          string(p.Side),
	}
}

func derefDecimal(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
