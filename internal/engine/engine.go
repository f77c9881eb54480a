// Package engine coordinates trade execution: validation, routing, risk
// checks, broker submission, and journaling.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradebot/internal/domain"
	"tradebot/internal/risk"
	"tradebot/internal/router"
	"tradebot/internal/util"
)

// ErrInvalidRequest wraps request validation failures.
var ErrInvalidRequest = errors.New("engine: invalid trade request")

// Analyzer produces advisory risk assessments.
type Analyzer interface {
	Analyze(ctx context.Context, req *domain.TradeRequest, acct *domain.AccountInfo, price decimal.Decimal) *domain.RiskAnalysis
}

// Journal records executed orders for later queries.
type Journal interface {
	Record(ctx context.Context, order *domain.Order) error
	OrdersForUser(ctx context.Context, userID string, limit int) ([]domain.Order, error)
}

// TradeResult is everything a handler needs to report an executed trade.
type TradeResult struct {
	Order      *domain.Order
	Assignment *domain.Assignment
	Analysis   *domain.RiskAnalysis
	RefPrice   decimal.Decimal
	MarketOpen bool
}

// Engine orchestrates the trading lifecycle by delegating to the router for
// account resolution, the risk layer for pre-trade checks, a broker for
// execution, and the journal for persistence.
type Engine struct {
	router   *router.MultiBroker
	limits   *risk.Limits
	analyzer Analyzer
	journal  Journal
	log      *slog.Logger
}

// New creates an Engine wired with the given dependencies. journal may be
// nil, in which case orders are not recorded.
func New(r *router.MultiBroker, limits *risk.Limits, analyzer Analyzer, journal Journal, log *slog.Logger) *Engine {
	return &Engine{
		router:   r,
		limits:   limits,
		analyzer: analyzer,
		journal:  journal,
		log:      log,
	}
}

// ExecuteTrade validates the request, routes it to the user's account, runs
// the hard limit checks and the advisory risk analysis, and submits the
// order. The analysis is attached to the result but never blocks execution.
func (e *Engine) ExecuteTrade(ctx context.Context, req *domain.TradeRequest, department string) (*TradeResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	b, assignment, err := e.router.ForUser(ctx, req.UserID, department)
	if err != nil {
		return nil, err
	}

	acct, err := b.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching account %s: %w", assignment.AccountID, err)
	}

	price, err := b.LatestPrice(ctx, req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("pricing %s: %w", req.Symbol, err)
	}

	if err := e.limits.Check(req, acct, price); err != nil {
		e.log.Info("trade rejected by limits",
			"user", req.UserID, "symbol", req.Symbol, "err", err)
		return nil, err
	}

	analysis := e.analyzer.Analyze(ctx, req, acct, price)

	order, err := b.SubmitOrder(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("submitting order: %w", err)
	}
	order.RiskScore = analysis.Score

	if e.journal != nil {
		if jerr := e.journal.Record(ctx, order); jerr != nil {
			// The trade already happened; a journal failure is an
			// observability gap, not a trade failure.
			e.log.Error("journaling order", "order", order.ID, "err", jerr)
		}
	}

	e.log.Info("trade executed",
		"user", req.UserID,
		"account", assignment.AccountID,
		"symbol", req.Symbol,
		"side", req.Side,
		"qty", req.Qty,
		"status", order.Status,
		"risk", analysis.Score,
	)

	return &TradeResult{
		Order:      order,
		Assignment: assignment,
		Analysis:   analysis,
		RefPrice:   price,
		MarketOpen: util.IsMarketOpen(time.Now()),
	}, nil
}

// CancelOrder cancels an open order on the user's account.
func (e *Engine) CancelOrder(ctx context.Context, userID, department, orderID string) error {
	b, _, err := e.router.ForUser(ctx, userID, department)
	if err != nil {
		return err
	}
	return b.CancelOrder(ctx, orderID)
}

// AccountSnapshot returns the user's assignment and a live account snapshot.
func (e *Engine) AccountSnapshot(ctx context.Context, userID, department string) (*domain.AccountInfo, *domain.Assignment, error) {
	b, assignment, err := e.router.ForUser(ctx, userID, department)
	if err != nil {
		return nil, nil, err
	}
	acct, err := b.GetAccount(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching account %s: %w", assignment.AccountID, err)
	}
	return acct, assignment, nil
}

// Positions returns all positions on the user's account.
func (e *Engine) Positions(ctx context.Context, userID, department string) ([]domain.Position, *domain.Assignment, error) {
	b, assignment, err := e.router.ForUser(ctx, userID, department)
	if err != nil {
		return nil, nil, err
	}
	positions, err := b.GetPositions(ctx)
	if err != nil {
		return nil, nil, err
	}
	return positions, assignment, nil
}

// RecentOrders returns the user's journaled orders, newest first.
func (e *Engine) RecentOrders(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	if e.journal == nil {
		return nil, nil
	}
	return e.journal.OrdersForUser(ctx, userID, limit)
}

// validate applies field-level checks before any network call.
func validate(req *domain.TradeRequest) error {
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Symbol == "" || len(req.Symbol) > 10 {
		return fmt.Errorf("%w: bad symbol %q", ErrInvalidRequest, req.Symbol)
	}
	if req.Side != domain.OrderSideBuy && req.Side != domain.OrderSideSell {
		return fmt.Errorf("%w: bad side %q", ErrInvalidRequest, req.Side)
	}
	if !req.Qty.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidRequest)
	}
	switch req.Type {
	case domain.OrderTypeMarket:
		if req.LimitPrice != nil {
			return fmt.Errorf("%w: market order with limit price", ErrInvalidRequest)
		}
	case domain.OrderTypeLimit:
		if req.LimitPrice == nil || !req.LimitPrice.IsPositive() {
			return fmt.Errorf("%w: limit order needs a positive limit price", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unsupported order type %q", ErrInvalidRequest, req.Type)
	}
	if req.TimeInForce == "" {
		req.TimeInForce = domain.TimeInForceDay
	}
	return nil
}
