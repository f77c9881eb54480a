// Package domain defines the core types shared across the trading bot:
// trade requests, orders, positions, account snapshots, user→account
// assignments, and risk analysis results.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType identifies how an order is priced.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// OrderStatus is the lifecycle state of an order as reported by the broker.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusAccepted        OrderStatus = "accepted"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "canceled"
	OrderStatusRejected        OrderStatus = "rejected"
)

// TimeInForce controls how long an order remains working.
type TimeInForce string

const (
	TimeInForceDay TimeInForce = "day"
	TimeInForceGTC TimeInForce = "gtc"
	TimeInForceIOC TimeInForce = "ioc"
)

// TradeRequest is a user's intent to trade, parsed from a slash command or a
// modal submission, before it has been routed to an account.
type TradeRequest struct {
	UserID      string
	UserName    string
	ChannelID   string
	Symbol      string
	Side        OrderSide
	Type        OrderType
	Qty         decimal.Decimal
	LimitPrice  *decimal.Decimal // nil for market orders
	TimeInForce TimeInForce
}

// GMV returns the gross monetary value (price × quantity) of the request
// given a reference price. For limit orders the limit price wins.
func (r *TradeRequest) GMV(refPrice decimal.Decimal) decimal.Decimal {
	price := refPrice
	if r.LimitPrice != nil {
		price = *r.LimitPrice
	}
	return price.Mul(r.Qty)
}

// Order is a broker-acknowledged order.
type Order struct {
	ID             string
	ClientOrderID  string
	AccountID      string
	UserID         string
	Symbol         string
	Side           OrderSide
	Type           OrderType
	Status         OrderStatus
	TimeInForce    TimeInForce
	Qty            decimal.Decimal
	FilledQty      decimal.Decimal
	LimitPrice     *decimal.Decimal
	FilledAvgPrice *decimal.Decimal
	RiskScore      int // 0 when no analysis was attached
	CreatedAt      time.Time
	FilledAt       *time.Time
}

// Position is a holding at a brokerage account.
type Position struct {
	Symbol        string
	Qty           decimal.Decimal
	AvgEntryPrice decimal.Decimal
	MarketValue   decimal.Decimal
	UnrealizedPL  decimal.Decimal
	CurrentPrice  decimal.Decimal
	Side          string // "long" or "short"
}

// ---------------------------------------------------------------------------
// Accounts
// ---------------------------------------------------------------------------

// AccountStatus is the routing availability of a brokerage account.
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusDegraded AccountStatus = "degraded"
	AccountStatusDisabled AccountStatus = "disabled"
)

// AccountInfo is a snapshot of a brokerage account's financial metrics.
type AccountInfo struct {
	AccountID      string
	AccountNumber  string
	Currency       string
	Cash           decimal.Decimal
	Equity         decimal.Decimal
	BuyingPower    decimal.Decimal
	PortfolioValue decimal.Decimal
	DaytradeCount  int64
	PatternDay     bool
	TradingBlocked bool
}

// Assignment records that a user trades through a specific account.
// Reassignment deactivates the old record rather than deleting it, so the
// assignment file doubles as an audit trail.
type Assignment struct {
	UserID     string    `json:"user_id"`
	AccountID  string    `json:"account_id"`
	AssignedAt time.Time `json:"assigned_at"`
	AssignedBy string    `json:"assigned_by"`
	Reason     string    `json:"reason"`
	IsActive   bool      `json:"is_active"`
}

// ---------------------------------------------------------------------------
// Risk analysis
// ---------------------------------------------------------------------------

// RiskLevel buckets a risk score for display.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelModerate RiskLevel = "moderate"
	RiskLevelHigh     RiskLevel = "high"
)

// RiskFactor is a single named contributor to a risk assessment.
type RiskFactor struct {
	Name        string `json:"name"`
	Impact      string `json:"impact"` // "low", "medium", "high"
	Description string `json:"description"`
}

// RiskAnalysis is the LLM-generated (or fallback heuristic) assessment of a
// trade request. It is advisory: it never blocks execution.
type RiskAnalysis struct {
	Score      int          `json:"score"` // 0 (safe) to 100 (reckless)
	Level      RiskLevel    `json:"level"`
	Factors    []RiskFactor `json:"factors"`
	Commentary string       `json:"commentary"`
	FromCache  bool         `json:"-"`
	Fallback   bool         `json:"-"` // true when the LLM call failed
}

// LevelForScore maps a 0-100 risk score onto a RiskLevel.
func LevelForScore(score int) RiskLevel {
	switch {
	case score < 34:
		return RiskLevelLow
	case score < 67:
		return RiskLevelModerate
	default:
		return RiskLevelHigh
	}
}
