package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"tradebot/internal/config"
	"tradebot/internal/domain"
)

// Sentinel errors callers branch on.
var (
	ErrGMVExceeded       = errors.New("risk: trade GMV exceeds limit")
	ErrPositionTooLarge  = errors.New("risk: position exceeds equity limit")
	ErrInsufficientPower = errors.New("risk: insufficient buying power")
)

// Limits enforces hard pre-trade checks. Unlike the LLM analysis these are
// rejections, not advice.
type Limits struct {
	maxTradeGMV    decimal.Decimal // zero = unlimited
	maxPositionPct decimal.Decimal // fraction of equity, zero = unlimited
}

// NewLimits builds Limits from config.
func NewLimits(cfg config.RiskConfig) *Limits {
	return &Limits{
		maxTradeGMV:    decimal.NewFromFloat(cfg.MaxTradeGMV),
		maxPositionPct: decimal.NewFromFloat(cfg.MaxPositionPct),
	}
}

// Check evaluates the trade against the configured limits given the current
// account state and a reference price.
func (l *Limits) Check(req *domain.TradeRequest, acct *domain.AccountInfo, price decimal.Decimal) error {
	gmv := req.GMV(price)

	if l.maxTradeGMV.IsPositive() && gmv.GreaterThan(l.maxTradeGMV) {
		return fmt.Errorf("%w: %s > %s", ErrGMVExceeded, gmv.StringFixed(2), l.maxTradeGMV.StringFixed(2))
	}

	// Sells release exposure; only buys are checked against equity and
	// buying power.
	if req.Side != domain.OrderSideBuy {
		return nil
	}

	if l.maxPositionPct.IsPositive() && acct.Equity.IsPositive() {
		limit := acct.Equity.Mul(l.maxPositionPct)
		if gmv.GreaterThan(limit) {
			return fmt.Errorf("%w: %s > %s (%s%% of equity)",
				ErrPositionTooLarge, gmv.StringFixed(2), limit.StringFixed(2),
				l.maxPositionPct.Mul(decimal.NewFromInt(100)).StringFixed(0))
		}
	}

	if gmv.GreaterThan(acct.BuyingPower) {
		return fmt.Errorf("%w: %s > %s", ErrInsufficientPower, gmv.StringFixed(2), acct.BuyingPower.StringFixed(2))
	}
	return nil
}
