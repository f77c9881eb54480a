// Package httpapi exposes a small read-only ops API over the bot's routing
// state: account health, assignment tables, and journaled orders.
package httpapi

import (
	"time"

	"tradebot/internal/domain"
)

// AccountJSON is the JSON representation of one configured account.
type AccountJSON struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Department  string     `json:"department,omitempty"`
	Paper       bool       `json:"paper,omitempty"`
	Status      string     `json:"status"`
	Users       int        `json:"users"`
	MaxUsers    int        `json:"maxUsers,omitempty"`
	LastChecked *time.Time `json:"lastChecked,omitempty"`
}

// AssignmentJSON is the JSON representation of one assignment record.
type AssignmentJSON struct {
	UserID     string    `json:"userId"`
	AccountID  string    `json:"accountId"`
	AssignedAt time.Time `json:"assignedAt"`
	AssignedBy string    `json:"assignedBy"`
	Reason     string    `json:"reason,omitempty"`
	IsActive   bool      `json:"isActive"`
}

// OrderJSON is the JSON representation of one journaled order.
type OrderJSON struct {
	ID             string     `json:"id"`
	AccountID      string     `json:"accountId"`
	UserID         string     `json:"userId"`
	Symbol         string     `json:"symbol"`
	Side           string     `json:"side"`
	Type           string     `json:"type"`
	Status         string     `json:"status"`
	Qty            string     `json:"qty"`
	FilledQty      string     `json:"filledQty"`
	LimitPrice     string     `json:"limitPrice,omitempty"`
	FilledAvgPrice string     `json:"filledAvgPrice,omitempty"`
	RiskScore      int        `json:"riskScore"`
	CreatedAt      time.Time  `json:"createdAt"`
	FilledAt       *time.Time `json:"filledAt,omitempty"`
}

func toAssignmentJSON(a domain.Assignment) AssignmentJSON {
	return AssignmentJSON{
		UserID:     a.UserID,
		AccountID:  a.AccountID,
		AssignedAt: a.AssignedAt,
		AssignedBy: a.AssignedBy,
		Reason:     a.Reason,
		IsActive:   a.IsActive,
	}
}

func toOrderJSON(o domain.Order) OrderJSON {
	out := OrderJSON{
		ID:        o.ID,
		AccountID: o.AccountID,
		UserID:    o.UserID,
		Symbol:    o.Symbol,
		Side:      string(o.Side),
		Type:      string(o.Type),
		Status:    string(o.Status),
		Qty:       o.Qty.String(),
		FilledQty: o.FilledQty.String(),
		RiskScore: o.RiskScore,
		CreatedAt: o.CreatedAt,
		FilledAt:  o.FilledAt,
	}
	if o.LimitPrice != nil {
		out.LimitPrice = o.LimitPrice.String()
	}
	if o.FilledAvgPrice != nil {
		out.FilledAvgPrice = o.FilledAvgPrice.String()
	}
	return out
}
