// Package router dispatches trade requests to the correct brokerage account
// and tracks per-account health.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"tradebot/internal/accounts"
	"tradebot/internal/broker"
	"tradebot/internal/domain"
)

// Sentinel errors callers branch on.
var (
	ErrAccountDisabled = errors.New("router: account disabled")
	ErrNoBroker        = errors.New("router: no broker for account")
)

// MultiBroker maps account IDs to brokers and tracks each account's routing
// status. User requests are resolved through the assignment manager,
// auto-assigning on first use.
type MultiBroker struct {
	manager *accounts.Manager
	log     *slog.Logger

	mu       sync.RWMutex
	brokers  map[string]broker.Broker
	statuses map[string]domain.AccountStatus
	checked  map[string]time.Time

	cron *cron.Cron
}

// New creates a MultiBroker over the given account brokers. All accounts
// start active; the first status refresh corrects that if needed.
func New(manager *accounts.Manager, brokers map[string]broker.Broker, log *slog.Logger) *MultiBroker {
	statuses := make(map[string]domain.AccountStatus, len(brokers))
	for id := range brokers {
		statuses[id] = domain.AccountStatusActive
	}
	m := &MultiBroker{
		manager:  manager,
		log:      log,
		brokers:  brokers,
		statuses: statuses,
		checked:  make(map[string]time.Time),
	}
	// Assignment eligibility consults live broker health.
	manager.SetAvailability(func(accountID string) bool {
		return m.Status(accountID) != domain.AccountStatusDisabled
	})
	return m
}

// ForUser resolves the user's assignment (auto-assigning when absent) and
// returns the broker for their account. Requests against disabled accounts
// fail fast, before any SDK call.
func (m *MultiBroker) ForUser(ctx context.Context, userID, department string) (broker.Broker, *domain.Assignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	assignment, err := m.manager.AutoAssign(userID, department)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving account for %s: %w", userID, err)
	}
	b, err := m.ForAccount(assignment.AccountID)
	if err != nil {
		return nil, nil, err
	}
	return b, assignment, nil
}

// ForAccount returns the broker for an account ID, rejecting disabled
// accounts.
func (m *MultiBroker) ForAccount(accountID string) (broker.Broker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.brokers[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoBroker, accountID)
	}
	if m.statuses[accountID] == domain.AccountStatusDisabled {
		return nil, fmt.Errorf("%w: %s", ErrAccountDisabled, accountID)
	}
	return b, nil
}

// Status returns the current routing status of an account.
func (m *MultiBroker) Status(accountID string) domain.AccountStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.statuses[accountID]
	if !ok {
		return domain.AccountStatusDisabled
	}
	return s
}

// Statuses returns a copy of all account statuses.
func (m *MultiBroker) Statuses() map[string]domain.AccountStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]domain.AccountStatus, len(m.statuses))
	for id, s := range m.statuses {
		out[id] = s
	}
	return out
}

// SetStatus overrides an account's status, for operator intervention.
func (m *MultiBroker) SetStatus(accountID string, status domain.AccountStatus) {
	m.mu.Lock()
	m.statuses[accountID] = status
	m.mu.Unlock()
	m.log.Info("account status set", "account", accountID, "status", status)
}

// RefreshStatus polls every account's broker and updates routing status:
// unreachable accounts degrade, trading-blocked accounts disable, healthy
// accounts recover to active.
func (m *MultiBroker) RefreshStatus(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.brokers))
	for id := range m.brokers {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}

		m.mu.RLock()
		b := m.brokers[id]
		m.mu.RUnlock()

		info, err := b.GetAccount(ctx)

		var next domain.AccountStatus
		switch {
		case err != nil:
			next = domain.AccountStatusDegraded
		case info.TradingBlocked:
			next = domain.AccountStatusDisabled
		default:
			next = domain.AccountStatusActive
		}

		m.mu.Lock()
		prev := m.statuses[id]
		m.statuses[id] = next
		m.checked[id] = time.Now()
		m.mu.Unlock()

		if prev != next {
			m.log.Warn("account status changed", "account", id, "from", prev, "to", next, "err", err)
		}
	}
}

// StartRefresh schedules RefreshStatus on the given cron spec (e.g.
// "@every 1m") and runs one refresh immediately in the background.
func (m *MultiBroker) StartRefresh(ctx context.Context, spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		m.RefreshStatus(ctx)
	})
	if err != nil {
		return fmt.Errorf("scheduling status refresh %q: %w", spec, err)
	}
	m.cron = c
	c.Start()
	go m.RefreshStatus(ctx)
	return nil
}

// StopRefresh stops the refresh schedule and waits for a running refresh.
func (m *MultiBroker) StopRefresh() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
}

// LastChecked returns when an account's status was last refreshed.
func (m *MultiBroker) LastChecked(accountID string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.checked[accountID]
	return t, ok
}
