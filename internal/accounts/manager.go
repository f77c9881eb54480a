// Package accounts maintains the user→account assignment table with JSON
// persistence, assignment strategies, and pub/sub notification of changes.
package accounts

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"tradebot/internal/config"
	"tradebot/internal/domain"
)

// Sentinel errors callers branch on.
var (
	ErrNoAccounts         = errors.New("accounts: no eligible account")
	ErrUnknownAccount     = errors.New("accounts: unknown account")
	ErrAccountFull        = errors.New("accounts: account at max users")
	ErrAccountUnavailable = errors.New("accounts: account unavailable")
	ErrNotAssigned        = errors.New("accounts: user has no active assignment")
)

// Event is broadcast to subscribers whenever the assignment table changes.
type Event struct {
	Type       string            `json:"type"` // "assigned" or "deactivated"
	Assignment domain.Assignment `json:"assignment"`
}

// Manager holds the user→account assignment table in memory with JSON file
// persistence and pub/sub. Mutations hold the mutex through the file flush so
// concurrent writers cannot interleave and corrupt the file.
type Manager struct {
	mu       sync.RWMutex
	accounts []config.Account
	history  []domain.Assignment // every record ever written, in order
	active   map[string]int      // userID → index of its active record in history
	strategy Strategy
	filePath string
	log      *slog.Logger

	// available reports whether an account may receive assignments right
	// now. Set by the wiring layer to consult broker health; nil means
	// everything is available.
	available func(accountID string) bool

	subsMu    sync.Mutex
	nextSubID int
	subs      map[int]chan Event
}

// NewManager creates a Manager over the configured accounts, loading any
// persisted assignments from filePath.
func NewManager(accts []config.Account, strategy Strategy, filePath string, log *slog.Logger) *Manager {
	m := &Manager{
		accounts: accts,
		active:   make(map[string]int),
		strategy: strategy,
		filePath: filePath,
		log:      log,
		subs:     make(map[int]chan Event),
	}
	m.load()
	return m
}

// SetAvailability installs the account-availability hook. Pass nil to treat
// every account as available.
func (m *Manager) SetAvailability(fn func(accountID string) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = fn
}

// AccountFor returns a copy of the user's active assignment, if any.
func (m *Manager) AccountFor(userID string) (*domain.Assignment, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.active[userID]
	if !ok {
		return nil, false
	}
	cp := m.history[idx]
	return &cp, true
}

// AutoAssign returns the user's existing active assignment, or creates one by
// applying the configured strategy. The department hint is only consulted by
// the department strategy.
func (m *Manager) AutoAssign(userID, department string) (*domain.Assignment, error) {
	m.mu.Lock()

	if idx, ok := m.active[userID]; ok {
		cp := m.history[idx]
		m.mu.Unlock()
		return &cp, nil
	}

	eligible := m.eligibleLocked()
	if len(eligible) == 0 {
		m.mu.Unlock()
		return nil, ErrNoAccounts
	}

	accountID, reason, err := m.strategy.Pick(eligible, m.countsLocked(), department)
	if err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("picking account for %s: %w", userID, err)
	}

	a := m.recordLocked(userID, accountID, "system", reason)
	m.mu.Unlock()

	m.broadcast(Event{Type: "assigned", Assignment: a})
	m.log.Info("auto-assigned user", "user", userID, "account", accountID, "reason", reason)
	return &a, nil
}

// Assign manually maps a user to a specific account, deactivating any prior
// assignment. It rejects unknown, unavailable, and full accounts.
func (m *Manager) Assign(userID, accountID, assignedBy, reason string) (*domain.Assignment, error) {
	m.mu.Lock()

	var target *config.Account
	for i := range m.accounts {
		if m.accounts[i].ID == accountID {
			target = &m.accounts[i]
			break
		}
	}
	if target == nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, accountID)
	}
	if m.available != nil && !m.available(accountID) {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAccountUnavailable, accountID)
	}

	// Capacity check does not apply when the user is already on the account.
	cur, hasCur := m.active[userID]
	if !hasCur || m.history[cur].AccountID != accountID {
		if target.MaxUsers > 0 && m.countsLocked()[accountID] >= target.MaxUsers {
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrAccountFull, accountID)
		}
	}

	a := m.recordLocked(userID, accountID, assignedBy, reason)
	m.mu.Unlock()

	m.broadcast(Event{Type: "assigned", Assignment: a})
	m.log.Info("assigned user", "user", userID, "account", accountID, "by", assignedBy)
	return &a, nil
}

// Deactivate ends the user's active assignment without deleting its record.
func (m *Manager) Deactivate(userID, by, reason string) error {
	m.mu.Lock()

	idx, ok := m.active[userID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotAssigned, userID)
	}
	m.history[idx].IsActive = false
	delete(m.active, userID)

	deactivated := m.history[idx]
	deactivated.AssignedBy = by
	deactivated.Reason = reason
	m.flushLocked()
	m.mu.Unlock()

	m.broadcast(Event{Type: "deactivated", Assignment: deactivated})
	m.log.Info("deactivated assignment", "user", userID, "by", by, "reason", reason)
	return nil
}

// UsersFor returns the user IDs actively assigned to an account, sorted.
func (m *Manager) UsersFor(accountID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var users []string
	for userID, idx := range m.active {
		if m.history[idx].AccountID == accountID {
			users = append(users, userID)
		}
	}
	sort.Strings(users)
	return users
}

// Counts returns the number of active users per account ID.
func (m *Manager) Counts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countsLocked()
}

// History returns every assignment record for the user, oldest first.
func (m *Manager) History(userID string) []domain.Assignment {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Assignment
	for _, a := range m.history {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out
}

// Snapshot returns all active assignments sorted by user ID.
func (m *Manager) Snapshot() []domain.Assignment {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Assignment, 0, len(m.active))
	for _, idx := range m.active {
		out = append(out, m.history[idx])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// ---------------------------------------------------------------------------
// Pub/sub
// ---------------------------------------------------------------------------

// Subscribe returns a channel that receives assignment events. bufSize
// controls the channel buffer; slow consumers will have events dropped.
func (m *Manager) Subscribe(bufSize int) (int, <-chan Event) {
	ch := make(chan Event, bufSize)
	m.subsMu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subs[id] = ch
	m.subsMu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (m *Manager) Unsubscribe(id int) {
	m.subsMu.Lock()
	if ch, ok := m.subs[id]; ok {
		delete(m.subs, id)
		close(ch)
	}
	m.subsMu.Unlock()
}

// broadcast sends an event to all subscribers non-blocking (drop on full).
func (m *Manager) broadcast(e Event) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- e:
		default:
			// Slow consumer — drop event.
		}
	}
}

// ---------------------------------------------------------------------------
// Internals
// ---------------------------------------------------------------------------

// eligibleLocked returns accounts that are available and below max_users.
// Must be called with mu held.
func (m *Manager) eligibleLocked() []config.Account {
	counts := m.countsLocked()
	var out []config.Account
	for _, a := range m.accounts {
		if m.available != nil && !m.available(a.ID) {
			continue
		}
		if a.MaxUsers > 0 && counts[a.ID] >= a.MaxUsers {
			continue
		}
		out = append(out, a)
	}
	return out
}

// countsLocked counts active users per account. Must be called with mu held.
func (m *Manager) countsLocked() map[string]int {
	counts := make(map[string]int, len(m.accounts))
	for _, idx := range m.active {
		counts[m.history[idx].AccountID]++
	}
	return counts
}

// recordLocked deactivates any existing assignment for the user, appends the
// new record, and flushes. Must be called with mu held. Returns a copy of
// the new record.
func (m *Manager) recordLocked(userID, accountID, assignedBy, reason string) domain.Assignment {
	if idx, ok := m.active[userID]; ok {
		m.history[idx].IsActive = false
	}

	a := domain.Assignment{
		UserID:     userID,
		AccountID:  accountID,
		AssignedAt: time.Now().UTC(),
		AssignedBy: assignedBy,
		Reason:     reason,
		IsActive:   true,
	}
	m.history = append(m.history, a)
	m.active[userID] = len(m.history) - 1
	m.flushLocked()
	return a
}

// load reads the assignment file into memory. A missing file means a fresh
// start; a corrupt file is logged and ignored rather than crashing startup.
func (m *Manager) load() {
	data, err := os.ReadFile(m.filePath)
	if err != nil {
		return
	}
	var loaded []domain.Assignment
	if err := json.Unmarshal(data, &loaded); err != nil {
		m.log.Warn("loading assignments file", "path", m.filePath, "error", err)
		return
	}

	m.history = loaded
	for i := range m.history {
		if !m.history[i].IsActive {
			continue
		}
		// Later records win: an active record supersedes any earlier active
		// record for the same user left behind by old writers.
		if prev, ok := m.active[m.history[i].UserID]; ok {
			m.history[prev].IsActive = false
		}
		m.active[m.history[i].UserID] = i
	}
	m.log.Info("loaded assignments", "records", len(loaded), "active", len(m.active))
}

// flushLocked writes the full history to disk. Must be called with mu held.
func (m *Manager) flushLocked() {
	data, err := json.MarshalIndent(m.history, "", "  ")
	if err != nil {
		m.log.Error("marshalling assignments", "error", err)
		return
	}
	if err := os.WriteFile(m.filePath, data, 0o644); err != nil {
		m.log.Error("writing assignments file", "path", m.filePath, "error", err)
	}
}
