package accounts

import (
	"fmt"
	"strings"
	"sync"

	"tradebot/internal/config"
)

// Strategy picks an account for a new user from the eligible set. eligible is
// never empty and preserves config order; counts maps account ID to its
// current number of active users. The returned reason string is stored on
// the assignment record.
type Strategy interface {
	Name() string
	Pick(eligible []config.Account, counts map[string]int, department string) (accountID, reason string, err error)
}

// NewStrategy returns the Strategy registered under name.
func NewStrategy(name string) (Strategy, error) {
	switch name {
	case "round_robin":
		return &RoundRobin{}, nil
	case "least_loaded":
		return LeastLoaded{}, nil
	case "department":
		return Department{}, nil
	default:
		return nil, fmt.Errorf("accounts: unknown strategy %q", name)
	}
}

// ---------------------------------------------------------------------------
// Round robin
// ---------------------------------------------------------------------------

// RoundRobin rotates through eligible accounts in config order. The cursor is
// process-local: after a restart it starts over, which is acceptable because
// persisted counts keep the distribution roughly even anyway.
type RoundRobin struct {
	mu     sync.Mutex
	cursor int
}

// Name returns "round_robin".
func (s *RoundRobin) Name() string { return "round_robin" }

// Pick returns the next eligible account after the cursor.
func (s *RoundRobin) Pick(eligible []config.Account, _ map[string]int, _ string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	picked := eligible[s.cursor%len(eligible)]
	s.cursor++
	return picked.ID, "auto:round_robin", nil
}

// ---------------------------------------------------------------------------
// Least loaded
// ---------------------------------------------------------------------------

// LeastLoaded picks the eligible account with the fewest active users, ties
// broken by config order.
type LeastLoaded struct{}

// Name returns "least_loaded".
func (LeastLoaded) Name() string { return "least_loaded" }

// Pick returns the account with the minimum active-user count.
func (LeastLoaded) Pick(eligible []config.Account, counts map[string]int, _ string) (string, string, error) {
	best := eligible[0]
	for _, a := range eligible[1:] {
		if counts[a.ID] < counts[best.ID] {
			best = a
		}
	}
	return best.ID, fmt.Sprintf("auto:least_loaded(%d users)", counts[best.ID]), nil
}

// ---------------------------------------------------------------------------
// Department
// ---------------------------------------------------------------------------

// Department matches the user's department keyword against account
// departments, falling back to least-loaded when nothing matches.
type Department struct{}

// Name returns "department".
func (Department) Name() string { return "department" }

// Pick returns the first eligible account whose department matches the
// user's, case-insensitively on a substring basis.
func (Department) Pick(eligible []config.Account, counts map[string]int, department string) (string, string, error) {
	dept := strings.ToLower(strings.TrimSpace(department))
	if dept != "" {
		for _, a := range eligible {
			acctDept := strings.ToLower(a.Department)
			if acctDept != "" && (strings.Contains(dept, acctDept) || strings.Contains(acctDept, dept)) {
				return a.ID, "auto:department(" + a.Department + ")", nil
			}
		}
	}
	return LeastLoaded{}.Pick(eligible, counts, department)
}
