package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"tradebot/internal/accounts"
	"tradebot/internal/broker"
	"tradebot/internal/config"
	"tradebot/internal/router"
)

func newTestServer(t *testing.T) (*Server, *accounts.Manager) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	cfg := &config.Config{
		Accounts: []config.Account{
			{ID: "acct-1", Name: "Desk A", MaxUsers: 5},
			{ID: "acct-2", Name: "Desk B", Paper: true},
		},
	}
	mgr := accounts.NewManager(cfg.Accounts, accounts.LeastLoaded{},
		filepath.Join(t.TempDir(), "a.json"), log)
	r := router.New(mgr, map[string]broker.Broker{
		"acct-1": broker.NewSimulatorBroker("acct-1", decimal.NewFromInt(100000)),
		"acct-2": broker.NewSimulatorBroker("acct-2", decimal.NewFromInt(100000)),
	}, log)

	return NewServer(cfg, mgr, r, nil, log), mgr
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s.Handler(), "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAccountsEndpoint(t *testing.T) {
	s, mgr := newTestServer(t)
	if _, err := mgr.AutoAssign("U1", ""); err != nil {
		t.Fatal(err)
	}

	rec := get(t, s.Handler(), "/api/accounts")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var out []AccountJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("accounts = %d, want 2", len(out))
	}

	total := 0
	for _, a := range out {
		total += a.Users
	}
	if total != 1 {
		t.Errorf("total assigned users = %d, want 1", total)
	}
}

func TestAssignmentsEndpoint(t *testing.T) {
	s, mgr := newTestServer(t)
	if _, err := mgr.Assign("U1", "acct-2", "admin", "manual"); err != nil {
		t.Fatal(err)
	}

	rec := get(t, s.Handler(), "/api/assignments")
	var out []AssignmentJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(out) != 1 || out[0].AccountID != "acct-2" || !out[0].IsActive {
		t.Errorf("assignments = %+v, want one active on acct-2", out)
	}
}

func TestUserHistoryEndpoint(t *testing.T) {
	s, mgr := newTestServer(t)
	if _, err := mgr.Assign("U1", "acct-1", "admin", "first"); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Assign("U1", "acct-2", "admin", "moved"); err != nil {
		t.Fatal(err)
	}

	rec := get(t, s.Handler(), "/api/assignments/U1")
	var out []AssignmentJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("history records = %d, want 2", len(out))
	}
	if out[0].IsActive || !out[1].IsActive {
		t.Errorf("history = %+v, want [inactive active]", out)
	}

	if rec := get(t, s.Handler(), "/api/assignments/UNKNOWN"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown user status = %d, want 404", rec.Code)
	}
}

func TestUserOrdersWithoutJournal(t *testing.T) {
	s, _ := newTestServer(t)
	if rec := get(t, s.Handler(), "/api/orders/U1"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when journal is absent", rec.Code)
	}
}
