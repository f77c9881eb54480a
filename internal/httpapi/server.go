package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"tradebot/internal/accounts"
	"tradebot/internal/config"
	"tradebot/internal/engine"
	"tradebot/internal/router"
)

// Server serves the ops HTTP API.
type Server struct {
	cfg     *config.Config
	manager *accounts.Manager
	router  *router.MultiBroker
	journal engine.Journal // may be nil
	log     *slog.Logger
}

// NewServer creates an ops API server over the given components.
func NewServer(cfg *config.Config, mgr *accounts.Manager, r *router.MultiBroker, journal engine.Journal, log *slog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		manager: mgr,
		router:  r,
		journal: journal,
		log:     log,
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /api/accounts", s.handleAccounts)
	mux.HandleFunc("GET /api/assignments", s.handleAssignments)
	mux.HandleFunc("GET /api/assignments/{user}", s.handleUserHistory)
	mux.HandleFunc("GET /api/orders/{user}", s.handleUserOrders)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleAccounts reports every configured account with live status and the
// active user count.
func (s *Server) handleAccounts(w http.ResponseWriter, _ *http.Request) {
	counts := s.manager.Counts()

	out := make([]AccountJSON, 0, len(s.cfg.Accounts))
	for _, a := range s.cfg.Accounts {
		aj := AccountJSON{
			ID:         a.ID,
			Name:       a.Name,
			Department: a.Department,
			Paper:      a.Paper,
			Status:     string(s.router.Status(a.ID)),
			Users:      counts[a.ID],
			MaxUsers:   a.MaxUsers,
		}
		if t, ok := s.router.LastChecked(a.ID); ok {
			aj.LastChecked = &t
		}
		out = append(out, aj)
	}
	writeJSON(w, out)
}

// handleAssignments reports all active assignments.
func (s *Server) handleAssignments(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.manager.Snapshot()
	out := make([]AssignmentJSON, 0, len(snapshot))
	for _, a := range snapshot {
		out = append(out, toAssignmentJSON(a))
	}
	writeJSON(w, out)
}

// handleUserHistory reports a user's full assignment history, oldest first.
func (s *Server) handleUserHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user")
	history := s.manager.History(userID)
	if len(history) == 0 {
		writeError(w, http.StatusNotFound, "no assignments for user "+userID)
		return
	}
	out := make([]AssignmentJSON, 0, len(history))
	for _, a := range history {
		out = append(out, toAssignmentJSON(a))
	}
	writeJSON(w, out)
}

// handleUserOrders reports a user's journaled orders, newest first. The
// "limit" query param caps the result (default 50).
func (s *Server) handleUserOrders(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusNotFound, "order journal not configured")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad limit "+v)
			return
		}
		limit = n
	}

	orders, err := s.journal.OrdersForUser(r.Context(), r.PathValue("user"), limit)
	if err != nil {
		s.log.Error("querying orders", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	out := make([]OrderJSON, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderJSON(o))
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
