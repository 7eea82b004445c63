package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
	"github.com/calounx/sagas-sub011/core/result"
	"github.com/calounx/sagas-sub011/core/schema"
	"github.com/calounx/sagas-sub011/internal/logging"
)

// Database is the connection surface the server exposes.
type Database interface {
	Raw(sql string, args ...any) (*result.ResultSet, error)
	Schema() (schema.Manager, error)
	Backend() string
	ID() string
	Ping() error
}

// Config holds server configuration.
type Config struct {
	Addr              string
	AllowedOrigins    []string // CORS and websocket origins (empty = allow all)
	RateLimitRequests int      // /query requests per minute per client (0 = disabled)
	RateLimitBurst    int
	MaxBodyBytes      int64
}

// DefaultConfig returns a loopback-only configuration.
func DefaultConfig() Config {
	return Config{Addr: "127.0.0.1:8470", MaxBodyBytes: 1 << 20}
}

// Server serves the query API and the event stream.
type Server struct {
	cfg Config
	db  Database
	hub *Hub
}

// NewServer returns a server over db. Events reach clients only when hub is
// also registered as the connection's observer.
func NewServer(cfg Config, db Database, hub *Hub) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	return &Server{cfg: cfg, db: db, hub: hub}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /tables", s.handleTables)
	mux.HandleFunc("GET /events", s.hub.Handler(s.cfg.AllowedOrigins))

	var queryHandler http.Handler = http.HandlerFunc(s.handleQuery)
	if s.cfg.RateLimitRequests > 0 {
		queryHandler = newRateLimiter(s.cfg.RateLimitRequests, s.cfg.RateLimitBurst).middleware(queryHandler)
		logging.Info("rate limiting enabled",
			"requests_per_minute", s.cfg.RateLimitRequests,
			"burst_size", s.cfg.RateLimitBurst)
	}
	mux.Handle("POST /query", queryHandler)

	var handler http.Handler = securityHeaders(mux)
	handler = cors(s.cfg.AllowedOrigins, handler)
	return accessLog(handler)
}

// ListenAndServe runs the hub and the HTTP server until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logging.ServerStartup("monitor", s.cfg.Addr,
		"backend", s.db.Backend(),
		"websocket_path", "/events")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdown, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	return srv.Shutdown(shutdown)
}

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	SQL      string `json:"sql"`
	Bindings []any  `json:"bindings,omitempty"`
}

// QueryResponse is the reply to POST /query.
type QueryResponse struct {
	Columns      []string         `json:"columns,omitempty"`
	Rows         []map[string]any `json:"rows"`
	AffectedRows int64            `json:"affected_rows"`
	LastInsertID *int64           `json:"last_insert_id,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	dec.UseNumber()
	var req QueryRequest
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		writeError(w, http.StatusBadRequest, "sql is required")
		return
	}
	bindings := make([]any, len(req.Bindings))
	for i, b := range req.Bindings {
		bindings[i] = binding(b)
	}

	rs, err := s.db.Raw(req.SQL, bindings...)
	if err != nil {
		code := statusOf(err)
		ctx := logging.WithConnectionID(r.Context(), s.db.ID())
		logging.LoggerFromContext(ctx).Warn("query_request_failed", "status", code, "error", err)
		writeError(w, code, err.Error())
		return
	}
	resp := QueryResponse{
		Columns:      rs.Columns(),
		Rows:         rs.ToMaps(),
		AffectedRows: rs.AffectedRows(),
	}
	if id, ok := rs.LastInsertID(); ok {
		resp.LastInsertID = &id
	}
	writeJSON(w, http.StatusOK, resp)
}

// binding converts a decoded JSON value to a statement argument.
func binding(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	sm, err := s.db.Schema()
	if err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}
	tables, err := sm.GetTables()
	if err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.Ping(); err != nil {
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":  status,
		"backend": s.db.Backend(),
		"clients": s.hub.Clients(),
	})
}

// statusOf maps the error taxonomy to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, sagaerrors.ErrInvalidInput), errors.Is(err, sagaerrors.ErrUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, sagaerrors.ErrTableNotFound):
		return http.StatusNotFound
	case errors.Is(err, sagaerrors.ErrConstraint):
		return http.StatusConflict
	case errors.Is(err, sagaerrors.ErrNotConnected), errors.Is(err, sagaerrors.ErrConnection):
		return http.StatusServiceUnavailable
	case errors.Is(err, sagaerrors.ErrQuery):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
