package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"tiempos-digital/internal/backend"
	"tiempos-digital/internal/metrics"
)

// Options tunes the HTTP surface.
type Options struct {
	BasePath string
	// SignInPerMinute caps sign-in attempts across all callers. Zero disables the cap.
	SignInPerMinute int
}

// Server exposes the backend client over JSON.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	metrics    *metrics.Metrics
	client     backend.Client
	signIn     *rate.Limiter
	basePath   string
}

type envelope struct {
	Data  any        `json:"data"`
	Error *errorBody `json:"error"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// New creates a server listening on addr.
func New(addr string, client backend.Client, logger *slog.Logger, metricRegistry *metrics.Metrics, opts Options) *Server {
	s := &Server{
		logger:   logger.With("component", "http"),
		metrics:  metricRegistry,
		client:   client,
		basePath: normaliseBasePath(opts.BasePath),
	}
	if opts.SignInPerMinute > 0 {
		s.signIn = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.SignInPerMinute)), opts.SignInPerMinute)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /auth/sign-in", s.handleSignIn)
	mux.HandleFunc("POST /auth/sign-out", s.handleSignOut)
	mux.HandleFunc("GET /auth/session", s.handleSession)
	mux.HandleFunc("GET /auth/user", s.handleUser)
	mux.HandleFunc("GET /tables/{table}", s.handleList)
	mux.HandleFunc("GET /tables/{table}/one", s.handleOne)
	mux.HandleFunc("POST /tables/{table}", s.handleInsert)
	mux.HandleFunc("PATCH /tables/{table}", s.handleUpdate)
	mux.HandleFunc("DELETE /tables/{table}", s.handleDelete)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mountWithBasePath(s.basePath, s.instrument(mux)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if s.basePath != "" {
		s.logger.Info("http server configured with base path", "base_path", s.basePath)
	}
	return s
}

// Handler returns the routed handler, base path included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for incoming HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.client.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if s.signIn != nil && !s.signIn.Allow() {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many sign-in attempts")
		return
	}
	var creds backend.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "malformed credentials")
		return
	}
	session, err := s.client.Auth().SignInWithPassword(r.Context(), creds)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, session)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.client.Auth().SignOut(r.Context()); err != nil {
		s.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.client.Auth().GetSession(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, session)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.client.Auth().GetUser(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, user)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q, err := s.selectQuery(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	rows, err := q.Many(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	if rows == nil {
		rows = []backend.Row{}
	}
	writeData(w, http.StatusOK, rows)
}

func (s *Server) handleOne(w http.ResponseWriter, r *http.Request) {
	q, err := s.selectQuery(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	row, err := q.Single(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, row)
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	row, err := decodeRow(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	stored, err := s.client.From(r.PathValue("table")).Insert(row).Select("*").Single(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeData(w, http.StatusCreated, stored)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	field, value, err := filterParams(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	patch, err := decodeRow(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	updated, err := s.client.From(r.PathValue("table")).Update(patch).Eq(field, value).Select("*").Single(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, updated)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	field, value, err := filterParams(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := s.client.From(r.PathValue("table")).Delete().Eq(field, value).Exec(r.Context()); err != nil {
		s.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

// selectQuery builds a select chain from ?select, ?field/?value, ?order,
// ?asc and ?limit.
func (s *Server) selectQuery(r *http.Request) (backend.Query, error) {
	params := r.URL.Query()
	columns := params.Get("select")
	if columns == "" {
		columns = "*"
	}
	q := s.client.From(r.PathValue("table")).Select(columns)
	if field := params.Get("field"); field != "" {
		q = q.Eq(field, params.Get("value"))
	}
	if order := params.Get("order"); order != "" {
		asc := false
		if raw := params.Get("asc"); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, backend.Errorf(backend.ErrInvalid, "asc must be a boolean")
			}
			asc = v
		}
		q = q.Order(order, backend.OrderOpts{Ascending: asc})
	}
	if raw := params.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, backend.Errorf(backend.ErrInvalid, "limit must be a non-negative integer")
		}
		q = q.Limit(n)
	}
	return q, nil
}

func filterParams(r *http.Request) (string, string, error) {
	params := r.URL.Query()
	field := params.Get("field")
	if field == "" {
		return "", "", backend.Errorf(backend.ErrInvalid, "field query parameter is required")
	}
	return field, params.Get("value"), nil
}

func decodeRow(r *http.Request) (backend.Row, error) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var row backend.Row
	if err := dec.Decode(&row); err != nil {
		return nil, backend.Errorf(backend.ErrInvalid, "body must be a JSON object")
	}
	if row == nil {
		return nil, backend.Errorf(backend.ErrInvalid, "body must be a JSON object")
	}
	return backend.NormalizeNumbers(row), nil
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	kind := backend.ErrorKind(err)
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
		if s.metrics != nil {
			s.metrics.Errors.WithLabelValues("http").Inc()
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		kind = "timeout"
	}
	writeError(w, status, kind, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, backend.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, backend.ErrUnsupported):
		return http.StatusMethodNotAllowed
	case errors.Is(err, backend.ErrAuthFailure):
		return http.StatusUnauthorized
	case errors.Is(err, backend.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, backend.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		mux.ServeHTTP(rec, r)
		if s.metrics == nil {
			return
		}
		route := r.Pattern
		if route == "" {
			_, route = mux.Handler(r)
		}
		if route == "" {
			route = "unmatched"
		}
		s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
	})
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, envelope{Error: &errorBody{Kind: kind, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode json", http.StatusInternalServerError)
	}
}

func mountWithBasePath(basePath string, handler http.Handler) http.Handler {
	if basePath == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, basePath) {
			http.NotFound(w, r)
			return
		}
		if len(r.URL.Path) > len(basePath) && r.URL.Path[len(basePath)] != '/' {
			http.NotFound(w, r)
			return
		}
		trimmed := strings.TrimPrefix(r.URL.Path, basePath)
		if trimmed == "" {
			trimmed = "/"
		}
		r.URL.Path = trimmed
		if r.URL.RawPath != "" {
			rawTrimmed := strings.TrimPrefix(r.URL.RawPath, basePath)
			if rawTrimmed == "" {
				rawTrimmed = "/"
			}
			r.URL.RawPath = rawTrimmed
		}
		handler.ServeHTTP(w, r)
	})
}

func normaliseBasePath(base string) string {
	base = strings.TrimSpace(base)
	if base == "" || base == "/" {
		return ""
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return strings.TrimSuffix(base, "/")
}
