// Package httpapi serves the reading engine over HTTP.
//
// The API is stateless per request: each call builds a fresh orchestrator, restores the
// caller's session from the session store, runs one operation and saves the result back.
// Concurrent calls on the same session fail fast with 409 instead of queueing.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fortuneteller/pkg/apperrors"
	"fortuneteller/pkg/eventlog"
	"fortuneteller/pkg/fortune"
	"fortuneteller/pkg/logx"
	"fortuneteller/pkg/orchestrator"
	"fortuneteller/pkg/persistence"
	"fortuneteller/pkg/session"
)

// StatusClientClosedRequest is reported when the caller went away mid-reading.
const StatusClientClosedRequest = 499

// DefaultMaxBodyBytes caps request bodies.
const DefaultMaxBodyBytes = 1 << 20

// Registry lists and resolves divination systems.
type Registry interface {
	Get(name string) (fortune.System, bool)
	InfoList() []fortune.Descriptor
}

// Server holds the dependencies shared by every request.
type Server struct {
	registry  Registry
	generator orchestrator.Generator
	sessions  session.Store
	archive   *persistence.Archive
	writer    *persistence.Writer
	events    *eventlog.Writer
	gatherer  prometheus.Gatherer
	now       fortune.Clock
	logger    *logx.Logger
	busy      map[string]struct{}
	version   string
	maxBody   int64
	mu        sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithArchive records every reading. A nil writer inserts synchronously.
func WithArchive(a *persistence.Archive, w *persistence.Writer) Option {
	return func(s *Server) {
		s.archive = a
		s.writer = w
	}
}

// WithEventLog records readings and chat turns in w.
func WithEventLog(w *eventlog.Writer) Option {
	return func(s *Server) { s.events = w }
}

// WithMetrics exposes g on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithClock replaces time.Now.
func WithClock(clock fortune.Clock) Option {
	return func(s *Server) { s.now = clock }
}

// WithLogger sets the logger.
func WithLogger(l *logx.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMaxBodyBytes caps request bodies at n bytes.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) { s.maxBody = n }
}

// WithVersion sets the version reported by /healthz.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New creates a server.
func New(reg Registry, gen orchestrator.Generator, store session.Store, opts ...Option) *Server {
	s := &Server{
		registry:  reg,
		generator: gen,
		sessions:  store,
		now:       time.Now,
		logger:    logx.NewLogger("http"),
		busy:      make(map[string]struct{}),
		maxBody:   DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(enableCORS)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(s.limitBody)

	r.Get("/healthz", s.health)
	r.Get("/health", s.compatHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/systems", s.listSystems)
		r.Get("/systems/{name}", s.getSystem)
		r.Get("/systems/{name}/inputs", s.systemInputs)
		r.Post("/fortune/{system}", s.fortune)

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)
			r.Get("/topics", s.listTopics)
			r.Post("/readings", s.createReading)
			r.Post("/followups", s.createFollowup)
			r.Post("/followup", s.createFollowup)
			r.Post("/chat", s.chat)
			r.Get("/events", s.sessionEvents)
		})

		r.Get("/readings", s.listReadings)
		r.Get("/readings/{readingID}", s.getReading)
		r.Get("/result/{readingID}", s.getReading)
	})
	return r
}

// enableCORS lets browser clients on any origin call the API and answers preflight
// requests itself.
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil && s.maxBody > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("%s %s -> %d (%s)", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond))
	})
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("🔮 Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

// lock claims the session for one request. The returned func releases it. Only sessions
// with a request in flight are tracked.
func (s *Server) lock(id string) (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.busy[id]; taken {
		return nil, false
	}
	s.busy[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.busy, id)
			s.mu.Unlock()
		})
	}, true
}

func (s *Server) inFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.busy)
}

type errorBody struct {
	Error string   `json:"error"`
	Kind  string   `json:"kind"`
	Valid []string `json:"valid_topics,omitempty"`
}

var (
	errSessionBusy  = errors.New("session is busy with another request")
	errBodyTooLarge = errors.New("request body too large")
)

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	if errors.Is(err, errSessionBusy) || errors.Is(err, orchestrator.ErrInvalidTransition) {
		return http.StatusConflict
	}
	if errors.Is(err, errBodyTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindInvalidInput, apperrors.KindInvalidTopic:
		return http.StatusBadRequest
	case apperrors.KindUnknownSystem:
		return http.StatusNotFound
	case apperrors.KindNoActiveSession:
		return http.StatusConflict
	case apperrors.KindFatalLLM:
		return http.StatusBadGateway
	case apperrors.KindRetryExhausted:
		return http.StatusServiceUnavailable
	case apperrors.KindCanceled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("%s %s failed: %v", r.Method, r.URL.Path, err)
	} else {
		s.logger.Debug("%s %s rejected: %v", r.Method, r.URL.Path, err)
	}

	body := errorBody{Error: err.Error(), Kind: apperrors.KindOf(err).String()}
	switch {
	case errors.Is(err, errSessionBusy):
		body.Kind = "busy"
	case errors.Is(err, errBodyTooLarge):
		body.Kind = "too_large"
	}
	var topicErr *apperrors.InvalidTopicError
	if errors.As(err, &topicErr) {
		body.Valid = topicErr.Valid
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Warnf("response encode failed: %v", err)
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return decodeError(dec.Decode(v))
}

func decodeError(err error) error {
	if err == nil {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: limit is %d bytes", errBodyTooLarge, tooLarge.Limit)
	}
	return apperrors.Wrap(apperrors.KindInvalidInput, err, "请求格式错误")
}
