// Package server receives platform events over HTTP and hands them to the
// extension.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/VTimofeenko/connect-autoapprove/internal/connect"
	"github.com/VTimofeenko/connect-autoapprove/internal/extension"
)

const maxBodyBytes = 1 << 20

// Processor handles one event. *extension.Extension satisfies it.
type Processor interface {
	Dispatch(ctx context.Context, eventType string, req *connect.Request) (extension.Result, error)
}

// Settings configures the listener.
type Settings struct {
	Listen          string
	Token           string // empty disables the bearer check
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
}

// Event is the body of POST /v1/events.
type Event struct {
	EventType string           `json:"event_type"`
	Request   *connect.Request `json:"request"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Server serves the event endpoint and a health check.
type Server struct {
	settings  Settings
	processor Processor
	logger    *zap.Logger

	mu       sync.RWMutex
	listener net.Listener
	started  time.Time
	handled  int64
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Server.
func New(settings Settings, processor Processor, opts ...Option) *Server {
	if settings.ShutdownTimeout <= 0 {
		settings.ShutdownTimeout = 10 * time.Second
	}
	if settings.ReadTimeout <= 0 {
		settings.ReadTimeout = 15 * time.Second
	}
	if settings.WriteTimeout <= 0 {
		settings.WriteTimeout = 60 * time.Second
	}
	s := &Server{
		settings:  settings,
		processor: processor,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/events", s.handleEvent)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Run listens until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.settings.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.settings.Listen, err)
	}
	return s.Serve(ctx, listener)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
	}

	s.mu.Lock()
	s.listener = listener
	s.started = time.Now()
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	s.logger.Info("listening", zap.String("addr", listener.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", zap.Duration("timeout", s.settings.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.settings.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	<-errCh
	return nil
}

// Addr returns the bound address once serving.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	started, handled := s.started, s.handled
	s.mu.RUnlock()

	body := map[string]any{"status": "ok", "handled": handled}
	if !started.IsZero() {
		body["uptime_seconds"] = int64(time.Since(started).Seconds())
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid or missing bearer token"})
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "failed to read body: " + err.Error()})
		return
	}

	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid event: " + err.Error()})
		return
	}
	if ev.Request == nil || ev.Request.ID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "event has no request"})
		return
	}
	if ev.EventType == "" {
		ev.EventType = ev.Request.Type
	}
	if !extension.Handles(ev.EventType) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("unsupported event type %q", ev.EventType)})
		return
	}

	log := s.logger.With(zap.String("event", ev.EventType), zap.String("request", ev.Request.ID))
	log.Debug("event received")

	res, err := s.processor.Dispatch(r.Context(), ev.EventType, ev.Request)

	s.mu.Lock()
	s.handled++
	s.mu.Unlock()

	if err != nil || res.IsFail() {
		log.Warn("event failed", zap.String("message", res.Message), zap.Error(err))
		writeJSON(w, http.StatusUnprocessableEntity, res)
		return
	}
	log.Info("event handled", zap.String("status", string(res.Status)))
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.settings.Token == "" {
		return true
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.settings.Token)) == 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
