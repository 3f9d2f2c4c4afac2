package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimd "github.com/go-chi/chi/v5/middleware"

	"commbus/internal/logging"
	"commbus/internal/messaging"
	"commbus/internal/storage"
)

const (
	defaultReadTimeout = 10 * time.Second
	maxDispatchBytes   = 1 << 20
	defaultErrorLimit  = 50
	maxErrorLimit      = 1000
)

// ErrorReader is the read side of the error journal.
type ErrorReader interface {
	Recent(limit int) ([]storage.ErrorRecord, error)
	Get(id string) (storage.ErrorRecord, error)
}

// Server is the HTTP ingress: it turns POSTed descriptions into dispatch
// events and exposes the error journal.
type Server struct {
	bus             messaging.Bus
	dispatchSubject string
	errors          ErrorReader
	metrics         http.Handler
	health          func() error
	logger          logging.Logger

	addr        string
	readTimeout time.Duration

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	serveDone  chan struct{}
}

type Option func(*Server)

func WithLogger(l logging.Logger) Option { return func(s *Server) { s.logger = l } }

// WithErrors exposes journal records under /v1/errors.
func WithErrors(r ErrorReader) Option { return func(s *Server) { s.errors = r } }

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(h http.Handler) Option { return func(s *Server) { s.metrics = h } }

// WithHealthCheck makes /healthz answer 503 while check returns an error.
func WithHealthCheck(check func() error) Option { return func(s *Server) { s.health = check } }

func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

func NewServer(addr string, bus messaging.Bus, dispatchSubject string, opts ...Option) *Server {
	s := &Server{
		bus:             bus,
		dispatchSubject: dispatchSubject,
		addr:            addr,
		readTimeout:     defaultReadTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = logging.NewDefaultLogger()
	}
	return s
}

// Router builds the route table. Exposed for tests and embedding.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimd.RequestID)
	r.Use(chimd.Recoverer)
	r.Use(s.accessLog)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Route("/v1", func(r chi.Router) {
		r.Post("/dispatch", s.handleDispatch)
		if s.errors != nil {
			r.Get("/errors", s.handleErrors)
			r.Get("/errors/{id}", s.handleErrorByID)
		}
	})
	return r
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return fmt.Errorf("api server already started")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: s.readTimeout,
		ReadTimeout:       s.readTimeout,
	}
	s.serveDone = make(chan struct{})

	srv, done := s.httpServer, s.serveDone
	go func() {
		defer close(done)
		s.logger.Info("HTTP ingress starting", "addr", listener.Addr().String())
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP ingress error", "error", err)
		}
	}()
	return nil
}

// Addr is the bound address once started, the configured one otherwise.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop shuts the server down gracefully within ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.httpServer, s.serveDone
	s.httpServer, s.listener, s.serveDone = nil, nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	err := srv.Shutdown(ctx)
	<-done
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimd.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Debug("HTTP request",
				"request_id", chimd.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"latency", time.Since(start),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
