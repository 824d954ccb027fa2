package devserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"daycheck/cmd/internal/metrics"
	"daycheck/cmd/security/password"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server owns the dev backend: store, broker, service and HTTP stack.
type Server struct {
	cfg      Config
	log      *slog.Logger
	clock    clockwork.Clock
	pw       password.Config
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	store   *Store
	broker  *Broker
	svc     *Service
	handler http.Handler
}

type Option func(*Server)

func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(s *Server) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithPasswordConfig overrides the Argon2id cost and password policy.
func WithPasswordConfig(pw password.Config) Option {
	return func(s *Server) { s.pw = pw }
}

// New opens the store and wires every component. Close releases them.
func New(ctx context.Context, cfg Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		cfg:      cfg,
		log:      slog.Default(),
		clock:    clockwork.NewRealClock(),
		pw:       password.DefaultConfig(),
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.metrics = metrics.New(s.registry)

	store, err := OpenStore(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	s.store = store
	s.broker = NewBroker(s.log, s.metrics, cfg.SSEQueueSize)

	svc, err := NewService(cfg, s.pw, store, s.broker, s.clock, s.log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	s.svc = svc

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	NewHandler(cfg, svc, store, s.broker, s.clock, s.log).Register(mux)

	var h http.Handler = mux
	h = WithCORS(h, cfg.CORSOrigins)
	h = WithSecurityHeaders(h)
	h = WithRequestID(h)
	s.handler = WithRequestLogging(h, s.log, s.metrics)
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) Service() *Service { return s.svc }

func (s *Server) Registry() *prometheus.Registry { return s.registry }

// Close ends open streams and closes the store.
func (s *Server) Close() error {
	s.broker.Close()
	return s.store.Close()
}

// Run serves on cfg.Addr until ctx is done, then shuts down. Streams are
// ended first so Shutdown does not wait on them.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener. It closes the Server on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No WriteTimeout: SSE responses stay open.
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	s.log.Info("devserver.start", "addr", ln.Addr().String(), "base_url", runtimeBaseURL(ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("devserver.stop", "reason", "context_done")
	case err := <-errCh:
		s.log.Error("devserver.fail", "err", err)
		_ = s.Close()
		return err
	}

	s.broker.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error("devserver.shutdown.fail", "err", err)
		_ = s.store.Close()
		return err
	}
	if err := s.store.Close(); err != nil {
		s.log.Error("store.close.fail", "err", err)
	}
	s.log.Info("devserver.stopped")
	return nil
}

// runtimeBaseURL turns a listen address into a URL a local client can dial.
// Wildcard hosts become 127.0.0.1.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}
