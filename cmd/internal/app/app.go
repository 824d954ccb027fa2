// Package app wires the DayCheck client runtime: config, logging, the REST
// client, the session manager and the notification stream, plus the CLI on top.
package app

import (
	"context"
	"fmt"

	"daycheck/cmd/internal/auth/session"
	"daycheck/cmd/internal/metrics"
	"daycheck/cmd/internal/realtime"
	"daycheck/cmd/internal/restapi"

	"github.com/prometheus/client_golang/prometheus"
)

// App is one client process: a REST client shared by every component,
// the token store, and the session manager that owns the bearer.
type App struct {
	cfg Config
	log Logger

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	api      *restapi.Client
	tokens   session.TokenStore
	sessions *session.Manager
}

// New constructs a fully wired App. The session is not restored yet; call Initialize.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	api, err := restapi.New(cfg.APIURL,
		restapi.WithLogger(log),
		restapi.WithRequestTimeout(cfg.HTTPTimeout),
		restapi.WithUserAgent("daycheck-cli"),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	tokens, err := session.OpenStore(ctx, cfg.StoreConfig())
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	mx := metrics.New(registry)

	a := &App{
		cfg:      cfg,
		log:      log,
		registry: registry,
		metrics:  mx,
		api:      api,
		tokens:   tokens,
		sessions: session.NewManager(api, tokens,
			session.WithLogger(log),
			session.WithMetrics(mx),
			session.WithMessages(session.MessagesFor(cfg.Locale)),
		),
	}
	log.Debug("app.ready", "api_url", cfg.APIURL, "token_store", cfg.TokenStore)
	return a, nil
}

// Initialize restores the persisted session.
func (a *App) Initialize(ctx context.Context) session.Snapshot {
	a.sessions.Initialize(ctx)
	return a.sessions.Snapshot()
}

// Config returns the validated configuration.
func (a *App) Config() Config { return a.cfg }

// API returns the shared REST client.
func (a *App) API() *restapi.Client { return a.api }

// Sessions returns the session manager.
func (a *App) Sessions() *session.Manager { return a.sessions }

// Registry holds the client metrics.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// NewInbox builds an empty unread list backed by the REST client.
func (a *App) NewInbox() *realtime.Inbox {
	return realtime.NewInbox(a.api, realtime.WithInboxLogger(a.log))
}

// NewStream builds an idle stream for the current session that feeds inbox.
func (a *App) NewStream(inbox *realtime.Inbox) *realtime.Stream {
	return realtime.NewStream(realtime.NewHTTPDialer(a.api),
		realtime.WithInbox(inbox),
		realtime.WithStreamLogger(a.log),
		realtime.WithStreamMetrics(a.metrics),
		realtime.WithReconnectDelay(a.cfg.StreamReconnectDelay),
		realtime.WithMaxReconnects(a.cfg.StreamMaxReconnects),
	)
}

// Close releases the token store.
func (a *App) Close() error {
	if a.tokens == nil {
		return nil
	}
	if err := a.tokens.Close(); err != nil {
		a.log.Error("app.tokens.close.fail", "err", err)
		return err
	}
	return nil
}
