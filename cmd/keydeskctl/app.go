package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"keydesk/client"
	"keydesk/internal/config"
	"keydesk/pkg/bus"
	"keydesk/pkg/render"
	"keydesk/pkg/telemetry"
	"keydesk/pkg/vault"
	"keydesk/store"
)

// app bundles the wired client, stores, and side services for one command
// invocation. Commands construct it after flag parsing and close it on exit.
type app struct {
	cfg       config.Config
	api       *client.Client
	vault     vault.Vault
	bus       *bus.Bus
	auth      *store.AuthStore
	dashboard *store.DashboardStore
	keys      *store.KeysStore
	render    *render.Engine
	registry  *prometheus.Registry

	shutdownTracing func(context.Context) error
	closers         []func()
}

func newApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(ctx, cfgPath)
	if err != nil {
		return nil, err
	}
	if cfg.APIBaseURL == "" {
		return nil, errors.New("api base URL not configured (set KEYDESK_API or api_base_url)")
	}

	a := &app{cfg: cfg}

	var (
		transport http.RoundTripper
		logger    *stdlog.Logger
	)
	if cfg.OTLPEndpoint != "" {
		shutdown, wrapTransport, telemetryLogger, err := telemetry.Init(ctx, "keydeskctl")
		if err != nil {
			return nil, err
		}
		a.shutdownTracing = shutdown
		transport = wrapTransport(nil)
		logger = telemetryLogger
	}

	a.registry = prometheus.NewRegistry()
	metrics := client.NewMetrics(a.registry)

	api, err := client.New(client.Config{
		BaseURL:           cfg.APIBaseURL,
		AllowInsecureHTTP: cfg.AllowInsecureHTTP || client.AllowInsecureFromEnv(),
		Timeout:           cfg.RequestTimeout,
		Transport:         transport,
		Logger:            logger,
		Metrics:           metrics,
	})
	if err != nil {
		return nil, err
	}
	a.api = api

	if cfg.RedisURL != "" {
		rv, err := vault.NewRedisVault(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis vault: %w", err)
		}
		a.vault = rv
		a.closers = append(a.closers, func() { _ = rv.Close() })
	} else {
		fv, err := vault.NewFileVault(cfg.VaultDir())
		if err != nil {
			return nil, fmt.Errorf("file vault: %w", err)
		}
		a.vault = fv
	}

	var events store.Publisher
	if cfg.NATSURL != "" {
		b, err := bus.Connect(cfg.NATSURL)
		if err != nil {
			// Events are advisory, a dead broker must not block the CLI.
			log.Warn().Err(err).Str("url", cfg.NATSURL).Msg("event bus unavailable")
		} else {
			a.bus = b
			events = b
			a.closers = append(a.closers, b.Close)
		}
	}

	a.auth = store.NewAuthStore(ctx, api, a.vault, store.AuthOptions{Logger: logger, Events: events})
	a.dashboard = store.NewDashboardStore(api, logger)
	a.keys = store.NewKeysStore(api, store.KeysOptions{Logger: logger, Events: events})

	a.render, err = render.New()
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	a.auth.Drain()
	for _, closer := range a.closers {
		closer()
	}
	if a.shutdownTracing != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdownTracing(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown tracing")
		}
	}
}

func (a *app) requireSession() error {
	if !a.auth.State().Authenticated {
		return fmt.Errorf(`%w, run "keydeskctl login" first`, store.ErrNotAuthenticated)
	}
	return nil
}

// friendly prefers the store's user-facing error message over the raw
// transport error.
func friendly(err error, message string) error {
	if message != "" {
		return errors.New(message)
	}
	return err
}
