package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"keydesk/client"
	"keydesk/store"
)

func newDashboardCommand(cfgPath *string) *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show the account dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.requireSession(); err != nil {
				return err
			}

			if !watch {
				return renderDashboard(ctx, a, cmd)
			}
			if interval <= 0 {
				return fmt.Errorf("invalid --interval %s", interval)
			}
			return watchDashboard(ctx, a, cmd, interval)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Refresh on an interval until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "Refresh interval for --watch")
	return cmd
}

func renderDashboard(ctx context.Context, a *app, cmd *cobra.Command) error {
	if err := a.dashboard.Fetch(ctx); err != nil {
		return friendly(err, a.dashboard.State().Error)
	}

	state := a.dashboard.State()
	out, err := a.render.Render("dashboard.tmpl", snapshotFromState(state))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

func watchDashboard(ctx context.Context, a *app, cmd *cobra.Command, interval time.Duration) error {
	srv := startMetricsServer(a)
	if srv != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := renderDashboard(ctx, a, cmd); err != nil {
			// Transient fetch failures keep the loop alive; the next tick
			// retries with fresh state.
			log.Warn().Err(err).Msg("dashboard refresh failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func snapshotFromState(state store.DashboardState) client.DashboardSnapshot {
	snap := client.DashboardSnapshot{Registrations: state.Registrations}
	if state.User != nil {
		snap.User = *state.User
	}
	return snap
}

// startMetricsServer exposes the client's Prometheus registry while a watch
// loop runs. A configured empty address disables it.
func startMetricsServer(a *app) *http.Server {
	if a.cfg.MetricsAddr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn().Err(err).Msg("metrics server")
		}
	}()
	return srv
}
