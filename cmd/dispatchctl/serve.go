package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/shardha/internal/persist"
	"github.com/cuemby/shardha/pkg/dashboard"
	"github.com/cuemby/shardha/pkg/metrics"
)

const shutdownGrace = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the metrics and health-check HTTP endpoint",
	Long: `Serves /metrics (Prometheus exposition), /healthz, /readyz and
/livez on cfg.Metrics.ListenAddr (see --config). This process exports
metrics only — it does not itself run a dispatch loop; pair it with a
program that constructs pkg/dispatch.Dispatcher with the same
pkg/metrics.Registry wired in as its OutcomeRecorder.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Metrics.Enabled {
			return fmt.Errorf("metrics are disabled in the active config (metrics.enabled: false)")
		}

		reg := metrics.NewRegistry()
		metrics.RegisterDispatcher(dashboard.NewStorage())

		if cfg.Persist.Enabled {
			store, err := persist.Open(cfg.Persist.Path)
			if err != nil {
				return fmt.Errorf("open dashboard snapshot store: %w", err)
			}
			defer store.Close()
			metrics.RegisterPersistence(store, true)
		} else {
			metrics.RegisterPersistence(nil, false)
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", reg.Handler())
		mux.Handle("/healthz", metrics.HealthHandler())
		mux.Handle("/readyz", metrics.ReadyHandler())
		mux.Handle("/livez", metrics.LivenessHandler())

		srv := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}

		errCh := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
		fmt.Printf("serving metrics on http://%s/metrics\n", cfg.Metrics.ListenAddr)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		select {
		case <-ctx.Done():
			fmt.Println("shutting down...")
		case err := <-errCh:
			return fmt.Errorf("metrics server: %w", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}
