package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jbweber/strata/internal/logger"
	"github.com/jbweber/strata/internal/metrics"
)

// Flags
var (
	metricsListen string
)

func init() {
	serveMetricsCmd.Flags().StringVar(&metricsListen, "listen", "", "Listen address (overrides metrics.listen)")
}

var serveMetricsCmd = &cobra.Command{
	Use:   "serve-metrics",
	Short: "Serve pool and volume metrics for Prometheus",
	Long: `Serve /metrics with pool and volume capacity gauges and lvm command
counters. The lvm state is re-read every metrics.interval.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		interval, err := cfg.Metrics.IntervalDuration()
		if err != nil {
			return err
		}
		listen := cfg.Metrics.Listen
		if metricsListen != "" {
			listen = metricsListen
		}

		rt, err := loadRuntime(ctx)
		if err != nil {
			return err
		}

		sources := make([]metrics.StatsSource, 0, len(rt.pools))
		for _, name := range rt.poolNames(nil) {
			sources = append(sources, rt.pools[name])
		}
		if err := rt.registry.Register(metrics.NewCollector(sources...)); err != nil {
			return fmt.Errorf("failed to register collector: %w", err)
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(rt.registry))
		srv := &http.Server{
			Addr:              listen,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		fmt.Printf("✓ Serving metrics on %s/metrics\n", listen)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			refreshLoop(gctx, rt, interval)
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

// refreshLoop re-reads lvm state until ctx is done. Failures are logged and
// the previous state keeps being served.
func refreshLoop(ctx context.Context, rt *runtime, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rt.refresh(ctx); err != nil {
				logger.Log.Warn("Failed to refresh lvm state", logger.Ctx{"err": err})
			}
		}
	}
}
