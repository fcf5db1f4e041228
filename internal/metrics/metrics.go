// Package metrics provides Prometheus instrumentation for the scan loop.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// CyclesTotal counts scan cycles by result.
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "silvermon_cycles_total",
		Help: "Scan cycles executed, by result",
	}, []string{"result"})

	// CycleDuration tracks how long one scan cycle takes.
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "silvermon_cycle_duration_seconds",
		Help:    "Scan cycle duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	// ListingsTotal counts classified listings by outcome.
	ListingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "silvermon_listings_total",
		Help: "Listings classified, by outcome",
	}, []string{"outcome"})

	// RejectionsTotal counts MISS and INELIGIBLE listings by reason bucket.
	RejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "silvermon_rejections_total",
		Help: "Rejected listings, by reason bucket",
	}, []string{"reason"})

	// BenchmarkWrites counts capture attempts by whether the store accepted them.
	BenchmarkWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "silvermon_benchmark_writes_total",
		Help: "Benchmark capture attempts, by result",
	}, []string{"result"})

	// BenchmarkKeys tracks the number of identities with a benchmark.
	BenchmarkKeys = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "silvermon_benchmark_keys",
		Help: "Identities with an EMA benchmark",
	})

	// NotificationsTotal counts notifications by channel and result.
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "silvermon_notifications_total",
		Help: "Notifications sent, by channel and result",
	}, []string{"channel", "result"})

	// LastCycle records the completion time of the last successful cycle.
	LastCycle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "silvermon_last_cycle_timestamp_seconds",
		Help: "Unix time of the last successful scan cycle",
	})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics endpoint listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
