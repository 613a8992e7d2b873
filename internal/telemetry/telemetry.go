// Package telemetry exposes the fuzzer loop's progress as Prometheus
// metrics on an optional local HTTP listener.
package telemetry

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Telemetry holds the Prometheus collectors the loop updates each iteration.
type Telemetry struct {
	Iterations     prometheus.Counter
	SeedsLive      prometheus.Gauge
	AnomaliesTotal *prometheus.CounterVec
	PoolEnergy     prometheus.Gauge

	server *http.Server
}

// New registers the collectors against a fresh registry.
func New() *Telemetry {
	t := &Telemetry{
		Iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "permfuzz_iterations_total",
			Help: "Total number of fuzzer loop iterations executed.",
		}),
		SeedsLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "permfuzz_seeds_live",
			Help: "Number of seeds currently live in the pool.",
		}),
		AnomaliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "permfuzz_anomalies_total",
			Help: "Total number of confirmed anomalies, by kind.",
		}, []string{"kind"}),
		PoolEnergy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "permfuzz_pool_energy_total",
			Help: "Sum of energy across all live seeds in the pool.",
		}),
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(t.Iterations, t.SeedsLive, t.AnomaliesTotal, t.PoolEnergy)

	t.server = &http.Server{
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	return t
}

// Serve starts the metrics HTTP listener on addr and blocks until ctx is
// canceled, at which point it shuts the server down gracefully.
func (t *Telemetry) Serve(ctx context.Context, addr string) error {
	t.server.Addr = addr
	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting metrics listener", slog.String("addr", addr))
		if err := t.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
