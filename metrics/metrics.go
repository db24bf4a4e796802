// Package metrics holds the Prometheus collectors for the trends pipeline.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics holds all Prometheus collectors for the pipeline. The collectors
// exist from process start so instrumented code never checks for nil;
// Register exposes them on a registry.
var Metrics = struct {
	APICalls      *prometheus.CounterVec
	QuotaUnits    *prometheus.CounterVec
	FetchRetries  *prometheus.CounterVec
	CacheRequests *prometheus.CounterVec
	Credentials   *prometheus.GaugeVec
	StageDuration *prometheus.HistogramVec
}{
	APICalls: prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trends_api_calls_total",
			Help: "YouTube Data API calls, by operation and outcome.",
		},
		[]string{"op", "outcome"},
	),
	QuotaUnits: prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trends_quota_units_total",
			Help: "Quota units billed, by operation.",
		},
		[]string{"op"},
	),
	FetchRetries: prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trends_fetch_retries_total",
			Help: "Retried API attempts, by operation.",
		},
		[]string{"op"},
	),
	CacheRequests: prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trends_cache_requests_total",
			Help: "TTL cache lookups, by result.",
		},
		[]string{"result"},
	),
	Credentials: prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trends_pool_credentials",
			Help: "Registered credentials, by status.",
		},
		[]string{"status"},
	),
	StageDuration: prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trends_stage_duration_seconds",
			Help:    "Duration of pipeline stages.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	),
}

// Register adds every collector to reg. Registering twice is not an error.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		Metrics.APICalls,
		Metrics.QuotaUnits,
		Metrics.FetchRetries,
		Metrics.CacheRequests,
		Metrics.Credentials,
		Metrics.StageDuration,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveStage records how long a pipeline stage took
func ObserveStage(stage string, start time.Time) {
	Metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Serve exposes the default registry on addr under /metrics until the
// returned server is shut down.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("Metrics listener stopped")
		}
	}()

	log.Info().Str("addr", addr).Msg("Serving Prometheus metrics")
	return srv
}
