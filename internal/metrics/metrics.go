// Package metrics exposes download and playback counters in the Prometheus
// format. A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/audiokeeper/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "audiokeeper"

type Metrics struct {
	registry *prometheus.Registry

	downloads         *prometheus.CounterVec
	downloadedBytes   prometheus.Counter
	inflight          prometheus.Gauge
	accessDenied      prometheus.Counter
	integrityFailures prometheus.Counter
	cleanupFailures   prometheus.Counter
	sessionStates     *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Finished downloads by result.",
		}, []string{"result"}),
		downloadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Plaintext bytes fetched from remote sources.",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "downloads_in_flight",
			Help:      "Downloads currently running.",
		}),
		accessDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_denied_total",
			Help:      "Playback requests rejected by the access guard.",
		}),
		integrityFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integrity_failures_total",
			Help:      "Artifacts purged after failing authentication.",
		}),
		cleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_failures_total",
			Help:      "Decrypted playback copies that could not be deleted.",
		}),
		sessionStates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Playback session transitions by target state.",
		}, []string{"state"}),
	}

	m.registry.MustRegister(
		m.downloads,
		m.downloadedBytes,
		m.inflight,
		m.accessDenied,
		m.integrityFailures,
		m.cleanupFailures,
		m.sessionStates,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) DownloadStarted() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

// DownloadFinished records the result ("downloaded", "cached", "failed",
// "cancelled") of a download started with DownloadStarted.
func (m *Metrics) DownloadFinished(result string, bytes int64) {
	if m == nil {
		return
	}
	m.inflight.Dec()
	m.downloads.WithLabelValues(result).Inc()
	if bytes > 0 {
		m.downloadedBytes.Add(float64(bytes))
	}
}

func (m *Metrics) AccessDenied() {
	if m == nil {
		return
	}
	m.accessDenied.Inc()
}

func (m *Metrics) IntegrityFailure() {
	if m == nil {
		return
	}
	m.integrityFailures.Inc()
}

func (m *Metrics) CleanupFailure() {
	if m == nil {
		return
	}
	m.cleanupFailures.Inc()
}

func (m *Metrics) SessionState(state string) {
	if m == nil {
		return
	}
	m.sessionStates.WithLabelValues(state).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log logging.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info(ctx, "metrics listener started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
