// Package metrics exposes Prometheus counters for the sign-in and submission flow.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the flow metrics on a private Prometheus registry.
type Registry struct {
	registry           *prometheus.Registry
	signInsTotal       *prometheus.CounterVec
	derivationsTotal   *prometheus.CounterVec
	submissionsTotal   *prometheus.CounterVec
	submissionDuration prometheus.Histogram
	sessionReady       prometheus.Gauge
}

// New creates a registry with all flow metrics registered.
func New() *Registry {
	signIns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aaflow_sign_ins_total",
		Help: "Sign-in attempts by result",
	}, []string{"result"})

	derivations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aaflow_derivations_total",
		Help: "Smart account derivations by result",
	}, []string{"result"})

	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aaflow_submissions_total",
		Help: "Demo transaction submissions by result",
	}, []string{"result"})

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "aaflow_submission_duration_seconds",
		Help:    "Time from submission to inclusion",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
	})

	ready := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "aaflow_session_ready",
		Help: "1 while a smart account client is available",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(signIns, derivations, submissions, duration, ready)

	return &Registry{
		registry:           r,
		signInsTotal:       signIns,
		derivationsTotal:   derivations,
		submissionsTotal:   submissions,
		submissionDuration: duration,
		sessionReady:       ready,
	}
}

// Gatherer exposes the underlying registry.
func (m *Registry) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncSignIn counts a sign-in attempt by result.
func (m *Registry) IncSignIn(result string) {
	m.signInsTotal.WithLabelValues(result).Inc()
}

// IncDerivation counts a smart account derivation by result.
func (m *Registry) IncDerivation(result string) {
	m.derivationsTotal.WithLabelValues(result).Inc()
}

// IncSubmission counts a demo transaction submission by result.
func (m *Registry) IncSubmission(result string) {
	m.submissionsTotal.WithLabelValues(result).Inc()
}

// ObserveSubmission records how long a submission took.
func (m *Registry) ObserveSubmission(d time.Duration) {
	m.submissionDuration.Observe(d.Seconds())
}

// SetReady sets whether the session has a ready smart account client.
func (m *Registry) SetReady(ready bool) {
	if ready {
		m.sessionReady.Set(1)
		return
	}
	m.sessionReady.Set(0)
}

// Serve exposes /metrics on addr until ctx ends.
func (m *Registry) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
