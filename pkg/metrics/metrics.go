// Package metrics exposes Prometheus counters for run polling, turns and
// streamed fragments. A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Registry *prometheus.Registry

	StatusReads     *prometheus.CounterVec
	RunsFinished    *prometheus.CounterVec
	Turns           *prometheus.CounterVec
	RunWait         prometheus.Histogram
	StreamFragments prometheus.Counter
}

// New registers the client collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		StatusReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anbud",
			Name:      "run_status_reads_total",
			Help:      "Run status reads by observed status.",
		}, []string{"status"}),
		RunsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anbud",
			Name:      "runs_finished_total",
			Help:      "Runs that reached a terminal status, or timed out.",
		}, []string{"status"}),
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anbud",
			Name:      "turns_total",
			Help:      "Conversation turns by outcome.",
		}, []string{"outcome"}),
		RunWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "anbud",
			Name:      "run_wait_seconds",
			Help:      "Time spent waiting for runs to finish.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		StreamFragments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "anbud",
			Name:      "stream_fragments_total",
			Help:      "Text fragments received from streaming completions.",
		}),
	}
	m.Registry.MustRegister(m.StatusReads, m.RunsFinished, m.Turns, m.RunWait, m.StreamFragments)
	return m
}

func (m *Metrics) StatusRead(status string) {
	if m == nil {
		return
	}
	m.StatusReads.WithLabelValues(status).Inc()
}

func (m *Metrics) RunFinished(status string, waited time.Duration) {
	if m == nil {
		return
	}
	m.RunsFinished.WithLabelValues(status).Inc()
	m.RunWait.Observe(waited.Seconds())
}

func (m *Metrics) Turn(outcome string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Fragment() {
	if m == nil {
		return
	}
	m.StreamFragments.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, m *Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
