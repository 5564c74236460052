// Package metrics exposes pipeline health as Prometheus metrics.
package metrics

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all counters and gauges for one daemon instance. Each
// instance carries its own registry so tests can run several in parallel.
type Metrics struct {
	registry *prometheus.Registry

	ChunksEmitted   prometheus.Counter
	ChunksDropped   prometheus.Counter
	SendsDropped    prometheus.Counter
	Reconnects      prometheus.Counter
	TranscriptLines prometheus.Counter
	AnswerRequests  prometheus.Counter
	AnswerFailures  prometheus.Counter
	ConnectionState prometheus.Gauge
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		ChunksEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_chunks_emitted_total",
			Help: "Total audio chunks emitted by the chunk buffer",
		}),
		ChunksDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_chunks_dropped_total",
			Help: "Total audio chunks evicted because the consumer stalled",
		}),
		SendsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_sends_dropped_total",
			Help: "Total chunks dropped because the transport was not open",
		}),
		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_transport_reconnects_total",
			Help: "Total transport reconnection attempts",
		}),
		TranscriptLines: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_transcript_lines_total",
			Help: "Total transcript lines received from the backend",
		}),
		AnswerRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_answer_requests_total",
			Help: "Total answer requests dispatched",
		}),
		AnswerFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_answer_failures_total",
			Help: "Total answer requests that resolved to failed",
		}),
		ConnectionState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meetscribe_transport_connected",
			Help: "1 while the transport connection is open, 0 otherwise",
		}),
	}
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("metrics: serving on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("metrics: server error: %v", err)
	}
}
