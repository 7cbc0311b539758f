// Package metrics exposes Prometheus counters for the consume/dispatch/ack pipeline.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ibs-source/stream-consumer/internal/log"
)

const namespace = "stream_consumer"

// Failure stages
const (
	StageRead        = "read"
	StageDeserialize = "deserialize"
	StageHandler     = "handler"
	StagePublish     = "publish"
	StageAck         = "ack"
	StageDelete      = "delete"
	StageRegister    = "register"
	StageDispatch    = "dispatch"
)

// Metrics holds every collector. A nil *Metrics records nothing.
type Metrics struct {
	consumed       *prometheus.CounterVec
	handled        *prometheus.CounterVec
	acked          *prometheus.CounterVec
	deleted        *prometheus.CounterVec
	published      *prometheus.CounterVec
	claimed        *prometheus.CounterVec
	failures       *prometheus.CounterVec
	handlerLatency *prometheus.HistogramVec
	inFlight       prometheus.Gauge
	faults         prometheus.Counter
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		consumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_consumed_total",
			Help:      "Entries delivered by XREADGROUP or claimed from idle consumers",
		}, []string{"stream"}),
		handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_handled_total",
			Help:      "Handler invocations by outcome",
		}, []string{"stream", "outcome"}),
		acked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_acked_total",
			Help:      "Entries acknowledged with XACK",
		}, []string{"stream"}),
		deleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_deleted_total",
			Help:      "Entries removed with XDEL after acknowledgement",
		}, []string{"stream"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_published_total",
			Help:      "Responses appended with XADD",
		}, []string{"stream"}),
		claimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_claimed_total",
			Help:      "Pending entries taken over from idle consumers",
		}, []string{"stream"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Failures by pipeline stage",
		}, []string{"stream", "stage"}),
		handlerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Handler execution time",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stream"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entries_in_flight",
			Help:      "Entries currently being handled",
		}),
		faults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_faults_total",
			Help:      "Connection faults that stopped the consumer",
		}),
	}

	reg.MustRegister(
		m.consumed, m.handled, m.acked, m.deleted, m.published, m.claimed,
		m.failures, m.handlerLatency, m.inFlight, m.faults,
	)
	return m
}

// Consumed counts n entries read from stream
func (m *Metrics) Consumed(stream string, n int) {
	if m == nil {
		return
	}
	m.consumed.WithLabelValues(stream).Add(float64(n))
}

// Handled records one handler call and its duration
func (m *Metrics) Handled(stream, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.handled.WithLabelValues(stream, outcome).Inc()
	m.handlerLatency.WithLabelValues(stream).Observe(d.Seconds())
}

// Acked counts one XACK
func (m *Metrics) Acked(stream string) {
	if m == nil {
		return
	}
	m.acked.WithLabelValues(stream).Inc()
}

// Deleted counts one XDEL
func (m *Metrics) Deleted(stream string) {
	if m == nil {
		return
	}
	m.deleted.WithLabelValues(stream).Inc()
}

// Published counts one XADD
func (m *Metrics) Published(stream string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(stream).Inc()
}

// Claimed counts n entries taken over from idle consumers
func (m *Metrics) Claimed(stream string, n int) {
	if m == nil {
		return
	}
	m.claimed.WithLabelValues(stream).Add(float64(n))
}

// Failed counts one failure at stage
func (m *Metrics) Failed(stream, stage string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(stream, stage).Inc()
}

// InFlight adjusts the in-flight gauge by delta
func (m *Metrics) InFlight(delta int) {
	if m == nil {
		return
	}
	m.inFlight.Add(float64(delta))
}

// Fault counts one connection fault
func (m *Metrics) Fault() {
	if m == nil {
		return
	}
	m.faults.Inc()
}

// Serve exposes /metrics on addr until ctx is canceled
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *log.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Metrics endpoint listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
