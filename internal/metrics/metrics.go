// Package metrics exposes engine operations, settled swaps and HTTP traffic to Prometheus.
package metrics

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"otc-exchange/internal/errs"
	"otc-exchange/internal/events"
)

const namespace = "otc"

type Metrics struct {
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	opDuration *prometheus.HistogramVec
	events     *prometheus.CounterVec
	swapSource *prometheus.CounterVec
	swapFees   *prometheus.CounterVec
	requests   *prometheus.CounterVec
	reqLatency *prometheus.HistogramVec
}

// New builds a Metrics on its own registry so tests and servers never share collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Engine operations segmented by outcome code.",
		}, []string{"op", "code"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Time spent inside one engine transaction.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "emitted_total",
			Help:      "Committed event records by kind.",
		}, []string{"kind"}),
		swapSource: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swaps",
			Name:      "source_amount_total",
			Help:      "Source asset base units released to takers, by source asset.",
		}, []string{"asset"}),
		swapFees: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swaps",
			Name:      "fees_total",
			Help:      "Fees paid to the fee collector in destination asset base units, by destination asset.",
		}, []string{"asset"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served.",
		}, []string{"route", "method", "status"}),
		reqLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	m.registry.MustRegister(m.operations, m.opDuration, m.events, m.swapSource, m.swapFees, m.requests, m.reqLatency)
	return m
}

// ObserveOperation records one engine operation. Successful operations are labelled "ok".
func (m *Metrics) ObserveOperation(op string, err error, elapsed time.Duration) {
	code := "ok"
	if err != nil {
		code = errs.Code(err)
		if code == "" {
			code = "internal"
		}
	}
	m.operations.WithLabelValues(op, code).Inc()
	m.opDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) Emit(_ context.Context, rec events.Record) {
	m.events.WithLabelValues(string(rec.Kind)).Inc()
	if rec.Kind != events.KindSwapExecuted {
		return
	}
	if rec.SourceMint != nil {
		m.swapSource.WithLabelValues(rec.SourceMint.String()).Add(float64(rec.AmountSource))
	}
	if rec.DestinationMint != nil {
		m.swapFees.WithLabelValues(rec.DestinationMint.String()).Add(float64(rec.FeeAmount))
	}
}

// Middleware counts requests by their chi route pattern to keep label cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		m.reqLatency.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the middleware.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}
