// Package metrics exposes Prometheus instrumentation for analysis runs, upstream
// sources and the HTTP API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickydata-indexer/curation-signal-optimizer/internal/circuitbreaker"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/model"
)

const namespace = "curation"

// Metrics holds the Prometheus collectors. It implements observe.Observer.
type Metrics struct {
	requestCounter   *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	runDuration      *prometheus.HistogramVec
	sourceErrors     *prometheus.CounterVec
	endpointAttempts *prometheus.CounterVec
	priceSource      *prometheus.GaugeVec
	unitPrice        prometheus.Gauge
	breakerState     *prometheus.GaugeVec
	opportunities    *prometheus.CounterVec
	positions        *prometheus.CounterVec
	droppedPositions *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of API requests processed",
			},
			[]string{"route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Analysis run duration in seconds, fetches included",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"kind"},
		),
		sourceErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_errors_total",
				Help:      "Upstream source failures that degraded a run",
			},
			[]string{"source"},
		),
		endpointAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "endpoint_attempts_total",
				Help:      "Upstream endpoint attempts by outcome",
			},
			[]string{"source", "endpoint", "outcome"},
		),
		priceSource: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "price_source",
				Help:      "1 for the source that produced the last price quote",
			},
			[]string{"source"},
		),
		unitPrice: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "unit_price",
				Help:      "Last quoted unit price",
			},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		opportunities: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "opportunities_computed_total",
				Help:      "Opportunities computed, by telemetry presence",
			},
			[]string{"has_telemetry"},
		),
		positions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "positions_attributed_total",
				Help:      "Holder positions attributed, by source shape",
			},
			[]string{"shape"},
		),
		droppedPositions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "positions_dropped_total",
				Help:      "Holder signals dropped because the deployment was not in the catalog",
			},
			[]string{"shape"},
		),
	}

	reg.MustRegister(
		m.requestCounter,
		m.requestDuration,
		m.runDuration,
		m.sourceErrors,
		m.endpointAttempts,
		m.priceSource,
		m.unitPrice,
		m.breakerState,
		m.opportunities,
		m.positions,
		m.droppedPositions,
	)
	return m
}

func (m *Metrics) OpportunityComputed(_ model.Opportunity, hasTelemetry bool) {
	m.opportunities.WithLabelValues(strconv.FormatBool(hasTelemetry)).Inc()
}

func (m *Metrics) PositionAttributed(_ model.HolderPosition, shape model.SignalShape) {
	m.positions.WithLabelValues(shape.String()).Inc()
}

func (m *Metrics) PositionDropped(_, _ string, shape model.SignalShape) {
	m.droppedPositions.WithLabelValues(shape.String()).Inc()
}

// ObserveRequest records one API request
func (m *Metrics) ObserveRequest(route string, status int, d time.Duration) {
	m.requestCounter.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveRun records the duration of one analysis run
func (m *Metrics) ObserveRun(kind string, d time.Duration) {
	m.runDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// SourceFailed counts a source that degraded a run
func (m *Metrics) SourceFailed(source string) {
	m.sourceErrors.WithLabelValues(source).Inc()
}

// PriceQuoted records the quote and marks its source as the active one
func (m *Metrics) PriceQuoted(q model.PriceQuote) {
	m.priceSource.Reset()
	m.priceSource.WithLabelValues(q.Source).Set(1)
	m.unitPrice.Set(q.Price)
}

// EndpointOutcome counts one endpoint attempt. Its signature matches fetch.EndpointHook.
func (m *Metrics) EndpointOutcome(source, endpoint string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.endpointAttempts.WithLabelValues(source, endpoint, outcome).Inc()
}

// BreakerStateChanged tracks breaker transitions. Its signature matches
// circuitbreaker.Set.OnStateChange.
func (m *Metrics) BreakerStateChanged(name string, _, to circuitbreaker.State) {
	m.breakerState.WithLabelValues(name).Set(float64(to))
}
