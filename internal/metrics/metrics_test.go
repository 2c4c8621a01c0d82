package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/rickydata-indexer/curation-signal-optimizer/internal/circuitbreaker"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/model"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/observe"
)

var _ observe.Observer = (*Metrics)(nil)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return New(prometheus.NewRegistry())
}

func TestMetrics_ObserverEvents(t *testing.T) {
	m := newTestMetrics(t)

	m.OpportunityComputed(model.Opportunity{IPFSHash: "QmA"}, true)
	m.OpportunityComputed(model.Opportunity{IPFSHash: "QmB"}, false)
	m.OpportunityComputed(model.Opportunity{IPFSHash: "QmC"}, false)
	m.PositionAttributed(model.HolderPosition{IPFSHash: "QmA"}, model.ShapeDeployment)
	m.PositionDropped("0xabc", "QmZ", model.ShapeName)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.opportunities.WithLabelValues("true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.opportunities.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.positions.WithLabelValues("deployment")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.droppedPositions.WithLabelValues("name")))
}

func TestMetrics_PriceQuoted(t *testing.T) {
	m := newTestMetrics(t)

	m.PriceQuoted(model.PriceQuote{Price: 0.12, Source: "token-api"})
	m.PriceQuoted(model.PriceQuote{Price: 0.0892, Source: "fallback"})

	assert.Equal(t, 0.0892, testutil.ToFloat64(m.unitPrice))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.priceSource.WithLabelValues("fallback")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.priceSource), "only the last source stays active")
}

func TestMetrics_EndpointsAndSources(t *testing.T) {
	m := newTestMetrics(t)

	m.EndpointOutcome("telemetry", "primary", errors.New("timeout"))
	m.EndpointOutcome("telemetry", "fallback", nil)
	m.SourceFailed("registry")
	m.SourceFailed("registry")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.endpointAttempts.WithLabelValues("telemetry", "primary", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.endpointAttempts.WithLabelValues("telemetry", "fallback", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sourceErrors.WithLabelValues("registry")))
}

func TestMetrics_BreakerAndDurations(t *testing.T) {
	m := newTestMetrics(t)

	m.BreakerStateChanged("telemetry:primary", circuitbreaker.StateClosed, circuitbreaker.StateOpen)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.breakerState.WithLabelValues("telemetry:primary")))

	m.BreakerStateChanged("telemetry:primary", circuitbreaker.StateOpen, circuitbreaker.StateHalfOpen)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.breakerState.WithLabelValues("telemetry:primary")))

	m.ObserveRun("portfolio", 250*time.Millisecond)
	m.ObserveRequest("/api/portfolio", 200, 300*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(m.runDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestCounter.WithLabelValues("/api/portfolio", "200")))
}

func TestNew_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) }, "duplicate registration must panic")
}
