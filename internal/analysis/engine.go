// Package analysis runs the full pipeline for one request: it fetches the three
// upstream snapshots concurrently, degrades failed sources to empty inputs and
// feeds them through the derivation steps.
package analysis

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rickydata-indexer/curation-signal-optimizer/internal/aggregate"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/allocate"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/config"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/fetch"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/model"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/observe"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/opportunity"
	tracing "github.com/rickydata-indexer/curation-signal-optimizer/internal/otel"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/position"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/telemetry"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/validation"
)

// Source names used in Report.Degraded and in metrics
const (
	SourceRegistry      = "registry"
	SourceHolderSignals = "holder_signals"
	SourceTelemetry     = "telemetry"
	SourcePrice         = "price"
)

// Run kinds
const (
	KindCatalog   = "catalog"
	KindPortfolio = "portfolio"
	KindAllocate  = "allocate"
)

// Options holds the tunables of the derivation steps
type Options struct {
	ShareRate           float64
	SubPeriodsPerYear   float64
	Risk                aggregate.RiskThresholds
	RecommendationLimit int
	Validation          validation.ValidationOptions
	Optimizer           allocate.Optimizer
}

// DefaultOptions returns the protocol defaults
func DefaultOptions() Options {
	return Options{
		ShareRate:           opportunity.DefaultCuratorShareRate,
		SubPeriodsPerYear:   telemetry.DefaultSubPeriodsPerYear,
		Risk:                aggregate.DefaultRiskThresholds(),
		RecommendationLimit: aggregate.DefaultRecommendationLimit,
		Validation:          validation.DefaultValidationOptions(),
	}
}

// OptionsFromConfig maps the loaded configuration onto Options
func OptionsFromConfig(cfg config.Config) Options {
	opts := DefaultOptions()
	opts.ShareRate = cfg.Analysis.CuratorShareRate
	opts.SubPeriodsPerYear = cfg.Analysis.SubPeriodsPerYear
	opts.Risk = aggregate.RiskThresholds{High: cfg.Analysis.RiskHighStdDev, Medium: cfg.Analysis.RiskMediumStdDev}
	opts.RecommendationLimit = cfg.Analysis.RecommendationLimit
	opts.Validation.MinObservedDays = cfg.Telemetry.MinObservedDays
	opts.Validation.MaxObservedDays = cfg.Telemetry.WindowDays
	opts.Optimizer = allocate.Optimizer{
		Step:          cfg.Allocation.Step,
		CapFraction:   cfg.Allocation.CapFraction,
		EntryCost:     cfg.Allocation.EntryCost,
		MaxIterations: cfg.Allocation.MaxIterations,
	}
	return opts
}

// Recorder receives run-level measurements
type Recorder interface {
	ObserveRun(kind string, d time.Duration)
	SourceFailed(source string)
	PriceQuoted(q model.PriceQuote)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRun(string, time.Duration) {}
func (nopRecorder) SourceFailed(string)              {}
func (nopRecorder) PriceQuoted(model.PriceQuote)     {}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithObserver sets the per-record observer
func WithObserver(o observe.Observer) EngineOption {
	return func(e *Engine) { e.observer = o }
}

// WithRecorder sets the run-level recorder
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) { e.recorder = r }
}

// Engine owns the source handles. It holds no per-run state and is safe for
// concurrent use.
type Engine struct {
	registry  fetch.RegistrySource
	telemetry fetch.TelemetrySource
	price     fetch.PriceSource
	opts      Options
	observer  observe.Observer
	recorder  Recorder
	now       func() time.Time
}

// NewEngine creates an Engine over the given sources
func NewEngine(registry fetch.RegistrySource, tel fetch.TelemetrySource, price fetch.PriceSource, opts Options, engineOpts ...EngineOption) *Engine {
	e := &Engine{
		registry:  registry,
		telemetry: tel,
		price:     price,
		opts:      opts,
		observer:  observe.Nop{},
		recorder:  nopRecorder{},
		now:       time.Now,
	}
	for _, opt := range engineOpts {
		opt(e)
	}
	e.observer = observe.OrNop(e.observer)
	if e.recorder == nil {
		e.recorder = nopRecorder{}
	}
	return e
}

// snapshot is the jointly awaited result of the upstream fetches
type snapshot struct {
	deployments []model.DeploymentRecord
	telemetry   []model.TelemetryRecord
	signals     []model.RawSignal
	quote       model.PriceQuote
	degraded    []string
}

// Run analyzes the catalog and, when address is non-empty, the holder's
// portfolio. Invalid addresses are rejected before any fetch.
func (e *Engine) Run(ctx context.Context, address string) (model.Report, error) {
	var holder string
	if address != "" {
		var err error
		holder, err = validation.NormalizeAddress(address)
		if err != nil {
			return model.Report{}, err
		}
	}

	kind := KindCatalog
	if holder != "" {
		kind = KindPortfolio
	}

	ctx, span := tracing.Start(ctx, "analysis.run", attribute.String("kind", kind))
	defer span.End()

	start := e.now()
	snap := e.gather(ctx, holder)
	if err := ctx.Err(); err != nil {
		tracing.RecordError(ctx, err)
		return model.Report{}, err
	}

	report := e.derive(snap, holder)
	e.recorder.ObserveRun(kind, e.now().Sub(start))

	span.SetAttributes(
		attribute.String("run_id", report.RunID),
		attribute.Int("opportunities", len(report.Opportunities)),
		attribute.Int("positions", len(report.Positions)),
		attribute.StringSlice("degraded", report.Degraded),
	)
	logrus.WithFields(logrus.Fields{
		"run_id":        report.RunID,
		"kind":          kind,
		"opportunities": len(report.Opportunities),
		"positions":     len(report.Positions),
		"missing":       len(report.MissingDeployments),
		"degraded":      report.Degraded,
		"price_source":  report.Price.Source,
	}).Info("Analysis run complete")
	return report, nil
}

// Catalog runs the catalog-only path
func (e *Engine) Catalog(ctx context.Context) (model.Report, error) {
	return e.Run(ctx, "")
}

// AllocationRun is the result of an allocation request
type AllocationRun struct {
	RunID       string                 `json:"run_id"`
	GeneratedAt time.Time              `json:"generated_at"`
	Capital     float64                `json:"capital"`
	Price       model.PriceQuote       `json:"price"`
	Result      model.AllocationResult `json:"result"`
	Degraded    []string               `json:"degraded,omitempty"`
}

// Allocate distributes capital over a freshly fetched catalog
func (e *Engine) Allocate(ctx context.Context, capital float64) (AllocationRun, error) {
	if capital <= 0 || math.IsNaN(capital) || math.IsInf(capital, 0) {
		return AllocationRun{}, allocate.ErrNoCapital
	}

	ctx, span := tracing.Start(ctx, "analysis.allocate", attribute.Float64("capital", capital))
	defer span.End()

	start := e.now()
	snap := e.gather(ctx, "")
	if err := ctx.Err(); err != nil {
		tracing.RecordError(ctx, err)
		return AllocationRun{}, err
	}

	catalog := e.catalog(snap)
	result, err := e.opts.Optimizer.Allocate(catalog, snap.quote.Price, capital)
	if err != nil {
		tracing.RecordError(ctx, err)
		return AllocationRun{}, err
	}
	e.recorder.ObserveRun(KindAllocate, e.now().Sub(start))

	run := AllocationRun{
		RunID:       uuid.NewString(),
		GeneratedAt: e.now().UTC(),
		Capital:     capital,
		Price:       snap.quote,
		Result:      result,
		Degraded:    snap.degraded,
	}
	span.SetAttributes(
		attribute.String("run_id", run.RunID),
		attribute.Int("positions", len(result.Allocations)),
		attribute.Float64("expected_yield", result.ExpectedYield),
	)
	return run, nil
}

// gather issues the upstream fetches concurrently and waits for all of them.
// Failures degrade to empty inputs and are listed in snapshot.degraded.
func (e *Engine) gather(ctx context.Context, holder string) snapshot {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		snap snapshot
	)
	failed := make(map[string]bool)
	fail := func(source string, err error) {
		logrus.WithFields(logrus.Fields{
			"source": source,
			"error":  err,
		}).Warn("Source failed, continuing with empty data")
		e.recorder.SourceFailed(source)
		mu.Lock()
		failed[source] = true
		mu.Unlock()
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		deployments, err := e.registry.Deployments(ctx)
		if err != nil {
			fail(SourceRegistry, err)
			return
		}
		snap.deployments = deployments
	}()
	go func() {
		defer wg.Done()
		records, err := e.telemetry.Fetch(ctx)
		if err != nil {
			fail(SourceTelemetry, err)
			return
		}
		snap.telemetry = records
	}()
	go func() {
		defer wg.Done()
		snap.quote = e.price.Quote(ctx)
	}()
	if holder != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			signals, err := e.registry.HolderSignals(ctx, holder)
			if err != nil {
				fail(SourceHolderSignals, err)
				return
			}
			snap.signals = signals
		}()
	}
	wg.Wait()

	e.recorder.PriceQuoted(snap.quote)
	if snap.quote.Source == fetch.SourceFallback {
		failed[SourcePrice] = true
	}
	for _, source := range []string{SourceRegistry, SourceHolderSignals, SourceTelemetry, SourcePrice} {
		if failed[source] {
			snap.degraded = append(snap.degraded, source)
		}
	}
	return snap
}

func (e *Engine) catalog(snap snapshot) []model.Opportunity {
	deployments := validation.FilterDeployments(snap.deployments, e.opts.Validation)
	tel := telemetry.Index(validation.FilterTelemetry(snap.telemetry, e.opts.Validation))

	calc := opportunity.Calculator{
		ShareRate:    e.opts.ShareRate,
		Extrapolator: telemetry.New(e.opts.SubPeriodsPerYear),
		Observer:     e.observer,
	}
	return calc.Compute(deployments, tel, snap.quote.Price)
}

func (e *Engine) derive(snap snapshot, holder string) model.Report {
	opps := e.catalog(snap)

	var res position.Result
	if holder != "" {
		res = position.Attributor{Observer: e.observer}.Attribute(snap.signals, opps, snap.quote.Price)
	}
	positions := res.Positions
	if positions == nil {
		positions = []model.HolderPosition{}
	}

	return model.Report{
		RunID:              uuid.NewString(),
		GeneratedAt:        e.now().UTC(),
		Holder:             holder,
		Price:              snap.quote,
		Opportunities:      opps,
		Positions:          positions,
		Summary:            aggregate.Portfolio(positions, snap.quote.Price),
		Diversification:    e.opts.Risk.Diversification(positions),
		Recommendations:    aggregate.Recommend(positions, opps, e.opts.RecommendationLimit),
		MissingDeployments: res.Missing,
		Degraded:           snap.degraded,
	}
}
