// Package main is the entry point for the curation signal optimizer API, which
// serves yield estimates for curation signal and portfolio analytics for holders.
package main

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/rickydata-indexer/curation-signal-optimizer/internal/analysis"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/circuitbreaker"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/config"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/fetch"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/metrics"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/observe"
	tracing "github.com/rickydata-indexer/curation-signal-optimizer/internal/otel"
)

// main is the entry point for the application
func main() {
	cfg, err := config.Load("")
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	setupLogging(cfg.Log)

	shutdownTracer := tracing.InitTracer(tracing.Options{
		Endpoint:    cfg.OtelEndpoint,
		SampleRatio: cfg.OtelSampleRatio,
	})
	defer shutdownTracer()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	breakers := circuitbreaker.NewSet(cfg.Breaker).OnStateChange(m.BreakerStateChanged)
	sources := fetch.NewSources(cfg, breakers, m.EndpointOutcome)
	engine := analysis.NewEngine(
		sources.Registry,
		sources.Telemetry,
		sources.Price,
		analysis.OptionsFromConfig(cfg),
		analysis.WithObserver(observe.Multi{m, observe.LogObserver{}}),
		analysis.WithRecorder(m),
	)

	server, err := NewServer(cfg, engine, breakers, m, registry)
	if err != nil {
		logrus.Fatalf("Failed to initialize server: %v", err)
	}
	server.Start()
}

// setupLogging configures the logging for the application
func setupLogging(cfg config.LogConfig) {
	switch strings.ToLower(cfg.Format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	logrus.Info("Logging configured")
}
