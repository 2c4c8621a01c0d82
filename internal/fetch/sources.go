package fetch

import (
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/circuitbreaker"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/config"
)

// Sources bundles the three upstream clients of one process
type Sources struct {
	Registry  *RegistryClient
	Telemetry *TelemetryClient
	Price     *PriceOracle
}

// NewSources builds the clients described by cfg. Telemetry endpoints and price
// sources share breakers; hook may be nil.
func NewSources(cfg config.Config, breakers *circuitbreaker.Set, hook EndpointHook) Sources {
	opts := []Option{WithTimeout(cfg.RequestTimeout)}

	registry := cfg.Registry.Endpoint()
	return Sources{
		Registry: NewRegistryClient(registry.URL, cfg.Registry.MinSignalRaw, cfg.Registry.PageSize, opts...),
		Telemetry: NewTelemetryClient(cfg.Telemetry.Endpoints, breakers, TelemetryOptions{
			WindowDays:      cfg.Telemetry.WindowDays,
			MinObservedDays: cfg.Telemetry.MinObservedDays,
			Table:           cfg.Telemetry.Table,
		}, opts...).WithHook(hook),
		Price: NewPriceOracle(PriceOptions{
			TokenAPIURL:  cfg.Price.TokenAPIURL,
			TokenAPIKey:  cfg.Price.TokenAPIKey,
			CoinGeckoURL: cfg.Price.CoinGeckoURL,
			Fallback:     cfg.Price.Fallback,
		}, breakers, opts...).WithHook(hook),
	}
}
