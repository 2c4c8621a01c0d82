package fetch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rickydata-indexer/curation-signal-optimizer/internal/circuitbreaker"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/model"
	tracing "github.com/rickydata-indexer/curation-signal-optimizer/internal/otel"
)

// Price sources in the order they are tried
const (
	SourceTokenAPI  = "token-api"
	SourceCoinGecko = "coingecko"
	SourceFallback  = "fallback"
)

// DefaultFallbackPrice is used when every price source fails
const DefaultFallbackPrice = 0.0892

// coinGeckoID is the token's CoinGecko identifier
const coinGeckoID = "the-graph"

var errInvalidPrice = errors.New("invalid price")

// PriceOptions configures the oracle chain
type PriceOptions struct {
	TokenAPIURL  string
	TokenAPIKey  string
	CoinGeckoURL string
	Fallback     float64
}

// PriceOracle resolves the unit price from the token API, then CoinGecko, then a
// configured constant
type PriceOracle struct {
	popts      PriceOptions
	breakers   *circuitbreaker.Set
	httpClient *http.Client
	hook       EndpointHook
}

// NewPriceOracle creates a price oracle. breakers may be nil.
func NewPriceOracle(popts PriceOptions, breakers *circuitbreaker.Set, opts ...Option) *PriceOracle {
	o := buildOptions(opts)
	if popts.Fallback <= 0 || math.IsNaN(popts.Fallback) || math.IsInf(popts.Fallback, 0) {
		popts.Fallback = DefaultFallbackPrice
	}
	return &PriceOracle{popts: popts, breakers: breakers, httpClient: o.httpClient}
}

// WithHook registers a source outcome hook
func (p *PriceOracle) WithHook(h EndpointHook) *PriceOracle {
	p.hook = h
	return p
}

// Quote returns the first valid price. It never fails; the fallback constant is
// the last resort.
func (p *PriceOracle) Quote(ctx context.Context) model.PriceQuote {
	ctx, span := tracing.Tracer().Start(ctx, "fetch.price")
	defer span.End()

	sources := []struct {
		name string
		url  string
		get  func(context.Context) (float64, error)
	}{
		{SourceTokenAPI, p.popts.TokenAPIURL, p.tokenAPI},
		{SourceCoinGecko, p.popts.CoinGeckoURL, p.coinGecko},
	}

	for _, s := range sources {
		if s.url == "" {
			continue
		}
		price, err := p.try(s.name, func() (float64, error) { return s.get(ctx) })
		if p.hook != nil {
			p.hook("price", s.name, err)
		}
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"source": s.name,
				"error":  err,
			}).Warn("Price source failed, trying next")
			continue
		}
		span.SetAttributes(attribute.String("source", s.name), attribute.Float64("price", price))
		return model.PriceQuote{Price: price, Source: s.name}
	}

	logrus.WithField("price", p.popts.Fallback).Warn("All price sources failed, using fallback price")
	span.SetAttributes(attribute.String("source", SourceFallback))
	return model.PriceQuote{Price: p.popts.Fallback, Source: SourceFallback}
}

func (p *PriceOracle) try(name string, fn func() (float64, error)) (float64, error) {
	call := func() (float64, error) {
		v, err := fn()
		if err != nil {
			return 0, err
		}
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: %v", errInvalidPrice, v)
		}
		return v, nil
	}
	if p.breakers == nil {
		return call()
	}
	return circuitbreaker.Do(p.breakers.Get("price:"+name), call)
}

func (p *PriceOracle) tokenAPI(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.popts.TokenAPIURL, nil)
	if err != nil {
		return 0, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.popts.TokenAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.popts.TokenAPIKey)
	}

	var response struct {
		Data []struct {
			Close flexNumber `json:"close"`
		} `json:"data"`
	}
	if err := doJSON(p.httpClient, req, &response); err != nil {
		return 0, err
	}
	if len(response.Data) == 0 {
		return 0, errors.New("no price data returned from token API")
	}
	return float64(response.Data[0].Close), nil
}

func (p *PriceOracle) coinGecko(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.popts.CoinGeckoURL, nil)
	if err != nil {
		return 0, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	var response map[string]struct {
		USD flexNumber `json:"usd"`
	}
	if err := doJSON(p.httpClient, req, &response); err != nil {
		return 0, err
	}
	entry, ok := response[coinGeckoID]
	if !ok {
		return 0, fmt.Errorf("no %s price returned from CoinGecko", coinGeckoID)
	}
	return float64(entry.USD), nil
}
