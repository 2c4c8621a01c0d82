package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rickydata-indexer/curation-signal-optimizer/internal/model"
)

func jsonServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPriceOracle_Quote(t *testing.T) {
	tokenOK := `{"data":[{"close":"0.1234","open":0.12}]}`
	geckoOK := `{"the-graph":{"usd":0.11}}`

	tests := []struct {
		name        string
		tokenStatus int
		tokenBody   string
		geckoStatus int
		geckoBody   string
		want        model.PriceQuote
	}{
		{
			name:        "token api",
			tokenStatus: http.StatusOK, tokenBody: tokenOK,
			geckoStatus: http.StatusOK, geckoBody: geckoOK,
			want: model.PriceQuote{Price: 0.1234, Source: SourceTokenAPI},
		},
		{
			name:        "token api down",
			tokenStatus: http.StatusNotFound, tokenBody: `{}`,
			geckoStatus: http.StatusOK, geckoBody: geckoOK,
			want: model.PriceQuote{Price: 0.11, Source: SourceCoinGecko},
		},
		{
			name:        "token api empty data",
			tokenStatus: http.StatusOK, tokenBody: `{"data":[]}`,
			geckoStatus: http.StatusOK, geckoBody: geckoOK,
			want: model.PriceQuote{Price: 0.11, Source: SourceCoinGecko},
		},
		{
			name:        "zero price is invalid",
			tokenStatus: http.StatusOK, tokenBody: `{"data":[{"close":0}]}`,
			geckoStatus: http.StatusOK, geckoBody: geckoOK,
			want: model.PriceQuote{Price: 0.11, Source: SourceCoinGecko},
		},
		{
			name:        "all sources down",
			tokenStatus: http.StatusNotFound, tokenBody: `{}`,
			geckoStatus: http.StatusOK, geckoBody: `{"bitcoin":{"usd":60000}}`,
			want: model.PriceQuote{Price: DefaultFallbackPrice, Source: SourceFallback},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := jsonServer(t, tt.tokenStatus, tt.tokenBody)
			gecko := jsonServer(t, tt.geckoStatus, tt.geckoBody)

			oracle := NewPriceOracle(PriceOptions{
				TokenAPIURL:  token.URL,
				TokenAPIKey:  "key",
				CoinGeckoURL: gecko.URL,
			}, nil, WithRetryMax(0))

			got := oracle.Quote(context.Background())
			assert.Equal(t, tt.want.Source, got.Source)
			assert.InDelta(t, tt.want.Price, got.Price, 1e-12)
		})
	}
}

func TestPriceOracle_SendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"close":0.2}]}`))
	}))
	defer srv.Close()

	oracle := NewPriceOracle(PriceOptions{TokenAPIURL: srv.URL, TokenAPIKey: "token-key"}, nil, WithRetryMax(0))
	assert.Equal(t, model.PriceQuote{Price: 0.2, Source: SourceTokenAPI}, oracle.Quote(context.Background()))
}

func TestPriceOracle_ConfiguredFallback(t *testing.T) {
	oracle := NewPriceOracle(PriceOptions{Fallback: 0.25}, nil)
	assert.Equal(t, model.PriceQuote{Price: 0.25, Source: SourceFallback}, oracle.Quote(context.Background()))

	oracle = NewPriceOracle(PriceOptions{Fallback: -1}, nil)
	assert.Equal(t, DefaultFallbackPrice, oracle.Quote(context.Background()).Price)
}
