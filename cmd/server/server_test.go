package main

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickydata-indexer/curation-signal-optimizer/internal/allocate"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/analysis"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/circuitbreaker"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/config"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/metrics"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/model"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/security"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/validation"
)

const testHolder = "0xabcdef0123456789abcdef0123456789abcdef01"

type fakeAnalyzer struct {
	lastAddress string
	lastCapital float64
}

func (f *fakeAnalyzer) catalog() []model.Opportunity {
	return []model.Opportunity{
		{IPFSHash: "QmA", Yield: 100},
		{IPFSHash: "QmB", Yield: 20},
		{IPFSHash: "QmC", Yield: 0},
	}
}

func (f *fakeAnalyzer) Run(ctx context.Context, address string) (model.Report, error) {
	f.lastAddress = address
	holder, err := validation.NormalizeAddress(address)
	if err != nil {
		return model.Report{}, err
	}
	return model.Report{
		RunID:         "run-1",
		Holder:        holder,
		Price:         model.PriceQuote{Price: 0.1, Source: "token-api"},
		Opportunities: f.catalog(),
		Positions:     []model.HolderPosition{{Holder: holder, IPFSHash: "QmA", SignalAmount: 250, Yield: 100}},
		Summary:       model.PortfolioSummary{PositionCount: 1, TotalValue: 25},
	}, nil
}

func (f *fakeAnalyzer) Catalog(ctx context.Context) (model.Report, error) {
	return model.Report{
		RunID:         "run-2",
		Price:         model.PriceQuote{Price: 0.1, Source: "coingecko"},
		Opportunities: f.catalog(),
		Degraded:      []string{"telemetry"},
	}, nil
}

func (f *fakeAnalyzer) Allocate(ctx context.Context, capital float64) (analysis.AllocationRun, error) {
	f.lastCapital = capital
	if capital <= 0 {
		return analysis.AllocationRun{}, allocate.ErrNoCapital
	}
	return analysis.AllocationRun{
		RunID:   "run-3",
		Capital: capital,
		Result:  model.AllocationResult{Allocations: map[string]float64{"QmA": 100}, TotalAllocated: 100},
	}, nil
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.RateLimit.Enabled = false
	cfg.RequestTimeout = 5 * time.Second
	return cfg
}

func newTestServer(t *testing.T, cfg config.Config) (*Server, *fakeAnalyzer, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	fa := &fakeAnalyzer{}
	s, err := NewServer(cfg, fa, circuitbreaker.NewSet(circuitbreaker.DefaultSettings()), m, reg)
	require.NoError(t, err)
	return s, fa, reg
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleOpportunities(t *testing.T) {
	s, _, _ := newTestServer(t, testConfig())
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/opportunities?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp OpportunitiesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	require.Len(t, resp.Opportunities, 2)
	assert.Equal(t, "QmA", resp.Opportunities[0].IPFSHash)
	assert.Equal(t, []string{"telemetry"}, resp.Degraded)

	rec = do(t, h, http.MethodGet, "/api/opportunities?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/opportunities", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandlePortfolio(t *testing.T) {
	s, fa, _ := newTestServer(t, testConfig())
	h := s.Handler()

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
	}{
		{name: "query address", method: http.MethodGet, target: "/api/portfolio?address=" + testHolder, wantStatus: http.StatusOK},
		{name: "body address", method: http.MethodPost, target: "/api/portfolio", body: `{"address":"` + testHolder + `"}`, wantStatus: http.StatusOK},
		{name: "invalid address", method: http.MethodGet, target: "/api/portfolio?address=0x123", wantStatus: http.StatusBadRequest},
		{name: "missing address", method: http.MethodGet, target: "/api/portfolio", wantStatus: http.StatusBadRequest},
		{name: "malformed body", method: http.MethodPost, target: "/api/portfolio", body: `{"address":`, wantStatus: http.StatusBadRequest},
		{name: "unknown field", method: http.MethodPost, target: "/api/portfolio", body: `{"wallet":"x"}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusOK {
				var report model.Report
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
				assert.Equal(t, testHolder, report.Holder)
				assert.Len(t, report.Positions, 1)
			} else {
				var errResp ErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
				assert.Equal(t, "error", errResp.Status)
				assert.Equal(t, tt.wantStatus, errResp.StatusCode)
			}
		})
	}
	assert.Equal(t, "0x123", fa.lastAddress)
}

func TestHandleAllocate(t *testing.T) {
	s, fa, _ := newTestServer(t, testConfig())
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/allocate", `{"capital":1000}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1000.0, fa.lastCapital)

	var run analysis.AllocationRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, 100.0, run.Result.Allocations["QmA"])

	rec = do(t, h, http.MethodPost, "/api/allocate", `{"capital":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/allocate", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMin: 1, BurstSize: 2}
	s, _, _ := newTestServer(t, cfg)
	h := s.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/opportunities", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/opportunities", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodGet, "/api/opportunities", "").Code)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code, "health is not rate limited")
}

func TestSignedResponses(t *testing.T) {
	cfg := testConfig()
	cfg.Signing = config.SigningConfig{
		Enabled:       true,
		PrivateKeyHex: "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318",
		Validity:      time.Hour,
	}
	s, _, _ := newTestServer(t, cfg)

	rec := do(t, s.Handler(), http.MethodGet, "/api/portfolio?address="+testHolder, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var env security.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))

	signer, err := security.Verify(env, time.Now())
	require.NoError(t, err)
	assert.Equal(t, s.signer.Address(), signer.Hex())

	var report model.Report
	require.NoError(t, json.Unmarshal(env.Payload, &report))
	assert.Equal(t, "run-1", report.RunID)
}

func TestCircuitEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t, testConfig())
	h := s.Handler()

	b := s.breakers.Get("telemetry:primary")
	for i := 0; i < 3; i++ {
		_ = b.Execute(func() error { return assert.AnError })
	}
	require.Equal(t, circuitbreaker.StateOpen, b.GetState())

	var resp struct {
		Message  string                  `json:"message"`
		Breakers []circuitbreaker.Status `json:"breakers"`
	}
	rec := do(t, h, http.MethodGet, "/circuit", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Breakers, 1)
	assert.Equal(t, "open", resp.Breakers[0].State)

	rec = do(t, h, http.MethodPost, "/circuit?action=reset", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Circuit breakers reset", resp.Message)
	assert.Equal(t, "closed", resp.Breakers[0].State)
}

func TestHealthStatusAndMetrics(t *testing.T) {
	s, _, _ := newTestServer(t, testConfig())
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"OK"`)

	rec = do(t, h, http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"operational"`)

	do(t, h, http.MethodGet, "/api/opportunities", "")
	rec = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `curation_requests_total{route="/api/opportunities",status="200"} 1`)
}

func TestWriteJSON(t *testing.T) {
	t.Run("encodes with status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		writeJSON(rec, http.StatusCreated, map[string]string{"ok": "yes"})

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"ok":"yes"}`, rec.Body.String())
	})

	t.Run("unencodable value becomes 500", func(t *testing.T) {
		rec := httptest.NewRecorder()
		writeJSON(rec, http.StatusOK, model.Opportunity{IPFSHash: "QmA", SignalAmount: math.Inf(1)})

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, http.StatusInternalServerError, body.StatusCode)
		assert.Equal(t, "failed to encode response", body.Error)
	})
}
