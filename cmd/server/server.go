package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/rickydata-indexer/curation-signal-optimizer/internal/allocate"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/analysis"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/circuitbreaker"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/config"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/export"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/metrics"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/model"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/security"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/validation"
)

const version = "1.0.0"

// Analyzer runs analyses on behalf of the HTTP handlers
type Analyzer interface {
	Run(ctx context.Context, address string) (model.Report, error)
	Catalog(ctx context.Context) (model.Report, error)
	Allocate(ctx context.Context, capital float64) (analysis.AllocationRun, error)
}

// Server represents the API server instance
type Server struct {
	cfg       config.Config
	analyzer  Analyzer
	breakers  *circuitbreaker.Set
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
	rateLimit *rate.Limiter
	signer    *security.Signer
	exporter  *export.WebhookExporter
	server    *http.Server
	startTime time.Time
}

// NewServer creates a server. Signing and webhook export are set up when enabled
// in cfg; m and gatherer may be nil.
func NewServer(cfg config.Config, analyzer Analyzer, breakers *circuitbreaker.Set, m *metrics.Metrics, gatherer prometheus.Gatherer) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		analyzer:  analyzer,
		breakers:  breakers,
		metrics:   m,
		gatherer:  gatherer,
		startTime: time.Now(),
	}

	if cfg.RateLimit.Enabled {
		perSecond := rate.Limit(float64(cfg.RateLimit.RequestsPerMin) / 60)
		s.rateLimit = rate.NewLimiter(perSecond, max(1, cfg.RateLimit.BurstSize))
		logrus.Infof("Rate limiting initialized: %d req/min, burst: %d", cfg.RateLimit.RequestsPerMin, cfg.RateLimit.BurstSize)
	}

	if cfg.Signing.Enabled {
		signer, err := security.NewSigner(cfg.Signing.PrivateKeyHex, cfg.Signing.Validity)
		if err != nil {
			return nil, err
		}
		s.signer = signer
	}

	if cfg.Export.Enabled() {
		exporter, err := export.NewWebhookExporter(export.Config{
			URL:       cfg.Export.WebhookURL,
			APIKey:    cfg.Export.WebhookAPIKey,
			BatchSize: cfg.Export.BatchSize,
			Interval:  cfg.Export.Interval,
			RetryMax:  3,
		})
		if err != nil {
			return nil, err
		}
		s.exporter = exporter
	}

	logrus.WithFields(logrus.Fields{
		"port":       cfg.Port,
		"timeout":    cfg.RequestTimeout,
		"telemetry":  len(cfg.Telemetry.Endpoints),
		"rate_limit": cfg.RateLimit.Enabled,
		"signing":    s.signer != nil,
		"export":     s.exporter != nil,
	}).Info("Server initialized")
	return s, nil
}

// Handler returns the router with all endpoints registered
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/api/opportunities", s.instrument("/api/opportunities", s.limited(s.handleOpportunities)))
	mux.Handle("/api/portfolio", s.instrument("/api/portfolio", s.limited(s.handlePortfolio)))
	mux.Handle("/api/allocate", s.instrument("/api/allocate", s.limited(s.handleAllocate)))
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/circuit", s.handleCircuitStatus)
	mux.HandleFunc("/metrics", s.handleMetrics)
	return mux
}

// Start begins the HTTP server and sets up graceful shutdown
func (s *Server) Start() {
	s.server = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.cfg.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("Server starting on port %s", s.cfg.Port)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("Error starting server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server shutdown failed: %v", err)
	}
	if s.exporter != nil {
		s.exporter.Stop()
	}

	logrus.Info("Server stopped")
}

// handleOpportunities serves the yield-sorted catalog
func (s *Server) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.errorResponse(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	report, err := s.analyzer.Catalog(ctx)
	if err != nil {
		s.errorResponse(w, statusFor(err), err.Error())
		return
	}

	opps := report.Opportunities
	if limit > 0 && len(opps) > limit {
		opps = opps[:limit]
	}
	s.respond(w, http.StatusOK, OpportunitiesResponse{
		RunID:         report.RunID,
		GeneratedAt:   report.GeneratedAt,
		Price:         report.Price,
		Total:         len(report.Opportunities),
		Opportunities: opps,
		Degraded:      report.Degraded,
	})
}

// handlePortfolio analyzes one holder, address from the query or a JSON body
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	var address string
	switch r.Method {
	case http.MethodGet:
		address = r.URL.Query().Get("address")
	case http.MethodPost:
		var req PortfolioRequest
		if err := decodeBody(w, r, &req); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		address = req.Address
	default:
		s.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if address == "" {
		s.errorResponse(w, http.StatusBadRequest, "address is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	report, err := s.analyzer.Run(ctx, address)
	if err != nil {
		s.errorResponse(w, statusFor(err), err.Error())
		return
	}

	if s.exporter != nil {
		s.exporter.Add(export.FromReport(report))
	}
	s.respond(w, http.StatusOK, report)
}

// handleAllocate distributes the requested capital over the catalog
func (s *Server) handleAllocate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req AllocateRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	run, err := s.analyzer.Allocate(ctx, req.Capital)
	if err != nil {
		s.errorResponse(w, statusFor(err), err.Error())
		return
	}
	s.respond(w, http.StatusOK, run)
}

// handleHealth is a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"version":   version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus provides detailed service status information
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":  "operational",
		"uptime":  time.Since(s.startTime).String(),
		"version": version,
		"configuration": map[string]interface{}{
			"telemetry_endpoints":  len(s.cfg.Telemetry.Endpoints),
			"telemetry_window":     s.cfg.Telemetry.WindowDays,
			"curator_share_rate":   s.cfg.Analysis.CuratorShareRate,
			"sub_periods_per_year": s.cfg.Analysis.SubPeriodsPerYear,
			"rate_limit":           s.cfg.RateLimit.Enabled,
		},
	}
	if s.breakers != nil {
		status["circuit_breakers"] = s.breakers.Statuses()
	}
	if s.signer != nil {
		status["signer"] = s.signer.Address()
	}
	if s.exporter != nil {
		status["export"] = s.exporter.Status()
	}
	writeJSON(w, http.StatusOK, status)
}

// handleCircuitStatus allows viewing and resetting the endpoint breakers
func (s *Server) handleCircuitStatus(w http.ResponseWriter, r *http.Request) {
	if s.breakers == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "Circuit breakers not enabled")
		return
	}

	response := map[string]interface{}{}
	if r.Method == http.MethodPost && r.URL.Query().Get("action") == "reset" {
		s.breakers.ResetAll()
		response["message"] = "Circuit breakers reset"
		logrus.Info("Circuit breakers reset via API")
	}
	response["breakers"] = s.breakers.Statuses()
	writeJSON(w, http.StatusOK, response)
}

// handleMetrics exposes Prometheus metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.gatherer == nil {
		http.Error(w, "Metrics disabled", http.StatusServiceUnavailable)
		return
	}
	promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

// limited rejects requests beyond the configured rate with 429
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.rateLimit != nil && !s.rateLimit.Allow() {
			s.errorResponse(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next(w, r)
	}
}

// instrument records request count and latency per route
func (s *Server) instrument(route string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		if s.metrics != nil {
			s.metrics.ObserveRequest(route, rec.status, time.Since(start))
		}
	})
}

// respond writes payload, wrapped in a signed envelope when signing is enabled
func (s *Server) respond(w http.ResponseWriter, status int, payload interface{}) {
	if s.signer == nil {
		writeJSON(w, status, payload)
		return
	}
	env, err := s.signer.Sign(payload)
	if err != nil {
		logrus.Warnf("Failed to sign response: %v", err)
		s.errorResponse(w, http.StatusInternalServerError, "Failed to sign response")
		return
	}
	writeJSON(w, status, env)
}

// errorResponse returns a formatted error response
func (s *Server) errorResponse(w http.ResponseWriter, statusCode int, errorMsg string) {
	if statusCode >= http.StatusInternalServerError {
		logrus.Warn(errorMsg)
	} else {
		logrus.Debug(errorMsg)
	}
	writeJSON(w, statusCode, ErrorResponse{Status: "error", StatusCode: statusCode, Error: errorMsg})
}

// statusFor maps analysis errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, validation.ErrInvalidAddress), errors.Is(err, allocate.ErrNoCapital):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a JSON request body into v
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
