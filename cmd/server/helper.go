package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rickydata-indexer/curation-signal-optimizer/internal/model"
)

// PortfolioRequest is the body of POST /api/portfolio
type PortfolioRequest struct {
	Address string `json:"address"`
}

// AllocateRequest is the body of POST /api/allocate
type AllocateRequest struct {
	Capital float64 `json:"capital"`
}

// OpportunitiesResponse is returned by GET /api/opportunities
type OpportunitiesResponse struct {
	RunID         string              `json:"run_id"`
	GeneratedAt   time.Time           `json:"generated_at"`
	Price         model.PriceQuote    `json:"price"`
	Total         int                 `json:"total"`
	Opportunities []model.Opportunity `json:"opportunities"`
	Degraded      []string            `json:"degraded,omitempty"`
}

// ErrorResponse is the body of every non-2xx API response
type ErrorResponse struct {
	Status     string `json:"status"`
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
}

// writeJSON sends v with the given status code. v is encoded before the header
// is written, so an unencodable value becomes a 500 instead of a truncated body.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		logrus.WithError(err).Warn("Failed to encode response")
		buf.Reset()
		status = http.StatusInternalServerError
		_ = json.NewEncoder(&buf).Encode(ErrorResponse{
			Status:     "error",
			StatusCode: status,
			Error:      "failed to encode response",
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logrus.Debugf("Failed to write response: %v", err)
	}
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
