// Package export batches analysis summaries and delivers them to a webhook.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/rickydata-indexer/curation-signal-optimizer/internal/model"
)

// Record is the exported digest of one analysis run
type Record struct {
	RunID           string                       `json:"run_id"`
	GeneratedAt     time.Time                    `json:"generated_at"`
	Holder          string                       `json:"holder,omitempty"`
	Price           model.PriceQuote             `json:"price"`
	Opportunities   int                          `json:"opportunities"`
	Summary         model.PortfolioSummary       `json:"summary"`
	Diversification model.DiversificationProfile `json:"diversification"`
	Missing         int                          `json:"missing_deployments"`
	Degraded        []string                     `json:"degraded,omitempty"`
}

// FromReport builds the export record for r
func FromReport(r model.Report) Record {
	return Record{
		RunID:           r.RunID,
		GeneratedAt:     r.GeneratedAt,
		Holder:          r.Holder,
		Price:           r.Price,
		Opportunities:   len(r.Opportunities),
		Summary:         r.Summary,
		Diversification: r.Diversification,
		Missing:         len(r.MissingDeployments),
		Degraded:        r.Degraded,
	}
}

// Config holds configuration for the webhook exporter
type Config struct {
	URL       string
	APIKey    string
	BatchSize int
	Interval  time.Duration
	RetryMax  int
}

// WebhookExporter delivers records in batches, when a batch fills up and on a
// fixed interval
type WebhookExporter struct {
	cfg    Config
	client *retryablehttp.Client

	mu         sync.Mutex
	batch      []Record
	lastExport time.Time
	exported   int
	failures   int

	flushes sync.WaitGroup
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWebhookExporter starts an exporter. Stop must be called to flush and release it.
func NewWebhookExporter(cfg Config) (*WebhookExporter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook URL not configured")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 3 * time.Second
	client.HTTPClient.Timeout = 10 * time.Second
	client.Logger = nil

	ctx, cancel := context.WithCancel(context.Background())
	e := &WebhookExporter{
		cfg:    cfg,
		client: client,
		batch:  make([]Record, 0, cfg.BatchSize),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go e.periodicExport(ctx)

	logrus.WithFields(logrus.Fields{
		"batch_size": cfg.BatchSize,
		"interval":   cfg.Interval,
	}).Info("Webhook exporter initialized")
	return e, nil
}

// Add queues rec and flushes in the background once the batch is full
func (e *WebhookExporter) Add(rec Record) {
	e.mu.Lock()
	e.batch = append(e.batch, rec)
	full := len(e.batch) >= e.cfg.BatchSize
	var out []Record
	if full {
		out = e.takeLocked()
	}
	e.mu.Unlock()

	if full {
		e.flushes.Add(1)
		go func() {
			defer e.flushes.Done()
			e.send(out)
		}()
	}
}

func (e *WebhookExporter) periodicExport(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.Flush()
		case <-ctx.Done():
			return
		}
	}
}

// Flush sends the pending batch synchronously
func (e *WebhookExporter) Flush() {
	e.mu.Lock()
	out := e.takeLocked()
	e.mu.Unlock()
	e.send(out)
}

func (e *WebhookExporter) takeLocked() []Record {
	if len(e.batch) == 0 {
		return nil
	}
	out := e.batch
	e.batch = make([]Record, 0, e.cfg.BatchSize)
	return out
}

func (e *WebhookExporter) send(records []Record) {
	if len(records) == 0 {
		return
	}
	err := e.post(records)

	e.mu.Lock()
	if err != nil {
		e.failures++
	} else {
		e.exported += len(records)
		e.lastExport = time.Now()
	}
	e.mu.Unlock()

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"records": len(records),
			"error":   err,
		}).Error("Failed to export to webhook")
		return
	}
	logrus.WithField("records", len(records)).Debug("Exported analysis records")
}

func (e *WebhookExporter) post(records []Record) error {
	payload := struct {
		Records    []Record `json:"records"`
		ExportTime string   `json:"export_time"`
		Count      int      `json:"count"`
	}{
		Records:    records,
		ExportTime: time.Now().UTC().Format(time.RFC3339),
		Count:      len(records),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}

	req, err := retryablehttp.NewRequest(http.MethodPost, e.cfg.URL, body)
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned error status: %d", resp.StatusCode)
	}
	return nil
}

// Stop ends the periodic export, waits for in-flight batches and flushes the rest
func (e *WebhookExporter) Stop() {
	e.cancel()
	<-e.done
	e.flushes.Wait()
	e.Flush()
}

// Status describes the exporter for the status endpoint
type Status struct {
	BatchSize    int        `json:"batch_size"`
	Interval     string     `json:"interval"`
	Pending      int        `json:"pending"`
	Exported     int        `json:"exported"`
	Failures     int        `json:"failures"`
	LastExportAt *time.Time `json:"last_export,omitempty"`
}

// Status returns a snapshot of the exporter counters
func (e *WebhookExporter) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		BatchSize: e.cfg.BatchSize,
		Interval:  e.cfg.Interval.String(),
		Pending:   len(e.batch),
		Exported:  e.exported,
		Failures:  e.failures,
	}
	if !e.lastExport.IsZero() {
		last := e.lastExport
		st.LastExportAt = &last
	}
	return st
}
