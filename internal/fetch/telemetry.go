package fetch

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rickydata-indexer/curation-signal-optimizer/internal/circuitbreaker"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/model"
	tracing "github.com/rickydata-indexer/curation-signal-optimizer/internal/otel"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/types"
)

// DefaultTelemetryTable is the daily query volume table
const DefaultTelemetryTable = "qos_daily_query_volume"

const telemetrySQL = `SELECT subgraph_deployment_ipfs_hash, SUM(total_query_fees) as total_query_fees, ` +
	`SUM(query_count) as query_count, COUNT(*) as days_with_data FROM %s ` +
	`WHERE end_epoch > '%s' GROUP BY subgraph_deployment_ipfs_hash HAVING COUNT(*) >= %d`

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// EndpointHook observes the outcome of one endpoint attempt. err is nil on success.
type EndpointHook func(source, endpoint string, err error)

// TelemetryOptions shapes the telemetry query
type TelemetryOptions struct {
	WindowDays      int
	MinObservedDays int
	Table           string
}

type telemetryRow struct {
	IPFSHash     string     `json:"subgraph_deployment_ipfs_hash"`
	TotalFees    flexNumber `json:"total_query_fees"`
	QueryCount   flexNumber `json:"query_count"`
	DaysWithData flexNumber `json:"days_with_data"`
}

// TelemetryClient queries SQL-over-HTTP endpoints in priority order
type TelemetryClient struct {
	endpoints  []types.Endpoint
	breakers   *circuitbreaker.Set
	httpClient *http.Client
	opts       TelemetryOptions
	hook       EndpointHook
	now        func() time.Time
}

// NewTelemetryClient creates a client over endpoints, tried in order. breakers may
// be shared with other clients; nil disables breaking.
func NewTelemetryClient(endpoints []types.Endpoint, breakers *circuitbreaker.Set, topts TelemetryOptions, opts ...Option) *TelemetryClient {
	o := buildOptions(opts)
	if topts.WindowDays <= 0 {
		topts.WindowDays = 30
	}
	if topts.MinObservedDays < 0 {
		topts.MinObservedDays = 0
	}
	if !tableName.MatchString(topts.Table) {
		if topts.Table != "" {
			logrus.WithField("table", topts.Table).Warn("Invalid telemetry table name, using default")
		}
		topts.Table = DefaultTelemetryTable
	}
	return &TelemetryClient{
		endpoints:  endpoints,
		breakers:   breakers,
		httpClient: o.httpClient,
		opts:       topts,
		now:        time.Now,
	}
}

// WithHook registers an endpoint outcome hook
func (c *TelemetryClient) WithHook(h EndpointHook) *TelemetryClient {
	c.hook = h
	return c
}

// Query returns the SQL sent to the endpoints
func (c *TelemetryClient) Query() string {
	since := c.now().UTC().AddDate(0, 0, -c.opts.WindowDays).Format(time.RFC3339)
	return fmt.Sprintf(telemetrySQL, c.opts.Table, since, c.opts.MinObservedDays)
}

// Fetch returns the first successful endpoint's rows. When every endpoint fails
// the error wraps ErrAllEndpointsFailed and the last endpoint error.
func (c *TelemetryClient) Fetch(ctx context.Context) ([]model.TelemetryRecord, error) {
	ctx, span := tracing.Start(ctx, "fetch.telemetry", attribute.Int("endpoints", len(c.endpoints)))
	defer span.End()

	if len(c.endpoints) == 0 {
		err := fmt.Errorf("%w: no telemetry endpoints configured", ErrAllEndpointsFailed)
		tracing.RecordError(ctx, err)
		return nil, err
	}

	query := c.Query()
	var lastErr error
	for _, ep := range c.endpoints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, err := c.fetchEndpoint(ctx, ep, query)
		if c.hook != nil {
			c.hook("telemetry", ep.Label(), err)
		}
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"endpoint": ep.Label(),
				"error":    err,
			}).Warn("Telemetry endpoint failed, trying next")
			lastErr = err
			continue
		}

		span.SetAttributes(
			attribute.String("endpoint", ep.Label()),
			attribute.Int("rows", len(rows)),
		)
		logrus.WithFields(logrus.Fields{
			"endpoint": ep.Label(),
			"rows":     len(rows),
		}).Debug("Fetched telemetry")
		return toTelemetryRecords(rows), nil
	}

	err := fmt.Errorf("%w: %w", ErrAllEndpointsFailed, lastErr)
	tracing.RecordError(ctx, err)
	return nil, err
}

func (c *TelemetryClient) fetchEndpoint(ctx context.Context, ep types.Endpoint, query string) ([]telemetryRow, error) {
	call := func() ([]telemetryRow, error) {
		req, err := newJSONRequest(ctx, ep.URL, map[string]string{"query": query})
		if err != nil {
			return nil, err
		}
		if ep.HasBasicAuth() {
			req.SetBasicAuth(ep.Username, ep.Password)
		} else if ep.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+ep.APIKey)
		}

		var rows []telemetryRow
		if err := doJSON(c.httpClient, req, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	}

	if c.breakers == nil {
		return call()
	}
	return circuitbreaker.Do(c.breakers.Get("telemetry:"+ep.Label()), call)
}

func toTelemetryRecords(rows []telemetryRow) []model.TelemetryRecord {
	records := make([]model.TelemetryRecord, 0, len(rows))
	for _, r := range rows {
		if r.IPFSHash == "" {
			continue
		}
		records = append(records, model.TelemetryRecord{
			IPFSHash:           r.IPFSHash,
			FeesTotal:          float64(r.TotalFees),
			QueriesTotal:       math.Trunc(float64(r.QueryCount)),
			SubPeriodsObserved: wholeDays(float64(r.DaysWithData)),
		})
	}
	return records
}

// wholeDays truncates a reported day count into [0, MaxInt32].
func wholeDays(v float64) int {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= math.MaxInt32:
		return math.MaxInt32
	default:
		return int(v)
	}
}
