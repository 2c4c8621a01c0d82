// Package fetch provides explicit client handles for the signal registry, the
// query-fee telemetry store and the price sources.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/rickydata-indexer/curation-signal-optimizer/internal/model"
)

// ErrAllEndpointsFailed is returned when every endpoint of a fallback chain failed
var ErrAllEndpointsFailed = errors.New("all endpoints failed")

// maxErrorBody bounds how much of a failed response body ends up in an error
const maxErrorBody = 512

// RegistrySource supplies the deployment catalog and a holder's raw signals
type RegistrySource interface {
	Deployments(ctx context.Context) ([]model.DeploymentRecord, error)
	HolderSignals(ctx context.Context, holder string) ([]model.RawSignal, error)
}

// TelemetrySource supplies trailing-window query-fee telemetry
type TelemetrySource interface {
	Fetch(ctx context.Context) ([]model.TelemetryRecord, error)
}

// PriceSource supplies the current unit price. It never fails.
type PriceSource interface {
	Quote(ctx context.Context) model.PriceQuote
}

// Option configures a client
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	retryMax   int
	timeout    time.Duration
}

// WithHTTPClient replaces the retrying HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithRetryMax sets the retry count of the default HTTP client
func WithRetryMax(n int) Option {
	return func(o *clientOptions) { o.retryMax = n }
}

// WithTimeout sets the per-request timeout of the default HTTP client
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

func buildOptions(opts []Option) clientOptions {
	o := clientOptions{retryMax: 3, timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = StandardClient(newRetryClient(o.retryMax))
		o.httpClient.Timeout = o.timeout
	}
	return o
}

// newRetryClient creates a new HTTP client with retry capabilities
func newRetryClient(retryMax int) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = retryMax
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 3 * time.Second
	c.Logger = nil
	return c
}

// StandardClient converts a retryablehttp.Client to a standard http.Client
func StandardClient(retryClient *retryablehttp.Client) *http.Client {
	return retryClient.StandardClient()
}

// doJSON sends req, checks for a 200 and decodes the body into out
func doJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("API error: status %d, body: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}

// newJSONRequest builds a POST request carrying payload as JSON
func newJSONRequest(ctx context.Context, url string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// flexNumber decodes a JSON number or numeric string. Anything else decodes to 0.
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = flexNumber(v)
	return nil
}
