// Package config provides configuration loading and management for the application.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/rickydata-indexer/curation-signal-optimizer/internal/circuitbreaker"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/types"
)

// DefaultRegistryURL is the network subgraph on the decentralized gateway; %s is the API key.
const DefaultRegistryURL = "https://gateway.thegraph.com/api/%s/subgraphs/id/DZz4kDTdmzWLWsV373w2bSmoar3umKKH9y82SUKr5qmp"

// Config holds all application configuration
type Config struct {
	// HTTP server port
	Port string `yaml:"port"`

	// Timeout for one full analysis run including all fetches
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// OpenTelemetry endpoint for observability; empty disables tracing
	OtelEndpoint string `yaml:"otel_endpoint"`

	// Fraction of root spans sampled when tracing is enabled
	OtelSampleRatio float64 `yaml:"otel_sample_ratio"`

	Registry   RegistryConfig          `yaml:"registry"`
	Telemetry  TelemetryConfig         `yaml:"telemetry"`
	Price      PriceConfig             `yaml:"price"`
	Analysis   AnalysisConfig          `yaml:"analysis"`
	Allocation AllocationConfig        `yaml:"allocation"`
	Breaker    circuitbreaker.Settings `yaml:"breaker"`
	RateLimit  RateLimitConfig         `yaml:"rate_limit"`
	Signing    SigningConfig           `yaml:"signing"`
	Export     ExportConfig            `yaml:"export"`
	Log        LogConfig               `yaml:"log"`
}

// RegistryConfig points at the GraphQL signal registry
type RegistryConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`

	// MinSignalRaw filters out deployments at or below this signal, smallest unit
	MinSignalRaw string `yaml:"min_signal_raw"`

	PageSize int `yaml:"page_size"`
}

// Endpoint returns the registry URL with the API key substituted.
func (r RegistryConfig) Endpoint() types.Endpoint {
	url := r.URL
	if strings.Contains(url, "%s") {
		url = fmt.Sprintf(url, r.APIKey)
	}
	return types.Endpoint{Name: "registry", URL: url, APIKey: r.APIKey}
}

// TelemetryConfig lists the SQL-over-HTTP endpoints in priority order
type TelemetryConfig struct {
	Endpoints []types.Endpoint `yaml:"endpoints"`

	// WindowDays is the trailing window queried, 1 to 90
	WindowDays int `yaml:"window_days"`

	// MinObservedDays drops deployments with fewer reporting days in the window
	MinObservedDays int `yaml:"min_observed_days"`

	Table string `yaml:"table"`
}

// PriceConfig configures the price oracle chain
type PriceConfig struct {
	TokenAPIURL  string  `yaml:"token_api_url"`
	TokenAPIKey  string  `yaml:"token_api_key"`
	CoinGeckoURL string  `yaml:"coingecko_url"`
	Fallback     float64 `yaml:"fallback"`
}

// AnalysisConfig holds the protocol-tunable constants of the derivation
type AnalysisConfig struct {
	CuratorShareRate    float64 `yaml:"curator_share_rate"`
	SubPeriodsPerYear   float64 `yaml:"sub_periods_per_year"`
	RiskHighStdDev      float64 `yaml:"risk_high_stddev"`
	RiskMediumStdDev    float64 `yaml:"risk_medium_stddev"`
	RecommendationLimit int     `yaml:"recommendation_limit"`
}

// AllocationConfig tunes the allocation optimizer
type AllocationConfig struct {
	Step          float64 `yaml:"step"`
	CapFraction   float64 `yaml:"cap_fraction"`
	EntryCost     float64 `yaml:"entry_cost"`
	MaxIterations int     `yaml:"max_iterations"`
}

// RateLimitConfig defines settings for rate limiting
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min"`
	BurstSize      int  `yaml:"burst_size"`
}

// SigningConfig defines settings for report signatures
type SigningConfig struct {
	Enabled bool `yaml:"enabled"`

	// PrivateKeyHex is a hex secp256k1 key; empty generates an ephemeral key
	PrivateKeyHex string        `yaml:"private_key"`
	Validity      time.Duration `yaml:"validity"`
}

// ExportConfig defines settings for the report webhook
type ExportConfig struct {
	WebhookURL    string        `yaml:"webhook_url"`
	WebhookAPIKey string        `yaml:"webhook_api_key"`
	BatchSize     int           `yaml:"batch_size"`
	Interval      time.Duration `yaml:"interval"`
}

// Enabled reports whether a webhook is configured
func (e ExportConfig) Enabled() bool {
	return e.WebhookURL != ""
}

// LogConfig controls logging format and level
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Port:            "8080",
		RequestTimeout:  30 * time.Second,
		OtelSampleRatio: 1.0,
		Registry: RegistryConfig{
			URL:          DefaultRegistryURL,
			MinSignalRaw: "1000000000000000000000",
			PageSize:     1000,
		},
		Telemetry: TelemetryConfig{
			WindowDays:      30,
			MinObservedDays: 7,
			Table:           "qos_daily_query_volume",
		},
		Price: PriceConfig{
			TokenAPIURL:  "https://token-api.thegraph.com/ohlc/prices/evm/0x9623063377ad1b27544c965ccd7342f7ea7e88c7?network_id=arbitrum-one&interval=1h&limit=1&page=1",
			CoinGeckoURL: "https://api.coingecko.com/api/v3/simple/price?ids=the-graph&vs_currencies=usd",
			Fallback:     0.0892,
		},
		Analysis: AnalysisConfig{
			CuratorShareRate:    0.10,
			SubPeriodsPerYear:   365,
			RiskHighStdDev:      10,
			RiskMediumStdDev:    5,
			RecommendationLimit: 5,
		},
		Allocation: AllocationConfig{
			Step:          10,
			CapFraction:   0.10,
			EntryCost:     0.005,
			MaxIterations: 1000,
		},
		Breaker: circuitbreaker.DefaultSettings(),
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 60,
			BurstSize:      10,
		},
		Signing: SigningConfig{
			Validity: 24 * time.Hour,
		},
		Export: ExportConfig{
			BatchSize: 50,
			Interval:  time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, a .env file
// and the environment, in that order of precedence. path falls back to CONFIG_FILE.
func Load(path string) (Config, error) {
	cfg := Default()

	// .env is optional
	_ = godotenv.Load()

	if path == "" {
		path = GetEnvOrDefault("CONFIG_FILE", "")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
		logrus.Infof("Loaded configuration from %s", path)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides overwrites values with environment variables when present
func applyEnvOverrides(cfg *Config) {
	cfg.Port = GetEnvOrDefault("PORT", cfg.Port)
	cfg.RequestTimeout = GetEnvAsDuration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.OtelEndpoint = GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OtelEndpoint)
	cfg.OtelSampleRatio = GetEnvAsFloat("OTEL_SAMPLE_RATIO", cfg.OtelSampleRatio)

	cfg.Registry.URL = GetEnvOrDefault("REGISTRY_URL", cfg.Registry.URL)
	cfg.Registry.APIKey = GetEnvOrDefault("THEGRAPH_API_KEY", cfg.Registry.APIKey)
	cfg.Registry.MinSignalRaw = GetEnvOrDefault("REGISTRY_MIN_SIGNAL_RAW", cfg.Registry.MinSignalRaw)
	cfg.Registry.PageSize = GetEnvAsInt("REGISTRY_PAGE_SIZE", cfg.Registry.PageSize)

	if urls := GetEnvAsList("TELEMETRY_URLS"); len(urls) > 0 {
		user := GetEnvOrDefault("TELEMETRY_USERNAME", "")
		pass := GetEnvOrDefault("TELEMETRY_PASSWORD", "")
		endpoints := make([]types.Endpoint, 0, len(urls))
		for i, u := range urls {
			endpoints = append(endpoints, types.Endpoint{
				Name:     fmt.Sprintf("telemetry-%d", i),
				URL:      u,
				Username: user,
				Password: pass,
			})
		}
		cfg.Telemetry.Endpoints = endpoints
	}
	cfg.Telemetry.WindowDays = GetEnvAsInt("TELEMETRY_WINDOW_DAYS", cfg.Telemetry.WindowDays)
	cfg.Telemetry.MinObservedDays = GetEnvAsInt("TELEMETRY_MIN_OBSERVED_DAYS", cfg.Telemetry.MinObservedDays)
	cfg.Telemetry.Table = GetEnvOrDefault("TELEMETRY_TABLE", cfg.Telemetry.Table)

	cfg.Price.TokenAPIURL = GetEnvOrDefault("TOKEN_API_URL", cfg.Price.TokenAPIURL)
	cfg.Price.TokenAPIKey = GetEnvOrDefault("TOKEN_API_KEY", cfg.Price.TokenAPIKey)
	cfg.Price.CoinGeckoURL = GetEnvOrDefault("COINGECKO_URL", cfg.Price.CoinGeckoURL)
	cfg.Price.Fallback = GetEnvAsFloat("FALLBACK_PRICE", cfg.Price.Fallback)

	cfg.Analysis.CuratorShareRate = GetEnvAsFloat("CURATOR_SHARE_RATE", cfg.Analysis.CuratorShareRate)
	cfg.Analysis.SubPeriodsPerYear = GetEnvAsFloat("SUB_PERIODS_PER_YEAR", cfg.Analysis.SubPeriodsPerYear)
	cfg.Analysis.RiskHighStdDev = GetEnvAsFloat("RISK_HIGH_STDDEV", cfg.Analysis.RiskHighStdDev)
	cfg.Analysis.RiskMediumStdDev = GetEnvAsFloat("RISK_MEDIUM_STDDEV", cfg.Analysis.RiskMediumStdDev)
	cfg.Analysis.RecommendationLimit = GetEnvAsInt("RECOMMENDATION_LIMIT", cfg.Analysis.RecommendationLimit)

	cfg.Allocation.Step = GetEnvAsFloat("ALLOCATION_STEP", cfg.Allocation.Step)
	cfg.Allocation.CapFraction = GetEnvAsFloat("ALLOCATION_CAP_FRACTION", cfg.Allocation.CapFraction)
	cfg.Allocation.EntryCost = GetEnvAsFloat("ALLOCATION_ENTRY_COST", cfg.Allocation.EntryCost)
	cfg.Allocation.MaxIterations = GetEnvAsInt("ALLOCATION_MAX_ITERATIONS", cfg.Allocation.MaxIterations)

	cfg.Breaker.FailureThreshold = uint32(GetEnvAsInt("CIRCUIT_FAILURE_THRESHOLD", int(cfg.Breaker.FailureThreshold)))
	cfg.Breaker.ResetDelay = GetEnvAsDuration("CIRCUIT_RESET_DELAY", cfg.Breaker.ResetDelay)

	cfg.RateLimit.Enabled = GetEnvAsBool("RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.RequestsPerMin = GetEnvAsInt("REQUESTS_PER_MIN", cfg.RateLimit.RequestsPerMin)
	cfg.RateLimit.BurstSize = GetEnvAsInt("RATE_LIMIT_BURST", cfg.RateLimit.BurstSize)

	cfg.Signing.Enabled = GetEnvAsBool("SIGNATURE_ENABLED", cfg.Signing.Enabled)
	cfg.Signing.PrivateKeyHex = GetEnvOrDefault("SIGNING_PRIVATE_KEY", cfg.Signing.PrivateKeyHex)
	cfg.Signing.Validity = GetEnvAsDuration("SIGNATURE_VALIDITY", cfg.Signing.Validity)

	cfg.Export.WebhookURL = GetEnvOrDefault("WEBHOOK_URL", cfg.Export.WebhookURL)
	cfg.Export.WebhookAPIKey = GetEnvOrDefault("WEBHOOK_API_KEY", cfg.Export.WebhookAPIKey)
	cfg.Export.BatchSize = GetEnvAsInt("WEBHOOK_BATCH_SIZE", cfg.Export.BatchSize)
	cfg.Export.Interval = GetEnvAsDuration("WEBHOOK_INTERVAL", cfg.Export.Interval)

	cfg.Log.Level = GetEnvOrDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = GetEnvOrDefault("LOG_FORMAT", cfg.Log.Format)
}

// Validate rejects configurations the analysis cannot run with
func (c Config) Validate() error {
	var errs []error

	if c.Telemetry.WindowDays < 1 || c.Telemetry.WindowDays > 90 {
		errs = append(errs, fmt.Errorf("telemetry window must be 1-90 days, got %d", c.Telemetry.WindowDays))
	}
	if c.Telemetry.MinObservedDays < 0 || c.Telemetry.MinObservedDays > c.Telemetry.WindowDays {
		errs = append(errs, fmt.Errorf("min observed days must be 0-%d, got %d", c.Telemetry.WindowDays, c.Telemetry.MinObservedDays))
	}
	if len(c.Telemetry.Endpoints) == 0 {
		errs = append(errs, errors.New("at least one telemetry endpoint is required"))
	}
	for i, ep := range c.Telemetry.Endpoints {
		if ep.URL == "" {
			errs = append(errs, fmt.Errorf("telemetry endpoint %d has no url", i))
		}
	}
	if c.Registry.URL == "" {
		errs = append(errs, errors.New("registry url is required"))
	}
	if c.Analysis.CuratorShareRate <= 0 || c.Analysis.CuratorShareRate > 1 {
		errs = append(errs, fmt.Errorf("curator share rate must be in (0,1], got %v", c.Analysis.CuratorShareRate))
	}
	if c.Analysis.SubPeriodsPerYear <= 0 {
		errs = append(errs, fmt.Errorf("sub-periods per year must be positive, got %v", c.Analysis.SubPeriodsPerYear))
	}
	if c.Analysis.RiskMediumStdDev < 0 || c.Analysis.RiskHighStdDev < c.Analysis.RiskMediumStdDev {
		errs = append(errs, fmt.Errorf("risk thresholds must satisfy 0 <= medium <= high, got %v/%v",
			c.Analysis.RiskMediumStdDev, c.Analysis.RiskHighStdDev))
	}
	if c.Price.Fallback <= 0 {
		errs = append(errs, fmt.Errorf("fallback price must be positive, got %v", c.Price.Fallback))
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMin <= 0 {
		errs = append(errs, fmt.Errorf("requests per minute must be positive, got %d", c.RateLimit.RequestsPerMin))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// GetEnv retrieves an environment variable and whether it exists
func GetEnv(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	return value, exists
}

// GetEnvOrDefault retrieves an environment variable or returns the default value if not set
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := GetEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// GetEnvAsInt retrieves an environment variable as an integer with a default value
func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := GetEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		logrus.Warnf("Invalid integer in %s, using default: %v", key, defaultValue)
	}
	return defaultValue
}

// GetEnvAsFloat retrieves an environment variable as a float with a default value
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := GetEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
		logrus.Warnf("Invalid float in %s, using default: %v", key, defaultValue)
	}
	return defaultValue
}

// GetEnvAsDuration retrieves an environment variable as a duration with a default value
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := GetEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		logrus.Warnf("Invalid duration in %s, using default: %v", key, defaultValue)
	}
	return defaultValue
}

// GetEnvAsBool retrieves an environment variable as a boolean with a default value
func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := GetEnv(key); exists {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
		logrus.Warnf("Invalid boolean in %s, using default: %v", key, defaultValue)
	}
	return defaultValue
}

// GetEnvAsList splits a comma-separated environment variable, dropping empty items
func GetEnvAsList(key string) []string {
	value, exists := GetEnv(key)
	if !exists {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
