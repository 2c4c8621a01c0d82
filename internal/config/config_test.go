package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("TELEMETRY_URLS", "https://primary.example/query, https://fallback.example/query,")
	t.Setenv("TELEMETRY_USERNAME", "reader")
	t.Setenv("TELEMETRY_PASSWORD", "secret")
	t.Setenv("THEGRAPH_API_KEY", "abc123")
	t.Setenv("CURATOR_SHARE_RATE", "0.2")
	t.Setenv("SUB_PERIODS_PER_YEAR", "360")
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("RATE_LIMIT_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Len(t, cfg.Telemetry.Endpoints, 2)
	assert.Equal(t, "telemetry-0", cfg.Telemetry.Endpoints[0].Name)
	assert.Equal(t, "https://fallback.example/query", cfg.Telemetry.Endpoints[1].URL)
	assert.Equal(t, "reader", cfg.Telemetry.Endpoints[1].Username)
	assert.Equal(t, "secret", cfg.Telemetry.Endpoints[1].Password)

	assert.Contains(t, cfg.Registry.Endpoint().URL, "/api/abc123/subgraphs/id/")
	assert.Equal(t, 0.2, cfg.Analysis.CuratorShareRate)
	assert.Equal(t, 360.0, cfg.Analysis.SubPeriodsPerYear)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.RateLimit.Enabled)

	// untouched defaults
	assert.Equal(t, 30, cfg.Telemetry.WindowDays)
	assert.Equal(t, 7, cfg.Telemetry.MinObservedDays)
	assert.Equal(t, 0.0892, cfg.Price.Fallback)
	assert.Equal(t, 10.0, cfg.Analysis.RiskHighStdDev)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := writeFile(t, `
port: "9090"
telemetry:
  window_days: 14
  min_observed_days: 3
  endpoints:
    - name: primary
      url: https://db.example/query
      username: u
      password: p
analysis:
  risk_high_stddev: 20
  risk_medium_stddev: 8
breaker:
  failure_threshold: 5
  reset_delay: 90s
signing:
  enabled: true
  validity: 1h
`)
	t.Setenv("PORT", "7070")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Port, "environment overrides file")
	assert.Equal(t, 14, cfg.Telemetry.WindowDays)
	assert.Equal(t, 3, cfg.Telemetry.MinObservedDays)
	require.Len(t, cfg.Telemetry.Endpoints, 1)
	assert.Equal(t, "primary", cfg.Telemetry.Endpoints[0].Label())
	assert.Equal(t, 20.0, cfg.Analysis.RiskHighStdDev)
	assert.Equal(t, 0.10, cfg.Analysis.CuratorShareRate, "file keeps unset defaults")
	assert.Equal(t, uint32(5), cfg.Breaker.FailureThreshold)
	assert.Equal(t, 90*time.Second, cfg.Breaker.ResetDelay)
	assert.True(t, cfg.Signing.Enabled)
	assert.Equal(t, time.Hour, cfg.Signing.Validity)
}

func TestLoad_ConfigFileEnv(t *testing.T) {
	path := writeFile(t, "telemetry:\n  endpoints:\n    - url: https://db.example/query\n")
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "db.example", cfg.Telemetry.Endpoints[0].Label())
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("bad yaml", func(t *testing.T) {
		_, err := Load(writeFile(t, "telemetry: [unclosed"))
		assert.Error(t, err)
	})

	t.Run("no telemetry endpoints", func(t *testing.T) {
		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "telemetry endpoint")
	})
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.Telemetry.Endpoints = append(cfg.Telemetry.Endpoints, Default().Registry.Endpoint())
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "window too long", mutate: func(c *Config) { c.Telemetry.WindowDays = 91 }, errMsg: "window"},
		{name: "window zero", mutate: func(c *Config) { c.Telemetry.WindowDays = 0 }, errMsg: "window"},
		{name: "min observed above window", mutate: func(c *Config) { c.Telemetry.MinObservedDays = 31 }, errMsg: "min observed"},
		{name: "share rate zero", mutate: func(c *Config) { c.Analysis.CuratorShareRate = 0 }, errMsg: "share rate"},
		{name: "share rate above one", mutate: func(c *Config) { c.Analysis.CuratorShareRate = 1.5 }, errMsg: "share rate"},
		{name: "sub-periods zero", mutate: func(c *Config) { c.Analysis.SubPeriodsPerYear = 0 }, errMsg: "sub-periods"},
		{name: "inverted risk thresholds", mutate: func(c *Config) { c.Analysis.RiskHighStdDev = 2 }, errMsg: "risk thresholds"},
		{name: "no fallback price", mutate: func(c *Config) { c.Price.Fallback = 0 }, errMsg: "fallback price"},
		{name: "endpoint without url", mutate: func(c *Config) { c.Telemetry.Endpoints[0].URL = "" }, errMsg: "has no url"},
		{name: "no registry", mutate: func(c *Config) { c.Registry.URL = "" }, errMsg: "registry url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("CFG_INT", "12")
	t.Setenv("CFG_BAD_INT", "twelve")
	t.Setenv("CFG_FLOAT", "0.5")
	t.Setenv("CFG_BOOL", "true")
	t.Setenv("CFG_DUR", "2m")
	t.Setenv("CFG_LIST", "a, b,,c ")
	t.Setenv("CFG_EMPTY", "")

	assert.Equal(t, 12, GetEnvAsInt("CFG_INT", 1))
	assert.Equal(t, 1, GetEnvAsInt("CFG_BAD_INT", 1))
	assert.Equal(t, 0.5, GetEnvAsFloat("CFG_FLOAT", 1))
	assert.True(t, GetEnvAsBool("CFG_BOOL", false))
	assert.Equal(t, 2*time.Minute, GetEnvAsDuration("CFG_DUR", time.Second))
	assert.Equal(t, []string{"a", "b", "c"}, GetEnvAsList("CFG_LIST"))
	assert.Nil(t, GetEnvAsList("CFG_UNSET_LIST"))
	assert.Equal(t, "fallback", GetEnvOrDefault("CFG_EMPTY", "fallback"))
	assert.Equal(t, "fallback", GetEnvOrDefault("CFG_UNSET", "fallback"))
}
