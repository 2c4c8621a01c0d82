// Command curationctl runs curation signal analyses from the terminal.
package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rickydata-indexer/curation-signal-optimizer/internal/analysis"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/circuitbreaker"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/config"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/fetch"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/observe"
)

// Global flags
var (
	configFile string
	jsonOutput bool
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "curationctl",
	Short: "Curation signal yield and portfolio analytics",
	Long: `curationctl estimates annualized curation yield per deployment, analyzes a
holder's signal portfolio and proposes capital allocations.

Examples:
  curationctl opportunities --limit 20
  curationctl portfolio 0xabc...def
  curationctl allocate --capital 10000 --json`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		logrus.SetOutput(cmd.ErrOrStderr())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (default: $CONFIG_FILE)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print JSON instead of tables")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug|info|warn|error)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newEngine builds an engine from the loaded configuration
func newEngine() (*analysis.Engine, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	breakers := circuitbreaker.NewSet(cfg.Breaker)
	sources := fetch.NewSources(cfg, breakers, nil)
	return analysis.NewEngine(
		sources.Registry,
		sources.Telemetry,
		sources.Price,
		analysis.OptionsFromConfig(cfg),
		analysis.WithObserver(observe.LogObserver{}),
	), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
