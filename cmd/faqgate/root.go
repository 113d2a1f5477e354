package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/faqgate/internal/config"
	"github.com/dshills/faqgate/internal/logging"
)

var (
	configPath string
	logLevel   string

	// Set by loadConfig before any subcommand runs.
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "faqgate",
	Short: "Answer FAQ questions only when the evidence is clear",
	Long: `faqgate indexes a markdown FAQ, retrieves the best matching entries for a
question (semantic, hybrid BM25 + dense, or cross-encoder reranked) and
answers only when a confidence gate finds a clear winner.

Configuration is read from a YAML file (--config) and FAQGATE_* environment
variables, e.g. FAQGATE_HYBRID_ENABLED=true or FAQGATE_SYNC_SOURCE=./faq.md.
Logs go to stderr; stdout is reserved for results and the MCP protocol.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		loaded.Log.Level = logLevel
	}

	l, err := logging.New(loaded.Log.Level, loaded.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	cfg, logger = loaded, l
	return nil
}
