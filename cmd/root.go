package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/orderparse/internal/config"
	"github.com/sells-group/orderparse/internal/telemetry"
)

var (
	cfg             *config.Config
	shutdownTracing telemetry.Shutdown = telemetry.Noop
)

var rootCmd = &cobra.Command{
	Use:   "orderparse",
	Short: "AI extraction of freight transport orders",
	Long:  "Extracts structured fields from freight-order documents with multiple AI providers, scores the result and flags documents that need manual review.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is fine; the environment and config.yaml still apply.
		_ = godotenv.Load()

		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		if cfg.Telemetry.Enabled {
			shutdown, err := telemetry.InitTracer(cfg.Telemetry.ServiceName, os.Stderr)
			if err != nil {
				return fmt.Errorf("init telemetry: %w", err)
			}
			shutdownTracing = shutdown
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if err := shutdownTracing(context.Background()); err != nil {
			zap.L().Warn("telemetry: shutdown failed", zap.Error(err))
		}
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
