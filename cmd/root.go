package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pricepatrol/community-low/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "community-low",
	Short: "Crowd-verified lowest-price service",
	Long:  "Ingests anonymous price reports, trust-scores them by distinct-reporter corroboration, and serves the authoritative lowest price per product through an edge cache.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
