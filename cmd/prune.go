package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pricepatrol/community-low/internal/store"
)

var pruneOlderThanHours int

// Report history only has to outlive the trust window; anything older can no
// longer corroborate a report and just grows the table.
var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete report history older than the trust window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		olderThan := pruneOlderThanHours
		if olderThan == 0 {
			olderThan = cfg.Trust.WindowHours
		}
		cutoff := time.Now().UTC().Add(-time.Duration(olderThan) * time.Hour)

		n, err := st.DeleteExpiredReports(ctx, cutoff)
		if err != nil {
			return err
		}

		zap.L().Info("expired reports pruned",
			zap.Int("deleted", n),
			zap.Time("cutoff", cutoff),
		)
		return nil
	},
}

func init() {
	pruneCmd.Flags().IntVar(&pruneOlderThanHours, "older-than-hours", 0, "age cutoff in hours (default: trust window)")
	rootCmd.AddCommand(pruneCmd)
}
