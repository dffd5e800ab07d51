package main

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pricepatrol/community-low/internal/anonymize"
	"github.com/pricepatrol/community-low/internal/db"
	"github.com/pricepatrol/community-low/internal/store"
)

// importCmd backfills report history from a CSV export via the COPY protocol.
// Columns: prodId, price, identity, reportedAt (RFC3339). The timestamp here
// is operator-provided history, unlike the ingest path where it is always the
// server clock. Identities are anonymized with the configured salt before
// anything touches the database.
var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Bulk-load report history from CSV (postgres only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cfg.Store.Driver != "postgres" {
			return eris.New("import: requires store.driver=postgres")
		}

		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
		if err != nil {
			return err
		}
		defer st.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrapf(err, "import: open %s", args[0])
		}
		defer f.Close()

		anon := anonymize.New(cfg.Ingest.Salt)
		rows, skipped, err := readReportRows(csv.NewReader(f), anon)
		if err != nil {
			return err
		}

		n, err := db.CopyFrom(ctx, st.Pool(), "price_reports",
			[]string{"id", "prod_id", "price", "reporter_hash", "reported_at"}, rows)
		if err != nil {
			return err
		}

		zap.L().Info("report history imported",
			zap.Int64("loaded", n),
			zap.Int("skipped", skipped),
		)
		return nil
	},
}

func readReportRows(r *csv.Reader, anon *anonymize.Anonymizer) ([][]any, int, error) {
	var rows [][]any
	skipped := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, eris.Wrap(err, "import: read csv")
		}
		if len(rec) < 4 {
			skipped++
			continue
		}

		price, err := strconv.ParseFloat(rec[1], 64)
		if err != nil || rec[0] == "" {
			skipped++
			continue
		}
		observedAt, err := time.Parse(time.RFC3339, rec[3])
		if err != nil {
			skipped++
			continue
		}

		rows = append(rows, []any{
			uuid.New().String(), rec[0], price, anon.Token(rec[2]), observedAt.UTC(),
		})
	}
	return rows, skipped, nil
}

func init() {
	rootCmd.AddCommand(importCmd)
}
