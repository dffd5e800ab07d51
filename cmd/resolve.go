package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pricepatrol/community-low/pkg/lowprice"
)

var (
	resolveObserved float64
	resolvePageType string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <prodId>",
	Short: "Resolve the effective lowest price for a product",
	Long:  "Fetches the community low for a product, merges it with an optionally observed price, reports the observation when it beats the known floor, and prints the resolution as JSON.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := lowprice.NewClient(cfg.Client.BaseURL)
		uploader := lowprice.NewUploader(client,
			lowprice.WithMaxBatch(cfg.Client.MaxBatch),
			lowprice.WithFlushInterval(time.Duration(cfg.Client.FlushIntervalMS)*time.Millisecond),
		)
		defer uploader.Close()

		resolver := lowprice.NewResolver(client, uploader, nil)

		req := lowprice.Request{ProdID: args[0], PageType: resolvePageType}
		if cmd.Flags().Changed("observed") {
			req.PromoOverride = &resolveObserved
		}

		res := resolver.Resolve(cmd.Context(), req)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	resolveCmd.Flags().Float64Var(&resolveObserved, "observed", 0, "page-observed price to merge and possibly report")
	resolveCmd.Flags().StringVar(&resolvePageType, "page-type", "", "page type attached to the report")
	rootCmd.AddCommand(resolveCmd)
}
