package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pricepatrol/community-low/internal/anonymize"
	"github.com/pricepatrol/community-low/internal/cache"
	"github.com/pricepatrol/community-low/internal/ingest"
	"github.com/pricepatrol/community-low/internal/server"
	"github.com/pricepatrol/community-low/internal/store"
	"github.com/pricepatrol/community-low/internal/trust"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the price API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		prices := cache.NewReadThrough(st,
			time.Duration(cfg.Cache.LowestTTLMinutes)*time.Minute,
			time.Duration(cfg.Cache.SnapshotTTLMinutes)*time.Minute,
		)
		scorer := trust.NewScorer(st,
			time.Duration(cfg.Trust.WindowHours)*time.Hour,
			cfg.Trust.Quorum,
		)
		ingestr := ingest.NewService(st, scorer, anonymize.New(cfg.Ingest.Salt), prices, cfg.Ingest.MinPrice)
		srv := server.New(prices, ingestr, cfg.Server)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: srv.Router(),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			httpSrv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.String("store", cfg.Store.Driver),
		)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
