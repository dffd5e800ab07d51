// Package store persists price reports and the authoritative lowest-price
// record per product, with Postgres and SQLite backends.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/pricepatrol/community-low/internal/model"
)

// Store defines the persistence interface for the price pipeline.
type Store interface {
	// Reports
	InsertReport(ctx context.Context, report model.Report) error
	CountDistinctReporters(ctx context.Context, prodID string, price float64, since time.Time) (int, error)
	DeleteExpiredReports(ctx context.Context, before time.Time) (int, error)

	// Lowest prices
	// TryUpdateLowest applies the conflict policy atomically: the new pair
	// wins when its price is strictly lower, or equal with strictly better
	// trust. Rejection is the normal steady state and is not an error.
	TryUpdateLowest(ctx context.Context, prodID string, price float64, trust model.TrustLevel, now time.Time) (bool, error)
	// GetLowest returns nil (no error) when the product has no record.
	GetLowest(ctx context.Context, prodID string) (*model.LowestPrice, error)
	ListLowest(ctx context.Context) ([]model.LowestPrice, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver      string      `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string      `yaml:"database_url" mapstructure:"database_url"`
	Pool        *PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// Open creates the Store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, cfg.Pool)
	case "sqlite", "":
		return NewSQLite(cfg.DatabaseURL)
	}
	return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
}
