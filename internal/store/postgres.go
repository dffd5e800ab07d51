package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/pricepatrol/community-low/internal/db"
	"github.com/pricepatrol/community-low/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection. Every
// ingestion item runs the first three in sequence, so they dominate traffic.
var preparedStatements = map[string]string{
	"insert_report":   `INSERT INTO price_reports (id, prod_id, price, reporter_hash, reported_at) VALUES ($1, $2, $3, $4, $5)`,
	"count_reporters": `SELECT count(DISTINCT reporter_hash) FROM price_reports WHERE prod_id = $1 AND price = $2 AND reported_at > $3`,
	"update_lowest": `INSERT INTO lowest_prices (prod_id, min_price, trust_level, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (prod_id) DO UPDATE SET
			min_price   = EXCLUDED.min_price,
			trust_level = EXCLUDED.trust_level,
			updated_at  = EXCLUDED.updated_at
		WHERE EXCLUDED.min_price < lowest_prices.min_price
			OR (EXCLUDED.min_price = lowest_prices.min_price AND EXCLUDED.trust_level < lowest_prices.trust_level)`,
	"get_lowest": `SELECT prod_id, min_price, trust_level, updated_at FROM lowest_prices WHERE prod_id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// access (e.g., report backfill via COPY).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS price_reports (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	prod_id       TEXT NOT NULL,
	price         DOUBLE PRECISION NOT NULL,
	reporter_hash TEXT NOT NULL,
	reported_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS lowest_prices (
	prod_id     TEXT PRIMARY KEY,
	min_price   DOUBLE PRECISION NOT NULL,
	trust_level INTEGER NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_price_reports_lookup ON price_reports(prod_id, price, reported_at);
CREATE INDEX IF NOT EXISTS idx_price_reports_reported_at ON price_reports(reported_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) InsertReport(ctx context.Context, report model.Report) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO price_reports (id, prod_id, price, reporter_hash, reported_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), report.ProdID, report.Price, report.Reporter, report.ReportedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert report for %s", report.ProdID)
}

func (s *PostgresStore) CountDistinctReporters(ctx context.Context, prodID string, price float64, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(DISTINCT reporter_hash) FROM price_reports WHERE prod_id = $1 AND price = $2 AND reported_at > $3`,
		prodID, price, since.UTC(),
	).Scan(&count)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: count reporters for %s", prodID)
	}
	return count, nil
}

func (s *PostgresStore) DeleteExpiredReports(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM price_reports WHERE reported_at <= $1`,
		before.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired reports")
	}
	return int(tag.RowsAffected()), nil
}

// TryUpdateLowest runs the conflict policy as one conditional upsert. The
// WHERE clause on DO UPDATE makes acceptance atomic per product: concurrent
// reports serialize on the row and losers affect zero rows.
func (s *PostgresStore) TryUpdateLowest(ctx context.Context, prodID string, price float64, trust model.TrustLevel, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO lowest_prices (prod_id, min_price, trust_level, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (prod_id) DO UPDATE SET
			min_price   = EXCLUDED.min_price,
			trust_level = EXCLUDED.trust_level,
			updated_at  = EXCLUDED.updated_at
		 WHERE EXCLUDED.min_price < lowest_prices.min_price
			OR (EXCLUDED.min_price = lowest_prices.min_price AND EXCLUDED.trust_level < lowest_prices.trust_level)`,
		prodID, price, int(trust), now.UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: update lowest for %s", prodID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetLowest(ctx context.Context, prodID string) (*model.LowestPrice, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT prod_id, min_price, trust_level, updated_at FROM lowest_prices WHERE prod_id = $1`,
		prodID,
	)

	var lp model.LowestPrice
	var trust int
	err := row.Scan(&lp.ProdID, &lp.Price, &trust, &lp.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lowest for %s", prodID)
	}
	lp.Trust = model.TrustLevel(trust)
	return &lp, nil
}

func (s *PostgresStore) ListLowest(ctx context.Context) ([]model.LowestPrice, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT prod_id, min_price, trust_level, updated_at FROM lowest_prices ORDER BY prod_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list lowest")
	}
	defer rows.Close()

	var out []model.LowestPrice
	for rows.Next() {
		var lp model.LowestPrice
		var trust int
		if err := rows.Scan(&lp.ProdID, &lp.Price, &trust, &lp.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lowest")
		}
		lp.Trust = model.TrustLevel(trust)
		out = append(out, lp)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list lowest iterate")
}
