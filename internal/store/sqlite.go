package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/pricepatrol/community-low/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = "community-low.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS price_reports (
	id            TEXT PRIMARY KEY,
	prod_id       TEXT NOT NULL,
	price         REAL NOT NULL,
	reporter_hash TEXT NOT NULL,
	reported_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS lowest_prices (
	prod_id     TEXT PRIMARY KEY,
	min_price   REAL NOT NULL,
	trust_level INTEGER NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_price_reports_lookup ON price_reports(prod_id, price, reported_at);
CREATE INDEX IF NOT EXISTS idx_price_reports_reported_at ON price_reports(reported_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertReport(ctx context.Context, report model.Report) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO price_reports (id, prod_id, price, reporter_hash, reported_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), report.ProdID, report.Price, report.Reporter, report.ReportedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert report for %s", report.ProdID)
}

func (s *SQLiteStore) CountDistinctReporters(ctx context.Context, prodID string, price float64, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(DISTINCT reporter_hash) FROM price_reports
		 WHERE prod_id = ? AND price = ? AND reported_at > ?`,
		prodID, price, since.UTC(),
	).Scan(&count)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: count reporters for %s", prodID)
	}
	return count, nil
}

func (s *SQLiteStore) DeleteExpiredReports(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM price_reports WHERE reported_at <= ?`,
		before.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired reports")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// TryUpdateLowest expresses the conflict policy as a single conditional
// upsert so concurrent reports for the same product serialize inside the
// database instead of racing a read-then-write.
func (s *SQLiteStore) TryUpdateLowest(ctx context.Context, prodID string, price float64, trust model.TrustLevel, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO lowest_prices (prod_id, min_price, trust_level, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(prod_id) DO UPDATE SET
			min_price   = excluded.min_price,
			trust_level = excluded.trust_level,
			updated_at  = excluded.updated_at
		 WHERE excluded.min_price < lowest_prices.min_price
			OR (excluded.min_price = lowest_prices.min_price AND excluded.trust_level < lowest_prices.trust_level)`,
		prodID, price, int(trust), now.UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: update lowest for %s", prodID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetLowest(ctx context.Context, prodID string) (*model.LowestPrice, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT prod_id, min_price, trust_level, updated_at FROM lowest_prices WHERE prod_id = ?`,
		prodID,
	)

	var lp model.LowestPrice
	var trust int
	err := row.Scan(&lp.ProdID, &lp.Price, &trust, &lp.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lowest for %s", prodID)
	}
	lp.Trust = model.TrustLevel(trust)
	return &lp, nil
}

func (s *SQLiteStore) ListLowest(ctx context.Context) ([]model.LowestPrice, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT prod_id, min_price, trust_level, updated_at FROM lowest_prices ORDER BY prod_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list lowest")
	}
	defer rows.Close()

	var out []model.LowestPrice
	for rows.Next() {
		var lp model.LowestPrice
		var trust int
		if err := rows.Scan(&lp.ProdID, &lp.Price, &trust, &lp.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lowest")
		}
		lp.Trust = model.TrustLevel(trust)
		out = append(out, lp)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list lowest iterate")
}
