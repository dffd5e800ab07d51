package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricepatrol/community-low/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func insertReport(t *testing.T, st *SQLiteStore, prodID string, price float64, reporter string, at time.Time) {
	t.Helper()
	require.NoError(t, st.InsertReport(context.Background(), model.Report{
		ProdID:     prodID,
		Price:      price,
		Reporter:   reporter,
		ReportedAt: at,
	}))
}

// --- Distinct reporter counting ---

func TestSQLite_CountDistinctReporters_SameReporterTwice(t *testing.T) {
	st := newTestSQLiteStore(t)
	now := time.Now().UTC()

	insertReport(t, st, "X", 500, "r1", now.Add(-time.Hour))
	insertReport(t, st, "X", 500, "r1", now.Add(-time.Minute))

	count, err := st.CountDistinctReporters(context.Background(), "X", 500, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLite_CountDistinctReporters_TwoReporters(t *testing.T) {
	st := newTestSQLiteStore(t)
	now := time.Now().UTC()

	insertReport(t, st, "X", 500, "r1", now.Add(-time.Hour))
	insertReport(t, st, "X", 500, "r2", now.Add(-time.Minute))

	count, err := st.CountDistinctReporters(context.Background(), "X", 500, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSQLite_CountDistinctReporters_OutsideWindowExcluded(t *testing.T) {
	st := newTestSQLiteStore(t)
	now := time.Now().UTC()

	insertReport(t, st, "X", 500, "r1", now.Add(-25*time.Hour))
	insertReport(t, st, "X", 500, "r2", now.Add(-time.Minute))

	count, err := st.CountDistinctReporters(context.Background(), "X", 500, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLite_CountDistinctReporters_ExactPriceOnly(t *testing.T) {
	st := newTestSQLiteStore(t)
	now := time.Now().UTC()

	insertReport(t, st, "X", 500, "r1", now.Add(-time.Hour))
	insertReport(t, st, "X", 499, "r2", now.Add(-time.Minute))

	count, err := st.CountDistinctReporters(context.Background(), "X", 500, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// --- Conflict policy ---

func TestSQLite_TryUpdateLowest_CreatesFirstRecord(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	accepted, err := st.TryUpdateLowest(ctx, "X", 500, model.Unverified, now)
	require.NoError(t, err)
	assert.True(t, accepted)

	lp, err := st.GetLowest(ctx, "X")
	require.NoError(t, err)
	require.NotNil(t, lp)
	assert.Equal(t, float64(500), lp.Price)
	assert.Equal(t, model.Unverified, lp.Trust)
}

func TestSQLite_TryUpdateLowest_LowerPriceWins(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := st.TryUpdateLowest(ctx, "X", 500, model.Trusted, now)
	require.NoError(t, err)

	// A lower price wins regardless of trust; trust resets with the price.
	accepted, err := st.TryUpdateLowest(ctx, "X", 400, model.Unverified, now)
	require.NoError(t, err)
	assert.True(t, accepted)

	lp, err := st.GetLowest(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, float64(400), lp.Price)
	assert.Equal(t, model.Unverified, lp.Trust)
}

func TestSQLite_TryUpdateLowest_EqualPriceBetterTrustWins(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := st.TryUpdateLowest(ctx, "X", 500, model.Unverified, now)
	require.NoError(t, err)

	accepted, err := st.TryUpdateLowest(ctx, "X", 500, model.Trusted, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, accepted)

	lp, err := st.GetLowest(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, float64(500), lp.Price)
	assert.Equal(t, model.Trusted, lp.Trust)
}

func TestSQLite_TryUpdateLowest_ReplayRejected(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := st.TryUpdateLowest(ctx, "X", 500, model.Trusted, now)
	require.NoError(t, err)

	// Same price, same trust: not strictly lower, not strictly better.
	accepted, err := st.TryUpdateLowest(ctx, "X", 500, model.Trusted, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, accepted)

	lp, err := st.GetLowest(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, now.Unix(), lp.UpdatedAt.Unix()) // untouched
}

func TestSQLite_TryUpdateLowest_TrustNeverRegressesAtEqualPrice(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := st.TryUpdateLowest(ctx, "X", 500, model.Trusted, now)
	require.NoError(t, err)

	accepted, err := st.TryUpdateLowest(ctx, "X", 500, model.Unverified, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, accepted)

	lp, err := st.GetLowest(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, model.Trusted, lp.Trust)
}

func TestSQLite_TryUpdateLowest_HigherPriceRejected(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := st.TryUpdateLowest(ctx, "X", 500, model.Trusted, now)
	require.NoError(t, err)

	accepted, err := st.TryUpdateLowest(ctx, "X", 600, model.Trusted, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, accepted)

	lp, err := st.GetLowest(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, float64(500), lp.Price)
}

func TestSQLite_TryUpdateLowest_PriceMonotonic(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	prev := -1.0
	for _, price := range []float64{900, 500, 700, 450, 450, 600, 300} {
		_, err := st.TryUpdateLowest(ctx, "X", price, model.Unverified, now)
		require.NoError(t, err)

		lp, err := st.GetLowest(ctx, "X")
		require.NoError(t, err)
		if prev >= 0 {
			assert.LessOrEqual(t, lp.Price, prev)
		}
		prev = lp.Price
	}
	assert.Equal(t, float64(300), prev)
}

// --- Reads ---

func TestSQLite_GetLowest_AbsentIsNil(t *testing.T) {
	st := newTestSQLiteStore(t)

	lp, err := st.GetLowest(context.Background(), "never-reported")
	require.NoError(t, err)
	assert.Nil(t, lp)
}

func TestSQLite_ListLowest(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := st.TryUpdateLowest(ctx, "B", 200, model.Unverified, now)
	require.NoError(t, err)
	_, err = st.TryUpdateLowest(ctx, "A", 100, model.Trusted, now)
	require.NoError(t, err)

	all, err := st.ListLowest(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "A", all[0].ProdID)
	assert.Equal(t, "B", all[1].ProdID)
}

// --- Pruning ---

func TestSQLite_DeleteExpiredReports(t *testing.T) {
	st := newTestSQLiteStore(t)
	now := time.Now().UTC()

	insertReport(t, st, "X", 500, "r1", now.Add(-48*time.Hour))
	insertReport(t, st, "X", 500, "r2", now.Add(-time.Hour))

	n, err := st.DeleteExpiredReports(context.Background(), now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := st.CountDistinctReporters(context.Background(), "X", 500, now.Add(-72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
