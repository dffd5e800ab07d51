package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pricepatrol/community-low/internal/model"
)

const (
	// DefaultLowestTTL caches single-product lookups for 30 minutes.
	DefaultLowestTTL = 30 * time.Minute
	// DefaultSnapshotTTL caches the bulk snapshot for an hour; it is
	// inherently more stale-tolerant than a point lookup.
	DefaultSnapshotTTL = time.Hour

	snapshotKey = "snapshot"
)

// PriceReader is the store-side read surface the cache fronts.
type PriceReader interface {
	GetLowest(ctx context.Context, prodID string) (*model.LowestPrice, error)
	ListLowest(ctx context.Context) ([]model.LowestPrice, error)
}

// ReadThrough serves lowest-price reads from the TTL cache, falling back to
// the store on miss. Concurrent misses for the same key are coalesced into a
// single store read.
type ReadThrough struct {
	reader      PriceReader
	cache       *TTLCache
	group       singleflight.Group
	lowestTTL   time.Duration
	snapshotTTL time.Duration
}

// NewReadThrough creates a ReadThrough over reader. Non-positive TTLs fall
// back to the defaults.
func NewReadThrough(reader PriceReader, lowestTTL, snapshotTTL time.Duration) *ReadThrough {
	if lowestTTL <= 0 {
		lowestTTL = DefaultLowestTTL
	}
	if snapshotTTL <= 0 {
		snapshotTTL = DefaultSnapshotTTL
	}
	return &ReadThrough{
		reader:      reader,
		cache:       NewTTL(),
		lowestTTL:   lowestTTL,
		snapshotTTL: snapshotTTL,
	}
}

func lowestKey(prodID string) string {
	return "lowest:" + prodID
}

// Lowest returns the current record for prodID, nil when absent. Absent
// results are never cached, so a product's first accepted report becomes
// visible immediately instead of hiding behind a cached "no data" entry.
func (r *ReadThrough) Lowest(ctx context.Context, prodID string) (*model.LowestPrice, error) {
	key := lowestKey(prodID)
	if v, ok := r.cache.Lookup(key); ok {
		return v.(*model.LowestPrice), nil
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		lp, err := r.reader.GetLowest(ctx, prodID)
		if err != nil {
			return nil, err
		}
		if lp != nil {
			r.cache.Store(key, lp, r.lowestTTL)
		}
		return lp, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.LowestPrice), nil
}

// Snapshot returns every product's current record, cached under one key.
// Snapshot staleness is TTL-bounded only; accepted updates do not purge it.
func (r *ReadThrough) Snapshot(ctx context.Context) ([]model.LowestPrice, error) {
	if v, ok := r.cache.Lookup(snapshotKey); ok {
		return v.([]model.LowestPrice), nil
	}

	v, err, _ := r.group.Do(snapshotKey, func() (any, error) {
		all, err := r.reader.ListLowest(ctx)
		if err != nil {
			return nil, err
		}
		r.cache.Store(snapshotKey, all, r.snapshotTTL)
		return all, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.LowestPrice), nil
}

// Invalidate drops the cached lookup for prodID. Called synchronously
// whenever the store accepts a new record for the product.
func (r *ReadThrough) Invalidate(prodID string) {
	r.cache.Invalidate(lowestKey(prodID))
	zap.L().Debug("cache invalidated", zap.String("prodId", prodID))
}
