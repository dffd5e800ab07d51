// Package ingest processes batched price reports: validation, anonymized
// reporter attribution, trust scoring, and the authoritative-store update
// with synchronous cache invalidation.
package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pricepatrol/community-low/internal/anonymize"
	"github.com/pricepatrol/community-low/internal/model"
	"github.com/pricepatrol/community-low/internal/store"
	"github.com/pricepatrol/community-low/internal/trust"
)

// DefaultMinPrice filters obvious scraping and unit errors; reports at or
// below it are skipped.
const DefaultMinPrice = 10

// Item is one reported observation inside an ingestion batch. ObservedAt is
// client-supplied and deliberately ignored for trust purposes: a forged
// timestamp could otherwise park a report inside (or beyond) the window.
type Item struct {
	ProdID     string  `json:"prodId"`
	Price      float64 `json:"price"`
	PageType   string  `json:"pageType,omitempty"`
	ObservedAt string  `json:"observedAt,omitempty"`
}

// Result summarizes one processed batch. Processed counts every item that
// passed validation regardless of the conflict-policy outcome; Accepted
// counts only items that changed the authoritative record.
type Result struct {
	Processed int
	Accepted  int
}

// Invalidator is the cache hook called when the store accepts an update.
type Invalidator interface {
	Invalidate(prodID string)
}

// Service wires the ingestion pipeline together.
type Service struct {
	store       store.Store
	scorer      *trust.Scorer
	anonymizer  *anonymize.Anonymizer
	invalidator Invalidator
	minPrice    float64
	now         func() time.Time
}

// NewService creates an ingestion Service. A non-positive minPrice falls back
// to DefaultMinPrice.
func NewService(st store.Store, scorer *trust.Scorer, anon *anonymize.Anonymizer, inv Invalidator, minPrice float64) *Service {
	if minPrice <= 0 {
		minPrice = DefaultMinPrice
	}
	return &Service{
		store:       st,
		scorer:      scorer,
		anonymizer:  anon,
		invalidator: inv,
		minPrice:    minPrice,
		now:         time.Now,
	}
}

// ProcessBatch runs every item of a batch through the pipeline. Items with a
// missing product ID or a price at or below the floor are skipped silently;
// a store failure on one item logs and skips that item without aborting the
// rest. The shared reporter token is derived once from rawIdentity, and every
// report is stamped with the server receipt time.
func (s *Service) ProcessBatch(ctx context.Context, rawIdentity string, items []Item) Result {
	reporter := s.anonymizer.Token(rawIdentity)
	now := s.now().UTC()

	var res Result
	for _, item := range items {
		if item.ProdID == "" || item.Price <= s.minPrice {
			continue
		}

		accepted, err := s.processItem(ctx, reporter, item, now)
		if err != nil {
			zap.L().Warn("ingest: item failed",
				zap.String("prodId", item.ProdID),
				zap.Float64("price", item.Price),
				zap.Error(err),
			)
			continue
		}

		res.Processed++
		if accepted {
			res.Accepted++
		}
	}
	return res
}

func (s *Service) processItem(ctx context.Context, reporter string, item Item, now time.Time) (bool, error) {
	report := model.Report{
		ProdID:     item.ProdID,
		Price:      item.Price,
		Reporter:   reporter,
		ReportedAt: now,
	}
	if err := s.store.InsertReport(ctx, report); err != nil {
		return false, err
	}

	// Classification runs after the insert so the report counts toward its
	// own corroboration total.
	level := s.scorer.Classify(ctx, item.ProdID, item.Price, now)

	accepted, err := s.store.TryUpdateLowest(ctx, item.ProdID, item.Price, level, now)
	if err != nil {
		return false, err
	}
	if accepted {
		s.invalidator.Invalidate(item.ProdID)
		zap.L().Info("ingest: lowest price updated",
			zap.String("prodId", item.ProdID),
			zap.Float64("price", item.Price),
			zap.Stringer("trust", level),
		)
	}
	return accepted, nil
}
