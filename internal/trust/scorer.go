// Package trust classifies price reports by counting distinct corroborating
// reporters within a trailing time window.
package trust

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pricepatrol/community-low/internal/model"
)

const (
	// DefaultWindow bounds how far back corroborating reports count.
	DefaultWindow = 24 * time.Hour
	// DefaultQuorum is the distinct-reporter count required for Trusted.
	DefaultQuorum = 2
)

// ReporterCounter is the store-side query the scorer depends on.
type ReporterCounter interface {
	// CountDistinctReporters counts distinct reporter tokens that reported
	// exactly price for prodID at or after since.
	CountDistinctReporters(ctx context.Context, prodID string, price float64, since time.Time) (int, error)
}

// Scorer classifies a just-written report as Trusted or Unverified.
type Scorer struct {
	counter ReporterCounter
	window  time.Duration
	quorum  int
}

// NewScorer creates a Scorer over the given counter. Non-positive window or
// quorum fall back to the defaults.
func NewScorer(counter ReporterCounter, window time.Duration, quorum int) *Scorer {
	if window <= 0 {
		window = DefaultWindow
	}
	if quorum <= 0 {
		quorum = DefaultQuorum
	}
	return &Scorer{counter: counter, window: window, quorum: quorum}
}

// Classify returns the trust level for a report of price on prodID at now.
// It must be called after the report row is durably written, so the report
// always counts toward its own total: a lone reporter yields Unverified.
// Exact price match only; a near-miss is not corroboration. Counter failures
// degrade to Unverified rather than failing ingestion.
func (s *Scorer) Classify(ctx context.Context, prodID string, price float64, now time.Time) model.TrustLevel {
	count, err := s.counter.CountDistinctReporters(ctx, prodID, price, now.Add(-s.window))
	if err != nil {
		zap.L().Warn("trust: distinct reporter count failed",
			zap.String("prodId", prodID),
			zap.Error(err),
		)
		return model.Unverified
	}
	if count >= s.quorum {
		return model.Trusted
	}
	return model.Unverified
}
