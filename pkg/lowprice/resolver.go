package lowprice

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Request asks for an effective lowest price for one product view.
type Request struct {
	ProdID string
	// PromoOverride is the page-observed price, when the caller has one.
	PromoOverride *float64
	PageType      string
}

// Resolution merges the observed price with the remote community low.
type Resolution struct {
	OK           bool     `json:"ok"`
	Promo        *float64 `json:"promo"`
	Low          *float64 `json:"low"`
	CommunityLow *float64 `json:"communityLow"`
	EffectiveLow *float64 `json:"effectiveLow"`
	Source       string   `json:"source,omitempty"` // "official" | "community"
	Err          string   `json:"error,omitempty"`
}

// OfficialFetcher supplies an independent vendor price signal. The default
// implementation is a stub: no such signal exists in this design, so
// resolution leans entirely on community data.
type OfficialFetcher func(ctx context.Context, prodID string) (promo, low *float64)

func stubOfficial(context.Context, string) (*float64, *float64) {
	return nil, nil
}

// Resolver produces the effective lowest price for display and decides
// whether an observation is worth reporting.
type Resolver struct {
	client   Client
	uploader *Uploader
	official OfficialFetcher
	now      func() time.Time
}

// NewResolver creates a Resolver. A nil official fetcher uses the stub; a nil
// uploader disables reporting.
func NewResolver(client Client, uploader *Uploader, official OfficialFetcher) *Resolver {
	if official == nil {
		official = stubOfficial
	}
	return &Resolver{client: client, uploader: uploader, official: official, now: time.Now}
}

// Resolve merges the observed price with official and community signals. A
// community fetch failure degrades to observed-only behavior; it never fails
// the caller. A report-worthy observation is handed to the uploader, not sent
// synchronously.
func (r *Resolver) Resolve(ctx context.Context, req Request) Resolution {
	promo, low := r.official(ctx, req.ProdID)
	if req.PromoOverride != nil {
		promo = req.PromoOverride
	}

	var communityLow *float64
	remote, err := r.client.Lowest(ctx, req.ProdID)
	if err != nil {
		zap.L().Debug("lowprice: community fetch failed",
			zap.String("prodId", req.ProdID),
			zap.Error(err),
		)
	} else {
		communityLow = remote.MinPrice
	}

	effective := low
	source := ""
	if low != nil {
		source = "official"
	}
	if communityLow != nil && (effective == nil || *communityLow < *effective) {
		effective = communityLow
		source = "community"
	}

	if r.uploader != nil && shouldReport(promo, low, communityLow) {
		r.uploader.Enqueue(Item{
			ProdID:     req.ProdID,
			Price:      *promo,
			PageType:   req.PageType,
			ObservedAt: r.now().UTC().Format(time.RFC3339),
		})
	}

	return Resolution{
		OK:           true,
		Promo:        promo,
		Low:          low,
		CommunityLow: communityLow,
		EffectiveLow: effective,
		Source:       source,
	}
}

// shouldReport decides whether an observed price can improve the
// authoritative record: nothing observed means nothing to report; a first
// observation always reports; otherwise only a strictly lower price does,
// since an equal or higher one cannot win the conflict policy anyway.
func shouldReport(observed, official, community *float64) bool {
	if observed == nil {
		return false
	}
	if official == nil && community == nil {
		return true
	}
	if community == nil {
		return *observed < *official
	}
	floor := *community
	if official != nil && *official < floor {
		floor = *official
	}
	return *observed < floor
}
