package lowprice

import (
	"context"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService implements Client in-memory for resolver and uploader tests.
type fakeService struct {
	mu       sync.Mutex
	lowest   map[string]*float64
	lowErr   error
	ingested [][]Item
	ingErr   error
}

func (f *fakeService) Lowest(_ context.Context, prodID string) (*LowestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lowErr != nil {
		return nil, f.lowErr
	}
	return &LowestResult{ProdID: prodID, MinPrice: f.lowest[prodID]}, nil
}

func (f *fakeService) Ingest(_ context.Context, items []Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ingErr != nil {
		return f.ingErr
	}
	batch := make([]Item, len(items))
	copy(batch, items)
	f.ingested = append(f.ingested, batch)
	return nil
}

func (f *fakeService) Snapshot(context.Context) (*SnapshotResult, error) {
	return &SnapshotResult{OK: true}, nil
}

func (f *fakeService) batches() [][]Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]Item, len(f.ingested))
	copy(out, f.ingested)
	return out
}

func ptr(v float64) *float64 { return &v }

func resolveWith(t *testing.T, svc *fakeService, req Request) (Resolution, *fakeService) {
	t.Helper()
	uploader := NewUploader(svc)
	resolver := NewResolver(svc, uploader, nil)
	res := resolver.Resolve(context.Background(), req)
	uploader.Flush()
	return res, svc
}

func TestResolve_ObservedBelowRemote_Reports(t *testing.T) {
	svc := &fakeService{lowest: map[string]*float64{"X": ptr(500)}}

	res, _ := resolveWith(t, svc, Request{ProdID: "X", PromoOverride: ptr(450)})
	assert.True(t, res.OK)
	require.NotNil(t, res.EffectiveLow)
	assert.Equal(t, float64(500), *res.EffectiveLow)
	assert.Equal(t, "community", res.Source)

	batches := svc.batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	assert.Equal(t, "X", batches[0][0].ProdID)
	assert.Equal(t, float64(450), batches[0][0].Price)
	assert.NotEmpty(t, batches[0][0].ObservedAt)
}

func TestResolve_ObservedEqualToRemote_DoesNotReport(t *testing.T) {
	svc := &fakeService{lowest: map[string]*float64{"X": ptr(500)}}

	_, _ = resolveWith(t, svc, Request{ProdID: "X", PromoOverride: ptr(500)})
	assert.Empty(t, svc.batches())
}

func TestResolve_NoObservation_DoesNotReport(t *testing.T) {
	svc := &fakeService{lowest: map[string]*float64{"X": ptr(500)}}

	res, _ := resolveWith(t, svc, Request{ProdID: "X"})
	assert.True(t, res.OK)
	assert.Nil(t, res.Promo)
	assert.Empty(t, svc.batches())
}

func TestResolve_FirstObservation_Reports(t *testing.T) {
	svc := &fakeService{lowest: map[string]*float64{}}

	res, _ := resolveWith(t, svc, Request{ProdID: "X", PromoOverride: ptr(450), PageType: "product"})
	assert.True(t, res.OK)
	assert.Nil(t, res.CommunityLow)
	assert.Nil(t, res.EffectiveLow)
	assert.Empty(t, res.Source)

	batches := svc.batches()
	require.Len(t, batches, 1)
	assert.Equal(t, "product", batches[0][0].PageType)
}

func TestResolve_RemoteUnavailable_FallsBackToObservedOnly(t *testing.T) {
	svc := &fakeService{lowErr: eris.New("service down")}

	res, _ := resolveWith(t, svc, Request{ProdID: "X", PromoOverride: ptr(450)})
	assert.True(t, res.OK)
	assert.Nil(t, res.CommunityLow)
	assert.Nil(t, res.EffectiveLow)

	// With no known floor, the observation is still report-worthy.
	assert.Len(t, svc.batches(), 1)
}

func TestResolve_CommunityLowIsEffective(t *testing.T) {
	svc := &fakeService{lowest: map[string]*float64{"X": ptr(480)}}

	res, _ := resolveWith(t, svc, Request{ProdID: "X"})
	require.NotNil(t, res.CommunityLow)
	assert.Equal(t, float64(480), *res.CommunityLow)
	assert.Equal(t, float64(480), *res.EffectiveLow)
	assert.Equal(t, "community", res.Source)
}

func TestResolve_NilUploaderDisablesReporting(t *testing.T) {
	svc := &fakeService{lowest: map[string]*float64{}}
	resolver := NewResolver(svc, nil, nil)

	res := resolver.Resolve(context.Background(), Request{ProdID: "X", PromoOverride: ptr(450)})
	assert.True(t, res.OK)
	assert.Empty(t, svc.batches())
}

func TestResolve_OfficialSignalMerges(t *testing.T) {
	svc := &fakeService{lowest: map[string]*float64{"X": ptr(500)}}
	uploader := NewUploader(svc)
	official := func(context.Context, string) (*float64, *float64) {
		return nil, ptr(460)
	}
	resolver := NewResolver(svc, uploader, official)

	res := resolver.Resolve(context.Background(), Request{ProdID: "X"})
	uploader.Flush()

	require.NotNil(t, res.Low)
	assert.Equal(t, float64(460), *res.Low)
	assert.Equal(t, float64(460), *res.EffectiveLow)
	assert.Equal(t, "official", res.Source)
}

func TestShouldReport(t *testing.T) {
	tests := []struct {
		name      string
		observed  *float64
		official  *float64
		community *float64
		want      bool
	}{
		{"no observation", nil, nil, ptr(500), false},
		{"first observation", ptr(450), nil, nil, true},
		{"below community", ptr(450), nil, ptr(500), true},
		{"equal to community", ptr(500), nil, ptr(500), false},
		{"above community", ptr(550), nil, ptr(500), false},
		{"below official only", ptr(450), ptr(500), nil, true},
		{"at official only", ptr(500), ptr(500), nil, false},
		{"below both floors", ptr(400), ptr(460), ptr(500), true},
		{"between floors", ptr(480), ptr(460), ptr(500), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldReport(tt.observed, tt.official, tt.community))
		})
	}
}
