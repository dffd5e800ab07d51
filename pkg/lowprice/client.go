// Package lowprice is the client SDK for the community lowest-price service:
// an HTTP client, a resolver that merges page-observed prices with the remote
// community low, and a batched best-effort report uploader.
package lowprice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the remote service operations.
type Client interface {
	// Lowest fetches the community lowest price for a product.
	Lowest(ctx context.Context, prodID string) (*LowestResult, error)
	// Ingest sends one batch of report items.
	Ingest(ctx context.Context, items []Item) error
	// Snapshot fetches every product's current record.
	Snapshot(ctx context.Context) (*SnapshotResult, error)
}

// LowestResult is the parsed GET /lowest response. Nil fields mean the
// product has no record.
type LowestResult struct {
	ProdID     string   `json:"prodId"`
	MinPrice   *float64 `json:"minPrice"`
	TrustLevel *int     `json:"trustLevel"`
	UpdatedAt  *string  `json:"updatedAt"`
}

// Item is one observation inside an ingestion batch.
type Item struct {
	ProdID     string  `json:"prodId"`
	Price      float64 `json:"price"`
	PageType   string  `json:"pageType,omitempty"`
	ObservedAt string  `json:"observedAt,omitempty"`
}

// SnapshotResult is the parsed GET /snapshot response.
type SnapshotResult struct {
	OK     bool                     `json:"ok"`
	Last   string                   `json:"last"`
	Prices map[string]SnapshotPrice `json:"prices"`
}

// SnapshotPrice is one product entry inside a snapshot.
type SnapshotPrice struct {
	P float64 `json:"p"`
	T int     `json:"t"`
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Lowest(ctx context.Context, prodID string) (*LowestResult, error) {
	reqURL := fmt.Sprintf("%s/lowest?prodId=%s", c.baseURL, url.QueryEscape(prodID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "lowprice: create request")
	}

	body, status, err := c.do(req)
	if err != nil {
		return nil, eris.Wrap(err, "lowprice: lowest request failed")
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("lowprice: lowest unexpected status %d: %s", status, string(body))
	}

	var result LowestResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "lowprice: unmarshal lowest response")
	}
	return &result, nil
}

func (c *httpClient) Ingest(ctx context.Context, items []Item) error {
	payload, err := json.Marshal(map[string]any{"items": items})
	if err != nil {
		return eris.Wrap(err, "lowprice: marshal batch")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ingest", bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "lowprice: create ingest request")
	}
	req.Header.Set("Content-Type", "application/json")

	body, status, err := c.do(req)
	if err != nil {
		return eris.Wrap(err, "lowprice: ingest request failed")
	}
	if status != http.StatusOK {
		return eris.Errorf("lowprice: ingest unexpected status %d: %s", status, string(body))
	}
	return nil
}

func (c *httpClient) Snapshot(ctx context.Context) (*SnapshotResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/snapshot", nil)
	if err != nil {
		return nil, eris.Wrap(err, "lowprice: create snapshot request")
	}

	body, status, err := c.do(req)
	if err != nil {
		return nil, eris.Wrap(err, "lowprice: snapshot request failed")
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("lowprice: snapshot unexpected status %d: %s", status, string(body))
	}

	var result SnapshotResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "lowprice: unmarshal snapshot response")
	}
	return &result, nil
}

func (c *httpClient) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, eris.Wrap(err, "lowprice: read response body")
	}
	return body, resp.StatusCode, nil
}
