// Package model defines the core domain types for the community lowest-price
// service: reported observations and the authoritative per-product record.
package model

import "time"

// TrustLevel classifies how much corroboration a stored price has.
// Lower values are better; the wire encoding is the integer itself.
type TrustLevel int

const (
	// Trusted means at least two distinct reporters observed the same price
	// within the trust window.
	Trusted TrustLevel = 0
	// Unverified means the price rests on a single reporter so far.
	Unverified TrustLevel = 1
)

func (t TrustLevel) String() string {
	switch t {
	case Trusted:
		return "trusted"
	case Unverified:
		return "unverified"
	}
	return "unknown"
}

// Report is a single immutable price observation from an anonymous reporter.
// ReportedAt is the server receipt time; client-supplied timestamps never
// decide where a report sits in the trust window.
type Report struct {
	ProdID     string    `json:"prodId"`
	Price      float64   `json:"price"`
	Reporter   string    `json:"reporter"`
	ReportedAt time.Time `json:"reportedAt"`
}

// LowestPrice is the authoritative record for one product. There is at most
// one row per product; absence means no accepted report yet.
type LowestPrice struct {
	ProdID    string     `json:"prodId"`
	Price     float64    `json:"minPrice"`
	Trust     TrustLevel `json:"trustLevel"`
	UpdatedAt time.Time  `json:"updatedAt"`
}
