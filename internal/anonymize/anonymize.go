// Package anonymize derives stable, non-reversible reporter tokens from
// client network identities so distinct reporters can be counted without
// storing anything identifying.
package anonymize

import (
	"crypto/sha256"
	"encoding/hex"
)

// sentinelIdentity stands in for a missing or unusable raw identity. All such
// reports collapse onto one token, which reduces counting accuracy but never
// blocks ingestion.
const sentinelIdentity = "0.0.0.0"

// Anonymizer produces deterministic one-way reporter tokens.
type Anonymizer struct {
	salt string
}

// New creates an Anonymizer with the given server-side secret salt.
func New(salt string) *Anonymizer {
	return &Anonymizer{salt: salt}
}

// Token returns the SHA-256 hex digest of rawIdentity plus the salt. The same
// identity always yields the same token; the identity is not recoverable.
func (a *Anonymizer) Token(rawIdentity string) string {
	if rawIdentity == "" {
		rawIdentity = sentinelIdentity
	}
	sum := sha256.Sum256([]byte(rawIdentity + a.salt))
	return hex.EncodeToString(sum[:])
}
