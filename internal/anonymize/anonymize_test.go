package anonymize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToken_Deterministic(t *testing.T) {
	a := New("pepper")

	tok1 := a.Token("203.0.113.7")
	tok2 := a.Token("203.0.113.7")
	assert.Equal(t, tok1, tok2)
	assert.Len(t, tok1, 64) // sha256 hex
}

func TestToken_DistinctIdentities(t *testing.T) {
	a := New("pepper")

	assert.NotEqual(t, a.Token("203.0.113.7"), a.Token("203.0.113.8"))
}

func TestToken_SaltChangesToken(t *testing.T) {
	assert.NotEqual(t, New("salt-a").Token("203.0.113.7"), New("salt-b").Token("203.0.113.7"))
}

func TestToken_MissingIdentityUsesSentinel(t *testing.T) {
	a := New("pepper")

	// Empty identities collapse onto one stable token.
	assert.Equal(t, a.Token(""), a.Token(""))
	assert.Equal(t, a.Token("0.0.0.0"), a.Token(""))
}

func TestToken_NotReversible(t *testing.T) {
	a := New("pepper")

	tok := a.Token("203.0.113.7")
	assert.NotContains(t, tok, "203")
	assert.NotContains(t, tok, "113")
}
