package uuidgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario 1 (spec §8): deterministic UUIDv5.
func TestNewV5MatchesSpecVector(t *testing.T) {
	ns, err := Parse("c21fb11c-b6c9-452a-9e86-6075e313d7e2")
	require.NoError(t, err)

	got := NewV5(ns, []byte("00225588"))
	assert.Equal(t, "63c8fb48-02ab-53f4-a254-52956dcbbce4", got.String())
}

func TestNewV4SetsVersionNibble(t *testing.T) {
	u, err := NewV4()
	require.NoError(t, err)
	assert.Equal(t, byte(0x40), u[6]&0xf0)
}

func TestStringRoundTripsThroughParse(t *testing.T) {
	u, err := NewV4()
	require.NoError(t, err)

	parsed, err := Parse(u.String())
	require.NoError(t, err)
	assert.Equal(t, u, parsed)
}

func TestParseRejectsWrongLength(t *testing.T) {
	_, err := Parse("not-a-uuid")
	require.Error(t, err)
}

func TestParseRejectsNonHexOutsideHyphens(t *testing.T) {
	_, err := Parse("zzzzzzzz-b6c9-452a-9e86-6075e313d7e2")
	require.Error(t, err)
}

func TestParseRejectsMisplacedHyphen(t *testing.T) {
	_, err := Parse("c21fb11cb-6c9-452a-9e86-6075e313d7e2")
	require.Error(t, err)
}

func TestBase64Forms(t *testing.T) {
	ns, err := Parse("c21fb11c-b6c9-452a-9e86-6075e313d7e2")
	require.NoError(t, err)

	assert.Len(t, ns.Base64(), 24)
	assert.Len(t, ns.Base64URL(), 22)
}
