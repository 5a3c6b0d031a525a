package propsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := []string{"/led", "/temp", "/humidity"}
	payload, err := EncodeList(in)
	require.NoError(t, err)

	out, err := DecodeList(payload)
	require.NoError(t, err)
	assert.Equal(t, []string{"/humidity", "/led", "/temp"}, out)
}

func TestEncodeDedupesAndSorts(t *testing.T) {
	payload, err := EncodeList([]string{"/b", "/a", "/b"})
	require.NoError(t, err)

	out, err := DecodeList(payload)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b"}, out)
}

func TestEncodeDecodeEmptyList(t *testing.T) {
	payload, err := EncodeList(nil)
	require.NoError(t, err)

	out, err := DecodeList(payload)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDecodeRejectsNonZlibPayload(t *testing.T) {
	_, err := DecodeList([]byte("not zlib"))
	require.Error(t, err)
}
