package bsondoc

import (
	"encoding/hex"
	"math"
	"strings"
	"testing"

	"github.com/rustyeddy/beacon/beaconerr"
	"github.com/rustyeddy/beacon/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hexBytes(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	require.NoError(t, err)
	return b
}

// Scenario 2 (spec §8): encode integer 42 under key "v".
func TestEncodeInteger(t *testing.T) {
	got, err := EncodeIndividual(value.FromInteger(42), nil)
	require.NoError(t, err)
	want := hexBytes(t, "0c 00 00 00 10 76 00 2a 00 00 00 00")
	assert.Equal(t, want, got)
}

// Scenario 3 (spec §8): encode a string array under key "v".
func TestEncodeStringArray(t *testing.T) {
	v := value.FromStringArray([]string{"this", "is", "a", "test", "string_array"})
	got, err := EncodeIndividual(v, nil)
	require.NoError(t, err)

	assert.Equal(t, 0x4c, len(got))
	wantStart := hexBytes(t, "4c 00 00 00 04 76 00 44 00 00 00 02 30 00 05 00 00 00 74 68 69 73 00")
	assert.Equal(t, wantStart, got[:len(wantStart)])
	assert.Equal(t, []byte{0x00, 0x00, 0x00}, got[len(got)-3:])
}

// Scenario 4 (spec §8): decoding scenario 2's bytes expecting a string
// array must fail with BsonDeserializerTypesError.
func TestDecodeRejectsTypeMismatch(t *testing.T) {
	raw := hexBytes(t, "0c 00 00 00 10 76 00 2a 00 00 00 00")
	_, _, err := DecodeIndividual(raw, value.StringArray)
	require.Error(t, err)
	var berr *beaconerr.Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, beaconerr.BsonDeserializerTypesError, berr.Kind)
}

func TestRoundTripScalars(t *testing.T) {
	cases := []value.Value{
		value.FromInteger(7),
		value.FromLongInteger(1 << 40),
		value.FromDouble(2.5),
		value.FromString("hello"),
		value.FromBinaryBlob([]byte{1, 2, 3, 4}),
		value.FromBoolean(true),
		value.FromDateTime(1717000000000),
	}
	for _, v := range cases {
		raw, err := EncodeIndividual(v, nil)
		require.NoError(t, err)
		got, _, err := DecodeIndividual(raw, v.Tag())
		require.NoError(t, err)
		assert.True(t, v.Equal(got), "round trip mismatch for %s", v.Tag())
	}
}

func TestRoundTripArrays(t *testing.T) {
	cases := []value.Value{
		value.FromIntegerArray([]int32{1, 2, 3}),
		value.FromLongIntegerArray([]int64{1, 2, 3}),
		value.FromDoubleArray([]float64{1.1, 2.2}),
		value.FromStringArray([]string{"a", "b", "c"}),
		value.FromBinaryBlobArray([][]byte{{1}, {2, 3}}),
		value.FromBooleanArray([]bool{true, false, true}),
		value.FromDateTimeArray([]int64{1, 2}),
	}
	for _, v := range cases {
		raw, err := EncodeIndividual(v, nil)
		require.NoError(t, err)
		got, _, err := DecodeIndividual(raw, v.Tag())
		require.NoError(t, err)
		assert.True(t, v.Equal(got), "round trip mismatch for %s", v.Tag())
	}
}

func TestDecodeEmptyArray(t *testing.T) {
	v := value.FromIntegerArray(nil)
	raw, err := EncodeIndividual(v, nil)
	require.NoError(t, err)

	got, _, err := DecodeIndividual(raw, value.IntegerArray)
	require.NoError(t, err)
	a, err := got.IntegerArray()
	require.NoError(t, err)
	assert.Empty(t, a)
}

func TestEncodeWithExplicitTimestamp(t *testing.T) {
	ts := int64(1700000000000)
	raw, err := EncodeIndividual(value.FromBoolean(true), &ts)
	require.NoError(t, err)

	doc, err := ParseDocument(raw)
	require.NoError(t, err)
	el, ok := doc.Lookup("t")
	require.True(t, ok)
	got, err := el.DateTime()
	require.NoError(t, err)
	assert.Equal(t, ts, got)
}

func TestEncodeDecodeObject(t *testing.T) {
	entries := []ObjectEntry{
		{Path: "temperature", Value: value.FromDouble(21.5)},
		{Path: "humidity", Value: value.FromDouble(55.0)},
	}
	raw, err := EncodeObject(entries, nil)
	require.NoError(t, err)

	typeForPath := func(p string) (value.Type, bool) {
		switch p {
		case "temperature", "humidity":
			return value.Double, true
		default:
			return 0, false
		}
	}
	got, _, err := DecodeObject(raw, typeForPath)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "temperature", got[0].Path)
	assert.Equal(t, "humidity", got[1].Path)
}

func TestDecodeObjectEmptyDocumentRejected(t *testing.T) {
	d := NewDocBuilder()
	inner := NewDocBuilder()
	innerBytes, err := inner.Finish()
	require.NoError(t, err)
	d.Document("v", innerBytes)
	raw, err := d.Finish()
	require.NoError(t, err)

	_, _, err = DecodeObject(raw, func(string) (value.Type, bool) { return 0, false })
	require.Error(t, err)
	var berr *beaconerr.Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, beaconerr.BsonEmptyDocumentError, berr.Kind)
}

func TestEncodeRejectsNonFiniteDouble(t *testing.T) {
	_, err := EncodeIndividual(value.FromDouble(math.NaN()), nil)
	require.Error(t, err)
}

func TestDecodeRejectsTruncatedDocument(t *testing.T) {
	_, err := ParseDocument([]byte{0x05, 0x00, 0x00})
	require.Error(t, err)
}

func TestDecodeRejectsMissingTerminator(t *testing.T) {
	raw := hexBytes(t, "0c 00 00 00 10 76 00 2a 00 00 00 01")
	_, err := ParseDocument(raw)
	require.Error(t, err)
}
