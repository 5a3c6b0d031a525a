package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripScalars(t *testing.T) {
	v := FromInteger(42)
	i, err := v.Integer()
	require.NoError(t, err)
	assert.Equal(t, int32(42), i)

	v = FromLongInteger(123456789012)
	li, err := v.LongInteger()
	require.NoError(t, err)
	assert.Equal(t, int64(123456789012), li)

	v = FromDouble(3.14)
	d, err := v.Double()
	require.NoError(t, err)
	assert.Equal(t, 3.14, d)

	v = FromString("hello")
	s, err := v.Str()
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	v = FromBinaryBlob([]byte{1, 2, 3})
	b, err := v.BinaryBlob()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, b)

	v = FromBoolean(true)
	bo, err := v.Boolean()
	require.NoError(t, err)
	assert.True(t, bo)

	v = FromDateTime(1000)
	dt, err := v.DateTime()
	require.NoError(t, err)
	assert.Equal(t, int64(1000), dt)
}

func TestWrongTagReturnsError(t *testing.T) {
	v := FromInteger(1)
	_, err := v.Str()
	require.Error(t, err)
}

func TestEqualityArraysElementwise(t *testing.T) {
	a := FromDoubleArray([]float64{1, 2, 3})
	b := FromDoubleArray([]float64{1, 2, 3})
	c := FromDoubleArray([]float64{1, 2, 4})
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestEqualityNaNNeverEqual(t *testing.T) {
	a := FromDouble(math.NaN())
	b := FromDouble(math.NaN())
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(a))
}

func TestEqualityBinaryBlobArraySizesFirst(t *testing.T) {
	a := FromBinaryBlobArray([][]byte{{1, 2}, {3}})
	b := FromBinaryBlobArray([][]byte{{1}, {3}})
	assert.False(t, a.Equal(b))
}

func TestIsFiniteRejectsNaNAndInf(t *testing.T) {
	assert.False(t, FromDouble(math.NaN()).IsFinite())
	assert.False(t, FromDouble(math.Inf(1)).IsFinite())
	assert.True(t, FromDouble(1.5).IsFinite())
	assert.False(t, FromDoubleArray([]float64{1, math.NaN()}).IsFinite())
}

func TestScalarFromArrayType(t *testing.T) {
	assert.Equal(t, Double, DoubleArray.Scalar())
	assert.Equal(t, Integer, IntegerArray.Scalar())
	assert.Equal(t, String, String.Scalar())
}
