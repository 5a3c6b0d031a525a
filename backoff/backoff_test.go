package backoff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidParams(t *testing.T) {
	_, err := New(0, 100)
	require.Error(t, err)
	_, err = New(100, 0)
	require.Error(t, err)
	_, err = New(100, 50)
	require.Error(t, err)
}

// Scenario 5 (spec §8): mul=60_000, cutoff=18*60_000.
func TestNextDelayBoundsMatchSpecScenario(t *testing.T) {
	b, err := New(60_000, 18*60_000)
	require.NoError(t, err)

	bounds := [][2]uint32{
		{0, 120_000},
		{60_000, 180_000},
		{180_000, 300_000},
		{420_000, 540_000},
		{900_000, 1_020_000},
	}
	for i, want := range bounds {
		d := b.NextDelay()
		assert.GreaterOrEqualf(t, d, want[0], "call %d lower bound", i+1)
		assert.LessOrEqualf(t, d, want[1], "call %d upper bound", i+1)
	}

	for i := 0; i < 20; i++ {
		d := b.NextDelay()
		assert.GreaterOrEqual(t, d, uint32(1_020_000))
		assert.LessOrEqual(t, d, uint32(1_140_000))
	}
}

func TestResetReturnsToStart(t *testing.T) {
	b, err := New(1000, 10000)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		b.NextDelay()
	}
	b.Reset()
	d := b.NextDelay()
	assert.GreaterOrEqual(t, d, uint32(0))
	assert.LessOrEqual(t, d, uint32(2000))
}

func TestDelaysNeverExceedCutoffPlusMul(t *testing.T) {
	mul, cutoff := uint32(500), uint32(4000)
	b, err := New(mul, cutoff)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		d := b.NextDelay()
		assert.LessOrEqual(t, d, cutoff+mul)
	}
}
