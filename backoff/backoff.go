// Package backoff implements the bounded-doubling exponential backoff
// with symmetric jitter used to pace MQTT reconnection attempts (spec
// §4.6).
package backoff

import (
	"math/rand"

	"github.com/rustyeddy/beacon/beaconerr"
	"golang.org/x/exp/constraints"
)

// maxU32 is the ceiling every returned delay and the internal doubling
// state are bounded by.
const maxU32 uint32 = 1<<32 - 1

func clamp[T constraints.Integer](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Backoff generates successive delays (in the caller's unit, typically
// milliseconds) that double each call up to cutoff, jittered by ±mul.
type Backoff struct {
	mul    uint32
	cutoff uint32
	prev   uint32
}

// New builds a Backoff. mul and cutoff must both be positive and
// cutoff must be at least mul.
func New(mul, cutoff uint32) (*Backoff, error) {
	if mul == 0 {
		return nil, beaconerr.New(beaconerr.InvalidParam, "backoff mul must be positive")
	}
	if cutoff == 0 {
		return nil, beaconerr.New(beaconerr.InvalidParam, "backoff cutoff must be positive")
	}
	if cutoff < mul {
		return nil, beaconerr.New(beaconerr.InvalidParam, "backoff cutoff must be >= mul")
	}
	return &Backoff{mul: mul, cutoff: cutoff}, nil
}

// NextDelay computes the next bounded, jittered delay and advances the
// generator's internal doubling state (spec §4.6).
func (b *Backoff) NextDelay() uint32 {
	var base uint32
	switch {
	case b.prev == 0:
		base = b.mul
	case b.prev <= maxU32/2:
		base = 2 * b.prev
	default:
		base = maxU32 - b.mul
	}

	bounded := base
	if bounded > b.cutoff {
		bounded = b.cutoff
	}
	b.prev = bounded

	var lo uint32
	if bounded > b.mul {
		lo = bounded - b.mul
	}
	hi := clamp(bounded+b.mul, bounded, maxU32)
	if bounded > maxU32-b.mul {
		hi = maxU32
	}

	if lo == 0 && hi == maxU32 {
		return rand.Uint32()
	}
	span := uint64(hi-lo) + 1
	return lo + uint32(rand.Uint64()%span)
}

// Reset clears the doubling state so the next NextDelay call returns a
// delay near mul again.
func (b *Backoff) Reset() {
	b.prev = 0
}
