// Package uuidgen generates and formats the UUIDs used to name devices
// and deterministically derive ids from stable inputs (spec §4.7).
//
// The v4 generator intentionally does not force the RFC 4122 variant
// bits; the source behaves this way and changing it was flagged as an
// open question rather than a defect (spec §9), so this package
// preserves it rather than silently "fixing" it against an assumed
// intent.
package uuidgen

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"

	"github.com/rustyeddy/beacon/beaconerr"
)

// UUID is a 16-byte identifier.
type UUID [16]byte

// NewV4 returns a random UUID with the version nibble forced to 4 and
// the variant bits left as drawn.
func NewV4() (UUID, error) {
	var u UUID
	if _, err := rand.Read(u[:]); err != nil {
		return UUID{}, beaconerr.Wrap(beaconerr.InternalError, "generate random uuid", err)
	}
	u[6] = (u[6] & 0x0f) | 0x40
	return u, nil
}

// NewV5 deterministically derives a UUID from namespace and data via
// SHA-1, forcing the version nibble to 5 and the variant bits to
// 10xxxxxx.
func NewV5(namespace UUID, data []byte) UUID {
	h := sha1.New()
	h.Write(namespace[:])
	h.Write(data)
	sum := h.Sum(nil)

	var u UUID
	copy(u[:], sum[:16])
	u[6] = (u[6] & 0x0f) | 0x50
	u[8] = (u[8] & 0x3f) | 0x80
	return u
}

// String returns the canonical 36-character "xxxxxxxx-xxxx-xxxx-xxxx-
// xxxxxxxxxxxx" form.
func (u UUID) String() string {
	var buf [36]byte
	hex.Encode(buf[0:8], u[0:4])
	buf[8] = '-'
	hex.Encode(buf[9:13], u[4:6])
	buf[13] = '-'
	hex.Encode(buf[14:18], u[6:8])
	buf[18] = '-'
	hex.Encode(buf[19:23], u[8:10])
	buf[23] = '-'
	hex.Encode(buf[24:36], u[10:16])
	return string(buf[:])
}

// Base64 returns the standard-padded, 24-character base64 encoding.
func (u UUID) Base64() string {
	return base64.StdEncoding.EncodeToString(u[:])
}

// Base64URL returns the unpadded, 22-character base64url encoding.
func (u UUID) Base64URL() string {
	return base64.RawURLEncoding.EncodeToString(u[:])
}

// Parse accepts only the canonical 36-character form, rejecting any
// non-hex character outside the hyphen positions.
func Parse(s string) (UUID, error) {
	if len(s) != 36 {
		return UUID{}, beaconerr.Newf(beaconerr.InvalidParam, "uuid %q has wrong length", s)
	}
	for i, want := range "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx" {
		if want == '-' {
			if s[i] != '-' {
				return UUID{}, beaconerr.Newf(beaconerr.InvalidParam, "uuid %q missing hyphen at %d", s, i)
			}
		}
	}

	hexDigits := s[0:8] + s[9:13] + s[14:18] + s[19:23] + s[24:36]
	raw, err := hex.DecodeString(hexDigits)
	if err != nil {
		return UUID{}, beaconerr.Newf(beaconerr.InvalidParam, "uuid %q contains non-hex characters", s)
	}

	var u UUID
	copy(u[:], raw)
	return u, nil
}
