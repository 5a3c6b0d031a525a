// Package propsync implements the producer/consumer properties control
// messages (spec §4.10, §6, §9): a newline-joined list of property
// endpoints, zlib-wrapped-deflate compressed, exchanged with the
// broker on the `/control/producer/properties` and
// `/control/consumer/properties` topics.
package propsync

import (
	"bytes"
	"io"
	"sort"
	"strings"

	"github.com/klauspost/compress/zlib"
	"github.com/rustyeddy/beacon/beaconerr"
)

// EncodeList compresses a sorted, newline-joined, deduplicated list of
// endpoints into the zlib-wrapped-deflate payload the broker expects.
func EncodeList(endpoints []string) ([]byte, error) {
	sorted := make([]string, len(endpoints))
	copy(sorted, endpoints)
	sort.Strings(sorted)

	deduped := sorted[:0]
	for i, e := range sorted {
		if i == 0 || e != sorted[i-1] {
			deduped = append(deduped, e)
		}
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write([]byte(strings.Join(deduped, "\n"))); err != nil {
		return nil, beaconerr.Wrap(beaconerr.InternalError, "compress property list", err)
	}
	if err := zw.Close(); err != nil {
		return nil, beaconerr.Wrap(beaconerr.InternalError, "close property list compressor", err)
	}
	return buf.Bytes(), nil
}

// DecodeList inflates a zlib-wrapped-deflate payload back into its
// newline-separated endpoints, dropping any blank lines.
func DecodeList(payload []byte) ([]string, error) {
	zr, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, beaconerr.Wrap(beaconerr.InternalError, "open property list decompressor", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, beaconerr.Wrap(beaconerr.InternalError, "decompress property list", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	lines := strings.Split(string(raw), "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	return out, nil
}
