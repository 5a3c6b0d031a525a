// Package kvstore implements the namespaced key→bytes store described
// in spec §4.8, layered over an injected NVBackend so the slot layout
// can sit on real flash without this package knowing about sectors,
// wear leveling, or erase cycles.
package kvstore

import (
	"encoding/binary"

	"github.com/rustyeddy/beacon/beaconerr"
)

// NVBackend is the seam for the underlying non-volatile storage
// driver (a flash driver, out of scope here per spec §1). Slots are
// addressed by a flat, non-negative index; ReadSlot reports ok=false
// for a slot that was never written.
type NVBackend interface {
	ReadSlot(slot int) (data []byte, ok bool, err error)
	WriteSlot(slot int, data []byte) error
}

// Store is the slot-triple key-value store: slot 0 holds the triple
// count N; for k in [0,N), slots 3k+1, 3k+2, 3k+3 hold
// (namespace, key, value).
type Store struct {
	backend NVBackend
}

// New wraps backend in a Store.
func New(backend NVBackend) *Store {
	return &Store{backend: backend}
}

func (s *Store) readCount() (int, error) {
	data, ok, err := s.backend.ReadSlot(0)
	if err != nil {
		return 0, err
	}
	if !ok || len(data) < 4 {
		return 0, nil
	}
	return int(binary.LittleEndian.Uint32(data)), nil
}

func (s *Store) writeCount(n int) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(n))
	return s.backend.WriteSlot(0, buf[:])
}

func tripleSlots(k int) (ns, key, val int) {
	base := 3*k + 1
	return base, base + 1, base + 2
}

func (s *Store) readSlotString(slot int) (string, bool, error) {
	data, ok, err := s.backend.ReadSlot(slot)
	if err != nil || !ok {
		return "", ok, err
	}
	return string(data), true, nil
}

// find returns the triple index holding (ns, key), or -1 if absent,
// together with the current triple count.
func (s *Store) find(ns, key string) (int, int, error) {
	n, err := s.readCount()
	if err != nil {
		return -1, 0, err
	}
	for k := 0; k < n; k++ {
		nsSlot, keySlot, _ := tripleSlots(k)
		gotNS, ok, err := s.readSlotString(nsSlot)
		if err != nil {
			return -1, n, err
		}
		if !ok || gotNS != ns {
			continue
		}
		gotKey, ok, err := s.readSlotString(keySlot)
		if err != nil {
			return -1, n, err
		}
		if ok && gotKey == key {
			return k, n, nil
		}
	}
	return -1, n, nil
}

// Insert writes value under (ns, key), overwriting any existing value
// for that pair in place, or appending a new triple.
func (s *Store) Insert(ns, key string, value []byte) error {
	idx, n, err := s.find(ns, key)
	if err != nil {
		return err
	}
	if idx >= 0 {
		_, _, valSlot := tripleSlots(idx)
		return s.backend.WriteSlot(valSlot, value)
	}

	nsSlot, keySlot, valSlot := tripleSlots(n)
	if err := s.backend.WriteSlot(nsSlot, []byte(ns)); err != nil {
		return err
	}
	if err := s.backend.WriteSlot(keySlot, []byte(key)); err != nil {
		return err
	}
	if err := s.backend.WriteSlot(valSlot, value); err != nil {
		return err
	}
	return s.writeCount(n + 1)
}

// Find returns the value stored under (ns, key), or ok=false if
// absent.
func (s *Store) Find(ns, key string) (value []byte, ok bool, err error) {
	idx, _, err := s.find(ns, key)
	if err != nil {
		return nil, false, err
	}
	if idx < 0 {
		return nil, false, nil
	}
	_, _, valSlot := tripleSlots(idx)
	data, slotOK, err := s.backend.ReadSlot(valSlot)
	if err != nil {
		return nil, false, err
	}
	return data, slotOK, nil
}

// Delete removes (ns, key), compacting by moving the last triple into
// the freed slots, per spec §4.8.
func (s *Store) Delete(ns, key string) error {
	idx, n, err := s.find(ns, key)
	if err != nil {
		return err
	}
	if idx < 0 {
		return beaconerr.Newf(beaconerr.NotFound, "key %q not found in namespace %q", key, ns)
	}

	last := n - 1
	if idx != last {
		lastNS, lastKey, lastVal := tripleSlots(last)
		nsData, _, err := s.backend.ReadSlot(lastNS)
		if err != nil {
			return err
		}
		keyData, _, err := s.backend.ReadSlot(lastKey)
		if err != nil {
			return err
		}
		valData, _, err := s.backend.ReadSlot(lastVal)
		if err != nil {
			return err
		}
		destNS, destKey, destVal := tripleSlots(idx)
		if err := s.backend.WriteSlot(destNS, nsData); err != nil {
			return err
		}
		if err := s.backend.WriteSlot(destKey, keyData); err != nil {
			return err
		}
		if err := s.backend.WriteSlot(destVal, valData); err != nil {
			return err
		}
	}
	return s.writeCount(last)
}

// Iterator enumerates the keys of a namespace in storage order.
type Iterator struct {
	store *Store
	ns    string
	idx   int
	n     int
	key   string
	val   []byte
}

// IteratorInit returns an Iterator positioned before the first key of
// ns.
func (s *Store) IteratorInit(ns string) (*Iterator, error) {
	n, err := s.readCount()
	if err != nil {
		return nil, err
	}
	return &Iterator{store: s, ns: ns, idx: -1, n: n}, nil
}

// Next advances the iterator to the next matching key, returning false
// once exhausted.
func (it *Iterator) Next() (bool, error) {
	for {
		it.idx++
		if it.idx >= it.n {
			return false, nil
		}
		nsSlot, keySlot, valSlot := tripleSlots(it.idx)
		gotNS, ok, err := it.store.readSlotString(nsSlot)
		if err != nil {
			return false, err
		}
		if !ok || gotNS != it.ns {
			continue
		}
		gotKey, ok, err := it.store.readSlotString(keySlot)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		val, _, err := it.store.backend.ReadSlot(valSlot)
		if err != nil {
			return false, err
		}
		it.key, it.val = gotKey, val
		return true, nil
	}
}

// Get returns the current key and value the iterator is positioned
// at.
func (it *Iterator) Get() (key string, value []byte) {
	return it.key, it.val
}
