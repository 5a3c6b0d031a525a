package kvstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memBackend is a plain in-memory NVBackend for tests, grounded on the
// map-backed Store the controller's file persistence used before this
// package's slot abstraction replaced it.
type memBackend struct {
	slots map[int][]byte
}

func newMemBackend() *memBackend {
	return &memBackend{slots: make(map[int][]byte)}
}

func (m *memBackend) ReadSlot(slot int) ([]byte, bool, error) {
	data, ok := m.slots[slot]
	return data, ok, nil
}

func (m *memBackend) WriteSlot(slot int, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	m.slots[slot] = cp
	return nil
}

func TestInsertAndFind(t *testing.T) {
	s := New(newMemBackend())
	require.NoError(t, s.Insert("ns1", "a", []byte("1")))
	require.NoError(t, s.Insert("ns1", "b", []byte("2")))

	v, ok, err := s.Find("ns1", "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)
}

func TestInsertOverwritesInPlace(t *testing.T) {
	s := New(newMemBackend())
	require.NoError(t, s.Insert("ns1", "a", []byte("1")))
	require.NoError(t, s.Insert("ns1", "a", []byte("2")))

	v, ok, err := s.Find("ns1", "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("2"), v)

	n, err := s.readCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFindMissingReturnsNotOK(t *testing.T) {
	s := New(newMemBackend())
	_, ok, err := s.Find("ns1", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNamespacesAreIsolated(t *testing.T) {
	s := New(newMemBackend())
	require.NoError(t, s.Insert("ns1", "a", []byte("1")))
	require.NoError(t, s.Insert("ns2", "a", []byte("2")))

	v1, _, _ := s.Find("ns1", "a")
	v2, _, _ := s.Find("ns2", "a")
	assert.Equal(t, []byte("1"), v1)
	assert.Equal(t, []byte("2"), v2)
}

func TestDeleteCompactsBySwappingLast(t *testing.T) {
	s := New(newMemBackend())
	require.NoError(t, s.Insert("ns1", "a", []byte("1")))
	require.NoError(t, s.Insert("ns1", "b", []byte("2")))
	require.NoError(t, s.Insert("ns1", "c", []byte("3")))

	require.NoError(t, s.Delete("ns1", "a"))

	n, err := s.readCount()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok, _ := s.Find("ns1", "a")
	assert.False(t, ok)
	vb, ok, _ := s.Find("ns1", "b")
	assert.True(t, ok)
	assert.Equal(t, []byte("2"), vb)
	vc, ok, _ := s.Find("ns1", "c")
	assert.True(t, ok)
	assert.Equal(t, []byte("3"), vc)
}

func TestDeleteMissingReturnsNotFound(t *testing.T) {
	s := New(newMemBackend())
	err := s.Delete("ns1", "missing")
	require.Error(t, err)
}

func TestIteratorEnumeratesNamespaceInStorageOrder(t *testing.T) {
	s := New(newMemBackend())
	require.NoError(t, s.Insert("ns1", "a", []byte("1")))
	require.NoError(t, s.Insert("ns2", "x", []byte("9")))
	require.NoError(t, s.Insert("ns1", "b", []byte("2")))

	it, err := s.IteratorInit("ns1")
	require.NoError(t, err)

	var keys []string
	for {
		ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		k, _ := it.Get()
		keys = append(keys, k)
	}
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestIteratorReflectsDeletionSwap(t *testing.T) {
	s := New(newMemBackend())
	require.NoError(t, s.Insert("ns1", "a", []byte("1")))
	require.NoError(t, s.Insert("ns1", "b", []byte("2")))
	require.NoError(t, s.Insert("ns1", "c", []byte("3")))
	require.NoError(t, s.Delete("ns1", "a"))

	it, err := s.IteratorInit("ns1")
	require.NoError(t, err)

	var keys []string
	for {
		ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		k, _ := it.Get()
		keys = append(keys, k)
	}
	assert.Equal(t, []string{"c", "b"}, keys)
}
