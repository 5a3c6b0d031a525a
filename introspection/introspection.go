// Package introspection maintains the ordered, distinct-by-name set of
// interfaces a device claims to implement, and serializes it into the
// string the broker expects on connect (spec §4.5).
package introspection

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/rustyeddy/beacon/beaconerr"
	"github.com/rustyeddy/beacon/schema"
)

// maxRecommendedLen is the size above which Registry.String warns but
// does not fail (spec §4.5).
const maxRecommendedLen = 4096

// Registry holds the device's interfaces in insertion order. A plain
// slice (rather than the source's intrusive doubly linked list) gives
// the same stable-iteration, O(1)-append properties that matter here;
// removal is O(n), which is acceptable for the handful of interfaces a
// constrained device declares (spec §9 design note).
type Registry struct {
	mu    sync.RWMutex
	order []*schema.Interface
	Log   *slog.Logger
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{Log: slog.Default()}
}

func (r *Registry) indexLocked(name string) int {
	for i, iface := range r.order {
		if iface.Name == name {
			return i
		}
	}
	return -1
}

// Add inserts iface, failing if the name already exists.
func (r *Registry) Add(iface schema.Interface) error {
	if err := iface.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexLocked(iface.Name) >= 0 {
		return beaconerr.Newf(beaconerr.InterfaceAlreadyPresent, "interface %q already present", iface.Name)
	}
	r.order = append(r.order, &iface)
	return nil
}

// Update replaces an existing interface with a newer version, or adds
// it if absent. Existing ownership/type must match, and the new
// version must be strictly greater (spec §3, §4.5).
func (r *Registry) Update(iface schema.Interface) error {
	if err := iface.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(iface.Name)
	if idx < 0 {
		r.order = append(r.order, &iface)
		return nil
	}

	old := r.order[idx]
	if old.Ownership != iface.Ownership || old.Type != iface.Type {
		return beaconerr.Newf(beaconerr.InterfaceConflicting, "interface %q ownership/type mismatch", iface.Name)
	}
	isNewer := iface.Major > old.Major || (iface.Major == old.Major && iface.Minor > old.Minor)
	if !isNewer {
		return beaconerr.Newf(beaconerr.InterfaceConflicting, "interface %q version %d.%d is not newer than %d.%d", iface.Name, iface.Major, iface.Minor, old.Major, old.Minor)
	}
	r.order[idx] = &iface
	return nil
}

// Get returns the named interface, or false if absent.
func (r *Registry) Get(name string) (schema.Interface, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := r.indexLocked(name)
	if idx < 0 {
		return schema.Interface{}, false
	}
	return *r.order[idx], true
}

// Remove unlinks the named interface, if present.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(name)
	if idx < 0 {
		return
	}
	r.order = append(r.order[:idx], r.order[idx+1:]...)
}

// Len returns the number of registered interfaces.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// All returns a snapshot of the registered interfaces in insertion
// order.
func (r *Registry) All() []schema.Interface {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schema.Interface, len(r.order))
	for i, iface := range r.order {
		out[i] = *iface
	}
	return out
}

// String serializes the registry to the canonical
// "name:major:minor;..." form (spec §4.5/§6), warning (not failing) if
// the result exceeds the recommended 4 KiB.
func (r *Registry) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	parts := make([]string, len(r.order))
	for i, iface := range r.order {
		parts[i] = fmt.Sprintf("%s:%d:%d", iface.Name, iface.Major, iface.Minor)
	}
	s := strings.Join(parts, ";")

	if len(s)+1 > maxRecommendedLen && r.Log != nil {
		r.Log.Warn("introspection string exceeds recommended size", "bytes", len(s)+1)
	}
	return s
}

// StringSize returns the length of String() including the terminator
// (minimum 1 for the empty list), matching get_string_size.
func (r *Registry) StringSize() int {
	return len(r.String()) + 1
}
