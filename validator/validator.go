// Package validator implements the four publish-time checks from spec
// §4.4: every outbound value is checked against the schema before it
// ever reaches the codec or the MQTT session, so decoded values on the
// receive side can be trusted by user callbacks without re-checking.
package validator

import (
	"github.com/rustyeddy/beacon/beaconerr"
	"github.com/rustyeddy/beacon/schema"
	"github.com/rustyeddy/beacon/value"
)

func checkValueType(m schema.Mapping, v value.Value) error {
	if v.Tag() != m.Type {
		return beaconerr.Newf(beaconerr.MappingValueIncompatible, "value tag %s does not match mapping type %s", v.Tag(), m.Type)
	}
	if !v.IsFinite() {
		return beaconerr.New(beaconerr.MappingValueIncompatible, "value contains non-finite double(s)")
	}
	return nil
}

func checkTimestamp(m schema.Mapping, hasTimestamp bool) error {
	if m.ExplicitTimestamp && !hasTimestamp {
		return beaconerr.New(beaconerr.MappingExplicitTimestampRequired, "mapping requires an explicit timestamp")
	}
	if !m.ExplicitTimestamp && hasTimestamp {
		return beaconerr.New(beaconerr.MappingExplicitTimestampNotSupported, "mapping does not support an explicit timestamp")
	}
	return nil
}

// IndividualDatastream validates a single value destined for path
// against iface's resolved mapping.
func IndividualDatastream(iface schema.Interface, path string, v value.Value, hasTimestamp bool) (schema.Mapping, error) {
	m, err := iface.GetMappingFromPath(path)
	if err != nil {
		return schema.Mapping{}, err
	}
	if err := checkValueType(m, v); err != nil {
		return schema.Mapping{}, err
	}
	if err := checkTimestamp(m, hasTimestamp); err != nil {
		return schema.Mapping{}, err
	}
	return m, nil
}

// ObjectEntry pairs an entry endpoint (relative to path) with its
// value, mirroring bsondoc.ObjectEntry without importing the codec.
type ObjectEntry struct {
	Endpoint string
	Value    value.Value
}

// AggregatedDatastream validates every entry of an object aggregate
// published under path, resolving each entry's mapping via the
// two-part path variant (spec §4.2).
func AggregatedDatastream(iface schema.Interface, path string, entries []ObjectEntry, hasTimestamp bool) ([]schema.Mapping, error) {
	mappings := make([]schema.Mapping, 0, len(entries))
	for _, e := range entries {
		m, err := iface.GetMappingFromPaths(path, e.Endpoint)
		if err != nil {
			return nil, err
		}
		if err := checkValueType(m, e.Value); err != nil {
			return nil, err
		}
		if err := checkTimestamp(m, hasTimestamp); err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, nil
}

// SetProperty validates a property write: an individual datastream
// check with no timestamp, plus the interface-type restriction.
func SetProperty(iface schema.Interface, path string, v value.Value) (schema.Mapping, error) {
	if iface.Type != schema.Properties {
		return schema.Mapping{}, beaconerr.New(beaconerr.InvalidParam, "set_property requires a properties interface")
	}
	return IndividualDatastream(iface, path, v, false)
}

// UnsetProperty validates a property unset: the resolved mapping must
// allow it.
func UnsetProperty(iface schema.Interface, path string) (schema.Mapping, error) {
	if iface.Type != schema.Properties {
		return schema.Mapping{}, beaconerr.New(beaconerr.InvalidParam, "unset_property requires a properties interface")
	}
	m, err := iface.GetMappingFromPath(path)
	if err != nil {
		return schema.Mapping{}, err
	}
	if !m.AllowUnset {
		return schema.Mapping{}, beaconerr.Newf(beaconerr.MappingUnsetNotAllowed, "mapping %q does not allow unset", m.Endpoint)
	}
	return m, nil
}
