// Package schema implements the interface/mapping data model: the
// schema elements a device declares and that the broker validates
// every publish against (spec §3, §4.2).
package schema

import (
	"strings"

	"github.com/rustyeddy/beacon/beaconerr"
	"github.com/rustyeddy/beacon/value"
)

// Ownership identifies who originates data on an interface.
type Ownership int

const (
	Device Ownership = iota
	Server
)

// InterfaceType distinguishes streaming data from stateful properties.
type InterfaceType int

const (
	Datastream InterfaceType = iota
	Properties
)

// Aggregation controls whether a mapping is published standalone or as
// part of an object carrying several endpoints at once.
type Aggregation int

const (
	Individual Aggregation = iota
	Object
)

// Reliability maps 1:1 to MQTT QoS levels (spec §4.2).
type Reliability int

const (
	Unreliable Reliability = iota // QoS 0
	Guaranteed                    // QoS 1
	Unique                        // QoS 2
)

// QoS returns the MQTT quality-of-service level for r.
func (r Reliability) QoS() byte {
	switch r {
	case Guaranteed:
		return 1
	case Unique:
		return 2
	default:
		return 0
	}
}

// segment is one piece of a compiled endpoint template: either a fixed
// literal or a named parameter matching `[a-zA-Z_][a-zA-Z0-9_]*`.
type segment struct {
	literal string
	param   bool
}

// Mapping is a single typed endpoint inside an Interface.
type Mapping struct {
	Endpoint           string
	Type               value.Type
	Reliability        Reliability
	ExplicitTimestamp  bool
	AllowUnset         bool

	segments []segment
}

// NewMapping compiles Endpoint's template into a matcher. Endpoint must
// start with "/"; parameters are written as "%{name}" and must occupy
// a whole path segment (spec §3 invariant).
func NewMapping(endpoint string, t value.Type, rel Reliability, explicitTS, allowUnset bool) (Mapping, error) {
	if !strings.HasPrefix(endpoint, "/") {
		return Mapping{}, beaconerr.Newf(beaconerr.InvalidParam, "endpoint %q must start with /", endpoint)
	}
	parts := strings.Split(strings.TrimPrefix(endpoint, "/"), "/")
	segs := make([]segment, 0, len(parts))
	for _, p := range parts {
		if strings.HasPrefix(p, "%{") && strings.HasSuffix(p, "}") {
			name := p[2 : len(p)-1]
			if name == "" {
				return Mapping{}, beaconerr.Newf(beaconerr.InvalidParam, "empty parameter name in %q", endpoint)
			}
			segs = append(segs, segment{param: true})
			continue
		}
		if strings.Contains(p, "%{") || strings.Contains(p, "}") {
			return Mapping{}, beaconerr.Newf(beaconerr.InvalidParam, "parameter must occupy whole segment in %q", endpoint)
		}
		segs = append(segs, segment{literal: p})
	}
	return Mapping{
		Endpoint:          endpoint,
		Type:              t,
		Reliability:       rel,
		ExplicitTimestamp: explicitTS,
		AllowUnset:        allowUnset,
		segments:          segs,
	}, nil
}

func isParamChar(b byte, first bool) bool {
	if b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') {
		return true
	}
	if !first && b >= '0' && b <= '9' {
		return true
	}
	return false
}

func validParamValue(s string) bool {
	if len(s) == 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isParamChar(s[i], i == 0) {
			return false
		}
	}
	return true
}

// CheckPath reports whether path matches m's compiled endpoint
// template, anchored at both ends as "^...$" would be for the POSIX
// regex the source uses (spec §4.2, §9).
func (m Mapping) CheckPath(path string) bool {
	if !strings.HasPrefix(path, "/") {
		return false
	}
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) != len(m.segments) {
		return false
	}
	for i, seg := range m.segments {
		if seg.param {
			if !validParamValue(parts[i]) {
				return false
			}
			continue
		}
		if seg.literal != parts[i] {
			return false
		}
	}
	return true
}

// Interface is a versioned, named schema bundling a set of mappings.
type Interface struct {
	Name        string
	Major       uint32
	Minor       uint32
	Ownership   Ownership
	Type        InterfaceType
	Aggregation Aggregation
	Mappings    []Mapping
}

// Validate checks the invariants from spec §3: non-(0,0) version
// (version 0.0 is always rejected), name length, properties-implies-
// individual, and shared reliability/timestamp flags for object
// aggregation.
func (i Interface) Validate() error {
	if len(i.Name)+1 > 128 {
		return beaconerr.New(beaconerr.InvalidParam, "interface name exceeds 128 bytes including terminator")
	}
	if i.Major == 0 && i.Minor == 0 {
		return beaconerr.New(beaconerr.InterfaceInvalidVersion, "major and minor cannot both be 0")
	}
	if i.Type == Properties && i.Aggregation != Individual {
		return beaconerr.New(beaconerr.InvalidParam, "properties interfaces must be individual aggregation")
	}
	if i.Aggregation == Object && len(i.Mappings) > 0 {
		rel := i.Mappings[0].Reliability
		ts := i.Mappings[0].ExplicitTimestamp
		for _, m := range i.Mappings[1:] {
			if m.Reliability != rel || m.ExplicitTimestamp != ts {
				return beaconerr.New(beaconerr.InvalidParam, "object aggregation mappings must share reliability and explicit_timestamp")
			}
		}
	}
	return nil
}

// GetMappingFromPath returns the unique mapping whose endpoint matches
// path, or MappingNotInInterface if zero or more than one match.
func (i Interface) GetMappingFromPath(path string) (Mapping, error) {
	var found *Mapping
	for idx := range i.Mappings {
		if i.Mappings[idx].CheckPath(path) {
			if found != nil {
				return Mapping{}, beaconerr.Newf(beaconerr.MappingNotInInterface, "ambiguous path %q matches multiple mappings", path)
			}
			found = &i.Mappings[idx]
		}
	}
	if found == nil {
		return Mapping{}, beaconerr.Newf(beaconerr.MappingNotInInterface, "no mapping matches path %q", path)
	}
	return *found, nil
}

// GetMappingFromPaths concatenates prefix and suffix with "/" and
// dispatches to GetMappingFromPath, per spec §4.2's two-part variant.
func (i Interface) GetMappingFromPaths(prefix, suffix string) (Mapping, error) {
	path := strings.TrimSuffix(prefix, "/") + "/" + strings.TrimPrefix(suffix, "/")
	return i.GetMappingFromPath(path)
}
