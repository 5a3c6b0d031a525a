package validator

import (
	"math"
	"testing"

	"github.com/rustyeddy/beacon/beaconerr"
	"github.com/rustyeddy/beacon/schema"
	"github.com/rustyeddy/beacon/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMapping(t *testing.T, endpoint string, typ value.Type, rel schema.Reliability, explicitTS, allowUnset bool) schema.Mapping {
	t.Helper()
	m, err := schema.NewMapping(endpoint, typ, rel, explicitTS, allowUnset)
	require.NoError(t, err)
	return m
}

func TestIndividualDatastreamHappyPath(t *testing.T) {
	m := mustMapping(t, "/temp", value.Double, schema.Unreliable, false, false)
	iface := schema.Interface{Name: "x", Major: 1, Mappings: []schema.Mapping{m}}

	_, err := IndividualDatastream(iface, "/temp", value.FromDouble(21.0), false)
	require.NoError(t, err)
}

func TestIndividualDatastreamTypeMismatch(t *testing.T) {
	m := mustMapping(t, "/temp", value.Double, schema.Unreliable, false, false)
	iface := schema.Interface{Name: "x", Major: 1, Mappings: []schema.Mapping{m}}

	_, err := IndividualDatastream(iface, "/temp", value.FromInteger(5), false)
	require.Error(t, err)
	var berr *beaconerr.Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, beaconerr.MappingValueIncompatible, berr.Kind)
}

func TestIndividualDatastreamNonFiniteDouble(t *testing.T) {
	m := mustMapping(t, "/temp", value.Double, schema.Unreliable, false, false)
	iface := schema.Interface{Name: "x", Major: 1, Mappings: []schema.Mapping{m}}

	_, err := IndividualDatastream(iface, "/temp", value.FromDouble(math.NaN()), false)
	require.Error(t, err)
	var berr *beaconerr.Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, beaconerr.MappingValueIncompatible, berr.Kind)
}

func TestIndividualDatastreamTimestampRequired(t *testing.T) {
	m := mustMapping(t, "/temp", value.Double, schema.Unreliable, true, false)
	iface := schema.Interface{Name: "x", Major: 1, Mappings: []schema.Mapping{m}}

	_, err := IndividualDatastream(iface, "/temp", value.FromDouble(1), false)
	require.Error(t, err)
	var berr *beaconerr.Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, beaconerr.MappingExplicitTimestampRequired, berr.Kind)
}

func TestIndividualDatastreamTimestampNotSupported(t *testing.T) {
	m := mustMapping(t, "/temp", value.Double, schema.Unreliable, false, false)
	iface := schema.Interface{Name: "x", Major: 1, Mappings: []schema.Mapping{m}}

	_, err := IndividualDatastream(iface, "/temp", value.FromDouble(1), true)
	require.Error(t, err)
	var berr *beaconerr.Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, beaconerr.MappingExplicitTimestampNotSupported, berr.Kind)
}

func TestAggregatedDatastreamEachEntryValidated(t *testing.T) {
	m1 := mustMapping(t, "/sensor1/temp", value.Double, schema.Unreliable, false, false)
	m2 := mustMapping(t, "/sensor1/hum", value.Double, schema.Unreliable, false, false)
	iface := schema.Interface{Name: "x", Major: 1, Aggregation: schema.Object, Mappings: []schema.Mapping{m1, m2}}

	entries := []ObjectEntry{
		{Endpoint: "temp", Value: value.FromDouble(21.0)},
		{Endpoint: "hum", Value: value.FromDouble(55.0)},
	}
	_, err := AggregatedDatastream(iface, "/sensor1", entries, false)
	require.NoError(t, err)

	bad := []ObjectEntry{
		{Endpoint: "temp", Value: value.FromInteger(1)},
	}
	_, err = AggregatedDatastream(iface, "/sensor1", bad, false)
	require.Error(t, err)
}

func TestSetPropertyRequiresPropertiesInterface(t *testing.T) {
	m := mustMapping(t, "/led", value.Boolean, schema.Unreliable, false, false)
	iface := schema.Interface{Name: "x", Major: 1, Type: schema.Datastream, Mappings: []schema.Mapping{m}}

	_, err := SetProperty(iface, "/led", value.FromBoolean(true))
	require.Error(t, err)
}

func TestUnsetPropertyRequiresAllowUnset(t *testing.T) {
	m := mustMapping(t, "/led", value.Boolean, schema.Unreliable, false, false)
	iface := schema.Interface{Name: "x", Major: 1, Type: schema.Properties, Mappings: []schema.Mapping{m}}

	_, err := UnsetProperty(iface, "/led")
	require.Error(t, err)
	var berr *beaconerr.Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, beaconerr.MappingUnsetNotAllowed, berr.Kind)
}

func TestUnsetPropertyAllowed(t *testing.T) {
	m := mustMapping(t, "/led", value.Boolean, schema.Unreliable, false, true)
	iface := schema.Interface{Name: "x", Major: 1, Type: schema.Properties, Mappings: []schema.Mapping{m}}

	_, err := UnsetProperty(iface, "/led")
	require.NoError(t, err)
}
