package schema

import (
	"testing"

	"github.com/rustyeddy/beacon/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMappingCheckPathLiteralAndParam(t *testing.T) {
	m, err := NewMapping("/sensors/%{sensorId}/value", value.Double, Unreliable, false, false)
	require.NoError(t, err)

	assert.True(t, m.CheckPath("/sensors/sensor1/value"))
	assert.False(t, m.CheckPath("/sensors/sensor 1/value"))
	assert.False(t, m.CheckPath("/sensors/sensor1/value/extra"))
	assert.False(t, m.CheckPath("sensors/sensor1/value"))
}

func TestEndpointMustStartWithSlash(t *testing.T) {
	_, err := NewMapping("sensors/value", value.Double, Unreliable, false, false)
	require.Error(t, err)
}

func TestGetMappingFromPathUniqueMatch(t *testing.T) {
	m1, _ := NewMapping("/a/%{x}/temp", value.Double, Unreliable, false, false)
	m2, _ := NewMapping("/a/%{x}/hum", value.Double, Unreliable, false, false)
	iface := Interface{Name: "com.example.Sensor", Major: 1, Mappings: []Mapping{m1, m2}}

	got, err := iface.GetMappingFromPath("/a/s1/temp")
	require.NoError(t, err)
	assert.Equal(t, "/a/%{x}/temp", got.Endpoint)

	_, err = iface.GetMappingFromPath("/a/s1/pressure")
	require.Error(t, err)
}

func TestGetMappingFromPathsConcatenates(t *testing.T) {
	m, _ := NewMapping("/sensor1/value", value.Double, Unreliable, false, false)
	iface := Interface{Name: "com.example.Obj", Major: 1, Aggregation: Object, Mappings: []Mapping{m}}

	got, err := iface.GetMappingFromPaths("/sensor1", "value")
	require.NoError(t, err)
	assert.Equal(t, "/sensor1/value", got.Endpoint)
}

func TestInterfaceValidateVersionZeroZero(t *testing.T) {
	iface := Interface{Name: "x"}
	err := iface.Validate()
	require.Error(t, err)
}

func TestInterfaceValidatePropertiesMustBeIndividual(t *testing.T) {
	iface := Interface{Name: "x", Major: 1, Type: Properties, Aggregation: Object}
	err := iface.Validate()
	require.Error(t, err)
}

func TestInterfaceValidateObjectMappingsShareFlags(t *testing.T) {
	m1, _ := NewMapping("/a", value.Double, Unreliable, false, false)
	m2, _ := NewMapping("/b", value.Double, Guaranteed, false, false)
	iface := Interface{Name: "x", Major: 1, Aggregation: Object, Mappings: []Mapping{m1, m2}}
	require.Error(t, iface.Validate())
}

func TestReliabilityQoS(t *testing.T) {
	assert.Equal(t, byte(0), Unreliable.QoS())
	assert.Equal(t, byte(1), Guaranteed.QoS())
	assert.Equal(t, byte(2), Unique.QoS())
}
