// Package bsondoc implements the binary document codec described in
// spec §4.3: a strict subset of BSON used as the on-wire format for
// every publish/receive. It intentionally supports only the nine
// recognized element types and rejects anything else, including a
// type mismatch against the mapping type the caller expects.
package bsondoc

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/rustyeddy/beacon/beaconerr"
	"github.com/rustyeddy/beacon/value"
)

// BSON element type tags recognized by this codec (spec §4.3 table).
const (
	typeDouble   byte = 0x01
	typeString   byte = 0x02
	typeDocument byte = 0x03
	typeArray    byte = 0x04
	typeBinary   byte = 0x05
	typeBoolean  byte = 0x08
	typeDateTime byte = 0x09
	typeInt32    byte = 0x10
	typeInt64    byte = 0x12

	binarySubtypeGeneric byte = 0x00
)

func bsonTypeForScalar(t value.Type) (byte, bool) {
	switch t {
	case value.Integer:
		return typeInt32, true
	case value.LongInteger:
		return typeInt64, true
	case value.Double:
		return typeDouble, true
	case value.String:
		return typeString, true
	case value.BinaryBlob:
		return typeBinary, true
	case value.Boolean:
		return typeBoolean, true
	case value.DateTime:
		return typeDateTime, true
	default:
		return 0, false
	}
}

// ---------------------------------------------------------------------
// Encoder
// ---------------------------------------------------------------------

// DocBuilder streams elements into a document. Call Finish to obtain
// the complete, size-prefixed, NUL-terminated byte sequence.
type DocBuilder struct {
	body []byte
	err  error
}

// NewDocBuilder returns an empty document builder.
func NewDocBuilder() *DocBuilder { return &DocBuilder{} }

func (d *DocBuilder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *DocBuilder) appendCString(s string) {
	d.body = append(d.body, s...)
	d.body = append(d.body, 0x00)
}

func (d *DocBuilder) header(typ byte, name string) {
	d.body = append(d.body, typ)
	d.appendCString(name)
}

func (d *DocBuilder) Double(name string, f float64) *DocBuilder {
	d.header(typeDouble, name)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
	d.body = append(d.body, buf[:]...)
	return d
}

func (d *DocBuilder) Str(name, s string) *DocBuilder {
	d.header(typeString, name)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)+1))
	d.body = append(d.body, lenBuf[:]...)
	d.body = append(d.body, s...)
	d.body = append(d.body, 0x00)
	return d
}

func (d *DocBuilder) Binary(name string, b []byte) *DocBuilder {
	d.header(typeBinary, name)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	d.body = append(d.body, lenBuf[:]...)
	d.body = append(d.body, binarySubtypeGeneric)
	d.body = append(d.body, b...)
	return d
}

func (d *DocBuilder) Bool(name string, b bool) *DocBuilder {
	d.header(typeBoolean, name)
	if b {
		d.body = append(d.body, 0x01)
	} else {
		d.body = append(d.body, 0x00)
	}
	return d
}

func (d *DocBuilder) DateTime(name string, ms int64) *DocBuilder {
	d.header(typeDateTime, name)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(ms))
	d.body = append(d.body, buf[:]...)
	return d
}

func (d *DocBuilder) Int32(name string, i int32) *DocBuilder {
	d.header(typeInt32, name)
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(i))
	d.body = append(d.body, buf[:]...)
	return d
}

func (d *DocBuilder) Int64(name string, i int64) *DocBuilder {
	d.header(typeInt64, name)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(i))
	d.body = append(d.body, buf[:]...)
	return d
}

// Document embeds a nested document element (BSON type 0x03).
func (d *DocBuilder) Document(name string, inner []byte) *DocBuilder {
	d.header(typeDocument, name)
	d.body = append(d.body, inner...)
	return d
}

// Array embeds a nested array element (BSON type 0x04): identical
// wire shape to Document, distinguished only by the type tag.
func (d *DocBuilder) Array(name string, inner []byte) *DocBuilder {
	d.header(typeArray, name)
	d.body = append(d.body, inner...)
	return d
}

// Finish returns the complete document: <i32 size><elements><0x00>.
func (d *DocBuilder) Finish() ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	size := 4 + len(d.body) + 1
	out := make([]byte, 0, size)
	var sizeBuf [4]byte
	binary.LittleEndian.PutUint32(sizeBuf[:], uint32(size))
	out = append(out, sizeBuf[:]...)
	out = append(out, d.body...)
	out = append(out, 0x00)
	return out, nil
}

// ---------------------------------------------------------------------
// Value -> document encoding
// ---------------------------------------------------------------------

func encodeScalarInto(d *DocBuilder, name string, v value.Value) error {
	switch v.Tag() {
	case value.Integer:
		i, _ := v.Integer()
		d.Int32(name, i)
	case value.LongInteger:
		i, _ := v.LongInteger()
		d.Int64(name, i)
	case value.Double:
		if !v.IsFinite() {
			return beaconerr.New(beaconerr.MappingValueIncompatible, "double value is not finite")
		}
		f, _ := v.Double()
		d.Double(name, f)
	case value.String:
		s, _ := v.Str()
		d.Str(name, s)
	case value.BinaryBlob:
		b, _ := v.BinaryBlob()
		d.Binary(name, b)
	case value.Boolean:
		b, _ := v.Boolean()
		d.Bool(name, b)
	case value.DateTime:
		dt, _ := v.DateTime()
		d.DateTime(name, dt)
	default:
		return beaconerr.Newf(beaconerr.BsonSerializerError, "not a scalar tag: %s", v.Tag())
	}
	return nil
}

func encodeArrayInto(d *DocBuilder, name string, v value.Value) error {
	inner := NewDocBuilder()

	switch v.Tag() {
	case value.IntegerArray:
		a, _ := v.IntegerArray()
		for i, x := range a {
			inner.Int32(strconv.Itoa(i), x)
		}
	case value.LongIntegerArray:
		a, _ := v.LongIntegerArray()
		for i, x := range a {
			inner.Int64(strconv.Itoa(i), x)
		}
	case value.DoubleArray:
		a, _ := v.DoubleArray()
		if !v.IsFinite() {
			return beaconerr.New(beaconerr.MappingValueIncompatible, "double array contains non-finite values")
		}
		for i, x := range a {
			inner.Double(strconv.Itoa(i), x)
		}
	case value.StringArray:
		a, _ := v.StringArray()
		for i, x := range a {
			inner.Str(strconv.Itoa(i), x)
		}
	case value.BinaryBlobArray:
		a, _ := v.BinaryBlobArray()
		for i, x := range a {
			inner.Binary(strconv.Itoa(i), x)
		}
	case value.BooleanArray:
		a, _ := v.BooleanArray()
		for i, x := range a {
			inner.Bool(strconv.Itoa(i), x)
		}
	case value.DateTimeArray:
		a, _ := v.DateTimeArray()
		for i, x := range a {
			inner.DateTime(strconv.Itoa(i), x)
		}
	default:
		return beaconerr.Newf(beaconerr.BsonSerializerError, "not an array tag: %s", v.Tag())
	}

	body, err := inner.Finish()
	if err != nil {
		return err
	}
	d.Array(name, body)
	return nil
}

func encodeValueInto(d *DocBuilder, name string, v value.Value) error {
	if v.Tag().IsArray() {
		return encodeArrayInto(d, name, v)
	}
	return encodeScalarInto(d, name, v)
}

// ObjectEntry is a (path, value) pair inside an object aggregate,
// order-preserving (spec §3: object = ordered sequence of entries).
type ObjectEntry struct {
	Path  string
	Value value.Value
}

// EncodeIndividual builds the envelope document for a single value,
// with an optional explicit timestamp (spec §4.3 envelope convention).
func EncodeIndividual(v value.Value, timestampMS *int64) ([]byte, error) {
	d := NewDocBuilder()
	if err := encodeValueInto(d, "v", v); err != nil {
		return nil, err
	}
	if timestampMS != nil {
		d.DateTime("t", *timestampMS)
	}
	return d.Finish()
}

// EncodeObject builds the envelope document for an object aggregate:
// key "v" holds a nested document whose keys are the entry paths.
func EncodeObject(entries []ObjectEntry, timestampMS *int64) ([]byte, error) {
	inner := NewDocBuilder()
	for _, e := range entries {
		if err := encodeValueInto(inner, e.Path, e.Value); err != nil {
			return nil, err
		}
	}
	innerBytes, err := inner.Finish()
	if err != nil {
		return nil, err
	}

	d := NewDocBuilder()
	d.Document("v", innerBytes)
	if timestampMS != nil {
		d.DateTime("t", *timestampMS)
	}
	return d.Finish()
}
