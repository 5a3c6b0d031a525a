// Package value implements the tagged-union value representation
// exchanged with the broker: one of 14 mapping-type variants, each
// either a scalar or the corresponding array form.
//
// Values constructed via the From* functions borrow the caller's
// buffers; the caller keeps ownership and must not mutate them while
// the value is in flight. Array values produced by the bsondoc decoder
// own their buffers and must be released via Release once the caller
// is done with them (see Owned); a decoded binaryblob scalar borrows
// from the input buffer instead.
package value

import (
	"bytes"
	"math"

	"github.com/rustyeddy/beacon/beaconerr"
)

// Type identifies one of the fourteen mapping types a Value can hold.
type Type int

const (
	Integer Type = iota
	LongInteger
	Double
	String
	BinaryBlob
	Boolean
	DateTime

	IntegerArray
	LongIntegerArray
	DoubleArray
	StringArray
	BinaryBlobArray
	BooleanArray
	DateTimeArray
)

// IsArray reports whether t is one of the seven array variants.
func (t Type) IsArray() bool {
	return t >= IntegerArray
}

// Scalar returns the scalar counterpart of an array type (identity for
// scalar types already). This realizes spec §4.2's
// mapping_array_to_scalar.
func (t Type) Scalar() Type {
	if t.IsArray() {
		return t - IntegerArray
	}
	return t
}

func (t Type) String() string {
	switch t {
	case Integer:
		return "integer"
	case LongInteger:
		return "longinteger"
	case Double:
		return "double"
	case String:
		return "string"
	case BinaryBlob:
		return "binaryblob"
	case Boolean:
		return "boolean"
	case DateTime:
		return "datetime"
	case IntegerArray:
		return "integerarray"
	case LongIntegerArray:
		return "longintegerarray"
	case DoubleArray:
		return "doublearray"
	case StringArray:
		return "stringarray"
	case BinaryBlobArray:
		return "binaryblobarray"
	case BooleanArray:
		return "booleanarray"
	case DateTimeArray:
		return "datetimearray"
	default:
		return "unknown"
	}
}

// Value is the tagged union. Only the field matching Tag is
// meaningful; the zero value of the others is ignored.
type Value struct {
	tag Type

	i  int32
	li int64
	d  float64
	s  string
	b  []byte
	bo bool
	dt int64 // ms since epoch

	iArr  []int32
	liArr []int64
	dArr  []float64
	sArr  []string
	bArr  [][]byte
	boArr []bool
	dtArr []int64

	owned bool // true if buffers were allocated by the decoder
}

// Tag returns the value's mapping type.
func (v Value) Tag() Type { return v.tag }

// Owned reports whether the value's backing buffers were allocated by
// the decoder (and should eventually be released) rather than
// borrowed from caller-owned memory.
func (v Value) Owned() bool { return v.owned }

// WithOwned marks a value as decoder-owned. Used by bsondoc when it
// allocates a fresh buffer for a decoded array or blob instead of
// borrowing from the input.
func (v Value) WithOwned(owned bool) Value {
	v.owned = owned
	return v
}

// Release drops references held by an owned value. It is a no-op for
// borrowed values; callers may call it unconditionally.
func (v *Value) Release() {
	if !v.owned {
		return
	}
	v.s = ""
	v.b = nil
	v.iArr, v.liArr, v.dArr, v.sArr, v.bArr, v.boArr, v.dtArr = nil, nil, nil, nil, nil, nil, nil
}

// --- constructors -----------------------------------------------------

func FromInteger(i int32) Value { return Value{tag: Integer, i: i} }

func FromLongInteger(i int64) Value { return Value{tag: LongInteger, li: i} }

func FromDouble(d float64) Value { return Value{tag: Double, d: d} }

func FromString(s string) Value { return Value{tag: String, s: s} }

func FromBinaryBlob(b []byte) Value { return Value{tag: BinaryBlob, b: b} }

func FromBoolean(b bool) Value { return Value{tag: Boolean, bo: b} }

// FromDateTime takes milliseconds since the Unix epoch.
func FromDateTime(ms int64) Value { return Value{tag: DateTime, dt: ms} }

func FromIntegerArray(a []int32) Value { return Value{tag: IntegerArray, iArr: a} }

func FromLongIntegerArray(a []int64) Value { return Value{tag: LongIntegerArray, liArr: a} }

func FromDoubleArray(a []float64) Value { return Value{tag: DoubleArray, dArr: a} }

func FromStringArray(a []string) Value { return Value{tag: StringArray, sArr: a} }

// FromBinaryBlobArray takes parallel blobs; each element's size is
// implicit in len(blobs[i]), matching the BSON array-of-binary
// encoding (the "parallel sizes array" in spec §3 is an on-wire detail,
// not a separate field here).
func FromBinaryBlobArray(blobs [][]byte) Value { return Value{tag: BinaryBlobArray, bArr: blobs} }

func FromBooleanArray(a []bool) Value { return Value{tag: BooleanArray, boArr: a} }

func FromDateTimeArray(a []int64) Value { return Value{tag: DateTimeArray, dtArr: a} }

// --- accessors ----------------------------------------------------------

func wrongTag(want, got Type) error {
	return beaconerr.Newf(beaconerr.InvalidParam, "wrong tag: want %s got %s", want, got)
}

func (v Value) Integer() (int32, error) {
	if v.tag != Integer {
		return 0, wrongTag(Integer, v.tag)
	}
	return v.i, nil
}

func (v Value) LongInteger() (int64, error) {
	if v.tag != LongInteger {
		return 0, wrongTag(LongInteger, v.tag)
	}
	return v.li, nil
}

func (v Value) Double() (float64, error) {
	if v.tag != Double {
		return 0, wrongTag(Double, v.tag)
	}
	return v.d, nil
}

func (v Value) Str() (string, error) {
	if v.tag != String {
		return "", wrongTag(String, v.tag)
	}
	return v.s, nil
}

func (v Value) BinaryBlob() ([]byte, error) {
	if v.tag != BinaryBlob {
		return nil, wrongTag(BinaryBlob, v.tag)
	}
	return v.b, nil
}

func (v Value) Boolean() (bool, error) {
	if v.tag != Boolean {
		return false, wrongTag(Boolean, v.tag)
	}
	return v.bo, nil
}

func (v Value) DateTime() (int64, error) {
	if v.tag != DateTime {
		return 0, wrongTag(DateTime, v.tag)
	}
	return v.dt, nil
}

func (v Value) IntegerArray() ([]int32, error) {
	if v.tag != IntegerArray {
		return nil, wrongTag(IntegerArray, v.tag)
	}
	return v.iArr, nil
}

func (v Value) LongIntegerArray() ([]int64, error) {
	if v.tag != LongIntegerArray {
		return nil, wrongTag(LongIntegerArray, v.tag)
	}
	return v.liArr, nil
}

func (v Value) DoubleArray() ([]float64, error) {
	if v.tag != DoubleArray {
		return nil, wrongTag(DoubleArray, v.tag)
	}
	return v.dArr, nil
}

func (v Value) StringArray() ([]string, error) {
	if v.tag != StringArray {
		return nil, wrongTag(StringArray, v.tag)
	}
	return v.sArr, nil
}

func (v Value) BinaryBlobArray() ([][]byte, error) {
	if v.tag != BinaryBlobArray {
		return nil, wrongTag(BinaryBlobArray, v.tag)
	}
	return v.bArr, nil
}

func (v Value) BooleanArray() ([]bool, error) {
	if v.tag != BooleanArray {
		return nil, wrongTag(BooleanArray, v.tag)
	}
	return v.boArr, nil
}

func (v Value) DateTimeArray() ([]int64, error) {
	if v.tag != DateTimeArray {
		return nil, wrongTag(DateTimeArray, v.tag)
	}
	return v.dtArr, nil
}

// IsFinite reports whether a Double or DoubleArray value contains only
// finite numbers (no NaN, no +/-Inf). Non-double tags are always
// finite as far as this check is concerned.
func (v Value) IsFinite() bool {
	switch v.tag {
	case Double:
		return !math.IsNaN(v.d) && !math.IsInf(v.d, 0)
	case DoubleArray:
		for _, d := range v.dArr {
			if math.IsNaN(d) || math.IsInf(d, 0) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Equal implements the structural equality rules from spec §4.1:
// arrays compare elementwise, binaryblob arrays compare sizes then
// bytes, strings compare as byte sequences, and NaN is never equal to
// anything (including itself).
func (v Value) Equal(o Value) bool {
	if v.tag != o.tag {
		return false
	}
	switch v.tag {
	case Integer:
		return v.i == o.i
	case LongInteger:
		return v.li == o.li
	case Double:
		if math.IsNaN(v.d) || math.IsNaN(o.d) {
			return false
		}
		return v.d == o.d
	case String:
		return v.s == o.s
	case BinaryBlob:
		return bytes.Equal(v.b, o.b)
	case Boolean:
		return v.bo == o.bo
	case DateTime:
		return v.dt == o.dt
	case IntegerArray:
		return equalSlice(v.iArr, o.iArr)
	case LongIntegerArray:
		return equalSlice(v.liArr, o.liArr)
	case DoubleArray:
		if len(v.dArr) != len(o.dArr) {
			return false
		}
		for i := range v.dArr {
			if math.IsNaN(v.dArr[i]) || math.IsNaN(o.dArr[i]) || v.dArr[i] != o.dArr[i] {
				return false
			}
		}
		return true
	case StringArray:
		return equalSlice(v.sArr, o.sArr)
	case BinaryBlobArray:
		if len(v.bArr) != len(o.bArr) {
			return false
		}
		for i := range v.bArr {
			if len(v.bArr[i]) != len(o.bArr[i]) {
				return false
			}
		}
		for i := range v.bArr {
			if !bytes.Equal(v.bArr[i], o.bArr[i]) {
				return false
			}
		}
		return true
	case BooleanArray:
		return equalSlice(v.boArr, o.boArr)
	case DateTimeArray:
		return equalSlice(v.dtArr, o.dtArr)
	default:
		return false
	}
}

func equalSlice[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
