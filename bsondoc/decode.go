package bsondoc

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/rustyeddy/beacon/beaconerr"
	"github.com/rustyeddy/beacon/value"
)

// Element is one decoded (type, name, payload) triple inside a
// Document. Payload access is via the typed accessor matching Type.
type Element struct {
	Name string
	Type byte
	data []byte
}

// Document is a parsed (but not deeply decoded) BSON-subset document:
// init_doc / first_element / next_element / element_lookup / count
// from spec §4.3, realized as an eagerly-scanned element index (the
// decoder still never allocates for scalar payloads — the slices
// below all alias the input buffer).
type Document struct {
	raw      []byte
	elements []Element
}

// ParseDocument validates the coarse invariants spec §4.3 requires
// (declared size fits the buffer, final byte is 0x00, first element's
// type byte is recognized) and indexes the elements for lookup.
func ParseDocument(raw []byte) (*Document, error) {
	if len(raw) < 5 {
		return nil, beaconerr.New(beaconerr.BsonDeserializerError, "document too short")
	}
	size := int(binary.LittleEndian.Uint32(raw[0:4]))
	if size < 5 || size > len(raw) {
		return nil, beaconerr.New(beaconerr.BsonDeserializerError, "declared size exceeds buffer")
	}
	if raw[size-1] != 0x00 {
		return nil, beaconerr.New(beaconerr.BsonDeserializerError, "document missing terminator")
	}

	body := raw[4 : size-1]
	if len(body) > 0 && !recognizedType(body[0]) {
		return nil, beaconerr.New(beaconerr.BsonDeserializerError, "unrecognized first element type")
	}

	doc := &Document{raw: raw[:size]}
	pos := 0
	for pos < len(body) {
		typ := body[pos]
		if !recognizedType(typ) {
			return nil, beaconerr.Newf(beaconerr.BsonDeserializerError, "unrecognized element type 0x%02x", typ)
		}
		pos++

		nameStart := pos
		nameEnd := nameStart
		for nameEnd < len(body) && body[nameEnd] != 0x00 {
			nameEnd++
		}
		if nameEnd >= len(body) {
			return nil, beaconerr.New(beaconerr.BsonDeserializerError, "unterminated element name")
		}
		name := string(body[nameStart:nameEnd])
		pos = nameEnd + 1

		payloadLen, err := payloadLength(typ, body[pos:])
		if err != nil {
			return nil, err
		}
		if pos+payloadLen > len(body) {
			return nil, beaconerr.New(beaconerr.BsonDeserializerError, "element payload overruns document")
		}
		doc.elements = append(doc.elements, Element{Name: name, Type: typ, data: body[pos : pos+payloadLen]})
		pos += payloadLen
	}
	return doc, nil
}

func recognizedType(t byte) bool {
	switch t {
	case typeDouble, typeString, typeDocument, typeArray, typeBinary, typeBoolean, typeDateTime, typeInt32, typeInt64:
		return true
	default:
		return false
	}
}

func payloadLength(typ byte, rest []byte) (int, error) {
	switch typ {
	case typeDouble, typeDateTime, typeInt64:
		return 8, nil
	case typeInt32:
		return 4, nil
	case typeBoolean:
		return 1, nil
	case typeString:
		if len(rest) < 4 {
			return 0, beaconerr.New(beaconerr.BsonDeserializerError, "truncated string length")
		}
		l := int(binary.LittleEndian.Uint32(rest[0:4]))
		if l < 0 {
			return 0, beaconerr.New(beaconerr.BsonDeserializerError, "negative string length")
		}
		return 4 + l, nil
	case typeBinary:
		if len(rest) < 5 {
			return 0, beaconerr.New(beaconerr.BsonDeserializerError, "truncated binary header")
		}
		l := int(binary.LittleEndian.Uint32(rest[0:4]))
		if l < 0 {
			return 0, beaconerr.New(beaconerr.BsonDeserializerError, "negative binary length")
		}
		return 4 + 1 + l, nil
	case typeDocument, typeArray:
		if len(rest) < 4 {
			return 0, beaconerr.New(beaconerr.BsonDeserializerError, "truncated nested document size")
		}
		size := int(binary.LittleEndian.Uint32(rest[0:4]))
		if size < 5 || size > len(rest) {
			return 0, beaconerr.New(beaconerr.BsonDeserializerError, "nested document size out of range")
		}
		return size, nil
	default:
		return 0, beaconerr.Newf(beaconerr.BsonDeserializerError, "unrecognized type 0x%02x", typ)
	}
}

// Count returns the number of elements at this document's top level.
func (d *Document) Count() int { return len(d.elements) }

// ElementAt returns the i-th element in document order, or NotFound
// once i is past the end (matching next_element's contract).
func (d *Document) ElementAt(i int) (Element, error) {
	if i < 0 || i >= len(d.elements) {
		return Element{}, beaconerr.New(beaconerr.NotFound, "no element at index")
	}
	return d.elements[i], nil
}

// Lookup performs the linear-scan element_lookup(name) from spec §4.3.
func (d *Document) Lookup(name string) (Element, bool) {
	for _, e := range d.elements {
		if e.Name == name {
			return e, true
		}
	}
	return Element{}, false
}

// Elements returns the ordered element list (first_element/
// next_element flattened for range-friendly callers).
func (d *Document) Elements() []Element { return d.elements }

// --- Element typed accessors --------------------------------------------

func (e Element) Double() (float64, error) {
	if e.Type != typeDouble {
		return 0, wrongBSONType(typeDouble, e.Type)
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(e.data)), nil
}

func (e Element) Str() (string, error) {
	if e.Type != typeString {
		return "", wrongBSONType(typeString, e.Type)
	}
	// data is <i32 len><bytes><0x00>; len includes the terminator.
	l := int(binary.LittleEndian.Uint32(e.data[0:4]))
	return string(e.data[4 : 4+l-1]), nil
}

func (e Element) Binary() ([]byte, error) {
	if e.Type != typeBinary {
		return nil, wrongBSONType(typeBinary, e.Type)
	}
	l := int(binary.LittleEndian.Uint32(e.data[0:4]))
	return e.data[5 : 5+l], nil
}

func (e Element) Bool() (bool, error) {
	if e.Type != typeBoolean {
		return false, wrongBSONType(typeBoolean, e.Type)
	}
	return e.data[0] != 0, nil
}

func (e Element) DateTime() (int64, error) {
	if e.Type != typeDateTime {
		return 0, wrongBSONType(typeDateTime, e.Type)
	}
	return int64(binary.LittleEndian.Uint64(e.data)), nil
}

func (e Element) Int32() (int32, error) {
	if e.Type != typeInt32 {
		return 0, wrongBSONType(typeInt32, e.Type)
	}
	return int32(binary.LittleEndian.Uint32(e.data)), nil
}

func (e Element) Int64() (int64, error) {
	if e.Type != typeInt64 {
		return 0, wrongBSONType(typeInt64, e.Type)
	}
	return int64(binary.LittleEndian.Uint64(e.data)), nil
}

func (e Element) SubDocument() (*Document, error) {
	if e.Type != typeDocument {
		return nil, wrongBSONType(typeDocument, e.Type)
	}
	return ParseDocument(e.data)
}

func (e Element) SubArray() (*Document, error) {
	if e.Type != typeArray {
		return nil, wrongBSONType(typeArray, e.Type)
	}
	return ParseDocument(e.data)
}

func wrongBSONType(want, got byte) error {
	return beaconerr.Newf(beaconerr.BsonDeserializerTypesError, "wrong BSON type: want 0x%02x got 0x%02x", want, got)
}

// --- Value decoding -------------------------------------------------------

func decodeScalarElement(e Element, want value.Type) (value.Value, error) {
	wantBSON, ok := bsonTypeForScalar(want)
	if !ok {
		return value.Value{}, beaconerr.Newf(beaconerr.InvalidParam, "not a scalar mapping type: %s", want)
	}
	if e.Type != wantBSON {
		return value.Value{}, wrongBSONType(wantBSON, e.Type)
	}

	switch want {
	case value.Integer:
		i, err := e.Int32()
		return value.FromInteger(i), err
	case value.LongInteger:
		i, err := e.Int64()
		return value.FromLongInteger(i), err
	case value.Double:
		d, err := e.Double()
		return value.FromDouble(d), err
	case value.String:
		s, err := e.Str()
		return value.FromString(s), err
	case value.BinaryBlob:
		b, err := e.Binary()
		// Borrows from the input buffer per spec §4.3's documented
		// edge case; callers must keep raw alive for v's lifetime.
		return value.FromBinaryBlob(b), err
	case value.Boolean:
		b, err := e.Bool()
		return value.FromBoolean(b), err
	case value.DateTime:
		dt, err := e.DateTime()
		return value.FromDateTime(dt), err
	default:
		return value.Value{}, beaconerr.Newf(beaconerr.InternalError, "unhandled scalar type %s", want)
	}
}

func emptyArrayValue(want value.Type) value.Value {
	switch want {
	case value.IntegerArray:
		return value.FromIntegerArray(nil).WithOwned(true)
	case value.LongIntegerArray:
		return value.FromLongIntegerArray(nil).WithOwned(true)
	case value.DoubleArray:
		return value.FromDoubleArray(nil).WithOwned(true)
	case value.StringArray:
		return value.FromStringArray(nil).WithOwned(true)
	case value.BinaryBlobArray:
		return value.FromBinaryBlobArray(nil).WithOwned(true)
	case value.BooleanArray:
		return value.FromBooleanArray(nil).WithOwned(true)
	case value.DateTimeArray:
		return value.FromDateTimeArray(nil).WithOwned(true)
	default:
		return value.Value{}
	}
}

func decodeArrayElement(e Element, want value.Type) (value.Value, error) {
	if e.Type != typeArray {
		return value.Value{}, wrongBSONType(typeArray, e.Type)
	}
	sub, err := e.SubArray()
	if err != nil {
		return value.Value{}, err
	}
	n := sub.Count()
	if n == 0 {
		return emptyArrayValue(want), nil
	}

	scalarWant := want.Scalar()
	scalarBSON, ok := bsonTypeForScalar(scalarWant)
	if !ok {
		return value.Value{}, beaconerr.Newf(beaconerr.InvalidParam, "not an array mapping type: %s", want)
	}

	for i := 0; i < n; i++ {
		el, err := sub.ElementAt(i)
		if err != nil {
			return value.Value{}, err
		}
		if el.Name != strconv.Itoa(i) {
			return value.Value{}, beaconerr.Newf(beaconerr.BsonDeserializerError, "array element %d has unexpected key %q", i, el.Name)
		}
		if el.Type != scalarBSON {
			return value.Value{}, wrongBSONType(scalarBSON, el.Type)
		}
	}

	switch want {
	case value.IntegerArray:
		out := make([]int32, n)
		for i := range out {
			el, _ := sub.ElementAt(i)
			out[i], _ = el.Int32()
		}
		return value.FromIntegerArray(out).WithOwned(true), nil
	case value.LongIntegerArray:
		out := make([]int64, n)
		for i := range out {
			el, _ := sub.ElementAt(i)
			out[i], _ = el.Int64()
		}
		return value.FromLongIntegerArray(out).WithOwned(true), nil
	case value.DoubleArray:
		out := make([]float64, n)
		for i := range out {
			el, _ := sub.ElementAt(i)
			out[i], _ = el.Double()
		}
		return value.FromDoubleArray(out).WithOwned(true), nil
	case value.StringArray:
		out := make([]string, n)
		for i := range out {
			el, _ := sub.ElementAt(i)
			out[i], _ = el.Str()
		}
		return value.FromStringArray(out).WithOwned(true), nil
	case value.BinaryBlobArray:
		out := make([][]byte, n)
		for i := range out {
			el, _ := sub.ElementAt(i)
			b, _ := el.Binary()
			cp := make([]byte, len(b))
			copy(cp, b)
			out[i] = cp
		}
		return value.FromBinaryBlobArray(out).WithOwned(true), nil
	case value.BooleanArray:
		out := make([]bool, n)
		for i := range out {
			el, _ := sub.ElementAt(i)
			out[i], _ = el.Bool()
		}
		return value.FromBooleanArray(out).WithOwned(true), nil
	case value.DateTimeArray:
		out := make([]int64, n)
		for i := range out {
			el, _ := sub.ElementAt(i)
			out[i], _ = el.DateTime()
		}
		return value.FromDateTimeArray(out).WithOwned(true), nil
	default:
		return value.Value{}, beaconerr.Newf(beaconerr.InternalError, "unhandled array type %s", want)
	}
}

// DecodeValue decodes el as want, dispatching to the scalar or array
// path. want is the mapping type resolved from the schema and is
// mandatory: the decoder never guesses a type from the wire bytes
// alone (spec §4.3's "rejects a mismatch" contract).
func DecodeValue(e Element, want value.Type) (value.Value, error) {
	if want.IsArray() {
		return decodeArrayElement(e, want)
	}
	return decodeScalarElement(e, want)
}

// DecodeIndividual unwraps the envelope convention for an individual
// value: looks up "v" (decoding as want) and, if present, "t" as an
// explicit timestamp in ms.
func DecodeIndividual(raw []byte, want value.Type) (value.Value, *int64, error) {
	doc, err := ParseDocument(raw)
	if err != nil {
		return value.Value{}, nil, err
	}
	vEl, ok := doc.Lookup("v")
	if !ok {
		return value.Value{}, nil, beaconerr.New(beaconerr.BsonDeserializerError, `missing "v" key`)
	}
	v, err := DecodeValue(vEl, want)
	if err != nil {
		return value.Value{}, nil, err
	}

	var ts *int64
	if tEl, ok := doc.Lookup("t"); ok {
		t, err := tEl.DateTime()
		if err != nil {
			return value.Value{}, nil, err
		}
		ts = &t
	}
	return v, ts, nil
}

// DecodeObject unwraps the envelope convention for an object
// aggregate: "v" must be a non-empty nested document whose keys are
// object paths, each decoded via typeForPath.
func DecodeObject(raw []byte, typeForPath func(path string) (value.Type, bool)) ([]ObjectEntry, *int64, error) {
	doc, err := ParseDocument(raw)
	if err != nil {
		return nil, nil, err
	}
	vEl, ok := doc.Lookup("v")
	if !ok {
		return nil, nil, beaconerr.New(beaconerr.BsonDeserializerError, `missing "v" key`)
	}
	if vEl.Type != typeDocument {
		return nil, nil, wrongBSONType(typeDocument, vEl.Type)
	}
	sub, err := vEl.SubDocument()
	if err != nil {
		return nil, nil, err
	}
	if sub.Count() == 0 {
		return nil, nil, beaconerr.New(beaconerr.BsonEmptyDocumentError, "object aggregate has no entries")
	}

	entries := make([]ObjectEntry, 0, sub.Count())
	for _, el := range sub.Elements() {
		want, ok := typeForPath(el.Name)
		if !ok {
			return nil, nil, beaconerr.Newf(beaconerr.MappingNotInInterface, "no mapping for path %q", el.Name)
		}
		v, err := DecodeValue(el, want)
		if err != nil {
			return nil, nil, err
		}
		entries = append(entries, ObjectEntry{Path: el.Name, Value: v})
	}

	var ts *int64
	if tEl, ok := doc.Lookup("t"); ok {
		t, err := tEl.DateTime()
		if err != nil {
			return nil, nil, err
		}
		ts = &t
	}
	return entries, ts, nil
}
