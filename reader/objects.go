package reader

import (
	"strconv"
)

// Object is one of the PDF object types below.
type Object interface {
	object()
}

type (
	// Null is the null object. Dictionary entries whose value is null are
	// dropped while parsing.
	Null struct{}

	Boolean bool
	Integer int64
	Real    float64

	// Name is a name object without its leading slash, with #xx escapes
	// already decoded.
	Name string

	// String is a literal or hexadecimal string, decoded to raw bytes.
	String struct {
		Value []byte
		IsHex bool
	}

	Array []Object
	Dict  map[Name]Object

	// Stream is a stream dictionary with its still-encoded data.
	Stream struct {
		Dict Dict
		Data []byte
	}

	// Reference is an indirect reference "N G R".
	Reference struct {
		Number     int
		Generation int
	}
)

func (Null) object()      {}
func (Boolean) object()   {}
func (Integer) object()   {}
func (Real) object()      {}
func (Name) object()      {}
func (String) object()    {}
func (Array) object()     {}
func (Dict) object()      {}
func (Stream) object()    {}
func (Reference) object() {}

func (r Reference) String() string {
	return strconv.Itoa(r.Number) + " " + strconv.Itoa(r.Generation) + " R"
}

// number converts Integer and Real to float64.
func number(obj Object) (float64, bool) {
	switch n := obj.(type) {
	case Integer:
		return float64(n), true
	case Real:
		return float64(n), true
	}
	return 0, false
}

func entry[T Object](d Dict, key Name) (T, bool) {
	v, ok := d[key].(T)
	return v, ok
}

// GetName returns the name stored under key, or "".
func (d Dict) GetName(key Name) Name {
	n, _ := entry[Name](d, key)
	return n
}

// GetInt returns the integer stored under key. Reals are truncated.
func (d Dict) GetInt(key Name) (int64, bool) {
	f, ok := number(d[key])
	return int64(f), ok
}

// GetNumber returns the numeric value stored under key.
func (d Dict) GetNumber(key Name) (float64, bool) {
	return number(d[key])
}

// GetDict returns the direct dictionary stored under key, or nil.
func (d Dict) GetDict(key Name) Dict {
	sub, _ := entry[Dict](d, key)
	return sub
}

// GetArray returns the direct array stored under key, or nil.
func (d Dict) GetArray(key Name) Array {
	arr, _ := entry[Array](d, key)
	return arr
}
