// Package value implements Strata's tagged value model: the Null, Bool,
// Int, Float, String, Bytes, Array, Object and Vector variants every primitive
// facade reads and writes through the core.
package value

import (
	"fmt"
	"math"
)

// Type identifies which variant a Value holds.
type Type int

const (
	TypeNull Type = iota
	TypeBool
	TypeInt
	TypeFloat
	TypeString
	TypeBytes
	TypeArray
	TypeObject
	TypeVector
)

func (t Type) String() string {
	switch t {
	case TypeNull:
		return "Null"
	case TypeBool:
		return "Bool"
	case TypeInt:
		return "Int"
	case TypeFloat:
		return "Float"
	case TypeString:
		return "String"
	case TypeBytes:
		return "Bytes"
	case TypeArray:
		return "Array"
	case TypeObject:
		return "Object"
	case TypeVector:
		return "Vector"
	default:
		return "Unknown"
	}
}

// Value is a tagged union over Strata's value model. It is copied by
// value; Array/Object/Bytes/Vector payloads are defensively copied on
// construction and on read.
type Value struct {
	typ    Type
	b      bool
	i      int64
	f      float64
	s      string
	bytes  []byte
	arr    []Value
	obj    map[string]Value
	vector *Vector
}

func Null() Value { return Value{typ: TypeNull} }

func Bool(b bool) Value { return Value{typ: TypeBool, b: b} }

func Int(i int64) Value { return Value{typ: TypeInt, i: i} }

func Float(f float64) Value { return Value{typ: TypeFloat, f: f} }

func String(s string) Value { return Value{typ: TypeString, s: s} }

func Bytes(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{typ: TypeBytes, bytes: cp}
}

func Array(items []Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{typ: TypeArray, arr: cp}
}

func Object(fields map[string]Value) Value {
	cp := make(map[string]Value, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Value{typ: TypeObject, obj: cp}
}

func FromVector(v *Vector) Value {
	return Value{typ: TypeVector, vector: v}
}

func (v Value) Type() Type { return v.typ }

func (v Value) IsNull() bool { return v.typ == TypeNull }

func (v Value) Bool() bool { return v.b }

func (v Value) Int() int64 { return v.i }

func (v Value) Float() float64 { return v.f }

func (v Value) Text() string { return v.s }

// Blob returns a defensive copy of the byte payload.
func (v Value) Blob() []byte {
	if v.bytes == nil {
		return nil
	}
	cp := make([]byte, len(v.bytes))
	copy(cp, v.bytes)
	return cp
}

// Items returns a defensive copy of the array payload.
func (v Value) Items() []Value {
	cp := make([]Value, len(v.arr))
	copy(cp, v.arr)
	return cp
}

// Fields returns a defensive copy of the object payload.
func (v Value) Fields() map[string]Value {
	cp := make(map[string]Value, len(v.obj))
	for k, val := range v.obj {
		cp[k] = val
	}
	return cp
}

func (v Value) Vector() *Vector { return v.vector }

// Equal reports deep, type-aware equality. NaN equals NaN here (unlike
// IEEE 754) because round-trip tests compare decoded wire values, not
// arithmetic results.
func Equal(a, b Value) bool {
	if a.typ != b.typ {
		return false
	}
	switch a.typ {
	case TypeNull:
		return true
	case TypeBool:
		return a.b == b.b
	case TypeInt:
		return a.i == b.i
	case TypeFloat:
		if math.IsNaN(a.f) && math.IsNaN(b.f) {
			return true
		}
		return a.f == b.f || (a.f == 0 && b.f == 0 && math.Signbit(a.f) == math.Signbit(b.f))
	case TypeString:
		return a.s == b.s
	case TypeBytes:
		if len(a.bytes) != len(b.bytes) {
			return false
		}
		for i := range a.bytes {
			if a.bytes[i] != b.bytes[i] {
				return false
			}
		}
		return true
	case TypeArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case TypeObject:
		if len(a.obj) != len(b.obj) {
			return false
		}
		for k, av := range a.obj {
			bv, ok := b.obj[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case TypeVector:
		return a.vector.Equal(b.vector)
	default:
		return false
	}
}

// String renders a debug representation; not the wire format (see
// pkg/wire for that).
func (v Value) String() string {
	switch v.typ {
	case TypeNull:
		return "null"
	case TypeBool:
		return fmt.Sprintf("%t", v.b)
	case TypeInt:
		return fmt.Sprintf("%d", v.i)
	case TypeFloat:
		return fmt.Sprintf("%v", v.f)
	case TypeString:
		return v.s
	case TypeBytes:
		return fmt.Sprintf("<%d bytes>", len(v.bytes))
	case TypeArray:
		return fmt.Sprintf("<array len=%d>", len(v.arr))
	case TypeObject:
		return fmt.Sprintf("<object fields=%d>", len(v.obj))
	case TypeVector:
		return fmt.Sprintf("<vector dim=%d>", v.vector.Dimension())
	default:
		return "<unknown>"
	}
}
