package value

import (
	"encoding/binary"
	"errors"
	"math"
)

// Binary tags for the WAL/bundle on-disk value encoding. This is
// distinct from pkg/wire's JSON format used between facades and
// clients: the WAL needs a compact, allocation-light encoding it
// controls end to end, independent of any client-facing format.
const (
	tagNull byte = iota
	tagBool
	tagInt
	tagFloat
	tagString
	tagBytes
	tagArray
	tagObject
	tagVector
)

// EncodeBinary serializes v for WAL/bundle storage.
func EncodeBinary(v Value) []byte {
	var buf []byte
	buf = appendValue(buf, v)
	return buf
}

func appendValue(buf []byte, v Value) []byte {
	switch v.typ {
	case TypeNull:
		return append(buf, tagNull)
	case TypeBool:
		b := byte(0)
		if v.b {
			b = 1
		}
		return append(buf, tagBool, b)
	case TypeInt:
		buf = append(buf, tagInt)
		return appendU64(buf, uint64(v.i))
	case TypeFloat:
		buf = append(buf, tagFloat)
		return appendU64(buf, math.Float64bits(v.f))
	case TypeString:
		buf = append(buf, tagString)
		return appendBytes(buf, []byte(v.s))
	case TypeBytes:
		buf = append(buf, tagBytes)
		return appendBytes(buf, v.bytes)
	case TypeArray:
		buf = append(buf, tagArray)
		buf = appendU32(buf, uint32(len(v.arr)))
		for _, item := range v.arr {
			buf = appendValue(buf, item)
		}
		return buf
	case TypeObject:
		buf = append(buf, tagObject)
		buf = appendU32(buf, uint32(len(v.obj)))
		for k, item := range v.obj {
			buf = appendBytes(buf, []byte(k))
			buf = appendValue(buf, item)
		}
		return buf
	case TypeVector:
		buf = append(buf, tagVector)
		return appendBytes(buf, v.vector.ToBytes())
	default:
		return append(buf, tagNull)
	}
}

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendBytes(buf []byte, b []byte) []byte {
	buf = appendU32(buf, uint32(len(b)))
	return append(buf, b...)
}

// DecodeBinary deserializes a value previously produced by EncodeBinary.
func DecodeBinary(b []byte) (Value, error) {
	v, rest, err := readValue(b)
	if err != nil {
		return Value{}, err
	}
	if len(rest) != 0 {
		return Value{}, errors.New("strata/value: trailing bytes after decode")
	}
	return v, nil
}

func readValue(b []byte) (Value, []byte, error) {
	if len(b) < 1 {
		return Value{}, nil, errors.New("strata/value: empty buffer")
	}
	tag, rest := b[0], b[1:]
	switch tag {
	case tagNull:
		return Null(), rest, nil
	case tagBool:
		if len(rest) < 1 {
			return Value{}, nil, errors.New("strata/value: truncated bool")
		}
		return Bool(rest[0] != 0), rest[1:], nil
	case tagInt:
		u, rest, err := readU64(rest)
		if err != nil {
			return Value{}, nil, err
		}
		return Int(int64(u)), rest, nil
	case tagFloat:
		u, rest, err := readU64(rest)
		if err != nil {
			return Value{}, nil, err
		}
		return Float(math.Float64frombits(u)), rest, nil
	case tagString:
		bs, rest, err := readBytes(rest)
		if err != nil {
			return Value{}, nil, err
		}
		return String(string(bs)), rest, nil
	case tagBytes:
		bs, rest, err := readBytes(rest)
		if err != nil {
			return Value{}, nil, err
		}
		return Bytes(bs), rest, nil
	case tagArray:
		n, rest, err := readU32(rest)
		if err != nil {
			return Value{}, nil, err
		}
		items := make([]Value, 0, n)
		for i := uint32(0); i < n; i++ {
			var item Value
			item, rest, err = readValue(rest)
			if err != nil {
				return Value{}, nil, err
			}
			items = append(items, item)
		}
		return Array(items), rest, nil
	case tagObject:
		n, rest, err := readU32(rest)
		if err != nil {
			return Value{}, nil, err
		}
		fields := make(map[string]Value, n)
		for i := uint32(0); i < n; i++ {
			var kb []byte
			kb, rest, err = readBytes(rest)
			if err != nil {
				return Value{}, nil, err
			}
			var item Value
			item, rest, err = readValue(rest)
			if err != nil {
				return Value{}, nil, err
			}
			fields[string(kb)] = item
		}
		return Object(fields), rest, nil
	case tagVector:
		bs, rest, err := readBytes(rest)
		if err != nil {
			return Value{}, nil, err
		}
		vec, err := VectorFromBytes(bs)
		if err != nil {
			return Value{}, nil, err
		}
		return FromVector(vec), rest, nil
	default:
		return Value{}, nil, errors.New("strata/value: unknown tag")
	}
}

func readU64(b []byte) (uint64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, errors.New("strata/value: truncated u64")
	}
	return binary.LittleEndian.Uint64(b[:8]), b[8:], nil
}

func readU32(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, errors.New("strata/value: truncated u32")
	}
	return binary.LittleEndian.Uint32(b[:4]), b[4:], nil
}

func readBytes(b []byte) ([]byte, []byte, error) {
	n, rest, err := readU32(b)
	if err != nil {
		return nil, nil, err
	}
	if uint32(len(rest)) < n {
		return nil, nil, errors.New("strata/value: truncated bytes")
	}
	return rest[:n], rest[n:], nil
}
