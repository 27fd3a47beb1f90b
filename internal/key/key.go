// Package key implements Strata's (run_id, primitive_tag, namespace_path,
// name) key tuple and its byte-ordered encoding.
//
// Fixed-width fields come before variable-width ones: the 16-byte run
// id and 1-byte primitive tag sort first, so lexicographic byte order
// on the encoded key matches iteration order grouped by run then by
// primitive.
package key

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/google/uuid"
)

// Primitive tags (single byte), one per primitive facade.
type Primitive byte

const (
	PrimitiveKV Primitive = iota + 1
	PrimitiveJSON
	PrimitiveEvent
	PrimitiveStateCell
	PrimitiveTrace
	PrimitiveVector
	PrimitiveRun
	PrimitiveSystem // reserved keys: counters
)

var ErrKeyTooLong = errors.New("strata/key: encoded key exceeds configured max_key_bytes")

// RunID is the 128-bit run partition identifier.
type RunID [16]byte

func NewRunID() RunID {
	return RunID(uuid.New())
}

func (r RunID) String() string { return uuid.UUID(r).String() }

func ParseRunID(s string) (RunID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return RunID{}, err
	}
	return RunID(u), nil
}

// Key is the fully-qualified coordinate of a versioned entry.
type Key struct {
	RunID     RunID
	Primitive Primitive
	Namespace string // slash-separated path, e.g. "trace/step"
	Name      string
}

func New(run RunID, prim Primitive, namespace, name string) Key {
	return Key{RunID: run, Primitive: prim, Namespace: namespace, Name: name}
}

// Encode produces the byte-ordered wire representation:
// run_id[16] | tag[1] | len(namespace) varint | namespace | 0x00 | name.
// A NUL separator between namespace and name is safe because namespace
// segments are validated to exclude NUL (see Validate).
func (k Key) Encode() []byte {
	buf := make([]byte, 0, 16+1+len(k.Namespace)+1+len(k.Name))
	buf = append(buf, k.RunID[:]...)
	buf = append(buf, byte(k.Primitive))
	var nsLen [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(nsLen[:], uint64(len(k.Namespace)))
	buf = append(buf, nsLen[:n]...)
	buf = append(buf, k.Namespace...)
	buf = append(buf, 0x00)
	buf = append(buf, k.Name...)
	return buf
}

// String renders a human-readable form for logging and CLI output, not
// for the wire encoding.
func (k Key) String() string {
	return k.RunID.String() + "/" + tagName(k.Primitive) + "/" + k.Namespace + "/" + k.Name
}

func tagName(p Primitive) string {
	switch p {
	case PrimitiveKV:
		return "kv"
	case PrimitiveJSON:
		return "json"
	case PrimitiveEvent:
		return "event"
	case PrimitiveStateCell:
		return "cell"
	case PrimitiveTrace:
		return "trace"
	case PrimitiveVector:
		return "vector"
	case PrimitiveRun:
		return "run"
	case PrimitiveSystem:
		return "sys"
	default:
		return "?"
	}
}

// Decode parses the Encode wire representation back into a Key.
func Decode(b []byte) (Key, error) {
	if len(b) < 17 {
		return Key{}, errors.New("strata/key: truncated key")
	}
	var k Key
	copy(k.RunID[:], b[0:16])
	k.Primitive = Primitive(b[16])
	rest := b[17:]
	nsLen, n := binary.Uvarint(rest)
	if n <= 0 {
		return Key{}, errors.New("strata/key: invalid namespace length")
	}
	rest = rest[n:]
	if uint64(len(rest)) < nsLen+1 {
		return Key{}, errors.New("strata/key: truncated namespace")
	}
	k.Namespace = string(rest[:nsLen])
	rest = rest[nsLen:]
	if rest[0] != 0x00 {
		return Key{}, errors.New("strata/key: missing namespace separator")
	}
	k.Name = string(rest[1:])
	return k, nil
}

// Compare orders two keys by their encoded byte representation.
func Compare(a, b Key) int {
	return bytes.Compare(a.Encode(), b.Encode())
}

// Validate checks the key against configured limits and well-formedness
// rules (no NUL bytes in namespace/name, since NUL is the field
// separator).
func (k Key) Validate(maxKeyBytes int) error {
	if bytes.IndexByte([]byte(k.Namespace), 0x00) >= 0 || bytes.IndexByte([]byte(k.Name), 0x00) >= 0 {
		return errors.New("strata/key: namespace or name contains NUL byte")
	}
	if len(k.Encode()) > maxKeyBytes {
		return ErrKeyTooLong
	}
	return nil
}

// HasPrefix reports whether k belongs to runID and prim and its
// namespace string starts with namespacePrefix (an empty prefix
// matches every namespace). The name is not compared.
func HasPrefix(k Key, runID RunID, prim Primitive, namespacePrefix string) bool {
	if k.RunID != runID || k.Primitive != prim {
		return false
	}
	return len(k.Namespace) >= len(namespacePrefix) && k.Namespace[:len(namespacePrefix)] == namespacePrefix
}
