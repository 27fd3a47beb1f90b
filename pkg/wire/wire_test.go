package wire_test

import (
	"math"
	"testing"

	"strata/internal/errs"
	"strata/internal/txn"
	"strata/internal/value"
	"strata/pkg/wire"
)

func roundTrip(t *testing.T, v value.Value) value.Value {
	t.Helper()
	data, err := wire.EncodeValue(v)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := wire.DecodeValue(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return got
}

func TestValueRoundTrip(t *testing.T) {
	cases := []value.Value{
		value.Null(),
		value.Bool(true),
		value.Bool(false),
		value.Int(42),
		value.Int(-1),
		value.Float(3.5),
		value.Float(2),
		value.Float(0),
		value.Float(1e21),
		value.Float(math.Copysign(0, -1)),
		value.Float(math.NaN()),
		value.Float(math.Inf(1)),
		value.Float(math.Inf(-1)),
		value.String(""),
		value.String("hello"),
		value.Bytes(nil),
		value.Bytes([]byte{1, 2, 3}),
		value.Array(nil),
		value.Array([]value.Value{value.Int(1), value.String("x")}),
		value.Object(nil),
		value.Object(map[string]value.Value{"a": value.Int(1)}),
		value.FromVector(value.NewVector([]float32{1, 2, 3})),
	}

	for _, c := range cases {
		got := roundTrip(t, c)
		if !value.Equal(c, got) {
			t.Errorf("round trip mismatch: %v -> %v", c, got)
		}
	}
}

func TestCASExpectedRoundTrip(t *testing.T) {
	for _, exp := range []txn.CasExpectation{
		{Absent: true},
		{Version: 7},
	} {
		data, err := wire.EncodeCASExpected(exp)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		got, err := wire.DecodeCASExpected(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got != exp {
			t.Errorf("expected %+v, got %+v", exp, got)
		}
	}
}

func TestErrorEnvelope(t *testing.T) {
	src := errs.WithDetails(errs.KindConflict, "cas mismatch", map[string]any{"expected": float64(1)})
	data, err := wire.EncodeError(src)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := wire.DecodeError(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Kind != errs.KindConflict {
		t.Errorf("expected code Conflict, got %s", decoded.Kind)
	}
	if decoded.Message != "cas mismatch" {
		t.Errorf("unexpected message %q", decoded.Message)
	}
}
