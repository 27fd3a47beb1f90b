// Package wire implements Strata's facade-to-client JSON encoding.
// Values round-trip through escape wrappers for the cases plain JSON
// cannot express natively (bytes, non-finite floats, and the
// CAS-expected-absent predicate), and errors render as the uniform
// `{"code","message","details"}` envelope. Every Value encodes to
// JSON losslessly.
package wire

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"strata/internal/errs"
	"strata/internal/txn"
	"strata/internal/value"
)

const (
	bytesKey  = "$bytes"
	floatKey  = "$f64"
	absentKey = "$absent"
	vectorKey = "$vector"
)

// EncodeValue renders v as wire-format JSON.
func EncodeValue(v value.Value) ([]byte, error) {
	return json.Marshal(toWire(v))
}

// DecodeValue parses wire-format JSON back into a Value. Numbers are
// decoded through json.Number so the original literal is inspectable:
// "2" becomes Int(2) but "2.0" stays Float(2.0), keeping the Int/Float
// split lossless in both directions.
func DecodeValue(data []byte) (value.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return value.Value{}, errs.WithDetails(errs.KindInvalidPath, "wire: malformed JSON", map[string]any{"error": err.Error()})
	}
	if dec.More() {
		return value.Value{}, errs.New(errs.KindInvalidPath, "wire: trailing data after JSON value")
	}
	return fromWire(raw)
}

// toWire converts a Value into a plain Go value tree that
// encoding/json renders directly, applying the escape wrappers where
// JSON alone cannot carry the information.
func toWire(v value.Value) any {
	switch v.Type() {
	case value.TypeNull:
		return nil
	case value.TypeBool:
		return v.Bool()
	case value.TypeInt:
		return v.Int()
	case value.TypeFloat:
		f := v.Float()
		if math.IsNaN(f) {
			return map[string]any{floatKey: "NaN"}
		}
		if math.IsInf(f, 1) {
			return map[string]any{floatKey: "Infinity"}
		}
		if math.IsInf(f, -1) {
			return map[string]any{floatKey: "-Infinity"}
		}
		return json.RawMessage(formatFloat(f))
	case value.TypeString:
		return v.Text()
	case value.TypeBytes:
		return map[string]any{bytesKey: base64.StdEncoding.EncodeToString(v.Blob())}
	case value.TypeArray:
		items := v.Items()
		out := make([]any, len(items))
		for i, it := range items {
			out[i] = toWire(it)
		}
		return out
	case value.TypeObject:
		fields := v.Fields()
		out := make(map[string]any, len(fields))
		for k, fv := range fields {
			out[k] = toWire(fv)
		}
		return out
	case value.TypeVector:
		vec := v.Vector()
		data := vec.Data()
		out := make([]any, len(data))
		for i, x := range data {
			out[i] = float64(x)
		}
		return map[string]any{vectorKey: out}
	default:
		return nil
	}
}

// fromWire is toWire's inverse, applied to the generic tree
// encoding/json produces for arbitrary JSON (map[string]any, []any,
// float64, string, bool, nil).
func fromWire(raw any) (value.Value, error) {
	switch x := raw.(type) {
	case nil:
		return value.Null(), nil
	case bool:
		return value.Bool(x), nil
	case string:
		return value.String(x), nil
	case json.Number:
		return numberValue(x)
	case float64:
		// Only reachable for callers decoding without UseNumber (e.g. a
		// tree handed in from another json.Unmarshal); the literal is
		// gone, so integral values collapse to Int here.
		if i := int64(x); float64(i) == x && !(x == 0 && math.Signbit(x)) {
			return value.Int(i), nil
		}
		return value.Float(x), nil
	case []any:
		items := make([]value.Value, len(x))
		for i, it := range x {
			v, err := fromWire(it)
			if err != nil {
				return value.Value{}, err
			}
			items[i] = v
		}
		return value.Array(items), nil
	case map[string]any:
		return objectOrWrapper(x)
	default:
		return value.Value{}, errs.Newf(errs.KindInvalidPath, "wire: unsupported JSON node %T", raw)
	}
}

// numberValue splits a JSON number literal into Int or Float by its
// spelling: a bare integer literal is an Int, anything carrying a
// fraction or exponent is a Float. JSON has one number type, Strata's
// Value has two, and the literal is the only place the distinction
// survives. formatFloat is the encoding-side counterpart: it
// guarantees every Float's literal keeps a "." or an exponent, so -0.0
// and integral floats like 2.0 round-trip as floats.
func numberValue(n json.Number) (value.Value, error) {
	s := string(n)
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return value.Int(i), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return value.Value{}, errs.Newf(errs.KindInvalidPath, "wire: malformed number literal %q", s)
	}
	return value.Float(f), nil
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func objectOrWrapper(m map[string]any) (value.Value, error) {
	if len(m) == 1 {
		if raw, ok := m[bytesKey]; ok {
			s, ok := raw.(string)
			if !ok {
				return value.Value{}, errs.New(errs.KindInvalidPath, "wire: $bytes must be a base64 string")
			}
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return value.Value{}, errs.WithDetails(errs.KindInvalidPath, "wire: invalid base64 in $bytes", map[string]any{"error": err.Error()})
			}
			return value.Bytes(b), nil
		}
		if raw, ok := m[floatKey]; ok {
			s, ok := raw.(string)
			if !ok {
				return value.Value{}, errs.New(errs.KindInvalidPath, "wire: $f64 must be a string")
			}
			switch s {
			case "NaN":
				return value.Float(math.NaN()), nil
			case "Infinity":
				return value.Float(math.Inf(1)), nil
			case "-Infinity":
				return value.Float(math.Inf(-1)), nil
			default:
				return value.Value{}, errs.Newf(errs.KindInvalidPath, "wire: unrecognized $f64 literal %q", s)
			}
		}
		if raw, ok := m[vectorKey]; ok {
			items, ok := raw.([]any)
			if !ok {
				return value.Value{}, errs.New(errs.KindInvalidPath, "wire: $vector must be an array")
			}
			data := make([]float32, len(items))
			for i, it := range items {
				var f float64
				switch x := it.(type) {
				case json.Number:
					parsed, err := x.Float64()
					if err != nil {
						return value.Value{}, errs.New(errs.KindInvalidPath, "wire: $vector elements must be numbers")
					}
					f = parsed
				case float64:
					f = x
				default:
					return value.Value{}, errs.New(errs.KindInvalidPath, "wire: $vector elements must be numbers")
				}
				data[i] = float32(f)
			}
			return value.FromVector(value.NewVector(data)), nil
		}
	}

	fields := make(map[string]value.Value, len(m))
	for k, raw := range m {
		v, err := fromWire(raw)
		if err != nil {
			return value.Value{}, err
		}
		fields[k] = v
	}
	return value.Object(fields), nil
}

// EncodeCASExpected renders a CAS predicate's expected prior state;
// `{"$absent":true}` means "expect no prior value".
func EncodeCASExpected(exp txn.CasExpectation) ([]byte, error) {
	if exp.Absent {
		return json.Marshal(map[string]any{absentKey: true})
	}
	return json.Marshal(map[string]any{"version": exp.Version})
}

// DecodeCASExpected is EncodeCASExpected's inverse.
func DecodeCASExpected(data []byte) (txn.CasExpectation, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return txn.CasExpectation{}, errs.Io(err)
	}
	if v, ok := raw[absentKey]; ok {
		if b, ok := v.(bool); ok && b {
			return txn.CasExpectation{Absent: true}, nil
		}
	}
	if v, ok := raw["version"]; ok {
		if f, ok := v.(float64); ok {
			return txn.CasExpectation{Version: uint64(f)}, nil
		}
	}
	return txn.CasExpectation{}, errs.New(errs.KindInvalidPath, "wire: malformed CAS expectation")
}

// errorEnvelope is the `{"code","message","details"}` error shape the
// CLI's JSON mode emits.
type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details"`
}

// EncodeError renders any error (typically an *errs.Error, but
// anything satisfying the error interface is accepted so the CLI can
// wire-encode unexpected failures too) as the error envelope.
func EncodeError(err error) ([]byte, error) {
	env := errorEnvelope{Code: string(errs.KindOf(err)), Message: err.Error()}
	if e, ok := errs.As(err); ok && e.Details != nil {
		env.Details = e.Details
	}
	return json.Marshal(env)
}

// DecodeError parses a wire-format error envelope back into an
// *errs.Error.
func DecodeError(data []byte) (*errs.Error, error) {
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errs.Io(err)
	}
	var details map[string]any
	if m, ok := env.Details.(map[string]any); ok {
		details = m
	}
	return &errs.Error{Kind: errs.Kind(env.Code), Message: env.Message, Details: details}, nil
}
