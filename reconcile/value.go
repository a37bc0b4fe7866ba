/*
Package reconcile provides the structural comparison core.

PURPOSE:
  This package contains domain-agnostic algorithms for comparing nested
  value trees and for converting desired-state collections into
  create/update/delete instructions. The order pipeline feeds it a
  "current" tree (from a validated request) and a "previous" tree (from
  storage) and executes the instructions it returns.

KEY CONCEPTS IN THIS FILE (value.go):
  - Value:  A tagged tree node: Scalar, Object, or Array
  - Scalar: null, bool, string, or decimal number (never float64)
  - Object: string-keyed mapping of Values
  - Array:  ordered sequence of Values

DESIGN PRINCIPLES:
  1. Explicit shape: values are a closed sum type, not interface{} soup.
  2. Precision: numbers are decimal.Decimal end to end, including JSON.
  3. No aliasing: Clone builds new nodes from children, so "current" and
     "previous" trees never share structure during reconciliation.

USAGE:
  rec := reconcile.Object{
      "quantity":  reconcile.Int(5),
      "unit_cost": reconcile.Dec("2.50"),
  }
  patch, entries := reconcile.Diff(current, previous)

SEE ALSO:
  - diff.go:       Deep diff, dotted-path entries, patch building
  - collection.go: Keyed-collection reconciliation
*/
package reconcile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// VALUE - Tagged tree node
// =============================================================================

// Value is a node in a value tree. Exactly three implementations exist:
// Scalar, Object and Array. Identity between records is never inherent to
// a Value; collections designate an identity field externally.
type Value interface {
	// Equal reports deep equality with another Value.
	Equal(other Value) bool

	// Clone returns a structurally independent copy. No node is shared
	// between the receiver and the result.
	Clone() Value

	json.Marshaler
}

// =============================================================================
// SCALAR
// =============================================================================

// Scalar is a leaf value: nil (null), bool, string, or decimal.Decimal.
// Anything else is rejected at construction time by the JSON decoder and
// the typed constructors below.
type Scalar struct {
	Val any
}

func Null() Scalar           { return Scalar{} }
func Bool(b bool) Scalar     { return Scalar{Val: b} }
func String(s string) Scalar { return Scalar{Val: s} }
func Int(n int64) Scalar     { return Scalar{Val: decimal.NewFromInt(n)} }

// Dec builds a decimal scalar from its string form. Invalid input becomes
// zero, matching MustParseDecimal semantics used throughout the stores.
func Dec(s string) Scalar {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Scalar{Val: decimal.Zero}
	}
	return Scalar{Val: d}
}

func Number(d decimal.Decimal) Scalar { return Scalar{Val: d} }

func (s Scalar) IsNull() bool { return s.Val == nil }

// Decimal returns the numeric value and whether the scalar is a number.
func (s Scalar) Decimal() (decimal.Decimal, bool) {
	d, ok := s.Val.(decimal.Decimal)
	return d, ok
}

func (s Scalar) Equal(other Value) bool {
	o, ok := other.(Scalar)
	if !ok {
		return false
	}
	if sd, ok := s.Val.(decimal.Decimal); ok {
		od, ok := o.Val.(decimal.Decimal)
		return ok && sd.Equal(od)
	}
	return s.Val == o.Val
}

func (s Scalar) Clone() Value { return s }

func (s Scalar) MarshalJSON() ([]byte, error) {
	if d, ok := s.Val.(decimal.Decimal); ok {
		// Emit a bare JSON number so trees survive a store round-trip.
		return []byte(d.String()), nil
	}
	return json.Marshal(s.Val)
}

// StringValue renders the scalar for use as a map key or display value.
func (s Scalar) StringValue() string {
	switch v := s.Val.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	case decimal.Decimal:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// =============================================================================
// OBJECT
// =============================================================================

// Object is a string-keyed mapping. A nil Object behaves as empty.
type Object map[string]Value

func (o Object) Equal(other Value) bool {
	oo, ok := other.(Object)
	if !ok || len(o) != len(oo) {
		return false
	}
	for k, v := range o {
		ov, ok := oo[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

func (o Object) Clone() Value {
	out := make(Object, len(o))
	for k, v := range o {
		out[k] = v.Clone()
	}
	return out
}

// CloneObject is Clone with a concrete return type.
func (o Object) CloneObject() Object { return o.Clone().(Object) }

// Keys returns the object's keys in sorted order for deterministic walks.
func (o Object) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := o[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o *Object) UnmarshalJSON(data []byte) error {
	v, err := DecodeJSON(data)
	if err != nil {
		return err
	}
	obj, ok := v.(Object)
	if !ok {
		return fmt.Errorf("reconcile: expected JSON object, got %T", v)
	}
	*o = obj
	return nil
}

// =============================================================================
// ARRAY
// =============================================================================

// Array is an ordered sequence of Values. The diff treats arrays as whole
// leaf values; per-record array reconciliation lives in collection.go.
type Array []Value

func (a Array) Equal(other Value) bool {
	oa, ok := other.(Array)
	if !ok || len(a) != len(oa) {
		return false
	}
	for i, v := range a {
		if !v.Equal(oa[i]) {
			return false
		}
	}
	return true
}

func (a Array) Clone() Value {
	out := make(Array, len(a))
	for i, v := range a {
		out[i] = v.Clone()
	}
	return out
}

func (a Array) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		vb, err := v.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// =============================================================================
// JSON DECODING
// =============================================================================

// DecodeJSON parses raw JSON into a Value. Numbers become decimal.Decimal,
// never float64, so 0.1 compares exactly after a round-trip.
func DecodeJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("reconcile: decode: %w", err)
	}
	return fromRaw(raw)
}

// DecodeObject parses raw JSON that must be an object.
func DecodeObject(data []byte) (Object, error) {
	v, err := DecodeJSON(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(Object)
	if !ok {
		return nil, fmt.Errorf("reconcile: expected JSON object, got %T", v)
	}
	return obj, nil
}

func fromRaw(raw any) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(v), nil
	case string:
		return String(v), nil
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return nil, fmt.Errorf("reconcile: bad number %q: %w", v, err)
		}
		return Number(d), nil
	case map[string]any:
		obj := make(Object, len(v))
		for k, child := range v {
			cv, err := fromRaw(child)
			if err != nil {
				return nil, err
			}
			obj[k] = cv
		}
		return obj, nil
	case []any:
		arr := make(Array, len(v))
		for i, child := range v {
			cv, err := fromRaw(child)
			if err != nil {
				return nil, err
			}
			arr[i] = cv
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("reconcile: unsupported JSON value %T", raw)
	}
}
