// Copyright 2024 The probejs Authors
// This file is part of probejs.

// Package value implements the engine's tagged Value variant and the
// object/shape model that backs the Object case of that variant — the two
// are kept in one package because Objects hold Values in their property
// slots and Values hold a reference to Object, a mutually recursive pair
// that a single Go package expresses far more directly than an artificial
// split with an interface seam would.
package value

import (
	"fmt"
	"math"

	"github.com/probejs/probejs/atom"
	"github.com/probejs/probejs/value/bigint"
)

// Kind tags the variant held by a Value. Go has no native sum type, so the
// tagged union from the spec's "sealed interface for Value" design note is
// expressed as a tag field plus a payload union (§9).
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBoolean
	KindNumber
	KindString
	KindSymbol
	KindBigInt
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSymbol:
		return "symbol"
	case KindBigInt:
		return "bigint"
	case KindObject:
		return "object"
	default:
		return "invalid"
	}
}

// Value is the engine's tagged value variant (§3). The zero Value is
// Undefined.
type Value struct {
	kind Kind
	num  float64
	b    bool
	str  String
	sym  atom.Atom
	big  *bigint.Int
	obj  *Object
}

// Undefined is the singleton undefined value.
var Undefined = Value{kind: KindUndefined}

// Null is the singleton null value.
var Null = Value{kind: KindNull}

// Bool wraps a Go bool.
func Bool(b bool) Value { return Value{kind: KindBoolean, b: b} }

// Number wraps an IEEE-754 double.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Int wraps a Go int as a Number, the common case for small integer
// literals and internal indices.
func Int(n int) Value { return Value{kind: KindNumber, num: float64(n)} }

// Str wraps an engine String.
func Str(s String) Value { return Value{kind: KindString, str: s} }

// StrFromGo wraps a Go (UTF-8) string, converting to the internal UTF-16
// representation.
func StrFromGo(s string) Value { return Str(NewString(s)) }

// Symbol wraps a symbol atom minted via atom.Table.SymbolAtom or WellKnown.
func Symbol(a atom.Atom) Value { return Value{kind: KindSymbol, sym: a} }

// BigInt wraps an arbitrary-precision integer.
func BigInt(b *bigint.Int) Value { return Value{kind: KindBigInt, big: b} }

// Obj wraps an object reference.
func Obj(o *Object) Value {
	if o == nil {
		return Null
	}
	return Value{kind: KindObject, obj: o}
}

// Kind reports the variant tag.
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsUndefined() bool { return v.kind == KindUndefined }
func (v Value) IsNull() bool      { return v.kind == KindNull }
func (v Value) IsNullish() bool   { return v.kind == KindUndefined || v.kind == KindNull }
func (v Value) IsBoolean() bool   { return v.kind == KindBoolean }
func (v Value) IsNumber() bool    { return v.kind == KindNumber }
func (v Value) IsString() bool    { return v.kind == KindString }
func (v Value) IsSymbol() bool    { return v.kind == KindSymbol }
func (v Value) IsBigInt() bool    { return v.kind == KindBigInt }
func (v Value) IsObject() bool    { return v.kind == KindObject }

// AsBool returns the raw bool payload; valid only when IsBoolean().
func (v Value) AsBool() bool { return v.b }

// AsNumber returns the raw float64 payload; valid only when IsNumber().
func (v Value) AsNumber() float64 { return v.num }

// AsString returns the raw String payload; valid only when IsString().
func (v Value) AsString() String { return v.str }

// AsSymbolAtom returns the symbol atom payload; valid only when IsSymbol().
func (v Value) AsSymbolAtom() atom.Atom { return v.sym }

// AsBigInt returns the raw *bigint.Int payload; valid only when IsBigInt().
func (v Value) AsBigInt() *bigint.Int { return v.big }

// AsObject returns the object pointer; valid only when IsObject().
func (v Value) AsObject() *Object { return v.obj }

// IsCallable reports whether v is an object carrying a callable function
// record (§4.9).
func (v Value) IsCallable() bool {
	return v.kind == KindObject && v.obj.Function != nil
}

// GoString renders a debug-oriented representation; not the JS ToString
// result (see ToString in coerce.go for that).
func (v Value) GoString() string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBoolean:
		return fmt.Sprintf("%t", v.b)
	case KindNumber:
		return formatNumber(v.num)
	case KindString:
		return v.str.Go()
	case KindSymbol:
		return "Symbol(...)"
	case KindBigInt:
		return v.big.String() + "n"
	case KindObject:
		return v.obj.debugTag()
	default:
		return "<invalid value>"
	}
}

// formatNumber implements the narrow double_to_string interface the spec
// delegates to an external number-formatting collaborator (§1). There is no
// ECMA-262-conformant dtoa implementation in the retrieval pack, so this
// uses strconv, the standard shortest-round-trip formatter, accepting that
// it does not reproduce every ECMA-262 Number::toString edge case (e.g. the
// exact exponential-notation thresholds); a production embedding would swap
// this one function out for a dedicated dtoa library.
func formatNumber(n float64) string {
	if math.IsNaN(n) {
		return "NaN"
	}
	if math.IsInf(n, 1) {
		return "Infinity"
	}
	if math.IsInf(n, -1) {
		return "-Infinity"
	}
	if n == 0 {
		if math.Signbit(n) {
			return "0" // ToString never distinguishes -0 from 0
		}
		return "0"
	}
	return shortestDecimal(n)
}
