// Copyright 2024 The probejs Authors
// This file is part of probejs.

package value

import (
	"math"
	"strconv"

	"github.com/probejs/probejs/atom"
	"github.com/probejs/probejs/value/bigint"
)

// Hint selects which conversion ToPrimitive/OrdinaryToPrimitive should try
// first (§4.2).
type Hint int

const (
	HintDefault Hint = iota
	HintNumber
	HintString
)

// ToBoolean implements the ToBoolean abstract operation (§4.2).
func ToBoolean(v Value) bool {
	switch v.kind {
	case KindUndefined, KindNull:
		return false
	case KindBoolean:
		return v.b
	case KindNumber:
		return v.num != 0 && !math.IsNaN(v.num)
	case KindString:
		return v.str.Len() > 0
	case KindBigInt:
		return !v.big.IsZero()
	case KindSymbol, KindObject:
		return true
	default:
		return false
	}
}

// ToNumber implements the ToNumber abstract operation (§4.2). Objects are
// first reduced via ToPrimitive(hint=number).
func ToNumber(v Value, table *atom.Table, call Caller) (float64, error) {
	switch v.kind {
	case KindUndefined:
		return math.NaN(), nil
	case KindNull:
		return 0, nil
	case KindBoolean:
		if v.b {
			return 1, nil
		}
		return 0, nil
	case KindNumber:
		return v.num, nil
	case KindString:
		return stringToNumber(v.str), nil
	case KindBigInt:
		return 0, NewTypeError("cannot convert a BigInt to a number")
	case KindSymbol:
		return 0, NewTypeError("cannot convert a Symbol to a number")
	case KindObject:
		prim, err := ToPrimitive(v, HintNumber, table, call)
		if err != nil {
			return 0, err
		}
		if prim.kind == KindObject {
			return 0, NewTypeError("cannot convert object to primitive value")
		}
		return ToNumber(prim, table, call)
	}
	return math.NaN(), nil
}

func stringToNumber(s String) float64 {
	g := s.Go()
	trimmed := trimJSWhitespace(g)
	if trimmed == "" {
		return 0
	}
	if trimmed == "Infinity" || trimmed == "+Infinity" {
		return math.Inf(1)
	}
	if trimmed == "-Infinity" {
		return math.Inf(-1)
	}
	n, ok := parseFloatStrict(trimmed)
	if !ok {
		return math.NaN()
	}
	return n
}

func trimJSWhitespace(s string) string {
	start, end := 0, len(s)
	isWS := func(c byte) bool {
		return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
	}
	for start < end && isWS(s[start]) {
		start++
	}
	for end > start && isWS(s[end-1]) {
		end--
	}
	return s[start:end]
}

func parseFloatStrict(s string) (float64, bool) {
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ToInt32 implements ToInt32 per ECMAScript's modulo-2^32 truncation; NaN
// and ±Infinity map to 0 (§4.2).
func ToInt32(n float64) int32 {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	u := uint32(int64(math.Trunc(n)))
	return int32(u)
}

// ToUint32 implements ToUint32 (§4.2).
func ToUint32(n float64) uint32 {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return uint32(int64(math.Trunc(n)))
}

// ToPrimitive implements ToPrimitive(hint) (§4.2): it prefers @@toPrimitive
// when present, falling back to OrdinaryToPrimitive otherwise, and is
// guarded against a reentrant conversion chain (§9 "never recursing into
// the same conversion chain twice") by never calling itself on the result
// of @@toPrimitive without first checking that result is already a
// primitive.
func ToPrimitive(v Value, hint Hint, table *atom.Table, call Caller) (Value, error) {
	if v.kind != KindObject {
		return v, nil
	}
	obj := v.obj
	toPrimAtom := table.WellKnown(atom.SymToPrimitive)
	if desc, ok := obj.GetOwn(toPrimAtom, table); ok {
		fn := obj.GetOwnValue(toPrimAtom, table, desc)
		if fn.IsCallable() {
			hintStr := "default"
			switch hint {
			case HintNumber:
				hintStr = "number"
			case HintString:
				hintStr = "string"
			}
			result, err := call.Call(fn, v, []Value{StrFromGo(hintStr)})
			if err != nil {
				return Undefined, err
			}
			if result.kind == KindObject {
				return Undefined, NewTypeError("@@toPrimitive must return a primitive value")
			}
			return result, nil
		}
	}
	return OrdinaryToPrimitive(v, hint, table, call)
}

// OrdinaryToPrimitive implements OrdinaryToPrimitive (§4.2): call valueOf
// then toString (or the reverse when hint is "string"); fails with a
// TypeError when neither returns a primitive.
func OrdinaryToPrimitive(v Value, hint Hint, table *atom.Table, call Caller) (Value, error) {
	if v.kind != KindObject {
		return v, nil
	}
	methods := []string{"valueOf", "toString"}
	if hint == HintString {
		methods = []string{"toString", "valueOf"}
	}
	for _, name := range methods {
		key := table.Intern(name)
		desc, ok := v.obj.GetOwn(key, table)
		var fn Value
		if ok {
			fn = v.obj.GetOwnValue(key, table, desc)
		} else {
			fn, _ = v.obj.Get(key, table, v, call)
		}
		if !fn.IsCallable() {
			continue
		}
		result, err := call.Call(fn, v, nil)
		if err != nil {
			return Undefined, err
		}
		if result.kind != KindObject {
			return result, nil
		}
	}
	return Undefined, NewTypeError("cannot convert object to primitive value")
}

// ToPropertyKey implements ToPropertyKey (§4.2): symbols pass through as
// symbol atoms; everything else is stringified and interned, with numeric-
// string canonicalization handled transparently by atom.Table.Intern.
func ToPropertyKey(v Value, table *atom.Table, call Caller) (atom.Atom, error) {
	prim, err := ToPrimitive(v, HintString, table, call)
	if err != nil {
		return atom.Invalid, err
	}
	if prim.kind == KindSymbol {
		return prim.sym, nil
	}
	s, err := ToString(prim, table, call)
	if err != nil {
		return atom.Invalid, err
	}
	return table.Intern(s.Go()), nil
}

// ToString implements ToString (§4.2).
func ToString(v Value, table *atom.Table, call Caller) (String, error) {
	switch v.kind {
	case KindUndefined:
		return NewString("undefined"), nil
	case KindNull:
		return NewString("null"), nil
	case KindBoolean:
		if v.b {
			return NewString("true"), nil
		}
		return NewString("false"), nil
	case KindNumber:
		return NewString(formatNumber(v.num)), nil
	case KindString:
		return v.str, nil
	case KindBigInt:
		return NewString(v.big.String()), nil
	case KindSymbol:
		return String{}, NewTypeError("cannot convert a Symbol to a string")
	case KindObject:
		prim, err := ToPrimitive(v, HintString, table, call)
		if err != nil {
			return String{}, err
		}
		if prim.kind == KindObject {
			return String{}, NewTypeError("cannot convert object to primitive value")
		}
		return ToString(prim, table, call)
	}
	return String{}, nil
}

// ToObject implements ToObject (§4.2); objectProtoFor supplies the
// per-primitive-kind prototype (Number.prototype, String.prototype, ...)
// since value has no realm of its own.
func ToObject(v Value, protoFor func(Kind) *Object) (*Object, error) {
	if v.kind == KindObject {
		return v.obj, nil
	}
	if v.kind == KindUndefined || v.kind == KindNull {
		return nil, NewTypeError("cannot convert %s to object", v.kind)
	}
	o := NewObject(protoFor(v.kind))
	o.SetInternal("primitiveValue", v)
	switch v.kind {
	case KindNumber:
		o.class = "Number"
	case KindString:
		o.class = "String"
	case KindBoolean:
		o.class = "Boolean"
	case KindSymbol:
		o.class = "Symbol"
	case KindBigInt:
		o.class = "BigInt"
	}
	return o, nil
}

// TypeOf implements the `typeof` operator (§4.2).
func TypeOf(v Value) string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "object"
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
		if v.IsCallable() {
			return "function"
		}
		return "object"
	default:
		return "undefined"
	}
}

// StrictEquals implements === (§3): NaN != NaN, +0 === -0.
func StrictEquals(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindUndefined, KindNull:
		return true
	case KindBoolean:
		return a.b == b.b
	case KindNumber:
		return a.num == b.num // Go == already gives NaN!=NaN and +0==-0
	case KindString:
		return a.str.Equal(b.str)
	case KindSymbol:
		return a.sym == b.sym
	case KindBigInt:
		return bigint.Cmp(a.big, b.big) == 0
	case KindObject:
		return a.obj == b.obj
	}
	return false
}

// SameValueZero implements SameValueZero (§3): like StrictEquals except
// NaN equals NaN (used by Map/Set key comparison).
func SameValueZero(a, b Value) bool {
	if a.kind == KindNumber && b.kind == KindNumber {
		if math.IsNaN(a.num) && math.IsNaN(b.num) {
			return true
		}
		return a.num == b.num
	}
	return StrictEquals(a, b)
}

// AbstractEquals implements == (§3/§4.2), following the ECMA-262 coercion
// ladder between mismatched types.
func AbstractEquals(a, b Value, table *atom.Table, call Caller) (bool, error) {
	if a.kind == b.kind {
		return StrictEquals(a, b), nil
	}
	if a.IsNullish() && b.IsNullish() {
		return true, nil
	}
	if a.IsNullish() || b.IsNullish() {
		return false, nil
	}
	if a.kind == KindNumber && b.kind == KindString {
		bn := stringToNumber(b.str)
		return a.num == bn, nil
	}
	if a.kind == KindString && b.kind == KindNumber {
		an := stringToNumber(a.str)
		return an == b.num, nil
	}
	if a.kind == KindBigInt && b.kind == KindString {
		bb, ok := bigint.FromDecimalString(b.str.Go())
		return ok && bigint.Cmp(a.big, bb) == 0, nil
	}
	if a.kind == KindString && b.kind == KindBigInt {
		return AbstractEquals(b, a, table, call)
	}
	if a.kind == KindBoolean {
		return AbstractEquals(Number(boolToFloat(a.b)), b, table, call)
	}
	if b.kind == KindBoolean {
		return AbstractEquals(a, Number(boolToFloat(b.b)), table, call)
	}
	if (a.kind == KindNumber || a.kind == KindString || a.kind == KindBigInt || a.kind == KindSymbol) && b.kind == KindObject {
		prim, err := ToPrimitive(b, HintDefault, table, call)
		if err != nil {
			return false, err
		}
		return AbstractEquals(a, prim, table, call)
	}
	if a.kind == KindObject && (b.kind == KindNumber || b.kind == KindString || b.kind == KindBigInt || b.kind == KindSymbol) {
		return AbstractEquals(b, a, table, call)
	}
	if a.kind == KindBigInt && b.kind == KindNumber {
		if math.IsNaN(b.num) || math.IsInf(b.num, 0) {
			return false, nil
		}
		return a.big.Float64() == b.num, nil
	}
	if a.kind == KindNumber && b.kind == KindBigInt {
		return AbstractEquals(b, a, table, call)
	}
	return false, nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
