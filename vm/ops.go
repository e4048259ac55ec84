// Copyright 2024 The probejs Authors
// This file is part of probejs.

package vm

import (
	"math"

	"github.com/probejs/probejs/atom"
	"github.com/probejs/probejs/opcode"
	"github.com/probejs/probejs/value"
)

// binaryOp implements the arithmetic/bitwise family, coercing operands per
// §4.2's Number/String promotion rules before the ADD special case (string
// concatenation wins over numeric addition when either operand is a
// string after ToPrimitive).
func (vm *VM) binaryOp(op opcode.Op, a, b value.Value) (value.Value, error) {
	if op == opcode.OpAdd {
		pa, err := value.ToPrimitive(a, value.HintDefault, vm.table, vm)
		if err != nil {
			return value.Undefined, err
		}
		pb, err := value.ToPrimitive(b, value.HintDefault, vm.table, vm)
		if err != nil {
			return value.Undefined, err
		}
		if pa.IsString() || pb.IsString() {
			sa, err := value.ToString(pa, vm.table, vm)
			if err != nil {
				return value.Undefined, err
			}
			sb, err := value.ToString(pb, vm.table, vm)
			if err != nil {
				return value.Undefined, err
			}
			return value.Str(sa.Concat(sb)), nil
		}
		na, err := value.ToNumber(pa, vm.table, vm)
		if err != nil {
			return value.Undefined, err
		}
		nb, err := value.ToNumber(pb, vm.table, vm)
		if err != nil {
			return value.Undefined, err
		}
		return value.Number(na + nb), nil
	}

	switch op {
	case opcode.OpShl, opcode.OpShr, opcode.OpUShr, opcode.OpBitAnd, opcode.OpBitOr, opcode.OpBitXor:
		na, err := value.ToNumber(a, vm.table, vm)
		if err != nil {
			return value.Undefined, err
		}
		nb, err := value.ToNumber(b, vm.table, vm)
		if err != nil {
			return value.Undefined, err
		}
		ia, ib := value.ToInt32(na), value.ToInt32(nb)
		switch op {
		case opcode.OpShl:
			return value.Number(float64(ia << (uint32(ib) & 31))), nil
		case opcode.OpShr:
			return value.Number(float64(ia >> (uint32(ib) & 31))), nil
		case opcode.OpUShr:
			return value.Number(float64(uint32(ia) >> (uint32(ib) & 31))), nil
		case opcode.OpBitAnd:
			return value.Number(float64(ia & ib)), nil
		case opcode.OpBitOr:
			return value.Number(float64(ia | ib)), nil
		default:
			return value.Number(float64(ia ^ ib)), nil
		}
	}

	na, err := value.ToNumber(a, vm.table, vm)
	if err != nil {
		return value.Undefined, err
	}
	nb, err := value.ToNumber(b, vm.table, vm)
	if err != nil {
		return value.Undefined, err
	}
	switch op {
	case opcode.OpSub:
		return value.Number(na - nb), nil
	case opcode.OpMul:
		return value.Number(na * nb), nil
	case opcode.OpDiv:
		return value.Number(na / nb), nil
	case opcode.OpMod:
		return value.Number(math.Mod(na, nb)), nil
	case opcode.OpPow:
		return value.Number(math.Pow(na, nb)), nil
	}
	return value.Undefined, nil
}

// compareOp implements the relational operators' Abstract Relational
// Comparison (§4.2): string operands compare lexicographically, everything
// else compares as Number after ToPrimitive(hint Number).
func (vm *VM) compareOp(op opcode.Op, a, b value.Value) (value.Value, error) {
	pa, err := value.ToPrimitive(a, value.HintNumber, vm.table, vm)
	if err != nil {
		return value.Undefined, err
	}
	pb, err := value.ToPrimitive(b, value.HintNumber, vm.table, vm)
	if err != nil {
		return value.Undefined, err
	}
	if pa.IsString() && pb.IsString() {
		sa, sb := pa.AsString(), pb.AsString()
		var res bool
		switch op {
		case opcode.OpLt:
			res = sa.Less(sb)
		case opcode.OpLte:
			res = !sb.Less(sa)
		case opcode.OpGt:
			res = sb.Less(sa)
		default:
			res = !sa.Less(sb)
		}
		return value.Bool(res), nil
	}
	na, err := value.ToNumber(pa, vm.table, vm)
	if err != nil {
		return value.Undefined, err
	}
	nb, err := value.ToNumber(pb, vm.table, vm)
	if err != nil {
		return value.Undefined, err
	}
	if math.IsNaN(na) || math.IsNaN(nb) {
		return value.Bool(false), nil
	}
	var res bool
	switch op {
	case opcode.OpLt:
		res = na < nb
	case opcode.OpLte:
		res = na <= nb
	case opcode.OpGt:
		res = na > nb
	default:
		res = na >= nb
	}
	return value.Bool(res), nil
}

// instanceOf implements a instanceof ctor: ctor must be callable and carry
// a "prototype" property that appears somewhere on a's prototype chain.
func (vm *VM) instanceOf(a, ctor value.Value) (bool, error) {
	if !ctor.IsObject() || !ctor.IsCallable() {
		return false, value.NewTypeError("right-hand side of 'instanceof' is not callable")
	}
	if !a.IsObject() {
		return false, nil
	}
	protoVal, err := vm.getProperty(ctor, vm.table.Intern("prototype"))
	if err != nil {
		return false, err
	}
	if !protoVal.IsObject() {
		return false, value.NewTypeError("function has non-object prototype in instanceof check")
	}
	target := protoVal.AsObject()
	for p := a.AsObject().Prototype(); p != nil; p = p.Prototype() {
		if p == target {
			return true, nil
		}
	}
	return false, nil
}

// getProperty reads key off v after ToObject-coercing primitives (§4.4
// "reading a property off a primitive ToObjects it first, consults the
// matching prototype").
func (vm *VM) getProperty(v value.Value, key atom.Atom) (value.Value, error) {
	if v.IsObject() {
		return v.AsObject().Get(key, vm.table, v, vm)
	}
	o, err := value.ToObject(v, vm.table, vm.Realm.ProtoFor)
	if err != nil {
		return value.Undefined, err
	}
	return o.Get(key, vm.table, value.Obj(o), vm)
}

func (vm *VM) setProperty(v value.Value, key atom.Atom, val value.Value) error {
	if !v.IsObject() {
		// Writing a property onto a primitive is a silent no-op in
		// non-strict mode and a TypeError in strict mode; this engine
		// compiles everything as strict (§4.1 "treat all source as if
		// under 'use strict'"), matching the rest of the object model.
		return value.NewTypeError("cannot create property on %s", v.Kind())
	}
	_, err := v.AsObject().Set(key, val, vm.table, v.AsObject(), vm, true)
	return err
}

// spreadMarkerClass tags the wrapper object OP_SPREAD_MARKER produces so
// spliceSpreads can tell a plain argument/element from one that needs
// iterating out into zero or more slots.
const spreadMarkerClass = "%spread%"

func (vm *VM) wrapSpread(v value.Value) value.Value {
	o := value.NewObject(nil)
	o.SetClass(spreadMarkerClass)
	o.SetInternal("value", v)
	return value.Obj(o)
}

func isSpreadMarker(v value.Value) bool {
	return v.IsObject() && v.AsObject().Class() == spreadMarkerClass
}

// spliceSpreads expands any spread-marker entries of raw (each produced by
// OP_SPREAD_MARKER following its iterable's value) in place, used by
// NEW_ARRAY_SPREAD, CALL's spread-argument forms, and NEW's spread form
// alike (§4.6 "array literals, call arguments, and constructor arguments
// share one splice routine").
func (vm *VM) spliceSpreads(raw []value.Value) ([]value.Value, error) {
	out := make([]value.Value, 0, len(raw))
	for _, v := range raw {
		if !isSpreadMarker(v) {
			out = append(out, v)
			continue
		}
		inner, _ := v.AsObject().Internal("value")
		iv := inner.(value.Value)
		elems, err := vm.iterateToSlice(iv)
		if err != nil {
			return nil, err
		}
		out = append(out, elems...)
	}
	return out, nil
}

// iterateToSlice drains v's iterator protocol fully into a Go slice, used
// by spread and Array.from-style host helpers.
func (vm *VM) iterateToSlice(v value.Value) ([]value.Value, error) {
	if v.IsObject() && v.AsObject().Class() == "Array" {
		return v.AsObject().ArrayElements(vm.table), nil
	}
	iter, err := vm.getIterator(v)
	if err != nil {
		return nil, err
	}
	var out []value.Value
	for {
		val, done, err := vm.iterNext(iter)
		if err != nil {
			return nil, err
		}
		if done {
			return out, nil
		}
		out = append(out, val)
	}
}

// templateObject returns the cached strings array for a tagged-template
// call site, building and freezing it on first use (§4.6): the cooked
// quasis become the array's own elements, the raw quasis a frozen "raw"
// array hung off a non-writable "raw" property, and the whole thing frozen
// so the tag function can't observe or cause mutation across calls.
func (vm *VM) templateObject(code *value.CodeObject, idx int) value.Value {
	key := templateCacheKey{code: code, site: idx}
	if cached, ok := vm.templateCache.Get(key); ok {
		return cached.(value.Value)
	}

	site := code.TemplateSites[idx]
	cooked := make([]value.Value, len(site.Quasis))
	for i, q := range site.Quasis {
		cooked[i] = value.StrFromGo(q)
	}
	raw := make([]value.Value, len(site.Raw))
	for i, r := range site.Raw {
		raw[i] = value.StrFromGo(r)
	}

	rawArr := value.NewArrayObject(vm.Realm.ArrayProto, vm.table, raw)
	rawArr.Freeze()

	cookedArr := value.NewArrayObject(vm.Realm.ArrayProto, vm.table, cooked)
	cookedArr.SetData(vm.table.Intern("raw"), value.Obj(rawArr), vm.table, false, false, false)
	cookedArr.Freeze()

	v := value.Obj(cookedArr)
	vm.templateCache.Add(key, v)
	return v
}
