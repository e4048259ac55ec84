// Copyright 2024 The probejs Authors
// This file is part of probejs.

package vm

import (
	"github.com/probejs/probejs/atom"
	"github.com/probejs/probejs/value"
)

// getIterator implements GetIterator (§4.6's iteration protocol): call
// v[@@iterator](), which must return an object with a callable "next".
// Arrays get a small built-in fast-path iterator instead of requiring a
// real @@iterator method to already be installed on Array.prototype.
func (vm *VM) getIterator(v value.Value) (value.Value, error) {
	if v.IsObject() && v.AsObject().Class() == "Array" {
		return value.Obj(vm.newArrayIterator(v.AsObject())), nil
	}
	if v.IsString() {
		return value.Obj(vm.newStringIterator(v.AsString())), nil
	}
	if !v.IsObject() {
		return value.Undefined, value.NewTypeError("%s is not iterable", v.Kind())
	}
	sym := vm.table.WellKnown(atom.SymIterator)
	fn, err := v.AsObject().Get(sym, vm.table, v, vm)
	if err != nil {
		return value.Undefined, err
	}
	if !fn.IsCallable() {
		return value.Undefined, value.NewTypeError("object is not iterable")
	}
	return vm.CallValue(fn, v, nil, value.Undefined)
}

// iterNext calls iter.next() and unpacks the {value, done} result object
// (§4.6). A generator object (vm/generator.go) implements "next" itself;
// everything else goes through the plain IteratorResult convention.
func (vm *VM) iterNext(iter value.Value) (value.Value, bool, error) {
	return vm.iterNextArg(iter, value.Undefined)
}

// iterNextArg is iterNext with an explicit argument to next(), the form
// yield*-delegation needs to forward a generator's inbound .next(v) into
// whatever iterator it is currently delegating to.
func (vm *VM) iterNextArg(iter value.Value, arg value.Value) (value.Value, bool, error) {
	if !iter.IsObject() {
		return value.Undefined, true, value.NewTypeError("iterator result is not an object")
	}
	nextFn, err := iter.AsObject().Get(vm.table.Intern("next"), vm.table, iter, vm)
	if err != nil {
		return value.Undefined, true, err
	}
	if !nextFn.IsCallable() {
		return value.Undefined, true, value.NewTypeError("iterator.next is not a function")
	}
	res, err := vm.CallValue(nextFn, iter, []value.Value{arg}, value.Undefined)
	if err != nil {
		return value.Undefined, true, err
	}
	if !res.IsObject() {
		return value.Undefined, true, value.NewTypeError("iterator result is not an object")
	}
	doneVal, err := res.AsObject().Get(vm.table.Intern("done"), vm.table, res, vm)
	if err != nil {
		return value.Undefined, true, err
	}
	valVal, err := res.AsObject().Get(vm.table.Intern("value"), vm.table, res, vm)
	if err != nil {
		return value.Undefined, true, err
	}
	return valVal, value.ToBoolean(doneVal), nil
}

// iterClose calls iter.return() if present, swallowing errors (§4.6
// "abrupt completion during iteration calls return() best-effort").
func (vm *VM) iterClose(iter value.Value) {
	if !iter.IsObject() {
		return
	}
	retFn, err := iter.AsObject().Get(vm.table.Intern("return"), vm.table, iter, vm)
	if err != nil || !retFn.IsCallable() {
		return
	}
	_, _ = vm.CallValue(retFn, iter, nil, value.Undefined)
}

// newArrayIterator builds a one-shot native iterator object walking arr's
// dense element run. Kept minimal (no IteratorProto method-sharing)
// because it never needs to be subclassed or inspected by script code
// beyond the next()/return() protocol.
func (vm *VM) newArrayIterator(arr *value.Object) *value.Object {
	i := 0
	o := value.NewObject(vm.Realm.IteratorProto)
	nextRec := &value.FunctionRecord{Kind: value.FuncNative, Name: "next"}
	nextRec.Native = func(ctx interface{}, this value.Value, args []value.Value) (value.Value, error) {
		n := arr.ArrayLength(vm.table)
		if i >= n {
			return vm.iterResult(value.Undefined, true), nil
		}
		elems := arr.ArrayElements(vm.table)
		v := elems[i]
		i++
		return vm.iterResult(v, false), nil
	}
	o.SetData(vm.table.Intern("next"), value.Obj(value.NewFunctionObject(nextRec, vm.Realm.FunctionProto)), vm.table, true, false, true)
	return o
}

func (vm *VM) newStringIterator(s value.String) *value.Object {
	units := s.Units()
	i := 0
	o := value.NewObject(vm.Realm.IteratorProto)
	nextRec := &value.FunctionRecord{Kind: value.FuncNative, Name: "next"}
	nextRec.Native = func(ctx interface{}, this value.Value, args []value.Value) (value.Value, error) {
		if i >= len(units) {
			return vm.iterResult(value.Undefined, true), nil
		}
		// Consume a surrogate pair as one code point, matching the
		// spec's "for...of over a string yields code points" rule.
		start := i
		i++
		if isHighSurrogate(units[start]) && i < len(units) && isLowSurrogate(units[i]) {
			i++
		}
		return vm.iterResult(value.Str(value.StringFromUnits(units[start:i])), false), nil
	}
	o.SetData(vm.table.Intern("next"), value.Obj(value.NewFunctionObject(nextRec, vm.Realm.FunctionProto)), vm.table, true, false, true)
	return o
}

func isHighSurrogate(u uint16) bool { return u >= 0xD800 && u <= 0xDBFF }
func isLowSurrogate(u uint16) bool  { return u >= 0xDC00 && u <= 0xDFFF }

// iterResult builds a plain {value, done} object.
func (vm *VM) iterResult(v value.Value, done bool) value.Value {
	o := value.NewObject(vm.Realm.ObjectProto)
	o.SetData(vm.table.Intern("value"), v, vm.table, true, true, true)
	o.SetData(vm.table.Intern("done"), value.Bool(done), vm.table, true, true, true)
	return value.Obj(o)
}
