// Copyright 2024 The probejs Authors
// This file is part of probejs.

package vm

import (
	"github.com/probejs/probejs/promise"
	"github.com/probejs/probejs/value"
)

// wrapPromise builds the script-visible Promise object around a bare
// promise.Promise state machine, attaching then/catch/finally (§4.6) as
// native methods that each return a freshly derived promise.
func (vm *VM) wrapPromise(p *promise.Promise) *value.Object {
	o := value.NewObject(vm.Realm.PromiseProto)
	o.SetClass("Promise")
	o.SetInternal("promise", p)

	thenFn := value.NewFunctionObject(&value.FunctionRecord{
		Kind: value.FuncNative, Name: "then", Length: 2,
		Native: func(ctx interface{}, this value.Value, args []value.Value) (value.Value, error) {
			onFulfilled, onRejected := value.Undefined, value.Undefined
			if len(args) > 0 {
				onFulfilled = args[0]
			}
			if len(args) > 1 {
				onRejected = args[1]
			}
			return value.Obj(vm.derivePromise(p, onFulfilled, onRejected)), nil
		},
	}, vm.Realm.FunctionProto)
	o.SetData(vm.table.Intern("then"), value.Obj(thenFn), vm.table, true, false, true)

	catchFn := value.NewFunctionObject(&value.FunctionRecord{
		Kind: value.FuncNative, Name: "catch", Length: 1,
		Native: func(ctx interface{}, this value.Value, args []value.Value) (value.Value, error) {
			onRejected := value.Undefined
			if len(args) > 0 {
				onRejected = args[0]
			}
			return value.Obj(vm.derivePromise(p, value.Undefined, onRejected)), nil
		},
	}, vm.Realm.FunctionProto)
	o.SetData(vm.table.Intern("catch"), value.Obj(catchFn), vm.table, true, false, true)

	finallyFn := value.NewFunctionObject(&value.FunctionRecord{
		Kind: value.FuncNative, Name: "finally", Length: 1,
		Native: func(ctx interface{}, this value.Value, args []value.Value) (value.Value, error) {
			onFinally := value.Undefined
			if len(args) > 0 {
				onFinally = args[0]
			}
			derived, resolve, reject := promise.New(vm, vm.Realm, vm.EnqueueMicrotask)
			p.Then(
				func(v value.Value) {
					vm.runFinally(onFinally, func() { resolve(v) }, reject)
				},
				func(reason value.Value) {
					vm.runFinally(onFinally, func() { reject(reason) }, reject)
				},
			)
			return value.Obj(vm.wrapPromise(derived)), nil
		},
	}, vm.Realm.FunctionProto)
	o.SetData(vm.table.Intern("finally"), value.Obj(finallyFn), vm.table, true, false, true)

	return o
}

// derivePromise implements the common then/catch resolution logic: call
// whichever reaction handler applies, and resolve the derived promise with
// its return value (or pass the original value/reason through untouched
// when that handler wasn't supplied).
func (vm *VM) derivePromise(p *promise.Promise, onFulfilled, onRejected value.Value) *value.Object {
	derived, resolve, reject := promise.New(vm, vm.Realm, vm.EnqueueMicrotask)
	p.Then(
		func(v value.Value) {
			if !onFulfilled.IsCallable() {
				resolve(v)
				return
			}
			res, err := vm.CallValue(onFulfilled, value.Undefined, []value.Value{v}, value.Undefined)
			if err != nil {
				reject(vm.errorToValue(err))
				return
			}
			resolve(res)
		},
		func(reason value.Value) {
			if !onRejected.IsCallable() {
				reject(reason)
				return
			}
			res, err := vm.CallValue(onRejected, value.Undefined, []value.Value{reason}, value.Undefined)
			if err != nil {
				reject(vm.errorToValue(err))
				return
			}
			resolve(res)
		},
	)
	return vm.wrapPromise(derived)
}

// runFinally invokes onFinally (if callable) for its side effect only, then
// runs continue — unless onFinally itself throws, in which case that
// throw replaces the original outcome (§4.6 "finally propagates a handler
// exception ahead of the original settlement").
func (vm *VM) runFinally(onFinally value.Value, cont func(), reject func(value.Value)) {
	if onFinally.IsCallable() {
		if _, err := vm.CallValue(onFinally, value.Undefined, nil, value.Undefined); err != nil {
			reject(vm.errorToValue(err))
			return
		}
	}
	cont()
}
