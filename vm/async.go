// Copyright 2024 The probejs Authors
// This file is part of probejs.

package vm

import (
	"github.com/probejs/probejs/promise"
	"github.com/probejs/probejs/value"
)

// callAsync runs an async function's frame up to its first AWAIT (or to
// completion, if it never awaits), returning the Promise a call to it is
// observed as producing (§4.6) immediately rather than blocking the
// calling goroutine: nothing here ever spawns a goroutine of its own,
// since AWAIT — like YIELD — can only ever suspend the currently-running
// frame's own bytecode (vm/generator.go's doc comment explains why that
// makes a plain heap-resident frame enough to resume from later).
func (vm *VM) callAsync(fnObj *value.Object, this value.Value, args []value.Value) (value.Value, error) {
	fr := vm.prepareFrame(fnObj, this, args, value.Undefined)
	p, resolve, reject := promise.New(vm, vm.Realm, vm.EnqueueMicrotask)
	vm.stepAsync(fr, resolve, reject, value.Undefined, false)
	return value.Obj(vm.wrapPromise(p)), nil
}

// stepAsync runs fr until it either completes, throws, or hits another
// AWAIT, wiring whichever happens to resolve/reject. push selects whether
// resumeValue should be pushed onto fr's stack first — true for every
// resumption after the initial call, matching the suspended AWAIT/YIELD
// expression's "this is the value it evaluates to" contract.
func (vm *VM) stepAsync(fr *frame, resolve, reject func(value.Value), resumeValue value.Value, push bool) {
	if push {
		fr.push(resumeValue)
	}

	result, kind, suspendValue, err := vm.run(fr)
	if err != nil {
		reject(vm.errorToValue(err))
		return
	}

	switch kind {
	case suspendAwait:
		inner, _, _ := promise.New(vm, vm.Realm, vm.EnqueueMicrotask)
		inner.Resolve(suspendValue)
		inner.Then(
			func(v value.Value) { vm.stepAsync(fr, resolve, reject, v, true) },
			func(reason value.Value) {
				if vm.handleThrow(fr, vm.valueToError(reason)) {
					vm.stepAsync(fr, resolve, reject, value.Undefined, false)
					return
				}
				reject(reason)
			},
		)
	case suspendYield, suspendYieldStar:
		reject(value.Obj(vm.Realm.MaterializeError(&value.ThrowError{
			Kind: "SyntaxError", Message: "yield used inside an async function",
		})))
	default:
		resolve(result)
	}
}
