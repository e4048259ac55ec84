// Copyright 2024 The probejs Authors
// This file is part of probejs.

package vm

import "github.com/probejs/probejs/value"

// generatorState is the suspended-coroutine bookkeeping for one generator
// object, stored in the Generator object's internal slot. Suspension needs
// no goroutine: a generator frame only ever suspends directly in its own
// bytecode (YIELD/YIELD_STAR can't occur inside a callee's frame), so
// returning from vm.run leaves a fully snapshotted, resumable frame behind
// on the Go heap with nothing left on the Go call stack to preserve.
type generatorState struct {
	fr       *frame
	started  bool
	done     bool
	delegate value.Value // non-undefined while draining a yield* target
}

// newGeneratorObject builds the Generator instance a call to a generator
// function returns instead of running its body (§4.6): the frame is
// prepared but not started until the first .next() call.
func (vm *VM) newGeneratorObject(fnObj *value.Object, this value.Value, args []value.Value) *value.Object {
	fr := vm.prepareFrame(fnObj, this, args, value.Undefined)
	gs := &generatorState{fr: fr}

	g := value.NewObject(vm.Realm.GeneratorProto)
	g.SetClass("Generator")

	nextRec := &value.FunctionRecord{Kind: value.FuncNative, Name: "next"}
	nextRec.Native = func(ctx interface{}, this value.Value, args []value.Value) (value.Value, error) {
		v := value.Undefined
		if len(args) > 0 {
			v = args[0]
		}
		return vm.generatorNext(gs, v)
	}
	g.SetData(vm.table.Intern("next"), value.Obj(value.NewFunctionObject(nextRec, vm.Realm.FunctionProto)), vm.table, true, false, true)

	retRec := &value.FunctionRecord{Kind: value.FuncNative, Name: "return"}
	retRec.Native = func(ctx interface{}, this value.Value, args []value.Value) (value.Value, error) {
		v := value.Undefined
		if len(args) > 0 {
			v = args[0]
		}
		gs.done = true
		return vm.iterResult(v, true), nil
	}
	g.SetData(vm.table.Intern("return"), value.Obj(value.NewFunctionObject(retRec, vm.Realm.FunctionProto)), vm.table, true, false, true)

	throwRec := &value.FunctionRecord{Kind: value.FuncNative, Name: "throw"}
	throwRec.Native = func(ctx interface{}, this value.Value, args []value.Value) (value.Value, error) {
		errVal := value.Undefined
		if len(args) > 0 {
			errVal = args[0]
		}
		if gs.done || !gs.started {
			gs.done = true
			return value.Undefined, vm.valueToError(errVal)
		}
		if !vm.handleThrow(gs.fr, vm.valueToError(errVal)) {
			gs.done = true
			return value.Undefined, vm.valueToError(errVal)
		}
		return vm.driveFrame(gs, value.Undefined)
	}
	g.SetData(vm.table.Intern("throw"), value.Obj(value.NewFunctionObject(throwRec, vm.Realm.FunctionProto)), vm.table, true, false, true)

	return g
}

// generatorNext implements one call to generator.next(v) (§4.6): forward v
// into whatever this generator is currently suspended at — its own frame,
// or a yield*-delegated inner iterator.
func (vm *VM) generatorNext(gs *generatorState, v value.Value) (value.Value, error) {
	if gs.done {
		return vm.iterResult(value.Undefined, true), nil
	}
	if !gs.delegate.IsUndefined() {
		return vm.driveDelegate(gs, v)
	}
	return vm.driveFrame(gs, v)
}

// driveFrame resumes gs.fr (pushing v as the suspended YIELD's result
// value, unless the frame has never run at all) and interprets vm.run's
// outcome.
func (vm *VM) driveFrame(gs *generatorState, v value.Value) (value.Value, error) {
	if gs.started {
		gs.fr.push(v)
	}
	gs.started = true

	result, kind, suspendValue, err := vm.run(gs.fr)
	if err != nil {
		gs.done = true
		return value.Undefined, err
	}
	switch kind {
	case suspendYield:
		return vm.iterResult(suspendValue, false), nil
	case suspendYieldStar:
		iter, err := vm.getIterator(suspendValue)
		if err != nil {
			gs.done = true
			return value.Undefined, err
		}
		gs.delegate = iter
		return vm.driveDelegate(gs, value.Undefined)
	case suspendAwait:
		gs.done = true
		return value.Undefined, value.NewTypeError("await used inside a non-async generator")
	default:
		gs.done = true
		return vm.iterResult(result, true), nil
	}
}

// driveDelegate forwards v into the currently-delegated iterator; once it
// reports done, its final value resumes the outer generator frame as the
// `yield*` expression's own value.
func (vm *VM) driveDelegate(gs *generatorState, v value.Value) (value.Value, error) {
	val, done, err := vm.iterNextArg(gs.delegate, v)
	if err != nil {
		gs.done = true
		return value.Undefined, err
	}
	if !done {
		return vm.iterResult(val, false), nil
	}
	gs.delegate = value.Undefined
	return vm.driveFrame(gs, val)
}
