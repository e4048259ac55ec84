// Copyright 2024 The probejs Authors
// This file is part of probejs.

package vm

import (
	"github.com/probejs/probejs/opcode"
	"github.com/probejs/probejs/value"
)

// dispatchCall pops [this, fn, arg0..argN-1] (spread args already spliced
// for OP_SPREAD_CALL), resolves fn's variant, and invokes it, pushing the
// result. Optional-call forms (a?.()) short-circuit to undefined when fn
// is nullish instead of throwing.
func (vm *VM) dispatchCall(fr *frame, op opcode.Op, argc int) error {
	raw := fr.popN(argc)
	fn := fr.pop()
	this := fr.pop()

	if op == opcode.OpCallOptional && fn.IsNullish() {
		fr.push(value.Undefined)
		return nil
	}
	if op == opcode.OpCallOptional && this.IsNullish() {
		// `a?.b()` where a?. already short-circuited the member read to
		// undefined; fn would then be undefined too and is handled above,
		// but a bare optional call on a plain identifier leaves `this`
		// undefined and fn as the resolved callee — nothing further to do.
	}

	var args []value.Value
	if op == opcode.OpSpreadCall {
		var err error
		args, err = vm.spliceSpreads(raw)
		if err != nil {
			return err
		}
	} else {
		args = raw
	}

	if !fn.IsCallable() {
		return value.NewTypeError("%s is not a function", fn.Kind())
	}

	res, err := vm.CallValue(fn, this, args, value.Undefined)
	if err != nil {
		return err
	}
	fr.push(res)
	return nil
}

// dispatchNew pops [ctor, arg0..argN-1] and performs [[Construct]].
func (vm *VM) dispatchNew(fr *frame, op opcode.Op, argc int) error {
	raw := fr.popN(argc)
	ctor := fr.pop()

	var args []value.Value
	if op == opcode.OpSpreadNew {
		var err error
		args, err = vm.spliceSpreads(raw)
		if err != nil {
			return err
		}
	} else {
		args = raw
	}

	res, err := vm.Construct(ctor, args)
	if err != nil {
		return err
	}
	fr.push(res)
	return nil
}

// CallValue implements [[Call]] for all three function variants (§3/§4.9).
func (vm *VM) CallValue(fn, this value.Value, args []value.Value, newTarget value.Value) (value.Value, error) {
	if !fn.IsObject() || fn.AsObject().Function == nil {
		return value.Undefined, value.NewTypeError("%s is not a function", fn.Kind())
	}
	rec := fn.AsObject().Function

	switch rec.Kind {
	case value.FuncNative:
		return rec.Native(vm, this, args)
	case value.FuncBound:
		boundArgs := append(append([]value.Value{}, rec.BoundArgs...), args...)
		return vm.CallValue(value.Obj(rec.BoundTarget), rec.BoundThis, boundArgs, newTarget)
	case value.FuncBytecode:
		return vm.callBytecode(fn.AsObject(), this, args, newTarget)
	}
	return value.Undefined, value.NewTypeError("unknown function variant")
}

// Construct implements [[Construct]] (§4.9): ordinary objects get a fresh
// instance linked to ctor.prototype, class constructors additionally chain
// to their parent via Super() before running their own body.
func (vm *VM) Construct(ctor value.Value, args []value.Value) (value.Value, error) {
	if !ctor.IsObject() || ctor.AsObject().Function == nil {
		return value.Undefined, value.NewTypeError("%s is not a constructor", ctor.Kind())
	}
	rec := ctor.AsObject().Function
	if rec.Kind == value.FuncBound {
		boundArgs := append(append([]value.Value{}, rec.BoundArgs...), args...)
		return vm.Construct(value.Obj(rec.BoundTarget), boundArgs)
	}
	if rec.IsArrow || rec.IsGenerator || rec.IsAsync {
		return value.Undefined, value.NewTypeError("%s is not a constructor", rec.Name)
	}

	protoVal, err := vm.getProperty(ctor, vm.table.Intern("prototype"))
	if err != nil {
		return value.Undefined, err
	}
	proto := vm.Realm.ObjectProto
	if protoVal.IsObject() {
		proto = protoVal.AsObject()
	}
	instance := value.NewObject(proto)

	if err := vm.runFieldInitializers(ctor.AsObject(), value.Obj(instance)); err != nil {
		return value.Undefined, err
	}

	var res value.Value
	if rec.Kind == value.FuncNative {
		res, err = rec.Native(vm, value.Obj(instance), args)
	} else {
		res, err = vm.callBytecode(ctor.AsObject(), value.Obj(instance), args, ctor)
	}
	if err != nil {
		return value.Undefined, err
	}
	if res.IsObject() {
		return res, nil
	}
	return value.Obj(instance), nil
}

// runFieldInitializers runs the entire ancestor chain's own (non-static)
// field initializers against instance, root class first, so a derived
// class's fields can see fields its parent already installed (§4.5
// simplified: the real spec interleaves field init with each super() call
// as it returns; this engine runs the whole chain up front instead — see
// the super()/field-ordering entry in DESIGN.md).
func (vm *VM) runFieldInitializers(ctor *value.Object, instance value.Value) error {
	var chain []*value.Object
	for c := ctor; c != nil; c = c.Function.ClassParent {
		chain = append(chain, c)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		rec := chain[i].Function
		for _, fld := range rec.InstanceFields {
			var v value.Value
			if fld.Thunk != nil {
				var err error
				v, err = vm.CallValue(value.Obj(fld.Thunk), instance, nil, value.Undefined)
				if err != nil {
					return err
				}
			} else {
				v = value.Undefined
			}
			instance.AsObject().SetData(fld.Key, v, vm.table, true, true, true)
		}
	}
	return nil
}

// callBytecode builds a frame for a bytecode function and runs it,
// wrapping generator/async bodies in their own driver instead of running
// to completion directly.
func (vm *VM) callBytecode(fnObj *value.Object, this value.Value, args []value.Value, newTarget value.Value) (value.Value, error) {
	rec := fnObj.Function
	if rec.IsGenerator {
		return value.Obj(vm.newGeneratorObject(fnObj, this, args)), nil
	}
	if rec.IsAsync {
		return vm.callAsync(fnObj, this, args)
	}

	vm.depth++
	defer func() { vm.depth-- }()
	if vm.depth > vm.callDepthLimit() {
		return value.Undefined, value.NewRangeError("call stack size exceeded")
	}

	fr := vm.prepareFrame(fnObj, this, args, newTarget)
	res, kind, _, err := vm.run(fr)
	if kind != suspendNone {
		return value.Undefined, value.NewTypeError("yield/await used outside of a generator/async function")
	}
	return res, err
}

// prepareFrame allocates a frame and binds `this`, `new.target`, and
// positional/rest parameters into its locals array per the parameter
// layout declareParam compiled (§4.7).
func (vm *VM) prepareFrame(fnObj *value.Object, this value.Value, args []value.Value, newTarget value.Value) *frame {
	rec := fnObj.Function
	fr := newFrame(rec.Code, fnObj, rec.Upvalues)

	localIdx := 0
	if !rec.IsArrow {
		fr.locals[0] = this
		fr.locals[1] = newTarget
		localIdx = 2
		if rec.HasSuperBinding {
			fr.locals[2] = value.Obj(rec.SuperProto)
			fr.locals[3] = value.Obj(rec.SuperCtor)
			localIdx = 4
		}
	}
	for i := 0; i < rec.Code.ParamCount; i++ {
		if rec.Code.HasRestParam && i == rec.Code.ParamCount-1 {
			break
		}
		if i < len(args) {
			fr.locals[localIdx] = args[i]
		} else {
			fr.locals[localIdx] = value.Undefined
		}
		localIdx++
	}
	if rec.Code.HasRestParam {
		start := rec.Code.ParamCount - 1
		var rest []value.Value
		if start < len(args) {
			rest = append(rest, args[start:]...)
		}
		fr.locals[localIdx] = value.Obj(value.NewArrayObject(vm.Realm.ArrayProto, vm.table, rest))
	}
	return fr
}
