// Copyright 2024 The probejs Authors
// This file is part of probejs.

package vm

import "github.com/probejs/probejs/value"

// makeClosure executes MAKE_CLOSURE: it reads the inner-code index and
// capture list that compileFunctionLiteral emitted, resolves each capture
// against the currently-running frame (sharing a cell for a captured
// local, forwarding an already-shared cell for a captured upvalue), and
// pushes the resulting Function object (§4.7 "closing over a binding from
// two levels up").
func (vm *VM) makeClosure(fr *frame) error {
	idx := fr.u16()
	code := fr.code.Inner[idx]

	upvalues := make([]*value.Upvalue, len(code.Upvalues))
	for i, desc := range code.Upvalues {
		isLocal := fr.byte() != 0
		index := fr.u16()
		if isLocal {
			upvalues[i] = fr.captureLocal(index)
		} else {
			upvalues[i] = fr.upvalues[index]
		}
		_ = desc
	}

	rec := &value.FunctionRecord{
		Kind:        value.FuncBytecode,
		Name:        code.Name,
		Length:      code.ParamCount,
		Code:        code,
		IsArrow:     code.IsArrow,
		IsAsync:     code.IsAsync,
		IsGenerator: code.IsGenerator,
		IsStrict:    true,
		Upvalues:    upvalues,
	}
	fnObj := value.NewFunctionObject(rec, vm.Realm.FunctionProto)

	if !code.IsArrow {
		proto := value.NewObject(vm.Realm.ObjectProto)
		proto.SetData(vm.table.Intern("constructor"), value.Obj(fnObj), vm.table, true, false, true)
		fnObj.SetData(vm.table.Intern("prototype"), value.Obj(proto), vm.table, true, false, false)
	}
	fnObj.SetData(vm.table.Intern("name"), value.StrFromGo(code.Name), vm.table, false, false, true)
	fnObj.SetData(vm.table.Intern("length"), value.Int(code.ParamCount), vm.table, false, false, true)

	fr.push(value.Obj(fnObj))
	return nil
}
