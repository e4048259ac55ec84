// Copyright 2024 The probejs Authors
// This file is part of probejs.

package vm

import "github.com/probejs/probejs/value"

// buildClosureFromCode builds a Function object for code, resolving its
// capture list (code.Upvalues) against the frame currently executing
// MAKE_CLASS. Class members never get their own MAKE_CLOSURE instruction —
// unlike a plain function literal, a class body is compiled straight into
// one MAKE_CLASS opcode carrying a classInfo index — so this is the only
// place their captures are resolved, from the CodeObject's own recorded
// UpvalueDesc list instead of an inline byte stream.
func (vm *VM) buildClosureFromCode(fr *frame, code *value.CodeObject) *value.Object {
	upvalues := make([]*value.Upvalue, len(code.Upvalues))
	for i, desc := range code.Upvalues {
		if desc.IsLocal {
			upvalues[i] = fr.captureLocal(desc.Index)
		} else {
			upvalues[i] = fr.upvalues[desc.Index]
		}
	}
	rec := &value.FunctionRecord{
		Kind:        value.FuncBytecode,
		Name:        code.Name,
		Length:      code.ParamCount,
		Code:        code,
		IsAsync:     code.IsAsync,
		IsGenerator: code.IsGenerator,
		IsStrict:    true,
		Upvalues:    upvalues,
	}
	fnObj := value.NewFunctionObject(rec, vm.Realm.FunctionProto)
	fnObj.SetData(vm.table.Intern("name"), value.StrFromGo(code.Name), vm.table, false, false, true)
	fnObj.SetData(vm.table.Intern("length"), value.Int(code.ParamCount), vm.table, false, false, true)
	return fnObj
}

// buildDefaultConstructor synthesizes the implicit constructor a class
// without an explicit `constructor(...)` member gets (§4.5): a derived
// class forwards every argument to its parent via super(...args), a base
// class does nothing.
func (vm *VM) buildDefaultConstructor(parentCtor *value.Object) *value.Object {
	rec := &value.FunctionRecord{Kind: value.FuncNative, Name: "", Length: 0}
	rec.Native = func(ctx interface{}, this value.Value, args []value.Value) (value.Value, error) {
		if parentCtor != nil {
			return vm.CallValue(value.Obj(parentCtor), this, args, value.Undefined)
		}
		return value.Undefined, nil
	}
	return value.NewFunctionObject(rec, vm.Realm.FunctionProto)
}

// makeClass executes MAKE_CLASS: it pops the superclass-or-undefined
// operand compileClassLiteral always pushes first, builds the prototype
// chain, instantiates the constructor and every method/accessor/field from
// the enclosing CodeObject's ClassInfo entry, and pushes the finished
// constructor function (§4.5).
func (vm *VM) makeClass(fr *frame) error {
	superVal := fr.pop()
	idx := fr.u16()
	info := fr.code.ClassInfo[idx]

	var parentCtorObj, parentProto *value.Object
	if info.HasSuper {
		if !superVal.IsObject() || !superVal.IsCallable() {
			return value.NewTypeError("class extends value is not a constructor")
		}
		parentCtorObj = superVal.AsObject()
		protoVal, err := vm.getProperty(superVal, vm.table.Intern("prototype"))
		if err != nil {
			return err
		}
		if protoVal.IsObject() {
			parentProto = protoVal.AsObject()
		} else {
			parentProto = vm.Realm.ObjectProto
		}
	}

	proto := value.NewObject(vm.Realm.ObjectProto)
	if info.HasSuper {
		proto.SetPrototype(parentProto)
	}

	var ctorFn *value.Object
	if info.CtorInner >= 0 {
		ctorFn = vm.buildClosureFromCode(fr, fr.code.Inner[info.CtorInner])
	} else {
		ctorFn = vm.buildDefaultConstructor(parentCtorObj)
	}
	ctorFn.Function.Name = info.Name
	ctorFn.Function.IsClassConstructor = true
	ctorFn.Function.ClassParent = parentCtorObj
	if info.HasSuper {
		ctorFn.Function.HasSuperBinding = true
		ctorFn.Function.SuperProto = parentProto
		ctorFn.Function.SuperCtor = parentCtorObj
		ctorFn.SetPrototype(parentCtorObj)
	} else {
		ctorFn.SetPrototype(vm.Realm.FunctionProto)
	}
	ctorFn.SetData(vm.table.Intern("name"), value.StrFromGo(info.Name), vm.table, false, false, true)
	ctorFn.SetData(vm.table.Intern("prototype"), value.Obj(proto), vm.table, false, false, false)
	proto.SetData(vm.table.Intern("constructor"), value.Obj(ctorFn), vm.table, true, false, true)

	for _, m := range info.Members {
		target := proto
		if m.Static {
			target = ctorFn
		}
		switch m.Kind {
		case "field":
			if m.Static {
				v := value.Undefined
				if m.FieldInit >= 0 {
					thunk := vm.buildClosureFromCode(fr, fr.code.Inner[m.FieldInit])
					res, err := vm.CallValue(value.Obj(thunk), value.Obj(ctorFn), nil, value.Undefined)
					if err != nil {
						return err
					}
					v = res
				}
				if m.Private {
					ctorFn.DefinePrivateField(m.Key, v, vm.table)
				} else {
					ctorFn.SetData(m.Key, v, vm.table, true, true, true)
				}
			} else {
				var thunk *value.Object
				if m.FieldInit >= 0 {
					thunk = vm.buildClosureFromCode(fr, fr.code.Inner[m.FieldInit])
				}
				ctorFn.Function.InstanceFields = append(ctorFn.Function.InstanceFields, value.InstanceFieldInit{Key: m.Key, Thunk: thunk})
			}
		case "method":
			methodFn := vm.buildClosureFromCode(fr, fr.code.Inner[m.InnerIdx])
			methodFn.Function.HomeObject = target
			if info.HasSuper {
				methodFn.Function.HasSuperBinding = true
				methodFn.Function.SuperProto = parentProto
				methodFn.Function.SuperCtor = parentCtorObj
			}
			if m.Private {
				target.DefinePrivateField(m.Key, value.Obj(methodFn), vm.table)
			} else {
				target.SetData(m.Key, value.Obj(methodFn), vm.table, true, false, true)
			}
		case "get", "set":
			accessorFn := vm.buildClosureFromCode(fr, fr.code.Inner[m.InnerIdx])
			accessorFn.Function.HomeObject = target
			if info.HasSuper {
				accessorFn.Function.HasSuperBinding = true
				accessorFn.Function.SuperProto = parentProto
				accessorFn.Function.SuperCtor = parentCtorObj
			}
			existing, _ := target.GetOwn(m.Key, vm.table)
			if m.Kind == "get" {
				target.DefineOwn(m.Key, value.AccessorDescriptor(accessorFn, existing.Setter, false, true), vm.table)
			} else {
				target.DefineOwn(m.Key, value.AccessorDescriptor(existing.Getter, accessorFn, false, true), vm.table)
			}
		}
	}

	fr.push(value.Obj(ctorFn))
	return nil
}
