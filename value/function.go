// Copyright 2024 The probejs Authors
// This file is part of probejs.

package value

import "github.com/probejs/probejs/atom"

// FunctionKind distinguishes the three function variants of §3.
type FunctionKind uint8

const (
	FuncBytecode FunctionKind = iota
	FuncNative
	FuncBound
)

// NativeFunc is the registration-contract callback signature from §1/§6:
// "(ctx, this, args) -> Result<Value, Error>". ctx is an opaque handle
// (the concrete *runtime.Context) so this package never imports runtime,
// which in turn imports value — native implementations type-assert it back
// to their concrete context type.
type NativeFunc func(ctx interface{}, this Value, args []Value) (Value, error)

// FunctionRecord is the callable payload of a Function-variant Object
// (§3 "Function (variant of Object)").
type FunctionRecord struct {
	Kind FunctionKind
	Name string
	// Length is the function's advertised arity (the non-enumerable
	// .length property, §4.9).
	Length int

	// Bytecode-function fields.
	Code               *CodeObject
	IsArrow            bool
	IsAsync            bool
	IsGenerator        bool
	IsStrict           bool
	IsClassConstructor bool
	HomeObject         *Object
	Upvalues           []*Upvalue
	ParentScope        *Upvalue // reserved for closures that capture `this` et al. via a synthetic cell

	// Native-function fields.
	Native NativeFunc

	// Bound-function fields (§4.9): forwards to Target, composing
	// bound-this and prepending BoundArgs.
	BoundTarget *Object
	BoundThis   Value
	BoundArgs   []Value

	// ClassParent links a class constructor to its `extends` parent
	// constructor, nil for base classes.
	ClassParent *Object

	// PrivateBrand is the per-class symbol atom installed on every
	// instance so private-field access can brand-check (§4.3); zero for
	// non-class functions.
	PrivateBrand atom.Atom

	// HasSuperBinding, SuperProto, and SuperCtor back the %super%/
	// %superctor% locals compileClassMethod declares at fixed slots 2/3:
	// the VM populates them from here when it builds this function's call
	// frame, the same way it populates `this`/new.target at slots 0/1.
	HasSuperBinding bool
	SuperProto      *Object
	SuperCtor       *Object

	// InstanceFields lists this constructor's own (non-static) field
	// initializers in declaration order, each already a closure bound to
	// the class's defining scope; Thunk is nil for a field with no
	// initializer (§4.5). Populated only on class-constructor functions.
	InstanceFields []InstanceFieldInit
}

// InstanceFieldInit pairs a class field's key with the zero-argument
// closure that computes its initial value against `this`.
type InstanceFieldInit struct {
	Key   atom.Atom
	Thunk *Object
}

// Upvalue is a shared-lifetime cell referenced by every closure capturing
// the same variable (§3, §4.6, §9). Mutating it through one closure is
// visible through every other closure sharing the cell.
type Upvalue struct {
	Value   Value
	IsConst bool
	// TDZ marks a let/const binding that has not yet executed its
	// initializer. No opcode checks it, so reading such a binding does
	// not throw.
	TDZ bool
}

// NewFunctionObject wraps rec as a callable Object with the given
// prototype (normally Function.prototype).
func NewFunctionObject(rec *FunctionRecord, proto *Object) *Object {
	o := NewObject(proto)
	o.class = "Function"
	o.Function = rec
	return o
}
