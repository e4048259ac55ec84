// Copyright 2024 The probejs Authors
// This file is part of probejs.

package value

import "github.com/probejs/probejs/atom"

// Realm holds the shared prototype objects and global object a VM
// evaluates scripts against (§6 "one Context per Runtime"). It lives in
// this package (rather than runtime, which depends on vm, which depends on
// value) so ToObject's protoFor callback and error materialization can
// reference it without an import cycle.
type Realm struct {
	Table *atom.Table

	Global *Object

	ObjectProto   *Object
	FunctionProto *Object
	ArrayProto    *Object
	StringProto   *Object
	NumberProto   *Object
	BooleanProto  *Object
	SymbolProto   *Object
	BigIntProto   *Object
	ErrorProto    *Object
	RegExpProto   *Object
	PromiseProto  *Object
	IteratorProto *Object
	GeneratorProto *Object

	// ErrorProtos maps each error Kind ("TypeError", "RangeError", ...) to
	// its prototype, so MaterializeError can pick the right one.
	ErrorProtos map[string]*Object
}

// NewRealm allocates the prototype chain's skeleton; a runtime.Context
// populates the built-in methods onto each prototype after construction.
func NewRealm(table *atom.Table) *Realm {
	r := &Realm{Table: table, ErrorProtos: make(map[string]*Object)}
	r.ObjectProto = NewObject(nil)
	r.FunctionProto = NewObject(r.ObjectProto)
	r.ArrayProto = NewObject(r.ObjectProto)
	r.StringProto = NewObject(r.ObjectProto)
	r.NumberProto = NewObject(r.ObjectProto)
	r.BooleanProto = NewObject(r.ObjectProto)
	r.SymbolProto = NewObject(r.ObjectProto)
	r.BigIntProto = NewObject(r.ObjectProto)
	r.ErrorProto = NewObject(r.ObjectProto)
	r.RegExpProto = NewObject(r.ObjectProto)
	r.PromiseProto = NewObject(r.ObjectProto)
	r.IteratorProto = NewObject(r.ObjectProto)
	r.GeneratorProto = NewObject(r.IteratorProto)
	r.Global = NewObject(r.ObjectProto)
	return r
}

// ProtoFor implements the protoFor callback ToObject expects.
func (r *Realm) ProtoFor(k Kind) *Object {
	switch k {
	case KindNumber:
		return r.NumberProto
	case KindString:
		return r.StringProto
	case KindBoolean:
		return r.BooleanProto
	case KindSymbol:
		return r.SymbolProto
	case KindBigInt:
		return r.BigIntProto
	default:
		return r.ObjectProto
	}
}

// MaterializeError turns a ThrowError into a real Error object carrying a
// "message" property and the matching prototype, the bridge throw.go's doc
// comment describes between abstract-operation failures and script-visible
// throws.
func (r *Realm) MaterializeError(e *ThrowError) *Object {
	proto, ok := r.ErrorProtos[e.Kind]
	if !ok {
		proto = r.ErrorProto
	}
	o := NewObject(proto)
	o.class = "Error"
	o.SetData(r.Table.Intern("message"), StrFromGo(e.Message), r.Table, true, false, true)
	o.SetData(r.Table.Intern("name"), StrFromGo(e.Kind), r.Table, true, false, true)
	return o
}
