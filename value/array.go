// Copyright 2024 The probejs Authors
// This file is part of probejs.

package value

import (
	"fmt"

	"github.com/probejs/probejs/atom"
)

// NewArrayObject builds an Array-class object from elems, storing each at
// its integer-index property key and installing a non-enumerable "length"
// (§4.4's Array exotic object, simplified to the ordinary-object property
// model the rest of this package already uses for indexed access).
func NewArrayObject(proto *Object, table *atom.Table, elems []Value) *Object {
	o := NewObject(proto)
	o.class = "Array"
	for i, v := range elems {
		key := table.Intern(fmt.Sprintf("%d", i))
		o.defineDataFast(key, v, table, true, true, true)
	}
	o.setLength(table, len(elems))
	return o
}

func (o *Object) setLength(table *atom.Table, n int) {
	key := table.Intern("length")
	o.defineDataFast(key, Int(n), table, true, false, false)
}

// ArrayLength reads the "length" own property as an int, 0 if absent or
// non-numeric.
func (o *Object) ArrayLength(table *atom.Table) int {
	key := table.Intern("length")
	desc, ok := o.GetOwn(key, table)
	if !ok {
		return 0
	}
	v := o.GetOwnValue(key, table, desc)
	if !v.IsNumber() {
		return 0
	}
	return int(v.AsNumber())
}

// ArrayPush appends v at the current length and bumps length.
func (o *Object) ArrayPush(table *atom.Table, v Value) {
	n := o.ArrayLength(table)
	key := table.Intern(fmt.Sprintf("%d", n))
	o.defineDataFast(key, v, table, true, true, true)
	o.setLength(table, n+1)
}

// ArrayElements reads back the dense element run [0, length) as a slice,
// used wherever host code needs a Go-native view (spread splicing, the
// array fast-path iterator).
func (o *Object) ArrayElements(table *atom.Table) []Value {
	n := o.ArrayLength(table)
	out := make([]Value, n)
	for i := 0; i < n; i++ {
		key := table.Intern(fmt.Sprintf("%d", i))
		if desc, ok := o.GetOwn(key, table); ok {
			out[i] = o.GetOwnValue(key, table, desc)
		} else {
			out[i] = Undefined
		}
	}
	return out
}
