// Copyright 2024 The probejs Authors
// This file is part of probejs.

package value

import "github.com/probejs/probejs/atom"

// PropertyKey identifies an own property. The engine represents it directly
// as an Atom: the atom table already distinguishes string atoms, symbol
// atoms, and canonical-index atoms (atom.Table.IsIndex), which is exactly
// the three-way split §3 asks PropertyKey to make, so introducing a second
// tagged type here would only duplicate that distinction.
type PropertyKey = atom.Atom

// PropertyDescriptor is a property's metadata as stored in a Shape entry.
// Exactly one of the data-slot or accessor-slot shapes is active, selected
// by IsAccessor — the two are mutually exclusive per §3.
type PropertyDescriptor struct {
	Writable     bool
	Enumerable   bool
	Configurable bool

	IsAccessor bool

	// Offset indexes into the owning Object's values[] slice when
	// IsAccessor is false.
	Offset int

	// Getter and Setter are function objects (or nil) when IsAccessor is
	// true.
	Getter *Object
	Setter *Object
}

// DataDescriptor builds a plain writable/enumerable/configurable data
// descriptor, the common case for object/array literal properties.
func DataDescriptor(writable, enumerable, configurable bool) PropertyDescriptor {
	return PropertyDescriptor{Writable: writable, Enumerable: enumerable, Configurable: configurable}
}

// AccessorDescriptor builds an accessor descriptor from a getter/setter
// pair, either of which may be nil.
func AccessorDescriptor(get, set *Object, enumerable, configurable bool) PropertyDescriptor {
	return PropertyDescriptor{
		IsAccessor:   true,
		Enumerable:   enumerable,
		Configurable: configurable,
		Getter:       get,
		Setter:       set,
	}
}
