// Copyright 2024 The probejs Authors
// This file is part of probejs.
//
// probejs is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package atom implements the engine's interned property-key table.
//
// Every string-valued property key or identifier that passes through the
// lexer, parser, compiler, or VM is interned into a small-integer Atom.
// Distinct logical keys always map to distinct Atoms, and the same logical
// key always maps to the same Atom, so property lookups and variable
// resolution can compare integers instead of strings.
//
// Well-known symbols occupy a fixed low range of the Atom space so that
// opcodes referencing them (e.g. @@iterator) can be encoded as small
// constants baked into the compiler rather than looked up at runtime.
package atom

import (
	"sync"

	"github.com/google/uuid"
)

// Atom is an interned property-key handle. The zero Atom is never valid;
// Table.Intern never returns it.
type Atom uint32

// Invalid is returned by lookups that find nothing.
const Invalid Atom = 0

// WellKnownSymbol identifies one of the fixed set of built-in symbols
// (@@iterator, @@asyncIterator, @@toPrimitive, ...) that the spec requires
// to have stable identity across the runtime's lifetime.
type WellKnownSymbol int

const (
	SymIterator WellKnownSymbol = iota
	SymAsyncIterator
	SymToPrimitive
	SymToStringTag
	SymHasInstance
	SymIsConcatSpreadable
	SymSpecies
	SymUnscopables
	SymMatch
	SymMatchAll
	SymReplace
	SymSearch
	SymSplit
	SymRegistered
	SymTypeofDescriptor
	numWellKnownSymbols
)

var wellKnownNames = [numWellKnownSymbols]string{
	SymIterator:           "Symbol.iterator",
	SymAsyncIterator:      "Symbol.asyncIterator",
	SymToPrimitive:        "Symbol.toPrimitive",
	SymToStringTag:        "Symbol.toStringTag",
	SymHasInstance:        "Symbol.hasInstance",
	SymIsConcatSpreadable: "Symbol.isConcatSpreadable",
	SymSpecies:            "Symbol.species",
	SymUnscopables:        "Symbol.unscopables",
	SymMatch:              "Symbol.match",
	SymMatchAll:           "Symbol.matchAll",
	SymReplace:            "Symbol.replace",
	SymSearch:             "Symbol.search",
	SymSplit:              "Symbol.split",
	SymRegistered:         "Symbol.for",
	SymTypeofDescriptor:   "Symbol.typeofDescriptor",
}

// entry is the reverse-lookup payload for one interned atom.
type entry struct {
	// str holds the source string for a string atom and the description
	// for a symbol atom.
	str string
	// isSymbol marks entries created via SymbolAtom rather than Intern.
	isSymbol bool
	// index holds the canonical u32 index this atom represents, for atoms
	// that were interned from a canonical numeric-index string.
	index    uint32
	hasIndex bool

	// uuid gives a symbol atom an external identity beyond the table-local
	// index (§4.3 "brand-check"). It is minted fresh when the table creates
	// the atom, so it is unique but not reproduced by another table or
	// across process restarts. Empty for non-symbols.
	uuid string
}

// Table is the runtime-owned interning table. A Table is safe for concurrent
// use even though a single Context never executes concurrently, because the
// embedder may intern atoms (e.g. registering natives) from outside the VM
// loop.
type Table struct {
	mu      sync.RWMutex
	byStr   map[string]Atom
	entries []entry // entries[0] is the invalid sentinel

	wellKnown [numWellKnownSymbols]Atom
}

// NewTable creates an atom table pre-populated with the well-known symbols
// in the fixed low range described by the package doc.
func NewTable() *Table {
	t := &Table{
		byStr:   make(map[string]Atom, 256),
		entries: make([]entry, 1, 256), // index 0 reserved for Invalid
	}
	for i := WellKnownSymbol(0); i < numWellKnownSymbols; i++ {
		t.entries = append(t.entries, entry{str: wellKnownNames[i], isSymbol: true, uuid: uuid.NewString()})
		t.wellKnown[i] = Atom(len(t.entries) - 1)
	}
	return t
}

// WellKnown returns the Atom for one of the fixed well-known symbols.
func (t *Table) WellKnown(sym WellKnownSymbol) Atom {
	return t.wellKnown[sym]
}

// Intern returns the Atom for s, creating one if s has never been seen.
// Numeric strings that canonically represent a u32 array index (no leading
// zeros, "0" itself allowed, value < 2^32-1) are recorded as index atoms so
// IsIndex can answer in O(1) without re-parsing the string.
func (t *Table) Intern(s string) Atom {
	t.mu.RLock()
	if a, ok := t.byStr[s]; ok {
		t.mu.RUnlock()
		return a
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if a, ok := t.byStr[s]; ok {
		return a
	}
	e := entry{str: s}
	if idx, ok := canonicalIndex(s); ok {
		e.index, e.hasIndex = idx, true
	}
	t.entries = append(t.entries, e)
	a := Atom(len(t.entries) - 1)
	t.byStr[s] = a
	return a
}

// SymbolAtom interns a freshly created, unique Symbol with the given
// (possibly empty) description. Unlike Intern, two calls with the same
// description never alias to the same Atom: each call mints a new identity,
// matching JS `Symbol("x") !== Symbol("x")`.
func (t *Table) SymbolAtom(description string) Atom {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entry{str: description, isSymbol: true, uuid: uuid.NewString()})
	return Atom(len(t.entries) - 1)
}

// UUID returns the external identity minted for a symbol atom (see
// entry.uuid); ok is false for a string atom or an unrecognized index.
func (t *Table) UUID(a Atom) (id string, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(a) <= 0 || int(a) >= len(t.entries) {
		return "", false
	}
	e := t.entries[a]
	return e.uuid, e.isSymbol
}

// NameOf returns the source string (or symbol description) behind a.
func (t *Table) NameOf(a Atom) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(a) <= 0 || int(a) >= len(t.entries) {
		return "", false
	}
	e := t.entries[a]
	return e.str, !e.isSymbol
}

// IsSymbol reports whether a was minted via SymbolAtom or WellKnown rather
// than Intern.
func (t *Table) IsSymbol(a Atom) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(a) <= 0 || int(a) >= len(t.entries) {
		return false
	}
	return t.entries[a].isSymbol
}

// IsIndex reports whether a was interned from a canonical u32 index string,
// returning that index.
func (t *Table) IsIndex(a Atom) (uint32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(a) <= 0 || int(a) >= len(t.entries) {
		return 0, false
	}
	e := t.entries[a]
	return e.index, e.hasIndex
}

// canonicalIndex parses s as a canonical u32 array index: digits only, no
// leading zero unless s == "0", and value < 2^32-1 (the max array length is
// 2^32-1, so the maximum valid index is one less).
func canonicalIndex(s string) (uint32, bool) {
	if s == "" {
		return 0, false
	}
	if s == "0" {
		return 0, true
	}
	if s[0] == '0' {
		return 0, false
	}
	var v uint64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + uint64(c-'0')
		if v >= 1<<32-1 {
			return 0, false
		}
	}
	return uint32(v), true
}
