// Copyright 2024 The probejs Authors
// This file is part of probejs.

package atom

import "testing"

func TestInternIsStable(t *testing.T) {
	tab := NewTable()
	a := tab.Intern("length")
	b := tab.Intern("length")
	if a != b {
		t.Fatalf("Intern(%q) not stable: %d != %d", "length", a, b)
	}
	if name, isStr := tab.NameOf(a); !isStr || name != "length" {
		t.Fatalf("NameOf(%d) = %q, %v; want \"length\", true", a, name, isStr)
	}
}

func TestSymbolAtomAlwaysDistinct(t *testing.T) {
	tab := NewTable()
	a := tab.SymbolAtom("x")
	b := tab.SymbolAtom("x")
	if a == b {
		t.Fatalf("two SymbolAtom(%q) calls aliased to the same atom", "x")
	}
	if !tab.IsSymbol(a) || !tab.IsSymbol(b) {
		t.Fatalf("SymbolAtom results not marked as symbols")
	}
}

func TestWellKnownSymbolsAreStable(t *testing.T) {
	tab := NewTable()
	if tab.WellKnown(SymIterator) != NewTable().WellKnown(SymIterator) {
		t.Fatalf("well-known symbol atom differs across tables; expected fixed low-range layout")
	}
}

func TestIsIndex(t *testing.T) {
	tab := NewTable()
	cases := []struct {
		s       string
		wantIdx uint32
		wantOK  bool
	}{
		{"0", 0, true},
		{"1", 1, true},
		{"42", 42, true},
		{"007", 0, false},  // leading zero
		{"-1", 0, false},   // not digits
		{"abc", 0, false},
		{"4294967294", 4294967294, true},  // 2^32-2, still valid
		{"4294967295", 0, false},          // 2^32-1, out of range
	}
	for _, c := range cases {
		a := tab.Intern(c.s)
		idx, ok := tab.IsIndex(a)
		if ok != c.wantOK || (ok && idx != c.wantIdx) {
			t.Errorf("IsIndex(Intern(%q)) = %d, %v; want %d, %v", c.s, idx, ok, c.wantIdx, c.wantOK)
		}
	}
}

func TestPropertyKeyRoundTrip(t *testing.T) {
	tab := NewTable()
	a := tab.Intern("")
	if name, _ := tab.NameOf(a); name != "" {
		t.Fatalf("empty string atom round-trip failed: %q", name)
	}
}
