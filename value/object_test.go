// Copyright 2024 The probejs Authors
// This file is part of probejs.

package value

import (
	"testing"

	"github.com/probejs/probejs/atom"
)

type nullCaller struct{}

func (nullCaller) Call(fn, this Value, args []Value) (Value, error) { return Undefined, nil }

func TestOwnKeysOrder(t *testing.T) {
	tab := atom.NewTable()
	o := NewObject(nil)
	o.SetData(tab.Intern("b"), Int(1), tab, true, true, true)
	o.SetData(tab.Intern("2"), Int(2), tab, true, true, true)
	o.SetData(tab.Intern("a"), Int(3), tab, true, true, true)
	o.SetData(tab.Intern("0"), Int(4), tab, true, true, true)
	sym := tab.SymbolAtom("s")
	o.DefineOwn(sym, DataDescriptor(true, true, true), tab)

	keys := o.OwnKeys(tab)
	var names []string
	for _, k := range keys {
		n, isStr := tab.NameOf(k)
		if !isStr {
			names = append(names, "@@sym")
			continue
		}
		names = append(names, n)
	}
	want := []string{"0", "2", "b", "a", "@@sym"}
	if len(names) != len(want) {
		t.Fatalf("OwnKeys = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("OwnKeys[%d] = %q, want %q (full: %v)", i, names[i], want[i], names)
		}
	}
}

func TestDeleteTombstonesAndCompacts(t *testing.T) {
	tab := atom.NewTable()
	o := NewObject(nil)
	for i := 0; i < 10; i++ {
		o.SetData(tab.Intern("p"+string(rune('0'+i))), Int(i), tab, true, true, true)
	}
	for i := 0; i < 8; i++ {
		if !o.Delete(tab.Intern("p"+string(rune('0'+i))), tab) {
			t.Fatalf("delete p%d failed", i)
		}
	}
	keys := o.OwnKeys(tab)
	if len(keys) != 2 {
		t.Fatalf("after deleting p0..p7, OwnKeys = %d entries, want 2", len(keys))
	}
	n8, _ := tab.NameOf(keys[0])
	n9, _ := tab.NameOf(keys[1])
	if n8 != "p8" || n9 != "p9" {
		t.Fatalf("OwnKeys after compaction = [%s %s], want [p8 p9]", n8, n9)
	}
	desc, ok := o.GetOwn(tab.Intern("p8"), tab)
	if !ok {
		t.Fatalf("p8 missing after compaction")
	}
	if v := o.GetOwnValue(tab.Intern("p8"), tab, desc); v.AsNumber() != 8 {
		t.Fatalf("p8 value after compaction = %v, want 8", v.GoString())
	}
}

func TestDeleteRefusesNonConfigurable(t *testing.T) {
	tab := atom.NewTable()
	o := NewObject(nil)
	key := tab.Intern("x")
	o.DefineOwn(key, DataDescriptor(true, true, false), tab)
	if o.Delete(key, tab) {
		t.Fatalf("Delete succeeded on a non-configurable property")
	}
	if _, ok := o.GetOwn(key, tab); !ok {
		t.Fatalf("non-configurable property vanished despite refused delete")
	}
}

func TestPrototypeCycleTolerance(t *testing.T) {
	tab := atom.NewTable()
	a := NewObject(nil)
	b := NewObject(nil)
	if !a.SetPrototype(b) {
		t.Fatalf("a.SetPrototype(b) should succeed")
	}
	if b.SetPrototype(a) {
		t.Fatalf("b.SetPrototype(a) should be refused: would create a cycle")
	}
	// Force a cycle directly to exercise Get's cycle tolerance even when
	// SetPrototype's own guard is bypassed (simulating a corrupted chain).
	b.proto = a
	v, err := a.Get(tab.Intern("missing"), tab, Obj(a), nullCaller{})
	if err != nil || !v.IsUndefined() {
		t.Fatalf("Get on a prototype cycle should terminate with undefined, got %v, %v", v.GoString(), err)
	}
}

func TestSameValueZero(t *testing.T) {
	nan := Number(nanValue())
	if !SameValueZero(nan, nan) {
		t.Fatalf("SameValueZero(NaN, NaN) should be true")
	}
	if StrictEquals(nan, nan) {
		t.Fatalf("StrictEquals(NaN, NaN) should be false")
	}
	if !SameValueZero(Number(0), Number(negZero())) {
		t.Fatalf("SameValueZero(+0, -0) should be true")
	}
}

func nanValue() float64 {
	var zero float64
	return zero / zero
}

func negZero() float64 {
	var zero float64
	return zero * -1
}
