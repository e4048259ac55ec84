// Copyright 2024 The probejs Authors
// This file is part of probejs.

package value

import (
	"fmt"
	"sort"

	"github.com/probejs/probejs/atom"
)

// maxProtoWalk bounds prototype-chain traversal so a malformed cycle (one
// that slipped past SetPrototype's own cycle rejection) still terminates
// instead of looping forever — the "thread-local visited set... or a depth
// counter capped at ~1,000 links" design note in §9.
const maxProtoWalk = 1000

// denseIndexLimit is the highest array index stored as an ordinary shape
// slot. Indices at or beyond this bound go to the sparse map instead, so a
// holey assignment like `a[1_000_000] = 1` doesn't force a million shape
// slots to exist.
const denseIndexLimit = 1000

// Object is the engine's heap object (§3): a shape, the parallel values it
// indexes into, an optional sparse map for large/holey integer indices, a
// prototype link, and a handful of state flags.
type Object struct {
	shape  *Shape
	values []Value

	sparse map[uint32]Value

	proto *Object // nil means the null prototype

	extensible bool
	sealed     bool
	frozen     bool

	class string // e.g. "Object", "Array", "Error" — used by Object.prototype.toString

	// Function is non-nil when this object is callable (§4.9, §3).
	Function *FunctionRecord

	// internal holds host-defined internal slots for built-ins (boxed
	// primitive payloads, Map/Set backing stores, RegExp compiled state)
	// that the core treats opaquely — it never inspects internal itself,
	// only ferries it between the built-in registration contract and the
	// VM's special-object opcodes.
	internal map[string]interface{}
}

// NewObject creates a plain extensible object with the given prototype
// (nil for Object.prototype-less / Object.create(null) objects).
func NewObject(proto *Object) *Object {
	return &Object{
		shape:      newShape(),
		proto:      proto,
		extensible: true,
		class:      "Object",
	}
}

// Class returns the object's class tag.
func (o *Object) Class() string { return o.class }

// SetClass sets the object's class tag; used by built-in constructors.
func (o *Object) SetClass(c string) { o.class = c }

// Prototype returns the object's prototype link, or nil for null.
func (o *Object) Prototype() *Object { return o.proto }

// Extensible reports whether new own properties may be added.
func (o *Object) Extensible() bool { return o.extensible }

// PreventExtensions clears the extensible flag (Object.preventExtensions).
func (o *Object) PreventExtensions() { o.extensible = false }

// Seal marks every own property non-configurable and prevents extension.
func (o *Object) Seal() {
	o.extensible = false
	o.sealed = true
	for i := range o.shape.descs {
		if o.shape.keys[i] != atom.Invalid {
			o.shape.descs[i].Configurable = false
		}
	}
}

// Freeze seals and additionally marks every data property non-writable.
func (o *Object) Freeze() {
	o.Seal()
	o.frozen = true
	for i := range o.shape.descs {
		if o.shape.keys[i] != atom.Invalid && !o.shape.descs[i].IsAccessor {
			o.shape.descs[i].Writable = false
		}
	}
}

func (o *Object) IsSealed() bool { return o.sealed }
func (o *Object) IsFrozen() bool { return o.frozen }

func (o *Object) Internal(key string) (interface{}, bool) {
	v, ok := o.internal[key]
	return v, ok
}

func (o *Object) SetInternal(key string, v interface{}) {
	if o.internal == nil {
		o.internal = make(map[string]interface{})
	}
	o.internal[key] = v
}

func (o *Object) debugTag() string {
	return fmt.Sprintf("[object %s]", o.class)
}

// ---------------------------------------------------------------------------
// GetOwn / Get
// ---------------------------------------------------------------------------

// GetOwn implements get_own(obj, key) -> Option<PropertyDescriptor> (§4.3):
// it consults the sparse index map for out-of-shape integer keys, then the
// shape, skipping tombstoned slots.
func (o *Object) GetOwn(key atom.Atom, table *atom.Table) (PropertyDescriptor, bool) {
	if idx, ok := table.IsIndex(key); ok {
		if _, ok := o.sparse[idx]; ok {
			return PropertyDescriptor{Writable: true, Enumerable: true, Configurable: true, Offset: -1}, true
		}
	}
	i := o.shape.indexOf(key)
	if i < 0 {
		return PropertyDescriptor{}, false
	}
	return o.shape.descs[i], true
}

// GetOwnValue returns the stored value for an own data property, reading
// through the sparse map when the descriptor marks Offset == -1.
func (o *Object) GetOwnValue(key atom.Atom, table *atom.Table, desc PropertyDescriptor) Value {
	if desc.Offset == -1 {
		if idx, ok := table.IsIndex(key); ok {
			return o.sparse[idx]
		}
	}
	return o.values[desc.Offset]
}

// Get implements get(obj, key, receiver) -> Value (§4.3): it walks the
// prototype chain (cycle-tolerant, §9), invoking an accessor's getter with
// receiver bound as `this`.
func (o *Object) Get(key atom.Atom, table *atom.Table, receiver Value, call Caller) (Value, error) {
	cur := o
	for depth := 0; cur != nil && depth < maxProtoWalk; depth, cur = depth+1, cur.proto {
		desc, ok := cur.GetOwn(key, table)
		if !ok {
			continue
		}
		if desc.IsAccessor {
			if desc.Getter == nil {
				return Undefined, nil
			}
			return call.Call(Obj(desc.Getter), receiver, nil)
		}
		return cur.GetOwnValue(key, table, desc), nil
	}
	return Undefined, nil
}

// Caller is the narrow seam Get/Set use to invoke accessor functions
// without importing the vm package (which itself imports value), avoiding
// an import cycle. The VM supplies the real implementation; tests can
// supply a stub.
type Caller interface {
	Call(fn, this Value, args []Value) (Value, error)
}

// ---------------------------------------------------------------------------
// Set
// ---------------------------------------------------------------------------

// Set implements set(obj, key, value, receiver) -> bool (§4.3), following
// the simplified walk the spec prescribes: an own data property is written
// directly if writable; an own accessor invokes its setter; otherwise the
// prototype chain is walked, and a non-writable data property or a
// setter-less accessor anywhere up the chain refuses the write; if none of
// the chain owns the key, the property is created fresh on receiver.
func (o *Object) Set(key atom.Atom, val Value, table *atom.Table, receiver *Object, call Caller, strict bool) (bool, error) {
	cur := o
	for depth := 0; cur != nil && depth < maxProtoWalk; depth, cur = depth+1, cur.proto {
		desc, ok := cur.GetOwn(key, table)
		if !ok {
			continue
		}
		if desc.IsAccessor {
			if desc.Setter == nil {
				return false, nil
			}
			_, err := call.Call(Obj(desc.Setter), Obj(receiver), []Value{val})
			return err == nil, err
		}
		if cur == receiver {
			if !desc.Writable {
				return false, nil
			}
			cur.writeOwn(key, val, table, desc)
			return true, nil
		}
		if !desc.Writable {
			return false, nil
		}
		break // found a writable data property up the chain; fall through to create-on-receiver
	}
	if !receiver.extensible {
		return false, nil
	}
	receiver.defineDataFast(key, val, table, true, true, true)
	return true, nil
}

// writeOwn overwrites the value backing an existing own data property.
func (o *Object) writeOwn(key atom.Atom, val Value, table *atom.Table, desc PropertyDescriptor) {
	if desc.Offset == -1 {
		if idx, ok := table.IsIndex(key); ok {
			o.sparse[idx] = val
			return
		}
	}
	o.values[desc.Offset] = val
}

// defineDataFast creates or overwrites a data property without going through
// the full DefineOwn validation — used by Set's create-on-receiver path and
// by literal/array construction in the compiler-facing helpers below.
func (o *Object) defineDataFast(key atom.Atom, val Value, table *atom.Table, writable, enumerable, configurable bool) {
	if idx, ok := table.IsIndex(key); ok && idx >= denseIndexLimit {
		if o.sparse == nil {
			o.sparse = make(map[uint32]Value)
		}
		o.sparse[idx] = val
		if i := o.shape.indexOf(key); i < 0 {
			o.shape.append(key, PropertyDescriptor{Writable: writable, Enumerable: enumerable, Configurable: configurable, Offset: -1})
		}
		return
	}
	if i := o.shape.indexOf(key); i >= 0 {
		o.values[o.shape.descs[i].Offset] = val
		o.shape.descs[i].Writable = writable
		o.shape.descs[i].Enumerable = enumerable
		o.shape.descs[i].Configurable = configurable
		return
	}
	o.values = append(o.values, val)
	o.shape.append(key, PropertyDescriptor{Writable: writable, Enumerable: enumerable, Configurable: configurable, Offset: len(o.values) - 1})
}

// SetData is the public convenience entry point used by native built-ins
// and the VM's class-field initialization to install a plain data property,
// bypassing the full prototype-walking Set semantics.
func (o *Object) SetData(key atom.Atom, val Value, table *atom.Table, writable, enumerable, configurable bool) {
	o.defineDataFast(key, val, table, writable, enumerable, configurable)
}

// ---------------------------------------------------------------------------
// DefineOwn
// ---------------------------------------------------------------------------

// DefineOwn implements define_own(obj, key, descriptor) -> bool (§4.3), a
// simplified form of ECMA-262 9.1.6 ValidateAndApplyPropertyDescriptor: it
// enforces the configurability/writability transition rules that the
// testable properties in §8 actually exercise (delete refusal for
// non-configurable, attribute narrowing on a non-configurable property)
// without reproducing every partial-descriptor merge edge case.
func (o *Object) DefineOwn(key atom.Atom, desc PropertyDescriptor, table *atom.Table) bool {
	i := o.shape.indexOf(key)
	if i < 0 {
		if !o.extensible {
			return false
		}
		if desc.IsAccessor {
			o.shape.append(key, desc)
			return true
		}
		o.values = append(o.values, Undefined)
		desc.Offset = len(o.values) - 1
		o.shape.append(key, desc)
		return true
	}
	existing := o.shape.descs[i]
	if !existing.Configurable {
		if desc.Configurable {
			return false
		}
		if existing.IsAccessor != desc.IsAccessor {
			return false
		}
		if !existing.IsAccessor && !existing.Writable && desc.Writable {
			return false
		}
	}
	if desc.IsAccessor {
		o.shape.descs[i] = desc
		return true
	}
	if existing.Offset >= 0 {
		desc.Offset = existing.Offset
	} else {
		o.values = append(o.values, Undefined)
		desc.Offset = len(o.values) - 1
	}
	o.shape.descs[i] = desc
	return true
}

// ---------------------------------------------------------------------------
// Delete / compaction
// ---------------------------------------------------------------------------

// Delete implements delete(obj, key) -> bool (§4.3): refuses non-
// configurable properties, otherwise tombstones the shape slot and runs
// compaction once the §3/§8 threshold is crossed.
func (o *Object) Delete(key atom.Atom, table *atom.Table) bool {
	i := o.shape.indexOf(key)
	if i < 0 {
		return true // deleting a non-existent property always succeeds
	}
	if !o.shape.descs[i].Configurable {
		return false
	}
	if idx, ok := table.IsIndex(key); ok {
		delete(o.sparse, idx)
	}
	o.shape.tombstone(i)
	if o.shape.needsCompaction() {
		o.compact()
	}
	return true
}

// compact rebuilds shape.keys/descs and values, dropping tombstones and
// renumbering data-slot offsets, restoring deleted_count == 0 and
// values.length == live_count (§3, §8).
func (o *Object) compact() {
	live := o.shape.orderedLiveIndices()
	newKeys := make([]atom.Atom, 0, len(live))
	newDescs := make([]PropertyDescriptor, 0, len(live))
	newValues := make([]Value, 0, len(o.values))

	for _, i := range live {
		key, desc := o.shape.keys[i], o.shape.descs[i]
		if !desc.IsAccessor && desc.Offset >= 0 {
			newValues = append(newValues, o.values[desc.Offset])
			desc.Offset = len(newValues) - 1
		}
		newKeys = append(newKeys, key)
		newDescs = append(newDescs, desc)
	}
	o.shape.keys = newKeys
	o.shape.descs = newDescs
	o.shape.deletedCount = 0
	o.values = newValues
}

// ---------------------------------------------------------------------------
// OwnKeys
// ---------------------------------------------------------------------------

// OwnKeys implements own_keys(obj) -> ordered list (§4.3): ascending integer
// indices, then string keys in insertion order, then symbol keys in
// insertion order, omitting tombstones (§8's key-order testable property).
func (o *Object) OwnKeys(table *atom.Table) []atom.Atom {
	var indices []uint32
	var strings []atom.Atom
	var symbols []atom.Atom

	seenIndex := make(map[uint32]bool)
	for idx := range o.sparse {
		indices = append(indices, idx)
		seenIndex[idx] = true
	}
	for _, i := range o.shape.orderedLiveIndices() {
		key := o.shape.keys[i]
		if idx, ok := table.IsIndex(key); ok {
			if !seenIndex[idx] {
				indices = append(indices, idx)
				seenIndex[idx] = true
			}
			continue
		}
		if table.IsSymbol(key) {
			symbols = append(symbols, key)
		} else {
			strings = append(strings, key)
		}
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	out := make([]atom.Atom, 0, len(indices)+len(strings)+len(symbols))
	for _, idx := range indices {
		out = append(out, table.Intern(fmt.Sprintf("%d", idx)))
	}
	out = append(out, strings...)
	out = append(out, symbols...)
	return out
}

// ---------------------------------------------------------------------------
// Prototype
// ---------------------------------------------------------------------------

// SetPrototype implements set_prototype(obj, proto) -> bool (§4.3): it
// fails if obj is non-extensible, or if installing proto would create a
// cycle reachable from obj.
func (o *Object) SetPrototype(proto *Object) bool {
	if o.proto == proto {
		return true
	}
	if !o.extensible {
		return false
	}
	for p := proto; p != nil; p = p.proto {
		if p == o {
			return false
		}
	}
	o.proto = proto
	return true
}

// ---------------------------------------------------------------------------
// Private fields / brand check (§4.3)
// ---------------------------------------------------------------------------

// DefinePrivateField installs a private field as an ordinary data property
// keyed by the class's unique per-field symbol atom, reusing the same shape
// machinery as public properties.
func (o *Object) DefinePrivateField(brand atom.Atom, val Value, table *atom.Table) {
	o.defineDataFast(brand, val, table, true, false, false)
}

// HasBrand implements the brand-check operation: an object carries a
// class's private field iff it owns a property keyed by that field's brand
// atom. This is what makes `o.#x` on a foreign object a TypeError (§8
// example 4) rather than silently reading undefined.
func (o *Object) HasBrand(brand atom.Atom) bool {
	return o.shape.indexOf(brand) >= 0
}

// GetPrivate reads a private field's value, given the brand already
// checked.
func (o *Object) GetPrivate(brand atom.Atom, table *atom.Table) (Value, bool) {
	desc, ok := o.GetOwn(brand, table)
	if !ok {
		return Undefined, false
	}
	return o.GetOwnValue(brand, table, desc), true
}

// SetPrivate writes a private field's value, given the brand already
// checked.
func (o *Object) SetPrivate(brand atom.Atom, val Value, table *atom.Table) {
	if i := o.shape.indexOf(brand); i >= 0 {
		o.values[o.shape.descs[i].Offset] = val
	}
}
