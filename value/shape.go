// Copyright 2024 The probejs Authors
// This file is part of probejs.

package value

import "github.com/probejs/probejs/atom"

// compactionMinDeleted is the absolute half of the threshold from §3:
// compaction runs once deleted_count >= 8 AND deleted_count >=
// live_count/2; the ratio half is checked inline where compaction is
// decided.
const compactionMinDeleted = 8

// Shape is the per-object mutable property-layout record (§3). Unlike
// engines that share an immutable shape graph across objects with identical
// transition histories, each Object here owns its Shape outright: deletion
// tombstones and compacts in place, trading shape sharing for predictable,
// local reclamation, exactly as the design notes in spec §9 call for.
type Shape struct {
	keys  []atom.Atom          // parallel to descs; atom.Invalid marks a tombstone
	descs []PropertyDescriptor // parallel to keys

	deletedCount int
}

func newShape() *Shape {
	return &Shape{}
}

// indexOf returns the live slot index holding key, or -1.
func (s *Shape) indexOf(key atom.Atom) int {
	for i, k := range s.keys {
		if k == key {
			return i
		}
	}
	return -1
}

// liveCount returns the number of non-tombstoned entries.
func (s *Shape) liveCount() int {
	return len(s.keys) - s.deletedCount
}

// needsCompaction reports whether the §3/§8 compaction threshold is met.
func (s *Shape) needsCompaction() bool {
	return s.deletedCount >= compactionMinDeleted && s.deletedCount*2 >= s.liveCount()
}

// append adds a brand-new live slot and returns its index.
func (s *Shape) append(key atom.Atom, desc PropertyDescriptor) int {
	s.keys = append(s.keys, key)
	s.descs = append(s.descs, desc)
	return len(s.keys) - 1
}

// tombstone marks slot i deleted.
func (s *Shape) tombstone(i int) {
	s.keys[i] = atom.Invalid
	s.deletedCount++
}

// orderedLiveIndices returns the live slot indices in their current storage
// (insertion) order, skipping tombstones. Used both for own_keys and for
// compaction.
func (s *Shape) orderedLiveIndices() []int {
	out := make([]int, 0, s.liveCount())
	for i, k := range s.keys {
		if k != atom.Invalid {
			out = append(out, i)
		}
	}
	return out
}
