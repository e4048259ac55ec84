// Copyright 2024 The probejs Authors
// This file is part of probejs.

package value

import "unicode/utf16"

// String is the engine's immutable UTF-16 string representation. JS string
// indices, .length, and surrogate-pair semantics are all defined in terms of
// UTF-16 code units, not Unicode code points or UTF-8 bytes, so the engine
// cannot simply use a Go string internally without breaking index math for
// any text outside the Basic Multilingual Plane (e.g. emoji). There is no
// ecosystem UTF-16 library in the retrieval pack; unicode/utf16 is the
// standard conversion layer and is used only at the String/Go-string
// boundary, never as the internal representation.
type String struct {
	units []uint16
}

// NewString converts a Go (UTF-8) string into the engine's UTF-16
// representation.
func NewString(s string) String {
	return String{units: utf16.Encode([]rune(s))}
}

// StringFromUnits wraps an already-decoded UTF-16 unit slice. The caller
// must not mutate units afterward; String is immutable by contract.
func StringFromUnits(units []uint16) String {
	return String{units: units}
}

// Len returns the string length in UTF-16 code units, matching JS .length.
func (s String) Len() int { return len(s.units) }

// CharCodeAt returns the UTF-16 code unit at i, as used by String.charCodeAt.
func (s String) CharCodeAt(i int) (uint16, bool) {
	if i < 0 || i >= len(s.units) {
		return 0, false
	}
	return s.units[i], true
}

// Units exposes the raw UTF-16 units for iteration/slicing built-ins.
func (s String) Units() []uint16 { return s.units }

// Go converts back to a Go (UTF-8) string, replacing unpaired surrogates
// with the Unicode replacement character as utf16.Decode does.
func (s String) Go() string {
	return string(utf16.Decode(s.units))
}

// Concat returns the concatenation of s and other as a new String.
func (s String) Concat(other String) String {
	units := make([]uint16, 0, len(s.units)+len(other.units))
	units = append(units, s.units...)
	units = append(units, other.units...)
	return String{units: units}
}

// Slice returns the UTF-16 code-unit subrange [start, end).
func (s String) Slice(start, end int) String {
	if start < 0 {
		start = 0
	}
	if end > len(s.units) {
		end = len(s.units)
	}
	if start >= end {
		return String{}
	}
	units := make([]uint16, end-start)
	copy(units, s.units[start:end])
	return String{units: units}
}

// Equal implements exact UTF-16 unit equality, used by strict/SameValueZero
// string comparison.
func (s String) Equal(other String) bool {
	if len(s.units) != len(other.units) {
		return false
	}
	for i := range s.units {
		if s.units[i] != other.units[i] {
			return false
		}
	}
	return true
}

// Less implements the code-unit-wise ordering used by the `<`/`>` relational
// operators on strings.
func (s String) Less(other String) bool {
	n := len(s.units)
	if len(other.units) < n {
		n = len(other.units)
	}
	for i := 0; i < n; i++ {
		if s.units[i] != other.units[i] {
			return s.units[i] < other.units[i]
		}
	}
	return len(s.units) < len(other.units)
}
