// Copyright 2024 The probejs Authors
// This file is part of probejs.

package value

import "fmt"

// ThrowError is the Go-level carrier for a language-level throw originating
// from inside an abstract operation (ToPrimitive, ToNumber, ...) that has no
// access to the realm's Error prototypes (§7). The vm/runtime layer catches
// ThrowError and materializes a real Error instance from the realm's
// constructor for Kind before entering the normal exception-handler search
// of §4.8, so from script's point of view this is indistinguishable from a
// `throw new TypeError(...)`.
type ThrowError struct {
	Kind    string // "TypeError", "RangeError", "ReferenceError", "SyntaxError", ...
	Message string
}

func (e *ThrowError) Error() string { return e.Kind + ": " + e.Message }

func NewTypeError(format string, args ...interface{}) error {
	return &ThrowError{Kind: "TypeError", Message: fmt.Sprintf(format, args...)}
}

func NewRangeError(format string, args ...interface{}) error {
	return &ThrowError{Kind: "RangeError", Message: fmt.Sprintf(format, args...)}
}

func NewReferenceError(format string, args ...interface{}) error {
	return &ThrowError{Kind: "ReferenceError", Message: fmt.Sprintf(format, args...)}
}

func NewSyntaxError(format string, args ...interface{}) error {
	return &ThrowError{Kind: "SyntaxError", Message: fmt.Sprintf(format, args...)}
}
