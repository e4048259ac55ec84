// Copyright 2024 The probejs Authors
// This file is part of probejs.

// Package fault captures internal invariant violations — a compiler bug
// manifesting as a malformed-bytecode decode fault, an opcode dispatch
// hitting a state the compiler should never have produced — with enough
// context (a Go stack trace) that an embedder's crash log shows where
// inside the engine the fault originated, not just the message a
// *value.ThrowError would otherwise carry alone.
package fault

import (
	"fmt"

	"github.com/go-stack/stack"
)

// Violation is an internal engine invariant violation: something the
// compiler or VM's own contracts should have made impossible.
type Violation struct {
	Message string
	Stack   stack.CallStack
}

func (v *Violation) Error() string {
	return fmt.Sprintf("probejs: internal invariant violation: %s\n%+v", v.Message, v.Stack)
}

// New captures the caller's stack (skipping New's own frame) and wraps
// format/args as the violation message.
func New(format string, args ...interface{}) *Violation {
	return &Violation{
		Message: fmt.Sprintf(format, args...),
		Stack:   stack.Trace().TrimBelow(stack.Caller(1)).TrimRuntime(),
	}
}
