// Copyright 2024 The probejs Authors
// This file is part of probejs.

package vm

import (
	"fmt"
	"strings"

	"github.com/go-sourcemap/sourcemap"

	"github.com/probejs/probejs/value"
)

// SetSourceMap installs a source map consulted when materializing a stack
// trace for pre-compiled/minified input (§7): a bytecode position's line
// resolves through CodeObject.Lines as usual, then that generated-source
// line is remapped through data to the original source location. A nil or
// unparseable map falls back to the bytecode's own debug_info line table.
func (vm *VM) SetSourceMap(data []byte) error {
	consumer, err := sourcemap.Parse("", data)
	if err != nil {
		return err
	}
	vm.sourcemap = consumer
	return nil
}

// captureStack renders the frames currently on the native call stack
// (innermost first) into an Error.stack-style string.
func (vm *VM) captureStack() string {
	if len(vm.frames) == 0 {
		return ""
	}
	var b strings.Builder
	for i := len(vm.frames) - 1; i >= 0; i-- {
		fr := vm.frames[i]
		line := fr.code.LineFor(fr.pc)
		name := fr.code.Name
		if name == "" {
			name = "<anonymous>"
		}
		if vm.sourcemap != nil {
			if src, origName, origLine, _, ok := vm.sourcemap.Source(line, 0); ok {
				if origName != "" {
					name = origName
				}
				fmt.Fprintf(&b, "    at %s (%s:%d)\n", name, src, origLine)
				continue
			}
		}
		fmt.Fprintf(&b, "    at %s (%s:%d)\n", name, fr.code.Name, line)
	}
	return b.String()
}

// FrameInfo is the inspectable summary of one native call frame, returned
// by Frames for a host-facing debug surface (package inspector) that has
// no business reaching into the unexported frame type itself.
type FrameInfo struct {
	Name string
	Line int
	PC   int
}

// Frames returns the current native call stack, innermost last — the
// reverse of the innermost-first order captureStack renders, and
// structured instead of rendered.
func (vm *VM) Frames() []FrameInfo {
	infos := make([]FrameInfo, len(vm.frames))
	for i, fr := range vm.frames {
		name := fr.code.Name
		if name == "" {
			name = "<anonymous>"
		}
		infos[i] = FrameInfo{Name: name, Line: fr.code.LineFor(fr.pc), PC: fr.pc}
	}
	return infos
}

// attachStack sets a non-enumerable "stack" property on a materialized
// Error instance, the same record MaterializeError builds for a thrown
// *value.ThrowError.
func (vm *VM) attachStack(obj *value.Object) {
	stack := vm.captureStack()
	if stack == "" {
		return
	}
	header := obj.Class()
	if nameVal, err := obj.Get(vm.table.Intern("name"), vm.table, value.Obj(obj), vm); err == nil && nameVal.IsString() {
		header = nameVal.GoString()
	}
	obj.SetData(vm.table.Intern("stack"), value.StrFromGo(header+"\n"+stack), vm.table, true, false, true)
}
