// Copyright 2024 The probejs Authors
// This file is part of probejs.

package compiler

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/probejs/probejs/atom"
	"github.com/probejs/probejs/opcode"
	"github.com/probejs/probejs/parser"
	"github.com/probejs/probejs/value"
)

func compileOK(t *testing.T, src string) *value.CodeObject {
	t.Helper()
	prog, errs := parser.Parse("test.js", src)
	if len(errs) > 0 {
		t.Fatalf("parse(%q): %v", src, errs)
	}
	code, err := Compile(prog, "test.js", atom.NewTable())
	if err != nil {
		t.Fatalf("Compile(%q): %v", src, err)
	}
	return code
}

// funcFlags is the exported-only subset of CodeObject this file diffs with
// go-cmp — CodeObject.Constants holds value.Value, whose fields are
// unexported, so cmp.Diff on the CodeObject itself would panic without an
// Exporter option; comparing through this mirror sidesteps that entirely.
type funcFlags struct {
	IsAsync     bool
	IsGenerator bool
	IsArrow     bool
}

func TestTopLevelProgramEndsInHalt(t *testing.T) {
	code := compileOK(t, "1 + 1;")
	if len(code.Instructions) == 0 {
		t.Fatalf("empty instruction stream")
	}
	last := code.Instructions[len(code.Instructions)-1]
	if opcode.Op(last) != opcode.OpHalt {
		t.Fatalf("last opcode = %s, want %s", opcode.Op(last), opcode.OpHalt)
	}
}

func TestAsyncFunctionDeclarationCompilesAsyncInnerCode(t *testing.T) {
	code := compileOK(t, "async function f() { return 1; }")
	if len(code.Inner) != 1 {
		t.Fatalf("got %d inner code objects, want 1", len(code.Inner))
	}
	got := funcFlags{IsAsync: code.Inner[0].IsAsync, IsGenerator: code.Inner[0].IsGenerator, IsArrow: code.Inner[0].IsArrow}
	want := funcFlags{IsAsync: true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("async function's inner CodeObject flags mismatch (-want +got):\n%s", diff)
	}
}

func TestForOfLoopEmitsIteratorOpcodes(t *testing.T) {
	code := compileOK(t, "for (const x of xs) { break; }")
	for _, op := range []opcode.Op{opcode.OpGetIterator, opcode.OpIterNext} {
		if !bytes.Contains(code.Instructions, []byte{byte(op)}) {
			t.Fatalf("for-of bytecode missing %s:\n%v", op, code.Instructions)
		}
	}
}

func TestPrivateFieldMethodEmitsGetPrivate(t *testing.T) {
	code := compileOK(t, `class A {
		#x = 1;
		getX() { return this.#x; }
	}`)
	if len(code.ClassInfo) != 1 {
		t.Fatalf("got %d ClassInfo entries, want 1", len(code.ClassInfo))
	}
	ci := code.ClassInfo[0]
	var methodIdx = -1
	for _, m := range ci.Members {
		if m.Kind == "method" {
			methodIdx = m.InnerIdx
		}
	}
	if methodIdx < 0 {
		t.Fatalf("no method member found in compiled class; members: %+v", ci.Members)
	}
	inner := code.Inner[methodIdx]
	if !bytes.Contains(inner.Instructions, []byte{byte(opcode.OpGetPrivate)}) {
		t.Fatalf("getX() bytecode does not contain %s:\n%v", opcode.OpGetPrivate, inner.Instructions)
	}
}
