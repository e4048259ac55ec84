// Copyright 2024 The probejs Authors
// This file is part of probejs.

package parser

import (
	"testing"

	"github.com/kylelemons/godebug/pretty"

	"github.com/probejs/probejs/ast"
)

func mustParse(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, errs := Parse("test.js", src)
	if len(errs) > 0 {
		t.Fatalf("Parse(%q): %v", src, errs)
	}
	return prog
}

// shape is a plain, exported-only mirror of the handful of AST fields each
// test below cares about; comparing through it rather than the ast nodes
// directly keeps pretty.Compare's diff readable and avoids tripping over
// unexported fields the ast package's base type carries.
type shape struct {
	Kind     string
	IsAsync  bool
	IsGen    bool
	Static   bool
	Private  bool
}

func TestAsyncFunctionDeclaration(t *testing.T) {
	prog := mustParse(t, "async function f() { return 1; }")
	if len(prog.Body) != 1 {
		t.Fatalf("got %d statements, want 1", len(prog.Body))
	}
	decl, ok := prog.Body[0].(*ast.FunctionDeclaration)
	if !ok {
		t.Fatalf("statement is %T, want *ast.FunctionDeclaration", prog.Body[0])
	}
	got := shape{Kind: "function", IsAsync: decl.Fn.IsAsync, IsGen: decl.Fn.IsGen}
	want := shape{Kind: "function", IsAsync: true, IsGen: false}
	if diff := pretty.Compare(want, got); diff != "" {
		t.Fatalf("async function shape mismatch (-want +got):\n%s", diff)
	}
}

func TestForOfStatement(t *testing.T) {
	prog := mustParse(t, "for (const x of xs) { break; }")
	if len(prog.Body) != 1 {
		t.Fatalf("got %d statements, want 1", len(prog.Body))
	}
	stmt, ok := prog.Body[0].(*ast.ForInOfStatement)
	if !ok {
		t.Fatalf("statement is %T, want *ast.ForInOfStatement", prog.Body[0])
	}
	if !stmt.IsOf {
		t.Fatalf("for-of statement parsed with IsOf=false")
	}
	block, ok := stmt.Body.(*ast.BlockStatement)
	if !ok || len(block.Body) != 1 {
		t.Fatalf("for-of body = %#v, want a single break statement", stmt.Body)
	}
	if _, ok := block.Body[0].(*ast.BreakStatement); !ok {
		t.Fatalf("for-of body statement is %T, want *ast.BreakStatement", block.Body[0])
	}
}

func TestClassWithPrivateFieldAndStaticMethod(t *testing.T) {
	prog := mustParse(t, `class A {
		#x = 1;
		static getX(o) { return o.#x; }
	}`)
	decl, ok := prog.Body[0].(*ast.ClassDeclaration)
	if !ok {
		t.Fatalf("statement is %T, want *ast.ClassDeclaration", prog.Body[0])
	}
	if len(decl.Class.Members) != 2 {
		t.Fatalf("got %d class members, want 2", len(decl.Class.Members))
	}

	field := decl.Class.Members[0]
	gotField := shape{Kind: field.Kind, Private: field.Private, Static: field.Static}
	wantField := shape{Kind: "field", Private: true, Static: false}
	if diff := pretty.Compare(wantField, gotField); diff != "" {
		t.Fatalf("private field member shape mismatch (-want +got):\n%s", diff)
	}
	if _, ok := field.Key.(*ast.PrivateName); !ok {
		t.Fatalf("private field key is %T, want *ast.PrivateName", field.Key)
	}

	method := decl.Class.Members[1]
	gotMethod := shape{Kind: method.Kind, Static: method.Static, Private: method.Private}
	wantMethod := shape{Kind: "method", Static: true, Private: false}
	if diff := pretty.Compare(wantMethod, gotMethod); diff != "" {
		t.Fatalf("static method member shape mismatch (-want +got):\n%s", diff)
	}
}
