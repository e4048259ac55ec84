// Copyright 2024 The probejs Authors
// This file is part of probejs.

package vm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/probejs/probejs/atom"
	"github.com/probejs/probejs/compiler"
	"github.com/probejs/probejs/parser"
	"github.com/probejs/probejs/promise"
	"github.com/probejs/probejs/value"
	"github.com/probejs/probejs/vm"
)

// evalSource parses, compiles, and runs src against a fresh VM/Realm —
// vm imports neither compiler nor parser, so this external test package can
// drive a real end-to-end eval without creating an import cycle.
func evalSource(t *testing.T, src string) (value.Value, *vm.VM, error) {
	t.Helper()
	table := atom.NewTable()
	prog, errs := parser.Parse("test.js", src)
	require.Empty(t, errs)

	realm := value.NewRealm(table)
	code, err := compiler.Compile(prog, "test.js", table)
	require.NoError(t, err)

	v := vm.New(realm)
	rec := &value.FunctionRecord{Kind: value.FuncBytecode, Name: "<script>", Code: code, IsStrict: true}
	fnObj := value.NewFunctionObject(rec, realm.FunctionProto)
	result, err := v.CallValue(value.Obj(fnObj), value.Obj(realm.Global), nil, value.Undefined)
	return result, v, err
}

func TestVMPrivateFieldAccessOnUnbrandedObjectThrowsTypeError(t *testing.T) {
	_, _, err := evalSource(t, `
		class A {
			#x = 1;
			static getX(o) { return o.#x; }
		}
		A.getX({});
	`)
	require.Error(t, err)
	throwErr, ok := err.(*value.ThrowError)
	require.True(t, ok, "expected *value.ThrowError, got %T: %v", err, err)
	require.Equal(t, "TypeError", throwErr.Kind)
}

func TestVMAsyncFunctionReturnWrapsInPromise(t *testing.T) {
	result, v, err := evalSource(t, `
		async function f() { return 1 + 2; }
		f();
	`)
	require.NoError(t, err)
	require.True(t, result.IsObject())
	require.Equal(t, "Promise", result.AsObject().Class())

	v.RunMicrotasks()

	raw, ok := result.AsObject().Internal("promise")
	require.True(t, ok)
	p := raw.(*promise.Promise)
	require.Equal(t, promise.Fulfilled, p.State())
	require.Equal(t, float64(3), p.Result().AsNumber())
}
