// Copyright 2024 The probejs Authors
// This file is part of probejs.

package runtime_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/probejs/probejs/atom"
	"github.com/probejs/probejs/promise"
	"github.com/probejs/probejs/runtime"
	"github.com/probejs/probejs/value"
)

func newContext(t *testing.T) *runtime.Context {
	t.Helper()
	rt := runtime.New(runtime.DefaultConfig())
	return rt.CreateContext()
}

// An async function's call expression must itself evaluate to a Promise;
// a body that returns without awaiting has already fulfilled it when the
// call returns, and it holds the returned value after the microtask drain.
func TestAsyncFunctionReturnWrapsInPromise(t *testing.T) {
	c := newContext(t)
	result, err := c.Eval(`
		async function f() { return 42; }
		f();
	`, "test.js", runtime.ModeScript)
	require.NoError(t, err)
	require.True(t, result.IsObject())
	require.Equal(t, "Promise", result.AsObject().Class())

	raw, ok := result.AsObject().Internal("promise")
	require.True(t, ok)
	p := raw.(*promise.Promise)
	require.Equal(t, promise.Fulfilled, p.State(), "resolving with a non-thenable settles the promise before the call returns")

	c.RunMicrotasks()
	require.Equal(t, promise.Fulfilled, p.State())
	require.Equal(t, float64(42), p.Result().AsNumber())
}

// An uncaught throw inside an async function rejects its promise with the
// thrown value, rather than propagating as a Go error out of Eval.
func TestAsyncFunctionThrowWrapsInRejection(t *testing.T) {
	c := newContext(t)
	result, err := c.Eval(`
		async function f() { throw "boom"; }
		f();
	`, "test.js", runtime.ModeScript)
	require.NoError(t, err, "the throw is captured into the promise, not surfaced as a Go error")

	raw, ok := result.AsObject().Internal("promise")
	require.True(t, ok)
	p := raw.(*promise.Promise)

	c.RunMicrotasks()
	require.Equal(t, promise.Rejected, p.State())
	require.Equal(t, "boom", p.Result().AsString().Go())
}

// for-of must call the iterator's return() when the loop body exits via
// break, even though the fast-path array/string iterators never need it —
// so this test supplies a hand-built iterable with its own return().
func TestForOfBreakClosesIterator(t *testing.T) {
	c := newContext(t)
	realm := c.Realm()
	table := realm.Table

	closed := false
	iterable := value.NewObject(realm.ObjectProto)

	nextRec := &value.FunctionRecord{Kind: value.FuncNative, Name: "next", Native: func(ctx interface{}, this value.Value, args []value.Value) (value.Value, error) {
		result := value.NewObject(realm.ObjectProto)
		result.SetData(table.Intern("value"), value.Number(1), table, true, true, true)
		result.SetData(table.Intern("done"), value.Bool(false), table, true, true, true)
		return value.Obj(result), nil
	}}
	returnRec := &value.FunctionRecord{Kind: value.FuncNative, Name: "return", Native: func(ctx interface{}, this value.Value, args []value.Value) (value.Value, error) {
		closed = true
		result := value.NewObject(realm.ObjectProto)
		result.SetData(table.Intern("done"), value.Bool(true), table, true, true, true)
		return value.Obj(result), nil
	}}
	iteratorMethodRec := &value.FunctionRecord{Kind: value.FuncNative, Name: "[Symbol.iterator]", Native: func(ctx interface{}, this value.Value, args []value.Value) (value.Value, error) {
		return this, nil
	}}

	iterable.SetData(table.Intern("next"), value.Obj(value.NewFunctionObject(nextRec, realm.FunctionProto)), table, true, false, true)
	iterable.SetData(table.Intern("return"), value.Obj(value.NewFunctionObject(returnRec, realm.FunctionProto)), table, true, false, true)
	iterable.SetData(table.WellKnown(atom.SymIterator), value.Obj(value.NewFunctionObject(iteratorMethodRec, realm.FunctionProto)), table, true, false, true)

	realm.Global.SetData(table.Intern("iterable"), value.Obj(iterable), table, true, false, true)

	_, err := c.Eval(`for (const x of iterable) { break; }`, "test.js", runtime.ModeScript)
	require.NoError(t, err)
	require.True(t, closed, "breaking out of for-of must call the iterator's return()")
}

// A class's private field is only reachable through a brand carried by
// instances built from that class; a plain object lacking the brand must
// make private access throw a TypeError, even though it has no instance of
// its own (§4 private-field-brand-TypeError).
func TestPrivateFieldAccessOnUnbrandedObjectThrowsTypeError(t *testing.T) {
	c := newContext(t)
	_, err := c.Eval(`
		class A {
			#x = 1;
			static getX(o) { return o.#x; }
		}
		A.getX({});
	`, "test.js", runtime.ModeScript)
	require.Error(t, err)
	throwErr, ok := err.(*value.ThrowError)
	require.True(t, ok, "expected *value.ThrowError, got %T: %v", err, err)
	require.Equal(t, "TypeError", throwErr.Kind)
}
