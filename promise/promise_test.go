// Copyright 2024 The probejs Authors
// This file is part of probejs.

package promise

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/probejs/probejs/atom"
	"github.com/probejs/probejs/value"
)

// fakeCaller drives a thenable's "then" method the way vm.VM.Call does,
// without pulling in the vm package (vm imports promise, so this package's
// tests cannot import vm back).
type fakeCaller struct{}

func (fakeCaller) Call(fn, this value.Value, args []value.Value) (value.Value, error) {
	rec := fn.AsObject().Function
	return rec.Native(nil, this, args)
}

func newTestRealm() *value.Realm {
	return value.NewRealm(atom.NewTable())
}

// drain runs every job a Scheduler has queued, including ones a job itself
// enqueues, mirroring vm.VM.RunMicrotasks's drain-to-empty contract.
func newScheduler() (schedule Scheduler, drain func()) {
	var queue []func()
	schedule = func(fn func()) { queue = append(queue, fn) }
	drain = func() {
		for len(queue) > 0 {
			fn := queue[0]
			queue = queue[1:]
			fn()
		}
	}
	return schedule, drain
}

func TestResolveSettlesFulfilled(t *testing.T) {
	realm := newTestRealm()
	schedule, drain := newScheduler()
	p, resolve, _ := New(fakeCaller{}, realm, schedule)

	resolve(value.Number(7))
	drain()

	if p.State() != Fulfilled {
		t.Fatalf("state = %v, want Fulfilled", p.State())
	}
	if diff := cmp.Diff(7.0, p.Result().AsNumber()); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestRejectSettlesRejectedOnce(t *testing.T) {
	realm := newTestRealm()
	schedule, _ := newScheduler()
	p, resolve, reject := New(fakeCaller{}, realm, schedule)

	reject(value.StrFromGo("nope"))
	resolve(value.Number(1)) // settling twice is a no-op (§4.6)

	if p.State() != Rejected {
		t.Fatalf("state = %v, want Rejected", p.State())
	}
	if got := p.Result().AsString().Go(); got != "nope" {
		t.Fatalf("result = %q, want %q", got, "nope")
	}
}

func TestThenFiresAfterSettleOnDrain(t *testing.T) {
	realm := newTestRealm()
	schedule, drain := newScheduler()
	p, resolve, _ := New(fakeCaller{}, realm, schedule)

	var got value.Value
	fired := false
	p.Then(func(v value.Value) { got = v; fired = true }, nil)

	resolve(value.Number(9))
	if fired {
		t.Fatalf("reaction fired before the scheduler drained")
	}
	drain()
	if !fired {
		t.Fatalf("reaction never fired after drain")
	}
	if got.AsNumber() != 9 {
		t.Fatalf("reaction value = %v, want 9", got.AsNumber())
	}
}

// Resolving a promise with a thenable object adopts the thenable's eventual
// state instead of fulfilling with the thenable object itself (§4.6).
func TestResolveAdoptsThenableState(t *testing.T) {
	realm := newTestRealm()
	schedule, drain := newScheduler()
	p, resolve, _ := New(fakeCaller{}, realm, schedule)

	thenable := value.NewObject(realm.ObjectProto)
	thenRec := &value.FunctionRecord{Kind: value.FuncNative, Name: "then", Native: func(ctx interface{}, this value.Value, args []value.Value) (value.Value, error) {
		innerResolve := args[0]
		_, err := fakeCaller{}.Call(innerResolve, value.Undefined, []value.Value{value.StrFromGo("adopted")})
		return value.Undefined, err
	}}
	thenable.SetData(realm.Table.Intern("then"), value.Obj(value.NewFunctionObject(thenRec, realm.FunctionProto)), realm.Table, true, false, true)

	resolve(value.Obj(thenable))
	drain()

	if p.State() != Fulfilled {
		t.Fatalf("state = %v, want Fulfilled", p.State())
	}
	if got := p.Result().AsString().Go(); got != "adopted" {
		t.Fatalf("result = %q, want %q", got, "adopted")
	}
}
