// Copyright 2024 The probejs Authors
// This file is part of probejs.

// Package promise implements the Promise state machine and the
// async/await sugar drive (§4.6's job-queue-backed resolution semantics),
// independent of the bytecode VM itself: a Promise only needs a way to
// invoke script-level "then" callbacks (value.Caller) and a way to get a
// callback scheduled for later (Scheduler), both supplied by the VM at
// construction time, so this package never needs to import vm.
//
// Grounded loosely on the atomic-CAS lock-free Promise design retrieved
// from the wider example pack, simplified to plain mutable fields: the VM's
// dispatch loop and microtask drain both run on one goroutine, so there is
// no concurrent writer to race against and the lock-free machinery buys
// nothing here.
package promise

import "github.com/probejs/probejs/value"

// State is one of Promise's three settlement states (§4.6).
type State int

const (
	Pending State = iota
	Fulfilled
	Rejected
)

// Scheduler defers fn to run as a later microtask.
type Scheduler func(fn func())

// Promise is one Promise instance's resolution state plus its pending
// reaction callbacks.
type Promise struct {
	state  State
	result value.Value

	caller    value.Caller
	realm     *value.Realm
	schedule  Scheduler
	reactions []reaction
}

type reaction struct {
	onFulfilled func(value.Value)
	onRejected  func(value.Value)
}

// New creates a pending promise together with its resolve/reject
// functions (§4.6 "the executor's two capability functions").
func New(caller value.Caller, realm *value.Realm, schedule Scheduler) (p *Promise, resolve func(value.Value), reject func(value.Value)) {
	p = &Promise{state: Pending, caller: caller, realm: realm, schedule: schedule}
	return p, p.Resolve, p.Reject
}

// State reports the promise's current settlement state.
func (p *Promise) State() State { return p.state }

// Result returns the fulfillment value or rejection reason once settled.
func (p *Promise) Result() value.Value { return p.result }

// Resolve settles p with v, adopting v's state instead when v is itself a
// thenable object (§4.6's [[Resolve]] thenable-adoption algorithm).
func (p *Promise) Resolve(v value.Value) {
	if p.state != Pending {
		return
	}
	then, ok := p.thenableCallback(v)
	if !ok {
		p.settle(Fulfilled, v)
		return
	}
	p.schedule(func() {
		_, err := p.caller.Call(then, v, []value.Value{
			value.Obj(p.nativeCallback("", p.Resolve)),
			value.Obj(p.nativeCallback("", p.Reject)),
		})
		if err != nil {
			p.Reject(p.errToValue(err))
		}
	})
}

// Reject settles p as rejected with reason.
func (p *Promise) Reject(reason value.Value) {
	if p.state != Pending {
		return
	}
	p.settle(Rejected, reason)
}

func (p *Promise) settle(state State, v value.Value) {
	p.state = state
	p.result = v
	reactions := p.reactions
	p.reactions = nil
	for _, r := range reactions {
		p.fire(r, state, v)
	}
}

func (p *Promise) fire(r reaction, state State, v value.Value) {
	p.schedule(func() {
		if state == Fulfilled {
			if r.onFulfilled != nil {
				r.onFulfilled(v)
			}
		} else if r.onRejected != nil {
			r.onRejected(v)
		}
	})
}

// Then registers reaction callbacks, firing them on the microtask queue
// immediately if p is already settled (§4.6's PerformPromiseThen).
func (p *Promise) Then(onFulfilled, onRejected func(value.Value)) {
	if p.state == Pending {
		p.reactions = append(p.reactions, reaction{onFulfilled, onRejected})
		return
	}
	p.fire(reaction{onFulfilled, onRejected}, p.state, p.result)
}

// thenableCallback returns v's "then" method when v is an object carrying
// a callable one.
func (p *Promise) thenableCallback(v value.Value) (value.Value, bool) {
	if !v.IsObject() {
		return value.Undefined, false
	}
	then, err := v.AsObject().Get(p.realm.Table.Intern("then"), p.realm.Table, v, p.caller)
	if err != nil || !then.IsCallable() {
		return value.Undefined, false
	}
	return then, true
}

// nativeCallback wraps a Go func(value.Value) as a callable script Value,
// the form a thenable's then(resolve, reject) call expects its two
// capability arguments in.
func (p *Promise) nativeCallback(name string, fn func(value.Value)) *value.Object {
	rec := &value.FunctionRecord{Kind: value.FuncNative, Name: name, Length: 1}
	rec.Native = func(ctx interface{}, this value.Value, args []value.Value) (value.Value, error) {
		v := value.Undefined
		if len(args) > 0 {
			v = args[0]
		}
		fn(v)
		return value.Undefined, nil
	}
	return value.NewFunctionObject(rec, p.realm.FunctionProto)
}

// errToValue converts a Go error back into the script value it represents,
// mirroring vm.errorToValue's valueError/ThrowError unwrapping since this
// package cannot import vm to share it directly.
func (p *Promise) errToValue(err error) value.Value {
	if ve, ok := err.(*valueError); ok {
		return ve.v
	}
	if te, ok := err.(*value.ThrowError); ok {
		return value.Obj(p.realm.MaterializeError(te))
	}
	return value.StrFromGo(err.Error())
}

// valueError wraps an arbitrary thrown script Value so a caller outside
// this package (the VM) can hand back a thrown value as a Go error.
type valueError struct{ v value.Value }

func (e *valueError) Error() string { return e.v.GoString() }

// ValueError builds the Go error form of a thrown script value, letting
// the VM surface a rejection reason as a catchable throw.
func ValueError(v value.Value) error { return &valueError{v: v} }
