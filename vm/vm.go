// Copyright 2024 The probejs Authors
// This file is part of probejs.

// Package vm implements the stack-based bytecode interpreter (§4.7) that
// executes CodeObjects produced by package compiler. A VM owns one Realm
// (global object, prototype chain) and drives every frame — ordinary
// function call, generator, or async function — through the same
// instruction dispatch loop; generators and async functions differ only in
// how their frame is allowed to suspend mid-loop and who resumes it.
package vm

import (
	goruntime "runtime"

	"github.com/go-sourcemap/sourcemap"
	lru "github.com/hashicorp/golang-lru"

	"github.com/probejs/probejs/atom"
	"github.com/probejs/probejs/internal/fault"
	"github.com/probejs/probejs/opcode"
	"github.com/probejs/probejs/value"
)

// templateCacheSize bounds the tagged-template-object cache (§4.6): one
// entry per call site actually evaluated, which for any real program is
// small and fixed, but an LRU ceiling keeps a pathological eval-in-a-loop
// workload from growing it unbounded.
const templateCacheSize = 4096

// defaultMaxCallDepth bounds native Go call-stack recursion from nested JS
// calls, turning runaway recursion into a catchable RangeError instead of
// a Go stack overflow (§4.8 "stack overflow surfaces as a RangeError").
// Runtime.Config.MaxCallDepth overrides it per Context; this is only the
// fallback for a VM built without going through package runtime.
const defaultMaxCallDepth = 2000

// defaultInterruptPollOpcodes is how many backward branches (the GOTO
// family's loop back-edges) run between interrupt polls when
// Config.InterruptPollOpcodes isn't set (§5 "host-installable interrupt
// checks ... polled at backward-branch opcodes").
const defaultInterruptPollOpcodes = 1 << 16

// VM is one execution engine bound to a single Realm. It is not safe for
// concurrent use from multiple goroutines — the microtask queue and call
// stack are owned exclusively by whichever goroutine calls Run/Call.
type VM struct {
	Realm      *value.Realm
	table      *atom.Table
	depth      int
	microtasks []func()

	templateCache *lru.Cache

	// maxCallDepth/maxHeapBytes/interruptPollOpcodes mirror
	// runtime.Config; zero means "use the package default" (SetLimits is
	// optional — a VM built directly via New still has sane bounds).
	maxCallDepth         int
	maxHeapBytes         int64
	interruptPollOpcodes int
	opsSincePoll         int

	// interrupt is the host-installed poll callback (§5); a non-nil error
	// it returns aborts run() immediately, bypassing every pushed
	// exception handler — see handleThrow's InterruptError check.
	interrupt func() error

	// frames mirrors the native Go call stack of run() invocations
	// currently executing (outermost first); a suspended generator/async
	// frame is absent while it isn't actively running. Used only to build
	// a "stack" string when materializing a thrown error (§7).
	frames []*frame

	sourcemap *sourcemap.Consumer
}

// templateCacheKey identifies one tagged-template call site: a CodeObject
// is only ever instantiated once (MAKE_CLOSURE shares it across every
// closure built from it), so its pointer identity plus the site index
// within it is a stable, collision-free key.
type templateCacheKey struct {
	code *value.CodeObject
	site int
}

// New creates a VM bound to realm.
func New(realm *value.Realm) *VM {
	cache, _ := lru.New(templateCacheSize)
	return &VM{Realm: realm, table: realm.Table, templateCache: cache}
}

// Limits is the subset of runtime.Config the VM itself enforces, passed
// down by runtime.Context.CreateContext so the TOML-loaded values actually
// reach the dispatch loop instead of sitting unused in Config.
type Limits struct {
	MaxCallDepth         int
	MaxHeapBytes         int64
	InterruptPollOpcodes int
}

// SetLimits installs l as this VM's call-depth/heap/interrupt-poll bounds.
// Zero fields keep the package defaults.
func (vm *VM) SetLimits(l Limits) {
	vm.maxCallDepth = l.MaxCallDepth
	vm.maxHeapBytes = l.MaxHeapBytes
	vm.interruptPollOpcodes = l.InterruptPollOpcodes
}

// SetInterruptHandler installs the host's poll callback (§5). It is
// checked at backward branches (the GOTO family closing a loop), once every
// InterruptPollOpcodes of them. A non-nil return
// aborts script execution with an InterruptError that no try/catch in the
// running script can intercept.
func (vm *VM) SetInterruptHandler(fn func() error) {
	vm.interrupt = fn
}

// InterruptError is the uncatchable abort raised when a host interrupt
// handler installed via SetInterruptHandler returns an error.
type InterruptError struct {
	Reason error
}

func (e *InterruptError) Error() string { return "probejs: interrupted: " + e.Reason.Error() }
func (e *InterruptError) Unwrap() error { return e.Reason }

func (vm *VM) callDepthLimit() int {
	if vm.maxCallDepth > 0 {
		return vm.maxCallDepth
	}
	return defaultMaxCallDepth
}

// pollInterrupt calls the installed interrupt handler and checks the heap
// limit at most once every interruptPollOpcodes backward branches,
// converting a handler error into an *InterruptError. With neither a
// handler nor a heap limit installed it does nothing.
func (vm *VM) pollInterrupt() error {
	if vm.interrupt == nil && vm.maxHeapBytes <= 0 {
		return nil
	}
	poll := vm.interruptPollOpcodes
	if poll <= 0 {
		poll = defaultInterruptPollOpcodes
	}
	vm.opsSincePoll++
	if vm.opsSincePoll < poll {
		return nil
	}
	vm.opsSincePoll = 0
	if vm.interrupt != nil {
		if err := vm.interrupt(); err != nil {
			return &InterruptError{Reason: err}
		}
	}
	return vm.checkHeapLimit()
}

// checkHeapLimit samples the Go runtime's live heap size against
// Config.MaxHeapBytes (§5's memory budget), piggybacking on the same
// backward-branch poll cadence as the interrupt check rather than
// tracking every allocation site across value/ individually — cheap
// enough to call every InterruptPollOpcodes backward branches, which is
// exactly how often pollInterrupt already fires.
func (vm *VM) checkHeapLimit() error {
	if vm.maxHeapBytes <= 0 {
		return nil
	}
	var stats goruntime.MemStats
	goruntime.ReadMemStats(&stats)
	if int64(stats.HeapAlloc) > vm.maxHeapBytes {
		return value.NewRangeError("heap limit exceeded (%d > %d bytes)", stats.HeapAlloc, vm.maxHeapBytes)
	}
	return nil
}

// takeBranch applies a taken jump, polling the interrupt handler first if
// the branch is backward (target at or before the jump instruction's own
// pc) — the GOTO-family loop back-edge §5 names as the poll point.
func (vm *VM) takeBranch(fr *frame, instrPC, target int) error {
	if target <= instrPC {
		if err := vm.pollInterrupt(); err != nil {
			// A heap-limit RangeError is an ordinary throw; handleThrow
			// refuses an InterruptError, which therefore still aborts.
			if vm.handleThrow(fr, err) {
				return nil
			}
			return err
		}
	}
	fr.pc = target
	return nil
}

// Call implements value.Caller so coerce.go / object.go can invoke accessors
// and callbacks without importing this package.
func (vm *VM) Call(fn, this value.Value, args []value.Value) (value.Value, error) {
	return vm.CallValue(fn, this, args, value.Undefined)
}

// EnqueueMicrotask schedules fn to run the next time RunMicrotasks drains
// the queue (§4.9's job queue, backing Promise reactions).
func (vm *VM) EnqueueMicrotask(fn func()) {
	vm.microtasks = append(vm.microtasks, fn)
}

// RunMicrotasks drains the job queue to quiescence, running newly enqueued
// jobs scheduled by earlier ones in the same drain (§4.9 "run to
// completion, then drain until empty").
func (vm *VM) RunMicrotasks() {
	for len(vm.microtasks) > 0 {
		job := vm.microtasks[0]
		vm.microtasks = vm.microtasks[1:]
		job()
	}
}

// frame is one activation record: its own operand stack, locals array, and
// program counter. Frames for generator/async functions outlive a single
// run() call, resuming from a saved pc/stack/locals snapshot.
type frame struct {
	code     *value.CodeObject
	fn       *value.Object // the Function-variant object being executed, for HomeObject/super
	locals   []value.Value
	upvalues []*value.Upvalue
	stack    []value.Value
	pc       int

	// handlers mirrors code.ExceptionTable entries currently "pushed" by
	// PUSH_HANDLER, most-recent last.
	handlers []activeHandler

	openUpvalues map[int]*value.Upvalue
}

type activeHandler struct {
	handlerPC  int
	hasFinally bool
	finallyPC  int
	stackDepth int
}

func newFrame(code *value.CodeObject, fn *value.Object, upvalues []*value.Upvalue) *frame {
	locals := make([]value.Value, code.LocalsCount)
	for i := range locals {
		locals[i] = value.Undefined
	}
	return &frame{
		code:     code,
		fn:       fn,
		locals:   locals,
		upvalues: upvalues,
		stack:    make([]value.Value, 0, code.MaxStack+8),
	}
}

func (fr *frame) push(v value.Value) { fr.stack = append(fr.stack, v) }

func (fr *frame) pop() value.Value {
	n := len(fr.stack) - 1
	v := fr.stack[n]
	fr.stack = fr.stack[:n]
	return v
}

func (fr *frame) top() value.Value { return fr.stack[len(fr.stack)-1] }

// captureLocal returns (creating if needed) the shared Upvalue cell for
// local slot idx, copying its current value in on first capture. Every
// later GET_LOCAL/SET_LOCAL at idx in this frame reads/writes through the
// same cell so mutations are visible to closures that captured it.
func (fr *frame) captureLocal(idx int) *value.Upvalue {
	if fr.openUpvalues == nil {
		fr.openUpvalues = make(map[int]*value.Upvalue)
	}
	if uv, ok := fr.openUpvalues[idx]; ok {
		return uv
	}
	uv := &value.Upvalue{Value: fr.locals[idx]}
	fr.openUpvalues[idx] = uv
	return uv
}

func (fr *frame) popN(n int) []value.Value {
	start := len(fr.stack) - n
	out := make([]value.Value, n)
	copy(out, fr.stack[start:])
	fr.stack = fr.stack[:start]
	return out
}

func (fr *frame) u16() int {
	v := int(fr.code.Instructions[fr.pc])<<8 | int(fr.code.Instructions[fr.pc+1])
	fr.pc += 2
	return v
}

func (fr *frame) byte() byte {
	b := fr.code.Instructions[fr.pc]
	fr.pc++
	return b
}

// suspendKind reports why run() returned control to its caller instead of
// running to RETURN/HALT.
type suspendKind int

const (
	suspendNone suspendKind = iota
	suspendYield
	suspendYieldStar
	suspendAwait
)

// runSignal carries a pending exception through nested handler search
// without needing a second return channel threaded through every opcode
// case.
type runSignal struct {
	err error
}

// run executes fr from its current pc until it returns, throws
// uncaught, or suspends at YIELD/AWAIT. suspendValue carries the
// yielded/awaited operand when kind != suspendNone.
func (vm *VM) run(fr *frame) (result value.Value, kind suspendKind, suspendValue value.Value, err error) {
	vm.frames = append(vm.frames, fr)
	defer func() { vm.frames = vm.frames[:len(vm.frames)-1] }()

	code := fr.code.Instructions
	for fr.pc < len(code) {
		op := opcode.Op(code[fr.pc])
		fr.pc++
		switch op {
		case opcode.OpConst:
			fr.push(fr.code.Constants[fr.u16()])
		case opcode.OpUndefined:
			fr.push(value.Undefined)
		case opcode.OpNull:
			fr.push(value.Null)
		case opcode.OpTrue:
			fr.push(value.Bool(true))
		case opcode.OpFalse:
			fr.push(value.Bool(false))
		case opcode.OpPop:
			fr.pop()
		case opcode.OpDup:
			fr.push(fr.top())
		case opcode.OpSwap:
			n := len(fr.stack)
			fr.stack[n-1], fr.stack[n-2] = fr.stack[n-2], fr.stack[n-1]

		case opcode.OpAdd, opcode.OpSub, opcode.OpMul, opcode.OpDiv, opcode.OpMod, opcode.OpPow,
			opcode.OpBitAnd, opcode.OpBitOr, opcode.OpBitXor, opcode.OpShl, opcode.OpShr, opcode.OpUShr:
			b := fr.pop()
			a := fr.pop()
			res, aerr := vm.binaryOp(op, a, b)
			if aerr != nil {
				if !vm.handleThrow(fr, aerr) {
					return value.Undefined, suspendNone, value.Undefined, aerr
				}
				continue
			}
			fr.push(res)

		case opcode.OpNeg:
			a := fr.pop()
			n, aerr := value.ToNumber(a, vm.table, vm)
			if aerr != nil {
				if !vm.handleThrow(fr, aerr) {
					return value.Undefined, suspendNone, value.Undefined, aerr
				}
				continue
			}
			fr.push(value.Number(-n))
		case opcode.OpBitNot:
			a := fr.pop()
			n, _ := value.ToNumber(a, vm.table, vm)
			fr.push(value.Number(float64(^value.ToInt32(n))))
		case opcode.OpNot:
			fr.push(value.Bool(!value.ToBoolean(fr.pop())))
		case opcode.OpTypeof:
			fr.push(value.StrFromGo(value.TypeOf(fr.pop())))
		case opcode.OpVoid:
			fr.pop()
			fr.push(value.Undefined)
		case opcode.OpInc:
			a := fr.pop()
			n, _ := value.ToNumber(a, vm.table, vm)
			fr.push(value.Number(n + 1))
		case opcode.OpDec:
			a := fr.pop()
			n, _ := value.ToNumber(a, vm.table, vm)
			fr.push(value.Number(n - 1))

		case opcode.OpEq, opcode.OpNeq:
			b := fr.pop()
			a := fr.pop()
			eq, aerr := value.AbstractEquals(a, b, vm.table, vm)
			if aerr != nil {
				if !vm.handleThrow(fr, aerr) {
					return value.Undefined, suspendNone, value.Undefined, aerr
				}
				continue
			}
			if op == opcode.OpNeq {
				eq = !eq
			}
			fr.push(value.Bool(eq))
		case opcode.OpSEq:
			b := fr.pop()
			a := fr.pop()
			fr.push(value.Bool(value.StrictEquals(a, b)))
		case opcode.OpSNeq:
			b := fr.pop()
			a := fr.pop()
			fr.push(value.Bool(!value.StrictEquals(a, b)))
		case opcode.OpLt, opcode.OpLte, opcode.OpGt, opcode.OpGte:
			b := fr.pop()
			a := fr.pop()
			res, aerr := vm.compareOp(op, a, b)
			if aerr != nil {
				if !vm.handleThrow(fr, aerr) {
					return value.Undefined, suspendNone, value.Undefined, aerr
				}
				continue
			}
			fr.push(res)
		case opcode.OpInstanceOf:
			b := fr.pop()
			a := fr.pop()
			res, aerr := vm.instanceOf(a, b)
			if aerr != nil {
				if !vm.handleThrow(fr, aerr) {
					return value.Undefined, suspendNone, value.Undefined, aerr
				}
				continue
			}
			fr.push(value.Bool(res))
		case opcode.OpIn:
			b := fr.pop()
			a := fr.pop()
			if !b.IsObject() {
				if !vm.handleThrow(fr, value.NewTypeError("cannot use 'in' operator on non-object")) {
					return value.Undefined, suspendNone, value.Undefined, value.NewTypeError("cannot use 'in' operator on non-object")
				}
				continue
			}
			key, aerr := value.ToPropertyKey(a, vm.table, vm)
			if aerr != nil {
				if !vm.handleThrow(fr, aerr) {
					return value.Undefined, suspendNone, value.Undefined, aerr
				}
				continue
			}
			_, found := b.AsObject().GetOwn(key, vm.table)
			if !found {
				for p := b.AsObject().Prototype(); p != nil && !found; p = p.Prototype() {
					_, found = p.GetOwn(key, vm.table)
				}
			}
			fr.push(value.Bool(found))

		case opcode.OpJumpIfFalsyKeep:
			instrPC := fr.pc - 1
			target := fr.u16()
			if !value.ToBoolean(fr.top()) {
				if ierr := vm.takeBranch(fr, instrPC, target); ierr != nil {
					return value.Undefined, suspendNone, value.Undefined, ierr
				}
			}
		case opcode.OpJumpIfTruthyKeep:
			instrPC := fr.pc - 1
			target := fr.u16()
			if value.ToBoolean(fr.top()) {
				if ierr := vm.takeBranch(fr, instrPC, target); ierr != nil {
					return value.Undefined, suspendNone, value.Undefined, ierr
				}
			}
		case opcode.OpJumpIfNullishKeep:
			instrPC := fr.pc - 1
			target := fr.u16()
			if fr.top().IsNullish() {
				if ierr := vm.takeBranch(fr, instrPC, target); ierr != nil {
					return value.Undefined, suspendNone, value.Undefined, ierr
				}
			}

		case opcode.OpJump:
			instrPC := fr.pc - 1
			target := fr.u16()
			if ierr := vm.takeBranch(fr, instrPC, target); ierr != nil {
				return value.Undefined, suspendNone, value.Undefined, ierr
			}
		case opcode.OpJumpIfFalse:
			instrPC := fr.pc - 1
			target := fr.u16()
			if !value.ToBoolean(fr.pop()) {
				if ierr := vm.takeBranch(fr, instrPC, target); ierr != nil {
					return value.Undefined, suspendNone, value.Undefined, ierr
				}
			}
		case opcode.OpJumpIfTrue:
			instrPC := fr.pc - 1
			target := fr.u16()
			if value.ToBoolean(fr.pop()) {
				if ierr := vm.takeBranch(fr, instrPC, target); ierr != nil {
					return value.Undefined, suspendNone, value.Undefined, ierr
				}
			}

		case opcode.OpGetLocal:
			idx := fr.u16()
			if uv, ok := fr.openUpvalues[idx]; ok {
				fr.push(uv.Value)
			} else {
				fr.push(fr.locals[idx])
			}
		case opcode.OpSetLocal:
			idx := fr.u16()
			if uv, ok := fr.openUpvalues[idx]; ok {
				uv.Value = fr.top()
			} else {
				fr.locals[idx] = fr.top()
			}
		case opcode.OpGetUpvalue:
			fr.push(fr.upvalues[fr.u16()].Value)
		case opcode.OpSetUpvalue:
			fr.upvalues[fr.u16()].Value = fr.top()
		case opcode.OpGetGlobal:
			a := fr.code.Atoms[fr.u16()]
			v, aerr := vm.Realm.Global.Get(a, vm.table, value.Obj(vm.Realm.Global), vm)
			if aerr != nil {
				if !vm.handleThrow(fr, aerr) {
					return value.Undefined, suspendNone, value.Undefined, aerr
				}
				continue
			}
			name, _ := vm.table.NameOf(a)
			if v.IsUndefined() {
				if _, found := vm.Realm.Global.GetOwn(a, vm.table); !found {
					aerr = value.NewReferenceError("%s is not defined", name)
					if !vm.handleThrow(fr, aerr) {
						return value.Undefined, suspendNone, value.Undefined, aerr
					}
					continue
				}
			}
			fr.push(v)
		case opcode.OpSetGlobal:
			a := fr.code.Atoms[fr.u16()]
			vm.Realm.Global.SetData(a, fr.top(), vm.table, true, true, true)
		case opcode.OpCloseUpvalue:
			idx := fr.u16()
			if fr.openUpvalues != nil {
				delete(fr.openUpvalues, idx)
			}

		case opcode.OpGetProp, opcode.OpGetPropOptional:
			a := fr.code.Atoms[fr.u16()]
			obj := fr.pop()
			if obj.IsNullish() {
				if op == opcode.OpGetPropOptional {
					fr.push(value.Undefined)
					continue
				}
				name, _ := vm.table.NameOf(a)
				aerr := value.NewTypeError("cannot read properties of %s (reading '%s')", obj.Kind(), name)
				if !vm.handleThrow(fr, aerr) {
					return value.Undefined, suspendNone, value.Undefined, aerr
				}
				continue
			}
			res, aerr := vm.getProperty(obj, a)
			if aerr != nil {
				if !vm.handleThrow(fr, aerr) {
					return value.Undefined, suspendNone, value.Undefined, aerr
				}
				continue
			}
			fr.push(res)
		case opcode.OpSetProp:
			a := fr.code.Atoms[fr.u16()]
			val := fr.pop()
			obj := fr.pop()
			if aerr := vm.setProperty(obj, a, val); aerr != nil {
				if !vm.handleThrow(fr, aerr) {
					return value.Undefined, suspendNone, value.Undefined, aerr
				}
				continue
			}
			fr.push(val)
		case opcode.OpGetElem:
			key := fr.pop()
			obj := fr.pop()
			a, aerr := value.ToPropertyKey(key, vm.table, vm)
			if aerr == nil {
				var res value.Value
				res, aerr = vm.getProperty(obj, a)
				if aerr == nil {
					fr.push(res)
					continue
				}
			}
			if !vm.handleThrow(fr, aerr) {
				return value.Undefined, suspendNone, value.Undefined, aerr
			}
		case opcode.OpSetElem:
			val := fr.pop()
			key := fr.pop()
			obj := fr.pop()
			a, aerr := value.ToPropertyKey(key, vm.table, vm)
			if aerr == nil {
				aerr = vm.setProperty(obj, a, val)
			}
			if aerr != nil {
				if !vm.handleThrow(fr, aerr) {
					return value.Undefined, suspendNone, value.Undefined, aerr
				}
				continue
			}
			fr.push(val)
		case opcode.OpDeleteProp:
			a := fr.code.Atoms[fr.u16()]
			obj := fr.pop()
			if !obj.IsObject() {
				fr.push(value.Bool(true))
				continue
			}
			fr.push(value.Bool(obj.AsObject().Delete(a, vm.table)))
		case opcode.OpDeleteElem:
			key := fr.pop()
			obj := fr.pop()
			if !obj.IsObject() {
				fr.push(value.Bool(true))
				continue
			}
			a, aerr := value.ToPropertyKey(key, vm.table, vm)
			if aerr != nil {
				if !vm.handleThrow(fr, aerr) {
					return value.Undefined, suspendNone, value.Undefined, aerr
				}
				continue
			}
			fr.push(value.Bool(obj.AsObject().Delete(a, vm.table)))
		case opcode.OpGetPrivate:
			a := fr.code.Atoms[fr.u16()]
			obj := fr.pop()
			if !obj.IsObject() || !obj.AsObject().HasBrand(a) {
				aerr := value.NewTypeError("cannot read private member from an object whose class did not declare it")
				if !vm.handleThrow(fr, aerr) {
					return value.Undefined, suspendNone, value.Undefined, aerr
				}
				continue
			}
			v, _ := obj.AsObject().GetPrivate(a, vm.table)
			fr.push(v)
		case opcode.OpSetPrivate:
			a := fr.code.Atoms[fr.u16()]
			val := fr.pop()
			obj := fr.pop()
			if !obj.IsObject() || !obj.AsObject().HasBrand(a) {
				aerr := value.NewTypeError("cannot write private member to an object whose class did not declare it")
				if !vm.handleThrow(fr, aerr) {
					return value.Undefined, suspendNone, value.Undefined, aerr
				}
				continue
			}
			obj.AsObject().SetPrivate(a, val, vm.table)
			fr.push(val)

		case opcode.OpNewObject:
			fr.push(value.Obj(value.NewObject(vm.Realm.ObjectProto)))
		case opcode.OpNewArray:
			n := fr.u16()
			elems := fr.popN(n)
			fr.push(value.Obj(value.NewArrayObject(vm.Realm.ArrayProto, vm.table, elems)))
		case opcode.OpNewArraySpread:
			n := fr.u16()
			raw := fr.popN(n)
			elems, aerr := vm.spliceSpreads(raw)
			if aerr != nil {
				if !vm.handleThrow(fr, aerr) {
					return value.Undefined, suspendNone, value.Undefined, aerr
				}
				continue
			}
			fr.push(value.Obj(value.NewArrayObject(vm.Realm.ArrayProto, vm.table, elems)))
		case opcode.OpDefineMethod, opcode.OpDefineGetter, opcode.OpDefineSetter:
			a := fr.code.Atoms[fr.u16()]
			fnVal := fr.pop()
			objVal := fr.top()
			obj := objVal.AsObject()
			switch op {
			case opcode.OpDefineMethod:
				obj.SetData(a, fnVal, vm.table, true, true, true)
			case opcode.OpDefineGetter:
				existing, _ := obj.GetOwn(a, vm.table)
				obj.DefineOwn(a, value.AccessorDescriptor(fnVal.AsObject(), existing.Setter, true, true), vm.table)
			case opcode.OpDefineSetter:
				existing, _ := obj.GetOwn(a, vm.table)
				obj.DefineOwn(a, value.AccessorDescriptor(existing.Getter, fnVal.AsObject(), true, true), vm.table)
			}
		case opcode.OpMakeClosure:
			if aerr := vm.makeClosure(fr); aerr != nil {
				if !vm.handleThrow(fr, aerr) {
					return value.Undefined, suspendNone, value.Undefined, aerr
				}
				continue
			}
		case opcode.OpMakeClass:
			if aerr := vm.makeClass(fr); aerr != nil {
				if !vm.handleThrow(fr, aerr) {
					return value.Undefined, suspendNone, value.Undefined, aerr
				}
				continue
			}
		case opcode.OpSpreadMarker:
			fr.push(vm.wrapSpread(fr.pop()))

		case opcode.OpCall, opcode.OpCallMethod, opcode.OpCallOptional, opcode.OpSpreadCall:
			argc := fr.u16()
			if aerr := vm.dispatchCall(fr, op, argc); aerr != nil {
				if !vm.handleThrow(fr, aerr) {
					return value.Undefined, suspendNone, value.Undefined, aerr
				}
				continue
			}
		case opcode.OpNew, opcode.OpSpreadNew:
			argc := fr.u16()
			if aerr := vm.dispatchNew(fr, op, argc); aerr != nil {
				if !vm.handleThrow(fr, aerr) {
					return value.Undefined, suspendNone, value.Undefined, aerr
				}
				continue
			}
		case opcode.OpReturn:
			return fr.pop(), suspendNone, value.Undefined, nil
		case opcode.OpReturnUndefined:
			return value.Undefined, suspendNone, value.Undefined, nil

		case opcode.OpThrow:
			errVal := fr.pop()
			if !vm.handleThrow(fr, vm.valueToError(errVal)) {
				return value.Undefined, suspendNone, value.Undefined, vm.valueToError(errVal)
			}
		case opcode.OpPushHandler:
			handlerPC := fr.u16()
			hasFinally := fr.byte() != 0
			fr.handlers = append(fr.handlers, activeHandler{
				handlerPC: handlerPC, hasFinally: hasFinally, stackDepth: len(fr.stack),
			})
		case opcode.OpPopHandler:
			fr.handlers = fr.handlers[:len(fr.handlers)-1]
		case opcode.OpReThrow:
			errVal := fr.pop()
			if !vm.handleThrow(fr, vm.valueToError(errVal)) {
				return value.Undefined, suspendNone, value.Undefined, vm.valueToError(errVal)
			}

		case opcode.OpGetIterator:
			v := fr.pop()
			iter, aerr := vm.getIterator(v)
			if aerr != nil {
				if !vm.handleThrow(fr, aerr) {
					return value.Undefined, suspendNone, value.Undefined, aerr
				}
				continue
			}
			fr.push(iter)
		case opcode.OpIterNext:
			iterVal := fr.pop()
			val, done, aerr := vm.iterNext(iterVal)
			if aerr != nil {
				if !vm.handleThrow(fr, aerr) {
					return value.Undefined, suspendNone, value.Undefined, aerr
				}
				continue
			}
			fr.push(val)
			fr.push(value.Bool(done))
		case opcode.OpIterClose:
			iterVal := fr.pop()
			vm.iterClose(iterVal)

		case opcode.OpYield:
			yv := fr.pop()
			return value.Undefined, suspendYield, yv, nil
		case opcode.OpYieldStar:
			// The compiler only pushes the delegation target here; the
			// generator wrapper (vm/generator.go) resolves it to an
			// iterator and drives the forward/yield/return dance, pushing
			// the delegated iterator's final return value back onto this
			// frame once delegation completes before resuming it.
			iterable := fr.pop()
			return value.Undefined, suspendYieldStar, iterable, nil
		case opcode.OpAwait:
			av := fr.pop()
			return value.Undefined, suspendAwait, av, nil

		case opcode.OpToPropertyKey:
			v := fr.pop()
			a, aerr := value.ToPropertyKey(v, vm.table, vm)
			if aerr != nil {
				if !vm.handleThrow(fr, aerr) {
					return value.Undefined, suspendNone, value.Undefined, aerr
				}
				continue
			}
			name, _ := vm.table.NameOf(a)
			fr.push(value.StrFromGo(name))

		case opcode.OpTemplateObject:
			idx := fr.u16()
			fr.push(vm.templateObject(fr.code, idx))

		case opcode.OpNop:
			// no-op
		case opcode.OpHalt:
			return value.Undefined, suspendNone, value.Undefined, nil
		default:
			// The compiler is the only producer of bytecode this loop ever
			// sees; reaching an opcode with no case here means its own
			// contract with the compiler was violated, not a normal script
			// error, hence fault.New rather than a value.ThrowError.
			return value.Undefined, suspendNone, value.Undefined, fault.New("unimplemented opcode %s", op)
		}
	}
	return value.Undefined, suspendNone, value.Undefined, nil
}

// handleThrow searches fr's active handler stack for one covering the
// thrown exception, unwinding the operand stack to its recorded depth and
// jumping to the handler (or straight to finally when the try block itself
// has no catch clause) (§4.8). It returns false when no handler exists in
// this frame, meaning the exception propagates to the caller.
func (vm *VM) handleThrow(fr *frame, err error) bool {
	if _, ok := err.(*InterruptError); ok {
		return false
	}
	if len(fr.handlers) == 0 {
		return false
	}
	h := fr.handlers[len(fr.handlers)-1]
	fr.handlers = fr.handlers[:len(fr.handlers)-1]
	if h.stackDepth < len(fr.stack) {
		fr.stack = fr.stack[:h.stackDepth]
	}
	fr.push(vm.errorToValue(err))
	fr.pc = h.handlerPC
	return true
}

func (vm *VM) valueToError(v value.Value) error {
	return &valueError{v: v}
}

func (vm *VM) errorToValue(err error) value.Value {
	if ve, ok := err.(*valueError); ok {
		return ve.v
	}
	if te, ok := err.(*value.ThrowError); ok {
		obj := vm.Realm.MaterializeError(te)
		vm.attachStack(obj)
		return value.Obj(obj)
	}
	return value.StrFromGo(err.Error())
}

// valueError wraps an arbitrary thrown script Value (any expression is a
// valid throw operand in JS, not just Error instances) so it can travel
// through Go's error-returning plumbing alongside *value.ThrowError.
type valueError struct{ v value.Value }

func (e *valueError) Error() string { return e.v.GoString() }
