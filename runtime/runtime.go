// Copyright 2024 The probejs Authors
// This file is part of probejs.

// Package runtime is the embedder-facing API (§6 "Runtime/Context API"):
// Runtime owns the resources the spec calls Runtime-scoped (atom table,
// shared configuration), Context owns one Realm and drives script
// evaluation against it. Grounded on the teacher's integration/engine.go
// bridging pattern ("decode input, route to the VM, translate the
// result back"), generalized from a blockchain-contract boundary to a
// plain script-evaluation one.
package runtime

import (
	"fmt"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/fjl/memsize"

	"github.com/probejs/probejs/atom"
	"github.com/probejs/probejs/bccache"
	"github.com/probejs/probejs/compiler"
	"github.com/probejs/probejs/parser"
	"github.com/probejs/probejs/value"
	"github.com/probejs/probejs/vm"
)

// defaultBytecodeCacheMemBytes sizes the in-memory cache tier when
// Config.BytecodeCacheMemBytes is left at zero.
const defaultBytecodeCacheMemBytes = 32 * 1024 * 1024

// Runtime owns the atom table shared by every Context created from it
// (§5 "the atom table ... belong to the Runtime"), plus the limits a
// Context enforces.
type Runtime struct {
	Config Config
	table  *atom.Table
	cache  *bccache.Cache
}

// New creates a Runtime (`Runtime::new()`). If cfg.BytecodeCacheDir is set
// but the cache fails to open (e.g. a permissions error), New falls back to
// running without one rather than failing outright — caching is a
// performance optimization, not a correctness requirement.
func New(cfg Config) *Runtime {
	r := &Runtime{Config: cfg, table: atom.NewTable()}
	if cfg.BytecodeCacheDir != "" {
		memBytes := cfg.BytecodeCacheMemBytes
		if memBytes <= 0 {
			memBytes = defaultBytecodeCacheMemBytes
		}
		if cache, err := bccache.Open(cfg.BytecodeCacheDir, memBytes, r.table); err == nil {
			r.cache = cache
		}
	}
	return r
}

// Close releases any resources the Runtime opened, currently just the
// bytecode cache's on-disk handles.
func (r *Runtime) Close() error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Close()
}

// Table exposes the Runtime's shared atom table, needed by embedders
// (cmd/probejs's build/eval of precompiled bundles) that call
// bccache.SavePrecompiled/LoadPrecompiled directly.
func (r *Runtime) Table() *atom.Table { return r.table }

// CreateContext builds a fresh Context — its own Realm (global object,
// prototype chain) and VM, sharing this Runtime's atom table
// (`Runtime::create_context()`). Multiple Contexts from the same Runtime
// never execute concurrently (§5's single-threaded scheduling model), so
// each is free to own its own microtask queue without violating that
// guarantee — see DESIGN.md's note on this simplification.
func (r *Runtime) CreateContext() *Context {
	realm := value.NewRealm(r.table)
	v := vm.New(realm)
	v.SetLimits(vm.Limits{
		MaxCallDepth:         r.Config.MaxCallDepth,
		MaxHeapBytes:         r.Config.MaxHeapBytes,
		InterruptPollOpcodes: r.Config.InterruptPollOpcodes,
	})
	if r.Config.SourceMapPath != "" {
		if data, err := os.ReadFile(r.Config.SourceMapPath); err == nil {
			_ = v.SetSourceMap(data) // malformed map: fall back to debug_info lines
		}
	}
	c := &Context{runtime: r, realm: realm, vm: v}
	installGlobals(c)
	return c
}

// Mode selects script vs. module evaluation semantics (§6).
type Mode int

const (
	ModeScript Mode = iota
	ModeModule
)

// Context is one Realm plus the VM executing against it.
type Context struct {
	runtime *Runtime
	realm   *value.Realm
	vm      *vm.VM
}

// Eval compiles and runs source (`Context::eval`). Module mode differs
// from script mode only in that top-level `this` is undefined instead of
// the global object, matching strict-mode module semantics; this engine
// does not implement import/export binding resolution, so there is no
// module-graph host hook to call out to beyond that.
func (c *Context) Eval(source, filename string, mode Mode) (value.Value, error) {
	code, err := c.compile(source, filename)
	if err != nil {
		return value.Undefined, err
	}
	return c.Run(code, mode)
}

// Run executes an already-compiled CodeObject — the entry point a
// precompiled bundle (bccache.LoadPrecompiled's result) uses to skip
// Eval's parse/compile/cache-lookup sequence entirely, since the caller has
// already done the equivalent of all three by loading the bundle.
func (c *Context) Run(code *value.CodeObject, mode Mode) (value.Value, error) {
	rec := &value.FunctionRecord{Kind: value.FuncBytecode, Name: "<" + code.Name + ">", Code: code, IsStrict: true}
	fnObj := value.NewFunctionObject(rec, c.realm.FunctionProto)

	this := value.Obj(c.realm.Global)
	if mode == ModeModule {
		this = value.Undefined
	}
	return c.vm.CallValue(value.Obj(fnObj), this, nil, value.Undefined)
}

// compile parses and compiles source, consulting the Runtime's bytecode
// cache first (§6) when one is configured. A cache hit skips lexing,
// parsing, and compiling entirely; a miss compiles as usual and stores the
// result before returning it.
func (c *Context) compile(source, filename string) (*value.CodeObject, error) {
	var key []byte
	if c.runtime.cache != nil {
		key = bccache.Key(source)
		if code, ok := c.runtime.cache.Lookup(key); ok {
			return code, nil
		}
	}

	prog, errs := parser.Parse(filename, source)
	if len(errs) > 0 {
		return nil, fmt.Errorf("probejs: parse error: %w", errs[0])
	}
	code, err := compiler.Compile(prog, filename, c.runtime.table)
	if err != nil {
		return nil, fmt.Errorf("probejs: compile error: %w", err)
	}

	if c.runtime.cache != nil {
		_ = c.runtime.cache.Store(key, code) // cache-miss path still returns code on a store failure
	}
	return code, nil
}

// GetGlobal returns the Context's global object (`Context::get_global`).
func (c *Context) GetGlobal() value.Value {
	return value.Obj(c.realm.Global)
}

// RegisterNative installs a host function as a global binding
// (`Context::register_native`).
func (c *Context) RegisterNative(name string, arity int, callback value.NativeFunc) {
	rec := &value.FunctionRecord{Kind: value.FuncNative, Name: name, Length: arity, Native: callback}
	fnObj := value.NewFunctionObject(rec, c.realm.FunctionProto)
	c.realm.Global.SetData(c.runtime.table.Intern(name), value.Obj(fnObj), c.runtime.table, true, false, true)
}

// SetInterruptHandler installs a host-side poll callback (§5
// "host-installable interrupt checks"): the VM calls it periodically
// during long-running loops, and a non-nil return aborts the running
// script with an uncatchable error. Typical uses are a deadline check or
// a cancellation signal from the embedder.
func (c *Context) SetInterruptHandler(fn func() error) {
	c.vm.SetInterruptHandler(fn)
}

// RunMicrotasks drains this Context's job queue to empty
// (`Context::run_microtasks`).
func (c *Context) RunMicrotasks() {
	c.vm.RunMicrotasks()
}

// VM exposes the underlying VM for embedding glue (cmd/probejs's
// disassembler and REPL) that needs lower-level access than the
// Runtime/Context API offers.
func (c *Context) VM() *vm.VM { return c.vm }

// Realm exposes the underlying Realm for the same reason.
func (c *Context) Realm() *value.Realm { return c.realm }

// MemStats reports the Context's object-heap footprint for embedders
// (`fjl/memsize`'s recursive, cycle-safe size walker — a plain
// recursive sizeof would infinite-loop on the prototype chain's cycles
// and the countless Object<->Object back-references this engine's value
// graph has).
func (c *Context) MemStats() memsize.Sizes {
	return memsize.Scan(c.realm)
}

// Dump recursively renders a Value's Go-level representation for
// debugging (cmd/probejs's repl uses this for its `.dump` command) —
// spew walks the Object/Shape/Value graph's pointer cycles safely,
// which fmt's default formatting does not attempt.
func (c *Context) Dump(v value.Value) string {
	return spew.Sdump(v)
}

// installGlobals registers the handful of globals the compiler's lowering
// rules implicitly depend on existing at runtime (§4.6): regex literals
// lower to `new RegExp(pattern, flags)`, object-literal spread lowers
// through `Object.assign`.
func installGlobals(c *Context) {
	installRegExp(c)
	installObjectAssign(c)
	installConsole(c)
}
