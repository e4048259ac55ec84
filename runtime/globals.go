// Copyright 2024 The probejs Authors
// This file is part of probejs.

package runtime

import (
	"fmt"

	"github.com/probejs/probejs/internal/jsregexp"
	"github.com/probejs/probejs/value"
)

// installRegExp registers the global RegExp constructor that
// compileRegexLiteral's `new RegExp(pattern, flags)` lowering depends on,
// backed by internal/jsregexp's dlclark/regexp2 matcher.
func installRegExp(c *Context) {
	proto := c.realm.RegExpProto

	ctorRec := &value.FunctionRecord{Kind: value.FuncNative, Name: "RegExp", Length: 2}
	ctorRec.Native = func(ctx interface{}, this value.Value, args []value.Value) (value.Value, error) {
		pattern, flags := "", ""
		if len(args) > 0 {
			s, err := value.ToString(args[0], c.runtime.table, c.vm)
			if err != nil {
				return value.Undefined, err
			}
			pattern = s.Go()
		}
		if len(args) > 1 {
			s, err := value.ToString(args[1], c.runtime.table, c.vm)
			if err != nil {
				return value.Undefined, err
			}
			flags = s.Go()
		}
		re, err := jsregexp.Compile(pattern, flags)
		if err != nil {
			return value.Undefined, value.NewTypeError("%s", err.Error())
		}
		obj := this.AsObject()
		obj.SetClass("RegExp")
		obj.SetInternal("regexp", re)
		obj.SetData(c.runtime.table.Intern("source"), value.StrFromGo(pattern), c.runtime.table, false, false, false)
		obj.SetData(c.runtime.table.Intern("flags"), value.StrFromGo(flags), c.runtime.table, false, false, false)
		obj.SetData(c.runtime.table.Intern("global"), value.Bool(re.Global), c.runtime.table, false, false, false)
		obj.SetData(c.runtime.table.Intern("lastIndex"), value.Int(0), c.runtime.table, true, false, false)
		return value.Undefined, nil
	}
	ctor := value.NewFunctionObject(ctorRec, c.realm.FunctionProto)
	ctor.SetData(c.runtime.table.Intern("prototype"), value.Obj(proto), c.runtime.table, false, false, false)
	proto.SetData(c.runtime.table.Intern("constructor"), value.Obj(ctor), c.runtime.table, true, false, true)

	execRec := &value.FunctionRecord{Kind: value.FuncNative, Name: "exec", Length: 1}
	execRec.Native = func(ctx interface{}, this value.Value, args []value.Value) (value.Value, error) {
		return regexpExec(c, this, args)
	}
	proto.SetData(c.runtime.table.Intern("exec"), value.Obj(value.NewFunctionObject(execRec, c.realm.FunctionProto)), c.runtime.table, true, false, true)

	testRec := &value.FunctionRecord{Kind: value.FuncNative, Name: "test", Length: 1}
	testRec.Native = func(ctx interface{}, this value.Value, args []value.Value) (value.Value, error) {
		res, err := regexpExec(c, this, args)
		if err != nil {
			return value.Undefined, err
		}
		return value.Bool(!res.IsNull()), nil
	}
	proto.SetData(c.runtime.table.Intern("test"), value.Obj(value.NewFunctionObject(testRec, c.realm.FunctionProto)), c.runtime.table, true, false, true)

	c.realm.Global.SetData(c.runtime.table.Intern("RegExp"), value.Obj(ctor), c.runtime.table, true, false, true)
}

func regexpExec(c *Context, this value.Value, args []value.Value) (value.Value, error) {
	if !this.IsObject() {
		return value.Undefined, value.NewTypeError("RegExp.prototype.exec called on non-object")
	}
	raw, ok := this.AsObject().Internal("regexp")
	if !ok {
		return value.Undefined, value.NewTypeError("RegExp.prototype.exec called on incompatible receiver")
	}
	re := raw.(*jsregexp.Regexp)
	input := ""
	if len(args) > 0 {
		s, err := value.ToString(args[0], c.runtime.table, c.vm)
		if err != nil {
			return value.Undefined, err
		}
		input = s.Go()
	}

	start := 0
	if re.Global || re.Sticky {
		lastIdxKey := c.runtime.table.Intern("lastIndex")
		lastIdx, err := this.AsObject().Get(lastIdxKey, c.runtime.table, this, c.vm)
		if err != nil {
			return value.Undefined, err
		}
		n, err := value.ToNumber(lastIdx, c.runtime.table, c.vm)
		if err != nil {
			return value.Undefined, err
		}
		start = int(n)
	}
	if start < 0 || start > len(input) {
		if re.Global || re.Sticky {
			this.AsObject().SetData(c.runtime.table.Intern("lastIndex"), value.Int(0), c.runtime.table, true, false, false)
		}
		return value.Null, nil
	}

	m, found, err := re.Exec(input, start)
	if err != nil {
		return value.Undefined, value.NewTypeError("%s", err.Error())
	}
	if !found {
		if re.Global || re.Sticky {
			this.AsObject().SetData(c.runtime.table.Intern("lastIndex"), value.Int(0), c.runtime.table, true, false, false)
		}
		return value.Null, nil
	}
	if re.Global || re.Sticky {
		end := m.Index + len(m.Groups[0].Value)
		this.AsObject().SetData(c.runtime.table.Intern("lastIndex"), value.Int(end), c.runtime.table, true, false, false)
	}

	elems := make([]value.Value, len(m.Groups))
	for i, g := range m.Groups {
		if g.Matched {
			elems[i] = value.StrFromGo(g.Value)
		} else {
			elems[i] = value.Undefined
		}
	}
	arr := value.NewArrayObject(c.realm.ArrayProto, c.runtime.table, elems)
	arr.SetData(c.runtime.table.Intern("index"), value.Int(m.Index), c.runtime.table, true, true, true)
	arr.SetData(c.runtime.table.Intern("input"), value.StrFromGo(input), c.runtime.table, true, true, true)
	return value.Obj(arr), nil
}

// installObjectAssign registers the global Object constructor with a
// static "assign" method, the lowering target of object-literal spread
// (§4.6).
func installObjectAssign(c *Context) {
	ctorRec := &value.FunctionRecord{Kind: value.FuncNative, Name: "Object", Length: 1}
	ctorRec.Native = func(ctx interface{}, this value.Value, args []value.Value) (value.Value, error) {
		if len(args) > 0 && args[0].IsObject() {
			return args[0], nil
		}
		return value.Obj(value.NewObject(c.realm.ObjectProto)), nil
	}
	ctor := value.NewFunctionObject(ctorRec, c.realm.FunctionProto)
	ctor.SetData(c.runtime.table.Intern("prototype"), value.Obj(c.realm.ObjectProto), c.runtime.table, false, false, false)

	assignRec := &value.FunctionRecord{Kind: value.FuncNative, Name: "assign", Length: 2}
	assignRec.Native = func(ctx interface{}, this value.Value, args []value.Value) (value.Value, error) {
		if len(args) == 0 || !args[0].IsObject() {
			return value.Undefined, value.NewTypeError("Object.assign target must be an object")
		}
		target := args[0].AsObject()
		for _, src := range args[1:] {
			if !src.IsObject() {
				continue
			}
			srcObj := src.AsObject()
			for _, key := range srcObj.OwnKeys(c.runtime.table) {
				desc, ok := srcObj.GetOwn(key, c.runtime.table)
				if !ok || !desc.Enumerable {
					continue
				}
				v, err := srcObj.Get(key, c.runtime.table, src, c.vm)
				if err != nil {
					return value.Undefined, err
				}
				if _, err := target.Set(key, v, c.runtime.table, target, c.vm, true); err != nil {
					return value.Undefined, err
				}
			}
		}
		return args[0], nil
	}
	ctor.SetData(c.runtime.table.Intern("assign"), value.Obj(value.NewFunctionObject(assignRec, c.realm.FunctionProto)), c.runtime.table, true, false, true)

	c.realm.Global.SetData(c.runtime.table.Intern("Object"), value.Obj(ctor), c.runtime.table, true, false, true)
}

// installConsole registers a minimal console.log/error/warn, an embedding
// convenience rather than a spec'd built-in (§1 lists the built-in library
// surface, console included, as out of core scope — this is the thin
// registration an embedder would otherwise have to supply itself, kept
// here only so cmd/probejs's repl/eval subcommands have somewhere for
// script output to go).
func installConsole(c *Context) {
	console := value.NewObject(c.realm.ObjectProto)
	log := func(ctx interface{}, this value.Value, args []value.Value) (value.Value, error) {
		parts := make([]interface{}, len(args))
		for i, a := range args {
			s, err := value.ToString(a, c.runtime.table, c.vm)
			if err != nil {
				return value.Undefined, err
			}
			parts[i] = s.Go()
		}
		fmt.Println(parts...)
		return value.Undefined, nil
	}
	for _, name := range []string{"log", "error", "warn", "info", "debug"} {
		rec := &value.FunctionRecord{Kind: value.FuncNative, Name: name, Length: 0, Native: log}
		console.SetData(c.runtime.table.Intern(name), value.Obj(value.NewFunctionObject(rec, c.realm.FunctionProto)), c.runtime.table, true, false, true)
	}
	c.realm.Global.SetData(c.runtime.table.Intern("console"), value.Obj(console), c.runtime.table, true, false, true)
}
