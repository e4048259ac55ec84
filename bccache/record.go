// Copyright 2024 The probejs Authors
// This file is part of probejs.

// Package bccache implements §6's persisted bytecode binary format: a
// two-tier cache (in-memory, then on-disk) keyed by a hash of the source
// text, so re-evaluating the same script skips lexing/parsing/compiling
// entirely on a cache hit.
package bccache

import (
	"fmt"

	"github.com/probejs/probejs/atom"
	"github.com/probejs/probejs/value"
	"github.com/probejs/probejs/value/bigint"
)

// constRecord is the portable form of a value.Value held in a CodeObject's
// constant pool. The compiler only ever pushes numbers, strings, and
// bigints into the pool (everything else — undefined, null, booleans —
// has its own dedicated opcode), so those are the only kinds this format
// needs to carry.
type constRecord struct {
	Kind string // "number", "string", "bigint"
	Num  float64
	Str  string
}

type upvalueRecord struct {
	IsLocal bool
	Index   int
}

type exceptionRecord struct {
	TryStart   int
	TryEnd     int
	Handler    int
	HasFinally bool
	Finally    int
	StackDepth int
}

type lineRecord struct {
	PC   int
	Line int
}

type templateRecord struct {
	Quasis []string
	Raw    []string
}

type classMemberRecord struct {
	Key       string
	InnerIdx  int
	FieldInit int
	Kind      string
	Static    bool
	Private   bool
}

type classInfoRecord struct {
	Name      string
	CtorInner int
	HasSuper  bool
	Members   []classMemberRecord
}

// codeRecord mirrors value.CodeObject with every atom.Table/process-local
// reference (atom.Atom, *value.Object) replaced by a portable name or
// value, so gob can serialize it and a later process — with its own atom
// table — can reconstruct an equivalent CodeObject.
type codeRecord struct {
	Name string

	Instructions []byte
	Constants    []constRecord
	Atoms        []string

	ParamCount   int
	LocalsCount  int
	MaxStack     int
	HasRestParam bool

	IsArrow     bool
	IsGenerator bool
	IsAsync     bool

	Upvalues       []upvalueRecord
	ExceptionTable []exceptionRecord
	Lines          []lineRecord

	SourceFile    string
	SourceSnippet string

	Inner         []*codeRecord
	ClassInfo     []classInfoRecord
	TemplateSites []templateRecord
}

// encode converts a compiled CodeObject into its portable record, resolving
// every atom.Atom to its interned name via table.
func encode(code *value.CodeObject, table *atom.Table) (*codeRecord, error) {
	rec := &codeRecord{
		Name:          code.Name,
		Instructions:  code.Instructions,
		ParamCount:    code.ParamCount,
		LocalsCount:   code.LocalsCount,
		MaxStack:      code.MaxStack,
		HasRestParam:  code.HasRestParam,
		IsArrow:       code.IsArrow,
		IsGenerator:   code.IsGenerator,
		IsAsync:       code.IsAsync,
		SourceFile:    code.SourceFile,
		SourceSnippet: code.SourceSnippet,
	}

	for _, c := range code.Constants {
		cr, err := encodeConst(c)
		if err != nil {
			return nil, err
		}
		rec.Constants = append(rec.Constants, cr)
	}

	for _, a := range code.Atoms {
		name, ok := table.NameOf(a)
		if !ok {
			return nil, fmt.Errorf("bccache: atom %d has no interned name", a)
		}
		rec.Atoms = append(rec.Atoms, name)
	}

	for _, uv := range code.Upvalues {
		rec.Upvalues = append(rec.Upvalues, upvalueRecord{IsLocal: uv.IsLocal, Index: uv.Index})
	}
	for _, h := range code.ExceptionTable {
		rec.ExceptionTable = append(rec.ExceptionTable, exceptionRecord{
			TryStart: h.TryStart, TryEnd: h.TryEnd, Handler: h.Handler,
			HasFinally: h.HasFinally, Finally: h.Finally, StackDepth: h.StackDepth,
		})
	}
	for _, l := range code.Lines {
		rec.Lines = append(rec.Lines, lineRecord{PC: l.PC, Line: l.Line})
	}
	for _, t := range code.TemplateSites {
		rec.TemplateSites = append(rec.TemplateSites, templateRecord{Quasis: t.Quasis, Raw: t.Raw})
	}
	for _, ci := range code.ClassInfo {
		cir := classInfoRecord{Name: ci.Name, CtorInner: ci.CtorInner, HasSuper: ci.HasSuper}
		for _, m := range ci.Members {
			keyName, ok := table.NameOf(m.Key)
			if !ok {
				return nil, fmt.Errorf("bccache: class member key %d has no interned name", m.Key)
			}
			cir.Members = append(cir.Members, classMemberRecord{
				Key: keyName, InnerIdx: m.InnerIdx, FieldInit: m.FieldInit,
				Kind: m.Kind, Static: m.Static, Private: m.Private,
			})
		}
		rec.ClassInfo = append(rec.ClassInfo, cir)
	}

	for _, inner := range code.Inner {
		ir, err := encode(inner, table)
		if err != nil {
			return nil, err
		}
		rec.Inner = append(rec.Inner, ir)
	}
	return rec, nil
}

// decode rebuilds a CodeObject from rec, interning every atom name into
// table — possibly minting new atoms if this process has never seen that
// name before, which is exactly the behavior a fresh atom.Table needs.
func decode(rec *codeRecord, table *atom.Table) (*value.CodeObject, error) {
	code := &value.CodeObject{
		Name:          rec.Name,
		Instructions:  rec.Instructions,
		ParamCount:    rec.ParamCount,
		LocalsCount:   rec.LocalsCount,
		MaxStack:      rec.MaxStack,
		HasRestParam:  rec.HasRestParam,
		IsArrow:       rec.IsArrow,
		IsGenerator:   rec.IsGenerator,
		IsAsync:       rec.IsAsync,
		SourceFile:    rec.SourceFile,
		SourceSnippet: rec.SourceSnippet,
	}

	for _, cr := range rec.Constants {
		v, err := decodeConst(cr)
		if err != nil {
			return nil, err
		}
		code.Constants = append(code.Constants, v)
	}
	for _, name := range rec.Atoms {
		code.Atoms = append(code.Atoms, table.Intern(name))
	}
	for _, uv := range rec.Upvalues {
		code.Upvalues = append(code.Upvalues, value.UpvalueDesc{IsLocal: uv.IsLocal, Index: uv.Index})
	}
	for _, h := range rec.ExceptionTable {
		code.ExceptionTable = append(code.ExceptionTable, value.ExceptionHandler{
			TryStart: h.TryStart, TryEnd: h.TryEnd, Handler: h.Handler,
			HasFinally: h.HasFinally, Finally: h.Finally, StackDepth: h.StackDepth,
		})
	}
	for _, l := range rec.Lines {
		code.Lines = append(code.Lines, value.LineEntry{PC: l.PC, Line: l.Line})
	}
	for _, t := range rec.TemplateSites {
		code.TemplateSites = append(code.TemplateSites, value.TemplateSite{Quasis: t.Quasis, Raw: t.Raw})
	}
	for _, cir := range rec.ClassInfo {
		ci := value.ClassInfo{Name: cir.Name, CtorInner: cir.CtorInner, HasSuper: cir.HasSuper}
		for _, m := range cir.Members {
			ci.Members = append(ci.Members, value.ClassMemberInfo{
				Key: table.Intern(m.Key), InnerIdx: m.InnerIdx, FieldInit: m.FieldInit,
				Kind: m.Kind, Static: m.Static, Private: m.Private,
			})
		}
		code.ClassInfo = append(code.ClassInfo, ci)
	}

	for _, ir := range rec.Inner {
		inner, err := decode(ir, table)
		if err != nil {
			return nil, err
		}
		code.Inner = append(code.Inner, inner)
	}
	return code, nil
}

func encodeConst(v value.Value) (constRecord, error) {
	switch v.Kind() {
	case value.KindNumber:
		return constRecord{Kind: "number", Num: v.AsNumber()}, nil
	case value.KindString:
		return constRecord{Kind: "string", Str: v.AsString().Go()}, nil
	case value.KindBigInt:
		return constRecord{Kind: "bigint", Str: v.AsBigInt().String()}, nil
	default:
		return constRecord{}, fmt.Errorf("bccache: constant pool entry of kind %s is not persistable", v.Kind())
	}
}

func decodeConst(cr constRecord) (value.Value, error) {
	switch cr.Kind {
	case "number":
		return value.Number(cr.Num), nil
	case "string":
		return value.StrFromGo(cr.Str), nil
	case "bigint":
		b, ok := bigint.FromDecimalString(cr.Str)
		if !ok {
			return value.Undefined, fmt.Errorf("bccache: malformed bigint constant %q", cr.Str)
		}
		return value.BigInt(b), nil
	default:
		return value.Undefined, fmt.Errorf("bccache: unknown constant kind %q", cr.Kind)
	}
}
