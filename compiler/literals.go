// Copyright 2024 The probejs Authors
// This file is part of probejs.

package compiler

import (
	"fmt"

	"github.com/probejs/probejs/ast"
	"github.com/probejs/probejs/opcode"
	"github.com/probejs/probejs/value"
)

// ---------------------------------------------------------------------------
// Arrays / objects
// ---------------------------------------------------------------------------

func (fc *fnCompiler) compileArrayLiteral(a *ast.ArrayLiteral) error {
	spread := false
	for _, e := range a.Elements {
		if _, ok := e.(*ast.SpreadElement); ok {
			spread = true
			break
		}
	}
	for _, e := range a.Elements {
		switch el := e.(type) {
		case nil:
			fc.emitOp(opcode.OpUndefined)
		case *ast.SpreadElement:
			if err := fc.compileExpression(el.Arg); err != nil {
				return err
			}
			fc.emitOp(opcode.OpSpreadMarker)
		default:
			if err := fc.compileExpression(el); err != nil {
				return err
			}
		}
	}
	if spread {
		fc.emitOpU16(opcode.OpNewArraySpread, len(a.Elements))
	} else {
		fc.emitOpU16(opcode.OpNewArray, len(a.Elements))
	}
	return nil
}

func (fc *fnCompiler) objectKeyAtomIdx(p *ast.Property) (int, error) {
	if p.Computed {
		return 0, fmt.Errorf("%s: compiler: computed accessor/method keys are not supported", p.Key.Pos())
	}
	name, err := propertyKeyName(p.Key)
	if err != nil {
		return 0, err
	}
	return fc.addAtom(fc.table.Intern(name)), nil
}

// compileObjectLiteral stashes the object under construction in a temp
// local so every property/method/spread entry can reference it without
// fighting the operand stack for a deep-slot duplicate (§4.7's stack has
// only DUP/SWAP, neither reaches past the top two slots).
func (fc *fnCompiler) compileObjectLiteral(o *ast.ObjectLiteral) error {
	fc.emitOp(opcode.OpNewObject)
	tmp := fc.declareTemp()
	fc.emitOpU16(opcode.OpSetLocal, tmp)
	fc.emitOp(opcode.OpPop)

	for _, p := range o.Properties {
		switch p.Kind {
		case "spread":
			fc.emitOp(opcode.OpUndefined)
			fc.emitVarLoad("Object")
			assignAtom := fc.table.Intern("assign")
			fc.emitOpU16(opcode.OpGetProp, fc.addAtom(assignAtom))
			fc.emitOpU16(opcode.OpGetLocal, tmp)
			if err := fc.compileExpression(p.Value); err != nil {
				return err
			}
			fc.emitOpU16(opcode.OpCall, 2)
			fc.emitOp(opcode.OpPop)
		case "get", "set":
			fc.emitOpU16(opcode.OpGetLocal, tmp)
			fn, ok := p.Value.(*ast.FunctionLiteral)
			if !ok {
				return fmt.Errorf("%s: compiler: accessor value must be a function", p.Key.Pos())
			}
			if err := fc.compileFunctionLiteral(fn); err != nil {
				return err
			}
			key, err := fc.objectKeyAtomIdx(p)
			if err != nil {
				return err
			}
			if p.Kind == "get" {
				fc.emitOpU16(opcode.OpDefineGetter, key)
			} else {
				fc.emitOpU16(opcode.OpDefineSetter, key)
			}
			fc.emitOp(opcode.OpPop)
		case "method":
			fc.emitOpU16(opcode.OpGetLocal, tmp)
			fn, ok := p.Value.(*ast.FunctionLiteral)
			if !ok {
				return fmt.Errorf("%s: compiler: method value must be a function", p.Key.Pos())
			}
			if err := fc.compileFunctionLiteral(fn); err != nil {
				return err
			}
			key, err := fc.objectKeyAtomIdx(p)
			if err != nil {
				return err
			}
			fc.emitOpU16(opcode.OpDefineMethod, key)
			fc.emitOp(opcode.OpPop)
		default: // "init", including shorthand
			fc.emitOpU16(opcode.OpGetLocal, tmp)
			if p.Computed {
				if err := fc.compileExpression(p.Key); err != nil {
					return err
				}
				if err := fc.compileExpression(p.Value); err != nil {
					return err
				}
				fc.emitOp(opcode.OpSetElem)
			} else {
				if err := fc.compileExpression(p.Value); err != nil {
					return err
				}
				name, err := propertyKeyName(p.Key)
				if err != nil {
					return err
				}
				a := fc.table.Intern(name)
				fc.emitOpU16(opcode.OpSetProp, fc.addAtom(a))
			}
			fc.emitOp(opcode.OpPop)
		}
	}
	fc.emitOpU16(opcode.OpGetLocal, tmp)
	return nil
}

// ---------------------------------------------------------------------------
// Regex / template literals
// ---------------------------------------------------------------------------

// compileRegexLiteral defers to the runtime-registered RegExp constructor
// rather than a dedicated opcode, reusing the ordinary NEW call path (§4.5's
// regex literals are observably `new RegExp(pattern, flags)`).
func (fc *fnCompiler) compileRegexLiteral(r *ast.RegexLiteral) error {
	fc.emitVarLoad("RegExp")
	fc.emitOpU16(opcode.OpConst, fc.addConstant("s:"+r.Pattern, value.StrFromGo(r.Pattern)))
	fc.emitOpU16(opcode.OpConst, fc.addConstant("s:"+r.Flags, value.StrFromGo(r.Flags)))
	fc.emitOpU16(opcode.OpNew, 2)
	return nil
}

func (fc *fnCompiler) compileTemplateLiteral(t *ast.TemplateLiteral) error {
	fc.emitOpU16(opcode.OpConst, fc.addConstant("s:"+t.Quasis[0], value.StrFromGo(t.Quasis[0])))
	for i, expr := range t.Exprs {
		if err := fc.compileExpression(expr); err != nil {
			return err
		}
		fc.emitOp(opcode.OpAdd)
		fc.emitOpU16(opcode.OpConst, fc.addConstant("s:"+t.Quasis[i+1], value.StrFromGo(t.Quasis[i+1])))
		fc.emitOp(opcode.OpAdd)
	}
	return nil
}

func (fc *fnCompiler) compileTaggedTemplate(t *ast.TaggedTemplate) error {
	siteIdx := fc.addTemplateSite(t.Template.Quasis, t.Template.Raw)
	fc.emitOpU16(opcode.OpTemplateObject, siteIdx)
	tmpCooked := fc.declareTemp()
	fc.emitOpU16(opcode.OpSetLocal, tmpCooked)
	fc.emitOp(opcode.OpPop)

	if m, ok := t.Tag.(*ast.MemberExpr); ok {
		if err := fc.compileExpression(m.Object); err != nil {
			return err
		}
		fc.emitOp(opcode.OpDup)
		if err := fc.finishMemberGet(m); err != nil {
			return err
		}
	} else {
		fc.emitOp(opcode.OpUndefined)
		if err := fc.compileExpression(t.Tag); err != nil {
			return err
		}
	}
	fc.emitOpU16(opcode.OpGetLocal, tmpCooked)
	for _, e := range t.Template.Exprs {
		if err := fc.compileExpression(e); err != nil {
			return err
		}
	}
	fc.emitOpU16(opcode.OpCall, 1+len(t.Template.Exprs))
	return nil
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

func functionDisplayName(f *ast.FunctionLiteral) string {
	if f.Name != nil {
		return f.Name.Name
	}
	if f.IsArrow {
		return "<arrow>"
	}
	return "<anonymous>"
}

// compileFunctionLiteral compiles f into its own CodeObject, appends it to
// the enclosing function's Inner table, and emits MAKE_CLOSURE plus the
// upvalue capture list the new frame needs to copy out of this one.
func (fc *fnCompiler) compileFunctionLiteral(f *ast.FunctionLiteral) error {
	child := newFnCompiler(fc, fc.table, functionDisplayName(f), fc.filename)
	child.isArrow = f.IsArrow
	child.isGenerator = f.IsGen
	child.isAsync = f.IsAsync
	child.beginScope()

	if !f.IsArrow {
		child.declareLocal(thisBinding, false)
		child.declareLocal(newTargetBinding, false)
	}
	for _, p := range f.Params {
		if err := child.declareParam(p); err != nil {
			return err
		}
	}
	child.paramCount = len(f.Params)

	if f.Body != nil {
		for _, stmt := range f.Body.Body {
			if err := child.compileStatement(stmt); err != nil {
				return err
			}
		}
		child.emitOp(opcode.OpReturnUndefined)
	} else {
		if err := child.compileExpression(f.ExprBody); err != nil {
			return err
		}
		child.emitOp(opcode.OpReturn)
	}
	child.endScope()

	code := child.finish()
	fc.inner = append(fc.inner, code)
	idx := len(fc.inner) - 1
	fc.emitOpU16(opcode.OpMakeClosure, idx)
	for _, u := range child.upvalues {
		if u.isLocal {
			fc.emitByte(1)
		} else {
			fc.emitByte(0)
		}
		fc.emitU16(u.index)
	}
	return nil
}

// declareParam binds one parameter pattern: a plain identifier, a
// default-valued identifier (AssignExpr target=identifier), or a rest
// parameter (SpreadElement). Destructuring parameter patterns are not
// supported in this pass — see the same limitation on var declarators.
func (fc *fnCompiler) declareParam(p ast.Pattern) error {
	switch pat := p.(type) {
	case *ast.Identifier:
		fc.declareLocal(pat.Name, false)
		return nil
	case *ast.AssignExpr:
		id, ok := pat.Target.(*ast.Identifier)
		if !ok {
			return fmt.Errorf("%s: compiler: destructuring parameters are not yet supported", pat.Pos())
		}
		idx := fc.declareLocal(id.Name, false)
		// param ?? default, same short-circuit shape as compileLogicalExpr:
		// a nullish argument jumps to the default, any other skips it.
		fc.emitOpU16(opcode.OpGetLocal, idx)
		toDefault := fc.emitOpU16(opcode.OpJumpIfNullishKeep, 0)
		fc.emitOp(opcode.OpPop)
		skip := fc.emitOpU16(opcode.OpJump, 0)
		fc.patchU16At(toDefault+1, len(fc.code))
		fc.emitOp(opcode.OpPop)
		if err := fc.compileExpression(pat.Value); err != nil {
			return err
		}
		fc.emitOpU16(opcode.OpSetLocal, idx)
		fc.emitOp(opcode.OpPop)
		fc.patchU16At(skip+1, len(fc.code))
		return nil
	case *ast.SpreadElement:
		id, ok := pat.Arg.(*ast.Identifier)
		if !ok {
			return fmt.Errorf("%s: compiler: destructuring rest parameters are not yet supported", pat.Pos())
		}
		fc.declareLocal(id.Name, false)
		fc.hasRestParam = true
		return nil
	default:
		return fmt.Errorf("%s: compiler: destructuring parameters are not yet supported", p.Pos())
	}
}

// ---------------------------------------------------------------------------
// Classes
// ---------------------------------------------------------------------------

// compileClassLiteral builds a ClassInfo describing the class body and
// emits MAKE_CLASS; the superclass expression (or undefined) is pushed
// first so the VM can wire prototype chains before running field
// initializers.
func (fc *fnCompiler) compileClassLiteral(c *ast.ClassLiteral) error {
	if c.Super != nil {
		if err := fc.compileExpression(c.Super); err != nil {
			return err
		}
	} else {
		fc.emitOp(opcode.OpUndefined)
	}

	info := value.ClassInfo{CtorInner: -1, HasSuper: c.Super != nil}
	if c.Name != nil {
		info.Name = c.Name.Name
	}

	for _, m := range c.Members {
		if m.Kind == "constructor" {
			idx, err := fc.compileClassMethod(m, c.Super != nil)
			if err != nil {
				return err
			}
			info.CtorInner = idx
			continue
		}
		member := value.ClassMemberInfo{
			Kind: m.Kind, Static: m.Static, Private: m.Private,
			InnerIdx: -1, FieldInit: -1,
		}
		name, err := propertyKeyName(m.Key)
		if err != nil {
			return err
		}
		member.Key = fc.table.Intern(name)
		if m.Kind == "field" {
			if m.FieldVal != nil {
				idx, err := fc.compileFieldInitThunk(m.FieldVal, c.Super != nil)
				if err != nil {
					return err
				}
				member.FieldInit = idx
			}
		} else {
			idx, err := fc.compileClassMethod(m, c.Super != nil)
			if err != nil {
				return err
			}
			member.InnerIdx = idx
		}
		info.Members = append(info.Members, member)
	}

	fc.classInfo = append(fc.classInfo, info)
	fc.emitOpU16(opcode.OpMakeClass, len(fc.classInfo)-1)
	return nil
}

// compileClassMethod compiles one method/accessor/constructor body as its
// own CodeObject, binding %super%/%superctor% so `super.x`/`super(...)`
// resolve through the normal upvalue chain from nested arrows too.
func (fc *fnCompiler) compileClassMethod(m *ast.ClassMember, hasSuper bool) (int, error) {
	child := newFnCompiler(fc, fc.table, "<method>", fc.filename)
	child.beginScope()
	child.declareLocal(thisBinding, false)
	child.declareLocal(newTargetBinding, false)
	if hasSuper {
		child.declareLocal(superProtoBinding, false)
		child.declareLocal(superCtorBinding, false)
	}
	for _, p := range m.Value.Params {
		if err := child.declareParam(p); err != nil {
			return 0, err
		}
	}
	child.paramCount = len(m.Value.Params)
	child.isGenerator = m.Value.IsGen
	child.isAsync = m.Value.IsAsync

	for _, stmt := range m.Value.Body.Body {
		if err := child.compileStatement(stmt); err != nil {
			return 0, err
		}
	}
	child.emitOp(opcode.OpReturnUndefined)
	child.endScope()

	code := child.finish()
	fc.inner = append(fc.inner, code)
	return len(fc.inner) - 1, nil
}

// compileFieldInitThunk wraps a field initializer expression in a
// zero-argument CodeObject the VM invokes with `this` bound to the new
// instance while wiring up the constructor (§4.5's class field semantics).
func (fc *fnCompiler) compileFieldInitThunk(init ast.Expression, hasSuper bool) (int, error) {
	child := newFnCompiler(fc, fc.table, "<field-init>", fc.filename)
	child.beginScope()
	child.declareLocal(thisBinding, false)
	child.declareLocal(newTargetBinding, false)
	if hasSuper {
		child.declareLocal(superProtoBinding, false)
		child.declareLocal(superCtorBinding, false)
	}
	if err := child.compileExpression(init); err != nil {
		return 0, err
	}
	child.emitOp(opcode.OpReturn)
	child.endScope()

	code := child.finish()
	fc.inner = append(fc.inner, code)
	return len(fc.inner) - 1, nil
}
