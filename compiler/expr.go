// Copyright 2024 The probejs Authors
// This file is part of probejs.

package compiler

import (
	"fmt"
	"strings"

	"github.com/probejs/probejs/ast"
	"github.com/probejs/probejs/opcode"
	"github.com/probejs/probejs/value"
	"github.com/probejs/probejs/value/bigint"
)

var binOpTable = map[string]opcode.Op{
	"+": opcode.OpAdd, "-": opcode.OpSub, "*": opcode.OpMul, "/": opcode.OpDiv,
	"%": opcode.OpMod, "**": opcode.OpPow,
	"&": opcode.OpBitAnd, "|": opcode.OpBitOr, "^": opcode.OpBitXor,
	"<<": opcode.OpShl, ">>": opcode.OpShr, ">>>": opcode.OpUShr,
	"==": opcode.OpEq, "!=": opcode.OpNeq, "===": opcode.OpSEq, "!==": opcode.OpSNeq,
	"<": opcode.OpLt, "<=": opcode.OpLte, ">": opcode.OpGt, ">=": opcode.OpGte,
	"instanceof": opcode.OpInstanceOf, "in": opcode.OpIn,
}

func (fc *fnCompiler) compileExpression(expr ast.Expression) error {
	switch e := expr.(type) {
	case *ast.Identifier:
		fc.emitVarLoad(e.Name)
	case *ast.NumberLiteral:
		fc.emitOpU16(opcode.OpConst, fc.addConstant(fmt.Sprintf("n:%v", e.Value), value.Number(e.Value)))
	case *ast.BigIntLiteral:
		b, _ := bigint.FromDecimalString(e.Raw)
		fc.emitOpU16(opcode.OpConst, fc.addConstant("big:"+e.Raw, value.BigInt(b)))
	case *ast.StringLiteral:
		fc.emitOpU16(opcode.OpConst, fc.addConstant("s:"+e.Value, value.StrFromGo(e.Value)))
	case *ast.BoolLiteral:
		if e.Value {
			fc.emitOp(opcode.OpTrue)
		} else {
			fc.emitOp(opcode.OpFalse)
		}
	case *ast.NullLiteral:
		fc.emitOp(opcode.OpNull)
	case *ast.RegexLiteral:
		return fc.compileRegexLiteral(e)
	case *ast.TemplateLiteral:
		return fc.compileTemplateLiteral(e)
	case *ast.TaggedTemplate:
		return fc.compileTaggedTemplate(e)
	case *ast.ArrayLiteral:
		return fc.compileArrayLiteral(e)
	case *ast.ObjectLiteral:
		return fc.compileObjectLiteral(e)
	case *ast.FunctionLiteral:
		return fc.compileFunctionLiteral(e)
	case *ast.ClassLiteral:
		return fc.compileClassLiteral(e)
	case *ast.UnaryExpr:
		return fc.compileUnaryExpr(e)
	case *ast.BinaryExpr:
		return fc.compileBinaryExpr(e)
	case *ast.LogicalExpr:
		return fc.compileLogicalExpr(e)
	case *ast.AssignExpr:
		return fc.compileAssignExpr(e)
	case *ast.ConditionalExpr:
		return fc.compileConditionalExpr(e)
	case *ast.CallExpr:
		return fc.compileCallExpr(e)
	case *ast.NewExpr:
		return fc.compileNewExpr(e)
	case *ast.MemberExpr:
		return fc.compileMemberRead(e)
	case *ast.SequenceExpr:
		return fc.compileSequenceExpr(e)
	case *ast.ThisExpr:
		fc.emitVarLoad(thisBinding)
	case *ast.SuperExpr:
		fc.emitVarLoad(superProtoBinding)
	case *ast.YieldExpr:
		return fc.compileYieldExpr(e)
	case *ast.AwaitExpr:
		if err := fc.compileExpression(e.Arg); err != nil {
			return err
		}
		fc.emitOp(opcode.OpAwait)
	case *ast.SpreadElement:
		// Bare spread outside an argument/array/object position is a parse
		// error upstream; reaching here would be a compiler bug rather than
		// a user-facing one.
		return fmt.Errorf("%s: compiler: spread element outside argument/array/object position", e.Pos())
	default:
		return fmt.Errorf("%s: compiler: unsupported expression %T", expr.Pos(), expr)
	}
	return nil
}

// Reserved binding names threaded through locals/upvalues exactly like any
// other lexical name, so `this` in an arrow function resolves through the
// normal upvalue-capture chain to its nearest enclosing ordinary function —
// no separate "lexical this" mechanism is needed in the VM.
const (
	thisBinding       = "%this%"
	superProtoBinding = "%super%"
	superCtorBinding  = "%superctor%"
	newTargetBinding  = "%newtarget%"
)

func (fc *fnCompiler) emitVarLoad(name string) {
	if idx, ok := fc.resolveLocal(name); ok {
		fc.emitOpU16(opcode.OpGetLocal, idx)
		return
	}
	if idx, ok := fc.resolveUpvalue(name); ok {
		fc.emitOpU16(opcode.OpGetUpvalue, idx)
		return
	}
	a := fc.table.Intern(name)
	fc.emitOpU16(opcode.OpGetGlobal, fc.addAtom(a))
}

func (fc *fnCompiler) emitVarStore(name string) {
	if idx, ok := fc.resolveLocal(name); ok {
		fc.emitOpU16(opcode.OpSetLocal, idx)
		return
	}
	if idx, ok := fc.resolveUpvalue(name); ok {
		fc.emitOpU16(opcode.OpSetUpvalue, idx)
		return
	}
	a := fc.table.Intern(name)
	fc.emitOpU16(opcode.OpSetGlobal, fc.addAtom(a))
}

func (fc *fnCompiler) declareTemp() int {
	idx := len(fc.locals)
	return fc.declareLocal(fmt.Sprintf("%%tmp%d%%", idx), false)
}

func propertyKeyName(prop ast.Expression) (string, error) {
	switch p := prop.(type) {
	case *ast.Identifier:
		return p.Name, nil
	case *ast.StringLiteral:
		return p.Value, nil
	case *ast.PrivateName:
		return p.Name, nil
	default:
		return "", fmt.Errorf("%s: compiler: invalid property key", prop.Pos())
	}
}

// ---------------------------------------------------------------------------
// Member access
// ---------------------------------------------------------------------------

func (fc *fnCompiler) compileMemberRead(m *ast.MemberExpr) error {
	if sup, ok := m.Object.(*ast.SuperExpr); ok {
		_ = sup
		fc.emitVarLoad(superProtoBinding)
		return fc.finishMemberGet(m)
	}
	if err := fc.compileExpression(m.Object); err != nil {
		return err
	}
	return fc.finishMemberGet(m)
}

// finishMemberGet assumes the object is already on top of stack and emits
// the GET_ELEM/GET_PROP/GET_PRIVATE that consumes it.
func (fc *fnCompiler) finishMemberGet(m *ast.MemberExpr) error {
	if m.Computed {
		if err := fc.compileExpression(m.Property); err != nil {
			return err
		}
		fc.emitOp(opcode.OpGetElem)
		return nil
	}
	if pn, ok := m.Property.(*ast.PrivateName); ok {
		a := fc.table.Intern(pn.Name)
		fc.emitOpU16(opcode.OpGetPrivate, fc.addAtom(a))
		return nil
	}
	name, err := propertyKeyName(m.Property)
	if err != nil {
		return err
	}
	a := fc.table.Intern(name)
	if m.Optional {
		fc.emitOpU16(opcode.OpGetPropOptional, fc.addAtom(a))
	} else {
		fc.emitOpU16(opcode.OpGetProp, fc.addAtom(a))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Assignment
// ---------------------------------------------------------------------------

// compileAssign pushes target's reference components (object/key for a
// member target; nothing for an identifier), invokes compileValue to push
// the value to store, then emits the matching store opcode. The stored
// value is left on the operand stack (the Set* family does not pop).
func (fc *fnCompiler) compileAssign(target ast.Expression, compileValue func() error) error {
	switch t := target.(type) {
	case *ast.Identifier:
		if err := compileValue(); err != nil {
			return err
		}
		fc.emitVarStore(t.Name)
		return nil
	case *ast.MemberExpr:
		if sup, ok := t.Object.(*ast.SuperExpr); ok {
			_ = sup
			fc.emitVarLoad(superProtoBinding)
		} else if err := fc.compileExpression(t.Object); err != nil {
			return err
		}
		if t.Computed {
			if err := fc.compileExpression(t.Property); err != nil {
				return err
			}
			if err := compileValue(); err != nil {
				return err
			}
			fc.emitOp(opcode.OpSetElem)
			return nil
		}
		if pn, ok := t.Property.(*ast.PrivateName); ok {
			a := fc.table.Intern(pn.Name)
			if err := compileValue(); err != nil {
				return err
			}
			fc.emitOpU16(opcode.OpSetPrivate, fc.addAtom(a))
			return nil
		}
		name, err := propertyKeyName(t.Property)
		if err != nil {
			return err
		}
		a := fc.table.Intern(name)
		if err := compileValue(); err != nil {
			return err
		}
		fc.emitOpU16(opcode.OpSetProp, fc.addAtom(a))
		return nil
	default:
		return fmt.Errorf("%s: compiler: invalid assignment target", target.Pos())
	}
}

func (fc *fnCompiler) compileAssignExpr(a *ast.AssignExpr) error {
	switch a.Op {
	case "=":
		return fc.compileAssign(a.Target, func() error { return fc.compileExpression(a.Value) })
	case "&&=":
		return fc.compileLogicalAssign(a, opcode.OpJumpIfTruthyKeep)
	case "||=":
		return fc.compileLogicalAssign(a, opcode.OpJumpIfFalsyKeep)
	case "??=":
		return fc.compileLogicalAssign(a, opcode.OpJumpIfNullishKeep)
	default:
		binOp, ok := binOpTable[strings.TrimSuffix(a.Op, "=")]
		if !ok {
			return fmt.Errorf("%s: compiler: unsupported assignment operator %q", a.Pos(), a.Op)
		}
		return fc.compileAssign(a.Target, func() error {
			if err := fc.compileExpression(a.Target); err != nil {
				return err
			}
			if err := fc.compileExpression(a.Value); err != nil {
				return err
			}
			fc.emitOp(binOp)
			return nil
		})
	}
}

// compileLogicalAssign implements &&=/||=/??=: the gate opcode jumps to the
// assignment path when its condition holds (truthy/falsy/nullish
// respectively), otherwise the read value falls through as the result
// without evaluating a.Value (§4.5 short-circuiting assignment).
func (fc *fnCompiler) compileLogicalAssign(a *ast.AssignExpr, gate opcode.Op) error {
	if err := fc.compileExpression(a.Target); err != nil {
		return err
	}
	jmpToAssign := fc.emitOpU16(gate, 0)
	jmpToEnd := fc.emitOpU16(opcode.OpJump, 0)
	fc.patchU16At(jmpToAssign+1, len(fc.code))
	fc.emitOp(opcode.OpPop)
	if err := fc.compileAssign(a.Target, func() error { return fc.compileExpression(a.Value) }); err != nil {
		return err
	}
	fc.patchU16At(jmpToEnd+1, len(fc.code))
	return nil
}

// compileAssignFromStack stores a value that is already sitting on top of
// the operand stack into target, used where the value comes from preceding
// bytecode rather than a fresh expression (a for-of/for-in loop variable
// produced by ITER_NEXT). The stored value is left on top afterward, same
// as compileAssign.
func (fc *fnCompiler) compileAssignFromStack(target ast.Expression) error {
	if id, ok := target.(*ast.Identifier); ok {
		fc.emitVarStore(id.Name)
		return nil
	}
	tmp := fc.declareTemp()
	fc.emitOpU16(opcode.OpSetLocal, tmp)
	fc.emitOp(opcode.OpPop)
	return fc.compileAssign(target, func() error {
		fc.emitOpU16(opcode.OpGetLocal, tmp)
		return nil
	})
}

// ---------------------------------------------------------------------------
// Update expressions (++/--)
// ---------------------------------------------------------------------------

func (fc *fnCompiler) compileUpdateExpr(u *ast.UnaryExpr) error {
	incOp := opcode.OpInc
	if u.Op == "--" {
		incOp = opcode.OpDec
	}
	if err := fc.compileExpression(u.Arg); err != nil {
		return err
	}
	tempOld := fc.declareTemp()
	fc.emitOpU16(opcode.OpSetLocal, tempOld)
	fc.emitOp(opcode.OpPop)
	if err := fc.compileAssign(u.Arg, func() error {
		fc.emitOpU16(opcode.OpGetLocal, tempOld)
		fc.emitOp(incOp)
		return nil
	}); err != nil {
		return err
	}
	if u.Prefix {
		return nil
	}
	fc.emitOp(opcode.OpPop)
	fc.emitOpU16(opcode.OpGetLocal, tempOld)
	return nil
}

// ---------------------------------------------------------------------------
// Unary / binary / logical / conditional / sequence
// ---------------------------------------------------------------------------

func (fc *fnCompiler) compileUnaryExpr(u *ast.UnaryExpr) error {
	if u.Op == "++" || u.Op == "--" {
		return fc.compileUpdateExpr(u)
	}
	if u.Op == "delete" {
		return fc.compileDelete(u.Arg)
	}
	if err := fc.compileExpression(u.Arg); err != nil {
		return err
	}
	switch u.Op {
	case "-":
		fc.emitOp(opcode.OpNeg)
	case "+":
		// No dedicated ToNumber opcode; double negation coerces a numeric
		// operand while preserving sign, including -0.
		fc.emitOp(opcode.OpNeg)
		fc.emitOp(opcode.OpNeg)
	case "!":
		fc.emitOp(opcode.OpNot)
	case "~":
		fc.emitOp(opcode.OpBitNot)
	case "typeof":
		fc.emitOp(opcode.OpTypeof)
	case "void":
		fc.emitOp(opcode.OpVoid)
	default:
		return fmt.Errorf("%s: compiler: unsupported unary operator %q", u.Pos(), u.Op)
	}
	return nil
}

func (fc *fnCompiler) compileDelete(arg ast.Expression) error {
	m, ok := arg.(*ast.MemberExpr)
	if !ok {
		if err := fc.compileExpression(arg); err != nil {
			return err
		}
		fc.emitOp(opcode.OpPop)
		fc.emitOp(opcode.OpTrue)
		return nil
	}
	if err := fc.compileExpression(m.Object); err != nil {
		return err
	}
	if m.Computed {
		if err := fc.compileExpression(m.Property); err != nil {
			return err
		}
		fc.emitOp(opcode.OpDeleteElem)
		return nil
	}
	name, err := propertyKeyName(m.Property)
	if err != nil {
		return err
	}
	a := fc.table.Intern(name)
	fc.emitOpU16(opcode.OpDeleteProp, fc.addAtom(a))
	return nil
}

func (fc *fnCompiler) compileBinaryExpr(b *ast.BinaryExpr) error {
	if err := fc.compileExpression(b.Left); err != nil {
		return err
	}
	if err := fc.compileExpression(b.Right); err != nil {
		return err
	}
	op, ok := binOpTable[b.Op]
	if !ok {
		return fmt.Errorf("%s: compiler: unsupported binary operator %q", b.Pos(), b.Op)
	}
	fc.emitOp(op)
	return nil
}

func (fc *fnCompiler) compileLogicalExpr(l *ast.LogicalExpr) error {
	if err := fc.compileExpression(l.Left); err != nil {
		return err
	}
	var gate opcode.Op
	switch l.Op {
	case "&&":
		gate = opcode.OpJumpIfFalsyKeep
	case "||":
		gate = opcode.OpJumpIfTruthyKeep
	case "??":
		// JumpIfNullishKeep jumps when the left value is nullish, so it
		// routes to the right operand; any other left value jumps past it.
		toRight := fc.emitOpU16(opcode.OpJumpIfNullishKeep, 0)
		toEnd := fc.emitOpU16(opcode.OpJump, 0)
		fc.patchU16At(toRight+1, len(fc.code))
		fc.emitOp(opcode.OpPop)
		if err := fc.compileExpression(l.Right); err != nil {
			return err
		}
		fc.patchU16At(toEnd+1, len(fc.code))
		return nil
	default:
		return fmt.Errorf("%s: compiler: unsupported logical operator %q", l.Pos(), l.Op)
	}
	jmp := fc.emitOpU16(gate, 0)
	fc.emitOp(opcode.OpPop)
	if err := fc.compileExpression(l.Right); err != nil {
		return err
	}
	fc.patchU16At(jmp+1, len(fc.code))
	return nil
}

func (fc *fnCompiler) compileConditionalExpr(c *ast.ConditionalExpr) error {
	if err := fc.compileExpression(c.Test); err != nil {
		return err
	}
	jElse := fc.emitOpU16(opcode.OpJumpIfFalse, 0)
	if err := fc.compileExpression(c.Cons); err != nil {
		return err
	}
	jEnd := fc.emitOpU16(opcode.OpJump, 0)
	fc.patchU16At(jElse+1, len(fc.code))
	if err := fc.compileExpression(c.Alt); err != nil {
		return err
	}
	fc.patchU16At(jEnd+1, len(fc.code))
	return nil
}

func (fc *fnCompiler) compileSequenceExpr(s *ast.SequenceExpr) error {
	for i, e := range s.Exprs {
		if err := fc.compileExpression(e); err != nil {
			return err
		}
		if i < len(s.Exprs)-1 {
			fc.emitOp(opcode.OpPop)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Calls / new
// ---------------------------------------------------------------------------

func hasSpreadArg(args []ast.Expression) bool {
	for _, a := range args {
		if _, ok := a.(*ast.SpreadElement); ok {
			return true
		}
	}
	return false
}

func (fc *fnCompiler) compileArgs(args []ast.Expression) error {
	for _, a := range args {
		if sp, ok := a.(*ast.SpreadElement); ok {
			if err := fc.compileExpression(sp.Arg); err != nil {
				return err
			}
			fc.emitOp(opcode.OpSpreadMarker)
			continue
		}
		if err := fc.compileExpression(a); err != nil {
			return err
		}
	}
	return nil
}

func (fc *fnCompiler) compileCallExpr(c *ast.CallExpr) error {
	spread := hasSpreadArg(c.Args)

	if _, ok := c.Callee.(*ast.SuperExpr); ok {
		// super(...): run the parent constructor's body against the
		// already-allocated `this`, not a fresh [[Construct]].
		fc.emitVarLoad(thisBinding)
		fc.emitVarLoad(superCtorBinding)
		if err := fc.compileArgs(c.Args); err != nil {
			return err
		}
		if spread {
			fc.emitOpU16(opcode.OpSpreadCall, len(c.Args))
		} else {
			fc.emitOpU16(opcode.OpCallMethod, len(c.Args))
		}
		return nil
	}

	if m, ok := c.Callee.(*ast.MemberExpr); ok {
		// Method call: push `this` then the resolved function without
		// evaluating the receiver expression twice.
		if sup, ok := m.Object.(*ast.SuperExpr); ok {
			_ = sup
			fc.emitVarLoad(thisBinding)
			fc.emitVarLoad(superProtoBinding)
			if err := fc.finishMemberGet(m); err != nil {
				return err
			}
		} else {
			if err := fc.compileExpression(m.Object); err != nil {
				return err
			}
			// Duplicate the receiver so one copy survives as `this` while
			// finishMemberGet consumes the other resolving the method.
			fc.emitOp(opcode.OpDup)
			if err := fc.finishMemberGet(m); err != nil {
				return err
			}
			// stack: [this, fn]
		}
		if err := fc.compileArgs(c.Args); err != nil {
			return err
		}
		switch {
		case spread:
			fc.emitOpU16(opcode.OpSpreadCall, len(c.Args))
		case c.Optional:
			fc.emitOpU16(opcode.OpCallOptional, len(c.Args))
		default:
			fc.emitOpU16(opcode.OpCallMethod, len(c.Args))
		}
		return nil
	}

	// Plain call: `this` is undefined.
	fc.emitOp(opcode.OpUndefined)
	if err := fc.compileExpression(c.Callee); err != nil {
		return err
	}
	if err := fc.compileArgs(c.Args); err != nil {
		return err
	}
	switch {
	case spread:
		fc.emitOpU16(opcode.OpSpreadCall, len(c.Args))
	case c.Optional:
		fc.emitOpU16(opcode.OpCallOptional, len(c.Args))
	default:
		fc.emitOpU16(opcode.OpCall, len(c.Args))
	}
	return nil
}

func (fc *fnCompiler) compileNewExpr(n *ast.NewExpr) error {
	if err := fc.compileExpression(n.Callee); err != nil {
		return err
	}
	if err := fc.compileArgs(n.Args); err != nil {
		return err
	}
	if hasSpreadArg(n.Args) {
		fc.emitOpU16(opcode.OpSpreadNew, len(n.Args))
	} else {
		fc.emitOpU16(opcode.OpNew, len(n.Args))
	}
	return nil
}

// ---------------------------------------------------------------------------
// yield
// ---------------------------------------------------------------------------

func (fc *fnCompiler) compileYieldExpr(y *ast.YieldExpr) error {
	if y.Arg != nil {
		if err := fc.compileExpression(y.Arg); err != nil {
			return err
		}
	} else {
		fc.emitOp(opcode.OpUndefined)
	}
	if y.Delegate {
		fc.emitOp(opcode.OpYieldStar)
	} else {
		fc.emitOp(opcode.OpYield)
	}
	return nil
}
