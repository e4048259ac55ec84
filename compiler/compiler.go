// Copyright 2024 The probejs Authors
// This file is part of probejs.

// Package compiler lowers an ast.Program into bytecode CodeObjects (§4.6).
// Compilation runs in a single walk over the tree: a scope pass tracks
// lexical bindings and upvalue capture as it descends, and an emit pass
// produces instructions for package opcode as it unwinds — the two are
// interleaved rather than run as separate traversals, following the
// teacher's single-Generator-pass shape.
package compiler

import (
	"fmt"

	"github.com/deckarep/golang-set/v2"

	"github.com/probejs/probejs/ast"
	"github.com/probejs/probejs/atom"
	"github.com/probejs/probejs/lexer"
	"github.com/probejs/probejs/opcode"
	"github.com/probejs/probejs/value"
)

// local is one lexical binding in a function's frame.
type local struct {
	name     string
	depth    int
	captured bool
	isConst  bool
}

// upvalueDesc records how an enclosing function's binding is captured: by
// index into the immediately enclosing function's locals (isLocal) or by
// index into that function's own upvalue list.
type upvalueDesc struct {
	isLocal bool
	index   int
	name    string
}

type loopContext struct {
	label             string
	isSwitch          bool // switch bodies accept break but not continue
	breakJumps        []int // positions of JUMP placeholders to patch at loop end
	continueJumps     []int
	continueTarget    int
	hasContinueTarget bool
}

// fnCompiler compiles one function body (or the top-level script) into a
// single CodeObject. Nested functions get their own fnCompiler linked via
// parent, mirroring closures-over-closures.
type fnCompiler struct {
	parent *fnCompiler
	table  *atom.Table

	code  []byte
	lines []value.LineEntry
	lastLine int

	constants []value.Value
	constIdx  map[string]int // dedup key -> index, built lazily per-kind

	atoms    []atom.Atom
	atomIdx  map[atom.Atom]int

	locals      []local
	scopeDepth  int
	upvalues    []upvalueDesc

	capturedNames mapset.Set[string]

	exceptions []value.ExceptionHandler
	loops      []*loopContext

	paramCount   int
	hasRestParam bool
	isArrow      bool
	isGenerator  bool
	isAsync      bool
	maxLocals    int
	inner        []*value.CodeObject
	classInfo    []value.ClassInfo
	templateSites []value.TemplateSite

	name     string
	filename string

	stackDepth, maxStack int
}

func newFnCompiler(parent *fnCompiler, table *atom.Table, name, filename string) *fnCompiler {
	return &fnCompiler{
		parent:        parent,
		table:         table,
		constIdx:      make(map[string]int),
		atomIdx:       make(map[atom.Atom]int),
		capturedNames: mapset.NewSet[string](),
		name:          name,
		filename:      filename,
	}
}

// Compile compiles a top-level program into its CodeObject. When the
// program's last statement is an expression statement, running the code
// returns that expression's value; otherwise it returns undefined.
func Compile(prog *ast.Program, filename string, table *atom.Table) (*value.CodeObject, error) {
	fc := newFnCompiler(nil, table, "<script>", filename)
	fc.beginScope()
	last := len(prog.Body) - 1
	for i, stmt := range prog.Body {
		if es, ok := stmt.(*ast.ExpressionStatement); ok && i == last {
			fc.markLine(stmt.Pos())
			if err := fc.compileExpression(es.Expr); err != nil {
				return nil, err
			}
			fc.emitOp(opcode.OpReturn)
			break
		}
		if err := fc.compileStatement(stmt); err != nil {
			return nil, err
		}
	}
	fc.endScope()
	fc.emitOp(opcode.OpHalt)
	return fc.finish(), nil
}

func (fc *fnCompiler) finish() *value.CodeObject {
	upvalues := make([]value.UpvalueDesc, len(fc.upvalues))
	for i, u := range fc.upvalues {
		upvalues[i] = value.UpvalueDesc{IsLocal: u.isLocal, Index: u.index}
	}
	return &value.CodeObject{
		Name:           fc.name,
		Instructions:   fc.code,
		Constants:      fc.constants,
		Atoms:          fc.atoms,
		ParamCount:     fc.paramCount,
		LocalsCount:    fc.maxLocals,
		MaxStack:       fc.maxStack,
		HasRestParam:   fc.hasRestParam,
		IsArrow:        fc.isArrow,
		IsGenerator:    fc.isGenerator,
		IsAsync:        fc.isAsync,
		Upvalues:       upvalues,
		ExceptionTable: fc.exceptions,
		Lines:          fc.lines,
		SourceFile:     fc.filename,
		ClassInfo:      fc.classInfo,
		Inner:          fc.inner,
		TemplateSites:  fc.templateSites,
	}
}

// ---------------------------------------------------------------------------
// Emit helpers
// ---------------------------------------------------------------------------

func (fc *fnCompiler) emitByte(b byte) int {
	fc.code = append(fc.code, b)
	return len(fc.code) - 1
}

func (fc *fnCompiler) emitOp(op opcode.Op) int {
	pos := fc.emitByte(byte(op))
	fc.trackStack(op)
	return pos
}

func (fc *fnCompiler) emitU16(v int) {
	fc.emitByte(byte(v >> 8))
	fc.emitByte(byte(v))
}

func (fc *fnCompiler) emitOpU16(op opcode.Op, v int) int {
	pos := fc.emitOp(op)
	fc.emitU16(v)
	return pos
}

func (fc *fnCompiler) patchU16At(pos int, v int) {
	fc.code[pos] = byte(v >> 8)
	fc.code[pos+1] = byte(v)
}

// trackStack keeps a conservative running estimate of max operand-stack
// depth; exact per-opcode effect tracking isn't needed for correctness since
// the VM itself bounds-checks, but MaxStack sizes the initial stack
// allocation (§4.7 "pre-sized operand stack").
func (fc *fnCompiler) trackStack(op opcode.Op) {
	delta := stackEffect(op)
	fc.stackDepth += delta
	if fc.stackDepth > fc.maxStack {
		fc.maxStack = fc.stackDepth
	}
	if fc.stackDepth < 0 {
		fc.stackDepth = 0
	}
}

// stackEffect is a coarse net stack-depth delta per opcode, ignoring the
// few ops (CALL, NEW_ARRAY, ...) whose effect depends on a runtime operand
// count; those fall through to the default case and count as 0.
func stackEffect(op opcode.Op) int {
	switch op {
	case opcode.OpConst, opcode.OpUndefined, opcode.OpNull, opcode.OpTrue, opcode.OpFalse,
		opcode.OpDup, opcode.OpGetLocal, opcode.OpGetUpvalue, opcode.OpGetGlobal,
		opcode.OpNewObject, opcode.OpGetIterator, opcode.OpMakeClosure:
		return 1
	case opcode.OpPop, opcode.OpSetLocal, opcode.OpSetUpvalue, opcode.OpSetGlobal,
		opcode.OpJumpIfFalse, opcode.OpJumpIfTrue, opcode.OpThrow, opcode.OpReturn,
		opcode.OpCloseUpvalue:
		return -1
	case opcode.OpAdd, opcode.OpSub, opcode.OpMul, opcode.OpDiv, opcode.OpMod, opcode.OpPow,
		opcode.OpBitAnd, opcode.OpBitOr, opcode.OpBitXor, opcode.OpShl, opcode.OpShr, opcode.OpUShr,
		opcode.OpEq, opcode.OpNeq, opcode.OpSEq, opcode.OpSNeq, opcode.OpLt, opcode.OpLte,
		opcode.OpGt, opcode.OpGte, opcode.OpInstanceOf, opcode.OpIn, opcode.OpGetElem,
		opcode.OpDeleteElem:
		return -1
	case opcode.OpSetProp, opcode.OpSetElem:
		return -1
	case opcode.OpGetProp, opcode.OpGetPropOptional, opcode.OpDeleteProp,
		opcode.OpNeg, opcode.OpBitNot, opcode.OpNot, opcode.OpTypeof, opcode.OpVoid,
		opcode.OpToPropertyKey:
		return 0
	default:
		return 0
	}
}

func (fc *fnCompiler) addConstant(key string, v value.Value) int {
	if idx, ok := fc.constIdx[key]; ok {
		return idx
	}
	idx := len(fc.constants)
	fc.constants = append(fc.constants, v)
	fc.constIdx[key] = idx
	return idx
}

// addTemplateSite records one tagged-template literal's quasis, returning
// the index TEMPLATE_OBJECT refers to it by. Every occurrence gets its
// own entry, even if byte-identical to another — "call site" in the spec
// sense means source position, not string content.
func (fc *fnCompiler) addTemplateSite(quasis, raw []string) int {
	idx := len(fc.templateSites)
	fc.templateSites = append(fc.templateSites, value.TemplateSite{Quasis: quasis, Raw: raw})
	return idx
}

func (fc *fnCompiler) addAtom(a atom.Atom) int {
	if idx, ok := fc.atomIdx[a]; ok {
		return idx
	}
	idx := len(fc.atoms)
	fc.atoms = append(fc.atoms, a)
	fc.atomIdx[a] = idx
	return idx
}

func (fc *fnCompiler) markLine(pos lexer.Position) {
	if pos.Line == fc.lastLine {
		return
	}
	fc.lastLine = pos.Line
	fc.lines = append(fc.lines, value.LineEntry{PC: len(fc.code), Line: pos.Line})
}

// ---------------------------------------------------------------------------
// Scopes and variable resolution
// ---------------------------------------------------------------------------

func (fc *fnCompiler) beginScope() { fc.scopeDepth++ }

// endScope drops the locals declared in the scope being closed, emitting
// OpCloseUpvalue for any that were captured by a nested closure (§4.7 "a
// local captured by an inner function must survive its enclosing scope").
// Locals live in the frame's local slots, not on the operand stack, so
// nothing is popped for them.
func (fc *fnCompiler) endScope() {
	fc.scopeDepth--
	for len(fc.locals) > 0 && fc.locals[len(fc.locals)-1].depth > fc.scopeDepth {
		last := fc.locals[len(fc.locals)-1]
		if last.captured {
			fc.emitOpU16(opcode.OpCloseUpvalue, len(fc.locals)-1)
		}
		fc.locals = fc.locals[:len(fc.locals)-1]
	}
}

func (fc *fnCompiler) declareLocal(name string, isConst bool) int {
	fc.locals = append(fc.locals, local{name: name, depth: fc.scopeDepth, isConst: isConst})
	if len(fc.locals) > fc.maxLocals {
		fc.maxLocals = len(fc.locals)
	}
	return len(fc.locals) - 1
}

func (fc *fnCompiler) resolveLocal(name string) (int, bool) {
	for i := len(fc.locals) - 1; i >= 0; i-- {
		if fc.locals[i].name == name {
			return i, true
		}
	}
	return 0, false
}

// resolveUpvalue walks enclosing fnCompilers looking for name, adding a
// capture chain of upvalueDesc entries as it returns, and marking the
// captured local in the defining scope (§4.7/§4.9 "captured-variable set").
func (fc *fnCompiler) resolveUpvalue(name string) (int, bool) {
	if fc.parent == nil {
		return 0, false
	}
	if idx, ok := fc.parent.resolveLocal(name); ok {
		fc.parent.locals[idx].captured = true
		fc.parent.capturedNames.Add(name)
		return fc.addUpvalue(upvalueDesc{isLocal: true, index: idx, name: name}), true
	}
	if idx, ok := fc.parent.resolveUpvalue(name); ok {
		return fc.addUpvalue(upvalueDesc{isLocal: false, index: idx, name: name}), true
	}
	return 0, false
}

func (fc *fnCompiler) addUpvalue(u upvalueDesc) int {
	for i, existing := range fc.upvalues {
		if existing.name == u.name {
			return i
		}
	}
	fc.upvalues = append(fc.upvalues, u)
	return len(fc.upvalues) - 1
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (fc *fnCompiler) compileStatement(stmt ast.Statement) error {
	fc.markLine(stmt.Pos())
	switch s := stmt.(type) {
	case *ast.ExpressionStatement:
		if err := fc.compileExpression(s.Expr); err != nil {
			return err
		}
		fc.emitOp(opcode.OpPop)
	case *ast.VarDeclaration:
		return fc.compileVarDeclaration(s)
	case *ast.BlockStatement:
		fc.beginScope()
		for _, inner := range s.Body {
			if err := fc.compileStatement(inner); err != nil {
				return err
			}
		}
		fc.endScope()
	case *ast.IfStatement:
		return fc.compileIf(s)
	case *ast.WhileStatement:
		return fc.compileWhile(s, "")
	case *ast.DoWhileStatement:
		return fc.compileDoWhile(s, "")
	case *ast.ForStatement:
		return fc.compileFor(s, "")
	case *ast.ForInOfStatement:
		return fc.compileForInOf(s, "")
	case *ast.ReturnStatement:
		if s.Arg != nil {
			if err := fc.compileExpression(s.Arg); err != nil {
				return err
			}
			fc.emitOp(opcode.OpReturn)
		} else {
			fc.emitOp(opcode.OpReturnUndefined)
		}
	case *ast.BreakStatement:
		return fc.compileBreak(s.Label)
	case *ast.ContinueStatement:
		return fc.compileContinue(s.Label)
	case *ast.ThrowStatement:
		if err := fc.compileExpression(s.Arg); err != nil {
			return err
		}
		fc.emitOp(opcode.OpThrow)
	case *ast.TryStatement:
		return fc.compileTry(s)
	case *ast.SwitchStatement:
		return fc.compileSwitch(s)
	case *ast.FunctionDeclaration:
		return fc.compileFunctionDeclaration(s)
	case *ast.ClassDeclaration:
		return fc.compileClassDeclaration(s)
	case *ast.LabeledStatement:
		return fc.compileLabeled(s)
	case *ast.EmptyStatement, *ast.DebuggerStatement:
		// no-op
	default:
		return fmt.Errorf("%s: compiler: unsupported statement %T", stmt.Pos(), stmt)
	}
	return nil
}

func (fc *fnCompiler) compileLabeled(s *ast.LabeledStatement) error {
	switch body := s.Body.(type) {
	case *ast.WhileStatement:
		return fc.compileWhile(body, s.Label)
	case *ast.DoWhileStatement:
		return fc.compileDoWhile(body, s.Label)
	case *ast.ForStatement:
		return fc.compileFor(body, s.Label)
	case *ast.ForInOfStatement:
		return fc.compileForInOf(body, s.Label)
	default:
		return fc.compileStatement(s.Body)
	}
}

func (fc *fnCompiler) compileVarDeclaration(decl *ast.VarDeclaration) error {
	for _, d := range decl.Declarators {
		if d.Init != nil {
			if err := fc.compileExpression(d.Init); err != nil {
				return err
			}
		} else {
			fc.emitOp(opcode.OpUndefined)
		}
		if err := fc.bindTarget(d.Target, decl.Kind == "const"); err != nil {
			return err
		}
	}
	return nil
}

// bindTarget pops the value on top of stack into target; only plain
// identifier targets are supported in this pass (array/object destructuring
// declarators fail with a compile error rather than silently mis-binding).
func (fc *fnCompiler) bindTarget(target ast.Pattern, isConst bool) error {
	id, ok := target.(*ast.Identifier)
	if !ok {
		return fmt.Errorf("%s: compiler: destructuring declarators are not yet supported", target.Pos())
	}
	if fc.scopeDepth == 0 {
		a := fc.table.Intern(id.Name)
		fc.emitOpU16(opcode.OpSetGlobal, fc.addAtom(a))
		fc.emitOp(opcode.OpPop)
		return nil
	}
	fc.declareLocal(id.Name, isConst)
	fc.emitOpU16(opcode.OpSetLocal, len(fc.locals)-1)
	fc.emitOp(opcode.OpPop)
	return nil
}

func (fc *fnCompiler) compileIf(s *ast.IfStatement) error {
	if err := fc.compileExpression(s.Test); err != nil {
		return err
	}
	jElse := fc.emitOpU16(opcode.OpJumpIfFalse, 0)
	fc.emitU16Placeholder(jElse)
	if err := fc.compileStatement(s.Cons); err != nil {
		return err
	}
	if s.Alt != nil {
		jEnd := fc.emitOpU16(opcode.OpJump, 0)
		fc.emitU16Placeholder(jEnd)
		fc.patchU16At(jElse+1, len(fc.code))
		if err := fc.compileStatement(s.Alt); err != nil {
			return err
		}
		fc.patchU16At(jEnd+1, len(fc.code))
	} else {
		fc.patchU16At(jElse+1, len(fc.code))
	}
	return nil
}

// emitU16Placeholder exists only for readability at call sites that already
// wrote the 2-byte placeholder via emitOpU16; it is intentionally a no-op.
func (fc *fnCompiler) emitU16Placeholder(int) {}

func (fc *fnCompiler) pushLoop(label string) *loopContext {
	lc := &loopContext{label: label}
	fc.loops = append(fc.loops, lc)
	return lc
}

func (fc *fnCompiler) pushSwitch() *loopContext {
	lc := &loopContext{isSwitch: true}
	fc.loops = append(fc.loops, lc)
	return lc
}

func (fc *fnCompiler) popLoop() {
	fc.loops = fc.loops[:len(fc.loops)-1]
}

// findBreakTarget returns the nearest enclosing loop or switch (break exits
// either); findContinueTarget skips switch contexts since continue always
// targets an enclosing iteration statement (§4.5 "continue ignores an
// intervening switch").
func (fc *fnCompiler) findBreakTarget(label string) *loopContext {
	for i := len(fc.loops) - 1; i >= 0; i-- {
		if label == "" || fc.loops[i].label == label {
			return fc.loops[i]
		}
	}
	return nil
}

func (fc *fnCompiler) findContinueTarget(label string) *loopContext {
	for i := len(fc.loops) - 1; i >= 0; i-- {
		if fc.loops[i].isSwitch {
			continue
		}
		if label == "" || fc.loops[i].label == label {
			return fc.loops[i]
		}
	}
	return nil
}

func (fc *fnCompiler) compileBreak(label string) error {
	lc := fc.findBreakTarget(label)
	if lc == nil {
		return fmt.Errorf("compiler: break outside of a loop or switch")
	}
	pos := fc.emitOpU16(opcode.OpJump, 0)
	lc.breakJumps = append(lc.breakJumps, pos)
	return nil
}

func (fc *fnCompiler) compileContinue(label string) error {
	lc := fc.findContinueTarget(label)
	if lc == nil {
		return fmt.Errorf("compiler: continue outside of a loop")
	}
	if lc.hasContinueTarget {
		fc.emitOpU16(opcode.OpJump, lc.continueTarget)
		return nil
	}
	pos := fc.emitOpU16(opcode.OpJump, 0)
	lc.continueJumps = append(lc.continueJumps, pos)
	return nil
}

func (fc *fnCompiler) patchLoopExits(lc *loopContext, continueTarget, breakTarget int) {
	for _, pos := range lc.continueJumps {
		fc.patchU16At(pos+1, continueTarget)
	}
	for _, pos := range lc.breakJumps {
		fc.patchU16At(pos+1, breakTarget)
	}
}

func (fc *fnCompiler) compileWhile(s *ast.WhileStatement, label string) error {
	lc := fc.pushLoop(label)
	start := len(fc.code)
	lc.continueTarget = start
	lc.hasContinueTarget = true
	if err := fc.compileExpression(s.Test); err != nil {
		return err
	}
	exitJump := fc.emitOpU16(opcode.OpJumpIfFalse, 0)
	if err := fc.compileStatement(s.Body); err != nil {
		return err
	}
	fc.emitOpU16(opcode.OpJump, start)
	end := len(fc.code)
	fc.patchU16At(exitJump+1, end)
	fc.patchLoopExits(lc, start, end)
	fc.popLoop()
	return nil
}

func (fc *fnCompiler) compileDoWhile(s *ast.DoWhileStatement, label string) error {
	lc := fc.pushLoop(label)
	start := len(fc.code)
	if err := fc.compileStatement(s.Body); err != nil {
		return err
	}
	continueTarget := len(fc.code)
	lc.continueTarget = continueTarget
	lc.hasContinueTarget = true
	if err := fc.compileExpression(s.Test); err != nil {
		return err
	}
	fc.emitOpU16(opcode.OpJumpIfTrue, start)
	end := len(fc.code)
	fc.patchLoopExits(lc, continueTarget, end)
	fc.popLoop()
	return nil
}

func (fc *fnCompiler) compileFor(s *ast.ForStatement, label string) error {
	fc.beginScope()
	switch init := s.Init.(type) {
	case *ast.VarDeclaration:
		if err := fc.compileVarDeclaration(init); err != nil {
			return err
		}
	case ast.Expression:
		if err := fc.compileExpression(init); err != nil {
			return err
		}
		fc.emitOp(opcode.OpPop)
	}

	lc := fc.pushLoop(label)
	testPos := len(fc.code)
	var exitJump int
	hasExit := s.Test != nil
	if hasExit {
		if err := fc.compileExpression(s.Test); err != nil {
			return err
		}
		exitJump = fc.emitOpU16(opcode.OpJumpIfFalse, 0)
	}
	if err := fc.compileStatement(s.Body); err != nil {
		return err
	}
	continueTarget := len(fc.code)
	lc.continueTarget = continueTarget
	lc.hasContinueTarget = true
	if s.Update != nil {
		if err := fc.compileExpression(s.Update); err != nil {
			return err
		}
		fc.emitOp(opcode.OpPop)
	}
	fc.emitOpU16(opcode.OpJump, testPos)
	end := len(fc.code)
	if hasExit {
		fc.patchU16At(exitJump+1, end)
	}
	fc.patchLoopExits(lc, continueTarget, end)
	fc.popLoop()
	fc.endScope()
	return nil
}

// compileForInOf desugars for-of to GetIterator/IterNext per §4.9, and
// for-in to a property-enumeration loop reusing the same iterator protocol
// over OwnKeys (own + inherited enumerable string keys, produced by the
// runtime's enumerate-keys iterator).
func (fc *fnCompiler) compileForInOf(s *ast.ForInOfStatement, label string) error {
	fc.beginScope()
	if err := fc.compileExpression(s.Right); err != nil {
		return err
	}
	fc.emitOp(opcode.OpGetIterator)

	lc := fc.pushLoop(label)
	loopStart := len(fc.code)
	lc.continueTarget = loopStart
	lc.hasContinueTarget = true
	fc.emitOp(opcode.OpDup)
	fc.emitOp(opcode.OpIterNext)
	// stack: [iter, value, done]
	exitJump := fc.emitOpU16(opcode.OpJumpIfTrue, 0) // pops done; true -> doneCleanup
	// false path, stack: [iter, value]
	fc.beginScope()
	switch left := s.Left.(type) {
	case *ast.VarDeclaration:
		if err := fc.bindTarget(left.Declarators[0].Target, left.Kind == "const"); err != nil {
			return err
		}
	case ast.Expression:
		if err := fc.compileAssignFromStack(left); err != nil {
			return err
		}
		fc.emitOp(opcode.OpPop)
	}
	if err := fc.compileStatement(s.Body); err != nil {
		return err
	}
	fc.endScope()
	fc.emitOpU16(opcode.OpJump, loopStart)

	doneCleanup := len(fc.code)
	fc.patchU16At(exitJump+1, doneCleanup)
	fc.emitOp(opcode.OpPop) // discard leftover value
	fc.emitOp(opcode.OpPop) // discard iterator
	skipBreakCleanup := fc.emitOpU16(opcode.OpJump, 0)

	breakCleanup := len(fc.code)
	fc.emitOp(opcode.OpIterClose) // break lands with only the iterator on stack; pop it and call its return()

	end := len(fc.code)
	fc.patchU16At(skipBreakCleanup+1, end)
	fc.patchLoopExits(lc, loopStart, breakCleanup)
	fc.popLoop()
	fc.endScope()
	return nil
}

func (fc *fnCompiler) compileTry(s *ast.TryStatement) error {
	handlerJumpPos := fc.emitOpU16(opcode.OpPushHandler, 0)
	fc.emitByte(0) // HasFinally byte slot, patched below
	tryStart := len(fc.code)
	if err := fc.compileStatement(s.Block); err != nil {
		return err
	}
	fc.emitOp(opcode.OpPopHandler)
	tryEnd := len(fc.code)
	skipHandler := fc.emitOpU16(opcode.OpJump, 0)

	handlerPC := len(fc.code)
	if s.Handler != nil {
		fc.beginScope()
		if s.Handler.Param != nil {
			if err := fc.bindTarget(s.Handler.Param, false); err != nil {
				return err
			}
		} else {
			fc.emitOp(opcode.OpPop)
		}
		if err := fc.compileStatement(s.Handler.Body); err != nil {
			return err
		}
		fc.endScope()
	} else {
		fc.emitOp(opcode.OpPop)
	}
	finallyPC := len(fc.code)
	fc.patchU16At(skipHandler+1, finallyPC)
	fc.patchU16At(handlerJumpPos+1, handlerPC)
	fc.code[handlerJumpPos+3] = 0
	if s.Finally != nil {
		fc.code[handlerJumpPos+3] = 1
		if err := fc.compileStatement(s.Finally); err != nil {
			return err
		}
	}
	fc.exceptions = append(fc.exceptions, value.ExceptionHandler{
		TryStart: tryStart, TryEnd: tryEnd, Handler: handlerPC,
		HasFinally: s.Finally != nil, Finally: finallyPC, StackDepth: 0,
	})
	return nil
}

func (fc *fnCompiler) compileSwitch(s *ast.SwitchStatement) error {
	if err := fc.compileExpression(s.Disc); err != nil {
		return err
	}
	var caseJumps []int
	defaultIdx := -1
	for i, c := range s.Cases {
		if c.Test == nil {
			defaultIdx = i
			continue
		}
		fc.emitOp(opcode.OpDup)
		if err := fc.compileExpression(c.Test); err != nil {
			return err
		}
		fc.emitOp(opcode.OpSEq)
		jmp := fc.emitOpU16(opcode.OpJumpIfTrue, 0)
		caseJumps = append(caseJumps, jmp)
	}
	endJump := fc.emitOpU16(opcode.OpJump, 0)

	lc := fc.pushSwitch()
	bodyStarts := make([]int, len(s.Cases))
	ji := 0
	for i, c := range s.Cases {
		bodyStarts[i] = len(fc.code)
		if c.Test != nil {
			fc.patchU16At(caseJumps[ji]+1, bodyStarts[i])
			ji++
		}
		for _, st := range c.Body {
			if err := fc.compileStatement(st); err != nil {
				return err
			}
		}
	}
	end := len(fc.code)
	if defaultIdx >= 0 {
		fc.patchU16At(endJump+1, bodyStarts[defaultIdx])
	} else {
		fc.patchU16At(endJump+1, end)
	}
	fc.patchLoopExits(lc, end, end)
	fc.popLoop()
	fc.emitOp(opcode.OpPop) // discard discriminant
	return nil
}

func (fc *fnCompiler) compileFunctionDeclaration(s *ast.FunctionDeclaration) error {
	if err := fc.compileFunctionLiteral(s.Fn); err != nil {
		return err
	}
	name := s.Fn.Name.Name
	if fc.scopeDepth == 0 {
		a := fc.table.Intern(name)
		fc.emitOpU16(opcode.OpSetGlobal, fc.addAtom(a))
		fc.emitOp(opcode.OpPop)
		return nil
	}
	fc.declareLocal(name, false)
	fc.emitOpU16(opcode.OpSetLocal, len(fc.locals)-1)
	fc.emitOp(opcode.OpPop)
	return nil
}

func (fc *fnCompiler) compileClassDeclaration(s *ast.ClassDeclaration) error {
	if err := fc.compileClassLiteral(s.Class); err != nil {
		return err
	}
	if s.Class.Name == nil {
		fc.emitOp(opcode.OpPop)
		return nil
	}
	name := s.Class.Name.Name
	if fc.scopeDepth == 0 {
		a := fc.table.Intern(name)
		fc.emitOpU16(opcode.OpSetGlobal, fc.addAtom(a))
		fc.emitOp(opcode.OpPop)
		return nil
	}
	fc.declareLocal(name, false)
	fc.emitOpU16(opcode.OpSetLocal, len(fc.locals)-1)
	fc.emitOp(opcode.OpPop)
	return nil
}
