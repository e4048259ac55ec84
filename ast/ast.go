// Copyright 2024 The probejs Authors
// This file is part of probejs.

// Package ast defines the Abstract Syntax Tree produced by the parser for
// the engine's accepted ECMAScript subset (§4.5).
//
// Design overview:
//
//   - All AST nodes implement the Node interface via TokenLiteral and String.
//   - Expressions and Statements each have a marker interface
//     that embeds Node to enable type-safe dispatch.
//   - The tree is position-annotated via lexer.Position so diagnostics and
//     the compiler's line table (§4.6) can reference source locations.
package ast

import (
	"bytes"
	"strings"

	"github.com/probejs/probejs/lexer"
)

// Node is the base interface every AST node implements.
type Node interface {
	TokenLiteral() string
	String() string
	Pos() lexer.Position
}

// Expression is a marker interface for expression nodes.
type Expression interface {
	Node
	expressionNode()
}

// Statement is a marker interface for statement nodes.
type Statement interface {
	Node
	statementNode()
}

// base carries the originating token's literal and position; embedded by
// every concrete node so TokenLiteral/Pos need not be reimplemented.
type base struct {
	Tok lexer.Token
}

func (b base) TokenLiteral() string           { return b.Tok.Literal }
func (b base) Pos() lexer.Position            { return b.Tok.Pos }
func (b *base) setTok(t lexer.Token)          { b.Tok = t }
func (b *base) setPos(pos lexer.Position)     { b.Tok.Pos = pos }

// Tag stamps tok as n's originating token and returns n, letting the parser
// write `ast.Tag(&SomeNode{...}, tok)` at each construction site instead of
// repeating `n.Tok = tok` as a separate statement.
func Tag[T Node](n T, tok lexer.Token) T {
	if s, ok := any(n).(interface{ setTok(lexer.Token) }); ok {
		s.setTok(tok)
	}
	return n
}

// TagAt stamps just a source position (no literal text available) as n's
// position and returns n, for synthesized nodes built from an operand's
// position rather than a single originating token (binary/assignment/
// conditional expressions).
func TagAt[T Node](n T, pos lexer.Position) T {
	if s, ok := any(n).(interface{ setPos(lexer.Position) }); ok {
		s.setPos(pos)
	}
	return n
}

// ---------------------------------------------------------------------------
// Program
// ---------------------------------------------------------------------------

// Program is the root of a parsed script or module body (§4.5).
type Program struct {
	base
	Body     []Statement
	IsModule bool
}

func (p *Program) String() string {
	var out bytes.Buffer
	for _, s := range p.Body {
		out.WriteString(s.String())
		out.WriteByte('\n')
	}
	return out.String()
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

type Identifier struct {
	base
	Name string
}

func (*Identifier) expressionNode() {}
func (i *Identifier) String() string { return i.Name }

type PrivateName struct {
	base
	Name string // includes leading '#'
}

func (*PrivateName) expressionNode() {}
func (p *PrivateName) String() string { return p.Name }

type NumberLiteral struct {
	base
	Value float64
}

func (*NumberLiteral) expressionNode() {}
func (n *NumberLiteral) String() string { return n.Tok.Literal }

type BigIntLiteral struct {
	base
	Raw string // decimal digits, sign-free, no trailing 'n'
}

func (*BigIntLiteral) expressionNode() {}
func (b *BigIntLiteral) String() string { return b.Raw + "n" }

type StringLiteral struct {
	base
	Value string
}

func (*StringLiteral) expressionNode() {}
func (s *StringLiteral) String() string { return "\"" + s.Value + "\"" }

type BoolLiteral struct {
	base
	Value bool
}

func (*BoolLiteral) expressionNode() {}
func (b *BoolLiteral) String() string { return b.Tok.Literal }

type NullLiteral struct{ base }

func (*NullLiteral) expressionNode() {}
func (*NullLiteral) String() string { return "null" }

type RegexLiteral struct {
	base
	Pattern string
	Flags   string
}

func (*RegexLiteral) expressionNode() {}
func (r *RegexLiteral) String() string { return "/" + r.Pattern + "/" + r.Flags }

// TemplateLiteral is a template literal with N string quasis and N-1
// interleaved substitution expressions (§4.5).
type TemplateLiteral struct {
	base
	Quasis []string // cooked text segments, len == len(Exprs)+1
	Raw    []string // raw (unescaped) text segments, parallel to Quasis
	Exprs  []Expression
}

func (*TemplateLiteral) expressionNode() {}
func (t *TemplateLiteral) String() string {
	var out bytes.Buffer
	out.WriteByte('`')
	for i, q := range t.Quasis {
		out.WriteString(q)
		if i < len(t.Exprs) {
			out.WriteString("${")
			out.WriteString(t.Exprs[i].String())
			out.WriteByte('}')
		}
	}
	out.WriteByte('`')
	return out.String()
}

// TaggedTemplate is `tag` + TemplateLiteral (§4.5, drives the hashicorp/
// golang-lru-backed template-object cache at the runtime layer).
type TaggedTemplate struct {
	base
	Tag      Expression
	Template *TemplateLiteral
}

func (*TaggedTemplate) expressionNode() {}
func (t *TaggedTemplate) String() string { return t.Tag.String() + t.Template.String() }

type ArrayLiteral struct {
	base
	Elements []Expression // nil entry denotes an elision (sparse slot)
}

func (*ArrayLiteral) expressionNode() {}
func (a *ArrayLiteral) String() string {
	parts := make([]string, len(a.Elements))
	for i, e := range a.Elements {
		if e == nil {
			continue
		}
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

type SpreadElement struct {
	base
	Arg Expression
}

func (*SpreadElement) expressionNode() {}
func (s *SpreadElement) String() string { return "..." + s.Arg.String() }

// Property is one entry of an ObjectLiteral or an ObjectPattern.
type Property struct {
	Key       Expression
	Value     Expression
	Computed  bool
	Shorthand bool
	Kind      string // "init", "get", "set", "method", "spread"
}

type ObjectLiteral struct {
	base
	Properties []*Property
}

func (*ObjectLiteral) expressionNode() {}
func (o *ObjectLiteral) String() string {
	parts := make([]string, len(o.Properties))
	for i, p := range o.Properties {
		parts[i] = p.Key.String() + ": " + p.Value.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

type FunctionLiteral struct {
	base
	Name      *Identifier // nil for anonymous function expressions
	Params    []Pattern
	Body      *BlockStatement
	IsArrow   bool
	ExprBody  Expression // for concise-body arrows; nil when Body is set
	IsAsync   bool
	IsGen     bool
}

func (*FunctionLiteral) expressionNode() {}
func (f *FunctionLiteral) String() string {
	name := ""
	if f.Name != nil {
		name = f.Name.Name
	}
	return "function " + name + "(...)"
}

type ClassMember struct {
	Key      Expression
	Value    *FunctionLiteral // method body; nil for a field
	FieldVal Expression       // field initializer; nil for a method
	Kind     string           // "method", "get", "set", "constructor", "field"
	Static   bool
	Private  bool
}

type ClassLiteral struct {
	base
	Name    *Identifier
	Super   Expression
	Members []*ClassMember
}

func (*ClassLiteral) expressionNode() {}
func (c *ClassLiteral) String() string {
	name := ""
	if c.Name != nil {
		name = c.Name.Name
	}
	return "class " + name
}

type UnaryExpr struct {
	base
	Op      string
	Arg     Expression
	Prefix  bool
}

func (*UnaryExpr) expressionNode() {}
func (u *UnaryExpr) String() string {
	if u.Prefix {
		return "(" + u.Op + u.Arg.String() + ")"
	}
	return "(" + u.Arg.String() + u.Op + ")"
}

type BinaryExpr struct {
	base
	Op          string
	Left, Right Expression
}

func (*BinaryExpr) expressionNode() {}
func (b *BinaryExpr) String() string {
	return "(" + b.Left.String() + " " + b.Op + " " + b.Right.String() + ")"
}

type LogicalExpr struct {
	base
	Op          string // "&&", "||", "??"
	Left, Right Expression
}

func (*LogicalExpr) expressionNode() {}
func (l *LogicalExpr) String() string {
	return "(" + l.Left.String() + " " + l.Op + " " + l.Right.String() + ")"
}

type AssignExpr struct {
	base
	Op          string // "=", "+=", "&&=", ...
	Target      Expression
	Value       Expression
}

func (*AssignExpr) expressionNode() {}
func (a *AssignExpr) String() string {
	return "(" + a.Target.String() + " " + a.Op + " " + a.Value.String() + ")"
}

type ConditionalExpr struct {
	base
	Test, Cons, Alt Expression
}

func (*ConditionalExpr) expressionNode() {}
func (c *ConditionalExpr) String() string {
	return "(" + c.Test.String() + " ? " + c.Cons.String() + " : " + c.Alt.String() + ")"
}

type CallExpr struct {
	base
	Callee   Expression
	Args     []Expression
	Optional bool // `?.(`
}

func (*CallExpr) expressionNode() {}
func (c *CallExpr) String() string {
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = a.String()
	}
	return c.Callee.String() + "(" + strings.Join(parts, ", ") + ")"
}

type NewExpr struct {
	base
	Callee Expression
	Args   []Expression
}

func (*NewExpr) expressionNode() {}
func (n *NewExpr) String() string { return "new " + n.Callee.String() + "(...)" }

type MemberExpr struct {
	base
	Object   Expression
	Property Expression // Identifier for dotted access, any Expression when Computed
	Computed bool
	Optional bool // `?.`
}

func (*MemberExpr) expressionNode() {}
func (m *MemberExpr) String() string {
	if m.Computed {
		return m.Object.String() + "[" + m.Property.String() + "]"
	}
	return m.Object.String() + "." + m.Property.String()
}

type SequenceExpr struct {
	base
	Exprs []Expression
}

func (*SequenceExpr) expressionNode() {}
func (s *SequenceExpr) String() string {
	parts := make([]string, len(s.Exprs))
	for i, e := range s.Exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

type ThisExpr struct{ base }

func (*ThisExpr) expressionNode() {}
func (*ThisExpr) String() string { return "this" }

type SuperExpr struct{ base }

func (*SuperExpr) expressionNode() {}
func (*SuperExpr) String() string { return "super" }

type YieldExpr struct {
	base
	Arg      Expression
	Delegate bool // yield*
}

func (*YieldExpr) expressionNode() {}
func (y *YieldExpr) String() string {
	if y.Delegate {
		return "yield* " + y.Arg.String()
	}
	if y.Arg == nil {
		return "yield"
	}
	return "yield " + y.Arg.String()
}

type AwaitExpr struct {
	base
	Arg Expression
}

func (*AwaitExpr) expressionNode() {}
func (a *AwaitExpr) String() string { return "await " + a.Arg.String() }

// ---------------------------------------------------------------------------
// Destructuring patterns (reused as both Pattern and assignment targets)
// ---------------------------------------------------------------------------

type Pattern = Expression // identifiers, ArrayLiteral, ObjectLiteral, AssignExpr (default), SpreadElement (rest)

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

type ExpressionStatement struct {
	base
	Expr Expression
}

func (*ExpressionStatement) statementNode() {}
func (e *ExpressionStatement) String() string { return e.Expr.String() + ";" }

type BlockStatement struct {
	base
	Body []Statement
}

func (*BlockStatement) statementNode() {}
func (b *BlockStatement) String() string {
	var out bytes.Buffer
	out.WriteByte('{')
	for _, s := range b.Body {
		out.WriteString(s.String())
	}
	out.WriteByte('}')
	return out.String()
}

// VarDeclarator is one `name = init` entry of a VarDeclaration.
type VarDeclarator struct {
	Target Pattern
	Init   Expression // nil when absent
}

type VarDeclaration struct {
	base
	Kind         string // "var", "let", "const"
	Declarators  []*VarDeclarator
}

func (*VarDeclaration) statementNode() {}
func (v *VarDeclaration) String() string {
	parts := make([]string, len(v.Declarators))
	for i, d := range v.Declarators {
		if d.Init != nil {
			parts[i] = d.Target.String() + " = " + d.Init.String()
		} else {
			parts[i] = d.Target.String()
		}
	}
	return v.Kind + " " + strings.Join(parts, ", ") + ";"
}

type IfStatement struct {
	base
	Test Expression
	Cons Statement
	Alt  Statement // nil when absent
}

func (*IfStatement) statementNode() {}
func (i *IfStatement) String() string {
	s := "if (" + i.Test.String() + ") " + i.Cons.String()
	if i.Alt != nil {
		s += " else " + i.Alt.String()
	}
	return s
}

type ForStatement struct {
	base
	Init   Node // VarDeclaration or Expression or nil
	Test   Expression
	Update Expression
	Body   Statement
}

func (*ForStatement) statementNode() {}
func (f *ForStatement) String() string { return "for (...) " + f.Body.String() }

// ForInOfStatement covers both for-in and for-of (§4.5); IsOf distinguishes
// the iteration protocol used.
type ForInOfStatement struct {
	base
	Left  Node // VarDeclaration (single declarator) or Pattern
	Right Expression
	Body  Statement
	IsOf  bool
	IsAwait bool // for-await-of
}

func (*ForInOfStatement) statementNode() {}
func (f *ForInOfStatement) String() string { return "for (... in/of ...) " + f.Body.String() }

type WhileStatement struct {
	base
	Test Expression
	Body Statement
}

func (*WhileStatement) statementNode() {}
func (w *WhileStatement) String() string { return "while (" + w.Test.String() + ") " + w.Body.String() }

type DoWhileStatement struct {
	base
	Body Statement
	Test Expression
}

func (*DoWhileStatement) statementNode() {}
func (d *DoWhileStatement) String() string { return "do " + d.Body.String() + " while (" + d.Test.String() + ");" }

type ReturnStatement struct {
	base
	Arg Expression // nil for bare `return;`
}

func (*ReturnStatement) statementNode() {}
func (r *ReturnStatement) String() string {
	if r.Arg == nil {
		return "return;"
	}
	return "return " + r.Arg.String() + ";"
}

type BreakStatement struct {
	base
	Label string
}

func (*BreakStatement) statementNode() {}
func (b *BreakStatement) String() string { return "break;" }

type ContinueStatement struct {
	base
	Label string
}

func (*ContinueStatement) statementNode() {}
func (c *ContinueStatement) String() string { return "continue;" }

type LabeledStatement struct {
	base
	Label string
	Body  Statement
}

func (*LabeledStatement) statementNode() {}
func (l *LabeledStatement) String() string { return l.Label + ": " + l.Body.String() }

type ThrowStatement struct {
	base
	Arg Expression
}

func (*ThrowStatement) statementNode() {}
func (t *ThrowStatement) String() string { return "throw " + t.Arg.String() + ";" }

type CatchClause struct {
	Param Pattern // nil for catch-without-binding
	Body  *BlockStatement
}

type TryStatement struct {
	base
	Block   *BlockStatement
	Handler *CatchClause // nil when absent
	Finally *BlockStatement // nil when absent
}

func (*TryStatement) statementNode() {}
func (t *TryStatement) String() string { return "try " + t.Block.String() }

type SwitchCase struct {
	Test Expression // nil for default
	Body []Statement
}

type SwitchStatement struct {
	base
	Disc  Expression
	Cases []*SwitchCase
}

func (*SwitchStatement) statementNode() {}
func (s *SwitchStatement) String() string { return "switch (" + s.Disc.String() + ") {...}" }

type FunctionDeclaration struct {
	base
	Fn *FunctionLiteral
}

func (*FunctionDeclaration) statementNode() {}
func (f *FunctionDeclaration) String() string { return f.Fn.String() }

type ClassDeclaration struct {
	base
	Class *ClassLiteral
}

func (*ClassDeclaration) statementNode() {}
func (c *ClassDeclaration) String() string { return c.Class.String() }

type EmptyStatement struct{ base }

func (*EmptyStatement) statementNode() {}
func (*EmptyStatement) String() string { return ";" }

type DebuggerStatement struct{ base }

func (*DebuggerStatement) statementNode() {}
func (*DebuggerStatement) String() string { return "debugger;" }

// ---------------------------------------------------------------------------
// Modules (§4.10 supplement: ES module import/export forms)
// ---------------------------------------------------------------------------

type ImportSpecifier struct {
	Imported string // name in the source module; "*" for namespace, "default" for default
	Local    string
}

type ImportDeclaration struct {
	base
	Specifiers []*ImportSpecifier
	Source     string
}

func (*ImportDeclaration) statementNode() {}
func (i *ImportDeclaration) String() string { return "import ... from \"" + i.Source + "\";" }

type ExportNamedDeclaration struct {
	base
	Decl       Statement // nil when exporting a specifier list instead of a declaration
	Specifiers []*ImportSpecifier
	Source     string // re-export source, "" when none
}

func (*ExportNamedDeclaration) statementNode() {}
func (e *ExportNamedDeclaration) String() string { return "export ..." }

type ExportDefaultDeclaration struct {
	base
	Decl Node // Expression or FunctionDeclaration/ClassDeclaration
}

func (*ExportDefaultDeclaration) statementNode() {}
func (e *ExportDefaultDeclaration) String() string { return "export default ..." }
