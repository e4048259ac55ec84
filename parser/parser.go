// Copyright 2024 The probejs Authors
// This file is part of probejs.

// Package parser implements a recursive-descent, precedence-climbing parser
// (§4.5) that turns a token stream from package lexer into an ast.Program.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/probejs/probejs/ast"
	"github.com/probejs/probejs/lexer"
)

type precedence int

const (
	precLowest precedence = iota
	precComma
	precAssign
	precConditional
	precNullish
	precLogicalOr
	precLogicalAnd
	precBitOr
	precBitXor
	precBitAnd
	precEquality
	precRelational
	precShift
	precAdditive
	precMultiplicative
	precExponent
	precUnary
	precPostfix
	precCall
)

var binaryPrecedence = map[lexer.Type]precedence{
	lexer.OROR:              precLogicalOr,
	lexer.ANDAND:             precLogicalAnd,
	lexer.QUESTIONQUESTION:  precNullish,
	lexer.PIPE:               precBitOr,
	lexer.CARET:              precBitXor,
	lexer.AMP:                precBitAnd,
	lexer.EQ:                 precEquality,
	lexer.NEQ:                precEquality,
	lexer.EQEQEQ:             precEquality,
	lexer.NEQEQ:              precEquality,
	lexer.LT:                 precRelational,
	lexer.GT:                 precRelational,
	lexer.LTE:                precRelational,
	lexer.GTE:                precRelational,
	lexer.INSTANCEOF:         precRelational,
	lexer.IN:                 precRelational,
	lexer.LSHIFT:             precShift,
	lexer.RSHIFT:             precShift,
	lexer.URSHIFT:            precShift,
	lexer.PLUS:               precAdditive,
	lexer.MINUS:              precAdditive,
	lexer.STAR:               precMultiplicative,
	lexer.SLASH:              precMultiplicative,
	lexer.PERCENT:            precMultiplicative,
	lexer.STARSTAR:           precExponent,
}

var assignOps = map[lexer.Type]bool{
	lexer.ASSIGN: true, lexer.PLUSEQ: true, lexer.MINUSEQ: true, lexer.STAREQ: true,
	lexer.STARSTAREQ: true, lexer.SLASHEQ: true, lexer.PERCENTEQ: true, lexer.AMPEQ: true,
	lexer.PIPEEQ: true, lexer.CARETEQ: true, lexer.LSHIFTEQ: true, lexer.RSHIFTEQ: true,
	lexer.URSHIFTEQ: true, lexer.ANDANDEQ: true, lexer.OROREQ: true, lexer.QQEQ: true,
}

// Parser is a single-pass precedence-climbing parser over a token stream.
// It maintains one token of lookahead (peek) beyond the current token (cur),
// mirroring the cur/peek shape used throughout the retrieval corpus.
type Parser struct {
	lex *lexer.Lexer

	cur  lexer.Token
	peek lexer.Token

	filename string
	errors   []error
}

// Parse tokenizes and parses source, returning the resulting Program and any
// syntax errors encountered. Parsing does not stop at the first error: the
// parser resynchronizes at the next statement boundary (§4.5 "parse errors
// are collected, not fatal, so tooling can report more than one at a time").
func Parse(filename, source string) (*ast.Program, []error) {
	p := &Parser{lex: lexer.New(filename, source), filename: filename}
	p.advance()
	p.advance()
	prog := p.parseProgram()
	return prog, p.errors
}

func (p *Parser) advance() {
	p.cur = p.peek
	// regex-vs-division disambiguation: a `/` may start a regex literal
	// whenever the preceding token cannot end an expression (§4.4).
	p.lex.SetRegexAllowed(p.regexAllowedAfter(p.cur))
	p.peek = p.lex.NextToken()
}

func (p *Parser) regexAllowedAfter(tok lexer.Token) bool {
	switch tok.Type {
	case lexer.IDENT, lexer.NUMBER, lexer.BIGINT, lexer.STRING, lexer.REGEX,
		lexer.RPAREN, lexer.RBRACKET, lexer.THIS, lexer.SUPER, lexer.NULLTOK,
		lexer.TRUETOK, lexer.FALSETOK, lexer.PLUSPLUS, lexer.MINUSMINUS:
		return false
	default:
		return true
	}
}

func (p *Parser) curIs(t lexer.Type) bool  { return p.cur.Type == t }
func (p *Parser) peekIs(t lexer.Type) bool { return p.peek.Type == t }

func (p *Parser) expect(t lexer.Type) lexer.Token {
	if !p.curIs(t) {
		p.errorf(p.cur.Pos, "expected %s, got %s (%q)", t, p.cur.Type, p.cur.Literal)
		return p.cur
	}
	tok := p.cur
	p.advance()
	return tok
}

func (p *Parser) errorf(pos lexer.Position, format string, args ...interface{}) {
	p.errors = append(p.errors, fmt.Errorf("%s: %s", pos, fmt.Sprintf(format, args...)))
}

// consumeSemicolon implements automatic semicolon insertion (§4.4/§4.5): an
// explicit `;`, a line terminator before the next token, a `}`, or EOF all
// terminate a statement.
func (p *Parser) consumeSemicolon() {
	if p.curIs(lexer.SEMICOLON) {
		p.advance()
		return
	}
	if p.curIs(lexer.RBRACE) || p.curIs(lexer.EOF) || p.cur.PrecededByNL {
		return
	}
	p.errorf(p.cur.Pos, "expected ';', got %s", p.cur.Type)
}

func (p *Parser) parseProgram() *ast.Program {
	prog := &ast.Program{}
	for !p.curIs(lexer.EOF) {
		stmt := p.parseStatement()
		if stmt != nil {
			prog.Body = append(prog.Body, stmt)
		}
	}
	return prog
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) parseStatement() ast.Statement {
	switch p.cur.Type {
	case lexer.LBRACE:
		return p.parseBlockStatement()
	case lexer.VAR, lexer.CONST:
		s := p.parseVarDeclaration(p.cur.Literal)
		p.consumeSemicolon()
		return s
	case lexer.IDENT:
		if p.cur.Literal == "let" && p.startsBindingAfterLet() {
			s := p.parseVarDeclaration("let")
			p.consumeSemicolon()
			return s
		}
		if p.cur.Literal == "async" && p.peekIs(lexer.FUNCTION) {
			return p.parseFunctionDeclaration()
		}
		if p.peekIs(lexer.COLON) {
			return p.parseLabeledStatement()
		}
	case lexer.IF:
		return p.parseIfStatement()
	case lexer.FOR:
		return p.parseForStatement()
	case lexer.WHILE:
		return p.parseWhileStatement()
	case lexer.DO:
		return p.parseDoWhileStatement()
	case lexer.RETURN:
		return p.parseReturnStatement()
	case lexer.BREAK:
		return p.parseBreakStatement()
	case lexer.CONTINUE:
		return p.parseContinueStatement()
	case lexer.THROW:
		return p.parseThrowStatement()
	case lexer.TRY:
		return p.parseTryStatement()
	case lexer.SWITCH:
		return p.parseSwitchStatement()
	case lexer.FUNCTION:
		return p.parseFunctionDeclaration()
	case lexer.CLASS:
		return p.parseClassDeclaration()
	case lexer.SEMICOLON:
		tok := p.cur
		p.advance()
		return ast.Tag(&ast.EmptyStatement{}, tok)
	case lexer.DEBUGGER:
		tok := p.cur
		p.advance()
		p.consumeSemicolon()
		return ast.Tag(&ast.DebuggerStatement{}, tok)
	}
	expr := p.parseExpression(precComma)
	p.consumeSemicolon()
	return ast.TagAt(&ast.ExpressionStatement{Expr: expr}, expr.Pos())
}

func (p *Parser) startsBindingAfterLet() bool {
	switch p.peek.Type {
	case lexer.IDENT, lexer.LBRACKET, lexer.LBRACE:
		return true
	default:
		return false
	}
}

func (p *Parser) parseBlockStatement() *ast.BlockStatement {
	tok := p.cur
	p.expect(lexer.LBRACE)
	var body []ast.Statement
	for !p.curIs(lexer.RBRACE) && !p.curIs(lexer.EOF) {
		body = append(body, p.parseStatement())
	}
	p.expect(lexer.RBRACE)
	return ast.Tag((&ast.BlockStatement{Body: body}), tok)
}

func (p *Parser) parseVarDeclaration(kind string) *ast.VarDeclaration {
	tok := p.cur
	p.advance() // var/let/const keyword (let is IDENT)
	decl := &ast.VarDeclaration{Kind: kind}
	for {
		target := p.parseBindingTarget()
		var init ast.Expression
		if p.curIs(lexer.ASSIGN) {
			p.advance()
			init = p.parseExpression(precAssign)
		}
		decl.Declarators = append(decl.Declarators, &ast.VarDeclarator{Target: target, Init: init})
		if !p.curIs(lexer.COMMA) {
			break
		}
		p.advance()
	}
	return ast.Tag(decl, tok)
}

// parseBindingTarget parses an identifier or a destructuring pattern used as
// a binding target (let/const/var declarators, function parameters, catch
// parameters).
func (p *Parser) parseBindingTarget() ast.Pattern {
	switch p.cur.Type {
	case lexer.LBRACKET:
		return p.parseArrayLiteral()
	case lexer.LBRACE:
		return p.parseObjectLiteral()
	default:
		return p.parseIdentifier()
	}
}

func (p *Parser) parseIdentifier() *ast.Identifier {
	tok := p.cur
	name := p.cur.Literal
	if p.cur.Type != lexer.IDENT {
		p.errorf(p.cur.Pos, "expected identifier, got %s", p.cur.Type)
	}
	p.advance()
	return ast.Tag((&ast.Identifier{Name: name}), tok)
}

func (p *Parser) parseIfStatement() ast.Statement {
	tok := p.cur
	p.advance()
	p.expect(lexer.LPAREN)
	test := p.parseExpression(precComma)
	p.expect(lexer.RPAREN)
	cons := p.parseStatement()
	var alt ast.Statement
	if p.curIs(lexer.ELSE) {
		p.advance()
		alt = p.parseStatement()
	}
	return ast.Tag((&ast.IfStatement{Test: test, Cons: cons, Alt: alt}), tok)
}

func (p *Parser) parseForStatement() ast.Statement {
	tok := p.cur
	p.advance()
	isAwait := false
	if p.curIs(lexer.IDENT) && p.cur.Literal == "await" {
		isAwait = true
		p.advance()
	}
	p.expect(lexer.LPAREN)

	var init ast.Node
	if p.curIs(lexer.VAR) || p.curIs(lexer.CONST) || (p.curIs(lexer.IDENT) && p.cur.Literal == "let" && p.startsBindingAfterLet()) {
		kind := p.cur.Literal
		decl := p.parseVarDeclaration(kind)
		if (p.curIs(lexer.IDENT) && p.cur.Literal == "of") || p.curIs(lexer.IN) {
			isOf := p.cur.Literal == "of"
			p.advance()
			right := p.parseExpression(precAssign)
			p.expect(lexer.RPAREN)
			body := p.parseStatement()
			return ast.Tag((&ast.ForInOfStatement{Left: decl, Right: right, Body: body, IsOf: isOf, IsAwait: isAwait}), tok)
		}
		init = decl
	} else if !p.curIs(lexer.SEMICOLON) {
		expr := p.parseExpression(precComma)
		if (p.curIs(lexer.IDENT) && p.cur.Literal == "of") || p.curIs(lexer.IN) {
			isOf := p.cur.Literal == "of"
			p.advance()
			right := p.parseExpression(precAssign)
			p.expect(lexer.RPAREN)
			body := p.parseStatement()
			return ast.Tag((&ast.ForInOfStatement{Left: expr, Right: right, Body: body, IsOf: isOf, IsAwait: isAwait}), tok)
		}
		init = expr
	}

	p.expect(lexer.SEMICOLON)
	var test ast.Expression
	if !p.curIs(lexer.SEMICOLON) {
		test = p.parseExpression(precComma)
	}
	p.expect(lexer.SEMICOLON)
	var update ast.Expression
	if !p.curIs(lexer.RPAREN) {
		update = p.parseExpression(precComma)
	}
	p.expect(lexer.RPAREN)
	body := p.parseStatement()
	return ast.Tag((&ast.ForStatement{Init: init, Test: test, Update: update, Body: body}), tok)
}

func (p *Parser) parseWhileStatement() ast.Statement {
	tok := p.cur
	p.advance()
	p.expect(lexer.LPAREN)
	test := p.parseExpression(precComma)
	p.expect(lexer.RPAREN)
	body := p.parseStatement()
	return ast.Tag((&ast.WhileStatement{Test: test, Body: body}), tok)
}

func (p *Parser) parseDoWhileStatement() ast.Statement {
	tok := p.cur
	p.advance()
	body := p.parseStatement()
	p.expect(lexer.WHILE)
	p.expect(lexer.LPAREN)
	test := p.parseExpression(precComma)
	p.expect(lexer.RPAREN)
	p.consumeSemicolon()
	return ast.Tag((&ast.DoWhileStatement{Body: body, Test: test}), tok)
}

func (p *Parser) parseReturnStatement() ast.Statement {
	tok := p.cur
	p.advance()
	var arg ast.Expression
	if !p.curIs(lexer.SEMICOLON) && !p.curIs(lexer.RBRACE) && !p.curIs(lexer.EOF) && !p.cur.PrecededByNL {
		arg = p.parseExpression(precComma)
	}
	p.consumeSemicolon()
	return ast.Tag((&ast.ReturnStatement{Arg: arg}), tok)
}

func (p *Parser) parseBreakStatement() ast.Statement {
	tok := p.cur
	p.advance()
	label := ""
	if p.curIs(lexer.IDENT) && !p.cur.PrecededByNL {
		label = p.cur.Literal
		p.advance()
	}
	p.consumeSemicolon()
	return ast.Tag((&ast.BreakStatement{Label: label}), tok)
}

func (p *Parser) parseContinueStatement() ast.Statement {
	tok := p.cur
	p.advance()
	label := ""
	if p.curIs(lexer.IDENT) && !p.cur.PrecededByNL {
		label = p.cur.Literal
		p.advance()
	}
	p.consumeSemicolon()
	return ast.Tag((&ast.ContinueStatement{Label: label}), tok)
}

func (p *Parser) parseLabeledStatement() ast.Statement {
	tok := p.cur
	label := p.cur.Literal
	p.advance()
	p.expect(lexer.COLON)
	body := p.parseStatement()
	return ast.Tag((&ast.LabeledStatement{Label: label, Body: body}), tok)
}

func (p *Parser) parseThrowStatement() ast.Statement {
	tok := p.cur
	p.advance()
	arg := p.parseExpression(precComma)
	p.consumeSemicolon()
	return ast.Tag((&ast.ThrowStatement{Arg: arg}), tok)
}

func (p *Parser) parseTryStatement() ast.Statement {
	tok := p.cur
	p.advance()
	block := p.parseBlockStatement()
	stmt := &ast.TryStatement{Block: block}
	if p.curIs(lexer.CATCH) {
		p.advance()
		var param ast.Pattern
		if p.curIs(lexer.LPAREN) {
			p.advance()
			param = p.parseBindingTarget()
			p.expect(lexer.RPAREN)
		}
		body := p.parseBlockStatement()
		stmt.Handler = &ast.CatchClause{Param: param, Body: body}
	}
	if p.curIs(lexer.FINALLY) {
		p.advance()
		stmt.Finally = p.parseBlockStatement()
	}
	return ast.Tag(stmt, tok)
}

func (p *Parser) parseSwitchStatement() ast.Statement {
	tok := p.cur
	p.advance()
	p.expect(lexer.LPAREN)
	disc := p.parseExpression(precComma)
	p.expect(lexer.RPAREN)
	p.expect(lexer.LBRACE)
	stmt := &ast.SwitchStatement{Disc: disc}
	for !p.curIs(lexer.RBRACE) && !p.curIs(lexer.EOF) {
		c := &ast.SwitchCase{}
		if p.curIs(lexer.CASE) {
			p.advance()
			c.Test = p.parseExpression(precComma)
		} else {
			p.expect(lexer.DEFAULT)
		}
		p.expect(lexer.COLON)
		for !p.curIs(lexer.CASE) && !p.curIs(lexer.DEFAULT) && !p.curIs(lexer.RBRACE) && !p.curIs(lexer.EOF) {
			c.Body = append(c.Body, p.parseStatement())
		}
		stmt.Cases = append(stmt.Cases, c)
	}
	p.expect(lexer.RBRACE)
	return ast.Tag(stmt, tok)
}

func (p *Parser) parseFunctionDeclaration() ast.Statement {
	tok := p.cur
	isAsync := false
	if p.curIs(lexer.IDENT) && p.cur.Literal == "async" {
		isAsync = true
		p.advance()
	}
	fn := p.parseFunctionLiteral()
	fn.IsAsync = isAsync
	return ast.Tag((&ast.FunctionDeclaration{Fn: fn}), tok)
}

func (p *Parser) parseClassDeclaration() ast.Statement {
	tok := p.cur
	cls := p.parseClassLiteral()
	return ast.Tag((&ast.ClassDeclaration{Class: cls}), tok)
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (p *Parser) parseExpression(prec precedence) ast.Expression {
	left := p.parseUnary()
	left = p.parseBinaryRest(left, prec)
	if prec <= precConditional && p.curIs(lexer.QUESTION) {
		left = p.parseConditional(left)
	}
	if prec <= precAssign && (assignOps[p.cur.Type]) {
		left = p.parseAssign(left)
	}
	if prec <= precComma && p.curIs(lexer.COMMA) {
		exprs := []ast.Expression{left}
		for p.curIs(lexer.COMMA) {
			p.advance()
			exprs = append(exprs, p.parseExpression(precAssign))
		}
		left = ast.TagAt((&ast.SequenceExpr{Exprs: exprs}), left.Pos())
	}
	return left
}

func (p *Parser) parseBinaryRest(left ast.Expression, prec precedence) ast.Expression {
	for {
		opPrec, ok := binaryPrecedence[p.cur.Type]
		isIdentOp := p.curIs(lexer.INSTANCEOF) || p.curIs(lexer.IN)
		_ = isIdentOp
		if !ok || opPrec < prec {
			return left
		}
		op := p.cur
		// logical/nullish form their own node kind
		if op.Type == lexer.OROR || op.Type == lexer.ANDAND || op.Type == lexer.QUESTIONQUESTION {
			p.advance()
			nextPrec := opPrec + 1
			if op.Type == lexer.STARSTAR {
				nextPrec = opPrec
			}
			right := p.parseUnary()
			right = p.parseBinaryRest(right, nextPrec)
			left = ast.TagAt((&ast.LogicalExpr{Op: op.Literal, Left: left, Right: right}), left.Pos())
			continue
		}
		p.advance()
		nextPrec := opPrec + 1
		if op.Type == lexer.STARSTAR { // right-associative
			nextPrec = opPrec
		}
		right := p.parseUnary()
		right = p.parseBinaryRest(right, nextPrec)
		left = ast.TagAt((&ast.BinaryExpr{Op: op.Literal, Left: left, Right: right}), left.Pos())
	}
}

func (p *Parser) parseConditional(test ast.Expression) ast.Expression {
	p.advance() // '?'
	cons := p.parseExpression(precAssign)
	p.expect(lexer.COLON)
	alt := p.parseExpression(precAssign)
	return ast.TagAt((&ast.ConditionalExpr{Test: test, Cons: cons, Alt: alt}), test.Pos())
}

func (p *Parser) parseAssign(target ast.Expression) ast.Expression {
	op := p.cur.Literal
	p.advance()
	value := p.parseExpression(precAssign)
	return ast.TagAt((&ast.AssignExpr{Op: op, Target: target, Value: value}), target.Pos())
}

var unaryOps = map[lexer.Type]bool{
	lexer.BANG: true, lexer.TILDE: true, lexer.PLUS: true, lexer.MINUS: true,
	lexer.TYPEOF: true, lexer.VOID: true, lexer.DELETE: true,
}

func (p *Parser) parseUnary() ast.Expression {
	tok := p.cur
	if unaryOps[p.cur.Type] {
		op := p.cur.Literal
		p.advance()
		arg := p.parseUnary()
		return ast.Tag((&ast.UnaryExpr{Op: op, Arg: arg, Prefix: true}), tok)
	}
	if p.curIs(lexer.PLUSPLUS) || p.curIs(lexer.MINUSMINUS) {
		op := p.cur.Literal
		p.advance()
		arg := p.parseUnary()
		return ast.Tag((&ast.UnaryExpr{Op: op, Arg: arg, Prefix: true}), tok)
	}
	if p.curIs(lexer.IDENT) && p.cur.Literal == "await" {
		p.advance()
		arg := p.parseUnary()
		return ast.Tag((&ast.AwaitExpr{Arg: arg}), tok)
	}
	if p.curIs(lexer.YIELD) || (p.curIs(lexer.IDENT) && p.cur.Literal == "yield") {
		p.advance()
		delegate := false
		if p.curIs(lexer.STAR) {
			delegate = true
			p.advance()
		}
		var arg ast.Expression
		if !p.curIs(lexer.SEMICOLON) && !p.curIs(lexer.RPAREN) && !p.curIs(lexer.RBRACE) &&
			!p.curIs(lexer.RBRACKET) && !p.curIs(lexer.COMMA) && !p.curIs(lexer.EOF) && !p.cur.PrecededByNL {
			arg = p.parseExpression(precAssign)
		}
		return ast.Tag((&ast.YieldExpr{Arg: arg, Delegate: delegate}), tok)
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() ast.Expression {
	expr := p.parseCallMember(p.parsePrimary())
	if (p.curIs(lexer.PLUSPLUS) || p.curIs(lexer.MINUSMINUS)) && !p.cur.PrecededByNL {
		op := p.cur.Literal
		p.advance()
		expr = ast.TagAt((&ast.UnaryExpr{Op: op, Arg: expr, Prefix: false}), expr.Pos())
	}
	return expr
}

// parseCallMember handles the postfix chain of member access, calls, and
// `new` applied to an already-parsed primary/new expression.
func (p *Parser) parseCallMember(expr ast.Expression) ast.Expression {
	for {
		switch {
		case p.curIs(lexer.DOT):
			tok := p.cur
			p.advance()
			var prop ast.Expression
			if p.curIs(lexer.PRIVATE_IDENT) {
				prop = ast.Tag((&ast.PrivateName{Name: p.cur.Literal}), p.cur)
				p.advance()
			} else {
				prop = p.parseIdentifier()
			}
			expr = ast.Tag((&ast.MemberExpr{Object: expr, Property: prop, Computed: false}), tok)
		case p.curIs(lexer.QUESTIONDOT):
			tok := p.cur
			p.advance()
			if p.curIs(lexer.LPAREN) {
				args := p.parseArgList()
				expr = ast.Tag((&ast.CallExpr{Callee: expr, Args: args, Optional: true}), tok)
				continue
			}
			if p.curIs(lexer.LBRACKET) {
				p.advance()
				prop := p.parseExpression(precComma)
				p.expect(lexer.RBRACKET)
				expr = ast.Tag((&ast.MemberExpr{Object: expr, Property: prop, Computed: true, Optional: true}), tok)
				continue
			}
			prop := p.parseIdentifier()
			expr = ast.Tag((&ast.MemberExpr{Object: expr, Property: prop, Optional: true}), tok)
		case p.curIs(lexer.LBRACKET):
			tok := p.cur
			p.advance()
			prop := p.parseExpression(precComma)
			p.expect(lexer.RBRACKET)
			expr = ast.Tag((&ast.MemberExpr{Object: expr, Property: prop, Computed: true}), tok)
		case p.curIs(lexer.LPAREN):
			tok := p.cur
			args := p.parseArgList()
			expr = ast.Tag((&ast.CallExpr{Callee: expr, Args: args}), tok)
		case p.curIs(lexer.TEMPLATE_STRING) || p.curIs(lexer.TEMPLATE_HEAD):
			tok := p.cur
			tmpl := p.parseTemplateLiteral()
			expr = ast.Tag((&ast.TaggedTemplate{Tag: expr, Template: tmpl}), tok)
		default:
			return expr
		}
	}
}

func (p *Parser) parseArgList() []ast.Expression {
	p.expect(lexer.LPAREN)
	var args []ast.Expression
	for !p.curIs(lexer.RPAREN) && !p.curIs(lexer.EOF) {
		if p.curIs(lexer.DOTDOTDOT) {
			tok := p.cur
			p.advance()
			args = append(args, ast.Tag((&ast.SpreadElement{Arg: p.parseExpression(precAssign)}), tok))
		} else {
			args = append(args, p.parseExpression(precAssign))
		}
		if !p.curIs(lexer.COMMA) {
			break
		}
		p.advance()
	}
	p.expect(lexer.RPAREN)
	return args
}

func (p *Parser) parsePrimary() ast.Expression {
	tok := p.cur
	switch p.cur.Type {
	case lexer.NUMBER:
		n, _ := strconv.ParseFloat(normalizeNumericLiteral(p.cur.Literal), 64)
		p.advance()
		return ast.Tag((&ast.NumberLiteral{Value: n}), tok)
	case lexer.BIGINT:
		lit := p.cur.Literal
		p.advance()
		return ast.Tag((&ast.BigIntLiteral{Raw: lit}), tok)
	case lexer.STRING:
		v := p.cur.Cooked
		p.advance()
		return ast.Tag((&ast.StringLiteral{Value: v}), tok)
	case lexer.TEMPLATE_STRING, lexer.TEMPLATE_HEAD:
		return p.parseTemplateLiteral()
	case lexer.TRUETOK, lexer.FALSETOK:
		v := p.cur.Type == lexer.TRUETOK
		p.advance()
		return ast.Tag((&ast.BoolLiteral{Value: v}), tok)
	case lexer.NULLTOK:
		p.advance()
		return ast.Tag((&ast.NullLiteral{}), tok)
	case lexer.REGEX:
		lit := p.cur.Literal
		p.advance()
		last := strings.LastIndex(lit, "/")
		return ast.Tag((&ast.RegexLiteral{Pattern: lit[1:last], Flags: lit[last+1:]}), tok)
	case lexer.THIS:
		p.advance()
		return ast.Tag((&ast.ThisExpr{}), tok)
	case lexer.SUPER:
		p.advance()
		return ast.Tag((&ast.SuperExpr{}), tok)
	case lexer.PRIVATE_IDENT:
		name := p.cur.Literal
		p.advance()
		return ast.Tag((&ast.PrivateName{Name: name}), tok)
	case lexer.NEW:
		return p.parseNewExpr()
	case lexer.FUNCTION:
		return p.parseFunctionLiteral()
	case lexer.CLASS:
		return p.parseClassLiteral()
	case lexer.LPAREN:
		return p.parseParenOrArrow()
	case lexer.LBRACKET:
		return p.parseArrayLiteral()
	case lexer.LBRACE:
		return p.parseObjectLiteral()
	case lexer.IDENT:
		if p.cur.Literal == "async" && (p.peekIs(lexer.FUNCTION) || p.peekIs(lexer.LPAREN) || p.peekIs(lexer.IDENT)) {
			return p.parseAsyncPrimary()
		}
		if p.peekIs(lexer.ARROW) {
			return p.parseSingleParamArrow()
		}
		return p.parseIdentifier()
	}
	p.errorf(p.cur.Pos, "unexpected token %s in expression", p.cur.Type)
	p.advance()
	return ast.Tag((&ast.NullLiteral{}), tok)
}

func normalizeNumericLiteral(lit string) string {
	if strings.HasPrefix(lit, "0x") || strings.HasPrefix(lit, "0X") {
		n, _ := strconv.ParseUint(lit[2:], 16, 64)
		return strconv.FormatUint(n, 10)
	}
	if strings.HasPrefix(lit, "0o") || strings.HasPrefix(lit, "0O") {
		n, _ := strconv.ParseUint(lit[2:], 8, 64)
		return strconv.FormatUint(n, 10)
	}
	if strings.HasPrefix(lit, "0b") || strings.HasPrefix(lit, "0B") {
		n, _ := strconv.ParseUint(lit[2:], 2, 64)
		return strconv.FormatUint(n, 10)
	}
	return lit
}

func (p *Parser) parseSingleParamArrow() ast.Expression {
	tok := p.cur
	param := p.parseIdentifier()
	p.expect(lexer.ARROW)
	return p.finishArrow(tok, []ast.Pattern{param}, false)
}

func (p *Parser) parseAsyncPrimary() ast.Expression {
	tok := p.cur
	p.advance() // 'async'
	if p.curIs(lexer.FUNCTION) {
		fn := p.parseFunctionLiteral()
		fn.IsAsync = true
		return fn
	}
	if p.curIs(lexer.IDENT) && p.peekIs(lexer.ARROW) {
		param := p.parseIdentifier()
		p.expect(lexer.ARROW)
		return p.finishArrow(tok, []ast.Pattern{param}, true)
	}
	params := p.parseParenParamList()
	p.expect(lexer.ARROW)
	return p.finishArrow(tok, params, true)
}

func (p *Parser) parseNewExpr() ast.Expression {
	tok := p.cur
	p.advance()
	callee := p.parseCallMember(p.parsePrimary())
	var args []ast.Expression
	if p.curIs(lexer.LPAREN) {
		args = p.parseArgList()
	}
	return ast.Tag((&ast.NewExpr{Callee: callee, Args: args}), tok)
}

// parseParenOrArrow disambiguates a parenthesized expression from an arrow
// function's parameter list by attempting the arrow form first; plain JS
// parsers commonly do a speculative parse here, but to stay single-pass we
// instead look for the defining `=>` that follows the matching `)`.
func (p *Parser) parseParenOrArrow() ast.Expression {
	tok := p.cur
	if p.looksLikeArrowParams() {
		params := p.parseParenParamList()
		p.expect(lexer.ARROW)
		return p.finishArrow(tok, params, false)
	}
	p.advance() // '('
	expr := p.parseExpression(precComma)
	p.expect(lexer.RPAREN)
	return expr
}

// looksLikeArrowParams scans ahead without consuming to see whether the
// parenthesized group opened by p.cur is followed by `=>`. It works on a
// copy of the lexer state: starting from p.peek, it counts parentheses up
// to the `)` matching p.cur, then checks whether the next token is `=>`.
// Empty parens followed by `=>` count as arrow params. The lexer, p.cur and
// p.peek are restored before it returns.
func (p *Parser) looksLikeArrowParams() bool {
	save := *p.lex
	savedCur, savedPeek := p.cur, p.peek
	defer func() {
		*p.lex = save
		p.cur, p.peek = savedCur, savedPeek
	}()

	depth := 1 // p.cur is the opening '('
	tok := p.peek
	for {
		switch tok.Type {
		case lexer.LPAREN:
			depth++
		case lexer.RPAREN:
			depth--
			if depth == 0 {
				next := p.lex.NextToken()
				return next.Type == lexer.ARROW
			}
		case lexer.EOF:
			return false
		}
		tok = p.lex.NextToken()
	}
}

func (p *Parser) parseParenParamList() []ast.Pattern {
	p.expect(lexer.LPAREN)
	var params []ast.Pattern
	for !p.curIs(lexer.RPAREN) && !p.curIs(lexer.EOF) {
		if p.curIs(lexer.DOTDOTDOT) {
			tok := p.cur
			p.advance()
			target := p.parseBindingTarget()
			params = append(params, ast.Tag((&ast.SpreadElement{Arg: target}), tok))
		} else {
			target := p.parseBindingTarget()
			if p.curIs(lexer.ASSIGN) {
				eqTok := p.cur
				p.advance()
				def := p.parseExpression(precAssign)
				target = ast.Tag((&ast.AssignExpr{Op: "=", Target: target, Value: def}), eqTok)
			}
			params = append(params, target)
		}
		if !p.curIs(lexer.COMMA) {
			break
		}
		p.advance()
	}
	p.expect(lexer.RPAREN)
	return params
}

func (p *Parser) finishArrow(tok lexer.Token, params []ast.Pattern, isAsync bool) ast.Expression {
	fn := &ast.FunctionLiteral{Params: params, IsArrow: true, IsAsync: isAsync}
	if p.curIs(lexer.LBRACE) {
		fn.Body = p.parseBlockStatement()
	} else {
		fn.ExprBody = p.parseExpression(precAssign)
	}
	return ast.Tag(fn, tok)
}

func (p *Parser) parseFunctionLiteral() *ast.FunctionLiteral {
	tok := p.cur
	p.expect(lexer.FUNCTION)
	isGen := false
	if p.curIs(lexer.STAR) {
		isGen = true
		p.advance()
	}
	var name *ast.Identifier
	if p.curIs(lexer.IDENT) {
		name = p.parseIdentifier()
	}
	params := p.parseParenParamList()
	body := p.parseBlockStatement()
	return ast.Tag((&ast.FunctionLiteral{Name: name, Params: params, Body: body, IsGen: isGen}), tok)
}

func (p *Parser) parseClassLiteral() *ast.ClassLiteral {
	tok := p.cur
	p.expect(lexer.CLASS)
	var name *ast.Identifier
	if p.curIs(lexer.IDENT) {
		name = p.parseIdentifier()
	}
	var super ast.Expression
	if p.curIs(lexer.EXTENDS) {
		p.advance()
		super = p.parseCallMember(p.parsePrimary())
	}
	p.expect(lexer.LBRACE)
	cls := &ast.ClassLiteral{Name: name, Super: super}
	for !p.curIs(lexer.RBRACE) && !p.curIs(lexer.EOF) {
		if p.curIs(lexer.SEMICOLON) {
			p.advance()
			continue
		}
		cls.Members = append(cls.Members, p.parseClassMember())
	}
	p.expect(lexer.RBRACE)
	return ast.Tag(cls, tok)
}

func (p *Parser) parseClassMember() *ast.ClassMember {
	m := &ast.ClassMember{Kind: "method"}
	if p.curIs(lexer.IDENT) && p.cur.Literal == "static" && !p.peekIs(lexer.LPAREN) && !p.peekIs(lexer.ASSIGN) {
		m.Static = true
		p.advance()
	}
	if p.curIs(lexer.IDENT) && (p.cur.Literal == "get" || p.cur.Literal == "set") && !p.peekIs(lexer.LPAREN) && !p.peekIs(lexer.ASSIGN) {
		m.Kind = p.cur.Literal
		p.advance()
	}
	isAsync, isGen := false, false
	if p.curIs(lexer.IDENT) && p.cur.Literal == "async" && !p.peekIs(lexer.LPAREN) && !p.peekIs(lexer.ASSIGN) {
		isAsync = true
		p.advance()
	}
	if p.curIs(lexer.STAR) {
		isGen = true
		p.advance()
	}

	if p.curIs(lexer.PRIVATE_IDENT) {
		m.Private = true
		m.Key = ast.Tag((&ast.PrivateName{Name: p.cur.Literal}), p.cur)
		p.advance()
	} else if p.curIs(lexer.LBRACKET) {
		p.advance()
		m.Key = p.parseExpression(precAssign)
		p.expect(lexer.RBRACKET)
	} else {
		tok := p.cur
		m.Key = ast.Tag((&ast.StringLiteral{Value: p.cur.Literal}), tok)
		p.advance()
	}

	if p.curIs(lexer.LPAREN) {
		params := p.parseParenParamList()
		body := p.parseBlockStatement()
		if name, ok := m.Key.(*ast.StringLiteral); ok && name.Value == "constructor" && m.Kind == "method" {
			m.Kind = "constructor"
		}
		m.Value = &ast.FunctionLiteral{Params: params, Body: body, IsAsync: isAsync, IsGen: isGen}
		return m
	}
	m.Kind = "field"
	if p.curIs(lexer.ASSIGN) {
		p.advance()
		m.FieldVal = p.parseExpression(precAssign)
	}
	p.consumeSemicolon()
	return m
}

func (p *Parser) parseArrayLiteral() *ast.ArrayLiteral {
	tok := p.cur
	p.expect(lexer.LBRACKET)
	arr := &ast.ArrayLiteral{}
	for !p.curIs(lexer.RBRACKET) && !p.curIs(lexer.EOF) {
		if p.curIs(lexer.COMMA) {
			arr.Elements = append(arr.Elements, nil)
			p.advance()
			continue
		}
		if p.curIs(lexer.DOTDOTDOT) {
			sTok := p.cur
			p.advance()
			arr.Elements = append(arr.Elements, ast.Tag((&ast.SpreadElement{Arg: p.parseExpression(precAssign)}), sTok))
		} else {
			el := p.parseExpression(precAssign)
			if p.curIs(lexer.ASSIGN) {
				eqTok := p.cur
				p.advance()
				def := p.parseExpression(precAssign)
				el = ast.Tag((&ast.AssignExpr{Op: "=", Target: el, Value: def}), eqTok)
			}
			arr.Elements = append(arr.Elements, el)
		}
		if p.curIs(lexer.COMMA) {
			p.advance()
		} else {
			break
		}
	}
	p.expect(lexer.RBRACKET)
	return ast.Tag(arr, tok)
}

func (p *Parser) parseObjectLiteral() *ast.ObjectLiteral {
	tok := p.cur
	p.expect(lexer.LBRACE)
	obj := &ast.ObjectLiteral{}
	for !p.curIs(lexer.RBRACE) && !p.curIs(lexer.EOF) {
		if p.curIs(lexer.DOTDOTDOT) {
			sTok := p.cur
			p.advance()
			arg := p.parseExpression(precAssign)
			obj.Properties = append(obj.Properties, &ast.Property{Kind: "spread", Value: arg, Key: arg})
			_ = sTok
		} else {
			obj.Properties = append(obj.Properties, p.parseObjectProperty())
		}
		if p.curIs(lexer.COMMA) {
			p.advance()
		} else {
			break
		}
	}
	p.expect(lexer.RBRACE)
	return ast.Tag(obj, tok)
}

func (p *Parser) parseObjectProperty() *ast.Property {
	isAsync, isGen := false, false
	kind := "init"
	if p.curIs(lexer.IDENT) && (p.cur.Literal == "get" || p.cur.Literal == "set") &&
		!p.peekIs(lexer.COLON) && !p.peekIs(lexer.COMMA) && !p.peekIs(lexer.RBRACE) && !p.peekIs(lexer.LPAREN) {
		kind = p.cur.Literal
		p.advance()
	}
	if p.curIs(lexer.IDENT) && p.cur.Literal == "async" && !p.peekIs(lexer.COLON) && !p.peekIs(lexer.COMMA) && !p.peekIs(lexer.RBRACE) {
		isAsync = true
		p.advance()
	}
	if p.curIs(lexer.STAR) {
		isGen = true
		p.advance()
	}

	computed := false
	var key ast.Expression
	if p.curIs(lexer.LBRACKET) {
		computed = true
		p.advance()
		key = p.parseExpression(precAssign)
		p.expect(lexer.RBRACKET)
	} else if p.curIs(lexer.STRING) {
		tok := p.cur
		key = ast.Tag((&ast.StringLiteral{Value: p.cur.Cooked}), tok)
		p.advance()
	} else if p.curIs(lexer.NUMBER) {
		tok := p.cur
		key = ast.Tag((&ast.StringLiteral{Value: p.cur.Literal}), tok)
		p.advance()
	} else {
		tok := p.cur
		key = ast.Tag((&ast.StringLiteral{Value: p.cur.Literal}), tok)
		p.advance()
	}

	if p.curIs(lexer.LPAREN) {
		params := p.parseParenParamList()
		body := p.parseBlockStatement()
		if kind == "init" {
			kind = "method"
		}
		return &ast.Property{Key: key, Computed: computed, Kind: kind,
			Value: &ast.FunctionLiteral{Params: params, Body: body, IsAsync: isAsync, IsGen: isGen}}
	}
	if p.curIs(lexer.COLON) {
		p.advance()
		val := p.parseExpression(precAssign)
		return &ast.Property{Key: key, Value: val, Computed: computed, Kind: "init"}
	}
	// shorthand { x } or { x = default } (the latter only valid in patterns)
	ident, _ := key.(*ast.StringLiteral)
	idExpr := ast.Tag((&ast.Identifier{Name: ident.Value}), ident.Tok)
	var val ast.Expression = idExpr
	if p.curIs(lexer.ASSIGN) {
		eqTok := p.cur
		p.advance()
		def := p.parseExpression(precAssign)
		val = ast.Tag((&ast.AssignExpr{Op: "=", Target: idExpr, Value: def}), eqTok)
	}
	return &ast.Property{Key: key, Value: val, Shorthand: true, Kind: "init"}
}

func (p *Parser) parseTemplateLiteral() *ast.TemplateLiteral {
	tok := p.cur
	tmpl := &ast.TemplateLiteral{}
	if p.curIs(lexer.TEMPLATE_STRING) {
		tmpl.Quasis = append(tmpl.Quasis, p.cur.Cooked)
		tmpl.Raw = append(tmpl.Raw, p.cur.Literal)
		p.advance()
		return ast.Tag(tmpl, tok)
	}
	tmpl.Quasis = append(tmpl.Quasis, p.cur.Cooked)
	tmpl.Raw = append(tmpl.Raw, p.cur.Literal)
	p.advance() // TEMPLATE_HEAD
	for {
		tmpl.Exprs = append(tmpl.Exprs, p.parseExpression(precComma))
		if !p.curIs(lexer.TEMPLATE_MIDDLE) && !p.curIs(lexer.TEMPLATE_TAIL) {
			p.errorf(p.cur.Pos, "unterminated template literal substitution")
			break
		}
		tmpl.Quasis = append(tmpl.Quasis, p.cur.Cooked)
		tmpl.Raw = append(tmpl.Raw, p.cur.Literal)
		done := p.curIs(lexer.TEMPLATE_TAIL)
		p.advance()
		if done {
			break
		}
	}
	return ast.Tag(tmpl, tok)
}
