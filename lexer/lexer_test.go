// Copyright 2024 The probejs Authors
// This file is part of probejs.

package lexer

import "testing"

func scanAll(src string) []Token {
	l := New("test.js", src)
	var toks []Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Type == EOF || tok.Type == ILLEGAL {
			break
		}
	}
	return toks
}

func TestPunctuatorsAndKeywords(t *testing.T) {
	toks := scanAll("let x = 1 + 2;")
	want := []Type{IDENT, IDENT, ASSIGN, NUMBER, PLUS, NUMBER, SEMICOLON, EOF}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %+v", len(toks), len(want), toks)
	}
	for i, w := range want {
		if toks[i].Type != w {
			t.Fatalf("token %d = %s, want %s", i, toks[i].Type, w)
		}
	}
	if toks[0].Literal != "let" {
		t.Fatalf("contextual keyword 'let' should lex as IDENT literal, got %q", toks[0].Literal)
	}
}

func TestNumberLiterals(t *testing.T) {
	cases := []struct {
		src  string
		typ  Type
		want string
	}{
		{"0x1F", NUMBER, "0x1F"},
		{"0b101", NUMBER, "0b101"},
		{"1_000_000", NUMBER, "1000000"},
		{"3.14e10", NUMBER, "3.14e10"},
		{"10n", BIGINT, "10"},
	}
	for _, c := range cases {
		toks := scanAll(c.src)
		if toks[0].Type != c.typ {
			t.Fatalf("%s: type = %s, want %s", c.src, toks[0].Type, c.typ)
		}
		if toks[0].Literal != c.want {
			t.Fatalf("%s: literal = %q, want %q", c.src, toks[0].Literal, c.want)
		}
	}
}

func TestStringEscapes(t *testing.T) {
	toks := scanAll(`"a\nbA"`)
	if toks[0].Type != STRING {
		t.Fatalf("expected STRING, got %s", toks[0].Type)
	}
	if toks[0].Cooked != "a\nbA" {
		t.Fatalf("cooked = %q, want %q", toks[0].Cooked, "a\nbA")
	}
}

func TestTemplateWithSubstitution(t *testing.T) {
	l := New("test.js", "`a${1}b`")
	head := l.NextToken()
	if head.Type != TEMPLATE_HEAD || head.Cooked != "a" {
		t.Fatalf("head = %+v", head)
	}
	num := l.NextToken()
	if num.Type != NUMBER || num.Literal != "1" {
		t.Fatalf("num = %+v", num)
	}
	tail := l.NextToken()
	if tail.Type != TEMPLATE_TAIL || tail.Cooked != "b" {
		t.Fatalf("tail = %+v", tail)
	}
}

func TestRegexVsDivisionMode(t *testing.T) {
	l := New("test.js", "/abc/g")
	l.SetRegexAllowed(true)
	tok := l.NextToken()
	if tok.Type != REGEX || tok.Literal != "/abc/g" {
		t.Fatalf("regex = %+v", tok)
	}

	l2 := New("test.js", "/2")
	l2.SetRegexAllowed(false)
	tok2 := l2.NextToken()
	if tok2.Type != SLASH {
		t.Fatalf("expected division SLASH, got %s", tok2.Type)
	}
}

func TestASILineTracking(t *testing.T) {
	toks := scanAll("a\nb")
	if toks[1].PrecededByNL != true {
		t.Fatalf("second identifier should be marked PrecededByNL for ASI")
	}
}

func TestPrivateIdent(t *testing.T) {
	toks := scanAll("#field")
	if toks[0].Type != PRIVATE_IDENT || toks[0].Literal != "#field" {
		t.Fatalf("got %+v", toks[0])
	}
}
