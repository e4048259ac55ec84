// Copyright 2024 The probejs Authors
// This file is part of probejs.

// Package jsregexp backs the narrow match(pattern, flags, input) interface
// §1 calls out as an external collaborator of the engine core: the core
// never depends on a regex engine directly, only on this package's Compile
// function and the (*Regexp).Exec method.
//
// The standard library's regexp package compiles to RE2, which explicitly
// cannot express backreferences or lookaround — both constructs JS regex
// literals are allowed to use — so matching is delegated to
// github.com/dlclark/regexp2, a backtracking engine with .NET-flavored
// semantics close enough to JS's own.
package jsregexp

import (
	"fmt"

	"github.com/dlclark/regexp2"
)

// Regexp is one compiled pattern, cached by the RegExp constructor so
// repeated exec() calls on the same instance don't recompile.
type Regexp struct {
	re         *regexp2.Regexp
	Source     string
	Flags      string
	Global     bool
	IgnoreCase bool
	Multiline  bool
	Sticky     bool
	Unicode    bool
	DotAll     bool
}

// Compile parses flags and compiles pattern (§1 "match(pattern, flags,
// input) -> match-result").
func Compile(pattern, flags string) (*Regexp, error) {
	opts := regexp2.None
	r := &Regexp{Source: pattern, Flags: flags}
	for _, f := range flags {
		switch f {
		case 'g':
			r.Global = true
		case 'i':
			r.IgnoreCase = true
			opts |= regexp2.IgnoreCase
		case 'm':
			r.Multiline = true
			opts |= regexp2.Multiline
		case 'u':
			r.Unicode = true
		case 'y':
			r.Sticky = true
		case 's':
			r.DotAll = true
			opts |= regexp2.Singleline
		default:
			return nil, fmt.Errorf("invalid regular expression flag %q", string(f))
		}
	}
	compiled, err := regexp2.Compile(pattern, opts)
	if err != nil {
		return nil, fmt.Errorf("invalid regular expression: %w", err)
	}
	r.re = compiled
	return r, nil
}

// Match is one successful match's captured groups, 0 is the whole match.
type Match struct {
	Index  int
	Groups []Group
}

// Group is one capture group; Matched is false for a group that
// participated in the pattern but didn't capture on this attempt
// (e.g. inside an alternation branch that wasn't taken).
type Group struct {
	Value   string
	Index   int
	Matched bool
}

// Exec runs the pattern against input starting at rune offset start,
// returning the first match at or after start, or ok=false if none.
func (r *Regexp) Exec(input string, start int) (Match, bool, error) {
	m, err := r.re.FindStringMatchStartingAt(input, start)
	if err != nil {
		return Match{}, false, err
	}
	if m == nil {
		return Match{}, false, nil
	}
	groups := m.Groups()
	out := make([]Group, len(groups))
	for i, g := range groups {
		if len(g.Captures) == 0 {
			out[i] = Group{Matched: false}
			continue
		}
		out[i] = Group{Value: g.String(), Index: g.Index, Matched: true}
	}
	return Match{Index: m.Index, Groups: out}, true, nil
}
