// Copyright 2024 The probejs Authors
// This file is part of probejs.

// Package bigint implements the engine's arbitrary-precision BigInt values.
//
// Most scripts that touch BigInt stay within 256 bits (hashes, token
// amounts, u64 arithmetic lifted to avoid overflow), so the fast path stores
// the magnitude in a github.com/holiman/uint256.Int — a fixed-width,
// allocation-free 256-bit integer — plus a sign bit. Operations that would
// overflow 256 bits transparently promote to math/big, which is the only
// place true arbitrary precision is needed; the fast path exists purely to
// avoid paying big.Int's heap allocation for the overwhelmingly common case.
package bigint

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Int is an arbitrary-precision signed integer, represented either as a
// sign + 256-bit magnitude (the fast path) or, once an operation would
// overflow that, as a big.Int.
type Int struct {
	// small and neg are valid when big == nil.
	small uint256.Int
	neg   bool

	// big holds the value when its magnitude does not fit 256 bits.
	// Operations return their result through fromBig, which moves any
	// result that fits back to the fast path.
	big *big.Int
}

// Zero is the additive identity.
func Zero() *Int { return &Int{} }

// FromInt64 creates a BigInt from a host int64.
func FromInt64(v int64) *Int {
	b := &Int{}
	if v < 0 {
		b.neg = true
		b.small.SetUint64(uint64(-v))
	} else {
		b.small.SetUint64(uint64(v))
	}
	return b
}

// FromDecimalString parses a base-10 BigInt literal (no sign permitted per
// caller convention — callers strip a leading '-' and negate).
func FromDecimalString(s string) (*Int, bool) {
	if s == "" {
		return nil, false
	}
	if v, err := uint256.FromDecimal(s); err == nil {
		return &Int{small: *v}, true
	}
	bi, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, false
	}
	return &Int{big: bi}, true
}

// isFast reports whether b is still represented in the 256-bit fast path.
func (b *Int) isFast() bool { return b.big == nil }

func (b *Int) toBig() *big.Int {
	if b.big != nil {
		return b.big
	}
	v := b.small.ToBig()
	if b.neg {
		v = new(big.Int).Neg(v)
	}
	return v
}

// fromBig normalizes a big.Int result back to the fast path when it fits in
// a signed 256-bit magnitude, else keeps the big.Int representation.
func fromBig(v *big.Int) *Int {
	mag := new(big.Int).Abs(v)
	if mag.BitLen() <= 256 {
		var u uint256.Int
		u.SetFromBig(mag)
		return &Int{small: u, neg: v.Sign() < 0}
	}
	return &Int{big: new(big.Int).Set(v)}
}

// Add returns a+b, promoting to math/big on 256-bit overflow.
func Add(a, b *Int) *Int {
	if a.isFast() && b.isFast() && a.neg == b.neg {
		var sum uint256.Int
		if _, overflow := sum.AddOverflow(&a.small, &b.small); !overflow {
			return &Int{small: sum, neg: a.neg}
		}
	}
	return fromBig(new(big.Int).Add(a.toBig(), b.toBig()))
}

// Sub returns a-b.
func Sub(a, b *Int) *Int {
	return fromBig(new(big.Int).Sub(a.toBig(), b.toBig()))
}

// Mul returns a*b, promoting to math/big on 256-bit overflow.
func Mul(a, b *Int) *Int {
	if a.isFast() && b.isFast() {
		var prod uint256.Int
		if _, overflow := prod.MulOverflow(&a.small, &b.small); !overflow {
			return &Int{small: prod, neg: a.neg != b.neg}
		}
	}
	return fromBig(new(big.Int).Mul(a.toBig(), b.toBig()))
}

// Quo returns the truncated quotient a/b. It panics when b is zero and does
// not check for that case itself.
func Quo(a, b *Int) *Int {
	return fromBig(new(big.Int).Quo(a.toBig(), b.toBig()))
}

// Rem returns the truncated remainder a%b.
func Rem(a, b *Int) *Int {
	return fromBig(new(big.Int).Rem(a.toBig(), b.toBig()))
}

// Neg returns -a.
func Neg(a *Int) *Int {
	if a.isFast() {
		if a.small.IsZero() {
			return a
		}
		return &Int{small: a.small, neg: !a.neg}
	}
	return fromBig(new(big.Int).Neg(a.big))
}

// Cmp returns -1, 0, or 1 comparing a to b.
func Cmp(a, b *Int) int {
	return a.toBig().Cmp(b.toBig())
}

// IsZero reports whether the value is zero.
func (b *Int) IsZero() bool {
	if b.isFast() {
		return b.small.IsZero()
	}
	return b.big.Sign() == 0
}

// String renders the base-10 textual form, as used by ToString(BigInt).
func (b *Int) String() string {
	return b.toBig().String()
}

// Int64 truncates to an int64 (used by asIntN/asUintN style coercions).
func (b *Int) Int64() int64 {
	return b.toBig().Int64()
}

// Float64 converts to the nearest IEEE-754 double, as used by BigInt-Number
// comparison and explicit Number(bigint) coercion.
func (b *Int) Float64() float64 {
	f, _ := new(big.Float).SetInt(b.toBig()).Float64()
	return f
}
