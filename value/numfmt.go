// Copyright 2024 The probejs Authors
// This file is part of probejs.

package value

import "strconv"

// shortestDecimal renders the shortest decimal string that round-trips to n,
// the same guarantee ECMA-262's Number::toString algorithm makes, via
// strconv's Ryu-derived shortest-form formatter. See the doc comment on
// formatNumber in value.go for why this is standard-library rather than a
// pack dependency.
func shortestDecimal(n float64) string {
	return strconv.FormatFloat(n, 'g', -1, 64)
}
