// Package fees implements the fixed fee split applied to every
// aggregation round.
package fees

import (
	"math"
	"math/bits"
)

// bpsMax is the basis point denominator (100% = 10000).
const bpsMax = 10000

const (
	// CurrentBPS is the current-level share in basis points (40%).
	CurrentBPS = 4000

	// InclusionBPS is the inclusion/submitter share in basis points (5%).
	InclusionBPS = 500

	// AggregationBPS is the further-aggregation share in basis points (55%).
	AggregationBPS = 5500
)

// Split holds the breakdown of an aggregation round's total fee.
type Split struct {
	Total       uint64 // Total is the full fee amount
	Current     uint64 // Current is the current-level share (40%)
	Inclusion   uint64 // Inclusion is the submitter share (5%)
	Aggregation uint64 // Aggregation is the further-aggregation share (55% plus remainder)
}

// SplitFee breaks a total fee into its three shares.
// Integer division truncates; the remainder accrues to the aggregation
// share so the three shares always sum exactly to total.
func SplitFee(total uint64) Split {
	current := mulDiv(total, CurrentBPS)
	inclusion := mulDiv(total, InclusionBPS)
	aggregation := total - current - inclusion

	return Split{
		Total:       total,
		Current:     current,
		Inclusion:   inclusion,
		Aggregation: aggregation,
	}
}

// mulDiv computes total * bps / bpsMax without intermediate overflow.
func mulDiv(total, bps uint64) uint64 {
	hi, lo := bits.Mul64(total, bps)
	quo, _ := bits.Div64(hi, lo, bpsMax)

	return quo
}

// SafeAdd returns a + b, capping at MaxUint64 on overflow.
// Keeps a crafted fee list from wrapping the aggregation total to a small value.
func SafeAdd(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return math.MaxUint64
	}

	return sum
}
