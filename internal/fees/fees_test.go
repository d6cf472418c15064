package fees

import (
	"math"
	"testing"
)

func TestSplitFee_SumsExactly(t *testing.T) {
	totals := []uint64{0, 1, 2, 3, 7, 99, 100, 101, 9999, 10000, 10001,
		123456789, math.MaxUint64}

	for _, total := range totals {
		s := SplitFee(total)

		if s.Current+s.Inclusion+s.Aggregation != total {
			t.Errorf("total=%d: shares sum to %d",
				total, s.Current+s.Inclusion+s.Aggregation)
		}
	}
}

func TestSplitFee_Shares(t *testing.T) {
	s := SplitFee(10000)

	if s.Current != 4000 {
		t.Errorf("current: got %d, want 4000", s.Current)
	}

	if s.Inclusion != 500 {
		t.Errorf("inclusion: got %d, want 500", s.Inclusion)
	}

	if s.Aggregation != 5500 {
		t.Errorf("aggregation: got %d, want 5500", s.Aggregation)
	}
}

func TestSplitFee_RemainderToAggregation(t *testing.T) {
	// 101: current = 40, inclusion = 5, remainder 1 lands in aggregation.
	s := SplitFee(101)

	if s.Current != 40 {
		t.Errorf("current: got %d, want 40", s.Current)
	}

	if s.Inclusion != 5 {
		t.Errorf("inclusion: got %d, want 5", s.Inclusion)
	}

	if s.Aggregation != 56 {
		t.Errorf("aggregation: got %d, want 56", s.Aggregation)
	}
}

func TestSplitFee_LargeTotalNoOverflow(t *testing.T) {
	s := SplitFee(math.MaxUint64)

	if s.Current == 0 || s.Inclusion == 0 {
		t.Errorf("large totals must not overflow to zero shares")
	}

	if s.Current+s.Inclusion+s.Aggregation != math.MaxUint64 {
		t.Errorf("large total: shares do not sum")
	}
}

func TestSafeAdd(t *testing.T) {
	if got := SafeAdd(1, 2); got != 3 {
		t.Errorf("1+2: got %d", got)
	}

	if got := SafeAdd(math.MaxUint64, 1); got != math.MaxUint64 {
		t.Errorf("overflow must cap at MaxUint64, got %d", got)
	}
}
