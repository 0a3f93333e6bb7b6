package ledger

import "math"

// checkedAdd returns a+b or ErrOverflow if the sum wraps.
func checkedAdd(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// checkedSub returns a-b or ErrUnderflow if b exceeds a.
// Balances and supplies must never wrap below zero.
func checkedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrUnderflow
	}
	return a - b, nil
}
