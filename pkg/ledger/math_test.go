package ledger

import (
	"errors"
	"math"
	"testing"
)

func TestCheckedAdd(t *testing.T) {
	if got, err := checkedAdd(2, 3); err != nil || got != 5 {
		t.Errorf("checkedAdd(2,3) = %d, %v", got, err)
	}
	if got, err := checkedAdd(math.MaxUint64, 0); err != nil || got != math.MaxUint64 {
		t.Errorf("checkedAdd(max,0) = %d, %v", got, err)
	}
	if _, err := checkedAdd(math.MaxUint64, 1); !errors.Is(err, ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestCheckedSub(t *testing.T) {
	if got, err := checkedSub(5, 3); err != nil || got != 2 {
		t.Errorf("checkedSub(5,3) = %d, %v", got, err)
	}
	if got, err := checkedSub(5, 5); err != nil || got != 0 {
		t.Errorf("checkedSub(5,5) = %d, %v", got, err)
	}
	if _, err := checkedSub(3, 5); !errors.Is(err, ErrUnderflow) {
		t.Errorf("expected ErrUnderflow, got %v", err)
	}
}
