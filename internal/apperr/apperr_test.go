package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesKind(t *testing.T) {
	err := Conflict("rides.accept", "ride %s is not pending", "r1")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("conflict must not match not-found")
	}
	wrapped := fmt.Errorf("outer: %w", err)
	if !errors.Is(wrapped, ErrConflict) {
		t.Fatalf("wrapped error lost its kind")
	}
}

func TestKindOf(t *testing.T) {
	if k := KindOf(InsufficientBalance("ledger.debit", "short")); k != KindInsufficientBalance {
		t.Fatalf("got %s", k)
	}
	if k := KindOf(errors.New("boom")); k != KindInternal {
		t.Fatalf("untyped error should be internal, got %s", k)
	}
}

func TestErrorString(t *testing.T) {
	err := Internal("ledger.credit", errors.New("conn reset"))
	if got := err.Error(); got != "ledger.credit: internal error: conn reset" {
		t.Fatalf("unexpected message %q", got)
	}
}
