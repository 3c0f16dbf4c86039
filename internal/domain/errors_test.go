package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "nil error", err: nil, want: ErrorKindNone},
		{name: "items required", err: ErrItemsRequired, want: ErrorKindInvalidRequest},
		{name: "order not found", err: ErrOrderNotFound, want: ErrorKindNotFound},
		{name: "missing products", err: &ProductsNotFoundError{IDs: []string{"p1"}}, want: ErrorKindNotFound},
		{name: "already paid", err: ErrOrderAlreadyPaid, want: ErrorKindInvalidTransition},
		{name: "wrapped storage error", err: WrapPersistence("create", errors.New("boom")), want: ErrorKindPersistence},
		{name: "plain error", err: errors.New("other"), want: ErrorKindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProductsNotFoundError(t *testing.T) {
	err := error(&ProductsNotFoundError{IDs: []string{"p1", "p2"}})

	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound kind")
	}
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound")
	}
	if got := err.Error(); got != "products not found: p1, p2" {
		t.Fatalf("unexpected message %q", got)
	}

	var missing *ProductsNotFoundError
	if !errors.As(fmt.Errorf("create: %w", err), &missing) {
		t.Fatalf("expected errors.As to find ProductsNotFoundError")
	}
	if len(missing.IDs) != 2 {
		t.Fatalf("expected 2 ids, got %v", missing.IDs)
	}
}

func TestWrapPersistence(t *testing.T) {
	if WrapPersistence("op", nil) != nil {
		t.Fatalf("nil must stay nil")
	}

	cause := context.DeadlineExceeded
	err := WrapPersistence("mark paid", cause)
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}

	var perr *PersistenceError
	if !errors.As(err, &perr) || perr.Op != "mark paid" {
		t.Fatalf("expected PersistenceError with op, got %v", err)
	}

	if got := WrapPersistence("get", ErrOrderNotFound); got != ErrOrderNotFound {
		t.Fatalf("classified errors must pass through, got %v", got)
	}
	if got := WrapPersistence("again", err); got != err {
		t.Fatalf("double wrapping is not expected")
	}
}
