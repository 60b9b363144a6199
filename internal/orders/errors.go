package orders

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no order exists with the requested id.
	ErrNotFound = errors.New("order not found")
	// ErrForbidden means the caller does not own the order, or the order is not editable.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict means the requested status change is invalid for the order.
	ErrConflict = errors.New("conflict")
	// ErrStatusMismatch means a conditional status update found a different current status.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
	// ErrNoItems means an order without items cannot be submitted.
	ErrNoItems = fmt.Errorf("%w: order has no items", ErrConflict)
)
