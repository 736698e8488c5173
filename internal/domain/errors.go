package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers order, cart line and code group lookups that miss.
	ErrNotFound = errors.New("resource not found")

	// ErrUnauthorized is returned on cross-tenant access: a cart line,
	// order or seller-scoped line that does not belong to the caller.
	ErrUnauthorized = errors.New("not allowed for this caller")

	// ErrRegistryUnavailable means the code store could not be read; the
	// registry keeps serving its previous snapshot.
	ErrRegistryUnavailable = errors.New("code registry unavailable")
)

// ProductNotFoundError reports a line referencing a product that does not
// exist or is not sellable.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d does not exist", e.ProductID)
}

// InsufficientStockError reports a reservation that exceeds the sellable
// stock at call time.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("product %d has only %d available (requested %d)", e.ProductID, e.Available, e.Requested)
}

// ValidationError reports malformed input shape. These are user-correctable
// and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
