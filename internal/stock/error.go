package stock

import (
	"fmt"

	"fruitapp-be/internal/apperr"

	"github.com/google/uuid"
)

var (
	ErrInsufficientStock  = apperr.New(apperr.KindConflict, "insufficient stock")
	ErrInvalidQuantity    = apperr.New(apperr.KindValidation, "quantity must be at least 1")
	ErrOrderCountNegative = apperr.New(apperr.KindConflict, "order count cannot go below zero")
)

// InsufficientStockError reports a reservation that asked for more units than were available.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock || target == apperr.ErrConflict
}

// Shortfall is the number of units missing to satisfy the request.
func (e *InsufficientStockError) Shortfall() int {
	return e.Requested - e.Available
}
