package order

import (
	"fmt"

	"fruitapp-be/internal/apperr"
)

var (
	ErrOrderNotFound     = apperr.New(apperr.KindNotFound, "order not found")
	ErrUnauthorized      = apperr.New(apperr.KindUnauthorized, "not allowed to change this order")
	ErrUnknownStatus     = apperr.New(apperr.KindValidation, "unknown order status")
	ErrInvalidTransition = apperr.New(apperr.KindConflict, "invalid order status transition")
	ErrStatusChanged     = apperr.New(apperr.KindConflict, "order status changed concurrently")
)

// InvalidTransitionError names the rejected status change.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	if e.From.IsTerminal() {
		return fmt.Sprintf("invalid order status transition %s -> %s: %s is terminal", e.From, e.To, e.From)
	}
	return fmt.Sprintf("invalid order status transition %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition || target == apperr.ErrConflict
}
