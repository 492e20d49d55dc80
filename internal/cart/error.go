package cart

import "fruitapp-be/internal/apperr"

var (
	// -- Authorization --
	ErrUnauthorized = apperr.New(apperr.KindUnauthorized, "cart does not belong to user")

	// -- Validation & Input --
	ErrInvalidQuantity = apperr.New(apperr.KindValidation, "quantity must be at least 1")
	ErrDuplicateItem   = apperr.New(apperr.KindValidation, "product already in cart")

	// -- Resource State --
	ErrCartNotFound     = apperr.New(apperr.KindNotFound, "cart not found")
	ErrCartItemNotFound = apperr.New(apperr.KindNotFound, "cart item not found")
	ErrCartClosed       = apperr.New(apperr.KindConflict, "cart is completed")
	ErrAlreadyCompleted = apperr.New(apperr.KindConflict, "cart already completed")
	ErrAlreadyActive    = apperr.New(apperr.KindConflict, "cart already active")
	ErrActiveCartExists = apperr.New(apperr.KindConflict, "user already has an active cart")

	// ErrCartAlreadyCompleted is what a losing concurrent checkout observes.
	ErrCartAlreadyCompleted = ErrAlreadyCompleted
)

// Constraint names from migrations.
const (
	constraintActiveCart  = "ux_carts_user_active"
	constraintCartProduct = "ux_cart_items_cart_product"
)
