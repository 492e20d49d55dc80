package checkout

import (
	"fruitapp-be/internal/address"
	"fruitapp-be/internal/apperr"
	"fruitapp-be/internal/cart"
)

var (
	ErrNoActiveCart = apperr.New(apperr.KindNotFound, "user has no active cart")
	ErrEmptyCart    = apperr.New(apperr.KindValidation, "cart is empty")

	ErrNoDefaultAddress     = address.ErrNoDefaultAddress
	ErrCartAlreadyCompleted = cart.ErrCartAlreadyCompleted
)
