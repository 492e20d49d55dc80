package address

import "fruitapp-be/internal/apperr"

var ErrNoDefaultAddress = apperr.New(apperr.KindNotFound, "no default address")
