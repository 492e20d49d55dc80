package product

import "fruitapp-be/internal/apperr"

var ErrProductNotFound = apperr.New(apperr.KindNotFound, "product not found")
