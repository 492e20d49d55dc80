package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
)

type Cart struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uint            `json:"user_id"`
	Status        Status          `json:"status"`
	Items         []CartItem      `json:"items"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	TotalQuantity int             `json:"total_quantity"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// CartItem keeps the unit price captured when the product was added.
type CartItem struct {
	ID        uuid.UUID       `json:"id"`
	CartID    uuid.UUID       `json:"cart_id"`
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (i CartItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (c *Cart) IsActive() bool {
	return c.Status == StatusActive
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Item returns the line for productID, if the cart has one.
func (c *Cart) Item(productID uuid.UUID) (*CartItem, bool) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i], true
		}
	}
	return nil, false
}

// Recalculate derives the totals from the current items. Totals are never
// adjusted incrementally.
func (c *Cart) Recalculate() {
	total := decimal.Zero
	qty := 0
	for _, it := range c.Items {
		total = total.Add(it.Subtotal())
		qty += it.Quantity
	}
	c.TotalPrice = total
	c.TotalQuantity = qty
}
