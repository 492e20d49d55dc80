package order

import (
	"time"

	"fruitapp-be/internal/address"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "PENDING"
	StatusProcessing OrderStatus = "PROCESSING"
	StatusShipped    OrderStatus = "SHIPPED"
	StatusDelivered  OrderStatus = "DELIVERED"
	StatusCancelled  OrderStatus = "CANCELLED"
	StatusFailed     OrderStatus = "FAILED"
	StatusReturned   OrderStatus = "RETURNED"
)

// transitions is the complete set of legal status changes. Statuses without an
// entry are terminal.
var transitions = map[OrderStatus]map[OrderStatus]struct{}{
	StatusPending: {
		StatusProcessing: {},
		StatusCancelled:  {},
	},
	StatusProcessing: {
		StatusShipped: {},
		StatusFailed:  {},
	},
	StatusShipped: {
		StatusDelivered: {},
		StatusReturned:  {},
	},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered,
		StatusCancelled, StatusFailed, StatusReturned:
		return true
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// ReleasesStock reports whether entering s hands the order's stock back.
func (s OrderStatus) ReleasesStock() bool {
	return s == StatusCancelled || s == StatusFailed || s == StatusReturned
}

func CanTransition(from, to OrderStatus) bool {
	_, ok := transitions[from][to]
	return ok
}

type Order struct {
	ID              uuid.UUID
	UserID          uint
	Status          OrderStatus
	TotalPrice      decimal.Decimal
	ShippingAddress address.Snapshot
	Items           []OrderItem
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem copies quantity and unit price from the cart at checkout time.
type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	Price     decimal.Decimal
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
