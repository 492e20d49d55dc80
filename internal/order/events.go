package order

import (
	"time"

	"fruitapp-be/internal/outbox"
)

type itemPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
	Subtotal  string `json:"subtotal"`
}

type createdPayload struct {
	OrderID    string        `json:"order_id"`
	UserID     uint          `json:"user_id"`
	Status     OrderStatus   `json:"status"`
	TotalPrice string        `json:"total_price"`
	Items      []itemPayload `json:"items"`
	CreatedAt  time.Time     `json:"created_at"`
}

type statusChangedPayload struct {
	OrderID   string      `json:"order_id"`
	UserID    uint        `json:"user_id"`
	From      OrderStatus `json:"from"`
	To        OrderStatus `json:"to"`
	ChangedBy uint        `json:"changed_by"`
	ChangedAt time.Time   `json:"changed_at"`
}

// CreatedEvent builds the order.created outbox message.
func CreatedEvent(o *Order) (outbox.Message, error) {
	items := make([]itemPayload, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, itemPayload{
			ProductID: it.ProductID.String(),
			Quantity:  it.Quantity,
			Price:     it.Price.StringFixed(2),
			Subtotal:  it.Subtotal().StringFixed(2),
		})
	}

	return outbox.NewMessage(outbox.AggregateOrder, o.ID.String(), outbox.EventOrderCreated, createdPayload{
		OrderID:    o.ID.String(),
		UserID:     o.UserID,
		Status:     o.Status,
		TotalPrice: o.TotalPrice.StringFixed(2),
		Items:      items,
		CreatedAt:  o.CreatedAt,
	})
}

func statusChangedEvent(o *Order, from OrderStatus, by uint) (outbox.Message, error) {
	return outbox.NewMessage(outbox.AggregateOrder, o.ID.String(), outbox.EventOrderStatusChanged, statusChangedPayload{
		OrderID:   o.ID.String(),
		UserID:    o.UserID,
		From:      from,
		To:        o.Status,
		ChangedBy: by,
		ChangedAt: o.UpdatedAt,
	})
}
