package checkout

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"time"

	"fruitapp-be/internal/address"
	"fruitapp-be/internal/apperr"
	"fruitapp-be/internal/cart"
	"fruitapp-be/internal/db"
	"fruitapp-be/internal/logger"
	"fruitapp-be/internal/metrics"
	"fruitapp-be/internal/order"
	"fruitapp-be/internal/outbox"
	"fruitapp-be/internal/stock"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Result labels for the checkout metric.
const (
	ResultSuccess           = "success"
	ResultNoActiveCart      = "no_active_cart"
	ResultEmptyCart         = "empty_cart"
	ResultNoDefaultAddress  = "no_default_address"
	ResultInsufficientStock = "insufficient_stock"
	ResultConflict          = "conflict"
	ResultError             = "error"
)

// Coordinator turns a user's active cart into a PENDING order.
type Coordinator interface {
	Checkout(ctx context.Context, userID uint) (*order.Order, error)
}

// Recorder receives checkout metrics.
type Recorder interface {
	RecordCheckout(result string, duration time.Duration)
	RecordReservationRejected()
}

type coordinator struct {
	carts     cart.Manager
	ledger    stock.Ledger
	addresses address.Resolver
	orders    order.Repository
	events    outbox.Writer
	tx        db.TxManager
	metrics   Recorder
	now       func() time.Time
}

func NewCoordinator(
	carts cart.Manager,
	ledger stock.Ledger,
	addresses address.Resolver,
	orders order.Repository,
	events outbox.Writer,
	tx db.TxManager,
	metrics Recorder,
) Coordinator {
	return &coordinator{
		carts:     carts,
		ledger:    ledger,
		addresses: addresses,
		orders:    orders,
		events:    events,
		tx:        tx,
		metrics:   metrics,
		now:       time.Now,
	}
}

type reservation struct {
	productID uuid.UUID
	qty       int
}

// Checkout runs every step in one transaction: reserve stock, create the
// order, bump order counts, complete the cart, provision a fresh one and
// queue the order.created event. Any failure after stock was reserved
// releases it again before the transaction rolls back.
func (c *coordinator) Checkout(ctx context.Context, userID uint) (*order.Order, error) {
	timer := metrics.StartTimer()

	ctx = logger.WithUserID(ctx, userID)
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Checkout"),
	)

	var out *order.Order
	err := c.tx.WithinTx(ctx, func(ctx context.Context) error {
		// Held until commit so no cart mutation can land between the
		// snapshot below and Complete.
		active, err := c.carts.LockActiveCart(ctx, userID)
		if errors.Is(err, cart.ErrCartNotFound) {
			return ErrNoActiveCart
		}
		if err != nil {
			return err
		}
		if active.IsEmpty() {
			return ErrEmptyCart
		}

		addr, err := c.addresses.GetDefaultAddress(ctx, userID)
		if err != nil {
			return err
		}

		reserved, err := c.reserveAll(ctx, log, active.Items)
		if err != nil {
			return err
		}

		o, err := c.placeOrder(ctx, active, addr)
		if err != nil {
			c.releaseAll(ctx, log, reserved)
			return err
		}

		out = o
		return nil
	})

	result := resultOf(err)
	if c.metrics != nil {
		c.metrics.RecordCheckout(result, timer.Duration())
	}
	if err != nil {
		log.Info("checkout rejected", zap.String("result", result), zap.Error(err))
		return nil, err
	}

	log.Info("checkout completed",
		zap.String("order_id", out.ID.String()),
		zap.Int("items", len(out.Items)),
		zap.String("total_price", out.TotalPrice.StringFixed(2)),
	)
	return out, nil
}

// reserveAll reserves items in product id order so concurrent checkouts lock
// product rows in the same sequence. On the first failure the reservations
// made so far are released.
func (c *coordinator) reserveAll(ctx context.Context, log *zap.Logger, items []cart.CartItem) ([]reservation, error) {
	sorted := slices.Clone(items)
	slices.SortFunc(sorted, func(a, b cart.CartItem) int {
		return bytes.Compare(a.ProductID[:], b.ProductID[:])
	})

	reserved := make([]reservation, 0, len(sorted))
	for _, it := range sorted {
		if err := c.ledger.Reserve(ctx, it.ProductID, it.Quantity); err != nil {
			if errors.Is(err, stock.ErrInsufficientStock) && c.metrics != nil {
				c.metrics.RecordReservationRejected()
			}
			c.releaseAll(ctx, log, reserved)
			return nil, err
		}
		reserved = append(reserved, reservation{productID: it.ProductID, qty: it.Quantity})
	}
	return reserved, nil
}

func (c *coordinator) releaseAll(ctx context.Context, log *zap.Logger, reserved []reservation) {
	for _, r := range reserved {
		if err := c.ledger.Release(ctx, r.productID, r.qty); err != nil {
			// The transaction rollback still restores the row.
			log.Warn("failed to release reservation",
				zap.String("product_id", r.productID.String()),
				zap.Int("qty", r.qty),
				zap.Error(err),
			)
		}
	}
}

func (c *coordinator) placeOrder(ctx context.Context, active *cart.Cart, addr *address.Address) (*order.Order, error) {
	now := c.now()
	o := &order.Order{
		ID:              uuid.New(),
		UserID:          active.UserID,
		Status:          order.StatusPending,
		TotalPrice:      active.TotalPrice,
		ShippingAddress: addr.Snapshot(),
		Items:           make([]order.OrderItem, 0, len(active.Items)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, it := range active.Items {
		o.Items = append(o.Items, order.OrderItem{
			ID:        uuid.New(),
			OrderID:   o.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price,
		})
	}

	if err := c.orders.Create(ctx, o); err != nil {
		return nil, err
	}

	for _, it := range o.Items {
		if err := c.ledger.IncrementOrderCount(ctx, it.ProductID, 1); err != nil {
			return nil, err
		}
	}

	if err := c.carts.Complete(ctx, active.UserID, active.ID); err != nil {
		return nil, err
	}
	if _, err := c.carts.GetOrCreateActiveCart(ctx, active.UserID); err != nil {
		return nil, err
	}

	msg, err := order.CreatedEvent(o)
	if err != nil {
		return nil, err
	}
	if err := c.events.Enqueue(ctx, msg); err != nil {
		return nil, err
	}
	return o, nil
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, ErrNoActiveCart):
		return ResultNoActiveCart
	case errors.Is(err, ErrEmptyCart):
		return ResultEmptyCart
	case errors.Is(err, ErrNoDefaultAddress):
		return ResultNoDefaultAddress
	case errors.Is(err, stock.ErrInsufficientStock):
		return ResultInsufficientStock
	case errors.Is(err, apperr.ErrConflict):
		return ResultConflict
	default:
		return ResultError
	}
}
