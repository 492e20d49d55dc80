package cart

import (
	"context"
	"errors"
	"time"

	"fruitapp-be/internal/db"
	"fruitapp-be/internal/logger"
	"fruitapp-be/internal/product"
	"fruitapp-be/internal/stock"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Manager owns every cart mutation and the one-active-cart-per-user rule.
type Manager interface {
	GetOrCreateActiveCart(ctx context.Context, userID uint) (*Cart, error)
	// GetActiveCart returns ErrCartNotFound when the user has no active cart.
	GetActiveCart(ctx context.Context, userID uint) (*Cart, error)
	// LockActiveCart returns the active cart with its row locked until the
	// caller's transaction ends. Call it inside WithinTx.
	LockActiveCart(ctx context.Context, userID uint) (*Cart, error)
	GetCart(ctx context.Context, userID uint, cartID uuid.UUID) (*Cart, error)

	AddItem(ctx context.Context, userID uint, cartID, productID uuid.UUID, qty int) (*Cart, error)
	UpdateQuantity(ctx context.Context, userID uint, cartID, productID uuid.UUID, qty int) (*Cart, error)
	RemoveItem(ctx context.Context, userID uint, cartID, productID uuid.UUID) (*Cart, error)
	Clear(ctx context.Context, userID uint, cartID uuid.UUID) (*Cart, error)

	Complete(ctx context.Context, userID uint, cartID uuid.UUID) error
	Reopen(ctx context.Context, userID uint, cartID uuid.UUID) (*Cart, error)
}

type manager struct {
	repo    Repository
	catalog product.Catalog
	tx      db.TxManager
	now     func() time.Time
}

func NewManager(repo Repository, catalog product.Catalog, tx db.TxManager) Manager {
	return &manager{
		repo:    repo,
		catalog: catalog,
		tx:      tx,
		now:     time.Now,
	}
}

func (m *manager) GetOrCreateActiveCart(ctx context.Context, userID uint) (*Cart, error) {
	log := logger.ForUser(ctx, userID).With(
		zap.String("layer", "service"),
		zap.String("method", "GetOrCreateActiveCart"),
	)

	var out *Cart
	err := m.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := m.repo.GetActiveByUser(ctx, userID)
		if err == nil {
			out = c
			return nil
		}
		if !errors.Is(err, ErrCartNotFound) {
			return err
		}

		now := m.now()
		fresh := &Cart{
			ID:         uuid.New(),
			UserID:     userID,
			Status:     StatusActive,
			Items:      []CartItem{},
			TotalPrice: decimal.Zero,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		created, err := m.repo.CreateActive(ctx, fresh)
		if err != nil {
			return err
		}
		if created {
			log.Info("active cart created", zap.String("cart_id", fresh.ID.String()))
			out = fresh
			return nil
		}

		// A concurrent caller inserted first; its cart is the active one.
		log.Debug("lost active cart insert race, re-reading")
		out, err = m.repo.GetActiveByUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *manager) GetActiveCart(ctx context.Context, userID uint) (*Cart, error) {
	return m.repo.GetActiveByUser(ctx, userID)
}

// LockActiveCart locks by id rather than by (user_id, status): a caller that
// waited on a checkout committing the same cart then sees it COMPLETED and
// gets ErrAlreadyCompleted instead of missing the row.
func (m *manager) LockActiveCart(ctx context.Context, userID uint) (*Cart, error) {
	c, err := m.repo.GetActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	locked, err := m.repo.GetForUpdate(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if locked.UserID != userID {
		return nil, ErrUnauthorized
	}
	if !locked.IsActive() {
		logger.ForUser(ctx, userID).Info("cart completed while waiting for lock",
			zap.String("cart_id", c.ID.String()),
		)
		return nil, ErrAlreadyCompleted
	}
	return locked, nil
}

func (m *manager) GetCart(ctx context.Context, userID uint, cartID uuid.UUID) (*Cart, error) {
	c, err := m.repo.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, ErrUnauthorized
	}
	return c, nil
}

func (m *manager) AddItem(
	ctx context.Context,
	userID uint,
	cartID, productID uuid.UUID,
	qty int,
) (*Cart, error) {

	if qty < 1 {
		return nil, ErrInvalidQuantity
	}

	return m.mutate(ctx, "AddItem", userID, cartID, func(ctx context.Context, c *Cart) error {
		if _, ok := c.Item(productID); ok {
			return ErrDuplicateItem
		}

		p, err := m.catalog.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if err := stockCovers(productID, p.StockQuantity, qty); err != nil {
			return err
		}

		now := m.now()
		item := CartItem{
			ID:        uuid.New(),
			CartID:    c.ID,
			ProductID: productID,
			Quantity:  qty,
			Price:     p.Price,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := m.repo.InsertItem(ctx, &item); err != nil {
			return err
		}

		c.Items = append(c.Items, item)
		return nil
	})
}

func (m *manager) UpdateQuantity(
	ctx context.Context,
	userID uint,
	cartID, productID uuid.UUID,
	qty int,
) (*Cart, error) {

	if qty < 1 {
		return nil, ErrInvalidQuantity
	}

	return m.mutate(ctx, "UpdateQuantity", userID, cartID, func(ctx context.Context, c *Cart) error {
		item, ok := c.Item(productID)
		if !ok {
			return ErrCartItemNotFound
		}
		if qty > item.Quantity {
			if err := m.checkStock(ctx, productID, qty); err != nil {
				return err
			}
		}
		if err := m.repo.UpdateItemQuantity(ctx, c.ID, productID, qty); err != nil {
			return err
		}
		item.Quantity = qty
		item.UpdatedAt = m.now()
		return nil
	})
}

func (m *manager) RemoveItem(
	ctx context.Context,
	userID uint,
	cartID, productID uuid.UUID,
) (*Cart, error) {

	return m.mutate(ctx, "RemoveItem", userID, cartID, func(ctx context.Context, c *Cart) error {
		if _, ok := c.Item(productID); !ok {
			return ErrCartItemNotFound
		}
		if err := m.repo.DeleteItem(ctx, c.ID, productID); err != nil {
			return err
		}

		kept := c.Items[:0]
		for _, it := range c.Items {
			if it.ProductID != productID {
				kept = append(kept, it)
			}
		}
		c.Items = kept
		return nil
	})
}

func (m *manager) Clear(ctx context.Context, userID uint, cartID uuid.UUID) (*Cart, error) {
	return m.mutate(ctx, "Clear", userID, cartID, func(ctx context.Context, c *Cart) error {
		if err := m.repo.DeleteItems(ctx, c.ID); err != nil {
			return err
		}
		c.Items = []CartItem{}
		return nil
	})
}

// Complete closes an active cart. The status write is conditional, so of two
// transactions completing the same cart only the first to commit succeeds.
func (m *manager) Complete(ctx context.Context, userID uint, cartID uuid.UUID) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Complete"),
		zap.String("cart_id", cartID.String()),
	)

	return m.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := m.repo.GetForUpdate(ctx, cartID)
		if err != nil {
			return err
		}
		if c.UserID != userID {
			return ErrUnauthorized
		}
		if !c.IsActive() {
			return ErrAlreadyCompleted
		}

		ok, err := m.repo.MarkCompleted(ctx, cartID)
		if err != nil {
			return err
		}
		if !ok {
			log.Info("cart completed concurrently")
			return ErrAlreadyCompleted
		}
		return nil
	})
}

// Reopen flips a completed cart back to active and keeps its items.
func (m *manager) Reopen(ctx context.Context, userID uint, cartID uuid.UUID) (*Cart, error) {
	var out *Cart
	err := m.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := m.repo.GetForUpdate(ctx, cartID)
		if err != nil {
			return err
		}
		if c.UserID != userID {
			return ErrUnauthorized
		}
		if c.IsActive() {
			return ErrAlreadyActive
		}

		ok, err := m.repo.MarkActive(ctx, cartID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyActive
		}

		c.Status = StatusActive
		c.UpdatedAt = m.now()
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *manager) checkStock(ctx context.Context, productID uuid.UUID, qty int) error {
	p, err := m.catalog.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	return stockCovers(productID, p.StockQuantity, qty)
}

// stockCovers is early feedback only; the authoritative check is the
// reservation at checkout.
func stockCovers(productID uuid.UUID, available, qty int) error {
	if available < qty {
		return &stock.InsufficientStockError{
			ProductID: productID,
			Requested: qty,
			Available: available,
		}
	}
	return nil
}

// mutate locks an active cart owned by userID, applies fn and persists the
// recomputed totals, all in one transaction.
func (m *manager) mutate(
	ctx context.Context,
	method string,
	userID uint,
	cartID uuid.UUID,
	fn func(ctx context.Context, c *Cart) error,
) (*Cart, error) {

	log := logger.ForUser(ctx, userID).With(
		zap.String("layer", "service"),
		zap.String("method", method),
		zap.String("cart_id", cartID.String()),
	)

	var out *Cart
	err := m.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := m.repo.GetForUpdate(ctx, cartID)
		if err != nil {
			return err
		}
		if c.UserID != userID {
			return ErrUnauthorized
		}
		if !c.IsActive() {
			return ErrCartClosed
		}

		if err := fn(ctx, c); err != nil {
			return err
		}

		c.Recalculate()
		c.UpdatedAt = m.now()
		if err := m.repo.SaveTotals(ctx, c); err != nil {
			return err
		}

		out = c
		return nil
	})
	if err != nil {
		log.Info("cart mutation rejected", zap.Error(err))
		return nil, err
	}

	log.Debug("cart updated",
		zap.Int("total_quantity", out.TotalQuantity),
		zap.String("total_price", out.TotalPrice.StringFixed(2)),
	)
	return out, nil
}
