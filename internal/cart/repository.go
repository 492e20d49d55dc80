package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fruitapp-be/internal/db"
	"fruitapp-be/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Repository interface {
	GetActiveByUser(ctx context.Context, userID uint) (*Cart, error)
	// CreateActive inserts c unless the user already has an active cart.
	// It reports whether the row was inserted.
	CreateActive(ctx context.Context, c *Cart) (bool, error)
	GetByID(ctx context.Context, cartID uuid.UUID) (*Cart, error)
	GetForUpdate(ctx context.Context, cartID uuid.UUID) (*Cart, error)

	InsertItem(ctx context.Context, item *CartItem) error
	UpdateItemQuantity(ctx context.Context, cartID, productID uuid.UUID, qty int) error
	DeleteItem(ctx context.Context, cartID, productID uuid.UUID) error
	DeleteItems(ctx context.Context, cartID uuid.UUID) error
	SaveTotals(ctx context.Context, c *Cart) error

	// MarkCompleted and MarkActive are conditional on the current status and
	// report whether the row changed.
	MarkCompleted(ctx context.Context, cartID uuid.UUID) (bool, error)
	MarkActive(ctx context.Context, cartID uuid.UUID) (bool, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(sqlDB *sql.DB) Repository {
	return &repository{db: sqlDB}
}

const cartColumns = `id, user_id, status, total_price, total_quantity, created_at, updated_at`

func scanCart(row *sql.Row) (*Cart, error) {
	var c Cart
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Status,
		&c.TotalPrice,
		&c.TotalQuantity,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) GetActiveByUser(ctx context.Context, userID uint) (*Cart, error) {
	log := logger.ForUser(ctx, userID).With(
		zap.String("layer", "repository"),
		zap.String("method", "GetActiveByUser"),
	)

	conn := db.Conn(ctx, r.db)
	c, err := scanCart(conn.QueryRowContext(ctx,
		`SELECT `+cartColumns+` FROM carts WHERE user_id = $1 AND status = 'ACTIVE'`,
		userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		log.Error("query failed", zap.Error(err))
		return nil, fmt.Errorf("get active cart: %w", err)
	}

	if c.Items, err = r.loadItems(ctx, conn, c.ID); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *repository) CreateActive(ctx context.Context, c *Cart) (bool, error) {
	log := logger.ForUser(ctx, c.UserID).With(
		zap.String("layer", "repository"),
		zap.String("method", "CreateActive"),
	)

	const q = `
		INSERT INTO carts (id, user_id, status, total_price, total_quantity, created_at, updated_at)
		VALUES ($1, $2, 'ACTIVE', $3, $4, $5, $6)
		ON CONFLICT (user_id) WHERE status = 'ACTIVE' DO NOTHING
	`

	res, err := db.Conn(ctx, r.db).ExecContext(ctx, q,
		c.ID,
		c.UserID,
		c.TotalPrice,
		c.TotalQuantity,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		log.Error("insert failed", zap.Error(err))
		return false, fmt.Errorf("create cart: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create cart: %w", err)
	}
	return affected == 1, nil
}

func (r *repository) GetByID(ctx context.Context, cartID uuid.UUID) (*Cart, error) {
	return r.get(ctx, cartID, false)
}

func (r *repository) GetForUpdate(ctx context.Context, cartID uuid.UUID) (*Cart, error) {
	return r.get(ctx, cartID, true)
}

func (r *repository) get(ctx context.Context, cartID uuid.UUID, lock bool) (*Cart, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "GetCart"),
		zap.String("cart_id", cartID.String()),
		zap.Bool("lock", lock),
	)

	q := `SELECT ` + cartColumns + ` FROM carts WHERE id = $1`
	if lock {
		q += ` FOR UPDATE`
	}

	conn := db.Conn(ctx, r.db)
	c, err := scanCart(conn.QueryRowContext(ctx, q, cartID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		log.Error("query failed", zap.Error(err))
		return nil, fmt.Errorf("get cart: %w", err)
	}

	if c.Items, err = r.loadItems(ctx, conn, c.ID); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *repository) loadItems(ctx context.Context, conn db.Querier, cartID uuid.UUID) ([]CartItem, error) {
	const q = `
		SELECT id, cart_id, product_id, quantity, price, created_at, updated_at
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY created_at, id
	`

	rows, err := conn.QueryContext(ctx, q, cartID)
	if err != nil {
		return nil, fmt.Errorf("load cart items: %w", err)
	}
	defer rows.Close()

	items := make([]CartItem, 0)
	for rows.Next() {
		var it CartItem
		if err := rows.Scan(
			&it.ID,
			&it.CartID,
			&it.ProductID,
			&it.Quantity,
			&it.Price,
			&it.CreatedAt,
			&it.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load cart items: %w", err)
	}

	return items, nil
}

func (r *repository) InsertItem(ctx context.Context, item *CartItem) error {
	const q = `
		INSERT INTO cart_items (id, cart_id, product_id, quantity, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := db.Conn(ctx, r.db).ExecContext(ctx, q,
		item.ID,
		item.CartID,
		item.ProductID,
		item.Quantity,
		item.Price,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if db.IsUniqueViolation(err, constraintCartProduct) {
		return ErrDuplicateItem
	}
	if err != nil {
		logger.FromCtx(ctx).Error("insert cart item failed",
			zap.String("cart_id", item.CartID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("insert cart item: %w", err)
	}
	return nil
}

func (r *repository) UpdateItemQuantity(ctx context.Context, cartID, productID uuid.UUID, qty int) error {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE cart_items
		SET quantity = $1, updated_at = NOW()
		WHERE cart_id = $2 AND product_id = $3
	`, qty, cartID, productID)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	return expectOneRow(res, ErrCartItemNotFound)
}

func (r *repository) DeleteItem(ctx context.Context, cartID, productID uuid.UUID) error {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE cart_id = $1 AND product_id = $2
	`, cartID, productID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return expectOneRow(res, ErrCartItemNotFound)
}

func (r *repository) DeleteItems(ctx context.Context, cartID uuid.UUID) error {
	_, err := db.Conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (r *repository) SaveTotals(ctx context.Context, c *Cart) error {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE carts
		SET total_price = $1, total_quantity = $2, updated_at = NOW()
		WHERE id = $3
	`, c.TotalPrice, c.TotalQuantity, c.ID)
	if err != nil {
		return fmt.Errorf("save cart totals: %w", err)
	}
	return expectOneRow(res, ErrCartNotFound)
}

func (r *repository) MarkCompleted(ctx context.Context, cartID uuid.UUID) (bool, error) {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE carts
		SET status = 'COMPLETED', updated_at = NOW()
		WHERE id = $1 AND status = 'ACTIVE'
	`, cartID)
	if err != nil {
		return false, fmt.Errorf("complete cart: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete cart: %w", err)
	}
	return affected == 1, nil
}

func (r *repository) MarkActive(ctx context.Context, cartID uuid.UUID) (bool, error) {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE carts
		SET status = 'ACTIVE', updated_at = NOW()
		WHERE id = $1 AND status = 'COMPLETED'
	`, cartID)
	if db.IsUniqueViolation(err, constraintActiveCart) {
		return false, ErrActiveCartExists
	}
	if err != nil {
		return false, fmt.Errorf("reopen cart: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reopen cart: %w", err)
	}
	return affected == 1, nil
}

func expectOneRow(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
