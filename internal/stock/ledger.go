package stock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fruitapp-be/internal/db"
	"fruitapp-be/internal/logger"
	"fruitapp-be/internal/product"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ledger is the only writer of products.stock_quantity and products.order_count.
// Every call joins the transaction carried by ctx, if any.
type Ledger interface {
	Reserve(ctx context.Context, productID uuid.UUID, qty int) error
	Release(ctx context.Context, productID uuid.UUID, qty int) error
	IncrementOrderCount(ctx context.Context, productID uuid.UUID, delta int) error
}

type ledger struct {
	db *sql.DB
}

func NewLedger(sqlDB *sql.DB) Ledger {
	return &ledger{db: sqlDB}
}

func (l *ledger) Reserve(ctx context.Context, productID uuid.UUID, qty int) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "ledger"),
		zap.String("method", "Reserve"),
		zap.String("product_id", productID.String()),
		zap.Int("qty", qty),
	)

	if qty < 1 {
		return ErrInvalidQuantity
	}

	const q = `
		UPDATE products
		SET stock_quantity = stock_quantity - $1,
		    updated_at = NOW()
		WHERE id = $2
		  AND stock_quantity >= $1
	`

	conn := db.Conn(ctx, l.db)
	res, err := conn.ExecContext(ctx, q, qty, productID)
	if err != nil {
		log.Error("reserve failed", zap.Error(err))
		return fmt.Errorf("reserve stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	if affected == 1 {
		return nil
	}

	available, err := l.available(ctx, conn, productID)
	if err != nil {
		return err
	}

	insufficient := &InsufficientStockError{
		ProductID: productID,
		Requested: qty,
		Available: available,
	}
	log.Info("insufficient stock",
		zap.Int("available", available),
		zap.Int("shortfall", insufficient.Shortfall()),
	)
	return insufficient
}

func (l *ledger) Release(ctx context.Context, productID uuid.UUID, qty int) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "ledger"),
		zap.String("method", "Release"),
		zap.String("product_id", productID.String()),
		zap.Int("qty", qty),
	)

	if qty < 1 {
		return ErrInvalidQuantity
	}

	const q = `
		UPDATE products
		SET stock_quantity = stock_quantity + $1,
		    updated_at = NOW()
		WHERE id = $2
	`

	res, err := db.Conn(ctx, l.db).ExecContext(ctx, q, qty, productID)
	if err != nil {
		log.Error("release failed", zap.Error(err))
		return fmt.Errorf("release stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}
	if affected == 0 {
		return product.ErrProductNotFound
	}

	return nil
}

func (l *ledger) IncrementOrderCount(ctx context.Context, productID uuid.UUID, delta int) error {
	if delta == 0 {
		return nil
	}

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "ledger"),
		zap.String("method", "IncrementOrderCount"),
		zap.String("product_id", productID.String()),
		zap.Int("delta", delta),
	)

	const q = `
		UPDATE products
		SET order_count = order_count + $1,
		    updated_at = NOW()
		WHERE id = $2
		  AND order_count + $1 >= 0
	`

	conn := db.Conn(ctx, l.db)
	res, err := conn.ExecContext(ctx, q, delta, productID)
	if err != nil {
		log.Error("order count update failed", zap.Error(err))
		return fmt.Errorf("update order count: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order count: %w", err)
	}
	if affected == 1 {
		return nil
	}

	if _, err := l.available(ctx, conn, productID); err != nil {
		return err
	}

	log.Warn("order count would go negative")
	return ErrOrderCountNegative
}

// available reads the current stock of a product; used only to explain a failed conditional write.
func (l *ledger) available(ctx context.Context, conn db.Querier, productID uuid.UUID) (int, error) {
	var stock int
	err := conn.QueryRowContext(ctx,
		`SELECT stock_quantity FROM products WHERE id = $1`,
		productID,
	).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, product.ErrProductNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read stock: %w", err)
	}
	return stock, nil
}
