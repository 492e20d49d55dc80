package product

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

// Catalog is the read side of the product catalog used when pricing cart items.
type Catalog interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(sqlDB *sql.DB) Catalog {
	return &repository{db: sqlDB}
}

// GetProduct always reads the authoritative row; there is no cache in front of it.
func (r *repository) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "GetProduct"),
		zap.String("product_id", id.String()),
	)

	const q = `
		SELECT id, name, price, stock_quantity, order_count, created_at, updated_at
		FROM products
		WHERE id = $1
	`

	var p Product
	err := db.Conn(ctx, r.db).QueryRowContext(ctx, q, id).Scan(
		&p.ID,
		&p.Name,
		&p.Price,
		&p.StockQuantity,
		&p.OrderCount,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		log.Debug("product not found")
		return nil, ErrProductNotFound
	}
	if err != nil {
		log.Error("query failed", zap.Error(err))
		return nil, fmt.Errorf("get product: %w", err)
	}

	return &p, nil
}
