package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fruitapp-be/internal/db"
	"fruitapp-be/internal/logger"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, orderID uuid.UUID) (*Order, error)
	GetForUpdate(ctx context.Context, orderID uuid.UUID) (*Order, error)
	// UpdateStatus writes to only if the order is still in from.
	UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to OrderStatus) error
	ListByUser(ctx context.Context, userID uint, limit int) ([]*Order, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(sqlDB *sql.DB) Repository {
	return &repository{db: sqlDB}
}

const orderColumns = `
	id, user_id, status, total_price,
	shipping_receiver_name, shipping_phone,
	shipping_address_line1, shipping_address_line2,
	shipping_city, shipping_province, shipping_postal_code, shipping_country,
	created_at, updated_at
`

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*Order, error) {
	var o Order
	a := &o.ShippingAddress
	err := row.Scan(
		&o.ID, &o.UserID, &o.Status, &o.TotalPrice,
		&a.ReceiverName, &a.Phone,
		&a.Address1, &a.Address2,
		&a.City, &a.Province, &a.Postal, &a.Country,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *repository) Create(ctx context.Context, o *Order) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "CreateOrder"),
		zap.String("order_id", o.ID.String()),
	)

	conn := db.Conn(ctx, r.db)
	a := o.ShippingAddress

	// 1. Insert order
	_, err := conn.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		o.ID, o.UserID, o.Status, o.TotalPrice,
		a.ReceiverName, a.Phone,
		a.Address1, a.Address2,
		a.City, a.Province, a.Postal, a.Country,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		log.Error("insert order failed", zap.Error(err))
		return fmt.Errorf("insert order: %w", err)
	}

	// 2. Insert order items
	for _, it := range o.Items {
		_, err = conn.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, price)
			VALUES ($1,$2,$3,$4,$5)
		`, it.ID, o.ID, it.ProductID, it.Quantity, it.Price)
		if err != nil {
			log.Error("insert order item failed",
				zap.String("product_id", it.ProductID.String()),
				zap.Error(err),
			)
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return nil
}

func (r *repository) GetByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	return r.get(ctx, orderID, false)
}

func (r *repository) GetForUpdate(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	return r.get(ctx, orderID, true)
}

func (r *repository) get(ctx context.Context, orderID uuid.UUID, lock bool) (*Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if lock {
		q += ` FOR UPDATE`
	}

	conn := db.Conn(ctx, r.db)
	o, err := scanOrder(conn.QueryRowContext(ctx, q, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		logger.FromCtx(ctx).Error("get order failed",
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("get order: %w", err)
	}

	byOrder, err := r.loadItems(ctx, conn, []string{o.ID.String()})
	if err != nil {
		return nil, err
	}
	o.Items = byOrder[o.ID]
	if o.Items == nil {
		o.Items = []OrderItem{}
	}
	return o, nil
}

func (r *repository) loadItems(ctx context.Context, conn db.Querier, orderIDs []string) (map[uuid.UUID][]OrderItem, error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, price
		FROM order_items
		WHERE order_id = ANY($1::uuid[])
		ORDER BY order_id, product_id
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]OrderItem, len(orderIDs))
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.Price); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	return out, nil
}

func (r *repository) UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to OrderStatus) error {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE orders
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, to, orderID, from)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if affected == 0 {
		return ErrStatusChanged
	}
	return nil
}

func (r *repository) ListByUser(ctx context.Context, userID uint, limit int) ([]*Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	conn := db.Conn(ctx, r.db)
	rows, err := conn.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*Order, 0)
	ids := make([]string, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
		ids = append(ids, o.ID.String())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	rows.Close()

	if len(orders) == 0 {
		return orders, nil
	}

	byOrder, err := r.loadItems(ctx, conn, ids)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		o.Items = byOrder[o.ID]
		if o.Items == nil {
			o.Items = []OrderItem{}
		}
	}
	return orders, nil
}
