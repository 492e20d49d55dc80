package address

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fruitapp-be/internal/db"
	"fruitapp-be/internal/logger"

	"go.uber.org/zap"
)

// Resolver looks up the shipping address used at checkout.
type Resolver interface {
	GetDefaultAddress(ctx context.Context, userID uint) (*Address, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(sqlDB *sql.DB) Resolver {
	return &repository{db: sqlDB}
}

func (r *repository) GetDefaultAddress(
	ctx context.Context,
	userID uint,
) (*Address, error) {

	log := logger.ForUser(ctx, userID).With(
		zap.String("repo", "Address"),
		zap.String("method", "GetDefaultAddress"),
	)

	const q = `
		SELECT
			id, user_id,
			receiver_name, phone,
			address_line1, address_line2,
			city, province, postal_code, country,
			is_default, is_active
		FROM addresses
		WHERE user_id = $1
		  AND is_default = true
		  AND is_active = true
		LIMIT 1
	`

	var a Address
	err := db.Conn(ctx, r.db).QueryRowContext(ctx, q, userID).Scan(
		&a.ID, &a.UserID,
		&a.ReceiverName, &a.Phone,
		&a.Address1, &a.Address2,
		&a.City, &a.Province, &a.Postal, &a.Country,
		&a.IsDefault, &a.IsActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		log.Info("no default address")
		return nil, ErrNoDefaultAddress
	}
	if err != nil {
		log.Error("query failed", zap.Error(err))
		return nil, fmt.Errorf("get default address: %w", err)
	}

	return &a, nil
}
