package address

import (
	"context"
	"errors"
	"testing"

	"fruitapp-be/internal/apperr"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_GetDefaultAddress(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	userID := uint(1)

	columns := []string{
		"id", "user_id", "receiver_name", "phone", "address_line1", "address_line2",
		"city", "province", "postal_code", "country", "is_default", "is_active",
	}

	t.Run("Success", func(t *testing.T) {
		id := uuid.New()
		rows := sqlmock.NewRows(columns).AddRow(
			id, userID, "John", "123", "Street 1", nil,
			"City", "Prov", "12345", "ID", true, true,
		)

		mock.ExpectQuery("SELECT .* FROM addresses WHERE user_id = \\$1 AND is_default = true").
			WithArgs(userID).
			WillReturnRows(rows)

		a, err := repo.GetDefaultAddress(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, id, a.ID)
		assert.Equal(t, "John", a.ReceiverName)
		assert.Nil(t, a.Address2)
		assert.True(t, a.IsDefault)
	})

	t.Run("NoDefault", func(t *testing.T) {
		mock.ExpectQuery("SELECT .* FROM addresses").
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows(columns))

		a, err := repo.GetDefaultAddress(context.Background(), userID)
		assert.Nil(t, a)
		assert.ErrorIs(t, err, ErrNoDefaultAddress)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("QueryError", func(t *testing.T) {
		mock.ExpectQuery("SELECT .* FROM addresses").
			WithArgs(userID).
			WillReturnError(errors.New("db error"))

		a, err := repo.GetDefaultAddress(context.Background(), userID)
		assert.Nil(t, a)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoDefaultAddress)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddress_Snapshot(t *testing.T) {
	line2 := "Block B"
	a := &Address{
		ReceiverName: "John",
		Phone:        "0800",
		Address1:     "Street 1",
		Address2:     &line2,
		City:         "Jakarta",
		Province:     "DKI",
		Postal:       "10110",
		Country:      "ID",
	}

	s := a.Snapshot()
	line2 = "changed"

	assert.Equal(t, "John", s.ReceiverName)
	assert.Equal(t, "Jakarta", s.City)
	require.NotNil(t, s.Address2)
	assert.Equal(t, "Block B", *s.Address2)
}
