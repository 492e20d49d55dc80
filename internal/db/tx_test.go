package db

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxManager_WithinTx(t *testing.T) {
	t.Run("Commit", func(t *testing.T) {
		sqlDB, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer sqlDB.Close()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE products").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err = NewTxManager(sqlDB).WithinTx(context.Background(), func(ctx context.Context) error {
			assert.True(t, InTx(ctx))
			_, err := Conn(ctx, sqlDB).ExecContext(ctx, "UPDATE products SET stock_quantity = 1")
			return err
		})

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackOnError", func(t *testing.T) {
		sqlDB, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer sqlDB.Close()

		boom := errors.New("boom")
		mock.ExpectBegin()
		mock.ExpectRollback()

		err = NewTxManager(sqlDB).WithinTx(context.Background(), func(ctx context.Context) error {
			return boom
		})

		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NestedCallJoinsOuterTx", func(t *testing.T) {
		sqlDB, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer sqlDB.Close()

		// Only one BEGIN/COMMIT pair is expected.
		mock.ExpectBegin()
		mock.ExpectCommit()

		txm := NewTxManager(sqlDB)
		err = txm.WithinTx(context.Background(), func(ctx context.Context) error {
			return txm.WithinTx(ctx, func(ctx context.Context) error {
				return nil
			})
		})

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("BeginFails", func(t *testing.T) {
		sqlDB, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer sqlDB.Close()

		mock.ExpectBegin().WillReturnError(errors.New("conn refused"))

		called := false
		err = NewTxManager(sqlDB).WithinTx(context.Background(), func(ctx context.Context) error {
			called = true
			return nil
		})

		assert.Error(t, err)
		assert.False(t, called)
	})

	t.Run("CommitFails", func(t *testing.T) {
		sqlDB, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer sqlDB.Close()

		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

		err = NewTxManager(sqlDB).WithinTx(context.Background(), func(ctx context.Context) error {
			return nil
		})

		assert.ErrorContains(t, err, "commit tx")
	})
}

func TestConn_FallsBackToPool(t *testing.T) {
	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	assert.False(t, InTx(context.Background()))
	assert.Equal(t, Querier(sqlDB), Conn(context.Background(), sqlDB))
}

func TestIsUniqueViolation(t *testing.T) {
	err := &pq.Error{Code: "23505", Constraint: "ux_carts_user_active"}

	assert.True(t, IsUniqueViolation(err, ""))
	assert.True(t, IsUniqueViolation(err, "ux_carts_user_active"))
	assert.False(t, IsUniqueViolation(err, "cart_items_cart_id_product_id_key"))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}, ""))
	assert.False(t, IsUniqueViolation(errors.New("plain"), ""))
}
