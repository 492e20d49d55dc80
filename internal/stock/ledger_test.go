package stock

import (
	"context"
	"errors"
	"testing"

	"fruitapp-be/internal/apperr"
	"fruitapp-be/internal/db"
	"fruitapp-be/internal/logger"
	"fruitapp-be/internal/product"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLedger_Reserve(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	l := NewLedger(sqlDB)
	ctx := context.Background()
	pid := uuid.New()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec("UPDATE products SET stock_quantity = stock_quantity - \\$1").
			WithArgs(2, pid).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, l.Reserve(ctx, pid, 2))
	})

	t.Run("Insufficient", func(t *testing.T) {
		core, observed := observer.New(zapcore.InfoLevel)
		restore := logger.Replace(zap.New(core))
		defer restore()

		mock.ExpectExec("UPDATE products SET stock_quantity = stock_quantity - \\$1").
			WithArgs(2, pid).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT stock_quantity FROM products WHERE id = \\$1").
			WithArgs(pid).
			WillReturnRows(sqlmock.NewRows([]string{"stock_quantity"}).AddRow(1))

		err := l.Reserve(ctx, pid, 2)
		assert.ErrorIs(t, err, ErrInsufficientStock)
		assert.ErrorIs(t, err, apperr.ErrConflict)

		var insufficient *InsufficientStockError
		require.True(t, errors.As(err, &insufficient))
		assert.Equal(t, pid, insufficient.ProductID)
		assert.Equal(t, 2, insufficient.Requested)
		assert.Equal(t, 1, insufficient.Available)
		assert.Equal(t, 1, insufficient.Shortfall())

		logs := observed.FilterMessage("insufficient stock").All()
		require.Len(t, logs, 1)
		assert.Equal(t, int64(1), logs[0].ContextMap()["shortfall"])
	})

	t.Run("ProductNotFound", func(t *testing.T) {
		mock.ExpectExec("UPDATE products").
			WithArgs(1, pid).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT stock_quantity FROM products").
			WithArgs(pid).
			WillReturnRows(sqlmock.NewRows([]string{"stock_quantity"}))

		err := l.Reserve(ctx, pid, 1)
		assert.ErrorIs(t, err, product.ErrProductNotFound)
		assert.NotErrorIs(t, err, ErrInsufficientStock)
	})

	t.Run("InvalidQuantity", func(t *testing.T) {
		err := l.Reserve(ctx, pid, 0)
		assert.ErrorIs(t, err, ErrInvalidQuantity)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("DBError", func(t *testing.T) {
		mock.ExpectExec("UPDATE products").
			WithArgs(1, pid).
			WillReturnError(errors.New("connection reset"))

		err := l.Reserve(ctx, pid, 1)
		assert.Error(t, err)
		assert.Empty(t, apperr.KindOf(err))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_Release(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	l := NewLedger(sqlDB)
	ctx := context.Background()
	pid := uuid.New()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec("UPDATE products SET stock_quantity = stock_quantity \\+ \\$1").
			WithArgs(3, pid).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, l.Release(ctx, pid, 3))
	})

	t.Run("ProductNotFound", func(t *testing.T) {
		mock.ExpectExec("UPDATE products").
			WithArgs(3, pid).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, l.Release(ctx, pid, 3), product.ErrProductNotFound)
	})

	t.Run("InvalidQuantity", func(t *testing.T) {
		assert.ErrorIs(t, l.Release(ctx, pid, -1), ErrInvalidQuantity)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_IncrementOrderCount(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	l := NewLedger(sqlDB)
	ctx := context.Background()
	pid := uuid.New()

	t.Run("Increment", func(t *testing.T) {
		mock.ExpectExec("UPDATE products SET order_count = order_count \\+ \\$1").
			WithArgs(1, pid).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, l.IncrementOrderCount(ctx, pid, 1))
	})

	t.Run("ZeroDeltaIsNoop", func(t *testing.T) {
		assert.NoError(t, l.IncrementOrderCount(ctx, pid, 0))
	})

	t.Run("WouldGoNegative", func(t *testing.T) {
		mock.ExpectExec("UPDATE products SET order_count").
			WithArgs(-1, pid).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT stock_quantity FROM products").
			WithArgs(pid).
			WillReturnRows(sqlmock.NewRows([]string{"stock_quantity"}).AddRow(5))

		assert.ErrorIs(t, l.IncrementOrderCount(ctx, pid, -1), ErrOrderCountNegative)
	})

	t.Run("ProductNotFound", func(t *testing.T) {
		mock.ExpectExec("UPDATE products SET order_count").
			WithArgs(-1, pid).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT stock_quantity FROM products").
			WithArgs(pid).
			WillReturnRows(sqlmock.NewRows([]string{"stock_quantity"}))

		assert.ErrorIs(t, l.IncrementOrderCount(ctx, pid, -1), product.ErrProductNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_JoinsContextTransaction(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	pid := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE products SET stock_quantity = stock_quantity - \\$1").
		WithArgs(1, pid).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE products SET order_count").
		WithArgs(1, pid).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	l := NewLedger(sqlDB)
	err = db.NewTxManager(sqlDB).WithinTx(context.Background(), func(ctx context.Context) error {
		if err := l.Reserve(ctx, pid, 1); err != nil {
			return err
		}
		return l.IncrementOrderCount(ctx, pid, 1)
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
