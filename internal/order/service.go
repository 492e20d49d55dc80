package order

import (
	"context"
	"time"

	"fruitapp-be/internal/auth"
	"fruitapp-be/internal/db"
	"fruitapp-be/internal/logger"
	"fruitapp-be/internal/outbox"
	"fruitapp-be/internal/stock"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StateMachine applies order status changes through the transition table.
type StateMachine interface {
	Transition(ctx context.Context, orderID uuid.UUID, to OrderStatus, requestedBy auth.Identity) (*Order, error)
	Get(ctx context.Context, orderID uuid.UUID, requestedBy auth.Identity) (*Order, error)
	ListByUser(ctx context.Context, userID uint, limit int) ([]*Order, error)
}

// Recorder receives transition metrics.
type Recorder interface {
	RecordTransition(from, to string)
	RecordStockReleased(units int)
}

type stateMachine struct {
	repo    Repository
	ledger  stock.Ledger
	events  outbox.Writer
	tx      db.TxManager
	metrics Recorder
	now     func() time.Time
}

func NewStateMachine(
	repo Repository,
	ledger stock.Ledger,
	events outbox.Writer,
	tx db.TxManager,
	metrics Recorder,
) StateMachine {
	return &stateMachine{
		repo:    repo,
		ledger:  ledger,
		events:  events,
		tx:      tx,
		metrics: metrics,
		now:     time.Now,
	}
}

// Transition moves the order to status to. Entering CANCELLED, FAILED or
// RETURNED releases every item's stock and order count in the same
// transaction as the status write; if any release fails nothing is written.
func (s *stateMachine) Transition(
	ctx context.Context,
	orderID uuid.UUID,
	to OrderStatus,
	requestedBy auth.Identity,
) (*Order, error) {

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Transition"),
		zap.String("order_id", orderID.String()),
		zap.String("to", string(to)),
		zap.Uint("requested_by", requestedBy.UserID),
	)

	if !to.Valid() {
		return nil, ErrUnknownStatus
	}

	var (
		out      *Order
		from     OrderStatus
		released int
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !mayRequest(requestedBy, o, to) {
			return ErrUnauthorized
		}
		if !CanTransition(o.Status, to) {
			return &InvalidTransitionError{From: o.Status, To: to}
		}

		from = o.Status
		released = 0
		if to.ReleasesStock() {
			for _, it := range o.Items {
				if err := s.ledger.Release(ctx, it.ProductID, it.Quantity); err != nil {
					return err
				}
				if err := s.ledger.IncrementOrderCount(ctx, it.ProductID, -1); err != nil {
					return err
				}
				released += it.Quantity
			}
		}

		if err := s.repo.UpdateStatus(ctx, o.ID, from, to); err != nil {
			return err
		}
		o.Status = to
		o.UpdatedAt = s.now()

		msg, err := statusChangedEvent(o, from, requestedBy.UserID)
		if err != nil {
			return err
		}
		if err := s.events.Enqueue(ctx, msg); err != nil {
			return err
		}

		out = o
		return nil
	})
	if err != nil {
		log.Info("transition rejected", zap.Error(err))
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordTransition(string(from), string(to))
		s.metrics.RecordStockReleased(released)
	}
	log.Info("order status changed",
		zap.String("from", string(from)),
		zap.Int("released_units", released),
	)
	return out, nil
}

func (s *stateMachine) Get(ctx context.Context, orderID uuid.UUID, requestedBy auth.Identity) (*Order, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !requestedBy.IsPrivileged() && !requestedBy.Owns(o.UserID) {
		return nil, ErrUnauthorized
	}
	return o, nil
}

func (s *stateMachine) ListByUser(ctx context.Context, userID uint, limit int) ([]*Order, error) {
	return s.repo.ListByUser(ctx, userID, limit)
}

// mayRequest: privileged callers may drive any legal transition, owners may
// only cancel their own orders.
func mayRequest(id auth.Identity, o *Order, to OrderStatus) bool {
	if id.IsPrivileged() {
		return true
	}
	return id.Owns(o.UserID) && to == StatusCancelled
}
