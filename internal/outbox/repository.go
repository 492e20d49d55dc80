package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fruitapp-be/internal/apperr"
	"fruitapp-be/internal/db"

	"github.com/google/uuid"
)

var ErrMessageNotFound = apperr.New(apperr.KindNotFound, "outbox message not found")

// Writer appends messages. Enqueue joins the transaction carried by ctx so the
// event commits or rolls back with the state change it describes.
type Writer interface {
	Enqueue(ctx context.Context, msg Message) error
}

type Repository interface {
	Writer
	PullPending(ctx context.Context, limit int) ([]Message, error)
	Stats(ctx context.Context) (Stats, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(sqlDB *sql.DB) Repository {
	return &repository{db: sqlDB}
}

func (r *repository) Enqueue(ctx context.Context, msg Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := db.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO outbox_events (
			id, aggregate_type, aggregate_id, event_type, payload,
			status, attempt_count, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,'PENDING',0,$6,$6)
	`,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue outbox message: %w", err)
	}
	return nil
}

func (r *repository) PullPending(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = defaultBatchSize
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		FROM outbox_events
		WHERE status = 'PENDING'
		ORDER BY created_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("pull pending outbox messages: %w", err)
	}
	defer rows.Close()

	result := make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(
			&msg.ID,
			&msg.AggregateType,
			&msg.AggregateID,
			&msg.EventType,
			&msg.Payload,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		result = append(result, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}

	return result, nil
}

func (r *repository) Stats(ctx context.Context) (Stats, error) {
	var (
		stats  Stats
		oldest sql.NullTime
	)

	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(created_at)
		FROM outbox_events
		WHERE status = 'PENDING'
	`).Scan(&stats.PendingCount, &oldest); err != nil {
		return Stats{}, fmt.Errorf("outbox stats query failed: %w", err)
	}

	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}
	return stats, nil
}

func (r *repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	return r.markStatus(ctx, id, "SENT", nil)
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return r.markStatus(ctx, id, "FAILED", &reason)
}

func (r *repository) markStatus(ctx context.Context, id uuid.UUID, status string, lastError *string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET status = $2,
		    attempt_count = attempt_count + 1,
		    last_error = $3,
		    updated_at = $4
		WHERE id = $1
	`, id, status, lastError, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark outbox message as %s: %w", status, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for outbox %s: %w", status, err)
	}
	if affected == 0 {
		return ErrMessageNotFound
	}
	return nil
}
