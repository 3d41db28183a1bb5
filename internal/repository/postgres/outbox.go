package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/careflow-api/internal/model"
)

type outboxRepository struct {
	BaseRepository
}

const outboxColumns = `id, event_type, payload, headers, status, error_message, created_at,
	processed_at, updated_at, retry_count, retry_at, locked_until`

// ClaimPending leases claimable events with SKIP LOCKED so that several
// workers can poll the same table.
func (r *outboxRepository) ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]*model.OutboxEvent, error) {
	query := `
		UPDATE outbox_events
		SET status = 'PROCESSING', locked_until = NOW() + $2 * INTERVAL '1 millisecond', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status = 'PENDING'
			   OR (status = 'RETRY' AND (retry_at IS NULL OR retry_at <= NOW()))
			   OR (status = 'PROCESSING' AND locked_until <= NOW())
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + outboxColumns

	events := make([]*model.OutboxEvent, 0)
	if err := r.db.SelectContext(ctx, &events, query, limit, lease.Milliseconds()); err != nil {
		return nil, fmt.Errorf("failed to claim outbox events: %w", err)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })
	return events, nil
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET status = 'PROCESSED', processed_at = NOW(), locked_until = NULL,
			error_message = NULL, updated_at = NOW()
		WHERE id = $1`, id)
	return err
}

func (r *outboxRepository) MarkRetry(ctx context.Context, id uuid.UUID, retryCount int, retryAt time.Time, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET status = 'RETRY', retry_count = $1, retry_at = $2, error_message = $3,
			locked_until = NULL, updated_at = NOW()
		WHERE id = $4`, retryCount, retryAt, errMsg, id)
	return err
}

func (r *outboxRepository) MoveToDeadLetter(ctx context.Context, evt *model.OutboxEvent, errMsg string) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO outbox_events_deadletter (
				event_id, event_type, payload, headers, error_message,
				retry_count, last_retry_at, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			ON CONFLICT (event_id) DO NOTHING`,
			evt.ID, evt.EventType, evt.Payload, evt.Headers, errMsg, evt.RetryCount, evt.RetryAt)
		if err != nil {
			return fmt.Errorf("failed to insert dead letter: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE outbox_events
			SET status = 'FAILED', error_message = $1, retry_count = $2,
				locked_until = NULL, updated_at = NOW()
			WHERE id = $3`, errMsg, evt.RetryCount, evt.ID)
		return err
	})
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM outbox_events
		WHERE status = 'PROCESSED'
		AND processed_at < $1
	`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}

	return result.RowsAffected()
}

func (r *outboxRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM outbox_events WHERE status IN ('PENDING', 'RETRY', 'PROCESSING')`)
	return n, err
}
