// Package outbox implements the transactional outbox between payment
// confirmation and payout scheduling: the event row is written in the same
// database transaction as the payment status change, and a poller publishes
// it to Kafka afterwards. Consumers are idempotent, so at-least-once
// publishing is safe.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const EventPaymentConfirmed = "payment.confirmed"

type Event struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	Processed   bool
	CreatedAt   time.Time
}

// Repository defines the outbox operations the poller needs.
type Repository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*Event, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error

	// GetUnscheduledPaidOrders finds paid orders older than the cutoff that
	// still have no payout rows and no unprocessed outbox event; their
	// confirmation event got lost and must be re-enqueued.
	GetUnscheduledPaidOrders(ctx context.Context, olderThan time.Time, limit int) ([]uuid.UUID, error)
	EnqueuePaymentConfirmed(ctx context.Context, orderID uuid.UUID) error
}

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// InsertTx writes an event inside the caller's transaction.
func InsertTx(ctx context.Context, tx *sql.Tx, aggregateID, eventType string, payload []byte) error {
	query := `INSERT INTO outbox_events (aggregate_id, event_type, payload, processed, created_at)
	          VALUES ($1, $2, $3, FALSE, NOW())`
	if _, err := tx.ExecContext(ctx, query, aggregateID, eventType, payload); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*Event, error) {
	query := `SELECT id, aggregate_id, event_type, payload, processed, created_at
	          FROM outbox_events WHERE processed = FALSE ORDER BY id LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.Processed, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox iteration: %w", err)
	}
	return events, nil
}

func (r *PostgresRepository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox_events SET processed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox event processed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetUnscheduledPaidOrders(ctx context.Context, olderThan time.Time, limit int) ([]uuid.UUID, error) {
	query := `SELECT o.id FROM orders o
	          WHERE o.payment_status = 'PAID'
	            AND o.updated_at < $1
	            AND NOT EXISTS (SELECT 1 FROM vendor_payouts p WHERE p.order_id = o.id)
	            AND NOT EXISTS (SELECT 1 FROM outbox_events e
	                            WHERE e.aggregate_id = o.id::text AND e.processed = FALSE)
	          LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("query unscheduled paid orders: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unscheduled orders iteration: %w", err)
	}
	return ids, nil
}

func (r *PostgresRepository) EnqueuePaymentConfirmed(ctx context.Context, orderID uuid.UUID) error {
	payload := fmt.Sprintf(`{"order_id":%q}`, orderID.String())
	query := `INSERT INTO outbox_events (aggregate_id, event_type, payload, processed, created_at)
	          VALUES ($1, $2, $3, FALSE, NOW())`
	if _, err := r.db.ExecContext(ctx, query, orderID.String(), EventPaymentConfirmed, []byte(payload)); err != nil {
		return fmt.Errorf("enqueue payment confirmed: %w", err)
	}
	return nil
}

var _ Repository = (*PostgresRepository)(nil)
