// Package webhooklog is the durable idempotency ledger shared by the payment
// and payout webhook consumers. One entry per external event; claiming an
// entry is atomic, so two concurrent deliveries of the same event cannot both
// process it.
package webhooklog

import (
	"context"
	"errors"
	"time"
)

var ErrEmptyKey = errors.New("idempotency key must be non-empty")

type Entry struct {
	Key         string     `bson:"_id"`
	EventType   string     `bson:"event_type"`
	Payload     []byte     `bson:"payload"`
	Processed   bool       `bson:"processed"`
	ClaimedAt   time.Time  `bson:"claimed_at"`
	ProcessedAt *time.Time `bson:"processed_at,omitempty"`
}

// Key derives the stable idempotency key from the external event identifier
// and the event type.
func Key(externalID, eventType string) string {
	return externalID + "|" + eventType
}

// Log defines the interface for idempotency bookkeeping.
// Consumers define this interface, not the Mongo implementation.
type Log interface {
	// Claim records the event and reports whether this caller won the right to
	// process it. Exactly one concurrent caller wins a given key; an already
	// processed key is never claimable again. A claim that was never marked
	// processed (a crashed consumer) becomes claimable again after the reclaim
	// window, so a provider-side redelivery can finish the work.
	Claim(ctx context.Context, key, eventType string, payload []byte) (bool, error)

	// MarkProcessed finalizes a claimed entry.
	MarkProcessed(ctx context.Context, key string) error
}
