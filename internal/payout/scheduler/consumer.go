package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/vendora/marketplace/internal/outbox"
)

// PaymentConfirmedEvent mirrors the outbox payload written on payment
// confirmation.
type PaymentConfirmedEvent struct {
	OrderID string `json:"order_id"`
}

type Consumer struct {
	scheduler *Scheduler
	reader    *kafka.Reader
}

func NewConsumer(scheduler *Scheduler, brokers ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    outbox.Topic,
		GroupID:  "payout-scheduler",
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{scheduler: scheduler, reader: reader}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		log.Printf("error closing kafka reader: %v", err)
	}
}

func (c *Consumer) processMessage(ctx context.Context) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Printf("error reading payment event: %v", err)
		return
	}

	var event PaymentConfirmedEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		log.Printf("error parsing payment event: %v", err)
		return
	}

	orderID, err := uuid.Parse(event.OrderID)
	if err != nil {
		log.Printf("invalid order_id %q in payment event: %v", event.OrderID, err)
		return
	}

	if err := c.scheduler.ScheduleForOrder(ctx, orderID); err != nil {
		// not committing past a failed schedule would stall the partition;
		// the outbox recovery pass re-enqueues orders left without payouts
		log.Printf("failed to schedule payouts for order %s: %v", orderID, err)
		return
	}
	log.Printf("payouts scheduled for order %s", orderID)
}
