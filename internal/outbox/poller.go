package outbox

import (
	"context"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

const Topic = "payment-events"

type Poller struct {
	eventTick    time.Duration
	recoveryTick time.Duration
	recoveryAge  time.Duration
	repo         Repository
	writer       *kafka.Writer
}

func NewPoller(repo Repository, brokers ...string) *Poller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &Poller{
		eventTick:    time.Second,
		recoveryTick: 30 * time.Second,
		recoveryAge:  5 * time.Minute,
		repo:         repo,
		writer:       w,
	}
}

func (p *Poller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	recoveryTicker := time.NewTicker(p.recoveryTick)
	defer eventTicker.Stop()
	defer recoveryTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-recoveryTicker.C:
			p.recoverUnscheduledOrders(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) Close() {
	if err := p.writer.Close(); err != nil {
		log.Printf("error closing kafka writer: %v", err)
	}
}

func (p *Poller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, 100)
	if err != nil {
		log.Printf("failed to fetch outbox events: %v", err)
		return
	}

	for _, event := range events {
		if errPublish := p.publish(ctx, event); errPublish != nil {
			log.Printf("failed to publish event id = %v with error %v", event.ID, errPublish)
			continue
		}

		if errMark := p.repo.MarkEventAsProcessed(ctx, event.ID); errMark != nil {
			log.Printf("failed to mark event as processed id = %v with error %v", event.ID, errMark)
			continue
		}
	}
}

// recoverUnscheduledOrders re-enqueues confirmation events for paid orders
// that never got payout rows; this is the safety net for a lost event.
func (p *Poller) recoverUnscheduledOrders(ctx context.Context) {
	orderIDs, err := p.repo.GetUnscheduledPaidOrders(ctx, time.Now().Add(-p.recoveryAge), 100)
	if err != nil {
		log.Printf("failed to find unscheduled paid orders: %v", err)
		return
	}
	for _, orderID := range orderIDs {
		log.Printf("recovering unscheduled paid order: %v", orderID)
		if err := p.repo.EnqueuePaymentConfirmed(ctx, orderID); err != nil {
			log.Printf("failed to re-enqueue order %v: %v", orderID, err)
		}
	}
}

func (p *Poller) publish(ctx context.Context, event *Event) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order id for per-order ordering
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
