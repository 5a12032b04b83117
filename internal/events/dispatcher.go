package events

import (
	"context"
	"log"
	"time"

	"github.com/gordonmeng2021/Email-AI/internal/state"
)

// Dispatcher continuously drains the outbox into NATS.
type Dispatcher struct {
	Store     *state.Store
	Publisher *Publisher
}

// Run blocks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		messages, err := d.Store.DequeueOutbox(ctx, 100)
		if err != nil {
			log.Printf("dispatcher: dequeue outbox: %v", err)
			time.Sleep(time.Second)
			continue
		}

		if len(messages) == 0 {
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, msg := range messages {
			if err := d.Publisher.Publish(msg.Subject, msg.Payload, msg.MsgID); err != nil {
				log.Printf("dispatcher: publish %d: %v", msg.ID, err)
				_ = d.Store.MarkOutboxRetry(ctx, msg.ID, 10*time.Second)
				continue
			}
			if err := d.Store.MarkPublished(ctx, msg.ID); err != nil {
				log.Printf("dispatcher: mark published %d: %v", msg.ID, err)
			}
		}
	}
}
