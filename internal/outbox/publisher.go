package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/expo-checkout/internal/adapters/pg"
	"github.com/robertarktes/expo-checkout/internal/adapters/rabbit"
	"github.com/robertarktes/expo-checkout/internal/observability"
)

// Publisher drains the transactional outbox into the broker. Events are
// staged by the same database transaction that performs the mutation, so a
// published message always describes a committed change. Delivery is
// at-least-once; consumers dedupe on MessageId.
type Publisher struct {
	store     *pg.Store
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
	interval  time.Duration
}

func NewPublisher(store *pg.Store, rabbitPub *rabbit.Publisher, logger observability.Logger) *Publisher {
	return &Publisher{
		store:     store,
		rabbitPub: rabbitPub,
		logger:    logger,
		interval:  5 * time.Second,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx)

			if age, err := p.store.OldestUnpublishedAge(ctx, time.Now()); err == nil {
				observability.OutboxLag.Set(age.Seconds())
			}
		}
	}
}

func (p *Publisher) drain(ctx context.Context) {
	records, err := p.store.GetUnpublishedOutbox(ctx, 10)
	if err != nil {
		p.logger.WithError(err).Error("failed to read outbox")
		return
	}

	for _, rec := range records {
		msg := amqp.Publishing{
			MessageId:   rec.DedupeKey,
			ContentType: "application/json",
			Timestamp:   rec.CreatedAt,
			Body:        rec.Payload,
		}
		if err := p.rabbitPub.Publish(ctx, rec.EventType, msg); err != nil {
			p.logger.WithError(err).WithField("event_type", rec.EventType).
				Error("failed to publish outbox event")
			continue
		}
		if err := p.store.MarkPublished(ctx, rec.ID, time.Now()); err != nil {
			p.logger.WithError(err).WithField("outbox_id", rec.ID.String()).
				Error("failed to mark outbox event published")
		}
	}
}
