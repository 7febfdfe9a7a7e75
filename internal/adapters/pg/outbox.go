package pg

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type OutboxRecord struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string // NEW, PUBLISHED
	DedupeKey     string
}

// InsertOutbox stages a broker event inside the caller's transaction so it
// commits or rolls back with the mutation it announces.
func (o *txOps) InsertOutbox(ctx context.Context, aggregateType string, aggregateID uuid.UUID, eventType string, payload []byte) error {
	_, err := o.tx.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, status, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, 'NEW', $6)
	`, uuid.New(), aggregateType, aggregateID, eventType, payload, uuid.New().String())
	return err
}

func (s *Store) GetUnpublishedOutbox(ctx context.Context, limit int) ([]OutboxRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload_json, created_at, published_at, status, dedupe_key
		FROM outbox WHERE status = 'NEW' ORDER BY created_at ASC LIMIT $1 FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []OutboxRecord
	for rows.Next() {
		var rec OutboxRecord
		err := rows.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID, &rec.EventType,
			&rec.Payload, &rec.CreatedAt, &rec.PublishedAt, &rec.Status, &rec.DedupeKey)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox SET status = 'PUBLISHED', published_at = $2 WHERE id = $1
	`, id, publishedAt)
	return err
}

// OldestUnpublishedAge feeds the outbox lag gauge; zero when the outbox is
// drained.
func (s *Store) OldestUnpublishedAge(ctx context.Context, now time.Time) (time.Duration, error) {
	var createdAt *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT MIN(created_at) FROM outbox WHERE status = 'NEW'
	`).Scan(&createdAt)
	if err != nil || createdAt == nil {
		return 0, err
	}
	return now.Sub(*createdAt), nil
}
