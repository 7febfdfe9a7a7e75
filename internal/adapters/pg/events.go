package pg

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/expo-checkout/internal/domain"
)

func (o *txOps) Event(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	var e domain.Event
	err := o.tx.QueryRow(ctx, `
		SELECT id, title, date, bookable
		FROM events WHERE id = $1
		FOR UPDATE
	`, id).Scan(&e.ID, &e.Title, &e.Date, &e.Bookable)
	if err == pgx.ErrNoRows {
		return domain.Event{}, domain.ErrNotFound
	}
	return e, err
}

func (o *txOps) HasActiveRegistration(ctx context.Context, eventID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := o.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM event_registrations
			WHERE event_id = $1 AND user_id = $2 AND status = 'active'
		)
	`, eventID, userID).Scan(&exists)
	return exists, err
}

func (o *txOps) InsertRegistration(ctx context.Context, r domain.EventRegistration) error {
	result, err := o.tx.Exec(ctx, `
		INSERT INTO event_registrations (id, event_id, user_id, status, participation, note, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id, user_id) WHERE status = 'active' DO NOTHING
	`, r.ID, r.EventID, r.UserID, r.Status, r.Participation, r.Note, r.RegisteredAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

// CancelRegistration flips the active row to cancelled. The row stays: the
// history of who dropped out is part of the record.
func (o *txOps) CancelRegistration(ctx context.Context, eventID, userID uuid.UUID) error {
	result, err := o.tx.Exec(ctx, `
		UPDATE event_registrations
		SET status = 'cancelled'
		WHERE event_id = $1 AND user_id = $2 AND status = 'active'
	`, eventID, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteRegistration is the admin-only hard delete, regardless of status.
func (o *txOps) DeleteRegistration(ctx context.Context, eventID, userID uuid.UUID) error {
	result, err := o.tx.Exec(ctx, `
		DELETE FROM event_registrations WHERE event_id = $1 AND user_id = $2
	`, eventID, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListRegistrationsByUser returns the user's registrations joined with event
// titles, newest first. Cancelled rows are included only on request.
func (s *Store) ListRegistrationsByUser(ctx context.Context, userID uuid.UUID, includeCancelled bool) ([]domain.EventRegistration, error) {
	sql := `
		SELECT id, event_id, user_id, status, participation, note, registered_at
		FROM event_registrations
		WHERE user_id = $1`
	if !includeCancelled {
		sql += ` AND status = 'active'`
	}
	sql += ` ORDER BY registered_at DESC`

	rows, err := s.pool.Query(ctx, sql, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRegistrations(rows)
}

// ListParticipants returns the active registrations of one event in
// registration order.
func (s *Store) ListParticipants(ctx context.Context, eventID uuid.UUID) ([]domain.EventRegistration, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, event_id, user_id, status, participation, note, registered_at
		FROM event_registrations
		WHERE event_id = $1 AND status = 'active'
		ORDER BY registered_at ASC
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRegistrations(rows)
}

func (s *Store) CountActiveRegistrations(ctx context.Context, eventID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM event_registrations
		WHERE event_id = $1 AND status = 'active'
	`, eventID).Scan(&n)
	return n, err
}

func scanRegistrations(rows pgx.Rows) ([]domain.EventRegistration, error) {
	var out []domain.EventRegistration
	for rows.Next() {
		var r domain.EventRegistration
		if err := rows.Scan(&r.ID, &r.EventID, &r.UserID, &r.Status,
			&r.Participation, &r.Note, &r.RegisteredAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
