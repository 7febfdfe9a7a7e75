package pg

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/expo-checkout/internal/domain"
)

// Booth locks the booth row and derives occupancy from the live reservation
// count. Capacity is fixed; seats left are never stored, so there is no
// second counter to drift.
func (o *txOps) Booth(ctx context.Context, id uuid.UUID) (domain.BoothInfo, error) {
	var info domain.BoothInfo
	err := o.tx.QueryRow(ctx, `
		SELECT id, name, pavilion, theme, capacity
		FROM booths WHERE id = $1
		FOR UPDATE
	`, id).Scan(&info.ID, &info.Name, &info.Pavilion, &info.Theme, &info.Capacity)
	if err == pgx.ErrNoRows {
		return domain.BoothInfo{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.BoothInfo{}, err
	}

	err = o.tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM booth_reservations WHERE booth_id = $1
	`, id).Scan(&info.Occupied)
	return info, err
}

func (o *txOps) HasBoothReservation(ctx context.Context, userID, boothID uuid.UUID) (bool, error) {
	var exists bool
	err := o.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM booth_reservations WHERE user_id = $1 AND booth_id = $2
		)
	`, userID, boothID).Scan(&exists)
	return exists, err
}

func (o *txOps) InsertBoothReservation(ctx context.Context, r domain.BoothReservation) error {
	result, err := o.tx.Exec(ctx, `
		INSERT INTO booth_reservations (id, booth_id, user_id, reserved_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (booth_id, user_id) DO NOTHING
	`, r.ID, r.BoothID, r.UserID, r.ReservedAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrAlreadyReserved
	}
	return nil
}

func (o *txOps) DeleteBoothReservation(ctx context.Context, userID, boothID uuid.UUID) error {
	result, err := o.tx.Exec(ctx, `
		DELETE FROM booth_reservations WHERE user_id = $1 AND booth_id = $2
	`, userID, boothID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListBooths returns every booth with derived occupancy and the ids of the
// exhibitors holding a reservation, ordered by pavilion then name.
func (s *Store) ListBooths(ctx context.Context, onlyAvailable bool) ([]domain.BoothInfo, error) {
	sql := `
		SELECT b.id, b.name, b.pavilion, b.theme, b.capacity,
		       COUNT(r.id),
		       COALESCE(ARRAY_AGG(r.user_id::text) FILTER (WHERE r.id IS NOT NULL), '{}')
		FROM booths b
		LEFT JOIN booth_reservations r ON r.booth_id = b.id
		GROUP BY b.id`
	if onlyAvailable {
		sql += `
		HAVING b.capacity - COUNT(r.id) > 0`
	}
	sql += `
		ORDER BY b.pavilion ASC, b.name ASC`

	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BoothInfo
	for rows.Next() {
		var info domain.BoothInfo
		if err := rows.Scan(&info.ID, &info.Name, &info.Pavilion, &info.Theme,
			&info.Capacity, &info.Occupied, &info.Exhibitors); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}
