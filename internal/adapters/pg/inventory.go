package pg

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/expo-checkout/internal/domain"
	"github.com/shopspring/decimal"
)

func scanTicketType(row pgx.Row) (domain.TicketType, error) {
	var t domain.TicketType
	var price string
	err := row.Scan(&t.ID, &t.Name, &price, &t.Available)
	if err == pgx.ErrNoRows {
		return domain.TicketType{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.TicketType{}, err
	}
	t.Price, err = decimal.NewFromString(price)
	return t, err
}

// TicketType re-reads the row under the transaction's write lock so the
// price and availability the checkout validates are the ones it commits
// against.
func (o *txOps) TicketType(ctx context.Context, id uuid.UUID) (domain.TicketType, error) {
	return scanTicketType(o.tx.QueryRow(ctx, `
		SELECT id, name, price::text, available
		FROM ticket_types WHERE id = $1
		FOR UPDATE
	`, id))
}

// DecrementAvailability is the guarded decrement. The WHERE guard is a
// second safety net under the transaction lock: a miss after in-transaction
// validation means another writer slipped through, which the checkout treats
// as an invariant violation.
func (o *txOps) DecrementAvailability(ctx context.Context, id uuid.UUID, qty int) error {
	result, err := o.tx.Exec(ctx, `
		UPDATE ticket_types
		SET available = available - $1
		WHERE id = $2 AND available >= $1
	`, qty, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrRaceCondition
	}
	return nil
}

// GetTicketType is the unlocked catalog read used by the cart.
func (s *Store) GetTicketType(ctx context.Context, id uuid.UUID) (domain.TicketType, error) {
	return scanTicketType(s.pool.QueryRow(ctx, `
		SELECT id, name, price::text, available
		FROM ticket_types WHERE id = $1
	`, id))
}

// ListAvailableTicketTypes returns in-stock ticket types, free tickets last,
// dearest first.
func (s *Store) ListAvailableTicketTypes(ctx context.Context) ([]domain.TicketType, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, price::text, available
		FROM ticket_types
		WHERE available > 0
		ORDER BY CASE WHEN price = 0 THEN 1 ELSE 0 END, price DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TicketType
	for rows.Next() {
		t, err := scanTicketType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SalesStat aggregates sold quantity and revenue per ticket type.
type SalesStat struct {
	TicketTypeID uuid.UUID
	Name         string
	Sold         int
	Revenue      decimal.Decimal
}

func (s *Store) SalesStats(ctx context.Context) ([]SalesStat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.name,
		       COALESCE(SUM(p.quantity), 0),
		       COALESCE(SUM(p.line_total), 0)::text
		FROM ticket_types t
		LEFT JOIN purchases p ON p.ticket_type_id = t.id
		GROUP BY t.id, t.name
		ORDER BY COALESCE(SUM(p.line_total), 0) DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SalesStat
	for rows.Next() {
		var st SalesStat
		var revenue string
		if err := rows.Scan(&st.TicketTypeID, &st.Name, &st.Sold, &revenue); err != nil {
			return nil, err
		}
		if st.Revenue, err = decimal.NewFromString(revenue); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
