package pg

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/expo-checkout/internal/domain"
	"github.com/shopspring/decimal"
)

// LifetimePurchased sums durable purchase quantities under the transaction,
// so the per-type cap is re-checked against committed history, not cached
// reads.
func (o *txOps) LifetimePurchased(ctx context.Context, userID, ticketTypeID uuid.UUID) (int, error) {
	return lifetimePurchased(ctx, o.tx, userID, ticketTypeID)
}

// SumPurchased is the unlocked variant used by the cart's pre-checkout cap
// check.
func (s *Store) SumPurchased(ctx context.Context, userID, ticketTypeID uuid.UUID) (int, error) {
	return lifetimePurchased(ctx, s.pool, userID, ticketTypeID)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func lifetimePurchased(ctx context.Context, q queryRower, userID, ticketTypeID uuid.UUID) (int, error) {
	var total int
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM purchases
		WHERE user_id = $1 AND ticket_type_id = $2
	`, userID, ticketTypeID).Scan(&total)
	return total, err
}

func (o *txOps) InsertPurchase(ctx context.Context, p domain.Purchase) error {
	_, err := o.tx.Exec(ctx, `
		INSERT INTO purchases (
			id, user_id, ticket_type_id, quantity, unit_price, line_total,
			payment_method, transaction_id, billing_name, billing_email, purchased_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, p.ID, p.UserID, p.TicketTypeID, p.Quantity,
		p.UnitPrice.String(), p.LineTotal.String(),
		p.PaymentMethod, p.TransactionID, p.BillingName, p.BillingEmail, p.PurchasedAt)
	return err
}

// ListPurchasesByUser returns the user's purchase history, newest first.
func (s *Store) ListPurchasesByUser(ctx context.Context, userID uuid.UUID) ([]domain.Purchase, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, ticket_type_id, quantity, unit_price::text, line_total::text,
		       payment_method, transaction_id, billing_name, billing_email, purchased_at
		FROM purchases
		WHERE user_id = $1
		ORDER BY purchased_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Purchase
	for rows.Next() {
		var p domain.Purchase
		var unit, line string
		if err := rows.Scan(&p.ID, &p.UserID, &p.TicketTypeID, &p.Quantity, &unit, &line,
			&p.PaymentMethod, &p.TransactionID, &p.BillingName, &p.BillingEmail, &p.PurchasedAt); err != nil {
			return nil, err
		}
		if p.UnitPrice, err = decimal.NewFromString(unit); err != nil {
			return nil, err
		}
		if p.LineTotal, err = decimal.NewFromString(line); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
