// Package storage defines the transactional port the checkout, booth and
// event-registration engines share. All three follow the same shape: open an
// exclusive transaction, re-verify state under it, mutate, commit. Exclusive
// is that one primitive; the engines supply the verification and mutation as
// a closure over Tx.
package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/robertarktes/expo-checkout/internal/domain"
)

// Store opens exclusive units of work against the durable store.
type Store interface {
	// Exclusive runs fn inside a write-exclusive transaction. Any error from
	// fn rolls the transaction back and is returned unchanged; rollback is
	// idempotent. Serialization conflicts surface as
	// domain.ErrSerializationFailure.
	Exclusive(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of row operations available inside an exclusive transaction.
type Tx interface {
	// TicketType re-reads the live price and availability of a ticket type.
	TicketType(ctx context.Context, id uuid.UUID) (domain.TicketType, error)
	// DecrementAvailability performs the guarded decrement
	// (available = available - qty WHERE available >= qty). A guard miss
	// after in-transaction validation means another writer got through the
	// exclusive scope, so it surfaces as domain.ErrRaceCondition.
	DecrementAvailability(ctx context.Context, id uuid.UUID, qty int) error
	// LifetimePurchased sums the user's durable purchase quantities for one
	// ticket type.
	LifetimePurchased(ctx context.Context, userID, ticketTypeID uuid.UUID) (int, error)
	InsertPurchase(ctx context.Context, p domain.Purchase) error

	Booth(ctx context.Context, id uuid.UUID) (domain.BoothInfo, error)
	HasBoothReservation(ctx context.Context, userID, boothID uuid.UUID) (bool, error)
	InsertBoothReservation(ctx context.Context, r domain.BoothReservation) error
	// DeleteBoothReservation removes the user's reservation;
	// domain.ErrNotFound if none exists.
	DeleteBoothReservation(ctx context.Context, userID, boothID uuid.UUID) error

	Event(ctx context.Context, id uuid.UUID) (domain.Event, error)
	HasActiveRegistration(ctx context.Context, eventID, userID uuid.UUID) (bool, error)
	InsertRegistration(ctx context.Context, r domain.EventRegistration) error
	// CancelRegistration soft-cancels the active registration;
	// domain.ErrNotFound if none is active.
	CancelRegistration(ctx context.Context, eventID, userID uuid.UUID) error
	// DeleteRegistration is the administrative hard delete.
	DeleteRegistration(ctx context.Context, eventID, userID uuid.UUID) error

	// InsertOutbox stages a broker event in the same transaction as the
	// mutation it announces.
	InsertOutbox(ctx context.Context, aggregateType string, aggregateID uuid.UUID, eventType string, payload []byte) error
}
