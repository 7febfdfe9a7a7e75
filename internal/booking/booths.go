// Package booking holds the booth-reservation and event-registration
// engines. Both reuse the checkout engine's shape: exclusive transaction,
// verify under the lock, mutate, commit.
package booking

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/expo-checkout/internal/domain"
	"github.com/robertarktes/expo-checkout/internal/observability"
	"github.com/robertarktes/expo-checkout/internal/storage"
)

type BoothService struct {
	store  storage.Store
	logger observability.Logger
}

func NewBoothService(store storage.Store, logger observability.Logger) *BoothService {
	return &BoothService{store: store, logger: logger}
}

// Reserve takes one seat in a booth for the exhibitor. Availability is
// derived from the live reservation count under the lock, so capacity can
// never be oversubscribed by interleaved requests.
func (s *BoothService) Reserve(ctx context.Context, id domain.Identity, boothID uuid.UUID) error {
	if !id.CanReserveBooth() {
		return domain.ErrForbidden
	}

	err := s.store.Exclusive(ctx, func(tx storage.Tx) error {
		info, err := tx.Booth(ctx, boothID)
		if err != nil {
			return err
		}
		if info.SeatsLeft() <= 0 {
			return domain.ErrBoothFull
		}
		held, err := tx.HasBoothReservation(ctx, id.UserID, boothID)
		if err != nil {
			return err
		}
		if held {
			return domain.ErrAlreadyReserved
		}

		r := domain.BoothReservation{
			ID:         uuid.New(),
			BoothID:    boothID,
			UserID:     id.UserID,
			ReservedAt: time.Now(),
		}
		if err := tx.InsertBoothReservation(ctx, r); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"booth_id": boothID,
			"user_id":  id.UserID,
		})
		return tx.InsertOutbox(ctx, "booth", boothID, "booth.reserved", payload)
	})
	if err != nil {
		observability.BoothReservationsTotal.WithLabelValues(boothOutcome(err)).Inc()
		return err
	}
	observability.BoothReservationsTotal.WithLabelValues("reserved").Inc()
	return nil
}

// Cancel releases the exhibitor's seat. Availability recovers by itself:
// it is only ever the count of the remaining rows.
func (s *BoothService) Cancel(ctx context.Context, id domain.Identity, boothID uuid.UUID) error {
	if !id.CanReserveBooth() {
		return domain.ErrForbidden
	}

	return s.store.Exclusive(ctx, func(tx storage.Tx) error {
		if err := tx.DeleteBoothReservation(ctx, id.UserID, boothID); err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"booth_id": boothID,
			"user_id":  id.UserID,
		})
		return tx.InsertOutbox(ctx, "booth", boothID, "booth.cancelled", payload)
	})
}

func boothOutcome(err error) string {
	switch err {
	case domain.ErrBoothFull:
		return "full"
	case domain.ErrAlreadyReserved:
		return "already_reserved"
	case domain.ErrNotFound:
		return "not_found"
	default:
		return "error"
	}
}
