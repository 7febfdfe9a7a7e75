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

type EventService struct {
	store  storage.Store
	logger observability.Logger
}

func NewEventService(store storage.Store, logger observability.Logger) *EventService {
	return &EventService{store: store, logger: logger}
}

// Register creates an active registration for the user. A second active
// registration for the same event is a conflict; the first stays untouched.
func (s *EventService) Register(ctx context.Context, id domain.Identity, eventID uuid.UUID, participation, note string) error {
	if !id.Authenticated() {
		return domain.ErrForbidden
	}

	return s.store.Exclusive(ctx, func(tx storage.Tx) error {
		event, err := tx.Event(ctx, eventID)
		if err != nil {
			return err
		}
		if !event.Bookable {
			return domain.ErrConflict
		}
		active, err := tx.HasActiveRegistration(ctx, eventID, id.UserID)
		if err != nil {
			return err
		}
		if active {
			return domain.ErrConflict
		}

		r := domain.EventRegistration{
			ID:            uuid.New(),
			EventID:       eventID,
			UserID:        id.UserID,
			Status:        domain.RegistrationActive,
			Participation: participation,
			Note:          note,
			RegisteredAt:  time.Now(),
		}
		if err := tx.InsertRegistration(ctx, r); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"event_id": eventID,
			"user_id":  id.UserID,
		})
		return tx.InsertOutbox(ctx, "event", eventID, "event.registered", payload)
	})
}

// Cancel soft-cancels the user's active registration, keeping the row for
// history.
func (s *EventService) Cancel(ctx context.Context, id domain.Identity, eventID uuid.UUID) error {
	if !id.Authenticated() {
		return domain.ErrForbidden
	}

	return s.store.Exclusive(ctx, func(tx storage.Tx) error {
		if err := tx.CancelRegistration(ctx, eventID, id.UserID); err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"event_id": eventID,
			"user_id":  id.UserID,
		})
		return tx.InsertOutbox(ctx, "event", eventID, "event.cancelled", payload)
	})
}

// HardDelete removes a registration row outright. Admin-only; the normal
// path is the soft cancel above.
func (s *EventService) HardDelete(ctx context.Context, id domain.Identity, eventID, userID uuid.UUID) error {
	if id.Role != domain.RoleAdmin {
		return domain.ErrForbidden
	}

	err := s.store.Exclusive(ctx, func(tx storage.Tx) error {
		return tx.DeleteRegistration(ctx, eventID, userID)
	})
	if err == nil {
		s.logger.WithField("event_id", eventID).WithField("user_id", userID).
			Info("registration hard-deleted")
	}
	return err
}
