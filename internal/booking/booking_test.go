package booking_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/robertarktes/expo-checkout/internal/booking"
	"github.com/robertarktes/expo-checkout/internal/domain"
	"github.com/robertarktes/expo-checkout/internal/observability"
	"github.com/robertarktes/expo-checkout/internal/storage"
)

type reservationKey struct {
	boothID uuid.UUID
	userID  uuid.UUID
}

type registrationKey struct {
	eventID uuid.UUID
	userID  uuid.UUID
}

// memStore keeps booths, events and their bookings with the same
// run-against-snapshot, commit-on-nil semantics the real store has.
type memStore struct {
	booths        map[uuid.UUID]domain.Booth
	reservations  map[reservationKey]bool
	events        map[uuid.UUID]domain.Event
	registrations map[registrationKey]domain.RegistrationStatus
	outbox        []string
}

func newMemStore() *memStore {
	return &memStore{
		booths:        make(map[uuid.UUID]domain.Booth),
		reservations:  make(map[reservationKey]bool),
		events:        make(map[uuid.UUID]domain.Event),
		registrations: make(map[registrationKey]domain.RegistrationStatus),
	}
}

func (s *memStore) Exclusive(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx := &memTx{
		store:         s,
		reservations:  make(map[reservationKey]bool, len(s.reservations)),
		registrations: make(map[registrationKey]domain.RegistrationStatus, len(s.registrations)),
		outbox:        append([]string(nil), s.outbox...),
	}
	for k, v := range s.reservations {
		tx.reservations[k] = v
	}
	for k, v := range s.registrations {
		tx.registrations[k] = v
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.reservations = tx.reservations
	s.registrations = tx.registrations
	s.outbox = tx.outbox
	return nil
}

type memTx struct {
	store         *memStore
	reservations  map[reservationKey]bool
	registrations map[registrationKey]domain.RegistrationStatus
	outbox        []string
}

func (t *memTx) Booth(ctx context.Context, id uuid.UUID) (domain.BoothInfo, error) {
	b, ok := t.store.booths[id]
	if !ok {
		return domain.BoothInfo{}, domain.ErrNotFound
	}
	occupied := 0
	for k := range t.reservations {
		if k.boothID == id {
			occupied++
		}
	}
	return domain.BoothInfo{Booth: b, Occupied: occupied}, nil
}

func (t *memTx) HasBoothReservation(ctx context.Context, userID, boothID uuid.UUID) (bool, error) {
	return t.reservations[reservationKey{boothID: boothID, userID: userID}], nil
}

func (t *memTx) InsertBoothReservation(ctx context.Context, r domain.BoothReservation) error {
	key := reservationKey{boothID: r.BoothID, userID: r.UserID}
	if t.reservations[key] {
		return domain.ErrAlreadyReserved
	}
	t.reservations[key] = true
	return nil
}

func (t *memTx) DeleteBoothReservation(ctx context.Context, userID, boothID uuid.UUID) error {
	key := reservationKey{boothID: boothID, userID: userID}
	if !t.reservations[key] {
		return domain.ErrNotFound
	}
	delete(t.reservations, key)
	return nil
}

func (t *memTx) Event(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	e, ok := t.store.events[id]
	if !ok {
		return domain.Event{}, domain.ErrNotFound
	}
	return e, nil
}

func (t *memTx) HasActiveRegistration(ctx context.Context, eventID, userID uuid.UUID) (bool, error) {
	return t.registrations[registrationKey{eventID: eventID, userID: userID}] == domain.RegistrationActive, nil
}

func (t *memTx) InsertRegistration(ctx context.Context, r domain.EventRegistration) error {
	key := registrationKey{eventID: r.EventID, userID: r.UserID}
	if t.registrations[key] == domain.RegistrationActive {
		return domain.ErrConflict
	}
	t.registrations[key] = r.Status
	return nil
}

func (t *memTx) CancelRegistration(ctx context.Context, eventID, userID uuid.UUID) error {
	key := registrationKey{eventID: eventID, userID: userID}
	if t.registrations[key] != domain.RegistrationActive {
		return domain.ErrNotFound
	}
	t.registrations[key] = domain.RegistrationCancelled
	return nil
}

func (t *memTx) DeleteRegistration(ctx context.Context, eventID, userID uuid.UUID) error {
	key := registrationKey{eventID: eventID, userID: userID}
	if _, ok := t.registrations[key]; !ok {
		return domain.ErrNotFound
	}
	delete(t.registrations, key)
	return nil
}

func (t *memTx) InsertOutbox(ctx context.Context, aggregateType string, aggregateID uuid.UUID, eventType string, payload []byte) error {
	t.outbox = append(t.outbox, eventType)
	return nil
}

func (t *memTx) TicketType(ctx context.Context, id uuid.UUID) (domain.TicketType, error) {
	return domain.TicketType{}, domain.ErrNotFound
}
func (t *memTx) DecrementAvailability(ctx context.Context, id uuid.UUID, qty int) error {
	return domain.ErrNotFound
}
func (t *memTx) LifetimePurchased(ctx context.Context, userID, ticketTypeID uuid.UUID) (int, error) {
	return 0, nil
}
func (t *memTx) InsertPurchase(ctx context.Context, p domain.Purchase) error { return nil }

func exhibitor() domain.Identity {
	return domain.Identity{UserID: uuid.New(), Role: domain.RoleExhibitor}
}

func TestBoothService_Reserve(t *testing.T) {
	store := newMemStore()
	booth := domain.Booth{ID: uuid.New(), Name: "Hall A / 12", Capacity: 2}
	store.booths[booth.ID] = booth
	svc := booking.NewBoothService(store, observability.NewLogger())
	ctx := context.Background()

	first, second, third := exhibitor(), exhibitor(), exhibitor()

	if err := svc.Reserve(ctx, first, booth.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := svc.Reserve(ctx, second, booth.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := svc.Reserve(ctx, third, booth.ID); !errors.Is(err, domain.ErrBoothFull) {
		t.Errorf("expected ErrBoothFull at capacity, got %v", err)
	}
	if len(store.outbox) != 2 {
		t.Errorf("expected 2 booth.reserved events, got %v", store.outbox)
	}
}

func TestBoothService_ReserveTwice(t *testing.T) {
	store := newMemStore()
	booth := domain.Booth{ID: uuid.New(), Name: "Hall A / 12", Capacity: 5}
	store.booths[booth.ID] = booth
	svc := booking.NewBoothService(store, observability.NewLogger())
	ctx := context.Background()

	ex := exhibitor()
	if err := svc.Reserve(ctx, ex, booth.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := svc.Reserve(ctx, ex, booth.ID); !errors.Is(err, domain.ErrAlreadyReserved) {
		t.Errorf("expected ErrAlreadyReserved, got %v", err)
	}
}

func TestBoothService_ReserveGates(t *testing.T) {
	store := newMemStore()
	svc := booking.NewBoothService(store, observability.NewLogger())
	ctx := context.Background()

	user := domain.Identity{UserID: uuid.New(), Role: domain.RoleUser}
	if err := svc.Reserve(ctx, user, uuid.New()); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("regular user: expected ErrForbidden, got %v", err)
	}
	if err := svc.Reserve(ctx, exhibitor(), uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown booth: expected ErrNotFound, got %v", err)
	}
}

func TestBoothService_CancelFreesSeat(t *testing.T) {
	store := newMemStore()
	booth := domain.Booth{ID: uuid.New(), Name: "Hall A / 12", Capacity: 1}
	store.booths[booth.ID] = booth
	svc := booking.NewBoothService(store, observability.NewLogger())
	ctx := context.Background()

	first, second := exhibitor(), exhibitor()
	if err := svc.Reserve(ctx, first, booth.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.Reserve(ctx, second, booth.ID); !errors.Is(err, domain.ErrBoothFull) {
		t.Fatalf("expected ErrBoothFull, got %v", err)
	}

	if err := svc.Cancel(ctx, first, booth.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	// The seat recovers because availability is derived, never stored.
	if err := svc.Reserve(ctx, second, booth.ID); err != nil {
		t.Errorf("expected seat back after cancel, got %v", err)
	}
}

func TestBoothService_CancelWithoutReservation(t *testing.T) {
	store := newMemStore()
	svc := booking.NewBoothService(store, observability.NewLogger())

	if err := svc.Cancel(context.Background(), exhibitor(), uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEventService_Register(t *testing.T) {
	store := newMemStore()
	event := domain.Event{ID: uuid.New(), Title: "Opening Keynote", Bookable: true}
	store.events[event.ID] = event
	svc := booking.NewEventService(store, observability.NewLogger())
	ctx := context.Background()

	user := domain.Identity{UserID: uuid.New(), Role: domain.RoleUser}
	if err := svc.Register(ctx, user, event.ID, "attendee", ""); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := svc.Register(ctx, user, event.ID, "attendee", ""); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("second active registration: expected ErrConflict, got %v", err)
	}
}

func TestEventService_RegisterGates(t *testing.T) {
	store := newMemStore()
	closed := domain.Event{ID: uuid.New(), Title: "Closed Workshop", Bookable: false}
	store.events[closed.ID] = closed
	svc := booking.NewEventService(store, observability.NewLogger())
	ctx := context.Background()

	user := domain.Identity{UserID: uuid.New(), Role: domain.RoleUser}
	if err := svc.Register(ctx, domain.Identity{Role: domain.RoleGuest}, closed.ID, "", ""); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("guest: expected ErrForbidden, got %v", err)
	}
	if err := svc.Register(ctx, user, uuid.New(), "", ""); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown event: expected ErrNotFound, got %v", err)
	}
	if err := svc.Register(ctx, user, closed.ID, "", ""); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("unbookable event: expected ErrConflict, got %v", err)
	}
}

func TestEventService_CancelThenReRegister(t *testing.T) {
	store := newMemStore()
	event := domain.Event{ID: uuid.New(), Title: "Opening Keynote", Bookable: true}
	store.events[event.ID] = event
	svc := booking.NewEventService(store, observability.NewLogger())
	ctx := context.Background()

	user := domain.Identity{UserID: uuid.New(), Role: domain.RoleUser}
	if err := svc.Register(ctx, user, event.ID, "", ""); err != nil {
		t.Fatal(err)
	}
	if err := svc.Cancel(ctx, user, event.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := svc.Cancel(ctx, user, event.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("cancelling a cancelled registration: expected ErrNotFound, got %v", err)
	}
	// The cancelled row does not block a fresh registration.
	if err := svc.Register(ctx, user, event.ID, "", ""); err != nil {
		t.Errorf("re-register after cancel should work, got %v", err)
	}
}

func TestEventService_HardDeleteAdminOnly(t *testing.T) {
	store := newMemStore()
	event := domain.Event{ID: uuid.New(), Title: "Opening Keynote", Bookable: true}
	store.events[event.ID] = event
	svc := booking.NewEventService(store, observability.NewLogger())
	ctx := context.Background()

	user := domain.Identity{UserID: uuid.New(), Role: domain.RoleUser}
	if err := svc.Register(ctx, user, event.ID, "", ""); err != nil {
		t.Fatal(err)
	}

	if err := svc.HardDelete(ctx, user, event.ID, user.UserID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("non-admin hard delete: expected ErrForbidden, got %v", err)
	}

	admin := domain.Identity{UserID: uuid.New(), Role: domain.RoleAdmin}
	if err := svc.HardDelete(ctx, admin, event.ID, user.UserID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := svc.HardDelete(ctx, admin, event.ID, user.UserID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("row is gone: expected ErrNotFound, got %v", err)
	}
}
