package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role is the caller's role as supplied by the identity provider. The core
// trusts it only for authorization gating.
type Role string

const (
	RoleGuest     Role = "guest"
	RoleUser      Role = "user"
	RoleExhibitor Role = "exhibitor"
	RoleAdmin     Role = "admin"
)

// Identity is what the boundary knows about the caller.
type Identity struct {
	UserID uuid.UUID
	Role   Role
}

func (id Identity) Authenticated() bool {
	return id.UserID != uuid.Nil && id.Role != RoleGuest
}

// CanCheckout reports whether this role may convert a cart into purchases.
// Exhibitors browse the catalog but buy nothing.
func (id Identity) CanCheckout() bool {
	return id.Role == RoleUser || id.Role == RoleAdmin
}

// CanReserveBooth reports whether this role may reserve exhibition booths.
func (id Identity) CanReserveBooth() bool {
	return id.Role == RoleExhibitor || id.Role == RoleAdmin
}

// TicketType is the authoritative inventory row. Available never goes
// negative: it is only mutated by a guarded decrement inside a checkout
// transaction.
type TicketType struct {
	ID        uuid.UUID
	Name      string
	Price     decimal.Decimal
	Available int
}

// Purchase is one durable line of a committed checkout. Append-only;
// historical quantities count toward the per-type lifetime cap.
type Purchase struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	TicketTypeID  uuid.UUID
	Quantity      int
	UnitPrice     decimal.Decimal
	LineTotal     decimal.Decimal
	PaymentMethod string
	TransactionID string
	BillingName   string
	BillingEmail  string
	PurchasedAt   time.Time
}

// Booth capacity is fixed; availability is always derived as
// capacity - count(reservations), never stored.
type Booth struct {
	ID       uuid.UUID
	Name     string
	Pavilion string
	Theme    string
	Capacity int
}

// BoothInfo is a Booth joined with its derived occupancy for display.
type BoothInfo struct {
	Booth
	Occupied   int
	Exhibitors []string
}

func (b BoothInfo) SeatsLeft() int {
	return b.Capacity - b.Occupied
}

type BoothReservation struct {
	ID         uuid.UUID
	BoothID    uuid.UUID
	UserID     uuid.UUID
	ReservedAt time.Time
}

// Event is an exhibition event users can register for.
type Event struct {
	ID       uuid.UUID
	Title    string
	Date     time.Time
	Bookable bool
}

type RegistrationStatus string

const (
	RegistrationActive    RegistrationStatus = "active"
	RegistrationCancelled RegistrationStatus = "cancelled"
)

// EventRegistration is soft-cancelled, never deleted, except through the
// administrative hard-delete path.
type EventRegistration struct {
	ID            uuid.UUID
	EventID       uuid.UUID
	UserID        uuid.UUID
	Status        RegistrationStatus
	Participation string
	Note          string
	RegisteredAt  time.Time
}
