// Package cart manages the per-session candidate purchase lines. Nothing
// here is durable: the cart only turns into purchases through the checkout
// engine, and a failed checkout leaves it untouched.
package cart

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/expo-checkout/internal/domain"
	"github.com/robertarktes/expo-checkout/internal/observability"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Catalog is the read-only ticket lookup.
type Catalog interface {
	GetTicketType(ctx context.Context, id uuid.UUID) (domain.TicketType, error)
}

// History sums a user's committed purchases for the lifetime cap.
type History interface {
	SumPurchased(ctx context.Context, userID, ticketTypeID uuid.UUID) (int, error)
}

// Sessions is the session-keyed cart storage.
type Sessions interface {
	Load(ctx context.Context, sessionID string) (domain.Cart, error)
	Save(ctx context.Context, sessionID string, cart domain.Cart) error
	Clear(ctx context.Context, sessionID string) error
}

type Service struct {
	catalog  Catalog
	history  History
	sessions Sessions
	logger   observability.Logger
}

func NewService(catalog Catalog, history History, sessions Sessions, logger observability.Logger) *Service {
	return &Service{catalog: catalog, history: history, sessions: sessions, logger: logger}
}

// Add puts quantity tickets of one type into the session's cart. The
// client-supplied price is discarded unseen: the line always carries the
// catalog's price. The per-type cap counts the cart plus, for authenticated
// callers, every past purchase.
func (s *Service) Add(ctx context.Context, sessionID string, id domain.Identity, ticketTypeID uuid.UUID, quantity int, clientPrice decimal.Decimal) error {
	_ = clientPrice

	if quantity < 1 || quantity > domain.MaxPerTicketType {
		return domain.ErrInvalidInput
	}

	ticket, err := s.catalog.GetTicketType(ctx, ticketTypeID)
	if err != nil {
		return err
	}

	cart, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return err
	}

	inCart := cart.QuantityOf(ticketTypeID) + quantity
	if inCart > domain.MaxPerTicketType {
		return domain.ErrQuotaExceeded
	}

	if id.Authenticated() {
		bought, err := s.history.SumPurchased(ctx, id.UserID, ticketTypeID)
		if err != nil {
			return err
		}
		if bought+inCart > domain.MaxPerTicketType {
			return domain.ErrQuotaExceeded
		}
	}

	cart.Merge(ticket.ID, ticket.Name, ticket.Price, quantity)
	return s.sessions.Save(ctx, sessionID, cart)
}

func (s *Service) Increment(ctx context.Context, sessionID string, index int) error {
	return s.mutate(ctx, sessionID, func(c *domain.Cart) error { return c.Increment(index) })
}

func (s *Service) Decrement(ctx context.Context, sessionID string, index int) error {
	return s.mutate(ctx, sessionID, func(c *domain.Cart) error { return c.Decrement(index) })
}

func (s *Service) Remove(ctx context.Context, sessionID string, index int) error {
	return s.mutate(ctx, sessionID, func(c *domain.Cart) error { return c.Remove(index) })
}

func (s *Service) Empty(ctx context.Context, sessionID string) error {
	return s.sessions.Clear(ctx, sessionID)
}

func (s *Service) mutate(ctx context.Context, sessionID string, fn func(c *domain.Cart) error) error {
	cart, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := fn(&cart); err != nil {
		return err
	}
	return s.sessions.Save(ctx, sessionID, cart)
}

// View reconciles the cart against the catalog and returns it: lines whose
// ticket type is gone are dropped, names and prices are refreshed. This runs
// on every view so a stale or tampered cached price is never shown or
// honored.
func (s *Service) View(ctx context.Context, sessionID string) (domain.Cart, error) {
	cart, _, err := s.reconcile(ctx, sessionID)
	return cart, err
}

// BeginCheckout re-validates the reconciled cart for the checkout page.
// The returned flag warns that some line currently exceeds availability;
// the hard check happens again inside the checkout transaction.
func (s *Service) BeginCheckout(ctx context.Context, sessionID string, id domain.Identity) (domain.Cart, bool, error) {
	if !id.CanCheckout() {
		return domain.Cart{}, false, domain.ErrForbidden
	}

	cart, short, err := s.reconcile(ctx, sessionID)
	if err != nil {
		return domain.Cart{}, false, err
	}
	if cart.Empty() {
		return domain.Cart{}, false, domain.ErrEmptyCart
	}
	return cart, short, nil
}

func (s *Service) reconcile(ctx context.Context, sessionID string) (domain.Cart, bool, error) {
	cart, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return domain.Cart{}, false, err
	}

	live := make([]*domain.TicketType, len(cart.Lines))
	g, gctx := errgroup.WithContext(ctx)
	for i, line := range cart.Lines {
		g.Go(func() error {
			t, err := s.catalog.GetTicketType(gctx, line.TicketTypeID)
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			live[i] = &t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Cart{}, false, err
	}

	reconciled := domain.Cart{}
	short := false
	for i, line := range cart.Lines {
		t := live[i]
		if t == nil {
			s.logger.WithField("ticket_type_id", line.TicketTypeID).
				Warn("dropping cart line for vanished ticket type")
			continue
		}
		if t.Available < line.Quantity {
			short = true
		}
		line.Name = t.Name
		line.UnitPrice = t.Price
		reconciled.Lines = append(reconciled.Lines, line)
	}

	if err := s.sessions.Save(ctx, sessionID, reconciled); err != nil {
		return domain.Cart{}, false, err
	}
	return reconciled, short, nil
}
