package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxPerTicketType caps how many tickets of one type a user may hold,
// counting the cart and every past purchase together.
const MaxPerTicketType = 5

// CartLine is a candidate purchase. Name and UnitPrice are display caches
// refreshed from the catalog on every view; checkout never trusts them.
type CartLine struct {
	TicketTypeID uuid.UUID       `json:"ticket_type_id"`
	Name         string          `json:"name"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
}

// Cart is session-scoped state. Only its owning session mutates it, so the
// type itself carries no locking.
type Cart struct {
	Lines []CartLine `json:"lines"`
}

func (c *Cart) Empty() bool {
	return len(c.Lines) == 0
}

// QuantityOf returns how many tickets of the given type the cart holds.
func (c *Cart) QuantityOf(ticketTypeID uuid.UUID) int {
	for _, l := range c.Lines {
		if l.TicketTypeID == ticketTypeID {
			return l.Quantity
		}
	}
	return 0
}

// Merge adds quantity to an existing line for the ticket type or appends a
// new one. The caller has already enforced the caps and resolved the
// authoritative name and price.
func (c *Cart) Merge(ticketTypeID uuid.UUID, name string, price decimal.Decimal, quantity int) {
	for i := range c.Lines {
		if c.Lines[i].TicketTypeID == ticketTypeID {
			c.Lines[i].Quantity += quantity
			c.Lines[i].Name = name
			c.Lines[i].UnitPrice = price
			return
		}
	}
	c.Lines = append(c.Lines, CartLine{
		TicketTypeID: ticketTypeID,
		Name:         name,
		Quantity:     quantity,
		UnitPrice:    price,
	})
}

// Increment bumps the line's quantity, saturating at the per-type cap.
func (c *Cart) Increment(index int) error {
	if index < 0 || index >= len(c.Lines) {
		return ErrInvalidIndex
	}
	if c.Lines[index].Quantity < MaxPerTicketType {
		c.Lines[index].Quantity++
	}
	return nil
}

// Decrement lowers the line's quantity; a line at quantity 1 is removed.
func (c *Cart) Decrement(index int) error {
	if index < 0 || index >= len(c.Lines) {
		return ErrInvalidIndex
	}
	if c.Lines[index].Quantity > 1 {
		c.Lines[index].Quantity--
		return nil
	}
	return c.Remove(index)
}

func (c *Cart) Remove(index int) error {
	if index < 0 || index >= len(c.Lines) {
		return ErrInvalidIndex
	}
	c.Lines = append(c.Lines[:index], c.Lines[index+1:]...)
	return nil
}

func (c *Cart) Clear() {
	c.Lines = nil
}

// Total sums the cached line prices. Display only; checkout recomputes the
// total from live catalog prices inside its transaction.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}
