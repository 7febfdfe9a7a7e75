// Package payment holds the simulated payment provider. The checkout engine
// only sees the Processor interface, so a real gateway client can take the
// simulator's place without touching the transaction code.
package payment

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/expo-checkout/internal/domain"
	"github.com/shopspring/decimal"
)

// Charge is one payment request.
type Charge struct {
	Amount decimal.Decimal
	Method string
	Card   domain.CardInfo
}

// Result is the provider's verdict. Approved false with a Reason is a
// decline; an error return is a transport failure.
type Result struct {
	Approved    bool
	ProviderRef string
	Reason      string
	ProcessedAt time.Time
}

type Processor interface {
	Charge(ctx context.Context, req Charge) (Result, error)
}

// Simulator approves everything that looks like a plausible payment. Card
// payments are declined when the number fails the Luhn check or the card is
// expired, so decline paths stay reachable in tests and demos.
type Simulator struct {
	// Latency imitates a slow provider; zero in tests.
	Latency time.Duration
}

func (s *Simulator) Charge(ctx context.Context, req Charge) (Result, error) {
	if s.Latency > 0 {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(s.Latency):
		}
	}

	if req.Amount.IsZero() {
		// Free tickets charge nothing.
		return approved(), nil
	}

	if req.Method == domain.PaymentCard {
		if !luhnValid(req.Card.Number) {
			return Result{Reason: "card number rejected", ProcessedAt: time.Now()}, nil
		}
		if expired(req.Card.Expiry, time.Now()) {
			return Result{Reason: "card expired", ProcessedAt: time.Now()}, nil
		}
	}

	return approved(), nil
}

func approved() Result {
	return Result{
		Approved:    true,
		ProviderRef: "SIM-" + uuid.New().String(),
		ProcessedAt: time.Now(),
	}
}

func luhnValid(number string) bool {
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return len(number) > 0 && sum%10 == 0
}

// expired parses MM/YY and reports whether the card's last valid month has
// passed.
func expired(expiry string, now time.Time) bool {
	if len(expiry) != 5 || expiry[2] != '/' {
		return true
	}
	month, err := strconv.Atoi(expiry[:2])
	if err != nil || month < 1 || month > 12 {
		return true
	}
	year, err := strconv.Atoi(expiry[3:])
	if err != nil {
		return true
	}
	year += 2000
	endOfMonth := time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC)
	return !now.Before(endOfMonth)
}
