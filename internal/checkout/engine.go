// Package checkout converts a session's cart into durable purchases. The
// whole conversion runs inside one exclusive transaction: everything the
// cart claims is re-read and re-validated under the lock before any counter
// moves.
package checkout

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/expo-checkout/internal/cart"
	"github.com/robertarktes/expo-checkout/internal/domain"
	"github.com/robertarktes/expo-checkout/internal/observability"
	"github.com/robertarktes/expo-checkout/internal/payment"
	"github.com/robertarktes/expo-checkout/internal/storage"
	"github.com/shopspring/decimal"
)

// TxLog is the audit sink. Failures to write it are logged and swallowed:
// the log is for reconciliation, not correctness.
type TxLog interface {
	Start(ctx context.Context, e domain.TransactionLogEntry) error
	Complete(ctx context.Context, transactionID string, purchaseID uuid.UUID) error
	Fail(ctx context.Context, transactionID string) error
}

// Request is a validated checkout submission. Billing and Card come from
// their validating constructors; the engine never sees raw form input.
type Request struct {
	SessionID string
	Identity  domain.Identity
	Billing   domain.BillingInfo
	Method    string
	Card      domain.CardInfo
	IPAddress string
	UserAgent string
}

// Receipt reports a committed checkout.
type Receipt struct {
	TransactionID   string
	FirstPurchaseID uuid.UUID
	Total           decimal.Decimal
	Lines           int
}

type Engine struct {
	store    storage.Store
	sessions cart.Sessions
	txlog    TxLog
	payments payment.Processor
	logger   observability.Logger
}

func NewEngine(store storage.Store, sessions cart.Sessions, txlog TxLog, payments payment.Processor, logger observability.Logger) *Engine {
	return &Engine{store: store, sessions: sessions, txlog: txlog, payments: payments, logger: logger}
}

type verifiedLine struct {
	ticket   domain.TicketType
	quantity int
}

// Submit executes the checkout. On any failure after the transaction opens,
// the transaction rolls back, the audit entry (if one was written) flips to
// failed, and the cart is left exactly as it was so the user can retry. The
// cart is cleared only after commit.
func (e *Engine) Submit(ctx context.Context, req Request) (Receipt, error) {
	if !req.Identity.CanCheckout() {
		return Receipt{}, domain.ErrForbidden
	}
	if !domain.ValidPaymentMethod(req.Method) {
		return Receipt{}, domain.ErrInvalidInput
	}

	ct, err := e.sessions.Load(ctx, req.SessionID)
	if err != nil {
		return Receipt{}, err
	}
	if ct.Empty() {
		return Receipt{}, domain.ErrEmptyCart
	}

	transactionID := domain.NewTransactionID()
	log := e.logger.WithField("transaction_id", transactionID)

	var (
		receipt    Receipt
		logStarted bool
	)
	err = e.store.Exclusive(ctx, func(tx storage.Tx) error {
		// Re-read every line under the lock; the cart's cached prices and
		// the pre-checkout availability read are both ignored here.
		verified := make([]verifiedLine, 0, len(ct.Lines))
		total := decimal.Zero
		for _, line := range ct.Lines {
			ticket, err := tx.TicketType(ctx, line.TicketTypeID)
			if err != nil {
				return err
			}
			if ticket.Available < line.Quantity {
				return domain.ErrInsufficientStock
			}
			total = total.Add(ticket.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
			verified = append(verified, verifiedLine{ticket: ticket, quantity: line.Quantity})
		}

		// Zero is legal: free tickets check out like any others.
		if total.IsNegative() {
			return domain.ErrInvalidTotal
		}

		if err := e.txlog.Start(ctx, domain.TransactionLogEntry{
			TransactionID: transactionID,
			UserID:        req.Identity.UserID,
			PaymentMethod: req.Method,
			Amount:        total,
			Status:        domain.TransactionProcessing,
			IPAddress:     req.IPAddress,
			UserAgent:     req.UserAgent,
		}); err != nil {
			log.WithError(err).Warn("transaction log unavailable, continuing checkout")
		} else {
			logStarted = true
		}

		// The provider is called while the transaction is open. A slow
		// provider therefore holds the lock; authorizing before the lock is
		// the known tightening, deliberately not done here.
		result, err := e.payments.Charge(ctx, payment.Charge{
			Amount: total,
			Method: req.Method,
			Card:   req.Card,
		})
		if err != nil {
			return errors.Wrap(err, "payment provider")
		}
		if !result.Approved {
			observability.PaymentsDeclined.Inc()
			return domain.ErrPaymentDeclined
		}

		// Decrement first, then re-check the lifetime cap against durable
		// history plus everything this attempt wants. A cap failure still
		// rolls the decrement back with the transaction.
		attempted := make(map[uuid.UUID]int)
		for _, v := range verified {
			if err := tx.DecrementAvailability(ctx, v.ticket.ID, v.quantity); err != nil {
				return err
			}
			bought, err := tx.LifetimePurchased(ctx, req.Identity.UserID, v.ticket.ID)
			if err != nil {
				return err
			}
			attempted[v.ticket.ID] += v.quantity
			if bought+attempted[v.ticket.ID] > domain.MaxPerTicketType {
				return domain.ErrQuotaExceeded
			}
		}

		now := time.Now()
		var firstPurchaseID uuid.UUID
		for _, v := range verified {
			p := domain.Purchase{
				ID:            uuid.New(),
				UserID:        req.Identity.UserID,
				TicketTypeID:  v.ticket.ID,
				Quantity:      v.quantity,
				UnitPrice:     v.ticket.Price,
				LineTotal:     v.ticket.Price.Mul(decimal.NewFromInt(int64(v.quantity))),
				PaymentMethod: req.Method,
				TransactionID: transactionID,
				BillingName:   req.Billing.Name,
				BillingEmail:  req.Billing.Email,
				PurchasedAt:   now,
			}
			if err := tx.InsertPurchase(ctx, p); err != nil {
				return err
			}
			if firstPurchaseID == uuid.Nil {
				firstPurchaseID = p.ID
			}
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"transaction_id": transactionID,
			"user_id":        req.Identity.UserID,
			"total":          total.String(),
			"lines":          len(verified),
		})
		if err := tx.InsertOutbox(ctx, "purchase", firstPurchaseID, "purchase.completed", payload); err != nil {
			return err
		}

		receipt = Receipt{
			TransactionID:   transactionID,
			FirstPurchaseID: firstPurchaseID,
			Total:           total,
			Lines:           len(verified),
		}
		return nil
	})
	if err != nil {
		if logStarted {
			if ferr := e.txlog.Fail(ctx, transactionID); ferr != nil {
				log.WithError(ferr).Warn("failed to mark transaction failed")
			}
		}
		observability.CheckoutsTotal.WithLabelValues(outcome(err)).Inc()
		if errors.Is(err, domain.ErrRaceCondition) {
			log.WithError(err).Error("stock drained inside exclusive transaction")
		}
		return Receipt{}, err
	}

	if logStarted {
		if cerr := e.txlog.Complete(ctx, transactionID, receipt.FirstPurchaseID); cerr != nil {
			log.WithError(cerr).Warn("failed to mark transaction completed")
		}
	}
	observability.CheckoutsTotal.WithLabelValues("completed").Inc()

	if err := e.sessions.Clear(ctx, req.SessionID); err != nil {
		// The purchase is committed; a stale cart will be dropped or
		// re-reconciled on next view.
		log.WithError(err).Warn("failed to clear cart after commit")
	}

	log.WithField("purchase_id", receipt.FirstPurchaseID).Info("checkout completed")
	return receipt, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrPaymentDeclined):
		return "payment_declined"
	case errors.Is(err, domain.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, domain.ErrRaceCondition):
		return "race_condition"
	case errors.Is(err, domain.ErrSerializationFailure):
		return "serialization_failure"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
