package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionProcessing TransactionStatus = "processing"
	TransactionCompleted  TransactionStatus = "completed"
	TransactionFailed     TransactionStatus = "failed"
	TransactionRefunded   TransactionStatus = "refunded"
)

// TransactionLogEntry records one payment attempt. Created in processing
// before the payment step and updated after; PurchaseID stays Nil until the
// purchase row exists. Writes are best-effort: losing a log line never
// aborts a sale.
type TransactionLogEntry struct {
	TransactionID string
	UserID        uuid.UUID
	PaymentMethod string
	Amount        decimal.Decimal
	Status        TransactionStatus
	IPAddress     string
	UserAgent     string
	PurchaseID    uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
