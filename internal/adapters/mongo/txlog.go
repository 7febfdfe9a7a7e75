package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/expo-checkout/internal/domain"
	"github.com/robertarktes/expo-checkout/internal/observability"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func mongoFindOpts(limit int64) *options.FindOptions {
	return options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)
}

// TransactionLog is the audit sink for payment attempts. Every method is
// best-effort from the caller's point of view: errors are logged and
// returned, but the checkout engine never lets them abort a sale.
type TransactionLog struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewTransactionLog(db *mongo.Database, logger observability.Logger) *TransactionLog {
	return &TransactionLog{
		coll:   db.Collection("transaction_log"),
		logger: logger,
	}
}

type txLogDoc struct {
	TransactionID string    `bson:"_id"`
	UserID        string    `bson:"user_id"`
	PaymentMethod string    `bson:"payment_method"`
	Amount        float64   `bson:"amount"`
	Status        string    `bson:"status"`
	IPAddress     string    `bson:"ip_address"`
	UserAgent     string    `bson:"user_agent"`
	PurchaseID    string    `bson:"purchase_id"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func fromDoc(d txLogDoc) domain.TransactionLogEntry {
	userID, _ := uuid.Parse(d.UserID)
	purchaseID, _ := uuid.Parse(d.PurchaseID)
	return domain.TransactionLogEntry{
		TransactionID: d.TransactionID,
		UserID:        userID,
		PaymentMethod: d.PaymentMethod,
		Amount:        decimal.NewFromFloat(d.Amount),
		Status:        domain.TransactionStatus(d.Status),
		IPAddress:     d.IPAddress,
		UserAgent:     d.UserAgent,
		PurchaseID:    purchaseID,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

// Start records a payment attempt in processing status before the payment
// step runs.
func (t *TransactionLog) Start(ctx context.Context, e domain.TransactionLogEntry) error {
	now := time.Now()
	amount, _ := e.Amount.Float64()
	doc := txLogDoc{
		TransactionID: e.TransactionID,
		UserID:        e.UserID.String(),
		PaymentMethod: e.PaymentMethod,
		Amount:        amount,
		Status:        string(domain.TransactionProcessing),
		IPAddress:     e.IPAddress,
		UserAgent:     e.UserAgent,
		PurchaseID:    uuid.Nil.String(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	_, err := t.coll.InsertOne(ctx, doc)
	if err != nil {
		t.logger.WithError(err).Error("failed to start transaction log entry")
	}
	return err
}

func (t *TransactionLog) setStatus(ctx context.Context, transactionID string, status domain.TransactionStatus, purchaseID uuid.UUID) error {
	_, err := t.coll.UpdateOne(ctx,
		bson.M{"_id": transactionID},
		bson.M{"$set": bson.M{
			"status":      string(status),
			"purchase_id": purchaseID.String(),
			"updated_at":  time.Now(),
		}},
	)
	if err != nil {
		t.logger.WithError(err).WithField("transaction_id", transactionID).
			Error("failed to update transaction log entry")
	}
	return err
}

// Complete marks the attempt committed and links the first purchase row.
func (t *TransactionLog) Complete(ctx context.Context, transactionID string, purchaseID uuid.UUID) error {
	return t.setStatus(ctx, transactionID, domain.TransactionCompleted, purchaseID)
}

func (t *TransactionLog) Fail(ctx context.Context, transactionID string) error {
	return t.setStatus(ctx, transactionID, domain.TransactionFailed, uuid.Nil)
}

// ByUser returns the user's most recent payment attempts.
func (t *TransactionLog) ByUser(ctx context.Context, userID uuid.UUID, limit int64) ([]domain.TransactionLogEntry, error) {
	opts := mongoFindOpts(limit)
	cur, err := t.coll.Find(ctx, bson.M{"user_id": userID.String()}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []domain.TransactionLogEntry
	for cur.Next(ctx) {
		var d txLogDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, fromDoc(d))
	}
	return out, cur.Err()
}

// SuspiciousIP is an origin with repeated failed payment attempts inside the
// window, used as a fraud signal.
type SuspiciousIP struct {
	IPAddress   string    `bson:"_id"`
	Failures    int       `bson:"failures"`
	LastAttempt time.Time `bson:"last_attempt"`
}

// Suspicious aggregates IPs with at least minFailures failed attempts within
// the window.
func (t *TransactionLog) Suspicious(ctx context.Context, window time.Duration, minFailures int) ([]SuspiciousIP, error) {
	since := time.Now().Add(-window)
	cur, err := t.coll.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"status":     string(domain.TransactionFailed),
			"created_at": bson.M{"$gte": since},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":          "$ip_address",
			"failures":     bson.M{"$sum": 1},
			"last_attempt": bson.M{"$max": "$created_at"},
		}}},
		{{Key: "$match", Value: bson.M{"failures": bson.M{"$gte": minFailures}}}},
		{{Key: "$sort", Value: bson.D{{Key: "failures", Value: -1}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []SuspiciousIP
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DayStat aggregates one day's payment attempts by status.
type DayStat struct {
	Day       string  `bson:"_id"`
	Count     int     `bson:"count"`
	Completed int     `bson:"completed"`
	Failed    int     `bson:"failed"`
	Volume    float64 `bson:"volume"`
}

// DailyStats groups attempts per calendar day inside the window, newest day
// first. Volume counts completed amounts only.
func (t *TransactionLog) DailyStats(ctx context.Context, window time.Duration) ([]DayStat, error) {
	since := time.Now().Add(-window)
	completed := bson.M{"$cond": bson.A{
		bson.M{"$eq": bson.A{"$status", string(domain.TransactionCompleted)}}, 1, 0,
	}}
	failed := bson.M{"$cond": bson.A{
		bson.M{"$eq": bson.A{"$status", string(domain.TransactionFailed)}}, 1, 0,
	}}
	volume := bson.M{"$cond": bson.A{
		bson.M{"$eq": bson.A{"$status", string(domain.TransactionCompleted)}}, "$amount", 0,
	}}
	cur, err := t.coll.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"created_at": bson.M{"$gte": since}}}},
		{{Key: "$group", Value: bson.M{
			"_id":       bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$created_at"}},
			"count":     bson.M{"$sum": 1},
			"completed": bson.M{"$sum": completed},
			"failed":    bson.M{"$sum": failed},
			"volume":    bson.M{"$sum": volume},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: -1}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []DayStat
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FailStale flips processing entries older than the cutoff to failed. A
// processing entry that old means the process died mid-checkout; the
// purchase either committed (and the entry was updated) or rolled back, so
// a stale processing row is a failure for reconciliation purposes.
func (t *TransactionLog) FailStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := t.coll.UpdateMany(ctx,
		bson.M{
			"status":     string(domain.TransactionProcessing),
			"created_at": bson.M{"$lt": cutoff},
		},
		bson.M{"$set": bson.M{
			"status":     string(domain.TransactionFailed),
			"updated_at": time.Now(),
		}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
