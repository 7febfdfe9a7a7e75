package pg

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/expo-checkout/internal/domain"
	"github.com/robertarktes/expo-checkout/internal/observability"
	"github.com/robertarktes/expo-checkout/internal/storage"
)

const serializationFailureCode = "40001"

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WithTx runs fn in a SERIALIZABLE transaction. The deferred rollback is a
// no-op once Commit has run, so failing closures and committed ones share
// one exit path.
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() { observability.DBTxDuration.Observe(time.Since(start).Seconds()) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == serializationFailureCode {
			return domain.ErrSerializationFailure
		}
		return err
	}

	return tx.Commit(ctx)
}

// Exclusive adapts WithTx to the storage port used by the engines.
func (s *Store) Exclusive(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(&txOps{tx: tx})
	})
}

// txOps exposes the row operations of one open transaction.
type txOps struct {
	tx pgx.Tx
}

var _ storage.Tx = (*txOps)(nil)
