package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mongoadapter "github.com/robertarktes/expo-checkout/internal/adapters/mongo"
	"github.com/robertarktes/expo-checkout/internal/config"
	"github.com/robertarktes/expo-checkout/internal/observability"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Reconciliation worker for the transaction log. A crash between writing
// the processing entry and updating it leaves the entry stuck; this worker
// flips stale processing entries to failed and surfaces origins with
// repeated failures.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	txlog := mongoadapter.NewTransactionLog(mongoClient.Database("expo"), logger)

	worker := NewReconWorker(txlog, cfg.StaleTxAfter, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Run(ctx, 5*time.Minute)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown recon worker")
}

type ReconWorker struct {
	txlog      *mongoadapter.TransactionLog
	staleAfter time.Duration
	logger     observability.Logger
}

func NewReconWorker(txlog *mongoadapter.TransactionLog, staleAfter time.Duration, logger observability.Logger) *ReconWorker {
	return &ReconWorker{txlog: txlog, staleAfter: staleAfter, logger: logger}
}

func (w *ReconWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			failed, err := w.txlog.FailStale(ctx, w.staleAfter)
			if err != nil {
				w.logger.WithError(err).Error("failed to reconcile stale transactions")
				continue
			}
			if failed > 0 {
				w.logger.WithField("count", failed).Warn("marked stale transactions failed")
			}

			suspicious, err := w.txlog.Suspicious(ctx, 24*time.Hour, 3)
			if err != nil {
				w.logger.WithError(err).Error("failed to aggregate suspicious origins")
				continue
			}
			for _, s := range suspicious {
				w.logger.WithField("ip_address", s.IPAddress).
					WithField("failures", s.Failures).
					Warn("suspicious payment origin")
			}
		}
	}
}
