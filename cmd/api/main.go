package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	mongoadapter "github.com/robertarktes/expo-checkout/internal/adapters/mongo"
	"github.com/robertarktes/expo-checkout/internal/adapters/pg"
	"github.com/robertarktes/expo-checkout/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/expo-checkout/internal/adapters/redis"
	"github.com/robertarktes/expo-checkout/internal/booking"
	"github.com/robertarktes/expo-checkout/internal/cart"
	"github.com/robertarktes/expo-checkout/internal/checkout"
	"github.com/robertarktes/expo-checkout/internal/config"
	httphandler "github.com/robertarktes/expo-checkout/internal/http"
	"github.com/robertarktes/expo-checkout/internal/observability"
	"github.com/robertarktes/expo-checkout/internal/outbox"
	"github.com/robertarktes/expo-checkout/internal/payment"
	"github.com/robertarktes/expo-checkout/internal/rateLimit"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	store := pg.NewStore(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	txlog := mongoadapter.NewTransactionLog(mongoClient.Database("expo"), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	sessions := redisadapter.NewSessionStore(redisClient, cfg.CartTTL)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}

	carts := cart.NewService(store, store, sessions, logger)
	engine := checkout.NewEngine(store, sessions, txlog, &payment.Simulator{Latency: 200 * time.Millisecond}, logger)
	booths := booking.NewBoothService(store, logger)
	events := booking.NewEventService(store, logger)
	limiter := rateLimit.NewLoginLimiter(cfg.LoginMaxAttempts, cfg.LoginWindow, cfg.LoginLockout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The limiter holds attempt state in memory; sweep it on a timer so
	// expired entries do not pile up between logins.
	go func() {
		ticker := time.NewTicker(cfg.LimiterSweep)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				dropped := limiter.Sweep(time.Now())
				if dropped > 0 {
					logger.WithField("dropped", dropped).Info("swept login limiter")
				}
			}
		}
	}()

	go outbox.NewPublisher(store, rabbitPub, logger).Run(ctx)

	handlers := httphandler.NewHandlers(cfg, store, carts, engine, booths, events, txlog, limiter)
	r := httphandler.SetupRouter(handlers, logger)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
