package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	PostgresDSN  string
	MongoURI     string
	RedisAddr    string
	RabbitURL    string
	ListenAddr   string
	OTLPEndpoint string

	CartTTL time.Duration

	LoginMaxAttempts int
	LoginWindow      time.Duration
	LoginLockout     time.Duration
	LimiterSweep     time.Duration

	StaleTxAfter time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cartTTL, _ := time.ParseDuration(os.Getenv("CART_TTL"))
	if cartTTL == 0 {
		cartTTL = 24 * time.Hour
	}
	staleTx, _ := time.ParseDuration(os.Getenv("STALE_TX_AFTER"))
	if staleTx == 0 {
		staleTx = 30 * time.Minute
	}

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	return &Config{
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
		MongoURI:     os.Getenv("MONGO_URI"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RabbitURL:    os.Getenv("RABBIT_URL"),
		ListenAddr:   addr,
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		CartTTL: cartTTL,

		LoginMaxAttempts: 5,
		LoginWindow:      15 * time.Minute,
		LoginLockout:     30 * time.Minute,
		LimiterSweep:     10 * time.Minute,

		StaleTxAfter: staleTx,
	}, nil
}
