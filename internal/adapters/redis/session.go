package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robertarktes/expo-checkout/internal/domain"
)

// SessionStore keeps per-session carts as JSON under a TTL. The TTL doubles
// as the short-lived recovery window: a cart outlives a logout but not the
// session's absence.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func cartKey(sessionID string) string {
	return "cart:" + sessionID
}

// Load returns the session's cart; a missing key is an empty cart, not an
// error.
func (s *SessionStore) Load(ctx context.Context, sessionID string) (domain.Cart, error) {
	val, err := s.client.Get(ctx, cartKey(sessionID)).Bytes()
	if err == redis.Nil {
		return domain.Cart{}, nil
	}
	if err != nil {
		return domain.Cart{}, err
	}
	var cart domain.Cart
	if err := json.Unmarshal(val, &cart); err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

func (s *SessionStore) Save(ctx context.Context, sessionID string, cart domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, cartKey(sessionID), data, s.ttl).Err()
}

func (s *SessionStore) Clear(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, cartKey(sessionID)).Err()
}
