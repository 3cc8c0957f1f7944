package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/giantcranberry/Newsworthy-sub000/internal/cart"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// RedisStore корзины в Redis с TTL, продлеваемым при каждой записи
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisStore создает хранилище корзин в Redis
func NewRedisStore(client redis.UniversalClient, ttl time.Duration, log *logger.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, log: log}
}

// Load реализует CartStore
func (s *RedisStore) Load(ctx context.Context, key Key) (cart.Cart, error) {
	data, err := s.client.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return cart.New(key.ReleaseID), nil
		}
		s.log.Errorw("Failed to load cart from Redis", "error", err, "releaseID", key.ReleaseID, "userID", key.UserID)
		return cart.Cart{}, fmt.Errorf("failed to load cart: %w", err)
	}

	var c cart.Cart
	if err := json.Unmarshal(data, &c); err != nil {
		s.log.Warnw("Discarding unreadable cart", "error", err, "releaseID", key.ReleaseID)
		return cart.New(key.ReleaseID), nil
	}
	return c, nil
}

// Save реализует CartStore
func (s *RedisStore) Save(ctx context.Context, key Key, c cart.Cart) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal cart: %w", err)
	}
	if err := s.client.Set(ctx, key.String(), data, s.ttl).Err(); err != nil {
		s.log.Errorw("Failed to save cart to Redis", "error", err, "releaseID", key.ReleaseID, "userID", key.UserID)
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}

// Delete реализует CartStore
func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := s.client.Del(ctx, key.String()).Err(); err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}
