package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	// Префикс ключей каталога партнера
	catalogKeyPrefix = "upgrade_catalog:"

	// TTL для кэша
	defaultCacheTTL = 5 * time.Minute
)

// ProductCache кеш каталога апгрейдов по партнеру
type ProductCache interface {
	// GetProducts возвращает nil, nil при промахе
	GetProducts(ctx context.Context, partnerID string) ([]domain.Product, error)
	SetProducts(ctx context.Context, partnerID string, products []domain.Product) error
	InvalidateProducts(ctx context.Context, partnerID string) error
}

// RedisCacheRepository реализует кеширование каталога с использованием Redis
type RedisCacheRepository struct {
	client redis.UniversalClient
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisClient подключается к Redis и проверяет соединение
func NewRedisClient(ctx context.Context, addr, password string, db int, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Проверяем соединение с Redis
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		log.Errorw("Failed to connect to Redis", "error", err, "addr", addr)
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Infow("Connected to Redis successfully", "addr", addr)
	return client, nil
}

// NewRedisCacheRepository создает новый экземпляр Redis кеша каталога
func NewRedisCacheRepository(client redis.UniversalClient, ttl time.Duration, log *logger.Logger) *RedisCacheRepository {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &RedisCacheRepository{
		client: client,
		ttl:    ttl,
		log:    log,
	}
}

// GetProducts получает каталог партнера из кеша
func (r *RedisCacheRepository) GetProducts(ctx context.Context, partnerID string) ([]domain.Product, error) {
	key := catalogKeyPrefix + partnerID

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.log.Debugw("Catalog not found in cache", "partnerID", partnerID)
			return nil, nil
		}
		r.log.Errorw("Error getting catalog from Redis", "error", err, "partnerID", partnerID)
		return nil, fmt.Errorf("failed to get catalog from cache: %w", err)
	}

	var products []domain.Product
	if err := json.Unmarshal(data, &products); err != nil {
		r.log.Errorw("Failed to unmarshal cached catalog", "error", err, "partnerID", partnerID)
		return nil, fmt.Errorf("failed to unmarshal cached catalog: %w", err)
	}

	r.log.Debugw("Catalog retrieved from cache", "partnerID", partnerID, "count", len(products))
	return products, nil
}

// SetProducts кеширует каталог партнера
func (r *RedisCacheRepository) SetProducts(ctx context.Context, partnerID string, products []domain.Product) error {
	key := catalogKeyPrefix + partnerID

	data, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}

	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		r.log.Errorw("Failed to cache catalog in Redis", "error", err, "partnerID", partnerID)
		return fmt.Errorf("failed to cache catalog: %w", err)
	}

	r.log.Debugw("Catalog cached successfully", "partnerID", partnerID, "count", len(products))
	return nil
}

// InvalidateProducts удаляет каталог партнера из кеша
func (r *RedisCacheRepository) InvalidateProducts(ctx context.Context, partnerID string) error {
	if err := r.client.Del(ctx, catalogKeyPrefix+partnerID).Err(); err != nil {
		r.log.Errorw("Failed to invalidate catalog cache", "error", err, "partnerID", partnerID)
		return fmt.Errorf("failed to invalidate catalog cache: %w", err)
	}
	return nil
}
