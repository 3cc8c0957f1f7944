package repository

import (
	"context"

	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/logger"
)

// CachedProductRepository реализует ProductRepository с кешированием
type CachedProductRepository struct {
	repo  ProductRepository
	cache ProductCache
	log   *logger.Logger
}

// NewCachedProductRepository создает новый репозиторий каталога с кешированием
func NewCachedProductRepository(repo ProductRepository, cache ProductCache, log *logger.Logger) ProductRepository {
	return &CachedProductRepository{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// ListByPartner возвращает каталог (сначала из кеша, потом из БД)
func (r *CachedProductRepository) ListByPartner(ctx context.Context, partnerID string) ([]domain.Product, error) {
	cached, err := r.cache.GetProducts(ctx, partnerID)
	if err != nil {
		r.log.Warnw("Error getting catalog from cache", "error", err, "partnerID", partnerID)
		// Продолжаем выполнение при ошибке кеша
	}
	if len(cached) > 0 {
		return cached, nil
	}

	products, err := r.repo.ListByPartner(ctx, partnerID)
	if err != nil {
		return nil, err
	}

	if len(products) > 0 {
		if err := r.cache.SetProducts(ctx, partnerID, products); err != nil {
			r.log.Warnw("Failed to cache catalog", "error", err, "partnerID", partnerID)
		}
	}
	return products, nil
}
