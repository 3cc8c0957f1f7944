package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProductCache struct {
	data   map[string][]domain.Product
	getErr error
	sets   int
}

func (c *fakeProductCache) GetProducts(ctx context.Context, partnerID string) ([]domain.Product, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.data[partnerID], nil
}

func (c *fakeProductCache) SetProducts(ctx context.Context, partnerID string, products []domain.Product) error {
	c.sets++
	c.data[partnerID] = products
	return nil
}

func (c *fakeProductCache) InvalidateProducts(ctx context.Context, partnerID string) error {
	delete(c.data, partnerID)
	return nil
}

type countingProducts struct {
	ProductRepository
	calls int
}

func (r *countingProducts) ListByPartner(ctx context.Context, partnerID string) ([]domain.Product, error) {
	r.calls++
	return r.ProductRepository.ListByPartner(ctx, partnerID)
}

func TestCachedProductRepository(t *testing.T) {
	store := NewInMemoryStore(logger.NewNop())
	store.AddProducts("partner-1", domain.Product{Type: domain.ProductYahoo, Price: 100, Active: true})

	base := &countingProducts{ProductRepository: store.Products()}
	cache := &fakeProductCache{data: map[string][]domain.Product{}}
	repo := NewCachedProductRepository(base, cache, logger.NewNop())
	ctx := context.Background()

	first, err := repo.ListByPartner(ctx, "partner-1")
	require.NoError(t, err)
	second, err := repo.ListByPartner(ctx, "partner-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, base.calls)
	assert.Equal(t, 1, cache.sets)
}

func TestCachedProductRepositoryFallsBackOnCacheError(t *testing.T) {
	store := NewInMemoryStore(logger.NewNop())
	store.AddProducts("partner-1", domain.Product{Type: domain.ProductYahoo, Price: 100, Active: true})

	cache := &fakeProductCache{data: map[string][]domain.Product{}, getErr: errors.New("redis down")}
	repo := NewCachedProductRepository(store.Products(), cache, logger.NewNop())

	products, err := repo.ListByPartner(context.Background(), "partner-1")
	require.NoError(t, err)
	assert.Len(t, products, 1)
}
