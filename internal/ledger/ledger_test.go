package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
	"github.com/giantcranberry/Newsworthy-sub000/internal/repository"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger() (*Ledger, *repository.InMemoryStore) {
	store := repository.NewInMemoryStore(logger.NewNop())
	return New(store, logger.NewNop()), store
}

func TestGetBalanceMergesScopes(t *testing.T) {
	l, store := newLedger()
	store.GrantCredits("u1", "c1", domain.ProductYahoo, 2)
	store.GrantCredits("u1", "", domain.ProductYahoo, 1)
	store.GrantCredits("u1", "", domain.ProductEnhanced, 1)

	balance, err := l.GetBalance(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, map[domain.ProductType]int64{domain.ProductYahoo: 3, domain.ProductEnhanced: 1}, balance)

	// без бренда учитывается только пользовательский уровень
	balance, err = l.GetBalance(context.Background(), "u1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), balance[domain.ProductYahoo])
}

func TestConsumeBrandFirst(t *testing.T) {
	l, store := newLedger()
	store.GrantCredits("u1", "c1", domain.ProductYahoo, 2)
	store.GrantCredits("u1", "", domain.ProductYahoo, 2)

	require.NoError(t, l.ConsumeCredits(context.Background(), domain.ProductYahoo, 3, "r1", "u1", "c1"))

	detail, err := l.BalanceDetail(context.Background(), "u1", "c1")
	require.NoError(t, err)
	require.Len(t, detail, 1)
	assert.Equal(t, int64(0), detail[0].Brand)
	assert.Equal(t, int64(1), detail[0].User)

	var consumed []domain.CreditLedgerEntry
	for _, e := range store.LedgerEntries() {
		if e.Credits < 0 {
			consumed = append(consumed, e)
		}
	}
	require.Len(t, consumed, 2)
	assert.Equal(t, "c1", consumed[0].CompanyID)
	assert.Equal(t, int64(-2), consumed[0].Credits)
	assert.Equal(t, "", consumed[1].CompanyID)
	assert.Equal(t, int64(-1), consumed[1].Credits)
	assert.Equal(t, "r1", consumed[1].ReleaseID)
}

func TestConsumeInsufficientWritesNothing(t *testing.T) {
	l, store := newLedger()
	store.GrantCredits("u1", "c1", domain.ProductYahoo, 1)
	store.GrantCredits("u1", "", domain.ProductYahoo, 1)

	err := l.ConsumeCredits(context.Background(), domain.ProductYahoo, 3, "r1", "u1", "c1")
	var insufficient *domain.InsufficientCreditsError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, int64(2), insufficient.Available)
	assert.Len(t, store.LedgerEntries(), 2)
}

func TestConsumeRejectsNonPositiveAmount(t *testing.T) {
	l, _ := newLedger()
	err := l.ConsumeCredits(context.Background(), domain.ProductYahoo, 0, "r1", "u1", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestConcurrentConsumptionNeverOverdraws(t *testing.T) {
	l, store := newLedger()
	store.GrantCredits("u1", "c1", domain.ProductYahoo, 3)
	store.GrantCredits("u1", "", domain.ProductYahoo, 2)

	const workers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failed    int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.ConsumeCredits(context.Background(), domain.ProductYahoo, 1, "r1", "u1", "c1")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if errors.Is(err, domain.ErrInsufficientCredits) {
				failed++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, workers-5, failed)

	balance, err := l.GetBalance(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.Zero(t, balance[domain.ProductYahoo])
}

func TestCovers(t *testing.T) {
	balance := map[domain.ProductType]int64{domain.ProductYahoo: 1}
	assert.True(t, Covers(balance, []domain.ProductType{domain.ProductYahoo}))
	assert.False(t, Covers(balance, []domain.ProductType{domain.ProductYahoo, domain.ProductEnhanced}))
	assert.False(t, Covers(balance, nil))
}
