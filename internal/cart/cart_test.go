package cart

import (
	"math/rand"
	"testing"

	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() domain.Catalog {
	return domain.NewCatalog([]domain.Product{
		{Type: domain.ProductExclusive, Price: 50000, IsSoloUpgrade: true, Active: true, SortOrder: 1},
		{Type: domain.ProductYahoo, Price: 15000, Active: true, SortOrder: 2},
		{Type: domain.ProductEnhanced, Price: 7500, Active: true, SortOrder: 3},
		{Type: domain.ProductPodcast, Price: 9900, Active: false, SortOrder: 4},
	})
}

func mustToggle(t *testing.T, c Cart, catalog domain.Catalog, persisted domain.Distribution, pt domain.ProductType) Cart {
	t.Helper()
	next, err := c.Toggle(catalog, persisted, pt)
	require.NoError(t, err)
	return next
}

func TestToggleScenario(t *testing.T) {
	catalog := testCatalog()
	persisted := domain.ParseDistribution("standard")
	c := New("r1")

	c = mustToggle(t, c, catalog, persisted, domain.ProductYahoo)
	c = mustToggle(t, c, catalog, persisted, domain.ProductEnhanced)
	assert.Equal(t, []domain.ProductType{domain.ProductEnhanced, domain.ProductYahoo}, c.Items)
	assert.Equal(t, int64(22500), c.Total(catalog))
	assert.Equal(t, StateHasSelection, c.State)

	c = mustToggle(t, c, catalog, persisted, domain.ProductExclusive)
	assert.Equal(t, []domain.ProductType{domain.ProductExclusive}, c.Items)
	assert.Equal(t, int64(50000), c.Total(catalog))
}

func TestToggleNonSoloEvictsSolo(t *testing.T) {
	catalog := testCatalog()
	persisted := domain.ParseDistribution("")
	c := New("r1")

	c = mustToggle(t, c, catalog, persisted, domain.ProductExclusive)
	c = mustToggle(t, c, catalog, persisted, domain.ProductYahoo)
	assert.Equal(t, []domain.ProductType{domain.ProductYahoo}, c.Items)
}

func TestToggleRemovesSelected(t *testing.T) {
	catalog := testCatalog()
	c := New("r1")

	c = mustToggle(t, c, catalog, nil, domain.ProductYahoo)
	c = mustToggle(t, c, catalog, nil, domain.ProductYahoo)
	assert.Empty(t, c.Items)
	assert.Equal(t, StateEmpty, c.State)
}

func TestToggleAlreadyPurchasedIsNoop(t *testing.T) {
	catalog := testCatalog()
	persisted := domain.ParseDistribution("yahoo")
	c := New("r1")

	c = mustToggle(t, c, catalog, persisted, domain.ProductYahoo)
	assert.Empty(t, c.Items)
}

func TestToggleSoloLockedRelease(t *testing.T) {
	catalog := testCatalog()
	persisted := domain.ParseDistribution("exclusive")
	c := New("r1")

	for _, pt := range []domain.ProductType{domain.ProductExclusive, domain.ProductYahoo, domain.ProductEnhanced, "unknown"} {
		c = mustToggle(t, c, catalog, persisted, pt)
	}
	assert.Empty(t, c.Items)
	assert.True(t, Disabled(catalog, persisted))
}

func TestToggleSoloAfterCombinablePurchaseRejected(t *testing.T) {
	catalog := testCatalog()
	persisted := domain.ParseDistribution("yahoo")

	_, err := New("r1").Toggle(catalog, persisted, domain.ProductExclusive)
	assert.ErrorIs(t, err, domain.ErrExclusivity)
}

func TestToggleRejectsUnknownAndInactive(t *testing.T) {
	catalog := testCatalog()

	_, err := New("r1").Toggle(catalog, nil, "unknown")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = New("r1").Toggle(catalog, nil, domain.ProductPodcast)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestToggleDetachesIntent(t *testing.T) {
	catalog := testCatalog()
	c := mustToggle(t, New("r1"), catalog, nil, domain.ProductYahoo)

	c, err := c.BeginCheckout()
	require.NoError(t, err)
	c, err = c.AttachIntent("pi_1")
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingPayment, c.State)

	c = mustToggle(t, c, catalog, nil, domain.ProductEnhanced)
	assert.Equal(t, StateHasSelection, c.State)
	assert.Empty(t, c.IntentID)
}

func TestCheckoutTransitions(t *testing.T) {
	catalog := testCatalog()

	_, err := New("r1").BeginCheckout()
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	c := mustToggle(t, New("r1"), catalog, nil, domain.ProductYahoo)
	_, err = c.AttachIntent("pi_1")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	c, err = c.BeginCheckout()
	require.NoError(t, err)
	_, err = c.BeginCheckout()
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	c, err = c.AttachIntent("pi_1")
	require.NoError(t, err)

	canceled := c.CancelCheckout()
	assert.Equal(t, StateHasSelection, canceled.State)
	assert.Equal(t, []domain.ProductType{domain.ProductYahoo}, canceled.Items)
	assert.Empty(t, canceled.IntentID)

	purchased := c.MarkPurchased()
	assert.Equal(t, StatePurchased, purchased.State)
	assert.Empty(t, purchased.Items)

	assert.Equal(t, StateEmpty, purchased.Clear().State)
}

func TestPrune(t *testing.T) {
	catalog := testCatalog()
	c := mustToggle(t, New("r1"), catalog, nil, domain.ProductYahoo)
	c = mustToggle(t, c, catalog, nil, domain.ProductEnhanced)

	pruned := c.Prune(catalog, domain.ParseDistribution("yahoo"))
	assert.Equal(t, []domain.ProductType{domain.ProductEnhanced}, pruned.Items)

	assert.Equal(t, c, c.Prune(catalog, nil))
}

// Случайные последовательности переключений: выбор solo-апгрейда всегда оставляет
// в корзине ровно его, и в корзине никогда нет solo вместе с другим типом.
func TestToggleSoloProperty(t *testing.T) {
	catalog := testCatalog()
	types := []domain.ProductType{domain.ProductExclusive, domain.ProductYahoo, domain.ProductEnhanced}

	for seed := int64(0); seed < 200; seed++ {
		rng := rand.New(rand.NewSource(seed))
		c := New("r1")
		for step := 0; step < 30; step++ {
			pt := types[rng.Intn(len(types))]
			wasSelected := c.Contains(pt)
			c = mustToggle(t, c, catalog, nil, pt)

			if catalog.IsSolo(pt) && !wasSelected {
				require.Equal(t, []domain.ProductType{pt}, c.Items, "seed %d step %d", seed, step)
			}
			require.NoError(t, c.Selection().CheckExclusivity(catalog), "seed %d step %d", seed, step)
		}
	}
}
