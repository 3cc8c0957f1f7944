package service

import (
	"context"
	"testing"

	"github.com/giantcranberry/Newsworthy-sub000/internal/cart"
	"github.com/giantcranberry/Newsworthy-sub000/internal/catalog"
	"github.com/giantcranberry/Newsworthy-sub000/internal/checkout"
	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
	"github.com/giantcranberry/Newsworthy-sub000/internal/gateway"
	"github.com/giantcranberry/Newsworthy-sub000/internal/repository"
	"github.com/giantcranberry/Newsworthy-sub000/internal/session"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	store *repository.InMemoryStore
	fake  *gateway.Fake
	carts *session.MemoryStore
	svc   UpgradeService
}

func newTestEnv(t *testing.T, distribution string) *testEnv {
	t.Helper()
	log := logger.NewNop()
	store := repository.NewInMemoryStore(log)
	store.AddProducts("partner-1",
		domain.Product{Type: domain.ProductExclusive, Price: 50000, IsSoloUpgrade: true, Active: true, SortOrder: 1},
		domain.Product{Type: domain.ProductYahoo, Price: 15000, Active: true, SortOrder: 2},
		domain.Product{Type: domain.ProductEnhanced, Price: 7500, Active: true, SortOrder: 3},
	)
	store.PutRelease(domain.Release{ID: "r1", UserID: "u1", PartnerID: "partner-1", Distribution: distribution})

	fake := gateway.NewFake()
	orch := checkout.New(store, fake, "usd", log)
	resolver := catalog.NewResolver(store.Products(), store.Releases(), orch.Ledger(), "usd")
	carts := session.NewMemoryStore(session.DefaultTTL)

	return &testEnv{
		store: store,
		fake:  fake,
		carts: carts,
		svc:   NewUpgradeService(store.Releases(), resolver, orch, carts, "usd", log),
	}
}

var ownerKey = session.Key{UserID: "u1", ReleaseID: "r1", SessionID: "s1"}

func TestToggleAndListProducts(t *testing.T) {
	env := newTestEnv(t, domain.StandardDistribution)
	ctx := context.Background()

	_, err := env.svc.Toggle(ctx, ownerKey, domain.ProductYahoo)
	require.NoError(t, err)
	view, err := env.svc.Toggle(ctx, ownerKey, domain.ProductEnhanced)
	require.NoError(t, err)
	assert.Equal(t, int64(22500), view.Total)
	assert.Equal(t, "$225.00", view.TotalDisplay)

	view, err = env.svc.Toggle(ctx, ownerKey, domain.ProductExclusive)
	require.NoError(t, err)
	assert.Equal(t, []domain.ProductType{domain.ProductExclusive}, view.Items)
	assert.Equal(t, "$500.00", view.TotalDisplay)

	products, err := env.svc.ListProducts(ctx, ownerKey)
	require.NoError(t, err)
	assert.Len(t, products.Products, 3)
	assert.Equal(t, []domain.ProductType{domain.ProductExclusive}, products.Cart.Items)
}

func TestOwnershipIsEnforced(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	stranger := session.Key{UserID: "u2", ReleaseID: "r1", SessionID: "s1"}

	_, err := env.svc.ListProducts(ctx, stranger)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = env.svc.Toggle(ctx, stranger, domain.ProductYahoo)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = env.svc.Skip(ctx, stranger)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	res, err := env.svc.Checkout(ctx, ownerKey, []domain.ProductType{domain.ProductYahoo})
	require.NoError(t, err)
	_, err = env.svc.Confirm(ctx, stranger, res.Intent.GatewayIntentID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCheckoutConfirmFlow(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	_, err := env.svc.Toggle(ctx, ownerKey, domain.ProductYahoo)
	require.NoError(t, err)

	res, err := env.svc.Checkout(ctx, ownerKey, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Intent)
	assert.Equal(t, int64(15000), res.Intent.Amount)

	c, err := env.carts.Load(ctx, ownerKey)
	require.NoError(t, err)
	assert.Equal(t, cart.StateAwaitingPayment, c.State)
	assert.Equal(t, res.Intent.GatewayIntentID, c.IntentID)

	require.NoError(t, env.fake.Succeed(res.Intent.GatewayIntentID))
	confirmed, err := env.svc.Confirm(ctx, ownerKey, res.Intent.GatewayIntentID)
	require.NoError(t, err)
	assert.Equal(t, "yahoo", confirmed.Distribution)

	c, err = env.carts.Load(ctx, ownerKey)
	require.NoError(t, err)
	assert.Equal(t, cart.StatePurchased, c.State)

	products, err := env.svc.ListProducts(ctx, ownerKey)
	require.NoError(t, err)
	for _, p := range products.Products {
		assert.Equal(t, p.Type == domain.ProductYahoo, p.IsPurchased, p.Type)
	}
}

func TestToggleDuringCheckoutCancelsIntent(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	_, err := env.svc.Toggle(ctx, ownerKey, domain.ProductYahoo)
	require.NoError(t, err)
	res, err := env.svc.Checkout(ctx, ownerKey, nil)
	require.NoError(t, err)

	view, err := env.svc.Toggle(ctx, ownerKey, domain.ProductEnhanced)
	require.NoError(t, err)
	assert.Empty(t, view.IntentID)
	assert.Equal(t, cart.StateHasSelection, view.State)
	assert.Equal(t, 1, env.fake.CancelCalls)

	intent, err := env.store.Intents().GetByGatewayID(ctx, res.Intent.GatewayIntentID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusCanceled, intent.Status)
}

func TestFailedCheckoutKeepsSelection(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	env.fake.CreateErrs = []error{domain.NewPaymentGatewayError("CreateIntent", "api_error", "down", false, nil)}

	_, err := env.svc.Toggle(ctx, ownerKey, domain.ProductYahoo)
	require.NoError(t, err)
	_, err = env.svc.Checkout(ctx, ownerKey, nil)
	assert.ErrorIs(t, err, domain.ErrPaymentGateway)

	view, err := env.svc.GetCart(ctx, ownerKey)
	require.NoError(t, err)
	assert.Equal(t, []domain.ProductType{domain.ProductYahoo}, view.Items)
	assert.Equal(t, cart.StateHasSelection, view.State)
}

func TestCancelReturnsCartToSelection(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	_, err := env.svc.Toggle(ctx, ownerKey, domain.ProductEnhanced)
	require.NoError(t, err)
	res, err := env.svc.Checkout(ctx, ownerKey, nil)
	require.NoError(t, err)

	intent, err := env.svc.Cancel(ctx, ownerKey, res.Intent.GatewayIntentID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusCanceled, intent.Status)

	view, err := env.svc.GetCart(ctx, ownerKey)
	require.NoError(t, err)
	assert.Equal(t, cart.StateHasSelection, view.State)
	assert.Equal(t, []domain.ProductType{domain.ProductEnhanced}, view.Items)
}

func TestSkip(t *testing.T) {
	env := newTestEnv(t, "")

	written, err := env.svc.Skip(context.Background(), ownerKey)
	require.NoError(t, err)
	assert.True(t, written)

	release, err := env.store.Releases().GetByID(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.StandardDistribution, release.Distribution)
}
