package service

import (
	"context"
	"errors"

	"github.com/giantcranberry/Newsworthy-sub000/internal/cart"
	"github.com/giantcranberry/Newsworthy-sub000/internal/catalog"
	"github.com/giantcranberry/Newsworthy-sub000/internal/checkout"
	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
	"github.com/giantcranberry/Newsworthy-sub000/internal/repository"
	"github.com/giantcranberry/Newsworthy-sub000/internal/session"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/logger"
)

// UpgradeService интерфейс сервиса шага апгрейдов релиза
type UpgradeService interface {
	ListProducts(ctx context.Context, key session.Key) (ProductsView, error)
	GetCart(ctx context.Context, key session.Key) (CartView, error)
	Toggle(ctx context.Context, key session.Key, productType domain.ProductType) (CartView, error)
	RemoveFromCart(ctx context.Context, key session.Key, productType domain.ProductType) (CartView, error)
	Checkout(ctx context.Context, key session.Key, productTypes []domain.ProductType) (checkout.Result, error)
	Skip(ctx context.Context, key session.Key) (bool, error)
	Confirm(ctx context.Context, key session.Key, paymentIntentID string) (checkout.ConfirmResult, error)
	Cancel(ctx context.Context, key session.Key, paymentIntentID string) (domain.PaymentIntent, error)
}

// CartView корзина с суммой для отображения
type CartView struct {
	cart.Cart
	Total        int64  `json:"total"`
	TotalDisplay string `json:"total_display"`
	Disabled     bool   `json:"disabled"`
}

// ProductsView каталог релиза вместе с корзиной
type ProductsView struct {
	*catalog.Resolved
	Cart CartView `json:"cart"`
}

type upgradeService struct {
	releases repository.ReleaseRepository
	resolver *catalog.Resolver
	orch     *checkout.Orchestrator
	carts    session.CartStore
	currency string
	log      *logger.Logger
}

// NewUpgradeService создает новый сервис апгрейдов
func NewUpgradeService(
	releases repository.ReleaseRepository,
	resolver *catalog.Resolver,
	orch *checkout.Orchestrator,
	carts session.CartStore,
	currency string,
	log *logger.Logger,
) UpgradeService {
	return &upgradeService{
		releases: releases,
		resolver: resolver,
		orch:     orch,
		carts:    carts,
		currency: currency,
		log:      log,
	}
}

// ownedRelease загружает релиз и проверяет владельца. Чужой релиз выглядит как отсутствующий.
func (s *upgradeService) ownedRelease(ctx context.Context, key session.Key) (domain.Release, error) {
	release, err := s.releases.GetByID(ctx, key.ReleaseID)
	if err != nil {
		return domain.Release{}, err
	}
	if release.UserID != key.UserID {
		s.log.Warnw("Release access denied", "releaseID", key.ReleaseID, "userID", key.UserID)
		return domain.Release{}, domain.NewNotFoundError("release", key.ReleaseID)
	}
	return release, nil
}

// ownedIntent проверяет, что намерение создано для этого релиза этим пользователем
func (s *upgradeService) ownedIntent(ctx context.Context, key session.Key, paymentIntentID string) error {
	if paymentIntentID == "" {
		return domain.NewValidationError("paymentIntentId", "is required")
	}
	intent, err := s.orch.Intent(ctx, paymentIntentID)
	if err != nil {
		return err
	}
	if intent.ReleaseID != key.ReleaseID || intent.UserID != key.UserID {
		return domain.NewNotFoundError("payment intent", paymentIntentID)
	}
	return nil
}

// loadCart загружает корзину и убирает из нее то, что уже куплено или недоступно
func (s *upgradeService) loadCart(ctx context.Context, key session.Key, cat domain.Catalog, persisted domain.Distribution) (cart.Cart, error) {
	c, err := s.carts.Load(ctx, key)
	if err != nil {
		return cart.Cart{}, err
	}
	if c.ReleaseID == "" {
		c = cart.New(key.ReleaseID)
	}
	if pruned := c.Prune(cat, persisted); pruned.Len() != c.Len() {
		if err := s.carts.Save(ctx, key, pruned); err != nil {
			return cart.Cart{}, err
		}
		c = pruned
	}
	return c, nil
}

func (s *upgradeService) view(c cart.Cart, cat domain.Catalog, persisted domain.Distribution) CartView {
	total := c.Total(cat)
	return CartView{
		Cart:         c,
		Total:        total,
		TotalDisplay: domain.FormatPrice(total, s.currency),
		Disabled:     cart.Disabled(cat, persisted),
	}
}

// ListProducts возвращает каталог релиза, баланс кредитов и корзину
func (s *upgradeService) ListProducts(ctx context.Context, key session.Key) (ProductsView, error) {
	release, err := s.ownedRelease(ctx, key)
	if err != nil {
		return ProductsView{}, err
	}
	resolved, err := s.resolver.ResolveCatalog(ctx, release.ID, release.PartnerID)
	if err != nil {
		return ProductsView{}, err
	}
	persisted := resolved.Release.Purchased()
	c, err := s.loadCart(ctx, key, resolved.Catalog, persisted)
	if err != nil {
		return ProductsView{}, err
	}
	return ProductsView{Resolved: resolved, Cart: s.view(c, resolved.Catalog, persisted)}, nil
}

// GetCart возвращает текущую корзину
func (s *upgradeService) GetCart(ctx context.Context, key session.Key) (CartView, error) {
	release, cat, err := s.releaseCatalog(ctx, key)
	if err != nil {
		return CartView{}, err
	}
	c, err := s.loadCart(ctx, key, cat, release.Purchased())
	if err != nil {
		return CartView{}, err
	}
	return s.view(c, cat, release.Purchased()), nil
}

// Toggle переключает апгрейд в корзине. Если корзина была в оформлении,
// намерение отвязывается и отменяется в шлюзе.
func (s *upgradeService) Toggle(ctx context.Context, key session.Key, productType domain.ProductType) (CartView, error) {
	release, cat, err := s.releaseCatalog(ctx, key)
	if err != nil {
		return CartView{}, err
	}
	persisted := release.Purchased()
	c, err := s.loadCart(ctx, key, cat, persisted)
	if err != nil {
		return CartView{}, err
	}

	next, err := c.Toggle(cat, persisted, productType)
	if err != nil {
		return CartView{}, err
	}
	if c.IntentID != "" && next.IntentID == "" {
		s.cancelDetached(ctx, c.IntentID)
	}
	if err := s.carts.Save(ctx, key, next); err != nil {
		return CartView{}, err
	}
	s.log.Debugw("Cart toggled", "releaseID", key.ReleaseID, "productType", productType, "items", next.Items)
	return s.view(next, cat, persisted), nil
}

// RemoveFromCart убирает апгрейд из корзины
func (s *upgradeService) RemoveFromCart(ctx context.Context, key session.Key, productType domain.ProductType) (CartView, error) {
	release, cat, err := s.releaseCatalog(ctx, key)
	if err != nil {
		return CartView{}, err
	}
	persisted := release.Purchased()
	c, err := s.loadCart(ctx, key, cat, persisted)
	if err != nil {
		return CartView{}, err
	}

	next := c.Remove(productType)
	if c.IntentID != "" && next.IntentID == "" {
		s.cancelDetached(ctx, c.IntentID)
	}
	if err := s.carts.Save(ctx, key, next); err != nil {
		return CartView{}, err
	}
	return s.view(next, cat, persisted), nil
}

// Checkout оформляет покупку. Пустой productTypes означает выбор из корзины.
// При ошибке корзина сохраняет выбор.
func (s *upgradeService) Checkout(ctx context.Context, key session.Key, productTypes []domain.ProductType) (checkout.Result, error) {
	if _, err := s.ownedRelease(ctx, key); err != nil {
		return checkout.Result{}, err
	}
	c, err := s.carts.Load(ctx, key)
	if err != nil {
		return checkout.Result{}, err
	}
	if len(productTypes) == 0 {
		productTypes = c.Items
	}
	if c.IntentID != "" {
		s.cancelDetached(ctx, c.IntentID)
		c = c.CancelCheckout()
	}
	pending, beginErr := c.BeginCheckout()

	res, err := s.orch.Checkout(ctx, key.UserID, key.ReleaseID, productTypes)
	if err != nil {
		return checkout.Result{}, err
	}

	switch {
	case res.AppliedImmediately:
		c = c.MarkPurchased()
	case beginErr == nil && res.Intent != nil:
		if attached, err := pending.AttachIntent(res.Intent.GatewayIntentID); err == nil {
			c = attached
		}
	}
	if err := s.carts.Save(ctx, key, c); err != nil {
		s.log.Warnw("Failed to save cart after checkout", "releaseID", key.ReleaseID, "error", err)
	}
	return res, nil
}

// Skip пропускает шаг апгрейдов
func (s *upgradeService) Skip(ctx context.Context, key session.Key) (bool, error) {
	if _, err := s.ownedRelease(ctx, key); err != nil {
		return false, err
	}
	written, err := s.orch.Skip(ctx, key.ReleaseID)
	if err != nil {
		return false, err
	}
	if err := s.carts.Delete(ctx, key); err != nil {
		s.log.Warnw("Failed to clear cart after skip", "releaseID", key.ReleaseID, "error", err)
	}
	return written, nil
}

// Confirm подтверждение оплаты со стороны клиента
func (s *upgradeService) Confirm(ctx context.Context, key session.Key, paymentIntentID string) (checkout.ConfirmResult, error) {
	if err := s.ownedIntent(ctx, key, paymentIntentID); err != nil {
		return checkout.ConfirmResult{}, err
	}
	res, err := s.orch.ConfirmAndReconcile(ctx, paymentIntentID)
	if err != nil {
		return checkout.ConfirmResult{}, err
	}

	c, err := s.carts.Load(ctx, key)
	if err == nil {
		err = s.carts.Save(ctx, key, c.MarkPurchased())
	}
	if err != nil {
		s.log.Warnw("Failed to update cart after confirmation", "releaseID", key.ReleaseID, "error", err)
	}
	return res, nil
}

// Cancel отменяет платежное намерение, корзина возвращается к выбору
func (s *upgradeService) Cancel(ctx context.Context, key session.Key, paymentIntentID string) (domain.PaymentIntent, error) {
	if err := s.ownedIntent(ctx, key, paymentIntentID); err != nil {
		return domain.PaymentIntent{}, err
	}
	intent, err := s.orch.Cancel(ctx, paymentIntentID)
	if err != nil {
		return domain.PaymentIntent{}, err
	}

	c, err := s.carts.Load(ctx, key)
	if err == nil && c.IntentID == paymentIntentID {
		err = s.carts.Save(ctx, key, c.CancelCheckout())
	}
	if err != nil {
		s.log.Warnw("Failed to update cart after cancel", "releaseID", key.ReleaseID, "error", err)
	}
	return intent, nil
}

func (s *upgradeService) releaseCatalog(ctx context.Context, key session.Key) (domain.Release, domain.Catalog, error) {
	release, err := s.ownedRelease(ctx, key)
	if err != nil {
		return domain.Release{}, nil, err
	}
	cat, err := s.resolver.Catalog(ctx, release.PartnerID)
	if err != nil {
		return domain.Release{}, nil, err
	}
	return release, cat, nil
}

// cancelDetached отменяет намерение, отвязанное от корзины. Ошибки только логируются.
func (s *upgradeService) cancelDetached(ctx context.Context, intentID string) {
	if _, err := s.orch.Cancel(ctx, intentID); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
		s.log.Warnw("Failed to cancel detached payment intent", "intentID", intentID, "error", err)
	}
}
