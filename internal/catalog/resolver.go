// Package catalog загружает продукты апгрейдов партнера и отмечает их состояние для релиза.
package catalog

import (
	"context"
	"fmt"

	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
	"github.com/giantcranberry/Newsworthy-sub000/internal/repository"
)

// BalanceReader источник баланса кредитов
type BalanceReader interface {
	GetBalance(ctx context.Context, userID, companyID string) (map[domain.ProductType]int64, error)
}

// Resolved каталог для релиза
type Resolved struct {
	Release       domain.Release               `json:"-"`
	Catalog       domain.Catalog               `json:"-"`
	Products      []domain.ProductView         `json:"products"`
	CreditBalance map[domain.ProductType]int64 `json:"credit_balance"`
	Disabled      bool                         `json:"disabled"`
}

// Resolver собирает каталог релиза
type Resolver struct {
	products repository.ProductRepository
	releases repository.ReleaseRepository
	balances BalanceReader
	currency string
}

// NewResolver создает новый Resolver
func NewResolver(products repository.ProductRepository, releases repository.ReleaseRepository, balances BalanceReader, currency string) *Resolver {
	return &Resolver{products: products, releases: releases, balances: balances, currency: currency}
}

// Catalog загружает полный каталог партнера, включая неактивные продукты
func (r *Resolver) Catalog(ctx context.Context, partnerID string) (domain.Catalog, error) {
	products, err := r.products.ListByPartner(ctx, partnerID)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to load products: %w", err)
	}
	return domain.NewCatalog(products), nil
}

// ResolveCatalog возвращает продукты с признаком покупки и баланс кредитов владельца релиза.
// Купленные продукты показываются всегда, остальные неактивные скрываются.
func (r *Resolver) ResolveCatalog(ctx context.Context, releaseID, partnerID string) (*Resolved, error) {
	release, err := r.releases.GetByID(ctx, releaseID)
	if err != nil {
		return nil, err
	}
	if partnerID == "" {
		partnerID = release.PartnerID
	}

	catalog, err := r.Catalog(ctx, partnerID)
	if err != nil {
		return nil, err
	}

	balance, err := r.balances.GetBalance(ctx, release.UserID, release.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to load credit balance: %w", err)
	}

	purchased := release.Purchased()
	views := make([]domain.ProductView, 0, len(catalog))
	for _, p := range catalog.Sorted() {
		isPurchased := purchased.Contains(p.Type)
		if !p.Active && !isPurchased {
			continue
		}
		views = append(views, domain.ProductView{
			Product:      p,
			Presentation: domain.PresentationFor(p.Type),
			IsPurchased:  isPurchased,
			PriceDisplay: domain.FormatPrice(p.Price, r.currency),
		})
	}

	_, soloPurchased := purchased.Solo(catalog)
	return &Resolved{
		Release:       release,
		Catalog:       catalog,
		Products:      views,
		CreditBalance: balance,
		Disabled:      soloPurchased,
	}, nil
}
