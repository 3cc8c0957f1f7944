// Package checkout оформляет покупку апгрейдов: через платежный шлюз или за кредиты.
// Все проверки выполняются заново на сервере, состояние корзины клиента не учитывается.
package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
	"github.com/giantcranberry/Newsworthy-sub000/internal/events"
	"github.com/giantcranberry/Newsworthy-sub000/internal/gateway"
	"github.com/giantcranberry/Newsworthy-sub000/internal/ledger"
	"github.com/giantcranberry/Newsworthy-sub000/internal/metrics"
	"github.com/giantcranberry/Newsworthy-sub000/internal/repository"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/logger"
)

// Orchestrator координирует шлюз, журнал кредитов и запись distribution
type Orchestrator struct {
	store     repository.Store
	gateway   gateway.Gateway
	ledger    *ledger.Ledger
	publisher events.Publisher
	metrics   metrics.UpgradeMetrics
	currency  string
	log       *logger.Logger
}

// Option настройка Orchestrator
type Option func(*Orchestrator)

// WithPublisher задает издателя событий
func WithPublisher(p events.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithMetrics задает метрики
func WithMetrics(m metrics.UpgradeMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New создает новый Orchestrator. Повторы вызовов шлюза обеспечивает переданный gw
// (обычно gateway.Retrying).
func New(store repository.Store, gw gateway.Gateway, currency string, log *logger.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		gateway:   gw,
		ledger:    ledger.New(store, log.Named("ledger")),
		publisher: events.NopPublisher{},
		metrics:   metrics.Nop{},
		currency:  strings.ToLower(currency),
		log:       log,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Ledger возвращает журнал кредитов, с которым работает оркестратор
func (o *Orchestrator) Ledger() *ledger.Ledger {
	return o.ledger
}

// selection проверенный набор апгрейдов для релиза
type selection struct {
	release domain.Release
	catalog domain.Catalog
	types   []domain.ProductType
	amount  int64
}

// prepare загружает релиз и каталог и проверяет выбор.
// Ничего не пишет и не обращается к шлюзу.
func (o *Orchestrator) prepare(ctx context.Context, releaseID string, productTypes []domain.ProductType) (selection, error) {
	requested := domain.NewDistribution(productTypes...)
	if requested.Len() == 0 {
		return selection{}, domain.NewValidationError("productTypes", "selection is empty")
	}

	release, err := o.store.Releases().GetByID(ctx, releaseID)
	if err != nil {
		return selection{}, err
	}

	products, err := o.store.Products().ListByPartner(ctx, release.PartnerID)
	if err != nil {
		return selection{}, fmt.Errorf("checkout: failed to load catalog: %w", err)
	}
	catalog := domain.NewCatalog(products)

	persisted := release.Purchased()
	types := requested.Types()
	for _, t := range types {
		if _, err := catalog.Purchasable(t); err != nil {
			return selection{}, err
		}
		if persisted.Contains(t) {
			return selection{}, domain.NewValidationError("productTypes", "product type "+string(t)+" is already purchased")
		}
	}
	if err := persisted.Union(requested).CheckExclusivity(catalog); err != nil {
		return selection{}, err
	}

	return selection{
		release: release,
		catalog: catalog,
		types:   types,
		amount:  catalog.Total(types),
	}, nil
}

// Skip помечает релиз как "standard", только если distribution еще не задан.
// Возвращает true, если значение было записано.
func (o *Orchestrator) Skip(ctx context.Context, releaseID string) (bool, error) {
	written, err := o.store.Releases().SetDistributionIfUnset(ctx, releaseID, domain.StandardDistribution)
	if err != nil {
		return false, err
	}
	o.log.Infow("Upgrades skipped", "releaseID", releaseID, "written", written)
	return written, nil
}

func (o *Orchestrator) publishPurchase(ctx context.Context, event events.PurchaseEvent) {
	if err := o.publisher.PublishPurchase(ctx, event); err != nil {
		o.log.Warnw("Failed to publish purchase event", "releaseID", event.ReleaseID, "error", err)
	}
}

func (o *Orchestrator) publishIntentStatus(ctx context.Context, intent domain.PaymentIntent, status domain.IntentStatus) {
	err := o.publisher.PublishIntentStatus(ctx, events.IntentEvent{
		IntentID:  intent.GatewayID,
		ReleaseID: intent.ReleaseID,
		Status:    status,
		Amount:    intent.Amount,
	})
	if err != nil {
		o.log.Warnw("Failed to publish intent status event", "intentID", intent.GatewayID, "error", err)
	}
}

func joinTypes(types []domain.ProductType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}
