// Package reconciler единственный писатель поля distribution релиза.
package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
	"github.com/giantcranberry/Newsworthy-sub000/internal/repository"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/logger"
)

// maxAttempts первая попытка и один повтор на свежем значении
const maxAttempts = 2

// Result итог слияния
type Result struct {
	Previous string
	Current  string
	Added    []domain.ProductType
}

// Changed сообщает, что значение distribution изменилось
func (r Result) Changed() bool {
	return r.Previous != r.Current
}

// Reconciler применяет подтвержденные покупки к релизу
type Reconciler struct {
	store repository.Store
	log   *logger.Logger
}

// New создает новый Reconciler
func New(store repository.Store, log *logger.Logger) *Reconciler {
	return &Reconciler{store: store, log: log}
}

// LoadCatalog читает каталог партнера релиза
func (r *Reconciler) LoadCatalog(ctx context.Context, partnerID string) (domain.Catalog, error) {
	products, err := r.store.Products().ListByPartner(ctx, partnerID)
	if err != nil {
		return nil, fmt.Errorf("reconciler: failed to load catalog: %w", err)
	}
	return domain.NewCatalog(products), nil
}

// ApplyPurchase объединяет productTypes с distribution релиза в собственной транзакции.
// Конфликт повторяется один раз, повторный конфликт возвращается вызывающему.
func (r *Reconciler) ApplyPurchase(ctx context.Context, releaseID string, productTypes []domain.ProductType) (Result, error) {
	release, err := r.store.Releases().GetByID(ctx, releaseID)
	if err != nil {
		return Result{}, err
	}
	catalog, err := r.LoadCatalog(ctx, release.PartnerID)
	if err != nil {
		return Result{}, err
	}

	var result Result
	err = Retry(ctx, r.log, releaseID, func() error {
		return r.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			var err error
			result, err = ApplyInTx(ctx, tx, catalog, releaseID, productTypes)
			return err
		})
	})
	if err != nil {
		return Result{}, err
	}

	r.log.Infow("Purchase reconciled", "releaseID", releaseID, "previous", result.Previous, "distribution", result.Current)
	return result, nil
}

// Retry выполняет fn и повторяет ее один раз при ReconciliationConflict.
// Неустранимый конфликт возвращается сразу.
func Retry(ctx context.Context, log *logger.Logger, releaseID string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, domain.ErrReconciliationConflict) || domain.IsPermanentConflict(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return err
		}
		log.Warnw("Reconciliation conflict", "releaseID", releaseID, "attempt", attempt, "error", err)
	}
	return err
}

// ApplyInTx выполняет слияние внутри переданной транзакции.
// Строка релиза блокируется, запись делается сравнением со старым значением.
// Результат, нарушающий взаимоисключение solo-апгрейдов, не записывается.
func ApplyInTx(ctx context.Context, tx repository.Tx, catalog domain.Catalog, releaseID string, productTypes []domain.ProductType) (Result, error) {
	if len(productTypes) == 0 {
		return Result{}, domain.NewValidationError("productTypes", "nothing to apply")
	}

	release, err := tx.LockRelease(ctx, releaseID)
	if err != nil {
		return Result{}, err
	}

	current := release.Purchased()
	incoming := domain.NewDistribution(productTypes...)
	merged := current.Union(incoming)

	if err := merged.CheckExclusivity(catalog); err != nil {
		return Result{}, &domain.ReconciliationConflict{
			ReleaseID: releaseID,
			Reason:    "merged distribution violates exclusivity",
			Cause:     err,
		}
	}

	result := Result{Previous: release.Distribution, Current: merged.String()}
	for _, t := range incoming.Types() {
		if !current.Contains(t) {
			result.Added = append(result.Added, t)
		}
	}
	if !result.Changed() {
		return result, nil
	}

	swapped, err := tx.CompareAndSwapDistribution(ctx, releaseID, release.Distribution, result.Current)
	if err != nil {
		return Result{}, fmt.Errorf("reconciler: failed to write distribution: %w", err)
	}
	if !swapped {
		return Result{}, &domain.ReconciliationConflict{
			ReleaseID: releaseID,
			Reason:    "distribution changed concurrently",
		}
	}
	return result, nil
}
