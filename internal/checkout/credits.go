package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
	"github.com/giantcranberry/Newsworthy-sub000/internal/events"
	"github.com/giantcranberry/Newsworthy-sub000/internal/ledger"
	"github.com/giantcranberry/Newsworthy-sub000/internal/reconciler"
	"github.com/giantcranberry/Newsworthy-sub000/internal/repository"
)

// Result итог оформления: либо покупка применена сразу за кредиты, либо создано намерение
type Result struct {
	AppliedImmediately bool          `json:"appliedImmediately"`
	Distribution       string        `json:"distribution,omitempty"`
	Intent             *IntentResult `json:"intent,omitempty"`
}

// Checkout выбирает способ оплаты для всего выбора целиком.
// Если кредитов хватает на каждый тип, покупка применяется без шлюза, иначе создается намерение.
func (o *Orchestrator) Checkout(ctx context.Context, userID, releaseID string, productTypes []domain.ProductType) (Result, error) {
	sel, err := o.prepare(ctx, releaseID, productTypes)
	if err != nil {
		return Result{}, err
	}

	balance, err := o.ledger.GetBalance(ctx, sel.release.UserID, sel.release.CompanyID)
	if err != nil {
		return Result{}, err
	}

	if ledger.Covers(balance, sel.types) {
		res, err := o.purchaseWithCredits(ctx, userID, sel)
		if err == nil {
			return Result{AppliedImmediately: true, Distribution: res.Current}, nil
		}
		if !errors.Is(err, domain.ErrInsufficientCredits) {
			return Result{}, err
		}
		// баланс израсходован параллельно, оплачиваем через шлюз
		o.log.Infow("Credits no longer cover selection, falling back to payment", "releaseID", releaseID)
	}

	intent, err := o.CreateIntent(ctx, userID, releaseID, sel.types)
	if err != nil {
		return Result{}, err
	}
	return Result{Intent: &intent}, nil
}

// PurchaseWithCredits списывает по кредиту на каждый тип и применяет покупку в одной транзакции.
// Шлюз не используется. Если хотя бы одного кредита не хватает, ничего не пишется.
func (o *Orchestrator) PurchaseWithCredits(ctx context.Context, userID, releaseID string, productTypes []domain.ProductType) (reconciler.Result, error) {
	sel, err := o.prepare(ctx, releaseID, productTypes)
	if err != nil {
		return reconciler.Result{}, err
	}
	return o.purchaseWithCredits(ctx, userID, sel)
}

func (o *Orchestrator) purchaseWithCredits(ctx context.Context, userID string, sel selection) (reconciler.Result, error) {
	releaseID := sel.release.ID
	var result reconciler.Result
	err := reconciler.Retry(ctx, o.log, releaseID, func() error {
		return o.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			records := make([]domain.PurchaseRecord, 0, len(sel.types))
			for _, t := range sel.types {
				_, err := ledger.ConsumeInTx(ctx, tx, t, domain.CreditsPerUpgrade, releaseID, sel.release.UserID, sel.release.CompanyID)
				if err != nil {
					return err
				}
				records = append(records, domain.PurchaseRecord{
					ReleaseID:       releaseID,
					ProductType:     t,
					CreditsConsumed: domain.CreditsPerUpgrade,
					Funding:         domain.FundingCredit,
				})
			}

			var err error
			result, err = reconciler.ApplyInTx(ctx, tx, sel.catalog, releaseID, sel.types)
			if err != nil {
				return err
			}
			if len(result.Added) != len(sel.types) {
				return &domain.ReconciliationConflict{ReleaseID: releaseID, Reason: "selection was purchased concurrently"}
			}
			if err := tx.InsertPurchaseRecords(ctx, records...); err != nil {
				return fmt.Errorf("checkout: failed to write purchase records: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrReconciliationConflict) {
			o.metrics.IncReconciliationConflict()
		}
		o.log.Warnw("Credit purchase failed", "releaseID", releaseID, "productTypes", sel.types, "error", err)
		return reconciler.Result{}, err
	}

	for _, t := range sel.types {
		o.metrics.IncCreditsConsumed(string(t), domain.CreditsPerUpgrade)
	}
	o.metrics.IncReconciliation(string(domain.FundingCredit))
	o.publishPurchase(ctx, events.PurchaseEvent{
		ReleaseID:    releaseID,
		UserID:       userID,
		ProductTypes: sel.types,
		Distribution: result.Current,
		Funding:      domain.FundingCredit,
	})
	o.log.Infow("Purchase applied with credits", "releaseID", releaseID, "productTypes", sel.types, "distribution", result.Current)
	return result, nil
}
