package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
	"github.com/giantcranberry/Newsworthy-sub000/internal/events"
	"github.com/giantcranberry/Newsworthy-sub000/internal/gateway"
	"github.com/giantcranberry/Newsworthy-sub000/internal/reconciler"
	"github.com/giantcranberry/Newsworthy-sub000/internal/repository"
)

// ConfirmResult итог подтверждения оплаты
type ConfirmResult struct {
	Intent         domain.PaymentIntent `json:"intent"`
	Distribution   string               `json:"distribution"`
	AlreadyApplied bool                 `json:"alreadyApplied"`
}

// ConfirmAndReconcile применяет оплаченное намерение к релизу.
// Повторный вызов для уже примененного намерения успешен и ничего не меняет.
// Оплата, которую нельзя применить целиком (тип уже куплен или нарушено взаимоисключение),
// возвращается через шлюз, намерение становится refunded, а вызывающий получает конфликт.
func (o *Orchestrator) ConfirmAndReconcile(ctx context.Context, gatewayIntentID string) (ConfirmResult, error) {
	local, err := o.store.Intents().GetByGatewayID(ctx, gatewayIntentID)
	if err != nil {
		return ConfirmResult{}, err
	}
	switch local.Status {
	case domain.IntentStatusSucceeded:
		return o.alreadyApplied(ctx, local)
	case domain.IntentStatusCanceled, domain.IntentStatusFailed, domain.IntentStatusRefunded:
		return ConfirmResult{}, fmt.Errorf("%w: intent %s is %s", domain.ErrInvalidTransition, gatewayIntentID, local.Status)
	}

	if err := o.verifyCharge(ctx, local); err != nil {
		return ConfirmResult{}, err
	}

	release, err := o.store.Releases().GetByID(ctx, local.ReleaseID)
	if err != nil {
		return ConfirmResult{}, err
	}
	products, err := o.store.Products().ListByPartner(ctx, release.PartnerID)
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("checkout: failed to load catalog: %w", err)
	}
	catalog := domain.NewCatalog(products)

	var result reconciler.Result
	err = reconciler.Retry(ctx, o.log, local.ReleaseID, func() error {
		return o.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			var err error
			result, err = o.reconcileIntent(ctx, tx, catalog, gatewayIntentID)
			return err
		})
	})
	switch {
	case errors.Is(err, domain.ErrIdempotencyNoop):
		return o.alreadyApplied(ctx, local)
	case domain.IsPermanentConflict(err):
		return o.refundUnapplied(ctx, local, err)
	case errors.Is(err, domain.ErrReconciliationConflict):
		o.metrics.IncReconciliationConflict()
		o.log.Errorw("Paid intent could not be reconciled", "intentID", gatewayIntentID, "releaseID", local.ReleaseID, "error", err)
		return ConfirmResult{}, err
	case err != nil:
		return ConfirmResult{}, err
	}

	local.Status = domain.IntentStatusSucceeded
	o.metrics.IncReconciliation(string(domain.FundingCash))
	o.metrics.IncIntentStatus(string(domain.IntentStatusSucceeded))
	o.publishPurchase(ctx, events.PurchaseEvent{
		ReleaseID:    local.ReleaseID,
		UserID:       local.UserID,
		ProductTypes: local.ProductTypes,
		Distribution: result.Current,
		Funding:      domain.FundingCash,
		Amount:       local.Amount,
		Currency:     local.Currency,
		IntentID:     local.GatewayID,
	})
	o.log.Infow("Payment reconciled", "intentID", gatewayIntentID, "releaseID", local.ReleaseID, "distribution", result.Current)

	return ConfirmResult{Intent: local, Distribution: result.Current}, nil
}

// verifyCharge проверяет в шлюзе, что по намерению получена сохраненная сумма
func (o *Orchestrator) verifyCharge(ctx context.Context, local domain.PaymentIntent) error {
	remote, err := o.gateway.GetIntent(ctx, local.GatewayID)
	if err != nil {
		return err
	}
	if remote.Status != domain.IntentStatusSucceeded {
		return fmt.Errorf("%w: intent %s is %s", domain.ErrIntentNotSucceeded, local.GatewayID, remote.Status)
	}
	if remote.AmountReceived != local.Amount {
		o.log.Errorw("Received amount differs from intent amount", "intentID", local.GatewayID, "expected", local.Amount, "received", remote.AmountReceived)
		return domain.NewPaymentGatewayError("ConfirmIntent", "amount_mismatch",
			fmt.Sprintf("received %d, expected %d", remote.AmountReceived, local.Amount), false, nil)
	}
	return nil
}

// reconcileIntent тело транзакции подтверждения
func (o *Orchestrator) reconcileIntent(ctx context.Context, tx repository.Tx, catalog domain.Catalog, gatewayIntentID string) (reconciler.Result, error) {
	intent, err := tx.LockIntent(ctx, gatewayIntentID)
	if err != nil {
		return reconciler.Result{}, err
	}
	existing, err := tx.PurchaseRecordsByIntent(ctx, gatewayIntentID)
	if err != nil {
		return reconciler.Result{}, err
	}
	if len(existing) > 0 || intent.Status == domain.IntentStatusSucceeded {
		return reconciler.Result{}, domain.ErrIdempotencyNoop
	}
	if !intent.Status.CanTransition(domain.IntentStatusSucceeded) {
		return reconciler.Result{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, intent.Status, domain.IntentStatusSucceeded)
	}

	result, err := reconciler.ApplyInTx(ctx, tx, catalog, intent.ReleaseID, intent.ProductTypes)
	if err != nil {
		return reconciler.Result{}, err
	}
	if owned := notAdded(intent.ProductTypes, result.Added); len(owned) > 0 {
		// транзакция откатывается: намерение применяется целиком или никак
		return reconciler.Result{}, &domain.ReconciliationConflict{
			ReleaseID: intent.ReleaseID,
			Reason:    "paid products are already purchased",
			Cause:     fmt.Errorf("%w: %s", domain.ErrAlreadyPurchased, joinTypes(owned)),
		}
	}

	if records := cashRecords(catalog, intent, result.Added); len(records) > 0 {
		if err := tx.InsertPurchaseRecords(ctx, records...); err != nil {
			return reconciler.Result{}, fmt.Errorf("checkout: failed to write purchase records: %w", err)
		}
	}
	if err := tx.UpdateIntentStatus(ctx, gatewayIntentID, domain.IntentStatusSucceeded); err != nil {
		return reconciler.Result{}, err
	}
	return result, nil
}

// notAdded типы намерения, которых нет среди добавленных слиянием
func notAdded(paid, added []domain.ProductType) []domain.ProductType {
	addedSet := domain.NewDistribution(added...)
	var owned []domain.ProductType
	for _, t := range domain.NewDistribution(paid...).Types() {
		if !addedSet.Contains(t) {
			owned = append(owned, t)
		}
	}
	return owned
}

// refundUnapplied возвращает оплату, которую нельзя применить к релизу, и закрывает намерение.
// Ошибка шлюза оставляет намерение pending, следующая попытка повторит возврат с тем же ключом.
func (o *Orchestrator) refundUnapplied(ctx context.Context, intent domain.PaymentIntent, conflict error) (ConfirmResult, error) {
	reason := refundReason(conflict)
	o.metrics.IncReconciliationConflict()
	o.log.Errorw("Paid intent cannot be applied, refunding",
		"intentID", intent.GatewayID, "releaseID", intent.ReleaseID, "amount", intent.Amount, "reason", reason, "error", conflict)

	refund, err := o.gateway.RefundIntent(ctx, gateway.RefundParams{
		IntentID: intent.GatewayID,
		Amount:   intent.Amount,
		Reason:   gateway.RefundReasonDuplicate,
		Metadata: map[string]string{
			gateway.MetadataReleaseID:    intent.ReleaseID,
			gateway.MetadataRefundReason: reason,
		},
		IdempotencyKey: "refund-" + intent.GatewayID,
	})
	if err != nil {
		o.log.Errorw("Failed to refund unapplied payment", "intentID", intent.GatewayID, "error", err)
		return ConfirmResult{}, err
	}

	updated, err := o.markTerminal(ctx, intent.GatewayID, domain.IntentStatusRefunded)
	if err != nil {
		return ConfirmResult{}, err
	}
	o.metrics.IncRefund(reason)
	o.log.Warnw("Unapplied payment refunded", "intentID", intent.GatewayID, "refundID", refund.ID, "amount", refund.Amount)

	release, err := o.store.Releases().GetByID(ctx, intent.ReleaseID)
	if err != nil {
		return ConfirmResult{Intent: updated}, conflict
	}
	return ConfirmResult{Intent: updated, Distribution: release.Distribution}, conflict
}

func refundReason(err error) string {
	if errors.Is(err, domain.ErrExclusivity) {
		return "exclusivity_violation"
	}
	return "already_purchased"
}

// cashRecords распределяет зафиксированную сумму намерения по добавленным типам.
// Сумма записей всегда равна сумме намерения, расхождение с ценами каталога уходит в последнюю запись.
func cashRecords(catalog domain.Catalog, intent domain.PaymentIntent, added []domain.ProductType) []domain.PurchaseRecord {
	if len(added) == 0 {
		return nil
	}
	records := make([]domain.PurchaseRecord, len(added))
	var allocated int64
	for i, t := range added {
		price := catalog.Total([]domain.ProductType{t})
		if i == len(added)-1 {
			price = intent.Amount - allocated
		}
		allocated += price
		records[i] = domain.PurchaseRecord{
			ReleaseID:     intent.ReleaseID,
			ProductType:   t,
			AmountCharged: price,
			Funding:       domain.FundingCash,
			IntentID:      intent.GatewayID,
		}
	}
	return records
}

func (o *Orchestrator) alreadyApplied(ctx context.Context, intent domain.PaymentIntent) (ConfirmResult, error) {
	release, err := o.store.Releases().GetByID(ctx, intent.ReleaseID)
	if err != nil {
		return ConfirmResult{}, err
	}
	intent.Status = domain.IntentStatusSucceeded
	o.log.Debugw("Payment intent already reconciled", "intentID", intent.GatewayID)
	return ConfirmResult{Intent: intent, Distribution: release.Distribution, AlreadyApplied: true}, nil
}
