package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
	"github.com/giantcranberry/Newsworthy-sub000/internal/gateway"
	"github.com/giantcranberry/Newsworthy-sub000/internal/repository"
	"github.com/google/uuid"
)

// IntentResult созданное платежное намерение
type IntentResult struct {
	GatewayIntentID string               `json:"paymentIntentId"`
	ClientSecret    string               `json:"clientSecret"`
	Amount          int64                `json:"amount"`
	Currency        string               `json:"currency"`
	ProductTypes    []domain.ProductType `json:"productTypes"`
}

// CreateIntent создает платежное намерение на сумму цен каталога в момент создания.
// Сумма сохраняется локально и дальше не пересчитывается.
func (o *Orchestrator) CreateIntent(ctx context.Context, userID, releaseID string, productTypes []domain.ProductType) (IntentResult, error) {
	sel, err := o.prepare(ctx, releaseID, productTypes)
	if err != nil {
		o.log.Debugw("Checkout validation failed", "releaseID", releaseID, "error", err)
		return IntentResult{}, err
	}
	if sel.amount <= 0 {
		return IntentResult{}, domain.NewValidationError("productTypes", "selection has nothing to charge")
	}

	intent, err := o.gateway.CreateIntent(ctx, gateway.CreateIntentParams{
		Amount:   sel.amount,
		Currency: o.currency,
		Metadata: map[string]string{
			gateway.MetadataReleaseID:    releaseID,
			gateway.MetadataUserID:       userID,
			gateway.MetadataProductTypes: joinTypes(sel.types),
		},
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		o.log.Errorw("Failed to create payment intent", "releaseID", releaseID, "amount", sel.amount, "error", err)
		return IntentResult{}, err
	}

	local := domain.PaymentIntent{
		GatewayID:    intent.ID,
		ReleaseID:    releaseID,
		UserID:       userID,
		ProductTypes: sel.types,
		Amount:       sel.amount,
		Currency:     o.currency,
		Status:       domain.IntentStatusPending,
	}
	if err := o.store.Intents().Create(ctx, local); err != nil {
		o.log.Errorw("Failed to store payment intent, canceling at gateway", "intentID", intent.ID, "error", err)
		if _, cancelErr := o.gateway.CancelIntent(ctx, intent.ID); cancelErr != nil {
			o.log.Errorw("Failed to cancel orphaned payment intent", "intentID", intent.ID, "error", cancelErr)
		}
		return IntentResult{}, fmt.Errorf("checkout: failed to store payment intent: %w", err)
	}

	o.metrics.IncIntentCreated(o.currency)
	o.metrics.ObserveCheckoutAmount(sel.amount, o.currency)
	o.publishIntentStatus(ctx, local, domain.IntentStatusPending)
	o.log.Infow("Payment intent created", "intentID", intent.ID, "releaseID", releaseID, "amount", sel.amount, "productTypes", sel.types)

	return IntentResult{
		GatewayIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          sel.amount,
		Currency:        o.currency,
		ProductTypes:    sel.types,
	}, nil
}

// Intent возвращает локальную копию платежного намерения
func (o *Orchestrator) Intent(ctx context.Context, gatewayIntentID string) (domain.PaymentIntent, error) {
	return o.store.Intents().GetByGatewayID(ctx, gatewayIntentID)
}

// Cancel отменяет намерение в шлюзе и локально. Релиз не меняется.
// Отмена уже отмененного намерения ничего не делает, отмена оплаченного отклоняется.
func (o *Orchestrator) Cancel(ctx context.Context, gatewayIntentID string) (domain.PaymentIntent, error) {
	local, err := o.store.Intents().GetByGatewayID(ctx, gatewayIntentID)
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	switch local.Status {
	case domain.IntentStatusCanceled:
		return local, nil
	case domain.IntentStatusSucceeded, domain.IntentStatusFailed, domain.IntentStatusRefunded:
		return local, fmt.Errorf("%w: intent %s is %s", domain.ErrInvalidTransition, gatewayIntentID, local.Status)
	}

	remote, err := o.gateway.CancelIntent(ctx, gatewayIntentID)
	if err != nil {
		o.log.Errorw("Failed to cancel payment intent", "intentID", gatewayIntentID, "error", err)
		return local, err
	}
	if remote.Status == domain.IntentStatusSucceeded {
		// оплата прошла раньше отмены: применяем покупку
		o.log.Warnw("Payment intent succeeded before cancel", "intentID", gatewayIntentID)
		if _, err := o.ConfirmAndReconcile(ctx, gatewayIntentID); err != nil {
			return local, err
		}
		return local, fmt.Errorf("%w: intent %s already succeeded", domain.ErrInvalidTransition, gatewayIntentID)
	}

	updated, err := o.markTerminal(ctx, gatewayIntentID, domain.IntentStatusCanceled)
	if err != nil {
		return local, err
	}
	o.log.Infow("Payment intent canceled", "intentID", gatewayIntentID, "releaseID", local.ReleaseID)
	return updated, nil
}

// markTerminal переводит намерение в конечный статус. Повтор того же статуса ничего не меняет.
func (o *Orchestrator) markTerminal(ctx context.Context, gatewayIntentID string, status domain.IntentStatus) (domain.PaymentIntent, error) {
	var intent domain.PaymentIntent
	changed := false
	err := o.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		intent, err = tx.LockIntent(ctx, gatewayIntentID)
		if err != nil {
			return err
		}
		if intent.Status == status {
			return nil
		}
		if !intent.Status.CanTransition(status) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, intent.Status, status)
		}
		if err := tx.UpdateIntentStatus(ctx, gatewayIntentID, status); err != nil {
			return err
		}
		intent.Status = status
		changed = true
		return nil
	})
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	if changed {
		o.metrics.IncIntentStatus(string(status))
		o.publishIntentStatus(ctx, intent, status)
	}
	return intent, nil
}

// HandleGatewayNotification обрабатывает внеполосный сигнал шлюза.
// Неизвестные намерения, устаревшие переходы и возвращенные оплаты подтверждаются без ошибки,
// чтобы шлюз не повторял доставку.
func (o *Orchestrator) HandleGatewayNotification(ctx context.Context, n gateway.Notification) error {
	log := o.log.With("intentID", n.IntentID, "status", n.Status, "eventID", n.EventID)

	var err error
	switch n.Status {
	case domain.IntentStatusSucceeded:
		_, err = o.ConfirmAndReconcile(ctx, n.IntentID)
	case domain.IntentStatusCanceled, domain.IntentStatusFailed:
		_, err = o.markTerminal(ctx, n.IntentID, n.Status)
	default:
		log.Debugw("Ignoring gateway notification")
		return nil
	}

	switch {
	case err == nil:
		log.Infow("Gateway notification processed")
		return nil
	case errors.Is(err, domain.ErrNotFound):
		log.Warnw("Gateway notification for unknown intent")
		return nil
	case errors.Is(err, domain.ErrInvalidTransition):
		log.Warnw("Stale gateway notification", "error", err)
		return nil
	case domain.IsPermanentConflict(err):
		log.Warnw("Gateway notification for unappliable payment, refunded", "error", err)
		return nil
	default:
		log.Errorw("Failed to process gateway notification", "error", err)
		return err
	}
}
