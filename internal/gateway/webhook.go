package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
	stripego "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// Типы событий Stripe, влияющие на платежные намерения
const (
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventPaymentIntentCanceled  = "payment_intent.canceled"
	EventPaymentIntentFailed    = "payment_intent.payment_failed"
)

// ParseStripeWebhook проверяет подпись и разбирает событие Stripe.
// Для событий, не относящихся к платежным намерениям, ok == false.
func ParseStripeWebhook(payload []byte, signature, secret string) (n Notification, ok bool, err error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Notification{}, false, fmt.Errorf("webhook signature verification failed: %w", err)
	}

	var status domain.IntentStatus
	switch string(event.Type) {
	case EventPaymentIntentSucceeded:
		status = domain.IntentStatusSucceeded
	case EventPaymentIntentCanceled:
		status = domain.IntentStatusCanceled
	case EventPaymentIntentFailed:
		status = domain.IntentStatusFailed
	default:
		return Notification{EventID: event.ID}, false, nil
	}

	var pi stripego.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return Notification{}, false, fmt.Errorf("failed to parse payment intent from event %s: %w", event.ID, err)
	}
	if pi.ID == "" {
		return Notification{}, false, domain.NewValidationError("data.object.id", "payment intent id is missing")
	}

	return Notification{
		EventID:  event.ID,
		IntentID: pi.ID,
		Status:   status,
		Amount:   pi.Amount,
	}, true, nil
}
