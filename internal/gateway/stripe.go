package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/logger"
	stripego "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// Типы ошибок Stripe, по которым принимается решение о повторе
const (
	StripeErrorTypeAPIConnection stripego.ErrorType = "api_connection_error"
	StripeErrorTypeIdempotency   stripego.ErrorType = "idempotency_error"
)

// StripeGateway реализует Gateway через Stripe PaymentIntents API
type StripeGateway struct {
	client *client.API
	log    *logger.Logger
}

// NewStripeGateway создает новый экземпляр шлюза Stripe.
// backends может быть nil, тогда используются стандартные адреса Stripe.
func NewStripeGateway(apiKey string, backends *stripego.Backends, log *logger.Logger) *StripeGateway {
	sc := &client.API{}
	sc.Init(apiKey, backends)
	return &StripeGateway{client: sc, log: log}
}

// CreateIntent создает PaymentIntent на фиксированную сумму
func (g *StripeGateway) CreateIntent(ctx context.Context, p CreateIntentParams) (Intent, error) {
	params := &stripego.PaymentIntentParams{
		Amount:   stripego.Int64(p.Amount),
		Currency: stripego.String(p.Currency),
		AutomaticPaymentMethods: &stripego.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripego.Bool(true),
		},
	}
	params.Context = ctx
	if p.IdempotencyKey != "" {
		params.IdempotencyKey = stripego.String(p.IdempotencyKey)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.client.PaymentIntents.New(params)
	if err != nil {
		return Intent{}, g.wrapError("CreateIntent", err)
	}

	g.log.Infow("Stripe payment intent created", "intentID", pi.ID, "amount", pi.Amount, "currency", string(pi.Currency))
	return fromStripe(pi), nil
}

// GetIntent читает текущее состояние PaymentIntent
func (g *StripeGateway) GetIntent(ctx context.Context, id string) (Intent, error) {
	params := &stripego.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.client.PaymentIntents.Get(id, params)
	if err != nil {
		return Intent{}, g.wrapError("GetIntent", err)
	}
	return fromStripe(pi), nil
}

// CancelIntent отменяет PaymentIntent. Уже отмененное намерение не считается ошибкой.
func (g *StripeGateway) CancelIntent(ctx context.Context, id string) (Intent, error) {
	params := &stripego.PaymentIntentCancelParams{
		Params: stripego.Params{Context: ctx},
	}

	pi, err := g.client.PaymentIntents.Cancel(id, params)
	if err != nil {
		var stripeErr *stripego.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripego.ErrorCodePaymentIntentUnexpectedState {
			g.log.Warnw("Payment intent is not cancelable, reading current state", "intentID", id)
			return g.GetIntent(ctx, id)
		}
		return Intent{}, g.wrapError("CancelIntent", err)
	}

	g.log.Infow("Stripe payment intent canceled", "intentID", id)
	return fromStripe(pi), nil
}

// RefundIntent возвращает деньги по оплаченному PaymentIntent
func (g *StripeGateway) RefundIntent(ctx context.Context, p RefundParams) (Refund, error) {
	params := &stripego.RefundParams{
		PaymentIntent: stripego.String(p.IntentID),
	}
	params.Context = ctx
	if p.Amount > 0 {
		params.Amount = stripego.Int64(p.Amount)
	}
	if p.Reason != "" {
		params.Reason = stripego.String(p.Reason)
	}
	if p.IdempotencyKey != "" {
		params.IdempotencyKey = stripego.String(p.IdempotencyKey)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	r, err := g.client.Refunds.New(params)
	if err != nil {
		return Refund{}, g.wrapError("RefundIntent", err)
	}

	g.log.Infow("Stripe refund created", "refundID", r.ID, "intentID", p.IntentID, "amount", r.Amount, "status", string(r.Status))
	return Refund{ID: r.ID, IntentID: p.IntentID, Amount: r.Amount, Status: string(r.Status)}, nil
}

func (g *StripeGateway) wrapError(operation string, err error) error {
	logStripeError(g.log, operation, err)

	var stripeErr *stripego.Error
	if errors.As(err, &stripeErr) {
		return domain.NewPaymentGatewayError(operation, string(stripeErr.Code), stripeErr.Msg, IsRetryableStripeError(err), err)
	}
	return domain.NewPaymentGatewayError(operation, "", "unexpected gateway failure", false, err)
}

// IsRetryableStripeError проверяет, является ли ошибка Stripe подходящей для повторной попытки
func IsRetryableStripeError(err error) bool {
	var stripeErr *stripego.Error
	if errors.As(err, &stripeErr) {
		// Ошибка идемпотентности не повторяется с тем же ключом
		if stripeErr.Type == StripeErrorTypeIdempotency {
			return false
		}
		// Rate Limit
		if stripeErr.HTTPStatusCode == http.StatusTooManyRequests {
			return true
		}
		// Ошибки соединения API
		if stripeErr.Type == StripeErrorTypeAPIConnection {
			return true
		}
		// 5xx кроме 501 могут быть временными
		if stripeErr.HTTPStatusCode >= 500 && stripeErr.HTTPStatusCode != http.StatusNotImplemented {
			return true
		}
	}
	return false
}

func fromStripe(pi *stripego.PaymentIntent) Intent {
	return Intent{
		ID:             pi.ID,
		ClientSecret:   pi.ClientSecret,
		Amount:         pi.Amount,
		AmountReceived: pi.AmountReceived,
		Currency:       string(pi.Currency),
		Status:         mapStripeStatus(pi.Status),
		Metadata:       pi.Metadata,
	}
}

func mapStripeStatus(s stripego.PaymentIntentStatus) domain.IntentStatus {
	switch s {
	case stripego.PaymentIntentStatusSucceeded:
		return domain.IntentStatusSucceeded
	case stripego.PaymentIntentStatusCanceled:
		return domain.IntentStatusCanceled
	default:
		return domain.IntentStatusPending
	}
}

// logStripeError логирует детали ошибки Stripe
func logStripeError(log *logger.Logger, operation string, err error) {
	var stripeErr *stripego.Error
	if errors.As(err, &stripeErr) {
		log.Errorw("Stripe API error",
			"operation", operation,
			"type", string(stripeErr.Type),
			"code", string(stripeErr.Code),
			"param", stripeErr.Param,
			"message", stripeErr.Msg,
			"request_id", stripeErr.RequestID,
			"status_code", stripeErr.HTTPStatusCode,
		)
		return
	}
	log.Errorw("Non-Stripe error during Stripe operation", "operation", operation, "error", err)
}
