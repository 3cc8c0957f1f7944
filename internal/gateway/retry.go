package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/logger"
)

// Retrying повторяет вызовы шлюза с экспоненциальной задержкой, пока ошибка помечена как Retryable.
// Повтор CreateIntent и RefundIntent безопасен: ключ идемпотентности один на все попытки.
type Retrying struct {
	next    Gateway
	log     *logger.Logger
	backOff func() backoff.BackOff
}

// NewRetrying оборачивает шлюз логикой повторов
func NewRetrying(next Gateway, log *logger.Logger) *Retrying {
	return &Retrying{
		next: next,
		log:  log,
		backOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 200 * time.Millisecond
			bo.MaxInterval = 5 * time.Second
			bo.MaxElapsedTime = 30 * time.Second
			return bo
		},
	}
}

// WithBackOff задает стратегию задержек
func (r *Retrying) WithBackOff(fn func() backoff.BackOff) *Retrying {
	r.backOff = fn
	return r
}

// CreateIntent реализует Gateway
func (r *Retrying) CreateIntent(ctx context.Context, params CreateIntentParams) (Intent, error) {
	return do(ctx, r, "CreateIntent", func() (Intent, error) { return r.next.CreateIntent(ctx, params) })
}

// GetIntent реализует Gateway
func (r *Retrying) GetIntent(ctx context.Context, id string) (Intent, error) {
	return do(ctx, r, "GetIntent", func() (Intent, error) { return r.next.GetIntent(ctx, id) })
}

// CancelIntent реализует Gateway
func (r *Retrying) CancelIntent(ctx context.Context, id string) (Intent, error) {
	return do(ctx, r, "CancelIntent", func() (Intent, error) { return r.next.CancelIntent(ctx, id) })
}

// RefundIntent реализует Gateway
func (r *Retrying) RefundIntent(ctx context.Context, params RefundParams) (Refund, error) {
	return do(ctx, r, "RefundIntent", func() (Refund, error) { return r.next.RefundIntent(ctx, params) })
}

func do[T any](ctx context.Context, r *Retrying, operation string, call func() (T, error)) (T, error) {
	var out T
	attempt := 0
	op := func() error {
		attempt++
		v, err := call()
		if err == nil {
			out = v
			return nil
		}
		if IsRetryable(err) {
			r.log.Warnw("Retryable gateway error occurred, retrying", "operation", operation, "attempt", attempt, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(op, backoff.WithContext(r.backOff(), ctx)); err != nil {
		r.log.Errorw("Gateway call failed", "operation", operation, "attempts", attempt, "error", err)
		var zero T
		return zero, err
	}
	return out, nil
}

// IsRetryable сообщает, помечена ли ошибка шлюза как временная
func IsRetryable(err error) bool {
	var gwErr *domain.PaymentGatewayError
	return errors.As(err, &gwErr) && gwErr.Retryable
}
