// Package gateway описывает контракт с внешним платежным шлюзом и его реализации.
package gateway

import (
	"context"

	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
)

// Ключи метаданных платежного намерения
const (
	MetadataReleaseID    = "release_id"
	MetadataUserID       = "user_id"
	MetadataProductTypes = "product_types"
	MetadataRefundReason = "refund_reason"
)

// Intent платежное намерение в терминах шлюза.
// Amount запрошенная сумма, AmountReceived фактически полученная.
type Intent struct {
	ID             string
	ClientSecret   string
	Amount         int64
	AmountReceived int64
	Currency       string
	Status         domain.IntentStatus
	Metadata       map[string]string
}

// CreateIntentParams параметры создания платежного намерения
type CreateIntentParams struct {
	Amount         int64
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

// Причины возврата
const (
	RefundReasonDuplicate = "duplicate"
)

// RefundParams параметры возврата оплаченного намерения
type RefundParams struct {
	IntentID       string
	Amount         int64
	Reason         string
	Metadata       map[string]string
	IdempotencyKey string
}

// Refund возврат в терминах шлюза
type Refund struct {
	ID       string
	IntentID string
	Amount   int64
	Status   string
}

// Gateway платежный шлюз. Ошибки возвращаются как *domain.PaymentGatewayError.
type Gateway interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (Intent, error)
	GetIntent(ctx context.Context, id string) (Intent, error)
	CancelIntent(ctx context.Context, id string) (Intent, error)
	RefundIntent(ctx context.Context, params RefundParams) (Refund, error)
}

// Notification внеполосный сигнал шлюза о смене статуса намерения
type Notification struct {
	EventID  string
	IntentID string
	Status   domain.IntentStatus
	Amount   int64
}
