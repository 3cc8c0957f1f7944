package domain

import (
	"time"
)

// IntentStatus статус платежного намерения
type IntentStatus string

const (
	IntentStatusPending   IntentStatus = "pending"
	IntentStatusSucceeded IntentStatus = "succeeded"
	IntentStatusCanceled  IntentStatus = "canceled"
	IntentStatusFailed    IntentStatus = "failed"
	// IntentStatusRefunded оплата получена, но не может быть применена к релизу и возвращена
	IntentStatusRefunded IntentStatus = "refunded"
)

// Terminal сообщает, что статус конечный
func (s IntentStatus) Terminal() bool {
	switch s {
	case IntentStatusSucceeded, IntentStatusCanceled, IntentStatusFailed, IntentStatusRefunded:
		return true
	}
	return false
}

// CanTransition проверяет монотонность перехода статуса.
// Переход в тот же статус допустим и ничего не меняет.
func (s IntentStatus) CanTransition(next IntentStatus) bool {
	if s == next {
		return true
	}
	return s == IntentStatusPending && next.Terminal()
}

// PaymentIntent платежное намерение, созданное во внешнем шлюзе для набора апгрейдов релиза.
// Amount фиксируется в момент создания и не пересчитывается.
type PaymentIntent struct {
	GatewayID    string        `db:"gateway_id" json:"gateway_id"`
	ReleaseID    string        `db:"release_id" json:"release_id"`
	UserID       string        `db:"user_id" json:"user_id"`
	ProductTypes []ProductType `db:"-" json:"product_types"`
	Amount       int64         `db:"amount" json:"amount"`
	Currency     string        `db:"currency" json:"currency"`
	Status       IntentStatus  `db:"status" json:"status"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// FundingMethod способ оплаты покупки
type FundingMethod string

const (
	FundingCash   FundingMethod = "cash"
	FundingCredit FundingMethod = "credit"
)

// PurchaseRecord аудиторская запись покупки. Пишется ровно один раз на (релиз, тип продукта).
type PurchaseRecord struct {
	ID              string        `db:"id" json:"id"`
	ReleaseID       string        `db:"release_id" json:"release_id"`
	ProductType     ProductType   `db:"product_type" json:"product_type"`
	AmountCharged   int64         `db:"amount_charged" json:"amount_charged"`
	CreditsConsumed int64         `db:"credits_consumed" json:"credits_consumed"`
	Funding         FundingMethod `db:"funding" json:"funding"`
	IntentID        string        `db:"intent_id" json:"intent_id,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
}
