package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
	"github.com/google/uuid"
)

// Fake шлюз в памяти для локального запуска без ключей Stripe и для тестов.
// Намерения не подтверждаются сами: статус меняется через Succeed.
type Fake struct {
	mu      sync.Mutex
	intents map[string]Intent
	byKey   map[string]string
	refunds map[string]Refund

	// Ошибки, возвращаемые следующими вызовами (по одной на вызов)
	CreateErrs []error
	GetErrs    []error
	CancelErrs []error
	RefundErrs []error

	CreateCalls int
	CancelCalls int
	RefundCalls int
}

// NewFake создает пустой Fake
func NewFake() *Fake {
	return &Fake{intents: make(map[string]Intent), byKey: make(map[string]string), refunds: make(map[string]Refund)}
}

// CreateIntent реализует Gateway
func (f *Fake) CreateIntent(ctx context.Context, p CreateIntentParams) (Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.CreateCalls++
	if err := pop(&f.CreateErrs); err != nil {
		return Intent{}, err
	}
	if id, ok := f.byKey[p.IdempotencyKey]; ok && p.IdempotencyKey != "" {
		return f.intents[id], nil
	}

	id := "pi_" + uuid.NewString()
	intent := Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Amount:       p.Amount,
		Currency:     p.Currency,
		Status:       domain.IntentStatusPending,
		Metadata:     p.Metadata,
	}
	f.intents[id] = intent
	if p.IdempotencyKey != "" {
		f.byKey[p.IdempotencyKey] = id
	}
	return intent, nil
}

// GetIntent реализует Gateway
func (f *Fake) GetIntent(ctx context.Context, id string) (Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := pop(&f.GetErrs); err != nil {
		return Intent{}, err
	}
	intent, ok := f.intents[id]
	if !ok {
		return Intent{}, domain.NewPaymentGatewayError("GetIntent", "resource_missing", "no such payment intent", false, nil)
	}
	return intent, nil
}

// CancelIntent реализует Gateway
func (f *Fake) CancelIntent(ctx context.Context, id string) (Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.CancelCalls++
	if err := pop(&f.CancelErrs); err != nil {
		return Intent{}, err
	}
	intent, ok := f.intents[id]
	if !ok {
		return Intent{}, domain.NewPaymentGatewayError("CancelIntent", "resource_missing", "no such payment intent", false, nil)
	}
	if intent.Status == domain.IntentStatusPending {
		intent.Status = domain.IntentStatusCanceled
		f.intents[id] = intent
	}
	return intent, nil
}

// RefundIntent реализует Gateway. Повтор с тем же ключом возвращает первый возврат.
func (f *Fake) RefundIntent(ctx context.Context, p RefundParams) (Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.RefundCalls++
	if err := pop(&f.RefundErrs); err != nil {
		return Refund{}, err
	}
	if r, ok := f.refunds[p.IdempotencyKey]; ok && p.IdempotencyKey != "" {
		return r, nil
	}
	intent, ok := f.intents[p.IntentID]
	if !ok {
		return Refund{}, domain.NewPaymentGatewayError("RefundIntent", "resource_missing", "no such payment intent", false, nil)
	}
	if intent.Status != domain.IntentStatusSucceeded {
		return Refund{}, domain.NewPaymentGatewayError("RefundIntent", "charge_not_refundable", "payment intent has not succeeded", false, nil)
	}

	amount := p.Amount
	if amount <= 0 {
		amount = intent.AmountReceived
	}
	r := Refund{ID: "re_" + uuid.NewString(), IntentID: p.IntentID, Amount: amount, Status: "succeeded"}
	key := p.IdempotencyKey
	if key == "" {
		key = r.ID
	}
	f.refunds[key] = r
	return r, nil
}

// Refunded сумма всех возвратов по намерению
func (f *Fake) Refunded(intentID string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	var total int64
	for _, r := range f.refunds {
		if r.IntentID == intentID {
			total += r.Amount
		}
	}
	return total
}

// Succeed помечает намерение оплаченным на запрошенную сумму, как это сделал бы клиент на стороне шлюза
func (f *Fake) Succeed(id string) error {
	return f.succeed(id, 0)
}

// SucceedWithAmount помечает намерение оплаченным на другую полученную сумму
func (f *Fake) SucceedWithAmount(id string, received int64) error {
	return f.succeed(id, received)
}

func (f *Fake) succeed(id string, received int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	intent, ok := f.intents[id]
	if !ok {
		return fmt.Errorf("fake gateway: unknown intent %s", id)
	}
	intent.Status = domain.IntentStatusSucceeded
	intent.AmountReceived = intent.Amount
	if received > 0 {
		intent.AmountReceived = received
	}
	f.intents[id] = intent
	return nil
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}
