// Package cart содержит машину состояний выбора апгрейдов для одного релиза.
// Корзина является значением: каждая операция принимает корзину и возвращает новую.
// Корзина не является источником истины, сервер перепроверяет все при оформлении.
package cart

import (
	"fmt"
	"sort"

	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
)

// State состояние корзины
type State string

const (
	StateEmpty           State = "empty"
	StateHasSelection    State = "has_selection"
	StateCheckingOut     State = "checking_out"
	StateAwaitingPayment State = "awaiting_payment"
	StatePurchased       State = "purchased"
)

// Cart выбор пользователя для релиза
type Cart struct {
	ReleaseID string               `json:"release_id"`
	Items     []domain.ProductType `json:"items"`
	State     State                `json:"state"`
	IntentID  string               `json:"intent_id,omitempty"`
}

// New создает пустую корзину
func New(releaseID string) Cart {
	return Cart{ReleaseID: releaseID, Items: []domain.ProductType{}, State: StateEmpty}
}

// Contains проверяет, выбран ли тип
func (c Cart) Contains(t domain.ProductType) bool {
	for _, item := range c.Items {
		if item == t {
			return true
		}
	}
	return false
}

// Len количество выбранных типов
func (c Cart) Len() int {
	return len(c.Items)
}

// Selection возвращает выбор как множество
func (c Cart) Selection() domain.Distribution {
	return domain.NewDistribution(c.Items...)
}

// Total сумма цен каталога по выбранным типам
func (c Cart) Total(catalog domain.Catalog) int64 {
	return catalog.Total(c.Items)
}

// Disabled сообщает, что к релизу больше ничего нельзя добавить (куплен solo-апгрейд)
func Disabled(catalog domain.Catalog, persisted domain.Distribution) bool {
	_, ok := persisted.Solo(catalog)
	return ok
}

// Toggle добавляет или убирает тип из выбора.
//
// Уже купленный тип и любой тип при купленном solo-апгрейде не меняют корзину.
// Solo-апгрейд нельзя выбрать, если куплен обычный апгрейд. Выбор solo-апгрейда
// вытесняет все остальное, выбор обычного вытесняет выбранный solo.
// Изменение корзины во время оформления отвязывает платежное намерение.
func (c Cart) Toggle(catalog domain.Catalog, persisted domain.Distribution, t domain.ProductType) (Cart, error) {
	if persisted.Contains(t) || Disabled(catalog, persisted) {
		return c, nil
	}

	product, err := catalog.Purchasable(t)
	if err != nil {
		return c, err
	}

	if product.IsSoloUpgrade && persisted.Len() > 0 {
		return c, &domain.ExclusivityViolation{Solo: t, Others: persisted.Types()}
	}

	if c.Contains(t) {
		return c.without(t), nil
	}

	var items []domain.ProductType
	if !product.IsSoloUpgrade {
		for _, item := range c.Items {
			if !catalog.IsSolo(item) {
				items = append(items, item)
			}
		}
	}
	items = append(items, t)
	return c.withItems(items), nil
}

// Remove убирает тип из выбора. Отсутствующий тип не меняет корзину.
func (c Cart) Remove(t domain.ProductType) Cart {
	if !c.Contains(t) {
		return c
	}
	return c.without(t)
}

// Clear очищает выбор
func (c Cart) Clear() Cart {
	return New(c.ReleaseID)
}

// BeginCheckout переводит корзину в оформление
func (c Cart) BeginCheckout() (Cart, error) {
	switch c.State {
	case StateHasSelection:
		c.State = StateCheckingOut
		return c, nil
	case StateEmpty:
		return c, domain.NewValidationError("productTypes", "selection is empty")
	default:
		return c, fmt.Errorf("%w: cannot begin checkout from %s", domain.ErrInvalidTransition, c.State)
	}
}

// AttachIntent привязывает созданное платежное намерение
func (c Cart) AttachIntent(intentID string) (Cart, error) {
	if c.State != StateCheckingOut {
		return c, fmt.Errorf("%w: cannot attach intent in %s", domain.ErrInvalidTransition, c.State)
	}
	c.State = StateAwaitingPayment
	c.IntentID = intentID
	return c, nil
}

// CancelCheckout возвращает корзину к выбору, сохраняя выбранные типы
func (c Cart) CancelCheckout() Cart {
	if c.State != StateCheckingOut && c.State != StateAwaitingPayment {
		return c
	}
	c.IntentID = ""
	c.State = stateFor(c.Items)
	return c
}

// MarkPurchased завершает покупку и очищает выбор
func (c Cart) MarkPurchased() Cart {
	return Cart{ReleaseID: c.ReleaseID, Items: []domain.ProductType{}, State: StatePurchased}
}

// Prune убирает из выбора типы, которые уже куплены или стали недоступны
func (c Cart) Prune(catalog domain.Catalog, persisted domain.Distribution) Cart {
	var items []domain.ProductType
	for _, item := range c.Items {
		if persisted.Contains(item) || Disabled(catalog, persisted) {
			continue
		}
		if _, err := catalog.Purchasable(item); err != nil {
			continue
		}
		items = append(items, item)
	}
	if len(items) == len(c.Items) {
		return c
	}
	return c.withItems(items)
}

func (c Cart) without(t domain.ProductType) Cart {
	items := make([]domain.ProductType, 0, len(c.Items))
	for _, item := range c.Items {
		if item != t {
			items = append(items, item)
		}
	}
	return c.withItems(items)
}

func (c Cart) withItems(items []domain.ProductType) Cart {
	if items == nil {
		items = []domain.ProductType{}
	}
	sort.Slice(items, func(i, j int) bool { return items[i] < items[j] })
	return Cart{ReleaseID: c.ReleaseID, Items: items, State: stateFor(items)}
}

func stateFor(items []domain.ProductType) State {
	if len(items) == 0 {
		return StateEmpty
	}
	return StateHasSelection
}
