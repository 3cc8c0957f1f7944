package domain

import (
	"sort"
	"time"
)

// ProductType стабильный токен типа апгрейда (хранится в distribution)
type ProductType string

// Известные типы апгрейдов
const (
	ProductExclusive ProductType = "exclusive"
	ProductYahoo     ProductType = "yahoo"
	ProductEnhanced  ProductType = "enhanced"
	ProductSocial    ProductType = "social"
	ProductPodcast   ProductType = "podcast"
	ProductTranslate ProductType = "translate"
)

// Product запись каталога апгрейдов. Управляется вне этого сервиса.
type Product struct {
	ID            string      `db:"id" json:"id"`
	PartnerID     string      `db:"partner_id" json:"partner_id"`
	Type          ProductType `db:"type" json:"type"`
	Name          string      `db:"name" json:"name"`
	Description   string      `db:"description" json:"description,omitempty"`
	Price         int64       `db:"price" json:"price"` // в минимальных единицах валюты
	IsSoloUpgrade bool        `db:"is_solo_upgrade" json:"is_solo_upgrade"`
	Active        bool        `db:"active" json:"active"`
	SortOrder     int         `db:"sort_order" json:"sort_order"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}

// Presentation иконка и подпись для отображения апгрейда
type Presentation struct {
	Icon  string `json:"icon"`
	Label string `json:"label"`
}

var defaultPresentation = Presentation{Icon: "sparkles", Label: "Upgrade"}

// presentations закрытая таблица отображения по типу продукта
var presentations = map[ProductType]Presentation{
	ProductExclusive: {Icon: "crown", Label: "Exclusive distribution"},
	ProductYahoo:     {Icon: "newspaper", Label: "Yahoo Finance"},
	ProductEnhanced:  {Icon: "trending-up", Label: "Enhanced reach"},
	ProductSocial:    {Icon: "share", Label: "Social amplification"},
	ProductPodcast:   {Icon: "mic", Label: "Podcast mention"},
	ProductTranslate: {Icon: "globe", Label: "Translation"},
}

// PresentationFor возвращает отображение для типа продукта
func PresentationFor(t ProductType) Presentation {
	if p, ok := presentations[t]; ok {
		return p
	}
	return defaultPresentation
}

// Catalog индекс продуктов партнера по типу.
// Содержит и неактивные продукты: они нужны для проверки solo-флага у уже купленного.
type Catalog map[ProductType]Product

// NewCatalog строит каталог из списка продуктов
func NewCatalog(products []Product) Catalog {
	c := make(Catalog, len(products))
	for _, p := range products {
		c[p.Type] = p
	}
	return c
}

// Lookup возвращает продукт по типу
func (c Catalog) Lookup(t ProductType) (Product, bool) {
	p, ok := c[t]
	return p, ok
}

// Purchasable возвращает активный продукт или ValidationError
func (c Catalog) Purchasable(t ProductType) (Product, error) {
	p, ok := c[t]
	if !ok {
		return Product{}, NewValidationError("product_type", "unknown product type "+string(t))
	}
	if !p.Active {
		return Product{}, NewValidationError("product_type", "product type "+string(t)+" is not available")
	}
	return p, nil
}

// IsSolo сообщает, является ли тип solo-апгрейдом. Неизвестные типы считаются комбинируемыми.
func (c Catalog) IsSolo(t ProductType) bool {
	p, ok := c[t]
	return ok && p.IsSoloUpgrade
}

// Total сумма цен по типам. Неизвестные типы не учитываются.
func (c Catalog) Total(types []ProductType) int64 {
	var total int64
	for _, t := range types {
		if p, ok := c[t]; ok {
			total += p.Price
		}
	}
	return total
}

// Sorted возвращает продукты каталога в порядке отображения
func (c Catalog) Sorted() []Product {
	out := make([]Product, 0, len(c))
	for _, p := range c {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// ProductView продукт с состоянием покупки для конкретного релиза
type ProductView struct {
	Product
	Presentation
	IsPurchased  bool   `json:"is_purchased"`
	PriceDisplay string `json:"price_display"`
}
