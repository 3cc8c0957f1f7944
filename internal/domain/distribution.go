package domain

import (
	"sort"
	"strings"
)

// StandardDistribution значение distribution для релиза без апгрейдов
const StandardDistribution = "standard"

// Distribution множество купленных типов апгрейдов релиза.
// В хранилище сериализуется как "standard" или отсортированный список через запятую.
type Distribution map[ProductType]struct{}

// ParseDistribution разбирает значение из хранилища. Пустая строка и "standard" дают пустое множество.
func ParseDistribution(raw string) Distribution {
	d := make(Distribution)
	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token == "" || token == StandardDistribution {
			continue
		}
		d[ProductType(token)] = struct{}{}
	}
	return d
}

// NewDistribution строит множество из списка типов
func NewDistribution(types ...ProductType) Distribution {
	d := make(Distribution, len(types))
	for _, t := range types {
		if t == "" || t == StandardDistribution {
			continue
		}
		d[t] = struct{}{}
	}
	return d
}

// Contains проверяет наличие типа
func (d Distribution) Contains(t ProductType) bool {
	_, ok := d[t]
	return ok
}

// Len количество типов
func (d Distribution) Len() int {
	return len(d)
}

// Union возвращает объединение без изменения исходных множеств
func (d Distribution) Union(other Distribution) Distribution {
	out := make(Distribution, len(d)+len(other))
	for t := range d {
		out[t] = struct{}{}
	}
	for t := range other {
		out[t] = struct{}{}
	}
	return out
}

// Types возвращает отсортированный список типов
func (d Distribution) Types() []ProductType {
	out := make([]ProductType, 0, len(d))
	for t := range d {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// String сериализует множество в формат хранилища
func (d Distribution) String() string {
	if len(d) == 0 {
		return StandardDistribution
	}
	types := d.Types()
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

// Solo возвращает solo-тип из множества, если он есть
func (d Distribution) Solo(c Catalog) (ProductType, bool) {
	for _, t := range d.Types() {
		if c.IsSolo(t) {
			return t, true
		}
	}
	return "", false
}

// CheckExclusivity проверяет инвариант: solo-тип не может соседствовать ни с одним другим
func (d Distribution) CheckExclusivity(c Catalog) error {
	if len(d) < 2 {
		return nil
	}
	solo, ok := d.Solo(c)
	if !ok {
		return nil
	}
	others := make([]ProductType, 0, len(d)-1)
	for _, t := range d.Types() {
		if t != solo {
			others = append(others, t)
		}
	}
	return &ExclusivityViolation{Solo: solo, Others: others}
}
