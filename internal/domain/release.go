package domain

import "time"

// Release единица работы, к которой привязываются апгрейды. Модель принадлежит внешнему сервису,
// здесь используются только поля, нужные для покупки.
type Release struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	CompanyID string    `db:"company_id" json:"company_id,omitempty"`
	PartnerID string    `db:"partner_id" json:"partner_id"`
	// Distribution сырое значение из хранилища; пустая строка означает "не задано"
	Distribution string    `db:"distribution" json:"distribution"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Purchased возвращает разобранное множество купленных апгрейдов
func (r Release) Purchased() Distribution {
	return ParseDistribution(r.Distribution)
}

// DistributionUnset сообщает, что distribution еще ни разу не записывался
func (r Release) DistributionUnset() bool {
	return r.Distribution == ""
}
