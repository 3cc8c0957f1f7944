package domain

import "time"

// CreditsPerUpgrade сколько кредитов списывается за один апгрейд данного типа
const CreditsPerUpgrade int64 = 1

// ScopeKind уровень, к которому привязаны кредиты
type ScopeKind string

const (
	ScopeBrand ScopeKind = "brand"
	ScopeUser  ScopeKind = "user"
)

// CreditScope область действия кредитов: бренд (CompanyID задан) или пользователь
type CreditScope struct {
	UserID    string
	CompanyID string
}

// Kind возвращает уровень области
func (s CreditScope) Kind() ScopeKind {
	if s.CompanyID != "" {
		return ScopeBrand
	}
	return ScopeUser
}

// CreditLedgerEntry строка журнала кредитов. Только добавление, без изменения существующих строк.
// Списание моделируется отрицательной строкой с ReleaseID потребившего релиза.
type CreditLedgerEntry struct {
	ID          string      `db:"id" json:"id"`
	UserID      string      `db:"user_id" json:"user_id"`
	CompanyID   string      `db:"company_id" json:"company_id,omitempty"`
	ProductType ProductType `db:"product_type" json:"product_type"`
	Credits     int64       `db:"credits" json:"credits"`
	ReleaseID   string      `db:"release_id" json:"release_id,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// Scope возвращает область действия строки
func (e CreditLedgerEntry) Scope() CreditScope {
	return CreditScope{UserID: e.UserID, CompanyID: e.CompanyID}
}

// ScopeBalance баланс одного типа продукта с разбивкой по уровням
type ScopeBalance struct {
	ProductType ProductType `json:"product_type"`
	Brand       int64       `json:"brand"`
	User        int64       `json:"user"`
}

// Total суммарный доступный баланс
func (b ScopeBalance) Total() int64 {
	return b.Brand + b.User
}
