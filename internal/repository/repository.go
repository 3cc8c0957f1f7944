package repository

import (
	"context"

	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
)

// ProductRepository чтение каталога. Каталог управляется внешней системой.
type ProductRepository interface {
	// ListByPartner возвращает все продукты партнера, включая неактивные.
	ListByPartner(ctx context.Context, partnerID string) ([]domain.Product, error)
}

// ReleaseRepository чтение релизов вне транзакции
type ReleaseRepository interface {
	// GetByID возвращает релиз или ErrNotFound.
	GetByID(ctx context.Context, releaseID string) (domain.Release, error)

	// SetDistributionIfUnset записывает значение, только если distribution еще не задан.
	// Возвращает true, если запись произошла.
	SetDistributionIfUnset(ctx context.Context, releaseID, value string) (bool, error)
}

// CreditRepository чтение баланса кредитов вне транзакции
type CreditRepository interface {
	// Balances возвращает чистые суммы по типам продуктов для бренда и пользователя.
	Balances(ctx context.Context, userID, companyID string) ([]domain.ScopeBalance, error)
}

// IntentRepository хранение локальных копий платежных намерений
type IntentRepository interface {
	Create(ctx context.Context, intent domain.PaymentIntent) error
	GetByGatewayID(ctx context.Context, gatewayID string) (domain.PaymentIntent, error)
}

// Tx операции, выполняемые внутри одной сериализуемой транзакции
type Tx interface {
	// LockRelease читает релиз с блокировкой строки до конца транзакции.
	LockRelease(ctx context.Context, releaseID string) (domain.Release, error)

	// CompareAndSwapDistribution записывает next, только если текущее значение равно expected.
	CompareAndSwapDistribution(ctx context.Context, releaseID, expected, next string) (bool, error)

	// CreditBalance читает живой баланс одного типа продукта по обоим уровням.
	CreditBalance(ctx context.Context, userID, companyID string, productType domain.ProductType) (domain.ScopeBalance, error)

	// InsertLedgerEntries добавляет строки журнала кредитов.
	InsertLedgerEntries(ctx context.Context, entries ...domain.CreditLedgerEntry) error

	// LockIntent читает платежное намерение с блокировкой строки.
	LockIntent(ctx context.Context, gatewayID string) (domain.PaymentIntent, error)

	// UpdateIntentStatus меняет статус платежного намерения.
	UpdateIntentStatus(ctx context.Context, gatewayID string, status domain.IntentStatus) error

	// PurchaseRecordsByIntent возвращает записи покупок, созданные по намерению.
	PurchaseRecordsByIntent(ctx context.Context, gatewayID string) ([]domain.PurchaseRecord, error)

	// InsertPurchaseRecords добавляет записи покупок. Дубликат (релиз, тип) дает ErrDuplicate.
	InsertPurchaseRecords(ctx context.Context, records ...domain.PurchaseRecord) error
}

// TxFunc тело транзакции
type TxFunc func(ctx context.Context, tx Tx) error

// Store точка доступа ко всем репозиториям и транзакциям
type Store interface {
	Products() ProductRepository
	Releases() ReleaseRepository
	Credits() CreditRepository
	Intents() IntentRepository

	// WithinTx выполняет fn в сериализуемой транзакции. Ошибка fn откатывает транзакцию.
	WithinTx(ctx context.Context, fn TxFunc) error
}
