// Package ledger считает и списывает предоплаченные кредиты на апгрейды.
// Баланс не хранится: это сумма строк журнала для уровня (бренд или пользователь) и типа продукта.
package ledger

import (
	"context"
	"fmt"

	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
	"github.com/giantcranberry/Newsworthy-sub000/internal/repository"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/logger"
)

// Ledger операции с журналом кредитов
type Ledger struct {
	store repository.Store
	log   *logger.Logger
}

// New создает новый Ledger
func New(store repository.Store, log *logger.Logger) *Ledger {
	return &Ledger{store: store, log: log}
}

// GetBalance возвращает доступный баланс по типам продуктов (бренд + пользователь)
func (l *Ledger) GetBalance(ctx context.Context, userID, companyID string) (map[domain.ProductType]int64, error) {
	detail, err := l.BalanceDetail(ctx, userID, companyID)
	if err != nil {
		return nil, err
	}
	out := make(map[domain.ProductType]int64, len(detail))
	for _, b := range detail {
		if total := b.Total(); total > 0 {
			out[b.ProductType] = total
		}
	}
	return out, nil
}

// BalanceDetail возвращает баланс с разбивкой по уровням
func (l *Ledger) BalanceDetail(ctx context.Context, userID, companyID string) ([]domain.ScopeBalance, error) {
	balances, err := l.store.Credits().Balances(ctx, userID, companyID)
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to read balances: %w", err)
	}
	return balances, nil
}

// ConsumeCredits списывает amount кредитов типа productType в отдельной транзакции
func (l *Ledger) ConsumeCredits(ctx context.Context, productType domain.ProductType, amount int64, releaseID, userID, companyID string) error {
	var entries []domain.CreditLedgerEntry
	err := l.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		entries, err = ConsumeInTx(ctx, tx, productType, amount, releaseID, userID, companyID)
		return err
	})
	if err != nil {
		l.log.Warnw("Credit consumption failed", "error", err, "productType", productType, "amount", amount, "releaseID", releaseID)
		return err
	}
	l.log.Infow("Credits consumed", "productType", productType, "amount", amount, "releaseID", releaseID, "rows", len(entries))
	return nil
}

// ConsumeInTx списывает кредиты внутри переданной транзакции.
// Сначала расходуется баланс бренда, затем пользователя. Если их суммы не хватает,
// ничего не пишется и возвращается InsufficientCreditsError.
func ConsumeInTx(ctx context.Context, tx repository.Tx, productType domain.ProductType, amount int64, releaseID, userID, companyID string) ([]domain.CreditLedgerEntry, error) {
	if amount <= 0 {
		return nil, domain.NewValidationError("amount", "must be positive")
	}

	balance, err := tx.CreditBalance(ctx, userID, companyID, productType)
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to read balance: %w", err)
	}

	brand := max(balance.Brand, 0)
	if companyID == "" {
		brand = 0
	}
	user := max(balance.User, 0)
	if brand+user < amount {
		return nil, &domain.InsufficientCreditsError{ProductType: productType, Requested: amount, Available: brand + user}
	}

	var entries []domain.CreditLedgerEntry
	remaining := amount
	if take := min(brand, remaining); take > 0 {
		entries = append(entries, domain.CreditLedgerEntry{
			UserID:      userID,
			CompanyID:   companyID,
			ProductType: productType,
			Credits:     -take,
			ReleaseID:   releaseID,
		})
		remaining -= take
	}
	if remaining > 0 {
		entries = append(entries, domain.CreditLedgerEntry{
			UserID:      userID,
			ProductType: productType,
			Credits:     -remaining,
			ReleaseID:   releaseID,
		})
	}

	if err := tx.InsertLedgerEntries(ctx, entries...); err != nil {
		return nil, fmt.Errorf("ledger: failed to write consumption: %w", err)
	}
	return entries, nil
}

// Covers проверяет, что баланс покрывает по одному апгрейду каждого типа
func Covers(balance map[domain.ProductType]int64, types []domain.ProductType) bool {
	if len(types) == 0 {
		return false
	}
	for _, t := range types {
		if balance[t] < domain.CreditsPerUpgrade {
			return false
		}
	}
	return true
}
