package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
	"github.com/giantcranberry/Newsworthy-sub000/internal/repository"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

// Коды SQLSTATE, которые обрабатываются отдельно
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

const defaultTxRetries = 5

// Store реализация repository.Store поверх PostgreSQL
type Store struct {
	db      *sqlx.DB
	log     *logger.Logger
	backOff func() backoff.BackOff
}

// NewStore создает новое хранилище PostgreSQL
func NewStore(db *sqlx.DB, log *logger.Logger) *Store {
	return &Store{
		db:  db,
		log: log,
		backOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 20 * time.Millisecond
			b.MaxInterval = 500 * time.Millisecond
			return backoff.WithMaxRetries(b, defaultTxRetries)
		},
	}
}

// Products реализует repository.Store
func (s *Store) Products() repository.ProductRepository { return &productRepo{db: s.db, log: s.log} }

// Releases реализует repository.Store
func (s *Store) Releases() repository.ReleaseRepository { return &releaseRepo{db: s.db, log: s.log} }

// Credits реализует repository.Store
func (s *Store) Credits() repository.CreditRepository { return &creditRepo{db: s.db, log: s.log} }

// Intents реализует repository.Store
func (s *Store) Intents() repository.IntentRepository { return &intentRepo{db: s.db, log: s.log} }

// WithinTx выполняет fn в транзакции SERIALIZABLE. Сбои сериализации и взаимоблокировки
// повторяются с экспоненциальной задержкой, остальные ошибки возвращаются сразу.
func (s *Store) WithinTx(ctx context.Context, fn repository.TxFunc) error {
	attempt := 0
	op := func() error {
		attempt++
		tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to begin transaction: %w", err))
		}

		if err := fn(ctx, &pgTx{tx: tx, log: s.log}); err != nil {
			_ = tx.Rollback()
			if isRetryableTxError(err) {
				s.log.Warnw("Transaction serialization failure, retrying", "attempt", attempt, "error", err)
				return fmt.Errorf("%w: %v", repository.ErrSerialization, err)
			}
			return backoff.Permanent(err)
		}

		if err := tx.Commit(); err != nil {
			if isRetryableTxError(err) {
				s.log.Warnw("Commit serialization failure, retrying", "attempt", attempt, "error", err)
				return fmt.Errorf("%w: %v", repository.ErrSerialization, err)
			}
			return backoff.Permanent(fmt.Errorf("failed to commit transaction: %w", err))
		}
		return nil
	}

	return backoff.Retry(op, backoff.WithContext(s.backOff(), ctx))
}

func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

// queryer общий интерфейс *sqlx.DB и *sqlx.Tx
type queryer interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// --- Каталог ---

const selectProducts = `
	SELECT id, partner_id, product_type AS type, name, COALESCE(description, '') AS description,
	       price, is_solo_upgrade, active, sort_order, created_at, updated_at
	FROM upgrade_products
	WHERE partner_id = $1
	ORDER BY sort_order, product_type`

type productRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

func (r *productRepo) ListByPartner(ctx context.Context, partnerID string) ([]domain.Product, error) {
	var products []domain.Product
	if err := r.db.SelectContext(ctx, &products, selectProducts, partnerID); err != nil {
		r.log.Errorw("Failed to list upgrade products", "error", err, "partnerID", partnerID)
		return nil, fmt.Errorf("repository: failed to list products: %w", err)
	}
	r.log.Debugw("Upgrade products loaded", "partnerID", partnerID, "count", len(products))
	return products, nil
}

// --- Релизы ---

const selectRelease = `
	SELECT id, user_id, COALESCE(company_id, '') AS company_id, partner_id,
	       COALESCE(distribution, '') AS distribution, updated_at
	FROM releases
	WHERE id = $1`

type releaseRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

func (r *releaseRepo) GetByID(ctx context.Context, releaseID string) (domain.Release, error) {
	return getRelease(ctx, r.db, selectRelease, releaseID)
}

func (r *releaseRepo) SetDistributionIfUnset(ctx context.Context, releaseID, value string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE releases SET distribution = $2, updated_at = now()
		WHERE id = $1 AND (distribution IS NULL OR distribution = '')`, releaseID, value)
	if err != nil {
		r.log.Errorw("Failed to set release distribution", "error", err, "releaseID", releaseID)
		return false, fmt.Errorf("repository: failed to set distribution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("repository: failed to get affected rows count: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	// Ни одной строки: либо релиза нет, либо значение уже задано
	if _, err := r.GetByID(ctx, releaseID); err != nil {
		return false, err
	}
	return false, nil
}

func getRelease(ctx context.Context, q queryer, query, releaseID string) (domain.Release, error) {
	var release domain.Release
	if err := q.GetContext(ctx, &release, query, releaseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Release{}, domain.NewNotFoundError("release", releaseID)
		}
		return domain.Release{}, fmt.Errorf("repository: failed to get release: %w", err)
	}
	return release, nil
}

// --- Кредиты ---

type balanceRow struct {
	ProductType domain.ProductType `db:"product_type"`
	Brand       int64              `db:"brand"`
	User        int64              `db:"user_credits"`
}

const selectBalances = `
	SELECT product_type,
	       COALESCE(SUM(credits) FILTER (WHERE company_id = $2), 0) AS brand,
	       COALESCE(SUM(credits) FILTER (WHERE company_id IS NULL AND user_id = $1), 0) AS user_credits
	FROM credit_ledger
	WHERE (company_id IS NULL AND user_id = $1) OR company_id = $2
	GROUP BY product_type
	ORDER BY product_type`

const selectBalance = `
	SELECT COALESCE(SUM(credits) FILTER (WHERE company_id = $2), 0) AS brand,
	       COALESCE(SUM(credits) FILTER (WHERE company_id IS NULL AND user_id = $1), 0) AS user_credits
	FROM credit_ledger
	WHERE product_type = $3 AND ((company_id IS NULL AND user_id = $1) OR company_id = $2)`

type creditRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

func (r *creditRepo) Balances(ctx context.Context, userID, companyID string) ([]domain.ScopeBalance, error) {
	var rows []balanceRow
	if err := r.db.SelectContext(ctx, &rows, selectBalances, userID, companyID); err != nil {
		r.log.Errorw("Failed to read credit balances", "error", err, "userID", userID, "companyID", companyID)
		return nil, fmt.Errorf("repository: failed to read balances: %w", err)
	}
	out := make([]domain.ScopeBalance, len(rows))
	for i, row := range rows {
		out[i] = domain.ScopeBalance{ProductType: row.ProductType, Brand: row.Brand, User: row.User}
	}
	return out, nil
}

// --- Платежные намерения ---

// intentRow строка payment_intents; типы продуктов хранятся строкой через запятую
type intentRow struct {
	domain.PaymentIntent
	ProductTypesRaw string `db:"product_types"`
}

func (r intentRow) toDomain() domain.PaymentIntent {
	intent := r.PaymentIntent
	intent.ProductTypes = domain.ParseDistribution(r.ProductTypesRaw).Types()
	return intent
}

const selectIntent = `
	SELECT gateway_id, release_id, user_id, product_types, amount, currency, status, created_at, updated_at
	FROM payment_intents
	WHERE gateway_id = $1`

type intentRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

func (r *intentRepo) Create(ctx context.Context, intent domain.PaymentIntent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_intents (gateway_id, release_id, user_id, product_types, amount, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())`,
		intent.GatewayID, intent.ReleaseID, intent.UserID,
		domain.NewDistribution(intent.ProductTypes...).String(),
		intent.Amount, intent.Currency, string(intent.Status))
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		r.log.Errorw("Failed to create payment intent", "error", err, "intentID", intent.GatewayID)
		return fmt.Errorf("repository: failed to create payment intent: %w", err)
	}
	r.log.Debugw("Payment intent stored", "intentID", intent.GatewayID, "releaseID", intent.ReleaseID)
	return nil
}

func (r *intentRepo) GetByGatewayID(ctx context.Context, gatewayID string) (domain.PaymentIntent, error) {
	return getIntent(ctx, r.db, selectIntent, gatewayID)
}

func getIntent(ctx context.Context, q queryer, query, gatewayID string) (domain.PaymentIntent, error) {
	var row intentRow
	if err := q.GetContext(ctx, &row, query, gatewayID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PaymentIntent{}, domain.NewNotFoundError("payment intent", gatewayID)
		}
		return domain.PaymentIntent{}, fmt.Errorf("repository: failed to get payment intent: %w", err)
	}
	return row.toDomain(), nil
}

// --- Транзакция ---

type pgTx struct {
	tx  *sqlx.Tx
	log *logger.Logger
}

func (t *pgTx) LockRelease(ctx context.Context, releaseID string) (domain.Release, error) {
	return getRelease(ctx, t.tx, selectRelease+" FOR UPDATE", releaseID)
}

func (t *pgTx) CompareAndSwapDistribution(ctx context.Context, releaseID, expected, next string) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE releases SET distribution = $3, updated_at = now()
		WHERE id = $1 AND COALESCE(distribution, '') = $2`, releaseID, expected, next)
	if err != nil {
		return false, fmt.Errorf("repository: failed to update distribution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("repository: failed to get affected rows count: %w", err)
	}
	return n == 1, nil
}

func (t *pgTx) CreditBalance(ctx context.Context, userID, companyID string, productType domain.ProductType) (domain.ScopeBalance, error) {
	var row balanceRow
	if err := t.tx.GetContext(ctx, &row, selectBalance, userID, companyID, string(productType)); err != nil {
		return domain.ScopeBalance{}, fmt.Errorf("repository: failed to read balance: %w", err)
	}
	return domain.ScopeBalance{ProductType: productType, Brand: row.Brand, User: row.User}, nil
}

func (t *pgTx) InsertLedgerEntries(ctx context.Context, entries ...domain.CreditLedgerEntry) error {
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO credit_ledger (id, user_id, company_id, product_type, credits, release_id, created_at)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), now())`,
			e.ID, e.UserID, e.CompanyID, string(e.ProductType), e.Credits, e.ReleaseID)
		if err != nil {
			return fmt.Errorf("repository: failed to insert ledger entry: %w", err)
		}
	}
	return nil
}

func (t *pgTx) LockIntent(ctx context.Context, gatewayID string) (domain.PaymentIntent, error) {
	return getIntent(ctx, t.tx, selectIntent+" FOR UPDATE", gatewayID)
}

func (t *pgTx) UpdateIntentStatus(ctx context.Context, gatewayID string, status domain.IntentStatus) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE payment_intents SET status = $2, updated_at = now() WHERE gateway_id = $1`,
		gatewayID, string(status))
	if err != nil {
		return fmt.Errorf("repository: failed to update payment intent status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository: failed to get affected rows count: %w", err)
	}
	if n == 0 {
		return domain.NewNotFoundError("payment intent", gatewayID)
	}
	return nil
}

func (t *pgTx) PurchaseRecordsByIntent(ctx context.Context, gatewayID string) ([]domain.PurchaseRecord, error) {
	var records []domain.PurchaseRecord
	err := t.tx.SelectContext(ctx, &records, `
		SELECT id, release_id, product_type, amount_charged, credits_consumed, funding,
		       COALESCE(intent_id, '') AS intent_id, created_at
		FROM upgrade_purchases
		WHERE intent_id = $1
		ORDER BY product_type`, gatewayID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to list purchase records: %w", err)
	}
	return records, nil
}

func (t *pgTx) InsertPurchaseRecords(ctx context.Context, records ...domain.PurchaseRecord) error {
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO upgrade_purchases (id, release_id, product_type, amount_charged, credits_consumed, funding, intent_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), now())`,
			rec.ID, rec.ReleaseID, string(rec.ProductType), rec.AmountCharged, rec.CreditsConsumed,
			string(rec.Funding), rec.IntentID)
		if err != nil {
			if isUniqueViolation(err) {
				return repository.ErrDuplicate
			}
			return fmt.Errorf("repository: failed to insert purchase record: %w", err)
		}
	}
	return nil
}
