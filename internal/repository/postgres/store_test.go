package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cenkalti/backoff/v4"
	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
	"github.com/giantcranberry/Newsworthy-sub000/internal/repository"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/logger"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	store := NewStore(sqlx.NewDb(mockDB, "pgx"), logger.NewNop())
	store.backOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
	}
	return store, mock
}

func TestListByPartner(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "partner_id", "type", "name", "description", "price",
		"is_solo_upgrade", "active", "sort_order", "created_at", "updated_at"}).
		AddRow("p1", "partner-1", "exclusive", "Exclusive", "", int64(50000), true, true, 1, now, now).
		AddRow("p2", "partner-1", "yahoo", "Yahoo", "Finance", int64(15000), false, true, 2, now, now)

	mock.ExpectQuery(regexp.QuoteMeta("FROM upgrade_products")).WithArgs("partner-1").WillReturnRows(rows)

	products, err := store.Products().ListByPartner(context.Background(), "partner-1")
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, domain.ProductExclusive, products[0].Type)
	assert.True(t, products[0].IsSoloUpgrade)
	assert.Equal(t, int64(15000), products[1].Price)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReleaseNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM releases")).WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.Releases().GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetDistributionIfUnset(t *testing.T) {
	t.Run("written", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE releases SET distribution")).
			WithArgs("r1", domain.StandardDistribution).
			WillReturnResult(sqlmock.NewResult(0, 1))

		written, err := store.Releases().SetDistributionIfUnset(context.Background(), "r1", domain.StandardDistribution)
		require.NoError(t, err)
		assert.True(t, written)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already set", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE releases SET distribution")).
			WithArgs("r1", domain.StandardDistribution).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("FROM releases")).WithArgs("r1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "company_id", "partner_id", "distribution", "updated_at"}).
				AddRow("r1", "u1", "", "partner-1", "yahoo", time.Now()))

		written, err := store.Releases().SetDistributionIfUnset(context.Background(), "r1", domain.StandardDistribution)
		require.NoError(t, err)
		assert.False(t, written)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBalances(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM credit_ledger")).WithArgs("u1", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"product_type", "brand", "user_credits"}).
			AddRow("exclusive", int64(2), int64(1)).
			AddRow("yahoo", int64(0), int64(3)))

	balances, err := store.Credits().Balances(context.Background(), "u1", "c1")
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, int64(3), balances[0].Total())
	assert.Equal(t, int64(3), balances[1].User)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateIntentDuplicate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_intents")).
		WithArgs("pi_1", "r1", "u1", "exclusive", int64(50000), "usd", "pending").
		WillReturnError(&pgconn.PgError{Code: codeUniqueViolation})

	err := store.Intents().Create(context.Background(), domain.PaymentIntent{
		GatewayID:    "pi_1",
		ReleaseID:    "r1",
		UserID:       "u1",
		ProductTypes: []domain.ProductType{domain.ProductExclusive},
		Amount:       50000,
		Currency:     "usd",
		Status:       domain.IntentStatusPending,
	})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRetriesSerializationFailure(t *testing.T) {
	store, mock := newMockStore(t)

	cas := regexp.QuoteMeta("UPDATE releases SET distribution")

	mock.ExpectBegin()
	mock.ExpectExec(cas).WithArgs("r1", "", "yahoo").WillReturnError(&pgconn.PgError{Code: codeSerializationFailure})
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectExec(cas).WithArgs("r1", "", "yahoo").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	attempts := 0
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		attempts++
		_, err := tx.CompareAndSwapDistribution(ctx, "r1", "", "yahoo")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxDoesNotRetryDomainErrors(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	attempts := 0
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		attempts++
		return &domain.InsufficientCreditsError{ProductType: domain.ProductYahoo, Requested: 1}
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientCredits)
	assert.Equal(t, 1, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockIntentParsesProductTypes(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM payment_intents")+".*FOR UPDATE").WithArgs("pi_1").
		WillReturnRows(sqlmock.NewRows([]string{"gateway_id", "release_id", "user_id", "product_types",
			"amount", "currency", "status", "created_at", "updated_at"}).
			AddRow("pi_1", "r1", "u1", "yahoo,enhanced", int64(30000), "usd", "pending", now, now))
	mock.ExpectCommit()

	var intent domain.PaymentIntent
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		intent, err = tx.LockIntent(ctx, "pi_1")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.ProductType{domain.ProductEnhanced, domain.ProductYahoo}, intent.ProductTypes)
	assert.Equal(t, domain.IntentStatusPending, intent.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertPurchaseRecordsDuplicate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO upgrade_purchases")).
		WillReturnError(&pgconn.PgError{Code: codeUniqueViolation})
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertPurchaseRecords(ctx, domain.PurchaseRecord{
			ReleaseID:   "r1",
			ProductType: domain.ProductYahoo,
			Funding:     domain.FundingCredit,
		})
	})
	assert.True(t, errors.Is(err, repository.ErrDuplicate))
	assert.NoError(t, mock.ExpectationsWereMet())
}
