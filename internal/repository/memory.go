package repository

import (
	"context"
	"sync"
	"time"

	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/logger"
	"github.com/google/uuid"
)

// memState данные in-memory хранилища
type memState struct {
	products  map[string][]domain.Product
	releases  map[string]domain.Release
	ledger    []domain.CreditLedgerEntry
	intents   map[string]domain.PaymentIntent
	purchases []domain.PurchaseRecord
}

func (s *memState) clone() *memState {
	out := &memState{
		products:  s.products, // каталог не меняется внутри транзакций
		releases:  make(map[string]domain.Release, len(s.releases)),
		ledger:    append([]domain.CreditLedgerEntry(nil), s.ledger...),
		intents:   make(map[string]domain.PaymentIntent, len(s.intents)),
		purchases: append([]domain.PurchaseRecord(nil), s.purchases...),
	}
	for k, v := range s.releases {
		out.releases[k] = v
	}
	for k, v := range s.intents {
		v.ProductTypes = append([]domain.ProductType(nil), v.ProductTypes...)
		out.intents[k] = v
	}
	return out
}

// InMemoryStore реализация Store в памяти. Транзакции выполняются строго последовательно
// над копией состояния и применяются целиком при успехе.
type InMemoryStore struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	state *memState
	log   *logger.Logger
}

// NewInMemoryStore создает новое хранилище в памяти
func NewInMemoryStore(log *logger.Logger) *InMemoryStore {
	return &InMemoryStore{
		state: &memState{
			products: make(map[string][]domain.Product),
			releases: make(map[string]domain.Release),
			intents:  make(map[string]domain.PaymentIntent),
		},
		log: log,
	}
}

// Products реализует Store
func (s *InMemoryStore) Products() ProductRepository { return memProducts{s} }

// Releases реализует Store
func (s *InMemoryStore) Releases() ReleaseRepository { return memReleases{s} }

// Credits реализует Store
func (s *InMemoryStore) Credits() CreditRepository { return memCredits{s} }

// Intents реализует Store
func (s *InMemoryStore) Intents() IntentRepository { return memIntents{s} }

// WithinTx реализует Store
func (s *InMemoryStore) WithinTx(ctx context.Context, fn TxFunc) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()

	if err := fn(ctx, &memTx{state: snapshot}); err != nil {
		s.log.Debugw("In-memory transaction rolled back", "error", err)
		return err
	}

	s.mu.Lock()
	s.state = snapshot
	s.mu.Unlock()
	return nil
}

// --- Методы наполнения (каталог, релизы и начисления кредитов принадлежат внешним системам) ---

// AddProducts добавляет продукты партнера
func (s *InMemoryStore) AddProducts(partnerID string, products ...domain.Product) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range products {
		p.PartnerID = partnerID
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		s.state.products[partnerID] = append(s.state.products[partnerID], p)
	}
}

// PutRelease создает или заменяет релиз
func (s *InMemoryStore) PutRelease(release domain.Release) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	release.UpdatedAt = time.Now()
	s.state.releases[release.ID] = release
}

// GrantCredits добавляет положительную строку в журнал кредитов
func (s *InMemoryStore) GrantCredits(userID, companyID string, productType domain.ProductType, credits int64) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.ledger = append(s.state.ledger, domain.CreditLedgerEntry{
		ID:          uuid.NewString(),
		UserID:      userID,
		CompanyID:   companyID,
		ProductType: productType,
		Credits:     credits,
		CreatedAt:   time.Now(),
	})
}

// LedgerEntries возвращает копию журнала кредитов
func (s *InMemoryStore) LedgerEntries() []domain.CreditLedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.CreditLedgerEntry(nil), s.state.ledger...)
}

// PurchaseRecords возвращает записи покупок релиза
func (s *InMemoryStore) PurchaseRecords(releaseID string) []domain.PurchaseRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.PurchaseRecord
	for _, r := range s.state.purchases {
		if r.ReleaseID == releaseID {
			out = append(out, r)
		}
	}
	return out
}

// --- Репозитории вне транзакций ---

type memProducts struct{ s *InMemoryStore }

func (r memProducts) ListByPartner(ctx context.Context, partnerID string) ([]domain.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]domain.Product(nil), r.s.state.products[partnerID]...), nil
}

type memReleases struct{ s *InMemoryStore }

func (r memReleases) GetByID(ctx context.Context, releaseID string) (domain.Release, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	release, ok := r.s.state.releases[releaseID]
	if !ok {
		return domain.Release{}, domain.NewNotFoundError("release", releaseID)
	}
	return release, nil
}

func (r memReleases) SetDistributionIfUnset(ctx context.Context, releaseID, value string) (bool, error) {
	r.s.txMu.Lock()
	defer r.s.txMu.Unlock()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	release, ok := r.s.state.releases[releaseID]
	if !ok {
		return false, domain.NewNotFoundError("release", releaseID)
	}
	if !release.DistributionUnset() {
		return false, nil
	}
	release.Distribution = value
	release.UpdatedAt = time.Now()
	r.s.state.releases[releaseID] = release
	return true, nil
}

type memCredits struct{ s *InMemoryStore }

func (r memCredits) Balances(ctx context.Context, userID, companyID string) ([]domain.ScopeBalance, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return sumBalances(r.s.state.ledger, userID, companyID, ""), nil
}

type memIntents struct{ s *InMemoryStore }

func (r memIntents) Create(ctx context.Context, intent domain.PaymentIntent) error {
	r.s.txMu.Lock()
	defer r.s.txMu.Unlock()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.state.intents[intent.GatewayID]; exists {
		return ErrDuplicate
	}
	now := time.Now()
	intent.CreatedAt = now
	intent.UpdatedAt = now
	intent.ProductTypes = append([]domain.ProductType(nil), intent.ProductTypes...)
	r.s.state.intents[intent.GatewayID] = intent
	return nil
}

func (r memIntents) GetByGatewayID(ctx context.Context, gatewayID string) (domain.PaymentIntent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	intent, ok := r.s.state.intents[gatewayID]
	if !ok {
		return domain.PaymentIntent{}, domain.NewNotFoundError("payment intent", gatewayID)
	}
	return intent, nil
}

// --- Транзакция ---

type memTx struct {
	state *memState
}

func (t *memTx) LockRelease(ctx context.Context, releaseID string) (domain.Release, error) {
	release, ok := t.state.releases[releaseID]
	if !ok {
		return domain.Release{}, domain.NewNotFoundError("release", releaseID)
	}
	return release, nil
}

func (t *memTx) CompareAndSwapDistribution(ctx context.Context, releaseID, expected, next string) (bool, error) {
	release, ok := t.state.releases[releaseID]
	if !ok {
		return false, domain.NewNotFoundError("release", releaseID)
	}
	if release.Distribution != expected {
		return false, nil
	}
	release.Distribution = next
	release.UpdatedAt = time.Now()
	t.state.releases[releaseID] = release
	return true, nil
}

func (t *memTx) CreditBalance(ctx context.Context, userID, companyID string, productType domain.ProductType) (domain.ScopeBalance, error) {
	balances := sumBalances(t.state.ledger, userID, companyID, productType)
	if len(balances) == 0 {
		return domain.ScopeBalance{ProductType: productType}, nil
	}
	return balances[0], nil
}

func (t *memTx) InsertLedgerEntries(ctx context.Context, entries ...domain.CreditLedgerEntry) error {
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now()
		}
		t.state.ledger = append(t.state.ledger, e)
	}
	return nil
}

func (t *memTx) LockIntent(ctx context.Context, gatewayID string) (domain.PaymentIntent, error) {
	intent, ok := t.state.intents[gatewayID]
	if !ok {
		return domain.PaymentIntent{}, domain.NewNotFoundError("payment intent", gatewayID)
	}
	return intent, nil
}

func (t *memTx) UpdateIntentStatus(ctx context.Context, gatewayID string, status domain.IntentStatus) error {
	intent, ok := t.state.intents[gatewayID]
	if !ok {
		return domain.NewNotFoundError("payment intent", gatewayID)
	}
	intent.Status = status
	intent.UpdatedAt = time.Now()
	t.state.intents[gatewayID] = intent
	return nil
}

func (t *memTx) PurchaseRecordsByIntent(ctx context.Context, gatewayID string) ([]domain.PurchaseRecord, error) {
	var out []domain.PurchaseRecord
	for _, r := range t.state.purchases {
		if r.IntentID == gatewayID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *memTx) InsertPurchaseRecords(ctx context.Context, records ...domain.PurchaseRecord) error {
	for _, rec := range records {
		for _, existing := range t.state.purchases {
			if existing.ReleaseID == rec.ReleaseID && existing.ProductType == rec.ProductType {
				return ErrDuplicate
			}
		}
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now()
		}
		t.state.purchases = append(t.state.purchases, rec)
	}
	return nil
}

// sumBalances суммирует журнал по типам продуктов для бренда и пользователя.
// Пустой productType означает "все типы".
func sumBalances(ledger []domain.CreditLedgerEntry, userID, companyID string, productType domain.ProductType) []domain.ScopeBalance {
	index := make(map[domain.ProductType]int)
	var out []domain.ScopeBalance
	for _, e := range ledger {
		if productType != "" && e.ProductType != productType {
			continue
		}
		brand := companyID != "" && e.CompanyID == companyID
		user := e.CompanyID == "" && e.UserID == userID
		if !brand && !user {
			continue
		}
		i, ok := index[e.ProductType]
		if !ok {
			i = len(out)
			index[e.ProductType] = i
			out = append(out, domain.ScopeBalance{ProductType: e.ProductType})
		}
		if brand {
			out[i].Brand += e.Credits
		} else {
			out[i].User += e.Credits
		}
	}
	return out
}
