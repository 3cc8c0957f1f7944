package session

import (
	"context"
	"sync"
	"time"

	"github.com/giantcranberry/Newsworthy-sub000/internal/cart"
	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
)

type memoryEntry struct {
	cart      cart.Cart
	expiresAt time.Time
}

// MemoryStore корзины в памяти процесса
type MemoryStore struct {
	mu      sync.Mutex
	entries map[Key]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore создает хранилище корзин в памяти
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[Key]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Load реализует CartStore
func (s *MemoryStore) Load(ctx context.Context, key Key) (cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || s.now().After(entry.expiresAt) {
		delete(s.entries, key)
		return cart.New(key.ReleaseID), nil
	}
	c := entry.cart
	c.Items = append([]domain.ProductType(nil), c.Items...)
	return c, nil
}

// Save реализует CartStore
func (s *MemoryStore) Save(ctx context.Context, key Key, c cart.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.Items = append([]domain.ProductType(nil), c.Items...)
	s.entries[key] = memoryEntry{cart: c, expiresAt: s.now().Add(s.ttl)}
	return nil
}

// Delete реализует CartStore
func (s *MemoryStore) Delete(ctx context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}
