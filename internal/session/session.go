// Package session хранит корзины апгрейдов между запросами одной сессии пользователя.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/giantcranberry/Newsworthy-sub000/internal/cart"
)

// DefaultTTL время жизни корзины без активности
const DefaultTTL = 2 * time.Hour

// Key идентификатор корзины: пользователь, релиз и сессия
type Key struct {
	UserID    string
	ReleaseID string
	SessionID string
}

func (k Key) String() string {
	return fmt.Sprintf("upgrade_cart:%s:%s:%s", k.UserID, k.ReleaseID, k.SessionID)
}

// CartStore хранилище корзин. Отсутствующая или истекшая корзина загружается пустой.
type CartStore interface {
	Load(ctx context.Context, key Key) (cart.Cart, error)
	Save(ctx context.Context, key Key, c cart.Cart) error
	Delete(ctx context.Context, key Key) error
}
