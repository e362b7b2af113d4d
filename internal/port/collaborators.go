package port

import (
	"context"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
)

// Notifier delivers messages on a best-effort basis.
type Notifier interface {
	NotifyOrder(ctx context.Context, event domain.OrderEvent) error
	SendOTP(ctx context.Context, msg domain.OTPMessage) error
}

type TokenIssuer interface {
	Issue(user *domain.User) (token string, expiresAt time.Time, err error)
	Verify(token string) (*domain.Identity, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}
