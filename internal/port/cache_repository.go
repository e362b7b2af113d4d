package port

import (
	"context"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
)

// OTPStore keeps issued one-time codes. Verify must apply
// domain.OTPEntry.Check atomically per key so that concurrent attempts never
// lose an attempt increment.
type OTPStore interface {
	// Save stores entry under key, replacing any previous entry.
	Save(ctx context.Context, key string, entry domain.OTPEntry) error

	// Verify consumes the entry unless the attempt was a mismatch with
	// attempts left.
	Verify(ctx context.Context, key, code string, now time.Time, maxAttempts int) (domain.OTPResult, error)
}
