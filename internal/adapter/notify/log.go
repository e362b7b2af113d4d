package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// LogNotifier writes notifications to the log instead of delivering them.
// Codes are logged in clear text, so it is meant for local development.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

var _ port.Notifier = (*LogNotifier)(nil)

func (l *LogNotifier) NotifyOrder(_ context.Context, event domain.OrderEvent) error {
	l.logger.Info("order notification",
		zap.String("type", string(event.Type)),
		zap.String("order_number", event.OrderNumber),
		zap.String("email", event.Email),
		zap.String("status", string(event.Status)),
		zap.String("payment_status", string(event.PaymentStatus)),
		zap.String("total", event.TotalAmount.StringFixed(2)),
	)
	return nil
}

func (l *LogNotifier) SendOTP(_ context.Context, msg domain.OTPMessage) error {
	l.logger.Info("otp notification",
		zap.String("email", msg.Email),
		zap.String("purpose", string(msg.Purpose)),
		zap.String("code", msg.Code),
		zap.Time("expires_at", msg.ExpiresAt),
	)
	return nil
}
