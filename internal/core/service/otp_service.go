package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

type OTPConfig struct {
	TTL         time.Duration
	MaxAttempts int
}

type OTPService struct {
	users    port.UserRepository
	store    port.OTPStore
	notifier port.Notifier
	tokens   port.TokenIssuer
	hasher   port.PasswordHasher
	logger   *zap.Logger

	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
	newCode     func() (string, error)
}

func NewOTPService(
	users port.UserRepository,
	store port.OTPStore,
	notifier port.Notifier,
	tokens port.TokenIssuer,
	hasher port.PasswordHasher,
	logger *zap.Logger,
	cfg OTPConfig,
) *OTPService {
	if cfg.TTL <= 0 {
		cfg.TTL = domain.DefaultOTPTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = domain.DefaultOTPMaxAttempts
	}
	return &OTPService{
		users:       users,
		store:       store,
		notifier:    notifier,
		tokens:      tokens,
		hasher:      hasher,
		logger:      logger,
		ttl:         cfg.TTL,
		maxAttempts: cfg.MaxAttempts,
		now:         time.Now,
		newCode:     generateCode,
	}
}

var codeRange = big.NewInt(900000)

// generateCode returns a uniformly random code in [100000, 999999].
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeRange)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return strconv.FormatInt(n.Int64()+100000, 10), nil
}

// Send issues a fresh code for email, replacing any earlier one, and hands it
// to the notifier. If delivery fails the stored code stays valid and
// DELIVERY_FAILED is returned.
func (s *OTPService) Send(ctx context.Context, email string, purpose domain.OTPPurpose) error {
	if !purpose.Valid() {
		return domain.Validation(fmt.Sprintf("unknown otp purpose %q", purpose))
	}
	email = domain.NormalizeEmail(email)
	if email == "" {
		return domain.Validation("email is required")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return domain.NotFound("no account is registered with this email")
		}
		return err
	}

	code, err := s.newCode()
	if err != nil {
		return err
	}
	expiresAt := s.now().Add(s.ttl)
	entry := domain.OTPEntry{Code: code, UserID: user.ID, ExpiresAt: expiresAt}
	if err := s.store.Save(ctx, domain.OTPKey(email, purpose), entry); err != nil {
		return err
	}

	msg := domain.OTPMessage{Email: email, Code: code, Purpose: purpose, ExpiresAt: expiresAt}
	if err := s.notifier.SendOTP(ctx, msg); err != nil {
		s.logger.Error("otp delivery failed",
			zap.String("email", email),
			zap.String("purpose", string(purpose)),
			zap.Error(err),
		)
		return domain.WrapError(domain.KindDeliveryFailed, "failed to deliver the code, try again", err)
	}

	s.logger.Info("otp issued",
		zap.Int64("user_id", user.ID),
		zap.String("purpose", string(purpose)),
		zap.Time("expires_at", expiresAt),
	)
	return nil
}

// Verify checks code against the active entry for email and purpose. A
// match consumes the entry; a mismatch counts against the attempt budget.
func (s *OTPService) Verify(ctx context.Context, email, code string, purpose domain.OTPPurpose) (*domain.User, error) {
	if !purpose.Valid() {
		return nil, domain.Validation(fmt.Sprintf("unknown otp purpose %q", purpose))
	}
	email = domain.NormalizeEmail(email)
	if email == "" || code == "" {
		return nil, domain.Validation("email and code are required")
	}

	res, err := s.store.Verify(ctx, domain.OTPKey(email, purpose), code, s.now(), s.maxAttempts)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		s.logger.Info("otp rejected",
			zap.String("email", email),
			zap.String("purpose", string(purpose)),
			zap.String("reason", string(domain.KindOf(err))),
		)
		return nil, err
	}

	return s.users.GetUserByID(ctx, res.UserID)
}

// Login exchanges a valid login code for a session token.
func (s *OTPService) Login(ctx context.Context, email, code string) (*domain.Session, error) {
	user, err := s.Verify(ctx, email, code, domain.OTPPurposeLogin)
	if err != nil {
		return nil, err
	}
	return newSession(s.tokens, user)
}

// ResetPassword checks the new password before touching the code so that a
// weak password does not burn it.
func (s *OTPService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if err := domain.ValidatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.Verify(ctx, email, code, domain.OTPPurposePasswordReset)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}

	s.logger.Info("password reset", zap.Int64("user_id", user.ID))
	return nil
}

func newSession(tokens port.TokenIssuer, user *domain.User) (*domain.Session, error) {
	token, expiresAt, err := tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &domain.Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}
