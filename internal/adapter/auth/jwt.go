package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

var (
	ErrInvalidToken = domain.NewError(domain.KindAuth, "invalid token")
	ErrExpiredToken = domain.NewError(domain.KindAuth, "token has expired")
)

// Claims are the custom claims carried by a session token.
type Claims struct {
	jwt.RegisteredClaims
	UserID int64       `json:"user_id"`
	Role   domain.Role `json:"role"`
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

// JWTIssuer signs and verifies HS256 session tokens.
type JWTIssuer struct {
	secret     []byte
	issuer     string
	expiration time.Duration
	now        func() time.Time
}

func NewJWTIssuer(cfg JWTConfig) *JWTIssuer {
	if cfg.Expiration <= 0 {
		cfg.Expiration = 24 * time.Hour
	}
	return &JWTIssuer{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		expiration: cfg.Expiration,
		now:        time.Now,
	}
}

var _ port.TokenIssuer = (*JWTIssuer)(nil)

func (j *JWTIssuer) Issue(user *domain.User) (string, time.Time, error) {
	now := j.now()
	expiresAt := now.Add(j.expiration)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    j.issuer,
			Subject:   strconv.FormatInt(user.ID, 10),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID: user.ID,
		Role:   user.Role,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func (j *JWTIssuer) Verify(tokenString string) (*domain.Identity, error) {
	opts := []jwt.ParserOption{jwt.WithTimeFunc(j.now)}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return j.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID <= 0 {
		return nil, ErrInvalidToken
	}
	return &domain.Identity{UserID: claims.UserID, Role: claims.Role}, nil
}
