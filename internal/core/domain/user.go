package domain

import (
	"strings"
	"time"
	"unicode"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Identity is what a verified bearer token proves.
type Identity struct {
	UserID int64
	Role   Role
}

type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *User     `json:"user"`
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

const MinPasswordLength = 8

// ValidatePassword enforces the password strength policy: at least
// MinPasswordLength characters with an upper case letter, a lower case
// letter and a digit.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return Validation("password must be at least 8 characters")
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return Validation("password must contain upper and lower case letters and a digit")
	}
	return nil
}
