package domain

import (
	"crypto/subtle"
	"time"
)

type OTPPurpose string

const (
	OTPPurposeLogin         OTPPurpose = "login"
	OTPPurposePasswordReset OTPPurpose = "password-reset"
)

const (
	DefaultOTPTTL         = 10 * time.Minute
	DefaultOTPMaxAttempts = 5
)

func (p OTPPurpose) Valid() bool {
	return p == OTPPurposeLogin || p == OTPPurposePasswordReset
}

// OTPKey is the store key for email under purpose. Login codes are keyed by
// the normalized email, reset codes by "reset:<email>".
func OTPKey(email string, purpose OTPPurpose) string {
	email = NormalizeEmail(email)
	if purpose == OTPPurposePasswordReset {
		return "reset:" + email
	}
	return email
}

type OTPEntry struct {
	Code      string
	UserID    int64
	ExpiresAt time.Time
	Attempts  int
}

type OTPOutcome int

const (
	OTPVerified OTPOutcome = iota
	OTPNotFound
	OTPExpired
	OTPTooManyAttempts
	OTPMismatch
)

type OTPResult struct {
	Outcome           OTPOutcome
	UserID            int64
	RemainingAttempts int
}

// Check applies one verify attempt to e and reports whether the entry
// survives it. Expired and exhausted entries are dropped before the code is
// compared; a mismatch increments Attempts in place.
func (e *OTPEntry) Check(code string, now time.Time, maxAttempts int) (OTPResult, bool) {
	if now.After(e.ExpiresAt) {
		return OTPResult{Outcome: OTPExpired}, false
	}
	if e.Attempts >= maxAttempts {
		return OTPResult{Outcome: OTPTooManyAttempts}, false
	}
	if subtle.ConstantTimeCompare([]byte(e.Code), []byte(code)) != 1 {
		e.Attempts++
		return OTPResult{Outcome: OTPMismatch, RemainingAttempts: maxAttempts - e.Attempts}, true
	}
	return OTPResult{Outcome: OTPVerified, UserID: e.UserID}, false
}

// Err converts a failed outcome into its error; it is nil for OTPVerified.
func (r OTPResult) Err() error {
	switch r.Outcome {
	case OTPVerified:
		return nil
	case OTPExpired:
		return ErrOTPExpired
	case OTPTooManyAttempts:
		return ErrOTPTooManyAttempts
	case OTPMismatch:
		return ErrOTPMismatch.With("remainingAttempts", r.RemainingAttempts)
	default:
		return ErrOTPNotFound
	}
}

// OTPMessage is handed to the delivery collaborator after a code is issued.
type OTPMessage struct {
	Email     string     `json:"email"`
	Code      string     `json:"code"`
	Purpose   OTPPurpose `json:"purpose"`
	ExpiresAt time.Time  `json:"expiresAt"`
}
