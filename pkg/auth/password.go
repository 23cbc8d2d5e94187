package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost     = 12
	MinPasswordLen = 8
	MaxPasswordLen = 72 // bcrypt ignores bytes past 72
)

// ErrWeakPassword is returned for any policy violation. The failing rule is
// kept on PasswordValidationError for logs and never shown to the client.
var ErrWeakPassword = errors.New("invalid password")

type PasswordValidationError struct {
	Rules []string
}

func (e *PasswordValidationError) Error() string { return ErrWeakPassword.Error() }

func (e *PasswordValidationError) Unwrap() error { return ErrWeakPassword }

// PasswordPolicy is applied when accounts are provisioned. Login never
// validates against it.
type PasswordPolicy struct {
	MinLen       int
	MaxLen       int
	RequireMixed bool
	Denylist     map[string]struct{}
}

var defaultDenylist = map[string]struct{}{
	"password": {}, "12345678": {}, "qwerty123": {}, "password123": {},
	"password123!": {}, "letmein1!": {}, "welcome1!": {}, "passw0rd": {},
	"p@ssw0rd": {}, "admin123!": {},
}

// DefaultPolicy requires 8 to 72 bytes mixing case and digits
func DefaultPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLen:       MinPasswordLen,
		MaxLen:       MaxPasswordLen,
		RequireMixed: true,
		Denylist:     defaultDenylist,
	}
}

func (p PasswordPolicy) Validate(password string) error {
	var rules []string

	switch {
	case len(password) < p.MinLen:
		rules = append(rules, fmt.Sprintf("shorter than %d bytes", p.MinLen))
	case p.MaxLen > 0 && len(password) > p.MaxLen:
		rules = append(rules, fmt.Sprintf("longer than %d bytes", p.MaxLen))
	}

	if p.RequireMixed && !mixed(password) {
		rules = append(rules, "needs upper case, lower case and a digit")
	}
	if _, bad := p.Denylist[strings.ToLower(password)]; bad {
		rules = append(rules, "denylisted")
	}

	if len(rules) > 0 {
		return &PasswordValidationError{Rules: rules}
	}
	return nil
}

func mixed(s string) bool {
	var upper, lower, digit bool
	for _, r := range s {
		upper = upper || unicode.IsUpper(r)
		lower = lower || unicode.IsLower(r)
		digit = digit || unicode.IsDigit(r)
	}
	return upper && lower && digit
}

// ValidatePassword checks password against DefaultPolicy
func ValidatePassword(password string) error {
	return DefaultPolicy().Validate(password)
}

func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(b), nil
}

// VerifyPassword reports whether password matches hash. A mismatch is
// (false, nil). A malformed hash is an error so storage corruption is
// never counted as a failed attempt.
func VerifyPassword(hash, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("failed to verify password: %w", err)
	}
}

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// VerifyDummy spends one bcrypt comparison at BcryptCost and discards the
// result. Logins for unknown accounts call it so they cost the same as a
// wrong password.
func VerifyDummy(password string) {
	dummyOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("gatekeeper-dummy"), BcryptCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}
