// Package adminsession authenticates the single configured admin identity
// and issues the signed, stateless session token carried by the admin cookie.
package adminsession

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL caps how long an admin session token stays valid.
const TokenTTL = 12 * time.Hour

// ErrInvalidToken covers malformed, forged, expired, or mismatched tokens.
// Callers surface nothing more specific to avoid credential probing.
var ErrInvalidToken = errors.New("invalid session token")

// Config holds the admin credential and signing material. No server-side
// session state exists: the token is self-contained.
type Config struct {
	Username string
	Password string
	Secret   []byte
	Now      func() time.Time
}

// Validate checks the manager is usable.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return fmt.Errorf("admin username is required")
	}
	if c.Password == "" {
		return fmt.Errorf("admin password is required")
	}
	if len(c.Secret) < 16 {
		return fmt.Errorf("session secret must be at least 16 bytes")
	}
	return nil
}

// Authenticate compares the supplied credentials against the configured
// admin identity in constant time.
func (c Config) Authenticate(username, password string) bool {
	userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(c.Username)) == 1
	passMatch := subtle.ConstantTimeCompare([]byte(password), []byte(c.Password)) == 1
	return userMatch && passMatch
}

// IssueToken signs a session token for the configured admin, returning the
// token and its expiry.
func (c Config) IssueToken() (string, time.Time, error) {
	now := c.now()
	expiresAt := now.Add(TokenTTL)

	claims := jwt.RegisteredClaims{
		Subject:   c.Username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return token, expiresAt, nil
}

// VerifyToken recomputes the signature over the token, then checks the
// embedded identity and expiry. Any failure collapses to ErrInvalidToken.
func (c Config) VerifyToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidToken
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.Secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return ErrInvalidToken
	}
	if claims.Subject != c.Username {
		return ErrInvalidToken
	}
	return nil
}

func (c Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
