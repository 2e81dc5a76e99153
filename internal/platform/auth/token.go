package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	// ErrTokenExpired signals that the provided session token has expired.
	ErrTokenExpired = errors.New("auth: session token expired")
	// ErrTokenInvalid signals that the provided session token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: session token invalid")
)

// SessionClaims is the JWT claim set carried by issued session tokens.
type SessionClaims struct {
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// SessionManager issues and verifies HMAC-signed session tokens.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

// SessionManagerDeps configures a SessionManager.
type SessionManagerDeps struct {
	Secret string
	TTL    time.Duration
	Clock  func() time.Time
}

// NewSessionManager validates dependencies and builds a SessionManager.
func NewSessionManager(deps SessionManagerDeps) (*SessionManager, error) {
	if strings.TrimSpace(deps.Secret) == "" {
		return nil, errors.New("auth: session secret is required")
	}
	if deps.TTL <= 0 {
		return nil, errors.New("auth: session ttl must be positive")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SessionManager{
		secret: []byte(deps.Secret),
		ttl:    deps.TTL,
		clock:  clock,
	}, nil
}

// Issue creates a signed session token for the given principal.
func (m *SessionManager) Issue(uid, email, role string) (string, error) {
	if strings.TrimSpace(uid) == "" {
		return "", errors.New("auth: uid is required")
	}
	now := m.clock().UTC()
	claims := SessionClaims{
		Role:  strings.ToLower(strings.TrimSpace(role)),
		Email: strings.TrimSpace(email),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing session token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token, returning the embedded identity.
// Time-based claims are checked against the injected clock.
func (m *SessionManager) Verify(tokenStr string) (*Identity, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return m.secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrTokenInvalid
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing expiry", ErrTokenInvalid)
	}
	now := m.clock().UTC()
	if !now.Before(claims.ExpiresAt.Time) {
		return nil, fmt.Errorf("%w: expired at %s", ErrTokenExpired, claims.ExpiresAt.Time.UTC().Format(time.RFC3339))
	}

	identity := &Identity{
		UID:   claims.Subject,
		Email: claims.Email,
	}
	if role := strings.ToLower(strings.TrimSpace(claims.Role)); role != "" {
		identity.Roles = []string{role}
	}
	return identity, nil
}

