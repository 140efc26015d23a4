package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultSessionTTL   = 12 * time.Hour
	adminSessionIssuer  = "runway-admin"
	adminSessionSubject = "admin"
)

var (
	// ErrMissingAdminKey indicates the shared admin key was not configured.
	ErrMissingAdminKey = errors.New("auth: admin key required")
	// ErrMissingSigningSecret indicates the session signing secret was not configured.
	ErrMissingSigningSecret = errors.New("auth: signing secret required")
	// ErrUnauthorized indicates a wrong admin key or an invalid session token.
	ErrUnauthorized = errors.New("auth: unauthorized")
)

// AdminSessionsConfig configures the admin session manager.
type AdminSessionsConfig struct {
	AdminKey      string
	SigningSecret []byte
	SessionTTL    time.Duration
	Clock         func() time.Time
}

// AdminSessions promotes callers presenting the shared admin key to a
// privileged session, carried as a signed HS256 token for its lifetime.
type AdminSessions struct {
	adminKey      []byte
	signingSecret []byte
	sessionTTL    time.Duration
	clock         func() time.Time
}

// NewAdminSessions constructs the session manager with sane defaults.
func NewAdminSessions(cfg AdminSessionsConfig) (*AdminSessions, error) {
	if strings.TrimSpace(cfg.AdminKey) == "" {
		return nil, ErrMissingAdminKey
	}
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningSecret
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &AdminSessions{
		adminKey:      []byte(cfg.AdminKey),
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		sessionTTL:    ttl,
		clock:         clock,
	}, nil
}

// Login compares the presented key against the shared secret and, on success,
// issues a signed session token and its expiry.
func (s *AdminSessions) Login(presentedKey string) (string, time.Time, error) {
	if subtle.ConstantTimeCompare([]byte(presentedKey), s.adminKey) != 1 {
		return "", time.Time{}, ErrUnauthorized
	}

	now := s.clock().UTC()
	expiresAt := now.Add(s.sessionTTL)
	claims := jwt.RegisteredClaims{
		Subject:   adminSessionSubject,
		Issuer:    adminSessionIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate ensures the session token is well formed, signed, and unexpired.
func (s *AdminSessions) Validate(tokenString string) error {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return ErrUnauthorized
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrUnauthorized, t.Method.Alg())
			}
			return s.signingSecret, nil
		},
		jwt.WithIssuer(adminSessionIssuer),
		jwt.WithTimeFunc(s.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if parsed == nil || !parsed.Valid || claims.Subject != adminSessionSubject {
		return ErrUnauthorized
	}
	return nil
}
