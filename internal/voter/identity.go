package voter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const maxTokenLength = 190

// ErrInvalidToken indicates a voter token that is empty or exceeds storage bounds.
var ErrInvalidToken = errors.New("voter: invalid token")

// IDProvider issues fresh opaque voter identifiers.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// Service mints and normalizes opaque voter identifiers. The transport layer
// carries them in a long-lived cookie; the same client presents the same
// identifier across requests once issued.
type Service struct {
	idProvider IDProvider
}

// NewService constructs the identity service, defaulting to UUIDv7 tokens.
func NewService(idProvider IDProvider) *Service {
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}
	return &Service{idProvider: idProvider}
}

// Mint issues a new voter identifier for a first-contact client.
func (s *Service) Mint() (string, error) {
	return s.idProvider.NewID()
}

// Normalize validates a previously issued token echoed back by a client.
// Any non-empty token within storage bounds is accepted; the cookie contract
// trusts the client to echo what it was issued.
func Normalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidToken)
	}
	if len(trimmed) > maxTokenLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidToken, maxTokenLength)
	}
	return trimmed, nil
}
