package desktop

import (
	"errors"
	"strings"
)

// ErrInvalidToken is returned by validators when a presented token is not
// acceptable.
var ErrInvalidToken = errors.New("desktop: invalid token")

// TokenValidator resolves a presented token to the user key it authorizes.
// Real deployments plug in validation against the identity/session store.
type TokenValidator interface {
	Validate(token string) (userKey string, err error)
}

// StaticValidator accepts any non-empty token and derives the user key from
// the portion before the first colon. It preserves the permissive development
// behavior and must be replaced for multi-user deployments.
type StaticValidator struct{}

// Validate implements TokenValidator.
func (StaticValidator) Validate(token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	userKey, _, _ := strings.Cut(token, ":")
	return userKey, nil
}
