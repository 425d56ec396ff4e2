// Package auth extracts the owning user from the access token issued by the
// remote service.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims are the registered claims plus the UserID some issuers use instead
// of the subject.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id,omitempty"`
}

// OwnerFromToken returns the owner id carried by tokenString. The signature is
// not checked: the token is verified by the service that issued it and is
// only used here to scope local content to its owner.
func OwnerFromToken(tokenString string, now time.Time) (string, error) {
	claims := &Claims{}

	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return "", fmt.Errorf("%w: expired at %s", ErrInvalidToken, claims.ExpiresAt.Time.Format(time.RFC3339))
	}

	owner := claims.Subject
	if owner == "" {
		owner = claims.UserID
	}
	if owner == "" {
		return "", fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return owner, nil
}
