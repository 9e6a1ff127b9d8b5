package auth

import (
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v3/jwt"
)

// Identity is the principal the bearer token was issued to.
type Identity struct {
	ObjectID      string `json:"ObjectID"`
	PrincipalName string `json:"Name"`
}

type tokenClaims struct {
	ObjectID string           `json:"oid"`
	UPN      string           `json:"upn"`
	Expiry   *jwt.NumericDate `json:"exp"`
}

// The token was handed to us by the identity backend over TLS, so the signature is not
// checked again here. Only the claims are read.
func parseClaims(token string) (tokenClaims, error) {
	var claims tokenClaims
	parsed, err := jwt.ParseSigned(token)
	if err != nil {
		return claims, fmt.Errorf("error in jwt.ParseSigned: %w", err)
	}
	if err := parsed.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return claims, fmt.Errorf("error in UnsafeClaimsWithoutVerification: %w", err)
	}
	return claims, nil
}

func IdentityFromToken(token string) (Identity, error) {
	claims, err := parseClaims(token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrAuth, err)
	}
	if claims.ObjectID == "" || claims.UPN == "" {
		return Identity{}, fmt.Errorf("%w: token is missing the oid or upn claim", ErrAuth)
	}
	return Identity{ObjectID: claims.ObjectID, PrincipalName: claims.UPN}, nil
}

// ExpiryFromToken reads the exp claim of a JWT.
func ExpiryFromToken(token string) (time.Time, error) {
	claims, err := parseClaims(token)
	if err != nil {
		return time.Time{}, err
	}
	if claims.Expiry == nil {
		return time.Time{}, fmt.Errorf("token has no exp claim")
	}
	return claims.Expiry.Time(), nil
}
