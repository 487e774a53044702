package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// TenantClaim is the JWT claim holding the tenant the token was issued for.
const TenantClaim = "tenant_id"

// ErrNoTenantClaim is returned when a token carries no usable tenant claim.
var ErrNoTenantClaim = errors.New("token has no tenant claim")

// ParseBearerToken extracts the token from an "Authorization: Bearer <token>"
// header value.
func ParseBearerToken(authorizationHeader string) (string, error) {
	parts := strings.Split(strings.TrimSpace(authorizationHeader), " ")
	if len(parts) != 2 || parts[1] == "" || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	return parts[1], nil
}

// ParseTenantIDFromJWT reads the tenant claim of tokenString without
// verifying the signature; the client only needs to know which tenant it
// works for, the backend does the verification.
func ParseTenantIDFromJWT(tokenString string) (string, error) {
	token, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(tokenString), jwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("error parsing token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}

	tenantID, ok := claims[TenantClaim].(string)
	if !ok || tenantID == "" {
		return "", ErrNoTenantClaim
	}

	return tenantID, nil
}
