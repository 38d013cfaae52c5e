// Package auth validates Auth0-issued access tokens against the tenant's
// JWKS endpoint. Identity lives in Auth0; this package only proves that a
// request comes from one of its subjects.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const defaultLeeway = 30 * time.Second

var ErrInvalidToken = errors.New("invalid token")

// Claims are the token fields the application uses.
type Claims struct {
	Subject string
	Email   string
	Scope   string
}

// TokenVerifier is implemented by the JWKS verifier and by test fakes.
type TokenVerifier interface {
	Verify(tokenString string) (*Claims, error)
}

// Verifier validates RS256-family tokens with keys fetched from the
// issuer's JWKS document.
type Verifier struct {
	keyfunc keyfunc.Keyfunc
	parser  *jwt.Parser
}

func NewVerifier(issuerURL, audience string) (*Verifier, error) {
	if issuerURL == "" || audience == "" {
		return nil, errors.New("issuer and audience must be set")
	}
	if !strings.HasSuffix(issuerURL, "/") {
		issuerURL += "/"
	}

	keyProvider, err := keyfunc.NewDefault([]string{issuerURL + ".well-known/jwks.json"})
	if err != nil {
		return nil, fmt.Errorf("initializing JWKS keyfunc: %w", err)
	}

	parser := jwt.NewParser(
		jwt.WithIssuer(issuerURL),
		jwt.WithAudience(audience),
		jwt.WithLeeway(defaultLeeway),
		jwt.WithValidMethods([]string{
			jwt.SigningMethodRS256.Name,
			jwt.SigningMethodRS384.Name,
			jwt.SigningMethodRS512.Name,
		}),
	)

	return &Verifier{keyfunc: keyProvider, parser: parser}, nil
}

func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	token, err := v.parser.Parse(tokenString, v.keyfunc.Keyfunc)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	claims := &Claims{
		Subject: readString(mapClaims, "sub"),
		Email:   readString(mapClaims, "email"),
		Scope:   readString(mapClaims, "scope"),
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func readString(claims jwt.MapClaims, key string) string {
	if s, ok := claims[key].(string); ok {
		return s
	}
	return ""
}
