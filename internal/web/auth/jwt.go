// Package auth guards the write routes of the fixture API with HS256 bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the lifetime of issued tokens when none is configured
const DefaultTokenTTL = 24 * time.Hour

// ErrInvalidToken wraps every rejection of a presented token
var ErrInvalidToken = errors.New("invalid token")

// Issuer signs and validates tokens with a shared secret
type Issuer struct {
	secretKey []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewIssuer creates an Issuer. A non-positive ttl selects DefaultTokenTTL.
func NewIssuer(secretKey string, tokenTTL time.Duration) *Issuer {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &Issuer{
		secretKey: []byte(secretKey),
		tokenTTL:  tokenTTL,
		now:       time.Now,
	}
}

// Issue signs a token for subject
func (i *Issuer) Issue(subject string) (string, error) {
	now := i.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.tokenTTL)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secretKey)
}

// Validate parses tokenString and returns its claims
func (i *Issuer) Validate(tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return i.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

type contextKey struct{}

// WithSubject stores the authenticated subject in ctx
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, contextKey{}, subject)
}

// Subject returns the authenticated subject of ctx, or "" for anonymous requests
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(contextKey{}).(string)
	return s
}
