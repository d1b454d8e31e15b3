// Package utils verifies bearer tokens issued by the auth service. Tokens are
// signed there with a shared HMAC secret; this service never issues its own.
package utils

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"

	"shopchat/internal/config"
)

var (
	// ErrMissingSecret no verification secret is configured
	ErrMissingSecret = errors.New("auth secret is not configured")
	// ErrNoSubject the token names no user
	ErrNoSubject = errors.New("token carries no user id")
)

// Claims are the claims the auth service signs. The tenant is user_id when
// present, otherwise the numeric subject.
type Claims struct {
	UserID int64  `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TenantID resolves the owning user id
func (c *Claims) TenantID() (int64, error) {
	if c.UserID > 0 {
		return c.UserID, nil
	}
	if c.Subject == "" {
		return 0, ErrNoSubject
	}
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: subject %q", ErrNoSubject, c.Subject)
	}
	return id, nil
}

// TokenVerifier validates HS256 bearer tokens
type TokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewTokenVerifier creates a verifier. An issuer, when configured, must match.
func NewTokenVerifier(cfg config.AuthConfig) (*TokenVerifier, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &TokenVerifier{
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(opts...),
	}, nil
}

// Verify parses tokenString and returns its claims
func (v *TokenVerifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if _, err := claims.TenantID(); err != nil {
		return nil, err
	}
	return claims, nil
}
