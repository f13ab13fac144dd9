// Package auth provides bearer-token session authentication.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/avdeev/chatwire/internal/domain"
)

// Claims is the payload stored inside a session token.
type Claims struct {
	jwt.RegisteredClaims
}

// Service signs and verifies session tokens.
type Service struct {
	secret []byte
	ttl    time.Duration
}

// NewService creates a token service. The secret must be non-empty.
func NewService(secret string, ttl time.Duration) (*Service, error) {
	if secret == "" {
		return nil, fmt.Errorf("token secret cannot be empty")
	}
	return &Service{secret: []byte(secret), ttl: ttl}, nil
}

// Sign issues a token for the given user ID.
func (s *Service) Sign(userID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Issuer:    "chatwire",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks the token signature and expiry and returns the user ID.
// Any failure is reported as domain.ErrUnauthenticated so callers can
// refuse the connection without leaking parse details.
func (s *Service) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", domain.ErrUnauthenticated
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", domain.ErrUnauthenticated
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", domain.ErrUnauthenticated
	}
	return claims.Subject, nil
}
