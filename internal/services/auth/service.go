// Package auth verifies bearer JWTs on the agent API. Tokens are HMAC
// signed with the configured secret and must carry a user_id claim.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mitto/internal/common"
)

var (
	// ErrTokenExpired marks a well-formed token past its expiry
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidToken covers every other verification failure
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the custom claims carried by a mitto token
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Service verifies and issues bearer tokens
type Service struct {
	secret []byte
	issuer string
	logger arbor.ILogger
}

// NewService creates an auth service from configuration
func NewService(config *common.AuthConfig, logger arbor.ILogger) (*Service, error) {
	if config.JWTSecret == "" {
		return nil, fmt.Errorf("JWT secret is required (set via MITTO_AUTH_JWT_SECRET or auth.jwt_secret in config)")
	}
	return &Service{
		secret: []byte(config.JWTSecret),
		issuer: config.Issuer,
		logger: logger,
	}, nil
}

// Verify parses a bearer token and returns the authenticated user ID.
// Expired tokens surface ErrTokenExpired distinct from ErrInvalidToken.
func (s *Service) Verify(tokenString string) (string, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return "", fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		return "", fmt.Errorf("%w: issuer mismatch", ErrInvalidToken)
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return "", fmt.Errorf("%w: missing user_id claim", ErrInvalidToken)
	}

	return claims.UserID, nil
}

// Issue mints a signed token for a user, mainly for tests and local
// tooling
func (s *Service) Issue(userID string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("user ID is required")
	}

	now := time.Now().UTC()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
