// Package auth provides token issuing and validation, request authentication
// and the closure permission policy.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents JWT claims
type Claims struct {
	jwt.RegisteredClaims
	TenantID string   `json:"tenant_id"`
	UserID   string   `json:"user_id"`
	IsAdmin  bool     `json:"is_admin"`
	Scopes   []string `json:"scopes,omitempty"`
}

// User is the authenticated caller as seen by the closure engine
type User struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenant_id"`
	IsAdmin  bool     `json:"is_admin"`
	Scopes   []string `json:"scopes,omitempty"`
}

// User returns the caller described by the claims
func (c *Claims) User() User {
	id := c.UserID
	if id == "" {
		id = c.Subject
	}
	return User{ID: id, TenantID: c.TenantID, IsAdmin: c.IsAdmin, Scopes: c.Scopes}
}

// JWTManager manages JWT token operations
type JWTManager struct {
	secret        []byte
	issuer        string
	defaultExpiry time.Duration
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secret, issuer string, defaultExpiry time.Duration) *JWTManager {
	return &JWTManager{
		secret:        []byte(secret),
		issuer:        issuer,
		defaultExpiry: defaultExpiry,
	}
}

// GenerateUserToken generates a JWT token for a user
func (m *JWTManager) GenerateUserToken(tenantID, userID string, isAdmin bool, scopes []string, expiry time.Duration) (string, error) {
	if expiry == 0 {
		expiry = m.defaultExpiry
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
		TenantID: tenantID,
		UserID:   userID,
		IsAdmin:  isAdmin,
		Scopes:   scopes,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ValidateToken validates a JWT token and returns the claims
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer))

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}
