// Package jwt signs and validates the HS256 access tokens accepted by the
// HTTP surface. Tokens are issued by the identity service; keyvault only
// needs to validate them, signing is kept for tooling and tests.
package jwt

import (
	"fmt"
	"time"

	jwtstd "github.com/golang-jwt/jwt/v5"
)

// TokenError represents JWT token related errors
type TokenError string

func (e TokenError) Error() string {
	return string(e)
}

const (
	DefaultAccessTokenExpire = time.Hour * 24

	ErrNeedTokenProvider = TokenError("cannot sign token without token provider")
	ErrInvalidToken      = TokenError("invalid token")
	ErrTokenParsing      = TokenError("token parsing error")
)

// TokenManager handles JWT token operations
type TokenManager struct {
	key string
}

// NewTokenManager creates a new TokenManager instance
func NewTokenManager(key string) *TokenManager {
	return &TokenManager{key: key}
}

// validateKey validates the token key
func (jtm *TokenManager) validateKey() error {
	if jtm.key == "" {
		return ErrNeedTokenProvider
	}
	return nil
}

// GenerateAccessToken generates an access token for userID
func (jtm *TokenManager) GenerateAccessToken(jti, userID string, expiry ...time.Duration) (string, error) {
	if err := jtm.validateKey(); err != nil {
		return "", err
	}

	exp := DefaultAccessTokenExpire
	if len(expiry) > 0 && expiry[0] != 0 {
		exp = expiry[0]
	}

	claims := jwtstd.MapClaims{
		"jti": jti,
		"sub": "access",
		"payload": map[string]any{
			"user_id": userID,
		},
		"exp": time.Now().Add(exp).Unix(),
	}

	t := jwtstd.NewWithClaims(jwtstd.SigningMethodHS256, claims)
	return t.SignedString([]byte(jtm.key))
}

// ValidateToken validates a JWT token
func (jtm *TokenManager) ValidateToken(tokenString string) (*jwtstd.Token, error) {
	if err := jtm.validateKey(); err != nil {
		return nil, err
	}

	return jwtstd.Parse(tokenString, func(token *jwtstd.Token) (any, error) {
		if _, ok := token.Method.(*jwtstd.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jtm.key), nil
	})
}

// DecodeToken decodes a JWT token into its claims
func (jtm *TokenManager) DecodeToken(tokenString string) (map[string]any, error) {
	token, err := jtm.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwtstd.MapClaims)
	if !ok {
		return nil, ErrTokenParsing
	}
	return claims, nil
}

// UserIDFromToken validates the token and returns the user id it carries
func (jtm *TokenManager) UserIDFromToken(tokenString string) (string, error) {
	claims, err := jtm.DecodeToken(tokenString)
	if err != nil {
		return "", err
	}
	payload, ok := claims["payload"].(map[string]any)
	if !ok {
		return "", ErrTokenParsing
	}
	userID, ok := payload["user_id"].(string)
	if !ok || userID == "" {
		return "", ErrTokenParsing
	}
	return userID, nil
}
