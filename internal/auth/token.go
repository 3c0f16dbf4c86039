// Package auth проверяет личность пользователя по JWT из cookie и передаёт её обработчикам.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// CookieName — cookie, в которой клиент хранит токен.
	CookieName = "jwt"
	// DefaultTokenTTL задаёт срок жизни токена по умолчанию.
	DefaultTokenTTL = 30 * 24 * time.Hour
)

var (
	// ErrTokenMissing — запрос без токена.
	ErrTokenMissing = errors.New("not authorized, no token")
	// ErrTokenInvalid — токен не прошёл проверку подписи или срока.
	ErrTokenInvalid = errors.New("not authorized, token failed")
	// ErrSecretRequired — не задан секрет подписи.
	ErrSecretRequired = errors.New("jwt secret is required")
)

// Identity — проверенная личность пользователя.
type Identity struct {
	UserID  string
	IsAdmin bool
}

// Claims — полезная нагрузка токена.
type Claims struct {
	UserID  string `json:"userId"`
	IsAdmin bool   `json:"isAdmin,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager выпускает и проверяет токены HS256.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager создаёт менеджер токенов.
func NewTokenManager(secret string, ttl time.Duration) (*TokenManager, error) {
	if secret == "" {
		return nil, ErrSecretRequired
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL возвращает срок жизни выпускаемых токенов.
func (m *TokenManager) TTL() time.Duration { return m.ttl }

// Issue подписывает токен для пользователя.
func (m *TokenManager) Issue(identity Identity) (string, error) {
	if identity.UserID == "" {
		return "", fmt.Errorf("issue token: user id is required")
	}

	now := m.now()
	claims := Claims{
		UserID:  identity.UserID,
		IsAdmin: identity.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify проверяет подпись и срок токена и возвращает личность.
func (m *TokenManager) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrTokenMissing
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.UserID == "" {
		return Identity{}, fmt.Errorf("%w: userId claim is empty", ErrTokenInvalid)
	}

	return Identity{UserID: claims.UserID, IsAdmin: claims.IsAdmin}, nil
}
