package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
)

const ScopeAdmin = "admin"

type CustomClaims struct {
	UserID  string          `json:"user_id"`
	Address string          `json:"address"` // адрес вызывающего в сети
	Scopes  map[string]bool `json:"scopes"`  // "admin": true
	jwt.RegisteredClaims
}

// Secure Token Issuing
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

type User struct {
	ID           string          `json:"id"`
	Username     string          `json:"username"`
	Address      string          `json:"address"`
	PasswordHash string          `json:"-"` // Никогда не отправляем на фронт
	Scopes       map[string]bool `json:"scopes"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Тип для ключа в контексте (избегаем коллизий)
type ctxKey string

const (
	callerKey ctxKey = "caller"
	scopesKey ctxKey = "user_scopes"
)

// WithCaller кладет в контекст адрес вызывающего. Это и есть внедренный
// контекст авторизации, который роутер проверяет вместо "owner".
func WithCaller(ctx context.Context, caller common.Address) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

func CallerFrom(ctx context.Context) (common.Address, bool) {
	caller, ok := ctx.Value(callerKey).(common.Address)
	return caller, ok && caller != (common.Address{})
}

func WithScopes(ctx context.Context, scopes map[string]bool) context.Context {
	return context.WithValue(ctx, scopesKey, scopes)
}

func HasScope(ctx context.Context, scope string) bool {
	scopes, _ := ctx.Value(scopesKey).(map[string]bool)
	return scopes[scope]
}
