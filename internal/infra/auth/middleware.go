package auth

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/xela07ax/xchain-router/internal/domain"
)

// TokenValidator: интерфейс, который должны реализовать и роутер, и консоль
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.CustomClaims, error)
}

// NewMiddleware проверяет Bearer токен и кладет в контекст адрес вызывающего и его скоупы.
// Токен без адреса пропускается: консольному админу адрес не нужен, а роутер
// сам ответит ErrUnauthorized.
func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := domain.WithScopes(r.Context(), claims.Scopes)
			if common.IsHexAddress(claims.Address) {
				ctx = domain.WithCaller(ctx, common.HexToAddress(claims.Address))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope пропускает только запросы со скоупом scope.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !domain.HasScope(r.Context(), scope) {
				writeError(w, http.StatusForbidden, "insufficient scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
