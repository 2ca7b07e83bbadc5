package auth

import (
	"crypto/rsa"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xela07ax/xchain-router/internal/domain"
)

const Issuer = "xchain-router-console"

// TokenIssuer подписывает RS256 токены для пользователей консоли и вызывающих роутера.
type TokenIssuer struct {
	privateKey *rsa.PrivateKey
	ttl        time.Duration
	now        func() time.Time
}

func NewTokenIssuer(key *rsa.PrivateKey, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{privateKey: key, ttl: ttl, now: time.Now}
}

func (i *TokenIssuer) TTL() time.Duration { return i.ttl }

func (i *TokenIssuer) Issue(user *domain.User) (string, error) {
	now := i.now()
	claims := domain.CustomClaims{
		UserID:  user.ID,
		Address: user.Address,
		Scopes:  user.Scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    Issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(i.privateKey)
}
