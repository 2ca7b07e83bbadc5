package handler

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/xchain-router/internal/console/service"
	"github.com/xela07ax/xchain-router/internal/domain"
	"github.com/xela07ax/xchain-router/internal/infra/auth"
)

type users struct {
	user *domain.User
	err  error
}

func (u users) GetUserByUsername(context.Context, string) (*domain.User, error) {
	return u.user, u.err
}

func login(t *testing.T, repo service.AuthProvider, body string) *httptest.ResponseRecorder {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	h := NewAuthHandler(service.NewAuthService(repo, auth.NewTokenIssuer(key, time.Hour)), zap.NewNop())
	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(body)))
	return rec
}

func TestLogin_StatusByError(t *testing.T) {
	hash, err := service.HashPassword("s3cret", 4)
	require.NoError(t, err)
	root := &domain.User{ID: "1", Username: "root", PasswordHash: hash}

	cases := map[string]struct {
		repo users
		body string
		want int
	}{
		"ok":             {users{user: root}, `{"username":"root","password":"s3cret"}`, http.StatusOK},
		"wrong password": {users{user: root}, `{"username":"root","password":"nope"}`, http.StatusUnauthorized},
		"unknown user":   {users{}, `{"username":"ghost","password":"s3cret"}`, http.StatusUnauthorized},
		"storage down":   {users{err: errors.New("connection refused")}, `{"username":"root","password":"s3cret"}`, http.StatusInternalServerError},
		"bad body":       {users{user: root}, `{"username":`, http.StatusBadRequest},
		"no username":    {users{user: root}, `{"password":"s3cret"}`, http.StatusBadRequest},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := login(t, tc.repo, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestLogin_StorageErrorIsNotLeaked(t *testing.T) {
	rec := login(t, users{err: errors.New("pq: password authentication failed for user router")}, `{"username":"root","password":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:")
}
