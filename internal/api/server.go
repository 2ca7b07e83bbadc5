// Package api реализует HTTP интерфейс вызывающих: отправку, котировки и статус действий.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/xchain-router/internal/infra/auth"
)

// NewRouter собирает chi-роутер API. metrics может быть nil.
func NewRouter(h *Handler, v auth.TokenValidator, metrics http.Handler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TracingMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	// Адрес вызывающего берется только из токена
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(v, logger))

		r.Route("/v1/actions", func(r chi.Router) {
			r.Post("/", h.Send)
			r.Post("/batch", h.SendBatch)
			r.Post("/conditional", h.SendConditional)
			r.Post("/multihop", h.SendMultiHop)
			r.Post("/local", h.ExecuteLocal)
			r.Post("/retry", h.Retry)
			r.Get("/{id}", h.Status)
		})
		r.Post("/v1/quote", h.Quote)
	})

	return r
}
