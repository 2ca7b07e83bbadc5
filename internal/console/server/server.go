package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/xchain-router/internal/console/handler"
	"github.com/xela07ax/xchain-router/internal/domain"
	"github.com/xela07ax/xchain-router/internal/infra/auth"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	// Проверка RS256 токенов
	authValidator auth.TokenValidator

	// Обработчики бизнес-доменов
	authHandler     *handler.AuthHandler     // /auth/token
	registryHandler *handler.RegistryHandler // /v1/trust, /v1/executors
	actionHandler   *handler.ActionHandler   // /v1/actions
	eventHandler    *handler.EventHandler    // /v1/events
}

// NewConsoleServer инициализирует сервер админки со всеми зависимостями
func NewConsoleServer(
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	registryH *handler.RegistryHandler,
	actionH *handler.ActionHandler,
	eventH *handler.EventHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:          chi.NewRouter(),
		logger:          logger.Named("console-api"),
		authValidator:   validator,
		authHandler:     authH,
		registryHandler: registryH,
		actionHandler:   actionH,
		eventHandler:    eventH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		r.Post("/auth/token", s.authHandler.Login)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (RS256 токен со скоупом admin) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))
		r.Use(auth.RequireScope(domain.ScopeAdmin))

		// Реестр доверенных адаптеров
		r.Route("/v1/trust", func(r chi.Router) {
			r.Get("/", s.registryHandler.ListTrust)
			r.Put("/{chain}", s.registryHandler.SetTrust)
		})

		// Реестр авторизованных вызывающих
		r.Route("/v1/executors", func(r chi.Router) {
			r.Get("/", s.registryHandler.ListExecutors)
			r.Put("/{address}", s.registryHandler.SetExecutor)
		})

		r.Get("/v1/actions/{id}", s.actionHandler.Get)
		r.Get("/v1/events", s.eventHandler.GetEvents)
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
