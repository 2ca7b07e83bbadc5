package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/xchain-router/internal/console/handler"
	"github.com/xela07ax/xchain-router/internal/console/server"
	"github.com/xela07ax/xchain-router/internal/console/service"
	"github.com/xela07ax/xchain-router/internal/infra"
	"github.com/xela07ax/xchain-router/internal/infra/auth"
	"github.com/xela07ax/xchain-router/internal/ledger"
	"github.com/xela07ax/xchain-router/internal/registry"
	"github.com/xela07ax/xchain-router/internal/repository/postgres"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// 1. Инициализация ресурсов: консоль без БД не имеет смысла
	if cfg.Database.URL == "" {
		logger.Fatal("database.url is required")
	}
	db, err := postgres.Open(cfg.Database)
	if err != nil {
		logger.Fatal("database open failed", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}
	cancel()

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	appCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Реестры: пишем в Postgres, роутеры узнают об изменениях через Redis
	admin := registry.NewAdmin(common.HexToAddress(cfg.Router.AdminAddress))
	registryRepo := postgres.NewRegistryRepo(db)
	trust := registry.NewTrust(admin, registryRepo, rdb, logger)
	authz := registry.NewAuthorization(admin, registryRepo, rdb, logger)
	if err := trust.Init(appCtx); err != nil {
		logger.Fatal("trust registry init failed", zap.Error(err))
	}
	if err := authz.Init(appCtx); err != nil {
		logger.Fatal("authorization registry init failed", zap.Error(err))
	}
	go trust.StartListener(appCtx)
	go authz.StartListener(appCtx)

	// Консоль читает тот же ExecutedSet, что пишут роутеры
	var store ledger.Store = postgres.NewExecutedRepo(db)
	if cfg.Router.Ledger == "redis" && rdb != nil {
		store = ledger.NewRedisStore(rdb)
	}

	// 3. Ключи RS256: приватный подписывает, публичный проверяет
	priv, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("private key", zap.Error(err))
	}
	pub, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("public key", zap.Error(err))
	}

	// 4. Слои (Dependency Injection)
	srvHandler := server.NewConsoleServer(
		logger,
		auth.NewBaseValidator(pub),
		handler.NewAuthHandler(service.NewAuthService(postgres.NewUserRepo(db), auth.NewTokenIssuer(priv, cfg.Auth.TokenTTL)), logger),
		handler.NewRegistryHandler(service.NewRegistryService(admin, trust, authz), logger),
		handler.NewActionHandler(service.NewActionService(store)),
		handler.NewEventHandler(service.NewEventService(postgres.NewEventRepo(db))),
	)

	// 5. Запуск сервера
	srv := &http.Server{
		Addr:         cfg.Console.Addr(),
		Handler:      srvHandler,
		ReadTimeout:  cfg.Console.ReadTimeout,
		WriteTimeout: cfg.Console.WriteTimeout,
	}

	go func() {
		logger.Info("console API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-appCtx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("console shutdown failed", zap.Error(err))
	}
	logger.Info("console exited properly")
}
