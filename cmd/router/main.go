package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/xela07ax/xchain-router/internal/adapters"
	"github.com/xela07ax/xchain-router/internal/api"
	"github.com/xela07ax/xchain-router/internal/audit"
	"github.com/xela07ax/xchain-router/internal/conditions"
	"github.com/xela07ax/xchain-router/internal/domain"
	"github.com/xela07ax/xchain-router/internal/infra"
	"github.com/xela07ax/xchain-router/internal/infra/auth"
	"github.com/xela07ax/xchain-router/internal/ledger"
	"github.com/xela07ax/xchain-router/internal/registry"
	"github.com/xela07ax/xchain-router/internal/repository/postgres"
	"github.com/xela07ax/xchain-router/internal/router"
	"github.com/xela07ax/xchain-router/internal/transport"
	"github.com/xela07ax/xchain-router/internal/transport/relay"
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

	if err := run(cfg, logger); err != nil {
		logger.Fatal("router stopped with error", zap.Error(err))
	}
}

func run(cfg *infra.Config, logger *zap.Logger) error {
	// Контекст для фоновых горутин: SIGTERM отменяет слушателей
	appCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 1. Инфраструктура: Postgres и Redis опциональны
	var db *sql.DB
	if cfg.Database.URL != "" {
		var err error
		if db, err = postgres.Open(cfg.Database); err != nil {
			return err
		}
		defer db.Close()

		pingCtx, pingCancel := context.WithTimeout(appCtx, 5*time.Second)
		err = db.PingContext(pingCtx)
		pingCancel()
		if err != nil {
			return fmt.Errorf("database unreachable: %w", err)
		}
		if err := postgres.Migrate(appCtx, db); err != nil {
			return err
		}
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	// 2. Control Plane: реестры доверия и авторизации
	admin := registry.NewAdmin(common.HexToAddress(cfg.Router.AdminAddress))
	var registryRepo *postgres.RegistryRepo
	if db != nil {
		registryRepo = postgres.NewRegistryRepo(db)
	}
	trust := registry.NewTrust(admin, trustRepo(registryRepo), rdb, logger)
	authz := registry.NewAuthorization(admin, authRepo(registryRepo), rdb, logger)
	if err := trust.Init(appCtx); err != nil {
		return fmt.Errorf("trust registry init: %w", err)
	}
	if err := authz.Init(appCtx); err != nil {
		return fmt.Errorf("authorization registry init: %w", err)
	}
	go trust.StartListener(appCtx)
	go authz.StartListener(appCtx)

	store, err := newLedger(cfg.Router.Ledger, db, rdb)
	if err != nil {
		return err
	}

	// 3. Таргеты: удаленные коннекторы по gRPC
	targets := adapters.NewRegistry()
	for _, t := range cfg.Targets {
		if !common.IsHexAddress(t.Address) {
			return fmt.Errorf("target %q: invalid address", t.Address)
		}
		conn, err := grpc.NewClient(t.Endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("target %s: %w", t.Address, err)
		}
		defer conn.Close()
		targets.Register(common.HexToAddress(t.Address), adapters.NewGRPCTarget(conn))
	}

	// Метрики
	reg := prometheus.NewRegistry()
	metrics := router.NewMetrics(reg)

	// 4. Транспорт + надежность (rate limit, circuit breaker, retry котировок)
	chain, ok := domain.LookupChain(cfg.Router.Chain)
	if !ok {
		return fmt.Errorf("unknown chain %q", cfg.Router.Chain)
	}
	var (
		raw      transport.Transport
		loopback *transport.Loopback
	)
	switch cfg.Transport.Mode {
	case "relay":
		conn, err := grpc.NewClient(cfg.Transport.RelayAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("relay: %w", err)
		}
		defer conn.Close()
		raw = relay.NewClient(conn, chain.ID, cfg.Transport.RelayToken)
	case "loopback":
		// Один процесс, одна сеть: сообщения в собственную сеть возвращаются в Receive
		loopback = transport.NewLoopback(transport.LoopbackConfig{
			BaseFee:  big.NewInt(1e12),
			GasPrice: big.NewInt(1),
		}, logger)
		raw = loopback.Endpoint(chain.ID, admin.Address())
	default:
		return fmt.Errorf("unknown transport mode %q", cfg.Transport.Mode)
	}
	reliable := transport.NewReliable(raw, transport.ReliableConfig{
		Name:          "relay-" + chain.Name,
		RatePerSecond: cfg.Transport.RatePerSecond,
		Burst:         cfg.Transport.Burst,
		QuoteAttempts: cfg.Transport.QuoteAttempts,
		CallTimeout:   cfg.Transport.CallTimeout,
		CBMaxRequests: cfg.Transport.CBMaxRequests,
		CBInterval:    cfg.Transport.CBInterval,
		CBTimeout:     cfg.Transport.CBTimeout,
	}, logger)
	reliable.OnStateChange = metrics.BreakerObserver

	// 5. Журнал уведомлений: пачками в Postgres
	notifiers := router.Notifiers{}
	if db != nil {
		journal := audit.NewJournal(postgres.NewEventRepo(db), logger,
			cfg.Router.JournalBufferSize, cfg.Router.JournalFlushInterval)
		journal.Start()
		defer journal.Stop()
		notifiers = append(notifiers, journal)
	}

	var checker conditions.Checker
	if rdb != nil {
		checker = conditions.NewRedisAttestations(rdb)
	}

	// 6. Core
	r, err := router.New(router.Config{
		ChainName:     cfg.Router.Chain,
		GasPerAction:  cfg.Router.GasPerAction,
		MaxBatchSize:  cfg.Router.MaxBatchSize,
		TargetTimeout: cfg.Router.TargetTimeout,
	}, router.Deps{
		Ledger:     store,
		Trust:      trust,
		Auth:       authz,
		Transport:  reliable,
		Targets:    targets,
		Conditions: checker,
		Notifier:   notifiers,
		Metrics:    metrics,
	}, logger)
	if err != nil {
		return err
	}
	if loopback != nil {
		loopback.Attach(chain.ID, r.Handler())
	}

	// 7. HTTP API вызывающих
	pub, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		return err
	}
	apiHandler := api.NewHandler(r, domain.NewBuilder(), logger)
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(apiHandler, auth.NewBaseValidator(pub), promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 8. gRPC: входящие доставки от релея
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(relay.UnaryTokenInterceptor(cfg.GRPC.RelayToken)))
	relay.NewServer(r.Handler(), logger).Register(grpcSrv)
	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen gRPC: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("receiver gRPC server started", zap.String("addr", cfg.GRPC.Addr))
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()
	go func() {
		logger.Info("router API started",
			zap.String("addr", srv.Addr),
			zap.String("chain", chain.Name),
			zap.String("transport", cfg.Transport.Mode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	// 9. Graceful Shutdown: сначала оба сервера, журнал закрывается отложенно после них
	var serveErr error
	select {
	case <-appCtx.Done():
	case serveErr = <-errCh:
		logger.Error("server failed", zap.Error(serveErr))
	}
	logger.Info("router stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	if serveErr != nil {
		return serveErr
	}
	logger.Info("router exited properly")
	return nil
}

func newLedger(kind string, db *sql.DB, rdb *redis.Client) (ledger.Store, error) {
	switch kind {
	case "", "memory":
		return ledger.NewMemoryStore(), nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("ledger redis: redis.addr is empty")
		}
		return ledger.NewRedisStore(rdb), nil
	case "postgres":
		if db == nil {
			return nil, errors.New("ledger postgres: database.url is empty")
		}
		return postgres.NewExecutedRepo(db), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", kind)
	}
}

// Типизированный nil в интерфейсе сломал бы проверку repo != nil в реестрах.
func trustRepo(r *postgres.RegistryRepo) registry.TrustRepository {
	if r == nil {
		return nil
	}
	return r
}

func authRepo(r *postgres.RegistryRepo) registry.AuthorizationRepository {
	if r == nil {
		return nil
	}
	return r
}
