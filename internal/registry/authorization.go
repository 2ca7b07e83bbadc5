package registry

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/xchain-router/internal/domain"
	"github.com/xela07ax/xchain-router/internal/infra"
)

type AuthorizationRepository interface {
	ListAuthorizedExecutors(ctx context.Context) ([]domain.AuthorizedExecutor, error)
	UpsertAuthorizedExecutor(ctx context.Context, e domain.AuthorizedExecutor) error
}

// Authorization: множество вызывающих, которым разрешены отправка и локальное исполнение.
// Администратор авторизован всегда, даже если его нет в множестве.
type Authorization struct {
	mu      sync.RWMutex
	callers map[common.Address]time.Time

	admin  *Admin
	repo   AuthorizationRepository
	rdb    *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

func NewAuthorization(admin *Admin, repo AuthorizationRepository, rdb *redis.Client, logger *zap.Logger) *Authorization {
	return &Authorization{
		callers: make(map[common.Address]time.Time),
		admin:   admin,
		repo:    repo,
		rdb:     rdb,
		logger:  logger.With(zap.String("mod", "authorization")),
		now:     time.Now,
	}
}

func (a *Authorization) Set(ctx context.Context, adminCap AdminCap, caller common.Address, allowed bool) error {
	if err := a.admin.check(adminCap); err != nil {
		return err
	}

	entry := domain.AuthorizedExecutor{Address: caller, Allowed: allowed, UpdatedAt: a.now().UTC()}
	if a.repo != nil {
		if err := a.repo.UpsertAuthorizedExecutor(ctx, entry); err != nil {
			return fmt.Errorf("authorization: persist %s: %w", caller.Hex(), err)
		}
	}

	a.apply(caller, allowed)
	a.broadcast(ctx, caller, allowed)

	a.logger.Info("executor authorization updated",
		zap.String("caller", caller.Hex()),
		zap.Bool("allowed", allowed))
	return nil
}

// IsAuthorized: максимально быстрый метод для проверки в Hot Path
func (a *Authorization) IsAuthorized(caller common.Address) bool {
	if caller == (common.Address{}) {
		return false
	}
	if a.admin != nil && caller == a.admin.Address() {
		return true
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.callers[caller]
	return ok
}

func (a *Authorization) List() []domain.AuthorizedExecutor {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]domain.AuthorizedExecutor, 0, len(a.callers))
	for addr, at := range a.callers {
		out = append(out, domain.AuthorizedExecutor{Address: addr, Allowed: true, UpdatedAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address.Cmp(out[j].Address) < 0 })
	return out
}

// Init загружает состояние при старте: из БД, если она есть, иначе из Redis.
func (a *Authorization) Init(ctx context.Context) error {
	var allowed []common.Address

	switch {
	case a.repo != nil:
		entries, err := a.repo.ListAuthorizedExecutors(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch authorized executors from DB: %w", err)
		}
		for _, e := range entries {
			if e.Allowed {
				allowed = append(allowed, e.Address)
			}
		}
	case a.rdb != nil:
		raw, err := a.rdb.HGetAll(ctx, infra.RedisKeyAuthorizedExecutors).Result()
		if err != nil {
			return fmt.Errorf("failed to fetch authorized executors from Redis: %w", err)
		}
		for field, value := range raw {
			if ok, _ := strconv.ParseBool(value); ok && common.IsHexAddress(field) {
				allowed = append(allowed, common.HexToAddress(field))
			}
		}
	default:
		return nil
	}

	now := a.now().UTC()
	next := make(map[common.Address]time.Time, len(allowed))
	values := make(map[string]string, len(allowed))
	for _, addr := range allowed {
		next[addr] = now
		values[addr.Hex()] = "true"
	}
	a.mu.Lock()
	a.callers = next
	a.mu.Unlock()

	return warmupHash(ctx, a.rdb, a.logger, infra.RedisKeyAuthorizedExecutors, infra.RedisKeyLockWarmupExecutors, values)
}

func (a *Authorization) StartListener(ctx context.Context) {
	if a.rdb == nil {
		return
	}
	listenSignals(ctx, a.rdb, a.logger, infra.RedisChanAuthorization,
		func() error { return a.Init(ctx) },
		func(key, value string) {
			if !common.IsHexAddress(key) {
				a.logger.Error("invalid executor signal", zap.String("address", key))
				return
			}
			allowed := value == "true" || value == "on" // Гибкий парсинг
			a.apply(common.HexToAddress(key), allowed)
		},
	)
}

func (a *Authorization) apply(caller common.Address, allowed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if allowed {
		a.callers[caller] = a.now().UTC()
	} else {
		delete(a.callers, caller)
	}
}

func (a *Authorization) broadcast(ctx context.Context, caller common.Address, allowed bool) {
	if a.rdb == nil {
		return
	}
	pipe := a.rdb.TxPipeline()
	if allowed {
		pipe.HSet(ctx, infra.RedisKeyAuthorizedExecutors, caller.Hex(), "true")
	} else {
		pipe.HDel(ctx, infra.RedisKeyAuthorizedExecutors, caller.Hex())
	}
	pipe.Publish(ctx, infra.RedisChanAuthorization, caller.Hex()+":"+strconv.FormatBool(allowed))
	if _, err := pipe.Exec(ctx); err != nil {
		a.logger.Warn("runtime signal delivery failed",
			zap.String("channel", infra.RedisChanAuthorization),
			zap.Error(err))
	}
}
