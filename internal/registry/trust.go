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

// TrustRepository: источник правды для реестра доверия.
type TrustRepository interface {
	ListTrustedAdapters(ctx context.Context) ([]domain.TrustedAdapter, error)
	UpsertTrustedAdapter(ctx context.Context, t domain.TrustedAdapter) error
}

// Trust хранит для каждой сети не более одного доверенного таргета.
// L1 (RAM) читается на горячем пути, репозиторий и Redis опциональны.
type Trust struct {
	mu       sync.RWMutex
	adapters map[domain.ChainID]domain.TrustedAdapter

	admin  *Admin
	repo   TrustRepository
	rdb    *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

func NewTrust(admin *Admin, repo TrustRepository, rdb *redis.Client, logger *zap.Logger) *Trust {
	return &Trust{
		adapters: make(map[domain.ChainID]domain.TrustedAdapter),
		admin:    admin,
		repo:     repo,
		rdb:      rdb,
		logger:   logger.With(zap.String("mod", "trust")),
		now:      time.Now,
	}
}

// Set перезаписывает доверенный таргет сети. Нулевой target снимает ограничение.
// Изменение видно сразу после возврата.
func (t *Trust) Set(ctx context.Context, adminCap AdminCap, chain domain.ChainID, target common.Address) error {
	if err := t.admin.check(adminCap); err != nil {
		return err
	}

	entry := domain.TrustedAdapter{ChainID: chain, Target: target, UpdatedAt: t.now().UTC()}

	// 1. Persistence Layer
	if t.repo != nil {
		if err := t.repo.UpsertTrustedAdapter(ctx, entry); err != nil {
			return fmt.Errorf("trust: persist chain %s: %w", chain, err)
		}
	}

	// 2. L1
	t.apply(entry)

	// 3. Real-time Signaling
	t.broadcast(ctx, chain, target)

	t.logger.Info("trusted adapter updated",
		zap.Uint32("chain_id", uint32(chain)),
		zap.String("target", target.Hex()))
	return nil
}

// Get возвращает доверенный таргет; ok=false означает "без ограничений".
func (t *Trust) Get(chain domain.ChainID) (common.Address, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.adapters[chain]
	return entry.Target, ok
}

// Allows: проверка на горячем пути.
func (t *Trust) Allows(chain domain.ChainID, target common.Address) bool {
	trusted, restricted := t.Get(chain)
	return !restricted || trusted == target
}

func (t *Trust) List() []domain.TrustedAdapter {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.TrustedAdapter, 0, len(t.adapters))
	for _, entry := range t.adapters {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// Init загружает текущее состояние при старте: из БД, если она есть, иначе из Redis.
func (t *Trust) Init(ctx context.Context) error {
	var entries []domain.TrustedAdapter

	switch {
	case t.repo != nil:
		var err error
		entries, err = t.repo.ListTrustedAdapters(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch trusted adapters from DB: %w", err)
		}
	case t.rdb != nil:
		raw, err := t.rdb.HGetAll(ctx, infra.RedisKeyTrustedAdapters).Result()
		if err != nil {
			return fmt.Errorf("failed to fetch trusted adapters from Redis: %w", err)
		}
		for field, value := range raw {
			chain, err := strconv.ParseUint(field, 10, 32)
			if err != nil {
				t.logger.Warn("skip malformed trust entry", zap.String("field", field))
				continue
			}
			entries = append(entries, domain.TrustedAdapter{ChainID: domain.ChainID(chain), Target: common.HexToAddress(value)})
		}
	default:
		return nil
	}

	t.replace(entries)

	values := make(map[string]string, len(entries))
	for _, e := range entries {
		values[strconv.FormatUint(uint64(e.ChainID), 10)] = e.Target.Hex()
	}
	return warmupHash(ctx, t.rdb, t.logger, infra.RedisKeyTrustedAdapters, infra.RedisKeyLockWarmupTrust, values)
}

// StartListener подписывается на изменения реестра от других инстансов (консоли).
func (t *Trust) StartListener(ctx context.Context) {
	if t.rdb == nil {
		return
	}
	listenSignals(ctx, t.rdb, t.logger, infra.RedisChanTrust,
		func() error { return t.Init(ctx) },
		func(key, value string) {
			chain, err := strconv.ParseUint(key, 10, 32)
			if err != nil || !common.IsHexAddress(value) {
				t.logger.Error("invalid trust signal", zap.String("chain", key), zap.String("target", value))
				return
			}
			t.apply(domain.TrustedAdapter{ChainID: domain.ChainID(chain), Target: common.HexToAddress(value), UpdatedAt: t.now().UTC()})
		},
	)
}

func (t *Trust) apply(entry domain.TrustedAdapter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry.Target == (common.Address{}) {
		delete(t.adapters, entry.ChainID)
		return
	}
	t.adapters[entry.ChainID] = entry
}

func (t *Trust) replace(entries []domain.TrustedAdapter) {
	next := make(map[domain.ChainID]domain.TrustedAdapter, len(entries))
	for _, e := range entries {
		if e.Target != (common.Address{}) {
			next[e.ChainID] = e
		}
	}
	t.mu.Lock()
	t.adapters = next
	t.mu.Unlock()
}

func (t *Trust) broadcast(ctx context.Context, chain domain.ChainID, target common.Address) {
	if t.rdb == nil {
		return
	}
	field := strconv.FormatUint(uint64(chain), 10)
	pipe := t.rdb.TxPipeline()
	if target == (common.Address{}) {
		pipe.HDel(ctx, infra.RedisKeyTrustedAdapters, field)
	} else {
		pipe.HSet(ctx, infra.RedisKeyTrustedAdapters, field, target.Hex())
	}
	pipe.Publish(ctx, infra.RedisChanTrust, field+":"+target.Hex())
	if _, err := pipe.Exec(ctx); err != nil {
		t.logger.Warn("runtime signal delivery failed",
			zap.String("channel", infra.RedisChanTrust),
			zap.Error(err))
	}
}
