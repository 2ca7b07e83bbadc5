// Package conditions проверяет условия для условных действий на стороне получателя.
package conditions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/xela07ax/xchain-router/internal/infra"
)

// Checker отвечает, выполнено ли условие. Ошибка означает "не удалось проверить".
type Checker interface {
	Check(ctx context.Context, condition common.Hash) (bool, error)
}

// RedisAttestations: условие выполнено, если оракул записал аттестацию в Redis.
type RedisAttestations struct {
	rdb *redis.Client
}

func NewRedisAttestations(rdb *redis.Client) *RedisAttestations {
	return &RedisAttestations{rdb: rdb}
}

func (c *RedisAttestations) Check(ctx context.Context, condition common.Hash) (bool, error) {
	val, err := c.rdb.Get(ctx, infra.ConditionKey(strings.ToLower(condition.Hex()))).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("conditions: redis get: %w", err)
	}
	return val == "1" || val == "true", nil
}

// Attest записывает (или снимает) аттестацию условия.
func (c *RedisAttestations) Attest(ctx context.Context, condition common.Hash, met bool) error {
	val := "0"
	if met {
		val = "1"
	}
	if err := c.rdb.Set(ctx, infra.ConditionKey(strings.ToLower(condition.Hex())), val, 0).Err(); err != nil {
		return fmt.Errorf("conditions: redis set: %w", err)
	}
	return nil
}

// Static: набор условий в памяти (dev и тесты).
type Static struct {
	mu  sync.RWMutex
	met map[common.Hash]bool
}

func NewStatic(met ...common.Hash) *Static {
	s := &Static{met: make(map[common.Hash]bool, len(met))}
	for _, h := range met {
		s.met[h] = true
	}
	return s
}

func (s *Static) Set(condition common.Hash, met bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.met[condition] = met
}

func (s *Static) Check(_ context.Context, condition common.Hash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.met[condition], nil
}
