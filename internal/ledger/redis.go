package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/xela07ax/xchain-router/internal/infra"
)

// RedisStore: ExecutedSet в Redis, общий для нескольких инстансов роутера.
// Reserve опирается на SETNX, ключи живут без TTL.
type RedisStore struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, now: time.Now}
}

func (s *RedisStore) Reserve(ctx context.Context, e Entry) (bool, error) {
	now := s.now().UTC()
	e.Status = StatusPending
	e.CreatedAt = now
	e.UpdatedAt = now

	raw, err := json.Marshal(e)
	if err != nil {
		return false, fmt.Errorf("ledger: encode entry: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, infra.ExecutedKey(e.ActionID.Hex()), raw, 0).Result()
	if err != nil {
		return false, fmt.Errorf("ledger: reserve %s: %w", e.ActionID.Hex(), err)
	}
	return ok, nil
}

// Complete перезаписывает статус. Вызывается только тем, кто зарезервировал id.
func (s *RedisStore) Complete(ctx context.Context, id common.Hash, success bool) error {
	e, ok, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotReserved
	}
	e.Status = OutcomeStatus(success)
	e.UpdatedAt = s.now().UTC()

	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("ledger: encode entry: %w", err)
	}
	if err := s.rdb.Set(ctx, infra.ExecutedKey(id.Hex()), raw, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("ledger: complete %s: %w", id.Hex(), err)
	}
	return nil
}

func (s *RedisStore) Has(ctx context.Context, id common.Hash) (bool, error) {
	n, err := s.rdb.Exists(ctx, infra.ExecutedKey(id.Hex())).Result()
	if err != nil {
		return false, fmt.Errorf("ledger: exists %s: %w", id.Hex(), err)
	}
	return n > 0, nil
}

func (s *RedisStore) Get(ctx context.Context, id common.Hash) (Entry, bool, error) {
	raw, err := s.rdb.Get(ctx, infra.ExecutedKey(id.Hex())).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("ledger: get %s: %w", id.Hex(), err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, fmt.Errorf("ledger: decode entry: %w", err)
	}
	return e, true, nil
}
