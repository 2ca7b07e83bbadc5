// Package ledger хранит множество исполненных действий (ExecutedSet).
//
// Запись в множество никогда не удаляется. Проверка и пометка выполняются одной
// атомарной операцией Reserve (insert-if-absent) до вызова таргета, поэтому две
// конкурентные доставки одного actionId не могут обе дойти до исполнения.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xela07ax/xchain-router/internal/domain"
)

type Status string

const (
	StatusPending   Status = "pending" // id зарезервирован, таргет вызывается
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

var ErrNotReserved = errors.New("ledger: action is not reserved")

type Entry struct {
	ActionID  common.Hash    `json:"action_id"`
	SrcChain  domain.ChainID `json:"src_chain"`
	Account   common.Address `json:"account"`
	Target    common.Address `json:"target"`
	Status    Status         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Store: интерфейс ExecutedSet.
type Store interface {
	// Reserve атомарно добавляет id в множество. false: id уже был в множестве.
	Reserve(ctx context.Context, e Entry) (bool, error)
	// Complete фиксирует исход вызова таргета. Id остается в множестве при любом исходе.
	Complete(ctx context.Context, id common.Hash, success bool) error
	Has(ctx context.Context, id common.Hash) (bool, error)
	Get(ctx context.Context, id common.Hash) (Entry, bool, error)
}

func OutcomeStatus(success bool) Status {
	if success {
		return StatusSucceeded
	}
	return StatusFailed
}
