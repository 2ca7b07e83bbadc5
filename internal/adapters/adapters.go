// Package adapters: цели исполнения действий на стороне получателя.
package adapters

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var ErrUnknownTarget = errors.New("adapters: no target registered for address")

// Target исполняет действие от имени account. Любая ошибка трактуется роутером как неуспех.
type Target interface {
	Execute(ctx context.Context, account common.Address, payload []byte, value *big.Int) error
}

// Registry сопоставляет адрес цели с её реализацией.
type Registry struct {
	mu      sync.RWMutex
	targets map[common.Address]Target
}

func NewRegistry() *Registry {
	return &Registry{targets: make(map[common.Address]Target)}
}

func (r *Registry) Register(addr common.Address, t Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[addr] = t
}

func (r *Registry) Resolve(addr common.Address) (Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[addr]
	return t, ok
}

// Invoke вызывает цель по адресу. Неизвестная цель: ошибка, а не паника.
func (r *Registry) Invoke(ctx context.Context, target, account common.Address, payload []byte, value *big.Int) error {
	t, ok := r.Resolve(target)
	if !ok {
		return ErrUnknownTarget
	}
	return t.Execute(ctx, account, payload, value)
}
