package service

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xela07ax/xchain-router/internal/ledger"
)

// ActionService: только чтение ExecutedSet.
type ActionService struct {
	store ledger.Store
}

func NewActionService(store ledger.Store) *ActionService {
	return &ActionService{store: store}
}

func (s *ActionService) Get(ctx context.Context, id common.Hash) (ledger.Entry, bool, error) {
	return s.store.Get(ctx, id)
}
