package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TrustedAdapter: единственный доверенный таргет для сети.
// Нулевой адрес снимает ограничение для этой сети.
type TrustedAdapter struct {
	ChainID   ChainID        `json:"chain_id"`
	Target    common.Address `json:"target"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// AuthorizedExecutor: запись о праве вызывающего отправлять и исполнять действия.
type AuthorizedExecutor struct {
	Address   common.Address `json:"address"`
	Allowed   bool           `json:"allowed"`
	UpdatedAt time.Time      `json:"updated_at"`
}
