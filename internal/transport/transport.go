// Package transport описывает внешний канал доставки сообщений между сетями
// и его обёртки: надёжность (rate/CB/retry) и in-process петлю для тестов.
package transport

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xela07ax/xchain-router/internal/domain"
)

var (
	ErrNoRoute     = errors.New("transport: no endpoint for destination chain")
	ErrFeeTooLow   = errors.New("transport: supplied fee below quote")
	ErrBadOptions  = errors.New("transport: malformed delivery options")
	ErrUnavailable = errors.New("transport: unavailable")
)

// Fee: стоимость доставки. NativeFee платится в нативной валюте исходной сети.
type Fee struct {
	NativeFee *big.Int `json:"native_fee"`
	TokenFee  *big.Int `json:"token_fee"`
}

// Receipt: квитанция транспорта об отправке.
type Receipt struct {
	GUID  common.Hash `json:"guid"`
	Nonce uint64      `json:"nonce"`
	Fee   Fee         `json:"fee"`
}

// Delivery: входящее сообщение, которое транспорт передаёт получателю.
type Delivery struct {
	SrcChain domain.ChainID
	Sender   common.Address
	GUID     common.Hash
	Message  []byte
	Executor common.Address
}

// Transport: контракт внешнего канала. Send никогда не повторяется автоматически.
type Transport interface {
	Quote(ctx context.Context, dst domain.ChainID, msg, opts []byte) (Fee, error)
	Send(ctx context.Context, dst domain.ChainID, msg, opts []byte, fee Fee, refund common.Address) (Receipt, error)
}

// Handler принимает доставку на стороне сети назначения.
type Handler func(ctx context.Context, d Delivery) error

func nativeOf(f Fee) *big.Int {
	if f.NativeFee == nil {
		return new(big.Int)
	}
	return f.NativeFee
}
