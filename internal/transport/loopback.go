package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/xela07ax/xchain-router/internal/domain"
)

// LoopbackConfig задает плоскую модель комиссии BaseFee + GasPrice * gas.
type LoopbackConfig struct {
	BaseFee  *big.Int
	GasPrice *big.Int
	Executor common.Address
	// Duplicate доставляет каждое сообщение дважды (проверка идемпотентности получателя).
	Duplicate bool
}

// Loopback: in-process релей, связывающий несколько роутеров в одном процессе.
// Доставка синхронная: Send возвращается после обработки на стороне получателя.
type Loopback struct {
	cfg    LoopbackConfig
	logger *zap.Logger

	mu       sync.RWMutex
	handlers map[domain.ChainID]Handler
	nonces   map[[2]domain.ChainID]uint64
	errs     []error
}

func NewLoopback(cfg LoopbackConfig, logger *zap.Logger) *Loopback {
	if cfg.BaseFee == nil {
		cfg.BaseFee = big.NewInt(1_000)
	}
	if cfg.GasPrice == nil {
		cfg.GasPrice = big.NewInt(1)
	}
	return &Loopback{
		cfg:      cfg,
		logger:   logger.Named("loopback"),
		handlers: make(map[domain.ChainID]Handler),
		nonces:   make(map[[2]domain.ChainID]uint64),
	}
}

// Attach регистрирует получателя для сети.
func (l *Loopback) Attach(chain domain.ChainID, h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[chain] = h
}

// Endpoint возвращает транспорт, отправляющий от имени сети src.
func (l *Loopback) Endpoint(src domain.ChainID, sender common.Address) Transport {
	return &loopbackEndpoint{hub: l, src: src, sender: sender}
}

// Errors: ошибки, которые вернули получатели (доставка их не отменяет).
func (l *Loopback) Errors() []error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]error(nil), l.errs...)
}

func (l *Loopback) quote(dst domain.ChainID, opts []byte) (Fee, error) {
	l.mu.RLock()
	_, ok := l.handlers[dst]
	l.mu.RUnlock()
	if !ok {
		return Fee{}, fmt.Errorf("%w: %s", ErrNoRoute, dst)
	}

	o, err := DecodeOptions(opts)
	if err != nil {
		return Fee{}, err
	}
	native := new(big.Int).Mul(l.cfg.GasPrice, new(big.Int).SetUint64(o.Gas))
	native.Add(native, l.cfg.BaseFee)
	if o.Value != nil {
		native.Add(native, o.Value)
	}
	if o.NativeDrop != nil {
		native.Add(native, o.NativeDrop)
	}
	return Fee{NativeFee: native, TokenFee: new(big.Int)}, nil
}

type loopbackEndpoint struct {
	hub    *Loopback
	src    domain.ChainID
	sender common.Address
}

func (e *loopbackEndpoint) Quote(_ context.Context, dst domain.ChainID, _, opts []byte) (Fee, error) {
	return e.hub.quote(dst, opts)
}

func (e *loopbackEndpoint) Send(ctx context.Context, dst domain.ChainID, msg, opts []byte, fee Fee, _ common.Address) (Receipt, error) {
	quoted, err := e.hub.quote(dst, opts)
	if err != nil {
		return Receipt{}, err
	}
	if nativeOf(fee).Cmp(quoted.NativeFee) < 0 {
		return Receipt{}, fmt.Errorf("%w: have %s, want %s", ErrFeeTooLow, nativeOf(fee), quoted.NativeFee)
	}

	l := e.hub
	l.mu.Lock()
	key := [2]domain.ChainID{e.src, dst}
	l.nonces[key]++
	nonce := l.nonces[key]
	h := l.handlers[dst]
	l.mu.Unlock()

	guid := deliveryGUID(nonce, e.src, e.sender, dst)
	d := Delivery{
		SrcChain: e.src,
		Sender:   e.sender,
		GUID:     guid,
		Message:  append([]byte(nil), msg...),
		Executor: l.cfg.Executor,
	}

	times := 1
	if l.cfg.Duplicate {
		times = 2
	}
	for i := 0; i < times; i++ {
		if err := h(ctx, d); err != nil {
			l.logger.Warn("delivery rejected by receiver",
				zap.Stringer("src", e.src), zap.Stringer("dst", dst), zap.String("guid", guid.Hex()), zap.Error(err))
			l.mu.Lock()
			l.errs = append(l.errs, err)
			l.mu.Unlock()
		}
	}

	return Receipt{GUID: guid, Nonce: nonce, Fee: quoted}, nil
}

func deliveryGUID(nonce uint64, src domain.ChainID, sender common.Address, dst domain.ChainID) common.Hash {
	buf := binary.BigEndian.AppendUint64(nil, nonce)
	buf = binary.BigEndian.AppendUint32(buf, uint32(src))
	buf = append(buf, sender.Bytes()...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(dst))
	return crypto.Keccak256Hash(buf)
}
