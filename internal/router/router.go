// Package router: кросс-чейн маршрутизатор действий.
//
// Исходящая сторона (Send*) проверяет и отправляет действия через транспорт,
// входящая (Receive) и локальная (ExecuteLocal) исполняют их не более одного
// раза: id резервируется в ExecutedSet до вызова таргета и остаётся там при
// любом исходе. Повтор: только новым действием с новым отпечатком.
package router

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/xela07ax/xchain-router/internal/conditions"
	"github.com/xela07ax/xchain-router/internal/domain"
	"github.com/xela07ax/xchain-router/internal/ledger"
	"github.com/xela07ax/xchain-router/internal/registry"
	"github.com/xela07ax/xchain-router/internal/transport"
)

var (
	ErrUnauthorized          = errors.New("router: caller is not authorized")
	ErrAlreadyExecuted       = errors.New("router: action already executed")
	ErrUntrustedTarget       = errors.New("router: target is not trusted for chain")
	ErrInsufficientFee       = errors.New("router: attached value below quoted fee")
	ErrEmptyBatch            = errors.New("router: empty batch")
	ErrBatchTooLarge         = errors.New("router: batch too large")
	ErrDuplicateInBatch      = errors.New("router: duplicate action in batch")
	ErrUnknownChain          = errors.New("router: unknown chain")
	ErrEmptyRoute            = errors.New("router: empty multi-hop route")
	ErrConditionUnverified   = errors.New("router: condition cannot be verified")
	ErrConditionNotMet       = errors.New("router: required condition not met")
	ErrForwardingUnsupported = errors.New("router: multi-hop forwarding is not supported")
	ErrLedgerUnavailable     = errors.New("router: executed set unavailable")

	// Пустые поля действия проверяет domain.Action.Validate.
	ErrEmptyAccount  = domain.ErrEmptyAccount
	ErrEmptyTarget   = domain.ErrEmptyTarget
	ErrEmptyActionID = domain.ErrEmptyActionID
)

const (
	DefaultMaxBatchSize = 50
	DefaultGasPerAction = 200_000
)

// Config: статические параметры инстанса роутера.
type Config struct {
	// ChainName: имя собственной сети в статической таблице (domain.LookupChain).
	ChainName     string
	GasPerAction  uint64
	MaxBatchSize  int
	TargetTimeout time.Duration
}

// Invoker вызывает таргет по адресу (adapters.Registry).
type Invoker interface {
	Invoke(ctx context.Context, target, account common.Address, payload []byte, value *big.Int) error
}

// Deps: коллабораторы роутера. Conditions, Notifier и Metrics опциональны.
type Deps struct {
	Ledger     ledger.Store
	Trust      *registry.Trust
	Auth       *registry.Authorization
	Transport  transport.Transport
	Targets    Invoker
	Conditions conditions.Checker
	Notifier   Notifier
	Metrics    *Metrics
}

type Router struct {
	chain     domain.Chain
	cfg       Config
	ledger    ledger.Store
	trust     *registry.Trust
	auth      *registry.Authorization
	transport transport.Transport
	targets   Invoker
	checker   conditions.Checker
	notifier  Notifier
	metrics   *Metrics
	logger    *zap.Logger
}

func New(cfg Config, deps Deps, logger *zap.Logger) (*Router, error) {
	chain, ok := domain.LookupChain(cfg.ChainName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChain, cfg.ChainName)
	}
	if deps.Ledger == nil || deps.Trust == nil || deps.Auth == nil || deps.Targets == nil {
		return nil, errors.New("router: ledger, trust, auth and targets are required")
	}
	if cfg.GasPerAction == 0 {
		cfg.GasPerAction = DefaultGasPerAction
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}

	return &Router{
		chain:     chain,
		cfg:       cfg,
		ledger:    deps.Ledger,
		trust:     deps.Trust,
		auth:      deps.Auth,
		transport: deps.Transport,
		targets:   deps.Targets,
		checker:   deps.Conditions,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    logger.Named("router").With(zap.Stringer("chain", chain.ID)),
	}, nil
}

// Chain: собственная сеть роутера.
func (r *Router) Chain() domain.Chain {
	return r.chain
}

// IsExecuted: true, как только id зарезервирован (в том числе при неуспехе таргета).
func (r *Router) IsExecuted(ctx context.Context, id common.Hash) (bool, error) {
	return r.ledger.Has(ctx, id)
}

// Entry возвращает запись ExecutedSet с исходом исполнения.
func (r *Router) Entry(ctx context.Context, id common.Hash) (ledger.Entry, bool, error) {
	return r.ledger.Get(ctx, id)
}

// Handler адаптирует Receive к транспорту (Loopback, relay.Server).
func (r *Router) Handler() transport.Handler {
	return func(ctx context.Context, d transport.Delivery) error {
		_, err := r.Receive(ctx, d)
		return err
	}
}

func (r *Router) authorize(ctx context.Context) (common.Address, error) {
	caller, ok := domain.CallerFrom(ctx)
	if !ok || !r.auth.IsAuthorized(caller) {
		return caller, ErrUnauthorized
	}
	return caller, nil
}

func (r *Router) executed(ctx context.Context, id common.Hash) error {
	done, err := r.ledger.Has(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: lookup: %w", ErrLedgerUnavailable, err)
	}
	if done {
		return ErrAlreadyExecuted
	}
	return nil
}

func (r *Router) checkTrust(chain domain.ChainID, target common.Address) error {
	if !r.trust.Allows(chain, target) {
		return fmt.Errorf("%w: chain %s target %s", ErrUntrustedTarget, chain, target.Hex())
	}
	return nil
}
