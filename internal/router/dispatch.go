package router

import (
	"context"
	"fmt"
	gomath "math"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/xela07ax/xchain-router/internal/codec"
	"github.com/xela07ax/xchain-router/internal/domain"
	"github.com/xela07ax/xchain-router/internal/transport"
)

// SendOptions: параметры одной отправки.
type SendOptions struct {
	// Value: приложенная нативная сумма, должна покрывать котировку.
	Value *big.Int
	// Gas на одно действие у получателя; 0: значение из конфига.
	Gas          uint64
	NativeDrop   *big.Int
	DropReceiver common.Address
	// Refund получает излишек комиссии; по умолчанию: вызывающий.
	Refund common.Address
}

func (r *Router) deliveryOptions(opts SendOptions, n int) ([]byte, error) {
	gas := opts.Gas
	if gas == 0 {
		gas = r.cfg.GasPerAction
	}
	// Бюджет исполнения растёт линейно с числом действий
	if n > 0 && gas > gomath.MaxUint64/uint64(n) {
		return nil, fmt.Errorf("%w: gas %d x %d actions overflows", transport.ErrBadOptions, gas, n)
	}
	return transport.Options{
		Gas:          gas * uint64(n),
		NativeDrop:   opts.NativeDrop,
		DropReceiver: opts.DropReceiver,
	}.Encode()
}

// SendAction отправляет одно действие в сеть dst. Действие не помечается исполненным.
func (r *Router) SendAction(ctx context.Context, dst domain.ChainID, a domain.Action, opts SendOptions) (transport.Receipt, error) {
	caller, err := r.authorize(ctx)
	if err != nil {
		r.metrics.countError(err)
		return transport.Receipt{}, err
	}
	if err := r.checkOutbound(ctx, dst, a); err != nil {
		r.metrics.countError(err)
		return transport.Receipt{}, err
	}
	return r.dispatch(ctx, caller, dst, domain.SingleEnvelope(a), opts)
}

// SendBatch отправляет 1..MaxBatchSize действий одним конвертом.
// Все записи проверяются до отправки: одна плохая запись отменяет весь батч.
func (r *Router) SendBatch(ctx context.Context, dst domain.ChainID, actions []domain.Action, opts SendOptions) (transport.Receipt, error) {
	caller, err := r.authorize(ctx)
	if err == nil {
		err = r.checkBatch(ctx, dst, actions)
	}
	if err != nil {
		r.metrics.countError(err)
		return transport.Receipt{}, err
	}
	return r.dispatch(ctx, caller, dst, domain.BatchEnvelope(actions), opts)
}

// SendConditional отправляет действие с отпечатком условия для стороны получателя.
func (r *Router) SendConditional(ctx context.Context, dst domain.ChainID, c domain.ConditionalAction, opts SendOptions) (transport.Receipt, error) {
	caller, err := r.authorize(ctx)
	if err != nil {
		r.metrics.countError(err)
		return transport.Receipt{}, err
	}
	if err := r.checkOutbound(ctx, dst, c.Action); err != nil {
		r.metrics.countError(err)
		return transport.Receipt{}, err
	}
	return r.dispatch(ctx, caller, dst, domain.ConditionalEnvelope(c), opts)
}

// SendMultiHop отправляет только первый хоп маршрута, неся остаток маршрута в конверте.
func (r *Router) SendMultiHop(ctx context.Context, m domain.MultiHopAction, opts SendOptions) (transport.Receipt, error) {
	caller, err := r.authorize(ctx)
	if err == nil {
		err = checkRoute(m.Route)
	}
	if err == nil {
		err = r.checkOutbound(ctx, m.Route[0], m.Action)
	}
	if err != nil {
		r.metrics.countError(err)
		return transport.Receipt{}, err
	}
	return r.dispatch(ctx, caller, m.Route[0], domain.MultiHopEnvelope(m.Route[1:], m.Action), opts)
}

// QuoteAction: котировка доставки одного действия, без проверки прав.
func (r *Router) QuoteAction(ctx context.Context, dst domain.ChainID, a domain.Action, opts SendOptions) (transport.Fee, error) {
	if err := a.Validate(); err != nil {
		return transport.Fee{}, err
	}
	return r.quote(ctx, dst, domain.SingleEnvelope(a), opts)
}

func (r *Router) QuoteBatch(ctx context.Context, dst domain.ChainID, actions []domain.Action, opts SendOptions) (transport.Fee, error) {
	if err := checkBatchShape(actions, r.cfg.MaxBatchSize); err != nil {
		return transport.Fee{}, err
	}
	return r.quote(ctx, dst, domain.BatchEnvelope(actions), opts)
}

// checkOutbound проверяет предусловия в фиксированном порядке: не исполнено, поля, доверие, сеть.
func (r *Router) checkOutbound(ctx context.Context, dst domain.ChainID, a domain.Action) error {
	if err := r.executed(ctx, a.ID); err != nil {
		return err
	}
	if err := a.Validate(); err != nil {
		return err
	}
	if err := r.checkTrust(dst, a.Target); err != nil {
		return err
	}
	if _, ok := domain.ChainByID(dst); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChain, dst)
	}
	return nil
}

func (r *Router) checkBatch(ctx context.Context, dst domain.ChainID, actions []domain.Action) error {
	if err := checkBatchShape(actions, r.cfg.MaxBatchSize); err != nil {
		return err
	}
	for i, a := range actions {
		if err := r.checkOutbound(ctx, dst, a); err != nil {
			return fmt.Errorf("batch[%d]: %w", i, err)
		}
	}
	return nil
}

func checkBatchShape(actions []domain.Action, limit int) error {
	if len(actions) == 0 {
		return ErrEmptyBatch
	}
	if len(actions) > limit {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(actions), limit)
	}
	seen := make(map[common.Hash]int, len(actions))
	for i, a := range actions {
		if j, dup := seen[a.ID]; dup {
			return fmt.Errorf("%w: records %d and %d share id %s", ErrDuplicateInBatch, j, i, a.ID.Hex())
		}
		seen[a.ID] = i
	}
	return nil
}

func checkRoute(route []domain.ChainID) error {
	if len(route) == 0 {
		return ErrEmptyRoute
	}
	for _, hop := range route {
		if _, ok := domain.ChainByID(hop); !ok {
			return fmt.Errorf("%w: hop %s", ErrUnknownChain, hop)
		}
	}
	return nil
}

func (r *Router) quote(ctx context.Context, dst domain.ChainID, env domain.Envelope, opts SendOptions) (transport.Fee, error) {
	if r.transport == nil {
		return transport.Fee{}, transport.ErrUnavailable
	}
	msg, err := codec.Encode(env)
	if err != nil {
		return transport.Fee{}, err
	}
	options, err := r.deliveryOptions(opts, len(env.Actions))
	if err != nil {
		return transport.Fee{}, err
	}
	return r.transport.Quote(ctx, dst, msg, options)
}

func (r *Router) dispatch(ctx context.Context, caller common.Address, dst domain.ChainID, env domain.Envelope, opts SendOptions) (receipt transport.Receipt, err error) {
	start := time.Now()
	kind := env.Kind.String()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
			r.metrics.countError(err)
		}
		r.metrics.DispatchDuration.WithLabelValues(kind, status).Observe(time.Since(start).Seconds())
	}()

	if r.transport == nil {
		return transport.Receipt{}, transport.ErrUnavailable
	}

	msg, err := codec.Encode(env)
	if err != nil {
		return transport.Receipt{}, err
	}
	options, err := r.deliveryOptions(opts, len(env.Actions))
	if err != nil {
		return transport.Receipt{}, err
	}

	fee, err := r.transport.Quote(ctx, dst, msg, options)
	if err != nil {
		return transport.Receipt{}, fmt.Errorf("router: quote: %w", err)
	}

	// Котировка: оценка на момент запроса, вызывающий закладывает запас сам
	value := opts.Value
	if value == nil {
		value = new(big.Int)
	}
	if fee.NativeFee != nil && value.Cmp(fee.NativeFee) < 0 {
		return transport.Receipt{}, fmt.Errorf("%w: have %s, want %s", ErrInsufficientFee, value, fee.NativeFee)
	}

	refund := opts.Refund
	if refund == (common.Address{}) {
		refund = caller
	}

	receipt, err = r.transport.Send(ctx, dst, msg, options, transport.Fee{NativeFee: value, TokenFee: new(big.Int)}, refund)
	if err != nil {
		return transport.Receipt{}, fmt.Errorf("router: send: %w", err)
	}

	dstLabel := strconv.FormatUint(uint64(dst), 10)
	for _, a := range env.Actions {
		r.metrics.ActionsSent.WithLabelValues(kind, dstLabel).Inc()
		r.notifier.Sent(ctx, SentEvent{
			ActionID:   a.ID,
			DstChain:   dst,
			Account:    a.Account,
			Target:     a.Target,
			Kind:       env.Kind,
			DeliveryID: receipt.GUID.Hex(),
		})
	}

	r.logger.Info("actions dispatched",
		zap.String("trace_id", TraceID(ctx)),
		zap.String("kind", kind),
		zap.Stringer("dst", dst),
		zap.Int("actions", len(env.Actions)),
		zap.String("guid", receipt.GUID.Hex()),
		zap.Uint64("nonce", receipt.Nonce))
	return receipt, nil
}
