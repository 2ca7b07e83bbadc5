package router

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/xela07ax/xchain-router/internal/codec"
	"github.com/xela07ax/xchain-router/internal/domain"
	"github.com/xela07ax/xchain-router/internal/ledger"
	"github.com/xela07ax/xchain-router/internal/transport"
)

// Delivery: входящая доставка от транспорта.
type Delivery = transport.Delivery

type Outcome string

const (
	OutcomeExecuted  Outcome = "executed"  // таргет вызван, id помечен
	OutcomeDuplicate Outcome = "duplicate" // id уже в ExecutedSet, таргет не вызывался
	OutcomeRejected  Outcome = "rejected"  // предусловие не выполнено, id не помечен
	OutcomeSkipped   Outcome = "skipped"   // условие не выполнено, id не помечен
)

// Result: исход одного действия из доставки.
type Result struct {
	ActionID common.Hash
	Outcome  Outcome
	Success  bool
	Err      error
}

// Report: исходы всех действий доставки в порядке конверта.
type Report struct {
	Kind    domain.EnvelopeKind
	Results []Result
}

// Executed: число действий, для которых таргет был вызван.
func (rep Report) Executed() int {
	n := 0
	for _, res := range rep.Results {
		if res.Outcome == OutcomeExecuted {
			n++
		}
	}
	return n
}

// Receive обрабатывает доставку. Повторная доставка: тихий no-op без ошибки.
// Для одиночных конвертов отказ возвращается ошибкой; в батче каждая запись
// обрабатывается независимо и её отказ виден только в Report.
func (r *Router) Receive(ctx context.Context, d Delivery) (Report, error) {
	env, err := codec.Decode(d.Message)
	if err != nil {
		r.metrics.countError(err)
		r.logger.Warn("undecodable delivery dropped",
			zap.Stringer("src", d.SrcChain), zap.String("guid", d.GUID.Hex()), zap.Error(err))
		return Report{}, err
	}

	log := r.logger.With(
		zap.String("trace_id", TraceID(ctx)),
		zap.Stringer("src", d.SrcChain),
		zap.String("guid", d.GUID.Hex()),
		zap.String("executor", d.Executor.Hex()),
		zap.String("kind", env.Kind.String()))

	rep := Report{Kind: env.Kind, Results: make([]Result, 0, len(env.Actions))}

	switch env.Kind {
	case domain.KindBatch:
		for _, a := range env.Actions {
			rep.Results = append(rep.Results, r.receiveOne(ctx, log, d.SrcChain, a, nil))
		}
		return rep, nil

	case domain.KindConditional:
		a := env.Actions[0]
		if res, blocked := r.gateCondition(ctx, log, d.SrcChain, a, env.Condition, env.Required); blocked {
			rep.Results = append(rep.Results, res)
			return rep, res.Err
		}
		res := r.receiveOne(ctx, log, d.SrcChain, a, nil)
		rep.Results = append(rep.Results, res)
		return rep, res.Err

	case domain.KindMultiHop:
		a := env.Actions[0]
		if len(env.Route) > 0 {
			// Пересылка дальше по маршруту не реализована: не исполняем и не помечаем
			err := fmt.Errorf("%w: %d hops remaining", ErrForwardingUnsupported, len(env.Route))
			r.metrics.countError(err)
			r.countOutcome(d.SrcChain, OutcomeRejected)
			log.Warn("multi-hop delivery rejected", zap.String("action_id", a.ID.Hex()), zap.Error(err))
			rep.Results = append(rep.Results, Result{ActionID: a.ID, Outcome: OutcomeRejected, Err: err})
			return rep, err
		}
		res := r.receiveOne(ctx, log, d.SrcChain, a, nil)
		rep.Results = append(rep.Results, res)
		return rep, res.Err

	default:
		res := r.receiveOne(ctx, log, d.SrcChain, env.Actions[0], nil)
		rep.Results = append(rep.Results, res)
		return rep, res.Err
	}
}

// gateCondition решает судьбу условного действия. blocked=true: действие не исполняется и не помечается.
func (r *Router) gateCondition(ctx context.Context, log *zap.Logger, src domain.ChainID, a domain.Action, cond common.Hash, required bool) (Result, bool) {
	if !required {
		return Result{}, false
	}

	blocked := func(err error, outcome Outcome) (Result, bool) {
		r.metrics.countError(err)
		r.countOutcome(src, outcome)
		log.Info("conditional action held", zap.String("action_id", a.ID.Hex()),
			zap.String("condition", cond.Hex()), zap.Error(err))
		return Result{ActionID: a.ID, Outcome: outcome, Err: err}, true
	}

	if r.checker == nil {
		return blocked(ErrConditionUnverified, OutcomeRejected)
	}
	met, err := r.checker.Check(ctx, cond)
	if err != nil {
		return blocked(fmt.Errorf("%w: %v", ErrConditionUnverified, err), OutcomeRejected)
	}
	if !met {
		return blocked(ErrConditionNotMet, OutcomeSkipped)
	}
	return Result{}, false
}

// receiveOne: дубликат → поля → доверие → резерв → вызов → исход.
func (r *Router) receiveOne(ctx context.Context, log *zap.Logger, src domain.ChainID, a domain.Action, value *big.Int) Result {
	res := Result{ActionID: a.ID}
	log = log.With(zap.String("action_id", a.ID.Hex()), zap.String("target", a.Target.Hex()))

	done, err := r.ledger.Has(ctx, a.ID)
	if err != nil {
		res.Outcome, res.Err = OutcomeRejected, fmt.Errorf("%w: lookup: %w", ErrLedgerUnavailable, err)
		log.Error("executed set unavailable", zap.Error(err))
		return res
	}
	if done {
		res.Outcome = OutcomeDuplicate
		r.countOutcome(src, OutcomeDuplicate)
		log.Debug("duplicate delivery absorbed")
		return res
	}

	if err := a.Validate(); err != nil {
		return r.reject(log, src, res, err)
	}
	if err := r.checkTrust(src, a.Target); err != nil {
		return r.reject(log, src, res, err)
	}

	success, reserved, err := r.execute(ctx, log, src, a, value)
	if err != nil {
		res.Outcome, res.Err = OutcomeRejected, err
		return res
	}
	if !reserved {
		// Конкурентная доставка того же id успела зарезервировать раньше
		res.Outcome = OutcomeDuplicate
		r.countOutcome(src, OutcomeDuplicate)
		return res
	}

	res.Outcome, res.Success = OutcomeExecuted, success
	return res
}

func (r *Router) reject(log *zap.Logger, src domain.ChainID, res Result, err error) Result {
	r.metrics.countError(err)
	r.countOutcome(src, OutcomeRejected)
	log.Warn("delivery rejected", zap.Error(err))
	res.Outcome, res.Err = OutcomeRejected, err
	return res
}

// execute резервирует id и вызывает таргет. reserved=false: id уже занят, вызова не было.
func (r *Router) execute(ctx context.Context, log *zap.Logger, src domain.ChainID, a domain.Action, value *big.Int) (success, reserved bool, err error) {
	reserved, err = r.ledger.Reserve(ctx, ledger.Entry{
		ActionID: a.ID,
		SrcChain: src,
		Account:  a.Account,
		Target:   a.Target,
	})
	if err != nil {
		r.metrics.countError(err)
		log.Error("failed to reserve action", zap.Error(err))
		return false, false, fmt.Errorf("%w: reserve: %w", ErrLedgerUnavailable, err)
	}
	if !reserved {
		return false, false, nil
	}

	invokeErr := r.invoke(ctx, a, value)
	success = invokeErr == nil

	// Id остаётся в ExecutedSet при любом исходе
	if err := r.ledger.Complete(ctx, a.ID, success); err != nil {
		log.Error("failed to record outcome", zap.Error(err))
	}

	outcome := "succeeded"
	if !success {
		outcome = "failed"
		log.Warn("target execution failed", zap.Error(invokeErr))
	} else {
		log.Info("action executed")
	}
	r.metrics.ActionsReceived.WithLabelValues(chainLabel(src), outcome).Inc()

	r.notifier.Received(ctx, ReceivedEvent{
		ActionID: a.ID,
		SrcChain: src,
		Account:  a.Account,
		Target:   a.Target,
		Success:  success,
	})
	return success, true, nil
}

// invoke вызывает таргет; паника таргета: такой же неуспех, как и ошибка.
func (r *Router) invoke(ctx context.Context, a domain.Action, value *big.Int) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("target panicked: %v", p)
		}
	}()

	if r.cfg.TargetTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.TargetTimeout)
		defer cancel()
	}
	if value == nil {
		value = new(big.Int)
	}
	return r.targets.Invoke(ctx, a.Target, a.Account, a.Payload, value)
}

func (r *Router) countOutcome(src domain.ChainID, o Outcome) {
	r.metrics.ActionsReceived.WithLabelValues(chainLabel(src), string(o)).Inc()
}

func chainLabel(c domain.ChainID) string {
	return strconv.FormatUint(uint64(c), 10)
}
