package router

import (
	"context"
	"math/big"

	"go.uber.org/zap"

	"github.com/xela07ax/xchain-router/internal/domain"
)

// ExecuteLocal исполняет действие в собственной сети без транспорта.
// Та же дисциплина, что и у Receive, но повтор id: ошибка ErrAlreadyExecuted.
func (r *Router) ExecuteLocal(ctx context.Context, a domain.Action, value *big.Int) (bool, error) {
	if _, err := r.authorize(ctx); err != nil {
		r.metrics.countError(err)
		return false, err
	}
	if err := r.executed(ctx, a.ID); err != nil {
		r.metrics.countError(err)
		return false, err
	}
	if err := a.Validate(); err != nil {
		r.metrics.countError(err)
		return false, err
	}
	if err := r.checkTrust(r.chain.ID, a.Target); err != nil {
		r.metrics.countError(err)
		return false, err
	}

	log := r.logger.With(
		zap.String("trace_id", TraceID(ctx)),
		zap.String("mode", "local"),
		zap.String("action_id", a.ID.Hex()),
		zap.String("target", a.Target.Hex()))

	success, reserved, err := r.execute(ctx, log, r.chain.ID, a, value)
	if err != nil {
		return false, err
	}
	if !reserved {
		r.metrics.countError(ErrAlreadyExecuted)
		return false, ErrAlreadyExecuted
	}
	return success, nil
}
