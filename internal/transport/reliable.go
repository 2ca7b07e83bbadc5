package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xela07ax/xchain-router/internal/domain"
)

// ReliableConfig: настройки обёртки. Нулевые значения заменяются дефолтами.
type ReliableConfig struct {
	Name          string
	RatePerSecond float64
	Burst         int
	QuoteAttempts uint
	CallTimeout   time.Duration

	CBMaxRequests uint32
	CBInterval    time.Duration
	CBTimeout     time.Duration
}

// Reliable оборачивает транспорт: лимитер, предохранитель и повторы только для Quote.
type Reliable struct {
	next    Transport
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	cfg     ReliableConfig
	logger  *zap.Logger

	// OnStateChange позволяет метрикам следить за состоянием предохранителя.
	OnStateChange func(name string, open bool)
}

var _ Transport = (*Reliable)(nil)

func NewReliable(next Transport, cfg ReliableConfig, logger *zap.Logger) *Reliable {
	if cfg.Name == "" {
		cfg.Name = "xrouter-transport"
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 100
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 20
	}
	if cfg.QuoteAttempts == 0 {
		cfg.QuoteAttempts = 3
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.CBMaxRequests == 0 {
		cfg.CBMaxRequests = 3
	}
	if cfg.CBInterval <= 0 {
		cfg.CBInterval = 5 * time.Second
	}
	if cfg.CBTimeout <= 0 {
		cfg.CBTimeout = 30 * time.Second
	}

	w := &Reliable{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		cfg:     cfg,
		logger:  logger.Named("transport"),
	}
	w.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		// Отказ из-за самого запроса не говорит о здоровье релея
		IsSuccessful: func(err error) bool { return err == nil || permanent(err) },
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если более 5 ошибок подряд: открываемся (блокируем трафик)
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			w.logger.Warn("circuit breaker state changed",
				zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
			if w.OnStateChange != nil {
				w.OnStateChange(name, to == gobreaker.StateOpen)
			}
		},
	})
	return w
}

func (w *Reliable) Quote(ctx context.Context, dst domain.ChainID, msg, opts []byte) (Fee, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return Fee{}, fmt.Errorf("rate limit exceeded: %w", err)
	}

	var fee Fee
	_, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.cfg.QuoteAttempts),
			retry.RetryIf(func(err error) bool { return !permanent(err) }),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Релей сам сказал, сколько ждать
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)

		return nil, r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
			defer cancel()

			var callErr error
			fee, callErr = w.next.Quote(tCtx, dst, msg, opts)
			return callErr
		})
	})
	if err != nil {
		return Fee{}, w.wrap(err)
	}
	return fee, nil
}

// Send выполняется ровно один раз: повтор означал бы двойную оплату доставки.
func (w *Reliable) Send(ctx context.Context, dst domain.ChainID, msg, opts []byte, fee Fee, refund common.Address) (Receipt, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return Receipt{}, fmt.Errorf("rate limit exceeded: %w", err)
	}

	res, err := w.cb.Execute(func() (interface{}, error) {
		tCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
		defer cancel()
		return w.next.Send(tCtx, dst, msg, opts, fee, refund)
	})
	if err != nil {
		return Receipt{}, w.wrap(err)
	}
	return res.(Receipt), nil
}

// permanent: ошибка запроса, повтор которого даст тот же результат.
func permanent(err error) bool {
	return errors.Is(err, ErrNoRoute) || errors.Is(err, ErrBadOptions) || errors.Is(err, ErrFeeTooLow)
}

func (w *Reliable) wrap(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
