package registry

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// listenSignals: универсальный цикл для "живучей" подписки на сигналы Redis.
// Обрабатывает переподключения, логирование и разбор сигналов формата "key:value".
func listenSignals(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	channel string,
	onReconnect func() error, // Callback для синхронизации при переподключении
	onSignal func(key, value string), // Callback для обработки сообщения
) {
	for {
		pubsub := rdb.Subscribe(ctx, channel)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to subscribe", zap.String("chan", channel), zap.Error(err))
			if !sleepCtx(ctx, 5*time.Second) {
				return
			}
			continue
		}

		// Синхронизация при каждом успешном коннекте: сигналы за время разрыва потеряны
		if err := onReconnect(); err != nil {
			logger.Error("sync failed on reconnect", zap.Error(err))
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}

				key, value, found := strings.Cut(msg.Payload, ":")
				if !found || key == "" {
					logger.Error("invalid signal format", zap.String("payload", msg.Payload))
					continue
				}
				onSignal(strings.TrimSpace(key), strings.TrimSpace(value))
			}
		}

		pubsub.Close()
		if !sleepCtx(ctx, time.Second) {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// warmupHash прогревает L2 (Redis) из источника правды, если он пуст.
// Распределенная блокировка (SetNX) гарантирует, что греет только один инстанс.
func warmupHash(ctx context.Context, rdb *redis.Client, logger *zap.Logger, key, lockKey string, values map[string]string) error {
	if rdb == nil || len(values) == 0 {
		return nil
	}

	ok, err := rdb.SetNX(ctx, lockKey, "processing", 30*time.Second).Result()
	if err != nil || !ok {
		return nil // Либо ошибка сети, либо другой уже греет кэш
	}

	count, err := rdb.HLen(ctx, key).Result()
	if err != nil {
		count = 0
		logger.Warn("could not check Redis hash size, proceeding with warm-up",
			zap.String("key", key), zap.Error(err))
	}
	if count > 0 {
		return nil
	}

	logger.Info("Redis registry is empty, performing warm-up",
		zap.String("key", key), zap.Int("count", len(values)))

	pipe := rdb.Pipeline()
	for field, value := range values {
		pipe.HSet(ctx, key, field, value)
	}
	_, err = pipe.Exec(ctx)
	return err
}
