package audit

/*
Файл journal.go реализует журнал уведомлений роутера ("sent"/"received").

- Неблокирующая запись: события уходят в буферизованный канал, задержки БД
  не влияют на время доставки.
- Пакетная запись (Bulk Insert) по таймеру или при достижении лимита.
- Drain Pattern: Stop закрывает канал и ждёт финального flush. Отправка в
  канал и его закрытие разделены RWMutex: Log после Stop только теряет событие.
*/

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/xchain-router/internal/router"
)

// Storage определяет, куда физически сохраняются события.
type Storage interface {
	WriteBatch(ctx context.Context, events []Event) error
}

const (
	defaultBuffer   = 10000
	defaultBatch    = 100
	defaultInterval = 500 * time.Millisecond
)

type Journal struct {
	ch       chan Event
	repo     Storage
	logger   *zap.Logger
	wg       sync.WaitGroup
	batch    int
	interval time.Duration

	mu       sync.RWMutex // Log держит RLock на время отправки, Stop: Lock на закрытие
	isClosed bool
}

var _ router.Notifier = (*Journal)(nil)

// NewJournal создаёт журнал. bufferSize и interval берутся из конфига, нули заменяются дефолтами.
func NewJournal(repo Storage, logger *zap.Logger, bufferSize int, interval time.Duration) *Journal {
	if bufferSize <= 0 {
		bufferSize = defaultBuffer
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Journal{
		ch:       make(chan Event, bufferSize),
		repo:     repo,
		logger:   logger.With(zap.String("mod", "journal")),
		batch:    defaultBatch,
		interval: interval,
	}
}

func (j *Journal) Start() {
	j.wg.Add(1)
	go j.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет. Повторный вызов: no-op.
func (j *Journal) Stop() {
	j.mu.Lock()
	if j.isClosed {
		j.mu.Unlock()
		return
	}
	j.isClosed = true
	j.logger.Info("stopping journal: closing channel and flushing buffer...")
	close(j.ch)
	j.mu.Unlock()

	j.wg.Wait()
	j.logger.Info("journal stopped gracefully")
}

func (j *Journal) Sent(ctx context.Context, ev router.SentEvent) {
	j.Log(Event{
		TraceID:    traceID(ctx),
		Kind:       KindSent,
		ActionID:   ev.ActionID.Hex(),
		ChainID:    uint32(ev.DstChain),
		Account:    strings.ToLower(ev.Account.Hex()),
		Target:     strings.ToLower(ev.Target.Hex()),
		DeliveryID: ev.DeliveryID,
	})
}

func (j *Journal) Received(ctx context.Context, ev router.ReceivedEvent) {
	success := ev.Success
	j.Log(Event{
		TraceID:  traceID(ctx),
		Kind:     KindReceived,
		ActionID: ev.ActionID.Hex(),
		ChainID:  uint32(ev.SrcChain),
		Account:  strings.ToLower(ev.Account.Hex()),
		Target:   strings.ToLower(ev.Target.Hex()),
		Success:  &success,
	})
}

func (j *Journal) Log(event Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.isClosed {
		j.logger.Warn("journal event dropped: journal is stopping", zap.String("id", event.ID))
		return
	}

	// Load Shedding: при переполнении пишем в лог и не блокируем роутер
	select {
	case j.ch <- event:
	default:
		j.logger.Error("journal_buffer_overflow",
			zap.String("kind", event.Kind),
			zap.String("action_id", event.ActionID),
			zap.String("trace_id", event.TraceID),
		)
	}
}

func (j *Journal) worker() {
	defer j.wg.Done()

	batch := make([]Event, 0, j.batch)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Background: основной контекст может быть уже закрыт
			if err := j.repo.WriteBatch(context.Background(), batch); err != nil {
				j.logger.Error("journal flush failed", zap.Error(err), zap.Int("events", len(batch)))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case event, ok := <-j.ch:
			if !ok {
				flush() // Финальный сброс
				j.logger.Info("journal worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= j.batch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func traceID(ctx context.Context) string {
	if id, ok := ctx.Value(router.TraceIDKey).(string); ok {
		return id
	}
	return ""
}
