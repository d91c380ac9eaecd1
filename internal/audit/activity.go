package audit

/*
Файл activity.go реализует журнал активности пользователей: генерации,
публикации, правки и удаления политик, покупки подписок.

- Non-blocking Logging: обработчики отдают событие в буферизованный канал и
  не ждут базу. При переполнении событие уходит в zap (load shedding).
- Batching: события копятся в памяти и пишутся пачкой по таймеру или при
  достижении размера пачки.
- Drain Pattern: Stop закрывает вход, воркер вычитывает остатки и делает
  финальный flush. Потерь при штатной остановке нет.
*/

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически будут сохраняться события
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []Event) error
}

// Auditor — то, что нужно потребителям журнала.
type Auditor interface {
	Log(event Event)
}

// Options — размеры буфера и частота сброса.
type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	BufferGauge   prometheus.Gauge // опционально
}

func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = 1000
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 500 * time.Millisecond
	}
	return o
}

type ActivityLog struct {
	ch     chan Event
	repo   StorageInterface
	opts   Options
	logger *zap.Logger
	wg     sync.WaitGroup

	// Защищает ch от отправки после close
	mu     sync.RWMutex
	closed bool
}

func NewActivityLog(repo StorageInterface, opts Options, logger *zap.Logger) *ActivityLog {
	opts = opts.withDefaults()
	return &ActivityLog{
		ch:     make(chan Event, opts.BufferSize),
		repo:   repo,
		opts:   opts,
		logger: logger.Named("activity"),
	}
}

func (a *ActivityLog) Start() {
	a.wg.Add(1)
	go a.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет. Повторный вызов безопасен.
func (a *ActivityLog) Stop() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.ch)
	a.mu.Unlock()

	a.logger.Info("stopping activity log: flushing buffer...")
	a.wg.Wait()
	a.logger.Info("activity log stopped gracefully")
}

func (a *ActivityLog) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		a.logger.Warn("activity event dropped: log is stopping", zap.String("id", event.ID))
		return
	}

	select {
	case a.ch <- event:
		if a.opts.BufferGauge != nil {
			a.opts.BufferGauge.Set(float64(len(a.ch)))
		}
	default:
		// Backpressure: не блокируем запрос пользователя, оставляем след в логах
		a.logger.Error("activity_buffer_overflow",
			zap.String("action", event.Action),
			zap.String("user_id", event.UserID),
			zap.String("trace_id", event.TraceID),
		)
	}
}

func (a *ActivityLog) worker() {
	defer a.wg.Done()

	batch := make([]Event, 0, a.opts.BatchSize)
	ticker := time.NewTicker(a.opts.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: контекст запроса к этому моменту уже закрыт
		if err := a.repo.WriteBatch(context.Background(), batch); err != nil {
			a.logger.Error("activity flush failed", zap.Int("events", len(batch)), zap.Error(err))
		}
		batch = make([]Event, 0, a.opts.BatchSize)
		if a.opts.BufferGauge != nil {
			a.opts.BufferGauge.Set(float64(len(a.ch)))
		}
	}

	for {
		select {
		case event, ok := <-a.ch:
			if !ok {
				// Канал закрыт в Stop(): остатки уже вычитаны
				flush()
				return
			}
			batch = append(batch, event)
			if len(batch) >= a.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
