package progress

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/telemetry"
)

// watchBuffer — размер буфера подписчика. Подписчик, отставший на
// столько событий, отключается и должен пересинхронизироваться
// через Events().
const watchBuffer = 256

// Mirror — необязательный дополнительный получатель событий
// (например, RabbitMQ publisher для внешних потребителей).
// Ошибки mirror не фатальны: durable-запись уже выполнена.
type Mirror interface {
	PublishProgress(ctx context.Context, e *domain.ProgressEvent) error
}

// Recorder — точка записи progress-событий.
//
// Record — последняя операция каждого перехода состояния: событие
// durable в Store до возврата, затем рассылается подписчикам строго
// в порядке эмиссии (мьютекс удерживается от append до fan-out,
// поэтому перестановка событий невозможна).
type Recorder struct {
	store  Store
	mirror Mirror
	logger *slog.Logger

	mu       sync.Mutex
	watchers map[uuid.UUID]map[int]chan domain.ProgressEvent
	nextID   int
}

// NewRecorder создаёт Recorder поверх хранилища.
// mirror может быть nil.
func NewRecorder(store Store, mirror Mirror, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:    store,
		mirror:   mirror,
		logger:   logger,
		watchers: make(map[uuid.UUID]map[int]chan domain.ProgressEvent),
	}
}

// Record записывает один переход состояния.
func (r *Recorder) Record(ctx context.Context, correlationID uuid.UUID, projectID, stepName, status, detail string) error {
	e := NewEvent(projectID, correlationID, stepName, status, detail)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Append(ctx, e); err != nil {
		return err
	}
	telemetry.ProgressEvents.Inc()

	for id, ch := range r.watchers[correlationID] {
		select {
		case ch <- *e:
		default:
			// Отставший подписчик: отключаем, чтобы не блокировать
			// запись и не нарушать порядок доставки остальным.
			r.logger.Warn("dropping slow progress watcher",
				"correlation_id", correlationID,
			)
			close(ch)
			delete(r.watchers[correlationID], id)
		}
	}

	if r.mirror != nil {
		if err := r.mirror.PublishProgress(ctx, e); err != nil {
			r.logger.Warn("failed to mirror progress event",
				"correlation_id", correlationID,
				"error", err,
			)
		}
	}

	return nil
}

// Events возвращает полную упорядоченную историю run.
func (r *Recorder) Events(ctx context.Context, correlationID uuid.UUID) ([]domain.ProgressEvent, error) {
	return r.store.List(ctx, correlationID)
}

// Snapshot возвращает свёрнутое текущее состояние run.
func (r *Recorder) Snapshot(ctx context.Context, correlationID uuid.UUID) (*Snapshot, error) {
	events, err := r.store.List(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	return Fold(events), nil
}

// Watch подписывает на живой поток событий run.
//
// Возвращает канал событий и функцию отписки. События доставляются
// в порядке эмиссии; история до момента подписки не реплеится —
// потребитель сначала забирает Events(), затем подписывается
// (или сверяет Seq).
func (r *Recorder) Watch(correlationID uuid.UUID) (<-chan domain.ProgressEvent, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan domain.ProgressEvent, watchBuffer)
	if r.watchers[correlationID] == nil {
		r.watchers[correlationID] = make(map[int]chan domain.ProgressEvent)
	}
	id := r.nextID
	r.nextID++
	r.watchers[correlationID][id] = ch

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if ch, ok := r.watchers[correlationID][id]; ok {
			close(ch)
			delete(r.watchers[correlationID], id)
		}
	}
	return ch, cancel
}

// CloseRun закрывает подписки завершённого run.
func (r *Recorder) CloseRun(correlationID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ch := range r.watchers[correlationID] {
		close(ch)
	}
	delete(r.watchers, correlationID)
}
