package progress

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conductor/internal/domain"
)

// Ошибки хранилища событий.
var (
	// ErrNoEvents — для correlation ID не записано ни одного события.
	ErrNoEvents = errors.New("no progress events for run")
)

// Store — узкий интерфейс append-only журнала событий.
//
// Append присваивает событию Seq (монотонный в рамках run) и делает
// запись durable до возврата: вызывающая сторона вправе упасть сразу
// после Append, и историю всё равно можно восстановить.
// List возвращает события одного run в порядке эмиссии.
type Store interface {
	Append(ctx context.Context, e *domain.ProgressEvent) error
	List(ctx context.Context, correlationID uuid.UUID) ([]domain.ProgressEvent, error)
}

// NewEvent создаёт событие с присвоенным ID и временем эмиссии.
// Seq присваивает хранилище.
func NewEvent(projectID string, correlationID uuid.UUID, stepName, status, detail string) *domain.ProgressEvent {
	return &domain.ProgressEvent{
		ID:            uuid.New(),
		ProjectID:     projectID,
		CorrelationID: correlationID,
		StepName:      stepName,
		Status:        status,
		Timestamp:     time.Now().UTC(),
		Detail:        detail,
	}
}
