package progress

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Conductor/internal/domain"
)

// defaultMaxEventsPerRun — лимит retention на один run.
const defaultMaxEventsPerRun = 1000

// MemoryStore — in-memory реализация Store.
//
// Состояние партиционировано по correlation ID; разные runs не делят
// мутируемое состояние. Retention ограничен: при превышении лимита
// старейшие события обрезаются, но последнее терминальное событие
// каждого шага никогда не удаляется.
type MemoryStore struct {
	mu      sync.RWMutex
	events  map[uuid.UUID][]domain.ProgressEvent
	nextSeq map[uuid.UUID]int64
	maxPer  int
}

// NewMemoryStore создаёт MemoryStore с retention по умолчанию.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithCap(defaultMaxEventsPerRun)
}

// NewMemoryStoreWithCap создаёт MemoryStore с заданным лимитом
// событий на run. maxPer <= 0 отключает обрезку.
func NewMemoryStoreWithCap(maxPer int) *MemoryStore {
	return &MemoryStore{
		events:  make(map[uuid.UUID][]domain.ProgressEvent),
		nextSeq: make(map[uuid.UUID]int64),
		maxPer:  maxPer,
	}
}

// Append реализует Store.
func (s *MemoryStore) Append(_ context.Context, e *domain.ProgressEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := e.CorrelationID
	s.nextSeq[id]++
	e.Seq = s.nextSeq[id]

	s.events[id] = append(s.events[id], *e)

	if s.maxPer > 0 && len(s.events[id]) > s.maxPer {
		s.events[id] = trim(s.events[id], s.maxPer)
	}

	return nil
}

// List реализует Store.
func (s *MemoryStore) List(_ context.Context, correlationID uuid.UUID) ([]domain.ProgressEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.events[correlationID]
	if !ok {
		return nil, ErrNoEvents
	}

	out := make([]domain.ProgressEvent, len(stored))
	copy(out, stored)
	return out, nil
}

// trim обрезает историю до limit событий, сохраняя порядок и
// последнее терминальное событие каждого шага.
func trim(events []domain.ProgressEvent, limit int) []domain.ProgressEvent {
	// Индексы последних терминальных событий по шагам.
	keep := make(map[int]bool)
	lastTerminal := make(map[string]int)
	for i := range events {
		if events[i].IsStepTerminal() {
			lastTerminal[events[i].StepName] = i
		}
	}
	for _, idx := range lastTerminal {
		keep[idx] = true
	}

	excess := len(events) - limit
	out := make([]domain.ProgressEvent, 0, limit)
	for i := range events {
		if excess > 0 && !keep[i] {
			excess--
			continue
		}
		out = append(out, events[i])
	}
	return out
}
