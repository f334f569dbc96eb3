package progress

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Conductor/internal/domain"
)

// scannerMaxBytes — лимит длины одной JSONL-строки.
const scannerMaxBytes = 4 * 1024 * 1024

// JSONLStore — файловая реализация Store: один JSONL-файл на run.
//
// Каждое событие — одна строка JSON, fsync до возврата из Append:
// процесс вправе упасть сразу после записи, история останется
// восстановимой. Retention файлового журнала не ограничивается —
// файлы runs ротируются внешними средствами.
type JSONLStore struct {
	dir string

	mu      sync.Mutex
	nextSeq map[uuid.UUID]int64
}

// NewJSONLStore создаёт JSONLStore в каталоге dir.
func NewJSONLStore(dir string) (*JSONLStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create progress dir %s: %w", dir, err)
	}
	return &JSONLStore{
		dir:     dir,
		nextSeq: make(map[uuid.UUID]int64),
	}, nil
}

// Append реализует Store.
func (s *JSONLStore) Append(_ context.Context, e *domain.ProgressEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.seqLocked(e.CorrelationID)
	if err != nil {
		return err
	}
	e.Seq = seq

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	f, err := os.OpenFile(s.path(e.CorrelationID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync run log: %w", err)
	}

	s.nextSeq[e.CorrelationID] = seq + 1
	return nil
}

// List реализует Store.
func (s *JSONLStore) List(_ context.Context, correlationID uuid.UUID) ([]domain.ProgressEvent, error) {
	events, err := s.read(correlationID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNoEvents
	}
	return events, nil
}

// seqLocked возвращает следующий seq для run, восстанавливая счётчик
// из файла после рестарта процесса.
func (s *JSONLStore) seqLocked(correlationID uuid.UUID) (int64, error) {
	if seq, ok := s.nextSeq[correlationID]; ok {
		return seq, nil
	}

	events, err := s.read(correlationID)
	if err != nil && !errors.Is(err, ErrNoEvents) {
		return 0, err
	}

	var next int64 = 1
	if n := len(events); n > 0 {
		next = events[n-1].Seq + 1
	}
	s.nextSeq[correlationID] = next
	return next, nil
}

func (s *JSONLStore) read(correlationID uuid.UUID) ([]domain.ProgressEvent, error) {
	f, err := os.Open(s.path(correlationID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoEvents
		}
		return nil, fmt.Errorf("open run log: %w", err)
	}
	defer f.Close()

	var events []domain.ProgressEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), scannerMaxBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e domain.ProgressEvent
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("corrupt run log %s: %w", correlationID, err)
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan run log: %w", err)
	}
	return events, nil
}

func (s *JSONLStore) path(correlationID uuid.UUID) string {
	return filepath.Join(s.dir, correlationID.String()+".jsonl")
}
