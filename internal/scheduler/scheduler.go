package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/repo"
)

// RunStarter запускает run для manifest. Реализуется HTTP-клиентом
// API сервера; в тестах подменяется.
type RunStarter interface {
	StartRun(ctx context.Context, manifestName, projectID, idempotencyKey string) (uuid.UUID, error)
}

// Scheduler — планировщик, обрабатывающий due schedules.
type Scheduler struct {
	scheduleRepo *repo.ScheduleRepo
	runRepo      *repo.RunRepo
	starter      RunStarter
	logger       *slog.Logger
	batchSize    int
}

// Config — конфигурация Scheduler.
type Config struct {
	ScheduleRepo *repo.ScheduleRepo
	RunRepo      *repo.RunRepo
	Starter      RunStarter
	Logger       *slog.Logger
	BatchSize    int // количество schedules за один тик (default: 100)
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		scheduleRepo: cfg.ScheduleRepo,
		runRepo:      cfg.RunRepo,
		starter:      cfg.Starter,
		logger:       logger,
		batchSize:    batchSize,
	}
}

// Tick выполняет один тик планировщика.
//
// 1. Находит due schedules (enabled=true, next_due_at <= now)
// 2. Для каждого schedule запускает run через RunStarter
// 3. Обновляет next_due_at
//
// Ошибки одного schedule не блокируют обработку остальных.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := time.Now()

	schedules, err := s.scheduleRepo.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("list due schedules: %w", err)
	}

	if len(schedules) == 0 {
		return nil
	}

	s.logger.Debug("found due schedules", "count", len(schedules))

	var processed, started int
	for i := range schedules {
		sched := &schedules[i]

		runStarted, err := s.processSchedule(ctx, sched, now)
		if err != nil {
			s.logger.Error("failed to process schedule",
				"schedule_id", sched.ID,
				"manifest", sched.ManifestName,
				"error", err,
			)
			continue
		}

		processed++
		if runStarted {
			started++
		}
	}

	s.logger.Info("scheduler tick completed",
		"due", len(schedules),
		"processed", processed,
		"runs_started", started,
	)

	return nil
}

// processSchedule обрабатывает один schedule.
// Возвращает true, если run был запущен (не был дубликатом).
func (s *Scheduler) processSchedule(ctx context.Context, sched *domain.Schedule, now time.Time) (bool, error) {
	// Ключ идемпотентности: "{schedule_id}_{next_due_at_unix}".
	// Гарантирует, что для одного schedule и конкретного времени
	// будет запущен только один run.
	idempKey := fmt.Sprintf("%s_%d", sched.ID, sched.NextDueAt.Unix())

	var runStarted bool
	var runID uuid.UUID

	existingRun, err := s.findExisting(ctx, idempKey)
	if err != nil {
		return false, fmt.Errorf("check idempotency: %w", err)
	}

	if existingRun != nil {
		s.logger.Debug("run already exists (idempotency)",
			"schedule_id", sched.ID,
			"correlation_id", existingRun.CorrelationID,
			"idempotency_key", idempKey,
		)
		runID = existingRun.CorrelationID
	} else {
		runID, err = s.starter.StartRun(ctx, sched.ManifestName, sched.ProjectID, idempKey)
		if err != nil {
			return false, fmt.Errorf("start run: %w", err)
		}

		s.logger.Info("started run from schedule",
			"correlation_id", runID,
			"schedule_id", sched.ID,
			"manifest", sched.ManifestName,
		)
		runStarted = true
	}

	nextDue, err := CalculateNextDue(sched, now)
	if err != nil {
		// Schedule некорректный: next_due_at не трогаем, чтобы
		// оператор увидел зависший schedule, а не тихий пропуск.
		s.logger.Error("failed to calculate next due",
			"schedule_id", sched.ID,
			"error", err,
		)
		return runStarted, nil
	}

	sched.RecordRun(runID, nextDue)
	if err := s.scheduleRepo.Update(ctx, sched); err != nil {
		return runStarted, fmt.Errorf("update schedule: %w", err)
	}

	return runStarted, nil
}

// findExisting ищет run по ключу идемпотентности. Без runRepo
// (scheduler без прямого доступа к БД runs) проверка пропускается.
func (s *Scheduler) findExisting(ctx context.Context, idempKey string) (*domain.Run, error) {
	if s.runRepo == nil {
		return nil, nil
	}
	run, err := s.runRepo.GetByIdempotencyKey(ctx, idempKey)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}
