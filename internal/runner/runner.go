package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conductor/internal/agents"
	"github.com/shaiso/Conductor/internal/dispatch"
	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/policy"
	"github.com/shaiso/Conductor/internal/progress"
	"github.com/shaiso/Conductor/internal/resolve"
	"github.com/shaiso/Conductor/internal/telemetry"
)

// Runner выполняет runs.
//
// Runner — центральный компонент системы, который:
//   - Создаёт Run из manifest и строит контекст разрешения
//   - Выполняет шаги строго последовательно через Policy и Dispatcher
//   - Публикует output каждого шага для переменных следующих шагов
//   - Записывает ProgressEvent на каждом переходе состояния
//   - Финализирует runs (COMPLETED/FAILED)
type Runner struct {
	dispatcher *dispatch.Dispatcher
	policy     *policy.Policy
	recorder   *progress.Recorder
	registry   *agents.Registry

	// Active runs — runs в процессе выполнения (correlationID → cancel)
	active map[uuid.UUID]context.CancelFunc

	// Index всех runs процесса (включая завершённые) для запросов API.
	runs map[uuid.UUID]*domain.Run

	mu     sync.RWMutex
	logger *slog.Logger
}

// Config — конфигурация Runner.
type Config struct {
	Dispatcher *dispatch.Dispatcher
	Policy     *policy.Policy
	Recorder   *progress.Recorder
	Registry   *agents.Registry
	Logger     *slog.Logger
}

// New создаёт Runner. Nil-поля конфигурации заменяются значениями
// по умолчанию.
func New(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = agents.Default()
	}
	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = dispatch.New(0, logger)
	}
	pol := cfg.Policy
	if pol == nil {
		pol = policy.New(0, 0, registry, logger)
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = progress.NewRecorder(progress.NewMemoryStore(), nil, logger)
	}
	return &Runner{
		dispatcher: dispatcher,
		policy:     pol,
		recorder:   recorder,
		registry:   registry,
		active:     make(map[uuid.UUID]context.CancelFunc),
		runs:       make(map[uuid.UUID]*domain.Run),
		logger:     logger,
	}
}

// Result — терминальный результат run, возвращаемый вызывающей стороне.
type Result struct {
	OK            bool                          `json:"ok"`
	ProjectID     string                        `json:"projectId"`
	CorrelationID uuid.UUID                     `json:"correlationId"`
	Steps         map[string]*domain.StepResult `json:"steps"`
	Error         string                        `json:"error,omitempty"`
}

// Execute выполняет manifest от начала до терминального статуса.
//
// Шаги выполняются строго последовательно. Переменные каждого шага
// разрешаются заново перед каждой попыткой. Run переходит в FAILED
// в момент исчерпания попыток критичного шага или при отмене;
// дальнейшие шаги не выполняются.
//
// Execute блокируется до завершения run; для асинхронного запуска
// вызывающая сторона запускает его в собственной горутине.
func (r *Runner) Execute(ctx context.Context, m *domain.Manifest, projectID string) (*Result, error) {
	if m == nil {
		return nil, ErrNilManifest
	}
	return r.ExecuteRun(ctx, m, domain.NewRun(m, projectID))
}

// ExecuteRun выполняет заранее созданный run. Используется для
// асинхронного запуска (correlation ID нужен вызывающей стороне
// до завершения) и для scheduled runs с ключом идемпотентности.
func (r *Runner) ExecuteRun(ctx context.Context, m *domain.Manifest, run *domain.Run) (*Result, error) {
	if m == nil {
		return nil, ErrNilManifest
	}

	// Терминальные события должны записываться даже после отмены run.
	recordCtx := context.WithoutCancel(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	r.register(run, cancel)
	defer r.deregister(run.CorrelationID)

	logger := telemetry.WithCorrelationID(r.logger, run.CorrelationID.String()).With(
		"project_id", run.ProjectID,
		"manifest", m.Name,
	)
	logger.Info("starting run",
		"steps", len(m.Steps),
		"retry_budget", r.policy.MaxAttempts(),
	)

	rc := resolve.NewContext(run.ProjectID, m.Constants, run.CorrelationID.String(), run.StartedAt)

	r.record(recordCtx, run, "", string(domain.RunStatusStarted), m.Name)
	r.mutate(run.MarkRunning)
	r.record(recordCtx, run, "", string(domain.RunStatusRunning), "")

	for i := range m.Steps {
		step := m.Steps[i]
		if err := r.executeStep(runCtx, recordCtx, run, step, rc, logger); err != nil {
			r.mutate(func() { run.MarkFailed(err.Error()) })
			r.record(recordCtx, run, "", string(domain.RunStatusFailed), err.Error())
			r.recorder.CloseRun(run.CorrelationID)
			telemetry.RunsTotal.WithLabelValues(string(domain.RunStatusFailed)).Inc()
			logger.Error("run failed", "step", step.Name, "error", err)
			return r.result(run), err
		}
	}

	r.mutate(run.MarkCompleted)
	r.record(recordCtx, run, "", string(domain.RunStatusCompleted), "")
	r.recorder.CloseRun(run.CorrelationID)
	telemetry.RunsTotal.WithLabelValues(string(domain.RunStatusCompleted)).Inc()
	logger.Info("run completed", "duration_ms", run.Duration().Milliseconds())

	return r.result(run), nil
}

// executeStep выполняет один шаг через политику retry и публикует
// его результат в контекст разрешения.
func (r *Runner) executeStep(ctx, recordCtx context.Context, run *domain.Run, step domain.Step, rc *resolve.Context, logger *slog.Logger) error {
	sr := run.Steps[step.Name]
	r.mutate(sr.MarkRunning)
	r.record(recordCtx, run, step.Name, string(domain.StepStatusRunning), step.Agent)

	stepLogger := telemetry.WithStep(logger, step.Name, step.Agent)

	started := time.Now()

	// Разрешение выполняется заново перед каждой попыткой: retry
	// должен видеть актуальное разрешимое состояние.
	prepare := func() (string, map[string]any, error) {
		endpoint := r.resolveEndpoint(step, rc)
		input, _ := resolve.Resolve(step.Input, rc).(map[string]any)
		return endpoint, input, nil
	}

	dispatchFn := func(ctx context.Context, endpoint string, input map[string]any, attempt int) (any, error) {
		return r.dispatcher.Dispatch(ctx, dispatch.Request{
			StepName:      step.Name,
			Agent:         step.Agent,
			Endpoint:      endpoint,
			Input:         input,
			ProjectID:     run.ProjectID,
			CorrelationID: run.CorrelationID.String(),
			Attempt:       attempt,
		})
	}

	outcome, err := r.policy.Execute(ctx, step, prepare, dispatchFn)
	dur := time.Since(started)
	telemetry.StepDuration.WithLabelValues(step.Agent).Observe(dur.Seconds())

	if err != nil {
		r.mutate(func() { sr.MarkFailed(err.Error(), dur) })
		r.record(recordCtx, run, step.Name, string(domain.StepStatusFailed), err.Error())
		return err
	}

	outputPath := resolve.ResolveString(step.Output, rc)
	rc.AddStepOutput(step.Name, outcome.Output, outputPath)

	if outcome.Fallback {
		detail := ""
		if outcome.LastErr != nil {
			detail = outcome.LastErr.Error()
		}
		r.mutate(func() { sr.MarkFallback(outcome.Output, detail, dur) })
		r.record(recordCtx, run, step.Name, string(domain.StepStatusFallback), detail)
		return nil
	}

	r.mutate(func() { sr.MarkCompleted(outcome.Output, dur) })
	r.record(recordCtx, run, step.Name, string(domain.StepStatusCompleted), "")
	stepLogger.Info("step completed",
		"attempts", outcome.Attempts,
		"duration_ms", dur.Milliseconds(),
	)
	return nil
}

// resolveEndpoint возвращает адрес агента для шага: явный override
// из manifest (с разрешением переменных) либо адрес из реестра.
func (r *Runner) resolveEndpoint(step domain.Step, rc *resolve.Context) string {
	if step.Endpoint != "" {
		return resolve.ResolveString(step.Endpoint, rc)
	}
	endpoint, _ := r.registry.Endpoint(step.Agent)
	return endpoint
}

// record записывает ProgressEvent; ошибка записи логируется,
// но не прерывает run.
func (r *Runner) record(ctx context.Context, run *domain.Run, stepName, status, detail string) {
	if err := r.recorder.Record(ctx, run.CorrelationID, run.ProjectID, stepName, status, detail); err != nil {
		r.logger.Error("failed to record progress event",
			"correlation_id", run.CorrelationID,
			"step", stepName,
			"status", status,
			"error", err,
		)
	}
}

// result формирует терминальный результат run.
func (r *Runner) result(run *domain.Run) *Result {
	return &Result{
		OK:            run.Status == domain.RunStatusCompleted,
		ProjectID:     run.ProjectID,
		CorrelationID: run.CorrelationID,
		Steps:         run.Steps,
		Error:         run.Error,
	}
}

// mutate выполняет изменение состояния run под общим мьютексом.
// Исполнитель остаётся единственным писателем; мьютекс нужен,
// чтобы читатели индекса снимали согласованные копии.
func (r *Runner) mutate(fn func()) {
	r.mu.Lock()
	fn()
	r.mu.Unlock()
}

// register добавляет run в активные и в индекс.
func (r *Runner) register(run *domain.Run, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[run.CorrelationID] = cancel
	r.runs[run.CorrelationID] = run
}

// deregister убирает run из активных; индекс сохраняет run для запросов.
func (r *Runner) deregister(correlationID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.active[correlationID]; ok {
		cancel()
		delete(r.active, correlationID)
	}
}

// Cancel отменяет активный run. Отмена прерывает текущую попытку
// или backoff; run завершается FAILED с ошибкой отмены, отличимой
// от таймаута.
func (r *Runner) Cancel(correlationID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cancel, ok := r.active[correlationID]
	if !ok {
		if _, known := r.runs[correlationID]; known {
			return fmt.Errorf("%w: %s", ErrRunNotActive, correlationID)
		}
		return fmt.Errorf("%w: %s", ErrRunNotFound, correlationID)
	}

	r.logger.Info("cancelling run", "correlation_id", correlationID)
	cancel()
	return nil
}

// Run возвращает копию run по correlation ID. Живое состояние
// принадлежит горутине исполнителя и наружу не отдаётся.
func (r *Runner) Run(correlationID uuid.UUID) (*domain.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[correlationID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, correlationID)
	}
	return run.Clone(), nil
}

// Runs возвращает копии всех известных процессу runs, новые первыми.
func (r *Runner) Runs() []*domain.Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Run, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, run.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// ActiveRunsCount возвращает количество выполняющихся runs.
func (r *Runner) ActiveRunsCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// IsCancelled сообщает, вызвана ли ошибка run отменой, а не
// провалом шага.
func IsCancelled(err error) bool {
	return errors.Is(err, policy.ErrCancelled)
}
