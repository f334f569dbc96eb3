package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — одно выполнение manifest.
//
// Run создаётся при старте и мутируется только оркестратором
// в строгом порядке шагов. После достижения терминального статуса
// run становится неизменяемым.
type Run struct {
	// CorrelationID — уникальный токен, идентифицирующий выполнение.
	// По нему партиционируются все события и состояние.
	CorrelationID uuid.UUID `json:"correlation_id"`

	// ProjectID — идентификатор проекта, переданный вызывающей стороной.
	ProjectID string `json:"project_id"`

	// ManifestName — имя выполняемого manifest (для истории).
	ManifestName string `json:"manifest_name,omitempty"`

	// Status — текущий статус run.
	Status RunStatus `json:"status"`

	// Steps — результаты шагов по имени шага.
	Steps map[string]*StepResult `json:"steps"`

	// StartedAt — время старта run.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время завершения. Nil, пока run выполняется.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — текст ошибки, если run завершился с FAILED.
	// Всегда называет конкретный шаг, остановивший run.
	Error string `json:"error,omitempty"`

	// IdempotencyKey — ключ идемпотентности для scheduled runs.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// NewRun создаёт run в статусе STARTED с pending-результатами
// для каждого шага manifest.
func NewRun(m *Manifest, projectID string) *Run {
	run := &Run{
		CorrelationID: uuid.New(),
		ProjectID:     projectID,
		ManifestName:  m.Name,
		Status:        RunStatusStarted,
		Steps:         make(map[string]*StepResult, len(m.Steps)),
		StartedAt:     time.Now().UTC(),
	}
	if run.ProjectID == "" {
		run.ProjectID = m.Project
	}
	if run.ProjectID == "" {
		run.ProjectID = run.CorrelationID.String()
	}
	for i := range m.Steps {
		run.Steps[m.Steps[i].Name] = &StepResult{Status: StepStatusPending}
	}
	return run
}

// MarkRunning переводит run в статус RUNNING.
func (r *Run) MarkRunning() {
	r.Status = RunStatusRunning
}

// MarkCompleted переводит run в терминальный статус COMPLETED.
func (r *Run) MarkCompleted() {
	now := time.Now().UTC()
	r.Status = RunStatusCompleted
	r.FinishedAt = &now
}

// MarkFailed переводит run в терминальный статус FAILED с ошибкой.
func (r *Run) MarkFailed(err string) {
	now := time.Now().UTC()
	r.Status = RunStatusFailed
	r.FinishedAt = &now
	r.Error = err
}

// Clone возвращает глубокую копию run. Читатели вне горутины
// исполнителя (API, CLI) работают с копиями, а не с живым состоянием.
func (r *Run) Clone() *Run {
	out := *r
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		out.FinishedAt = &t
	}
	out.Steps = make(map[string]*StepResult, len(r.Steps))
	for name, sr := range r.Steps {
		c := *sr
		out.Steps[name] = &c
	}
	return &out
}

// IsFinished возвращает true, если run завершён.
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// StepResult — результат выполнения одного шага.
type StepResult struct {
	// Status — текущий статус шага.
	Status StepStatus `json:"status"`

	// Output — результат шага. Заполняется при COMPLETED (реальный output)
	// или FALLBACK (синтетический placeholder).
	Output any `json:"output,omitempty"`

	// Error — текст последней ошибки при FAILED или FALLBACK.
	Error string `json:"error,omitempty"`

	// DurationMs — длительность выполнения шага в миллисекундах
	// (все попытки вместе с backoff).
	DurationMs int64 `json:"duration_ms,omitempty"`
}

// MarkRunning переводит результат в RUNNING.
func (sr *StepResult) MarkRunning() {
	sr.Status = StepStatusRunning
}

// MarkCompleted фиксирует успешный результат.
func (sr *StepResult) MarkCompleted(output any, dur time.Duration) {
	sr.Status = StepStatusCompleted
	sr.Output = output
	sr.DurationMs = dur.Milliseconds()
}

// MarkFallback фиксирует замещённый результат после исчерпания
// попыток некритичного шага.
func (sr *StepResult) MarkFallback(output any, lastErr string, dur time.Duration) {
	sr.Status = StepStatusFallback
	sr.Output = output
	sr.Error = lastErr
	sr.DurationMs = dur.Milliseconds()
}

// MarkFailed фиксирует провал шага.
func (sr *StepResult) MarkFailed(err string, dur time.Duration) {
	sr.Status = StepStatusFailed
	sr.Error = err
	sr.DurationMs = dur.Milliseconds()
}
