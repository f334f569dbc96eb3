package domain

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	STARTED → RUNNING → COMPLETED
//	                  ↘ FAILED
type RunStatus string

const (
	// RunStatusStarted — manifest загружен, контекст построен,
	// первый шаг ещё не начался.
	RunStatusStarted RunStatus = "STARTED"

	// RunStatusRunning — run в процессе выполнения шагов.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusCompleted — все шаги достигли COMPLETED или FALLBACK.
	RunStatusCompleted RunStatus = "COMPLETED"

	// RunStatusFailed — критичный шаг исчерпал попытки, либо run отменён.
	RunStatusFailed RunStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed:
		return true
	default:
		return false
	}
}

// StepStatus — статус выполнения одного шага.
//
// Жизненный цикл (монотонный, терминальные состояния не пересматриваются):
//
//	PENDING → RUNNING → COMPLETED
//	                  ↘ FAILED
//	                  ↘ FALLBACK
type StepStatus string

const (
	// StepStatusPending — шаг ещё не начал выполняться.
	StepStatusPending StepStatus = "PENDING"

	// StepStatusRunning — шаг выполняется (идут попытки dispatch).
	StepStatusRunning StepStatus = "RUNNING"

	// StepStatusCompleted — шаг успешно завершён, output реальный.
	StepStatusCompleted StepStatus = "COMPLETED"

	// StepStatusFailed — шаг исчерпал попытки и критичен для run.
	StepStatusFailed StepStatus = "FAILED"

	// StepStatusFallback — шаг исчерпал попытки, но некритичен:
	// output замещён синтетическим placeholder'ом.
	StepStatusFallback StepStatus = "FALLBACK"
)

// IsTerminal возвращает true, если статус финальный.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusCompleted, StepStatusFailed, StepStatusFallback:
		return true
	default:
		return false
	}
}
