package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Conductor/internal/agents"
	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/telemetry"
)

// Значения по умолчанию.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
)

// PrepareFunc заново разрешает endpoint и input шага.
// Вызывается перед КАЖДОЙ попыткой: retry должен видеть актуальное
// разрешимое состояние, кэширование разрешения между попытками
// не допускается.
type PrepareFunc func() (endpoint string, input map[string]any, err error)

// DispatchFunc выполняет одну попытку вызова агента.
type DispatchFunc func(ctx context.Context, endpoint string, input map[string]any, attempt int) (any, error)

// Outcome — итог выполнения шага после применения политики.
type Outcome struct {
	// Output — результат агента или fallback-placeholder.
	Output any

	// Fallback — true, если output замещён после исчерпания попыток
	// некритичного шага.
	Fallback bool

	// Attempts — количество выполненных попыток.
	Attempts int

	// LastErr — последняя ошибка попытки (для detail при fallback).
	LastErr error
}

// Policy оборачивает dispatcher ограниченным retry с линейным
// backoff и применяет классификацию критичности при исчерпании.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	registry    *agents.Registry
	logger      *slog.Logger
}

// New создаёт Policy. Нулевые параметры заменяются значениями
// по умолчанию.
func New(maxAttempts int, baseDelay time.Duration, registry *agents.Registry, logger *slog.Logger) *Policy {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if registry == nil {
		registry = agents.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		registry:    registry,
		logger:      logger,
	}
}

// Execute выполняет шаг: до maxAttempts попыток с задержкой
// attempt × baseDelay между ними.
//
// На исчерпании попыток:
//   - критичный агент → ошибка ErrCriticalExhausted, фатальная для run
//   - некритичный агент → Outcome с Fallback=true и синтетическим
//     placeholder-результатом; run продолжается
//
// Отмена контекста в любой точке (попытка или backoff) возвращает
// ErrCancelled без дальнейших попыток.
func (p *Policy) Execute(ctx context.Context, step domain.Step, prepare PrepareFunc, dispatch DispatchFunc) (*Outcome, error) {
	var lastErr error

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: step %s before attempt %d", ErrCancelled, step.Name, attempt)
		}

		endpoint, input, err := prepare()
		if err != nil {
			lastErr = err
		} else {
			var output any
			output, err = dispatch(ctx, endpoint, input, attempt)
			if err == nil {
				return &Outcome{Output: output, Attempts: attempt}, nil
			}
			if errors.Is(err, context.Canceled) {
				return nil, fmt.Errorf("%w: step %s during attempt %d", ErrCancelled, step.Name, attempt)
			}
			lastErr = err
		}

		p.logger.Warn("step attempt failed",
			"step", step.Name,
			"agent", step.Agent,
			"attempt", attempt,
			"max_attempts", p.maxAttempts,
			"error", lastErr,
		)

		if attempt == p.maxAttempts {
			break
		}

		// Линейный backoff: attempt × baseDelay.
		delay := time.Duration(attempt) * p.baseDelay
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: step %s during backoff after attempt %d", ErrCancelled, step.Name, attempt)
		}
	}

	return p.exhausted(step, lastErr)
}

// exhausted применяет классификацию критичности после провала
// всех попыток.
func (p *Policy) exhausted(step domain.Step, lastErr error) (*Outcome, error) {
	if p.registry.IsCritical(step.Agent) {
		return nil, fmt.Errorf("%w: step %s (agent %s) after %d attempts: %v",
			ErrCriticalExhausted, step.Name, step.Agent, p.maxAttempts, lastErr)
	}

	telemetry.StepFallbacks.WithLabelValues(step.Agent).Inc()

	p.logger.Warn("substituting fallback result for non-critical step",
		"step", step.Name,
		"agent", step.Agent,
		"attempts", p.maxAttempts,
		"last_error", lastErr,
	)

	return &Outcome{
		Output:   p.registry.Fallback(step.Agent),
		Fallback: true,
		Attempts: p.maxAttempts,
		LastErr:  lastErr,
	}, nil
}

// MaxAttempts возвращает границу попыток политики.
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}
