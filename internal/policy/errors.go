package policy

import "errors"

// Ошибки политики retry/criticality.
var (
	// ErrCriticalExhausted — критичный шаг исчерпал все попытки.
	// Фатально для run: оркестратор не выполняет дальнейшие шаги.
	ErrCriticalExhausted = errors.New("critical step exhausted retries")

	// ErrCancelled — run отменён оператором во время попытки или
	// backoff-паузы. Отличается от таймаута и провала агента
	// и в статусе, и в detail.
	ErrCancelled = errors.New("run cancelled")
)
