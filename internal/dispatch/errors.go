package dispatch

import "errors"

// Классификация ошибок одной попытки dispatch.
// Для политики retry все три — провал попытки; различие нужно
// для логов и метрик.
var (
	// ErrTransport — сетевая ошибка или таймаут попытки.
	ErrTransport = errors.New("agent transport error")

	// ErrBadStatus — агент ответил не-2xx статусом.
	ErrBadStatus = errors.New("agent returned non-success status")

	// ErrAgentFailure — транспорт успешен, но тело ответа несёт
	// явный флаг прикладного провала.
	ErrAgentFailure = errors.New("agent reported failure")

	// ErrEmptyEndpoint — endpoint шага не разрешился в адрес.
	ErrEmptyEndpoint = errors.New("empty agent endpoint")
)

// FailureReason возвращает короткую метку причины для метрик.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrBadStatus):
		return "status"
	case errors.Is(err, ErrAgentFailure):
		return "agent"
	default:
		return "transport"
	}
}
