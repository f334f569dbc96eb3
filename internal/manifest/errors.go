package manifest

import "errors"

// Ошибки валидации manifest.
var (
	// ErrEmptySteps — manifest не содержит шагов.
	ErrEmptySteps = errors.New("manifest has no steps")

	// ErrEmptyStepName — шаг не имеет имени.
	ErrEmptyStepName = errors.New("step has empty name")

	// ErrInvalidStepName — имя шага содержит недопустимые символы.
	ErrInvalidStepName = errors.New("invalid step name")

	// ErrDuplicateStepName — несколько шагов с одинаковым именем.
	ErrDuplicateStepName = errors.New("duplicate step name")

	// ErrEmptyAgent — шаг не привязан к агенту.
	ErrEmptyAgent = errors.New("step has empty agent")

	// ErrUnknownAgent — агент отсутствует в реестре.
	ErrUnknownAgent = errors.New("unknown agent")

	// ErrForwardReference — шаг ссылается на выход более позднего
	// (или самого себя / несуществующего) шага.
	ErrForwardReference = errors.New("reference to a step that has not run yet")

	// ErrParse — документ не парсится как YAML/JSON.
	ErrParse = errors.New("manifest parse failed")

	// ErrNotFound — manifest-файл не найден в каталоге.
	ErrNotFound = errors.New("manifest not found")
)

// ValidationError — ошибка валидации с контекстом авторской правки.
type ValidationError struct {
	StepName string // имя шага, где произошла ошибка
	Field    string // поле, вызвавшее ошибку
	Message  string // описание ошибки
	Err      error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.StepName != "" {
		return "step " + e.StepName + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(stepName, field, message string, err error) *ValidationError {
	return &ValidationError{
		StepName: stepName,
		Field:    field,
		Message:  message,
		Err:      err,
	}
}
