package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProgressEvent — неизменяемая, append-only запись о переходе состояния.
//
// Упорядоченная последовательность событий одного run — авторитетная
// история выполнения: «текущее состояние» всегда вычисляется свёрткой
// по этой последовательности, а не хранится в отдельной мутируемой
// структуре.
type ProgressEvent struct {
	// ID — уникальный идентификатор события.
	ID uuid.UUID `json:"id"`

	// Seq — порядковый номер события в рамках run.
	// Присваивается хранилищем при записи, монотонно растёт.
	Seq int64 `json:"seq"`

	// ProjectID — идентификатор проекта.
	ProjectID string `json:"project_id"`

	// CorrelationID — идентификатор run.
	CorrelationID uuid.UUID `json:"correlation_id"`

	// StepName — имя шага. Пустая строка означает событие уровня run
	// (STARTED, COMPLETED, FAILED).
	StepName string `json:"step_name,omitempty"`

	// Status — статус, в который перешёл шаг или run.
	Status string `json:"status"`

	// Timestamp — время эмиссии события.
	Timestamp time.Time `json:"timestamp"`

	// Detail — человекочитаемая деталь (ошибка, номер попытки и т.п.).
	Detail string `json:"detail,omitempty"`
}

// IsRunLevel возвращает true для событий уровня run.
func (e *ProgressEvent) IsRunLevel() bool {
	return e.StepName == ""
}

// IsStepTerminal возвращает true, если событие фиксирует терминальный
// статус шага. Используется политикой retention: такие события
// не удаляются при обрезке истории.
func (e *ProgressEvent) IsStepTerminal() bool {
	if e.IsRunLevel() {
		return false
	}
	return StepStatus(e.Status).IsTerminal()
}
