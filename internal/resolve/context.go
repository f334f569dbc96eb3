package resolve

import (
	"os"
	"time"
)

// Context — контекст разрешения переменных одного run.
//
// Контекст строится оркестратором один раз при старте run;
// выходы завершённых шагов добавляются по мере выполнения.
type Context struct {
	// Env — источник переменных окружения.
	// По умолчанию os.LookupEnv; в тестах подменяется.
	Env func(name string) (string, bool)

	// Project — метаданные проекта, переданные вызывающей стороной.
	Project map[string]any

	// ProjectID — идентификатор проекта. Fallback для ${project.id},
	// если Project не содержит поля id.
	ProjectID string

	// Steps — записанные результаты завершённых шагов по имени.
	Steps map[string]StepRecord

	// Constants — константы уровня manifest.
	Constants map[string]any

	// StartTime — время старта run (${run.start_time}).
	StartTime time.Time

	// CorrelationID — идентификатор run (${run.correlation_id}).
	CorrelationID string
}

// StepRecord — опубликованный результат одного шага.
type StepRecord struct {
	// Output — записанный output шага (реальный или fallback).
	Output any

	// OutputPath — объявленный в manifest путь публикации.
	OutputPath string
}

// NewContext создаёт контекст с источником окружения по умолчанию.
func NewContext(projectID string, constants map[string]any, correlationID string, startTime time.Time) *Context {
	return &Context{
		Env:           os.LookupEnv,
		Project:       map[string]any{"id": projectID},
		ProjectID:     projectID,
		Steps:         make(map[string]StepRecord),
		Constants:     constants,
		StartTime:     startTime,
		CorrelationID: correlationID,
	}
}

// AddStepOutput публикует результат шага для следующих шагов.
func (c *Context) AddStepOutput(stepName string, output any, outputPath string) {
	c.Steps[stepName] = StepRecord{Output: output, OutputPath: outputPath}
}
