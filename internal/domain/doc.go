// Package domain содержит доменные типы Conductor.
//
// Основные сущности:
//   - Manifest — декларативное описание конвейера (шаги + константы)
//   - Run — одно выполнение manifest с correlation ID
//   - StepResult — результат выполнения одного шага
//   - ProgressEvent — неизменяемая запись о переходе состояния
//   - Schedule — расписание периодических запусков
//
// Типы не содержат бизнес-логики выполнения — только данные
// и небольшие мутаторы переходов состояния.
package domain
