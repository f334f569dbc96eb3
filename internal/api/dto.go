package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/progress"
)

// Run DTOs

// CreateRunRequest — запрос на запуск run.
type CreateRunRequest struct {
	// Manifest — имя manifest в каталоге сервера.
	Manifest string `json:"manifest"`

	// ProjectID — идентификатор проекта. Пустой — fallback на
	// project из manifest, затем на correlation ID.
	ProjectID string `json:"project_id,omitempty"`

	// Async — вернуть correlation ID сразу, не дожидаясь завершения.
	Async bool `json:"async,omitempty"`

	// IdempotencyKey — ключ идемпотентности (для scheduled runs).
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// RunResponse — ответ с run.
type RunResponse struct {
	CorrelationID  uuid.UUID                     `json:"correlation_id"`
	ProjectID      string                        `json:"project_id"`
	ManifestName   string                        `json:"manifest_name,omitempty"`
	Status         domain.RunStatus              `json:"status"`
	Steps          map[string]*domain.StepResult `json:"steps,omitempty"`
	Error          string                        `json:"error,omitempty"`
	StartedAt      time.Time                     `json:"started_at"`
	FinishedAt     *time.Time                    `json:"finished_at,omitempty"`
	IdempotencyKey string                        `json:"idempotency_key,omitempty"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(run *domain.Run) RunResponse {
	return RunResponse{
		CorrelationID:  run.CorrelationID,
		ProjectID:      run.ProjectID,
		ManifestName:   run.ManifestName,
		Status:         run.Status,
		Steps:          run.Steps,
		Error:          run.Error,
		StartedAt:      run.StartedAt,
		FinishedAt:     run.FinishedAt,
		IdempotencyKey: run.IdempotencyKey,
	}
}

// RunResultResponse — терминальный результат синхронного запуска.
type RunResultResponse struct {
	OK            bool                          `json:"ok"`
	ProjectID     string                        `json:"projectId"`
	CorrelationID uuid.UUID                     `json:"correlationId"`
	Steps         map[string]*domain.StepResult `json:"steps"`
	Error         string                        `json:"error,omitempty"`
}

// RunAcceptedResponse — ответ на асинхронный запуск.
type RunAcceptedResponse struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	ProjectID     string    `json:"project_id"`
	Status        string    `json:"status"`
}

// Progress DTOs

// EventResponse — одно событие прогресса.
type EventResponse struct {
	Seq       int64     `json:"seq"`
	StepName  string    `json:"step_name,omitempty"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventFromDomain конвертирует domain.ProgressEvent в EventResponse.
func EventFromDomain(e domain.ProgressEvent) EventResponse {
	return EventResponse{
		Seq:       e.Seq,
		StepName:  e.StepName,
		Status:    e.Status,
		Detail:    e.Detail,
		Timestamp: e.Timestamp,
	}
}

// SnapshotResponse — свёрнутое текущее состояние run.
type SnapshotResponse struct {
	ProjectID     string                        `json:"project_id"`
	CorrelationID uuid.UUID                     `json:"correlation_id"`
	Status        domain.RunStatus              `json:"status"`
	Steps         map[string]progress.StepState `json:"steps"`
	StepOrder     []string                      `json:"step_order"`
	Error         string                        `json:"error,omitempty"`
	LastSeq       int64                         `json:"last_seq"`
}

// SnapshotFromFold конвертирует progress.Snapshot в SnapshotResponse.
func SnapshotFromFold(s *progress.Snapshot) SnapshotResponse {
	return SnapshotResponse{
		ProjectID:     s.ProjectID,
		CorrelationID: s.CorrelationID,
		Status:        s.Status,
		Steps:         s.Steps,
		StepOrder:     s.StepOrder,
		Error:         s.Error,
		LastSeq:       s.LastSeq,
	}
}

// Manifest DTOs

// ValidateManifestResponse — результат валидации manifest.
type ValidateManifestResponse struct {
	Valid bool   `json:"valid"`
	Name  string `json:"name,omitempty"`
	Steps int    `json:"steps,omitempty"`
	Error string `json:"error,omitempty"`
}

// Schedule DTOs

// CreateScheduleRequest — запрос на создание schedule.
type CreateScheduleRequest struct {
	Manifest    string `json:"manifest"`
	ProjectID   string `json:"project_id,omitempty"`
	CronExpr    string `json:"cron_expr,omitempty"`
	IntervalSec int    `json:"interval_sec,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// UpdateScheduleRequest — запрос на обновление schedule.
type UpdateScheduleRequest struct {
	Manifest    *string `json:"manifest,omitempty"`
	ProjectID   *string `json:"project_id,omitempty"`
	CronExpr    *string `json:"cron_expr,omitempty"`
	IntervalSec *int    `json:"interval_sec,omitempty"`
	Timezone    *string `json:"timezone,omitempty"`
}

// SetEnabledRequest — запрос на включение/выключение schedule.
type SetEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// ScheduleResponse — ответ со schedule.
type ScheduleResponse struct {
	ID          uuid.UUID  `json:"id"`
	Manifest    string     `json:"manifest"`
	ProjectID   string     `json:"project_id,omitempty"`
	CronExpr    string     `json:"cron_expr,omitempty"`
	IntervalSec int        `json:"interval_sec,omitempty"`
	Timezone    string     `json:"timezone"`
	Enabled     bool       `json:"enabled"`
	NextDueAt   *time.Time `json:"next_due_at,omitempty"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	LastRunID   *uuid.UUID `json:"last_run_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ScheduleFromDomain конвертирует domain.Schedule в ScheduleResponse.
func ScheduleFromDomain(s *domain.Schedule) ScheduleResponse {
	return ScheduleResponse{
		ID:          s.ID,
		Manifest:    s.ManifestName,
		ProjectID:   s.ProjectID,
		CronExpr:    s.CronExpr,
		IntervalSec: s.IntervalSec,
		Timezone:    s.Timezone,
		Enabled:     s.Enabled,
		NextDueAt:   s.NextDueAt,
		LastRunAt:   s.LastRunAt,
		LastRunID:   s.LastRunID,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}
