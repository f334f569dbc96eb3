package domain

import (
	"time"

	"github.com/google/uuid"
)

// Schedule — расписание периодических запусков manifest.
//
// Schedule создаётся оператором через API и обрабатывается
// процессом conductor-scheduler: когда next_due_at наступает,
// создаётся новый run.
type Schedule struct {
	// ID — уникальный идентификатор schedule.
	ID uuid.UUID `json:"id"`

	// ManifestName — имя manifest-файла в каталоге manifests.
	ManifestName string `json:"manifest_name"`

	// ProjectID — project ID для создаваемых runs.
	ProjectID string `json:"project_id,omitempty"`

	// CronExpr — cron-выражение (пятипольное). Взаимоисключимо с IntervalSec.
	CronExpr string `json:"cron_expr,omitempty"`

	// IntervalSec — фиксированный интервал в секундах.
	IntervalSec int `json:"interval_sec,omitempty"`

	// Timezone — таймзона для cron-выражений (IANA, например "Europe/Berlin").
	Timezone string `json:"timezone"`

	// Enabled — выключенные schedules не запускаются.
	Enabled bool `json:"enabled"`

	// NextDueAt — следующее время запуска (UTC).
	NextDueAt *time.Time `json:"next_due_at,omitempty"`

	// LastRunAt — время последнего запуска.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// LastRunID — correlation ID последнего запущенного run.
	LastRunID *uuid.UUID `json:"last_run_id,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего обновления.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsCron возвращает true, если schedule задан cron-выражением.
func (s *Schedule) IsCron() bool {
	return s.CronExpr != ""
}

// IsInterval возвращает true, если schedule задан интервалом.
func (s *Schedule) IsInterval() bool {
	return s.IntervalSec > 0
}

// RecordRun фиксирует запуск run и следующее время выполнения.
func (s *Schedule) RecordRun(runID uuid.UUID, nextDue time.Time) {
	now := time.Now().UTC()
	s.LastRunAt = &now
	s.LastRunID = &runID
	s.NextDueAt = &nextDue
	s.UpdatedAt = now
}

// IsDue возвращает true, если schedule пора запускать.
func (s *Schedule) IsDue(now time.Time) bool {
	return s.Enabled && s.NextDueAt != nil && !s.NextDueAt.After(now)
}
