package progress

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conductor/internal/domain"
)

// StepState — свёрнутое состояние одного шага.
type StepState struct {
	Status    domain.StepStatus `json:"status"`
	Detail    string            `json:"detail,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Snapshot — свёрнутое текущее состояние run.
//
// Snapshot не хранится: он детерминированно вычисляется свёрткой
// упорядоченной последовательности событий, поэтому не может
// разойтись с журналом.
type Snapshot struct {
	ProjectID     string               `json:"project_id"`
	CorrelationID uuid.UUID            `json:"correlation_id"`
	Status        domain.RunStatus     `json:"status"`
	Steps         map[string]StepState `json:"steps"`
	StepOrder     []string             `json:"step_order"`
	Error         string               `json:"error,omitempty"`
	UpdatedAt     time.Time            `json:"updated_at"`
	LastSeq       int64                `json:"last_seq"`
}

// Fold сворачивает последовательность событий в Snapshot.
// Чистая функция: одинаковый вход — одинаковый результат.
func Fold(events []domain.ProgressEvent) *Snapshot {
	snap := &Snapshot{
		Steps: make(map[string]StepState),
	}

	for i := range events {
		e := &events[i]

		if snap.CorrelationID == uuid.Nil {
			snap.CorrelationID = e.CorrelationID
			snap.ProjectID = e.ProjectID
		}
		snap.UpdatedAt = e.Timestamp
		snap.LastSeq = e.Seq

		if e.IsRunLevel() {
			snap.Status = domain.RunStatus(e.Status)
			if snap.Status == domain.RunStatusFailed {
				snap.Error = e.Detail
			}
			continue
		}

		if _, seen := snap.Steps[e.StepName]; !seen {
			snap.StepOrder = append(snap.StepOrder, e.StepName)
		}
		snap.Steps[e.StepName] = StepState{
			Status:    domain.StepStatus(e.Status),
			Detail:    e.Detail,
			UpdatedAt: e.Timestamp,
		}
	}

	return snap
}
