package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/progress"
)

// EventRepo хранит ProgressEvents в PostgreSQL.
//
// Реализует progress.Store: порядковый номер в рамках run присваивается
// БД, так что свёртка по seq восстанавливает порядок эмиссии даже после
// рестарта процесса.
type EventRepo struct {
	pool *pgxpool.Pool
}

var _ progress.Store = (*EventRepo)(nil)

// NewEventRepo создаёт новый EventRepo.
func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// Append записывает одно событие. Seq присваивается вставкой и
// проставляется в событие до возврата.
func (r *EventRepo) Append(ctx context.Context, e *domain.ProgressEvent) error {
	query := `
		INSERT INTO progress_events (id, project_id, correlation_id, step_name, status, detail, emitted_at, seq)
		VALUES ($1, $2, $3, $4, $5, $6, $7,
		        COALESCE((SELECT MAX(seq) FROM progress_events WHERE correlation_id = $3), 0) + 1)
		RETURNING seq
	`
	err := r.pool.QueryRow(ctx, query,
		e.ID,
		e.ProjectID,
		e.CorrelationID,
		nullString(e.StepName),
		e.Status,
		nullString(e.Detail),
		e.Timestamp,
	).Scan(&e.Seq)
	if err != nil {
		return fmt.Errorf("insert progress event: %w", err)
	}
	return nil
}

// List возвращает все события run в порядке эмиссии.
func (r *EventRepo) List(ctx context.Context, correlationID uuid.UUID) ([]domain.ProgressEvent, error) {
	query := `
		SELECT id, seq, project_id, correlation_id, step_name, status, detail, emitted_at
		FROM progress_events
		WHERE correlation_id = $1
		ORDER BY seq ASC
	`
	rows, err := r.pool.Query(ctx, query, correlationID)
	if err != nil {
		return nil, fmt.Errorf("list progress events: %w", err)
	}
	defer rows.Close()

	var events []domain.ProgressEvent
	for rows.Next() {
		var e domain.ProgressEvent
		var stepName, detail *string

		err := rows.Scan(
			&e.ID,
			&e.Seq,
			&e.ProjectID,
			&e.CorrelationID,
			&stepName,
			&e.Status,
			&detail,
			&e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan progress event: %w", err)
		}

		if stepName != nil {
			e.StepName = *stepName
		}
		if detail != nil {
			e.Detail = *detail
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: %s", progress.ErrNoEvents, correlationID)
	}
	return events, nil
}
