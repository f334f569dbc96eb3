package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conductor/internal/domain"
)

// RunRepo — репозиторий для работы с runs.
//
// Хранит терминальные снимки runs для истории: во время выполнения
// авторитетным состоянием остаётся поток ProgressEvents.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

// Create создаёт запись run при старте.
func (r *RunRepo) Create(ctx context.Context, run *domain.Run) error {
	stepsJSON, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}

	query := `
		INSERT INTO runs (correlation_id, project_id, manifest_name, status, steps,
		                  idempotency_key, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, query,
		run.CorrelationID,
		run.ProjectID,
		nullString(run.ManifestName),
		run.Status,
		stepsJSON,
		nullString(run.IdempotencyKey),
		run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID возвращает run по correlation ID.
func (r *RunRepo) GetByID(ctx context.Context, correlationID uuid.UUID) (*domain.Run, error) {
	query := `
		SELECT correlation_id, project_id, manifest_name, status, steps,
		       error, idempotency_key, started_at, finished_at
		FROM runs
		WHERE correlation_id = $1
	`
	return scanRun(r.pool.QueryRow(ctx, query, correlationID))
}

// GetByIdempotencyKey возвращает run по ключу идемпотентности.
// Используется scheduler'ом, чтобы не создавать дубликаты при
// повторной обработке одного и того же due-интервала.
func (r *RunRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Run, error) {
	query := `
		SELECT correlation_id, project_id, manifest_name, status, steps,
		       error, idempotency_key, started_at, finished_at
		FROM runs
		WHERE idempotency_key = $1
	`
	return scanRun(r.pool.QueryRow(ctx, query, key))
}

// List возвращает список runs с фильтрацией, новые первыми.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]domain.Run, error) {
	query := `
		SELECT correlation_id, project_id, manifest_name, status, steps,
		       error, idempotency_key, started_at, finished_at
		FROM runs
		WHERE ($1::text IS NULL OR project_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY started_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(filter.ProjectID),
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Update записывает текущее состояние run (статус, результаты шагов,
// ошибку). Вызывается на каждом переходе run-уровня и на финализации.
func (r *RunRepo) Update(ctx context.Context, run *domain.Run) error {
	stepsJSON, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}

	query := `
		UPDATE runs
		SET status = $2, steps = $3, error = $4, finished_at = $5
		WHERE correlation_id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		run.CorrelationID,
		run.Status,
		stepsJSON,
		nullString(run.Error),
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

// RunFilter — параметры фильтрации runs.
type RunFilter struct {
	ProjectID string
	Status    domain.RunStatus
	Limit     int
	Offset    int
}

// scanRun сканирует одну строку в Run. pgx.Row и pgx.Rows разделяют
// метод Scan, так что одна функция обслуживает оба пути.
func scanRun(row pgx.Row) (*domain.Run, error) {
	var run domain.Run
	var stepsJSON []byte
	var manifestName, runError, idempotencyKey *string

	err := row.Scan(
		&run.CorrelationID,
		&run.ProjectID,
		&manifestName,
		&run.Status,
		&stepsJSON,
		&runError,
		&idempotencyKey,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if stepsJSON != nil {
		if err := json.Unmarshal(stepsJSON, &run.Steps); err != nil {
			return nil, fmt.Errorf("unmarshal steps: %w", err)
		}
	}
	if manifestName != nil {
		run.ManifestName = *manifestName
	}
	if runError != nil {
		run.Error = *runError
	}
	if idempotencyKey != nil {
		run.IdempotencyKey = *idempotencyKey
	}

	return &run, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
