package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/manifest"
	"github.com/shaiso/Conductor/internal/repo"
	"github.com/shaiso/Conductor/internal/runner"
)

// CreateRun запускает run для manifest.
// POST /api/v1/runs
//
// Синхронный запуск (по умолчанию) блокируется до терминального статуса
// и возвращает итоговый {ok, projectId, correlationId, steps}.
// С "async": true ответ 202 с correlation ID приходит сразу, прогресс
// доступен через /events, /snapshot и /watch.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Manifest == "" {
		BadRequest(w, "manifest is required")
		return
	}

	m, err := h.manifests.Load(req.Manifest)
	if err != nil {
		if errors.Is(err, manifest.ErrNotFound) {
			NotFound(w, "manifest not found")
			return
		}
		ValidationFailed(w, err.Error())
		return
	}

	// Идемпотентность: повторный запрос с тем же ключом возвращает
	// существующий run вместо запуска нового.
	if req.IdempotencyKey != "" && h.runRepo != nil {
		existing, err := h.runRepo.GetByIdempotencyKey(r.Context(), req.IdempotencyKey)
		if err == nil {
			Success(w, RunFromDomain(existing))
			return
		}
		if !errors.Is(err, repo.ErrNotFound) {
			InternalError(w, h.logger, err)
			return
		}
	}

	run := domain.NewRun(m, req.ProjectID)
	run.IdempotencyKey = req.IdempotencyKey

	if h.runRepo != nil {
		if err := h.runRepo.Create(r.Context(), run); err != nil {
			InternalError(w, h.logger, err)
			return
		}
	}

	if req.Async {
		// Выполнение живёт дольше HTTP-запроса.
		go func() {
			if _, err := h.executeRun(context.Background(), m, run); err != nil {
				h.logger.Error("async run failed",
					"correlation_id", run.CorrelationID,
					"error", err,
				)
			}
		}()

		Accepted(w, RunAcceptedResponse{
			CorrelationID: run.CorrelationID,
			ProjectID:     run.ProjectID,
			Status:        string(run.Status),
		})
		return
	}

	result, err := h.executeRun(r.Context(), m, run)
	if err != nil && result == nil {
		InternalError(w, h.logger, err)
		return
	}

	Success(w, RunResultResponse{
		OK:            result.OK,
		ProjectID:     result.ProjectID,
		CorrelationID: result.CorrelationID,
		Steps:         result.Steps,
		Error:         result.Error,
	})
}

// executeRun выполняет run и сохраняет терминальный снимок в БД.
func (h *Handler) executeRun(ctx context.Context, m *domain.Manifest, run *domain.Run) (*runner.Result, error) {
	result, err := h.runner.ExecuteRun(ctx, m, run)

	if h.runRepo != nil {
		if updErr := h.runRepo.Update(context.WithoutCancel(ctx), run); updErr != nil {
			h.logger.Error("failed to persist run result",
				"correlation_id", run.CorrelationID,
				"error", updErr,
			)
		}
	}

	return result, err
}

// ListRuns возвращает список runs.
// GET /api/v1/runs?project_id=...&status=...&limit=...&offset=...
//
// С настроенной БД список читается из неё (переживает рестарты);
// иначе — из индекса процесса.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 50)
	offset := parseIntParam(r, "offset", 0)

	if h.runRepo != nil {
		filter := repo.RunFilter{
			ProjectID: r.URL.Query().Get("project_id"),
			Status:    domain.RunStatus(r.URL.Query().Get("status")),
			Limit:     limit,
			Offset:    offset,
		}
		runs, err := h.runRepo.List(r.Context(), filter)
		if HandleRepoError(w, h.logger, err, "") {
			return
		}
		result := make([]RunResponse, len(runs))
		for i := range runs {
			result[i] = RunFromDomain(&runs[i])
		}
		List(w, result, len(result))
		return
	}

	runs := h.runner.Runs()
	result := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		result = append(result, RunFromDomain(run))
	}
	List(w, result, len(result))
}

// GetRun возвращает run по correlation ID.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	// Сначала индекс процесса: активные runs там свежее, чем в БД.
	run, err := h.runner.Run(id)
	if err == nil {
		Success(w, RunFromDomain(run))
		return
	}

	if h.runRepo != nil {
		stored, repoErr := h.runRepo.GetByID(r.Context(), id)
		if repoErr == nil {
			Success(w, RunFromDomain(stored))
			return
		}
		if !errors.Is(repoErr, repo.ErrNotFound) {
			InternalError(w, h.logger, repoErr)
			return
		}
	}

	NotFound(w, "run not found")
}

// CancelRun отменяет выполняющийся run.
// POST /api/v1/runs/{id}/cancel
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	if err := h.runner.Cancel(id); HandleRunnerError(w, h.logger, err) {
		return
	}

	Success(w, map[string]string{"status": "cancelling"})
}

// parseIntParam парсит числовой query-параметр с дефолтным значением.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
