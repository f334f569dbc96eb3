package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shaiso/Conductor/internal/telemetry"
)

const defaultTimeout = 60 * time.Second

// Request — одна попытка вызова агента.
type Request struct {
	// StepName — имя шага (для логов).
	StepName string

	// Agent — логическое имя агента (для логов и метрик).
	Agent string

	// Endpoint — разрешённый адрес агента.
	Endpoint string

	// Input — разрешённый input шага.
	Input map[string]any

	// ProjectID — идентификатор проекта; внедряется в payload.
	ProjectID string

	// CorrelationID — идентификатор run; передаётся агенту
	// заголовком X-Correlation-ID для сквозной трассировки.
	CorrelationID string

	// Attempt — номер попытки (начиная с 1).
	Attempt int
}

// Dispatcher выполняет ровно одну попытку вызова агента.
//
// Dispatcher не делает retry: он классифицирует исход одной попытки
// (транспортная ошибка, не-2xx статус, прикладной флаг провала)
// и отдаёт решение о повторе политике.
type Dispatcher struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// New создаёт Dispatcher. timeout <= 0 — значение по умолчанию (60s).
func New(timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		client:  &http.Client{},
		timeout: timeout,
		logger:  logger,
	}
}

// Dispatch выполняет одну попытку и возвращает output агента
// либо классифицированную ошибку.
//
// Payload запроса — разрешённый input шага плюс внедрённый projectId.
// На успех извлекается поле data тела ответа; при его отсутствии —
// всё тело целиком.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (any, error) {
	if req.Endpoint == "" {
		return nil, fmt.Errorf("%w: step %s", ErrEmptyEndpoint, req.StepName)
	}

	telemetry.DispatchAttempts.WithLabelValues(req.Agent).Inc()

	// Логируем endpoint и номер попытки; payload не логируется —
	// он может содержать секретный материал из env-переменных.
	d.logger.Info("dispatching step",
		"step", req.StepName,
		"agent", req.Agent,
		"endpoint", req.Endpoint,
		"attempt", req.Attempt,
	)

	output, err := d.call(ctx, req)
	if err != nil {
		telemetry.DispatchFailures.WithLabelValues(req.Agent, FailureReason(err)).Inc()
		return nil, err
	}
	return output, nil
}

func (d *Dispatcher) call(ctx context.Context, req Request) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	payload := make(map[string]any, len(req.Input)+1)
	for k, v := range req.Input {
		payload[k] = v
	}
	payload["projectId"] = req.ProjectID

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal payload: %v", ErrTransport, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.CorrelationID != "" {
		httpReq.Header.Set("X-Correlation-ID", req.CorrelationID)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		// Отличаем отмену run от таймаута/сети: политика и оркестратор
		// обрабатывают отмену отдельно. Таймаут попытки приходит сюда
		// как DeadlineExceeded и классифицируется как transport.
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, context.Canceled
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrBadStatus, resp.StatusCode, truncate(string(respBody), 200))
	}

	return parseResponse(respBody)
}

// parseResponse извлекает output из тела ответа.
//
// Провал фиксируется, если тело несёт явный флаг:
// непустое поле error либо success=false.
func parseResponse(body []byte) (any, error) {
	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		// Не-JSON тело на 2xx — output как строка.
		return string(body), nil
	}

	obj, ok := parsed.(map[string]any)
	if !ok {
		return parsed, nil
	}

	if msg, ok := obj["error"].(string); ok && msg != "" {
		return nil, fmt.Errorf("%w: %s", ErrAgentFailure, msg)
	}
	if success, ok := obj["success"].(bool); ok && !success {
		return nil, fmt.Errorf("%w: success=false", ErrAgentFailure)
	}

	if data, ok := obj["data"]; ok {
		return data, nil
	}
	return parsed, nil
}

// truncate обрезает строку для сообщений об ошибках.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
