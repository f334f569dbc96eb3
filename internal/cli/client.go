package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// RunResponse — run из API.
type RunResponse struct {
	CorrelationID  string         `json:"correlation_id"`
	ProjectID      string         `json:"project_id"`
	ManifestName   string         `json:"manifest_name,omitempty"`
	Status         string         `json:"status"`
	Steps          map[string]any `json:"steps,omitempty"`
	Error          string         `json:"error,omitempty"`
	StartedAt      string         `json:"started_at,omitempty"`
	FinishedAt     string         `json:"finished_at,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// RunResultResponse — терминальный результат синхронного запуска.
type RunResultResponse struct {
	OK            bool           `json:"ok"`
	ProjectID     string         `json:"projectId"`
	CorrelationID string         `json:"correlationId"`
	Steps         map[string]any `json:"steps"`
	Error         string         `json:"error,omitempty"`
}

// RunAcceptedResponse — ответ на асинхронный запуск.
type RunAcceptedResponse struct {
	CorrelationID string `json:"correlation_id"`
	ProjectID     string `json:"project_id"`
	Status        string `json:"status"`
}

// EventResponse — событие прогресса из API.
type EventResponse struct {
	Seq       int64  `json:"seq"`
	StepName  string `json:"step_name,omitempty"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Timestamp string `json:"timestamp"`
}

// SnapshotResponse — свёрнутое состояние run из API.
type SnapshotResponse struct {
	ProjectID     string         `json:"project_id"`
	CorrelationID string         `json:"correlation_id"`
	Status        string         `json:"status"`
	Steps         map[string]any `json:"steps"`
	StepOrder     []string       `json:"step_order"`
	Error         string         `json:"error,omitempty"`
	LastSeq       int64          `json:"last_seq"`
}

// ValidateManifestResponse — результат валидации manifest.
type ValidateManifestResponse struct {
	Valid bool   `json:"valid"`
	Name  string `json:"name,omitempty"`
	Steps int    `json:"steps,omitempty"`
	Error string `json:"error,omitempty"`
}

// ScheduleResponse — schedule из API.
type ScheduleResponse struct {
	ID          string `json:"id"`
	Manifest    string `json:"manifest"`
	ProjectID   string `json:"project_id,omitempty"`
	CronExpr    string `json:"cron_expr,omitempty"`
	IntervalSec int    `json:"interval_sec,omitempty"`
	Timezone    string `json:"timezone"`
	Enabled     bool   `json:"enabled"`
	NextDueAt   string `json:"next_due_at,omitempty"`
	LastRunAt   string `json:"last_run_at,omitempty"`
	LastRunID   string `json:"last_run_id,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// --- Request types ---

// CreateRunRequest — запуск run.
type CreateRunRequest struct {
	Manifest       string `json:"manifest"`
	ProjectID      string `json:"project_id,omitempty"`
	Async          bool   `json:"async,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// CreateScheduleRequest — создание schedule.
type CreateScheduleRequest struct {
	Manifest    string `json:"manifest"`
	ProjectID   string `json:"project_id,omitempty"`
	CronExpr    string `json:"cron_expr,omitempty"`
	IntervalSec int    `json:"interval_sec,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// UpdateScheduleRequest — обновление schedule.
type UpdateScheduleRequest struct {
	Manifest    *string `json:"manifest,omitempty"`
	ProjectID   *string `json:"project_id,omitempty"`
	CronExpr    *string `json:"cron_expr,omitempty"`
	IntervalSec *int    `json:"interval_sec,omitempty"`
	Timezone    *string `json:"timezone,omitempty"`
}

// ListRunsOpts — параметры фильтрации runs.
type ListRunsOpts struct {
	ProjectID string
	Status    string
	Limit     int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Conductor API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
//
// Таймаут клиента не задаётся: синхронный запуск run и watch живут
// дольше любого разумного фиксированного значения, ограничение —
// через context вызывающей стороны.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// --- Runs ---

// StartRunSync запускает run и блокируется до терминального статуса.
func (c *Client) StartRunSync(req CreateRunRequest) (*RunResultResponse, error) {
	req.Async = false
	var result RunResultResponse
	err := c.post("/api/v1/runs", req, &result)
	return &result, err
}

// StartRunAsync запускает run и сразу возвращает correlation ID.
func (c *Client) StartRunAsync(req CreateRunRequest) (*RunAcceptedResponse, error) {
	req.Async = true
	var accepted RunAcceptedResponse
	err := c.post("/api/v1/runs", req, &accepted)
	return &accepted, err
}

// StartRun реализует scheduler.RunStarter: асинхронный запуск
// с ключом идемпотентности.
func (c *Client) StartRun(_ context.Context, manifestName, projectID, idempotencyKey string) (uuid.UUID, error) {
	accepted, err := c.StartRunAsync(CreateRunRequest{
		Manifest:       manifestName,
		ProjectID:      projectID,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(accepted.CorrelationID)
}

// ListRuns возвращает список runs с фильтрацией.
func (c *Client) ListRuns(opts ListRunsOpts) ([]RunResponse, error) {
	params := url.Values{}
	if opts.ProjectID != "" {
		params.Set("project_id", opts.ProjectID)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}

	var runs []RunResponse
	err := c.list("/api/v1/runs", params, &runs)
	return runs, err
}

// GetRun возвращает run по correlation ID.
func (c *Client) GetRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.get("/api/v1/runs/"+id, &run)
	return &run, err
}

// CancelRun отменяет run.
func (c *Client) CancelRun(id string) error {
	return c.post("/api/v1/runs/"+id+"/cancel", nil, nil)
}

// ListEvents возвращает историю событий run.
func (c *Client) ListEvents(id string) ([]EventResponse, error) {
	var events []EventResponse
	err := c.list("/api/v1/runs/"+id+"/events", nil, &events)
	return events, err
}

// GetSnapshot возвращает свёрнутое текущее состояние run.
func (c *Client) GetSnapshot(id string) (*SnapshotResponse, error) {
	var snap SnapshotResponse
	err := c.get("/api/v1/runs/"+id+"/snapshot", &snap)
	return &snap, err
}

// Watch подписывается на SSE-поток событий run и вызывает fn для
// каждого события. Возвращается, когда сервер закрывает поток
// (терминальное событие run) или контекст отменён.
func (c *Client) Watch(ctx context.Context, id string, fn func(EventResponse) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/runs/"+id+"/watch", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var event EventResponse
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			return fmt.Errorf("failed to decode event: %w", err)
		}
		if err := fn(event); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// --- Manifests ---

// ListManifests возвращает имена manifest-файлов сервера.
func (c *Client) ListManifests() ([]string, error) {
	var names []string
	err := c.list("/api/v1/manifests", nil, &names)
	return names, err
}

// GetManifest возвращает распарсенный manifest.
func (c *Client) GetManifest(name string) (map[string]any, error) {
	var m map[string]any
	err := c.get("/api/v1/manifests/"+name, &m)
	return m, err
}

// ValidateManifest проверяет документ manifest на сервере.
func (c *Client) ValidateManifest(doc []byte) (*ValidateManifestResponse, error) {
	resp, err := c.doRaw(http.MethodPost, "/api/v1/manifests/validate", doc, "application/yaml")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return nil, err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	var result ValidateManifestResponse
	if err := json.Unmarshal(dr.Data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// --- Schedules ---

// ListSchedules возвращает schedules. Если manifestName не пустой — фильтрует.
func (c *Client) ListSchedules(manifestName string) ([]ScheduleResponse, error) {
	params := url.Values{}
	if manifestName != "" {
		params.Set("manifest", manifestName)
	}

	var schedules []ScheduleResponse
	err := c.list("/api/v1/schedules", params, &schedules)
	return schedules, err
}

// CreateSchedule создаёт schedule.
func (c *Client) CreateSchedule(req CreateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.post("/api/v1/schedules", req, &schedule)
	return &schedule, err
}

// GetSchedule возвращает schedule по ID.
func (c *Client) GetSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.get("/api/v1/schedules/"+id, &schedule)
	return &schedule, err
}

// UpdateSchedule обновляет schedule.
func (c *Client) UpdateSchedule(id string, req UpdateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.put("/api/v1/schedules/"+id, req, &schedule)
	return &schedule, err
}

// DeleteSchedule удаляет schedule.
func (c *Client) DeleteSchedule(id string) error {
	return c.delete("/api/v1/schedules/" + id)
}

// EnableSchedule включает schedule.
func (c *Client) EnableSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	body := map[string]bool{"enabled": true}
	err := c.put("/api/v1/schedules/"+id+"/enabled", body, &schedule)
	return &schedule, err
}

// DisableSchedule выключает schedule.
func (c *Client) DisableSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	body := map[string]bool{"enabled": false}
	err := c.put("/api/v1/schedules/"+id+"/enabled", body, &schedule)
	return &schedule, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}
	return c.doRaw(method, path, data, "application/json")
}

func (c *Client) doRaw(method, path string, body []byte, contentType string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
