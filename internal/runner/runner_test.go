package runner

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conductor/internal/agents"
	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/policy"
	"github.com/shaiso/Conductor/internal/progress"
)

// testRegistry возвращает реестр с тестовыми агентами обоих классов
// критичности.
func testRegistry() *agents.Registry {
	reg := agents.Default()
	reg.Register(agents.Agent{
		Name:     "crit-agent",
		Critical: true,
	})
	reg.Register(agents.Agent{
		Name:     "soft-agent",
		Critical: false,
		Fallback: map[string]any{"fallback": true, "note": "degraded"},
	})
	return reg
}

// newTestRunner собирает Runner с быстрым backoff для тестов.
func newTestRunner(t *testing.T) (*Runner, *progress.Recorder) {
	t.Helper()
	reg := testRegistry()
	rec := progress.NewRecorder(progress.NewMemoryStore(), nil, nil)
	return New(Config{
		Policy:   policy.New(3, time.Millisecond, reg, nil),
		Recorder: rec,
		Registry: reg,
	}), rec
}

// agentServer отвечает {"data": payload} на каждый запрос.
func agentServer(t *testing.T, payload any, onRequest func(body map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("agent received invalid payload: %v", err)
		}
		if onRequest != nil {
			onRequest(body)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"data": payload})
	}))
}

func TestExecute_HappyPath(t *testing.T) {
	r, rec := newTestRunner(t)

	first := agentServer(t, map[string]any{"title": "hello"}, nil)
	defer first.Close()

	var seen atomic.Value
	second := agentServer(t, "done", func(body map[string]any) {
		seen.Store(body)
	})
	defer second.Close()

	m := &domain.Manifest{
		Name:    "two-steps",
		Project: "proj-1",
		Steps: []domain.Step{
			{Name: "curate", Agent: "crit-agent", Endpoint: first.URL},
			{
				Name:     "draft",
				Agent:    "crit-agent",
				Endpoint: second.URL,
				Input: map[string]any{
					"ref": "${steps.curate.output.title}",
				},
			},
		},
	}

	res, err := r.Execute(context.Background(), m, "proj-1")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.OK {
		t.Fatalf("expected OK result: %+v", res)
	}
	if res.ProjectID != "proj-1" {
		t.Errorf("unexpected project: %s", res.ProjectID)
	}
	for _, name := range []string{"curate", "draft"} {
		if res.Steps[name].Status != domain.StepStatusCompleted {
			t.Errorf("step %s: expected COMPLETED, got %s", name, res.Steps[name].Status)
		}
	}

	// Второй шаг получил разрешённый output первого плюс projectId.
	body, _ := seen.Load().(map[string]any)
	if body == nil {
		t.Fatal("second agent was never called")
	}
	if body["ref"] != "hello" {
		t.Errorf("variable not resolved across steps: %v", body["ref"])
	}
	if body["projectId"] != "proj-1" {
		t.Errorf("projectId not injected: %v", body["projectId"])
	}

	// События записаны в порядке эмиссии, терминальное — последнее.
	events, err := rec.Events(context.Background(), res.CorrelationID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	last := events[len(events)-1]
	if !last.IsRunLevel() || last.Status != string(domain.RunStatusCompleted) {
		t.Errorf("unexpected terminal event: %+v", last)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Seq <= events[i-1].Seq {
			t.Errorf("events out of order: %+v", events)
		}
	}
}

func TestExecute_NonCriticalFallback(t *testing.T) {
	r, _ := newTestRunner(t)

	var calls atomic.Int32
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	var finalizeInput map[string]any
	second := agentServer(t, "ok", func(body map[string]any) {
		finalizeInput = body
	})
	defer second.Close()

	m := &domain.Manifest{
		Name: "with-optional-step",
		Steps: []domain.Step{
			{Name: "enrich", Agent: "soft-agent", Endpoint: failing.URL},
			{
				Name:     "finalize",
				Agent:    "crit-agent",
				Endpoint: second.URL,
				Input:    map[string]any{"upstream": "${steps.enrich.output.note}"},
			},
		},
	}

	res, err := r.Execute(context.Background(), m, "proj-2")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.OK {
		t.Fatalf("non-critical exhaustion must not fail the run: %+v", res)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", got)
	}

	enrich := res.Steps["enrich"]
	if enrich.Status != domain.StepStatusFallback {
		t.Errorf("expected FALLBACK, got %s", enrich.Status)
	}
	out, _ := enrich.Output.(map[string]any)
	if out == nil || out["fallback"] != true {
		t.Errorf("expected synthetic fallback payload, got %v", enrich.Output)
	}
	if enrich.Error == "" {
		t.Error("fallback step must retain the last error for observers")
	}
	if res.Steps["finalize"].Status != domain.StepStatusCompleted {
		t.Errorf("run did not continue past fallback: %s", res.Steps["finalize"].Status)
	}
	if finalizeInput["upstream"] != "degraded" {
		t.Errorf("downstream step must see the fallback output, got %v", finalizeInput["upstream"])
	}
}

func TestExecute_CriticalExhaustionStopsRun(t *testing.T) {
	r, rec := newTestRunner(t)

	var criticalCalls, downstreamCalls atomic.Int32
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		criticalCalls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()

	downstream := agentServer(t, "never", func(map[string]any) {
		downstreamCalls.Add(1)
	})
	defer downstream.Close()

	m := &domain.Manifest{
		Name: "critical-failure",
		Steps: []domain.Step{
			{Name: "narrate", Agent: "crit-agent", Endpoint: failing.URL},
			{Name: "publish", Agent: "crit-agent", Endpoint: downstream.URL},
		},
	}

	res, err := r.Execute(context.Background(), m, "proj-3")
	if err == nil {
		t.Fatal("expected critical exhaustion error")
	}
	if !errors.Is(err, policy.ErrCriticalExhausted) {
		t.Errorf("expected ErrCriticalExhausted, got %v", err)
	}
	if !strings.Contains(err.Error(), "narrate") {
		t.Errorf("error must name the failing step: %v", err)
	}
	if res.OK {
		t.Error("result must not be OK")
	}
	if got := criticalCalls.Load(); got != 3 {
		t.Errorf("expected 3 attempts on critical step, got %d", got)
	}
	if downstreamCalls.Load() != 0 {
		t.Error("steps after a fatal failure must not execute")
	}
	if res.Steps["narrate"].Status != domain.StepStatusFailed {
		t.Errorf("narrate: %s", res.Steps["narrate"].Status)
	}
	if res.Steps["publish"].Status != domain.StepStatusPending {
		t.Errorf("publish must stay PENDING, got %s", res.Steps["publish"].Status)
	}

	// Терминальное событие run несёт имя шага и ошибку.
	snap, err := rec.Snapshot(context.Background(), res.CorrelationID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Status != domain.RunStatusFailed {
		t.Errorf("snapshot status: %s", snap.Status)
	}
	if !strings.Contains(snap.Error, "narrate") {
		t.Errorf("terminal event detail must name the step: %q", snap.Error)
	}
}

func TestExecute_CancellationMidAttempt(t *testing.T) {
	r, _ := newTestRunner(t)

	first := agentServer(t, "ok", nil)
	defer first.Close()

	var attempts atomic.Int32
	inFlight := make(chan struct{}, 1)
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		io.Copy(io.Discard, req.Body)
		attempts.Add(1)
		inFlight <- struct{}{}
		select {
		case <-req.Context().Done():
		case <-time.After(5 * time.Second):
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer slow.Close()

	m := &domain.Manifest{
		Name: "cancelled-run",
		Steps: []domain.Step{
			{Name: "curate", Agent: "crit-agent", Endpoint: first.URL},
			{Name: "narrate", Agent: "crit-agent", Endpoint: slow.URL},
		},
	}

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := r.Execute(context.Background(), m, "proj-4")
		done <- outcome{res, err}
	}()

	// Ждём, пока вторая попытка повиснет в агенте, затем отменяем.
	select {
	case <-inFlight:
	case <-time.After(5 * time.Second):
		t.Fatal("second step never dispatched")
	}

	var correlationID uuid.UUID
	for _, run := range r.Runs() {
		correlationID = run.CorrelationID
	}
	if err := r.Cancel(correlationID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	var got outcome
	select {
	case got = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not terminate after cancellation")
	}

	if got.err == nil {
		t.Fatal("expected cancellation error")
	}
	if !IsCancelled(got.err) {
		t.Errorf("error must be cancellation-tagged, not a timeout: %v", got.err)
	}
	if !strings.Contains(got.err.Error(), "narrate") {
		t.Errorf("error must name the cancelled step: %v", got.err)
	}
	if attempts.Load() != 1 {
		t.Errorf("no further attempts after cancellation, got %d", attempts.Load())
	}
	if got.res.Steps["narrate"].Status != domain.StepStatusFailed {
		t.Errorf("narrate: %s", got.res.Steps["narrate"].Status)
	}
	if got.res.Steps["curate"].Status != domain.StepStatusCompleted {
		t.Errorf("curate: %s", got.res.Steps["curate"].Status)
	}
}

func TestRun_ConcurrentReadDuringExecution(t *testing.T) {
	r, _ := newTestRunner(t)

	srv := agentServer(t, map[string]any{"n": 1}, func(map[string]any) {
		time.Sleep(2 * time.Millisecond)
	})
	defer srv.Close()

	steps := make([]domain.Step, 0, 8)
	for _, name := range []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8"} {
		steps = append(steps, domain.Step{Name: name, Agent: "crit-agent", Endpoint: srv.URL})
	}
	m := &domain.Manifest{Name: "read-while-running", Steps: steps}

	run := domain.NewRun(m, "proj-race")
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := r.ExecuteRun(context.Background(), m, run); err != nil {
			t.Errorf("execute: %v", err)
		}
	}()

	// Читатели индекса снимают копии и сериализуют их, пока
	// исполнитель мутирует StepResults. Под -race это и есть проверка.
	for {
		select {
		case <-done:
			got, err := r.Run(run.CorrelationID)
			if err != nil {
				t.Fatalf("run lookup: %v", err)
			}
			if got.Status != domain.RunStatusCompleted {
				t.Errorf("unexpected terminal status: %s", got.Status)
			}
			return
		default:
		}

		if got, err := r.Run(run.CorrelationID); err == nil {
			if _, err := json.Marshal(got); err != nil {
				t.Fatalf("marshal live run copy: %v", err)
			}
			// Копия не делит StepResults с исполнителем.
			for name, sr := range got.Steps {
				if sr == run.Steps[name] {
					t.Fatal("index returned a live StepResult pointer")
				}
			}
		}
		for _, listed := range r.Runs() {
			if _, err := json.Marshal(listed); err != nil {
				t.Fatalf("marshal listed run: %v", err)
			}
		}
	}
}

func TestCancel_UnknownAndFinishedRuns(t *testing.T) {
	r, _ := newTestRunner(t)

	if err := r.Cancel(uuid.New()); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}

	srv := agentServer(t, "ok", nil)
	defer srv.Close()

	m := &domain.Manifest{
		Name:  "single",
		Steps: []domain.Step{{Name: "only", Agent: "crit-agent", Endpoint: srv.URL}},
	}
	res, err := r.Execute(context.Background(), m, "proj-5")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if err := r.Cancel(res.CorrelationID); !errors.Is(err, ErrRunNotActive) {
		t.Errorf("expected ErrRunNotActive for finished run, got %v", err)
	}
}

func TestRuns_Index(t *testing.T) {
	r, _ := newTestRunner(t)

	srv := agentServer(t, "ok", nil)
	defer srv.Close()

	m := &domain.Manifest{
		Name:  "indexed",
		Steps: []domain.Step{{Name: "only", Agent: "crit-agent", Endpoint: srv.URL}},
	}

	res, err := r.Execute(context.Background(), m, "proj-6")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	run, err := r.Run(res.CorrelationID)
	if err != nil {
		t.Fatalf("run lookup: %v", err)
	}
	if run.Status != domain.RunStatusCompleted {
		t.Errorf("unexpected status: %s", run.Status)
	}
	if r.ActiveRunsCount() != 0 {
		t.Errorf("finished run still active")
	}
	if len(r.Runs()) != 1 {
		t.Errorf("expected 1 run in index, got %d", len(r.Runs()))
	}
}
