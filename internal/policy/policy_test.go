package policy

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/Conductor/internal/agents"
	"github.com/shaiso/Conductor/internal/domain"
)

func testRegistry() *agents.Registry {
	r := agents.Default()
	r.Register(agents.Agent{
		Name:     "flaky-optional",
		Critical: false,
		Fallback: map[string]any{"fallback": true, "note": "degraded"},
	})
	r.Register(agents.Agent{
		Name:     "flaky-critical",
		Critical: true,
	})
	return r
}

func prepareStatic(endpoint string) PrepareFunc {
	return func() (string, map[string]any, error) {
		return endpoint, map[string]any{"k": "v"}, nil
	}
}

func TestExecute_SuccessFirstAttempt(t *testing.T) {
	p := New(3, time.Millisecond, testRegistry(), nil)

	calls := 0
	outcome, err := p.Execute(context.Background(),
		domain.Step{Name: "s", Agent: "flaky-critical"},
		prepareStatic("http://agent"),
		func(_ context.Context, _ string, _ map[string]any, _ int) (any, error) {
			calls++
			return "ok", nil
		},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Output != "ok" || outcome.Fallback || outcome.Attempts != 1 {
		t.Errorf("unexpected outcome: %+v", outcome)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestExecute_RetriesThenSucceeds(t *testing.T) {
	p := New(3, time.Millisecond, testRegistry(), nil)

	calls := 0
	outcome, err := p.Execute(context.Background(),
		domain.Step{Name: "s", Agent: "flaky-critical"},
		prepareStatic("http://agent"),
		func(_ context.Context, _ string, _ map[string]any, _ int) (any, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("boom")
			}
			return "ok", nil
		},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", outcome.Attempts)
	}
}

func TestExecute_CriticalExhaustion(t *testing.T) {
	p := New(3, time.Millisecond, testRegistry(), nil)

	calls := 0
	_, err := p.Execute(context.Background(),
		domain.Step{Name: "assemble", Agent: "flaky-critical"},
		prepareStatic("http://agent"),
		func(_ context.Context, _ string, _ map[string]any, _ int) (any, error) {
			calls++
			return nil, errors.New("boom")
		},
	)
	if !errors.Is(err, ErrCriticalExhausted) {
		t.Fatalf("expected ErrCriticalExhausted, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", calls)
	}
	// Ошибка называет шаг.
	if !strings.Contains(err.Error(), "step assemble") {
		t.Errorf("error should name the failing step: %v", err)
	}
}

func TestExecute_NonCriticalFallback(t *testing.T) {
	p := New(3, time.Millisecond, testRegistry(), nil)

	outcome, err := p.Execute(context.Background(),
		domain.Step{Name: "music", Agent: "flaky-optional"},
		prepareStatic("http://agent"),
		func(_ context.Context, _ string, _ map[string]any, _ int) (any, error) {
			return nil, errors.New("boom")
		},
	)
	if err != nil {
		t.Fatalf("non-critical exhaustion must not return an error: %v", err)
	}
	if !outcome.Fallback {
		t.Error("expected fallback outcome")
	}
	fb := outcome.Output.(map[string]any)
	if fb["fallback"] != true {
		t.Errorf("unexpected fallback payload: %v", fb)
	}
	if outcome.LastErr == nil {
		t.Error("fallback outcome should carry the last error")
	}
}

func TestExecute_ReResolvesBeforeEachAttempt(t *testing.T) {
	p := New(3, time.Millisecond, testRegistry(), nil)

	prepares := 0
	_, err := p.Execute(context.Background(),
		domain.Step{Name: "s", Agent: "flaky-optional"},
		func() (string, map[string]any, error) {
			prepares++
			return "http://agent", nil, nil
		},
		func(_ context.Context, _ string, _ map[string]any, _ int) (any, error) {
			return nil, errors.New("boom")
		},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prepares != 3 {
		t.Errorf("prepare must run before every attempt, got %d", prepares)
	}
}

func TestExecute_CancellationDuringAttempt(t *testing.T) {
	p := New(3, time.Millisecond, testRegistry(), nil)

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := p.Execute(ctx,
		domain.Step{Name: "s", Agent: "flaky-critical"},
		prepareStatic("http://agent"),
		func(ctx context.Context, _ string, _ map[string]any, _ int) (any, error) {
			calls++
			cancel()
			return nil, context.Canceled
		},
	)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("no further attempts after cancellation, got %d calls", calls)
	}
}

func TestExecute_CancellationDuringBackoff(t *testing.T) {
	p := New(3, time.Hour, testRegistry(), nil) // backoff, который никогда не истечёт

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := p.Execute(ctx,
			domain.Step{Name: "s", Agent: "flaky-critical"},
			prepareStatic("http://agent"),
			func(_ context.Context, _ string, _ map[string]any, _ int) (any, error) {
				return nil, errors.New("boom")
			},
		)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrCancelled) {
			t.Errorf("expected ErrCancelled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Execute did not return after cancellation during backoff")
	}
}
