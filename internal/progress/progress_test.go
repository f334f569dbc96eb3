package progress

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Conductor/internal/domain"
)

func record(t *testing.T, store Store, id uuid.UUID, step, status, detail string) {
	t.Helper()
	e := NewEvent("proj", id, step, status, detail)
	if err := store.Append(context.Background(), e); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestMemoryStore_RoundTripOrder(t *testing.T) {
	store := NewMemoryStore()
	id := uuid.New()

	record(t, store, id, "", string(domain.RunStatusStarted), "")
	record(t, store, id, "curate", string(domain.StepStatusRunning), "")
	record(t, store, id, "curate", string(domain.StepStatusCompleted), "")
	record(t, store, id, "", string(domain.RunStatusCompleted), "")

	events, err := store.List(context.Background(), id)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	for i, e := range events {
		if e.Seq != int64(i+1) {
			t.Errorf("event %d: expected seq %d, got %d", i, i+1, e.Seq)
		}
	}
}

func TestMemoryStore_RunsAreIsolated(t *testing.T) {
	store := NewMemoryStore()
	a, b := uuid.New(), uuid.New()

	record(t, store, a, "x", string(domain.StepStatusRunning), "")
	record(t, store, b, "y", string(domain.StepStatusRunning), "")

	events, _ := store.List(context.Background(), a)
	if len(events) != 1 || events[0].StepName != "x" {
		t.Errorf("run A sees foreign events: %v", events)
	}

	if _, err := store.List(context.Background(), uuid.New()); !errors.Is(err, ErrNoEvents) {
		t.Errorf("expected ErrNoEvents for unknown run, got %v", err)
	}
}

func TestMemoryStore_TrimKeepsTerminalEvents(t *testing.T) {
	store := NewMemoryStoreWithCap(5)
	id := uuid.New()

	// Терминальное событие раннего шага, затем поток более поздних.
	record(t, store, id, "curate", string(domain.StepStatusRunning), "")
	record(t, store, id, "curate", string(domain.StepStatusCompleted), "early terminal")
	for i := 0; i < 10; i++ {
		record(t, store, id, "draft", string(domain.StepStatusRunning), fmt.Sprintf("attempt %d", i))
	}

	events, err := store.List(context.Background(), id)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) > 5 {
		t.Errorf("retention cap not applied: %d events", len(events))
	}

	found := false
	for _, e := range events {
		if e.StepName == "curate" && e.Status == string(domain.StepStatusCompleted) {
			found = true
		}
	}
	if !found {
		t.Error("trim removed the most recent terminal event of a step")
	}

	// Порядок сохранён.
	for i := 1; i < len(events); i++ {
		if events[i].Seq <= events[i-1].Seq {
			t.Errorf("events out of order after trim: %v", events)
		}
	}
}

func TestJSONLStore_RoundTripAndRestart(t *testing.T) {
	dir := t.TempDir()
	id := uuid.New()

	store, err := NewJSONLStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	record(t, store, id, "", string(domain.RunStatusStarted), "")
	record(t, store, id, "curate", string(domain.StepStatusRunning), "")

	// Новый экземпляр поверх того же каталога — имитация рестарта
	// процесса сразу после записи.
	store2, err := NewJSONLStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	record(t, store2, id, "curate", string(domain.StepStatusCompleted), "")

	events, err := store2.List(context.Background(), id)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events across restart, got %d", len(events))
	}
	if events[2].Seq != 3 {
		t.Errorf("seq not restored after restart: %v", events[2].Seq)
	}
}

func TestFold(t *testing.T) {
	id := uuid.New()
	store := NewMemoryStore()

	record(t, store, id, "", string(domain.RunStatusStarted), "")
	record(t, store, id, "curate", string(domain.StepStatusRunning), "")
	record(t, store, id, "curate", string(domain.StepStatusCompleted), "")
	record(t, store, id, "draft", string(domain.StepStatusRunning), "")
	record(t, store, id, "draft", string(domain.StepStatusFailed), "agent exploded")
	record(t, store, id, "", string(domain.RunStatusFailed), "step draft: agent exploded")

	events, _ := store.List(context.Background(), id)
	snap := Fold(events)

	if snap.Status != domain.RunStatusFailed {
		t.Errorf("expected FAILED, got %s", snap.Status)
	}
	if snap.Error != "step draft: agent exploded" {
		t.Errorf("snapshot should carry the failing step error: %q", snap.Error)
	}
	if snap.Steps["curate"].Status != domain.StepStatusCompleted {
		t.Errorf("curate: %v", snap.Steps["curate"])
	}
	if snap.Steps["draft"].Status != domain.StepStatusFailed {
		t.Errorf("draft: %v", snap.Steps["draft"])
	}
	if len(snap.StepOrder) != 2 || snap.StepOrder[0] != "curate" || snap.StepOrder[1] != "draft" {
		t.Errorf("step order not preserved: %v", snap.StepOrder)
	}
	if snap.LastSeq != 6 {
		t.Errorf("expected last seq 6, got %d", snap.LastSeq)
	}

	// Свёртка детерминирована.
	again := Fold(events)
	if again.Status != snap.Status || again.LastSeq != snap.LastSeq {
		t.Error("fold is not deterministic")
	}
}

func TestRecorder_WatchDeliversInOrder(t *testing.T) {
	rec := NewRecorder(NewMemoryStore(), nil, nil)
	id := uuid.New()

	ch, cancel := rec.Watch(id)
	defer cancel()

	statuses := []string{
		string(domain.RunStatusStarted),
		string(domain.StepStatusRunning),
		string(domain.StepStatusCompleted),
		string(domain.RunStatusCompleted),
	}
	for i, st := range statuses {
		step := ""
		if i == 1 || i == 2 {
			step = "curate"
		}
		if err := rec.Record(context.Background(), id, "proj", step, st, ""); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	for i, want := range statuses {
		got := <-ch
		if got.Status != want {
			t.Errorf("event %d: expected %s, got %s", i, want, got.Status)
		}
		if got.Seq != int64(i+1) {
			t.Errorf("event %d: out of order seq %d", i, got.Seq)
		}
	}
}

func TestRecorder_Snapshot(t *testing.T) {
	rec := NewRecorder(NewMemoryStore(), nil, nil)
	id := uuid.New()

	rec.Record(context.Background(), id, "proj", "", string(domain.RunStatusStarted), "")
	rec.Record(context.Background(), id, "proj", "narrate", string(domain.StepStatusFallback), "synthesis unavailable")

	snap, err := rec.Snapshot(context.Background(), id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Steps["narrate"].Status != domain.StepStatusFallback {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if snap.ProjectID != "proj" {
		t.Errorf("unexpected project: %s", snap.ProjectID)
	}
}
