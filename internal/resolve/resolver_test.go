package resolve

import (
	"reflect"
	"testing"
	"time"
)

func testContext() *Context {
	c := NewContext("proj-42", map[string]any{
		"topic": "deep sea exploration",
		"voice": "en-US-standard-b",
		"limits": map[string]any{
			"max_items": 12,
		},
	}, "corr-1", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	c.Env = func(name string) (string, bool) {
		env := map[string]string{
			"NARRATOR_URL": "http://narrator.internal:9003",
			"REGION":       "eu-west",
		}
		v, ok := env[name]
		return v, ok
	}

	c.AddStepOutput("curate", map[string]any{
		"items": []any{"clip-a", "clip-b"},
		"count": 2,
	}, "assets/curate.json")

	return c
}

func TestResolve_EnvScope(t *testing.T) {
	c := testContext()

	got := Resolve("${env.NARRATOR_URL}/synthesize", c)
	want := "http://narrator.internal:9003/synthesize"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestResolve_ProjectScope(t *testing.T) {
	c := testContext()

	tests := []struct {
		name     string
		template string
		expected any
	}{
		{"project id from fallback", "${project.id}", "proj-42"},
		{"unknown project field stays literal", "${project.owner}", "${project.owner}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.template, c)
			if got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestResolve_StepsScope(t *testing.T) {
	c := testContext()

	// Целый токен — типизированное значение.
	got := Resolve("${steps.curate.output.items}", c)
	want := []any{"clip-a", "clip-b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	// Индексация списка.
	if got := Resolve("${steps.curate.output.items.1}", c); got != "clip-b" {
		t.Errorf("expected clip-b, got %v", got)
	}

	// outputPath.
	if got := Resolve("${steps.curate.outputPath}", c); got != "assets/curate.json" {
		t.Errorf("expected assets/curate.json, got %v", got)
	}

	// Интерполяция внутри строки — JSON для контейнеров.
	if got := Resolve("media: ${steps.curate.output.items}", c); got != `media: ["clip-a","clip-b"]` {
		t.Errorf("unexpected interpolation: %v", got)
	}
}

func TestResolve_UnresolvedStepPassesThrough(t *testing.T) {
	c := testContext()

	// Шаг ещё не выполнялся — токен остаётся literal, без ошибки.
	got := Resolve("${steps.draft.output.script}", c)
	if got != "${steps.draft.output.script}" {
		t.Errorf("expected literal token, got %v", got)
	}

	// То же для несуществующего поля выполнившегося шага.
	got = Resolve("${steps.curate.output.missing}", c)
	if got != "${steps.curate.output.missing}" {
		t.Errorf("expected literal token, got %v", got)
	}
}

func TestResolve_ManifestAndRunScopes(t *testing.T) {
	c := testContext()

	tests := []struct {
		template string
		expected any
	}{
		{"${manifest.topic}", "deep sea exploration"},
		{"${manifest.limits.max_items}", 12},
		{"${run.start_time}", "2026-03-01T10:00:00Z"},
		{"${run.correlation_id}", "corr-1"},
		{"${run.unknown}", "${run.unknown}"},
		{"${nosuchscope.x}", "${nosuchscope.x}"},
	}

	for _, tt := range tests {
		got := Resolve(tt.template, c)
		if !reflect.DeepEqual(got, tt.expected) {
			t.Errorf("%s: expected %v, got %v", tt.template, tt.expected, got)
		}
	}
}

func TestResolve_NestedStructures(t *testing.T) {
	c := testContext()

	input := map[string]any{
		"topic": "${manifest.topic}",
		"media": "${steps.curate.output.items}",
		"options": map[string]any{
			"region": "${env.REGION}",
			"count":  3,
		},
		"tags": []any{"${manifest.voice}", "literal"},
	}

	got := Resolve(input, c).(map[string]any)

	if got["topic"] != "deep sea exploration" {
		t.Errorf("topic not resolved: %v", got["topic"])
	}
	if !reflect.DeepEqual(got["media"], []any{"clip-a", "clip-b"}) {
		t.Errorf("media not resolved: %v", got["media"])
	}
	opts := got["options"].(map[string]any)
	if opts["region"] != "eu-west" {
		t.Errorf("region not resolved: %v", opts["region"])
	}
	if opts["count"] != 3 {
		t.Errorf("non-string leaf changed: %v", opts["count"])
	}
	tags := got["tags"].([]any)
	if tags[0] != "en-US-standard-b" || tags[1] != "literal" {
		t.Errorf("tags not resolved: %v", tags)
	}

	// Исходное значение не мутируется.
	if input["topic"] != "${manifest.topic}" {
		t.Error("input was mutated")
	}
}

func TestResolve_Purity(t *testing.T) {
	c := testContext()

	input := map[string]any{
		"a": "${manifest.topic}",
		"b": []any{"${steps.curate.output.count}", "${steps.later.output}"},
	}

	first := Resolve(input, c)
	second := Resolve(input, c)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("resolution is not referentially transparent:\nfirst:  %v\nsecond: %v", first, second)
	}
}

func TestReferences(t *testing.T) {
	input := map[string]any{
		"script": "${steps.draft.output.script}",
		"nested": []any{"${manifest.topic} and ${env.REGION}"},
	}

	refs := References(input)
	if len(refs) != 3 {
		t.Fatalf("expected 3 refs, got %d: %v", len(refs), refs)
	}

	scopes := make(map[string]bool)
	for _, r := range refs {
		scopes[r.Scope] = true
	}
	for _, want := range []string{"steps", "manifest", "env"} {
		if !scopes[want] {
			t.Errorf("missing scope %s in %v", want, refs)
		}
	}
}
