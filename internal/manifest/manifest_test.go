package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shaiso/Conductor/internal/domain"
)

const validDoc = `
version: "1"
name: weekly-digest
constants:
  topic: deep sea exploration
steps:
  - name: curate
    agent: media-curator
    input:
      topic: ${manifest.topic}
      max_items: 12
    output: assets/media_plan.json
  - name: draft
    agent: script-writer
    input:
      topic: ${manifest.topic}
      media: ${steps.curate.output.items}
  - name: narrate
    agent: narrator
    endpoint: ${env.NARRATOR_URL}
    input:
      script: ${steps.draft.output.script}
`

func TestParse_Valid(t *testing.T) {
	m, err := Parse([]byte(validDoc), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if m.Name != "weekly-digest" {
		t.Errorf("unexpected name: %s", m.Name)
	}
	if len(m.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(m.Steps))
	}
	if m.Constants["topic"] != "deep sea exploration" {
		t.Errorf("constants not parsed: %v", m.Constants)
	}
	if m.Steps[0].Output != "assets/media_plan.json" {
		t.Errorf("output not parsed: %v", m.Steps[0].Output)
	}
	if m.Steps[0].Input["max_items"] != 12 {
		t.Errorf("numeric input leaf not parsed: %v", m.Steps[0].Input["max_items"])
	}
}

func TestParse_JSONDocument(t *testing.T) {
	doc := `{"steps":[{"name":"publish","agent":"publisher","input":{"title":"x"}}]}`

	m, err := Parse([]byte(doc), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Steps[0].Agent != "publisher" {
		t.Errorf("unexpected agent: %s", m.Steps[0].Agent)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		m       *domain.Manifest
		wantErr error
	}{
		{
			name:    "no steps",
			m:       &domain.Manifest{},
			wantErr: ErrEmptySteps,
		},
		{
			name: "empty step name",
			m: &domain.Manifest{Steps: []domain.Step{
				{Agent: "publisher"},
			}},
			wantErr: ErrEmptyStepName,
		},
		{
			name: "invalid step name",
			m: &domain.Manifest{Steps: []domain.Step{
				{Name: "bad name!", Agent: "publisher"},
			}},
			wantErr: ErrInvalidStepName,
		},
		{
			name: "duplicate step name",
			m: &domain.Manifest{Steps: []domain.Step{
				{Name: "a", Agent: "publisher"},
				{Name: "a", Agent: "publisher"},
			}},
			wantErr: ErrDuplicateStepName,
		},
		{
			name: "empty agent",
			m: &domain.Manifest{Steps: []domain.Step{
				{Name: "a"},
			}},
			wantErr: ErrEmptyAgent,
		},
		{
			name: "forward reference",
			m: &domain.Manifest{Steps: []domain.Step{
				{Name: "a", Agent: "publisher", Input: map[string]any{
					"x": "${steps.b.output}",
				}},
				{Name: "b", Agent: "publisher"},
			}},
			wantErr: ErrForwardReference,
		},
		{
			name: "self reference",
			m: &domain.Manifest{Steps: []domain.Step{
				{Name: "a", Agent: "publisher", Input: map[string]any{
					"x": "${steps.a.output}",
				}},
			}},
			wantErr: ErrForwardReference,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.m, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_BackwardReferenceOK(t *testing.T) {
	m := &domain.Manifest{Steps: []domain.Step{
		{Name: "a", Agent: "publisher"},
		{Name: "b", Agent: "publisher", Input: map[string]any{
			"x": "${steps.a.output.data}",
		}},
	}}

	if err := Validate(m, nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_KnownAgent(t *testing.T) {
	m := &domain.Manifest{Steps: []domain.Step{
		{Name: "a", Agent: "nonexistent"},
	}}

	opts := &ValidateOptions{KnownAgent: func(name string) bool { return name == "publisher" }}

	if err := Validate(m, opts); !errors.Is(err, ErrUnknownAgent) {
		t.Errorf("expected ErrUnknownAgent, got %v", err)
	}
}

func TestLoader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "digest.yaml")
	if err := os.WriteFile(path, []byte(validDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(dir, nil)

	m, err := loader.Load("digest")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Имя берётся из документа, не из файла.
	if m.Name != "weekly-digest" {
		t.Errorf("unexpected name: %s", m.Name)
	}

	names, err := loader.List()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 1 || names[0] != "digest" {
		t.Errorf("unexpected names: %v", names)
	}

	if _, err := loader.Load("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := loader.Load("../escape"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for path traversal, got %v", err)
	}
}
