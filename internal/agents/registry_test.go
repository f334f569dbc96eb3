package agents

import (
	"testing"
)

func TestDefault_Criticality(t *testing.T) {
	r := Default()

	tests := []struct {
		agent    string
		critical bool
	}{
		{"media-curator", false},
		{"script-writer", true},
		{"narrator", true},
		{"composer", false},
		{"assembler", true},
		{"attributor", false},
		{"publisher", true},
	}

	for _, tt := range tests {
		if got := r.IsCritical(tt.agent); got != tt.critical {
			t.Errorf("%s: expected critical=%v, got %v", tt.agent, tt.critical, got)
		}
	}

	// Неизвестный агент считается критичным.
	if !r.IsCritical("nonexistent") {
		t.Error("unknown agent should be treated as critical")
	}
}

func TestEndpoint_EnvOverride(t *testing.T) {
	r := Default()

	ep, ok := r.Endpoint("narrator")
	if !ok || ep != "http://localhost:9003/synthesize" {
		t.Errorf("unexpected default endpoint: %s", ep)
	}

	t.Setenv("CONDUCTOR_AGENT_NARRATOR_URL", "http://narrator.internal:9003")

	ep, _ = r.Endpoint("narrator")
	if ep != "http://narrator.internal:9003" {
		t.Errorf("env override not applied: %s", ep)
	}

	if _, ok := r.Endpoint("nonexistent"); ok {
		t.Error("expected no endpoint for unknown agent")
	}
}

func TestFallback_IsAgentSpecificCopy(t *testing.T) {
	r := Default()

	fb := r.Fallback("composer")
	if fb["fallback"] != true {
		t.Error("fallback payload should carry the fallback flag")
	}
	if _, ok := fb["track_url"]; !ok {
		t.Error("composer fallback should be agent-specific")
	}

	// Мутация копии не затрагивает реестр.
	fb["track_url"] = "mutated"
	if r.Fallback("composer")["track_url"] == "mutated" {
		t.Error("fallback payload must be a copy")
	}
}
