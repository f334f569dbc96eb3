package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"
)

func TestDispatch_Success_DataField(t *testing.T) {
	var received map[string]any
	var correlationHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationHeader = r.Header.Get("X-Correlation-ID")
		json.NewDecoder(r.Body).Decode(&received)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"script":"hello"},"success":true}`))
	}))
	defer server.Close()

	d := New(0, nil)
	output, err := d.Dispatch(context.Background(), Request{
		StepName:      "draft",
		Agent:         "script-writer",
		Endpoint:      server.URL,
		Input:         map[string]any{"topic": "oceans"},
		ProjectID:     "proj-1",
		CorrelationID: "11111111-2222-3333-4444-555555555555",
		Attempt:       1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]any{"script": "hello"}
	if !reflect.DeepEqual(output, want) {
		t.Errorf("expected %v, got %v", want, output)
	}

	// projectId внедряется в payload.
	if received["projectId"] != "proj-1" {
		t.Errorf("projectId not injected: %v", received)
	}
	if received["topic"] != "oceans" {
		t.Errorf("input not forwarded: %v", received)
	}
	// Заголовок несёт correlation ID run, не project ID.
	if correlationHeader != "11111111-2222-3333-4444-555555555555" {
		t.Errorf("X-Correlation-ID: %q", correlationHeader)
	}
}

func TestDispatch_Success_WholeBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"items":["a","b"]}`))
	}))
	defer server.Close()

	d := New(0, nil)
	output, err := d.Dispatch(context.Background(), Request{Agent: "media-curator", Endpoint: server.URL, Attempt: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	obj := output.(map[string]any)
	if _, ok := obj["items"]; !ok {
		t.Errorf("expected whole body as output, got %v", output)
	}
}

func TestDispatch_FailureClassification(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "non-success status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantErr: ErrBadStatus,
		},
		{
			name: "error field in body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(`{"error":"voice model not loaded"}`))
			},
			wantErr: ErrAgentFailure,
		},
		{
			name: "success false in body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(`{"success":false}`))
			},
			wantErr: ErrAgentFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			d := New(0, nil)
			_, err := d.Dispatch(context.Background(), Request{Agent: "narrator", Endpoint: server.URL, Attempt: 1})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDispatch_TransportError(t *testing.T) {
	d := New(0, nil)
	// Закрытый порт.
	_, err := d.Dispatch(context.Background(), Request{Agent: "composer", Endpoint: "http://127.0.0.1:1", Attempt: 1})
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
}

func TestDispatch_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	d := New(50*time.Millisecond, nil)
	_, err := d.Dispatch(context.Background(), Request{Agent: "assembler", Endpoint: server.URL, Attempt: 1})
	if !errors.Is(err, ErrTransport) {
		t.Errorf("timeout should classify as transport error, got %v", err)
	}
}

func TestDispatch_Cancellation(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Тело вычитывается до блокировки: сервер не начинает следить
		// за соединением, пока тело запроса не прочитано, и хэндлер,
		// повисший до чтения, не отпустит server.Close().
		io.Copy(io.Discard, r.Body)
		close(started)
		<-release
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	d := New(5*time.Second, nil)
	_, err := d.Dispatch(ctx, Request{Agent: "publisher", Endpoint: server.URL, Attempt: 1})
	close(release)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cancellation must surface as context.Canceled, got %v", err)
	}
}

func TestDispatch_EmptyEndpoint(t *testing.T) {
	d := New(0, nil)
	_, err := d.Dispatch(context.Background(), Request{StepName: "x", Agent: "publisher"})
	if !errors.Is(err, ErrEmptyEndpoint) {
		t.Errorf("expected ErrEmptyEndpoint, got %v", err)
	}
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		err    error
		reason string
	}{
		{ErrBadStatus, "status"},
		{ErrAgentFailure, "agent"},
		{ErrTransport, "transport"},
	}
	for _, tt := range tests {
		if got := FailureReason(tt.err); got != tt.reason {
			t.Errorf("%v: expected %s, got %s", tt.err, tt.reason, got)
		}
	}
}
