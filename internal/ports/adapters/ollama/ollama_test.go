package ollama

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shortreel/shortreel/internal/ports"
)

func TestInfer_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"  [0.7, 0.2]  "}`))
	}))
	defer srv.Close()

	a := New("llama3", srv.URL)
	res, err := a.Infer(context.Background(), ports.ModelRequest{
		Capability: ports.CapScoreHighlight,
		Input:      "score these",
	})
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if res.Text != "[0.7, 0.2]" {
		t.Fatalf("unexpected text: %q", res.Text)
	}
}

func TestInfer_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := New("llama3", srv.URL)
	_, err := a.Infer(context.Background(), ports.ModelRequest{Capability: ports.CapSummarize})
	if !errors.Is(err, ports.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestInfer_ClientErrorIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such model", http.StatusNotFound)
	}))
	defer srv.Close()

	a := New("nope", srv.URL)
	_, err := a.Infer(context.Background(), ports.ModelRequest{Capability: ports.CapSummarize})
	if err == nil || errors.Is(err, ports.ErrTransient) {
		t.Fatalf("expected non-transient error, got %v", err)
	}
}

func TestValidateBaseURL(t *testing.T) {
	tests := []struct {
		name         string
		baseURL      string
		allowedHosts []string
		wantErr      bool
	}{
		{name: "empty defaults to loopback", baseURL: ""},
		{name: "localhost ok", baseURL: "http://localhost:11434"},
		{name: "loopback ok", baseURL: "http://127.0.0.1:11434"},
		{name: "remote rejected", baseURL: "http://gpu.example:11434", wantErr: true},
		{name: "remote allow-listed", baseURL: "http://gpu.internal:11434", allowedHosts: []string{"gpu.internal"}},
		{name: "relative rejected", baseURL: "localhost:11434", wantErr: true},
		{name: "query rejected", baseURL: "http://localhost:11434?x=1", wantErr: true},
		{name: "userinfo rejected", baseURL: "http://u:p@localhost:11434", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBaseURL(tt.baseURL, tt.allowedHosts)
			if tt.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
