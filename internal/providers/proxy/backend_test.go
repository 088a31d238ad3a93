package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mwiater/lime/internal/genparams"
	"github.com/mwiater/lime/internal/providers"
)

func strPtr(s string) *string { return &s }

// TestPromptModelFiltersParams verifies the /infer payload carries the
// concatenated prompt and only the allowed params.
func TestPromptModelFiltersParams(t *testing.T) {
	t.Parallel()

	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/infer" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		_, _ = w.Write([]byte(`{"answer":"C) The worm"}`))
	}))
	defer server.Close()

	b, err := New(Options{
		ModelName:        "cpl-rag",
		URL:              server.URL,
		ValidRequestArgs: []string{"max_tokens", "retriever"},
		ExtraParams:      map[string]any{"retriever": "bm25", "debug": true},
		Params:           genparams.Defaults(),
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	resp := b.PromptModel(context.Background(), providers.PromptRequest{
		System:    strPtr("sys. "),
		User:      strPtr("usr?"),
		Overrides: map[string]any{"max_tokens": 7},
	})
	if resp.Err != nil {
		t.Fatalf("PromptModel returned error: %v", resp.Err)
	}
	if *resp.Completion != "C) The worm" {
		t.Fatalf("unexpected completion %q", *resp.Completion)
	}
	if payload["question"] != "sys. usr?" {
		t.Fatalf("unexpected question %v", payload["question"])
	}
	if payload["max_tokens"] != float64(7) || payload["retriever"] != "bm25" {
		t.Fatalf("allowed params missing: %v", payload)
	}
	if _, ok := payload["temperature"]; ok {
		t.Fatalf("temperature should be filtered: %v", payload)
	}
	if _, ok := payload["debug"]; ok {
		t.Fatalf("debug should be filtered: %v", payload)
	}
}

func TestPromptModelServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"missing key: question"}`))
	}))
	defer server.Close()

	b, _ := New(Options{ModelName: "cpl", URL: server.URL})
	resp := b.PromptModel(context.Background(), providers.PromptRequest{User: strPtr("q")})
	if resp.Err == nil || resp.Completion != nil {
		t.Fatalf("expected error response, got %+v", resp)
	}
	if got := resp.Err.Error(); got != "Error: 400 - missing key: question" {
		t.Fatalf("unexpected error %q", got)
	}
}

func TestPromptModelUnparseableError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	}))
	defer server.Close()

	b, _ := New(Options{ModelName: "cpl", URL: server.URL})
	resp := b.PromptModel(context.Background(), providers.PromptRequest{User: strPtr("q")})
	if resp.Err == nil || !strings.Contains(resp.Err.Error(), "502 - could not parse") {
		t.Fatalf("unexpected error %v", resp.Err)
	}
}

func TestCheckReady(t *testing.T) {
	t.Parallel()

	status := "ok"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/check" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"status":"` + status + `"}`))
	}))
	defer server.Close()

	b, _ := New(Options{ModelName: "cpl", URL: server.URL + "/"})
	if err := b.CheckReady(context.Background()); err != nil {
		t.Fatalf("CheckReady returned error: %v", err)
	}

	status = "loading"
	if err := b.CheckReady(context.Background()); !errors.Is(err, providers.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCheckReadyUnreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	b, _ := New(Options{ModelName: "cpl", URL: url})
	if err := b.CheckReady(context.Background()); !errors.Is(err, providers.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestDefaultURL(t *testing.T) {
	t.Parallel()

	b, _ := New(Options{ModelName: "cpl"})
	if b.baseURL != DefaultURL {
		t.Fatalf("expected default url, got %q", b.baseURL)
	}
	if n := b.CountTokens(nil); n != 0 {
		t.Fatalf("expected 0 tokens for nil, got %d", n)
	}
}
