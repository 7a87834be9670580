package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func TestNewAnthropicProvider_NoKey(t *testing.T) {
	orig := os.Getenv("ANTHROPIC_API_KEY")
	os.Unsetenv("ANTHROPIC_API_KEY")
	defer os.Setenv("ANTHROPIC_API_KEY", orig)

	if _, err := NewAnthropicProvider("", "", ""); err == nil {
		t.Error("expected error when no API key")
	}
}

func TestNewAnthropicProvider_CustomBaseURLAllowsEmptyKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	p, err := NewAnthropicProvider("", "http://proxy.local/", "")
	if err != nil {
		t.Fatalf("NewAnthropicProvider: %v", err)
	}
	if p.baseURL != "http://proxy.local" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", p.baseURL)
	}
	if p.Model() != anthropicDefaultModel {
		t.Errorf("Model() = %q, want %q", p.Model(), anthropicDefaultModel)
	}
}

func TestAnthropicComplete(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != anthropicMessagesPath {
			t.Errorf("path = %q, want %q", r.URL.Path, anthropicMessagesPath)
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Errorf("X-Api-Key = %q", r.Header.Get("X-Api-Key"))
		}
		if r.Header.Get("Anthropic-Version") != anthropicAPIVersion {
			t.Errorf("Anthropic-Version = %q", r.Header.Get("Anthropic-Version"))
		}
		json.NewDecoder(r.Body).Decode(&got)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"{\"health\":"},{"type":"text","text":"\"GREEN\"}"}]}`))
	}))
	defer srv.Close()

	p, err := NewAnthropicProvider("test-key", srv.URL, "claude-test")
	if err != nil {
		t.Fatalf("NewAnthropicProvider: %v", err)
	}

	out, err := p.Complete(context.Background(), CompletionRequest{
		System: "be terse",
		Prompt: "analyze",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"health":"GREEN"}` {
		t.Errorf("output = %q", out)
	}
	if got.Model != "claude-test" {
		t.Errorf("model = %q, want claude-test", got.Model)
	}
	if got.System != "be terse" {
		t.Errorf("system = %q", got.System)
	}
	if got.MaxTokens != defaultMaxTokens {
		t.Errorf("max_tokens = %d, want %d", got.MaxTokens, defaultMaxTokens)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "analyze" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestAnthropicComplete_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	p, _ := NewAnthropicProvider("k", srv.URL, "")
	_, err := p.Complete(context.Background(), CompletionRequest{Prompt: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error = %v, want status code", err)
	}
}

func TestAnthropicComplete_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[]}`))
	}))
	defer srv.Close()

	p, _ := NewAnthropicProvider("k", srv.URL, "")
	if _, err := p.Complete(context.Background(), CompletionRequest{Prompt: "x"}); err == nil {
		t.Fatal("expected error for empty content")
	}
}
