package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func TestNewOpenAIProvider_NoKey(t *testing.T) {
	orig := os.Getenv("OPENAI_API_KEY")
	os.Unsetenv("OPENAI_API_KEY")
	defer os.Setenv("OPENAI_API_KEY", orig)

	if _, err := NewOpenAIProvider("", "", ""); err == nil {
		t.Error("expected error when no API key")
	}
}

func TestOpenAIComplete(t *testing.T) {
	var got openaiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Hello from GPT"}}]}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider("test-key", srv.URL, "")
	if err != nil {
		t.Fatalf("NewOpenAIProvider: %v", err)
	}

	temp := 0.2
	out, err := p.Complete(context.Background(), CompletionRequest{
		System:      "sys",
		Prompt:      "hello",
		MaxTokens:   300,
		Temperature: &temp,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "Hello from GPT" {
		t.Errorf("output = %q", out)
	}
	if got.Model != openaiDefaultModel {
		t.Errorf("model = %q, want %q", got.Model, openaiDefaultModel)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Role != "user" {
		t.Errorf("messages = %+v", got.Messages)
	}
	if got.MaxTokens != 300 {
		t.Errorf("max_tokens = %d, want 300", got.MaxTokens)
	}
	if got.Temperature == nil || *got.Temperature != 0.2 {
		t.Errorf("temperature = %v", got.Temperature)
	}
}

func TestOpenAIComplete_NoSystem(t *testing.T) {
	var got openaiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	p, _ := NewOpenAIProvider("k", srv.URL, "gpt-test")
	if _, err := p.Complete(context.Background(), CompletionRequest{Prompt: "hi"}); err != nil {
		t.Fatal(err)
	}
	if len(got.Messages) != 1 {
		t.Errorf("messages = %d, want 1", len(got.Messages))
	}
}

func TestOpenAIComplete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	p, _ := NewOpenAIProvider("k", srv.URL, "")
	if _, err := p.Complete(context.Background(), CompletionRequest{Prompt: "hi"}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestOpenAIComplete_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	p, _ := NewOpenAIProvider("k", srv.URL, "")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := p.Complete(ctx, CompletionRequest{Prompt: "hi"}); err == nil {
		t.Fatal("expected deadline error")
	}
}
