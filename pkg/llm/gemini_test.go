package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGeminiComplete(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-test:generateContent" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("X-Goog-Api-Key") != "g-key" {
			t.Errorf("X-Goog-Api-Key = %q", r.Header.Get("X-Goog-Api-Key"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"health\":\"RED\"}"}]}}]}`))
	}))
	defer srv.Close()

	p, err := NewGeminiProvider("g-key", srv.URL, "gemini-test")
	if err != nil {
		t.Fatalf("NewGeminiProvider: %v", err)
	}

	out, err := p.Complete(context.Background(), CompletionRequest{System: "sys", Prompt: "p"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"health":"RED"}` {
		t.Errorf("output = %q", out)
	}
	if got.SystemInstruction == nil || got.SystemInstruction.Parts[0].Text != "sys" {
		t.Errorf("systemInstruction = %+v", got.SystemInstruction)
	}
	if got.GenerationConfig == nil || got.GenerationConfig.ResponseMIMEType != "application/json" {
		t.Errorf("generationConfig = %+v", got.GenerationConfig)
	}
}

func TestNewGeminiProvider_NoKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	if _, err := NewGeminiProvider("", "", ""); err == nil {
		t.Error("expected error when no API key")
	}
}
