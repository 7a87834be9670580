package llm

import (
	"net/http"
	"os"
)

const ollamaDefaultURL = "http://localhost:11434/v1/chat/completions"

// NewOllamaProvider talks to a local Ollama server through its
// OpenAI-compatible endpoint.
func NewOllamaProvider(baseURL, model string) (*OpenAIProvider, error) {
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	if baseURL == "" {
		baseURL = ollamaDefaultURL
	}
	if model == "" {
		model = "llama3"
	}

	return &OpenAIProvider{
		name:       "ollama",
		apiKey:     "ollama",
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{},
	}, nil
}
