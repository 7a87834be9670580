package llm

import "testing"

func TestNewProvider(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "")

	tests := []struct {
		cfg      ProviderConfig
		wantName string
		wantNil  bool
		wantErr  bool
	}{
		{cfg: ProviderConfig{}, wantNil: true},
		{cfg: ProviderConfig{Provider: "none"}, wantNil: true},
		{cfg: ProviderConfig{Provider: "anthropic", APIKey: "k"}, wantName: "anthropic"},
		{cfg: ProviderConfig{Provider: "OpenAI", APIKey: "k"}, wantName: "openai"},
		{cfg: ProviderConfig{Provider: "gemini", APIKey: "k"}, wantName: "gemini"},
		{cfg: ProviderConfig{Provider: "ollama"}, wantName: "ollama"},
		{cfg: ProviderConfig{Provider: "cohere"}, wantErr: true},
	}

	for _, tt := range tests {
		p, err := NewProvider(tt.cfg)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tt.cfg.Provider)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", tt.cfg.Provider, err)
			continue
		}
		if tt.wantNil {
			if p != nil {
				t.Errorf("%q: expected nil provider", tt.cfg.Provider)
			}
			continue
		}
		if p.Name() != tt.wantName {
			t.Errorf("%q: Name() = %q, want %q", tt.cfg.Provider, p.Name(), tt.wantName)
		}
	}
}
