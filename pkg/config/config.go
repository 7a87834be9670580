package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Store     StoreConfig     `toml:"store"`
	Log       LogConfig       `toml:"log"`
	Tracing   TracingConfig   `toml:"tracing"`
	Market    MarketConfig    `toml:"market"`
	LLM       LLMConfig       `toml:"llm"`
	Notify    NotifyConfig    `toml:"notify"`
	Retention RetentionConfig `toml:"retention"`
}

type ServerConfig struct {
	Bind        string `toml:"bind"`
	Port        int    `toml:"port"`
	AuthToken   string `toml:"auth_token"`
	ExternalURL string `toml:"external_url"`
}

type StoreConfig struct {
	DSN string `toml:"dsn"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type TracingConfig struct {
	Enabled     bool    `toml:"enabled"`
	Endpoint    string  `toml:"endpoint"`
	SampleRatio float64 `toml:"sample_ratio"`
}

type MarketConfig struct {
	BaseURL string `toml:"base_url"`
	Timeout string `toml:"timeout"`
}

type LLMConfig struct {
	// Provider is one of anthropic, openai, gemini, ollama or none.
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	APIKeyEnv string `toml:"api_key_env"`
	BaseURL   string `toml:"base_url"`
	Timeout   string `toml:"timeout"`
}

type NotifyConfig struct {
	WebhookURL string   `toml:"webhook_url"`
	SecretEnv  string   `toml:"secret_env"`
	QueueSize  int      `toml:"queue_size"`
	Timeout    string   `toml:"timeout"`
	Skills     []string `toml:"skills"`

	Slack    SlackConfig    `toml:"slack"`
	Telegram TelegramConfig `toml:"telegram"`
	Discord  DiscordConfig  `toml:"discord"`
	Matrix   MatrixConfig   `toml:"matrix"`
}

// SlackConfig posts summaries to a channel with a bot token.
type SlackConfig struct {
	Channel  string `toml:"channel"`
	TokenEnv string `toml:"token_env"`
	APIURL   string `toml:"api_url"`
}

type TelegramConfig struct {
	ChatID    string `toml:"chat_id"`
	TokenEnv  string `toml:"token_env"`
	ServerURL string `toml:"server_url"`
}

type MatrixConfig struct {
	Homeserver string `toml:"homeserver"`
	RoomID     string `toml:"room_id"`
	TokenEnv   string `toml:"token_env"`
}

// DiscordConfig names the env var holding a channel webhook URL. The URL
// embeds the webhook token, so it is never stored in the file.
type DiscordConfig struct {
	WebhookEnv string `toml:"webhook_env"`
}

type RetentionConfig struct {
	Schedule string `toml:"schedule"`
	TaskTTL  string `toml:"task_ttl"`
	AuditTTL string `toml:"audit_ttl"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Bind: "loopback",
			Port: 18790,
		},
		Store: StoreConfig{
			DSN: filepath.Join(DataDir(), "tokenlens.db"),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Market: MarketConfig{
			BaseURL: "https://api.dexscreener.com",
			Timeout: "5s",
		},
		LLM: LLMConfig{
			Provider: "none",
			Timeout:  "8s",
		},
		Notify: NotifyConfig{
			QueueSize: 64,
			Timeout:   "5s",
		},
		Retention: RetentionConfig{
			Schedule: "@hourly",
			TaskTTL:  "720h",
			AuditTTL: "2160h",
		},
	}
}

var (
	current *Config
	mu      sync.RWMutex
)

func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.Store.DSN == "" {
		cfg.Store.DSN = filepath.Join(DataDir(), "tokenlens.db")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mu.Lock()
	current = cfg
	mu.Unlock()

	return cfg, nil
}

// Validate checks values that would otherwise fail late, at first use.
func (c *Config) Validate() error {
	var errs []error
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio %v must be between 0 and 1", c.Tracing.SampleRatio))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "", "none", "anthropic", "openai", "gemini", "ollama":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider))
	}
	if c.Notify.Slack.Channel != "" && c.Notify.Slack.TokenEnv == "" {
		errs = append(errs, errors.New("notify.slack.token_env is required when notify.slack.channel is set"))
	}
	if c.Notify.Telegram.ChatID != "" && c.Notify.Telegram.TokenEnv == "" {
		errs = append(errs, errors.New("notify.telegram.token_env is required when notify.telegram.chat_id is set"))
	}
	if c.Notify.Matrix.RoomID != "" && (c.Notify.Matrix.Homeserver == "" || c.Notify.Matrix.TokenEnv == "") {
		errs = append(errs, errors.New("notify.matrix.homeserver and notify.matrix.token_env are required when notify.matrix.room_id is set"))
	}
	for name, v := range map[string]string{
		"market.timeout":      c.Market.Timeout,
		"llm.timeout":         c.LLM.Timeout,
		"notify.timeout":      c.Notify.Timeout,
		"retention.task_ttl":  c.Retention.TaskTTL,
		"retention.audit_ttl": c.Retention.AuditTTL,
	} {
		if _, err := parseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// BaseURL is the address advertised in the agent card.
func (c *Config) BaseURL() string {
	if c.Server.ExternalURL != "" {
		return strings.TrimRight(c.Server.ExternalURL, "/")
	}
	host := "localhost"
	if c.Server.Bind != "" && c.Server.Bind != "loopback" && c.Server.Bind != "lan" && c.Server.Bind != "all" {
		host = c.Server.Bind
	}
	return fmt.Sprintf("http://%s:%d", host, c.Server.Port)
}

func (m MarketConfig) TimeoutDuration() time.Duration     { return mustDuration(m.Timeout) }
func (l LLMConfig) TimeoutDuration() time.Duration        { return mustDuration(l.Timeout) }
func (n NotifyConfig) TimeoutDuration() time.Duration     { return mustDuration(n.Timeout) }
func (r RetentionConfig) TaskTTLDuration() time.Duration  { return mustDuration(r.TaskTTL) }
func (r RetentionConfig) AuditTTLDuration() time.Duration { return mustDuration(r.AuditTTL) }

// APIKey resolves the LLM key from the configured environment variable.
func (l LLMConfig) APIKey() string { return envValue(l.APIKeyEnv) }

func (n NotifyConfig) Secret() string { return envValue(n.SecretEnv) }

func (s SlackConfig) Enabled() bool        { return s.Channel != "" }
func (s SlackConfig) Token() string        { return envValue(s.TokenEnv) }
func (t TelegramConfig) Enabled() bool     { return t.ChatID != "" }
func (t TelegramConfig) Token() string     { return envValue(t.TokenEnv) }
func (d DiscordConfig) Enabled() bool      { return d.WebhookEnv != "" }
func (d DiscordConfig) WebhookURL() string { return envValue(d.WebhookEnv) }
func (m MatrixConfig) Enabled() bool       { return m.RoomID != "" }
func (m MatrixConfig) Token() string       { return envValue(m.TokenEnv) }

func envValue(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// parseDuration accepts an empty string as zero, which means "use the
// default" for timeouts and "disabled" for retention.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

func mustDuration(s string) time.Duration {
	d, _ := parseDuration(s)
	return d
}

func Current() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if current == nil {
		return Default()
	}
	return current
}

func DataDir() string {
	if dir := os.Getenv("TOKENLENS_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tokenlens"
	}
	return filepath.Join(home, ".tokenlens")
}

func DefaultConfigPath() string {
	return filepath.Join(DataDir(), "tokenlens.toml")
}

func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0700)
}
