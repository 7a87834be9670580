package tokenlens

import (
	"fmt"
	"log/slog"

	"github.com/igorsilveira/tokenlens/pkg/audit"
	"github.com/igorsilveira/tokenlens/pkg/config"
	"github.com/igorsilveira/tokenlens/pkg/llm"
	"github.com/igorsilveira/tokenlens/pkg/market"
	"github.com/igorsilveira/tokenlens/pkg/notify"
	"github.com/igorsilveira/tokenlens/pkg/scheduler"
	"github.com/igorsilveira/tokenlens/pkg/skills"
	"github.com/igorsilveira/tokenlens/pkg/store"
)

// openData opens the task store and the audit log, which share one
// database file.
func openData(cfg *config.Config) (*store.Store, *audit.Logger, error) {
	st, err := store.New(cfg.Store.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}
	al, err := audit.New(st.DB())
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("initializing audit log: %w", err)
	}
	return st, al, nil
}

func buildSkills(cfg *config.Config) (*skills.Registry, llm.Provider, error) {
	src := market.NewClient(cfg.Market.BaseURL, cfg.Market.TimeoutDuration())

	provider, err := llm.NewProvider(llm.ProviderConfig{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey(),
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("configuring llm: %w", err)
	}

	reg := skills.NewRegistry(
		skills.NewRiskBaseline(src, nil),
		skills.NewHealthCheck(skills.HealthCheckConfig{
			Market:     src,
			LLM:        provider,
			LLMTimeout: cfg.LLM.TimeoutDuration(),
		}),
	)
	return reg, provider, nil
}

func buildNotifier(cfg *config.Config, al *audit.Logger, logger *slog.Logger) (*notify.Dispatcher, error) {
	n, err := buildNotifiers(cfg.Notify)
	if err != nil {
		return nil, err
	}
	return notify.NewDispatcher(notify.DispatcherConfig{
		Notifier:  n,
		QueueSize: cfg.Notify.QueueSize,
		Timeout:   cfg.Notify.TimeoutDuration(),
		Skills:    cfg.Notify.Skills,
		AuditLog:  al,
		Logger:    logger,
	}), nil
}

// buildNotifiers returns every configured outbound channel, fanned out
// when there is more than one.
func buildNotifiers(nc config.NotifyConfig) (notify.Notifier, error) {
	var out notify.Multi
	if nc.WebhookURL != "" {
		out = append(out, notify.NewWebhook(nc.WebhookURL, nc.Secret(), nc.TimeoutDuration()))
	}
	if nc.Slack.Enabled() {
		out = append(out, notify.NewSlack(nc.Slack.Token(), nc.Slack.Channel, nc.Slack.APIURL))
	}
	if nc.Telegram.Enabled() {
		tg, err := notify.NewTelegram(nc.Telegram.Token(), nc.Telegram.ChatID, nc.Telegram.ServerURL)
		if err != nil {
			return nil, err
		}
		out = append(out, tg)
	}
	if nc.Discord.Enabled() {
		dc, err := notify.NewDiscord(nc.Discord.WebhookURL(), nil)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", nc.Discord.WebhookEnv, err)
		}
		out = append(out, dc)
	}

	if nc.Matrix.Enabled() {
		mx, err := notify.NewMatrix(nc.Matrix.Homeserver, nc.Matrix.RoomID, nc.Matrix.Token())
		if err != nil {
			return nil, err
		}
		out = append(out, mx)
	}

	switch len(out) {
	case 0:
		return notify.Noop{}, nil
	case 1:
		return out[0], nil
	default:
		return out, nil
	}
}

func buildRetention(cfg *config.Config, st *store.Store, al *audit.Logger) (*scheduler.Scheduler, error) {
	s := scheduler.New()
	if job, ok := scheduler.RetentionJob("prune-tasks", cfg.Retention.Schedule, cfg.Retention.TaskTTLDuration(), st.PruneTasks, nil); ok {
		if err := s.Add(job); err != nil {
			return nil, err
		}
	}
	if job, ok := scheduler.RetentionJob("prune-audit", cfg.Retention.Schedule, cfg.Retention.AuditTTLDuration(), al.Prune, nil); ok {
		if err := s.Add(job); err != nil {
			return nil, err
		}
	}
	return s, nil
}
