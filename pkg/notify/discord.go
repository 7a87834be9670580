package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/igorsilveira/tokenlens/pkg/a2a"
)

// Discord executes a channel webhook with the task summary. No bot login
// or gateway connection is involved.
type Discord struct {
	session   *discordgo.Session
	webhookID string
	token     string
}

func NewDiscord(webhookURL string, client *http.Client) (*Discord, error) {
	id, token, err := parseDiscordWebhook(webhookURL)
	if err != nil {
		return nil, err
	}
	s, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("notify: creating discord session: %w", err)
	}
	if client != nil {
		s.Client = client
	}
	return &Discord{session: s, webhookID: id, token: token}, nil
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Notify(ctx context.Context, task *a2a.Task) error {
	_, err := d.session.WebhookExecute(d.webhookID, d.token, false, &discordgo.WebhookParams{
		Content: Summary(task),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("notify: discord: %w", err)
	}
	return nil
}

// parseDiscordWebhook splits .../api/webhooks/{id}/{token} into its parts.
func parseDiscordWebhook(raw string) (id, token string, err error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", "", fmt.Errorf("notify: invalid discord webhook url")
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if p == "webhooks" && i+2 < len(parts) && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("notify: discord webhook url has no id and token")
}
