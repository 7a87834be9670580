package notify

import (
	"context"
	"fmt"

	"github.com/igorsilveira/tokenlens/pkg/a2a"
	slackapi "github.com/slack-go/slack"
)

// Slack posts the task summary to a channel using a bot token.
type Slack struct {
	client  *slackapi.Client
	channel string
}

// NewSlack creates a Slack notifier. apiURL overrides the Slack Web API
// base and may be empty.
func NewSlack(token, channel, apiURL string) *Slack {
	var opts []slackapi.Option
	if apiURL != "" {
		opts = append(opts, slackapi.OptionAPIURL(apiURL))
	}
	return &Slack{
		client:  slackapi.New(token, opts...),
		channel: channel,
	}
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Notify(ctx context.Context, task *a2a.Task) error {
	_, _, err := s.client.PostMessageContext(ctx, s.channel, slackapi.MsgOptionText(Summary(task), false))
	if err != nil {
		return fmt.Errorf("notify: slack: %w", err)
	}
	return nil
}
