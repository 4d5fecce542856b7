package notify

import (
	"context"
	"log/slog"

	"fbmonitor/internal/domain"

	"github.com/slack-go/slack"
)

const slackMaxMsgLen = 4000

type slackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

type SlackConfig struct {
	Token    string // bot token (xoxb-...)
	Channel  string // channel id or name
	MinLevel domain.ToastLevel
	Logger   *slog.Logger
}

// Slack posts toasts to one channel with a bot token.
type Slack struct {
	*relay
	client  slackPoster
	channel string
}

func NewSlack(cfg SlackConfig) *Slack {
	s := &Slack{client: slack.New(cfg.Token), channel: cfg.Channel}
	s.relay = newRelay("slack", cfg.MinLevel, slackMaxMsgLen, s.post, cfg.Logger)
	return s
}

func (s *Slack) post(ctx context.Context, text string) error {
	_, _, err := s.client.PostMessageContext(ctx, s.channel, slack.MsgOptionText(text, false))
	return err
}
