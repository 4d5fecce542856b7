package notify

import (
	"context"
	"fmt"
	"log/slog"

	"fbmonitor/internal/domain"

	"github.com/bwmarrin/discordgo"
)

const discordMaxMsgLen = 2000

type discordSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type DiscordConfig struct {
	Token     string
	ChannelID string
	MinLevel  domain.ToastLevel
	Logger    *slog.Logger
}

// Discord posts toasts to a channel over the REST API. No gateway
// connection is opened.
type Discord struct {
	*relay
	session   discordSender
	channelID string
}

func NewDiscord(cfg DiscordConfig) (*Discord, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	d := &Discord{session: session, channelID: cfg.ChannelID}
	d.relay = newRelay("discord", cfg.MinLevel, discordMaxMsgLen, d.post, cfg.Logger)
	return d, nil
}

func (d *Discord) post(ctx context.Context, text string) error {
	_, err := d.session.ChannelMessageSend(d.channelID, text, discordgo.WithContext(ctx))
	return err
}
