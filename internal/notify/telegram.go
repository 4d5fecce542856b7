package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"fbmonitor/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 2
	telegramQueueSize      = 32
)

// sender is the part of *tgbotapi.BotAPI used for delivery.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// StatusFunc renders a short status report for the /status command.
type StatusFunc func() string

type TelegramConfig struct {
	Token    string
	ChatIDs  []string
	MinLevel domain.ToastLevel
	Status   StatusFunc
	Logger   *slog.Logger
}

// Telegram forwards toasts to the configured chats. Toast never blocks;
// delivery happens in Run.
type Telegram struct {
	token    string
	chatIDs  []int64
	minLevel domain.ToastLevel
	status   StatusFunc
	logger   *slog.Logger

	bot     sender
	queue   chan string
	backoff func(attempt int) time.Duration
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	var ids []int64
	for _, s := range cfg.ChatIDs {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			ids = append(ids, id)
		} else {
			cfg.Logger.Warn("ignoring invalid telegram chat id", "id", s)
		}
	}
	return &Telegram{
		token:    cfg.Token,
		chatIDs:  ids,
		minLevel: cfg.MinLevel,
		status:   cfg.Status,
		logger:   cfg.Logger,
		queue:    make(chan string, telegramQueueSize),
		backoff:  func(attempt int) time.Duration { return time.Duration(attempt+1) * 2 * time.Second },
	}
}

func (t *Telegram) Toast(ctx context.Context, level domain.ToastLevel, text string) {
	if rank(level) < rank(t.minLevel) {
		return
	}
	msg := fmt.Sprintf("[%s] %s", level, text)
	select {
	case t.queue <- msg:
	default:
		t.logger.Warn("telegram queue full, dropping toast", "level", level)
	}
}

// Run connects the bot, then delivers queued toasts and answers /status
// until ctx ends.
func (t *Telegram) Run(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram notifier connected", "username", bot.Self.UserName, "chats", len(t.chatIDs))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)
	defer bot.StopReceivingUpdates()

	return t.loop(ctx, updates)
}

func (t *Telegram) loop(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram notifier stopping")
			return nil
		case msg := <-t.queue:
			for _, id := range t.chatIDs {
				t.send(ctx, id, msg)
			}
		case update, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			t.handleUpdate(ctx, update)
		}
	}
}

// handleUpdate answers commands from the configured chats only.
func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || !msg.IsCommand() || !t.allowed(msg.Chat.ID) {
		return
	}
	switch msg.Command() {
	case "status":
		text := "fbmonitor is running."
		if t.status != nil {
			text = t.status()
		}
		t.send(ctx, msg.Chat.ID, text)
	case "start", "help":
		t.send(ctx, msg.Chat.ID, "fbmonitor notifications. Commands: /status")
	}
}

func (t *Telegram) allowed(chatID int64) bool {
	for _, id := range t.chatIDs {
		if id == chatID {
			return true
		}
	}
	return false
}

func (t *Telegram) send(ctx context.Context, chatID int64, text string) {
	if len(text) > telegramMaxMsgLen {
		text = text[:telegramMaxMsgLen]
	}
	for attempt := 0; attempt <= telegramMaxSendRetries; attempt++ {
		_, err := t.bot.Send(tgbotapi.NewMessage(chatID, text))
		if err == nil {
			return
		}
		if attempt == telegramMaxSendRetries {
			t.logger.Error("telegram send failed after retries", "chat", chatID, "err", err)
			return
		}
		wait := t.backoff(attempt)
		t.logger.Warn("telegram send error, retrying", "err", err, "backoff", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
