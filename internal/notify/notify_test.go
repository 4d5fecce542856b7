package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"fbmonitor/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type recorder struct {
	texts []string
}

func (r *recorder) Toast(ctx context.Context, level domain.ToastLevel, text string) {
	r.texts = append(r.texts, string(level)+":"+text)
}

func TestLogNotifierLevels(t *testing.T) {
	var buf bytes.Buffer
	n := NewLog(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})))

	n.Toast(context.Background(), domain.ToastInfo, "quiet")
	n.Toast(context.Background(), domain.ToastError, "loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Error("info toast logged below warn level")
	}
	if !strings.Contains(out, "loud") || !strings.Contains(out, "level=ERROR") {
		t.Errorf("error toast missing: %s", out)
	}
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Multi{a, nil, b}.Toast(context.Background(), domain.ToastSuccess, "sent")
	if len(a.texts) != 1 || len(b.texts) != 1 || a.texts[0] != "success:sent" {
		t.Errorf("a=%v b=%v", a.texts, b.texts)
	}
}

type fakeBot struct {
	mu    sync.Mutex
	fails int
	sent  []tgbotapi.MessageConfig
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return tgbotapi.Message{}, errors.New("Bad Gateway")
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestTelegram(bot *fakeBot, status StatusFunc) *Telegram {
	tg := NewTelegram(TelegramConfig{
		ChatIDs:  []string{"42", "oops"},
		MinLevel: domain.ToastWarning,
		Status:   status,
		Logger:   slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
	})
	tg.bot = bot
	tg.backoff = func(int) time.Duration { return time.Millisecond }
	return tg
}

func TestTelegramFiltersAndDelivers(t *testing.T) {
	bot := &fakeBot{fails: 1}
	tg := newTestTelegram(bot, nil)

	tg.Toast(context.Background(), domain.ToastInfo, "ignored")
	tg.Toast(context.Background(), domain.ToastError, "Reply failed")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tg.loop(ctx, nil) }()

	deadline := time.Now().Add(time.Second)
	for bot.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if bot.count() != 1 {
		t.Fatalf("sent = %d, want 1 after a retry", bot.count())
	}
	got := bot.sent[0]
	if got.ChatID != 42 || got.Text != "[error] Reply failed" {
		t.Errorf("sent %d %q", got.ChatID, got.Text)
	}
}

func TestTelegramStatusCommand(t *testing.T) {
	bot := &fakeBot{}
	tg := newTestTelegram(bot, func() string { return "3 pending" })

	cmd := func(chatID int64) tgbotapi.Update {
		return tgbotapi.Update{Message: &tgbotapi.Message{
			Text:     "/status",
			Chat:     &tgbotapi.Chat{ID: chatID},
			Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 7}},
		}}
	}
	tg.handleUpdate(context.Background(), cmd(7))
	if bot.count() != 0 {
		t.Fatal("answered a chat that is not configured")
	}
	tg.handleUpdate(context.Background(), cmd(42))
	if bot.count() != 1 || bot.sent[0].Text != "3 pending" {
		t.Errorf("sent = %+v", bot.sent)
	}
}
