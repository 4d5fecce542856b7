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

	"github.com/bwmarrin/discordgo"
	"github.com/slack-go/slack"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestSplitMessage(t *testing.T) {
	if got := splitMessage("short", 10); len(got) != 1 || got[0] != "short" {
		t.Errorf("short message split: %q", got)
	}
	long := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	got := splitMessage(long, 10)
	if len(got) != 2 || got[0] != strings.Repeat("a", 8)+"\n" {
		t.Errorf("split at newline: %q", got)
	}
	if strings.Join(got, "") != long {
		t.Error("chunks do not reassemble the message")
	}
	hard := splitMessage(strings.Repeat("x", 25), 10)
	if len(hard) != 3 || len(hard[2]) != 5 {
		t.Errorf("hard split: %q", hard)
	}
}

type deliveries struct {
	mu    sync.Mutex
	texts []string
	fails int
}

func (d *deliveries) deliver(ctx context.Context, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fails > 0 {
		d.fails--
		return errors.New("502 bad gateway")
	}
	d.texts = append(d.texts, text)
	return nil
}

func (d *deliveries) snapshot() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.texts...)
}

// runUntil runs r until want messages arrived or a second passed.
func runUntil(t *testing.T, r *relay, d *deliveries, want int) []string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for len(d.snapshot()) < want && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	return d.snapshot()
}

func TestRelayFiltersRetriesAndChunks(t *testing.T) {
	d := &deliveries{fails: 1}
	r := newRelay("test", domain.ToastWarning, 12, d.deliver, quietLogger())
	r.backoff = func(int) time.Duration { return time.Millisecond }

	r.Toast(context.Background(), domain.ToastSuccess, "skipped")
	r.Toast(context.Background(), domain.ToastError, "disk full now")

	got := runUntil(t, r, d, 2)
	if strings.Join(got, "") != "[error] disk full now" {
		t.Errorf("delivered %q", got)
	}
	if len(got) != 2 {
		t.Errorf("chunks = %d, want 2", len(got))
	}
}

func TestRelayQueueFullDrops(t *testing.T) {
	r := newRelay("test", domain.ToastInfo, 100, func(context.Context, string) error { return nil }, quietLogger())
	for i := 0; i < relayQueueSize+5; i++ {
		r.Toast(context.Background(), domain.ToastInfo, "x")
	}
	if len(r.queue) != relayQueueSize {
		t.Errorf("queue = %d, want %d", len(r.queue), relayQueueSize)
	}
}

type fakeSlack struct {
	mu       sync.Mutex
	channels []string
}

func (f *fakeSlack) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channelID)
	return channelID, "1700000000.000100", nil
}

func TestSlackPostsToChannel(t *testing.T) {
	fake := &fakeSlack{}
	s := NewSlack(SlackConfig{Token: "xoxb-test", Channel: "C123", MinLevel: domain.ToastInfo, Logger: quietLogger()})
	s.client = fake

	if err := s.post(context.Background(), "hello"); err != nil {
		t.Fatalf("post: %v", err)
	}
	if len(fake.channels) != 1 || fake.channels[0] != "C123" {
		t.Errorf("posted to %v", fake.channels)
	}
}

type fakeDiscord struct {
	mu   sync.Mutex
	sent map[string][]string
}

func (f *fakeDiscord) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = make(map[string][]string)
	}
	f.sent[channelID] = append(f.sent[channelID], content)
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func TestDiscordDeliversThroughRelay(t *testing.T) {
	d, err := NewDiscord(DiscordConfig{Token: "test", ChannelID: "99", MinLevel: domain.ToastWarning, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewDiscord: %v", err)
	}
	fake := &fakeDiscord{}
	d.session = fake

	d.Toast(context.Background(), domain.ToastWarning, "Manual reply timed out")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		fake.mu.Lock()
		n := len(fake.sent["99"])
		fake.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if got := fake.sent["99"]; len(got) != 1 || got[0] != "[warning] Manual reply timed out" {
		t.Errorf("sent = %v", fake.sent)
	}
}
