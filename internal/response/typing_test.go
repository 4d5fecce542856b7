package response

import (
	"context"
	"strings"
	"testing"
	"time"

	"fbmonitor/internal/domain"
	"fbmonitor/internal/provider"
)

func TestCalculateTypingTime(t *testing.T) {
	cfg := TypingConfig{MinDelay: time.Second, MaxDelay: 4 * time.Second, PerChar: 50 * time.Millisecond}
	tests := []struct {
		chars int
		want  time.Duration
	}{
		{0, time.Second},
		{-5, time.Second},
		{10, 1500 * time.Millisecond},
		{60, 4 * time.Second},
		{1000, 4 * time.Second},
	}
	for _, tt := range tests {
		if got := CalculateTypingTime(tt.chars, cfg); got != tt.want {
			t.Errorf("CalculateTypingTime(%d) = %v, want %v", tt.chars, got, tt.want)
		}
	}
}

func TestCalculateTypingTime_Monotonic(t *testing.T) {
	configs := []TypingConfig{
		{MinDelay: time.Second, MaxDelay: 3 * time.Second, PerChar: 30 * time.Millisecond},
		{MinDelay: 2 * time.Second, MaxDelay: time.Second, PerChar: 30 * time.Millisecond},
		{MinDelay: 0, PerChar: time.Millisecond},
	}
	for _, cfg := range configs {
		prev := CalculateTypingTime(0, cfg)
		for n := 1; n < 500; n++ {
			d := CalculateTypingTime(n, cfg)
			if d < prev {
				t.Fatalf("%+v: not monotonic at %d: %v < %v", cfg, n, d, prev)
			}
			if d < cfg.MinDelay {
				t.Fatalf("%+v: %v below min at %d", cfg, d, n)
			}
			prev = d
		}
	}
}

func TestTypingIndicatorToggles(t *testing.T) {
	page := newFakePage()
	stop := startTypingIndicator(context.Background(), page, "x", 2*time.Millisecond, testLogger())
	time.Sleep(30 * time.Millisecond)
	stop()

	page.mu.Lock()
	n := page.toggles
	page.mu.Unlock()
	if n == 0 {
		t.Fatal("indicator never toggled")
	}
	time.Sleep(10 * time.Millisecond)
	page.mu.Lock()
	defer page.mu.Unlock()
	if page.toggles != n {
		t.Error("indicator kept running after stop")
	}
}

func TestBuildRequest(t *testing.T) {
	g := NewGenerator(GeneratorConfig{Provider: &stubProvider{}, HistoryLimit: 2})
	rec := domain.ChatRecord{
		UserName: "Bob",
		Product:  &domain.ProductInfo{Title: "Desk", Price: "$40"},
		History: []domain.Message{
			{Content: "hello", Sender: "Bob"},
			{Content: "hi Bob", Sender: "You", IsSentByYou: true},
			{Content: "price?", Sender: "Bob"},
		},
	}
	req := g.BuildRequest(rec)
	if len(req.Messages) != 3 {
		t.Fatalf("messages = %d, want system + 2", len(req.Messages))
	}
	sys := req.Messages[0]
	if sys.Role != domain.RoleSystem || !strings.Contains(sys.Content, provider.ProductHintPrefix+"Desk") {
		t.Errorf("system prompt = %q", sys.Content)
	}
	if !strings.HasPrefix(sys.Content, DefaultPrompts().Seller) {
		t.Error("expected seller prompt when the other side opened the chat")
	}
	if req.Messages[1].Role != domain.RoleAssistant || req.Messages[2].Role != domain.RoleUser {
		t.Errorf("roles = %s, %s", req.Messages[1].Role, req.Messages[2].Role)
	}
	if req.LastUserText() != "price?" {
		t.Errorf("LastUserText = %q", req.LastUserText())
	}
}

func TestBuildRequest_BuyerWhenWeOpened(t *testing.T) {
	g := NewGenerator(GeneratorConfig{Provider: &stubProvider{}})
	rec := domain.ChatRecord{History: []domain.Message{{Content: "Is it available?", Sender: "You", IsSentByYou: true}}}
	if !strings.HasPrefix(g.BuildRequest(rec).Messages[0].Content, DefaultPrompts().Buyer) {
		t.Error("expected buyer prompt")
	}
}

func TestReply_KeepsCompletionVerbatim(t *testing.T) {
	raw := "  Yes, still available.\n\nPickup only.\n"
	g := NewGenerator(GeneratorConfig{Provider: &stubProvider{reply: raw}})
	d, err := g.Reply(context.Background(), domain.ChatRecord{History: []domain.Message{{Content: "hi", Sender: "Bob"}}})
	if err != nil {
		t.Fatal(err)
	}
	if d.Text != raw || d.Source != "stub" {
		t.Errorf("draft = %q from %s, want the completion unchanged", d.Text, d.Source)
	}
}
