package provider

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"fbmonitor/internal/domain"
)

type mockProvider struct {
	name  string
	err   error
	reply string
	calls int
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &domain.Completion{Content: m.reply}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestFailover_UsesFirstProvider(t *testing.T) {
	p1 := &mockProvider{name: "primary", reply: "from-primary"}
	p2 := &mockProvider{name: "secondary", reply: "from-secondary"}
	f := NewFailover([]domain.Provider{p1, p2}, testLogger())

	resp, err := f.Complete(context.Background(), domain.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "from-primary" || resp.Provider != "primary" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if p2.calls != 0 {
		t.Fatal("secondary should not be called")
	}
}

func TestFailover_FallsBackOnErrorAndEmptyReply(t *testing.T) {
	p1 := &mockProvider{name: "openai", err: errors.New("api error")}
	p2 := &mockProvider{name: "blank", reply: "   "}
	p3 := &mockProvider{name: "canned", reply: "Thanks!"}
	f := NewFailover([]domain.Provider{p1, p2, p3}, testLogger())

	resp, err := f.Complete(context.Background(), domain.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Thanks!" || resp.Provider != "canned" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestFailover_AllFail(t *testing.T) {
	f := NewFailover([]domain.Provider{
		&mockProvider{name: "a", err: errors.New("a")},
		&mockProvider{name: "b", err: errors.New("b")},
	}, testLogger())
	if _, err := f.Complete(context.Background(), domain.CompletionRequest{}); err == nil {
		t.Fatal("expected error when all providers fail")
	}
}

func TestFailover_Empty(t *testing.T) {
	if _, err := NewFailover(nil, testLogger()).Complete(context.Background(), domain.CompletionRequest{}); err == nil {
		t.Fatal("expected error with no providers")
	}
}

func TestFailover_Name(t *testing.T) {
	f := NewFailover([]domain.Provider{&mockProvider{name: "openai"}, &mockProvider{name: "canned"}}, testLogger())
	if got := f.Name(); got != "failover(openai→canned)" {
		t.Fatalf("unexpected name %q", got)
	}
}

func TestLimited_PassesThrough(t *testing.T) {
	inner := &mockProvider{name: "openai", reply: "ok"}
	l := NewLimited(inner, NewRateLimiter(1, 60))
	resp, err := l.Complete(context.Background(), domain.CompletionRequest{})
	if err != nil || resp.Content != "ok" {
		t.Fatalf("unexpected %+v %v", resp, err)
	}
	if l.Name() != "openai" {
		t.Fatalf("wrapper should keep inner name, got %q", l.Name())
	}
}
