package response

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"

	"fbmonitor/internal/domain"
	"fbmonitor/internal/locator"
)

type fakePage struct {
	mu        sync.Mutex
	selectors map[string]bool
	input     string

	// send behaviour: which methods actually empty the composer
	buttonSends bool
	iconFound   bool
	iconSends   bool
	enterSends  bool
	// buttonClearsAfter delays the button's clear by that many composer reads.
	buttonClearsAfter int
	clearIn           int

	manual domain.ManualState

	calls       []string
	highlighted bool
	banner      string
	toggles     int
}

func newFakePage() *fakePage {
	table := locator.DefaultTable()
	return &fakePage{selectors: map[string]bool{
		table.Get(locator.InputBox).Selectors[0]: true,
	}}
}

func (p *fakePage) record(call string) {
	p.calls = append(p.calls, call)
}

func (p *fakePage) called(call string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.calls {
		if c == call {
			return true
		}
	}
	return false
}

func (p *fakePage) Query(ctx context.Context, sel string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selectors[sel], nil
}

func (p *fakePage) Count(ctx context.Context, sel string) (int, error) {
	if ok, _ := p.Query(ctx, sel); ok {
		return 1, nil
	}
	return 0, nil
}

func (p *fakePage) InsertText(ctx context.Context, sel, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("insert")
	p.input += text
	return nil
}

func (p *fakePage) InputText(ctx context.Context, sel string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clearIn > 0 {
		p.clearIn--
		if p.clearIn == 0 {
			p.input = ""
		}
	}
	return p.input, nil
}

func (p *fakePage) ClearInput(ctx context.Context, sel string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("clear")
	p.input = ""
	return nil
}

func (p *fakePage) ToggleTrailingSpace(ctx context.Context, sel string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toggles++
	if len(p.input) > 0 && p.input[len(p.input)-1] == ' ' {
		p.input = p.input[:len(p.input)-1]
	} else {
		p.input += " "
	}
	return nil
}

func (p *fakePage) PressEnter(ctx context.Context, sel string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("enter")
	if p.enterSends {
		p.input = ""
	}
	return nil
}

func (p *fakePage) Click(ctx context.Context, sel string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("button")
	if p.buttonSends {
		p.input = ""
	}
	if p.buttonClearsAfter > 0 {
		p.clearIn = p.buttonClearsAfter
	}
	return nil
}

func (p *fakePage) ClickSendIcon(ctx context.Context, sel string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("icon")
	if !p.iconFound {
		return false, nil
	}
	if p.iconSends {
		p.input = ""
	}
	return true, nil
}

func (p *fakePage) Highlight(ctx context.Context, sel string, on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.highlighted = on
	return nil
}

func (p *fakePage) ShowBanner(ctx context.Context, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.banner = text
	return nil
}

func (p *fakePage) RemoveBanner(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.banner = ""
	return nil
}

func (p *fakePage) ArmManualWatch(ctx context.Context, input, send string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("arm")
	return nil
}

func (p *fakePage) ManualState(ctx context.Context) (domain.ManualState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.manual, nil
}

type fakeChats struct {
	recs      map[string]domain.ChatRecord
	processed int
	onProcess func(*fakeChats)
}

func (c *fakeChats) Get(id string) (domain.ChatRecord, bool) {
	rec, ok := c.recs[id]
	return rec, ok
}

func (c *fakeChats) ProcessCurrentChatMessages(ctx context.Context) ([]domain.Message, error) {
	c.processed++
	if c.onProcess != nil {
		c.onProcess(c)
	}
	return nil, nil
}

type stubProvider struct {
	reply string
	err   error
	last  domain.CompletionRequest
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Completion{Content: s.reply, Provider: "stub"}, nil
}

var errProvider = errors.New("provider down")

type recordingNotifier struct {
	mu     sync.Mutex
	levels []domain.ToastLevel
}

func (n *recordingNotifier) Toast(ctx context.Context, level domain.ToastLevel, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.levels = append(n.levels, level)
}

type captureBus struct {
	events []domain.Event
}

func (b *captureBus) Publish(ev domain.Event)          { b.events = append(b.events, ev) }
func (b *captureBus) Subscribe() <-chan domain.Event { return nil }
func (b *captureBus) Close()                         {}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}
