package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"fbmonitor/internal/domain"
	"fbmonitor/internal/locator"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

const bindingName = "__fbmonitorMutation"

// Observer turns DOM mutations in the Messenger tab into bus events.
type Observer struct {
	tab      *Tab
	bus      domain.EventBus
	table    locator.Table
	debounce time.Duration
	current  func() string
	logger   *slog.Logger

	mu   sync.Mutex
	last map[string]time.Time
}

type ObserverConfig struct {
	Tab      *Tab
	Bus      domain.EventBus
	Table    locator.Table
	Debounce time.Duration // default 1.5s
	// Current reports the open chat id attached to message mutations.
	Current func() string
	Logger  *slog.Logger
}

func NewObserver(cfg ObserverConfig) *Observer {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 1500 * time.Millisecond
	}
	if cfg.Table == nil {
		cfg.Table = locator.DefaultTable()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Current == nil {
		cfg.Current = func() string { return "" }
	}
	return &Observer{
		tab:      cfg.Tab,
		bus:      cfg.Bus,
		table:    cfg.Table,
		debounce: cfg.Debounce,
		current:  cfg.Current,
		logger:   cfg.Logger,
		last:     make(map[string]time.Time),
	}
}

func (o *Observer) script() string {
	return call(jsObserver,
		bindingName,
		o.table.Get(locator.MessageContainer).Selectors,
		o.table.Get(locator.ChatList).Selectors,
		o.debounce.Milliseconds(),
	)
}

// Run installs the binding and the injected observer, then publishes
// mutation events until ctx ends.
func (o *Observer) Run(ctx context.Context) error {
	chromedp.ListenTarget(o.tab.ctx, func(ev any) {
		if e, ok := ev.(*runtime.EventBindingCalled); ok && e.Name == bindingName {
			o.handle(e.Payload)
		}
	})

	src := o.script()
	err := o.tab.run(ctx,
		runtime.AddBinding(bindingName),
		chromedp.ActionFunc(func(ctx context.Context) error {
			// Survives full reloads; SPA navigation keeps the live observer.
			_, err := page.AddScriptToEvaluateOnNewDocument(src).Do(ctx)
			return err
		}),
		chromedp.Evaluate(src, nil),
	)
	if err != nil {
		return fmt.Errorf("install mutation observer: %w", err)
	}
	o.logger.Info("mutation observer installed", "debounce", o.debounce)

	<-ctx.Done()
	return nil
}

// handle publishes one event per payload, dropping repeats of the same
// payload inside the debounce window.
func (o *Observer) handle(payload string) {
	now := time.Now()
	o.mu.Lock()
	if now.Sub(o.last[payload]) < o.debounce {
		o.mu.Unlock()
		return
	}
	o.last[payload] = now
	o.mu.Unlock()

	ev := domain.Event{Kind: domain.EventMutation, Detail: payload, At: now}
	if strings.Contains(payload, domain.MutationMessages) {
		ev.ChatID = o.current()
	}
	o.bus.Publish(ev)
}
