package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fbmonitor/internal/domain"
	"fbmonitor/internal/locator"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// ErrNoElement is returned when an action's target selector matches nothing.
var ErrNoElement = errors.New("element not found")

const defaultActionTimeout = 15 * time.Second

// Tab runs page probes and actions in one chromedp target.
type Tab struct {
	ctx     context.Context
	timeout time.Duration
	logger  *slog.Logger
}

// NewTab wraps a context created by Bridge.NewContext.
func NewTab(chromeCtx context.Context, logger *slog.Logger) *Tab {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tab{ctx: chromeCtx, timeout: defaultActionTimeout, logger: logger}
}

// run executes actions on the tab, bounded by both the caller's ctx and
// the per-action timeout.
func (t *Tab) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(t.ctx, t.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (t *Tab) eval(ctx context.Context, js string, out any) error {
	return t.run(ctx, chromedp.Evaluate(js, out))
}

// act evaluates a probe that returns false when its target is missing.
func (t *Tab) act(ctx context.Context, what, selector, js string) error {
	var ok bool
	if err := t.eval(ctx, js, &ok); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if !ok {
		return fmt.Errorf("%s %q: %w", what, selector, ErrNoElement)
	}
	return nil
}

func (t *Tab) Query(ctx context.Context, selector string) (bool, error) {
	var n int
	if err := t.eval(ctx, call(jsQuery, selector), &n); err != nil {
		return false, err
	}
	if n < 0 {
		return false, fmt.Errorf("%q: %w", selector, locator.ErrInvalidSelector)
	}
	return n > 0, nil
}

func (t *Tab) Count(ctx context.Context, selector string) (int, error) {
	var n int
	if err := t.eval(ctx, call(jsCount, selector), &n); err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%q: %w", selector, locator.ErrInvalidSelector)
	}
	return n, nil
}

func (t *Tab) ChatRows(ctx context.Context, selector string) ([]domain.ChatRow, error) {
	var rows []domain.ChatRow
	if err := t.eval(ctx, call(jsChatRows, selector), &rows); err != nil {
		return nil, fmt.Errorf("read chat rows: %w", err)
	}
	return rows, nil
}

func (t *Tab) MessageRows(ctx context.Context, selector string) ([]domain.MessageRow, error) {
	var rows []domain.MessageRow
	if err := t.eval(ctx, call(jsMessageRows, selector), &rows); err != nil {
		return nil, fmt.Errorf("read message rows: %w", err)
	}
	return rows, nil
}

func (t *Tab) ClickRow(ctx context.Context, selector string, index int) error {
	return t.act(ctx, "click row", selector, call(jsClickRow, selector, index))
}

func (t *Tab) Click(ctx context.Context, selector string) error {
	return t.act(ctx, "click", selector, call(jsClick, selector))
}

func (t *Tab) Navigate(ctx context.Context, url string) error {
	if err := t.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body")); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (t *Tab) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := t.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

func (t *Tab) HTML(ctx context.Context) (string, error) {
	var html string
	if err := t.eval(ctx, call(jsHTML), &html); err != nil {
		return "", fmt.Errorf("read page html: %w", err)
	}
	return html, nil
}

func (t *Tab) Text(ctx context.Context, selector string) (string, error) {
	var text string
	err := t.eval(ctx, call(jsText, selector), &text)
	return text, err
}

// Attr reads an attribute of the first element matching selector.
func (t *Tab) Attr(ctx context.Context, selector, name string) (string, error) {
	var v string
	err := t.eval(ctx, call(jsAttr, selector, name), &v)
	return v, err
}

func (t *Tab) ScrollUp(ctx context.Context, selector string) (bool, error) {
	var moved bool
	err := t.eval(ctx, call(jsScrollUp, selector), &moved)
	return moved, err
}

func (t *Tab) InsertText(ctx context.Context, selector, text string) error {
	return t.act(ctx, "insert text", selector, call(jsInsertText, selector, text))
}

func (t *Tab) InputText(ctx context.Context, selector string) (string, error) {
	var text string
	err := t.eval(ctx, call(jsInputText, selector), &text)
	return text, err
}

func (t *Tab) ClearInput(ctx context.Context, selector string) error {
	return t.act(ctx, "clear input", selector, call(jsClearInput, selector))
}

func (t *Tab) ToggleTrailingSpace(ctx context.Context, selector string) error {
	return t.act(ctx, "toggle space", selector, call(jsToggleSpace, selector))
}

// PressEnter focuses the composer and sends a real Enter key event.
func (t *Tab) PressEnter(ctx context.Context, selector string) error {
	if err := t.act(ctx, "focus", selector, call(jsFocus, selector)); err != nil {
		return err
	}
	return t.run(ctx, chromedp.KeyEvent(kb.Enter))
}

func (t *Tab) ClickSendIcon(ctx context.Context, inputSelector string) (bool, error) {
	var clicked bool
	err := t.eval(ctx, call(jsClickSendIcon, inputSelector), &clicked)
	return clicked, err
}

func (t *Tab) Highlight(ctx context.Context, selector string, on bool) error {
	return t.act(ctx, "highlight", selector, call(jsHighlight, selector, on))
}

func (t *Tab) ShowBanner(ctx context.Context, text string) error {
	return t.act(ctx, "show banner", "body", call(jsShowBanner, text))
}

func (t *Tab) RemoveBanner(ctx context.Context) error {
	return t.eval(ctx, call(jsRemoveBanner), nil)
}

func (t *Tab) ArmManualWatch(ctx context.Context, inputSelector, sendSelector string) error {
	return t.eval(ctx, call(jsArmManualWatch, inputSelector, sendSelector), nil)
}

func (t *Tab) ManualState(ctx context.Context) (domain.ManualState, error) {
	var st domain.ManualState
	err := t.eval(ctx, call(jsManualState), &st)
	return st, err
}
