// Package locator resolves logical UI regions of the Messenger page to CSS
// selectors by trying ordered fallback lists.
package locator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrInvalidSelector is returned by a Querier when the page rejects a
// selector's syntax.
var ErrInvalidSelector = errors.New("invalid selector")

// ErrWaitTimeout is returned by WaitFor when no selector matched in time.
var ErrWaitTimeout = errors.New("timed out waiting for element")

// Querier answers whether and how often a selector matches in the page.
type Querier interface {
	Query(ctx context.Context, selector string) (bool, error)
	Count(ctx context.Context, selector string) (int, error)
}

// Locator is a named list of selectors tried in order.
type Locator struct {
	Name      string
	Selectors []string
}

// Match is the selector that resolved a locator.
type Match struct {
	Locator  string
	Selector string
	Index    int // position of Selector in the locator's list
	Count    int
}

// Finder runs locators against a Querier.
type Finder struct {
	q      Querier
	logger *slog.Logger
}

func NewFinder(q Querier, logger *slog.Logger) *Finder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{q: q, logger: logger}
}

// Find returns the first selector of loc that matches. Invalid selectors
// are skipped. ok is false when nothing matched.
func (f *Finder) Find(ctx context.Context, loc Locator) (Match, bool) {
	for i, sel := range loc.Selectors {
		found, err := f.q.Query(ctx, sel)
		if err != nil {
			if errors.Is(err, ErrInvalidSelector) {
				f.logger.Debug("skipping invalid selector", "locator", loc.Name, "selector", sel)
				continue
			}
			f.logger.Debug("selector query failed", "locator", loc.Name, "selector", sel, "err", err)
			continue
		}
		if found {
			return Match{Locator: loc.Name, Selector: sel, Index: i, Count: 1}, true
		}
	}
	return Match{Locator: loc.Name}, false
}

// FindAll returns the first selector of loc with a non-zero match count.
func (f *Finder) FindAll(ctx context.Context, loc Locator) (Match, bool) {
	for i, sel := range loc.Selectors {
		n, err := f.q.Count(ctx, sel)
		if err != nil {
			f.logger.Debug("selector count failed", "locator", loc.Name, "selector", sel, "err", err)
			continue
		}
		if n > 0 {
			return Match{Locator: loc.Name, Selector: sel, Index: i, Count: n}, true
		}
	}
	return Match{Locator: loc.Name}, false
}

// PollInterval is how often WaitFor re-queries the page.
const PollInterval = 100 * time.Millisecond

// WaitFor polls until loc resolves, the timeout elapses or ctx ends.
func (f *Finder) WaitFor(ctx context.Context, loc Locator, timeout time.Duration) (Match, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		if m, ok := f.Find(ctx, loc); ok {
			return m, nil
		}
		select {
		case <-ctx.Done():
			return Match{}, ctx.Err()
		case <-deadline.C:
			return Match{}, fmt.Errorf("%s after %s: %w", loc.Name, timeout, ErrWaitTimeout)
		case <-ticker.C:
		}
	}
}
