package response

import (
	"context"
	"log/slog"
	"time"
)

// TypingConfig shapes the simulated typing delay before an auto reply.
type TypingConfig struct {
	MinDelay time.Duration
	MaxDelay time.Duration // 0 means no cap
	PerChar  time.Duration
}

// CalculateTypingTime is MinDelay plus PerChar for every character,
// capped at MaxDelay but never below MinDelay.
func CalculateTypingTime(chars int, cfg TypingConfig) time.Duration {
	if chars < 0 {
		chars = 0
	}
	d := cfg.MinDelay + time.Duration(chars)*cfg.PerChar
	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		d = max(cfg.MaxDelay, cfg.MinDelay)
	}
	return d
}

// indicatorPage is what keeps Messenger's "typing..." bubble alive.
type indicatorPage interface {
	ToggleTrailingSpace(ctx context.Context, selector string) error
}

// startTypingIndicator toggles a trailing space in the composer every
// interval until the returned stop func is called.
func startTypingIndicator(ctx context.Context, page indicatorPage, selector string, interval time.Duration, logger *slog.Logger) (stop func()) {
	if interval <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := page.ToggleTrailingSpace(ctx, selector); err != nil {
					logger.Debug("typing indicator toggle failed", "err", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
