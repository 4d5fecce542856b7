package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fbmonitor/internal/domain"
)

const (
	relayQueueSize  = 32
	relayMaxRetries = 2
)

// relay queues toasts for a chat service and delivers them from Run, so
// Toast never blocks the reply path.
type relay struct {
	name     string
	minLevel domain.ToastLevel
	maxLen   int
	queue    chan string
	deliver  func(ctx context.Context, text string) error
	backoff  func(attempt int) time.Duration
	logger   *slog.Logger
}

func newRelay(name string, minLevel domain.ToastLevel, maxLen int, deliver func(context.Context, string) error, logger *slog.Logger) *relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &relay{
		name:     name,
		minLevel: minLevel,
		maxLen:   maxLen,
		queue:    make(chan string, relayQueueSize),
		deliver:  deliver,
		backoff:  func(attempt int) time.Duration { return time.Duration(attempt+1) * 2 * time.Second },
		logger:   logger,
	}
}

func (r *relay) Toast(ctx context.Context, level domain.ToastLevel, text string) {
	if rank(level) < rank(r.minLevel) {
		return
	}
	select {
	case r.queue <- fmt.Sprintf("[%s] %s", level, text):
	default:
		r.logger.Warn("notifier queue full, dropping toast", "notifier", r.name, "level", level)
	}
}

// Run delivers queued toasts until ctx ends.
func (r *relay) Run(ctx context.Context) error {
	r.logger.Info("notifier started", "notifier", r.name)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("notifier stopping", "notifier", r.name)
			return nil
		case msg := <-r.queue:
			for _, chunk := range splitMessage(msg, r.maxLen) {
				r.send(ctx, chunk)
			}
		}
	}
}

func (r *relay) send(ctx context.Context, text string) {
	for attempt := 0; attempt <= relayMaxRetries; attempt++ {
		err := r.deliver(ctx, text)
		if err == nil {
			return
		}
		if attempt == relayMaxRetries {
			r.logger.Error("notifier send failed after retries", "notifier", r.name, "err", err)
			return
		}
		wait := r.backoff(attempt)
		r.logger.Warn("notifier send error, retrying", "notifier", r.name, "err", err, "backoff", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// splitMessage cuts msg into chunks of at most maxLen bytes, preferring
// line breaks in the second half of a chunk.
func splitMessage(msg string, maxLen int) []string {
	if maxLen <= 0 || len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}
		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}
		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}
