package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"fbmonitor/internal/domain"
	"fbmonitor/internal/metrics"
)

// Failover tries providers in order and returns the first reply. An empty
// reply counts as a failure.
type Failover struct {
	providers []domain.Provider
	logger    *slog.Logger
}

func NewFailover(providers []domain.Provider, logger *slog.Logger) *Failover {
	if logger == nil {
		logger = slog.Default()
	}
	return &Failover{providers: providers, logger: logger}
}

func (f *Failover) Name() string {
	names := make([]string, len(f.providers))
	for i, p := range f.providers {
		names[i] = p.Name()
	}
	return "failover(" + strings.Join(names, "→") + ")"
}

func (f *Failover) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	var lastErr error
	for i, p := range f.providers {
		resp, err := p.Complete(ctx, req)
		if err == nil && strings.TrimSpace(resp.Content) == "" {
			err = fmt.Errorf("%s returned an empty reply", p.Name())
		}
		if err == nil {
			if i > 0 {
				f.logger.Info("failover: used fallback provider", "provider", p.Name(), "attempt", i+1)
			}
			if resp.Provider == "" {
				resp.Provider = p.Name()
			}
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		metrics.AIFailures.Inc()
		f.logger.Warn("failover: provider failed, trying next", "provider", p.Name(), "attempt", i+1, "err", err)
	}
	if lastErr == nil {
		return nil, fmt.Errorf("failover: no providers configured")
	}
	return nil, fmt.Errorf("all providers in failover chain failed: %w", lastErr)
}
