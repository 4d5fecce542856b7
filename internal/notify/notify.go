// Package notify delivers operator toasts to the log and, optionally, to
// Telegram, Slack or Discord.
package notify

import (
	"context"
	"log/slog"

	"fbmonitor/internal/domain"
)

// Log writes toasts to the structured logger.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Toast(ctx context.Context, level domain.ToastLevel, text string) {
	l.logger.Log(ctx, slogLevel(level), text, "toast", string(level))
}

func slogLevel(level domain.ToastLevel) slog.Level {
	switch level {
	case domain.ToastError:
		return slog.LevelError
	case domain.ToastWarning:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// Multi fans a toast out to every notifier.
type Multi []domain.Notifier

func (m Multi) Toast(ctx context.Context, level domain.ToastLevel, text string) {
	for _, n := range m {
		if n != nil {
			n.Toast(ctx, level, text)
		}
	}
}

// rank orders levels for MinLevel filtering.
func rank(level domain.ToastLevel) int {
	switch level {
	case domain.ToastSuccess:
		return 1
	case domain.ToastWarning:
		return 2
	case domain.ToastError:
		return 3
	}
	return 0
}
