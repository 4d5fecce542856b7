package domain

import "context"

type ToastLevel string

const (
	ToastInfo    ToastLevel = "info"
	ToastSuccess ToastLevel = "success"
	ToastWarning ToastLevel = "warning"
	ToastError   ToastLevel = "error"
)

// Notifier surfaces short, transient operator messages.
type Notifier interface {
	Toast(ctx context.Context, level ToastLevel, text string)
}
