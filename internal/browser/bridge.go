// Package browser drives the Messenger tab through the Chrome DevTools
// protocol.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Bridge owns the Chrome profile that keeps the Facebook session.
type Bridge struct {
	profileDir string
	headless   bool
	execPath   string
	logger     *slog.Logger
}

type BridgeConfig struct {
	ProfileDir string // Chrome user data directory (persists cookies/sessions)
	Headless   bool
	ExecPath   string // optional Chrome binary
	Logger     *slog.Logger
}

func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.ProfileDir == "" {
		cfg.ProfileDir = DefaultProfileDir()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Bridge{
		profileDir: cfg.ProfileDir,
		headless:   cfg.Headless,
		execPath:   cfg.ExecPath,
		logger:     cfg.Logger,
	}
}

func DefaultProfileDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".fbmonitor", "chrome-profile")
}

func (b *Bridge) ProfileDir() string { return b.profileDir }

func (b *Bridge) allocatorOptions(headless bool) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(b.profileDir),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(1280, 900),
	)
	if b.execPath != "" {
		opts = append(opts, chromedp.ExecPath(b.execPath))
	}
	if headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	return opts
}

// NewContext creates a chromedp context on the bridge's profile.
// The caller MUST call cancel() when done.
func (b *Bridge) NewContext(parentCtx context.Context) (context.Context, context.CancelFunc) {
	if err := os.MkdirAll(b.profileDir, 0o755); err != nil {
		b.logger.Error("failed to create profile dir", "dir", b.profileDir, "err", err)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, b.allocatorOptions(b.headless)...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		b.logger.Debug(fmt.Sprintf(format, args...), "component", "chromedp")
	}))

	return taskCtx, func() {
		taskCancel()
		allocCancel()
	}
}

// Open starts Chrome, loads url and returns the tab.
func (b *Bridge) Open(ctx context.Context, url string) (*Tab, context.CancelFunc, error) {
	taskCtx, cancel := b.NewContext(ctx)
	tab := NewTab(taskCtx, b.logger)

	loadCtx, loadCancel := context.WithTimeout(taskCtx, 60*time.Second)
	defer loadCancel()
	if err := chromedp.Run(loadCtx, chromedp.Navigate(url), chromedp.WaitReady("body")); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("open %s: %w", url, err)
	}
	b.logger.Info("browser tab ready", "url", url, "headless", b.headless)
	return tab, cancel, nil
}

// Login opens a visible browser for the operator to log in to Facebook.
// Cookies land in the profile directory; it returns when ctx ends.
func (b *Bridge) Login(ctx context.Context, url string) error {
	b.logger.Info("opening browser for login", "url", url)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, b.allocatorOptions(false)...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	if err := chromedp.Run(taskCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to login page: %w", err)
	}

	b.logger.Info("browser opened. Please log in manually. Press Ctrl+C when done.")
	<-ctx.Done()

	b.logger.Info("login session saved", "profile", b.profileDir)
	return nil
}
