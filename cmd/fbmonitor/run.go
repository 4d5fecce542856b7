package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fbmonitor/internal/browser"
	"fbmonitor/internal/bus"
	"fbmonitor/internal/chat"
	"fbmonitor/internal/config"
	"fbmonitor/internal/domain"
	"fbmonitor/internal/locator"
	"fbmonitor/internal/metrics"
	"fbmonitor/internal/monitor"
	"fbmonitor/internal/notify"
	"fbmonitor/internal/product"
	"fbmonitor/internal/provider"
	"fbmonitor/internal/response"
	"fbmonitor/internal/status"
	"fbmonitor/internal/store"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func runCmd() *cobra.Command {
	var mode string
	var headless bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the monitor (browser, reply loop, status server)",
		Long:  "Opens the monitored page, scans for unread chats and replies according to the configured mode. Press Ctrl+C to stop.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if mode != "" {
				cfg.General.Mode = mode
			}
			if cmd.Flags().Changed("headless") {
				cfg.Browser.Headless = headless
			}
			return runMonitor(cfg)
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "override general.mode (off, auto, manual, generate)")
	cmd.Flags().BoolVar(&headless, "headless", false, "run Chrome headless")
	return cmd
}

func runMonitor(cfg *config.Config) error {
	mode, err := domain.ParseMode(cfg.General.Mode)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	table, err := locator.LoadOverrides(cfg.Browser.SelectorsFile, locator.DefaultTable(), logger)
	if err != nil {
		return err
	}

	// Storage is optional; interfaces stay nil when it is off.
	var (
		db       *store.SQLiteStore
		chatDB   domain.ChatStore
		products product.ProductStore
		history  status.History
	)
	if cfg.Memory.Enabled {
		db, err = store.Open(cfg.Memory.DBPath, logger)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer db.Close()
		chatDB, products, history = db, db, db
	}

	eventBus := bus.New(64, logger)
	defer eventBus.Close()

	bridge := browser.NewBridge(browser.BridgeConfig{
		ProfileDir: cfg.Browser.ProfileDir,
		Headless:   cfg.Browser.Headless,
		ExecPath:   cfg.Browser.ExecPath,
		Logger:     logger,
	})
	tab, closeTab, err := bridge.Open(ctx, cfg.Browser.StartURL)
	if err != nil {
		return err
	}
	defer closeTab()

	cache := product.NewCache(products, logger)
	chats := chat.NewManager(chat.Config{
		Page:                 tab,
		Table:                table,
		Store:                chatDB,
		Products:             product.NewService(product.NewExtractor(cfg.Product.PayloadKeys, logger), cache),
		Logger:               logger,
		BaseURL:              baseURL(cfg.Browser.StartURL),
		SortByRecency:        cfg.General.SortByRecency,
		FilterSystemMessages: cfg.General.FilterSystemMessages,
		HistoryScrolls:       cfg.General.HistoryScrolls,
	})
	if chatDB != nil {
		if err := chats.Restore(ctx); err != nil {
			logger.Warn("cannot restore chats", "err", err)
		}
	}

	var tg *notify.Telegram
	notifier := notify.Multi{notify.NewLog(logger)}

	var mon *monitor.Monitor
	if t := cfg.Notify.Telegram; t.Enabled {
		tg = notify.NewTelegram(notify.TelegramConfig{
			Token:    t.Token,
			ChatIDs:  t.ChatIDs,
			MinLevel: domain.ToastLevel(t.MinLevel),
			Status:   func() string { return statusLine(mon.Status(), chats) },
			Logger:   logger,
		})
		notifier = append(notifier, tg)
	}

	// Slack and Discord only push toasts.
	var relays []interface{ Run(context.Context) error }
	if sl := cfg.Notify.Slack; sl.Enabled {
		s := notify.NewSlack(notify.SlackConfig{
			Token:    sl.Token,
			Channel:  sl.Channel,
			MinLevel: domain.ToastLevel(sl.MinLevel),
			Logger:   logger,
		})
		notifier = append(notifier, s)
		relays = append(relays, s)
	}
	if dc := cfg.Notify.Discord; dc.Enabled {
		d, err := notify.NewDiscord(notify.DiscordConfig{
			Token:     dc.Token,
			ChannelID: dc.ChannelID,
			MinLevel:  domain.ToastLevel(dc.MinLevel),
			Logger:    logger,
		})
		if err != nil {
			return err
		}
		notifier = append(notifier, d)
		relays = append(relays, d)
	}

	responder := response.NewManager(response.Config{
		Page:      tab,
		Chats:     chats,
		Generator: newGenerator(cfg),
		Table:     table,
		Notifier:  notifier,
		Bus:       eventBus,
		Logger:    logger,
		Typing: response.TypingConfig{
			MinDelay: ms(cfg.Response.MinTypingDelayMs),
			MaxDelay: ms(cfg.Response.MaxTypingDelayMs),
			PerChar:  ms(cfg.Response.TypingMsPerChar),
		},
		ManualTimeout:     time.Duration(cfg.Response.ManualModeTimeoutSeconds) * time.Second,
		IndicatorInterval: indicatorInterval(cfg.Response.TypingIndicatorIntervalMs),
	})

	mon = monitor.New(monitor.Config{
		Chats:       chats,
		Responder:   responder,
		Bus:         eventBus,
		Mode:        mode,
		Logger:      logger,
		Interval:    time.Duration(cfg.General.ScanIntervalSeconds) * time.Second,
		RetryDelay:  time.Duration(cfg.General.RetryDelaySeconds) * time.Second,
		MaxPerCycle: cfg.General.MaxChatsPerCycle,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return mon.Run(gctx) })

	if cfg.Browser.ObserveMutations {
		obs := browser.NewObserver(browser.ObserverConfig{
			Tab:      tab,
			Bus:      eventBus,
			Table:    table,
			Debounce: ms(cfg.Browser.DebounceMs),
			Current:  chats.CurrentChatID,
			Logger:   logger,
		})
		g.Go(func() error {
			// Polling still works without the observer.
			if err := obs.Run(gctx); err != nil && gctx.Err() == nil {
				logger.Warn("mutation observer stopped, falling back to the timer", "err", err)
			}
			return nil
		})
	}

	if products != nil {
		g.Go(func() error {
			return cache.Run(gctx, time.Duration(cfg.Product.FlushIntervalSeconds)*time.Second)
		})
	}

	if tg != nil {
		g.Go(func() error {
			if err := tg.Run(gctx); err != nil && gctx.Err() == nil {
				logger.Error("telegram notifier stopped", "err", err)
			}
			return nil
		})
	}

	for _, r := range relays {
		g.Go(func() error { return r.Run(gctx) })
	}

	if cfg.Status.Enabled {
		srv := status.New(status.Config{
			Host:    cfg.Status.Host,
			Port:    cfg.Status.Port,
			Chats:   chats,
			Monitor: mon,
			Events:  eventBus,
			History: history,
			Stream:  eventBus,
			Metrics: metrics.Default,
			Logger:  logger,
		})
		g.Go(func() error { return srv.Run(gctx) })
	}

	logger.Info("fbmonitor started. Press Ctrl+C to stop.", "mode", mode, "version", version)
	notifier.Toast(ctx, domain.ToastInfo, fmt.Sprintf("fbmonitor started in %s mode", mode))

	err = g.Wait()
	if err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// newGenerator builds the provider chain: the OpenAI-compatible API behind
// a rate limiter, then canned keyword replies.
func newGenerator(cfg *config.Config) *response.Generator {
	var chain []domain.Provider
	o := cfg.Providers.OpenAI
	switch {
	case !o.Enabled:
		logger.Info("openai provider disabled, using canned replies")
	case o.Key() == "":
		logger.Warn("openai provider enabled but no API key set, using canned replies")
	default:
		ai := provider.NewOpenAI(provider.OpenAIConfig{
			APIKey:      o.Key(),
			APIBase:     o.APIBase,
			Model:       o.Model,
			MaxTokens:   o.MaxTokens,
			Temperature: o.Temperature,
			Timeout:     time.Duration(o.TimeoutSeconds) * time.Second,
			MaxRetries:  o.MaxRetries,
			Logger:      logger,
		})
		chain = append(chain, provider.NewLimited(ai, provider.NewRateLimiter(3, float64(o.RateLimitPerMinute))))
	}
	c := cfg.Providers.Canned
	chain = append(chain, provider.NewCanned(provider.CannedReplies{
		Greeting:     c.Greeting,
		Price:        c.Price,
		Availability: c.Availability,
		Default:      c.Default,
	}))

	return response.NewGenerator(response.GeneratorConfig{
		Provider: provider.NewFailover(chain, logger),
		Prompts: response.Prompts{
			Seller: cfg.Response.SellerPrompt,
			Buyer:  cfg.Response.BuyerPrompt,
			Extra:  cfg.Response.ExtraPrompt,
		},
		HistoryLimit: cfg.Response.HistoryLimit,
		MaxTokens:    o.MaxTokens,
		Temperature:  o.Temperature,
	})
}

func statusLine(st monitor.Status, chats *chat.Manager) string {
	line := fmt.Sprintf("mode: %s\ncycles: %d\ntracked chats: %d\npending: %d",
		st.Mode, st.Cycles, len(chats.Snapshot()), len(chats.Pending()))
	if !st.LastCycle.IsZero() {
		line += "\nlast cycle: " + st.LastCycle.Format(time.RFC3339)
	}
	if st.LastError != "" {
		line += "\nlast error: " + st.LastError
	}
	return line
}

// baseURL returns scheme://host of the start page.
func baseURL(start string) string {
	u, err := url.Parse(start)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// indicatorInterval maps 0 to "disabled".
func indicatorInterval(n int) time.Duration {
	if n <= 0 {
		return -1
	}
	return ms(n)
}
