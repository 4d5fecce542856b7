package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"fbmonitor/internal/browser"
	"fbmonitor/internal/config"
	"fbmonitor/internal/monitor"
	"fbmonitor/internal/store"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version    = "0.3.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = newLogger("info")

	root := &cobra.Command{
		Use:   "fbmonitor",
		Short: "fbmonitor: Marketplace chat monitor with AI replies",
		Long:  "fbmonitor drives a Chrome tab, tracks Marketplace conversations and drafts or sends replies.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			loadDotEnv()
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.fbmonitor/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(loginCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(chatsCmd())
	root.AddCommand(exportCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// loadDotEnv reads .env from the working directory and the config
// directory. Existing environment variables are never overridden.
func loadDotEnv() {
	for _, p := range []string{".env", filepath.Join(filepath.Dir(resolveConfigPath()), ".env")} {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			logger.Warn("cannot load env file", "path", p, "err", err)
		}
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return config.ExpandPath(configPath)
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the config and switches the logger to its level.
func loadConfig() (*config.Config, string, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config: %w", err)
	}
	logger = newLogger(cfg.General.LogLevel)
	for _, key := range cfg.Migrated {
		logger.Warn("legacy config key migrated; run 'fbmonitor config list' and save to drop it", "key", key)
	}
	return cfg, cfgPath, nil
}

func initCmd() *cobra.Command {
	var interactive bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the default config and data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if interactive {
				return runWizard(cmd, args)
			}
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			if err := os.MkdirAll(config.ExpandPath(cfg.Browser.ProfileDir), 0o700); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "profile", config.ExpandPath(cfg.Browser.ProfileDir))
			fmt.Println("Next: run 'fbmonitor login' once, then 'fbmonitor run'.")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "ask for mode, API key and Telegram settings")
	return cmd
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Open a visible Chrome window to log in to Facebook",
		Long:  "Opens the monitored page in a visible window. Cookies are saved in the profile for later headless runs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bridge := browser.NewBridge(browser.BridgeConfig{
				ProfileDir: cfg.Browser.ProfileDir,
				ExecPath:   cfg.Browser.ExecPath,
				Logger:     logger,
			})
			return bridge.Login(ctx, cfg.Browser.StartURL)
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show monitor and storage status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Printf("Config:  %s\n", cfgPath)
			fmt.Printf("Mode:    %s (configured)\n", cfg.General.Mode)

			if cfg.Status.Enabled {
				st, err := fetchStatus(cmd.Context(), cfg.Status.Host, cfg.Status.Port)
				if err != nil {
					fmt.Printf("Monitor: not reachable (%v)\n", err)
				} else {
					fmt.Printf("Monitor: running, mode=%s busy=%t cycles=%d\n", st.Mode, st.Busy, st.Cycles)
					if !st.LastCycle.IsZero() {
						fmt.Printf("         last cycle %s ago\n", time.Since(st.LastCycle).Round(time.Second))
					}
					if st.LastError != "" {
						fmt.Printf("         last error: %s\n", st.LastError)
					}
				}
			}

			if cfg.Memory.Enabled {
				db, err := store.Open(cfg.Memory.DBPath, logger)
				if err != nil {
					fmt.Printf("Storage: unavailable (%v)\n", err)
					return nil
				}
				defer db.Close()
				chats, msgs, products, err := db.Stats(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("Storage: %d chats, %d messages, %d products (%s)\n", chats, msgs, products, cfg.Memory.DBPath)
			}
			return nil
		},
	}
}

func fetchStatus(ctx context.Context, host string, port int) (*monitor.Status, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	url := fmt.Sprintf("http://%s:%d/api/status", host, port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}
	var st monitor.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, err
	}
	return &st, nil
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. general.mode)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if config.IsSecret(args[0]) {
				cfg = config.Sanitize(cfg)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. general.mode manual)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			shown := args[1]
			if config.IsSecret(args[0]) {
				shown = "***"
			}
			logger.Info("config updated", "path", args[0], "value", shown, "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values (secrets masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			paths := config.ListPaths(cfg)
			for _, p := range config.SortedPaths(paths) {
				data, _ := json.Marshal(paths[p])
				fmt.Printf("%s = %s\n", p, data)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
