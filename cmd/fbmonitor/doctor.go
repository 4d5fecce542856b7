package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"fbmonitor/internal/config"
	"fbmonitor/internal/locator"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your fbmonitor installation",
		Long: `Verifies that the configuration, Chrome profile, selector overrides,
database and AI provider settings are usable. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("fbmonitor doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'fbmonitor init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				fmt.Printf("\n%d passed, 1 failed\n", passed)
				return fmt.Errorf("config invalid")
			}
			printPass("Config validation", "valid")
			passed++
			for _, key := range cfg.Migrated {
				printWarn("Legacy key", key+" (rewrite with 'fbmonitor config set')")
				warned++
			}

			if chrome := findChrome(cfg.Browser.ExecPath); chrome == "" {
				printFail("Chrome", "no Chrome/Chromium binary found (set browser.execPath)")
				failed++
			} else {
				printPass("Chrome", chrome)
				passed++
			}

			if info, err := os.Stat(cfg.Browser.ProfileDir); err != nil || !info.IsDir() {
				printWarn("Chrome profile", fmt.Sprintf("missing: %s (run 'fbmonitor login')", cfg.Browser.ProfileDir))
				warned++
			} else {
				printPass("Chrome profile", cfg.Browser.ProfileDir)
				passed++
			}

			if cfg.Browser.SelectorsFile != "" {
				if _, err := locator.LoadOverrides(cfg.Browser.SelectorsFile, locator.DefaultTable(), logger); err != nil {
					printFail("Selector overrides", err.Error())
					failed++
				} else {
					printPass("Selector overrides", cfg.Browser.SelectorsFile)
					passed++
				}
			}

			if cfg.Memory.Enabled {
				if err := checkDatabase(cfg.Memory.DBPath); err != nil {
					printFail("Database", err.Error())
					failed++
				} else {
					printPass("Database", cfg.Memory.DBPath)
					passed++
				}
			} else {
				printWarn("Database", "memory disabled; history is lost on restart")
				warned++
			}

			o := cfg.Providers.OpenAI
			switch {
			case !o.Enabled:
				printWarn("OpenAI", "disabled; only canned replies will be sent")
				warned++
			case o.Key() == "":
				printWarn("OpenAI", "enabled but no API key (set OPENAI_API_KEY)")
				warned++
			default:
				printPass("OpenAI", fmt.Sprintf("%s via %s", o.Model, o.APIBase))
				passed++
			}

			if t := cfg.Notify.Telegram; t.Enabled {
				printPass("Telegram", fmt.Sprintf("%d chat(s), level >= %s", len(t.ChatIDs), t.MinLevel))
				passed++
			}

			if sl := cfg.Notify.Slack; sl.Enabled {
				printPass("Slack", fmt.Sprintf("channel %s, level >= %s", sl.Channel, sl.MinLevel))
				passed++
			}
			if dc := cfg.Notify.Discord; dc.Enabled {
				printPass("Discord", fmt.Sprintf("channel %s, level >= %s", dc.ChannelID, dc.MinLevel))
				passed++
			}

			if cfg.Status.Enabled {
				if err := checkPort(cfg.Status.Host, cfg.Status.Port); err != nil {
					printWarn("Status port", fmt.Sprintf("port %d may be in use: %v", cfg.Status.Port, err))
					warned++
				} else {
					printPass("Status port", fmt.Sprintf("%s:%d available", cfg.Status.Host, cfg.Status.Port))
					passed++
				}
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running fbmonitor.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nfbmonitor should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! fbmonitor is ready to run.\n")
			}
			return nil
		},
	}
}

// findChrome returns the configured binary or the first known one on PATH.
func findChrome(execPath string) string {
	if execPath != "" {
		if _, err := os.Stat(execPath); err == nil {
			return execPath
		}
		return ""
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	for _, p := range []string{
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		`C:\Program Files\Google\Chrome\Application\chrome.exe`,
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
