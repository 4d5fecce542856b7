package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"fbmonitor/internal/config"
	"fbmonitor/internal/domain"

	"github.com/spf13/cobra"
)

var wizardModes = []struct {
	Mode domain.Mode
	Desc string
}{
	{domain.ModeOff, "track chats only, never type"},
	{domain.ModeGenerate, "draft replies into the composer"},
	{domain.ModeManual, "draft, then wait for you to press send"},
	{domain.ModeAuto, "draft and send automatically"},
}

// runWizard walks through mode → OpenAI → Telegram and saves the config.
func runWizard(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg = config.Defaults()
	}

	reader := bufio.NewReader(os.Stdin)
	prompt := func(def string) (string, error) {
		if def != "" {
			fmt.Fprintf(os.Stdout, " [%s]: ", def)
		} else {
			fmt.Fprint(os.Stdout, ": ")
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		s := strings.TrimSpace(line)
		if s == "" && def != "" {
			return def, nil
		}
		return s, nil
	}

	fmt.Println("\n--- Step 1: Reply mode ---")
	defNum := "1"
	for i, m := range wizardModes {
		fmt.Fprintf(os.Stdout, "  %d) %-9s %s\n", i+1, m.Mode, m.Desc)
		if string(m.Mode) == cfg.General.Mode {
			defNum = fmt.Sprint(i + 1)
		}
	}
	fmt.Fprint(os.Stdout, "Choose mode (1–"+fmt.Sprint(len(wizardModes))+")")
	choice, err := prompt(defNum)
	if err != nil {
		return err
	}
	var idx int
	if n, _ := fmt.Sscanf(choice, "%d", &idx); n != 1 || idx < 1 || idx > len(wizardModes) {
		idx = 1
	}
	cfg.General.Mode = string(wizardModes[idx-1].Mode)
	fmt.Fprintf(os.Stdout, "  Using mode: %s\n", cfg.General.Mode)

	fmt.Println("\n--- Step 2: OpenAI ---")
	fmt.Fprint(os.Stdout, "API key: paste key or env var (e.g. ${OPENAI_API_KEY}); 'none' for canned replies only")
	key, err := prompt(cfg.Providers.OpenAI.APIKey)
	if err != nil {
		return err
	}
	if strings.EqualFold(key, "none") {
		cfg.Providers.OpenAI.Enabled = false
	} else {
		cfg.Providers.OpenAI.Enabled = true
		cfg.Providers.OpenAI.APIKey = key
		fmt.Fprint(os.Stdout, "Model")
		model, err := prompt(cfg.Providers.OpenAI.Model)
		if err != nil {
			return err
		}
		cfg.Providers.OpenAI.Model = model
	}

	fmt.Println("\n--- Step 3: Telegram alerts ---")
	fmt.Fprint(os.Stdout, "Telegram bot token (from @BotFather, empty to skip)")
	tok, err := prompt("")
	if err != nil {
		return err
	}
	if tok != "" {
		cfg.Notify.Telegram.Enabled = true
		cfg.Notify.Telegram.Token = tok
		fmt.Fprint(os.Stdout, "Your Telegram chat id")
		id, err := prompt("")
		if err != nil {
			return err
		}
		if id != "" {
			cfg.Notify.Telegram.ChatIDs = config.FlexStringList{id}
		}
	} else {
		cfg.Notify.Telegram.Enabled = false
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "\nConfig saved to %s\n", cfgPath)
	fmt.Println("Next: run 'fbmonitor login' once, then 'fbmonitor run'.")
	return nil
}
