package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:            "info",
			Mode:                "off",
			ScanIntervalSeconds: 30,
			RetryDelaySeconds:   60,
			MaxChatsPerCycle:    1,
		},
		Browser: BrowserConfig{
			ProfileDir:       "~/.fbmonitor/chrome-profile",
			StartURL:         "https://www.messenger.com/marketplace",
			SelectorsFile:    "~/.fbmonitor/selectors.yaml",
			ObserveMutations: true,
			DebounceMs:       1500,
		},
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				Enabled:            true,
				APIKey:             "${OPENAI_API_KEY}",
				APIBase:            "https://api.openai.com/v1",
				Model:              "gpt-4o-mini",
				Temperature:        0.7,
				MaxTokens:          150,
				TimeoutSeconds:     30,
				MaxRetries:         2,
				RateLimitPerMinute: 20,
			},
		},
		Response: ResponseConfig{
			MinTypingDelayMs:          1500,
			MaxTypingDelayMs:          8000,
			TypingMsPerChar:           40,
			TypingIndicatorIntervalMs: 2000,
			ManualModeTimeoutSeconds:  60,
			HistoryLimit:              10,
		},
		Product: ProductConfig{
			FlushIntervalSeconds: 30,
		},
		Memory: MemoryConfig{
			Enabled: true,
			DBPath:  "~/.fbmonitor/fbmonitor.db",
		},
		Notify: NotifyConfig{
			Telegram: TelegramConfig{MinLevel: "warning"},
			Slack:    SlackConfig{MinLevel: "warning"},
			Discord:  DiscordConfig{MinLevel: "warning"},
		},
		Status: StatusConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8787,
		},
	}
}
