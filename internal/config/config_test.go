package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// --- Validate ---

func TestValidate_Defaults(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"log level", func(c *Config) { c.General.LogLevel = "loud" }, "general.logLevel"},
		{"mode", func(c *Config) { c.General.Mode = "yolo" }, "general.mode"},
		{"scan interval", func(c *Config) { c.General.ScanIntervalSeconds = 1 }, "scanIntervalSeconds"},
		{"retry delay", func(c *Config) { c.General.RetryDelaySeconds = 0 }, "retryDelaySeconds"},
		{"chats per cycle", func(c *Config) { c.General.MaxChatsPerCycle = 51 }, "maxChatsPerCycle"},
		{"start url", func(c *Config) { c.Browser.StartURL = "" }, "startUrl"},
		{"typing max", func(c *Config) { c.Response.MaxTypingDelayMs = 10 }, "maxTypingDelayMs"},
		{"manual timeout", func(c *Config) { c.Response.ManualModeTimeoutSeconds = 2 }, "manualModeTimeoutSeconds"},
		{"temperature", func(c *Config) { c.Providers.OpenAI.Temperature = 3 }, "temperature"},
		{"max tokens", func(c *Config) { c.Providers.OpenAI.MaxTokens = 0 }, "maxTokens"},
		{"telegram token", func(c *Config) {
			c.Notify.Telegram.Enabled = true
			c.Notify.Telegram.ChatIDs = FlexStringList{"1"}
		}, "notify.telegram.token"},
		{"telegram chats", func(c *Config) {
			c.Notify.Telegram.Enabled = true
			c.Notify.Telegram.Token = "123:abc"
		}, "chatIds"},
		{"slack channel", func(c *Config) {
			c.Notify.Slack.Enabled = true
			c.Notify.Slack.Token = "xoxb-1"
		}, "notify.slack"},
		{"discord token", func(c *Config) {
			c.Notify.Discord.Enabled = true
			c.Notify.Discord.ChannelID = "99"
		}, "notify.discord"},
		{"min level", func(c *Config) { c.Notify.Slack.MinLevel = "panic" }, "notify.slack.minLevel"},
		{"status port", func(c *Config) { c.Status.Port = 70000 }, "status.port"},
		{"db path", func(c *Config) { c.Memory.DBPath = "" }, "memory.dbPath"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_UncappedTyping(t *testing.T) {
	cfg := Defaults()
	cfg.Response.MaxTypingDelayMs = 0
	if err := Validate(cfg); err != nil {
		t.Fatalf("maxTypingDelayMs=0 should mean no cap: %v", err)
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FBM_TEST_KEY", "sk-live")
	t.Setenv("FBM_TEST_EMPTY", "")

	tests := []struct {
		in, want string
	}{
		{"${FBM_TEST_KEY}", "sk-live"},
		{"key=${FBM_TEST_KEY}!", "key=sk-live!"},
		{"${FBM_TEST_MISSING:-fallback}", "fallback"},
		{"${FBM_TEST_EMPTY:-fallback}", "fallback"},
		{"${FBM_TEST_MISSING}", "${FBM_TEST_MISSING}"},
		{"no vars", "no vars"},
	}
	for _, tt := range tests {
		if got := ExpandEnvVars(tt.in); got != tt.want {
			t.Errorf("ExpandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOpenAIKey_Unresolved(t *testing.T) {
	o := OpenAIConfig{APIKey: "${OPENAI_API_KEY}"}
	if o.Key() != "" {
		t.Errorf("unresolved reference should yield empty key, got %q", o.Key())
	}
	o.APIKey = "sk-1"
	if o.Key() != "sk-1" {
		t.Errorf("Key() = %q", o.Key())
	}
}

// --- Parse ---

func TestParse_OverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`{"general":{"mode":"manual","scanIntervalSeconds":45}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.General.Mode != "manual" || cfg.General.ScanIntervalSeconds != 45 {
		t.Errorf("general = %+v", cfg.General)
	}
	if cfg.Response.ManualModeTimeoutSeconds != 60 {
		t.Errorf("manual timeout default lost: %d", cfg.Response.ManualModeTimeoutSeconds)
	}
	if strings.HasPrefix(cfg.Memory.DBPath, "~") {
		t.Errorf("db path not expanded: %s", cfg.Memory.DBPath)
	}
}

func TestParse_LegacyKeys(t *testing.T) {
	doc := `{"openaiApiKey":"sk-old","model":"gpt-3.5-turbo","operationMode":"semi-auto","scanInterval":90}`
	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Providers.OpenAI.APIKey != "sk-old" {
		t.Errorf("apiKey = %q", cfg.Providers.OpenAI.APIKey)
	}
	if cfg.Providers.OpenAI.Model != "gpt-3.5-turbo" {
		t.Errorf("model = %q", cfg.Providers.OpenAI.Model)
	}
	if cfg.General.Mode != "manual" {
		t.Errorf("mode = %q, want manual", cfg.General.Mode)
	}
	if cfg.General.ScanIntervalSeconds != 90 {
		t.Errorf("scan interval = %d", cfg.General.ScanIntervalSeconds)
	}
	if len(cfg.Migrated) != 4 {
		t.Errorf("migrated = %v", cfg.Migrated)
	}
}

func TestParse_StructuredWinsOverLegacy(t *testing.T) {
	doc := `{"apiKey":"sk-old","providers":{"openai":{"apiKey":"sk-new"}}}`
	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Providers.OpenAI.APIKey != "sk-new" {
		t.Errorf("apiKey = %q, want sk-new", cfg.Providers.OpenAI.APIKey)
	}
	if len(cfg.Migrated) != 0 {
		t.Errorf("nothing should be reported as migrated: %v", cfg.Migrated)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte(`{not json`)); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Parse([]byte(`{"general":{"mode":"sometimes"}}`)); err == nil {
		t.Error("expected validation error")
	}
}

func TestFlexStringList(t *testing.T) {
	cfg, err := Parse([]byte(`{"notify":{"telegram":{"chatIds":[12345, "-100200"]}}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := cfg.Notify.Telegram.ChatIDs
	if len(got) != 2 || got[0] != "12345" || got[1] != "-100200" {
		t.Errorf("chatIds = %v", got)
	}
}

// --- Save / Load ---

func TestSaveLoad_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Defaults()
	cfg.General.Mode = "generate"
	cfg.Providers.OpenAI.APIKey = "sk-roundtrip"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("perm = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.General.Mode != "generate" || loaded.Providers.OpenAI.APIKey != "sk-roundtrip" {
		t.Errorf("loaded = %+v", loaded.General)
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

// --- accessor ---

func TestGetByPath(t *testing.T) {
	cfg := Defaults()
	v, err := GetByPath(cfg, "response.manualModeTimeoutSeconds")
	if err != nil {
		t.Fatalf("GetByPath: %v", err)
	}
	if v.(float64) != 60 {
		t.Errorf("got %v", v)
	}
	if _, err := GetByPath(cfg, "response.nope"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestSetByPath(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "general.mode", "auto"); err != nil {
		t.Fatalf("set mode: %v", err)
	}
	if err := SetByPath(cfg, "general.scanIntervalSeconds", "120"); err != nil {
		t.Fatalf("set interval: %v", err)
	}
	if err := SetByPath(cfg, "browser.headless", "true"); err != nil {
		t.Fatalf("set headless: %v", err)
	}
	if err := SetByPath(cfg, "providers.openai.temperature", "0.2"); err != nil {
		t.Fatalf("set temperature: %v", err)
	}
	if cfg.General.Mode != "auto" || cfg.General.ScanIntervalSeconds != 120 || !cfg.Browser.Headless {
		t.Errorf("config not updated: %+v %+v", cfg.General, cfg.Browser)
	}
	if cfg.Providers.OpenAI.Temperature != 0.2 {
		t.Errorf("temperature = %v", cfg.Providers.OpenAI.Temperature)
	}
	if cfg.Memory.DBPath != Defaults().Memory.DBPath {
		t.Errorf("unrelated fields changed: %q", cfg.Memory.DBPath)
	}
}

func TestSetByPath_Errors(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "general.nope", "1"); err == nil {
		t.Error("expected error for unknown leaf")
	}
	if err := SetByPath(cfg, "nope.mode", "1"); err == nil {
		t.Error("expected error for unknown section")
	}
	if err := SetByPath(cfg, "general.scanIntervalSeconds", "soon"); err == nil {
		t.Error("expected type error")
	}
	if cfg.General.ScanIntervalSeconds != 30 {
		t.Errorf("failed set mutated config: %d", cfg.General.ScanIntervalSeconds)
	}
}

func TestSetByPath_OptionalField(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "response.extraPrompt", "Be brief."); err != nil {
		t.Fatalf("set extraPrompt: %v", err)
	}
	if cfg.Response.ExtraPrompt != "Be brief." {
		t.Errorf("extraPrompt = %q", cfg.Response.ExtraPrompt)
	}
}

func TestSanitize(t *testing.T) {
	cfg := Defaults()
	cfg.Providers.OpenAI.APIKey = "sk-abcdefghijklmnop"
	cfg.Notify.Telegram.Token = "short"

	s := Sanitize(cfg)
	if s.Providers.OpenAI.APIKey != "sk-a****mnop" {
		t.Errorf("apiKey = %q", s.Providers.OpenAI.APIKey)
	}
	if s.Notify.Telegram.Token != "***" {
		t.Errorf("token = %q", s.Notify.Telegram.Token)
	}
	if cfg.Providers.OpenAI.APIKey != "sk-abcdefghijklmnop" {
		t.Error("Sanitize mutated the original")
	}
}

func TestListPaths(t *testing.T) {
	cfg := Defaults()
	cfg.Providers.OpenAI.APIKey = "sk-abcdefghijklmnop"
	paths := ListPaths(cfg)
	if paths["general.mode"] != "off" {
		t.Errorf("general.mode = %v", paths["general.mode"])
	}
	if paths["providers.openai.apiKey"] != "sk-a****mnop" {
		t.Errorf("apiKey not masked: %v", paths["providers.openai.apiKey"])
	}
	keys := SortedPaths(paths)
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Fatalf("keys not sorted at %d", i)
		}
	}
	if !IsSecret("notify.telegram.token") || !IsSecret("notify.discord.token") || IsSecret("general.mode") {
		t.Error("IsSecret misclassified")
	}
}
