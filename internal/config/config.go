package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"fbmonitor/internal/domain"
)

// Config is the root configuration for fbmonitor.
type Config struct {
	General   GeneralConfig   `json:"general"`
	Browser   BrowserConfig   `json:"browser"`
	Providers ProvidersConfig `json:"providers"`
	Response  ResponseConfig  `json:"response"`
	Product   ProductConfig   `json:"product"`
	Memory    MemoryConfig    `json:"memory"`
	Notify    NotifyConfig    `json:"notify"`
	Status    StatusConfig    `json:"status"`

	// Migrated lists legacy keys rewritten by Load.
	Migrated []string `json:"-"`
}

type GeneralConfig struct {
	LogLevel             string `json:"logLevel"`
	Mode                 string `json:"mode"` // off | auto | manual | generate
	ScanIntervalSeconds  int    `json:"scanIntervalSeconds"`
	RetryDelaySeconds    int    `json:"retryDelaySeconds"`
	MaxChatsPerCycle     int    `json:"maxChatsPerCycle"`
	SortByRecency        bool   `json:"sortByRecency"`
	FilterSystemMessages bool   `json:"filterSystemMessages"` // heuristic, off by default
	HistoryScrolls       int    `json:"historyScrolls"`
}

type BrowserConfig struct {
	ProfileDir       string `json:"profileDir"`
	Headless         bool   `json:"headless"`
	ExecPath         string `json:"execPath,omitempty"`
	StartURL         string `json:"startUrl"`
	SelectorsFile    string `json:"selectorsFile,omitempty"` // YAML region → selectors overrides
	ObserveMutations bool   `json:"observeMutations"`
	DebounceMs       int    `json:"debounceMs"`
}

type ProvidersConfig struct {
	OpenAI OpenAIConfig `json:"openai"`
	Canned CannedConfig `json:"canned"`
}

type OpenAIConfig struct {
	Enabled            bool    `json:"enabled"`
	APIKey             string  `json:"apiKey,omitempty"`
	APIBase            string  `json:"apiBase,omitempty"`
	Model              string  `json:"model"`
	Temperature        float32 `json:"temperature"`
	MaxTokens          int     `json:"maxTokens"`
	TimeoutSeconds     int     `json:"timeoutSeconds"`
	MaxRetries         int     `json:"maxRetries"`
	RateLimitPerMinute int     `json:"rateLimitPerMinute"`
}

// Key returns the API key, or "" when it is an unresolved ${VAR}.
func (o OpenAIConfig) Key() string {
	if strings.HasPrefix(o.APIKey, "${") {
		return ""
	}
	return o.APIKey
}

// CannedConfig overrides the keyword fallback templates; {product} is
// replaced with the listing title.
type CannedConfig struct {
	Greeting     string `json:"greeting,omitempty"`
	Price        string `json:"price,omitempty"`
	Availability string `json:"availability,omitempty"`
	Default      string `json:"default,omitempty"`
}

type ResponseConfig struct {
	MinTypingDelayMs          int    `json:"minTypingDelayMs"`
	MaxTypingDelayMs          int    `json:"maxTypingDelayMs"`
	TypingMsPerChar           int    `json:"typingMsPerChar"`
	TypingIndicatorIntervalMs int    `json:"typingIndicatorIntervalMs"`
	ManualModeTimeoutSeconds  int    `json:"manualModeTimeoutSeconds"`
	HistoryLimit              int    `json:"historyLimit"`
	SellerPrompt              string `json:"sellerPrompt,omitempty"`
	BuyerPrompt               string `json:"buyerPrompt,omitempty"`
	ExtraPrompt               string `json:"extraPrompt,omitempty"`
}

type ProductConfig struct {
	PayloadKeys          []string `json:"payloadKeys,omitempty"`
	FlushIntervalSeconds int      `json:"flushIntervalSeconds"`
}

type MemoryConfig struct {
	Enabled bool   `json:"enabled"`
	DBPath  string `json:"dbPath"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Slack    SlackConfig    `json:"slack"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	Enabled  bool           `json:"enabled"`
	Token    string         `json:"token"`
	ChatIDs  FlexStringList `json:"chatIds"`
	MinLevel string         `json:"minLevel"` // info | success | warning | error
}

type SlackConfig struct {
	Enabled  bool   `json:"enabled"`
	Token    string `json:"token"`
	Channel  string `json:"channel"`
	MinLevel string `json:"minLevel"`
}

type DiscordConfig struct {
	Enabled   bool   `json:"enabled"`
	Token     string `json:"token"`
	ChannelID string `json:"channelId"`
	MinLevel  string `json:"minLevel"`
}

type StatusConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// FlexStringList is a []string that also accepts JSON numbers, so chat ids
// can be written either way.
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			out = append(out, strconv.FormatInt(int64(n), 10))
			continue
		}
		out = append(out, string(item))
	}
	*f = out
	return nil
}

// DefaultConfigDir returns ~/.fbmonitor.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fbmonitor"
	}
	return filepath.Join(home, ".fbmonitor")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a config document over Defaults, expanding ${VAR} and
// ${VAR:-default} references and rewriting legacy keys first.
func Parse(data []byte) (*Config, error) {
	data = []byte(ExpandEnvVars(string(data)))

	data, migrated, err := migrateLegacy(data)
	if err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}
	cfg.Migrated = migrated

	cfg.Browser.ProfileDir = ExpandPath(cfg.Browser.ProfileDir)
	cfg.Browser.SelectorsFile = ExpandPath(cfg.Browser.SelectorsFile)
	cfg.Memory.DBPath = ExpandPath(cfg.Memory.DBPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// legacyKeys maps flat top-level keys of the old settings format to their
// structured home.
var legacyKeys = map[string][]string{
	"openaiApiKey":  {"providers", "openai", "apiKey"},
	"apiKey":        {"providers", "openai", "apiKey"},
	"model":         {"providers", "openai", "model"},
	"operationMode": {"general", "mode"},
	"scanInterval":  {"general", "scanIntervalSeconds"},
}

// migrateLegacy moves legacy keys into place. A structured value that is
// already set wins over the legacy one.
func migrateLegacy(data []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, nil, err
	}
	var migrated []string
	for _, key := range sortedLegacyKeys() {
		v, ok := m[key]
		if !ok {
			continue
		}
		delete(m, key)
		dest := legacyKeys[key]
		parent := m
		for _, p := range dest[:len(dest)-1] {
			child, ok := parent[p].(map[string]any)
			if !ok {
				child = map[string]any{}
				parent[p] = child
			}
			parent = child
		}
		leaf := dest[len(dest)-1]
		if cur, ok := parent[leaf]; ok && cur != "" && cur != nil {
			continue
		}
		if key == "operationMode" {
			v = legacyMode(v)
		}
		parent[leaf] = v
		migrated = append(migrated, key)
	}
	if len(migrated) == 0 {
		return data, nil, nil
	}
	out, err := json.Marshal(m)
	return out, migrated, err
}

func sortedLegacyKeys() []string {
	// openaiApiKey before apiKey so the more specific key wins.
	return []string{"openaiApiKey", "apiKey", "model", "operationMode", "scanInterval"}
}

// legacyMode maps the old mode labels to Mode names.
func legacyMode(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch strings.ToLower(s) {
	case "automatic", "auto":
		return string(domain.ModeAuto)
	case "manual", "semi-auto", "semiauto":
		return string(domain.ModeManual)
	case "generate", "draft", "generate-only":
		return string(domain.ModeGenerate)
	case "off", "disabled":
		return string(domain.ModeOff)
	}
	return s
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with its environment value, or the default
// when VAR is unset or empty. Unresolvable references are kept verbatim.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if val, ok := os.LookupEnv(groups[1]); ok && val != "" {
			return val
		}
		if hasDefault {
			return groups[2]
		}
		return match
	})
}

func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has usable values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if _, err := domain.ParseMode(cfg.General.Mode); err != nil {
		errs = append(errs, "general.mode must be one of: off, auto, manual, generate")
	}
	if cfg.General.ScanIntervalSeconds < 5 {
		errs = append(errs, "general.scanIntervalSeconds must be >= 5")
	}
	if cfg.General.RetryDelaySeconds < 5 {
		errs = append(errs, "general.retryDelaySeconds must be >= 5")
	}
	if cfg.General.MaxChatsPerCycle < 1 || cfg.General.MaxChatsPerCycle > 50 {
		errs = append(errs, "general.maxChatsPerCycle must be between 1 and 50")
	}
	if cfg.General.HistoryScrolls < 0 {
		errs = append(errs, "general.historyScrolls must be >= 0")
	}

	if cfg.Browser.StartURL == "" {
		errs = append(errs, "browser.startUrl is required")
	}

	r := cfg.Response
	if r.MinTypingDelayMs < 0 || r.TypingMsPerChar < 0 {
		errs = append(errs, "response typing delays must be >= 0")
	}
	if r.MaxTypingDelayMs != 0 && r.MaxTypingDelayMs < r.MinTypingDelayMs {
		errs = append(errs, "response.maxTypingDelayMs must be 0 or >= minTypingDelayMs")
	}
	if r.ManualModeTimeoutSeconds < 5 {
		errs = append(errs, "response.manualModeTimeoutSeconds must be >= 5")
	}

	o := cfg.Providers.OpenAI
	if o.Temperature < 0 || o.Temperature > 2 {
		errs = append(errs, "providers.openai.temperature must be between 0 and 2")
	}
	if o.MaxTokens < 1 {
		errs = append(errs, "providers.openai.maxTokens must be >= 1")
	}

	if t := cfg.Notify.Telegram; t.Enabled {
		if t.Token == "" {
			errs = append(errs, "notify.telegram.token is required when telegram is enabled")
		}
		if len(t.ChatIDs) == 0 {
			errs = append(errs, "notify.telegram.chatIds must list at least one chat")
		}
	}
	if sl := cfg.Notify.Slack; sl.Enabled && (sl.Token == "" || sl.Channel == "") {
		errs = append(errs, "notify.slack.token and notify.slack.channel are required when slack is enabled")
	}
	if d := cfg.Notify.Discord; d.Enabled && (d.Token == "" || d.ChannelID == "") {
		errs = append(errs, "notify.discord.token and notify.discord.channelId are required when discord is enabled")
	}
	for path, lvl := range map[string]string{
		"notify.telegram.minLevel": cfg.Notify.Telegram.MinLevel,
		"notify.slack.minLevel":    cfg.Notify.Slack.MinLevel,
		"notify.discord.minLevel":  cfg.Notify.Discord.MinLevel,
	} {
		switch lvl {
		case "", "info", "success", "warning", "error":
		default:
			errs = append(errs, path+" must be one of: info, success, warning, error")
		}
	}
	if cfg.Status.Port < 0 || cfg.Status.Port > 65535 {
		errs = append(errs, "status.port must be between 0 and 65535")
	}
	if cfg.Memory.Enabled && cfg.Memory.DBPath == "" {
		errs = append(errs, "memory.dbPath is required when memory is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
