package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// secretPaths are masked by Sanitize and `config list`.
var secretPaths = []string{
	"providers.openai.apiKey",
	"notify.telegram.token",
	"notify.slack.token",
	"notify.discord.token",
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetByPath reads a value by dot path, e.g. "response.manualModeTimeoutSeconds".
func GetByPath(cfg *Config, path string) (any, error) {
	m, err := toMap(cfg)
	if err != nil {
		return nil, err
	}
	var current any = m
	for _, key := range strings.Split(path, ".") {
		switch v := current.(type) {
		case map[string]any:
			val, ok := v[key]
			if !ok {
				return nil, fmt.Errorf("key not found: %s", path)
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("invalid array index: %s", key)
			}
			current = v[idx]
		default:
			return nil, fmt.Errorf("cannot traverse into %T at %s", current, key)
		}
	}
	return current, nil
}

// SetByPath writes a value by dot path. String values are coerced to
// bool or number when they parse as one. Only existing keys can be set.
func SetByPath(cfg *Config, path string, value any) error {
	m, err := toMap(cfg)
	if err != nil {
		return err
	}
	parts := strings.Split(path, ".")
	parent := m
	for _, p := range parts[:len(parts)-1] {
		child, ok := parent[p].(map[string]any)
		if !ok {
			return fmt.Errorf("key not found: %s", path)
		}
		parent = child
	}
	last := parts[len(parts)-1]
	if _, ok := parent[last]; !ok && !isOmitEmpty(path) {
		return fmt.Errorf("key not found: %s", path)
	}
	parent[last] = parseValue(value)

	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	next := &Config{}
	if err := json.Unmarshal(data, next); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	next.Migrated = cfg.Migrated
	*cfg = *next
	return nil
}

// isOmitEmpty reports optional fields that vanish from the map when empty.
func isOmitEmpty(path string) bool {
	switch path {
	case "providers.openai.apiKey", "providers.openai.apiBase",
		"browser.execPath", "browser.selectorsFile",
		"response.sellerPrompt", "response.buyerPrompt", "response.extraPrompt",
		"providers.canned.greeting", "providers.canned.price",
		"providers.canned.availability", "providers.canned.default",
		"product.payloadKeys":
		return true
	}
	return false
}

func parseValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// Sanitize returns a copy with secrets masked.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	out.Providers.OpenAI.APIKey = maskString(cfg.Providers.OpenAI.APIKey)
	out.Notify.Telegram.Token = maskString(cfg.Notify.Telegram.Token)
	out.Notify.Slack.Token = maskString(cfg.Notify.Slack.Token)
	out.Notify.Discord.Token = maskString(cfg.Notify.Discord.Token)
	out.Notify.Telegram.ChatIDs = append(FlexStringList(nil), cfg.Notify.Telegram.ChatIDs...)
	out.Product.PayloadKeys = append([]string(nil), cfg.Product.PayloadKeys...)
	return &out
}

// maskString keeps the first and last 4 characters; unresolved ${VAR}
// references are shown as-is.
func maskString(s string) string {
	if s == "" || strings.HasPrefix(s, "${") {
		return s
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths flattens the sanitized config into dot paths.
func ListPaths(cfg *Config) map[string]any {
	m, err := toMap(Sanitize(cfg))
	if err != nil {
		return nil
	}
	out := make(map[string]any)
	flatten("", m, out)
	return out
}

// SortedPaths returns the keys of ListPaths in order.
func SortedPaths(paths map[string]any) []string {
	keys := make([]string, 0, len(paths))
	for k := range paths {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsSecret reports whether path holds a credential.
func IsSecret(path string) bool {
	for _, p := range secretPaths {
		if p == path {
			return true
		}
	}
	return false
}

func flatten(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			flatten(path, child, out)
			continue
		}
		out[path] = v
	}
}
