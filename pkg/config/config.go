// Package config provides configuration loading, lookup and persistence for the reading engine.
// Values live in a nested map (defaults deep-merged with the config file and environment
// overrides) and are read either by dot path or through typed views.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"fortuneteller/pkg/logx"
)

// DefaultPath is where the CLI looks for a config file when none is given.
const DefaultPath = "config/config.yaml"

// Provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
	ProviderBedrock   = "bedrock"
	ProviderMock      = "mock"
)

// Environment variables for credentials.
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_GENAI_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"

	EnvAWSAccessKeyID     = "AWS_ACCESS_KEY_ID"
	EnvAWSSecretAccessKey = "AWS_SECRET_ACCESS_KEY"
	EnvAWSSessionToken    = "AWS_SESSION_TOKEN"
	EnvAWSProfile         = "AWS_PROFILE"
	EnvBedrockBearerToken = "AWS_BEARER_TOKEN_BEDROCK"
)

// DefaultOllamaHost is used when OLLAMA_HOST is unset.
const DefaultOllamaHost = "http://localhost:11434"

// DefaultBedrockRegion is used when llm.region is unset.
const DefaultBedrockRegion = "us-west-2"

// envOverrides maps environment variables onto dot paths.
//
//nolint:gochecknoglobals // static lookup table
var envOverrides = []struct {
	env  string
	path string
}{
	{"FORTUNE_LLM_PROVIDER", "llm.provider"},
	{"FORTUNE_LLM_MODEL", "llm.model"},
	{"FORTUNE_LLM_MAX_RETRIES", "llm.max_retries"},
	{"FORTUNE_LLM_TIMEOUT", "llm.timeout"},
	{"FORTUNE_LLM_REGION", "llm.region"},
	{"FORTUNE_SESSION_BACKEND", "session.backend"},
	{"FORTUNE_REDIS_ADDR", "session.redis_addr"},
	{"FORTUNE_DB", "storage.database"},
}

// Defaults returns a fresh copy of the built-in configuration.
func Defaults() map[string]any {
	return map[string]any{
		"app": map[string]any{
			"name":    "Fortune Teller",
			"version": "0.1.0",
			"debug":   false,
		},
		"llm": map[string]any{
			"provider":        ProviderOpenAI,
			"model":           "gpt-4",
			"temperature":     0.7,
			"max_tokens":      2000,
			"timeout":         "60s",
			"max_retries":     3,
			"initial_backoff": "1s",
			"max_backoff":     "20s",
			"region":          DefaultBedrockRegion,
			"fallback":        []any{},
			"circuit": map[string]any{
				"enabled":           true,
				"failure_threshold": 5,
				"success_threshold": 3,
				"timeout":           "30s",
			},
			"rate_limit": map[string]any{
				"tokens_per_minute": 0,
				"max_concurrent":    0,
				"daily_tokens":      0,
			},
		},
		"plugins": map[string]any{
			"enabled": []any{"bazi", "tarot", "zodiac"},
			"bazi":    map[string]any{"data_dir": "data/bazi"},
			"tarot":   map[string]any{"data_dir": "data/tarot"},
			"zodiac":  map[string]any{"data_dir": "data/zodiac"},
		},
		"storage": map[string]any{
			"database":      "",
			"export_dir":    "readings",
			"event_log_dir": "",
		},
		"privacy": map[string]any{
			"redact":   true,
			"patterns": []any{},
		},
		"session": map[string]any{
			"backend":        "memory",
			"redis_addr":     "",
			"redis_password": "",
			"redis_db":       0,
			"prefix":         "fortune:session:",
			"ttl":            "24h",
		},
		"server": map[string]any{
			"addr": ":8080",
		},
		"metrics": map[string]any{
			"enabled": true,
		},
	}
}

// Manager holds the merged configuration. Safe for concurrent use.
type Manager struct {
	data   map[string]any
	logger *logx.Logger
	path   string
	mu     sync.RWMutex
}

// NewManager loads configuration from path merged over the defaults.
// An empty path yields defaults only. A path that does not exist is created
// with the defaults so the user has a file to edit.
func NewManager(path string) (*Manager, error) {
	m := &Manager{
		data:   Defaults(),
		logger: logx.NewLogger("config"),
		path:   path,
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			m.logger.Info("config file %s not found, writing defaults", path)
			if err := m.Save(path); err != nil {
				return nil, err
			}
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			loaded, err := decode(path, raw)
			if err != nil {
				return nil, err
			}
			mergeInto(m.data, loaded)
			m.logger.Debug("loaded config from %s", path)
		}
	}

	m.applyEnv()
	return m, nil
}

// FromMap builds a manager from an in-memory document merged over the defaults.
// Environment overrides are not applied.
func FromMap(values map[string]any) *Manager {
	m := &Manager{data: Defaults(), logger: logx.NewLogger("config")}
	if doc, ok := normalize(values).(map[string]any); ok {
		mergeInto(m.data, doc)
	}
	return m
}

// Path returns the file the manager was loaded from.
func (m *Manager) Path() string { return m.path }

func decode(path string, raw []byte) (map[string]any, error) {
	doc := map[string]any{}
	var err error
	if isJSON(path) {
		err = json.Unmarshal(raw, &doc)
	} else {
		err = yaml.Unmarshal(raw, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if doc == nil {
		return map[string]any{}, nil
	}
	out, ok := normalize(doc).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("config file %s: top level must be a mapping", path)
	}
	return out, nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// normalize converts map[any]any nodes into map[string]any so lookups are uniform.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}

// mergeInto deep-merges src into dst. Maps merge recursively, everything else replaces.
func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		if sm, ok := v.(map[string]any); ok {
			if dm, ok := dst[k].(map[string]any); ok {
				mergeInto(dm, sm)
				continue
			}
		}
		dst[k] = v
	}
}

func (m *Manager) applyEnv() {
	for _, o := range envOverrides {
		if v, ok := os.LookupEnv(o.env); ok && v != "" {
			m.setLocked(o.path, v)
			m.logger.Debug("%s overrides %s", o.env, o.path)
		}
	}
}

// Section returns a copy of a top-level section, or an empty map.
func (m *Manager) Section(name string) map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sec, ok := m.data[name].(map[string]any)
	if !ok {
		return map[string]any{}
	}
	out, _ := normalize(sec).(map[string]any)
	return out
}

// Get resolves a dot path such as "llm.model", returning def when any segment is missing.
func (m *Manager) Get(path string, def any) any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var cur any = m.data
	for _, key := range strings.Split(path, ".") {
		node, ok := cur.(map[string]any)
		if !ok {
			return def
		}
		cur, ok = node[key]
		if !ok {
			return def
		}
	}
	return cur
}

// GetString returns the value at path as a string.
func (m *Manager) GetString(path, def string) string {
	switch v := m.Get(path, nil).(type) {
	case nil:
		return def
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// GetInt returns the value at path as an int, or def when absent or not numeric.
func (m *Manager) GetInt(path string, def int) int {
	switch v := m.Get(path, nil).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// GetFloat returns the value at path as a float64.
func (m *Manager) GetFloat(path string, def float64) float64 {
	switch v := m.Get(path, nil).(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

// GetBool returns the value at path as a bool.
func (m *Manager) GetBool(path string, def bool) bool {
	switch v := m.Get(path, nil).(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

// GetDuration parses the value at path as a duration. Bare numbers are seconds.
func (m *Manager) GetDuration(path string, def time.Duration) time.Duration {
	switch v := m.Get(path, nil).(type) {
	case string:
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return def
}

// GetStringSlice returns a list value as strings.
func (m *Manager) GetStringSlice(path string) []string {
	switch v := m.Get(path, nil).(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case []string:
		return append([]string(nil), v...)
	case string:
		if v == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return nil
}

// Set stores value at a dot path, creating intermediate maps as needed.
func (m *Manager) Set(path string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(path, value)
}

func (m *Manager) setLocked(path string, value any) {
	keys := strings.Split(path, ".")
	node := m.data
	for _, key := range keys[:len(keys)-1] {
		next, ok := node[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			node[key] = next
		}
		node = next
	}
	node[keys[len(keys)-1]] = value
}

// PluginConfig returns the plugins.<name> section.
func (m *Manager) PluginConfig(name string) map[string]any {
	if cfg, ok := m.Get("plugins."+name, nil).(map[string]any); ok {
		out, _ := normalize(cfg).(map[string]any)
		return out
	}
	return map[string]any{}
}

// EnabledPlugins lists plugins.enabled. Nil means the key is absent.
func (m *Manager) EnabledPlugins() []string {
	if m.Get("plugins.enabled", nil) == nil {
		return nil
	}
	return m.GetStringSlice("plugins.enabled")
}

// IsPluginEnabled reports whether name is listed in plugins.enabled.
// An absent list enables every plugin.
func (m *Manager) IsPluginEnabled(name string) bool {
	enabled := m.EnabledPlugins()
	if enabled == nil {
		return true
	}
	for _, n := range enabled {
		if n == name {
			return true
		}
	}
	return false
}

// Save writes the configuration to path as YAML, or JSON when path ends in .json.
func (m *Manager) Save(path string) error {
	if path == "" {
		path = m.path
	}
	if path == "" {
		return fmt.Errorf("no config path to save to")
	}

	m.mu.RLock()
	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(m.data, "", "  ")
	} else {
		data, err = yaml.Marshal(m.data)
	}
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	m.logger.Info("saved config to %s", path)
	return nil
}

// decodeSection decodes a section into out via mapstructure, parsing duration strings.
func (m *Manager) decodeSection(name string, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("config section %s: %w", name, err)
	}
	if err := dec.Decode(m.Section(name)); err != nil {
		return fmt.Errorf("config section %s: %w", name, err)
	}
	return nil
}
