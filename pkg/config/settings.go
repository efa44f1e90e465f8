package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// ProviderRef names one entry of the fallback chain.
type ProviderRef struct {
	Provider string `mapstructure:"provider" json:"provider" yaml:"provider"`
	Model    string `mapstructure:"model" json:"model" yaml:"model"`
	// Region is the AWS region of a bedrock entry.
	Region string `mapstructure:"region" json:"region,omitempty" yaml:"region,omitempty"`
}

func (p ProviderRef) String() string {
	return p.Provider + "/" + p.Model
}

// CircuitSettings configures the per-provider circuit breaker.
type CircuitSettings struct {
	Enabled          bool          `mapstructure:"enabled"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// RateLimitSettings caps the traffic sent to each chain entry. Zero disables a limit.
type RateLimitSettings struct {
	TokensPerMinute int `mapstructure:"tokens_per_minute"`
	MaxConcurrent   int `mapstructure:"max_concurrent"`
	DailyTokens     int `mapstructure:"daily_tokens"`
}

// Enabled reports whether any limit is set.
func (r RateLimitSettings) Enabled() bool {
	return r.TokensPerMinute > 0 || r.MaxConcurrent > 0 || r.DailyTokens > 0
}

// LLMSettings is the typed view of the llm section.
type LLMSettings struct {
	Provider       string            `mapstructure:"provider"`
	Model          string            `mapstructure:"model"`
	BaseURL        string            `mapstructure:"base_url"`
	Region         string            `mapstructure:"region"`
	Fallback       []ProviderRef     `mapstructure:"fallback"`
	Circuit        CircuitSettings   `mapstructure:"circuit"`
	RateLimit      RateLimitSettings `mapstructure:"rate_limit"`
	Temperature    float64           `mapstructure:"temperature"`
	MaxTokens      int               `mapstructure:"max_tokens"`
	Timeout        time.Duration     `mapstructure:"timeout"`
	MaxRetries     int               `mapstructure:"max_retries"`
	InitialBackoff time.Duration     `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration     `mapstructure:"max_backoff"`
}

// Chain returns the primary entry followed by the fallbacks. Bedrock entries without a
// region take llm.region, then DefaultBedrockRegion.
func (s LLMSettings) Chain() []ProviderRef {
	chain := make([]ProviderRef, 0, 1+len(s.Fallback))
	chain = append(chain, ProviderRef{Provider: s.Provider, Model: s.Model})
	chain = append(chain, s.Fallback...)
	for i := range chain {
		if chain[i].Provider != ProviderBedrock || chain[i].Region != "" {
			continue
		}
		chain[i].Region = s.Region
		if chain[i].Region == "" {
			chain[i].Region = DefaultBedrockRegion
		}
	}
	return chain
}

// StorageSettings is the typed view of the storage section.
type StorageSettings struct {
	Database    string `mapstructure:"database"`
	ExportDir   string `mapstructure:"export_dir"`
	EventLogDir string `mapstructure:"event_log_dir"`
}

// SessionSettings is the typed view of the session section.
type SessionSettings struct {
	Backend       string        `mapstructure:"backend"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	Prefix        string        `mapstructure:"prefix"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// PrivacySettings is the typed view of the privacy section.
type PrivacySettings struct {
	Patterns []string `mapstructure:"patterns"`
	Redact   bool     `mapstructure:"redact"`
}

// ServerSettings is the typed view of the server section.
type ServerSettings struct {
	Addr           string `mapstructure:"addr"`
	MetricsEnabled bool   `mapstructure:"-"`
}

// AppSettings is the typed view of the app section.
type AppSettings struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Debug   bool   `mapstructure:"debug"`
}

// App decodes the app section.
func (m *Manager) App() (AppSettings, error) {
	var s AppSettings
	err := m.decodeSection("app", &s)
	return s, err
}

// LLM decodes the llm section. An empty provider is inferred from the model name.
func (m *Manager) LLM() (LLMSettings, error) {
	var s LLMSettings
	if err := m.decodeSection("llm", &s); err != nil {
		return s, err
	}
	if s.Provider == "" {
		provider, err := ProviderForModel(s.Model)
		if err != nil {
			return s, err
		}
		s.Provider = provider
	}
	for i := range s.Fallback {
		if s.Fallback[i].Provider == "" {
			provider, err := ProviderForModel(s.Fallback[i].Model)
			if err != nil {
				return s, fmt.Errorf("fallback %d: %w", i, err)
			}
			s.Fallback[i].Provider = provider
		}
	}
	if s.MaxRetries < 0 {
		return s, fmt.Errorf("llm.max_retries must not be negative, got %d", s.MaxRetries)
	}
	return s, nil
}

// Storage decodes the storage section.
func (m *Manager) Storage() (StorageSettings, error) {
	var s StorageSettings
	err := m.decodeSection("storage", &s)
	return s, err
}

// Session decodes the session section.
func (m *Manager) Session() (SessionSettings, error) {
	var s SessionSettings
	if err := m.decodeSection("session", &s); err != nil {
		return s, err
	}
	switch s.Backend {
	case "memory", "redis":
	default:
		return s, fmt.Errorf("session.backend must be memory or redis, got %q", s.Backend)
	}
	return s, nil
}

// Privacy decodes the privacy section.
func (m *Manager) Privacy() (PrivacySettings, error) {
	var s PrivacySettings
	err := m.decodeSection("privacy", &s)
	return s, err
}

// Server decodes the server section.
func (m *Manager) Server() (ServerSettings, error) {
	var s ServerSettings
	if err := m.decodeSection("server", &s); err != nil {
		return s, err
	}
	s.MetricsEnabled = m.GetBool("metrics.enabled", true)
	return s, nil
}

// ProviderPattern maps a model name prefix to its provider.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

// ProviderPatterns infers providers for models when llm.provider is left empty.
//
//nolint:gochecknoglobals // static lookup table
var ProviderPatterns = []ProviderPattern{
	{"anthropic.", ProviderBedrock},
	{"us.anthropic.", ProviderBedrock},
	{"eu.anthropic.", ProviderBedrock},
	{"apac.anthropic.", ProviderBedrock},
	{"arn:aws:bedrock:", ProviderBedrock},
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"gemini", ProviderGoogle},
	{"llama", ProviderOllama},
	{"qwen", ProviderOllama},
	{"mistral", ProviderOllama},
	{"deepseek", ProviderOllama},
	{"mock", ProviderMock},
}

// ProviderForModel infers the provider of a model name.
func ProviderForModel(model string) (string, error) {
	for _, p := range ProviderPatterns {
		if strings.HasPrefix(model, p.Prefix) {
			return p.Provider, nil
		}
	}
	return "", fmt.Errorf("unknown model '%s': set llm.provider explicitly", model)
}

// KeyNameFor returns the secret name holding provider's credential, or "" when none is needed.
func KeyNameFor(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return EnvAnthropicAPIKey
	case ProviderOpenAI:
		return EnvOpenAIAPIKey
	case ProviderGoogle:
		return EnvGoogleAPIKey
	default:
		return ""
	}
}

// APIKeyFor returns the credential for provider.
// Checks the decrypted secrets first, then the environment.
// For Ollama it returns the host URL instead of a key; mock needs nothing and bedrock
// resolves AWS credentials through BedrockCredentials.
func APIKeyFor(provider string) (string, error) {
	switch provider {
	case ProviderOllama:
		host := os.Getenv(EnvOllamaHost)
		if host == "" {
			host = DefaultOllamaHost
		}
		return host, nil
	case ProviderMock, ProviderBedrock:
		return "", nil
	}

	envVar := KeyNameFor(provider)
	if envVar == "" {
		return "", fmt.Errorf("unknown provider: %s", provider)
	}
	key, err := GetSecret(envVar)
	if err == nil && key != "" {
		return key, nil
	}
	return "", fmt.Errorf("API key not found: %s not found in secrets file or environment variables", envVar)
}

// ValidateCredentials checks every provider of the chain can resolve its credential.
func ValidateCredentials(s LLMSettings) error {
	var missing []string
	for _, ref := range s.Chain() {
		if ref.Provider == ProviderBedrock {
			if err := CheckBedrockCredentials(); err != nil {
				missing = append(missing, fmt.Sprintf("%s (%v)", ref, err))
			}
			continue
		}
		if _, err := APIKeyFor(ref.Provider); err != nil {
			missing = append(missing, fmt.Sprintf("%s (%v)", ref, err))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing LLM credentials: %s", strings.Join(missing, "; "))
	}
	return nil
}
