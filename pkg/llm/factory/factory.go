// Package factory builds provider clients wrapped in the resilience middleware chain.
package factory

import (
	"context"
	"fmt"
	"sync"

	"github.com/anthropics/anthropic-sdk-go/option"
	openaiopt "github.com/openai/openai-go/option"

	"fortuneteller/pkg/config"
	"fortuneteller/pkg/llm"
	"fortuneteller/pkg/llm/internal/llmimpl/anthropic"
	"fortuneteller/pkg/llm/internal/llmimpl/google"
	"fortuneteller/pkg/llm/internal/llmimpl/ollama"
	"fortuneteller/pkg/llm/internal/llmimpl/openaiofficial"
	"fortuneteller/pkg/llm/middleware/circuit"
	"fortuneteller/pkg/llm/middleware/metrics"
	"fortuneteller/pkg/llm/middleware/ratelimit"
	"fortuneteller/pkg/llm/middleware/retry"
	"fortuneteller/pkg/llm/middleware/timeout"
	"fortuneteller/pkg/llm/middleware/validation"
	"fortuneteller/pkg/llm/mock"
	"fortuneteller/pkg/logx"
)

// RawClientFunc creates an unwrapped provider client for one chain entry.
type RawClientFunc func(ref config.ProviderRef, baseURL string) (llm.LLMClient, error)

// NewRawClient creates the SDK adapter for ref, resolving its credential through config.APIKeyFor.
func NewRawClient(ref config.ProviderRef, baseURL string) (llm.LLMClient, error) {
	key, err := config.APIKeyFor(ref.Provider)
	if err != nil {
		return nil, fmt.Errorf("failed to get API key for provider %s: %w", ref.Provider, err)
	}

	switch ref.Provider {
	case config.ProviderAnthropic:
		var opts []option.RequestOption
		if baseURL != "" {
			opts = append(opts, option.WithBaseURL(baseURL))
		}
		return anthropic.NewClaudeClientWithModel(key, ref.Model, opts...), nil
	case config.ProviderBedrock:
		creds := config.BedrockCredentials()
		return anthropic.NewBedrockClientWithModel(context.Background(), ref.Model, anthropic.BedrockOptions{
			Region:          ref.Region,
			AccessKeyID:     creds.AccessKeyID,
			SecretAccessKey: creds.SecretAccessKey,
			SessionToken:    creds.SessionToken,
			BearerToken:     creds.BearerToken,
			BaseURL:         baseURL,
		})
	case config.ProviderOpenAI:
		var opts []openaiopt.RequestOption
		if baseURL != "" {
			opts = append(opts, openaiopt.WithBaseURL(baseURL))
		}
		return openaiofficial.NewOfficialClientWithModel(key, ref.Model, opts...), nil
	case config.ProviderGoogle:
		return google.NewGeminiClientWithModel(key, ref.Model, baseURL), nil
	case config.ProviderOllama:
		host := key
		if baseURL != "" {
			host = baseURL
		}
		return ollama.NewOllamaClientWithModel(host, ref.Model), nil
	case config.ProviderMock:
		return mock.NewCanned(ref.Model), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", ref.Provider)
	}
}

// Factory creates LLM clients with properly configured middleware chains.
// Circuit breakers and rate limiters are shared per chain entry across every client the
// factory creates.
type Factory struct {
	recorder metrics.Recorder
	raw      RawClientFunc
	sleep    retry.Sleeper
	logger   *logx.Logger
	breakers map[string]circuit.Breaker
	limiters map[string]*ratelimit.Limiter
	mu       sync.Mutex
}

// Option configures a Factory.
type Option func(*Factory)

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(f *Factory) { f.recorder = r }
}

// WithRawClient replaces the SDK constructors, typically with scripted clients in tests.
func WithRawClient(fn RawClientFunc) Option {
	return func(f *Factory) { f.raw = fn }
}

// WithSleep replaces the retry backoff sleeper.
func WithSleep(s retry.Sleeper) Option {
	return func(f *Factory) { f.sleep = s }
}

// WithLogger sets the logger used by the middleware.
func WithLogger(l *logx.Logger) Option {
	return func(f *Factory) { f.logger = l }
}

// New creates a factory.
func New(opts ...Option) *Factory {
	f := &Factory{
		recorder: metrics.Nop(),
		raw:      NewRawClient,
		logger:   logx.NewLogger("llm"),
		breakers: make(map[string]circuit.Breaker),
		limiters: make(map[string]*ratelimit.Limiter),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Recorder returns the metrics recorder shared by every client.
func (f *Factory) Recorder() metrics.Recorder {
	return f.recorder
}

func (f *Factory) breaker(ref config.ProviderRef, cs config.CircuitSettings) circuit.Breaker {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := ref.String()
	if b, ok := f.breakers[key]; ok {
		return b
	}
	b := circuit.New(circuit.Config{
		FailureThreshold: cs.FailureThreshold,
		SuccessThreshold: cs.SuccessThreshold,
		Timeout:          cs.Timeout,
	})
	f.breakers[key] = b
	return b
}

// Limiter returns the rate limiter of a chain entry, creating it on first use.
func (f *Factory) Limiter(ref config.ProviderRef, rs config.RateLimitSettings) *ratelimit.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := ref.String()
	if l, ok := f.limiters[key]; ok {
		return l
	}
	l := ratelimit.New(ratelimit.Config{
		TokensPerMinute: rs.TokensPerMinute,
		MaxConcurrent:   rs.MaxConcurrent,
		DailyTokens:     rs.DailyTokens,
	}, nil)
	f.limiters[key] = l
	return l
}

// CreateClient builds the client for one chain entry.
// Chain order: Metrics -> CircuitBreaker -> Retry -> RateLimit -> Timeout -> EmptyResponse -> RawClient.
func (f *Factory) CreateClient(settings config.LLMSettings, ref config.ProviderRef) (llm.LLMClient, error) {
	baseURL := ""
	if ref.Provider == settings.Provider && ref.Model == settings.Model {
		baseURL = settings.BaseURL
	}
	rawClient, err := f.raw(ref, baseURL)
	if err != nil {
		return nil, err
	}

	policy := retry.NewPolicy(retry.FromRetries(settings.MaxRetries, settings.InitialBackoff, settings.MaxBackoff), nil)
	if f.sleep != nil {
		policy.Sleep = f.sleep
	}

	var breakerMW llm.Middleware
	if settings.Circuit.Enabled {
		breakerMW = circuit.Middleware(f.breaker(ref, settings.Circuit), ref.Provider)
	}

	var limitMW llm.Middleware
	if settings.RateLimit.Enabled() {
		limitMW = ratelimit.Middleware(f.Limiter(ref, settings.RateLimit), ref.String(), f.logger)
	}

	return llm.Chain(rawClient,
		metrics.Middleware(f.recorder, ref.Provider, nil, f.logger),
		breakerMW,
		retry.Middleware(policy, f.logger),
		limitMW,
		timeout.Middleware(settings.Timeout),
		validation.NewEmptyResponseValidator(f.logger).Middleware(),
	), nil
}
