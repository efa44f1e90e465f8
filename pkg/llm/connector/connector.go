// Package connector sends prompt pairs to the configured model chain.
//
// Each chain entry (primary, then fallbacks) is a factory-built client carrying its own
// retry, timeout and circuit-breaker middleware. GenerateResponse walks the chain: a fatal
// error stops immediately, an exhausted entry hands over to the next one, and cancellation
// aborts without touching further entries.
package connector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fortuneteller/pkg/apperrors"
	"fortuneteller/pkg/config"
	"fortuneteller/pkg/fortune"
	"fortuneteller/pkg/llm"
	"fortuneteller/pkg/llm/factory"
	"fortuneteller/pkg/llm/llmerrors"
	"fortuneteller/pkg/llm/middleware/circuit"
	"fortuneteller/pkg/llm/middleware/metrics"
	"fortuneteller/pkg/llm/middleware/retry"
	"fortuneteller/pkg/logx"
)

// TokenUsage is the token accounting of the serving call.
type TokenUsage struct {
	Prompt     int  `json:"prompt_tokens"`
	Completion int  `json:"completion_tokens"`
	Total      int  `json:"total_tokens"`
	Estimated  bool `json:"estimated,omitempty"`
}

// Metadata describes how a response was produced.
type Metadata struct {
	Provider      string        `json:"provider"`
	Model         string        `json:"model"`
	FinishReason  string        `json:"finish_reason"`
	TokenUsage    TokenUsage    `json:"token_usage"`
	Latency       time.Duration `json:"latency"`
	// RetryCount and Attempts count across every chain entry tried, not just the one
	// that served.
	RetryCount    int `json:"retry_count"`
	Attempts      int `json:"attempts"`
	FallbackIndex int `json:"fallback_index"`
}

// Result is generated text plus its metadata.
type Result struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

type entry struct {
	client llm.LLMClient
	ref    config.ProviderRef
}

// Connector generates text through the configured chain.
type Connector struct {
	factory  *factory.Factory
	logger   *logx.Logger
	entries  []entry
	settings config.LLMSettings
}

type options struct {
	raw      factory.RawClientFunc
	recorder metrics.Recorder
	sleep    retry.Sleeper
	logger   *logx.Logger
}

// Option configures a Connector.
type Option func(*options)

// WithClientFactory replaces the provider SDK constructors. Middleware still applies.
func WithClientFactory(fn factory.RawClientFunc) Option {
	return func(o *options) { o.raw = fn }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *logx.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSleep replaces the backoff sleeper.
func WithSleep(s retry.Sleeper) Option {
	return func(o *options) { o.sleep = s }
}

// New builds one client per chain entry. Missing credentials surface here.
func New(settings config.LLMSettings, opts ...Option) (*Connector, error) {
	o := options{logger: logx.NewLogger("llm-connector")}
	for _, opt := range opts {
		opt(&o)
	}

	fopts := []factory.Option{factory.WithLogger(o.logger)}
	if o.raw != nil {
		fopts = append(fopts, factory.WithRawClient(o.raw))
	}
	if o.recorder != nil {
		fopts = append(fopts, factory.WithRecorder(o.recorder))
	}
	if o.sleep != nil {
		fopts = append(fopts, factory.WithSleep(o.sleep))
	}

	c := &Connector{
		factory:  factory.New(fopts...),
		logger:   o.logger,
		settings: settings,
	}
	entries, err := c.build(settings)
	if err != nil {
		return nil, err
	}
	c.entries = entries

	c.logger.Info("LLM chain ready: %v (max_retries=%d, timeout=%s)", settings.Chain(), settings.MaxRetries, settings.Timeout)
	return c, nil
}

func (c *Connector) build(settings config.LLMSettings) ([]entry, error) {
	if settings.Provider == "" || settings.Model == "" {
		return nil, fmt.Errorf("llm provider and model are required")
	}
	chain := settings.Chain()
	entries := make([]entry, 0, len(chain))
	for i, ref := range chain {
		client, err := c.factory.CreateClient(settings, ref)
		if err != nil {
			return nil, fmt.Errorf("chain entry %d (%s): %w", i, ref, err)
		}
		entries = append(entries, entry{ref: ref, client: client})
	}
	return entries, nil
}

// Settings returns the settings the connector was built with.
func (c *Connector) Settings() config.LLMSettings {
	return c.settings
}

// Chain returns the provider/model entries in the order they are tried.
func (c *Connector) Chain() []config.ProviderRef {
	refs := make([]config.ProviderRef, len(c.entries))
	for i, e := range c.entries {
		refs[i] = e.ref
	}
	return refs
}

// GenerateResponse sends prompt through the configured chain.
func (c *Connector) GenerateResponse(ctx context.Context, prompt fortune.PromptPair) (Result, error) {
	return c.generate(ctx, prompt, c.settings, c.entries)
}

// GenerateResponseWith sends prompt with per-call settings. Circuit state is shared
// with the configured chain for identical entries.
func (c *Connector) GenerateResponseWith(ctx context.Context, prompt fortune.PromptPair, settings config.LLMSettings) (Result, error) {
	entries, err := c.build(settings)
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.KindFatalLLM, err, "invalid LLM settings")
	}
	return c.generate(ctx, prompt, settings, entries)
}

func (c *Connector) generate(ctx context.Context, prompt fortune.PromptPair, settings config.LLMSettings, entries []entry) (Result, error) {
	messages := make([]llm.CompletionMessage, 0, 2)
	if prompt.System != "" {
		messages = append(messages, llm.NewSystemMessage(prompt.System))
	}
	messages = append(messages, llm.NewUserMessage(prompt.User))

	req := llm.NewCompletionRequest(messages)
	if settings.MaxTokens > 0 {
		req.MaxTokens = settings.MaxTokens
	}
	if settings.Temperature > 0 {
		req.Temperature = float32(settings.Temperature)
	}

	logx.Debug(ctx, "llm", "prompt for %s: %s", llm.SystemNameFrom(ctx), llmerrors.SanitizePrompt(prompt.User, 200))

	var (
		attempts []AttemptError
		retries  int
		calls    int
		lastErr  error
	)
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return Result{}, canceled(err)
		}

		tracker := &retry.Tracker{}
		start := time.Now()
		resp, err := e.client.Complete(retry.WithTracker(ctx, tracker), req)
		latency := time.Since(start)

		for _, f := range tracker.Failures() {
			attempts = append(attempts, AttemptError{
				Provider: e.ref.Provider, Model: e.ref.Model,
				Attempt: f.Number, FallbackIndex: i, Err: f.Err,
			})
			if f.Retried {
				c.factory.Recorder().IncRetry(e.ref.Provider, e.ref.Model, llmerrors.TypeOf(f.Err).String())
			}
		}
		retries += tracker.Retries()
		calls += tracker.Calls()

		if err == nil {
			usage := resp.Usage
			return Result{
				Text: resp.Content,
				Metadata: Metadata{
					Provider:     e.ref.Provider,
					Model:        e.ref.Model,
					FinishReason: resp.StopReason,
					TokenUsage: TokenUsage{
						Prompt:     usage.PromptTokens,
						Completion: usage.CompletionTokens,
						Total:      usage.TotalTokens,
						Estimated:  usage.Estimated,
					},
					Latency:       latency,
					RetryCount:    retries,
					Attempts:      calls,
					FallbackIndex: i,
				},
			}, nil
		}
		lastErr = err

		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return Result{}, canceled(err)
		}
		if llmerrors.IsFatal(err) {
			c.logger.Error("fatal error from %s: %v", e.ref, err)
			return Result{}, &FatalLLMError{Provider: e.ref.Provider, Model: e.ref.Model, Err: err}
		}

		var circuitErr *circuit.Error
		if errors.As(err, &circuitErr) {
			attempts = append(attempts, AttemptError{
				Provider: e.ref.Provider, Model: e.ref.Model, FallbackIndex: i, Err: err,
			})
		}

		if i+1 < len(entries) {
			next := entries[i+1].ref
			c.logger.Warn("%s exhausted (%v), falling back to %s", e.ref, err, next)
			c.factory.Recorder().IncFallback(e.ref.String(), next.String())
		}
	}

	chain := make([]config.ProviderRef, len(entries))
	for i, e := range entries {
		chain[i] = e.ref
	}
	c.logger.Error("all %d chain entries failed after %d retries: %v", len(entries), retries, lastErr)
	return Result{}, &RetryExhaustedError{Err: lastErr, Chain: chain, Attempts: attempts, RetryCount: retries}
}

func canceled(err error) error {
	return apperrors.Wrap(apperrors.KindCanceled, err, "LLM request canceled")
}
