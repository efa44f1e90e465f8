package connector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fortuneteller/pkg/apperrors"
	"fortuneteller/pkg/config"
	"fortuneteller/pkg/fortune"
	"fortuneteller/pkg/llm"
	"fortuneteller/pkg/llm/llmerrors"
	"fortuneteller/pkg/llm/middleware/metrics"
	"fortuneteller/pkg/llm/mock"
)

var prompt = fortune.PromptPair{System: "你是霄占", User: "请解读"}

func noSleep(context.Context, time.Duration) error { return nil }

type countingRecorder struct {
	retries   int
	fallbacks []string
	requests  int
	mu        sync.Mutex
}

func (r *countingRecorder) ObserveRequest(metrics.Request) {
	r.mu.Lock()
	r.requests++
	r.mu.Unlock()
}

func (r *countingRecorder) IncRetry(_, _, _ string) {
	r.mu.Lock()
	r.retries++
	r.mu.Unlock()
}

func (r *countingRecorder) IncFallback(from, to string) {
	r.mu.Lock()
	r.fallbacks = append(r.fallbacks, from+"->"+to)
	r.mu.Unlock()
}

func testSettings(retries int, fallback ...config.ProviderRef) config.LLMSettings {
	return config.LLMSettings{
		Provider:    config.ProviderMock,
		Model:       "primary",
		Fallback:    fallback,
		MaxRetries:  retries,
		MaxTokens:   500,
		Temperature: 0.3,
		Timeout:     time.Minute,
	}
}

func scripted(clients map[string]*mock.Client) Option {
	return WithClientFactory(func(ref config.ProviderRef, _ string) (llm.LLMClient, error) {
		c, ok := clients[ref.Model]
		if !ok {
			return nil, errors.New("no client for " + ref.Model)
		}
		return c, nil
	})
}

func transient() error {
	return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeTransient, 503, "upstream unavailable")
}

func TestGenerateResponseSuccess(t *testing.T) {
	primary := mock.NewClient("primary", mock.Step{Response: llm.CompletionResponse{
		Content: "# 总体解读\n好运", StopReason: llm.StopEndTurn,
		Usage: llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}})
	c, err := New(testSettings(3), scripted(map[string]*mock.Client{"primary": primary}), WithSleep(noSleep))
	require.NoError(t, err)

	res, err := c.GenerateResponse(context.Background(), prompt)
	require.NoError(t, err)

	assert.Equal(t, "# 总体解读\n好运", res.Text)
	assert.Equal(t, config.ProviderMock, res.Metadata.Provider)
	assert.Equal(t, "primary", res.Metadata.Model)
	assert.Equal(t, 15, res.Metadata.TokenUsage.Total)
	assert.Equal(t, 0, res.Metadata.RetryCount)
	assert.Equal(t, 1, res.Metadata.Attempts)
	assert.Equal(t, llm.StopEndTurn, res.Metadata.FinishReason)

	req := primary.Requests()[0]
	require.Len(t, req.Messages, 2)
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, 500, req.MaxTokens)
	assert.InDelta(t, 0.3, req.Temperature, 1e-6)
}

func TestTransientFailuresExhaustRetries(t *testing.T) {
	rec := &countingRecorder{}
	primary := mock.NewClient("primary", mock.Fail(transient()))
	c, err := New(testSettings(3), scripted(map[string]*mock.Client{"primary": primary}),
		WithSleep(noSleep), WithRecorder(rec))
	require.NoError(t, err)

	_, err = c.GenerateResponse(context.Background(), prompt)

	var exhausted *RetryExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 3, exhausted.RetryCount)
	assert.Len(t, exhausted.Attempts, 4)
	assert.Equal(t, 4, primary.Calls())
	assert.True(t, apperrors.Is(err, apperrors.KindRetryExhausted))
	assert.Equal(t, 3, rec.retries)
}

func TestFatalErrorIsNotRetried(t *testing.T) {
	primary := mock.NewClient("primary", mock.Fail(llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeAuth, 401, "bad key")))
	fallback := mock.NewClient("backup", mock.Reply("unused"))
	c, err := New(testSettings(3, config.ProviderRef{Provider: config.ProviderMock, Model: "backup"}),
		scripted(map[string]*mock.Client{"primary": primary, "backup": fallback}), WithSleep(noSleep))
	require.NoError(t, err)

	_, err = c.GenerateResponse(context.Background(), prompt)

	var fatal *FatalLLMError
	require.True(t, errors.As(err, &fatal))
	assert.Equal(t, "primary", fatal.Model)
	assert.True(t, apperrors.Is(err, apperrors.KindFatalLLM))
	assert.Equal(t, 1, primary.Calls())
	assert.Equal(t, 0, fallback.Calls())
}

func TestFallbackServesAfterPrimaryExhaustion(t *testing.T) {
	rec := &countingRecorder{}
	primary := mock.NewClient("primary", mock.Fail(transient()))
	backup := mock.NewClient("backup", mock.Fail(transient()), mock.Reply("# 总体解读\n来自备份"))
	settings := testSettings(1, config.ProviderRef{Provider: config.ProviderOllama, Model: "backup"})
	c, err := New(settings, scripted(map[string]*mock.Client{"primary": primary, "backup": backup}),
		WithSleep(noSleep), WithRecorder(rec))
	require.NoError(t, err)

	res, err := c.GenerateResponse(context.Background(), prompt)
	require.NoError(t, err)

	assert.Equal(t, config.ProviderOllama, res.Metadata.Provider)
	assert.Equal(t, "backup", res.Metadata.Model)
	assert.Equal(t, 1, res.Metadata.FallbackIndex)
	assert.Equal(t, 2, res.Metadata.RetryCount, "one retry on each entry")
	assert.Equal(t, 4, res.Metadata.Attempts)
	assert.Equal(t, 2, primary.Calls())
	assert.Equal(t, []string{"mock/primary->ollama/backup"}, rec.fallbacks)
	assert.Equal(t, []config.ProviderRef{
		{Provider: config.ProviderMock, Model: "primary"},
		{Provider: config.ProviderOllama, Model: "backup"},
	}, c.Chain())
}

func TestRetryCountSpansTheChain(t *testing.T) {
	primary := mock.NewClient("primary", mock.Fail(transient()))
	backup := mock.NewClient("backup", mock.Reply("备份作答"))
	settings := testSettings(2, config.ProviderRef{Provider: config.ProviderOllama, Model: "backup"})
	c, err := New(settings, scripted(map[string]*mock.Client{"primary": primary, "backup": backup}), WithSleep(noSleep))
	require.NoError(t, err)

	res, err := c.GenerateResponse(context.Background(), prompt)
	require.NoError(t, err)
	assert.Equal(t, 3, primary.Calls())
	assert.Equal(t, 1, res.Metadata.FallbackIndex)
	assert.Equal(t, 2, res.Metadata.RetryCount, "primary retries are kept after the fallback serves")
	assert.Equal(t, 4, res.Metadata.Attempts)
}

func TestEmptyCompletionIsRetried(t *testing.T) {
	primary := mock.NewClient("primary", mock.Reply(""), mock.Reply("星象吉利"))
	c, err := New(testSettings(2), scripted(map[string]*mock.Client{"primary": primary}), WithSleep(noSleep))
	require.NoError(t, err)

	res, err := c.GenerateResponse(context.Background(), prompt)
	require.NoError(t, err)
	assert.Equal(t, "星象吉利", res.Text)
	assert.Equal(t, 1, res.Metadata.RetryCount)
	assert.True(t, res.Metadata.TokenUsage.Estimated)
}

func TestCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	primary := mock.NewClient("primary", mock.Fail(transient()))
	backup := mock.NewClient("backup", mock.Reply("unused"))
	sleep := func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}
	c, err := New(testSettings(5, config.ProviderRef{Provider: config.ProviderMock, Model: "backup"}),
		scripted(map[string]*mock.Client{"primary": primary, "backup": backup}), WithSleep(sleep))
	require.NoError(t, err)

	_, err = c.GenerateResponse(ctx, prompt)

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindCanceled))
	assert.Equal(t, 1, primary.Calls())
	assert.Equal(t, 0, backup.Calls())
}

func TestGenerateResponseWithOverrides(t *testing.T) {
	primary := mock.NewClient("primary", mock.Reply("默认"))
	other := mock.NewClient("other", mock.Reply("覆盖"))
	c, err := New(testSettings(0), scripted(map[string]*mock.Client{"primary": primary, "other": other}))
	require.NoError(t, err)

	override := testSettings(0)
	override.Model = "other"
	res, err := c.GenerateResponseWith(context.Background(), prompt, override)
	require.NoError(t, err)
	assert.Equal(t, "覆盖", res.Text)
	assert.Equal(t, 0, primary.Calls())

	override.Model = ""
	_, err = c.GenerateResponseWith(context.Background(), prompt, override)
	assert.Error(t, err)
}

func TestNewFailsOnMissingClient(t *testing.T) {
	_, err := New(testSettings(0, config.ProviderRef{Provider: config.ProviderMock, Model: "ghost"}),
		scripted(map[string]*mock.Client{"primary": mock.NewClient("primary")}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}
