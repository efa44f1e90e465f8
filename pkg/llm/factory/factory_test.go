package factory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fortuneteller/pkg/config"
	"fortuneteller/pkg/llm"
	"fortuneteller/pkg/llm/llmerrors"
	"fortuneteller/pkg/llm/middleware/circuit"
	"fortuneteller/pkg/llm/mock"
)

func noSleep(context.Context, time.Duration) error { return nil }

func settings(retries int) config.LLMSettings {
	return config.LLMSettings{
		Provider:   config.ProviderMock,
		Model:      "mock",
		MaxRetries: retries,
		Circuit:    config.CircuitSettings{Enabled: true, FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Hour},
	}
}

func TestNewRawClientProviders(t *testing.T) {
	t.Setenv(config.EnvAnthropicAPIKey, "a")
	t.Setenv(config.EnvOpenAIAPIKey, "o")
	t.Setenv(config.EnvGoogleAPIKey, "g")
	t.Setenv(config.EnvAWSAccessKeyID, "AKIDEXAMPLE")
	t.Setenv(config.EnvAWSSecretAccessKey, "secret")
	t.Setenv("AWS_CONFIG_FILE", t.TempDir()+"/none")
	t.Setenv(config.EnvAWSProfile, "")

	for _, ref := range []config.ProviderRef{
		{Provider: config.ProviderAnthropic, Model: "claude-sonnet-4"},
		{Provider: config.ProviderBedrock, Model: "anthropic.claude-3-sonnet-20240229-v1:0", Region: "us-west-2"},
		{Provider: config.ProviderOpenAI, Model: "gpt-4o"},
		{Provider: config.ProviderGoogle, Model: "gemini-2.5-flash"},
		{Provider: config.ProviderOllama, Model: "qwen2"},
		{Provider: config.ProviderMock, Model: "mock"},
	} {
		client, err := NewRawClient(ref, "")
		require.NoError(t, err, ref.String())
		assert.Equal(t, ref.Model, client.GetModelName())
	}

	_, err := NewRawClient(config.ProviderRef{Provider: "bogus", Model: "x"}, "")
	assert.Error(t, err)
}

func TestNewRawClientMissingKey(t *testing.T) {
	t.Cleanup(config.ClearSecrets)
	t.Setenv(config.EnvAnthropicAPIKey, "")
	_, err := NewRawClient(config.ProviderRef{Provider: config.ProviderAnthropic, Model: "claude"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), config.EnvAnthropicAPIKey)
}

func TestCreateClientRetriesEmptyResponses(t *testing.T) {
	scripted := mock.NewClient("mock", mock.Reply("   "), mock.Reply("命运之轮转动"))
	f := New(WithSleep(noSleep), WithRawClient(func(config.ProviderRef, string) (llm.LLMClient, error) {
		return scripted, nil
	}))

	client, err := f.CreateClient(settings(2), config.ProviderRef{Provider: config.ProviderMock, Model: "mock"})
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	require.NoError(t, err)
	assert.Equal(t, "命运之轮转动", resp.Content)
	assert.Equal(t, 2, scripted.Calls())
	assert.True(t, resp.Usage.Estimated)
}

func TestCircuitIsSharedPerEntry(t *testing.T) {
	scripted := mock.NewClient("mock", mock.Fail(llmerrors.NewError(llmerrors.ErrorTypeTransient, "503")))
	f := New(WithSleep(noSleep), WithRawClient(func(config.ProviderRef, string) (llm.LLMClient, error) {
		return scripted, nil
	}))
	ref := config.ProviderRef{Provider: config.ProviderMock, Model: "mock"}
	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")})

	for i := 0; i < 2; i++ {
		client, err := f.CreateClient(settings(0), ref)
		require.NoError(t, err)
		_, err = client.Complete(context.Background(), req)
		require.Error(t, err)
	}

	client, err := f.CreateClient(settings(0), ref)
	require.NoError(t, err)
	_, err = client.Complete(context.Background(), req)

	var circuitErr *circuit.Error
	require.True(t, errors.As(err, &circuitErr))
	assert.Equal(t, circuit.Open, circuitErr.State)
	assert.Equal(t, 2, scripted.Calls())
}

func TestRateLimitIsSharedPerEntry(t *testing.T) {
	scripted := mock.NewClient("mock", mock.Reply("天机不可泄露"))
	f := New(WithSleep(noSleep), WithRawClient(func(config.ProviderRef, string) (llm.LLMClient, error) {
		return scripted, nil
	}))
	s := settings(2)
	s.RateLimit = config.RateLimitSettings{DailyTokens: 3000}
	ref := config.ProviderRef{Provider: config.ProviderMock, Model: "mock"}

	first, err := f.CreateClient(s, ref)
	require.NoError(t, err)
	second, err := f.CreateClient(s, ref)
	require.NoError(t, err)
	assert.Same(t, f.Limiter(ref, s.RateLimit), f.Limiter(ref, s.RateLimit))

	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")})
	req.MaxTokens = 2000
	_, err = first.Complete(context.Background(), req)
	require.NoError(t, err)

	// The first call committed only its real usage, so a second 2000-token reservation fits.
	_, err = second.Complete(context.Background(), req)
	require.NoError(t, err)

	req.MaxTokens = 3000
	_, err = second.Complete(context.Background(), req)
	require.Error(t, err)
	assert.True(t, llmerrors.IsServiceUnavailable(err))
	assert.ErrorIs(t, err, llmerrors.ErrThrottled)
	assert.Equal(t, 2, scripted.Calls(), "an exhausted budget is neither sent nor retried")
}
