package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fortuneteller/pkg/llm"
	"fortuneteller/pkg/llm/llmerrors"
	"fortuneteller/pkg/logx"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 25, 23, 58, 0, 0, time.UTC)}
}

func TestBucketRefillsOverTime(t *testing.T) {
	clk := newClock()
	l := New(Config{TokensPerMinute: 100}, clk.now)

	require.NoError(t, l.Reserve(80))
	assert.ErrorIs(t, l.Reserve(30), ErrRateLimit)

	clk.advance(6 * time.Second)
	require.NoError(t, l.Reserve(30))
	assert.Equal(t, 0, l.Status().Tokens)

	clk.advance(5 * time.Minute)
	assert.Equal(t, 100, l.Status().Tokens, "refill is capped at one minute of tokens")
}

func TestOversizedRequestTakesWholeBucket(t *testing.T) {
	l := New(Config{TokensPerMinute: 100}, newClock().now)
	require.NoError(t, l.Reserve(500))
	assert.ErrorIs(t, l.Reserve(1), ErrRateLimit)
}

func TestDailyBudgetResetsAtMidnight(t *testing.T) {
	clk := newClock()
	l := New(Config{DailyTokens: 1000}, clk.now)

	require.NoError(t, l.Reserve(900))
	l.Commit(900, 600)
	assert.Equal(t, 600, l.Status().UsedToday)

	require.NoError(t, l.Reserve(400))
	err := l.Reserve(1)
	assert.ErrorIs(t, err, ErrBudgetExceeded)
	assert.ErrorIs(t, err, llmerrors.ErrThrottled)

	l.Commit(400, 0)
	assert.Equal(t, 600, l.Status().UsedToday, "failed calls get their reservation back")

	clk.advance(3 * time.Minute)
	assert.Equal(t, 0, l.Status().UsedToday)
	require.NoError(t, l.Reserve(1000))
}

func TestAcquireWaitsForSlot(t *testing.T) {
	l := New(Config{MaxConcurrent: 1}, nil)

	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, l.Status().Active)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release()
	assert.Equal(t, 0, l.Status().Active)

	release, err = l.Acquire(context.Background())
	require.NoError(t, err)
	release()
}

func TestUnlimitedConfig(t *testing.T) {
	l := New(Config{}, nil)
	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	defer release()
	require.NoError(t, l.Reserve(1_000_000))
}

func fixedClient(usage llm.Usage, err error) llm.LLMClient {
	return llm.WrapClient(
		func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
			if err != nil {
				return llm.CompletionResponse{}, err
			}
			return llm.CompletionResponse{Content: "卦象已成", Usage: usage}, nil
		},
		func() string { return "m" },
	)
}

func request(maxTokens int) llm.CompletionRequest {
	return llm.CompletionRequest{MaxTokens: maxTokens}
}

func TestMiddlewareCommitsActualUsage(t *testing.T) {
	l := New(Config{DailyTokens: 1000}, newClock().now)
	client := Middleware(l, "mock/m", logx.NewLogger("test"))(fixedClient(llm.Usage{TotalTokens: 42}, nil))

	_, err := client.Complete(context.Background(), request(500))
	require.NoError(t, err)
	assert.Equal(t, 42, l.Status().UsedToday)

	failing := Middleware(l, "mock/m", logx.NewLogger("test"))(fixedClient(llm.Usage{}, errors.New("boom")))
	_, err = failing.Complete(context.Background(), request(500))
	require.Error(t, err)
	assert.Equal(t, 42, l.Status().UsedToday)
}

func TestMiddlewareClassifiesThrottling(t *testing.T) {
	clk := newClock()
	logger := logx.NewLogger("test")

	bucket := New(Config{TokensPerMinute: 10}, clk.now)
	client := Middleware(bucket, "mock/m", logger)(fixedClient(llm.Usage{TotalTokens: 10}, nil))
	_, err := client.Complete(context.Background(), request(10))
	require.NoError(t, err)
	_, err = client.Complete(context.Background(), request(10))
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeRateLimit))
	assert.True(t, llmerrors.IsRetryable(err))

	budget := New(Config{DailyTokens: 5}, clk.now)
	client = Middleware(budget, "mock/m", logger)(fixedClient(llm.Usage{TotalTokens: 1}, nil))
	_, err = client.Complete(context.Background(), request(10))
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeServiceUnavailable))
	assert.False(t, llmerrors.IsRetryable(err))
	assert.False(t, llmerrors.IsFatal(err))
	assert.ErrorIs(t, err, llmerrors.ErrThrottled)
}
