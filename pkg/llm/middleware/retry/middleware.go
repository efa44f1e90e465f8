package retry

import (
	"context"
	"fmt"
	"time"

	"fortuneteller/pkg/llm"
	"fortuneteller/pkg/llm/llmerrors"
	"fortuneteller/pkg/logx"
)

// Middleware returns a middleware function that wraps an LLM client with retry logic.
// It will retry failed requests according to the configured policy, with exponential backoff.
// Exhausting the attempts on a retryable error yields a ServiceUnavailable error.
func Middleware(policy *Policy, logger *logx.Logger) llm.Middleware {
	if logger == nil {
		logger = logx.NewLogger("retry")
	}
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				tracker := trackerFrom(ctx)
				var (
					lastErr error
					delay   time.Duration
				)

				for attempt := 1; attempt <= policy.Config.MaxAttempts; attempt++ {
					if attempt > 1 {
						if err := policy.Sleep(ctx, delay); err != nil {
							return llm.CompletionResponse{}, fmt.Errorf("retry cancelled: %w", err)
						}
					}

					tracker.call()
					resp, err := next.Complete(ctx, req)
					if err == nil {
						return resp, nil
					}
					lastErr = err

					if ctx.Err() != nil {
						tracker.fail(Attempt{Number: attempt, Err: err})
						return llm.CompletionResponse{}, fmt.Errorf("retry cancelled: %w", ctx.Err())
					}

					retry := policy.ShouldRetry(err) && attempt < policy.Config.MaxAttempts
					a := Attempt{Number: attempt, Err: err, Retried: retry}
					if retry {
						delay = policy.CalculateDelay(attempt + 1)
						a.Delay = delay
						logger.Warn("model %s attempt %d/%d failed (%s): %v",
							next.GetModelName(), attempt, policy.Config.MaxAttempts, llmerrors.TypeOf(err), err)
					}
					tracker.fail(a)

					if !retry {
						break
					}
				}

				if policy.ShouldRetry(lastErr) {
					return llm.CompletionResponse{}, llmerrors.NewServiceUnavailableError(lastErr, policy.Config.MaxAttempts)
				}
				return llm.CompletionResponse{}, lastErr
			},
			next.GetModelName,
		)
	}
}
