package circuit

import (
	"context"
	"errors"

	"fortuneteller/pkg/llm"
	"fortuneteller/pkg/llm/llmerrors"
)

// Middleware returns a middleware function that wraps an LLM client with circuit breaker logic.
// If the circuit is OPEN, requests are rejected immediately without calling the underlying client.
// Cancellation, local throttling and fatal request errors do not count against the provider.
func Middleware(breaker Breaker, provider string) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				if !breaker.Allow() {
					return llm.CompletionResponse{}, &Error{Provider: provider, State: breaker.GetState()}
				}

				resp, err := next.Complete(ctx, req)
				switch {
				case err == nil:
					breaker.Record(true)
				case errors.Is(err, context.Canceled), errors.Is(err, llmerrors.ErrThrottled),
					llmerrors.Is(err, llmerrors.ErrorTypeBadPrompt):
				default:
					breaker.Record(false)
				}

				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.GetModelName,
		)
	}
}
