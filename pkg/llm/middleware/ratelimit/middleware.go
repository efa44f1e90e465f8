package ratelimit

import (
	"context"
	"errors"

	"fortuneteller/pkg/llm"
	"fortuneteller/pkg/llm/llmerrors"
	"fortuneteller/pkg/logx"
)

// Estimate is the reservation for a request: its prompt tokens plus the completion allowance.
func Estimate(req llm.CompletionRequest) int {
	n := req.MaxTokens
	for i := range req.Messages {
		n += llm.CountTokens(req.Messages[i].Content)
	}
	return n
}

// Middleware limits calls to next. An empty bucket is a retryable rate-limit error; a spent
// daily budget is service_unavailable so the connector moves on to the next chain entry.
func Middleware(l *Limiter, name string, logger *logx.Logger) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				release, err := l.Acquire(ctx)
				if err != nil {
					return llm.CompletionResponse{}, err
				}
				defer release()

				need := Estimate(req)
				if err := l.Reserve(need); err != nil {
					st := l.Status()
					logger.Warn("%s throttled: %v (bucket=%d, used_today=%d, need=%d)", name, err, st.Tokens, st.UsedToday, need)
					if errors.Is(err, ErrBudgetExceeded) {
						return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeServiceUnavailable, err, err.Error())
					}
					return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeRateLimit, err, err.Error())
				}

				resp, err := next.Complete(ctx, req)
				used := 0
				if err == nil {
					used = llm.EnsureUsage(req, resp).Usage.TotalTokens
				}
				l.Commit(need, used)
				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.GetModelName,
		)
	}
}
