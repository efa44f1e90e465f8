// Package validation provides response validation middleware for LLM clients.
package validation

import (
	"context"
	"strings"

	"fortuneteller/pkg/llm"
	"fortuneteller/pkg/llm/llmerrors"
	"fortuneteller/pkg/logx"
)

// EmptyResponseValidator turns blank completions into retryable errors.
type EmptyResponseValidator struct {
	logger *logx.Logger
}

// NewEmptyResponseValidator creates a new validator.
func NewEmptyResponseValidator(logger *logx.Logger) *EmptyResponseValidator {
	if logger == nil {
		logger = logx.NewLogger("empty-response-validator")
	}
	return &EmptyResponseValidator{logger: logger}
}

// Middleware returns a middleware that rejects responses with no text.
// Whitespace-only content counts as empty. Truncated responses pass but are logged.
func (v *EmptyResponseValidator) Middleware() llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err != nil {
					return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
				}

				if strings.TrimSpace(resp.Content) == "" {
					v.logger.Warn("empty response from %s (stop_reason=%q)", next.GetModelName(), resp.StopReason)
					return llm.CompletionResponse{}, llmerrors.NewError(
						llmerrors.ErrorTypeEmptyResponse,
						"model returned no text",
					)
				}

				if resp.StopReason == llm.StopMaxTokens {
					v.logger.Warn("response from %s hit the token limit (%d chars)", next.GetModelName(), len(resp.Content))
				}
				return resp, nil
			},
			next.GetModelName,
		)
	}
}
