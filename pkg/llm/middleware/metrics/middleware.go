package metrics

import (
	"context"
	"errors"
	"time"

	"fortuneteller/pkg/llm"
	"fortuneteller/pkg/llm/llmerrors"
	"fortuneteller/pkg/llm/middleware/circuit"
	"fortuneteller/pkg/logx"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// UsageExtractor fills in token usage for a completed request.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) llm.Usage

// DefaultUsageExtractor keeps provider-reported usage and estimates it with tiktoken otherwise.
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) llm.Usage {
	return llm.EnsureUsage(req, resp).Usage
}

// Middleware returns a middleware function that records metrics for LLM operations.
// It tracks request latency, token usage, success/failure rates, and error types.
// The response passed up carries the extracted usage.
func Middleware(recorder Recorder, provider string, usageExtractor UsageExtractor, logger *logx.Logger) llm.Middleware {
	if recorder == nil {
		recorder = Nop()
	}
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				model := next.GetModelName()

				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				if err == nil {
					resp.Usage = usageExtractor(req, resp)
				}

				recorder.ObserveRequest(Request{
					Provider:  provider,
					Model:     model,
					System:    llm.SystemNameFrom(ctx),
					ErrorType: errorType(err),
					Usage:     resp.Usage,
					Duration:  duration,
					Success:   err == nil,
				})

				if logger != nil {
					status := statusSuccess
					if err != nil {
						status = statusError
					}
					logger.Info("LLM request: provider=%s model=%s tokens=%d+%d=%d status=%s duration=%dms",
						provider, model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens,
						resp.Usage.TotalTokens, status, duration.Milliseconds())
				}

				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.GetModelName,
		)
	}
}

// errorType classifies errors for metrics labeling.
func errorType(err error) string {
	if err == nil {
		return ""
	}
	var circuitErr *circuit.Error
	switch {
	case errors.As(err, &circuitErr):
		return "circuit_breaker"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return llmerrors.TypeOf(err).String()
	}
}
