// Package openaiofficial provides the OpenAI adapter built on the official SDK's Responses API.
package openaiofficial

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"fortuneteller/pkg/llm"
	"fortuneteller/pkg/llm/llmerrors"
)

// OfficialClient wraps the OpenAI SDK client to implement llm.LLMClient.
type OfficialClient struct {
	client openai.Client
	model  string
}

// NewOfficialClientWithModel creates a raw OpenAI client; middleware is applied by the caller.
func NewOfficialClientWithModel(apiKey, model string, opts ...option.RequestOption) llm.LLMClient {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	return &OfficialClient{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// buildInput flattens the conversation into the Responses API input text.
// System messages become instructions.
func buildInput(messages []llm.CompletionMessage) (instructions, input string) {
	system, rest := llm.SplitSystem(messages)
	var b strings.Builder
	for i := range rest {
		msg := &rest[i]
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if msg.Role == llm.RoleAssistant {
			b.WriteString("Assistant: ")
		}
		b.WriteString(msg.Content)
	}
	return system, b.String()
}

// Complete sends one Responses API request.
func (o *OfficialClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	instructions, input := buildInput(in.Messages)
	if strings.TrimSpace(input) == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "no user input to send")
	}

	params := responses.ResponseNewParams{
		Model: o.model,
		Input: responses.ResponseNewParamsInputUnion{OfString: openai.String(input)},
	}
	if in.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(in.MaxTokens))
	}
	if instructions != "" {
		params.Instructions = openai.String(instructions)
	}
	if in.Temperature > 0 {
		params.Temperature = openai.Float(float64(in.Temperature))
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from OpenAI Responses API")
	}

	stop := llm.StopEndTurn
	if resp.Status == "incomplete" {
		stop = llm.StopMaxTokens
	}

	return llm.CompletionResponse{
		Content:    resp.OutputText(),
		StopReason: stop,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// GetModelName returns the configured model.
func (o *OfficialClient) GetModelName() string {
	return o.model
}

func classifyError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if typ, ok := llmerrors.ClassifyStatus(apiErr.StatusCode); ok {
			e := llmerrors.NewErrorWithCause(typ, err, fmt.Sprintf("OpenAI API returned %d", apiErr.StatusCode))
			e.StatusCode = apiErr.StatusCode
			return e
		}
	}
	return llmerrors.NewErrorWithCause(llmerrors.ClassifyMessage(err), err, "OpenAI Responses API failed")
}
