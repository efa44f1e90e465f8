// Package google provides the Gemini adapter for the llm.LLMClient interface.
package google

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/genai"

	"fortuneteller/pkg/llm"
	"fortuneteller/pkg/llm/llmerrors"
)

// GeminiClient wraps the genai client to implement llm.LLMClient.
// The SDK client is created lazily on first use.
type GeminiClient struct {
	client  *genai.Client
	baseURL string
	apiKey  string
	model   string
	mu      sync.Mutex
}

// NewGeminiClientWithModel creates a raw Gemini client; middleware is applied by the caller.
// baseURL overrides the API endpoint and may be empty.
func NewGeminiClientWithModel(apiKey, model, baseURL string) llm.LLMClient {
	return &GeminiClient{apiKey: apiKey, model: model, baseURL: baseURL}
}

func (g *GeminiClient) sdk(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	cfg := &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if g.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	g.client = client
	return client, nil
}

// convertMessages maps the conversation to Gemini contents. Gemini names the
// assistant role "model" and takes the system prompt as a separate instruction.
func convertMessages(messages []llm.CompletionMessage) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("message list cannot be empty")
	}
	system, rest := llm.SplitSystem(messages)

	contents := make([]*genai.Content, 0, len(rest))
	for i := range rest {
		msg := &rest[i]
		var role string
		switch msg.Role {
		case llm.RoleUser:
			role = "user"
		case llm.RoleAssistant:
			role = "model"
		default:
			return nil, "", fmt.Errorf("unsupported message role: %s", msg.Role)
		}
		if msg.Content == "" {
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}
	if len(contents) == 0 {
		return nil, "", fmt.Errorf("must have at least one non-system message")
	}
	return contents, system, nil
}

// Complete sends one GenerateContent request.
func (g *GeminiClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	contents, systemInstruction, err := convertMessages(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}

	client, err := g.sdk(ctx)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "failed to create Gemini client")
	}

	temperature := in.Temperature
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(in.MaxTokens),
	}
	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}}
	}

	result, err := client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if result == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Gemini API")
	}

	resp := llm.CompletionResponse{
		Content:    result.Text(),
		StopReason: stopReason(result),
	}
	if u := result.UsageMetadata; u != nil {
		resp.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return resp, nil
}

// GetModelName returns the configured model.
func (g *GeminiClient) GetModelName() string {
	return g.model
}

func stopReason(result *genai.GenerateContentResponse) string {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0] == nil {
		return llm.StopEndTurn
	}
	switch result.Candidates[0].FinishReason {
	case genai.FinishReasonMaxTokens:
		return llm.StopMaxTokens
	case genai.FinishReasonStop, genai.FinishReasonUnspecified, "":
		return llm.StopEndTurn
	default:
		return string(result.Candidates[0].FinishReason)
	}
}

func classifyError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if typ, ok := llmerrors.ClassifyStatus(apiErr.Code); ok {
			e := llmerrors.NewErrorWithCause(typ, err, fmt.Sprintf("Gemini API returned %d", apiErr.Code))
			e.StatusCode = apiErr.Code
			return e
		}
	}
	return llmerrors.NewErrorWithCause(llmerrors.ClassifyMessage(err), err, "Gemini API call failed")
}
