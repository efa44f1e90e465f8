package llm

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

//nolint:gochecknoglobals // codec is expensive to build and safe to share
var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

func sharedCodec() tokenizer.Codec {
	codecOnce.Do(func() {
		c, err := tokenizer.ForModel(tokenizer.GPT4)
		if err == nil {
			codec = c
		}
	})
	return codec
}

// CountTokens returns the GPT-4 token count of text. All providers are approximated
// with the same encoding. Falls back to 4 bytes per token when the codec is unavailable.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	c := sharedCodec()
	if c == nil {
		return len(text) / 4
	}
	n, err := c.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return n
}

// EstimateUsage estimates token usage for a request/response pair.
func EstimateUsage(req CompletionRequest, content string) Usage {
	prompt := 0
	for i := range req.Messages {
		prompt += CountTokens(req.Messages[i].Content)
	}
	completion := CountTokens(content)
	return Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
		Estimated:        true,
	}
}

// EnsureUsage fills resp.Usage with an estimate when the provider reported none.
func EnsureUsage(req CompletionRequest, resp CompletionResponse) CompletionResponse {
	if resp.Usage.IsZero() {
		resp.Usage = EstimateUsage(req, resp.Content)
	} else if resp.Usage.TotalTokens == 0 {
		resp.Usage.TotalTokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens
	}
	return resp
}
