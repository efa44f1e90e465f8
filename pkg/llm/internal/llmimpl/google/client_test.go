package google

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"fortuneteller/pkg/llm"
)

func TestConvertMessages(t *testing.T) {
	contents, system, err := convertMessages([]llm.CompletionMessage{
		llm.NewSystemMessage("占星师"),
		llm.NewUserMessage("我的星座"),
		llm.NewAssistantMessage("白羊座"),
		llm.NewUserMessage("再说说"),
	})
	require.NoError(t, err)

	assert.Equal(t, "占星师", system)
	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "再说说", contents[2].Parts[0].Text)
}

func TestConvertMessagesErrors(t *testing.T) {
	_, _, err := convertMessages(nil)
	assert.Error(t, err)

	_, _, err = convertMessages([]llm.CompletionMessage{llm.NewSystemMessage("only")})
	assert.Error(t, err)

	_, _, err = convertMessages([]llm.CompletionMessage{{Role: "tool", Content: "x"}})
	assert.Error(t, err)
}

func TestStopReason(t *testing.T) {
	assert.Equal(t, llm.StopEndTurn, stopReason(nil))
	assert.Equal(t, llm.StopMaxTokens, stopReason(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonMaxTokens}},
	}))
	assert.Equal(t, llm.StopEndTurn, stopReason(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonStop}},
	}))
}

func TestGetModelName(t *testing.T) {
	assert.Equal(t, "gemini-2.5-flash", NewGeminiClientWithModel("k", "gemini-2.5-flash", "").GetModelName())
}
