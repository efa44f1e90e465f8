package openaiofficial

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fortuneteller/pkg/llm"
	"fortuneteller/pkg/llm/llmerrors"
)

func TestBuildInput(t *testing.T) {
	instructions, input := buildInput([]llm.CompletionMessage{
		llm.NewSystemMessage("你是霄占"),
		llm.NewUserMessage("你好"),
		llm.NewAssistantMessage("哈哈，欢迎"),
		llm.NewUserMessage("看看事业"),
	})

	assert.Equal(t, "你是霄占", instructions)
	assert.Equal(t, "你好\n\nAssistant: 哈哈，欢迎\n\n看看事业", input)
}

func TestCompleteRejectsEmptyInput(t *testing.T) {
	client := NewOfficialClientWithModel("sk", "gpt-4")
	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(
		[]llm.CompletionMessage{llm.NewSystemMessage("only system")}))
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeBadPrompt))
}

func TestCompleteClassifiesAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	client := NewOfficialClientWithModel("sk-bad", "gpt-4", option.WithBaseURL(srv.URL))
	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(
		[]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	require.Error(t, err)
	assert.Equal(t, llmerrors.ErrorTypeAuth, llmerrors.TypeOf(err))
}

func TestGetModelName(t *testing.T) {
	assert.Equal(t, "gpt-4o", NewOfficialClientWithModel("k", "gpt-4o").GetModelName())
}
