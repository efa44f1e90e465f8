package orchestrator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fortuneteller/pkg/apperrors"
	"fortuneteller/pkg/fortune"
)

func TestChatWithoutSessionUsesGenericPersona(t *testing.T) {
	gen := &scriptedGenerator{text: " 你好，我是霄占。 "}
	o := New(registry(t, newEcho()), gen)

	chat, greeting, err := o.StartChat(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "你好，我是霄占。", greeting)
	assert.Equal(t, fortune.DefaultChatPrompt, gen.last().System)
	assert.Equal(t, GreetingPrompt, gen.last().User)
	assert.Equal(t, StateChatting, o.State())

	_, err = o.PerformReading(context.Background(), "echo", fortune.RawInput{"q": "hi"})
	assert.Contains(t, err.Error(), "orchestrator busy")

	chat.Close()
	chat.Close()
	assert.Equal(t, StateIdle, o.State())

	_, err = chat.Send(context.Background(), "还在吗")
	assert.ErrorIs(t, err, ErrChatClosed)
}

func TestChatWindowAndSessionUntouched(t *testing.T) {
	gen := &scriptedGenerator{text: "OK"}
	o := New(registry(t, newEcho()), gen)
	_, err := o.PerformReading(context.Background(), "echo", fortune.RawInput{"q": "hi"})
	require.NoError(t, err)
	before, _ := o.Session()

	chat, _, err := o.StartChat(context.Background())
	require.NoError(t, err)
	defer chat.Close()

	for i := 1; i <= 4; i++ {
		gen.text = fmt.Sprintf("回复%d", i)
		reply, err := chat.Send(context.Background(), fmt.Sprintf("问题%d", i))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("回复%d", i), reply)
	}

	p := gen.last()
	assert.Contains(t, p.User, "求测者刚刚说: \"问题4\"")
	assert.NotContains(t, p.User, "问题1", "only the last five entries are folded in")
	assert.Contains(t, p.User, "用户: 问题2\n霄占: 回复2\n用户: 问题3\n霄占: 回复3\n用户: 问题4")

	_, err = chat.Send(context.Background(), "   ")
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidInput))

	after, _ := o.Session()
	assert.Equal(t, before, after)
}

func TestChatGreetingFailureReleasesOrchestrator(t *testing.T) {
	gen := &scriptedGenerator{err: apperrors.New(apperrors.KindRetryExhausted, "down")}
	o := New(registry(t, newEcho()), gen)

	_, _, err := o.StartChat(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateIdle, o.State())
}

func TestResumeChatTrimsHistory(t *testing.T) {
	o := New(registry(t, newEcho()), &scriptedGenerator{text: "OK"})
	history := []string{"用户: 1", "霄占: 1", "用户: 2", "霄占: 2", "用户: 3", "霄占: 3", "用户: 4"}

	chat, err := o.ResumeChat(context.Background(), history)
	require.NoError(t, err)
	defer chat.Close()
	assert.Equal(t, history[2:], chat.History())
	assert.Equal(t, fortune.DefaultChatPrompt, chat.Persona())
}
