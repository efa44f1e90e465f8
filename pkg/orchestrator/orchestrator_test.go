package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fortuneteller/pkg/apperrors"
	"fortuneteller/pkg/config"
	"fortuneteller/pkg/fortune"
	"fortuneteller/pkg/llm/connector"
	"fortuneteller/pkg/plugin"
	"fortuneteller/pkg/plugins"
)

// echoSystem passes its input through and wraps model text as 总体解读.
type echoSystem struct {
	fortune.Base
	panicOn string
}

func newEcho() *echoSystem {
	return &echoSystem{Base: fortune.NewBase("echo", "回声", "echoes its input")}
}

func (e *echoSystem) RequiredInputs() []fortune.InputField {
	return []fortune.InputField{{Name: "q", Type: fortune.InputText, Required: true}}
}

func (e *echoSystem) ValidateInput(raw fortune.RawInput) (fortune.ValidatedInput, error) {
	if raw.Trimmed("q") == "" {
		return nil, apperrors.InvalidInput("q is required")
	}
	return fortune.ValidatedInput{"q": raw.Trimmed("q")}, nil
}

func (e *echoSystem) ProcessData(in fortune.ValidatedInput) (fortune.ProcessedData, error) {
	if e.panicOn == in.Get("q") {
		panic("boom")
	}
	return in, nil
}

func (e *echoSystem) GenerateLLMPrompt(pd fortune.ProcessedData) (fortune.PromptPair, error) {
	return fortune.PromptPair{System: "echo", User: pd.(fortune.ValidatedInput).Get("q")}, nil
}

func (e *echoSystem) FormatResult(text string) fortune.Sections {
	return fortune.Sections{{Title: "总体解读", Body: text}}
}

func (e *echoSystem) DisplayProcessedData(fortune.ProcessedData) fortune.Display {
	return fortune.Display{}
}

// scriptedGenerator replies with text (or err) and records prompts.
type scriptedGenerator struct {
	err     error
	block   chan struct{}
	text    string
	prompts []fortune.PromptPair
	mu      sync.Mutex
}

func (g *scriptedGenerator) GenerateResponse(ctx context.Context, p fortune.PromptPair) (connector.Result, error) {
	if g.block != nil {
		<-g.block
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, p)
	if g.err != nil {
		return connector.Result{}, g.err
	}
	return connector.Result{Text: g.text, Metadata: connector.Metadata{Provider: "stub", Model: "stub"}}, nil
}

func (g *scriptedGenerator) last() fortune.PromptPair {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prompts[len(g.prompts)-1]
}

func registry(t *testing.T, systems ...fortune.System) *plugin.Manager {
	t.Helper()
	m := plugin.NewManager()
	for _, s := range systems {
		require.NoError(t, m.Register(s))
	}
	m.Seal()
	return m
}

var fixedNow = time.Date(2024, 3, 25, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func TestEchoReadingAndInvalidTopic(t *testing.T) {
	gen := &scriptedGenerator{text: "OK"}
	o := New(registry(t, newEcho()), gen, WithClock(clock))

	res, err := o.PerformReading(context.Background(), "echo", fortune.RawInput{"q": "hi"})
	require.NoError(t, err)
	assert.Equal(t, fortune.Sections{{Title: "总体解读", Body: "OK"}}, res.Content)
	assert.Equal(t, "echo", res.Metadata.SystemName)
	assert.Equal(t, fixedNow, res.Metadata.Timestamp)
	assert.Equal(t, map[string]string{"q": "hi"}, res.Metadata.Inputs)
	assert.Equal(t, FormatVersion, res.FormatVersion)
	assert.Equal(t, StateIdle, o.State())

	_, err = o.PerformFollowupReading(context.Background(), "🌟 核心启示")
	require.Error(t, err)
	var topicErr *apperrors.InvalidTopicError
	require.ErrorAs(t, err, &topicErr)
	assert.Equal(t, []string{"性格特点", "事业财运", "感情姻缘", "健康提示", "大运流年"}, topicErr.Valid)
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidTopic))
}

func TestChatTopicHandsOffToChat(t *testing.T) {
	gen := &scriptedGenerator{text: "OK"}
	o := New(registry(t, newEcho()), gen)

	_, err := o.PerformReading(context.Background(), "echo", fortune.RawInput{"q": "hi"})
	require.NoError(t, err)

	topics := o.Topics()
	chatLabel := topics[len(topics)-1]
	require.True(t, IsChatTopic(chatLabel))

	_, err = o.PerformFollowupReading(context.Background(), chatLabel)
	require.ErrorIs(t, err, ErrChatTopic)
	assert.False(t, apperrors.Is(err, apperrors.KindInvalidTopic))
	assert.Equal(t, StateIdle, o.State())
	assert.Len(t, gen.prompts, 1, "no follow-up request is sent")

	c, greeting, err := o.StartChat(context.Background())
	require.NoError(t, err)
	defer c.Close()
	assert.NotEmpty(t, greeting)
}

func TestUnknownSystemAndNoSession(t *testing.T) {
	o := New(registry(t, newEcho()), &scriptedGenerator{text: "OK"})

	_, err := o.PerformFollowupReading(context.Background(), "性格特点")
	assert.True(t, apperrors.Is(err, apperrors.KindNoActiveSession))
	assert.Equal(t, "请先进行主要解读，然后再询问具体方面。", err.Error())

	_, err = o.PerformReading(context.Background(), "echo", fortune.RawInput{"q": "first"})
	require.NoError(t, err)

	_, err = o.PerformReading(context.Background(), "astrology", fortune.RawInput{"q": "lost"})
	assert.True(t, apperrors.Is(err, apperrors.KindUnknownSystem))
	assert.Equal(t, "未找到占卜系统: astrology", err.Error())

	sess, ok := o.Session()
	require.True(t, ok)
	assert.Equal(t, "first", sess.Inputs.Get("q"), "failed reading leaves the session alone")

	res, err := o.PerformReading(context.Background(), "echo", fortune.RawInput{"q": "second"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"q": "second"}, res.Metadata.Inputs)
	sess, _ = o.Session()
	assert.Equal(t, "echo", sess.SystemName)
	assert.Equal(t, fortune.ValidatedInput{"q": "second"}, sess.Inputs)
	assert.Equal(t, fortune.ValidatedInput{"q": "second"}, sess.Processed)
}

func TestFailedReadingKeepsPreviousSession(t *testing.T) {
	echo := newEcho()
	echo.panicOn = "explode"
	gen := &scriptedGenerator{text: "OK"}
	o := New(registry(t, echo), gen)

	_, err := o.PerformReading(context.Background(), "echo", fortune.RawInput{"q": "first"})
	require.NoError(t, err)

	_, err = o.PerformReading(context.Background(), "echo", fortune.RawInput{})
	var re *apperrors.ReadingError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, apperrors.StageValidate, re.Stage)
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidInput))

	_, err = o.PerformReading(context.Background(), "echo", fortune.RawInput{"q": "explode"})
	require.ErrorAs(t, err, &re)
	assert.Equal(t, apperrors.StageProcess, re.Stage)
	assert.True(t, apperrors.Is(err, apperrors.KindProcessing))

	gen.err = apperrors.New(apperrors.KindFatalLLM, "bad key")
	_, err = o.PerformReading(context.Background(), "echo", fortune.RawInput{"q": "second"})
	require.ErrorAs(t, err, &re)
	assert.Equal(t, apperrors.StageGenerate, re.Stage)
	assert.True(t, apperrors.Is(err, apperrors.KindFatalLLM))

	sess, ok := o.Session()
	require.True(t, ok)
	assert.Equal(t, "first", sess.Inputs.Get("q"))
	assert.Equal(t, StateIdle, o.State())
}

func TestCanceledContext(t *testing.T) {
	o := New(registry(t, newEcho()), &scriptedGenerator{text: "OK"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.PerformReading(ctx, "echo", fortune.RawInput{"q": "hi"})
	assert.True(t, apperrors.Is(err, apperrors.KindCanceled))
	_, ok := o.Session()
	assert.False(t, ok)
}

func TestBusyOrchestratorFailsFast(t *testing.T) {
	gen := &scriptedGenerator{text: "OK", block: make(chan struct{})}
	o := New(registry(t, newEcho()), gen)

	done := make(chan error, 1)
	go func() {
		_, err := o.PerformReading(context.Background(), "echo", fortune.RawInput{"q": "slow"})
		done <- err
	}()
	require.Eventually(t, func() bool { return o.State() == StateReadingInProgress }, time.Second, time.Millisecond)

	_, err := o.PerformReading(context.Background(), "echo", fortune.RawInput{"q": "fast"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindInternal))
	assert.Contains(t, err.Error(), "orchestrator busy")
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	close(gen.block)
	require.NoError(t, <-done)
	assert.Equal(t, StateIdle, o.State())
}

func TestFollowupWithBuiltinBazi(t *testing.T) {
	m := plugin.NewManager()
	m.LoadAll(plugins.Builtin(plugins.Options{Clock: clock}))
	gen := &scriptedGenerator{text: "## 八字总评\n好命。\n## 五行简述\n木旺。"}
	o := New(m, gen, WithClock(clock))

	before := o.Topics()
	assert.Equal(t, "与霄占聊天", before[len(before)-1])

	res, err := o.PerformReading(context.Background(), "bazi", fortune.RawInput{"birth_date": "1990-05-15", "gender": "男"})
	require.NoError(t, err)
	assert.Equal(t, []string{"八字总评", "五行简述"}, res.Content.Titles())

	assert.Equal(t, []string{"🧠 性格命格", "💼 事业财运", "❤️ 婚姻情感", "🧘 健康寿元", "🔄 流年大运", "💬 与霄占聊天"}, o.Topics())

	gen.text = "  事业蒸蒸日上。  "
	follow, err := o.PerformFollowupReading(context.Background(), "💼 事业财运")
	require.NoError(t, err)
	assert.Equal(t, fortune.Sections{{Title: "事业财运", Body: "事业蒸蒸日上。"}}, follow.Content)
	assert.Equal(t, "💼 事业财运", follow.Metadata.Topic)
	assert.Equal(t, "bazi", follow.Metadata.SystemName)

	p := gen.last()
	assert.Contains(t, p.System, "你刚刚为求测者提供了基本的八字命理分析。现在，求测者想了解更多关于\"事业财运\"的详细信息。")
	assert.Contains(t, p.System, "适合行业和财富机遇")
	assert.Contains(t, p.User, "基于刚才的八字分析，请详细解读\"事业财运\"方面的信息。")
	assert.Contains(t, p.User, "四柱八字：")
	assert.Contains(t, p.User, "请提供详细而有趣的\"事业财运\"分析。")

	_, err = o.PerformFollowupReading(context.Background(), "💬 与霄占聊天")
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidTopic))
}

func TestEndToEndWithMockProvider(t *testing.T) {
	m := plugin.NewManager()
	m.LoadAll(plugins.Builtin(plugins.Options{Clock: clock, RNG: zeroRNG{}}))
	conn, err := connector.New(config.LLMSettings{Provider: config.ProviderMock, Model: "mock-1", MaxRetries: 1, Timeout: time.Minute})
	require.NoError(t, err)
	o := New(m, conn)

	res, err := o.PerformReading(context.Background(), "tarot", fortune.RawInput{"question": "前途如何", "spread": "three_card"})
	require.NoError(t, err)
	assert.Equal(t, []string{"总体解读", "建议"}, res.Content.Titles())
	require.NotNil(t, res.Metadata.LLM)
	assert.Equal(t, "mock", res.Metadata.LLM.Provider)
	assert.Equal(t, 0, res.Metadata.LLM.RetryCount)

	follow, err := o.PerformFollowupReading(context.Background(), "🧭 阻碍与助力")
	require.NoError(t, err)
	assert.Equal(t, []string{"阻碍与助力"}, follow.Content.Titles())
}

type zeroRNG struct{}

func (zeroRNG) Intn(int) int { return 0 }

func TestRestoreAndReset(t *testing.T) {
	o := New(registry(t, newEcho()), &scriptedGenerator{text: "OK"})
	o.Restore(SessionState{SystemName: "echo", Inputs: fortune.ValidatedInput{"q": "x"}, Processed: fortune.ValidatedInput{"q": "x"}})

	sess, ok := o.Session()
	require.True(t, ok)
	sess.Inputs["q"] = "mutated"
	again, _ := o.Session()
	assert.Equal(t, "x", again.Inputs.Get("q"))

	_, err := o.PerformFollowupReading(context.Background(), "健康提示")
	require.NoError(t, err)

	o.Reset()
	_, ok = o.Session()
	assert.False(t, ok)
}

func TestCleanLabel(t *testing.T) {
	assert.Equal(t, "婚姻情感", CleanLabel("❤️ 婚姻情感"))
	assert.Equal(t, "潜在路径", CleanLabel("🛤️ 潜在路径"))
	assert.Equal(t, "性格特点", CleanLabel("性格特点"))
	assert.Equal(t, "与霄占聊天", CleanLabel("💬 与霄占聊天"))
	assert.True(t, IsChatTopic("💬 与霄占聊天"))
	assert.False(t, IsChatTopic("事业财运"))
	assert.True(t, IsExitWord(" QUIT "))
	assert.True(t, IsExitWord("退出"))
	assert.False(t, IsExitWord("exit now"))
}
