package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fortuneteller/pkg/apperrors"
	"fortuneteller/pkg/fortune"
	"fortuneteller/pkg/orchestrator"
	"fortuneteller/pkg/plugin"
	"fortuneteller/pkg/plugins"
	"fortuneteller/pkg/session"
)

type zeroRNG struct{}

func (zeroRNG) Intn(int) int { return 0 }

// passthrough has no Restorer; its processed data is its validated input.
type passthrough struct{ fortune.Base }

func (passthrough) RequiredInputs() []fortune.InputField { return nil }
func (passthrough) ValidateInput(raw fortune.RawInput) (fortune.ValidatedInput, error) {
	return fortune.ValidatedInput(raw), nil
}
func (passthrough) ProcessData(in fortune.ValidatedInput) (fortune.ProcessedData, error) {
	return in, nil
}
func (passthrough) GenerateLLMPrompt(fortune.ProcessedData) (fortune.PromptPair, error) {
	return fortune.PromptPair{}, nil
}
func (passthrough) FormatResult(string) fortune.Sections                       { return nil }
func (passthrough) DisplayProcessedData(fortune.ProcessedData) fortune.Display { return fortune.Display{} }

func registry(t *testing.T) *plugin.Manager {
	t.Helper()
	m := plugin.NewManager()
	require.NoError(t, m.Register(passthrough{fortune.NewBase("echo", "回声", "")}))
	m.LoadAll(plugins.Builtin(plugins.Options{RNG: zeroRNG{}}))
	return m
}

func TestSnapshotRoundTripThroughRestorer(t *testing.T) {
	reg := registry(t)
	tarot, _ := reg.Get("tarot")
	in, err := tarot.ValidateInput(fortune.RawInput{"question": "前途", "spread": "three_card"})
	require.NoError(t, err)
	pd, err := tarot.ProcessData(in)
	require.NoError(t, err)

	now := time.Date(2024, 3, 25, 10, 0, 0, 0, time.UTC)
	snap, err := session.FromState(orchestrator.SessionState{SystemName: "tarot", Inputs: in, Processed: pd}, now)
	require.NoError(t, err)
	assert.Equal(t, now, snap.UpdatedAt)

	state, err := session.ToState(snap, reg)
	require.NoError(t, err)
	assert.Equal(t, "tarot", state.SystemName)
	assert.Equal(t, in, state.Inputs)
	assert.Equal(t, pd, state.Processed)
}

func TestSnapshotWithoutRestorer(t *testing.T) {
	reg := registry(t)
	in := fortune.ValidatedInput{"q": "hi"}

	snap, err := session.FromState(orchestrator.SessionState{SystemName: "echo", Inputs: in, Processed: in}, time.Now())
	require.NoError(t, err)
	state, err := session.ToState(snap, reg)
	require.NoError(t, err)
	assert.Equal(t, in, state.Processed)
}

func TestSnapshotUnknownSystem(t *testing.T) {
	_, err := session.ToState(session.Snapshot{SystemName: "runes"}, registry(t))
	assert.True(t, apperrors.Is(err, apperrors.KindUnknownSystem))
}

func TestChatOnlySnapshotIsEmptyState(t *testing.T) {
	snap, err := session.FromState(orchestrator.SessionState{}, time.Now())
	require.NoError(t, err)
	snap.Chat = []string{"用户: 你好"}

	state, err := session.ToState(snap, registry(t))
	require.NoError(t, err)
	assert.True(t, state.Empty())
}
