package plugins

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fortuneteller/pkg/config"
	"fortuneteller/pkg/plugin"
)

type zeroRNG struct{}

func (zeroRNG) Intn(int) int { return 0 }

func TestBuiltinRegistersAllSystems(t *testing.T) {
	clock := func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	m := plugin.NewManager()

	n := m.LoadAll(Builtin(Options{Clock: clock, RNG: zeroRNG{}}))

	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"bazi", "tarot", "zodiac"}, m.Names())
	assert.Empty(t, m.LoadErrors())

	info := m.InfoList()
	assert.Equal(t, "八字命理", info[0].DisplayName)
	assert.Equal(t, "塔罗牌", info[1].DisplayName)
	assert.Equal(t, "星座占星", info[2].DisplayName)
}

func TestBuiltinRespectsEnabledList(t *testing.T) {
	cfg := config.FromMap(map[string]any{"plugins": map[string]any{"enabled": []any{"zodiac"}}})
	m := plugin.NewManager(plugin.WithEnabled(cfg.IsPluginEnabled))

	assert.Equal(t, 1, m.LoadAll(Builtin(OptionsFromConfig(cfg))))
	_, ok := m.Get("zodiac")
	assert.True(t, ok)
	_, ok = m.Get("tarot")
	assert.False(t, ok)
}

func TestBrokenDeckIsIsolated(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deck.yaml"), []byte("major: []"), 0644))

	m := plugin.NewManager()
	n := m.LoadAll(Builtin(Options{DataDirs: map[string]string{"tarot": dir}}))

	assert.Equal(t, 2, n)
	require.Len(t, m.LoadErrors(), 1)
	assert.Equal(t, "tarot", m.LoadErrors()[0].Name)
	assert.ErrorContains(t, m.LoadErrors()[0], "load tarot deck")
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.FromMap(nil)
	opts := OptionsFromConfig(cfg)
	assert.Equal(t, "data/tarot", opts.DataDirs["tarot"])
	assert.Equal(t, "data/zodiac", opts.DataDirs["zodiac"])
}
