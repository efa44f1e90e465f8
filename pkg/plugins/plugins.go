// Package plugins lists the divination systems shipped with the binary.
package plugins

import (
	"fmt"

	"fortuneteller/pkg/config"
	"fortuneteller/pkg/fortune"
	"fortuneteller/pkg/plugin"
	"fortuneteller/pkg/plugins/bazi"
	"fortuneteller/pkg/plugins/tarot"
	"fortuneteller/pkg/plugins/zodiac"
)

// Options are the injected dependencies of the built-in systems.
type Options struct {
	Clock    fortune.Clock
	RNG      fortune.RNG
	DataDirs map[string]string // plugin name -> data_dir
}

// OptionsFromConfig reads every plugin's data_dir from the plugins section.
func OptionsFromConfig(m *config.Manager) Options {
	dirs := map[string]string{}
	for _, name := range []string{bazi.Name, tarot.Name, zodiac.Name} {
		if dir, ok := m.PluginConfig(name)["data_dir"].(string); ok {
			dirs[name] = dir
		}
	}
	return Options{DataDirs: dirs}
}

// Builtin returns the candidates in registration order: bazi, tarot, zodiac.
func Builtin(opts Options) []plugin.Candidate {
	return []plugin.Candidate{
		{
			Name: bazi.Name,
			New:  func() (fortune.System, error) { return bazi.New(), nil },
		},
		{
			Name: tarot.Name,
			New: func() (fortune.System, error) {
				s, err := tarot.New(opts.RNG, opts.DataDirs[tarot.Name])
				if err != nil {
					return nil, fmt.Errorf("load tarot deck: %w", err)
				}
				return s, nil
			},
		},
		{
			Name: zodiac.Name,
			New:  func() (fortune.System, error) { return zodiac.New(opts.Clock), nil },
		},
	}
}
