// Package preflight checks that everything a configuration depends on is usable before
// readings start: credentials and reachability for every model of the LLM chain, the
// session backend, the archive and output directories, and the loaded plugins.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fortuneteller/pkg/config"
	"fortuneteller/pkg/plugin"
)

const defaultTimeout = 5 * time.Second

// Area groups checks for guidance.
type Area string

// Check areas.
const (
	AreaLLM     Area = "llm"
	AreaSession Area = "session"
	AreaStorage Area = "storage"
	AreaPlugins Area = "plugins"
)

// CheckResult is the outcome of one check.
type CheckResult struct {
	Error    error
	Target   string
	Message  string
	Provider string
	Area     Area
	Passed   bool
}

// Results contains every check result.
type Results struct {
	Summary string
	Checks  []CheckResult
	Passed  bool
}

// PluginReport is the part of the plugin manager the checks read.
type PluginReport interface {
	Names() []string
	LoadErrors() []*plugin.LoadError
}

type options struct {
	plugins PluginReport
	timeout time.Duration
}

// Option configures Run.
type Option func(*options)

// WithPlugins adds the plugin check.
func WithPlugins(r PluginReport) Option {
	return func(o *options) { o.plugins = r }
}

// WithTimeout bounds each network check. Default 5s.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// Run executes every check that applies to cfg. Failures are reported in Results; the
// error is only for a configuration that cannot be read.
func Run(ctx context.Context, cfg *config.Manager, opts ...Option) (*Results, error) {
	o := options{timeout: defaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	llmSettings, err := cfg.LLM()
	if err != nil {
		return nil, fmt.Errorf("llm settings: %w", err)
	}
	sessionSettings, err := cfg.Session()
	if err != nil {
		return nil, fmt.Errorf("session settings: %w", err)
	}
	storage, err := cfg.Storage()
	if err != nil {
		return nil, fmt.Errorf("storage settings: %w", err)
	}

	results := &Results{Passed: true}
	add := func(r CheckResult) {
		results.Checks = append(results.Checks, r)
		if !r.Passed {
			results.Passed = false
		}
	}

	for _, ref := range llmSettings.Chain() {
		add(checkModel(ctx, ref, llmSettings.BaseURL, o.timeout))
	}
	add(checkSession(ctx, sessionSettings, o.timeout))
	add(checkArchive(storage.Database))
	if storage.ExportDir != "" {
		add(checkDir("export_dir", storage.ExportDir))
	}
	if storage.EventLogDir != "" {
		add(checkDir("event_log_dir", storage.EventLogDir))
	}
	if o.plugins != nil {
		add(checkPlugins(o.plugins))
	}

	failed := 0
	for i := range results.Checks {
		if !results.Checks[i].Passed {
			failed++
		}
	}
	if results.Passed {
		results.Summary = fmt.Sprintf("All %d preflight checks passed", len(results.Checks))
	} else {
		results.Summary = fmt.Sprintf("%d of %d preflight checks failed", failed, len(results.Checks))
	}
	return results, nil
}

// Validate runs the checks and returns an error describing every failure.
func Validate(ctx context.Context, cfg *config.Manager, opts ...Option) error {
	results, err := Run(ctx, cfg, opts...)
	if err != nil {
		return fmt.Errorf("preflight check error: %w", err)
	}
	if results.Passed {
		return nil
	}
	var failed []string
	for i := range results.Checks {
		if !results.Checks[i].Passed {
			failed = append(failed, FormatCheckError(results.Checks[i]))
		}
	}
	return errors.New(strings.Join(failed, "\n"))
}
