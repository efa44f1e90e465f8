// Package plugin holds the registry of divination systems.
//
// Systems are registered once at startup, either one by one through Register or in bulk
// through LoadAll, after which the registry is sealed and read-only.
package plugin

import (
	"fmt"
	"strings"
	"sync"

	"fortuneteller/pkg/apperrors"
	"fortuneteller/pkg/fortune"
	"fortuneteller/pkg/logx"
)

// Candidate is a system that may be registered. New is called exactly once.
type Candidate struct {
	New  func() (fortune.System, error)
	Name string
}

// LoadError records why a candidate was not registered.
type LoadError struct {
	Err  error
	Name string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("plugin %s: %v", e.Name, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ErrorKind classifies load failures.
func (e *LoadError) ErrorKind() apperrors.Kind { return apperrors.KindPluginLoad }

// Manager is the plugin registry.
type Manager struct {
	systems    map[string]fortune.System
	enabled    func(name string) bool
	logger     *logx.Logger
	order      []string
	loadErrors []*LoadError
	mu         sync.RWMutex
	sealed     bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithEnabled filters candidates in LoadAll; disabled names are skipped.
func WithEnabled(enabled func(name string) bool) Option {
	return func(m *Manager) { m.enabled = enabled }
}

// WithLogger sets the logger.
func WithLogger(l *logx.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates an empty registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		systems: make(map[string]fortune.System),
		logger:  logx.NewLogger("plugins"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds sys. Fails for nil systems, missing identity, duplicates, or a sealed registry.
func (m *Manager) Register(sys fortune.System) error {
	if sys == nil {
		return apperrors.New(apperrors.KindPluginLoad, "system cannot be nil")
	}
	name := sys.Name()
	if strings.TrimSpace(name) == "" {
		return apperrors.New(apperrors.KindPluginLoad, "system name cannot be empty")
	}
	if strings.TrimSpace(sys.DisplayName()) == "" {
		return apperrors.Newf(apperrors.KindPluginLoad, "system %s has no display name", name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sealed {
		return apperrors.Newf(apperrors.KindPluginLoad, "registry sealed - cannot register %s", name)
	}
	if _, exists := m.systems[name]; exists {
		return apperrors.Newf(apperrors.KindPluginLoad, "system %s already registered", name)
	}
	m.systems[name] = sys
	m.order = append(m.order, name)
	m.logger.Info("registered fortune system: %s (%s)", name, sys.DisplayName())
	return nil
}

// LoadAll constructs and registers every candidate in isolation, then seals the registry.
// A failing candidate is logged and recorded; the rest continue. Returns the number registered.
func (m *Manager) LoadAll(candidates []Candidate) int {
	loaded := 0
	for _, c := range candidates {
		if err := m.load(c); err != nil {
			le := &LoadError{Name: c.Name, Err: err}
			m.mu.Lock()
			m.loadErrors = append(m.loadErrors, le)
			m.mu.Unlock()
			m.logger.Warn("failed to load plugin %s: %v", c.Name, err)
			continue
		}
		loaded++
	}
	m.Seal()

	if loaded == 0 {
		m.logger.Warn("no fortune systems loaded from %d candidates", len(candidates))
	} else {
		m.logger.Info("loaded %d of %d fortune systems", loaded, len(candidates))
	}
	return loaded
}

func (m *Manager) load(c Candidate) (err error) {
	if m.enabled != nil && !m.enabled(c.Name) {
		return fmt.Errorf("disabled by configuration")
	}
	if c.New == nil {
		return fmt.Errorf("candidate has no constructor")
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("constructor panicked: %v", r)
		}
	}()

	sys, err := c.New()
	if err != nil {
		return err
	}
	if sys == nil {
		return fmt.Errorf("constructor returned nil system")
	}
	if c.Name != "" && sys.Name() != c.Name {
		return fmt.Errorf("declared name %q does not match system name %q", c.Name, sys.Name())
	}
	return m.Register(sys)
}

// Seal prevents further registrations.
func (m *Manager) Seal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sealed = true
}

// Get returns the system registered under exactly name.
func (m *Manager) Get(name string) (fortune.System, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sys, ok := m.systems[name]
	return sys, ok
}

// Names returns registered names in registration order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// InfoList returns descriptors in registration order.
func (m *Manager) InfoList() []fortune.Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]fortune.Descriptor, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, fortune.Describe(m.systems[name]))
	}
	return out
}

// LoadErrors returns the candidates LoadAll rejected.
func (m *Manager) LoadErrors() []*LoadError {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*LoadError(nil), m.loadErrors...)
}
