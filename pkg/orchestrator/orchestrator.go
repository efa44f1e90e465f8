// Package orchestrator drives a reading end to end: plugin lookup, validation, processing,
// prompting, generation and formatting. It keeps the last successful reading as the session
// that follow-up topics and chat build on.
//
// An Orchestrator runs one operation at a time. A call made while another operation (or a
// chat) is active fails immediately with an internal "orchestrator busy" error.
package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"fortuneteller/pkg/apperrors"
	"fortuneteller/pkg/fortune"
	"fortuneteller/pkg/llm"
	"fortuneteller/pkg/llm/connector"
	"fortuneteller/pkg/logx"
)

// FormatVersion tags every ReadingResult.
const FormatVersion = "1.0"

// Registry resolves systems by name.
type Registry interface {
	Get(name string) (fortune.System, bool)
}

// Generator produces text for a prompt pair.
type Generator interface {
	GenerateResponse(ctx context.Context, prompt fortune.PromptPair) (connector.Result, error)
}

// SessionState is the last successful reading.
type SessionState struct {
	Processed  fortune.ProcessedData
	Inputs     fortune.ValidatedInput
	SystemName string
}

// Empty reports whether no reading has been recorded.
func (s SessionState) Empty() bool {
	return s.SystemName == ""
}

// Metadata describes how a reading was produced.
type Metadata struct {
	Timestamp  time.Time           `json:"timestamp"`
	LLM        *connector.Metadata `json:"llm_metadata,omitempty"`
	Inputs     map[string]string   `json:"inputs,omitempty"`
	SystemName string              `json:"system_name"`
	Topic      string              `json:"topic,omitempty"`
}

// ReadingResult is a formatted reading.
type ReadingResult struct {
	Content       fortune.Sections `json:"reading"`
	FullText      string           `json:"full_text"`
	FormatVersion string           `json:"format_version"`
	Metadata      Metadata         `json:"metadata"`
}

// Orchestrator is the reading engine.
type Orchestrator struct {
	registry  Registry
	generator Generator
	now       fortune.Clock
	logger    *logx.Logger
	session   SessionState
	state     State
	mu        sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the clock used for result timestamps.
func WithClock(clock fortune.Clock) Option {
	return func(o *Orchestrator) { o.now = clock }
}

// WithLogger sets the logger.
func WithLogger(l *logx.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an idle orchestrator with an empty session.
func New(reg Registry, gen Generator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:  reg,
		generator: gen,
		now:       time.Now,
		logger:    logx.NewLogger("orchestrator"),
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current workflow state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Session returns the last successful reading; ok is false before the first one.
func (o *Orchestrator) Session() (SessionState, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.session
	s.Inputs = s.Inputs.Clone()
	return s, !s.Empty()
}

// Restore seeds the session, e.g. from a session store.
func (o *Orchestrator) Restore(s SessionState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s.Inputs = s.Inputs.Clone()
	o.session = s
}

// Reset forgets the session.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.session = SessionState{}
}

// guard runs a plugin stage, turning a panic into a processing error.
func guard[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.Newf(apperrors.KindProcessing, "plugin panic: %v", r)
		}
	}()
	return fn()
}

func canceled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.KindCanceled, err, "reading canceled")
	}
	return nil
}

// PerformReading runs the full pipeline for systemName. The session is replaced only when
// every stage succeeds.
func (o *Orchestrator) PerformReading(ctx context.Context, systemName string, raw fortune.RawInput) (*ReadingResult, error) {
	sys, ok := o.registry.Get(systemName)
	if !ok {
		return nil, apperrors.UnknownSystem(systemName)
	}
	if err := canceled(ctx); err != nil {
		return nil, err
	}
	if err := o.begin(ctx, StateReadingInProgress); err != nil {
		return nil, err
	}
	defer o.finish(ctx)

	fail := func(stage apperrors.Stage, err error) (*ReadingResult, error) {
		o.logger.Error("%s reading failed at %s: %v", systemName, stage, err)
		return nil, &apperrors.ReadingError{System: systemName, Stage: stage, Err: err}
	}

	validated, err := guard(func() (fortune.ValidatedInput, error) { return sys.ValidateInput(raw) })
	if err != nil {
		return fail(apperrors.StageValidate, err)
	}
	processed, err := guard(func() (fortune.ProcessedData, error) { return sys.ProcessData(validated) })
	if err != nil {
		return fail(apperrors.StageProcess, err)
	}
	prompt, err := guard(func() (fortune.PromptPair, error) { return sys.GenerateLLMPrompt(processed) })
	if err != nil {
		return fail(apperrors.StagePrompt, err)
	}

	res, err := o.generator.GenerateResponse(llm.WithSystemName(ctx, systemName), prompt)
	if err != nil {
		return fail(apperrors.StageGenerate, err)
	}

	sections, err := guard(func() (fortune.Sections, error) { return sys.FormatResult(res.Text), nil })
	if err != nil {
		return fail(apperrors.StageFormat, err)
	}

	o.mu.Lock()
	o.session = SessionState{SystemName: systemName, Inputs: validated.Clone(), Processed: processed}
	o.mu.Unlock()

	meta := res.Metadata
	o.logger.Info("%s reading served by %s/%s (retries: %d)", systemName, meta.Provider, meta.Model, meta.RetryCount)
	return &ReadingResult{
		Content:       sections,
		FullText:      res.Text,
		FormatVersion: FormatVersion,
		Metadata: Metadata{
			SystemName: systemName,
			Timestamp:  o.now(),
			LLM:        &meta,
			Inputs:     copyInputs(raw),
		},
	}, nil
}

func copyInputs(raw fortune.RawInput) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	return out
}

// Topics lists the follow-up menu of the active session followed by the chat entry.
// Without a session it returns the generic menu.
func (o *Orchestrator) Topics() []string {
	o.mu.Lock()
	name := o.session.SystemName
	o.mu.Unlock()

	table := tableFor(name)
	return append(table.labels(), table.chatLabel)
}

// PerformFollowupReading expands one topic of the last reading. The result holds a single
// section keyed by the cleaned label; Metadata.Topic keeps the label as given. The chat
// entry of the menu yields ErrChatTopic.
func (o *Orchestrator) PerformFollowupReading(ctx context.Context, topic string) (*ReadingResult, error) {
	sess, ok := o.Session()
	if !ok {
		return nil, apperrors.ErrNoActiveSession
	}
	sys, found := o.registry.Get(sess.SystemName)
	if !found {
		return nil, apperrors.UnknownSystem(sess.SystemName)
	}

	if IsChatTopic(topic) {
		return nil, ErrChatTopic
	}
	table := tableFor(sess.SystemName)
	entry, valid := table.lookup(topic)
	if !valid {
		return nil, &apperrors.InvalidTopicError{Topic: topic, Valid: table.labels()}
	}
	if err := canceled(ctx); err != nil {
		return nil, err
	}
	if err := o.begin(ctx, StateFollowupInProgress); err != nil {
		return nil, err
	}
	defer o.finish(ctx)

	summary := ""
	if s, ok := sys.(fortune.FollowupSummarizer); ok {
		summary, _ = guard(func() (string, error) { return s.FollowupSummary(sess.Processed), nil })
	}
	systemPrompt, userPrompt := table.prompts(entry, summary)

	res, err := o.generator.GenerateResponse(llm.WithSystemName(ctx, sess.SystemName),
		fortune.PromptPair{System: systemPrompt, User: userPrompt})
	if err != nil {
		o.logger.Error("follow-up %q failed: %v", topic, err)
		return nil, &apperrors.ReadingError{System: sess.SystemName, Stage: apperrors.StageGenerate, Err: err}
	}

	meta := res.Metadata
	return &ReadingResult{
		Content:       fortune.Sections{{Title: CleanLabel(topic), Body: strings.TrimSpace(res.Text)}},
		FullText:      res.Text,
		FormatVersion: FormatVersion,
		Metadata: Metadata{
			SystemName: sess.SystemName,
			Timestamp:  o.now(),
			LLM:        &meta,
			Topic:      topic,
		},
	}, nil
}
