// Package fortune defines the contract every divination system implements.
//
// A System turns raw user input into a prompt pair for the language model and turns the
// model's free text back into titled sections. The orchestrator drives the stages in order:
// ValidateInput, ProcessData, GenerateLLMPrompt, then FormatResult on the generated text.
// ProcessedData is opaque outside the owning system.
package fortune

import (
	"sort"
	"time"
)

// InputType tells a surface how to collect a field.
type InputType string

const (
	InputText   InputType = "text"
	InputDate   InputType = "date"
	InputTime   InputType = "time"
	InputSelect InputType = "select"
)

// Option is one allowed value of a select field.
type Option struct {
	Value       string `json:"value"`
	Label       string `json:"label,omitempty"`
	Description string `json:"description,omitempty"`
}

// InputField describes one input a system needs.
type InputField struct {
	Name        string    `json:"name"`
	Type        InputType `json:"type"`
	Description string    `json:"description"`
	Default     string    `json:"default,omitempty"`
	Options     []Option  `json:"options,omitempty"`
	Required    bool      `json:"required"`
}

// OptionValues returns the accepted values of a select field in display order.
func (f InputField) OptionValues() []string {
	values := make([]string, len(f.Options))
	for i, o := range f.Options {
		values[i] = o.Value
	}
	return values
}

// Descriptor identifies a registered system. Immutable after registration.
type Descriptor struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

// RawInput is what a surface collected, keyed by field name.
type RawInput map[string]string

// ValidatedInput holds canonical string values produced by the owning system's ValidateInput.
// Canonical forms (2006-01-02 dates, 15:04 times, trimmed text, defaults applied) make
// validation idempotent.
type ValidatedInput map[string]string

// Kind lets ValidatedInput double as ProcessedData for pass-through systems.
func (v ValidatedInput) Kind() string { return "input" }

// Get returns the value for key or "" when absent.
func (v ValidatedInput) Get(key string) string {
	return v[key]
}

// Raw converts back to RawInput so a validated value can be revalidated.
func (v ValidatedInput) Raw() RawInput {
	raw := make(RawInput, len(v))
	for k, val := range v {
		raw[k] = val
	}
	return raw
}

// Clone returns an independent copy.
func (v ValidatedInput) Clone() ValidatedInput {
	if v == nil {
		return nil
	}
	out := make(ValidatedInput, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Keys returns the field names in sorted order.
func (v ValidatedInput) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ProcessedData is the system-specific computation result.
// Each system defines its own variant; Kind tags the variant.
type ProcessedData interface {
	Kind() string
}

// PromptPair is the system and user prompt sent to the model for one request.
type PromptPair struct {
	System string `json:"system_prompt"`
	User   string `json:"user_prompt"`
}

// System is the contract every divination plugin satisfies.
type System interface {
	Name() string
	DisplayName() string
	Description() string

	// RequiredInputs lists the input fields in display order.
	RequiredInputs() []InputField

	// ValidateInput normalizes raw input or fails with an invalid-input error
	// carrying a user-facing message.
	ValidateInput(raw RawInput) (ValidatedInput, error)

	// ProcessData performs the system's deterministic or randomized computation.
	ProcessData(in ValidatedInput) (ProcessedData, error)

	// GenerateLLMPrompt builds the prompt pair for a reading.
	GenerateLLMPrompt(data ProcessedData) (PromptPair, error)

	// FormatResult splits model text into sections. It never fails.
	FormatResult(text string) Sections

	// DisplayProcessedData describes the computed data for presentation.
	DisplayProcessedData(data ProcessedData) Display

	// ChatSystemPrompt is the persona used in free-form chat.
	ChatSystemPrompt() string
}

// FollowupSummarizer is implemented by systems that can restate their data
// for a follow-up prompt.
type FollowupSummarizer interface {
	FollowupSummary(data ProcessedData) string
}

// Restorer decodes a persisted ProcessedData value produced by the same system.
type Restorer interface {
	RestoreProcessedData(raw []byte) (ProcessedData, error)
}

// Describe returns the descriptor of s.
func Describe(s System) Descriptor {
	return Descriptor{Name: s.Name(), DisplayName: s.DisplayName(), Description: s.Description()}
}

// Clock returns the current time. Injected so date-dependent readings are testable.
type Clock func() time.Time

// RNG abstracts random number generation for deterministic testing.
type RNG interface {
	// Intn returns a non-negative random int in [0, n).
	Intn(n int) int
}

// DefaultChatPrompt is the persona used when no system is active.
const DefaultChatPrompt = `你是"霄占"命理大师，一位来自中国的命理学专家，已有30年的占卜经验，性格风趣幽默又不失智慧。
现在你正在与求测者进行轻松的聊天互动。你可以谈论命理学知识、回答关于运势的问题，
也可以聊一些日常话题，但始终保持着命理师的角色和视角。
用生动有趣的语言表达，偶尔引用古诗词或俏皮话，让谈话充满趣味性。
让求测者感觉是在和一位睿智而亲切的老朋友聊天。

对话应简洁精炼，回答控制在200字以内，保持幽默风趣的语气。
`

// Base carries identity and the default chat persona. Systems embed it.
type Base struct {
	name        string
	displayName string
	description string
}

// NewBase creates the embeddable identity part of a system.
func NewBase(name, displayName, description string) Base {
	return Base{name: name, displayName: displayName, description: description}
}

func (b Base) Name() string        { return b.name }
func (b Base) DisplayName() string { return b.displayName }
func (b Base) Description() string { return b.description }

// ChatSystemPrompt returns the generic persona; systems override it with their own.
func (b Base) ChatSystemPrompt() string { return DefaultChatPrompt }
