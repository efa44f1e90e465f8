// Package apperrors defines the error taxonomy shared by the reading engine and its surfaces.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes an error for callers that must react differently per category.
type Kind int8

const (
	// KindInternal is the zero value for unclassified failures.
	KindInternal Kind = iota
	// KindInvalidInput marks missing, malformed or out-of-range user input.
	KindInvalidInput
	// KindUnknownSystem marks a reading request naming no registered plugin.
	KindUnknownSystem
	// KindNoActiveSession marks a follow-up requested before any successful reading.
	KindNoActiveSession
	// KindInvalidTopic marks a follow-up topic outside the active topic table.
	KindInvalidTopic
	// KindFatalLLM marks a non-retryable provider failure (auth, bad request).
	KindFatalLLM
	// KindRetryExhausted marks a transient provider failure that outlived every retry and fallback.
	KindRetryExhausted
	// KindPluginLoad marks a candidate plugin that could not be registered.
	KindPluginLoad
	// KindProcessing marks a plugin failure while computing or prompting.
	KindProcessing
	// KindCanceled marks an operation aborted by its context.
	KindCanceled
)

// String returns the snake_case name used in logs and API payloads.
func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindUnknownSystem:
		return "unknown_system"
	case KindNoActiveSession:
		return "no_active_session"
	case KindInvalidTopic:
		return "invalid_topic"
	case KindFatalLLM:
		return "fatal_llm"
	case KindRetryExhausted:
		return "retry_exhausted"
	case KindPluginLoad:
		return "plugin_load"
	case KindProcessing:
		return "processing"
	case KindCanceled:
		return "canceled"
	default:
		return "internal"
	}
}

// Error is a classified error with a user-facing message.
type Error struct {
	Err     error
	Message string
	Kind    Kind
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorKind lets *Error participate in KindOf through the kinded interface.
func (e *Error) ErrorKind() Kind {
	return e.Kind
}

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies cause under kind. A nil cause yields nil.
func Wrap(kind Kind, cause error, message string) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Err: cause, Message: message}
}

// kinded is implemented by any error that knows its own Kind.
type kinded interface {
	ErrorKind() Kind
}

// KindOf returns the first Kind found in err's chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var k kinded
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	return KindInternal
}

// Is reports whether err's chain carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Stage names the reading pipeline step that failed.
type Stage string

const (
	StageValidate Stage = "validate"
	StageProcess  Stage = "process"
	StagePrompt   Stage = "prompt"
	StageGenerate Stage = "generate"
	StageFormat   Stage = "format"
)

// ReadingError is the uniform failure returned by reading operations.
// Its kind is the kind of the wrapped cause, so callers classify through KindOf.
type ReadingError struct {
	Err    error
	System string
	Stage  Stage
}

func (e *ReadingError) Error() string {
	return fmt.Sprintf("%s reading failed at %s: %v", e.System, e.Stage, e.Err)
}

func (e *ReadingError) Unwrap() error {
	return e.Err
}

// ErrorKind defers to the cause; unclassified plugin faults count as processing failures.
func (e *ReadingError) ErrorKind() Kind {
	if kind := KindOf(e.Err); kind != KindInternal {
		return kind
	}
	return KindProcessing
}

// InvalidTopicError lists every accepted topic label so surfaces can re-prompt.
type InvalidTopicError struct {
	Topic string
	Valid []string
}

func (e *InvalidTopicError) Error() string {
	return "请选择有效的解读主题: " + strings.Join(e.Valid, "、")
}

func (e *InvalidTopicError) ErrorKind() Kind {
	return KindInvalidTopic
}

// ErrNoActiveSession is returned for a follow-up before any successful reading.
//
//nolint:gochecknoglobals // sentinel error
var ErrNoActiveSession = New(KindNoActiveSession, "请先进行主要解读，然后再询问具体方面。")

// UnknownSystem builds the error for an unregistered plugin name.
func UnknownSystem(name string) *Error {
	return Newf(KindUnknownSystem, "未找到占卜系统: %s", name)
}

// InvalidInput builds a validation error with the plugin's user-facing message.
func InvalidInput(message string) *Error {
	return New(KindInvalidInput, message)
}
