package connector

import (
	"fmt"
	"strings"

	"fortuneteller/pkg/apperrors"
	"fortuneteller/pkg/config"
)

// AttemptError records one failed provider call.
type AttemptError struct {
	Err           error
	Provider      string
	Model         string
	Attempt       int
	FallbackIndex int
}

func (a AttemptError) String() string {
	return fmt.Sprintf("%s/%s #%d: %v", a.Provider, a.Model, a.Attempt, a.Err)
}

// FatalLLMError is a failure that retrying cannot fix: bad credentials or a rejected request.
type FatalLLMError struct {
	Err      error
	Provider string
	Model    string
}

func (e *FatalLLMError) Error() string {
	return fmt.Sprintf("fatal LLM error from %s/%s: %v", e.Provider, e.Model, e.Err)
}

func (e *FatalLLMError) Unwrap() error { return e.Err }

// ErrorKind classifies the error for surfaces.
func (e *FatalLLMError) ErrorKind() apperrors.Kind { return apperrors.KindFatalLLM }

// RetryExhaustedError is returned when every chain entry ran out of attempts.
type RetryExhaustedError struct {
	Err        error
	Chain      []config.ProviderRef
	Attempts   []AttemptError
	RetryCount int
}

func (e *RetryExhaustedError) Error() string {
	names := make([]string, len(e.Chain))
	for i, ref := range e.Chain {
		names[i] = ref.String()
	}
	return fmt.Sprintf("LLM request failed after %d retries (%s): %v",
		e.RetryCount, strings.Join(names, " -> "), e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// ErrorKind classifies the error for surfaces.
func (e *RetryExhaustedError) ErrorKind() apperrors.Kind { return apperrors.KindRetryExhausted }
