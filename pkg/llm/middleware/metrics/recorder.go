// Package metrics provides metrics recording for LLM client operations.
package metrics

import (
	"time"

	"fortuneteller/pkg/llm"
)

// Request describes one completed call for recording.
type Request struct {
	Provider  string
	Model     string
	System    string
	ErrorType string
	Usage     llm.Usage
	Duration  time.Duration
	Success   bool
}

// Recorder defines the interface for recording LLM operation metrics.
type Recorder interface {
	// ObserveRequest records metrics for a completed LLM request.
	ObserveRequest(r Request)

	// IncRetry counts a retried attempt.
	IncRetry(provider, model, errorType string)

	// IncFallback counts a switch from one chain entry to the next.
	IncFallback(from, to string)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRequest(Request) {}

// IncRetry does nothing in the no-op recorder.
func (n *NoopRecorder) IncRetry(_, _, _ string) {}

// IncFallback does nothing in the no-op recorder.
func (n *NoopRecorder) IncFallback(_, _ string) {}
