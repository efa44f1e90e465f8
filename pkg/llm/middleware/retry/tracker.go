package retry

import (
	"context"
	"sync"
	"time"
)

// Attempt records one failed call.
type Attempt struct {
	Err     error
	Delay   time.Duration // wait before the next attempt, zero on the last one
	Number  int
	Retried bool
}

// Tracker collects the attempts made by the retry middleware for one logical request.
// The connector attaches one per chain entry to report retry counts.
type Tracker struct {
	attempts []Attempt
	calls    int
	mu       sync.Mutex
}

type trackerKey struct{}

// WithTracker returns a context carrying t.
func WithTracker(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, trackerKey{}, t)
}

func trackerFrom(ctx context.Context) *Tracker {
	t, _ := ctx.Value(trackerKey{}).(*Tracker)
	return t
}

func (t *Tracker) call() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
}

func (t *Tracker) fail(a Attempt) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.attempts = append(t.attempts, a)
	t.mu.Unlock()
}

// Calls returns how many times the wrapped client was invoked.
func (t *Tracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Retries returns how many retries were performed (calls after the first).
func (t *Tracker) Retries() int {
	n := t.Calls() - 1
	if n < 0 {
		return 0
	}
	return n
}

// Failures returns the failed attempts in order.
func (t *Tracker) Failures() []Attempt {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Attempt(nil), t.attempts...)
}
