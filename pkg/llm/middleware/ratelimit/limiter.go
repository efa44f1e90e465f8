// Package ratelimit caps the tokens and concurrent calls sent to one provider/model, with a
// per-minute token bucket, a concurrency limit and a daily token budget.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fortuneteller/pkg/llm/llmerrors"
)

var (
	// ErrRateLimit is returned when the per-minute token bucket is empty.
	ErrRateLimit = fmt.Errorf("token rate limit exceeded: %w", llmerrors.ErrThrottled)
	// ErrBudgetExceeded is returned when the daily token budget is spent.
	ErrBudgetExceeded = fmt.Errorf("daily token budget exceeded: %w", llmerrors.ErrThrottled)
)

// Config holds the limits. Zero disables a limit.
type Config struct {
	TokensPerMinute int
	MaxConcurrent   int
	DailyTokens     int
}

// Status is a point-in-time view of a limiter.
type Status struct {
	Tokens    int
	UsedToday int
	Active    int
}

// Limiter enforces Config for one chain entry. Safe for concurrent use.
//
//nolint:govet // field order follows the lock
type Limiter struct {
	slots chan struct{}
	now   func() time.Time
	cfg   Config

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	usedToday  int
	day        time.Time
}

// New creates a limiter starting with a full bucket. A nil now uses time.Now.
func New(cfg Config, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	l := &Limiter{
		cfg:        cfg,
		now:        now,
		tokens:     float64(cfg.TokensPerMinute),
		lastRefill: now(),
		day:        midnight(now()),
	}
	if cfg.MaxConcurrent > 0 {
		l.slots = make(chan struct{}, cfg.MaxConcurrent)
	}
	return l
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Acquire waits for a concurrency slot. The returned func releases it.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if l.slots == nil {
		return func() {}, nil
	}
	select {
	case l.slots <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-l.slots }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reserve takes tokens from the bucket and the daily budget. A request larger than the
// bucket needs the whole bucket.
func (l *Limiter) Reserve(tokens int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()

	if l.cfg.DailyTokens > 0 && l.usedToday+tokens > l.cfg.DailyTokens {
		return ErrBudgetExceeded
	}
	if l.cfg.TokensPerMinute > 0 {
		need := float64(min(tokens, l.cfg.TokensPerMinute))
		if l.tokens < need {
			return ErrRateLimit
		}
		l.tokens -= need
	}
	l.usedToday += tokens
	return nil
}

// Commit replaces a reservation with the tokens the call actually used. Failed calls
// commit zero and get their daily reservation back.
func (l *Limiter) Commit(reserved, used int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	l.usedToday = max(0, l.usedToday-reserved+used)
}

// Status reports the current bucket, daily usage and active calls.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	return Status{Tokens: int(l.tokens), UsedToday: l.usedToday, Active: len(l.slots)}
}

func (l *Limiter) refill() {
	now := l.now()

	if today := midnight(now); today.After(l.day) {
		l.day = today
		l.usedToday = 0
	}

	if l.cfg.TokensPerMinute <= 0 {
		return
	}
	elapsed := now.Sub(l.lastRefill)
	if elapsed <= 0 {
		return
	}
	l.tokens += elapsed.Minutes() * float64(l.cfg.TokensPerMinute)
	if capacity := float64(l.cfg.TokensPerMinute); l.tokens > capacity {
		l.tokens = capacity
	}
	l.lastRefill = now
}
