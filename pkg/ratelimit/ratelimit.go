package ratelimit

import (
	"fmt"
	"sync"
	"time"

	appErrors "github.com/modulearn/modulearn-api/pkg/errors"
)

// Action names a rate-limited operation.
type Action string

const (
	ActionPDFUpload     Action = "PDF_UPLOAD"
	ActionPDFProcessing Action = "PDF_PROCESSING"
	ActionTeamInvite    Action = "TEAM_INVITE"
)

// Rule configures one fixed window.
type Rule struct {
	Window      time.Duration
	MaxRequests int
}

type windowState struct {
	windowStart time.Time
	count       int
}

// FixedWindow counts requests per (subject, action) pair inside consecutive
// fixed windows. State is process-local; a multi-instance deployment needs a
// shared backend behind the same interface.
type FixedWindow struct {
	mu      sync.Mutex
	rules   map[Action]Rule
	windows map[string]*windowState
	now     func() time.Time
}

// NewFixedWindow constructs a limiter with the provided per-action rules.
func NewFixedWindow(rules map[Action]Rule) *FixedWindow {
	return &FixedWindow{
		rules:   rules,
		windows: make(map[string]*windowState),
		now:     time.Now,
	}
}

// Check records one attempt for the subject and action. When the configured
// ceiling is exceeded it returns a RateLimitError whose RetryAfter is the
// time left in the current window; otherwise the attempt counts and nil is
// returned. Unknown actions pass freely.
func (l *FixedWindow) Check(subject string, action Action) error {
	rule, ok := l.rules[action]
	if !ok || rule.MaxRequests <= 0 || rule.Window <= 0 {
		return nil
	}

	key := fmt.Sprintf("%s:%s", subject, action)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.windows[key]
	if !ok || now.Sub(state.windowStart) >= rule.Window {
		l.windows[key] = &windowState{windowStart: now, count: 1}
		return nil
	}

	if state.count >= rule.MaxRequests {
		retryAfter := rule.Window - now.Sub(state.windowStart)
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		return &appErrors.RateLimitError{Action: string(action), RetryAfter: retryAfter}
	}

	state.count++
	return nil
}

// Reset clears the window for a (subject, action) pair. Used by tests and by
// admin tooling to unblock a caller.
func (l *FixedWindow) Reset(subject string, action Action) {
	l.mu.Lock()
	delete(l.windows, fmt.Sprintf("%s:%s", subject, action))
	l.mu.Unlock()
}

type bucketState struct {
	tokens   float64
	lastFill time.Time
}

// TokenBucket protects burst-sensitive operations with continuous refill.
type TokenBucket struct {
	mu        sync.Mutex
	capacity  float64
	refillPer float64
	buckets   map[string]*bucketState
	now       func() time.Time
}

// NewTokenBucket constructs a bucket limiter. refillPerSecond may be
// fractional (e.g. 0.1 = one token every ten seconds).
func NewTokenBucket(capacity int, refillPerSecond float64) *TokenBucket {
	if capacity <= 0 {
		capacity = 1
	}
	if refillPerSecond <= 0 {
		refillPerSecond = 1
	}
	return &TokenBucket{
		capacity:  float64(capacity),
		refillPer: refillPerSecond,
		buckets:   make(map[string]*bucketState),
		now:       time.Now,
	}
}

// Take consumes one token for the subject. When the bucket is empty it
// returns a RateLimitError with the time until the next token.
func (b *TokenBucket) Take(subject string) error {
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.buckets[subject]
	if !ok {
		state = &bucketState{tokens: b.capacity, lastFill: now}
		b.buckets[subject] = state
	} else {
		elapsed := now.Sub(state.lastFill).Seconds()
		state.tokens += elapsed * b.refillPer
		if state.tokens > b.capacity {
			state.tokens = b.capacity
		}
		state.lastFill = now
	}

	if state.tokens < 1 {
		deficit := 1 - state.tokens
		retryAfter := time.Duration(deficit / b.refillPer * float64(time.Second))
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		return &appErrors.RateLimitError{Action: "burst", RetryAfter: retryAfter}
	}

	state.tokens--
	return nil
}
