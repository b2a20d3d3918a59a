package client

import (
	"sync"
)

// DefaultMaxFailures is the consecutive-failure ceiling used when none is configured.
const DefaultMaxFailures = 10

// FailureBudget tracks consecutive request failures against a ceiling.
// One budget is shared by every concurrent call of a Client, so all
// updates happen under a mutex.
//
// Once the ceiling is reached the budget is exhausted for good: the
// counter freezes, Exhausted() is closed and later successes do not
// revive it.
type FailureBudget struct {
	mu        sync.Mutex
	ceiling   int
	failures  int
	tripped   bool
	exhausted chan struct{}
}

// NewFailureBudget creates a budget that trips after ceiling consecutive failures.
// A ceiling below 1 falls back to DefaultMaxFailures.
func NewFailureBudget(ceiling int) *FailureBudget {
	if ceiling < 1 {
		ceiling = DefaultMaxFailures
	}
	return &FailureBudget{
		ceiling:   ceiling,
		exhausted: make(chan struct{}),
	}
}

// Fail records one failure. It returns the new count and whether this
// failure exhausted the budget. After exhaustion Fail is a no-op.
func (b *FailureBudget) Fail() (failures int, tripped bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tripped {
		return b.failures, false
	}

	b.failures++
	if b.failures >= b.ceiling {
		b.tripped = true
		close(b.exhausted)
		return b.failures, true
	}
	return b.failures, false
}

// Succeed resets the consecutive-failure counter.
func (b *FailureBudget) Succeed() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.tripped {
		b.failures = 0
	}
}

// Failures returns the current consecutive-failure count.
func (b *FailureBudget) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Ceiling returns the configured ceiling.
func (b *FailureBudget) Ceiling() int {
	return b.ceiling
}

// Remaining returns how many more consecutive failures are tolerated.
func (b *FailureBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ceiling - b.failures
}

// IsExhausted reports whether the ceiling has been reached.
func (b *FailureBudget) IsExhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped
}

// Exhausted returns a channel that is closed when the ceiling is reached.
func (b *FailureBudget) Exhausted() <-chan struct{} {
	return b.exhausted
}
