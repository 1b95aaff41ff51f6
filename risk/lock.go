package risk

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrScopeBusy is returned when a scope lock cannot be acquired within the
// bounded wait. Callers should treat it as retryable contention, not as a
// policy rejection.
var ErrScopeBusy = errors.New("scope busy")

// ScopeLock provides one mutual-exclusion unit per scope key. Locks for
// different keys never contend. Acquisition is bounded: rather than queueing
// indefinitely behind a slow evaluation, a caller times out and gets a
// "busy" decision it can retry.
type ScopeLock struct {
	mu  sync.Mutex
	sem map[string]chan struct{}
}

func NewScopeLock() *ScopeLock {
	return &ScopeLock{sem: make(map[string]chan struct{})}
}

// Acquire takes the lock for key, waiting at most timeout. On success it
// returns a release func that must be called exactly once. On timeout it
// returns ErrScopeBusy; on context cancellation, the context's error.
//
// Per-key channels are never removed; the table is bounded by scope-key
// cardinality, which is small (accounts x strategies x symbols in use).
func (l *ScopeLock) Acquire(ctx context.Context, key ScopeKey, timeout time.Duration) (release func(), err error) {
	ch := l.chanFor(key.String())

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-timer.C:
		return nil, ErrScopeBusy
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *ScopeLock) chanFor(ks string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.sem[ks]
	if !ok {
		ch = make(chan struct{}, 1)
		l.sem[ks] = ch
	}
	return ch
}
