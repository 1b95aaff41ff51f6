package risk

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tradeops/riskgate/journal"
)

// memJournal captures events in memory for assertions.
type memJournal struct {
	mu     sync.Mutex
	events []journal.Event
}

func (m *memJournal) RecordEvent(e journal.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memJournal) Close() error { return nil }

func (m *memJournal) codes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Code
	}
	return out
}

type memIntervalStore struct {
	mu sync.Mutex
	m  map[string]int
}

func newMemIntervalStore() *memIntervalStore {
	return &memIntervalStore{m: make(map[string]int)}
}

func (s *memIntervalStore) LoadInterval(key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[key], nil
}

func (s *memIntervalStore) SaveInterval(key string, minutes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = minutes
	return nil
}

func testKey(sym string) ScopeKey {
	return ScopeKey{AccountID: "A1", StrategyRef: "manual", Symbol: "NSE:" + sym, Product: "MIS"}
}

func TestIntervalResolverPriority(t *testing.T) {
	t.Parallel()

	store := newMemIntervalStore()
	j := &memJournal{}
	r := NewIntervalResolver(store, j)
	key := testKey("TCS")

	// Payload interval wins outright.
	assert.Equal(t, 15, r.Resolve(key, 15, 30))
	// Rule timeframe next.
	assert.Equal(t, 30, r.Resolve(key, 0, 30))
	// Persisted value (30 from the previous resolve) beats the fallback.
	assert.Equal(t, 30, r.Resolve(key, 0, 0))
	assert.Empty(t, j.codes())
}

func TestIntervalResolverFallbackEmitsOnce(t *testing.T) {
	t.Parallel()

	j := &memJournal{}
	r := NewIntervalResolver(nil, j)
	key := testKey("INFY")

	assert.Equal(t, DefaultIntervalMinutes, r.Resolve(key, 0, 0))
	assert.Equal(t, DefaultIntervalMinutes, r.Resolve(key, 0, 0))
	assert.Equal(t, []string{CodeIntervalFallback}, j.codes())

	// A different key gets its own notice.
	r.Resolve(testKey("WIPRO"), 0, 0)
	assert.Len(t, j.codes(), 2)
}

func TestIntervalResolverFallbackPersists(t *testing.T) {
	t.Parallel()

	store := newMemIntervalStore()
	j := &memJournal{}
	key := testKey("HDFC")

	r := NewIntervalResolver(store, j)
	assert.Equal(t, DefaultIntervalMinutes, r.Resolve(key, 0, 0))
	assert.Len(t, j.codes(), 1)

	// A fresh resolver (new process) finds the persisted interval and does
	// not announce a fallback again.
	r2 := NewIntervalResolver(store, j)
	assert.Equal(t, DefaultIntervalMinutes, r2.Resolve(key, 0, 0))
	assert.Len(t, j.codes(), 1)
}
