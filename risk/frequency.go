package risk

import (
	"fmt"
	"sync"
	"time"
)

// FrequencyState is the per-scope-key bookkeeping behind the trade-frequency
// rules. DayOpen anchors the counting day in the reference timezone;
// TradesToday is only meaningful relative to it.
type FrequencyState struct {
	TradesToday       int
	DayOpen           time.Time
	LastEntryTime     time.Time
	LastEntryInterval int // minutes

	LastCloseTime time.Time
	LastCloseLoss bool
}

// FrequencyStore is the concurrent table of FrequencyState keyed by scope
// key. Accessors copy on read; mutation happens through update closures.
// Serialization across a whole evaluate-and-commit sequence is the scope
// lock's job, not this store's.
type FrequencyStore struct {
	mu sync.RWMutex
	m  map[string]FrequencyState
}

func NewFrequencyStore() *FrequencyStore {
	return &FrequencyStore{m: make(map[string]FrequencyState)}
}

func (s *FrequencyStore) get(key string) FrequencyState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m[key]
}

func (s *FrequencyStore) update(key string, fn func(*FrequencyState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.m[key]
	fn(&st)
	s.m[key] = st
}

// TradeFrequencyLimiter enforces max trades per day, minimum bars between
// entries and the post-loss cooldown. Check never mutates state; a stale
// DayOpen is treated as zero trades on read and only rolled forward by
// CommitEntry once an entry is actually allowed.
type TradeFrequencyLimiter struct {
	store *FrequencyStore
	loc   *time.Location
	now   func() time.Time
}

func NewTradeFrequencyLimiter(loc *time.Location) *TradeFrequencyLimiter {
	return &TradeFrequencyLimiter{
		store: NewFrequencyStore(),
		loc:   loc,
		now:   time.Now,
	}
}

// Check evaluates the frequency rules for an entry intent. Rules run in a
// fixed order and the first failure wins. Exit intents must never reach this.
func (l *TradeFrequencyLimiter) Check(key ScopeKey, limits FrequencyLimits, intervalMinutes int) Decision {
	now := l.now()
	st := l.store.get(key.String())

	tradesToday := st.TradesToday
	if st.DayOpen.IsZero() || !SameDay(st.DayOpen, now, l.loc) {
		tradesToday = 0
	}

	if limits.MaxTradesPerDay > 0 && tradesToday >= limits.MaxTradesPerDay {
		return Block(CodeMaxTrades,
			fmt.Sprintf("%d trades today >= daily cap %d", tradesToday, limits.MaxTradesPerDay))
	}

	if limits.MinBarsBetweenTrades > 0 && !st.LastEntryTime.IsZero() {
		bars := barsSince(now, st.LastEntryTime, pickInterval(st.LastEntryInterval, intervalMinutes))
		if bars < limits.MinBarsBetweenTrades {
			return Block(CodeMinBars,
				fmt.Sprintf("%d bars since last entry < minimum %d", bars, limits.MinBarsBetweenTrades))
		}
	}

	if limits.CooldownAfterLossBars > 0 && st.LastCloseLoss && !st.LastCloseTime.IsZero() {
		bars := barsSince(now, st.LastCloseTime, pickInterval(st.LastEntryInterval, intervalMinutes))
		if bars < limits.CooldownAfterLossBars {
			return Block(CodeCooldownLoss,
				fmt.Sprintf("%d bars since losing close < cooldown %d", bars, limits.CooldownAfterLossBars))
		}
	}

	return Allow(0)
}

// CommitEntry records an allowed entry: one atomic read-modify-write that
// rolls the day forward if needed, increments the counter and stamps the
// entry time and interval. Call only while holding the scope lock.
func (l *TradeFrequencyLimiter) CommitEntry(key ScopeKey, intervalMinutes int) {
	now := l.now()
	l.store.update(key.String(), func(st *FrequencyState) {
		if st.DayOpen.IsZero() || !SameDay(st.DayOpen, now, l.loc) {
			st.TradesToday = 0
			st.DayOpen = DayOpen(now, l.loc)
		}
		st.TradesToday++
		st.LastEntryTime = now
		st.LastEntryInterval = intervalMinutes
	})
}

// RecordClose stamps the most recent closed trade for the cooldown rule.
func (l *TradeFrequencyLimiter) RecordClose(key ScopeKey, wasLoss bool) {
	now := l.now()
	l.store.update(key.String(), func(st *FrequencyState) {
		st.LastCloseTime = now
		st.LastCloseLoss = wasLoss
	})
}

// State returns a copy of the current state for a key, for inspection.
func (l *TradeFrequencyLimiter) State(key ScopeKey) FrequencyState {
	return l.store.get(key.String())
}

// barsSince converts a wall-clock gap into whole bars, floored.
func barsSince(now, since time.Time, intervalMinutes int) int {
	if intervalMinutes <= 0 {
		intervalMinutes = DefaultIntervalMinutes
	}
	gap := now.Sub(since)
	if gap < 0 {
		return 0
	}
	return int(gap / (time.Duration(intervalMinutes) * time.Minute))
}

// pickInterval prefers the interval recorded with the last entry, falling
// back to the freshly resolved one for first-ever evaluations.
func pickInterval(recorded, resolved int) int {
	if recorded > 0 {
		return recorded
	}
	return resolved
}
