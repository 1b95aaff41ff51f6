package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/tradeops/riskgate/journal"
)

// DefaultIntervalMinutes is the fallback bar length when no interval can be
// resolved from the payload, the alert rule or persisted state.
const DefaultIntervalMinutes = 5

// IntervalStore persists resolved bar intervals per scope key so later
// evaluations prefer "persisted" over the fallback. The SQLite journal
// implements this.
type IntervalStore interface {
	LoadInterval(scopeKey string) (minutes int, err error)
	SaveInterval(scopeKey string, minutes int) error
}

// IntervalResolver determines the bar duration used to convert wall-clock
// gaps into "bars" for frequency thresholds.
//
// Priority: inbound payload interval, then the alert rule's stored timeframe,
// then the previously persisted interval for the scope key, then the
// 5-minute default. Using the default emits one informational event per
// scope key; it is never re-emitted in the same process lifetime or once an
// interval has been persisted.
type IntervalResolver struct {
	store   IntervalStore // may be nil
	journal journal.Journal

	mu        sync.Mutex
	announced map[string]struct{}
}

func NewIntervalResolver(store IntervalStore, j journal.Journal) *IntervalResolver {
	if j == nil {
		j = journal.Nop{}
	}
	return &IntervalResolver{
		store:     store,
		journal:   j,
		announced: make(map[string]struct{}),
	}
}

// Resolve returns the bar interval in minutes for the scope key, persisting
// whatever it resolves. payloadMinutes and ruleMinutes are 0 when absent.
func (r *IntervalResolver) Resolve(key ScopeKey, payloadMinutes, ruleMinutes int) int {
	ks := key.String()

	minutes := 0
	switch {
	case payloadMinutes > 0:
		minutes = payloadMinutes
	case ruleMinutes > 0:
		minutes = ruleMinutes
	default:
		if r.store != nil {
			if persisted, err := r.store.LoadInterval(ks); err == nil && persisted > 0 {
				minutes = persisted
			}
		}
	}

	if minutes == 0 {
		minutes = DefaultIntervalMinutes
		r.announceFallback(ks)
	}

	if r.store != nil {
		// Best effort; a persistence failure just means the next resolve
		// may fall back again.
		_ = r.store.SaveInterval(ks, minutes)
	}
	return minutes
}

func (r *IntervalResolver) announceFallback(ks string) {
	r.mu.Lock()
	_, seen := r.announced[ks]
	if !seen {
		r.announced[ks] = struct{}{}
	}
	r.mu.Unlock()
	if seen {
		return
	}

	_ = r.journal.RecordEvent(journal.Event{
		Category: journal.CategoryRisk,
		Level:    journal.LevelInfo,
		ScopeKey: ks,
		Code:     CodeIntervalFallback,
		Message:  fmt.Sprintf("no interval resolvable, using %dm default", DefaultIntervalMinutes),
		Time:     time.Now().UTC(),
	})
}
