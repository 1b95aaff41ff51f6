// Package journal records every risk decision and managed-exit transition.
//
// The journal is the authoritative audit trail: blocks, clamps, pause
// activations and expiries, fallback-interval notices and exit triggers all
// land here. Two backends are provided, CSV for quick inspection and SQLite
// for queries.
package journal

import "time"

// Event categories.
const (
	CategoryRisk  = "risk"
	CategoryOrder = "order"
)

// Event levels.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Event is a single recorded decision or state transition.
type Event struct {
	ID       string
	Category string // "risk" or "order"
	Level    string
	ScopeKey string // canonical scope key string, may be empty
	Code     string // stable reason code, e.g. TRADE_FREQ_MAX_TRADES
	Message  string
	Time     time.Time
}

type Journal interface {
	RecordEvent(Event) error
	Close() error
}

// Nop discards every event. Useful for tests and for callers that have not
// configured a journal yet.
type Nop struct{}

func (Nop) RecordEvent(Event) error { return nil }
func (Nop) Close() error            { return nil }
