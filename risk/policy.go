package risk

import "sync"

// Group names the enforcement groups evaluated by the choke point, in their
// fixed evaluation order.
type Group string

const (
	GroupTradeFrequency Group = "trade_frequency"
	GroupLossControl    Group = "loss_control"
	GroupAccountLimits  Group = "account_limits"
	GroupSizing         Group = "per_trade_sizing"
	GroupStopRules      Group = "stop_rules"
)

// Groups lists every enforcement group in evaluation order.
var Groups = []Group{
	GroupTradeFrequency,
	GroupLossControl,
	GroupAccountLimits,
	GroupSizing,
	GroupStopRules,
}

type FrequencyLimits struct {
	MaxTradesPerDay       int
	MinBarsBetweenTrades  int
	CooldownAfterLossBars int
}

type LossLimits struct {
	MaxConsecutiveLosses int
	PauseAfterLossStreak bool
}

type AccountLimits struct {
	MaxOpenPositions int
	MaxDailyLossPct  float64 // fraction of equity, e.g. 0.015
}

type SizingLimits struct {
	MaxQtyPerTrade      float64
	MaxNotionalPerTrade float64
}

type StopRules struct {
	RequireStopLoss bool
}

// Policy is the enforcement configuration snapshot read by the choke point.
// It is owned and mutated by configuration management outside the core; the
// core only ever reads it. A zero threshold disables that individual rule; a
// group absent from GroupEnabled is off.
type Policy struct {
	EnforcementEnabled bool
	GroupEnabled       map[Group]bool

	Frequency   FrequencyLimits
	LossControl LossLimits
	Account     AccountLimits
	Sizing      SizingLimits
	StopRules   StopRules
}

// Enabled reports whether a group's checks should run at all.
func (p Policy) Enabled(g Group) bool {
	return p.GroupEnabled[g]
}

// ToggleRegistry holds the current Policy and hands out consistent snapshots
// to concurrent evaluations. Config management swaps the whole policy or
// flips individual toggles; evaluations never see a half-updated policy.
type ToggleRegistry struct {
	mu sync.RWMutex
	p  Policy
}

func NewToggleRegistry(p Policy) *ToggleRegistry {
	return &ToggleRegistry{p: clonePolicy(p)}
}

// Snapshot returns a copy safe to read for the duration of one evaluation.
func (r *ToggleRegistry) Snapshot() Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clonePolicy(r.p)
}

// Update replaces the whole policy atomically.
func (r *ToggleRegistry) Update(p Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.p = clonePolicy(p)
}

// SetEnforcement flips the master kill switch.
func (r *ToggleRegistry) SetEnforcement(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.p.EnforcementEnabled = on
}

// SetGroup flips a single group toggle.
func (r *ToggleRegistry) SetGroup(g Group, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.p.GroupEnabled == nil {
		r.p.GroupEnabled = make(map[Group]bool)
	}
	r.p.GroupEnabled[g] = on
}

func clonePolicy(p Policy) Policy {
	out := p
	out.GroupEnabled = make(map[Group]bool, len(p.GroupEnabled))
	for g, on := range p.GroupEnabled {
		out.GroupEnabled[g] = on
	}
	return out
}
