// Package risk is the execution choke point: the single code path every
// order dispatch passes through before it is allowed to reach a broker.
// It resolves the scope key for an intent, serializes concurrent dispatches
// per key, and folds the enabled enforcement groups into one decision:
// ALLOW, BLOCK(code) or CLAMP(qty, code).
package risk

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tradeops/riskgate/broker"
	"github.com/tradeops/riskgate/journal"
	"github.com/tradeops/riskgate/metrics"
)

// DefaultLockTimeout bounds how long one dispatch waits behind another for
// the same scope key before returning a retryable "busy" block.
const DefaultLockTimeout = 3 * time.Second

// ChokePoint orchestrates scope resolution, per-key locking and the ordered
// enforcement groups. All mutable per-key state lives in its sub-components;
// mutations are committed only when the overall decision allows the order,
// so a blocked attempt never consumes a frequency slot.
type ChokePoint struct {
	registry  *ToggleRegistry
	locks     *ScopeLock
	frequency *TradeFrequencyLimiter
	streaks   *LossStreakController
	intervals *IntervalResolver
	account   broker.AccountProvider // nil disables the account-limits group
	journal   journal.Journal

	lockTimeout time.Duration
	checks      []policyCheck
	now         func() time.Time
}

type evalContext struct {
	ctx      context.Context
	now      time.Time
	key      ScopeKey
	intent   Intent
	policy   Policy
	interval int
}

// policyCheck is one enforcement group's check over a shared evaluation
// context. A nil result means the group passes; a Block short-circuits; a
// Clamp is carried forward and composed by minimum.
type policyCheck struct {
	group Group
	run   func(*evalContext) *Decision
}

func NewChokePoint(reg *ToggleRegistry, loc *time.Location, store IntervalStore, j journal.Journal) *ChokePoint {
	if j == nil {
		j = journal.Nop{}
	}
	c := &ChokePoint{
		registry:    reg,
		locks:       NewScopeLock(),
		frequency:   NewTradeFrequencyLimiter(loc),
		streaks:     NewLossStreakController(loc, j),
		intervals:   NewIntervalResolver(store, j),
		journal:     j,
		lockTimeout: DefaultLockTimeout,
		now:         time.Now,
	}
	// Fixed evaluation order; first BLOCK wins, clamps compose.
	c.checks = []policyCheck{
		{GroupTradeFrequency, c.checkFrequency},
		{GroupLossControl, c.checkLossStreak},
		{GroupAccountLimits, c.checkAccountLimits},
		{GroupSizing, c.checkSizing},
		{GroupStopRules, c.checkStopRules},
	}
	return c
}

// SetAccountProvider wires the collaborator backing the account-limits
// group. Without one the group is skipped even when toggled on.
func (c *ChokePoint) SetAccountProvider(p broker.AccountProvider) { c.account = p }

// SetLockTimeout overrides the bounded wait for the per-scope lock.
func (c *ChokePoint) SetLockTimeout(d time.Duration) { c.lockTimeout = d }

// Frequency exposes the limiter, e.g. for state inspection.
func (c *ChokePoint) Frequency() *TradeFrequencyLimiter { return c.frequency }

// Streaks exposes the loss-streak controller.
func (c *ChokePoint) Streaks() *LossStreakController { return c.streaks }

// Evaluate decides whether one order-dispatch attempt may proceed. The only
// error returns are validation failures (unresolvable scope key) and context
// cancellation; everything else is expressed as a Decision.
func (c *ChokePoint) Evaluate(ctx context.Context, intent Intent) (Decision, error) {
	policy := c.registry.Snapshot()

	// Master kill switch.
	if !policy.EnforcementEnabled {
		return Allow(intent.Qty), nil
	}

	// Exits always go through. This is a safety override: blocking an
	// order that reduces exposure is never acceptable, regardless of
	// configuration.
	if intent.IsExit {
		return Allow(intent.Qty), nil
	}

	key, err := ResolveScopeKey(intent)
	if err != nil {
		return Decision{}, err
	}

	release, err := c.locks.Acquire(ctx, key, c.lockTimeout)
	if err != nil {
		if err == ErrScopeBusy {
			d := Block(CodeConcurrent, "another evaluation for this scope is in progress")
			c.record(key, d)
			return d, nil
		}
		return Decision{}, err
	}
	defer release()

	ec := &evalContext{
		ctx:      ctx,
		now:      c.now(),
		key:      key,
		intent:   intent,
		policy:   policy,
		interval: c.intervals.Resolve(key, intent.IntervalMinutes, intent.RuleIntervalMinutes),
	}

	decision := Allow(intent.Qty)
	for _, chk := range c.checks {
		if !policy.Enabled(chk.group) {
			continue
		}
		d := chk.run(ec)
		if d == nil {
			continue
		}
		if d.Outcome == OutcomeBlock {
			c.record(key, *d)
			return *d, nil
		}
		if d.Outcome == OutcomeClamp && d.Qty < decision.Qty {
			decision = *d
		}
	}

	// State commits happen only on the allowed path, under the scope lock.
	// A disabled group is skipped entirely, bookkeeping included.
	if policy.Enabled(GroupTradeFrequency) {
		c.frequency.CommitEntry(key, ec.interval)
	}

	if decision.Outcome == OutcomeClamp {
		c.record(key, decision)
	} else {
		metrics.DecisionObserved(string(decision.Outcome), decision.Code)
	}
	return decision, nil
}

// OnTradeClosed feeds a closed trade into the frequency cooldown and the
// loss-streak controller for the scope key.
func (c *ChokePoint) OnTradeClosed(key ScopeKey, wasLoss bool) {
	policy := c.registry.Snapshot()
	c.frequency.RecordClose(key, wasLoss)
	c.streaks.OnTradeClosed(key, wasLoss, policy.LossControl)
}

func (c *ChokePoint) checkFrequency(ec *evalContext) *Decision {
	d := c.frequency.Check(ec.key, ec.policy.Frequency, ec.interval)
	if d.Outcome == OutcomeBlock {
		return &d
	}
	return nil
}

func (c *ChokePoint) checkLossStreak(ec *evalContext) *Decision {
	d := c.streaks.Check(ec.key)
	if d.Outcome == OutcomeBlock {
		return &d
	}
	return nil
}

func (c *ChokePoint) checkAccountLimits(ec *evalContext) *Decision {
	if c.account == nil {
		return nil
	}
	snap, err := c.account.Account(ec.ctx)
	if err != nil {
		// Fail closed: an unavailable account snapshot blocks rather
		// than letting the order through unchecked.
		d := Block(CodeStateUnavailable, "account state unavailable: "+err.Error())
		return &d
	}

	lim := ec.policy.Account
	if lim.MaxOpenPositions > 0 && snap.OpenPositions >= lim.MaxOpenPositions {
		d := Block(CodeAccountMaxOpen,
			fmt.Sprintf("open positions %d >= max %d", snap.OpenPositions, lim.MaxOpenPositions))
		return &d
	}
	if lim.MaxDailyLossPct > 0 && snap.Equity > 0 {
		limit := -lim.MaxDailyLossPct * snap.Equity
		if snap.DayRealizedPnL <= limit {
			d := Block(CodeAccountDailyLoss,
				fmt.Sprintf("day realized %.2f <= limit %.2f", snap.DayRealizedPnL, limit))
			return &d
		}
	}
	return nil
}

func (c *ChokePoint) checkSizing(ec *evalContext) *Decision {
	lim := ec.policy.Sizing
	qty := ec.intent.Qty
	code := ""
	msg := ""

	if lim.MaxQtyPerTrade > 0 && qty > lim.MaxQtyPerTrade {
		qty = lim.MaxQtyPerTrade
		code = CodeSizingMaxQty
		msg = fmt.Sprintf("qty %.4f clamped to per-trade cap %.4f", ec.intent.Qty, qty)
	}
	if lim.MaxNotionalPerTrade > 0 && ec.intent.Price > 0 {
		if qty*ec.intent.Price > lim.MaxNotionalPerTrade {
			capped := math.Floor(lim.MaxNotionalPerTrade / ec.intent.Price)
			if capped < qty {
				qty = capped
				code = CodeSizingMaxNotional
				msg = fmt.Sprintf("qty clamped to %.0f by notional cap %.2f", capped, lim.MaxNotionalPerTrade)
			}
		}
	}

	if code == "" {
		return nil
	}
	if qty <= 0 {
		d := Block(CodeSizingZeroQty, "sizing limits leave no quantity to submit")
		return &d
	}
	d := Clamp(qty, code, msg)
	return &d
}

func (c *ChokePoint) checkStopRules(ec *evalContext) *Decision {
	if ec.policy.StopRules.RequireStopLoss && !ec.intent.HasStopLoss {
		d := Block(CodeStopRequired, "entries require an enabled stop-loss")
		return &d
	}
	return nil
}

func (c *ChokePoint) record(key ScopeKey, d Decision) {
	metrics.DecisionObserved(string(d.Outcome), d.Code)

	level := journal.LevelWarn
	if d.Outcome == OutcomeClamp {
		level = journal.LevelInfo
	}
	_ = c.journal.RecordEvent(journal.Event{
		Category: journal.CategoryRisk,
		Level:    level,
		ScopeKey: key.String(),
		Code:     d.Code,
		Message:  d.Message,
		Time:     c.now().UTC(),
	})

	// A blocked entry is a terminal order rejection; record it on the order
	// trail with the generic code so order listings show why nothing was
	// submitted.
	if d.Outcome == OutcomeBlock {
		_ = c.journal.RecordEvent(journal.Event{
			Category: journal.CategoryOrder,
			Level:    journal.LevelInfo,
			ScopeKey: key.String(),
			Code:     CodeRejectedRisk,
			Message:  "order rejected by risk: " + d.Code,
			Time:     c.now().UTC(),
		})
	}
}
