package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/tradeops/riskgate/journal"
	"github.com/tradeops/riskgate/metrics"
)

// LossStreakState tracks consecutive losing closes for one scope key and the
// pause window applied when the streak hits the configured threshold.
type LossStreakState struct {
	ConsecutiveLosses int
	PausedUntil       time.Time
	PauseCode         string // reason code the pause blocks with
}

// LossStreakController applies an end-of-day pause after a configured run of
// losing closes. A paused_until in the past is treated as already cleared on
// the next Check without an explicit clear call.
type LossStreakController struct {
	mu      sync.Mutex
	m       map[string]LossStreakState
	loc     *time.Location
	journal journal.Journal
	now     func() time.Time
}

func NewLossStreakController(loc *time.Location, j journal.Journal) *LossStreakController {
	if j == nil {
		j = journal.Nop{}
	}
	return &LossStreakController{
		m:       make(map[string]LossStreakState),
		loc:     loc,
		journal: j,
		now:     time.Now,
	}
}

// OnTradeClosed updates the streak for a closed trade. A win resets the
// streak and clears any pause. A loss that reaches the threshold (with the
// pause feature on) pauses the scope until the next reference-day boundary;
// the pause applies to the next Check, never retroactively.
func (c *LossStreakController) OnTradeClosed(key ScopeKey, wasLoss bool, limits LossLimits) {
	now := c.now()
	ks := key.String()

	c.mu.Lock()
	st := c.m[ks]
	var activated time.Time
	if !wasLoss {
		st = LossStreakState{}
	} else {
		st.ConsecutiveLosses++
		if limits.PauseAfterLossStreak &&
			limits.MaxConsecutiveLosses > 0 &&
			st.ConsecutiveLosses >= limits.MaxConsecutiveLosses &&
			st.PausedUntil.IsZero() {
			st.PausedUntil = NextDayOpen(now, c.loc)
			st.PauseCode = CodeLossStreakPause
			activated = st.PausedUntil
		}
	}
	c.m[ks] = st
	c.mu.Unlock()

	if !activated.IsZero() {
		metrics.PauseActivated()
		_ = c.journal.RecordEvent(journal.Event{
			Category: journal.CategoryRisk,
			Level:    journal.LevelWarn,
			ScopeKey: ks,
			Code:     CodeLossStreakPause,
			Message:  fmt.Sprintf("%d consecutive losses, paused until %s", st.ConsecutiveLosses, activated.Format(time.RFC3339)),
			Time:     now.UTC(),
		})
	}
}

// PauseScope applies an operator-initiated pause until the given time. The
// resulting blocks carry RISK_POLICY_PAUSED rather than the streak code.
func (c *LossStreakController) PauseScope(key ScopeKey, until time.Time) {
	ks := key.String()
	c.mu.Lock()
	st := c.m[ks]
	st.PausedUntil = until
	st.PauseCode = CodePaused
	c.m[ks] = st
	c.mu.Unlock()

	_ = c.journal.RecordEvent(journal.Event{
		Category: journal.CategoryRisk,
		Level:    journal.LevelInfo,
		ScopeKey: ks,
		Code:     CodePaused,
		Message:  "scope paused until " + until.Format(time.RFC3339),
		Time:     c.now().UTC(),
	})
}

// Check blocks while the scope is inside a pause window. Expiry is lazy: the
// first Check at or past paused_until clears the pause and records the
// expiry.
func (c *LossStreakController) Check(key ScopeKey) Decision {
	now := c.now()
	ks := key.String()

	c.mu.Lock()
	st := c.m[ks]
	if st.PausedUntil.IsZero() {
		c.mu.Unlock()
		return Allow(0)
	}
	if !now.Before(st.PausedUntil) {
		expiredCode := st.PauseCode
		st.PausedUntil = time.Time{}
		st.PauseCode = ""
		c.m[ks] = st
		c.mu.Unlock()

		_ = c.journal.RecordEvent(journal.Event{
			Category: journal.CategoryRisk,
			Level:    journal.LevelInfo,
			ScopeKey: ks,
			Code:     expiredCode,
			Message:  "pause expired",
			Time:     now.UTC(),
		})
		return Allow(0)
	}
	code := st.PauseCode
	until := st.PausedUntil
	c.mu.Unlock()

	if code == "" {
		code = CodePaused
	}
	return Block(code, "paused until "+until.Format(time.RFC3339))
}

// State returns a copy of the streak state for a key, for inspection.
func (c *LossStreakController) State(key ScopeKey) LossStreakState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[key.String()]
}
