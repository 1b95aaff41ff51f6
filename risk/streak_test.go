package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestStreaks(t *testing.T, start time.Time, j *memJournal) (*LossStreakController, *time.Time) {
	t.Helper()
	now := start
	c := NewLossStreakController(time.UTC, j)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestLossStreakPauseAfterThreshold(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 6, 1, 11, 0, 0, 0, time.UTC)
	j := &memJournal{}
	c, now := newTestStreaks(t, start, j)
	key := testKey("RELIANCE")
	limits := LossLimits{MaxConsecutiveLosses: 3, PauseAfterLossStreak: true}

	c.OnTradeClosed(key, true, limits)
	c.OnTradeClosed(key, true, limits)
	assert.Equal(t, OutcomeAllow, c.Check(key).Outcome)

	c.OnTradeClosed(key, true, limits)
	d := c.Check(key)
	assert.Equal(t, OutcomeBlock, d.Outcome)
	assert.Equal(t, CodeLossStreakPause, d.Code)
	assert.Contains(t, j.codes(), CodeLossStreakPause)

	// The pause ends at the next reference-day boundary.
	*now = start.AddDate(0, 0, 1)
	assert.Equal(t, OutcomeAllow, c.Check(key).Outcome)
	// Lazy expiry cleared the stored pause.
	assert.True(t, c.State(key).PausedUntil.IsZero())
}

func TestLossStreakWinResets(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 6, 1, 11, 0, 0, 0, time.UTC)
	c, _ := newTestStreaks(t, start, &memJournal{})
	key := testKey("TCS")
	limits := LossLimits{MaxConsecutiveLosses: 3, PauseAfterLossStreak: true}

	c.OnTradeClosed(key, true, limits)
	c.OnTradeClosed(key, true, limits)
	c.OnTradeClosed(key, false, limits)
	assert.Equal(t, 0, c.State(key).ConsecutiveLosses)

	// Streak starts over; two further losses stay under the threshold.
	c.OnTradeClosed(key, true, limits)
	c.OnTradeClosed(key, true, limits)
	assert.Equal(t, OutcomeAllow, c.Check(key).Outcome)
}

func TestLossStreakDisabledPauseNeverBlocks(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 6, 1, 11, 0, 0, 0, time.UTC)
	c, _ := newTestStreaks(t, start, &memJournal{})
	key := testKey("INFY")
	limits := LossLimits{MaxConsecutiveLosses: 2, PauseAfterLossStreak: false}

	for i := 0; i < 5; i++ {
		c.OnTradeClosed(key, true, limits)
	}
	assert.Equal(t, OutcomeAllow, c.Check(key).Outcome)
	assert.Equal(t, 5, c.State(key).ConsecutiveLosses)
}

func TestOperatorPauseUsesGenericCode(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 6, 1, 11, 0, 0, 0, time.UTC)
	j := &memJournal{}
	c, now := newTestStreaks(t, start, j)
	key := testKey("SBIN")

	c.PauseScope(key, start.Add(2*time.Hour))
	d := c.Check(key)
	assert.Equal(t, OutcomeBlock, d.Outcome)
	assert.Equal(t, CodePaused, d.Code)

	*now = start.Add(3 * time.Hour)
	assert.Equal(t, OutcomeAllow, c.Check(key).Outcome)
}
