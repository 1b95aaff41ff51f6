package risk

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeops/riskgate/broker"
)

type fakeAccount struct {
	snap broker.AccountSnapshot
	err  error
}

func (f *fakeAccount) Account(ctx context.Context) (broker.AccountSnapshot, error) {
	return f.snap, f.err
}

func allGroupsPolicy() Policy {
	groups := make(map[Group]bool, len(Groups))
	for _, g := range Groups {
		groups[g] = true
	}
	return Policy{
		EnforcementEnabled: true,
		GroupEnabled:       groups,
		Frequency:          FrequencyLimits{MaxTradesPerDay: 5},
	}
}

func entryIntent(sym string, qty float64) Intent {
	return Intent{
		AccountID:       "A1",
		Exchange:        "NSE",
		Symbol:          sym,
		Product:         "MIS",
		Side:            broker.Buy,
		Qty:             qty,
		Price:           100,
		IntervalMinutes: 5,
		HasStopLoss:     true,
	}
}

func newTestChoke(t *testing.T, p Policy) (*ChokePoint, *memJournal) {
	t.Helper()
	j := &memJournal{}
	c := NewChokePoint(NewToggleRegistry(p), time.UTC, newMemIntervalStore(), j)
	return c, j
}

func TestChokePointKillSwitch(t *testing.T) {
	t.Parallel()

	p := allGroupsPolicy()
	p.EnforcementEnabled = false
	p.StopRules.RequireStopLoss = true
	c, _ := newTestChoke(t, p)

	// Would be blocked by the stop rule if enforcement were on.
	intent := entryIntent("RELIANCE", 10)
	intent.HasStopLoss = false
	d, err := c.Evaluate(context.Background(), intent)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAllow, d.Outcome)
	assert.Equal(t, 10.0, d.Qty)
}

func TestChokePointDailyCapAndExitBypass(t *testing.T) {
	t.Parallel()

	p := allGroupsPolicy()
	p.Frequency.MaxTradesPerDay = 1
	c, j := newTestChoke(t, p)
	ctx := context.Background()

	d, err := c.Evaluate(ctx, entryIntent("RELIANCE", 10))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAllow, d.Outcome)

	// An exit between the two entries always passes, cap or not.
	exit := entryIntent("RELIANCE", 10)
	exit.IsExit = true
	exit.Side = broker.Sell
	d, err = c.Evaluate(ctx, exit)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAllow, d.Outcome)

	d, err = c.Evaluate(ctx, entryIntent("RELIANCE", 10))
	require.NoError(t, err)
	assert.Equal(t, OutcomeBlock, d.Outcome)
	assert.Equal(t, CodeMaxTrades, d.Code)
	assert.Contains(t, j.codes(), CodeMaxTrades)
}

func TestChokePointBlockConsumesNoSlot(t *testing.T) {
	t.Parallel()

	p := allGroupsPolicy()
	p.StopRules.RequireStopLoss = true
	c, _ := newTestChoke(t, p)

	intent := entryIntent("TCS", 10)
	intent.HasStopLoss = false
	d, err := c.Evaluate(context.Background(), intent)
	require.NoError(t, err)
	assert.Equal(t, OutcomeBlock, d.Outcome)
	assert.Equal(t, CodeStopRequired, d.Code)

	key, _ := ResolveScopeKey(intent)
	assert.Equal(t, 0, c.Frequency().State(key).TradesToday)
}

func TestChokePointDisabledGroupSkipped(t *testing.T) {
	t.Parallel()

	p := allGroupsPolicy()
	p.Frequency.MaxTradesPerDay = 1
	p.GroupEnabled[GroupTradeFrequency] = false
	c, _ := newTestChoke(t, p)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := c.Evaluate(ctx, entryIntent("INFY", 5))
		require.NoError(t, err)
		assert.Equal(t, OutcomeAllow, d.Outcome)
	}

	// Skipping the group means no bookkeeping either.
	key, err := ResolveScopeKey(entryIntent("INFY", 5))
	require.NoError(t, err)
	assert.Equal(t, 0, c.Frequency().State(key).TradesToday)
	assert.True(t, c.Frequency().State(key).LastEntryTime.IsZero())
}

func TestChokePointSizingClampMinimumWins(t *testing.T) {
	t.Parallel()

	p := allGroupsPolicy()
	p.Sizing = SizingLimits{MaxQtyPerTrade: 100, MaxNotionalPerTrade: 5000}
	c, j := newTestChoke(t, p)

	// Price 100: qty cap gives 100, notional cap gives 50; minimum wins.
	d, err := c.Evaluate(context.Background(), entryIntent("SBIN", 250))
	require.NoError(t, err)
	assert.Equal(t, OutcomeClamp, d.Outcome)
	assert.Equal(t, 50.0, d.Qty)
	assert.Equal(t, CodeSizingMaxNotional, d.Code)
	assert.Contains(t, j.codes(), CodeSizingMaxNotional)
}

func TestChokePointSizingClampToZeroBlocks(t *testing.T) {
	t.Parallel()

	p := allGroupsPolicy()
	p.Sizing = SizingLimits{MaxNotionalPerTrade: 50} // price 100 -> floor(0.5) = 0

	c, _ := newTestChoke(t, p)
	d, err := c.Evaluate(context.Background(), entryIntent("ITC", 10))
	require.NoError(t, err)
	assert.Equal(t, OutcomeBlock, d.Outcome)
	assert.Equal(t, CodeSizingZeroQty, d.Code)
}

func TestChokePointAccountLimits(t *testing.T) {
	t.Parallel()

	t.Run("max_open_positions", func(t *testing.T) {
		t.Parallel()
		p := allGroupsPolicy()
		p.Account = AccountLimits{MaxOpenPositions: 2}
		c, _ := newTestChoke(t, p)
		c.SetAccountProvider(&fakeAccount{snap: broker.AccountSnapshot{Equity: 10000, OpenPositions: 2}})

		d, err := c.Evaluate(context.Background(), entryIntent("RELIANCE", 1))
		require.NoError(t, err)
		assert.Equal(t, CodeAccountMaxOpen, d.Code)
	})

	t.Run("daily_loss_breaker", func(t *testing.T) {
		t.Parallel()
		p := allGroupsPolicy()
		p.Account = AccountLimits{MaxDailyLossPct: 0.02}
		c, _ := newTestChoke(t, p)
		c.SetAccountProvider(&fakeAccount{snap: broker.AccountSnapshot{Equity: 10000, DayRealizedPnL: -250}})

		d, err := c.Evaluate(context.Background(), entryIntent("RELIANCE", 1))
		require.NoError(t, err)
		assert.Equal(t, CodeAccountDailyLoss, d.Code)
	})

	t.Run("fails_closed_when_unavailable", func(t *testing.T) {
		t.Parallel()
		p := allGroupsPolicy()
		c, _ := newTestChoke(t, p)
		c.SetAccountProvider(&fakeAccount{err: errors.New("backend down")})

		d, err := c.Evaluate(context.Background(), entryIntent("RELIANCE", 1))
		require.NoError(t, err)
		assert.Equal(t, OutcomeBlock, d.Outcome)
		assert.Equal(t, CodeStateUnavailable, d.Code)
	})
}

func TestChokePointLossStreakIntegration(t *testing.T) {
	t.Parallel()

	p := allGroupsPolicy()
	p.LossControl = LossLimits{MaxConsecutiveLosses: 3, PauseAfterLossStreak: true}
	c, _ := newTestChoke(t, p)
	ctx := context.Background()

	intent := entryIntent("RELIANCE", 10)
	key, err := ResolveScopeKey(intent)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		c.OnTradeClosed(key, true)
	}

	d, err := c.Evaluate(ctx, intent)
	require.NoError(t, err)
	assert.Equal(t, OutcomeBlock, d.Outcome)
	assert.Equal(t, CodeLossStreakPause, d.Code)
}

func TestChokePointLockTimeoutIsBusy(t *testing.T) {
	t.Parallel()

	c, j := newTestChoke(t, allGroupsPolicy())
	c.SetLockTimeout(20 * time.Millisecond)
	ctx := context.Background()

	intent := entryIntent("TCS", 1)
	key, err := ResolveScopeKey(intent)
	require.NoError(t, err)

	release, err := c.locks.Acquire(ctx, key, time.Second)
	require.NoError(t, err)
	defer release()

	d, err := c.Evaluate(ctx, intent)
	require.NoError(t, err)
	assert.Equal(t, OutcomeBlock, d.Outcome)
	assert.Equal(t, CodeConcurrent, d.Code)
	assert.True(t, d.Retryable())
	assert.Contains(t, j.codes(), CodeConcurrent)
}

func TestChokePointInvalidSymbol(t *testing.T) {
	t.Parallel()

	c, _ := newTestChoke(t, allGroupsPolicy())
	intent := entryIntent("", 1)

	_, err := c.Evaluate(context.Background(), intent)
	var invalid *InvalidSymbolError
	assert.ErrorAs(t, err, &invalid)
}

// Race-freedom: N concurrent evaluations against a fresh state with a daily
// cap of one must produce exactly one ALLOW.
func TestChokePointConcurrentEvaluationsSingleAllow(t *testing.T) {
	t.Parallel()

	p := allGroupsPolicy()
	p.Frequency.MaxTradesPerDay = 1
	c, _ := newTestChoke(t, p)
	ctx := context.Background()

	const n = 24
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := c.Evaluate(ctx, entryIntent("RELIANCE", 10))
			if err != nil {
				return
			}
			if d.Allowed() {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, allowed)
}
