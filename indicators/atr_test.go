package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bars(ohlc ...[4]float64) []Candle {
	out := make([]Candle, 0, len(ohlc))
	for _, b := range ohlc {
		out = append(out, Candle{Open: b[0], High: b[1], Low: b[2], Close: b[3]})
	}
	return out
}

func TestTrueRange(t *testing.T) {
	t.Parallel()

	prev := Candle{Close: 100}

	// Plain high-low range.
	assert.InDelta(t, 4.0, trueRange(Candle{High: 103, Low: 99}, prev), 1e-9)
	// Gap up: distance from previous close dominates.
	assert.InDelta(t, 8.0, trueRange(Candle{High: 108, Low: 105}, prev), 1e-9)
	// Gap down.
	assert.InDelta(t, 7.0, trueRange(Candle{High: 95, Low: 93}, prev), 1e-9)
}

func TestATRFuncWilderSmoothing(t *testing.T) {
	t.Parallel()

	candles := bars(
		[4]float64{100, 101, 99, 100},
		[4]float64{100, 102, 100, 101}, // TR 2
		[4]float64{101, 103, 100, 102}, // TR 3
		[4]float64{102, 104, 102, 103}, // TR 2
		[4]float64{103, 107, 103, 106}, // TR 4
	)

	// period 3: seed avg(2,3,2) = 7/3, then (7/3*2 + 4)/3.
	atr, err := ATRFunc(candles, 3)
	require.NoError(t, err)
	assert.InDelta(t, (7.0/3.0*2.0+4.0)/3.0, atr, 1e-9)
}

func TestATRFuncErrors(t *testing.T) {
	t.Parallel()

	candles := bars([4]float64{100, 101, 99, 100}, [4]float64{100, 102, 100, 101})

	_, err := ATRFunc(candles, 0)
	assert.Error(t, err)

	_, err = ATRFunc(candles, 5)
	assert.Error(t, err, "needs period+1 candles")
}

func TestStreamingATRMatchesBatch(t *testing.T) {
	t.Parallel()

	candles := bars(
		[4]float64{100, 101, 99, 100},
		[4]float64{100, 102, 100, 101},
		[4]float64{101, 103, 100, 102},
		[4]float64{102, 104, 102, 103},
		[4]float64{103, 107, 103, 106},
		[4]float64{106, 106, 101, 102},
		[4]float64{102, 105, 102, 104},
	)
	const period = 3

	a := NewATR(period)
	assert.Equal(t, period+1, a.Warmup())
	for i, c := range candles {
		a.Update(c)
		if i < period {
			assert.False(t, a.Ready(), "bar %d", i)
			assert.Zero(t, a.Value())
		}
	}
	require.True(t, a.Ready())

	batch, err := ATRFunc(candles, period)
	require.NoError(t, err)
	assert.InDelta(t, batch, a.Value(), 1e-9)
}

func TestStreamingATRReset(t *testing.T) {
	t.Parallel()

	a := NewATR(2)
	for _, c := range bars(
		[4]float64{100, 101, 99, 100},
		[4]float64{100, 102, 100, 101},
		[4]float64{101, 103, 100, 102},
	) {
		a.Update(c)
	}
	require.True(t, a.Ready())

	a.Reset()
	assert.False(t, a.Ready())
	assert.Zero(t, a.Value())
}
