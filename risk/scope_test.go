package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalSymbol(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		exchange string
		symbol   string
		want     string
		wantErr  bool
	}{
		{"simple", "nse", "reliance", "NSE:RELIANCE", false},
		{"already_upper", "NSE", "TCS", "NSE:TCS", false},
		{"trims_whitespace", " nse ", " infy ", "NSE:INFY", false},
		{"empty_exchange", "", "RELIANCE", "", true},
		{"empty_symbol", "NSE", "   ", "", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := CanonicalSymbol(tt.exchange, tt.symbol)
			if tt.wantErr {
				var invalid *InvalidSymbolError
				require.ErrorAs(t, err, &invalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveScopeKeyPriority(t *testing.T) {
	t.Parallel()

	base := Intent{
		AccountID: "ACC1",
		Exchange:  "NSE",
		Symbol:    "RELIANCE",
		Product:   "mis",
	}

	tests := []struct {
		name    string
		mutate  func(*Intent)
		wantRef string
	}{
		{"deployment_wins", func(i *Intent) {
			i.DeploymentID = "D7"
			i.StrategyID = "S2"
			i.AlertStrategy = "breakout"
		}, "deployment:D7"},
		{"strategy_next", func(i *Intent) {
			i.StrategyID = "S2"
			i.AlertStrategy = "breakout"
		}, "strategy:S2"},
		{"alert_next", func(i *Intent) {
			i.AlertStrategy = "breakout"
		}, "alert:breakout"},
		{"manual_fallback", func(i *Intent) {}, "manual"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			intent := base
			tt.mutate(&intent)

			key, err := ResolveScopeKey(intent)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRef, key.StrategyRef)
			assert.Equal(t, "NSE:RELIANCE", key.Symbol)
			assert.Equal(t, "MIS", key.Product)
			assert.Equal(t, "ACC1", key.AccountID)
		})
	}
}

func TestScopeKeyString(t *testing.T) {
	t.Parallel()

	k := ScopeKey{AccountID: "A", StrategyRef: "manual", Symbol: "NSE:X", Product: "CNC"}
	assert.Equal(t, "A|manual|NSE:X|CNC", k.String())
}
