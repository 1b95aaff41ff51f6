// Package exits implements application-monitored stop-loss and trailing-stop
// handling: distance specifications, the per-position state machine, and the
// monitor that watches live prices and submits real exit orders when a stop
// is breached.
package exits

import (
	"context"
	"fmt"
)

// Mode selects how a distance is expressed.
type Mode string

const (
	PCT Mode = "PCT" // percent of entry (or best favorable) price
	ABS Mode = "ABS" // absolute price distance
	ATR Mode = "ATR" // multiple of ATR(period, timeframe)
)

// DistanceSpec is one stop/trailing/activation threshold.
type DistanceSpec struct {
	Enabled      bool
	Mode         Mode
	Value        float64
	ATRPeriod    int    // ATR mode only
	ATRTimeframe string // ATR mode only
}

// RiskSpec bundles the three distances governing a managed position plus the
// order type used for the eventual exit.
type RiskSpec struct {
	StopLoss           DistanceSpec
	TrailingStop       DistanceSpec
	TrailingActivation DistanceSpec
	ExitOrderType      string // "MARKET" unless overridden
}

// InvalidSpecError reports a structurally unusable spec (as opposed to
// cascade inconsistencies, which Normalize auto-corrects).
type InvalidSpecError struct {
	Field  string
	Reason string
}

func (e *InvalidSpecError) Error() string {
	return fmt.Sprintf("invalid risk spec: %s: %s", e.Field, e.Reason)
}

// Normalize applies the cascade invariants and returns a consistent spec:
//
//   - trailing_stop enabled forces stop_loss enabled
//   - trailing_activation enabled forces trailing_stop (and so stop_loss)
//   - stop_loss disabled forces trailing_stop and trailing_activation off
//   - trailing_stop disabled forces trailing_activation off
//
// Callers mutate specs exclusively through this function so the cascades are
// applied atomically with the triggering edit; an inconsistent spec is never
// observable. Validate still reports structural problems.
func Normalize(s RiskSpec) RiskSpec {
	if s.TrailingActivation.Enabled {
		s.TrailingStop.Enabled = true
	}
	if s.TrailingStop.Enabled {
		s.StopLoss.Enabled = true
	}
	if !s.StopLoss.Enabled {
		s.TrailingStop.Enabled = false
		s.TrailingActivation.Enabled = false
	}
	if !s.TrailingStop.Enabled {
		s.TrailingActivation.Enabled = false
	}
	if s.ExitOrderType == "" {
		s.ExitOrderType = "MARKET"
	}
	return s
}

// Validate checks each enabled distance for structural problems: unknown
// mode, non-positive value, ATR mode without a period.
func Validate(s RiskSpec) error {
	for _, d := range []struct {
		name string
		spec DistanceSpec
	}{
		{"stop_loss", s.StopLoss},
		{"trailing_stop", s.TrailingStop},
		{"trailing_activation", s.TrailingActivation},
	} {
		if !d.spec.Enabled {
			continue
		}
		switch d.spec.Mode {
		case PCT, ABS, ATR:
		default:
			return &InvalidSpecError{Field: d.name, Reason: fmt.Sprintf("unknown mode %q", d.spec.Mode)}
		}
		if d.spec.Value <= 0 {
			return &InvalidSpecError{Field: d.name, Reason: "distance value must be positive"}
		}
		if d.spec.Mode == ATR && d.spec.ATRPeriod <= 0 {
			return &InvalidSpecError{Field: d.name, Reason: "ATR mode requires a period"}
		}
	}
	return nil
}

// ATRSource supplies ATR values for ATR-mode distances.
type ATRSource interface {
	ATR(ctx context.Context, symbol string, period int, timeframe string) (float64, error)
}

// Distance converts the spec into a price distance relative to basePrice.
// PCT is a percentage of basePrice, ABS is used as-is, ATR multiplies the
// current ATR for the position's symbol.
func (d DistanceSpec) Distance(ctx context.Context, basePrice float64, symbol string, atr ATRSource) (float64, error) {
	switch d.Mode {
	case PCT:
		return basePrice * d.Value / 100, nil
	case ABS:
		return d.Value, nil
	case ATR:
		if atr == nil {
			return 0, fmt.Errorf("atr distance for %s: no ATR source", symbol)
		}
		v, err := atr.ATR(ctx, symbol, d.ATRPeriod, d.ATRTimeframe)
		if err != nil {
			return 0, fmt.Errorf("atr distance for %s: %w", symbol, err)
		}
		return d.Value * v, nil
	default:
		return 0, fmt.Errorf("unknown distance mode %q", d.Mode)
	}
}
