package risk

import (
	"fmt"
	"strings"
)

// ScopeKey identifies the bookkeeping scope for frequency and loss-control
// state: one account trading one canonical symbol under one strategy ref and
// product. Immutable once resolved for an intent.
type ScopeKey struct {
	AccountID   string
	StrategyRef string // "deployment:<id>", "strategy:<id>", "alert:<name>" or "manual"
	Symbol      string // canonical "EXCHANGE:SYMBOL", uppercase
	Product     string
}

// String renders the key in a stable form usable as a map or database key.
func (k ScopeKey) String() string {
	return k.AccountID + "|" + k.StrategyRef + "|" + k.Symbol + "|" + k.Product
}

// InvalidSymbolError reports a symbol that cannot be canonicalized.
type InvalidSymbolError struct {
	Exchange string
	Symbol   string
}

func (e *InvalidSymbolError) Error() string {
	return fmt.Sprintf("invalid symbol: exchange=%q symbol=%q", e.Exchange, e.Symbol)
}

// CanonicalSymbol uppercases exchange and symbol and joins them as
// "EXCHANGE:SYMBOL". Either part empty after trimming is an error.
func CanonicalSymbol(exchange, symbol string) (string, error) {
	ex := strings.ToUpper(strings.TrimSpace(exchange))
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if ex == "" || sym == "" {
		return "", &InvalidSymbolError{Exchange: exchange, Symbol: symbol}
	}
	return ex + ":" + sym, nil
}

// ResolveScopeKey derives the scope key for an intent. The strategy ref is
// chosen by priority: deployment id, then strategy id, then the alert's named
// strategy, else the literal "manual".
func ResolveScopeKey(intent Intent) (ScopeKey, error) {
	sym, err := CanonicalSymbol(intent.Exchange, intent.Symbol)
	if err != nil {
		return ScopeKey{}, err
	}

	ref := "manual"
	switch {
	case strings.TrimSpace(intent.DeploymentID) != "":
		ref = "deployment:" + strings.TrimSpace(intent.DeploymentID)
	case strings.TrimSpace(intent.StrategyID) != "":
		ref = "strategy:" + strings.TrimSpace(intent.StrategyID)
	case strings.TrimSpace(intent.AlertStrategy) != "":
		ref = "alert:" + strings.TrimSpace(intent.AlertStrategy)
	}

	return ScopeKey{
		AccountID:   strings.TrimSpace(intent.AccountID),
		StrategyRef: ref,
		Symbol:      sym,
		Product:     strings.ToUpper(strings.TrimSpace(intent.Product)),
	}, nil
}
