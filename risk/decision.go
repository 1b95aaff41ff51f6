package risk

import "github.com/tradeops/riskgate/broker"

// Stable reason-code vocabulary surfaced to callers and API consumers.
const (
	CodeRejectedRisk     = "REJECTED_RISK"
	CodeMaxTrades        = "TRADE_FREQ_MAX_TRADES"
	CodeMinBars          = "TRADE_FREQ_MIN_BARS"
	CodeCooldownLoss     = "TRADE_FREQ_COOLDOWN_LOSS"
	CodePaused           = "RISK_POLICY_PAUSED"
	CodeLossStreakPause  = "RISK_POLICY_LOSS_STREAK_PAUSE"
	CodeConcurrent       = "RISK_POLICY_CONCURRENT_EXECUTION"
	CodeStateUnavailable = "RISK_STATE_UNAVAILABLE"

	CodeAccountMaxOpen    = "ACCOUNT_MAX_OPEN_TRADES"
	CodeAccountDailyLoss  = "ACCOUNT_DAILY_LOSS_LIMIT"
	CodeSizingMaxQty      = "SIZING_MAX_QTY"
	CodeSizingMaxNotional = "SIZING_MAX_NOTIONAL"
	CodeSizingZeroQty     = "SIZING_ZERO_QTY"
	CodeStopRequired      = "STOP_RULE_REQUIRED"

	// Informational event codes (never returned as decisions).
	CodeIntervalFallback = "INTERVAL_FALLBACK"
)

// Intent carries the raw attributes of a single order-dispatch attempt.
// Every dispatch path (manual, bulk, webhook, deployment) builds one of these
// and runs it through ChokePoint.Evaluate before submission.
type Intent struct {
	AccountID     string
	DeploymentID  string
	StrategyID    string
	AlertStrategy string
	Exchange      string
	Symbol        string
	Product       string

	Side  broker.Side
	Qty   float64
	Price float64 // last known price, 0 when unavailable

	// IsExit marks orders that reduce or flatten existing exposure. Such
	// intents bypass every enforcement group; this is a safety guarantee,
	// not a configurable default.
	IsExit bool

	IntervalMinutes     int // bar interval carried by the inbound payload, 0 if absent
	RuleIntervalMinutes int // timeframe stored on the originating alert rule, 0 if absent

	// HasStopLoss is true when the intent carries an enabled stop-loss
	// spec; the stop-rule prerequisite group checks it.
	HasStopLoss bool
}

type Outcome string

const (
	OutcomeAllow Outcome = "ALLOW"
	OutcomeBlock Outcome = "BLOCK"
	OutcomeClamp Outcome = "CLAMP"
)

// Decision is the choke point's verdict for one dispatch attempt. Qty is the
// effective quantity to submit (reduced for clamps); Code and Message are set
// for blocks and clamps.
type Decision struct {
	Outcome Outcome
	Qty     float64
	Code    string
	Message string
}

func Allow(qty float64) Decision {
	return Decision{Outcome: OutcomeAllow, Qty: qty}
}

func Block(code, msg string) Decision {
	return Decision{Outcome: OutcomeBlock, Code: code, Message: msg}
}

func Clamp(qty float64, code, msg string) Decision {
	return Decision{Outcome: OutcomeClamp, Qty: qty, Code: code, Message: msg}
}

// Allowed reports whether the order may be submitted (possibly clamped).
func (d Decision) Allowed() bool {
	return d.Outcome == OutcomeAllow || d.Outcome == OutcomeClamp
}

// Retryable reports whether this decision is a transient contention result
// rather than a policy rejection. Callers may retry a bounded number of
// times.
func (d Decision) Retryable() bool {
	return d.Outcome == OutcomeBlock && d.Code == CodeConcurrent
}
