package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "riskgate",
	Short: "Risk-enforcement choke point and managed-exit monitor",
	Long: `riskgate sits between order intents and an execution backend.

It provides:
  - A single choke point every order dispatch passes through, returning
    ALLOW, BLOCK(reason) or CLAMP(qty, reason)
  - Trade-frequency limits, loss-streak pauses and sizing clamps, all
    keyed by (account, strategy, symbol, product) scope
  - A managed-exit monitor that watches confirmed entries and submits
    stop-loss / trailing-stop exits when triggered
  - A journal of every decision and state transition (CSV or SQLite)
  - Prometheus metrics at /metrics`,
}

// Execute runs the root command tree.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Optional .env for config path and overrides; absence is fine.
	_ = godotenv.Load()
}
