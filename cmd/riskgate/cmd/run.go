package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tradeops/riskgate/broker"
	"github.com/tradeops/riskgate/config"
	"github.com/tradeops/riskgate/exits"
	"github.com/tradeops/riskgate/journal"
	"github.com/tradeops/riskgate/metrics"
	"github.com/tradeops/riskgate/paper"
	"github.com/tradeops/riskgate/risk"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a paper-trading demo through the choke point and exit monitor",
	Long: `Run one managed trade against the in-process paper engine.

The entry intent is evaluated by the choke point, submitted on ALLOW/CLAMP,
registered with the exit monitor, and then driven through a rising price
path followed by a pullback so the trailing stop triggers. Every decision
and transition lands in the configured journal.

Example:
  riskgate run -f riskgate.yaml --exchange NSE --symbol RELIANCE --qty 10`,
	RunE: runRun,
}

var (
	runConfigPath string
	runExchange   string
	runSymbol     string
	runAccount    string
	runQty        float64
	runEntryPrice float64
	runStopPct    float64
	runTrailPct   float64
	runActivPct   float64
	runSteps      int
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML or JSON); falls back to $RISKGATE_CONFIG, then defaults")
	runCmd.Flags().StringVar(&runExchange, "exchange", "NSE", "exchange code")
	runCmd.Flags().StringVar(&runSymbol, "symbol", "RELIANCE", "trading symbol")
	runCmd.Flags().StringVar(&runAccount, "account", "PAPER-001", "account id")
	runCmd.Flags().Float64Var(&runQty, "qty", 10, "entry quantity")
	runCmd.Flags().Float64Var(&runEntryPrice, "entry-price", 100, "starting price")
	runCmd.Flags().Float64Var(&runStopPct, "stop-pct", 5, "stop-loss distance, percent of entry")
	runCmd.Flags().Float64Var(&runTrailPct, "trail-pct", 2, "trailing-stop distance, percent of best price")
	runCmd.Flags().Float64Var(&runActivPct, "activation-pct", 3, "favorable excursion before trailing activates, percent")
	runCmd.Flags().IntVar(&runSteps, "steps", 8, "price steps to simulate on each leg")
}

// fillRelay forwards paper-engine fills to the exit monitor so exit orders
// confirm and positions reach their terminal state.
type fillRelay struct {
	monitor *exits.Monitor
}

func (r fillRelay) OnFill(f broker.Fill) {
	r.monitor.OnExitFill(f.OrderID)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}

	j, store, err := newJournal(cfg)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	defer j.Close()

	engine := paper.NewEngine(100_000)
	registry := risk.NewToggleRegistry(cfg.Policy())
	choke := risk.NewChokePoint(registry, cfg.Location(), store, j)
	choke.SetAccountProvider(engine)
	monitor := exits.NewMonitor(engine, engine, j)
	engine.SetFillListener(fillRelay{monitor: monitor})

	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				fmt.Fprintf(os.Stderr, "metrics listener: %v\n", err)
			}
		}()
		fmt.Printf("metrics on %s/metrics\n", cfg.Metrics.Addr)
	}

	symbol, err := risk.CanonicalSymbol(runExchange, runSymbol)
	if err != nil {
		return err
	}
	engine.SetPrice(symbol, runEntryPrice)

	ctx := context.Background()
	intent := risk.Intent{
		AccountID:       runAccount,
		Exchange:        runExchange,
		Symbol:          runSymbol,
		Product:         "MIS",
		Side:            broker.Buy,
		Qty:             runQty,
		Price:           runEntryPrice,
		IntervalMinutes: 5,
		HasStopLoss:     true,
	}

	decision, err := choke.Evaluate(ctx, intent)
	if err != nil {
		return fmt.Errorf("evaluate intent: %w", err)
	}
	fmt.Printf("decision: %s", decision.Outcome)
	if decision.Code != "" {
		fmt.Printf(" (%s: %s)", decision.Code, decision.Message)
	}
	fmt.Println()
	if !decision.Allowed() {
		return nil
	}

	orderID, err := engine.SubmitOrder(ctx, broker.OrderRequest{
		Symbol: symbol,
		Side:   broker.Buy,
		Qty:    decision.Qty,
		Type:   broker.Market,
	})
	if err != nil {
		return fmt.Errorf("submit entry: %w", err)
	}
	fill, _ := engine.Fill(orderID)
	fmt.Printf("entry filled: %s %.2f @ %.2f\n", symbol, fill.Qty, fill.Price)

	key, err := risk.ResolveScopeKey(intent)
	if err != nil {
		return err
	}
	pos, err := monitor.Track(key, fill, exits.RiskSpec{
		StopLoss:           exits.DistanceSpec{Enabled: true, Mode: exits.PCT, Value: runStopPct},
		TrailingStop:       exits.DistanceSpec{Enabled: runTrailPct > 0, Mode: exits.PCT, Value: runTrailPct},
		TrailingActivation: exits.DistanceSpec{Enabled: runActivPct > 0, Mode: exits.PCT, Value: runActivPct},
	})
	if err != nil {
		return fmt.Errorf("track position: %w", err)
	}
	fmt.Printf("managed position %s (stop %.1f%%, trail %.1f%%, activation %.1f%%)\n",
		pos.ID, runStopPct, runTrailPct, runActivPct)

	// Ramp up past the activation threshold, then pull back through the
	// trailing stop.
	peak := runEntryPrice * (1 + (runActivPct+1.5)/100)
	drive := func(target float64) {
		px, _ := engine.LivePrice(ctx, symbol)
		step := (target - px) / float64(runSteps)
		for i := 0; i < runSteps; i++ {
			px += step
			engine.SetPrice(symbol, px)
			monitor.Tick(ctx)
			if p, ok := monitor.Get(pos.ID); ok && p.Status != exits.Active {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
	drive(peak)
	drive(runEntryPrice * (1 - runStopPct/100))

	final, _ := monitor.Get(pos.ID)
	fmt.Printf("position %s: status=%s best=%.2f stop=%.2f trail=%.2f\n",
		final.ID, final.Status, final.BestFavorable, final.StopPrice, final.TrailPrice)

	acct, _ := engine.Account(ctx)
	fmt.Printf("account: equity=%.2f day_pnl=%.2f open=%d\n",
		acct.Equity, acct.DayRealizedPnL, acct.OpenPositions)
	return nil
}

func loadRunConfig() (*config.Config, error) {
	path := runConfigPath
	if path == "" {
		path = os.Getenv("RISKGATE_CONFIG")
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadFromFile(path)
}

// newJournal builds the configured journal backend. The SQLite backend
// doubles as the interval store for the choke point.
func newJournal(cfg *config.Config) (journal.Journal, risk.IntervalStore, error) {
	switch cfg.Journal.Type {
	case "csv":
		j, err := journal.NewCSV(cfg.Journal.EventsFile)
		return j, nil, err
	default:
		j, err := journal.NewSQLite(cfg.Journal.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return j, j, nil
	}
}
