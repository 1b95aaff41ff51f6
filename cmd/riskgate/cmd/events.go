package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tradeops/riskgate/journal"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List journaled decisions and transitions from a SQLite journal",
	RunE:  runEvents,
}

var (
	eventsDBPath   string
	eventsScopeKey string
	eventsLimit    int
)

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().StringVarP(&eventsDBPath, "db", "d", "./riskgate.db", "path to SQLite journal")
	eventsCmd.Flags().StringVarP(&eventsScopeKey, "scope", "s", "", "filter by scope key")
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 50, "max events to show")
}

func runEvents(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(eventsDBPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	events, err := j.ListEvents(eventsScopeKey, eventsLimit)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	if len(events) == 0 {
		fmt.Println("no events")
		return nil
	}

	for _, e := range events {
		fmt.Printf("%s  %-5s %-7s %-30s %s  %s\n",
			e.Time.Format("2006-01-02 15:04:05"),
			e.Category, e.Level, e.Code, e.ScopeKey, e.Message)
	}
	return nil
}
