// Package config loads the riskgate runtime configuration: enforcement
// policy, reference timezone, journal backend and service settings. YAML is
// tried first, then JSON.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tradeops/riskgate/risk"
)

type Config struct {
	Enforcement EnforcementConfig `json:"enforcement" yaml:"enforcement"`
	Timezone    string            `json:"timezone" yaml:"timezone"` // reference TZ for all day boundaries
	Journal     JournalConfig     `json:"journal" yaml:"journal"`
	Monitor     MonitorConfig     `json:"monitor" yaml:"monitor"`
	Metrics     MetricsConfig     `json:"metrics" yaml:"metrics"`
}

type EnforcementConfig struct {
	Enabled bool            `json:"enabled" yaml:"enabled"`
	Groups  map[string]bool `json:"groups" yaml:"groups"`

	MaxTradesPerDay       int     `json:"max_trades_per_day" yaml:"max_trades_per_day"`
	MinBarsBetweenTrades  int     `json:"min_bars_between_trades" yaml:"min_bars_between_trades"`
	CooldownAfterLossBars int     `json:"cooldown_after_loss_bars" yaml:"cooldown_after_loss_bars"`
	MaxConsecutiveLosses  int     `json:"max_consecutive_losses" yaml:"max_consecutive_losses"`
	PauseAfterLossStreak  bool    `json:"pause_after_loss_streak" yaml:"pause_after_loss_streak"`
	MaxOpenPositions      int     `json:"max_open_positions" yaml:"max_open_positions"`
	MaxDailyLossPct       float64 `json:"max_daily_loss_pct" yaml:"max_daily_loss_pct"`
	MaxQtyPerTrade        float64 `json:"max_qty_per_trade" yaml:"max_qty_per_trade"`
	MaxNotionalPerTrade   float64 `json:"max_notional_per_trade" yaml:"max_notional_per_trade"`
	RequireStopLoss       bool    `json:"require_stop_loss" yaml:"require_stop_loss"`
}

type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "csv" or "sqlite"
	EventsFile string `json:"events_file,omitempty" yaml:"events_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

type MonitorConfig struct {
	TickInterval string `json:"tick_interval" yaml:"tick_interval"` // e.g. "1s", "500ms"
}

type MetricsConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"` // empty disables the /metrics listener
}

// ParseTickInterval converts the monitor cadence to a duration.
func (m MonitorConfig) ParseTickInterval() (time.Duration, error) {
	if m.TickInterval == "" {
		return time.Second, nil
	}
	return time.ParseDuration(m.TickInterval)
}

// LoadFromFile loads configuration from a file (YAML or JSON).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	// Try YAML first, fall back to JSON.
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration, choosing the format by extension.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Timezone == "" {
		return fmt.Errorf("timezone is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("unknown timezone %q: %w", c.Timezone, err)
	}
	for name := range c.Enforcement.Groups {
		if !knownGroup(name) {
			return fmt.Errorf("unknown enforcement group %q", name)
		}
	}
	if c.Enforcement.MaxTradesPerDay < 0 ||
		c.Enforcement.MinBarsBetweenTrades < 0 ||
		c.Enforcement.CooldownAfterLossBars < 0 ||
		c.Enforcement.MaxConsecutiveLosses < 0 {
		return fmt.Errorf("enforcement thresholds must not be negative")
	}
	if c.Enforcement.MaxDailyLossPct < 0 || c.Enforcement.MaxDailyLossPct > 1 {
		return fmt.Errorf("max_daily_loss_pct must be a fraction between 0 and 1")
	}
	switch c.Journal.Type {
	case "csv":
		if c.Journal.EventsFile == "" {
			return fmt.Errorf("journal events_file required for csv type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for sqlite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'csv' or 'sqlite'")
	}
	if _, err := c.Monitor.ParseTickInterval(); err != nil {
		return fmt.Errorf("monitor.tick_interval: %w", err)
	}
	return nil
}

// Location returns the reference timezone. Call Validate first.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Policy maps the enforcement section onto the risk core's policy snapshot.
func (c *Config) Policy() risk.Policy {
	groups := make(map[risk.Group]bool, len(c.Enforcement.Groups))
	for name, on := range c.Enforcement.Groups {
		groups[risk.Group(name)] = on
	}
	return risk.Policy{
		EnforcementEnabled: c.Enforcement.Enabled,
		GroupEnabled:       groups,
		Frequency: risk.FrequencyLimits{
			MaxTradesPerDay:       c.Enforcement.MaxTradesPerDay,
			MinBarsBetweenTrades:  c.Enforcement.MinBarsBetweenTrades,
			CooldownAfterLossBars: c.Enforcement.CooldownAfterLossBars,
		},
		LossControl: risk.LossLimits{
			MaxConsecutiveLosses: c.Enforcement.MaxConsecutiveLosses,
			PauseAfterLossStreak: c.Enforcement.PauseAfterLossStreak,
		},
		Account: risk.AccountLimits{
			MaxOpenPositions: c.Enforcement.MaxOpenPositions,
			MaxDailyLossPct:  c.Enforcement.MaxDailyLossPct,
		},
		Sizing: risk.SizingLimits{
			MaxQtyPerTrade:      c.Enforcement.MaxQtyPerTrade,
			MaxNotionalPerTrade: c.Enforcement.MaxNotionalPerTrade,
		},
		StopRules: risk.StopRules{
			RequireStopLoss: c.Enforcement.RequireStopLoss,
		},
	}
}

func knownGroup(name string) bool {
	for _, g := range risk.Groups {
		if string(g) == name {
			return true
		}
	}
	return false
}

// Default returns a configuration with sensible defaults: enforcement on,
// every group enabled, conservative thresholds.
func Default() *Config {
	groups := make(map[string]bool, len(risk.Groups))
	for _, g := range risk.Groups {
		groups[string(g)] = true
	}
	return &Config{
		Enforcement: EnforcementConfig{
			Enabled:               true,
			Groups:                groups,
			MaxTradesPerDay:       10,
			MinBarsBetweenTrades:  1,
			CooldownAfterLossBars: 2,
			MaxConsecutiveLosses:  3,
			PauseAfterLossStreak:  true,
			MaxOpenPositions:      5,
			MaxDailyLossPct:       0.03,
			MaxQtyPerTrade:        1000,
			MaxNotionalPerTrade:   0,
			RequireStopLoss:       false,
		},
		Timezone: "UTC",
		Journal: JournalConfig{
			Type:   "sqlite",
			DBPath: "./riskgate.db",
		},
		Monitor: MonitorConfig{TickInterval: "1s"},
		Metrics: MetricsConfig{Addr: ":9180"},
	}
}
