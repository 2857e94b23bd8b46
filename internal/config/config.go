// Package config loads, validates and normalizes the agent's YAML
// configuration, following a layered-defaults-then-validate config
// loader: os.ExpandEnv pre-processing, strict unknown-field decoding, a
// cross-field Validate pass, and a separate Normalize defaulting pass.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode is the trading mode.
type Mode string

const (
	ModeDemo Mode = "demo"
	ModeLive Mode = "live"
)

// Config is the root configuration object.
type Config struct {
	Mode     Mode     `yaml:"mode"`
	Universe []string `yaml:"universe"`

	Features struct {
		EnableORB  bool `yaml:"enable_orb"`
		Enable0DTE bool `yaml:"enable_0dte"`
	} `yaml:"features"`

	Timezones struct {
		Scheduling string `yaml:"scheduling"` // America/Los_Angeles
		Market     string `yaml:"market"`     // America/New_York
	} `yaml:"timezones"`

	Allocation struct {
		SOCapitalPct           float64 `yaml:"so_capital_pct"`
		CashReservePct         float64 `yaml:"cash_reserve_pct"`
		MaxPositionSizePct     float64 `yaml:"max_position_size_pct"`
		MaxConcurrentPositions int     `yaml:"max_concurrent_positions"`
	} `yaml:"allocation"`

	Sizing struct {
		SlipGuardEnabled      bool    `yaml:"slip_guard_enabled"`
		SlipGuardADVPct       float64 `yaml:"slip_guard_adv_pct"`
		SlipGuardLookbackDays int     `yaml:"slip_guard_lookback_days"`
	} `yaml:"sizing"`

	Stops struct {
		BreakevenThreshold          float64 `yaml:"breakeven_threshold"`
		BreakevenTimeMin            float64 `yaml:"breakeven_time_min"`
		BreakevenOffset             float64 `yaml:"breakeven_offset"`
		TrailingActivationThreshold float64 `yaml:"trailing_activation_threshold"`
		TrailingActivationTimeMin   float64 `yaml:"trailing_activation_time_min"`
		BaseTrailing                float64 `yaml:"base_trailing"`
		TrailingMin                 float64 `yaml:"trailing_min"`
		TrailingMax                 float64 `yaml:"trailing_max"`
		ProfitTimeoutHours          float64 `yaml:"profit_timeout_hours"`
		MaxHoldTimeHours            float64 `yaml:"max_hold_time_hours"`
	} `yaml:"stops"`

	RapidExit struct {
		NoMomentumThreshold float64 `yaml:"no_momentum_threshold"`
		ReversalThreshold   float64 `yaml:"reversal_threshold"`
		WeakThreshold       float64 `yaml:"weak_threshold"`
		WeakPeakThreshold   float64 `yaml:"weak_peak_threshold"`
	} `yaml:"rapid_exit"`

	Health struct {
		CheckFrequencyMin  float64 `yaml:"check_frequency_min"`
		WinRateThreshold   float64 `yaml:"win_rate_threshold"`
		AvgPnLThreshold    float64 `yaml:"avg_pnl_threshold"`
		MomentumThreshold  float64 `yaml:"momentum_threshold"`
		WeakPeaksThreshold float64 `yaml:"weak_peaks_threshold"`
	} `yaml:"health"`

	RedDay struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"red_day"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Account struct {
		StartingCash float64 `yaml:"starting_cash"`
	} `yaml:"account"`

	Broker struct {
		APIKey    string `yaml:"api_key"`
		AccountID string `yaml:"account_id"`
		Sandbox   bool   `yaml:"sandbox"`
	} `yaml:"broker"`

	HealthHTTP struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"health_http"`
}

// Load reads, expands, decodes, normalizes and validates the config file at
// path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(raw))

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Normalize fills in the documented defaults for any zero-valued field.
func (c *Config) Normalize() {
	if c.Mode == "" {
		c.Mode = ModeDemo
	}
	if c.Timezones.Scheduling == "" {
		c.Timezones.Scheduling = "America/Los_Angeles"
	}
	if c.Timezones.Market == "" {
		c.Timezones.Market = "America/New_York"
	}

	if c.Allocation.SOCapitalPct == 0 {
		c.Allocation.SOCapitalPct = 90
	}
	if c.Allocation.CashReservePct == 0 {
		c.Allocation.CashReservePct = 10
	}
	if c.Allocation.MaxPositionSizePct == 0 {
		c.Allocation.MaxPositionSizePct = 35
	}
	if c.Allocation.MaxConcurrentPositions == 0 {
		c.Allocation.MaxConcurrentPositions = 15
	}

	if c.Sizing.SlipGuardADVPct == 0 {
		c.Sizing.SlipGuardADVPct = 1.0
	}
	if c.Sizing.SlipGuardLookbackDays == 0 {
		c.Sizing.SlipGuardLookbackDays = 90
	}

	if c.Stops.BreakevenThreshold == 0 {
		c.Stops.BreakevenThreshold = 0.0075
	}
	if c.Stops.BreakevenTimeMin == 0 {
		c.Stops.BreakevenTimeMin = 6.4
	}
	if c.Stops.BreakevenOffset == 0 {
		c.Stops.BreakevenOffset = 0.002
	}
	if c.Stops.TrailingActivationThreshold == 0 {
		c.Stops.TrailingActivationThreshold = 0.007
	}
	if c.Stops.TrailingActivationTimeMin == 0 {
		c.Stops.TrailingActivationTimeMin = 6.4
	}
	if c.Stops.BaseTrailing == 0 {
		c.Stops.BaseTrailing = 0.015
	}
	if c.Stops.TrailingMin == 0 {
		c.Stops.TrailingMin = 0.015
	}
	if c.Stops.TrailingMax == 0 {
		c.Stops.TrailingMax = 0.025
	}
	if c.Stops.ProfitTimeoutHours == 0 {
		c.Stops.ProfitTimeoutHours = 2.5
	}
	if c.Stops.MaxHoldTimeHours == 0 {
		c.Stops.MaxHoldTimeHours = 4
	}

	if c.RapidExit.NoMomentumThreshold == 0 {
		c.RapidExit.NoMomentumThreshold = 0.003
	}
	if c.RapidExit.ReversalThreshold == 0 {
		c.RapidExit.ReversalThreshold = 0.005
	}
	if c.RapidExit.WeakThreshold == 0 {
		c.RapidExit.WeakThreshold = 0.003
	}
	if c.RapidExit.WeakPeakThreshold == 0 {
		c.RapidExit.WeakPeakThreshold = 0.002
	}

	if c.Health.CheckFrequencyMin == 0 {
		c.Health.CheckFrequencyMin = 15
	}
	if c.Health.WinRateThreshold == 0 {
		c.Health.WinRateThreshold = 0.35
	}
	if c.Health.AvgPnLThreshold == 0 {
		c.Health.AvgPnLThreshold = -0.005
	}
	if c.Health.MomentumThreshold == 0 {
		c.Health.MomentumThreshold = 0.40
	}
	if c.Health.WeakPeaksThreshold == 0 {
		c.Health.WeakPeaksThreshold = 0.008
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "data/state"
	}
	if c.Account.StartingCash == 0 {
		c.Account.StartingCash = 100000
	}
	if c.HealthHTTP.Port == 0 {
		c.HealthHTTP.Port = 8080
	}
}

// Validate runs cross-field sanity checks, mirroring the descriptive-error
// style of a typical config Validate step.
func (c *Config) Validate() error {
	if c.Mode != ModeDemo && c.Mode != ModeLive {
		return fmt.Errorf("mode must be %q or %q, got %q", ModeDemo, ModeLive, c.Mode)
	}
	if len(c.Universe) == 0 {
		return fmt.Errorf("universe must contain at least one symbol")
	}
	if _, err := time.LoadLocation(c.Timezones.Scheduling); err != nil {
		return fmt.Errorf("invalid scheduling timezone %q: %w", c.Timezones.Scheduling, err)
	}
	if _, err := time.LoadLocation(c.Timezones.Market); err != nil {
		return fmt.Errorf("invalid market timezone %q: %w", c.Timezones.Market, err)
	}

	if c.Allocation.SOCapitalPct <= 0 || c.Allocation.SOCapitalPct > 100 {
		return fmt.Errorf("allocation.so_capital_pct must be in (0, 100], got %.2f", c.Allocation.SOCapitalPct)
	}
	if c.Allocation.MaxPositionSizePct <= 0 || c.Allocation.MaxPositionSizePct > 100 {
		return fmt.Errorf("allocation.max_position_size_pct must be in (0, 100], got %.2f", c.Allocation.MaxPositionSizePct)
	}
	if c.Allocation.MaxConcurrentPositions <= 0 {
		return fmt.Errorf("allocation.max_concurrent_positions must be positive, got %d", c.Allocation.MaxConcurrentPositions)
	}

	if c.Stops.TrailingMin > c.Stops.TrailingMax {
		return fmt.Errorf("stops.trailing_min (%.4f) must be <= stops.trailing_max (%.4f)", c.Stops.TrailingMin, c.Stops.TrailingMax)
	}

	if c.Mode == ModeLive {
		if c.Broker.APIKey == "" {
			return fmt.Errorf("broker.api_key is required in live mode")
		}
		if c.Broker.AccountID == "" {
			return fmt.Errorf("broker.account_id is required in live mode")
		}
	}

	return nil
}

// IsDemoMode reports whether the agent runs against the mock gateway.
func (c *Config) IsDemoMode() bool {
	return c.Mode == ModeDemo
}

// TargetDeploymentFraction is the sizer's T, expressed as a [0,1] fraction.
func (c *Config) TargetDeploymentFraction() float64 {
	return c.Allocation.SOCapitalPct / 100.0
}

// MaxPositionFraction is the sizer's M, expressed as a [0,1] fraction.
func (c *Config) MaxPositionFraction() float64 {
	return c.Allocation.MaxPositionSizePct / 100.0
}

// SchedulingLocation resolves the scheduling timezone.
func (c *Config) SchedulingLocation() (*time.Location, error) {
	return time.LoadLocation(c.Timezones.Scheduling)
}

// MarketLocation resolves the market-semantics timezone.
func (c *Config) MarketLocation() (*time.Location, error) {
	return time.LoadLocation(c.Timezones.Market)
}
