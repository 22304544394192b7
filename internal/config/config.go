// Package config holds the simulation's tunables. Values come from
// built-in defaults, optionally overlaid by a YAML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of tunables.
type Config struct {
	Map        MapConfig        `yaml:"map"`
	Market     MarketConfig     `yaml:"market"`
	Power      PowerConfig      `yaml:"power"`
	Economy    EconomyConfig    `yaml:"economy"`
	Simulation SimulationConfig `yaml:"simulation"`

	DBPath      string `yaml:"db_path"`
	CatalogPath string `yaml:"catalog_path"` // Empty = built-in catalog
	APIPort     int    `yaml:"api_port"`
	LogLevel    string `yaml:"log_level"`
}

// MapConfig sizes a newly generated city.
type MapConfig struct {
	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`
	Seed      int64   `yaml:"seed"`
	WaterLine float64 `yaml:"water_line"`
}

// MarketConfig tunes the matching engine.
type MarketConfig struct {
	MaxResourceDistance int           `yaml:"max_resource_distance"`
	Timeout             time.Duration `yaml:"timeout"`
	Workers             int           `yaml:"workers"`
	MaxAttempts         int           `yaml:"max_attempts"`
	SellerShare         int           `yaml:"seller_share"`
	OutsideBackoff      time.Duration `yaml:"outside_backoff"`
	MaxPathExpansions   int           `yaml:"max_path_expansions"`
	ChaosThreshold      int           `yaml:"chaos_threshold"`
}

// PowerConfig tunes power coverage.
type PowerConfig struct {
	Radius int `yaml:"radius"`
}

// EconomyConfig holds taxes, liquidation, and the national market.
type EconomyConfig struct {
	TaxRate           float64 `yaml:"tax_rate"`
	MinTax            int     `yaml:"min_tax"`
	ResidentialBuffer float64 `yaml:"residential_buffer"`
	NationalRate      float64 `yaml:"national_rate"`

	LiquidationFraction float64 `yaml:"liquidation_fraction"`
	LiquidationMin      int     `yaml:"liquidation_min"`
	LiquidationMax      int     `yaml:"liquidation_max"`
}

// SimulationConfig controls the clock.
type SimulationConfig struct {
	Speed    float64       `yaml:"speed"`    // Clock multiplier; 1 = one tick per interval
	Interval time.Duration `yaml:"interval"` // Wall-clock time per tick
	Seed     uint64        `yaml:"seed"`     // 0 = random
}

// Default returns the standard tuning.
func Default() Config {
	return Config{
		Map: MapConfig{
			Width:     128,
			Height:    128,
			WaterLine: 0.22,
		},
		Market: MarketConfig{
			MaxResourceDistance: 100,
			Timeout:             5 * time.Second,
			Workers:             8,
			MaxAttempts:         5,
			SellerShare:         3,
			OutsideBackoff:      30 * time.Second,
			MaxPathExpansions:   20000,
			ChaosThreshold:      100,
		},
		Power: PowerConfig{Radius: 3},
		Economy: EconomyConfig{
			TaxRate:             0.20,
			MinTax:              1,
			ResidentialBuffer:   1.5,
			NationalRate:        0.05,
			LiquidationFraction: 0.10,
			LiquidationMin:      1,
			LiquidationMax:      15,
		},
		Simulation: SimulationConfig{
			Speed:    1,
			Interval: 100 * time.Millisecond,
		},
		DBPath:   "data/gridcity.db",
		APIPort:  8080,
		LogLevel: "info",
	}
}

// Load reads path and overlays it onto the defaults. Keys absent from the
// file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the simulation cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Map.Width <= 0 || c.Map.Height <= 0 {
		errs = append(errs, fmt.Errorf("map size %dx%d must be positive", c.Map.Width, c.Map.Height))
	}
	if c.Market.Workers <= 0 {
		errs = append(errs, errors.New("market.workers must be positive"))
	}
	if c.Market.Timeout <= 0 {
		errs = append(errs, errors.New("market.timeout must be positive"))
	}
	if c.Market.SellerShare <= 0 {
		errs = append(errs, errors.New("market.seller_share must be positive"))
	}
	if c.Economy.TaxRate < 0 || c.Economy.TaxRate > 1 {
		errs = append(errs, fmt.Errorf("economy.tax_rate %.2f outside [0,1]", c.Economy.TaxRate))
	}
	if c.Economy.ResidentialBuffer < 1 {
		errs = append(errs, errors.New("economy.residential_buffer must be at least 1"))
	}
	if c.Economy.LiquidationMin > c.Economy.LiquidationMax {
		errs = append(errs, errors.New("economy.liquidation_min exceeds liquidation_max"))
	}
	if c.Simulation.Speed <= 0 {
		errs = append(errs, errors.New("simulation.speed must be positive"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseLevel maps a log level name to its slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
