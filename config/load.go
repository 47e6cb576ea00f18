package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads YAML config from path and applies validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("ENGINE_VENUE_API_KEY"); v != "" {
		cfg.Venue.APIKey = v
	}
	if v := os.Getenv("ENGINE_VENUE_API_SECRET"); v != "" {
		cfg.Venue.APISecret = v
	}
	return cfg, Validate(cfg)
}

// Validate ensures required fields are present and fractions stay in range.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Engine.TickIntervalMs < 0 {
		return errors.New("engine.tickIntervalMs must be >= 0")
	}
	if cfg.Engine.RouterShards < 0 {
		return errors.New("engine.routerShards must be >= 0")
	}
	if cfg.Engine.OverfillTolerance < 0 {
		return errors.New("engine.overfillTolerance must be >= 0")
	}

	switch cfg.Venue.Mode {
	case "sim":
	case "live":
		if cfg.Venue.FeedURL == "" {
			return errors.New("venue.feedURL is required in live mode")
		}
		if cfg.Venue.APIKey == "" || cfg.Venue.APISecret == "" {
			return errors.New("venue.apiKey/apiSecret is required in live mode (or env overrides)")
		}
	default:
		return fmt.Errorf("venue.mode must be sim or live, got %q", cfg.Venue.Mode)
	}
	if cfg.Venue.RateLimitRPS < 0 {
		return errors.New("venue.rateLimitRPS must be >= 0")
	}

	if len(cfg.Markets) == 0 {
		return errors.New("markets config is required")
	}
	for mkt, mc := range cfg.Markets {
		if mc.TickSize <= 0 {
			return fmt.Errorf("market %s tickSize must be > 0", mkt)
		}
		if mc.LotSize <= 0 {
			return fmt.Errorf("market %s lotSize must be > 0", mkt)
		}
	}

	mm := cfg.Algo.MarketMaker
	if mm.Quantity < 0 {
		return errors.New("algo.marketMaker.quantity must be >= 0")
	}
	if mm.Quantity > 0 && mm.MaxPosition <= mm.MinPosition {
		return errors.New("algo.marketMaker.maxPosition must be > minPosition")
	}
	if mm.RefDistFrac < 0 || mm.ToleranceFrac < 0 {
		return errors.New("algo.marketMaker.refDistFrac/toleranceFrac must be >= 0")
	}

	pov := cfg.Algo.POV
	if pov.TargetVolumeFrac < 0 || pov.TargetVolumeFrac > 1 {
		return errors.New("algo.pov.targetVolumeFrac must be within [0,1]")
	}
	if pov.MinOrderQuantity < 0 || pov.MaxQuantity < 0 {
		return errors.New("algo.pov quantities must be >= 0")
	}

	if cfg.Algo.TWAP.TakeThroughFrac < 0 {
		return errors.New("algo.twap.takeThroughFrac must be >= 0")
	}
	if cfg.Algo.Chaser.RepegTicks < 0 {
		return errors.New("algo.chaser.repegTicks must be >= 0")
	}
	return nil
}
