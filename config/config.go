// Package config loads and validates the application configuration from YAML,
// applying struct-tag defaults for everything left unset.
package config

import (
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/tafadzwa-coder-sw23/grassroot/internal/api"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/backtest"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/consensus"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/logging"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/market"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/recorder"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/risk"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/smc"
	"github.com/tafadzwa-coder-sw23/grassroot/internal/sweep"
)

// Config is the full application configuration
type Config struct {
	// DemoMode swaps the exchange source for the deterministic mock source.
	// It exists for offline demo runs and must never be enabled silently.
	DemoMode bool `yaml:"demo_mode" default:"false"`

	Logging   logging.Config       `yaml:"logging"`
	Exchange  market.BinanceConfig `yaml:"exchange"`
	Cache     market.CacheConfig   `yaml:"cache"`
	Risk      risk.Config          `yaml:"risk"`
	SMC       smc.Config           `yaml:"smc"`
	CRT       sweep.CRTConfig      `yaml:"crt"`
	Scalp     sweep.ScalpConfig    `yaml:"scalp"`
	Scanner   sweep.ScannerConfig  `yaml:"scanner"`
	Consensus consensus.Config     `yaml:"consensus"`
	Backtest  backtest.Config      `yaml:"backtest"`
	Server    api.Config           `yaml:"server"`
	Recorder  recorder.Config      `yaml:"recorder"`
}

// Load reads the YAML file at path and returns the validated configuration.
// A missing file is not an error: the defaults describe a working demo setup.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply config defaults: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.validate()
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
