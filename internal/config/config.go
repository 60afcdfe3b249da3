// Package config loads fundcalc settings from a YAML file with FUNDCALC_
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"benritz/fundcalc/internal/bond"
)

const EnvPrefix = "FUNDCALC"

type Config struct {
	Compounding int            `mapstructure:"compounding"`
	Workers     int            `mapstructure:"workers"`
	Solver      SolverConfig   `mapstructure:"solver"`
	Flows       FlowsConfig    `mapstructure:"flows"`
	Holdings    HoldingsConfig `mapstructure:"holdings"`
	Anchor      AnchorConfig   `mapstructure:"anchor"`
	Output      OutputConfig   `mapstructure:"output"`
	Logging     LoggingConfig  `mapstructure:"logging"`
}

type SolverConfig struct {
	Tolerance     float64 `mapstructure:"tolerance"`
	MaxIterations int     `mapstructure:"max_iterations"`
}

type FlowsConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`
	// UnitScale multiplies published flow values, 1e6 for millions.
	UnitScale string `mapstructure:"unit_scale"`
}

type HoldingsConfig struct {
	// Location may contain {ticker}; local path, http(s) or s3:// URL.
	Location string `mapstructure:"location"`
	// ZeroCouponTickers use the zero-coupon closed forms.
	ZeroCouponTickers []string `mapstructure:"zero_coupon_tickers"`
}

type AnchorConfig struct {
	URL string `mapstructure:"url"`
}

type OutputConfig struct {
	// Destination is a directory or an s3://bucket/prefix URL.
	Destination string `mapstructure:"destination"`
	AWSProfile  string `mapstructure:"aws_profile"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads the configuration from path, or when path is empty from
// fundcalc.yaml in ./config, ~/.fundcalc or /etc/fundcalc if present.
// Environment variables override file values, e.g. FUNDCALC_SOLVER_TOLERANCE.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fundcalc")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(filepath.Join(homeDir(), ".fundcalc"))
		v.AddConfigPath("/etc/fundcalc")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("compounding", 2)
	v.SetDefault("workers", 8)

	v.SetDefault("solver.tolerance", bond.DefaultTolerance)
	v.SetDefault("solver.max_iterations", bond.DefaultMaxIterations)

	v.SetDefault("flows.base_url", "https://api.etf.com/v1")
	v.SetDefault("flows.token", "")
	v.SetDefault("flows.unit_scale", "1000000")

	v.SetDefault("holdings.location", "")
	v.SetDefault("holdings.zero_coupon_tickers", []string{"EDV"})

	v.SetDefault("anchor.url", "https://www.ishares.com/us/products/{ticker}")

	v.SetDefault("output.destination", "./out")
	v.SetDefault("output.aws_profile", "default")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

func (c *Config) Validate() error {
	if c.Compounding < 1 {
		return fmt.Errorf("compounding must be at least 1, got %d", c.Compounding)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if !(c.Solver.Tolerance > 0) {
		return fmt.Errorf("solver.tolerance must be positive, got %g", c.Solver.Tolerance)
	}
	if c.Solver.MaxIterations < 1 {
		return fmt.Errorf("solver.max_iterations must be at least 1, got %d", c.Solver.MaxIterations)
	}
	if _, err := c.FlowScale(); err != nil {
		return err
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) SolverSettings() bond.Solver {
	return bond.Solver{
		Tolerance:     c.Solver.Tolerance,
		MaxIterations: c.Solver.MaxIterations,
	}
}

func (c *Config) FlowScale() (decimal.Decimal, error) {
	scale, err := decimal.NewFromString(c.Flows.UnitScale)
	if err != nil || !scale.IsPositive() {
		return decimal.Zero, fmt.Errorf("flows.unit_scale must be a positive number, got %q", c.Flows.UnitScale)
	}
	return scale, nil
}

func (c *Config) IsZeroCoupon(ticker string) bool {
	for _, t := range c.Holdings.ZeroCouponTickers {
		if strings.EqualFold(t, ticker) {
			return true
		}
	}
	return false
}

// NewLogger builds a logger from the logging settings.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	if c.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if level, err := logrus.ParseLevel(c.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	return logger
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
