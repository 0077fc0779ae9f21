package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rustyeddy/papertrader/backtest"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config represents the complete papertrader configuration
type Config struct {
	Account  AccountConfig  `json:"account" yaml:"account"`
	Ledger   LedgerConfig   `json:"ledger" yaml:"ledger"`
	Market   MarketConfig   `json:"market" yaml:"market"`
	Backtest BacktestConfig `json:"backtest" yaml:"backtest"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	Server   ServerConfig   `json:"server" yaml:"server"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

// AccountConfig contains paper account initialization parameters
type AccountConfig struct {
	ID      string  `json:"id" yaml:"id"`
	Balance float64 `json:"balance" yaml:"balance"`
}

// LedgerConfig selects where the paper account is stored
type LedgerConfig struct {
	Backend string `json:"backend" yaml:"backend"` // "file", "sqlite" or "postgres"
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
	DSN     string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// MarketConfig selects the historical price source
type MarketConfig struct {
	Source    string `json:"source" yaml:"source"` // "binance" or "csv"
	BaseURL   string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	CSVDir    string `json:"csv_dir,omitempty" yaml:"csv_dir,omitempty"`
	RedisAddr string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	CacheTTL  string `json:"cache_ttl,omitempty" yaml:"cache_ttl,omitempty"` // e.g. "5m"
}

// CacheDuration converts CacheTTL to a time.Duration
func (m MarketConfig) CacheDuration() (time.Duration, error) {
	if m.CacheTTL == "" {
		return 0, nil
	}
	return time.ParseDuration(m.CacheTTL)
}

// BacktestConfig contains backtest defaults
type BacktestConfig struct {
	Days           int     `json:"days" yaml:"days"`
	Interval       string  `json:"interval" yaml:"interval"`
	InitialCapital float64 `json:"initial_capital" yaml:"initial_capital"`
	Parallelism    int     `json:"parallelism" yaml:"parallelism"`
	ParquetDir     string  `json:"parquet_dir,omitempty" yaml:"parquet_dir,omitempty"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "none", "csv" or "sqlite"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	Dataset    string `json:"dataset,omitempty" yaml:"dataset,omitempty"`
	OrgDir     string `json:"org_dir,omitempty" yaml:"org_dir,omitempty"`
}

// ServerConfig contains HTTP API parameters
type ServerConfig struct {
	Addr         string `json:"addr" yaml:"addr"`
	ReadTimeout  string `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty" yaml:"write_timeout,omitempty"`
}

// Timeouts parses the read and write timeouts; empty means no timeout.
func (s ServerConfig) Timeouts() (read, write time.Duration, err error) {
	if s.ReadTimeout != "" {
		if read, err = time.ParseDuration(s.ReadTimeout); err != nil {
			return 0, 0, fmt.Errorf("server.read_timeout: %w", err)
		}
	}
	if s.WriteTimeout != "" {
		if write, err = time.ParseDuration(s.WriteTimeout); err != nil {
			return 0, 0, fmt.Errorf("server.write_timeout: %w", err)
		}
	}
	return read, write, nil
}

// LogConfig controls the logger
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // "text" or "json"
}

// LoadFromFile loads configuration from a file (JSON or YAML based on extension)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Unset fields keep their defaults.
	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	// Determine format by extension
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

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.ID == "" {
		return fmt.Errorf("account.id is required")
	}
	if c.Account.Balance <= 0 {
		return fmt.Errorf("account.balance must be positive")
	}

	switch c.Ledger.Backend {
	case "file", "sqlite":
		if c.Ledger.Path == "" {
			return fmt.Errorf("ledger.path required for %s backend", c.Ledger.Backend)
		}
	case "postgres":
		if c.Ledger.DSN == "" {
			return fmt.Errorf("ledger.dsn required for postgres backend")
		}
	default:
		return fmt.Errorf("ledger.backend must be 'file', 'sqlite' or 'postgres'")
	}

	switch c.Market.Source {
	case "binance":
	case "csv":
		if c.Market.CSVDir == "" {
			return fmt.Errorf("market.csv_dir required for csv source")
		}
	default:
		return fmt.Errorf("market.source must be 'binance' or 'csv'")
	}
	if _, err := c.Market.CacheDuration(); err != nil {
		return fmt.Errorf("market.cache_ttl: %w", err)
	}

	if c.Backtest.Days <= 0 {
		return fmt.Errorf("backtest.days must be positive")
	}
	if c.Backtest.InitialCapital <= 0 {
		return fmt.Errorf("backtest.initial_capital must be positive")
	}
	if c.Backtest.Parallelism < 0 {
		return fmt.Errorf("backtest.parallelism must not be negative")
	}

	switch c.Journal.Type {
	case "none":
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'none', 'csv' or 'sqlite'")
	}

	if _, _, err := c.Server.Timeouts(); err != nil {
		return err
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be 'text' or 'json'")
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			ID:      "default",
			Balance: 10000,
		},
		Ledger: LedgerConfig{
			Backend: "file",
			Path:    "./data",
		},
		Market: MarketConfig{
			Source:   "binance",
			CacheTTL: "5m",
		},
		Backtest: BacktestConfig{
			Days:           backtest.DefaultDays,
			Interval:       backtest.DefaultInterval,
			InitialCapital: 10000,
			Parallelism:    4,
		},
		Journal: JournalConfig{
			Type:    "sqlite",
			DBPath:  "./data/journal.db",
			Dataset: "binance",
		},
		Server: ServerConfig{
			Addr:         ":8000",
			ReadTimeout:  "15s",
			WriteTimeout: "60s",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
