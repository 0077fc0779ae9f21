package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg)
	assert.Equal(t, "default", cfg.Account.ID)
	assert.Equal(t, 10000.0, cfg.Account.Balance)
	assert.Equal(t, "file", cfg.Ledger.Backend)
	assert.Equal(t, 30, cfg.Backtest.Days)
	assert.Equal(t, "1h", cfg.Backtest.Interval)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	with := func(mod func(*Config)) *Config {
		c := Default()
		mod(c)
		return c
	}

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			config:  Default(),
			wantErr: false,
		},
		{
			name:    "missing account id",
			config:  with(func(c *Config) { c.Account.ID = "" }),
			wantErr: true,
			errMsg:  "account.id is required",
		},
		{
			name:    "negative balance",
			config:  with(func(c *Config) { c.Account.Balance = -1000 }),
			wantErr: true,
			errMsg:  "account.balance must be positive",
		},
		{
			name:    "unknown ledger backend",
			config:  with(func(c *Config) { c.Ledger.Backend = "mysql" }),
			wantErr: true,
			errMsg:  "ledger.backend must be",
		},
		{
			name:    "postgres without dsn",
			config:  with(func(c *Config) { c.Ledger.Backend = "postgres" }),
			wantErr: true,
			errMsg:  "ledger.dsn required",
		},
		{
			name: "sqlite ledger",
			config: with(func(c *Config) {
				c.Ledger.Backend = "sqlite"
				c.Ledger.Path = "ledger.db"
			}),
			wantErr: false,
		},
		{
			name:    "csv source without dir",
			config:  with(func(c *Config) { c.Market.Source = "csv" }),
			wantErr: true,
			errMsg:  "market.csv_dir required",
		},
		{
			name:    "bad cache ttl",
			config:  with(func(c *Config) { c.Market.CacheTTL = "soon" }),
			wantErr: true,
			errMsg:  "market.cache_ttl",
		},
		{
			name:    "zero days",
			config:  with(func(c *Config) { c.Backtest.Days = 0 }),
			wantErr: true,
			errMsg:  "backtest.days must be positive",
		},
		{
			name:    "csv journal without files",
			config:  with(func(c *Config) { c.Journal.Type = "csv" }),
			wantErr: true,
			errMsg:  "journal trades_file and equity_file required",
		},
		{
			name:    "journal disabled",
			config:  with(func(c *Config) { c.Journal.Type = "none" }),
			wantErr: false,
		},
		{
			name:    "bad server timeout",
			config:  with(func(c *Config) { c.Server.ReadTimeout = "fast" }),
			wantErr: true,
			errMsg:  "server.read_timeout",
		},
		{
			name:    "bad log level",
			config:  with(func(c *Config) { c.Log.Level = "loud" }),
			wantErr: true,
			errMsg:  "log.level",
		},
		{
			name:    "bad log format",
			config:  with(func(c *Config) { c.Log.Format = "xml" }),
			wantErr: true,
			errMsg:  "log.format must be",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name string
		ext  string
	}{
		{"json format", ".json"},
		{"yaml format", ".yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Account.Balance = 2500
			cfg.Ledger.Backend = "sqlite"
			cfg.Ledger.Path = "ledger.db"
			path := filepath.Join(tmpDir, "test"+tt.ext)

			// Save
			err := cfg.SaveToFile(path)
			require.NoError(t, err)

			// Verify file exists
			_, err = os.Stat(path)
			require.NoError(t, err)

			// Load
			loaded, err := LoadFromFile(path)
			require.NoError(t, err)

			// Compare
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("account:\n  balance: 500\nlog:\n  level: debug\n"), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 500.0, cfg.Account.Balance)
	assert.Equal(t, "default", cfg.Account.ID)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path.yaml")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ledger:\n  backend: mysql\n"), 0644))
	_, err = LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestCacheDuration(t *testing.T) {
	tests := []struct {
		ttl      string
		expected string
		wantErr  bool
	}{
		{"1h", "1h0m0s", false},
		{"30m", "30m0s", false},
		{"1s", "1s", false},
		{"", "0s", false},
		{"invalid", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.ttl, func(t *testing.T) {
			m := MarketConfig{CacheTTL: tt.ttl}
			d, err := m.CacheDuration()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expected, d.String())
			}
		})
	}
}
