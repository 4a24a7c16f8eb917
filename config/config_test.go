package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	for _, tc := range []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "valid default config", modify: func(*Config) {}},
		{name: "boltdb", modify: func(c *Config) { c.Storage = StorageConfig{Type: StorageBoltDB, Path: "chain.db"} }},
		{name: "boltdb without path", modify: func(c *Config) { c.Storage.Type = StorageBoltDB }, wantErr: true},
		{name: "unknown storage", modify: func(c *Config) { c.Storage.Type = "leveldb" }, wantErr: true},
		{name: "invalid owner", modify: func(c *Config) { c.Owner = "owner" }, wantErr: true},
		{name: "zero owner", modify: func(c *Config) { c.Owner = util.Uint160{}.StringLE() }, wantErr: true},
		{name: "invalid log level", modify: func(c *Config) { c.Logger.Level = "verbose" }, wantErr: true},
		{name: "relay without prefix", modify: func(c *Config) { c.Relay = RelayConfig{URL: "nats://localhost:4222"} }, wantErr: true},
		{name: "negative timelock", modify: func(c *Config) { c.Proxy.Timelock = -time.Second }, wantErr: true},
		{name: "fee too high", modify: func(c *Config) { c.Swap.FeeBps = 10_000 }, wantErr: true},
		{name: "fractional inventory", modify: func(c *Config) { c.Swap.Inventory = "1.5" }, wantErr: true},
		{name: "duplicate token", modify: func(c *Config) { c.Tokens = append(c.Tokens, c.Tokens[0]) }, wantErr: true},
		{name: "low decimals", modify: func(c *Config) { c.Tokens[0].Decimals = 2 }, wantErr: true},
		{name: "zero price", modify: func(c *Config) { c.Tokens[0].Price = "0" }, wantErr: true},
		{name: "too precise price", modify: func(c *Config) { c.Tokens[0].Price = "0.999999999" }, wantErr: true},
		{name: "no staleness", modify: func(c *Config) { c.Tokens[0].MaxStaleness = 0 }, wantErr: true},
		{name: "unknown asset token", modify: func(c *Config) { c.Assets[0].Token = "FRAX" }, wantErr: true},
		{name: "duplicate asset", modify: func(c *Config) { c.Assets = append(c.Assets, c.Assets[0]) }, wantErr: true},
		{name: "unknown strategy", modify: func(c *Config) { c.Assets[0].Strategy = "lending" }, wantErr: true},
		{name: "staking without cooldown", modify: func(c *Config) { c.Assets[1].Cooldown = 0 }, wantErr: true},
		{
			name: "zero total weight",
			modify: func(c *Config) {
				for i := range c.Assets {
					c.Assets[i].Weight = 0
				}
			},
			wantErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(cfg)

			err := cfg.Validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestParseAddress(t *testing.T) {
	h := util.Uint160{1, 2, 3}

	res, err := ParseAddress(address.Uint160ToString(h))
	require.NoError(t, err)
	require.Equal(t, h, res)

	res, err = ParseAddress(h.StringLE())
	require.NoError(t, err)
	require.Equal(t, h, res)

	_, err = ParseAddress("NotAnAddress")
	require.Error(t, err)
}

func TestParseAmount(t *testing.T) {
	for _, tc := range []struct {
		in       string
		decimals uint8
		exp      string
		wantErr  bool
	}{
		{in: "", decimals: 6, exp: "0"},
		{in: "1", decimals: 6, exp: "1000000"},
		{in: "0.999", decimals: 18, exp: "999000000000000000"},
		{in: "10000000", decimals: 18, exp: "10000000000000000000000000"},
		{in: "0.0000001", decimals: 6, wantErr: true},
		{in: "-1", decimals: 6, wantErr: true},
		{in: "one", decimals: 6, wantErr: true},
	} {
		res, err := ParseAmount(tc.in, tc.decimals)
		if tc.wantErr {
			require.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.exp, res.Dec(), tc.in)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	content := `
owner: 0102030405060708090a0b0c0d0e0f1011121314
proxy:
  timelock: 1m
tokens:
  - symbol: USDC
    decimals: 6
    price: "1"
    max_staleness: 1h
    supply: "1000"
assets:
  - token: USDC
    weight: 1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, time.Minute, cfg.Proxy.Timelock)
	require.Len(t, cfg.Tokens, 1)
	require.Len(t, cfg.Assets, 1)
	require.Equal(t, StorageMemory, cfg.Storage.Type, "defaults are kept")
	require.Equal(t, "bentovault", cfg.Relay.Prefix)

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestSaveToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Relay.URL = "nats://localhost:4222"
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}
