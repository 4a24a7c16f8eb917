// Package config provides persisted configuration of the vault environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bentousd/bento-vault/common"
	"github.com/bentousd/bento-vault/strategy"
	"github.com/bentousd/bento-vault/swap"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/encoding/fixedn"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageBoltDB = "boltdb"
)

// FeedDecimals is the precision of the price feeds created from the
// configured prices.
const FeedDecimals = 8

// Config represents the complete environment configuration.
type Config struct {
	// Owner is the account owning every deployed contract. Neo address or
	// little-endian hex script hash.
	Owner   string        `yaml:"owner"`
	Storage StorageConfig `yaml:"storage"`
	Logger  LoggerConfig  `yaml:"logger"`
	Relay   RelayConfig   `yaml:"relay"`
	Proxy   ProxyConfig   `yaml:"proxy"`
	Swap    SwapConfig    `yaml:"swap"`
	// BentoUSDPlus enables staking wrapper over BentoUSD.
	BentoUSDPlus bool          `yaml:"bentousd_plus"`
	Tokens       []TokenConfig `yaml:"tokens"`
	Assets       []AssetConfig `yaml:"assets"`
}

// StorageConfig configures the chain store.
type StorageConfig struct {
	// Type is either "memory" or "boltdb".
	Type string `yaml:"type"`
	// Path of the BoltDB file.
	Path string `yaml:"path"`
}

// LoggerConfig configures the CLI logger.
type LoggerConfig struct {
	Level string `yaml:"level"`
}

// RelayConfig configures forwarding of notifications to NATS.
type RelayConfig struct {
	// URL of the NATS server, empty disables the relay.
	URL string `yaml:"url"`
	// Prefix of the subjects.
	Prefix string `yaml:"prefix"`
}

// ProxyConfig configures the vault proxy.
type ProxyConfig struct {
	Timelock time.Duration `yaml:"timelock"`
}

// SwapConfig configures the aggregation router.
type SwapConfig struct {
	FeeBps uint16 `yaml:"fee_bps"`
	// Inventory is the amount of every token the router is funded with, in
	// whole tokens.
	Inventory string `yaml:"inventory"`
	// SlippageBps is the default slippage of quotes.
	SlippageBps uint16 `yaml:"slippage_bps"`
}

// TokenConfig describes collateral token.
type TokenConfig struct {
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
	// Price in USD set to the token feed.
	Price        string        `yaml:"price"`
	MaxStaleness time.Duration `yaml:"max_staleness"`
	// Supply minted to the owner on the first deployment, in whole tokens.
	Supply string `yaml:"supply"`
}

// AssetConfig describes collateral asset of the vault.
type AssetConfig struct {
	Token  string `yaml:"token"`
	Weight uint64 `yaml:"weight"`
	// Strategy is "generic_vault", "staking_token" or empty for no strategy.
	Strategy string `yaml:"strategy"`
	// Cooldown of the staking strategy.
	Cooldown time.Duration `yaml:"cooldown"`
	// MinRebalance is the allocation threshold in whole tokens.
	MinRebalance string `yaml:"min_rebalance"`
}

// DefaultConfig returns a Config of the local environment with the reference
// basket.
func DefaultConfig() *Config {
	return &Config{
		Owner: "b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0",
		Storage: StorageConfig{
			Type: StorageMemory,
		},
		Logger: LoggerConfig{
			Level: "info",
		},
		Relay: RelayConfig{
			Prefix: "bentovault",
		},
		Proxy: ProxyConfig{
			Timelock: 10 * time.Second,
		},
		Swap: SwapConfig{
			Inventory:   "1000000",
			SlippageBps: 50,
		},
		BentoUSDPlus: true,
		Tokens: []TokenConfig{
			{Symbol: "USDC", Decimals: 6, Price: "1", MaxStaleness: 24 * time.Hour, Supply: "10000000"},
			{Symbol: "USDe", Decimals: 18, Price: "0.999", MaxStaleness: 24 * time.Hour, Supply: "10000000"},
			{Symbol: "USDT", Decimals: 6, Price: "1", MaxStaleness: 24 * time.Hour, Supply: "10000000"},
			{Symbol: "DAI", Decimals: 18, Price: "1", MaxStaleness: 24 * time.Hour, Supply: "10000000"},
		},
		Assets: []AssetConfig{
			{Token: "USDC", Weight: 375},
			{Token: "USDe", Weight: 250, Strategy: strategy.StakingToken.String(), Cooldown: 7 * 24 * time.Hour},
			{Token: "USDT", Weight: 125},
			{Token: "DAI", Weight: 250, Strategy: strategy.GenericVault.String()},
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if _, err := c.OwnerAddress(); err != nil {
		return err
	}

	switch c.Storage.Type {
	case StorageMemory:
	case StorageBoltDB:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for %s", StorageBoltDB)
		}
	default:
		return fmt.Errorf("unsupported storage.type %q", c.Storage.Type)
	}

	if _, err := zapcore.ParseLevel(c.Logger.Level); err != nil {
		return fmt.Errorf("logger.level: %w", err)
	}

	if c.Relay.URL != "" && c.Relay.Prefix == "" {
		return fmt.Errorf("relay.prefix is required")
	}

	if c.Proxy.Timelock < 0 {
		return fmt.Errorf("proxy.timelock must not be negative")
	}

	if c.Swap.FeeBps >= swap.MaxBps || c.Swap.SlippageBps >= swap.MaxBps {
		return fmt.Errorf("swap basis points must be less than %d", swap.MaxBps)
	}
	if _, err := ParseAmount(c.Swap.Inventory, 0); err != nil {
		return fmt.Errorf("swap.inventory: %w", err)
	}

	tokens := make(map[string]TokenConfig, len(c.Tokens))
	for i, t := range c.Tokens {
		if err := t.validate(); err != nil {
			return fmt.Errorf("tokens[%d]: %w", i, err)
		}
		if _, ok := tokens[t.Symbol]; ok {
			return fmt.Errorf("tokens[%d]: duplicate symbol %s", i, t.Symbol)
		}
		tokens[t.Symbol] = t
	}

	var total uint64
	assets := make(map[string]struct{}, len(c.Assets))

	for i, a := range c.Assets {
		t, ok := tokens[a.Token]
		if !ok {
			return fmt.Errorf("assets[%d]: unknown token %q", i, a.Token)
		}
		if _, ok = assets[a.Token]; ok {
			return fmt.Errorf("assets[%d]: duplicate asset %s", i, a.Token)
		}
		assets[a.Token] = struct{}{}

		if err := a.validate(t.Decimals); err != nil {
			return fmt.Errorf("assets[%d]: %w", i, err)
		}

		total += a.Weight
	}

	if total == 0 {
		return fmt.Errorf("total asset weight must be positive")
	}

	return nil
}

func (t TokenConfig) validate() error {
	if t.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if t.Decimals < 6 || t.Decimals > 18 {
		return fmt.Errorf("decimals %d out of [6, 18]", t.Decimals)
	}
	if _, err := t.FeedAnswer(); err != nil {
		return fmt.Errorf("price: %w", err)
	}
	if t.MaxStaleness <= 0 {
		return fmt.Errorf("max_staleness must be positive")
	}
	if _, err := ParseAmount(t.Supply, t.Decimals); err != nil {
		return fmt.Errorf("supply: %w", err)
	}
	return nil
}

func (a AssetConfig) validate(decimals uint8) error {
	if a.Strategy != "" {
		kind, err := strategy.ParseKind(a.Strategy)
		if err != nil {
			return err
		}
		if kind == strategy.StakingToken && a.Cooldown <= 0 {
			return fmt.Errorf("cooldown is required for %s strategy", kind)
		}
	}
	if _, err := ParseAmount(a.MinRebalance, decimals); err != nil {
		return fmt.Errorf("min_rebalance: %w", err)
	}
	return nil
}

// OwnerAddress returns parsed Owner.
func (c *Config) OwnerAddress() (util.Uint160, error) {
	res, err := ParseAddress(c.Owner)
	if err != nil {
		return util.Uint160{}, fmt.Errorf("owner: %w", err)
	}
	if res.Equals(util.Uint160{}) {
		return util.Uint160{}, fmt.Errorf("owner: zero address")
	}
	return res, nil
}

// Token returns configuration of the token with the given symbol.
func (c *Config) Token(symbol string) (TokenConfig, bool) {
	for i := range c.Tokens {
		if c.Tokens[i].Symbol == symbol {
			return c.Tokens[i], true
		}
	}
	return TokenConfig{}, false
}

// FeedAnswer returns Price scaled by FeedDecimals.
func (t TokenConfig) FeedAnswer() (*uint256.Int, error) {
	res, err := ParseAmount(t.Price, FeedDecimals)
	if err != nil {
		return nil, err
	}
	if res.IsZero() {
		return nil, fmt.Errorf("zero price")
	}
	return res, nil
}

// ParseAddress parses Neo address or little-endian hex script hash.
func ParseAddress(s string) (util.Uint160, error) {
	if res, err := address.StringToUint160(s); err == nil {
		return res, nil
	}

	res, err := util.Uint160DecodeStringLE(s)
	if err != nil {
		return util.Uint160{}, fmt.Errorf("%q is neither address nor script hash", s)
	}

	return res, nil
}

// ParseAmount parses decimal string into integer amount with the given
// precision. Empty string means zero.
func ParseAmount(s string, decimals uint8) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}

	b, err := fixedn.FromString(s, int(decimals))
	if err != nil {
		return nil, err
	}
	if b.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %s", s)
	}

	return common.FromBig(b)
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
