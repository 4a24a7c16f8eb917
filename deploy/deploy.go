package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bentousd/bento-vault/bentousd"
	"github.com/bentousd/bento-vault/chain"
	"github.com/bentousd/bento-vault/common"
	"github.com/bentousd/bento-vault/config"
	"github.com/bentousd/bento-vault/oracle"
	"github.com/bentousd/bento-vault/proxy"
	"github.com/bentousd/bento-vault/sharevault"
	"github.com/bentousd/bento-vault/strategy"
	"github.com/bentousd/bento-vault/swap"
	"github.com/bentousd/bento-vault/token"
	"github.com/bentousd/bento-vault/vault"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Names the contract addresses are derived from. Token contracts are named
// by their symbols, feeds and yield tokens by the symbol with a prefix.
const (
	NameOracle       = "oracle"
	NameRouter       = "router"
	NameVault        = "vault"
	NameVaultCore    = "vault-core"
	NameBentoUSDPlus = bentousd.Symbol + "+"

	feedPrefix       = "feed-"
	yieldTokenPrefix = "s"
)

// Prm groups all parameters of the environment deployment procedure.
type Prm struct {
	// Writes progress into the log.
	Logger *zap.Logger

	// Chain to deploy the contracts into. Its store may already hold the
	// state of the previous deployment.
	Chain *chain.Chain

	// Validated environment configuration.
	Config *config.Config

	// Registerer of the vault metrics, optional.
	Registerer prometheus.Registerer
}

// Environment is the deployed set of contracts.
type Environment struct {
	Owner util.Uint160
	Chain *chain.Chain

	// Collateral tokens, their price feeds and yield tokens by token symbol.
	Tokens      map[string]*token.Token
	Feeds       map[string]*oracle.MockAggregator
	YieldTokens map[string]*sharevault.Vault

	Oracle   *oracle.Router
	BentoUSD *bentousd.Token
	// BentoUSDPlus is nil if disabled in the configuration.
	BentoUSDPlus *sharevault.Vault
	Router       *swap.AggregationRouter
	Quoter       *swap.Quoter
	Proxy        *proxy.Proxy
	Core         *vault.Core
	Vault        *vault.Vault
}

// ContractHash returns address of the named contract deployed by the owner.
func ContractHash(owner util.Uint160, name string) util.Uint160 {
	return chain.ContractHash(owner, name)
}

// Deploy brings up the vault environment described by Prm.Config in
// Prm.Chain.
//
// Prm.Chain must have no contracts registered. The state already present in
// its store is kept, so Deploy over the store of the previous deployment
// only adds what is missing. Configured prices are written to the feeds on
// every call. Summary of stages:
//  1. registration of the contracts in the chain
//  2. collateral tokens and their initial supply
//  3. price feeds and the oracle router
//  4. yield tokens of the strategies
//  5. BentoUSD and BentoUSD+
//  6. aggregation router and its inventory
//  7. vault proxy and logic
//  8. vault configuration: dependencies, assets and whitelisted routers
func Deploy(ctx context.Context, prm Prm) (*Environment, error) {
	env, err := Register(prm)
	if err != nil {
		return nil, err
	}

	if prm.Logger == nil {
		prm.Logger = zap.NewNop()
	}

	owner := env.Owner

	for _, s := range []struct {
		name string
		run  func(*chain.Tx, *config.Config) error
	}{
		{name: "collateral tokens", run: env.deployTokens},
		{name: "price feeds", run: env.deployFeeds},
		{name: "yield tokens", run: env.deployYieldTokens},
		{name: "BentoUSD", run: env.deployStable},
		{name: "aggregation router", run: env.deployRouter},
		{name: "vault proxy", run: env.deployProxy},
	} {
		prm.Logger.Info("synchronizing " + s.name + " with the chain...")

		_, err = prm.Chain.Invoke(ctx, owner, func(tx *chain.Tx) error {
			return s.run(tx, prm.Config)
		})
		if err != nil {
			return nil, fmt.Errorf("sync %s: %w", s.name, err)
		}

		prm.Logger.Info(s.name + " successfully synchronized")
	}

	prm.Logger.Info("configuring the vault...")

	err = env.Vault.Invoke(ctx, owner, "configure", func(tx *chain.Tx, c *vault.Core) error {
		return env.configureVault(tx, c, prm.Config)
	})
	if err != nil {
		return nil, fmt.Errorf("configure vault: %w", err)
	}

	prm.Logger.Info("vault successfully configured", zap.Stringer("address", env.Proxy.Hash()))

	return env, nil
}

// Register registers contracts of the environment described by Prm.Config
// in Prm.Chain without touching the chain state. It is the first stage of
// Deploy, alone it prepares the chain for restoring the dumped state.
func Register(prm Prm) (*Environment, error) {
	if prm.Chain == nil || prm.Config == nil {
		return nil, errors.New("chain and config are required")
	}
	if prm.Logger == nil {
		prm.Logger = zap.NewNop()
	}

	if err := prm.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	owner, err := prm.Config.OwnerAddress()
	if err != nil {
		return nil, err
	}

	env := newEnvironment(prm.Chain, prm.Config, owner)

	prm.Logger.Info("registering contracts...")

	if err = env.register(prm.Config); err != nil {
		return nil, fmt.Errorf("register contracts: %w", err)
	}

	prm.Logger.Info("contracts successfully registered", zap.Int("count", len(prm.Chain.Contracts())))

	env.Vault, err = vault.New(vault.Prm{
		Chain:      prm.Chain,
		Proxy:      env.Proxy,
		Registerer: prm.Registerer,
		Logger:     prm.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init vault: %w", err)
	}

	return env, nil
}

func newEnvironment(c *chain.Chain, cfg *config.Config, owner util.Uint160) *Environment {
	env := &Environment{
		Owner:       owner,
		Chain:       c,
		Tokens:      make(map[string]*token.Token, len(cfg.Tokens)),
		Feeds:       make(map[string]*oracle.MockAggregator, len(cfg.Tokens)),
		YieldTokens: make(map[string]*sharevault.Vault),
		Oracle:      oracle.New(ContractHash(owner, NameOracle)),
		BentoUSD:    bentousd.New(ContractHash(owner, bentousd.Symbol)),
		Router:      swap.NewAggregationRouter(ContractHash(owner, NameRouter)),
		Proxy:       proxy.New(ContractHash(owner, NameVault)),
		Core:        vault.NewCore(ContractHash(owner, NameVaultCore), common.Version),
	}

	env.Quoter = swap.NewQuoter(env.Router)

	for _, t := range cfg.Tokens {
		env.Tokens[t.Symbol] = token.New(ContractHash(owner, t.Symbol), t.Symbol, t.Decimals)
		env.Feeds[t.Symbol] = oracle.NewMockAggregator(ContractHash(owner, feedPrefix+t.Symbol))
	}

	for _, a := range cfg.Assets {
		if a.Strategy == "" {
			continue
		}
		name := yieldTokenPrefix + a.Token
		env.YieldTokens[a.Token] = sharevault.New(ContractHash(owner, name), name, env.Tokens[a.Token], a.Cooldown)
	}

	if cfg.BentoUSDPlus {
		env.BentoUSDPlus = sharevault.New(ContractHash(owner, NameBentoUSDPlus), NameBentoUSDPlus, env.BentoUSD, 0)
	}

	return env
}

func (e *Environment) register(cfg *config.Config) error {
	type named struct {
		name     string
		contract interface{ Hash() util.Uint160 }
	}

	list := []named{
		{NameOracle, e.Oracle},
		{bentousd.Symbol, e.BentoUSD},
		{NameRouter, e.Router},
		{NameVault, e.Proxy},
		{NameVaultCore, e.Core},
	}
	if e.BentoUSDPlus != nil {
		list = append(list, named{NameBentoUSDPlus, e.BentoUSDPlus})
	}

	for _, t := range cfg.Tokens {
		list = append(list,
			named{t.Symbol, e.Tokens[t.Symbol]},
			named{feedPrefix + t.Symbol, e.Feeds[t.Symbol]})
	}
	for _, a := range cfg.Assets {
		if y, ok := e.YieldTokens[a.Token]; ok {
			list = append(list, named{y.Symbol(), y})
		}
	}

	for _, n := range list {
		if err := e.Chain.Register(n.contract.Hash(), n.name, n.contract); err != nil {
			return fmt.Errorf("%s: %w", n.name, err)
		}
	}

	return nil
}

func (e *Environment) deployTokens(tx *chain.Tx, cfg *config.Config) error {
	for _, t := range cfg.Tokens {
		tok := e.Tokens[t.Symbol]
		if err := tok.Deploy(tx, e.Owner); err != nil {
			return fmt.Errorf("%s: %w", t.Symbol, err)
		}

		if !tok.TotalSupply(tx).IsZero() {
			tx.Log().Debug("token supply is already issued", zap.String("symbol", t.Symbol))
			continue
		}

		supply, err := config.ParseAmount(t.Supply, t.Decimals)
		if err != nil {
			return err
		}
		if supply.IsZero() {
			continue
		}

		if err = tok.Mint(tx, e.Owner, supply, nil); err != nil {
			return fmt.Errorf("issue %s: %w", t.Symbol, err)
		}
	}

	return nil
}

func (e *Environment) deployFeeds(tx *chain.Tx, cfg *config.Config) error {
	if err := e.Oracle.Deploy(tx, e.Owner); err != nil {
		return err
	}

	for _, t := range cfg.Tokens {
		agg := e.Feeds[t.Symbol]
		if err := agg.Deploy(tx, e.Owner); err != nil {
			return err
		}

		answer, err := t.FeedAnswer()
		if err != nil {
			return err
		}
		if err = agg.SetAnswer(tx, answer.ToBig()); err != nil {
			return fmt.Errorf("set price of %s: %w", t.Symbol, err)
		}

		err = e.Oracle.AddFeed(tx, e.Tokens[t.Symbol].Hash(), oracle.Feed{
			Aggregator:   agg.Hash(),
			MaxStaleness: t.MaxStaleness,
			Decimals:     config.FeedDecimals,
		})
		if err != nil {
			return fmt.Errorf("add feed of %s: %w", t.Symbol, err)
		}
	}

	return nil
}

func (e *Environment) deployYieldTokens(tx *chain.Tx, cfg *config.Config) error {
	for _, a := range cfg.Assets {
		if y, ok := e.YieldTokens[a.Token]; ok {
			if err := y.Deploy(tx, e.Owner); err != nil {
				return fmt.Errorf("%s: %w", y.Symbol(), err)
			}
		}
	}
	return nil
}

func (e *Environment) deployStable(tx *chain.Tx, _ *config.Config) error {
	if err := e.BentoUSD.Deploy(tx, e.Owner); err != nil {
		return err
	}

	if !e.BentoUSD.Vault(tx).Equals(e.Proxy.Hash()) {
		if err := e.BentoUSD.SetVault(tx, e.Proxy.Hash()); err != nil {
			return fmt.Errorf("set vault: %w", err)
		}
	}

	if e.BentoUSDPlus != nil {
		if err := e.BentoUSDPlus.Deploy(tx, e.Owner); err != nil {
			return fmt.Errorf("%s: %w", NameBentoUSDPlus, err)
		}
	}

	return nil
}

func (e *Environment) deployRouter(tx *chain.Tx, cfg *config.Config) error {
	if err := e.Router.Deploy(tx, e.Owner, e.Oracle.Hash()); err != nil {
		return err
	}

	if e.Router.Fee(tx) != cfg.Swap.FeeBps {
		if err := e.Router.SetFee(tx, cfg.Swap.FeeBps); err != nil {
			return err
		}
	}

	for _, t := range cfg.Tokens {
		tok := e.Tokens[t.Symbol]
		if !tok.BalanceOf(tx, e.Router.Hash()).IsZero() {
			continue
		}

		inventory, err := config.ParseAmount(cfg.Swap.Inventory, t.Decimals)
		if err != nil {
			return err
		}
		if inventory.IsZero() {
			continue
		}

		if err = tok.Mint(tx, e.Router.Hash(), inventory, nil); err != nil {
			return fmt.Errorf("fund router with %s: %w", t.Symbol, err)
		}
	}

	return nil
}

func (e *Environment) deployProxy(tx *chain.Tx, cfg *config.Config) error {
	return e.Proxy.Deploy(tx, e.Owner, e.Core.Hash(), []any{e.Owner}, cfg.Proxy.Timelock)
}

func (e *Environment) configureVault(tx *chain.Tx, c *vault.Core, cfg *config.Config) error {
	self := e.Proxy.Hash()

	if !c.BentoUSD(tx, self).Equals(e.BentoUSD.Hash()) {
		if err := c.SetBentoUSD(tx, self, e.BentoUSD.Hash()); err != nil {
			return err
		}
	}
	if !c.OracleRouter(tx, self).Equals(e.Oracle.Hash()) {
		if err := c.SetOracleRouter(tx, self, e.Oracle.Hash()); err != nil {
			return err
		}
	}
	if !c.IsWhitelisted(tx, self, e.Router.Hash()) {
		if err := c.WhitelistRouter(tx, self, e.Router.Hash(), true); err != nil {
			return err
		}
	}

	for _, a := range cfg.Assets {
		info, err := e.assetInfo(cfg, a)
		if err != nil {
			return err
		}

		if _, err = c.AssetInfo(tx, self, info.Asset); err == nil {
			tx.Log().Debug("asset is already registered", zap.String("symbol", a.Token))
			continue
		} else if !errors.Is(err, vault.ErrAssetNotSupported) {
			return err
		}

		if err = c.SetAsset(tx, self, info); err != nil {
			return fmt.Errorf("register %s: %w", a.Token, err)
		}
	}

	return nil
}

func (e *Environment) assetInfo(cfg *config.Config, a config.AssetConfig) (vault.AssetInfo, error) {
	t, _ := cfg.Token(a.Token)

	minRebalance, err := config.ParseAmount(a.MinRebalance, t.Decimals)
	if err != nil {
		return vault.AssetInfo{}, err
	}

	info := vault.AssetInfo{
		Asset:              e.Tokens[a.Token].Hash(),
		Decimals:           t.Decimals,
		Weight:             a.Weight,
		MinRebalanceAmount: minRebalance,
	}

	if a.Strategy != "" {
		if info.StrategyKind, err = strategy.ParseKind(a.Strategy); err != nil {
			return vault.AssetInfo{}, err
		}
		info.YieldToken = e.YieldTokens[a.Token].Hash()
	}

	return info, nil
}

// Token returns collateral token by its symbol or address in any form
// accepted by config.ParseAddress.
func (e *Environment) Token(s string) (*token.Token, error) {
	for sym, t := range e.Tokens {
		if strings.EqualFold(sym, s) {
			return t, nil
		}
	}

	h, err := config.ParseAddress(s)
	if err != nil {
		return nil, fmt.Errorf("unknown token %q", s)
	}

	for _, t := range e.Tokens {
		if t.Hash().Equals(h) {
			return t, nil
		}
	}

	return nil, fmt.Errorf("unknown token %s", h.StringLE())
}

// OneTokenRoute prepares routers and call data of Vault.MintWithOneToken
// depositing the amount of src. Swaps are quoted by the aggregation router
// tolerating the slippage in basis points.
func (e *Environment) OneTokenRoute(ctx context.Context, src util.Uint160, amount *uint256.Int, slippageBps uint16) ([]util.Uint160, [][]byte, error) {
	var (
		routers []util.Uint160
		data    [][]byte
	)

	err := e.Vault.View(ctx, func(tx *chain.Tx, c *vault.Core) error {
		self := e.Proxy.Hash()

		assets, err := c.AllAssets(tx, self)
		if err != nil {
			return err
		}

		parts, err := c.SplitDeposit(tx, self, amount)
		if err != nil {
			return err
		}

		routers = make([]util.Uint160, len(assets))
		data = make([][]byte, len(assets))

		for i := range assets {
			if parts[i].IsZero() || assets[i].Equals(src) {
				continue
			}

			q, err := e.Quoter.Quote(tx, src, assets[i], parts[i], slippageBps)
			if err != nil {
				return fmt.Errorf("quote %s: %w", assets[i].StringLE(), err)
			}

			routers[i], data[i] = q.Router, q.CallData
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return routers, data, nil
}
