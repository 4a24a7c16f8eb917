package vault

import (
	"context"
	"errors"

	"github.com/bentousd/bento-vault/chain"
	"github.com/bentousd/bento-vault/proxy"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Prm groups parameters of New.
type Prm struct {
	Chain *chain.Chain
	Proxy *proxy.Proxy
	// Registerer of the vault metrics, optional.
	Registerer prometheus.Registerer
	// Logger, optional.
	Logger *zap.Logger
}

// Vault executes vault operations against the current logic of the proxy.
// Every operation is a separate atomic invocation of the chain.
type Vault struct {
	chain   *chain.Chain
	proxy   *proxy.Proxy
	metrics *metrics
	log     *zap.Logger
}

// New returns Vault behind the proxy.
func New(prm Prm) (*Vault, error) {
	if prm.Chain == nil || prm.Proxy == nil {
		return nil, errors.New("chain and proxy are required")
	}

	m, err := newMetrics(prm.Registerer)
	if err != nil {
		return nil, err
	}

	log := prm.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Vault{
		chain:   prm.Chain,
		proxy:   prm.Proxy,
		metrics: m,
		log:     log,
	}, nil
}

// Hash returns address of the vault, i.e. of its proxy.
func (v *Vault) Hash() util.Uint160 {
	return v.proxy.Hash()
}

// Proxy returns proxy of the vault.
func (v *Vault) Proxy() *proxy.Proxy {
	return v.proxy
}

// Invoke runs f with the current logic in a new invocation sent by sender.
func (v *Vault) Invoke(ctx context.Context, sender util.Uint160, op string, f func(tx *chain.Tx, c *Core) error) error {
	var supply *uint256.Int

	_, err := v.chain.Invoke(ctx, sender, func(tx *chain.Tx) error {
		c, err := proxy.Current[*Core](tx, v.proxy)
		if err != nil {
			return err
		}

		if err = f(tx, c); err != nil {
			return err
		}

		if stable, err := c.stableToken(tx, v.Hash()); err == nil {
			supply = stable.TotalSupply(tx)
		}

		return nil
	})

	v.metrics.observe(op, err)
	if err != nil {
		v.log.Debug("vault operation failed", zap.String("op", op), zap.Stringer("sender", sender), zap.Error(err))
		return err
	}

	if supply != nil {
		v.metrics.supply.Set(wadFloat(supply))
	}

	return nil
}

// View runs f with the current logic discarding all changes.
func (v *Vault) View(ctx context.Context, f func(tx *chain.Tx, c *Core) error) error {
	return v.chain.View(ctx, func(tx *chain.Tx) error {
		c, err := proxy.Current[*Core](tx, v.proxy)
		if err != nil {
			return err
		}
		return f(tx, c)
	})
}

// MintBasket calls Core.MintBasket on behalf of the depositor.
func (v *Vault) MintBasket(ctx context.Context, depositor util.Uint160, totalDepositValue, minimumOutput *uint256.Int) (*uint256.Int, error) {
	var minted *uint256.Int

	err := v.Invoke(ctx, depositor, "mint_basket", func(tx *chain.Tx, c *Core) error {
		var err error
		minted, err = c.MintBasket(tx, v.Hash(), totalDepositValue, minimumOutput)
		return err
	})
	if err != nil {
		return nil, err
	}

	v.metrics.minted.Add(wadFloat(minted))

	return minted, nil
}

// MintWithOneToken calls Core.MintWithOneToken on behalf of the depositor.
func (v *Vault) MintWithOneToken(ctx context.Context, depositor, depositAsset util.Uint160, depositAmount, minimumOutput *uint256.Int,
	routers []util.Uint160, routerData [][]byte) (*uint256.Int, error) {
	var minted *uint256.Int

	err := v.Invoke(ctx, depositor, "mint_with_one_token", func(tx *chain.Tx, c *Core) error {
		var err error
		minted, err = c.MintWithOneToken(tx, v.Hash(), depositAsset, depositAmount, minimumOutput, routers, routerData)
		return err
	})
	if err != nil {
		return nil, err
	}

	v.metrics.minted.Add(wadFloat(minted))

	return minted, nil
}

// RedeemLTBasket calls Core.RedeemLTBasket on behalf of the redeemer.
func (v *Vault) RedeemLTBasket(ctx context.Context, redeemer util.Uint160, burnAmount *uint256.Int) ([]*uint256.Int, error) {
	var amounts []*uint256.Int

	err := v.Invoke(ctx, redeemer, "redeem", func(tx *chain.Tx, c *Core) error {
		var err error
		amounts, err = c.RedeemLTBasket(tx, v.Hash(), burnAmount)
		return err
	})
	if err != nil {
		return nil, err
	}

	v.metrics.burnt.Add(wadFloat(burnAmount))

	return amounts, nil
}

// Allocate calls Core.Allocate on behalf of the sender.
func (v *Vault) Allocate(ctx context.Context, sender util.Uint160) ([]*uint256.Int, error) {
	var res []*uint256.Int

	err := v.Invoke(ctx, sender, "allocate", func(tx *chain.Tx, c *Core) error {
		var err error
		res, err = c.Allocate(tx, v.Hash())
		return err
	})

	return res, err
}

// RequestUnstake calls Core.RequestUnstake on behalf of the sender.
func (v *Vault) RequestUnstake(ctx context.Context, sender, asset util.Uint160, amount *uint256.Int) (UnstakeRequest, error) {
	var res UnstakeRequest

	err := v.Invoke(ctx, sender, "request_unstake", func(tx *chain.Tx, c *Core) error {
		var err error
		res, err = c.RequestUnstake(tx, v.Hash(), asset, amount)
		return err
	})

	return res, err
}

// ClaimUnstake calls Core.ClaimUnstake on behalf of the sender.
func (v *Vault) ClaimUnstake(ctx context.Context, sender, asset util.Uint160) (*uint256.Int, error) {
	var res *uint256.Int

	err := v.Invoke(ctx, sender, "claim_unstake", func(tx *chain.Tx, c *Core) error {
		var err error
		res, err = c.ClaimUnstake(tx, v.Hash(), asset)
		return err
	})

	return res, err
}

// GetDepositAssetAmounts calls Core.GetDepositAssetAmounts.
func (v *Vault) GetDepositAssetAmounts(ctx context.Context, totalDepositValue *uint256.Int) ([]*uint256.Int, *uint256.Int, error) {
	var (
		amounts []*uint256.Int
		sum     *uint256.Int
	)

	err := v.View(ctx, func(tx *chain.Tx, c *Core) error {
		var err error
		amounts, sum, err = c.GetDepositAssetAmounts(tx, v.Hash(), totalDepositValue)
		return err
	})

	return amounts, sum, err
}

// GetOutputLTAmounts calls Core.GetOutputLTAmounts.
func (v *Vault) GetOutputLTAmounts(ctx context.Context, burnAmount *uint256.Int) ([]*uint256.Int, error) {
	var res []*uint256.Int

	err := v.View(ctx, func(tx *chain.Tx, c *Core) error {
		var err error
		res, err = c.GetOutputLTAmounts(tx, v.Hash(), burnAmount)
		return err
	})

	return res, err
}

// Inspect calls Core.Inspect.
func (v *Vault) Inspect(ctx context.Context) (Report, error) {
	var res Report

	err := v.View(ctx, func(tx *chain.Tx, c *Core) error {
		var err error
		res, err = c.Inspect(tx, v.Hash())
		return err
	})

	return res, err
}
