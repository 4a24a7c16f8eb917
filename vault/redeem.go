package vault

import (
	"fmt"

	"github.com/bentousd/bento-vault/chain"
	"github.com/bentousd/bento-vault/common"
	"github.com/bentousd/bento-vault/strategy"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"go.uber.org/zap"
)

// RedeemLTBasket burns burnAmount of the caller's BentoUSD and pays the
// basket assets worth it to the caller. The caller must approve the vault
// for burnAmount of BentoUSD beforehand.
//
// Every asset is paid from the idle vault balance first. The shortfall is
// withdrawn from the strategy; staking strategies pay matured unstake
// requests only. Fails with common.ErrInsufficientLiquidity if an asset can
// not be sourced. Returns paid amounts in registration order.
//
// Produces Redeemed notification.
func (c *Core) RedeemLTBasket(tx *chain.Tx, self util.Uint160, burnAmount *uint256.Int) ([]*uint256.Int, error) {
	release, err := tx.Enter(self)
	if err != nil {
		return nil, err
	}
	defer release()

	if burnAmount.IsZero() {
		return nil, fmt.Errorf("redeem: %w", common.ErrInvalidAmount)
	}

	legs, err := c.basket(tx, self, burnAmount)
	if err != nil {
		return nil, err
	}

	stable, err := c.stableToken(tx, self)
	if err != nil {
		return nil, err
	}

	redeemer := tx.Caller()
	vault := tx.As(self)

	if err = stable.Burn(vault, redeemer, burnAmount); err != nil {
		return nil, fmt.Errorf("burn BentoUSD: %w", err)
	}

	amounts := make([]*uint256.Int, len(legs))
	items := make([]stackitem.Item, len(legs))

	for i := range legs {
		amounts[i] = legs[i].amount
		items[i] = common.AmountItem(legs[i].amount)

		if legs[i].amount.IsZero() {
			continue
		}

		t, err := fungible(tx, legs[i].info.Asset)
		if err != nil {
			return nil, err
		}

		if err = c.source(tx, self, legs[i].info, legs[i].amount); err != nil {
			return nil, fmt.Errorf("source %s: %w", t.Symbol(), err)
		}

		err = t.Transfer(vault, redeemer, legs[i].amount, common.RedeemTransferDetails(tx.IDBytes()))
		if err != nil {
			return nil, fmt.Errorf("pay %s: %w", t.Symbol(), err)
		}
	}

	tx.Notify(self, "Redeemed", common.AddressItem(redeemer), common.AmountItem(burnAmount), stackitem.NewArray(items))

	return amounts, nil
}

// source makes idle balance of the asset at least amount withdrawing the
// shortfall from the strategy.
func (c *Core) source(tx *chain.Tx, self util.Uint160, info AssetInfo, amount *uint256.Int) error {
	t, err := fungible(tx, info.Asset)
	if err != nil {
		return err
	}

	shortfall := func() *uint256.Int {
		idle := t.BalanceOf(tx, self)
		if !idle.Lt(amount) {
			return new(uint256.Int)
		}
		return new(uint256.Int).Sub(amount, idle)
	}

	need := shortfall()
	if need.IsZero() {
		return nil
	}

	if !info.HasStrategy() {
		return fmt.Errorf("%w: %s idle, no strategy", common.ErrInsufficientLiquidity, t.BalanceOf(tx, self).Dec())
	}

	a, err := adapter(tx, info)
	if err != nil {
		return err
	}

	if st, ok := a.(strategy.Staking); ok {
		if _, err = c.claimMatured(tx, self, info, st); err != nil {
			return err
		}
		if need = shortfall(); need.IsZero() {
			return nil
		}
	}

	burnt, err := a.Withdraw(tx.As(self), need, self)
	if err != nil {
		return err
	}

	if err = c.debitPosition(tx, self, info.Asset, need, burnt); err != nil {
		return err
	}

	tx.Log().Debug("strategy withdrawal",
		zap.Stringer("asset", info.Asset), zap.String("assets", need.Dec()), zap.String("shares", burnt.Dec()))

	return nil
}
