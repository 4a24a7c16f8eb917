package vault

import (
	"encoding/binary"
	"fmt"

	"github.com/bentousd/bento-vault/chain"
	"github.com/bentousd/bento-vault/common"
	"github.com/bentousd/bento-vault/strategy"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"go.uber.org/zap"
)

// Allocate deposits idle balance of every asset exceeding its
// MinRebalanceAmount into the asset strategy. Assets without strategy are
// skipped. Can be invoked only by the owner. Returns allocated amounts in
// registration order.
//
// Produces Allocated notification per allocated asset.
func (c *Core) Allocate(tx *chain.Tx, self util.Uint160) ([]*uint256.Int, error) {
	if err := c.checkOwner(tx, self); err != nil {
		return nil, err
	}

	release, err := tx.Enter(self)
	if err != nil {
		return nil, err
	}
	defer release()

	infos, err := c.AssetInfos(tx, self)
	if err != nil {
		return nil, err
	}

	res := make([]*uint256.Int, len(infos))
	vault := tx.As(self)

	for i, info := range infos {
		res[i] = new(uint256.Int)
		if !info.HasStrategy() {
			continue
		}

		t, err := fungible(tx, info.Asset)
		if err != nil {
			return nil, err
		}

		idle := t.BalanceOf(tx, self)
		if idle.IsZero() || !idle.Gt(info.MinRebalanceAmount) {
			continue
		}

		a, err := adapter(tx, info)
		if err != nil {
			return nil, err
		}

		// Dust worth less than one share stays idle.
		expected, err := a.ConvertToShares(tx, idle)
		if err != nil {
			return nil, err
		}
		if expected.IsZero() {
			tx.Log().Debug("idle balance yields no shares, skip allocation",
				zap.String("symbol", t.Symbol()), zap.String("assets", idle.Dec()))
			continue
		}

		if err = t.Approve(vault, a.Spender(), idle); err != nil {
			return nil, err
		}

		shares, err := a.Deposit(vault, idle)
		if err != nil {
			return nil, fmt.Errorf("allocate %s: %w", t.Symbol(), err)
		}

		pos, err := c.Position(tx, self, info.Asset)
		if err != nil {
			return nil, err
		}
		if pos.UnderlyingDeposited, err = common.Add(pos.UnderlyingDeposited, idle); err != nil {
			return nil, err
		}
		if pos.SharesHeld, err = common.Add(pos.SharesHeld, shares); err != nil {
			return nil, err
		}
		if err = c.putPosition(tx, self, info.Asset, pos); err != nil {
			return nil, err
		}

		res[i] = idle

		tx.Notify(self, "Allocated", common.AddressItem(info.Asset), common.AmountItem(idle), common.AmountItem(shares))
		tx.Log().Info("asset allocated",
			zap.String("symbol", t.Symbol()), zap.String("assets", idle.Dec()), zap.String("shares", shares.Dec()))
	}

	return res, nil
}

// RequestUnstake starts withdrawal of the assets from the staking strategy
// of the asset. The assets are paid to the vault by ClaimUnstake or by
// redemption once the cooldown ends. Can be invoked only by the owner.
//
// Produces UnstakeRequested notification.
func (c *Core) RequestUnstake(tx *chain.Tx, self, asset util.Uint160, amount *uint256.Int) (UnstakeRequest, error) {
	if err := c.checkOwner(tx, self); err != nil {
		return UnstakeRequest{}, err
	}

	release, err := tx.Enter(self)
	if err != nil {
		return UnstakeRequest{}, err
	}
	defer release()

	info, st, err := c.staking(tx, self, asset)
	if err != nil {
		return UnstakeRequest{}, err
	}

	req, err := st.RequestWithdraw(tx.As(self), amount)
	if err != nil {
		return UnstakeRequest{}, fmt.Errorf("request unstake: %w", err)
	}

	if err = c.debitPosition(tx, self, info.Asset, req.Assets, req.Shares); err != nil {
		return UnstakeRequest{}, err
	}

	s := tx.Storage(self)
	nonce := s.GetAmount([]byte(nonceKey)).Uint64() + 1
	s.PutAmount([]byte(nonceKey), uint256.NewInt(nonce))

	nonceBytes := binary.BigEndian.AppendUint64(nil, nonce)

	res := UnstakeRequest{
		ID:          common.RequestID([][]byte{asset.BytesBE(), self.BytesBE(), nonceBytes}, []byte(requestPrefix)),
		Assets:      req.Assets,
		Shares:      req.Shares,
		CooldownEnd: req.CooldownEnd,
	}

	// strategy cooldowns aggregate, so every pending request matures with
	// the latest one
	pending, err := c.PendingUnstakes(tx, self, asset)
	if err != nil {
		return UnstakeRequest{}, err
	}

	for _, r := range append(pending, res) {
		r.CooldownEnd = req.CooldownEnd

		item, err := r.ToStackItem()
		if err != nil {
			return UnstakeRequest{}, err
		}
		if err = s.PutItem(requestKey(asset, r.ID), item); err != nil {
			return UnstakeRequest{}, err
		}
	}

	tx.Notify(self, "UnstakeRequested",
		common.AddressItem(asset), stackitem.NewByteArray([]byte(res.ID)),
		common.AmountItem(res.Assets), common.TimeItem(res.CooldownEnd))
	tx.Log().Info("unstake requested",
		zap.Stringer("asset", asset), zap.String("id", res.ID),
		zap.String("assets", res.Assets.Dec()), zap.Time("cooldown end", res.CooldownEnd))

	return res, nil
}

// ClaimUnstake pays matured unstake requests of the asset to the vault. Can
// be invoked only by the owner. Returns claimed amount, zero if nothing is
// matured yet.
//
// Produces UnstakeClaimed notification if something is claimed.
func (c *Core) ClaimUnstake(tx *chain.Tx, self, asset util.Uint160) (*uint256.Int, error) {
	if err := c.checkOwner(tx, self); err != nil {
		return nil, err
	}

	release, err := tx.Enter(self)
	if err != nil {
		return nil, err
	}
	defer release()

	info, st, err := c.staking(tx, self, asset)
	if err != nil {
		return nil, err
	}

	return c.claimMatured(tx, self, info, st)
}

// PendingUnstakes returns in-flight unstake requests of the asset.
func (c *Core) PendingUnstakes(tx *chain.Tx, self, asset util.Uint160) ([]UnstakeRequest, error) {
	var (
		res []UnstakeRequest
		err error
	)

	prefix := requestKey(asset, "")

	tx.Storage(self).Find(prefix, func(_, value []byte) bool {
		var item stackitem.Item
		if item, err = stackitem.Deserialize(value); err != nil {
			return false
		}

		var r UnstakeRequest
		if err = r.FromStackItem(item); err != nil {
			return false
		}

		res = append(res, r)

		return true
	})
	if err != nil {
		return nil, fmt.Errorf("decode unstake requests of %s: %w", asset.StringLE(), err)
	}

	return res, nil
}

func (c *Core) claimMatured(tx *chain.Tx, self util.Uint160, info AssetInfo, st strategy.Staking) (*uint256.Int, error) {
	claimed, err := st.Claim(tx.As(self), self)
	if err != nil {
		return nil, fmt.Errorf("claim unstake: %w", err)
	}
	if claimed.IsZero() {
		return claimed, nil
	}

	reqs, err := c.PendingUnstakes(tx, self, info.Asset)
	if err != nil {
		return nil, err
	}

	s := tx.Storage(self)
	for i := range reqs {
		s.Delete(requestKey(info.Asset, reqs[i].ID))
	}

	tx.Notify(self, "UnstakeClaimed", common.AddressItem(info.Asset), common.AmountItem(claimed))
	tx.Log().Info("unstake claimed", zap.Stringer("asset", info.Asset), zap.String("assets", claimed.Dec()))

	return claimed, nil
}

func (c *Core) staking(tx *chain.Tx, self, asset util.Uint160) (AssetInfo, strategy.Staking, error) {
	info, err := c.AssetInfo(tx, self, asset)
	if err != nil {
		return AssetInfo{}, nil, err
	}

	if info.StrategyKind != strategy.StakingToken {
		return AssetInfo{}, nil, fmt.Errorf("%w: %s strategy of %s", strategy.ErrKindMismatch, info.StrategyKind, asset.StringLE())
	}

	a, err := adapter(tx, info)
	if err != nil {
		return AssetInfo{}, nil, err
	}

	st, ok := a.(strategy.Staking)
	if !ok {
		return AssetInfo{}, nil, fmt.Errorf("%w: %s strategy has no unstake requests", strategy.ErrKindMismatch, asset.StringLE())
	}

	return info, st, nil
}

// debitPosition decreases position by withdrawn assets and burnt shares.
// Deposited amount does not go below zero since the position earns yield.
func (c *Core) debitPosition(tx *chain.Tx, self, asset util.Uint160, assets, shares *uint256.Int) error {
	pos, err := c.Position(tx, self, asset)
	if err != nil {
		return err
	}

	if pos.SharesHeld, err = common.Sub(pos.SharesHeld, shares); err != nil {
		return fmt.Errorf("burnt shares exceed position of %s: %w", asset.StringLE(), err)
	}

	pos.UnderlyingDeposited = new(uint256.Int).Sub(pos.UnderlyingDeposited, common.Min(pos.UnderlyingDeposited, assets))

	return c.putPosition(tx, self, asset, pos)
}
