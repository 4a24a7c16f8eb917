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

// SetBentoUSD sets address of the stable token. Can be invoked only by the
// owner.
func (c *Core) SetBentoUSD(tx *chain.Tx, self, h util.Uint160) error {
	return c.setAddress(tx, self, bentoUSDKey, "BentoUSD", h)
}

// SetOracleRouter sets address of the price oracle. Can be invoked only by
// the owner.
func (c *Core) SetOracleRouter(tx *chain.Tx, self, h util.Uint160) error {
	return c.setAddress(tx, self, oracleKey, "oracle router", h)
}

func (c *Core) setAddress(tx *chain.Tx, self util.Uint160, key, name string, h util.Uint160) error {
	if err := c.checkOwner(tx, self); err != nil {
		return err
	}

	if h.Equals(util.Uint160{}) {
		return fmt.Errorf("zero %s address: %w", name, common.ErrConfiguration)
	}

	tx.Storage(self).PutUint160([]byte(key), h)
	tx.Log().Info("vault dependency set", zap.String("name", name), zap.Stringer("hash", h))

	return nil
}

// WhitelistRouter allows or forbids the swap router. Can be invoked only by
// the owner.
//
// Produces RouterWhitelisted notification.
func (c *Core) WhitelistRouter(tx *chain.Tx, self, router util.Uint160, allowed bool) error {
	if err := c.checkOwner(tx, self); err != nil {
		return err
	}

	s := tx.Storage(self)
	if allowed {
		s.Put(routerKey(router), []byte{1})
	} else {
		s.Delete(routerKey(router))
	}

	tx.Notify(self, "RouterWhitelisted", common.AddressItem(router), stackitem.NewBool(allowed))

	return nil
}

// SetAsset registers new collateral asset. Decimals must match the token
// ones. Can be invoked only by the owner.
//
// Produces AssetAdded notification.
func (c *Core) SetAsset(tx *chain.Tx, self util.Uint160, info AssetInfo) error {
	if err := c.checkOwner(tx, self); err != nil {
		return err
	}

	s := tx.Storage(self)
	if s.Get(assetKey(info.Asset)) != nil {
		return fmt.Errorf("%w: %s", ErrAssetAlreadySupported, info.Asset.StringLE())
	}

	if info.MinRebalanceAmount == nil {
		info.MinRebalanceAmount = new(uint256.Int)
	}

	if err := verifyDecimals(tx, info.Asset, info.Decimals); err != nil {
		return err
	}

	if err := verifyStrategy(tx, info); err != nil {
		return err
	}

	total, err := addWeight(c.TotalWeight(tx, self), 0, info.Weight)
	if err != nil {
		return err
	}

	assets, err := c.AllAssets(tx, self)
	if err != nil {
		return err
	}

	list := make([]stackitem.Item, 0, len(assets)+1)
	for i := range assets {
		list = append(list, common.AddressItem(assets[i]))
	}
	list = append(list, common.AddressItem(info.Asset))

	if err = s.PutItem([]byte(assetListKey), stackitem.NewArray(list)); err != nil {
		return err
	}
	if err = c.putAsset(tx, self, info); err != nil {
		return err
	}
	s.PutAmount([]byte(totalWeightKey), uint256.NewInt(total))

	if err = c.checkWeights(tx, self); err != nil {
		return err
	}

	tx.Notify(self, "AssetAdded", common.AddressItem(info.Asset), stackitem.Make(info.Weight))
	tx.Log().Info("asset added",
		zap.Stringer("asset", info.Asset), zap.Uint64("weight", info.Weight),
		zap.Stringer("strategy kind", info.StrategyKind))

	return nil
}

// ChangeAsset updates decimals, weight and yield token of the registered
// asset. Decimals are verified again. Yield token can not be changed while
// the vault holds a position in the strategy. Can be invoked only by the
// owner.
//
// Produces AssetChanged notification.
func (c *Core) ChangeAsset(tx *chain.Tx, self, asset util.Uint160, decimals uint8, weight uint64, yieldToken util.Uint160) error {
	if err := c.checkOwner(tx, self); err != nil {
		return err
	}

	info, err := c.AssetInfo(tx, self, asset)
	if err != nil {
		return err
	}

	if err = verifyDecimals(tx, asset, decimals); err != nil {
		return err
	}

	if !yieldToken.Equals(info.YieldToken) {
		if err = c.checkPositionEmpty(tx, self, info); err != nil {
			return err
		}
	}

	total, err := addWeight(c.TotalWeight(tx, self), info.Weight, weight)
	if err != nil {
		return err
	}

	info.Decimals = decimals
	info.Weight = weight
	info.YieldToken = yieldToken

	if err = verifyStrategy(tx, info); err != nil {
		return err
	}

	if err = c.putAsset(tx, self, info); err != nil {
		return err
	}
	tx.Storage(self).PutAmount([]byte(totalWeightKey), uint256.NewInt(total))

	if err = c.checkWeights(tx, self); err != nil {
		return err
	}

	tx.Notify(self, "AssetChanged", common.AddressItem(asset), stackitem.Make(weight))
	tx.Log().Info("asset changed", zap.Stringer("asset", asset), zap.Uint64("weight", weight))

	return nil
}

// SetStrategy binds the asset to another strategy. Position in the current
// strategy must be empty. Can be invoked only by the owner.
//
// Produces StrategyChanged notification.
func (c *Core) SetStrategy(tx *chain.Tx, self, asset util.Uint160, kind strategy.Kind, strat util.Uint160) error {
	if err := c.checkOwner(tx, self); err != nil {
		return err
	}

	info, err := c.AssetInfo(tx, self, asset)
	if err != nil {
		return err
	}

	if err = c.checkPositionEmpty(tx, self, info); err != nil {
		return err
	}

	info.StrategyKind = kind
	info.Strategy = strat

	if err = verifyStrategy(tx, info); err != nil {
		return err
	}

	if err = c.putAsset(tx, self, info); err != nil {
		return err
	}

	tx.Notify(self, "StrategyChanged",
		common.AddressItem(asset), stackitem.Make(int64(kind)), common.AddressItem(strat))

	return nil
}

// SetMinRebalanceAmount changes allocation threshold of the asset. Can be
// invoked only by the owner.
func (c *Core) SetMinRebalanceAmount(tx *chain.Tx, self, asset util.Uint160, amount *uint256.Int) error {
	if err := c.checkOwner(tx, self); err != nil {
		return err
	}

	info, err := c.AssetInfo(tx, self, asset)
	if err != nil {
		return err
	}

	info.MinRebalanceAmount = new(uint256.Int).Set(amount)

	return c.putAsset(tx, self, info)
}

func (c *Core) checkPositionEmpty(tx *chain.Tx, self util.Uint160, info AssetInfo) error {
	pos, err := c.Position(tx, self, info.Asset)
	if err != nil {
		return err
	}
	if !pos.SharesHeld.IsZero() {
		return fmt.Errorf("%w: %s holds %s shares", ErrPositionNotEmpty, info.Asset.StringLE(), pos.SharesHeld.Dec())
	}

	reqs, err := c.PendingUnstakes(tx, self, info.Asset)
	if err != nil {
		return err
	}
	if len(reqs) > 0 {
		return fmt.Errorf("%w: %s has %d unstake requests", ErrPositionNotEmpty, info.Asset.StringLE(), len(reqs))
	}

	return nil
}

// checkWeights verifies total weight against the sum of asset weights.
func (c *Core) checkWeights(tx *chain.Tx, self util.Uint160) error {
	weights, err := c.Weights(tx, self)
	if err != nil {
		return err
	}

	var sum uint64
	for i := range weights {
		if sum, err = addWeight(sum, 0, weights[i]); err != nil {
			return err
		}
	}

	if total := c.TotalWeight(tx, self); sum != total {
		return fmt.Errorf("%w: assets sum up to %d, total is %d", ErrWeightSumMismatch, sum, total)
	}

	return nil
}

func addWeight(total, old, weight uint64) (uint64, error) {
	if old > total {
		return 0, fmt.Errorf("%w: weight %d exceeds total %d", ErrWeightSumMismatch, old, total)
	}
	total -= old
	if total+weight < total {
		return 0, fmt.Errorf("total weight: %w", common.ErrArithmetic)
	}
	return total + weight, nil
}

func verifyDecimals(tx *chain.Tx, asset util.Uint160, decimals uint8) error {
	if decimals < MinAssetDecimals || decimals > MaxAssetDecimals {
		return fmt.Errorf("%w: %d", ErrInvalidDecimals, decimals)
	}

	t, err := fungible(tx, asset)
	if err != nil {
		return err
	}

	if t.Decimals() != decimals {
		return fmt.Errorf("%w: %s has %d, %d configured", ErrDecimalsMismatch, t.Symbol(), t.Decimals(), decimals)
	}

	return nil
}

func verifyStrategy(tx *chain.Tx, info AssetInfo) error {
	if !info.HasStrategy() {
		return nil
	}

	a, err := adapter(tx, info)
	if err != nil {
		return err
	}

	if !a.Asset().Equals(info.Asset) {
		return fmt.Errorf("%w: strategy invests %s, not %s",
			ErrStrategyAssetMismatch, a.Asset().StringLE(), info.Asset.StringLE())
	}

	return nil
}
