package vault

import (
	"fmt"

	"github.com/bentousd/bento-vault/chain"
	"github.com/bentousd/bento-vault/common"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

// leg is a part of the basket operation falling on a single asset.
type leg struct {
	info AssetInfo
	// 18-decimal USD value, zero for inactive assets
	value *uint256.Int
	// 18-decimal price, nil for inactive assets
	price *uint256.Int
	// amount in asset units
	amount *uint256.Int
}

// splitByWeight splits v between active assets proportionally to their
// weights rounding down. The last active asset takes the remainder.
func splitByWeight(infos []AssetInfo, totalWeight uint64, v *uint256.Int) ([]*uint256.Int, error) {
	if totalWeight == 0 {
		return nil, ErrNoActiveAssets
	}

	last := -1
	for i := range infos {
		if infos[i].Active() {
			last = i
		}
	}
	if last < 0 {
		return nil, ErrNoActiveAssets
	}

	total := uint256.NewInt(totalWeight)
	rest := new(uint256.Int).Set(v)
	res := make([]*uint256.Int, len(infos))

	for i := range infos {
		switch {
		case !infos[i].Active():
			res[i] = new(uint256.Int)
		case i == last:
			res[i] = rest
		default:
			part, err := common.MulDiv(v, uint256.NewInt(infos[i].Weight), total)
			if err != nil {
				return nil, err
			}
			if rest, err = common.Sub(rest, part); err != nil {
				return nil, fmt.Errorf("%w: weights exceed total", ErrWeightSumMismatch)
			}
			res[i] = part
		}
	}

	return res, nil
}

// valueToAmount converts 18-decimal USD value into asset units at the price
// rounding down.
func valueToAmount(value, price *uint256.Int, decimals uint8) (*uint256.Int, error) {
	wad, err := common.MulDiv(value, common.Wad, price)
	if err != nil {
		return nil, err
	}
	return common.FromWad(wad, decimals)
}

// amountToValue converts asset units into 18-decimal USD value at the price
// rounding down.
func amountToValue(amount, price *uint256.Int, decimals uint8) (*uint256.Int, error) {
	wad, err := common.ToWad(amount, decimals)
	if err != nil {
		return nil, err
	}
	return common.MulDiv(wad, price, common.Wad)
}

// basket splits 18-decimal USD value between the assets and prices the
// parts.
func (c *Core) basket(tx *chain.Tx, self util.Uint160, v *uint256.Int) ([]leg, error) {
	infos, err := c.AssetInfos(tx, self)
	if err != nil {
		return nil, err
	}

	values, err := splitByWeight(infos, c.TotalWeight(tx, self), v)
	if err != nil {
		return nil, err
	}

	prices, err := c.prices(tx, self)
	if err != nil {
		return nil, err
	}

	res := make([]leg, len(infos))
	for i := range infos {
		res[i] = leg{info: infos[i], value: values[i], amount: new(uint256.Int)}
		if !infos[i].Active() {
			continue
		}

		if res[i].price, err = prices.Price(tx.As(self), infos[i].Asset); err != nil {
			return nil, fmt.Errorf("price %s: %w", infos[i].Asset.StringLE(), err)
		}

		if res[i].amount, err = valueToAmount(values[i], res[i].price, infos[i].Decimals); err != nil {
			return nil, err
		}
	}

	return res, nil
}

// GetDepositAssetAmounts returns asset amounts required to mint
// totalDepositValue of BentoUSD in registration order, and the 18-decimal
// USD value the amounts are worth. The value is what MintBasket mints.
func (c *Core) GetDepositAssetAmounts(tx *chain.Tx, self util.Uint160, totalDepositValue *uint256.Int) ([]*uint256.Int, *uint256.Int, error) {
	legs, err := c.basket(tx, self, totalDepositValue)
	if err != nil {
		return nil, nil, err
	}

	amounts := make([]*uint256.Int, len(legs))
	sum := new(uint256.Int)

	for i := range legs {
		amounts[i] = legs[i].amount
		if !legs[i].info.Active() {
			continue
		}

		covered, err := amountToValue(legs[i].amount, legs[i].price, legs[i].info.Decimals)
		if err != nil {
			return nil, nil, err
		}
		if sum, err = common.Add(sum, covered); err != nil {
			return nil, nil, err
		}
	}

	return amounts, sum, nil
}

// SplitDeposit returns parts of the single-asset deposit falling on every
// registered asset the way MintWithOneToken splits it.
func (c *Core) SplitDeposit(tx *chain.Tx, self util.Uint160, depositAmount *uint256.Int) ([]*uint256.Int, error) {
	infos, err := c.AssetInfos(tx, self)
	if err != nil {
		return nil, err
	}
	return splitByWeight(infos, c.TotalWeight(tx, self), depositAmount)
}

// GetOutputLTAmounts returns strategy shares corresponding to the assets
// redeemed for burnAmount of BentoUSD. Assets without strategy report
// asset amounts.
func (c *Core) GetOutputLTAmounts(tx *chain.Tx, self util.Uint160, burnAmount *uint256.Int) ([]*uint256.Int, error) {
	legs, err := c.basket(tx, self, burnAmount)
	if err != nil {
		return nil, err
	}

	res := make([]*uint256.Int, len(legs))
	for i := range legs {
		res[i] = legs[i].amount
		if legs[i].amount.IsZero() || !legs[i].info.HasStrategy() {
			continue
		}

		a, err := adapter(tx, legs[i].info)
		if err != nil {
			return nil, err
		}

		if res[i], err = a.ConvertToShares(tx.As(self), legs[i].amount); err != nil {
			return nil, fmt.Errorf("convert %s to shares: %w", legs[i].info.Asset.StringLE(), err)
		}
	}

	return res, nil
}
