package vault

import (
	"fmt"

	"github.com/bentousd/bento-vault/chain"
	"github.com/bentousd/bento-vault/common"
	"github.com/bentousd/bento-vault/swap"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"go.uber.org/zap"
)

// MintBasket pulls basket assets worth totalDepositValue from the caller and
// mints BentoUSD for their oracle value (see GetDepositAssetAmounts). The
// caller must approve the vault for every asset amount beforehand. Fails
// with common.ErrSlippageExceeded if less than minimumOutput is minted.
// Returns minted amount.
//
// Produces Minted notification.
func (c *Core) MintBasket(tx *chain.Tx, self util.Uint160, totalDepositValue, minimumOutput *uint256.Int) (*uint256.Int, error) {
	release, err := tx.Enter(self)
	if err != nil {
		return nil, err
	}
	defer release()

	if totalDepositValue.IsZero() {
		return nil, fmt.Errorf("mint: %w", common.ErrInvalidAmount)
	}

	amounts, minted, err := c.GetDepositAssetAmounts(tx, self, totalDepositValue)
	if err != nil {
		return nil, err
	}

	if minted.IsZero() || minted.Lt(minimumOutput) {
		return nil, fmt.Errorf("%w: %s minted, %s expected", common.ErrSlippageExceeded, minted.Dec(), minimumOutput.Dec())
	}

	assets, err := c.AllAssets(tx, self)
	if err != nil {
		return nil, err
	}

	depositor := tx.Caller()
	vault := tx.As(self)

	for i := range assets {
		if amounts[i].IsZero() {
			continue
		}

		t, err := fungible(tx, assets[i])
		if err != nil {
			return nil, err
		}

		if err = t.TransferFrom(vault, depositor, self, amounts[i]); err != nil {
			return nil, fmt.Errorf("pull %s: %w", t.Symbol(), err)
		}
	}

	if err = c.mint(tx, self, depositor, util.Uint160{}, minted); err != nil {
		return nil, err
	}

	return minted, nil
}

// MintWithOneToken pulls depositAmount of the registered asset from the
// caller, swaps weight-proportional parts of it into other active assets and
// mints BentoUSD for the oracle value of the resulting basket.
//
// routers and routerData hold swap router and its call data per registered
// asset; entries of the deposit asset and inactive assets are ignored. Every
// router must be whitelisted, must spend exactly the approved part and bring
// a positive amount of the target asset. Fails with
// common.ErrSlippageExceeded if less than minimumOutput is minted. Returns
// minted amount.
//
// Produces Minted notification.
func (c *Core) MintWithOneToken(tx *chain.Tx, self, depositAsset util.Uint160, depositAmount, minimumOutput *uint256.Int,
	routers []util.Uint160, routerData [][]byte) (*uint256.Int, error) {
	release, err := tx.Enter(self)
	if err != nil {
		return nil, err
	}
	defer release()

	if depositAmount.IsZero() {
		return nil, fmt.Errorf("mint: %w", common.ErrInvalidAmount)
	}

	if _, err = c.AssetInfo(tx, self, depositAsset); err != nil {
		return nil, err
	}

	infos, err := c.AssetInfos(tx, self)
	if err != nil {
		return nil, err
	}

	if len(routers) != len(infos) || len(routerData) != len(infos) {
		return nil, fmt.Errorf("%w: %d assets, %d routers, %d call data",
			ErrLengthMismatch, len(infos), len(routers), len(routerData))
	}

	parts, err := splitByWeight(infos, c.TotalWeight(tx, self), depositAmount)
	if err != nil {
		return nil, err
	}

	src, err := fungible(tx, depositAsset)
	if err != nil {
		return nil, err
	}

	prices, err := c.prices(tx, self)
	if err != nil {
		return nil, err
	}

	depositor := tx.Caller()
	vault := tx.As(self)

	if err = src.TransferFrom(vault, depositor, self, depositAmount); err != nil {
		return nil, fmt.Errorf("pull %s: %w", src.Symbol(), err)
	}

	minted := new(uint256.Int)

	for i := range infos {
		if parts[i].IsZero() {
			continue
		}

		received := parts[i]
		if !infos[i].Asset.Equals(depositAsset) {
			received, err = c.swap(tx, self, depositAsset, infos[i].Asset, parts[i], routers[i], routerData[i])
			if err != nil {
				return nil, fmt.Errorf("swap into %s: %w", infos[i].Asset.StringLE(), err)
			}
		}

		price, err := prices.Price(vault, infos[i].Asset)
		if err != nil {
			return nil, fmt.Errorf("price %s: %w", infos[i].Asset.StringLE(), err)
		}

		value, err := amountToValue(received, price, infos[i].Decimals)
		if err != nil {
			return nil, err
		}

		if minted, err = common.Add(minted, value); err != nil {
			return nil, err
		}
	}

	if minted.IsZero() || minted.Lt(minimumOutput) {
		return nil, fmt.Errorf("%w: %s minted, %s expected", common.ErrSlippageExceeded, minted.Dec(), minimumOutput.Dec())
	}

	if err = c.mint(tx, self, depositor, depositAsset, minted); err != nil {
		return nil, err
	}

	return minted, nil
}

// swap executes call data on the whitelisted router and returns amount of
// dst received by the vault.
func (c *Core) swap(tx *chain.Tx, self, src, dst util.Uint160, amount *uint256.Int, router util.Uint160, data []byte) (*uint256.Int, error) {
	if !c.IsWhitelisted(tx, self, router) {
		return nil, fmt.Errorf("%w: %s", ErrRouterNotWhitelisted, router.StringLE())
	}

	r, err := chain.Lookup[swap.Router](tx.Chain(), router)
	if err != nil {
		return nil, fmt.Errorf("resolve router: %w", err)
	}

	srcToken, err := fungible(tx, src)
	if err != nil {
		return nil, err
	}
	dstToken, err := fungible(tx, dst)
	if err != nil {
		return nil, err
	}

	vault := tx.As(self)
	srcBefore := srcToken.BalanceOf(tx, self)
	dstBefore := dstToken.BalanceOf(tx, self)

	if err = srcToken.Approve(vault, router, amount); err != nil {
		return nil, err
	}

	if _, err = r.Swap(vault, data); err != nil {
		return nil, err
	}

	// leftover allowance must not be usable later
	if err = srcToken.Approve(vault, router, new(uint256.Int)); err != nil {
		return nil, err
	}

	spent, err := common.Sub(srcBefore, srcToken.BalanceOf(tx, self))
	if err != nil || !spent.Eq(amount) {
		return nil, fmt.Errorf("%w: router %s spent %s of %s", ErrSwapAmountMismatch, router.StringLE(), spendDec(spent), amount.Dec())
	}

	received, err := common.Sub(dstToken.BalanceOf(tx, self), dstBefore)
	if err != nil || received.IsZero() {
		return nil, fmt.Errorf("%w: nothing received from %s", ErrSwapOutputTooLow, router.StringLE())
	}

	tx.Log().Debug("swap executed",
		zap.Stringer("router", router), zap.Stringer("src", src), zap.Stringer("dst", dst),
		zap.String("amount", amount.Dec()), zap.String("received", received.Dec()))

	return received, nil
}

func spendDec(v *uint256.Int) string {
	if v == nil {
		return "unknown amount"
	}
	return v.Dec()
}

func (c *Core) mint(tx *chain.Tx, self, depositor, depositAsset util.Uint160, amount *uint256.Int) error {
	stable, err := c.stableToken(tx, self)
	if err != nil {
		return err
	}

	if err = stable.Mint(tx.As(self), depositor, amount); err != nil {
		return fmt.Errorf("mint BentoUSD: %w", err)
	}

	var assetItem stackitem.Item = stackitem.Null{}
	if !depositAsset.Equals(util.Uint160{}) {
		assetItem = common.AddressItem(depositAsset)
	}

	tx.Notify(self, "Minted", common.AddressItem(depositor), assetItem, common.AmountItem(amount))

	return nil
}
