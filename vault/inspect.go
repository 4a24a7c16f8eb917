package vault

import (
	"github.com/bentousd/bento-vault/chain"
	"github.com/bentousd/bento-vault/common"
	"github.com/bentousd/bento-vault/strategy"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

// AssetReport describes holdings of a single asset.
type AssetReport struct {
	Info   AssetInfo
	Symbol string
	// Idle is the vault balance of the asset.
	Idle     *uint256.Int
	Position StrategyPosition
	// Underlying is the current asset value of the strategy position.
	Underlying *uint256.Int
	// Pending is the amount of in-flight unstake requests.
	Pending *uint256.Int
	// Claimable is the matured part of Pending.
	Claimable *uint256.Int
	Requests  []UnstakeRequest
	// Price is nil if the oracle rejects the price, PriceError tells why.
	Price      *uint256.Int
	PriceError string
	// Value is the 18-decimal USD value of all the holdings.
	Value *uint256.Int
}

// Report describes the vault state.
type Report struct {
	Self         util.Uint160
	Version      int
	Owner        util.Uint160
	BentoUSD     util.Uint160
	OracleRouter util.Uint160
	TotalWeight  uint64
	Assets       []AssetReport
	// TotalValue is the 18-decimal USD value of the priced assets.
	TotalValue *uint256.Int
	// Supply of BentoUSD.
	Supply *uint256.Int
}

// Inspect returns the vault report. Oracle failures do not fail Inspect, the
// asset is reported without price and value instead.
func (c *Core) Inspect(tx *chain.Tx, self util.Uint160) (Report, error) {
	res := Report{
		Self:         self,
		Version:      c.StateVersion(tx, self),
		Owner:        c.Owner(tx, self),
		BentoUSD:     c.BentoUSD(tx, self),
		OracleRouter: c.OracleRouter(tx, self),
		TotalWeight:  c.TotalWeight(tx, self),
		TotalValue:   new(uint256.Int),
		Supply:       new(uint256.Int),
	}

	if stable, err := c.stableToken(tx, self); err == nil {
		res.Supply = stable.TotalSupply(tx)
	}

	infos, err := c.AssetInfos(tx, self)
	if err != nil {
		return Report{}, err
	}

	prices, priceErr := c.prices(tx, self)

	for _, info := range infos {
		r, err := c.inspectAsset(tx, self, info)
		if err != nil {
			return Report{}, err
		}

		holdings, err := common.Add(r.Idle, r.Underlying)
		if err == nil {
			holdings, err = common.Add(holdings, r.Pending)
		}
		if err != nil {
			return Report{}, err
		}

		switch {
		case priceErr != nil:
			r.PriceError = priceErr.Error()
		default:
			if r.Price, err = prices.Price(tx.As(self), info.Asset); err != nil {
				r.Price, r.PriceError = nil, err.Error()
				break
			}
			if r.Value, err = amountToValue(holdings, r.Price, info.Decimals); err != nil {
				return Report{}, err
			}
			if res.TotalValue, err = common.Add(res.TotalValue, r.Value); err != nil {
				return Report{}, err
			}
		}

		res.Assets = append(res.Assets, r)
	}

	return res, nil
}

func (c *Core) inspectAsset(tx *chain.Tx, self util.Uint160, info AssetInfo) (AssetReport, error) {
	r := AssetReport{
		Info:       info,
		Underlying: new(uint256.Int),
		Pending:    new(uint256.Int),
		Claimable:  new(uint256.Int),
	}

	t, err := fungible(tx, info.Asset)
	if err != nil {
		return r, err
	}

	r.Symbol = t.Symbol()
	r.Idle = t.BalanceOf(tx, self)

	if r.Position, err = c.Position(tx, self, info.Asset); err != nil {
		return r, err
	}

	if !info.HasStrategy() {
		return r, nil
	}

	a, err := adapter(tx, info)
	if err != nil {
		return r, err
	}

	if r.Underlying, err = a.TotalUnderlying(tx, self); err != nil {
		return r, err
	}

	if st, ok := a.(strategy.Staking); ok {
		if r.Pending, _, err = st.Pending(tx, self); err != nil {
			return r, err
		}
		if r.Claimable, err = st.Claimable(tx, self); err != nil {
			return r, err
		}
		if r.Requests, err = c.PendingUnstakes(tx, self, info.Asset); err != nil {
			return r, err
		}
	}

	return r, nil
}
