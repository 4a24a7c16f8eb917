package vault

import (
	"fmt"
	"time"

	"github.com/bentousd/bento-vault/common"
	"github.com/bentousd/bento-vault/strategy"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
)

// Decimals range of the supported assets.
const (
	MinAssetDecimals = 6
	MaxAssetDecimals = 18
)

// AssetInfo describes collateral asset of the vault.
type AssetInfo struct {
	Asset    util.Uint160
	Decimals uint8
	// Weight of the asset in the basket. Zero weight excludes the asset from
	// basket minting and redemption.
	Weight uint64
	// YieldToken is a share token of the built-in strategy.
	YieldToken   util.Uint160
	StrategyKind strategy.Kind
	// Strategy is an address of the custom strategy contract. Zero means the
	// built-in strategy over YieldToken.
	Strategy util.Uint160
	// Idle balances not exceeding MinRebalanceAmount are not allocated.
	MinRebalanceAmount *uint256.Int
}

// Active checks whether the asset takes part in minting.
func (a AssetInfo) Active() bool {
	return a.Weight > 0
}

// HasStrategy checks whether the asset is bound to a yield strategy.
func (a AssetInfo) HasStrategy() bool {
	var zero util.Uint160
	return !a.Strategy.Equals(zero) || !a.YieldToken.Equals(zero)
}

// ToStackItem implements stackitem.Convertible.
func (a *AssetInfo) ToStackItem() (stackitem.Item, error) {
	minRebalance := a.MinRebalanceAmount
	if minRebalance == nil {
		minRebalance = new(uint256.Int)
	}

	return stackitem.NewStruct([]stackitem.Item{
		common.AddressItem(a.Asset),
		stackitem.Make(int64(a.Decimals)),
		stackitem.NewBigInteger(new(uint256.Int).SetUint64(a.Weight).ToBig()),
		common.AddressItem(a.YieldToken),
		stackitem.Make(int64(a.StrategyKind)),
		common.AddressItem(a.Strategy),
		common.AmountItem(minRebalance),
	}), nil
}

// FromStackItem implements stackitem.Convertible.
func (a *AssetInfo) FromStackItem(item stackitem.Item) error {
	arr, err := common.StructFields(item, 7)
	if err != nil {
		return err
	}

	if a.Asset, err = common.AddressFromItem(arr[0]); err != nil {
		return fmt.Errorf("field Asset: %w", err)
	}

	decimals, err := common.IntFromItem(arr[1])
	if err != nil {
		return fmt.Errorf("field Decimals: %w", err)
	}
	a.Decimals = uint8(decimals)

	weight, err := common.AmountFromItem(arr[2])
	if err != nil {
		return fmt.Errorf("field Weight: %w", err)
	}
	if !weight.IsUint64() {
		return fmt.Errorf("field Weight: %s overflows uint64", weight.Dec())
	}
	a.Weight = weight.Uint64()

	if a.YieldToken, err = common.AddressFromItem(arr[3]); err != nil {
		return fmt.Errorf("field YieldToken: %w", err)
	}

	kind, err := common.IntFromItem(arr[4])
	if err != nil {
		return fmt.Errorf("field StrategyKind: %w", err)
	}
	a.StrategyKind = strategy.Kind(kind)

	if a.Strategy, err = common.AddressFromItem(arr[5]); err != nil {
		return fmt.Errorf("field Strategy: %w", err)
	}

	if a.MinRebalanceAmount, err = common.AmountFromItem(arr[6]); err != nil {
		return fmt.Errorf("field MinRebalanceAmount: %w", err)
	}

	return nil
}

// StrategyPosition is the vault position in the strategy of an asset.
type StrategyPosition struct {
	// Assets deposited into the strategy and not yet withdrawn.
	UnderlyingDeposited *uint256.Int
	// Shares of the strategy held by the vault.
	SharesHeld *uint256.Int
}

// ToStackItem implements stackitem.Convertible.
func (p *StrategyPosition) ToStackItem() (stackitem.Item, error) {
	return stackitem.NewStruct([]stackitem.Item{
		common.AmountItem(p.UnderlyingDeposited),
		common.AmountItem(p.SharesHeld),
	}), nil
}

// FromStackItem implements stackitem.Convertible.
func (p *StrategyPosition) FromStackItem(item stackitem.Item) error {
	arr, err := common.StructFields(item, 2)
	if err != nil {
		return err
	}

	if p.UnderlyingDeposited, err = common.AmountFromItem(arr[0]); err != nil {
		return fmt.Errorf("field UnderlyingDeposited: %w", err)
	}
	if p.SharesHeld, err = common.AmountFromItem(arr[1]); err != nil {
		return fmt.Errorf("field SharesHeld: %w", err)
	}

	return nil
}

// UnstakeRequest is an in-flight withdrawal from a staking strategy.
type UnstakeRequest struct {
	ID          string
	Assets      *uint256.Int
	Shares      *uint256.Int
	CooldownEnd time.Time
}

// ToStackItem implements stackitem.Convertible.
func (r *UnstakeRequest) ToStackItem() (stackitem.Item, error) {
	return stackitem.NewStruct([]stackitem.Item{
		stackitem.NewByteArray([]byte(r.ID)),
		common.AmountItem(r.Assets),
		common.AmountItem(r.Shares),
		common.TimeItem(r.CooldownEnd),
	}), nil
}

// FromStackItem implements stackitem.Convertible.
func (r *UnstakeRequest) FromStackItem(item stackitem.Item) error {
	arr, err := common.StructFields(item, 4)
	if err != nil {
		return err
	}

	id, err := arr[0].TryBytes()
	if err != nil {
		return fmt.Errorf("field ID: %w", err)
	}
	r.ID = string(id)

	if r.Assets, err = common.AmountFromItem(arr[1]); err != nil {
		return fmt.Errorf("field Assets: %w", err)
	}
	if r.Shares, err = common.AmountFromItem(arr[2]); err != nil {
		return fmt.Errorf("field Shares: %w", err)
	}
	if r.CooldownEnd, err = common.TimeFromItem(arr[3]); err != nil {
		return fmt.Errorf("field CooldownEnd: %w", err)
	}

	return nil
}
