package vault

import (
	"fmt"

	"github.com/bentousd/bento-vault/bentousd"
	"github.com/bentousd/bento-vault/chain"
	"github.com/bentousd/bento-vault/common"
	"github.com/bentousd/bento-vault/oracle"
	"github.com/bentousd/bento-vault/strategy"
	"github.com/bentousd/bento-vault/token"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"go.uber.org/zap"
)

var (
	// ErrAssetNotSupported is returned for assets not registered in the vault.
	ErrAssetNotSupported = common.NewError(common.ErrConfiguration, "asset not supported")
	// ErrAssetAlreadySupported is returned on repeated asset registration.
	ErrAssetAlreadySupported = common.NewError(common.ErrConfiguration, "asset already supported")
	// ErrDecimalsMismatch is returned when configured decimals differ from the
	// token ones.
	ErrDecimalsMismatch = common.NewError(common.ErrConfiguration, "decimals mismatch")
	// ErrInvalidDecimals is returned for decimals outside
	// [MinAssetDecimals, MaxAssetDecimals].
	ErrInvalidDecimals = common.NewError(common.ErrConfiguration, "invalid decimals")
	// ErrWeightSumMismatch is returned when asset weights do not sum up to the
	// total weight.
	ErrWeightSumMismatch = common.NewError(common.ErrConfiguration, "weight sum mismatch")
	// ErrNoActiveAssets is returned on minting or redemption with zero total
	// weight.
	ErrNoActiveAssets = common.NewError(common.ErrConfiguration, "no active assets")
	// ErrLengthMismatch is returned when per-asset arguments do not match
	// the asset list.
	ErrLengthMismatch = common.NewError(common.ErrConfiguration, "length mismatch")
	// ErrStrategyAssetMismatch is returned when the strategy invests another
	// asset.
	ErrStrategyAssetMismatch = common.NewError(common.ErrConfiguration, "strategy asset mismatch")
	// ErrPositionNotEmpty is returned on strategy change with funds still in
	// the old strategy.
	ErrPositionNotEmpty = common.NewError(common.ErrConfiguration, "strategy position is not empty")
	// ErrNotInitialized is returned when BentoUSD or oracle router is not set.
	ErrNotInitialized = common.NewError(common.ErrConfiguration, "vault is not initialized")
	// ErrRouterNotWhitelisted is returned for swaps via unknown routers.
	ErrRouterNotWhitelisted = common.NewError(common.ErrAuthorization, "router not whitelisted")
	// ErrSwapAmountMismatch is returned when the router spent other amount
	// than approved.
	ErrSwapAmountMismatch = common.NewError(common.ErrSlippage, "swap amount mismatch")
	// ErrSwapOutputTooLow is returned when the swap brought nothing.
	ErrSwapOutputTooLow = common.NewError(common.ErrSlippage, "swap output too low")
)

const (
	ownerKey       = "o"
	versionKey     = "v"
	totalWeightKey = "w"
	assetListKey   = "l"
	assetPrefix    = "a"
	bentoUSDKey    = "b"
	oracleKey      = "r"
	routerPrefix   = "x"
	positionPrefix = "p"
	requestPrefix  = "u"
	nonceKey       = "n"
)

// Core is the vault logic contract. It implements proxy.Implementation.
//
// Every method takes address of the proxy the logic is executed behind: the
// vault state is stored in its scope and it holds the collateral.
type Core struct {
	hash    util.Uint160
	version int
}

// NewCore returns Core located at the given address.
func NewCore(hash util.Uint160, version int) *Core {
	return &Core{hash: hash, version: version}
}

// Hash returns address of the logic contract.
func (c *Core) Hash() util.Uint160 { return c.hash }

// Version returns version of the logic.
func (c *Core) Version() int { return c.version }

// Deploy initializes the vault state on the first deployment. Data holds the
// owner address. On update, it checks the version being upgraded from.
func (c *Core) Deploy(tx *chain.Tx, self util.Uint160, data []any, isUpdate bool) error {
	s := tx.Storage(self)

	if isUpdate {
		from, err := common.VersionFromData(data)
		if err != nil {
			return err
		}
		if err = common.CheckVersion(from); err != nil {
			return err
		}

		s.PutAmount([]byte(versionKey), uint256.NewInt(uint64(c.version)))
		tx.Log().Info("vault logic updated", zap.Int("from", from), zap.Int("to", c.version))

		return nil
	}

	if s.Get([]byte(ownerKey)) != nil {
		return nil
	}

	if len(data) < 1 {
		return fmt.Errorf("missing owner argument: %w", common.ErrUnauthorized)
	}
	owner, ok := data[0].(util.Uint160)
	if !ok || owner.Equals(util.Uint160{}) {
		return fmt.Errorf("invalid owner argument %v: %w", data[0], common.ErrUnauthorized)
	}

	s.PutUint160([]byte(ownerKey), owner)
	s.PutAmount([]byte(versionKey), uint256.NewInt(uint64(c.version)))

	tx.Log().Info("vault initialized", zap.Stringer("owner", owner), zap.Int("version", c.version))

	return nil
}

// Owner returns account allowed to configure the vault.
func (c *Core) Owner(tx *chain.Tx, self util.Uint160) util.Uint160 {
	return tx.Storage(self).GetUint160([]byte(ownerKey))
}

// StateVersion returns version of the logic that last deployed or migrated
// the state.
func (c *Core) StateVersion(tx *chain.Tx, self util.Uint160) int {
	return int(tx.Storage(self).GetAmount([]byte(versionKey)).Uint64())
}

// BentoUSD returns address of the stable token.
func (c *Core) BentoUSD(tx *chain.Tx, self util.Uint160) util.Uint160 {
	return tx.Storage(self).GetUint160([]byte(bentoUSDKey))
}

// OracleRouter returns address of the price oracle.
func (c *Core) OracleRouter(tx *chain.Tx, self util.Uint160) util.Uint160 {
	return tx.Storage(self).GetUint160([]byte(oracleKey))
}

// TotalWeight returns sum of the asset weights.
func (c *Core) TotalWeight(tx *chain.Tx, self util.Uint160) uint64 {
	return tx.Storage(self).GetAmount([]byte(totalWeightKey)).Uint64()
}

// AllAssets returns registered assets in registration order.
func (c *Core) AllAssets(tx *chain.Tx, self util.Uint160) ([]util.Uint160, error) {
	item, err := tx.Storage(self).GetItem([]byte(assetListKey))
	if err != nil || item == nil {
		return nil, err
	}

	arr, ok := item.Value().([]stackitem.Item)
	if !ok {
		return nil, fmt.Errorf("asset list is %s, not array", item.Type())
	}

	res := make([]util.Uint160, len(arr))
	for i := range arr {
		if res[i], err = common.AddressFromItem(arr[i]); err != nil {
			return nil, fmt.Errorf("asset #%d: %w", i, err)
		}
	}

	return res, nil
}

// AssetInfo returns parameters of the registered asset.
func (c *Core) AssetInfo(tx *chain.Tx, self, asset util.Uint160) (AssetInfo, error) {
	item, err := tx.Storage(self).GetItem(assetKey(asset))
	if err != nil {
		return AssetInfo{}, err
	}
	if item == nil {
		return AssetInfo{}, fmt.Errorf("%w: %s", ErrAssetNotSupported, asset.StringLE())
	}

	var info AssetInfo
	if err = info.FromStackItem(item); err != nil {
		return AssetInfo{}, fmt.Errorf("decode asset %s: %w", asset.StringLE(), err)
	}

	return info, nil
}

// AssetInfos returns parameters of all registered assets in registration
// order.
func (c *Core) AssetInfos(tx *chain.Tx, self util.Uint160) ([]AssetInfo, error) {
	assets, err := c.AllAssets(tx, self)
	if err != nil {
		return nil, err
	}

	res := make([]AssetInfo, len(assets))
	for i := range assets {
		if res[i], err = c.AssetInfo(tx, self, assets[i]); err != nil {
			return nil, err
		}
	}

	return res, nil
}

// Weights returns weights of all registered assets in registration order.
func (c *Core) Weights(tx *chain.Tx, self util.Uint160) ([]uint64, error) {
	infos, err := c.AssetInfos(tx, self)
	if err != nil {
		return nil, err
	}

	res := make([]uint64, len(infos))
	for i := range infos {
		res[i] = infos[i].Weight
	}

	return res, nil
}

// IsWhitelisted checks whether the swap router is allowed.
func (c *Core) IsWhitelisted(tx *chain.Tx, self, router util.Uint160) bool {
	return tx.Storage(self).Get(routerKey(router)) != nil
}

// Position returns vault position in the strategy of the asset.
func (c *Core) Position(tx *chain.Tx, self, asset util.Uint160) (StrategyPosition, error) {
	res := StrategyPosition{
		UnderlyingDeposited: new(uint256.Int),
		SharesHeld:          new(uint256.Int),
	}

	item, err := tx.Storage(self).GetItem(positionKey(asset))
	if err != nil || item == nil {
		return res, err
	}

	if err = res.FromStackItem(item); err != nil {
		return res, fmt.Errorf("decode position of %s: %w", asset.StringLE(), err)
	}

	return res, nil
}

func (c *Core) putPosition(tx *chain.Tx, self, asset util.Uint160, p StrategyPosition) error {
	s := tx.Storage(self)
	if p.UnderlyingDeposited.IsZero() && p.SharesHeld.IsZero() {
		s.Delete(positionKey(asset))
		return nil
	}

	item, err := p.ToStackItem()
	if err != nil {
		return err
	}

	return s.PutItem(positionKey(asset), item)
}

func (c *Core) putAsset(tx *chain.Tx, self util.Uint160, info AssetInfo) error {
	item, err := info.ToStackItem()
	if err != nil {
		return err
	}
	return tx.Storage(self).PutItem(assetKey(info.Asset), item)
}

func (c *Core) checkOwner(tx *chain.Tx, self util.Uint160) error {
	return common.CheckOwnerWitness(tx.Caller(), c.Owner(tx, self))
}

func (c *Core) stableToken(tx *chain.Tx, self util.Uint160) (*bentousd.Token, error) {
	h := c.BentoUSD(tx, self)
	if h.Equals(util.Uint160{}) {
		return nil, fmt.Errorf("%w: BentoUSD is not set", ErrNotInitialized)
	}
	return chain.Lookup[*bentousd.Token](tx.Chain(), h)
}

func (c *Core) prices(tx *chain.Tx, self util.Uint160) (oracle.PriceSource, error) {
	h := c.OracleRouter(tx, self)
	if h.Equals(util.Uint160{}) {
		return nil, fmt.Errorf("%w: oracle router is not set", ErrNotInitialized)
	}
	return chain.Lookup[oracle.PriceSource](tx.Chain(), h)
}

func fungible(tx *chain.Tx, asset util.Uint160) (token.Fungible, error) {
	t, err := chain.Lookup[token.Fungible](tx.Chain(), asset)
	if err != nil {
		return nil, fmt.Errorf("resolve token: %w", err)
	}
	return t, nil
}

func adapter(tx *chain.Tx, info AssetInfo) (strategy.Adapter, error) {
	a, err := strategy.Resolve(tx.Chain(), info.StrategyKind, info.Strategy, info.YieldToken)
	if err != nil {
		return nil, fmt.Errorf("strategy of %s: %w", info.Asset.StringLE(), err)
	}
	return a, nil
}

func assetKey(asset util.Uint160) []byte {
	return append([]byte(assetPrefix), asset.BytesBE()...)
}

func routerKey(router util.Uint160) []byte {
	return append([]byte(routerPrefix), router.BytesBE()...)
}

func positionKey(asset util.Uint160) []byte {
	return append([]byte(positionPrefix), asset.BytesBE()...)
}

func requestKey(asset util.Uint160, id string) []byte {
	return append(append([]byte(requestPrefix), asset.BytesBE()...), id...)
}
