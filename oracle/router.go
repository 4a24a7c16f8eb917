/*
Package oracle implements price oracle router of the vault.

Router maps each collateral asset to a price feed. Every price is normalized
to 18 decimals and validated against feed staleness and drift bounds before
use. There are no retries and no fallback prices: a failed check aborts the
operation relying on the price.

Contract notifications

	FeedAdded:
	  - name: asset
	    type: Hash160
	  - name: aggregator
	    type: Hash160
	  - name: maxStaleness
	    type: Integer
	  - name: decimals
	    type: Integer

Contract storage scheme

	| Key          | Value              |
	|--------------|--------------------|
	| 'o'          | owner address      |
	| 'f' + asset  | serialized Feed    |
*/
package oracle

import (
	"fmt"

	"github.com/bentousd/bento-vault/chain"
	"github.com/bentousd/bento-vault/common"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"go.uber.org/zap"
)

// MaxFeedDecimals limits precision of the feed answers.
const MaxFeedDecimals = 36

var (
	// MinDrift is the lowest accepted normalized price.
	MinDrift = common.MustAmount("900000000000000000")
	// MaxDrift is the highest accepted normalized price.
	MaxDrift = common.MustAmount("1100000000000000000")
)

var (
	// ErrAssetNotAvailable is returned when asset has no price feed.
	ErrAssetNotAvailable = common.NewError(common.ErrOracle, "asset not available")
	// ErrStalePrice is returned when the feed answer is older than allowed.
	ErrStalePrice = common.NewError(common.ErrOracle, "oracle price too old")
	// ErrPriceOutOfBounds is returned when the normalized price is outside
	// [MinDrift, MaxDrift].
	ErrPriceOutOfBounds = common.NewError(common.ErrOracle, "oracle price out of bounds")
	// ErrInvalidFeed is returned on attempt to register malformed feed.
	ErrInvalidFeed = common.NewError(common.ErrConfiguration, "invalid price feed")
)

const (
	ownerKey   = "o"
	feedPrefix = "f"
)

// PriceSource provides validated asset prices.
type PriceSource interface {
	Price(tx *chain.Tx, asset util.Uint160) (*uint256.Int, error)
}

// Router is the oracle router contract.
type Router struct {
	hash util.Uint160
}

// New returns Router located at the given address.
func New(hash util.Uint160) *Router {
	return &Router{hash: hash}
}

// Hash returns address of the router.
func (r *Router) Hash() util.Uint160 {
	return r.hash
}

// Deploy initializes router storage. Repeated calls do nothing.
func (r *Router) Deploy(tx *chain.Tx, owner util.Uint160) error {
	s := tx.Storage(r.hash)
	if s.Get([]byte(ownerKey)) != nil {
		return nil
	}

	s.PutUint160([]byte(ownerKey), owner)
	tx.Log().Debug("oracle router initialized", zap.Stringer("owner", owner))

	return nil
}

// Owner returns account allowed to manage feeds.
func (r *Router) Owner(tx *chain.Tx) util.Uint160 {
	return tx.Storage(r.hash).GetUint160([]byte(ownerKey))
}

// AddFeed sets price feed of the asset overwriting the existing one. Can be
// invoked only by the owner.
//
// Produces FeedAdded notification.
func (r *Router) AddFeed(tx *chain.Tx, asset util.Uint160, feed Feed) error {
	if err := common.CheckOwnerWitness(tx.Caller(), r.Owner(tx)); err != nil {
		return err
	}

	switch {
	case feed.Aggregator.Equals(util.Uint160{}):
		return fmt.Errorf("%w: missing aggregator", ErrInvalidFeed)
	case feed.Decimals > MaxFeedDecimals:
		return fmt.Errorf("%w: %d decimals exceed %d", ErrInvalidFeed, feed.Decimals, MaxFeedDecimals)
	case feed.MaxStaleness <= 0:
		return fmt.Errorf("%w: non-positive staleness %s", ErrInvalidFeed, feed.MaxStaleness)
	}

	item, err := feed.ToStackItem()
	if err != nil {
		return err
	}

	err = tx.Storage(r.hash).PutItem(feedKey(asset), item)
	if err != nil {
		return err
	}

	tx.Notify(r.hash, "FeedAdded",
		common.AddressItem(asset),
		common.AddressItem(feed.Aggregator),
		stackitem.Make(int64(feed.MaxStaleness)),
		stackitem.Make(int64(feed.Decimals)))

	return nil
}

// Feed returns price feed of the asset. Returns ErrAssetNotAvailable if
// there is no feed.
func (r *Router) Feed(tx *chain.Tx, asset util.Uint160) (Feed, error) {
	item, err := tx.Storage(r.hash).GetItem(feedKey(asset))
	if err != nil {
		return Feed{}, err
	}
	if item == nil {
		return Feed{}, fmt.Errorf("%w: %s", ErrAssetNotAvailable, asset.StringLE())
	}

	var res Feed
	if err = res.FromStackItem(item); err != nil {
		return Feed{}, fmt.Errorf("decode feed of %s: %w", asset.StringLE(), err)
	}

	return res, nil
}

// Price returns 18-decimal price of the asset.
//
// Price fails with ErrAssetNotAvailable if the asset has no feed,
// ErrStalePrice if the answer is more than MaxStaleness old and
// ErrPriceOutOfBounds if the price is outside [MinDrift, MaxDrift].
func (r *Router) Price(tx *chain.Tx, asset util.Uint160) (*uint256.Int, error) {
	feed, err := r.Feed(tx, asset)
	if err != nil {
		return nil, err
	}

	agg, err := chain.Lookup[Aggregator](tx.Chain(), feed.Aggregator)
	if err != nil {
		return nil, fmt.Errorf("resolve aggregator of %s: %w", asset.StringLE(), err)
	}

	rd, err := agg.LatestRoundData(tx.As(r.hash))
	if err != nil {
		return nil, fmt.Errorf("read feed of %s: %w", asset.StringLE(), err)
	}

	if age := tx.Now().Sub(rd.UpdatedAt); age > feed.MaxStaleness {
		return nil, fmt.Errorf("%w: %s updated %s ago, %s allowed",
			ErrStalePrice, asset.StringLE(), age, feed.MaxStaleness)
	}

	if rd.Answer == nil || rd.Answer.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive answer %v", ErrPriceOutOfBounds, rd.Answer)
	}

	raw, err := common.FromBig(rd.Answer)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPriceOutOfBounds, err)
	}

	price, err := common.NormalizeDecimals(raw, feed.Decimals, common.WadDecimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPriceOutOfBounds, err)
	}

	if price.Lt(MinDrift) || price.Gt(MaxDrift) {
		return nil, fmt.Errorf("%w: %s price %s", ErrPriceOutOfBounds, asset.StringLE(), price.Dec())
	}

	return price, nil
}

func feedKey(asset util.Uint160) []byte {
	return append([]byte(feedPrefix), asset.BytesBE()...)
}
