package swap

import (
	"fmt"
	"math/big"

	"github.com/bentousd/bento-vault/chain"
	"github.com/bentousd/bento-vault/common"
	"github.com/bentousd/bento-vault/oracle"
	"github.com/bentousd/bento-vault/token"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"go.uber.org/zap"
)

// MaxBps is 100% in basis points.
const MaxBps = 10_000

// ErrInvalidBps is returned for basis points above MaxBps.
var ErrInvalidBps = common.NewError(common.ErrConfiguration, "invalid basis points")

// Router executes swaps described by call data on behalf of the caller.
type Router interface {
	Hash() util.Uint160
	// Swap pulls source amount from the caller and pays the output to the
	// receiver. The caller must approve the router beforehand. Returns the
	// output amount.
	Swap(tx *chain.Tx, data []byte) (*uint256.Int, error)
}

const (
	routerOwnerKey  = "o"
	routerOracleKey = "r"
	routerFeeKey    = "f"
)

// AggregationRouter is a Router contract paying swap outputs from its own
// inventory at oracle prices minus the fee.
type AggregationRouter struct {
	hash util.Uint160
}

// NewAggregationRouter returns AggregationRouter located at the given
// address.
func NewAggregationRouter(hash util.Uint160) *AggregationRouter {
	return &AggregationRouter{hash: hash}
}

// Hash returns address of the router.
func (r *AggregationRouter) Hash() util.Uint160 {
	return r.hash
}

// Deploy initializes router storage. Repeated calls do nothing.
func (r *AggregationRouter) Deploy(tx *chain.Tx, owner, priceOracle util.Uint160) error {
	s := tx.Storage(r.hash)
	if s.Get([]byte(routerOwnerKey)) != nil {
		return nil
	}

	s.PutUint160([]byte(routerOwnerKey), owner)
	s.PutUint160([]byte(routerOracleKey), priceOracle)

	tx.Log().Debug("aggregation router initialized",
		zap.Stringer("owner", owner), zap.Stringer("oracle", priceOracle))

	return nil
}

// Fee returns swap fee in basis points.
func (r *AggregationRouter) Fee(tx *chain.Tx) uint16 {
	v := tx.Storage(r.hash).GetAmount([]byte(routerFeeKey))
	return uint16(v.Uint64())
}

// SetFee sets swap fee. Can be invoked only by the owner.
//
// Produces FeeChanged notification.
func (r *AggregationRouter) SetFee(tx *chain.Tx, bps uint16) error {
	s := tx.Storage(r.hash)
	if err := common.CheckOwnerWitness(tx.Caller(), s.GetUint160([]byte(routerOwnerKey))); err != nil {
		return err
	}

	if bps > MaxBps {
		return fmt.Errorf("%w: fee %d", ErrInvalidBps, bps)
	}

	s.PutAmount([]byte(routerFeeKey), uint256.NewInt(uint64(bps)))
	tx.Notify(r.hash, "FeeChanged", stackitem.NewBigInteger(big.NewInt(int64(bps))))

	return nil
}

// Expected returns output of swapping the amount of src into dst.
func (r *AggregationRouter) Expected(tx *chain.Tx, src, dst util.Uint160, amount *uint256.Int) (*uint256.Int, error) {
	srcToken, err := chain.Lookup[token.Fungible](tx.Chain(), src)
	if err != nil {
		return nil, fmt.Errorf("resolve source token: %w", err)
	}
	dstToken, err := chain.Lookup[token.Fungible](tx.Chain(), dst)
	if err != nil {
		return nil, fmt.Errorf("resolve destination token: %w", err)
	}

	prices, err := chain.Lookup[oracle.PriceSource](tx.Chain(), tx.Storage(r.hash).GetUint160([]byte(routerOracleKey)))
	if err != nil {
		return nil, fmt.Errorf("resolve oracle: %w", err)
	}

	self := tx.As(r.hash)

	srcPrice, err := prices.Price(self, src)
	if err != nil {
		return nil, err
	}
	dstPrice, err := prices.Price(self, dst)
	if err != nil {
		return nil, err
	}

	v, err := common.ToWad(amount, srcToken.Decimals())
	if err != nil {
		return nil, err
	}
	if v, err = common.MulDiv(v, srcPrice, dstPrice); err != nil {
		return nil, err
	}
	if v, err = common.FromWad(v, dstToken.Decimals()); err != nil {
		return nil, err
	}

	return common.MulDiv(v, uint256.NewInt(uint64(MaxBps-r.Fee(tx))), uint256.NewInt(MaxBps))
}

// Swap implements Router.
//
// Produces Swapped notification.
func (r *AggregationRouter) Swap(tx *chain.Tx, data []byte) (*uint256.Int, error) {
	release, err := tx.Enter(r.hash)
	if err != nil {
		return nil, err
	}
	defer release()

	var cd CallData
	if err = cd.Unmarshal(data); err != nil {
		return nil, err
	}

	if cd.Src.Equals(cd.Dst) {
		return nil, fmt.Errorf("%w: same source and destination", ErrInvalidCallData)
	}
	if cd.Amount.IsZero() {
		return nil, fmt.Errorf("swap: %w", common.ErrInvalidAmount)
	}

	out, err := r.Expected(tx, cd.Src, cd.Dst, cd.Amount)
	if err != nil {
		return nil, err
	}
	if out.Lt(cd.MinReturn) {
		return nil, fmt.Errorf("%w: return %s, minimum %s", common.ErrSlippageExceeded, out.Dec(), cd.MinReturn.Dec())
	}

	receiver := cd.Receiver
	if receiver.Equals(util.Uint160{}) {
		receiver = tx.Caller()
	}

	srcToken, err := chain.Lookup[token.Fungible](tx.Chain(), cd.Src)
	if err != nil {
		return nil, err
	}
	dstToken, err := chain.Lookup[token.Fungible](tx.Chain(), cd.Dst)
	if err != nil {
		return nil, err
	}

	self := tx.As(r.hash)

	if err = srcToken.TransferFrom(self, tx.Caller(), r.hash, cd.Amount); err != nil {
		return nil, fmt.Errorf("pull %s: %w", srcToken.Symbol(), err)
	}

	if err = dstToken.Transfer(self, receiver, out, common.SwapTransferDetails(tx.IDBytes())); err != nil {
		return nil, fmt.Errorf("pay %s: %w", dstToken.Symbol(), err)
	}

	tx.Notify(r.hash, "Swapped",
		common.AddressItem(tx.Caller()), common.AddressItem(cd.Src), common.AddressItem(cd.Dst),
		common.AmountItem(cd.Amount), common.AmountItem(out))

	return out, nil
}
