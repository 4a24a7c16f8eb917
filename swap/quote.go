package swap

import (
	"fmt"

	"github.com/bentousd/bento-vault/chain"
	"github.com/bentousd/bento-vault/common"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

// Quote is a prepared swap.
type Quote struct {
	Router    util.Uint160
	CallData  []byte
	Expected  *uint256.Int
	MinReturn *uint256.Int
}

// Quoter builds call data of the aggregation router.
type Quoter struct {
	router *AggregationRouter
}

// NewQuoter returns Quoter for the router.
func NewQuoter(r *AggregationRouter) *Quoter {
	return &Quoter{router: r}
}

// Quote prepares swap of the amount of src into dst tolerating output
// slippage given in basis points. Output is paid to the router caller.
func (q *Quoter) Quote(tx *chain.Tx, src, dst util.Uint160, amount *uint256.Int, slippageBps uint16) (Quote, error) {
	if slippageBps > MaxBps {
		return Quote{}, fmt.Errorf("%w: slippage %d", ErrInvalidBps, slippageBps)
	}

	expected, err := q.router.Expected(tx, src, dst, amount)
	if err != nil {
		return Quote{}, fmt.Errorf("estimate return: %w", err)
	}

	minReturn, err := common.MulDiv(expected, uint256.NewInt(uint64(MaxBps-slippageBps)), uint256.NewInt(MaxBps))
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		Router: q.router.Hash(),
		CallData: CallData{
			Src:       src,
			Dst:       dst,
			Amount:    amount,
			MinReturn: minReturn,
		}.Marshal(),
		Expected:  expected,
		MinReturn: minReturn,
	}, nil
}
