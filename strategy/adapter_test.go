package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/bentousd/bento-vault/chain"
	"github.com/bentousd/bento-vault/common"
	"github.com/bentousd/bento-vault/sharevault"
	"github.com/bentousd/bento-vault/token"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const cooldown = 7 * 24 * time.Hour

var (
	owner  = util.Uint160{0xaa}
	holder = util.Uint160{0x01}
)

type env struct {
	chain  *chain.Chain
	clock  *chain.ManualClock
	usdc   *token.Token
	usde   *token.Token
	susdc  *sharevault.Vault
	susde  *sharevault.Vault
	pooled *Contract
}

func newEnv(t *testing.T) *env {
	clock := chain.NewManualClock(time.Unix(1_700_000_000, 0))
	e := &env{
		chain: chain.New(chain.Prm{Clock: clock, Logger: zaptest.NewLogger(t)}),
		clock: clock,
		usdc:  token.New(chain.ContractHash(owner, "USDC"), "USDC", 6),
		usde:  token.New(chain.ContractHash(owner, "USDe"), "USDe", 18),
	}
	e.susdc = sharevault.New(chain.ContractHash(owner, "sUSDC"), "sUSDC", e.usdc, 0)
	e.susde = sharevault.New(chain.ContractHash(owner, "sUSDe"), "sUSDe", e.usde, cooldown)
	e.pooled = NewContract(chain.ContractHash(owner, "pooled"), e.susdc)

	for name, c := range map[string]interface{ Hash() util.Uint160 }{
		"USDC": e.usdc, "USDe": e.usde, "sUSDC": e.susdc, "sUSDe": e.susde, "pooled": e.pooled,
	} {
		require.NoError(t, e.chain.Register(c.Hash(), name, c))
	}

	e.invoke(t, owner, func(tx *chain.Tx) error {
		for _, d := range []interface {
			Deploy(*chain.Tx, util.Uint160) error
		}{e.usdc, e.usde, e.susdc, e.susde, e.pooled} {
			if err := d.Deploy(tx, owner); err != nil {
				return err
			}
		}
		if err := e.usdc.Mint(tx, holder, common.Amount(1_000_000), nil); err != nil {
			return err
		}
		return e.usde.Mint(tx, holder, common.Amount(1_000_000), nil)
	})

	return e
}

func (e *env) invoke(t *testing.T, sender util.Uint160, f func(*chain.Tx) error) {
	_, err := e.chain.Invoke(context.Background(), sender, f)
	require.NoError(t, err)
}

func (e *env) deposit(t *testing.T, a Adapter, asset *token.Token, amount uint64) *uint256.Int {
	var shares *uint256.Int
	e.invoke(t, holder, func(tx *chain.Tx) error {
		if err := asset.Approve(tx, a.Spender(), common.Amount(amount)); err != nil {
			return err
		}
		var err error
		shares, err = a.Deposit(tx, common.Amount(amount))
		return err
	})
	return shares
}

func TestResolve(t *testing.T) {
	e := newEnv(t)

	for _, tc := range []struct {
		name       string
		kind       Kind
		strategy   util.Uint160
		yieldToken util.Uint160
		exp        Kind
		err        error
	}{
		{name: "built-in generic", kind: GenericVault, yieldToken: e.susdc.Hash(), exp: GenericVault},
		{name: "built-in staking", kind: StakingToken, yieldToken: e.susde.Hash(), exp: StakingToken},
		{name: "registered", kind: GenericVault, strategy: e.pooled.Hash(), exp: GenericVault},
		{name: "kind mismatch", kind: StakingToken, strategy: e.pooled.Hash(), err: ErrKindMismatch},
		{name: "no strategy", kind: GenericVault, err: ErrNoStrategy},
		{name: "unknown yield token", kind: GenericVault, yieldToken: util.Uint160{0xee}, err: chain.ErrContractNotFound},
		{name: "yield token is not a vault", kind: GenericVault, yieldToken: e.usdc.Hash(), err: chain.ErrUnexpectedContract},
		{name: "unknown kind", kind: Kind(7), yieldToken: e.susdc.Hash(), err: ErrUnknownKind},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a, err := Resolve(e.chain, tc.kind, tc.strategy, tc.yieldToken)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				require.ErrorIs(t, err, common.ErrConfiguration)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.exp, a.Kind())
		})
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{GenericVault, StakingToken} {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		require.Equal(t, k, parsed)
	}

	_, err := ParseKind("lending")
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestGenericVault(t *testing.T) {
	e := newEnv(t)
	a := NewGenericVault(e.susdc)

	shares := e.deposit(t, a, e.usdc, 1000)
	require.EqualValues(t, 1000, shares.Uint64())

	// yield doubles the position
	e.invoke(t, owner, func(tx *chain.Tx) error {
		return e.usdc.Mint(tx, e.susdc.Hash(), common.Amount(1000), nil)
	})

	e.invoke(t, holder, func(tx *chain.Tx) error {
		total, err := a.TotalUnderlying(tx, holder)
		require.NoError(t, err)
		require.EqualValues(t, 1999, total.Uint64())

		burnt, err := a.Withdraw(tx, common.Amount(1500), holder)
		require.NoError(t, err)
		require.EqualValues(t, 751, burnt.Uint64())
		return nil
	})

	_, err := e.chain.Invoke(context.Background(), holder, func(tx *chain.Tx) error {
		_, err := a.Withdraw(tx, common.Amount(600), holder)
		return err
	})
	require.ErrorIs(t, err, common.ErrInsufficientLiquidity)
}

func TestStakingToken(t *testing.T) {
	e := newEnv(t)
	a := NewStakingToken(e.susde)

	e.deposit(t, a, e.usde, 1000)

	_, err := e.chain.Invoke(context.Background(), holder, func(tx *chain.Tx) error {
		_, err := a.Withdraw(tx, common.Amount(1), holder)
		return err
	})
	require.ErrorIs(t, err, common.ErrInsufficientLiquidity)

	var req Request
	e.invoke(t, holder, func(tx *chain.Tx) error {
		var err error
		req, err = a.RequestWithdraw(tx, common.Amount(300))
		return err
	})
	require.EqualValues(t, 300, req.Assets.Uint64())
	require.EqualValues(t, 300, req.Shares.Uint64())
	require.Equal(t, e.clock.Now().Add(cooldown), req.CooldownEnd)

	claim := func() uint64 {
		var res *uint256.Int
		e.invoke(t, holder, func(tx *chain.Tx) error {
			var err error
			res, err = a.Claim(tx, holder)
			return err
		})
		return res.Uint64()
	}

	claimable := func() uint64 {
		var res *uint256.Int
		e.invoke(t, holder, func(tx *chain.Tx) error {
			var err error
			res, err = a.Claimable(tx, holder)
			return err
		})
		return res.Uint64()
	}

	require.Zero(t, claimable())
	require.Zero(t, claim(), "nothing is matured")

	e.clock.Advance(cooldown - time.Second)
	require.Zero(t, claimable(), "one second before the end")

	e.clock.Advance(time.Second)
	require.EqualValues(t, 300, claimable())
	require.EqualValues(t, 300, claim())
	require.Zero(t, claimable())
	require.Zero(t, claim())

	e.invoke(t, holder, func(tx *chain.Tx) error {
		pending, _, err := a.Pending(tx, holder)
		require.NoError(t, err)
		require.True(t, pending.IsZero())

		total, err := a.TotalUnderlying(tx, holder)
		require.NoError(t, err)
		require.EqualValues(t, 700, total.Uint64())
		return nil
	})
}

func TestContract(t *testing.T) {
	e := newEnv(t)

	other := util.Uint160{0x02}
	e.invoke(t, owner, func(tx *chain.Tx) error {
		return e.usdc.Mint(tx, other, common.Amount(500), nil)
	})

	e.deposit(t, e.pooled, e.usdc, 1000)
	e.invoke(t, other, func(tx *chain.Tx) error {
		if err := e.usdc.Approve(tx, e.pooled.Hash(), common.Amount(500)); err != nil {
			return err
		}
		_, err := e.pooled.Deposit(tx, common.Amount(500))
		return err
	})

	e.invoke(t, holder, func(tx *chain.Tx) error {
		require.EqualValues(t, 1000, e.pooled.SharesOf(tx, holder).Uint64())
		require.EqualValues(t, 500, e.pooled.SharesOf(tx, other).Uint64())
		require.EqualValues(t, 1500, e.susdc.BalanceOf(tx, e.pooled.Hash()).Uint64())
		return nil
	})

	_, err := e.chain.Invoke(context.Background(), other, func(tx *chain.Tx) error {
		_, err := e.pooled.Withdraw(tx, common.Amount(501), other)
		return err
	})
	require.ErrorIs(t, err, common.ErrInsufficientLiquidity)

	e.invoke(t, other, func(tx *chain.Tx) error {
		_, err := e.pooled.Withdraw(tx, common.Amount(500), other)
		return err
	})

	e.invoke(t, other, func(tx *chain.Tx) error {
		require.Zero(t, e.pooled.SharesOf(tx, other).Uint64())
		require.EqualValues(t, 500, e.usdc.BalanceOf(tx, other).Uint64())
		return nil
	})
}
