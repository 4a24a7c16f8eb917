package vault

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/bentousd/bento-vault/bentousd"
	"github.com/bentousd/bento-vault/chain"
	"github.com/bentousd/bento-vault/common"
	"github.com/bentousd/bento-vault/oracle"
	"github.com/bentousd/bento-vault/proxy"
	"github.com/bentousd/bento-vault/sharevault"
	"github.com/bentousd/bento-vault/strategy"
	"github.com/bentousd/bento-vault/swap"
	"github.com/bentousd/bento-vault/token"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const stakingCooldown = 7 * 24 * time.Hour

var (
	owner     = util.Uint160{0xaa}
	depositor = util.Uint160{0x01}
)

type env struct {
	chain  *chain.Chain
	clock  *chain.ManualClock
	reg    *prometheus.Registry
	vault  *Vault
	proxy  *proxy.Proxy
	stable *bentousd.Token
	router *swap.AggregationRouter
	feeds  map[util.Uint160]*oracle.MockAggregator

	usdc, usde, usdt, dai *token.Token
	susde, sdai           *sharevault.Vault
}

// newEnv deploys the vault with USDC, USDe, USDT and DAI weighted
// 375/250/125/250. USDe is staked with cooldown, DAI is invested into a
// share vault, stablecoins have no strategy. All prices are 1.00.
func newEnv(t *testing.T) *env {
	clock := chain.NewManualClock(time.Unix(1_700_000_000, 0))
	e := &env{
		chain: chain.New(chain.Prm{Clock: clock, Logger: zaptest.NewLogger(t)}),
		clock: clock,
		reg:   prometheus.NewRegistry(),
		feeds: make(map[util.Uint160]*oracle.MockAggregator),
		usdc:  token.New(chain.ContractHash(owner, "USDC"), "USDC", 6),
		usde:  token.New(chain.ContractHash(owner, "USDe"), "USDe", 18),
		usdt:  token.New(chain.ContractHash(owner, "USDT"), "USDT", 6),
		dai:   token.New(chain.ContractHash(owner, "DAI"), "DAI", 18),
	}
	e.susde = sharevault.New(chain.ContractHash(owner, "sUSDe"), "sUSDe", e.usde, stakingCooldown)
	e.sdai = sharevault.New(chain.ContractHash(owner, "sDAI"), "sDAI", e.dai, 0)
	e.stable = bentousd.New(chain.ContractHash(owner, bentousd.Symbol))
	e.router = swap.NewAggregationRouter(chain.ContractHash(owner, "router"))
	e.proxy = proxy.New(chain.ContractHash(owner, "vault"))

	prices := oracle.New(chain.ContractHash(owner, "oracle"))
	core := NewCore(chain.ContractHash(owner, "vault-v1"), common.PrevVersion)

	for name, c := range map[string]any{
		"sUSDe": e.susde, "sDAI": e.sdai, bentousd.Symbol: e.stable, "router": e.router,
		"vault": e.proxy, "oracle": prices, "vault-v1": core,
	} {
		require.NoError(t, e.chain.Register(chain.ContractHash(owner, name), name, c))
	}

	for _, tok := range e.tokens() {
		require.NoError(t, e.chain.Register(tok.Hash(), tok.Symbol(), tok))

		agg := oracle.NewMockAggregator(chain.ContractHash(owner, "feed-"+tok.Symbol()))
		require.NoError(t, e.chain.Register(agg.Hash(), "feed-"+tok.Symbol(), agg))
		e.feeds[tok.Hash()] = agg
	}

	var err error
	e.vault, err = New(Prm{Chain: e.chain, Proxy: e.proxy, Registerer: e.reg, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	e.invoke(t, owner, func(tx *chain.Tx) error {
		for _, d := range []interface {
			Deploy(*chain.Tx, util.Uint160) error
		}{e.usdc, e.usde, e.usdt, e.dai, e.susde, e.sdai, e.stable, prices} {
			if err := d.Deploy(tx, owner); err != nil {
				return err
			}
		}

		for _, tok := range e.tokens() {
			agg := e.feeds[tok.Hash()]
			if err := agg.Deploy(tx, owner); err != nil {
				return err
			}
			if err := agg.SetAnswer(tx, big.NewInt(1_0000_0000)); err != nil {
				return err
			}
			err := prices.AddFeed(tx, tok.Hash(), oracle.Feed{Aggregator: agg.Hash(), MaxStaleness: 30 * 24 * time.Hour, Decimals: 8})
			if err != nil {
				return err
			}

			if err = tok.Mint(tx, depositor, units(1_000_000, tok.Decimals()), nil); err != nil {
				return err
			}
			if err = tok.Mint(tx, e.router.Hash(), units(1_000_000, tok.Decimals()), nil); err != nil {
				return err
			}
		}

		if err := e.router.Deploy(tx, owner, prices.Hash()); err != nil {
			return err
		}
		if err := e.stable.SetVault(tx, e.proxy.Hash()); err != nil {
			return err
		}

		return e.proxy.Deploy(tx, owner, core.Hash(), []any{owner}, 0)
	})

	e.admin(t, func(tx *chain.Tx, c *Core, self util.Uint160) error {
		if err := c.SetBentoUSD(tx, self, e.stable.Hash()); err != nil {
			return err
		}
		if err := c.SetOracleRouter(tx, self, prices.Hash()); err != nil {
			return err
		}
		if err := c.WhitelistRouter(tx, self, e.router.Hash(), true); err != nil {
			return err
		}

		for _, info := range []AssetInfo{
			{Asset: e.usdc.Hash(), Decimals: 6, Weight: 375},
			{Asset: e.usde.Hash(), Decimals: 18, Weight: 250, YieldToken: e.susde.Hash(), StrategyKind: strategy.StakingToken},
			{Asset: e.usdt.Hash(), Decimals: 6, Weight: 125},
			{Asset: e.dai.Hash(), Decimals: 18, Weight: 250, YieldToken: e.sdai.Hash(), StrategyKind: strategy.GenericVault},
		} {
			if err := c.SetAsset(tx, self, info); err != nil {
				return err
			}
		}
		return nil
	})

	return e
}

func (e *env) tokens() []*token.Token {
	return []*token.Token{e.usdc, e.usde, e.usdt, e.dai}
}

func (e *env) invoke(t *testing.T, sender util.Uint160, f func(*chain.Tx) error) {
	_, err := e.chain.Invoke(context.Background(), sender, f)
	require.NoError(t, err)
}

func (e *env) admin(t *testing.T, f func(tx *chain.Tx, c *Core, self util.Uint160) error) {
	require.NoError(t, e.adminErr(f))
}

func (e *env) adminErr(f func(tx *chain.Tx, c *Core, self util.Uint160) error) error {
	return e.vault.Invoke(context.Background(), owner, "admin", func(tx *chain.Tx, c *Core) error {
		return f(tx, c, e.vault.Hash())
	})
}

func (e *env) view(t *testing.T, f func(tx *chain.Tx, c *Core, self util.Uint160)) {
	require.NoError(t, e.vault.View(context.Background(), func(tx *chain.Tx, c *Core) error {
		f(tx, c, e.vault.Hash())
		return nil
	}))
}

func (e *env) setPrice(t *testing.T, tok *token.Token, answer int64) {
	e.invoke(t, owner, func(tx *chain.Tx) error {
		return e.feeds[tok.Hash()].SetAnswer(tx, big.NewInt(answer))
	})
}

// approveAll approves the vault for the whole depositor balance of every
// asset and BentoUSD.
func (e *env) approveAll(t *testing.T) {
	e.invoke(t, depositor, func(tx *chain.Tx) error {
		for _, tok := range append(e.tokens(), e.stable.Token) {
			if err := tok.Approve(tx, e.vault.Hash(), units(10_000_000, 18)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *env) mintBasket(t *testing.T, value string) *uint256.Int {
	e.approveAll(t)
	minted, err := e.vault.MintBasket(context.Background(), depositor, common.MustAmount(value), new(uint256.Int))
	require.NoError(t, err)
	return minted
}

func (e *env) balances(t *testing.T, account util.Uint160) []string {
	var res []string
	e.view(t, func(tx *chain.Tx, _ *Core, _ util.Uint160) {
		for _, tok := range append(e.tokens(), e.stable.Token) {
			res = append(res, tok.BalanceOf(tx, account).Dec())
		}
	})
	return res
}

func units(n uint64, decimals uint8) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), common.Pow10(decimals))
}

func decs(vs []*uint256.Int) []string {
	res := make([]string, len(vs))
	for i := range vs {
		res[i] = vs[i].Dec()
	}
	return res
}

func TestGetDepositAssetAmounts(t *testing.T) {
	e := newEnv(t)

	amounts, sum, err := e.vault.GetDepositAssetAmounts(context.Background(), units(1000, 18))
	require.NoError(t, err)
	require.Equal(t, []string{
		"375000000",
		"250000000000000000000",
		"125000000",
		"250000000000000000000",
	}, decs(amounts))
	require.Equal(t, units(1000, 18).Dec(), sum.Dec())

	e.view(t, func(tx *chain.Tx, c *Core, self util.Uint160) {
		weights, err := c.Weights(tx, self)
		require.NoError(t, err)
		require.Equal(t, []uint64{375, 250, 125, 250}, weights)
		require.EqualValues(t, 1000, c.TotalWeight(tx, self))
	})
}

func TestRounding(t *testing.T) {
	e := newEnv(t)
	e.setPrice(t, e.usdt, 1_0100_0000)

	amounts, sum, err := e.vault.GetDepositAssetAmounts(context.Background(), units(1000, 18))
	require.NoError(t, err)
	// 125 / 1.01 = 123.762376237... is truncated to 6 decimals
	require.Equal(t, "123762376", amounts[2].Dec())
	require.Equal(t, "999999999760000000000", sum.Dec())

	// dust is at most one native unit per asset
	bound := common.MustAmount("4040000000000")

	for _, v := range []string{
		"1",
		"999999",
		"1000000000000000001",
		"333333333333333333333",
		"1000000000000000000000",
		"123456789012345678901234",
	} {
		t.Run(v, func(t *testing.T) {
			value := common.MustAmount(v)

			_, sum, err := e.vault.GetDepositAssetAmounts(context.Background(), value)
			require.NoError(t, err)
			require.False(t, sum.Gt(value), "minted value exceeds deposit value")
			require.True(t, new(uint256.Int).Sub(value, sum).Lt(bound))
		})
	}

	minted := e.mintBasket(t, "1000000000000000000000")
	require.Equal(t, "999999999760000000000", minted.Dec())
}

func TestMintRedeemRoundTrip(t *testing.T) {
	e := newEnv(t)
	initial := e.balances(t, depositor)

	minted := e.mintBasket(t, "1000000000000000000000")
	require.Equal(t, units(1000, 18).Dec(), minted.Dec())

	require.Equal(t, []string{
		"375000000",
		"250000000000000000000",
		"125000000",
		"250000000000000000000",
		"0",
	}, e.balances(t, e.vault.Hash()))
	require.Equal(t, units(1000, 18).Dec(), e.balances(t, depositor)[4])

	amounts, err := e.vault.RedeemLTBasket(context.Background(), depositor, minted)
	require.NoError(t, err)
	require.Equal(t, []string{
		"375000000",
		"250000000000000000000",
		"125000000",
		"250000000000000000000",
	}, decs(amounts))

	require.Equal(t, initial, e.balances(t, depositor))
	require.Equal(t, []string{"0", "0", "0", "0", "0"}, e.balances(t, e.vault.Hash()))

	t.Run("zero amount", func(t *testing.T) {
		_, err := e.vault.MintBasket(context.Background(), depositor, new(uint256.Int), new(uint256.Int))
		require.ErrorIs(t, err, common.ErrInvalidAmount)

		_, err = e.vault.RedeemLTBasket(context.Background(), depositor, new(uint256.Int))
		require.ErrorIs(t, err, common.ErrInvalidAmount)
	})

	t.Run("burn without allowance", func(t *testing.T) {
		e.mintBasket(t, "10000000000000000000")
		e.invoke(t, depositor, func(tx *chain.Tx) error {
			return e.stable.Approve(tx, e.vault.Hash(), new(uint256.Int))
		})

		before := e.balances(t, depositor)
		_, err := e.vault.RedeemLTBasket(context.Background(), depositor, units(10, 18))
		require.ErrorIs(t, err, common.ErrInsufficientAllowance)
		require.Equal(t, before, e.balances(t, depositor))
	})
}

func TestMintBasketFailures(t *testing.T) {
	e := newEnv(t)
	initial := e.balances(t, depositor)

	t.Run("no allowance", func(t *testing.T) {
		_, err := e.vault.MintBasket(context.Background(), depositor, units(1000, 18), new(uint256.Int))
		require.ErrorIs(t, err, common.ErrInsufficientAllowance)
		require.Equal(t, initial, e.balances(t, depositor))
	})

	e.approveAll(t)

	t.Run("slippage", func(t *testing.T) {
		_, err := e.vault.MintBasket(context.Background(), depositor, units(1000, 18), common.MustAmount("1000000000000000000001"))
		require.ErrorIs(t, err, common.ErrSlippageExceeded)
		require.ErrorIs(t, err, common.ErrSlippage)
		require.Equal(t, initial, e.balances(t, depositor))
	})

	t.Run("price out of bounds", func(t *testing.T) {
		e.setPrice(t, e.dai, 1_2000_0000)
		defer e.setPrice(t, e.dai, 1_0000_0000)

		_, err := e.vault.MintBasket(context.Background(), depositor, units(1000, 18), new(uint256.Int))
		require.ErrorIs(t, err, oracle.ErrPriceOutOfBounds)
		require.ErrorIs(t, err, common.ErrOracle)
	})

	t.Run("reentrancy", func(t *testing.T) {
		e.usdc.SetTransferHook(func(tx *chain.Tx, _, to util.Uint160, _ *uint256.Int) error {
			if !to.Equals(e.vault.Hash()) {
				return nil
			}
			c, err := proxy.Current[*Core](tx, e.proxy)
			if err != nil {
				return err
			}
			_, err = c.MintBasket(tx.As(depositor), e.vault.Hash(), units(1, 18), new(uint256.Int))
			return err
		})
		defer e.usdc.SetTransferHook(nil)

		_, err := e.vault.MintBasket(context.Background(), depositor, units(1000, 18), new(uint256.Int))
		require.ErrorIs(t, err, chain.ErrReentrantCall)
		require.Equal(t, initial, e.balances(t, depositor))
	})

	t.Run("reentrancy through facade", func(t *testing.T) {
		e.usdc.SetTransferHook(func(_ *chain.Tx, _, to util.Uint160, _ *uint256.Int) error {
			if !to.Equals(e.vault.Hash()) {
				return nil
			}
			_, err := e.vault.MintBasket(context.Background(), depositor, units(1, 18), new(uint256.Int))
			return err
		})
		defer e.usdc.SetTransferHook(nil)

		done := make(chan error, 1)
		go func() {
			_, err := e.vault.MintBasket(context.Background(), depositor, units(1000, 18), new(uint256.Int))
			done <- err
		}()

		select {
		case err := <-done:
			require.ErrorIs(t, err, chain.ErrReentrantCall)
		case <-time.After(5 * time.Second):
			t.Fatal("nested mint did not return")
		}
		require.Equal(t, initial, e.balances(t, depositor))
	})
}

// badRouter pulls the source asset and pays the destination one ignoring
// call data.
type badRouter struct {
	hash     util.Uint160
	src, dst *token.Token
	pull     *uint256.Int
	pay      *uint256.Int
}

func (r *badRouter) Hash() util.Uint160 { return r.hash }

func (r *badRouter) Swap(tx *chain.Tx, _ []byte) (*uint256.Int, error) {
	self := tx.As(r.hash)
	if err := r.src.TransferFrom(self, tx.Caller(), r.hash, r.pull); err != nil {
		return nil, err
	}
	if r.pay.IsZero() {
		return r.pay, nil
	}
	return r.pay, r.dst.Transfer(self, tx.Caller(), r.pay, nil)
}

func (e *env) oneTokenArgs(amount uint64) ([]util.Uint160, [][]byte) {
	parts := []uint64{0, amount * 250 / 1000, amount * 125 / 1000, amount - amount*375/1000 - amount*250/1000 - amount*125/1000}

	routers := make([]util.Uint160, 4)
	data := make([][]byte, 4)

	for i, tok := range e.tokens() {
		if i == 0 {
			continue
		}
		routers[i] = e.router.Hash()
		data[i] = swap.CallData{
			Src:       e.usdc.Hash(),
			Dst:       tok.Hash(),
			Amount:    uint256.NewInt(parts[i]),
			MinReturn: new(uint256.Int),
			Receiver:  e.vault.Hash(),
		}.Marshal()
	}

	return routers, data
}

func TestMintWithOneToken(t *testing.T) {
	e := newEnv(t)
	e.approveAll(t)

	const deposit = 1000_000_000

	mint := func(routers []util.Uint160, data [][]byte, minOut *uint256.Int) (*uint256.Int, error) {
		return e.vault.MintWithOneToken(context.Background(), depositor, e.usdc.Hash(), uint256.NewInt(deposit), minOut, routers, data)
	}

	initial := e.balances(t, depositor)

	t.Run("length mismatch", func(t *testing.T) {
		routers, data := e.oneTokenArgs(deposit)
		_, err := mint(routers[:3], data, new(uint256.Int))
		require.ErrorIs(t, err, ErrLengthMismatch)
	})

	t.Run("not whitelisted", func(t *testing.T) {
		routers, data := e.oneTokenArgs(deposit)
		routers[2] = util.Uint160{0xee}

		_, err := mint(routers, data, new(uint256.Int))
		require.ErrorIs(t, err, ErrRouterNotWhitelisted)
		require.ErrorIs(t, err, common.ErrAuthorization)
		require.Equal(t, initial, e.balances(t, depositor))
	})

	t.Run("misbehaving router", func(t *testing.T) {
		bad := &badRouter{hash: chain.ContractHash(owner, "bad"), src: e.usdc, dst: e.usdt}
		require.NoError(t, e.chain.Register(bad.hash, "bad", bad))
		e.invoke(t, owner, func(tx *chain.Tx) error {
			return e.usdt.Mint(tx, bad.hash, units(1000, 6), nil)
		})
		e.admin(t, func(tx *chain.Tx, c *Core, self util.Uint160) error {
			return c.WhitelistRouter(tx, self, bad.hash, true)
		})

		routers, data := e.oneTokenArgs(deposit)
		routers[2] = bad.hash

		for _, tc := range []struct {
			name      string
			pull, pay uint64
			err       error
		}{
			{name: "spends less", pull: 100_000_000, pay: 125_000_000, err: ErrSwapAmountMismatch},
			{name: "pays nothing", pull: 125_000_000, pay: 0, err: ErrSwapOutputTooLow},
		} {
			t.Run(tc.name, func(t *testing.T) {
				bad.pull, bad.pay = uint256.NewInt(tc.pull), uint256.NewInt(tc.pay)

				_, err := mint(routers, data, new(uint256.Int))
				require.ErrorIs(t, err, tc.err)
				require.ErrorIs(t, err, common.ErrSlippage)
				require.Equal(t, initial, e.balances(t, depositor))
			})
		}
	})

	t.Run("router slippage", func(t *testing.T) {
		routers, data := e.oneTokenArgs(deposit)
		data[1] = swap.CallData{
			Src:       e.usdc.Hash(),
			Dst:       e.usde.Hash(),
			Amount:    uint256.NewInt(250_000_000),
			MinReturn: units(251, 18),
			Receiver:  e.vault.Hash(),
		}.Marshal()

		_, err := mint(routers, data, new(uint256.Int))
		require.ErrorIs(t, err, common.ErrSlippageExceeded)
	})

	t.Run("minimum output", func(t *testing.T) {
		routers, data := e.oneTokenArgs(deposit)
		_, err := mint(routers, data, common.MustAmount("1000000000000000000001"))
		require.ErrorIs(t, err, common.ErrSlippageExceeded)
		require.Equal(t, initial, e.balances(t, depositor))
	})

	t.Run("unknown asset", func(t *testing.T) {
		routers, data := e.oneTokenArgs(deposit)
		_, err := e.vault.MintWithOneToken(context.Background(), depositor, e.sdai.Hash(), uint256.NewInt(deposit),
			new(uint256.Int), routers, data)
		require.ErrorIs(t, err, ErrAssetNotSupported)
	})

	routers, data := e.oneTokenArgs(deposit)
	minted, err := mint(routers, data, units(1000, 18))
	require.NoError(t, err)
	require.Equal(t, units(1000, 18).Dec(), minted.Dec())

	require.Equal(t, []string{
		"375000000",
		"250000000000000000000",
		"125000000",
		"250000000000000000000",
		"0",
	}, e.balances(t, e.vault.Hash()))

	e.view(t, func(tx *chain.Tx, _ *Core, self util.Uint160) {
		require.True(t, e.usdc.Allowance(tx, self, e.router.Hash()).IsZero(), "router allowance must be reset")
	})
}

func TestWeights(t *testing.T) {
	e := newEnv(t)

	t.Run("registration", func(t *testing.T) {
		for _, tc := range []struct {
			name string
			info AssetInfo
			err  error
		}{
			{name: "duplicate", info: AssetInfo{Asset: e.usdc.Hash(), Decimals: 6, Weight: 1}, err: ErrAssetAlreadySupported},
			{name: "decimals mismatch", info: AssetInfo{Asset: e.sdai.Hash(), Decimals: 6, Weight: 1}, err: ErrDecimalsMismatch},
			{name: "invalid decimals", info: AssetInfo{Asset: e.sdai.Hash(), Decimals: 19, Weight: 1}, err: ErrInvalidDecimals},
			{name: "not a token", info: AssetInfo{Asset: util.Uint160{0xee}, Decimals: 18, Weight: 1}, err: chain.ErrContractNotFound},
			{
				name: "strategy of another asset",
				info: AssetInfo{Asset: e.sdai.Hash(), Decimals: 18, Weight: 1, YieldToken: e.susde.Hash()},
				err:  ErrStrategyAssetMismatch,
			},
		} {
			t.Run(tc.name, func(t *testing.T) {
				err := e.adminErr(func(tx *chain.Tx, c *Core, self util.Uint160) error {
					return c.SetAsset(tx, self, tc.info)
				})
				require.ErrorIs(t, err, tc.err)
				require.ErrorIs(t, err, common.ErrConfiguration)
			})
		}

		_, err := e.chain.Invoke(context.Background(), depositor, func(tx *chain.Tx) error {
			c, err := proxy.Current[*Core](tx, e.proxy)
			if err != nil {
				return err
			}
			return c.ChangeAsset(tx, e.vault.Hash(), e.usdc.Hash(), 6, 1, util.Uint160{})
		})
		require.ErrorIs(t, err, common.ErrUnauthorized)
	})

	t.Run("inactive asset", func(t *testing.T) {
		e.admin(t, func(tx *chain.Tx, c *Core, self util.Uint160) error {
			return c.ChangeAsset(tx, self, e.usdt.Hash(), 6, 0, util.Uint160{})
		})

		e.view(t, func(tx *chain.Tx, c *Core, self util.Uint160) {
			require.EqualValues(t, 875, c.TotalWeight(tx, self))
		})

		amounts, sum, err := e.vault.GetDepositAssetAmounts(context.Background(), units(875, 18))
		require.NoError(t, err)
		require.Equal(t, []string{
			"375000000",
			"250000000000000000000",
			"0",
			"250000000000000000000",
		}, decs(amounts))
		require.Equal(t, units(875, 18).Dec(), sum.Dec())
	})

	t.Run("decimals mismatch on change", func(t *testing.T) {
		err := e.adminErr(func(tx *chain.Tx, c *Core, self util.Uint160) error {
			return c.ChangeAsset(tx, self, e.usdt.Hash(), 18, 125, util.Uint160{})
		})
		require.ErrorIs(t, err, ErrDecimalsMismatch)
	})

	t.Run("no active assets", func(t *testing.T) {
		e.admin(t, func(tx *chain.Tx, c *Core, self util.Uint160) error {
			infos, err := c.AssetInfos(tx, self)
			if err != nil {
				return err
			}
			for _, info := range infos {
				err = c.ChangeAsset(tx, self, info.Asset, info.Decimals, 0, info.YieldToken)
				if err != nil {
					return err
				}
			}
			return nil
		})

		_, _, err := e.vault.GetDepositAssetAmounts(context.Background(), units(1, 18))
		require.ErrorIs(t, err, ErrNoActiveAssets)
	})
}

func TestAllocate(t *testing.T) {
	e := newEnv(t)
	e.mintBasket(t, "1000000000000000000000")

	_, err := e.vault.Allocate(context.Background(), depositor)
	require.ErrorIs(t, err, common.ErrUnauthorized)

	e.admin(t, func(tx *chain.Tx, c *Core, self util.Uint160) error {
		return c.SetMinRebalanceAmount(tx, self, e.dai.Hash(), units(250, 18))
	})

	allocated, err := e.vault.Allocate(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, []string{"0", "250000000000000000000", "0", "0"}, decs(allocated))

	allocated, err = e.vault.Allocate(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, []string{"0", "0", "0", "0"}, decs(allocated), "nothing left to allocate")

	e.admin(t, func(tx *chain.Tx, c *Core, self util.Uint160) error {
		return c.SetMinRebalanceAmount(tx, self, e.dai.Hash(), new(uint256.Int))
	})

	allocated, err = e.vault.Allocate(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, []string{"0", "0", "0", "250000000000000000000"}, decs(allocated))

	e.view(t, func(tx *chain.Tx, c *Core, self util.Uint160) {
		for _, tok := range []*token.Token{e.usde, e.dai} {
			pos, err := c.Position(tx, self, tok.Hash())
			require.NoError(t, err)
			require.Equal(t, units(250, 18).Dec(), pos.UnderlyingDeposited.Dec())
			require.Equal(t, units(250, 18).Dec(), pos.SharesHeld.Dec())
			require.True(t, tok.BalanceOf(tx, self).IsZero())
		}

		require.Equal(t, units(250, 18).Dec(), e.susde.BalanceOf(tx, self).Dec())
		require.Equal(t, units(250, 18).Dec(), e.sdai.BalanceOf(tx, self).Dec())
	})

	t.Run("strategy change", func(t *testing.T) {
		err := e.adminErr(func(tx *chain.Tx, c *Core, self util.Uint160) error {
			return c.SetStrategy(tx, self, e.dai.Hash(), strategy.GenericVault, util.Uint160{})
		})
		require.ErrorIs(t, err, ErrPositionNotEmpty)
	})

	t.Run("dust after yield", func(t *testing.T) {
		e.invoke(t, depositor, func(tx *chain.Tx) error {
			if err := e.dai.Transfer(tx, e.sdai.Hash(), units(10, 18), nil); err != nil {
				return err
			}
			if err := e.dai.Transfer(tx, e.vault.Hash(), uint256.NewInt(1), nil); err != nil {
				return err
			}
			return e.usde.Transfer(tx, e.vault.Hash(), units(5, 18), nil)
		})

		allocated, err := e.vault.Allocate(context.Background(), owner)
		require.NoError(t, err)
		require.Equal(t, []string{"0", "5000000000000000000", "0", "0"}, decs(allocated))

		e.view(t, func(tx *chain.Tx, _ *Core, self util.Uint160) {
			require.Equal(t, "1", e.dai.BalanceOf(tx, self).Dec())
		})
	})
}

func TestRedeemLiquidity(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.mintBasket(t, "1000000000000000000000")
	_, err := e.vault.Allocate(ctx, owner)
	require.NoError(t, err)

	before := e.balances(t, depositor)

	_, err = e.vault.RedeemLTBasket(ctx, depositor, units(100, 18))
	require.ErrorIs(t, err, common.ErrInsufficientLiquidity)
	require.ErrorIs(t, err, common.ErrLiquidity)
	require.Equal(t, before, e.balances(t, depositor))

	t.Run("unstake of generic strategy", func(t *testing.T) {
		_, err := e.vault.RequestUnstake(ctx, owner, e.dai.Hash(), units(1, 18))
		require.ErrorIs(t, err, strategy.ErrKindMismatch)
	})

	req, err := e.vault.RequestUnstake(ctx, owner, e.usde.Hash(), units(25, 18))
	require.NoError(t, err)
	require.Equal(t, units(25, 18).Dec(), req.Assets.Dec())
	require.Equal(t, e.clock.Now().Add(stakingCooldown), req.CooldownEnd)
	require.NotEmpty(t, req.ID)

	shares, err := e.vault.GetOutputLTAmounts(ctx, units(100, 18))
	require.NoError(t, err)
	require.Equal(t, []string{
		"37500000",
		"25000000000000000000",
		"12500000",
		"25000000000000000000",
	}, decs(shares))

	_, err = e.vault.RedeemLTBasket(ctx, depositor, units(100, 18))
	require.ErrorIs(t, err, common.ErrInsufficientLiquidity, "request is not matured yet")

	e.clock.Advance(stakingCooldown)

	amounts, err := e.vault.RedeemLTBasket(ctx, depositor, units(100, 18))
	require.NoError(t, err)
	require.Equal(t, []string{
		"37500000",
		"25000000000000000000",
		"12500000",
		"25000000000000000000",
	}, decs(amounts))

	e.view(t, func(tx *chain.Tx, c *Core, self util.Uint160) {
		reqs, err := c.PendingUnstakes(tx, self, e.usde.Hash())
		require.NoError(t, err)
		require.Empty(t, reqs)

		for _, tok := range []*token.Token{e.usde, e.dai} {
			pos, err := c.Position(tx, self, tok.Hash())
			require.NoError(t, err)
			require.Equal(t, units(225, 18).Dec(), pos.SharesHeld.Dec(), tok.Symbol())
		}

		require.Equal(t, units(900, 18).Dec(), e.stable.BalanceOf(tx, depositor).Dec())
	})
}

func TestClaimUnstake(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.mintBasket(t, "1000000000000000000000")
	_, err := e.vault.Allocate(ctx, owner)
	require.NoError(t, err)

	first, err := e.vault.RequestUnstake(ctx, owner, e.usde.Hash(), units(10, 18))
	require.NoError(t, err)

	e.clock.Advance(time.Hour)

	second, err := e.vault.RequestUnstake(ctx, owner, e.usde.Hash(), units(20, 18))
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	e.view(t, func(tx *chain.Tx, c *Core, self util.Uint160) {
		reqs, err := c.PendingUnstakes(tx, self, e.usde.Hash())
		require.NoError(t, err)
		require.Len(t, reqs, 2)
		for i := range reqs {
			require.Equal(t, second.CooldownEnd, reqs[i].CooldownEnd, "cooldowns aggregate")
		}
	})

	e.clock.Advance(stakingCooldown - time.Hour)

	claimed, err := e.vault.ClaimUnstake(ctx, owner, e.usde.Hash())
	require.NoError(t, err)
	require.True(t, claimed.IsZero(), "second request is not matured")

	e.clock.Advance(time.Hour)

	claimed, err = e.vault.ClaimUnstake(ctx, owner, e.usde.Hash())
	require.NoError(t, err)
	require.Equal(t, units(30, 18).Dec(), claimed.Dec())

	e.view(t, func(tx *chain.Tx, c *Core, self util.Uint160) {
		reqs, err := c.PendingUnstakes(tx, self, e.usde.Hash())
		require.NoError(t, err)
		require.Empty(t, reqs)
		require.Equal(t, units(30, 18).Dec(), e.usde.BalanceOf(tx, self).Dec())
	})

	_, err = e.vault.ClaimUnstake(ctx, depositor, e.usde.Hash())
	require.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestUpgrade(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.mintBasket(t, "100000000000000000000")

	v2 := NewCore(chain.ContractHash(owner, "vault-v2"), common.Version)
	require.NoError(t, e.chain.Register(v2.Hash(), "vault-v2", v2))

	e.invoke(t, owner, func(tx *chain.Tx) error {
		return e.proxy.SetNewImplementation(tx, v2.Hash())
	})

	transfer := func() error {
		_, err := e.chain.Invoke(ctx, owner, func(tx *chain.Tx) error {
			return e.proxy.TransferImplementation(tx, nil)
		})
		return err
	}

	require.ErrorIs(t, transfer(), proxy.ErrTimelockNotExpired)

	e.clock.Advance(proxy.DefaultTimelock)
	require.NoError(t, transfer())

	report, err := e.vault.Inspect(ctx)
	require.NoError(t, err)
	require.Equal(t, common.Version, report.Version)
	require.Len(t, report.Assets, 4)
	require.Equal(t, units(100, 18).Dec(), report.Supply.Dec())

	e.view(t, func(tx *chain.Tx, c *Core, _ util.Uint160) {
		require.Equal(t, v2.Hash(), c.Hash())
	})

	_, err = e.vault.MintBasket(ctx, depositor, units(100, 18), units(100, 18))
	require.NoError(t, err)

	t.Run("repeated upgrade", func(t *testing.T) {
		e.invoke(t, owner, func(tx *chain.Tx) error {
			return e.proxy.SetNewImplementation(tx, v2.Hash())
		})
		e.clock.Advance(proxy.DefaultTimelock)
		require.ErrorIs(t, transfer(), common.ErrAlreadyUpdated)
	})
}

func TestInspect(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.mintBasket(t, "1000000000000000000000")
	_, err := e.vault.Allocate(ctx, owner)
	require.NoError(t, err)
	_, err = e.vault.RequestUnstake(ctx, owner, e.usde.Hash(), units(50, 18))
	require.NoError(t, err)

	report, err := e.vault.Inspect(ctx)
	require.NoError(t, err)
	require.Equal(t, owner, report.Owner)
	require.Equal(t, e.stable.Hash(), report.BentoUSD)
	require.Equal(t, common.PrevVersion, report.Version)
	require.EqualValues(t, 1000, report.TotalWeight)
	require.Equal(t, units(1000, 18).Dec(), report.TotalValue.Dec())
	require.Equal(t, units(1000, 18).Dec(), report.Supply.Dec())

	usde := report.Assets[1]
	require.Equal(t, "USDe", usde.Symbol)
	require.True(t, usde.Idle.IsZero())
	require.Equal(t, units(200, 18).Dec(), usde.Underlying.Dec())
	require.Equal(t, units(50, 18).Dec(), usde.Pending.Dec())
	require.True(t, usde.Claimable.IsZero())
	require.Len(t, usde.Requests, 1)

	e.clock.Advance(stakingCooldown)

	report, err = e.vault.Inspect(ctx)
	require.NoError(t, err)
	require.Equal(t, units(50, 18).Dec(), report.Assets[1].Claimable.Dec())

	e.setPrice(t, e.dai, 2_0000_0000)

	report, err = e.vault.Inspect(ctx)
	require.NoError(t, err)
	require.Nil(t, report.Assets[3].Price)
	require.NotEmpty(t, report.Assets[3].PriceError)
	require.Equal(t, units(750, 18).Dec(), report.TotalValue.Dec())
}

func TestMetrics(t *testing.T) {
	e := newEnv(t)

	e.mintBasket(t, "1000000000000000000000")

	_, err := e.vault.MintBasket(context.Background(), depositor, units(1, 18), units(2, 18))
	require.ErrorIs(t, err, common.ErrSlippageExceeded)

	_, err = e.vault.RedeemLTBasket(context.Background(), depositor, units(400, 18))
	require.NoError(t, err)

	m := e.vault.metrics
	require.EqualValues(t, 1, testutil.ToFloat64(m.ops.WithLabelValues("mint_basket", "ok")))
	require.EqualValues(t, 1, testutil.ToFloat64(m.ops.WithLabelValues("mint_basket", "error")))
	require.EqualValues(t, 1, testutil.ToFloat64(m.ops.WithLabelValues("redeem", "ok")))
	require.EqualValues(t, 1000, testutil.ToFloat64(m.minted))
	require.EqualValues(t, 400, testutil.ToFloat64(m.burnt))
	require.EqualValues(t, 600, testutil.ToFloat64(m.supply))

	_, err = New(Prm{Chain: e.chain, Proxy: e.proxy, Registerer: e.reg})
	require.Error(t, err, "metrics are already registered")
}
