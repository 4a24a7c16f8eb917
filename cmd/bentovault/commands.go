package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/bentousd/bento-vault/chain"
	"github.com/bentousd/bento-vault/config"
	"github.com/bentousd/bento-vault/dump"
	"github.com/bentousd/bento-vault/token"
	"github.com/bentousd/bento-vault/vault"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/spf13/cobra"
)

func (a *app) symbol(h util.Uint160) (string, uint8) {
	for sym, t := range a.env.Tokens {
		if t.Hash().Equals(h) {
			return sym, t.Decimals()
		}
	}
	return h.StringLE(), 0
}

// approve sets allowance of the vault to spend the owner tokens.
func (a *app) approve(ctx context.Context, t token.Fungible, amount *uint256.Int) error {
	_, err := a.chain.Invoke(ctx, a.env.Owner, func(tx *chain.Tx) error {
		return t.Approve(tx, a.env.Vault.Hash(), amount)
	})
	if err != nil {
		return fmt.Errorf("approve %s: %w", t.Symbol(), err)
	}
	return nil
}

// assetAmounts renders per-asset amounts in the vault asset order.
func (a *app) assetAmounts(ctx context.Context, amounts []*uint256.Int) (map[string]string, error) {
	var assets []util.Uint160

	err := a.env.Vault.View(ctx, func(tx *chain.Tx, c *vault.Core) error {
		var err error
		assets, err = c.AllAssets(tx, a.env.Vault.Hash())
		return err
	})
	if err != nil {
		return nil, err
	}

	res := make(map[string]string, len(assets))
	for i := range assets {
		sym, dec := a.symbol(assets[i])
		res[sym] = formatAmount(amounts[i], dec)
	}

	return res, nil
}

func deployCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the environment and print contract addresses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, f, false, func(_ context.Context, a *app) error {
				contracts := make(map[string]string)
				for _, info := range a.chain.Contracts() {
					contracts[info.Name] = info.Hash.StringLE()
				}
				return printYAML(cmd.OutOrStdout(), map[string]any{
					"owner":     a.env.Owner.StringLE(),
					"vault":     a.env.Vault.Hash().StringLE(),
					"contracts": contracts,
				})
			})
		},
	}
}

type assetView struct {
	Symbol     string `yaml:"symbol"`
	Weight     uint64 `yaml:"weight"`
	Strategy   string `yaml:"strategy,omitempty"`
	Idle       string `yaml:"idle"`
	Deposited  string `yaml:"deposited,omitempty"`
	Underlying string `yaml:"underlying,omitempty"`
	Pending    string `yaml:"pending,omitempty"`
	Claimable  string `yaml:"claimable,omitempty"`
	Price      string `yaml:"price,omitempty"`
	PriceError string `yaml:"price_error,omitempty"`
	Value      string `yaml:"value,omitempty"`
}

type reportView struct {
	Vault       string      `yaml:"vault"`
	Version     int         `yaml:"version"`
	Owner       string      `yaml:"owner"`
	TotalWeight uint64      `yaml:"total_weight"`
	Supply      string      `yaml:"supply"`
	TotalValue  string      `yaml:"total_value"`
	Assets      []assetView `yaml:"assets"`
}

func newReportView(r vault.Report) reportView {
	res := reportView{
		Vault:       r.Self.StringLE(),
		Version:     r.Version,
		Owner:       r.Owner.StringLE(),
		TotalWeight: r.TotalWeight,
		Supply:      formatStable(r.Supply),
		TotalValue:  formatStable(r.TotalValue),
		Assets:      make([]assetView, len(r.Assets)),
	}

	for i, ar := range r.Assets {
		dec := ar.Info.Decimals
		v := assetView{
			Symbol:     ar.Symbol,
			Weight:     ar.Info.Weight,
			Idle:       formatAmount(ar.Idle, dec),
			Price:      formatStable(ar.Price),
			PriceError: ar.PriceError,
			Value:      formatStable(ar.Value),
		}
		if ar.Info.HasStrategy() {
			v.Strategy = ar.Info.StrategyKind.String()
			v.Deposited = formatAmount(ar.Position.UnderlyingDeposited, dec)
			v.Underlying = formatAmount(ar.Underlying, dec)
			v.Pending = formatAmount(ar.Pending, dec)
			v.Claimable = formatAmount(ar.Claimable, dec)
		}
		res.Assets[i] = v
	}

	return res
}

func inspectCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Print the vault state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, f, false, func(ctx context.Context, a *app) error {
				r, err := a.env.Vault.Inspect(ctx)
				if err != nil {
					return err
				}
				return printYAML(cmd.OutOrStdout(), newReportView(r))
			})
		},
	}
}

func quoteCmd(f *rootFlags) *cobra.Command {
	var slippage uint16

	cmd := &cobra.Command{
		Use:   "quote <src> <dst> <amount>",
		Short: "Quote a swap on the aggregation router",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, f, false, func(ctx context.Context, a *app) error {
				src, err := a.env.Token(args[0])
				if err != nil {
					return err
				}
				dst, err := a.env.Token(args[1])
				if err != nil {
					return err
				}

				if !cmd.Flags().Changed("slippage") {
					slippage = a.cfg.Swap.SlippageBps
				}

				amount, err := parseAmountOf(src, args[2])
				if err != nil {
					return err
				}

				return a.chain.View(ctx, func(tx *chain.Tx) error {
					q, err := a.env.Quoter.Quote(tx, src.Hash(), dst.Hash(), amount, slippage)
					if err != nil {
						return err
					}
					return printYAML(cmd.OutOrStdout(), map[string]string{
						"router":     q.Router.StringLE(),
						"expected":   formatAmount(q.Expected, dst.Decimals()),
						"min_return": formatAmount(q.MinReturn, dst.Decimals()),
						"slippage":   bpsString(slippage),
						"fee":        bpsString(a.env.Router.Fee(tx)),
					})
				})
			})
		},
	}

	cmd.Flags().Uint16Var(&slippage, "slippage", 0, "Tolerated slippage in basis points, configured one by default")

	return cmd
}

func mintCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint BentoUSD by the owner",
	}

	var minOut string

	basket := &cobra.Command{
		Use:   "basket <value>",
		Short: "Deposit the weighted basket worth the USD value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, f, false, func(ctx context.Context, a *app) error {
				value, err := parseStable(args[0])
				if err != nil {
					return err
				}
				minimum, err := parseStable(minOut)
				if err != nil {
					return err
				}

				amounts, _, err := a.env.Vault.GetDepositAssetAmounts(ctx, value)
				if err != nil {
					return err
				}
				if err = a.approveBasket(ctx, amounts); err != nil {
					return err
				}

				minted, err := a.env.Vault.MintBasket(ctx, a.env.Owner, value, minimum)
				if err != nil {
					return err
				}

				deposited, err := a.assetAmounts(ctx, amounts)
				if err != nil {
					return err
				}

				return printYAML(cmd.OutOrStdout(), map[string]any{
					"minted":    formatStable(minted),
					"deposited": deposited,
				})
			})
		},
	}
	basket.Flags().StringVar(&minOut, "min", "0", "Minimum BentoUSD to mint")

	var (
		oneMin   string
		slippage uint16
	)

	one := &cobra.Command{
		Use:   "one <token> <amount>",
		Short: "Deposit a single asset swapped into the basket",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, f, false, func(ctx context.Context, a *app) error {
				src, err := a.env.Token(args[0])
				if err != nil {
					return err
				}
				amount, err := parseAmountOf(src, args[1])
				if err != nil {
					return err
				}
				minimum, err := parseStable(oneMin)
				if err != nil {
					return err
				}

				if !cmd.Flags().Changed("slippage") {
					slippage = a.cfg.Swap.SlippageBps
				}

				routers, data, err := a.env.OneTokenRoute(ctx, src.Hash(), amount, slippage)
				if err != nil {
					return err
				}
				if err = a.approve(ctx, src, amount); err != nil {
					return err
				}

				minted, err := a.env.Vault.MintWithOneToken(ctx, a.env.Owner, src.Hash(), amount, minimum, routers, data)
				if err != nil {
					return err
				}

				return printYAML(cmd.OutOrStdout(), map[string]string{
					"minted": formatStable(minted),
				})
			})
		},
	}
	one.Flags().StringVar(&oneMin, "min", "0", "Minimum BentoUSD to mint")
	one.Flags().Uint16Var(&slippage, "slippage", 0, "Tolerated swap slippage in basis points, configured one by default")

	cmd.AddCommand(basket, one)

	return cmd
}

func (a *app) approveBasket(ctx context.Context, amounts []*uint256.Int) error {
	var assets []util.Uint160

	err := a.env.Vault.View(ctx, func(tx *chain.Tx, c *vault.Core) error {
		var err error
		assets, err = c.AllAssets(tx, a.env.Vault.Hash())
		return err
	})
	if err != nil {
		return err
	}

	for i := range assets {
		if amounts[i].IsZero() {
			continue
		}
		t, err := a.env.Token(assets[i].StringLE())
		if err != nil {
			return err
		}
		if err = a.approve(ctx, t, amounts[i]); err != nil {
			return err
		}
	}

	return nil
}

func redeemCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "redeem <amount>",
		Short: "Burn owner BentoUSD for the basket of collateral",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, f, false, func(ctx context.Context, a *app) error {
				amount, err := parseStable(args[0])
				if err != nil {
					return err
				}
				if err = a.approve(ctx, a.env.BentoUSD, amount); err != nil {
					return err
				}

				amounts, err := a.env.Vault.RedeemLTBasket(ctx, a.env.Owner, amount)
				if err != nil {
					return err
				}

				received, err := a.assetAmounts(ctx, amounts)
				if err != nil {
					return err
				}

				return printYAML(cmd.OutOrStdout(), map[string]any{
					"burnt":    formatStable(amount),
					"received": received,
				})
			})
		},
	}
}

func allocateCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "allocate",
		Short: "Move idle collateral into the strategies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, f, false, func(ctx context.Context, a *app) error {
				amounts, err := a.env.Vault.Allocate(ctx, a.env.Owner)
				if err != nil {
					return err
				}

				allocated, err := a.assetAmounts(ctx, amounts)
				if err != nil {
					return err
				}

				return printYAML(cmd.OutOrStdout(), map[string]any{"allocated": allocated})
			})
		},
	}
}

func unstakeCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unstake",
		Short: "Manage withdrawals from staking strategies",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "request <token> <amount>",
		Short: "Start cooldown of the staked assets",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, f, false, func(ctx context.Context, a *app) error {
				t, err := a.env.Token(args[0])
				if err != nil {
					return err
				}
				amount, err := parseAmountOf(t, args[1])
				if err != nil {
					return err
				}

				req, err := a.env.Vault.RequestUnstake(ctx, a.env.Owner, t.Hash(), amount)
				if err != nil {
					return err
				}

				return printYAML(cmd.OutOrStdout(), map[string]string{
					"id":           req.ID,
					"assets":       formatAmount(req.Assets, t.Decimals()),
					"cooldown_end": req.CooldownEnd.UTC().Format(time.RFC3339),
				})
			})
		},
	}, &cobra.Command{
		Use:   "claim <token>",
		Short: "Claim matured unstake requests into the vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, f, false, func(ctx context.Context, a *app) error {
				t, err := a.env.Token(args[0])
				if err != nil {
					return err
				}

				claimed, err := a.env.Vault.ClaimUnstake(ctx, a.env.Owner, t.Hash())
				if err != nil {
					return err
				}

				return printYAML(cmd.OutOrStdout(), map[string]string{
					"claimed": formatAmount(claimed, t.Decimals()),
				})
			})
		},
	})

	return cmd
}

func dumpCmd(f *rootFlags) *cobra.Command {
	var dir, label string

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Dump storages of all contracts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return fmt.Errorf("create dump directory: %w", err)
			}

			return withApp(cmd, f, false, func(_ context.Context, a *app) error {
				id, err := dump.Save(a.chain, dir, label)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "state dumped to %s as %s\n", dir, id)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "testdata", "Dump directory")
	cmd.Flags().StringVar(&label, "label", "local", "Label of the environment")

	return cmd
}

func restoreCmd(f *rootFlags) *cobra.Command {
	var dir, label string

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore storages of the contracts from the latest dump with the label",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, f, true, func(_ context.Context, a *app) error {
				var ids []dump.ID

				err := dump.IterateDumps(dir, func(id dump.ID, _ *dump.Reader) error {
					if id.Label == label {
						ids = append(ids, id)
					}
					return nil
				})
				if err != nil {
					return err
				}
				if len(ids) == 0 {
					return fmt.Errorf("no dumps labeled %q in %s", label, dir)
				}

				sort.Slice(ids, func(i, j int) bool { return ids[i].Height < ids[j].Height })
				latest := ids[len(ids)-1]

				r, err := dump.Open(dir, latest)
				if err != nil {
					return err
				}
				if err = dump.Restore(a.chain, r); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "state restored from %s\n", latest)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "testdata", "Dump directory")
	cmd.Flags().StringVar(&label, "label", "local", "Label of the environment")

	return cmd
}

func parseAmountOf(t token.Fungible, s string) (*uint256.Int, error) {
	v, err := config.ParseAmount(s, t.Decimals())
	if err != nil {
		return nil, fmt.Errorf("%s amount: %w", t.Symbol(), err)
	}
	return v, nil
}
