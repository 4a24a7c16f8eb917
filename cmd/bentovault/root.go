package main

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/bentousd/bento-vault/bentousd"
	"github.com/bentousd/bento-vault/common"
	"github.com/bentousd/bento-vault/config"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/encoding/fixedn"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Version of the binary, set at build time.
var Version = "dev"

const appName = "bentovault"

type rootFlags struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	var f rootFlags

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Operator tool of the BentoUSD reserve vault",
		Long: `bentovault deploys the BentoUSD reserve vault environment described by
the configuration file and operates it: mints BentoUSD against the basket of
collateral assets, redeems it, allocates idle collateral into yield strategies
and reports the vault state.

Every command brings the environment up to the configuration before running,
so with BoltDB storage the state is kept between the commands.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "Config file path (YAML), built-in local environment if empty")
	cmd.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "Log level overriding the configured one (debug, info, warn, error)")

	cmd.AddCommand(
		versionCmd(),
		configCmd(),
		deployCmd(&f),
		inspectCmd(&f),
		quoteCmd(&f),
		mintCmd(&f),
		redeemCmd(&f),
		allocateCmd(&f),
		unstakeCmd(&f),
		dumpCmd(&f),
		restoreCmd(&f),
	)

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (vault logic %d)\n", appName, Version, common.Version)
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init <path>",
		Short: "Write the built-in local environment configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err == nil {
				return fmt.Errorf("file %s already exists", args[0])
			}
			if err := config.DefaultConfig().SaveToFile(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration written to %s\n", args[0])
			return nil
		},
	})

	return cmd
}

func loadConfig(f *rootFlags) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if f.configPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(f.configPath); err != nil {
			return nil, err
		}
	}

	if f.logLevel != "" {
		cfg.Logger.Level = f.logLevel
	}

	return cfg, cfg.Validate()
}

// withApp opens the environment, runs f and closes the environment.
func withApp(cmd *cobra.Command, f *rootFlags, registerOnly bool, run func(context.Context, *app) error) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.Logger.Level)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := openApp(ctx, cfg, log, registerOnly)
	if err != nil {
		return err
	}
	defer a.close()

	return run(ctx, a)
}

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return enc.Close()
}

func formatAmount(v *uint256.Int, decimals uint8) string {
	if v == nil {
		return ""
	}
	return fixedn.ToString(v.ToBig(), int(decimals))
}

func formatStable(v *uint256.Int) string {
	return formatAmount(v, bentousd.Decimals)
}

func parseStable(s string) (*uint256.Int, error) {
	return config.ParseAmount(s, bentousd.Decimals)
}

// bpsString renders basis points as a percentage.
func bpsString(bps uint16) string {
	return fixedn.ToString(big.NewInt(int64(bps)), 2) + "%"
}
