package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bentousd/bento-vault/config"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer

	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SilenceErrors = true
	cmd.SetArgs(append(args, "--log-level", "error"))

	err := cmd.Execute()
	return out.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	out, err := execute(t, args...)
	require.NoError(t, err, out)
	return out
}

func outputLine(t *testing.T, out, prefix string) string {
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, prefix) {
			return line
		}
	}
	t.Fatalf("no %q line in output:\n%s", prefix, out)
	return ""
}

func boltConfig(t *testing.T, dir, name string) string {
	cfg := config.DefaultConfig()
	cfg.Storage = config.StorageConfig{Type: config.StorageBoltDB, Path: filepath.Join(dir, name+".db")}

	path := filepath.Join(dir, name+".yml")
	require.NoError(t, cfg.SaveToFile(path))

	return path
}

func TestVersion(t *testing.T) {
	out := mustExecute(t, "version")
	require.Contains(t, out, "bentovault version "+Version)
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")

	mustExecute(t, "config", "init", path)

	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, config.DefaultConfig(), cfg)

	_, err = execute(t, "config", "init", path)
	require.ErrorContains(t, err, "already exists")
}

func TestCommands(t *testing.T) {
	out := mustExecute(t, "deploy")
	require.Contains(t, out, "vault-core:")
	require.Contains(t, out, "BentoUSD+:")

	out = mustExecute(t, "inspect")
	require.Equal(t, "total_weight: 1000", outputLine(t, out, "total_weight:"))
	require.Contains(t, out, "symbol: USDe")
	require.Contains(t, out, "strategy: staking_token")

	out = mustExecute(t, "quote", "USDC", "USDT", "100", "--slippage", "100")
	require.Equal(t, `expected: "100"`, outputLine(t, out, "expected:"))
	require.Equal(t, `min_return: "99"`, outputLine(t, out, "min_return:"))
	require.Equal(t, "slippage: 1%", outputLine(t, out, "slippage:"))

	out = mustExecute(t, "mint", "basket", "100")
	require.Contains(t, out, "minted:")
	require.Equal(t, `  USDC: "37.5"`, outputLine(t, out, "  USDC:"))

	out = mustExecute(t, "mint", "one", "USDC", "100", "--min", "99")
	require.Contains(t, out, "minted:")

	t.Run("unknown token", func(t *testing.T) {
		_, err := execute(t, "quote", "USDC", "FRAX", "1")
		require.ErrorContains(t, err, "unknown token")
	})

	t.Run("slippage", func(t *testing.T) {
		_, err := execute(t, "mint", "basket", "100", "--min", "101")
		require.Error(t, err)
	})

	t.Run("redeem without balance", func(t *testing.T) {
		_, err := execute(t, "redeem", "1")
		require.Error(t, err)
	})

	t.Run("invalid log level", func(t *testing.T) {
		cmd := rootCmd()
		cmd.SilenceErrors = true
		cmd.SetOut(new(bytes.Buffer))
		cmd.SetArgs([]string{"inspect", "--log-level", "loud"})
		require.Error(t, cmd.Execute())
	})
}

func TestPersistentState(t *testing.T) {
	dir := t.TempDir()
	cfg := boltConfig(t, dir, "primary")

	mustExecute(t, "-c", cfg, "mint", "basket", "1000")
	mustExecute(t, "-c", cfg, "redeem", "100")
	mustExecute(t, "-c", cfg, "allocate")

	out := mustExecute(t, "-c", cfg, "inspect")
	supply := outputLine(t, out, "supply:")
	require.NotEqual(t, `supply: "0"`, supply)
	require.Contains(t, out, "deposited:")

	out = mustExecute(t, "-c", cfg, "unstake", "request", "USDe", "10")
	require.Contains(t, out, "cooldown_end:")

	out = mustExecute(t, "-c", cfg, "unstake", "claim", "USDe")
	require.Equal(t, `claimed: "0"`, outputLine(t, out, "claimed:"))

	dumps := filepath.Join(dir, "dumps")
	out = mustExecute(t, "-c", cfg, "dump", "--dir", dumps, "--label", "test")
	require.Contains(t, out, "state dumped")

	replica := boltConfig(t, dir, "replica")
	out = mustExecute(t, "-c", replica, "restore", "--dir", dumps, "--label", "test")
	require.Contains(t, out, "state restored")

	out = mustExecute(t, "-c", replica, "inspect")
	require.Equal(t, supply, outputLine(t, out, "supply:"))

	_, err := execute(t, "-c", replica, "restore", "--dir", dumps, "--label", "other")
	require.ErrorContains(t, err, "no dumps")
}
