package dump

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bentousd/bento-vault/chain"
	"github.com/bentousd/bento-vault/common"
	"github.com/bentousd/bento-vault/token"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	owner  = util.Uint160{0xaa}
	holder = util.Uint160{0x01}
)

func newTokenChain(t *testing.T) (*chain.Chain, *token.Token) {
	c := chain.New(chain.Prm{Logger: zaptest.NewLogger(t)})
	usdc := token.New(chain.ContractHash(owner, "USDC"), "USDC", 6)
	require.NoError(t, c.Register(usdc.Hash(), "USDC", usdc))
	return c, usdc
}

func TestSaveRestore(t *testing.T) {
	dir := t.TempDir()

	src, usdc := newTokenChain(t)
	_, err := src.Invoke(context.Background(), owner, func(tx *chain.Tx) error {
		if err := usdc.Deploy(tx, owner); err != nil {
			return err
		}
		return usdc.Mint(tx, holder, common.Amount(1_000_000), nil)
	})
	require.NoError(t, err)

	id, err := Save(src, dir, "local")
	require.NoError(t, err)
	require.Equal(t, ID{Label: "local", Height: src.Height()}, id)

	_, err = Save(src, dir, "local")
	require.ErrorIs(t, err, os.ErrExist)

	r, err := Open(dir, id)
	require.NoError(t, err)

	ctr, ok := r.Contract("USDC")
	require.True(t, ok)
	require.Equal(t, usdc.Hash(), ctr.Hash)
	require.NotEmpty(t, ctr.Storage)

	dst, usdc2 := newTokenChain(t)
	require.NoError(t, Restore(dst, r))

	require.NoError(t, dst.View(context.Background(), func(tx *chain.Tx) error {
		require.EqualValues(t, 1_000_000, usdc2.BalanceOf(tx, holder).Uint64())
		require.Equal(t, owner, usdc2.Owner(tx))
		return nil
	}))

	t.Run("unregistered contract", func(t *testing.T) {
		empty := chain.New(chain.Prm{})
		require.ErrorIs(t, Restore(empty, r), chain.ErrContractNotFound)
	})

	t.Run("address mismatch", func(t *testing.T) {
		other := chain.New(chain.Prm{})
		usdc := token.New(util.Uint160{0x42}, "USDC", 6)
		require.NoError(t, other.Register(usdc.Hash(), "USDC", usdc))
		require.ErrorIs(t, Restore(other, r), chain.ErrUnexpectedContract)
	})
}

func TestIterateDumps(t *testing.T) {
	dir := t.TempDir()

	c, _ := newTokenChain(t)
	_, err := Save(c, dir, "a")
	require.NoError(t, err)
	_, err = Save(c, dir, "b")
	require.NoError(t, err)

	var ids []ID
	require.NoError(t, IterateDumps(dir, func(id ID, r *Reader) error {
		ids = append(ids, id)
		require.Len(t, r.Contracts(), 1)
		return nil
	}))
	require.ElementsMatch(t, []ID{{Label: "a"}, {Label: "b"}}, ids)

	require.NoError(t, IterateDumps(filepath.Join(dir, "missing"), func(ID, *Reader) error {
		t.Fatal("no dumps expected")
		return nil
	}))

	t.Run("corrupted storage", func(t *testing.T) {
		dir := t.TempDir()
		id := ID{Label: "x", Height: 1}

		require.NoError(t, os.WriteFile(dumpPath(dir, id, contractsSuffix), []byte(`[{"name":"USDC","hash":"`+util.Uint160{}.StringLE()+`"}]`), 0600))
		require.NoError(t, os.WriteFile(dumpPath(dir, id, storageFileSuffix), []byte("NNS,AA==,AA==\n"), 0600))

		_, err := Open(dir, id)
		require.ErrorContains(t, err, "unknown contract")
	})
}

func TestID(t *testing.T) {
	for _, tc := range []struct {
		in  string
		exp ID
		err bool
	}{
		{in: "local-12-contracts.json", exp: ID{Label: "local", Height: 12}},
		{in: "local-0", exp: ID{Label: "local"}},
		{in: "local", err: true},
		{in: "-1-storage.csv", err: true},
		{in: "local-x-storage.csv", err: true},
	} {
		t.Run(tc.in, func(t *testing.T) {
			var id ID
			err := id.decodeString(tc.in)
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.exp, id)
		})
	}

	require.Equal(t, "mainnet-100", ID{Label: "mainnet", Height: 100}.String())
}
