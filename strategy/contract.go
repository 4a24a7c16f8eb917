package strategy

import (
	"fmt"

	"github.com/bentousd/bento-vault/chain"
	"github.com/bentousd/bento-vault/common"
	"github.com/bentousd/bento-vault/sharevault"
	"github.com/bentousd/bento-vault/token"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

const (
	contractOwnerKey   = "o"
	contractSharesKey  = "s"
	contractHolderPref = "h"
)

// Contract is a GenericVault adapter deployed as a standalone contract. It
// pools deposits of its holders in the share vault and keeps holder shares
// in its own ledger. Vault assets refer to Contract by its address.
type Contract struct {
	hash util.Uint160
	v    *sharevault.Vault
}

// NewContract returns Contract located at the given address investing into
// the share vault.
func NewContract(hash util.Uint160, v *sharevault.Vault) *Contract {
	return &Contract{hash: hash, v: v}
}

// Hash returns address of the contract.
func (c *Contract) Hash() util.Uint160 { return c.hash }

// Deploy initializes contract storage. Repeated calls do nothing.
func (c *Contract) Deploy(tx *chain.Tx, owner util.Uint160) error {
	s := tx.Storage(c.hash)
	if s.Get([]byte(contractOwnerKey)) == nil {
		s.PutUint160([]byte(contractOwnerKey), owner)
	}
	return nil
}

func (c *Contract) Kind() Kind               { return GenericVault }
func (c *Contract) Asset() util.Uint160      { return c.v.Asset() }
func (c *Contract) ShareToken() util.Uint160 { return c.v.Hash() }
func (c *Contract) Spender() util.Uint160    { return c.hash }

// SharesOf returns shares held on behalf of the holder.
func (c *Contract) SharesOf(tx *chain.Tx, holder util.Uint160) *uint256.Int {
	return tx.Storage(c.hash).GetAmount(holderKey(holder))
}

func (c *Contract) Deposit(tx *chain.Tx, assets *uint256.Int) (*uint256.Int, error) {
	asset, err := chain.Lookup[token.Fungible](tx.Chain(), c.v.Asset())
	if err != nil {
		return nil, err
	}

	holder := tx.Caller()
	self := tx.As(c.hash)

	if err = asset.TransferFrom(self, holder, c.hash, assets); err != nil {
		return nil, fmt.Errorf("pull deposit: %w", err)
	}

	if err = asset.Approve(self, c.v.Hash(), assets); err != nil {
		return nil, err
	}

	shares, err := c.v.Deposit(self, assets, c.hash)
	if err != nil {
		return nil, err
	}

	if err = c.credit(tx, holder, shares); err != nil {
		return nil, err
	}

	return shares, nil
}

func (c *Contract) Withdraw(tx *chain.Tx, assets *uint256.Int, receiver util.Uint160) (*uint256.Int, error) {
	holder := tx.Caller()

	shares, err := c.v.PreviewWithdraw(tx, assets)
	if err != nil {
		return nil, err
	}

	if held := c.SharesOf(tx, holder); held.Lt(shares) {
		return nil, fmt.Errorf("%s shares held, %s required: %w", held.Dec(), shares.Dec(), common.ErrInsufficientLiquidity)
	}

	if shares, err = c.v.Withdraw(tx.As(c.hash), assets, receiver, c.hash); err != nil {
		return nil, err
	}

	if err = c.debit(tx, holder, shares); err != nil {
		return nil, err
	}

	return shares, nil
}

func (c *Contract) TotalUnderlying(tx *chain.Tx, holder util.Uint160) (*uint256.Int, error) {
	return c.v.ConvertToAssets(tx, c.SharesOf(tx, holder))
}

func (c *Contract) ConvertToShares(tx *chain.Tx, assets *uint256.Int) (*uint256.Int, error) {
	return c.v.ConvertToShares(tx, assets)
}

func (c *Contract) ConvertToAssets(tx *chain.Tx, shares *uint256.Int) (*uint256.Int, error) {
	return c.v.ConvertToAssets(tx, shares)
}

func (c *Contract) credit(tx *chain.Tx, holder util.Uint160, shares *uint256.Int) error {
	s := tx.Storage(c.hash)

	held, err := common.Add(s.GetAmount(holderKey(holder)), shares)
	if err != nil {
		return err
	}
	total, err := common.Add(s.GetAmount([]byte(contractSharesKey)), shares)
	if err != nil {
		return err
	}

	s.PutAmount(holderKey(holder), held)
	s.PutAmount([]byte(contractSharesKey), total)

	return nil
}

func (c *Contract) debit(tx *chain.Tx, holder util.Uint160, shares *uint256.Int) error {
	s := tx.Storage(c.hash)

	held, err := common.Sub(s.GetAmount(holderKey(holder)), shares)
	if err != nil {
		return err
	}
	total, err := common.Sub(s.GetAmount([]byte(contractSharesKey)), shares)
	if err != nil {
		return err
	}

	s.PutAmount(holderKey(holder), held)
	s.PutAmount([]byte(contractSharesKey), total)

	return nil
}

func holderKey(holder util.Uint160) []byte {
	return append([]byte(contractHolderPref), holder.BytesBE()...)
}
