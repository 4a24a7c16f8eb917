/*
Package bentousd implements BentoUSD stable token.

BentoUSD is issued and destroyed exclusively by the registered vault. Vault
address is assigned by the token owner. Burning requires the holder to
approve the vault for the burnt amount beforehand.

Besides notifications of the token package, BentoUSD produces VaultChanged
notification:

	VaultChanged:
	  - name: vault
	    type: Hash160
*/
package bentousd

import (
	"github.com/bentousd/bento-vault/chain"
	"github.com/bentousd/bento-vault/common"
	"github.com/bentousd/bento-vault/token"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
)

const (
	// Symbol of the stable token.
	Symbol = "BentoUSD"
	// Decimals of the stable token.
	Decimals = 18
)

// Token is BentoUSD stable token.
type Token struct {
	*token.Token
}

// New returns BentoUSD located at the given address.
func New(hash util.Uint160) *Token {
	return &Token{Token: token.New(hash, Symbol, Decimals)}
}

// Vault returns address of the vault allowed to mint and burn.
func (t *Token) Vault(tx *chain.Tx) util.Uint160 {
	return t.Minter(tx)
}

// SetVault assigns the vault. Can be invoked only by the token owner.
//
// Produces VaultChanged notification.
func (t *Token) SetVault(tx *chain.Tx, vault util.Uint160) error {
	if err := t.SetMinter(tx, vault); err != nil {
		return err
	}

	tx.Notify(t.Hash(), "VaultChanged", stackitem.NewByteArray(vault.BytesBE()))

	return nil
}

// Mint issues BentoUSD to the recipient. Can be invoked only by the vault.
func (t *Token) Mint(tx *chain.Tx, to util.Uint160, amount *uint256.Int) error {
	return t.Token.Mint(tx, to, amount, tx.IDBytes())
}

// Burn destroys BentoUSD of the holder spending the vault allowance. Can be
// invoked only by the vault.
func (t *Token) Burn(tx *chain.Tx, from util.Uint160, amount *uint256.Int) error {
	if err := common.CheckWitness(tx.Caller(), t.Vault(tx), "vault"); err != nil {
		return err
	}

	if err := t.SpendAllowance(tx, from, tx.Caller(), amount); err != nil {
		return err
	}

	return t.Token.Burn(tx, from, amount, tx.IDBytes())
}
