package token

import (
	"fmt"
	"sync/atomic"

	"github.com/bentousd/bento-vault/chain"
	"github.com/bentousd/bento-vault/common"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
)

// Fungible is a fungible token interface used by the vault components.
type Fungible interface {
	Hash() util.Uint160
	Symbol() string
	Decimals() uint8
	TotalSupply(tx *chain.Tx) *uint256.Int
	BalanceOf(tx *chain.Tx, account util.Uint160) *uint256.Int
	Allowance(tx *chain.Tx, owner, spender util.Uint160) *uint256.Int
	// Transfer moves tokens from the caller to the recipient.
	Transfer(tx *chain.Tx, to util.Uint160, amount *uint256.Int, details []byte) error
	// TransferFrom moves tokens on behalf of the owner. Caller spends the
	// allowance given to it by the owner.
	TransferFrom(tx *chain.Tx, from, to util.Uint160, amount *uint256.Int) error
	// Approve sets amount the spender may transfer from the caller.
	Approve(tx *chain.Tx, spender util.Uint160, amount *uint256.Int) error
}

// TransferHook is called after every balance change. Returned error aborts
// the invocation.
type TransferHook func(tx *chain.Tx, from, to util.Uint160, amount *uint256.Int) error

// ErrInvalidRecipient is returned on transfers to zero address.
var ErrInvalidRecipient = common.NewError(common.ErrConfiguration, "invalid recipient")

const (
	ownerKey        = "o"
	minterKey       = "m"
	supplyKey       = "s"
	balancePrefix   = "b"
	allowancePrefix = "a"
)

// Token is a fungible token ledger. Zero address stands for the mint and burn
// side of transfers.
type Token struct {
	hash     util.Uint160
	symbol   string
	decimals uint8

	hook atomic.Pointer[TransferHook]
}

// New returns Token with the given address and metadata.
func New(hash util.Uint160, symbol string, decimals uint8) *Token {
	return &Token{
		hash:     hash,
		symbol:   symbol,
		decimals: decimals,
	}
}

// SetTransferHook sets function called after each balance change. Nil
// removes the hook. Safe to call concurrently with invocations.
func (t *Token) SetTransferHook(h TransferHook) {
	if h == nil {
		t.hook.Store(nil)
		return
	}
	t.hook.Store(&h)
}

// Hash returns address of the token.
func (t *Token) Hash() util.Uint160 { return t.hash }

// Symbol returns ticker symbol.
func (t *Token) Symbol() string { return t.symbol }

// Decimals returns precision of token amounts.
func (t *Token) Decimals() uint8 { return t.decimals }

// Deploy initializes token storage. The owner becomes the minter. Repeated
// calls do nothing.
func (t *Token) Deploy(tx *chain.Tx, owner util.Uint160) error {
	s := tx.Storage(t.hash)
	if s.Get([]byte(ownerKey)) != nil {
		return nil
	}

	s.PutUint160([]byte(ownerKey), owner)
	s.PutUint160([]byte(minterKey), owner)

	tx.Log().Debug("token initialized")

	return nil
}

// Owner returns account allowed to change the minter.
func (t *Token) Owner(tx *chain.Tx) util.Uint160 {
	return tx.Storage(t.hash).GetUint160([]byte(ownerKey))
}

// Minter returns account allowed to mint and burn tokens.
func (t *Token) Minter(tx *chain.Tx) util.Uint160 {
	return tx.Storage(t.hash).GetUint160([]byte(minterKey))
}

// SetMinter changes the minter. Can be invoked only by the owner.
func (t *Token) SetMinter(tx *chain.Tx, minter util.Uint160) error {
	if err := common.CheckOwnerWitness(tx.Caller(), t.Owner(tx)); err != nil {
		return err
	}

	tx.Storage(t.hash).PutUint160([]byte(minterKey), minter)
	tx.Notify(t.hash, "MinterChanged", stackitem.NewByteArray(minter.BytesBE()))

	return nil
}

// TotalSupply returns amount of tokens in circulation.
func (t *Token) TotalSupply(tx *chain.Tx) *uint256.Int {
	return tx.Storage(t.hash).GetAmount([]byte(supplyKey))
}

// BalanceOf returns token balance of the account.
func (t *Token) BalanceOf(tx *chain.Tx, account util.Uint160) *uint256.Int {
	return tx.Storage(t.hash).GetAmount(balanceKey(account))
}

// Allowance returns amount the spender may transfer from the owner.
func (t *Token) Allowance(tx *chain.Tx, owner, spender util.Uint160) *uint256.Int {
	return tx.Storage(t.hash).GetAmount(allowanceKey(owner, spender))
}

// Transfer moves tokens from the caller to the recipient.
//
// Produces Transfer and TransferX notifications.
func (t *Token) Transfer(tx *chain.Tx, to util.Uint160, amount *uint256.Int, details []byte) error {
	if err := checkParties(tx.Caller(), to); err != nil {
		return err
	}
	return t.transfer(tx, tx.Caller(), to, amount, details)
}

// TransferFrom moves tokens on behalf of the owner spending the caller's
// allowance.
//
// Produces Transfer and TransferX notifications.
func (t *Token) TransferFrom(tx *chain.Tx, from, to util.Uint160, amount *uint256.Int) error {
	if err := checkParties(from, to); err != nil {
		return err
	}
	if err := t.SpendAllowance(tx, from, tx.Caller(), amount); err != nil {
		return err
	}
	return t.transfer(tx, from, to, amount, nil)
}

// Approve sets amount the spender may transfer from the caller.
//
// Produces Approval notification.
func (t *Token) Approve(tx *chain.Tx, spender util.Uint160, amount *uint256.Int) error {
	owner := tx.Caller()

	tx.Storage(t.hash).PutAmount(allowanceKey(owner, spender), amount)
	tx.Notify(t.hash, "Approval",
		stackitem.NewByteArray(owner.BytesBE()),
		stackitem.NewByteArray(spender.BytesBE()),
		stackitem.NewBigInteger(amount.ToBig()))

	return nil
}

// SpendAllowance decreases allowance given by the owner to the spender.
func (t *Token) SpendAllowance(tx *chain.Tx, owner, spender util.Uint160, amount *uint256.Int) error {
	if owner.Equals(spender) {
		return nil
	}

	s := tx.Storage(t.hash)
	key := allowanceKey(owner, spender)

	allowed := s.GetAmount(key)
	if allowed.Lt(amount) {
		return fmt.Errorf("%s: %s allowed to %s, %s requested: %w",
			t.symbol, allowed.Dec(), spender.StringLE(), amount.Dec(), common.ErrInsufficientAllowance)
	}

	s.PutAmount(key, allowed.Sub(allowed, amount))

	return nil
}

// Mint issues new tokens to the recipient. Can be invoked only by the minter.
//
// Produces Mint, Transfer and TransferX notifications.
func (t *Token) Mint(tx *chain.Tx, to util.Uint160, amount *uint256.Int, details []byte) error {
	if err := common.CheckWitness(tx.Caller(), t.Minter(tx), "minter"); err != nil {
		return err
	}

	if to.Equals(util.Uint160{}) {
		return ErrInvalidRecipient
	}

	s := tx.Storage(t.hash)
	supply, err := common.Add(s.GetAmount([]byte(supplyKey)), amount)
	if err != nil {
		return fmt.Errorf("increase supply: %w", err)
	}

	err = t.transfer(tx, util.Uint160{}, to, amount, common.MintTransferDetails(details))
	if err != nil {
		return err
	}

	s.PutAmount([]byte(supplyKey), supply)
	tx.Notify(t.hash, "Mint", stackitem.NewByteArray(to.BytesBE()), stackitem.NewBigInteger(amount.ToBig()))

	return nil
}

// Burn destroys tokens of the holder. Can be invoked only by the minter.
//
// Produces Burn, Transfer and TransferX notifications.
func (t *Token) Burn(tx *chain.Tx, from util.Uint160, amount *uint256.Int, details []byte) error {
	if err := common.CheckWitness(tx.Caller(), t.Minter(tx), "minter"); err != nil {
		return err
	}

	err := t.transfer(tx, from, util.Uint160{}, amount, common.BurnTransferDetails(details))
	if err != nil {
		return err
	}

	s := tx.Storage(t.hash)
	supply, err := common.Sub(s.GetAmount([]byte(supplyKey)), amount)
	if err != nil {
		return fmt.Errorf("negative supply after burn: %w", err)
	}

	s.PutAmount([]byte(supplyKey), supply)
	tx.Notify(t.hash, "Burn", stackitem.NewByteArray(from.BytesBE()), stackitem.NewBigInteger(amount.ToBig()))

	return nil
}

func (t *Token) transfer(tx *chain.Tx, from, to util.Uint160, amount *uint256.Int, details []byte) error {
	var zero util.Uint160

	if from.Equals(zero) && to.Equals(zero) {
		return ErrInvalidRecipient
	}

	s := tx.Storage(t.hash)

	if !from.Equals(zero) {
		balance := s.GetAmount(balanceKey(from))
		if balance.Lt(amount) {
			return fmt.Errorf("%s: %s holds %s, %s requested: %w",
				t.symbol, from.StringLE(), balance.Dec(), amount.Dec(), common.ErrInsufficientBalance)
		}

		s.PutAmount(balanceKey(from), balance.Sub(balance, amount))
	}

	if !to.Equals(zero) {
		balance, err := common.Add(s.GetAmount(balanceKey(to)), amount)
		if err != nil {
			return fmt.Errorf("increase balance: %w", err)
		}

		s.PutAmount(balanceKey(to), balance)
	}

	fromItem, toItem := addressItem(from), addressItem(to)
	amountItem := stackitem.NewBigInteger(amount.ToBig())

	tx.Notify(t.hash, "Transfer", fromItem, toItem, amountItem)
	tx.Notify(t.hash, "TransferX", fromItem, toItem, amountItem, stackitem.NewByteArray(details))

	if h := t.hook.Load(); h != nil {
		return (*h)(tx, from, to, amount)
	}

	return nil
}

func checkParties(from, to util.Uint160) error {
	var zero util.Uint160
	if from.Equals(zero) {
		return fmt.Errorf("transfer from zero address: %w", common.ErrUnauthorized)
	}
	if to.Equals(zero) {
		return ErrInvalidRecipient
	}
	return nil
}

// zero address is encoded as Null like NEP-17 does for mint and burn.
func addressItem(a util.Uint160) stackitem.Item {
	if a.Equals(util.Uint160{}) {
		return stackitem.Null{}
	}
	return stackitem.NewByteArray(a.BytesBE())
}

func balanceKey(account util.Uint160) []byte {
	return append([]byte(balancePrefix), account.BytesBE()...)
}

func allowanceKey(owner, spender util.Uint160) []byte {
	return append(append([]byte(allowancePrefix), owner.BytesBE()...), spender.BytesBE()...)
}
