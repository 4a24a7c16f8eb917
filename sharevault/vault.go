/*
Package sharevault implements share-based yield vault over a fungible asset.

Vault issues shares in exchange for deposited assets. Exchange rate is the
ratio of the vault assets to the share supply, so anything transferred to the
vault directly (yield) increases the value of every share. Conversions use a
virtual offset of one share and one asset unit and always round in favor of
the vault.

Vault with non-zero cooldown models staking tokens: shares can not be
redeemed directly. Holder starts a cooldown burning shares, the assets are
set aside and can be unstaked once the cooldown ends. Starting another
cooldown adds to the set-aside assets and restarts the period.

Contract notifications

	Deposit:
	  - name: sender
	    type: Hash160
	  - name: owner
	    type: Hash160
	  - name: assets
	    type: Integer
	  - name: shares
	    type: Integer

	Withdraw:
	  - name: sender
	    type: Hash160
	  - name: receiver
	    type: Hash160
	  - name: owner
	    type: Hash160
	  - name: assets
	    type: Integer
	  - name: shares
	    type: Integer

	CooldownStarted:
	  - name: owner
	    type: Hash160
	  - name: assets
	    type: Integer
	  - name: shares
	    type: Integer
	  - name: cooldownEnd
	    type: Integer

	Unstaked:
	  - name: owner
	    type: Hash160
	  - name: receiver
	    type: Hash160
	  - name: assets
	    type: Integer

Besides that, share token produces notifications of the token package.

Contract storage scheme (in addition to the share token one)

	| Key          | Value                               |
	|--------------|-------------------------------------|
	| 'p'          | total assets set aside by cooldowns |
	| 'c' + owner  | serialized Cooldown                 |
*/
package sharevault

import (
	"fmt"
	"time"

	"github.com/bentousd/bento-vault/chain"
	"github.com/bentousd/bento-vault/common"
	"github.com/bentousd/bento-vault/token"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
)

var (
	// ErrCooldownActive is returned on direct withdrawal from vault with
	// cooldown.
	ErrCooldownActive = common.NewError(common.ErrLiquidity, "withdrawal requires cooldown")
	// ErrCooldownNotFinished is returned on unstaking before the cooldown
	// end.
	ErrCooldownNotFinished = common.NewError(common.ErrLiquidity, "cooldown is not finished")
	// ErrCooldownDisabled is returned on cooldown operations of vault
	// without cooldown.
	ErrCooldownDisabled = common.NewError(common.ErrConfiguration, "cooldown is disabled")
)

const (
	pendingKey     = "p"
	cooldownPrefix = "c"
)

// Cooldown describes assets set aside for the holder.
type Cooldown struct {
	Assets *uint256.Int
	End    time.Time
}

// Vault is a share vault contract. Vault shares are fungible tokens located
// at the vault address.
type Vault struct {
	*token.Token

	asset    util.Uint160
	cooldown time.Duration
}

// New returns Vault over the asset located at the given address. Zero
// cooldown allows direct withdrawals.
func New(hash util.Uint160, symbol string, asset token.Fungible, cooldown time.Duration) *Vault {
	return &Vault{
		Token:    token.New(hash, symbol, asset.Decimals()),
		asset:    asset.Hash(),
		cooldown: cooldown,
	}
}

// Asset returns address of the underlying asset.
func (v *Vault) Asset() util.Uint160 {
	return v.asset
}

// CooldownDuration returns the cooldown period. Zero means direct
// withdrawals are allowed.
func (v *Vault) CooldownDuration() time.Duration {
	return v.cooldown
}

// Deploy initializes vault storage. Vault mints and burns its own shares.
func (v *Vault) Deploy(tx *chain.Tx, owner util.Uint160) error {
	if err := v.Token.Deploy(tx, owner); err != nil {
		return err
	}

	if v.Minter(tx).Equals(v.Hash()) {
		return nil
	}

	return v.SetMinter(tx.As(owner), v.Hash())
}

func (v *Vault) assetToken(tx *chain.Tx) (token.Fungible, error) {
	return chain.Lookup[token.Fungible](tx.Chain(), v.asset)
}

// TotalAssets returns amount of assets backing the shares. Assets set aside
// by cooldowns are excluded.
func (v *Vault) TotalAssets(tx *chain.Tx) (*uint256.Int, error) {
	asset, err := v.assetToken(tx)
	if err != nil {
		return nil, err
	}

	return common.Sub(asset.BalanceOf(tx, v.Hash()), tx.Storage(v.Hash()).GetAmount([]byte(pendingKey)))
}

func (v *Vault) rate(tx *chain.Tx) (assets, shares *uint256.Int, err error) {
	total, err := v.TotalAssets(tx)
	if err != nil {
		return nil, nil, err
	}

	one := uint256.NewInt(1)
	supply := v.TotalSupply(tx)

	return total.Add(total, one), supply.Add(supply, one), nil
}

// ConvertToShares returns amount of shares issued for the assets, rounding
// down.
func (v *Vault) ConvertToShares(tx *chain.Tx, assets *uint256.Int) (*uint256.Int, error) {
	a, s, err := v.rate(tx)
	if err != nil {
		return nil, err
	}
	return common.MulDiv(assets, s, a)
}

// ConvertToAssets returns amount of assets paid for the shares, rounding
// down.
func (v *Vault) ConvertToAssets(tx *chain.Tx, shares *uint256.Int) (*uint256.Int, error) {
	a, s, err := v.rate(tx)
	if err != nil {
		return nil, err
	}
	return common.MulDiv(shares, a, s)
}

// PreviewWithdraw returns amount of shares burnt to withdraw the assets,
// rounding up.
func (v *Vault) PreviewWithdraw(tx *chain.Tx, assets *uint256.Int) (*uint256.Int, error) {
	a, s, err := v.rate(tx)
	if err != nil {
		return nil, err
	}
	return common.MulDivUp(assets, s, a)
}

// Deposit pulls assets from the caller and issues shares to the receiver.
// The caller must approve the vault for the assets beforehand.
//
// Produces Deposit notification.
func (v *Vault) Deposit(tx *chain.Tx, assets *uint256.Int, receiver util.Uint160) (*uint256.Int, error) {
	if assets.IsZero() {
		return nil, fmt.Errorf("deposit: %w", common.ErrInvalidAmount)
	}

	shares, err := v.ConvertToShares(tx, assets)
	if err != nil {
		return nil, err
	}
	if shares.IsZero() {
		return nil, fmt.Errorf("deposit of %s yields no shares: %w", assets.Dec(), common.ErrInvalidAmount)
	}

	asset, err := v.assetToken(tx)
	if err != nil {
		return nil, err
	}

	sender := tx.Caller()
	self := tx.As(v.Hash())

	if err = asset.TransferFrom(self, sender, v.Hash(), assets); err != nil {
		return nil, fmt.Errorf("pull deposit: %w", err)
	}

	if err = v.Mint(self, receiver, shares, common.DepositTransferDetails(tx.IDBytes())); err != nil {
		return nil, fmt.Errorf("issue shares: %w", err)
	}

	tx.Notify(v.Hash(), "Deposit",
		common.AddressItem(sender), common.AddressItem(receiver),
		common.AmountItem(assets), common.AmountItem(shares))

	return shares, nil
}

// Withdraw burns shares of the owner to pay exactly the assets to the
// receiver. Caller must be the owner or spend the owner's share allowance.
// Returns burnt shares.
//
// Produces Withdraw notification.
func (v *Vault) Withdraw(tx *chain.Tx, assets *uint256.Int, receiver, owner util.Uint160) (*uint256.Int, error) {
	if v.cooldown > 0 {
		return nil, ErrCooldownActive
	}

	shares, err := v.PreviewWithdraw(tx, assets)
	if err != nil {
		return nil, err
	}

	if err = v.withdraw(tx, assets, shares, receiver, owner); err != nil {
		return nil, err
	}

	return shares, nil
}

// Redeem burns exactly the shares of the owner paying the assets to the
// receiver. Returns paid assets.
//
// Produces Withdraw notification.
func (v *Vault) Redeem(tx *chain.Tx, shares *uint256.Int, receiver, owner util.Uint160) (*uint256.Int, error) {
	if v.cooldown > 0 {
		return nil, ErrCooldownActive
	}

	assets, err := v.ConvertToAssets(tx, shares)
	if err != nil {
		return nil, err
	}

	if err = v.withdraw(tx, assets, shares, receiver, owner); err != nil {
		return nil, err
	}

	return assets, nil
}

func (v *Vault) withdraw(tx *chain.Tx, assets, shares *uint256.Int, receiver, owner util.Uint160) error {
	if err := v.burnShares(tx, owner, shares); err != nil {
		return err
	}

	asset, err := v.assetToken(tx)
	if err != nil {
		return err
	}

	if err = asset.Transfer(tx.As(v.Hash()), receiver, assets, common.RedeemTransferDetails(tx.IDBytes())); err != nil {
		return fmt.Errorf("pay assets: %w", err)
	}

	tx.Notify(v.Hash(), "Withdraw",
		common.AddressItem(tx.Caller()), common.AddressItem(receiver), common.AddressItem(owner),
		common.AmountItem(assets), common.AmountItem(shares))

	return nil
}

func (v *Vault) burnShares(tx *chain.Tx, owner util.Uint160, shares *uint256.Int) error {
	if balance := v.BalanceOf(tx, owner); balance.Lt(shares) {
		return fmt.Errorf("%s shares held, %s required: %w", balance.Dec(), shares.Dec(), common.ErrInsufficientLiquidity)
	}

	if err := v.SpendAllowance(tx, owner, tx.Caller(), shares); err != nil {
		return err
	}

	return v.Burn(tx.As(v.Hash()), owner, shares, common.BurnTransferDetails(tx.IDBytes()))
}

// CooldownAssets burns shares of the caller required for the assets and
// sets the assets aside until the cooldown ends. Returns burnt shares.
//
// Produces CooldownStarted notification.
func (v *Vault) CooldownAssets(tx *chain.Tx, assets *uint256.Int) (*uint256.Int, error) {
	if v.cooldown == 0 {
		return nil, ErrCooldownDisabled
	}
	if assets.IsZero() {
		return nil, fmt.Errorf("cooldown: %w", common.ErrInvalidAmount)
	}

	shares, err := v.PreviewWithdraw(tx, assets)
	if err != nil {
		return nil, err
	}

	owner := tx.Caller()

	if err = v.burnShares(tx, owner, shares); err != nil {
		return nil, err
	}

	cd, err := v.Cooldown(tx, owner)
	if err != nil {
		return nil, err
	}

	if cd.Assets, err = common.Add(cd.Assets, assets); err != nil {
		return nil, err
	}
	cd.End = tx.Now().Add(v.cooldown)

	s := tx.Storage(v.Hash())

	pending, err := common.Add(s.GetAmount([]byte(pendingKey)), assets)
	if err != nil {
		return nil, err
	}

	s.PutAmount([]byte(pendingKey), pending)

	err = s.PutItem(cooldownKey(owner), stackitem.NewStruct([]stackitem.Item{
		common.AmountItem(cd.Assets),
		common.TimeItem(cd.End),
	}))
	if err != nil {
		return nil, err
	}

	tx.Notify(v.Hash(), "CooldownStarted",
		common.AddressItem(owner), common.AmountItem(assets), common.AmountItem(shares), common.TimeItem(cd.End))

	return shares, nil
}

// Cooldown returns assets set aside for the owner. Zero assets mean there is
// no cooldown.
func (v *Vault) Cooldown(tx *chain.Tx, owner util.Uint160) (Cooldown, error) {
	item, err := tx.Storage(v.Hash()).GetItem(cooldownKey(owner))
	if err != nil {
		return Cooldown{}, err
	}
	if item == nil {
		return Cooldown{Assets: new(uint256.Int)}, nil
	}

	arr, err := common.StructFields(item, 2)
	if err != nil {
		return Cooldown{}, err
	}

	var res Cooldown

	if res.Assets, err = common.AmountFromItem(arr[0]); err != nil {
		return Cooldown{}, fmt.Errorf("field Assets: %w", err)
	}
	if res.End, err = common.TimeFromItem(arr[1]); err != nil {
		return Cooldown{}, fmt.Errorf("field End: %w", err)
	}

	return res, nil
}

// Unstake pays assets set aside for the caller to the receiver once the
// cooldown ends. Returns paid assets.
//
// Produces Unstaked notification.
func (v *Vault) Unstake(tx *chain.Tx, receiver util.Uint160) (*uint256.Int, error) {
	owner := tx.Caller()

	cd, err := v.Cooldown(tx, owner)
	if err != nil {
		return nil, err
	}
	if cd.Assets.IsZero() {
		return nil, fmt.Errorf("nothing to unstake: %w", common.ErrInvalidAmount)
	}
	if tx.Now().Before(cd.End) {
		return nil, fmt.Errorf("%w: ends at %s", ErrCooldownNotFinished, cd.End.UTC())
	}

	s := tx.Storage(v.Hash())

	pending, err := common.Sub(s.GetAmount([]byte(pendingKey)), cd.Assets)
	if err != nil {
		return nil, err
	}

	s.PutAmount([]byte(pendingKey), pending)
	s.Delete(cooldownKey(owner))

	asset, err := v.assetToken(tx)
	if err != nil {
		return nil, err
	}

	if err = asset.Transfer(tx.As(v.Hash()), receiver, cd.Assets, common.RedeemTransferDetails(tx.IDBytes())); err != nil {
		return nil, fmt.Errorf("pay unstaked assets: %w", err)
	}

	tx.Notify(v.Hash(), "Unstaked",
		common.AddressItem(owner), common.AddressItem(receiver), common.AmountItem(cd.Assets))

	return cd.Assets, nil
}

func cooldownKey(owner util.Uint160) []byte {
	return append([]byte(cooldownPrefix), owner.BytesBE()...)
}
