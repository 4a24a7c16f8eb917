/*
Package strategy provides yield strategy adapters of the vault.

Adapter moves idle vault balances of one asset into a yield source and back.
The vault dispatches on the strategy kind:

  - GenericVault strategies deposit into a share vault and withdraw at once.
    Withdrawal burns enough shares to return the requested assets exactly,
    rounding shares up.
  - StakingToken strategies stake into a share vault with cooldown.
    Withdrawal is two-phase: RequestWithdraw starts the cooldown, Claim pays
    out matured requests. Direct Withdraw fails with
    common.ErrInsufficientLiquidity.

Every adapter method acts on behalf of the caller of the passed chain.Tx,
which is the holder of the strategy position.
*/
package strategy

import (
	"fmt"
	"strings"
	"time"

	"github.com/bentousd/bento-vault/chain"
	"github.com/bentousd/bento-vault/common"
	"github.com/bentousd/bento-vault/sharevault"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

// Kind is a strategy kind.
type Kind uint8

const (
	// GenericVault is a strategy with instant withdrawals.
	GenericVault Kind = iota
	// StakingToken is a strategy with cooldown-gated withdrawals.
	StakingToken
)

var kindNames = map[Kind]string{
	GenericVault: "generic_vault",
	StakingToken: "staking_token",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind parses strategy kind from its string form.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(s, name) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

var (
	// ErrUnknownKind is returned for unsupported strategy kinds.
	ErrUnknownKind = common.NewError(common.ErrConfiguration, "unknown strategy kind")
	// ErrKindMismatch is returned when registered adapter differs from the
	// configured kind.
	ErrKindMismatch = common.NewError(common.ErrConfiguration, "strategy kind mismatch")
	// ErrNoStrategy is returned for assets without yield source.
	ErrNoStrategy = common.NewError(common.ErrConfiguration, "asset has no strategy")
)

// Adapter is a yield strategy of a single asset.
type Adapter interface {
	Kind() Kind
	// Asset returns address of the underlying asset.
	Asset() util.Uint160
	// ShareToken returns address of the token representing the position.
	ShareToken() util.Uint160
	// Spender returns address the holder approves before Deposit.
	Spender() util.Uint160

	// Deposit pulls assets from the caller and returns received shares.
	Deposit(tx *chain.Tx, assets *uint256.Int) (*uint256.Int, error)
	// Withdraw returns exactly the assets to the receiver and returns burnt
	// shares of the caller.
	Withdraw(tx *chain.Tx, assets *uint256.Int, receiver util.Uint160) (*uint256.Int, error)
	// TotalUnderlying returns assets backing position of the holder.
	TotalUnderlying(tx *chain.Tx, holder util.Uint160) (*uint256.Int, error)
	// ConvertToShares returns current share value of the assets.
	ConvertToShares(tx *chain.Tx, assets *uint256.Int) (*uint256.Int, error)
	// ConvertToAssets returns current asset value of the shares.
	ConvertToAssets(tx *chain.Tx, shares *uint256.Int) (*uint256.Int, error)
}

// Request is an in-flight withdrawal of a staking strategy.
type Request struct {
	Assets      *uint256.Int
	Shares      *uint256.Int
	CooldownEnd time.Time
}

// Staking is an Adapter of StakingToken kind.
type Staking interface {
	Adapter

	// RequestWithdraw starts cooldown of the assets burning caller shares.
	RequestWithdraw(tx *chain.Tx, assets *uint256.Int) (Request, error)
	// Claim pays all matured requests of the caller to the receiver. Returns
	// zero if nothing is matured yet.
	Claim(tx *chain.Tx, receiver util.Uint160) (*uint256.Int, error)
	// Pending returns assets of in-flight requests of the holder and the
	// time they mature at.
	Pending(tx *chain.Tx, holder util.Uint160) (*uint256.Int, time.Time, error)
	// Claimable returns assets of matured requests of the holder.
	Claimable(tx *chain.Tx, holder util.Uint160) (*uint256.Int, error)
}

// Resolve returns adapter of the given kind. Non-zero strategy address
// refers to an adapter contract registered in the chain. Otherwise, built-in
// adapter over the yield token share vault is used.
func Resolve(c *chain.Chain, kind Kind, strategy, yieldToken util.Uint160) (Adapter, error) {
	if !strategy.Equals(util.Uint160{}) {
		a, err := chain.Lookup[Adapter](c, strategy)
		if err != nil {
			return nil, fmt.Errorf("resolve strategy: %w", err)
		}
		if a.Kind() != kind {
			return nil, fmt.Errorf("%w: %s registered, %s configured", ErrKindMismatch, a.Kind(), kind)
		}
		return a, nil
	}

	if yieldToken.Equals(util.Uint160{}) {
		return nil, ErrNoStrategy
	}

	v, err := chain.Lookup[*sharevault.Vault](c, yieldToken)
	if err != nil {
		return nil, fmt.Errorf("resolve yield token: %w", err)
	}

	switch kind {
	case GenericVault:
		return NewGenericVault(v), nil
	case StakingToken:
		return NewStakingToken(v), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
}

type genericVault struct {
	v *sharevault.Vault
}

// NewGenericVault returns GenericVault adapter over the share vault.
func NewGenericVault(v *sharevault.Vault) Adapter {
	return &genericVault{v: v}
}

func (a *genericVault) Kind() Kind               { return GenericVault }
func (a *genericVault) Asset() util.Uint160      { return a.v.Asset() }
func (a *genericVault) ShareToken() util.Uint160 { return a.v.Hash() }
func (a *genericVault) Spender() util.Uint160    { return a.v.Hash() }

func (a *genericVault) Deposit(tx *chain.Tx, assets *uint256.Int) (*uint256.Int, error) {
	return a.v.Deposit(tx, assets, tx.Caller())
}

func (a *genericVault) Withdraw(tx *chain.Tx, assets *uint256.Int, receiver util.Uint160) (*uint256.Int, error) {
	return a.v.Withdraw(tx, assets, receiver, tx.Caller())
}

func (a *genericVault) TotalUnderlying(tx *chain.Tx, holder util.Uint160) (*uint256.Int, error) {
	return a.v.ConvertToAssets(tx, a.v.BalanceOf(tx, holder))
}

func (a *genericVault) ConvertToShares(tx *chain.Tx, assets *uint256.Int) (*uint256.Int, error) {
	return a.v.ConvertToShares(tx, assets)
}

func (a *genericVault) ConvertToAssets(tx *chain.Tx, shares *uint256.Int) (*uint256.Int, error) {
	return a.v.ConvertToAssets(tx, shares)
}

type stakingToken struct {
	genericVault
}

// NewStakingToken returns StakingToken adapter over the share vault with
// cooldown.
func NewStakingToken(v *sharevault.Vault) Staking {
	return &stakingToken{genericVault{v: v}}
}

func (a *stakingToken) Kind() Kind { return StakingToken }

func (a *stakingToken) Withdraw(*chain.Tx, *uint256.Int, util.Uint160) (*uint256.Int, error) {
	return nil, fmt.Errorf("%s requires unstake request: %w", a.v.Symbol(), common.ErrInsufficientLiquidity)
}

func (a *stakingToken) RequestWithdraw(tx *chain.Tx, assets *uint256.Int) (Request, error) {
	shares, err := a.v.CooldownAssets(tx, assets)
	if err != nil {
		return Request{}, err
	}

	cd, err := a.v.Cooldown(tx, tx.Caller())
	if err != nil {
		return Request{}, err
	}

	return Request{
		Assets:      new(uint256.Int).Set(assets),
		Shares:      shares,
		CooldownEnd: cd.End,
	}, nil
}

func (a *stakingToken) Claim(tx *chain.Tx, receiver util.Uint160) (*uint256.Int, error) {
	matured, err := a.Claimable(tx, tx.Caller())
	if err != nil || matured.IsZero() {
		return matured, err
	}

	return a.v.Unstake(tx, receiver)
}

func (a *stakingToken) Claimable(tx *chain.Tx, holder util.Uint160) (*uint256.Int, error) {
	cd, err := a.v.Cooldown(tx, holder)
	if err != nil {
		return nil, err
	}
	if tx.Now().Before(cd.End) {
		return new(uint256.Int), nil
	}
	return cd.Assets, nil
}

func (a *stakingToken) Pending(tx *chain.Tx, holder util.Uint160) (*uint256.Int, time.Time, error) {
	cd, err := a.v.Cooldown(tx, holder)
	if err != nil {
		return nil, time.Time{}, err
	}
	return cd.Assets, cd.End, nil
}
