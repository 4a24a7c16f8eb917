package proxy

import (
	"fmt"
	"time"

	"github.com/bentousd/bento-vault/chain"
	"github.com/bentousd/bento-vault/common"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"go.uber.org/zap"
)

// DefaultTimelock is used when proxy is deployed with zero timelock.
const DefaultTimelock = 10 * time.Second

var (
	// ErrNoPendingImplementation is returned on transfer without pending
	// implementation.
	ErrNoPendingImplementation = common.NewError(common.ErrConfiguration, "no pending implementation")
	// ErrTimelockNotExpired is returned on transfer before the timelock
	// expiry.
	ErrTimelockNotExpired = common.NewError(common.ErrAuthorization, "timelock is not expired")
	// ErrInvalidImplementation is returned for addresses without registered
	// Implementation.
	ErrInvalidImplementation = common.NewError(common.ErrConfiguration, "invalid implementation")
)

// Implementation is a logic contract executed behind the proxy. It keeps the
// state in the storage scope of the proxy.
type Implementation interface {
	Hash() util.Uint160
	// Version returns implementation version in common.Version format.
	Version() int
	// Deploy initializes proxy storage if isUpdate is false. Otherwise, it
	// migrates the storage; data then ends with the version being upgraded
	// from (see common.AppendVersion).
	Deploy(tx *chain.Tx, proxy util.Uint160, data []any, isUpdate bool) error
}

var keyPrefix = []byte{0xff}

var (
	ownerKey    = proxyKey('o')
	implKey     = proxyKey('i')
	pendingKey  = proxyKey('p')
	expiryKey   = proxyKey('e')
	timelockKey = proxyKey('t')
)

func proxyKey(k byte) []byte {
	return append(append([]byte{}, keyPrefix...), k)
}

// Proxy is the upgradable proxy contract.
type Proxy struct {
	hash util.Uint160
}

// New returns Proxy located at the given address.
func New(hash util.Uint160) *Proxy {
	return &Proxy{hash: hash}
}

// Hash returns address of the proxy.
func (p *Proxy) Hash() util.Uint160 {
	return p.hash
}

// Deploy initializes proxy with the implementation and runs its initial
// deployment with data. Zero timelock means DefaultTimelock. Repeated calls
// do nothing.
//
// Produces Upgraded notification.
func (p *Proxy) Deploy(tx *chain.Tx, owner, impl util.Uint160, data []any, timelock time.Duration) error {
	s := tx.Storage(p.hash)
	if s.Get(ownerKey) != nil {
		return nil
	}

	if timelock <= 0 {
		timelock = DefaultTimelock
	}

	logic, err := p.lookup(tx, impl)
	if err != nil {
		return err
	}

	s.PutUint160(ownerKey, owner)
	s.PutUint160(implKey, impl)
	s.PutAmount(timelockKey, uint256.NewInt(uint64(timelock)))

	if err = logic.Deploy(tx.As(p.hash), p.hash, data, false); err != nil {
		return fmt.Errorf("deploy implementation: %w", err)
	}

	tx.Notify(p.hash, "Upgraded", common.AddressItem(impl), stackitem.Make(logic.Version()))
	tx.Log().Info("proxy initialized",
		zap.Stringer("owner", owner), zap.Stringer("implementation", impl),
		zap.Duration("timelock", timelock))

	return nil
}

// Owner returns proxy owner.
func (p *Proxy) Owner(tx *chain.Tx) util.Uint160 {
	return tx.Storage(p.hash).GetUint160(ownerKey)
}

// Implementation returns address of the current implementation.
func (p *Proxy) Implementation(tx *chain.Tx) util.Uint160 {
	return tx.Storage(p.hash).GetUint160(implKey)
}

// PendingImplementation returns address of the pending implementation. Zero
// address means there is none.
func (p *Proxy) PendingImplementation(tx *chain.Tx) util.Uint160 {
	return tx.Storage(p.hash).GetUint160(pendingKey)
}

// TimelockDuration returns time between setting and transferring the
// pending implementation.
func (p *Proxy) TimelockDuration(tx *chain.Tx) time.Duration {
	return time.Duration(tx.Storage(p.hash).GetAmount(timelockKey).Uint64())
}

// TimelockExpiry returns time the pending implementation can be transferred
// at. Zero time means there is no pending implementation.
func (p *Proxy) TimelockExpiry(tx *chain.Tx) time.Time {
	ns := tx.Storage(p.hash).GetAmount(expiryKey)
	if ns.IsZero() {
		return time.Time{}
	}
	return time.Unix(0, int64(ns.Uint64()))
}

// SetNewImplementation makes the implementation pending and restarts the
// timelock. Can be invoked only by the proxy owner.
//
// Produces PendingImplementationSet notification.
func (p *Proxy) SetNewImplementation(tx *chain.Tx, impl util.Uint160) error {
	if err := common.CheckOwnerWitness(tx.Caller(), p.Owner(tx)); err != nil {
		return err
	}

	if _, err := p.lookup(tx, impl); err != nil {
		return err
	}

	expiry := tx.Now().Add(p.TimelockDuration(tx))

	s := tx.Storage(p.hash)
	s.PutUint160(pendingKey, impl)
	s.PutAmount(expiryKey, uint256.NewInt(uint64(expiry.UnixNano())))

	tx.Notify(p.hash, "PendingImplementationSet", common.AddressItem(impl), common.TimeItem(expiry))
	tx.Log().Info("pending implementation set",
		zap.Stringer("implementation", impl), zap.Time("expiry", expiry))

	return nil
}

// TransferImplementation replaces the current implementation with the
// pending one and runs its migration with data. Can be invoked only by the
// proxy owner not earlier than the timelock expiry.
//
// Produces Upgraded notification.
func (p *Proxy) TransferImplementation(tx *chain.Tx, data []any) error {
	if err := common.CheckOwnerWitness(tx.Caller(), p.Owner(tx)); err != nil {
		return err
	}

	pending := p.PendingImplementation(tx)
	if pending.Equals(util.Uint160{}) {
		return ErrNoPendingImplementation
	}

	if expiry := p.TimelockExpiry(tx); tx.Now().Before(expiry) {
		return fmt.Errorf("%w: %s left", ErrTimelockNotExpired, expiry.Sub(tx.Now()))
	}

	current, err := p.lookup(tx, p.Implementation(tx))
	if err != nil {
		return fmt.Errorf("current implementation: %w", err)
	}

	logic, err := p.lookup(tx, pending)
	if err != nil {
		return err
	}

	err = logic.Deploy(tx.As(p.hash), p.hash, common.AppendVersion(data, current.Version()), true)
	if err != nil {
		return fmt.Errorf("migrate to %s: %w", pending.StringLE(), err)
	}

	s := tx.Storage(p.hash)
	s.PutUint160(implKey, pending)
	s.Delete(pendingKey)
	s.Delete(expiryKey)

	tx.Notify(p.hash, "Upgraded", common.AddressItem(pending), stackitem.Make(logic.Version()))
	tx.Log().Info("implementation transferred",
		zap.Stringer("implementation", pending), zap.Int("version", logic.Version()))

	return nil
}

// TransferProxyOwnership changes the proxy owner. Can be invoked only by the
// current owner.
//
// Produces ProxyOwnershipTransferred notification.
func (p *Proxy) TransferProxyOwnership(tx *chain.Tx, newOwner util.Uint160) error {
	owner := p.Owner(tx)
	if err := common.CheckOwnerWitness(tx.Caller(), owner); err != nil {
		return err
	}

	if newOwner.Equals(util.Uint160{}) {
		return fmt.Errorf("zero proxy owner: %w", common.ErrUnauthorized)
	}

	tx.Storage(p.hash).PutUint160(ownerKey, newOwner)
	tx.Notify(p.hash, "ProxyOwnershipTransferred", common.AddressItem(owner), common.AddressItem(newOwner))

	return nil
}

func (p *Proxy) lookup(tx *chain.Tx, impl util.Uint160) (Implementation, error) {
	if impl.Equals(util.Uint160{}) {
		return nil, fmt.Errorf("%w: zero address", ErrInvalidImplementation)
	}

	logic, err := chain.Lookup[Implementation](tx.Chain(), impl)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImplementation, err)
	}

	return logic, nil
}

// Current returns the current implementation of the proxy as T.
func Current[T any](tx *chain.Tx, p *Proxy) (T, error) {
	var zero T

	h := p.Implementation(tx)
	if h.Equals(util.Uint160{}) {
		return zero, fmt.Errorf("%w: proxy %s is not deployed", ErrInvalidImplementation, p.hash.StringLE())
	}

	return chain.Lookup[T](tx.Chain(), h)
}
