package chain

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bentousd/bento-vault/common"
	"github.com/google/uuid"
	"github.com/nspcc-dev/neo-go/pkg/core/storage"
	"github.com/nspcc-dev/neo-go/pkg/crypto/hash"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"go.uber.org/zap"
)

var (
	// ErrReentrantCall is returned on attempt to enter an invocation or a
	// contract that is already being executed.
	ErrReentrantCall = common.NewError(common.ErrAuthorization, "reentrant call")
	// ErrContractNotFound is returned when there is no contract with the
	// requested address.
	ErrContractNotFound = common.NewError(common.ErrConfiguration, "contract not found")
	// ErrUnexpectedContract is returned when the contract does not provide
	// the requested interface.
	ErrUnexpectedContract = common.NewError(common.ErrConfiguration, "unexpected contract type")
	// ErrContractExists is returned on repeated registration of the address.
	ErrContractExists = common.NewError(common.ErrConfiguration, "contract already exists")
)

// Prm groups parameters of the Chain.
type Prm struct {
	// Persistent storage of all contracts. Defaults to in-memory store.
	Store storage.Store

	// Source of invocation timestamps. Defaults to system clock.
	Clock Clock

	// Writes invocation results into the log. Defaults to no-op logger.
	Logger *zap.Logger
}

type registered struct {
	name     string
	contract any
}

// Chain executes contract invocations atomically over the persistent store.
//
// Chain instances must be constructed using New.
type Chain struct {
	log   *zap.Logger
	clock Clock

	// busy is set while an invocation executes. Nested entry from the
	// executing goroutine fails on it instead of waiting for mtx.
	busy atomic.Bool

	mtx    sync.Mutex
	store  storage.Store
	height uint32

	regMtx    sync.RWMutex
	contracts map[util.Uint160]registered

	subMtx      sync.RWMutex
	subscribers []func(Notification)
}

// New constructs Chain from the given parameters.
func New(prm Prm) *Chain {
	if prm.Store == nil {
		prm.Store = storage.NewMemoryStore()
	}
	if prm.Clock == nil {
		prm.Clock = SystemClock{}
	}
	if prm.Logger == nil {
		prm.Logger = zap.NewNop()
	}

	c := &Chain{
		log:       prm.Logger,
		clock:     prm.Clock,
		store:     prm.Store,
		contracts: make(map[util.Uint160]registered),
	}

	if v, err := prm.Store.Get(heightKey); err == nil && len(v) == 4 {
		c.height = binary.LittleEndian.Uint32(v)
	}

	return c
}

// heightKey stores number of committed invocations outside contract scopes.
var heightKey = []byte{0x01}

// Receipt describes committed invocation.
type Receipt struct {
	ID            uuid.UUID
	Height        uint32
	Notifications []Notification
}

type invocationKey struct{}

func inInvocation(ctx context.Context) bool {
	return ctx.Value(invocationKey{}) != nil
}

// Invoke executes f on behalf of the sender within a new invocation. All
// storage writes made by f are committed if f returns nil and discarded
// otherwise. Panics in f are turned into errors.
//
// Invoke returns ErrReentrantCall if ctx belongs to an active invocation or
// if any other invocation is being executed: the Chain never waits for the
// running invocation, so callbacks of the running invocation that enter the
// Chain again fail instead of blocking.
func (c *Chain) Invoke(ctx context.Context, sender util.Uint160, f func(*Tx) error) (*Receipt, error) {
	return c.run(ctx, sender, f, true)
}

// View executes f like Invoke but always discards its writes and
// notifications.
func (c *Chain) View(ctx context.Context, f func(*Tx) error) error {
	_, err := c.run(ctx, util.Uint160{}, f, false)
	return err
}

func (c *Chain) run(ctx context.Context, sender util.Uint160, f func(*Tx) error, commit bool) (*Receipt, error) {
	if inInvocation(ctx) {
		return nil, ErrReentrantCall
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !c.busy.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: another invocation is being executed", ErrReentrantCall)
	}

	res, err := c.runExclusive(ctx, sender, f, commit)
	c.busy.Store(false)

	if err != nil || res == nil {
		return nil, err
	}

	c.deliver(res.Notifications)

	return res, nil
}

func (c *Chain) runExclusive(ctx context.Context, sender util.Uint160, f func(*Tx) error, commit bool) (*Receipt, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	id := uuid.New()
	st := &txState{
		ctx:     context.WithValue(ctx, invocationKey{}, id),
		id:      id,
		sender:  sender,
		time:    c.clock.Now(),
		chain:   c,
		store:   storage.NewMemCachedStore(c.store),
		entered: make(map[util.Uint160]struct{}),
		log:     c.log.With(zap.Stringer("tx", id)),
	}

	err := execute(&Tx{st: st, caller: sender}, f)
	if err == nil {
		err = st.err
	}
	if err != nil {
		st.log.Debug("invocation failed", zap.Error(err))
		return nil, err
	}

	if !commit {
		return nil, nil
	}

	st.store.Put(heightKey, binary.LittleEndian.AppendUint32(nil, c.height+1))

	if _, err = st.store.Persist(); err != nil {
		return nil, fmt.Errorf("persist invocation changes: %w", err)
	}

	c.height++

	st.log.Debug("invocation committed",
		zap.Uint32("height", c.height),
		zap.Int("notifications", len(st.notifications)))

	return &Receipt{
		ID:            id,
		Height:        c.height,
		Notifications: st.notifications,
	}, nil
}

func execute(tx *Tx, f func(*Tx) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invocation panicked: %v", r)
		}
	}()

	return f(tx)
}

// Height returns number of committed invocations.
func (c *Chain) Height() uint32 {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.height
}

// Now returns current time of the chain clock.
func (c *Chain) Now() time.Time {
	return c.clock.Now()
}

// Logger returns logger of the Chain.
func (c *Chain) Logger() *zap.Logger {
	return c.log
}

// ContractHash returns address of the contract deployed by the sender under
// the given name.
func ContractHash(sender util.Uint160, name string) util.Uint160 {
	return hash.Hash160(append(sender.BytesBE(), name...))
}

// Register makes the contract available at the given address.
func (c *Chain) Register(h util.Uint160, name string, contract any) error {
	c.regMtx.Lock()
	defer c.regMtx.Unlock()

	if _, ok := c.contracts[h]; ok {
		return fmt.Errorf("%w: %s (%s)", ErrContractExists, name, h.StringLE())
	}

	c.contracts[h] = registered{name: name, contract: contract}
	c.log.Debug("contract registered", zap.String("name", name), zap.Stringer("hash", h))

	return nil
}

// Lookup returns contract registered at the given address as T.
func Lookup[T any](c *Chain, h util.Uint160) (T, error) {
	var zero T

	c.regMtx.RLock()
	r, ok := c.contracts[h]
	c.regMtx.RUnlock()

	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrContractNotFound, h.StringLE())
	}

	res, ok := r.contract.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T", ErrUnexpectedContract, r.name, r.contract)
	}

	return res, nil
}

// ContractInfo describes registered contract.
type ContractInfo struct {
	Name string
	Hash util.Uint160
}

// Contracts returns all registered contracts sorted by name.
func (c *Chain) Contracts() []ContractInfo {
	c.regMtx.RLock()
	res := make([]ContractInfo, 0, len(c.contracts))
	for h, r := range c.contracts {
		res = append(res, ContractInfo{Name: r.name, Hash: h})
	}
	c.regMtx.RUnlock()

	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })

	return res
}

// IterateStorage passes all persisted storage items of the contract into f.
// Keys are relative to the contract scope.
func (c *Chain) IterateStorage(h util.Uint160, f func(key, value []byte) error) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	var err error
	prefix := scopePrefix(h)

	c.store.Seek(storage.SeekRange{Prefix: prefix}, func(k, v []byte) bool {
		err = f(k[len(prefix):], v)
		return err == nil
	})

	return err
}

// RestoreStorage writes given storage items of the contract directly into
// the persistent store.
func (c *Chain) RestoreStorage(h util.Uint160, items map[string][]byte) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	layer := storage.NewMemCachedStore(c.store)
	for k, v := range items {
		layer.Put(append(scopePrefix(h), k...), v)
	}

	if _, err := layer.Persist(); err != nil {
		return fmt.Errorf("persist restored storage: %w", err)
	}

	return nil
}

// Subscribe registers f as receiver of all committed notifications.
func (c *Chain) Subscribe(f func(Notification)) {
	c.subMtx.Lock()
	c.subscribers = append(c.subscribers, f)
	c.subMtx.Unlock()
}

func (c *Chain) deliver(ns []Notification) {
	c.subMtx.RLock()
	defer c.subMtx.RUnlock()

	for i := range ns {
		for _, f := range c.subscribers {
			f(ns[i])
		}
	}
}
