package chain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/core/storage"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"go.uber.org/zap"
)

// storage prefix of contract scopes
const storagePrefix = 0x70

type txState struct {
	ctx    context.Context
	id     uuid.UUID
	sender util.Uint160
	time   time.Time
	chain  *Chain
	log    *zap.Logger

	store         *storage.MemCachedStore
	notifications []Notification
	entered       map[util.Uint160]struct{}

	// first storage failure, fails the invocation
	err error
}

// Tx is an execution context of the invocation. Tx values differ only by the
// caller, i.e. the account or contract which called the current method.
type Tx struct {
	st     *txState
	caller util.Uint160
}

// As returns Tx of the same invocation with the given caller. Contracts use
// it to call other contracts on their own behalf.
func (t *Tx) As(caller util.Uint160) *Tx {
	return &Tx{st: t.st, caller: caller}
}

// Caller returns account or contract that called the current method.
func (t *Tx) Caller() util.Uint160 {
	return t.caller
}

// Sender returns account which started the invocation.
func (t *Tx) Sender() util.Uint160 {
	return t.st.sender
}

// ID returns unique identifier of the invocation.
func (t *Tx) ID() uuid.UUID {
	return t.st.id
}

// IDBytes returns binary form of ID. It is used as transfer details.
func (t *Tx) IDBytes() []byte {
	return bytes.Clone(t.st.id[:])
}

// Now returns invocation timestamp. It does not change during the
// invocation.
func (t *Tx) Now() time.Time {
	return t.st.time
}

// Context returns context of the invocation. Passing it to Chain.Invoke
// fails with ErrReentrantCall.
func (t *Tx) Context() context.Context {
	return t.st.ctx
}

// Chain returns host of the invocation.
func (t *Tx) Chain() *Chain {
	return t.st.chain
}

// Log returns invocation logger.
func (t *Tx) Log() *zap.Logger {
	return t.st.log
}

// Enter marks the contract as being executed until the returned function is
// called. Enter fails with ErrReentrantCall if the contract is already being
// executed within the invocation.
func (t *Tx) Enter(contract util.Uint160) (func(), error) {
	if _, ok := t.st.entered[contract]; ok {
		return nil, fmt.Errorf("%w into %s", ErrReentrantCall, contract.StringLE())
	}

	t.st.entered[contract] = struct{}{}

	return func() { delete(t.st.entered, contract) }, nil
}

// Notify emits notification of the contract.
func (t *Tx) Notify(contract util.Uint160, name string, args ...stackitem.Item) {
	t.st.notifications = append(t.st.notifications, Notification{
		TxID:     t.st.id,
		Contract: contract,
		Name:     name,
		Args:     args,
	})
}

// Storage returns storage scope of the contract.
func (t *Tx) Storage(contract util.Uint160) *Storage {
	return &Storage{
		st:     t.st,
		prefix: scopePrefix(contract),
	}
}

func scopePrefix(contract util.Uint160) []byte {
	return append([]byte{storagePrefix}, contract.BytesBE()...)
}

// Storage provides access to the storage scope of a particular contract.
type Storage struct {
	st     *txState
	prefix []byte
}

func (s *Storage) key(k []byte) []byte {
	return append(bytes.Clone(s.prefix), k...)
}

// Get returns value stored by the key or nil if it is missing.
func (s *Storage) Get(key []byte) []byte {
	v, err := s.st.store.Get(s.key(key))
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) && s.st.err == nil {
			s.st.err = fmt.Errorf("read storage item: %w", err)
		}
		return nil
	}
	return v
}

// Put stores value by the key.
func (s *Storage) Put(key, value []byte) {
	s.st.store.Put(s.key(key), bytes.Clone(value))
}

// Delete removes the key.
func (s *Storage) Delete(key []byte) {
	s.st.store.Delete(s.key(key))
}

// Find passes all items with keys starting with the prefix into f in
// ascending key order until f returns false. Keys are passed without
// the prefix. f may modify the storage.
func (s *Storage) Find(prefix []byte, f func(key, value []byte) bool) {
	type kv struct{ k, v []byte }

	full := s.key(prefix)

	var items []kv
	s.st.store.Seek(storage.SeekRange{Prefix: full}, func(k, v []byte) bool {
		items = append(items, kv{k: bytes.Clone(k[len(full):]), v: bytes.Clone(v)})
		return true
	})

	for i := range items {
		if !f(items[i].k, items[i].v) {
			return
		}
	}
}

// GetItem deserializes stack item stored by the key. Returns nil item if
// the key is missing.
func (s *Storage) GetItem(key []byte) (stackitem.Item, error) {
	data := s.Get(key)
	if data == nil {
		return nil, nil
	}

	item, err := stackitem.Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("deserialize storage item: %w", err)
	}

	return item, nil
}

// PutItem serializes stack item and stores it by the key.
func (s *Storage) PutItem(key []byte, item stackitem.Item) error {
	data, err := stackitem.Serialize(item)
	if err != nil {
		return fmt.Errorf("serialize storage item: %w", err)
	}

	s.Put(key, data)

	return nil
}

// GetAmount returns amount stored by the key. Missing amount is zero.
func (s *Storage) GetAmount(key []byte) *uint256.Int {
	return new(uint256.Int).SetBytes(s.Get(key))
}

// PutAmount stores amount by the key. Zero amount removes the key.
func (s *Storage) PutAmount(key []byte, v *uint256.Int) {
	if v.IsZero() {
		s.Delete(key)
		return
	}
	s.Put(key, v.Bytes())
}

// GetUint160 returns address stored by the key. Missing address is zero.
func (s *Storage) GetUint160(key []byte) util.Uint160 {
	data := s.Get(key)
	if data == nil {
		return util.Uint160{}
	}

	res, err := util.Uint160DecodeBytesBE(data)
	if err != nil && s.st.err == nil {
		s.st.err = fmt.Errorf("decode address from storage: %w", err)
	}

	return res
}

// PutUint160 stores address by the key.
func (s *Storage) PutUint160(key []byte, v util.Uint160) {
	s.Put(key, v.BytesBE())
}
