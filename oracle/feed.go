package oracle

import (
	"fmt"
	"math/big"
	"time"

	"github.com/bentousd/bento-vault/chain"
	"github.com/bentousd/bento-vault/common"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
)

// RoundData is the latest answer of a price feed.
type RoundData struct {
	// Price scaled by the feed decimals.
	Answer *big.Int
	// Time the answer was last updated at.
	UpdatedAt time.Time
}

// Aggregator is a price feed contract.
type Aggregator interface {
	LatestRoundData(tx *chain.Tx) (RoundData, error)
}

// Feed describes price source of the asset.
type Feed struct {
	// Address of the Aggregator contract.
	Aggregator util.Uint160
	// Answers older than MaxStaleness are rejected.
	MaxStaleness time.Duration
	// Precision of the aggregator answers.
	Decimals uint8
}

// ToStackItem implements stackitem.Convertible.
func (f *Feed) ToStackItem() (stackitem.Item, error) {
	return stackitem.NewStruct([]stackitem.Item{
		common.AddressItem(f.Aggregator),
		stackitem.Make(int64(f.MaxStaleness)),
		stackitem.Make(int64(f.Decimals)),
	}), nil
}

// FromStackItem implements stackitem.Convertible.
func (f *Feed) FromStackItem(item stackitem.Item) error {
	arr, err := common.StructFields(item, 3)
	if err != nil {
		return err
	}

	var index = -1

	index++
	f.Aggregator, err = common.AddressFromItem(arr[index])
	if err != nil {
		return fmt.Errorf("field Aggregator: %w", err)
	}

	index++
	staleness, err := common.IntFromItem(arr[index])
	if err != nil {
		return fmt.Errorf("field MaxStaleness: %w", err)
	}
	f.MaxStaleness = time.Duration(staleness)

	index++
	decimals, err := common.IntFromItem(arr[index])
	if err != nil {
		return fmt.Errorf("field Decimals: %w", err)
	}
	f.Decimals = uint8(decimals)

	return nil
}

const (
	mockOwnerKey = "o"
	mockRoundKey = "r"
)

// MockAggregator is an Aggregator with answers set by its owner.
type MockAggregator struct {
	hash util.Uint160
}

// NewMockAggregator returns MockAggregator located at the given address.
func NewMockAggregator(hash util.Uint160) *MockAggregator {
	return &MockAggregator{hash: hash}
}

// Hash returns address of the aggregator.
func (m *MockAggregator) Hash() util.Uint160 {
	return m.hash
}

// Deploy initializes aggregator storage. Repeated calls do nothing.
func (m *MockAggregator) Deploy(tx *chain.Tx, owner util.Uint160) error {
	s := tx.Storage(m.hash)
	if s.Get([]byte(mockOwnerKey)) == nil {
		s.PutUint160([]byte(mockOwnerKey), owner)
	}
	return nil
}

// SetAnswer updates the answer with the invocation time. Can be invoked
// only by the owner.
func (m *MockAggregator) SetAnswer(tx *chain.Tx, answer *big.Int) error {
	return m.SetRoundData(tx, RoundData{Answer: answer, UpdatedAt: tx.Now()})
}

// SetRoundData overwrites the latest round. Can be invoked only by the owner.
//
// Produces AnswerUpdated notification.
func (m *MockAggregator) SetRoundData(tx *chain.Tx, rd RoundData) error {
	s := tx.Storage(m.hash)

	err := common.CheckOwnerWitness(tx.Caller(), s.GetUint160([]byte(mockOwnerKey)))
	if err != nil {
		return err
	}

	answer := stackitem.NewBigInteger(rd.Answer)
	updatedAt := common.TimeItem(rd.UpdatedAt)

	err = s.PutItem([]byte(mockRoundKey), stackitem.NewStruct([]stackitem.Item{answer, updatedAt}))
	if err != nil {
		return err
	}

	tx.Notify(m.hash, "AnswerUpdated", answer, updatedAt)

	return nil
}

// LatestRoundData implements Aggregator.
func (m *MockAggregator) LatestRoundData(tx *chain.Tx) (RoundData, error) {
	item, err := tx.Storage(m.hash).GetItem([]byte(mockRoundKey))
	if err != nil {
		return RoundData{}, err
	}
	if item == nil {
		return RoundData{}, fmt.Errorf("no answer: %w", ErrAssetNotAvailable)
	}

	arr, err := common.StructFields(item, 2)
	if err != nil {
		return RoundData{}, err
	}

	var res RoundData

	res.Answer, err = arr[0].TryInteger()
	if err != nil {
		return RoundData{}, fmt.Errorf("field Answer: %w", err)
	}

	res.UpdatedAt, err = common.TimeFromItem(arr[1])
	if err != nil {
		return RoundData{}, fmt.Errorf("field UpdatedAt: %w", err)
	}

	return res, nil
}
