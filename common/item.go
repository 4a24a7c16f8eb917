package common

import (
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
)

// StructFields returns fields of the struct item checking their number.
func StructFields(item stackitem.Item, n int) ([]stackitem.Item, error) {
	arr, ok := item.Value().([]stackitem.Item)
	if !ok {
		return nil, errors.New("not an array")
	}
	if len(arr) != n {
		return nil, errors.New("wrong number of structure elements")
	}
	return arr, nil
}

// AddressItem returns stack item of the address.
func AddressItem(a util.Uint160) stackitem.Item {
	return stackitem.NewByteArray(a.BytesBE())
}

// AmountItem returns stack item of the amount.
func AmountItem(v *uint256.Int) stackitem.Item {
	return stackitem.NewBigInteger(v.ToBig())
}

// TimeItem returns stack item of the time with millisecond precision.
func TimeItem(t time.Time) stackitem.Item {
	return stackitem.Make(t.UnixMilli())
}

// AddressFromItem decodes address encoded by AddressItem.
func AddressFromItem(item stackitem.Item) (util.Uint160, error) {
	b, err := item.TryBytes()
	if err != nil {
		return util.Uint160{}, err
	}
	return util.Uint160DecodeBytesBE(b)
}

// AmountFromItem decodes amount encoded by AmountItem.
func AmountFromItem(item stackitem.Item) (*uint256.Int, error) {
	b, err := item.TryInteger()
	if err != nil {
		return nil, err
	}
	return FromBig(b)
}

// TimeFromItem decodes time encoded by TimeItem.
func TimeFromItem(item stackitem.Item) (time.Time, error) {
	b, err := item.TryInteger()
	if err != nil {
		return time.Time{}, err
	}
	if !b.IsInt64() {
		return time.Time{}, fmt.Errorf("timestamp %s overflows int64", b)
	}
	return time.UnixMilli(b.Int64()), nil
}

// IntFromItem decodes integer fitting into int64.
func IntFromItem(item stackitem.Item) (int64, error) {
	b, err := item.TryInteger()
	if err != nil {
		return 0, err
	}
	if !b.IsInt64() {
		return 0, fmt.Errorf("integer %s overflows int64", b)
	}
	return b.Int64(), nil
}
