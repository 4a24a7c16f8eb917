package swap

import (
	"fmt"

	"github.com/bentousd/bento-vault/common"
	"github.com/bentousd/bento-vault/internal/proto"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"google.golang.org/protobuf/encoding/protowire"
)

// ErrInvalidCallData is returned for call data routers can not execute.
var ErrInvalidCallData = common.NewError(common.ErrConfiguration, "invalid swap call data")

const (
	fieldSrc protowire.Number = iota + 1
	fieldDst
	fieldAmount
	fieldMinReturn
	fieldReceiver
)

// CallData describes single swap. It is encoded as protobuf message
//
//	message CallData {
//	  bytes src = 1;
//	  bytes dst = 2;
//	  bytes amount = 3;     // big-endian
//	  bytes min_return = 4; // big-endian
//	  bytes receiver = 5;
//	}
//
// where addresses are 20-byte big-endian.
type CallData struct {
	Src       util.Uint160
	Dst       util.Uint160
	Amount    *uint256.Int
	MinReturn *uint256.Int
	// Receiver of the output. Zero means the caller of the router.
	Receiver util.Uint160
}

// Marshal encodes call data into protobuf binary.
func (c CallData) Marshal() []byte {
	var b []byte

	b = appendAddress(b, fieldSrc, c.Src)
	b = appendAddress(b, fieldDst, c.Dst)
	b = proto.AppendAmount(b, fieldAmount, c.Amount)
	b = proto.AppendAmount(b, fieldMinReturn, c.MinReturn)
	b = appendAddress(b, fieldReceiver, c.Receiver)

	return b
}

// Unmarshal decodes call data from protobuf binary. Unknown fields are
// rejected.
func (c *CallData) Unmarshal(b []byte) error {
	fs, err := proto.ReadFields(b)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCallData, err)
	}

	res := CallData{
		Amount:    new(uint256.Int),
		MinReturn: new(uint256.Int),
	}

	for _, f := range fs {
		switch f.Num {
		case fieldSrc:
			res.Src, err = readAddress(f)
		case fieldDst:
			res.Dst, err = readAddress(f)
		case fieldAmount:
			res.Amount, err = proto.ReadAmount(f)
		case fieldMinReturn:
			res.MinReturn, err = proto.ReadAmount(f)
		case fieldReceiver:
			res.Receiver, err = readAddress(f)
		default:
			err = fmt.Errorf("unknown field #%d", f.Num)
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidCallData, err)
		}
	}

	*c = res

	return nil
}

func appendAddress(b []byte, num protowire.Number, a util.Uint160) []byte {
	if a.Equals(util.Uint160{}) {
		return b
	}
	return proto.AppendBytes(b, num, a.BytesBE())
}

func readAddress(f proto.Field) (util.Uint160, error) {
	if err := proto.CheckFieldType(f.Num, f.Type, proto.FieldTypeLEN); err != nil {
		return util.Uint160{}, err
	}
	return util.Uint160DecodeBytesBE(f.Bytes)
}
