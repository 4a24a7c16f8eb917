// Package proto provides helpers for protobuf wire encoding of messages
// without generated code.
package proto

import (
	"errors"
	"fmt"
	"math"

	"github.com/holiman/uint256"
	"google.golang.org/protobuf/encoding/protowire"
)

// ErrInvalidMessage is returned for malformed protobuf messages.
var ErrInvalidMessage = errors.New("invalid protobuf message")

// Field is a single decoded field of the message.
type Field struct {
	Num  protowire.Number
	Type protowire.Type
	// Varint is the value of VARINT field.
	Varint uint64
	// Bytes is the value of LEN field.
	Bytes []byte
}

// ReadFields decodes top-level fields of the message in their order.
// Only VARINT and LEN fields are supported.
func ReadFields(b []byte) ([]Field, error) {
	var res []Field

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: tag: %w", ErrInvalidMessage, protowire.ParseError(n))
		}
		if num > MaxFieldNumber {
			return nil, fmt.Errorf("%w: invalid/unsupported protobuf field num %d", ErrInvalidMessage, num)
		}
		b = b[n:]

		f := Field{Num: num, Type: typ}

		switch typ {
		case FieldTypeVARINT:
			f.Varint, n = protowire.ConsumeVarint(b)
		case FieldTypeLEN:
			f.Bytes, n = protowire.ConsumeBytes(b)
		default:
			return nil, fmt.Errorf("%w: invalid/unsupported protobuf field type %s", ErrInvalidMessage, StringifyFieldType(typ))
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: field #%d: %w", ErrInvalidMessage, num, protowire.ParseError(n))
		}
		b = b[n:]

		res = append(res, f)
	}

	return res, nil
}

// AppendBytes appends LEN field to b. Empty values are omitted.
func AppendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, FieldTypeLEN)
	return protowire.AppendBytes(b, v)
}

// AppendVarint appends VARINT field to b. Zero values are omitted.
func AppendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, FieldTypeVARINT)
	return protowire.AppendVarint(b, v)
}

// AppendAmount appends 256-bit amount as LEN field holding its minimal
// big-endian form.
func AppendAmount(b []byte, num protowire.Number, v *uint256.Int) []byte {
	if v == nil {
		return b
	}
	return AppendBytes(b, num, v.Bytes())
}

// ReadAmount decodes 256-bit amount from the LEN field.
func ReadAmount(f Field) (*uint256.Int, error) {
	if err := CheckFieldType(f.Num, f.Type, FieldTypeLEN); err != nil {
		return nil, err
	}
	if len(f.Bytes) > 32 {
		return nil, fmt.Errorf("%w: field #%d: %d bytes overflow uint256", ErrInvalidMessage, f.Num, len(f.Bytes))
	}
	return new(uint256.Int).SetBytes(f.Bytes), nil
}

// ReadUint32 decodes uint32 from the VARINT field.
func ReadUint32(f Field) (uint32, error) {
	if err := CheckFieldType(f.Num, f.Type, FieldTypeVARINT); err != nil {
		return 0, err
	}
	if f.Varint > math.MaxUint32 {
		return 0, fmt.Errorf("%w: field #%d: %d overflows uint32", ErrInvalidMessage, f.Num, f.Varint)
	}
	return uint32(f.Varint), nil
}
