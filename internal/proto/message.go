package proto

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// MaxFieldNumber is a maximum field number according to
// https://protobuf.dev/programming-guides/proto3/#assigning.
const MaxFieldNumber = protowire.MaxValidNumber

// All supported field types declared in https://protobuf.dev/programming-guides/encoding/#structure.
const (
	FieldTypeVARINT = protowire.VarintType
	FieldTypeI64    = protowire.Fixed64Type
	FieldTypeLEN    = protowire.BytesType
	FieldTypeI32    = protowire.Fixed32Type
)

// StringifyFieldType stringifies given field type.
func StringifyFieldType(typ protowire.Type) string {
	switch typ {
	case FieldTypeVARINT:
		return "VARINT"
	case FieldTypeI64:
		return "I64"
	case FieldTypeLEN:
		return "LEN"
	case protowire.StartGroupType:
		return "SGROUP"
	case protowire.EndGroupType:
		return "EGROUP"
	case FieldTypeI32:
		return "I32"
	default:
		return fmt.Sprintf("UNKNOWN#%d", typ)
	}
}
