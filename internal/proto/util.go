package proto

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// CheckFieldType checks whether field with given number has expected type.
func CheckFieldType(num protowire.Number, got, exp protowire.Type) error {
	if got != exp {
		return fmt.Errorf("%w: wrong type of field #%d: expected %s, got %s",
			ErrInvalidMessage, num, StringifyFieldType(exp), StringifyFieldType(got))
	}

	return nil
}
