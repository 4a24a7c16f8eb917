package common

import (
	"github.com/mr-tron/base58"
	"github.com/nspcc-dev/neo-go/pkg/crypto/hash"
)

// InvokeID returns SHA-256 of the prefix followed by all arguments.
func InvokeID(args [][]byte, prefix []byte) []byte {
	buf := append([]byte{}, prefix...)
	for i := range args {
		buf = append(buf, args[i]...)
	}

	h := hash.Sha256(buf)
	return h.BytesBE()
}

// RequestID returns human-readable form of InvokeID.
func RequestID(args [][]byte, prefix []byte) string {
	return base58.Encode(InvokeID(args, prefix))
}
