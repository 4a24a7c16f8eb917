package chain

import (
	"github.com/google/uuid"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
)

// Notification is an event emitted by a contract during committed
// invocation.
type Notification struct {
	TxID     uuid.UUID
	Contract util.Uint160
	Name     string
	Args     []stackitem.Item
}

// Item returns notification arguments as a single array item.
func (n Notification) Item() stackitem.Item {
	return stackitem.NewArray(n.Args)
}
