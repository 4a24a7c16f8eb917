/*
Package relay forwards committed contract notifications to NATS.

Every notification is published to the subject

	<prefix>.<contract>.<event>

where contract is the name the emitting contract is registered under in the
chain, or its little-endian address if it is unknown. Message body is a JSON
object:

	{
	  "tx": "2f6b...",
	  "contract": "8f3b...",
	  "event": "Minted",
	  "args": [{"type": "ByteString", "value": "..."}]
	}

with arguments encoded by stackitem.ToJSONWithTypes.
*/
package relay

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bentousd/bento-vault/chain"
	"github.com/nats-io/nats.go"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"go.uber.org/zap"
)

// DefaultPrefix is the subject prefix used if none is configured.
const DefaultPrefix = "bentovault"

// Publisher sends the message to the subject. *nats.Conn implements it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Message is the body of the relayed notification.
type Message struct {
	TxID     string          `json:"tx"`
	Contract string          `json:"contract"`
	Event    string          `json:"event"`
	Args     json.RawMessage `json:"args"`
}

// Prm groups parameters of the Relay.
type Prm struct {
	// Destination of the notifications.
	Publisher Publisher

	// Subject prefix, DefaultPrefix if empty.
	Prefix string

	// Optional.
	Logger *zap.Logger
}

// Relay publishes chain notifications.
type Relay struct {
	pub    Publisher
	prefix string
	log    *zap.Logger
}

// New constructs Relay from the parameters.
func New(prm Prm) *Relay {
	if prm.Prefix == "" {
		prm.Prefix = DefaultPrefix
	}
	if prm.Logger == nil {
		prm.Logger = zap.NewNop()
	}

	return &Relay{
		pub:    prm.Publisher,
		prefix: prm.Prefix,
		log:    prm.Logger,
	}
}

// Attach subscribes the Relay to notifications of the chain. Publishing
// failures are logged and do not affect committed invocations.
func (r *Relay) Attach(c *chain.Chain) {
	c.Subscribe(func(n chain.Notification) {
		if err := r.Publish(c, n); err != nil {
			r.log.Warn("failed to relay notification",
				zap.Stringer("contract", n.Contract), zap.String("event", n.Name), zap.Error(err))
		}
	})
}

// Publish sends a single notification emitted in the chain.
func (r *Relay) Publish(c *chain.Chain, n chain.Notification) error {
	contract := contractName(c, n.Contract)

	msg, err := Encode(n)
	if err != nil {
		return err
	}

	subject := r.Subject(contract, n.Name)

	if err = r.pub.Publish(subject, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}

	r.log.Debug("notification relayed", zap.String("subject", subject))

	return nil
}

// Subject returns subject of the contract event.
func (r *Relay) Subject(contract, event string) string {
	return r.prefix + "." + subjectToken(contract) + "." + subjectToken(event)
}

// Encode returns JSON body of the notification message.
func Encode(n chain.Notification) ([]byte, error) {
	args, err := stackitem.ToJSONWithTypes(n.Item())
	if err != nil {
		return nil, fmt.Errorf("encode %s arguments: %w", n.Name, err)
	}

	return json.Marshal(Message{
		TxID:     n.TxID.String(),
		Contract: n.Contract.StringLE(),
		Event:    n.Name,
		Args:     args,
	})
}

// Decode parses message body and returns notification arguments.
func Decode(data []byte) (Message, []stackitem.Item, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, nil, fmt.Errorf("decode message: %w", err)
	}

	item, err := stackitem.FromJSONWithTypes(msg.Args)
	if err != nil {
		return Message{}, nil, fmt.Errorf("decode arguments: %w", err)
	}

	args, ok := item.Value().([]stackitem.Item)
	if !ok {
		return Message{}, nil, fmt.Errorf("unexpected arguments type %s", item.Type())
	}

	return msg, args, nil
}

// Connect dials the NATS server at url.
func Connect(url string, log *zap.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("bentovault-relay"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("disconnected from NATS", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}

	return conn, nil
}

func contractName(c *chain.Chain, h util.Uint160) string {
	for _, info := range c.Contracts() {
		if info.Hash.Equals(h) {
			return info.Name
		}
	}
	return h.StringLE()
}

var subjectReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")

func subjectToken(s string) string {
	return subjectReplacer.Replace(s)
}
