package dump

import (
	"encoding/csv"
	"encoding/json"
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/util"
)

// Creator writes the dump. Files:
//
//	'<label>-<height>-contracts.json': JSON array of dumped contracts
//	'<label>-<height>-storage.csv': storage items of the contracts
//
// Storage CSV records are 'name,key,value' where name is the contract name and
// binary key and value are base64-encoded.
//
// Use IterateDumps or Open to read the dumps.
type Creator struct {
	streams

	contracts []contractEntry
	storage   *csv.Writer
}

// NewCreator returns Creator writing the dump with the given ID into dir.
// Fails if the dump already exists. Creator must be closed after use.
func NewCreator(dir string, id ID) (*Creator, error) {
	var res Creator

	if err := openStreams(&res.streams, dir, id, false); err != nil {
		return nil, err
	}

	res.storage = csv.NewWriter(res.streams.storage)

	return &res, nil
}

// AddContract adds the named contract and returns writer of its storage
// items. Contracts are written on Flush.
func (x *Creator) AddContract(name string, h util.Uint160) *StorageWriter {
	x.contracts = append(x.contracts, contractEntry{
		Name: name,
		Hash: h.StringLE(),
	})

	return &StorageWriter{name: name, csv: x.storage}
}

// Flush writes all added contracts and buffered storage items.
func (x *Creator) Flush() error {
	enc := json.NewEncoder(x.streams.contracts)
	enc.SetIndent("", " ")

	if err := enc.Encode(x.contracts); err != nil {
		return fmt.Errorf("encode contracts: %w", err)
	}

	x.storage.Flush()

	if err := x.storage.Error(); err != nil {
		return fmt.Errorf("flush storage items: %w", err)
	}

	return nil
}

// Close releases files of the Creator.
func (x *Creator) Close() {
	x.close()
}

// StorageWriter writes storage items of a single contract.
type StorageWriter struct {
	name string
	csv  *csv.Writer
}

// Write adds the storage item.
func (x *StorageWriter) Write(key, value []byte) error {
	err := x.csv.Write([]string{x.name, encoding.EncodeToString(key), encoding.EncodeToString(value)})
	if err != nil {
		return fmt.Errorf("write storage item of %s: %w", x.name, err)
	}
	return nil
}
