package dump

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/util"
)

// Contract is a contract of the dump.
type Contract struct {
	Name string
	Hash util.Uint160
	// Storage items by key.
	Storage map[string][]byte
}

// Reader gives access to the contracts of a single dump.
type Reader struct {
	contracts []Contract
}

// Open reads the dump with the given ID from dir.
func Open(dir string, id ID) (*Reader, error) {
	var s streams

	if err := openStreams(&s, dir, id, true); err != nil {
		return nil, err
	}
	defer s.close()

	var r Reader
	if err := r.decode(s.contracts, s.storage); err != nil {
		return nil, fmt.Errorf("read dump %s: %w", id, err)
	}

	return &r, nil
}

// IterateDumps reads all dumps in dir and passes them into f. Missing dir
// holds no dumps.
func IterateDumps(dir string, f func(ID, *Reader) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read dump directory: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), sep+contractsSuffix) {
			continue
		}

		var id ID
		if err = id.decodeString(e.Name()); err != nil {
			return fmt.Errorf("decode dump ID from file name '%s': %w", e.Name(), err)
		}

		r, err := Open(dir, id)
		if err != nil {
			return err
		}

		if err = f(id, r); err != nil {
			return err
		}
	}

	return nil
}

func (x *Reader) decode(contracts, storage io.Reader) error {
	var entries []contractEntry

	if err := json.NewDecoder(contracts).Decode(&entries); err != nil {
		return fmt.Errorf("decode contracts: %w", err)
	}

	index := make(map[string]int, len(entries))
	x.contracts = make([]Contract, len(entries))

	for i := range entries {
		h, err := util.Uint160DecodeStringLE(entries[i].Hash)
		if err != nil {
			return fmt.Errorf("decode address of %s: %w", entries[i].Name, err)
		}

		x.contracts[i] = Contract{
			Name:    entries[i].Name,
			Hash:    h,
			Storage: make(map[string][]byte),
		}
		index[entries[i].Name] = i
	}

	r := csv.NewReader(storage)
	r.FieldsPerRecord = 3

	for {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read storage record: %w", err)
		}

		i, ok := index[rec[0]]
		if !ok {
			return fmt.Errorf("storage item of unknown contract %s", rec[0])
		}

		key, err := encoding.DecodeString(rec[1])
		if err != nil {
			return fmt.Errorf("decode storage key: %w", err)
		}

		value, err := encoding.DecodeString(rec[2])
		if err != nil {
			return fmt.Errorf("decode storage value: %w", err)
		}

		x.contracts[i].Storage[string(key)] = value
	}
}

// Contracts returns contracts of the dump in the written order.
func (x *Reader) Contracts() []Contract {
	return x.contracts
}

// Contract returns the named contract of the dump.
func (x *Reader) Contract(name string) (Contract, bool) {
	for i := range x.contracts {
		if x.contracts[i].Name == name {
			return x.contracts[i], true
		}
	}
	return Contract{}, false
}
