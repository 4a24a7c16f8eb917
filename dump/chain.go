package dump

import (
	"fmt"

	"github.com/bentousd/bento-vault/chain"
)

// Save dumps storages of all contracts registered in the chain into dir and
// returns ID of the dump taken at the current chain height.
func Save(c *chain.Chain, dir, label string) (ID, error) {
	id := ID{Label: label, Height: c.Height()}

	d, err := NewCreator(dir, id)
	if err != nil {
		return ID{}, err
	}
	defer d.Close()

	for _, info := range c.Contracts() {
		w := d.AddContract(info.Name, info.Hash)

		if err = c.IterateStorage(info.Hash, w.Write); err != nil {
			return ID{}, fmt.Errorf("iterate storage of %s: %w", info.Name, err)
		}
	}

	if err = d.Flush(); err != nil {
		return ID{}, err
	}

	return id, nil
}

// Restore writes storages of the dumped contracts into the chain. Every
// dumped contract must be registered in the chain under the same name and
// address.
func Restore(c *chain.Chain, r *Reader) error {
	registered := make(map[string]chain.ContractInfo)
	for _, info := range c.Contracts() {
		registered[info.Name] = info
	}

	for _, ctr := range r.Contracts() {
		info, ok := registered[ctr.Name]
		if !ok {
			return fmt.Errorf("contract %s is not registered: %w", ctr.Name, chain.ErrContractNotFound)
		}
		if !info.Hash.Equals(ctr.Hash) {
			return fmt.Errorf("contract %s is registered at %s, dumped from %s: %w",
				ctr.Name, info.Hash.StringLE(), ctr.Hash.StringLE(), chain.ErrUnexpectedContract)
		}
	}

	for _, ctr := range r.Contracts() {
		if err := c.RestoreStorage(ctr.Hash, ctr.Storage); err != nil {
			return fmt.Errorf("restore %s: %w", ctr.Name, err)
		}
	}

	return nil
}
