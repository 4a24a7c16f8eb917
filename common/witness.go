package common

import (
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/util"
)

// CheckOwnerWitness checks that the caller is the owner of some contract or
// asset. Returns ErrUnauthorized otherwise.
func CheckOwnerWitness(caller, owner util.Uint160) error {
	return checkWitness(caller, owner, "owner")
}

// CheckWitness checks that the caller is the expected account. Role is used
// in the error message only.
func CheckWitness(caller, expected util.Uint160, role string) error {
	return checkWitness(caller, expected, role)
}

func checkWitness(caller, expected util.Uint160, role string) error {
	if expected.Equals(util.Uint160{}) || !caller.Equals(expected) {
		return fmt.Errorf("%s witness check failed for %s: %w", role, caller.StringLE(), ErrUnauthorized)
	}
	return nil
}
