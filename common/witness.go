package common

import (
	"errors"
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/util"
)

var (
	// ErrWitnessFailed appears when the method must be called
	// by a certain account but was not.
	ErrWitnessFailed = errors.New("witness check failed")
	// ErrScopeWitnessFailed appears when the method must be called
	// by the application scope itself but was not.
	ErrScopeWitnessFailed = errors.New("scope witness check failed")
)

// CheckWitness checks that the call is made by the expected account.
func CheckWitness(caller, expected util.Uint160) error {
	return checkWitness(caller, expected, ErrWitnessFailed)
}

// CheckScopeWitness checks that the call is made by the scope contract.
func CheckScopeWitness(caller, scope util.Uint160) error {
	return checkWitness(caller, scope, ErrScopeWitnessFailed)
}

func checkWitness(caller, expected util.Uint160, e error) error {
	if caller.Equals(util.Uint160{}) || !caller.Equals(expected) {
		return fmt.Errorf("%w: %s", e, caller.StringLE())
	}
	return nil
}

// CheckAttachedDeposit checks that the proof-of-intent deposit attached to
// the call is at least min.
func CheckAttachedDeposit(attached, min uint64) error {
	if attached < min {
		return fmt.Errorf("%w: %d < %d", ErrInsufficientDeposit, attached, min)
	}
	return nil
}

// CheckBudget checks that the execution budget exceeds the amount required
// for a remote call and its resolution.
func CheckBudget(budget, required uint64) error {
	if budget <= required {
		return fmt.Errorf("%w: %d <= %d", ErrInsufficientBudget, budget, required)
	}
	return nil
}
