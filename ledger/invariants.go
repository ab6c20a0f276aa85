package ledger

import (
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/ntt-ledger/common"
)

type accountClass struct {
	acc   util.Uint160
	class Class
}

type escrowSlot struct {
	acc   util.Uint160
	scope util.Uint160
	class Class
}

// CheckInvariants scans the whole ledger and checks that:
//   - None entry of every account equals the sum over its concrete scopes;
//   - None counterparty of every escrow equals the sum over counterparties;
//   - the total supply of every scope equals the sum of account totals;
//   - the None supply equals the sum over concrete scopes.
//
// The first violation found is returned wrapped into
// common.ErrInvariantViolated.
func (t *Tx) CheckInvariants() error {
	var (
		err error

		noneAvail = make(map[accountClass]uint64)
		sumAvail  = make(map[accountClass]uint64)
		aggEscrow = make(map[escrowSlot]uint64)
		sumEscrow = make(map[escrowSlot]uint64)
		expSupply = make(map[scopeClass]uint64)
		supply    = make(map[scopeClass]uint64)
		sumSupply = make(map[Class]uint64)
	)

	t.seek([]byte{balancePrefix}, func(k, v []byte) bool {
		var (
			hs []util.Uint160
			c  Class
		)
		if hs, c, err = splitKey(k, 2); err != nil {
			return false
		}
		amount := decodeAmount(v)
		if hs[1].Equals(None) {
			noneAvail[accountClass{hs[0], c}] = amount
			return true
		}
		sumAvail[accountClass{hs[0], c}] += amount
		expSupply[scopeClass{hs[1], c}] += amount
		return true
	})
	if err != nil {
		return err
	}

	t.seek([]byte{escrowPrefix}, func(k, v []byte) bool {
		var (
			hs []util.Uint160
			c  Class
		)
		if hs, c, err = splitKey(k, 3); err != nil {
			return false
		}
		amount := decodeAmount(v)
		slot := escrowSlot{hs[0], hs[1], c}
		if hs[2].Equals(None) {
			aggEscrow[slot] = amount
			return true
		}
		sumEscrow[slot] += amount
		expSupply[scopeClass{hs[1], c}] += amount
		return true
	})
	if err != nil {
		return err
	}

	t.seek([]byte{supplyPrefix}, func(k, v []byte) bool {
		var (
			hs []util.Uint160
			c  Class
		)
		if hs, c, err = splitKey(k, 1); err != nil {
			return false
		}
		supply[scopeClass{hs[0], c}] = decodeAmount(v)
		if !hs[0].Equals(None) {
			sumSupply[c] += decodeAmount(v)
		}
		return true
	})
	if err != nil {
		return err
	}

	for k, v := range sumAvail {
		if noneAvail[k] != v {
			return fmt.Errorf("%w: %s %s available over scopes %d, none entry %d",
				common.ErrInvariantViolated, address.Uint160ToString(k.acc), k.class, v, noneAvail[k])
		}
	}
	for k, v := range noneAvail {
		if sumAvail[k] != v {
			return fmt.Errorf("%w: %s %s none entry %d, available over scopes %d",
				common.ErrInvariantViolated, address.Uint160ToString(k.acc), k.class, v, sumAvail[k])
		}
	}
	for k, v := range sumEscrow {
		if aggEscrow[k] != v {
			return fmt.Errorf("%w: %s escrow of %s %s over counterparties %d, aggregate %d",
				common.ErrInvariantViolated, address.Uint160ToString(k.acc), k.scope.StringLE(), k.class, v, aggEscrow[k])
		}
	}
	for k, v := range aggEscrow {
		if sumEscrow[k] != v {
			return fmt.Errorf("%w: %s escrow of %s %s aggregate %d, over counterparties %d",
				common.ErrInvariantViolated, address.Uint160ToString(k.acc), k.scope.StringLE(), k.class, v, sumEscrow[k])
		}
	}
	for k, v := range expSupply {
		if supply[k] != v {
			return fmt.Errorf("%w: supply of %s %s is %d, accounts hold %d",
				common.ErrInvariantViolated, k.scope.StringLE(), k.class, supply[k], v)
		}
	}
	for k, v := range supply {
		if k.scope.Equals(None) {
			if sumSupply[k.class] != v {
				return fmt.Errorf("%w: none supply %s is %d, sum over scopes %d",
					common.ErrInvariantViolated, k.class, v, sumSupply[k.class])
			}
			continue
		}
		if expSupply[k] != v {
			return fmt.Errorf("%w: supply of %s %s is %d, accounts hold %d",
				common.ErrInvariantViolated, k.scope.StringLE(), k.class, v, expSupply[k])
		}
	}
	return nil
}
