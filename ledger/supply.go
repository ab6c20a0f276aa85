package ledger

import (
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/util"
)

// TotalSupply returns the sum of all account totals at the scope. None scope
// returns the supply over all scopes.
func (t *Tx) TotalSupply(scope util.Uint160, c Class) (uint64, error) {
	if err := checkClass(c, true); err != nil {
		return 0, err
	}
	return t.sumClasses(c, func(cl Class) []byte {
		return supplyKey(scope, cl)
	})
}

// Supply is a total supply entry of the scope.
type Supply struct {
	Scope  util.Uint160
	Class  Class
	Amount uint64
}

// Supplies passes all supply entries including None ones into f in key order
// until f returns false.
func (t *Tx) Supplies(f func(Supply) bool) error {
	var err error
	t.seek([]byte{supplyPrefix}, func(k, v []byte) bool {
		var hs []util.Uint160
		var c Class
		hs, c, err = splitKey(k, 1)
		if err != nil {
			return false
		}
		return f(Supply{Scope: hs[0], Class: c, Amount: decodeAmount(v)})
	})
	return err
}

// Burn destroys amount of the account value at the scope, taking available
// value first and then escrowed value over all counterparties. The total
// supply is debited in the same step. Burn returns per-class amounts taken
// from the available balance and escrow entries consumed.
func (t *Tx) Burn(acc, scope util.Uint160, c Class, amount uint64) ([]ClassAmount, []Consumed, error) {
	if err := checkScope(scope); err != nil {
		return nil, nil, err
	}
	if err := checkClass(c, true); err != nil {
		return nil, nil, err
	}
	if err := t.checkRegistered(acc); err != nil {
		return nil, nil, err
	}

	var (
		b     = t.newBatch()
		avail []ClassAmount
		rest  = amount
	)
	for _, cl := range c.order() {
		bal, err := b.get(balanceKey(acc, scope, cl))
		if err != nil {
			return nil, nil, err
		}
		if take := min(bal, rest); take > 0 {
			avail = append(avail, ClassAmount{Class: cl, Amount: take})
			rest -= take
		}
	}

	var consumed []Consumed
	if rest > 0 {
		var err error
		if consumed, err = t.planEscrow(b, acc, scope, None, c, rest); err != nil {
			return nil, nil, err
		}
	}

	for _, p := range avail {
		if err := b.debitAvailable(acc, scope, p.Class, p.Amount); err != nil {
			return nil, nil, fmt.Errorf("debit balance: %w", err)
		}
		if err := b.debitSupply(scope, p.Class, p.Amount); err != nil {
			return nil, nil, fmt.Errorf("debit supply: %w", err)
		}
	}
	for _, x := range consumed {
		if err := b.debitEscrow(acc, scope, x.Counterparty, x.Class, x.Amount); err != nil {
			return nil, nil, fmt.Errorf("debit escrow: %w", err)
		}
		if err := b.debitSupply(scope, x.Class, x.Amount); err != nil {
			return nil, nil, fmt.Errorf("debit supply: %w", err)
		}
	}
	b.apply()
	return avail, consumed, nil
}
