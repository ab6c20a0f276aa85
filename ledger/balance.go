package ledger

import (
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/ntt-ledger/common"
)

// Deposit credits amount of the class to the available balance of the account
// at the scope. The None entry of the account and the total supply are
// credited in the same step.
func (t *Tx) Deposit(acc, scope util.Uint160, c Class, amount uint64) error {
	if err := checkScope(scope); err != nil {
		return err
	}
	if err := checkClass(c, false); err != nil {
		return err
	}
	if err := t.checkRegistered(acc); err != nil {
		return err
	}

	b := t.newBatch()
	if err := b.creditAvailable(acc, scope, c, amount); err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	if err := b.creditSupply(scope, c, amount); err != nil {
		return fmt.Errorf("credit supply: %w", err)
	}
	b.apply()
	return nil
}

// Withdraw debits amount from the available balance of the account at the
// scope and from the total supply. With AnyClass the amount is taken in
// draw-down order and the operation fails only if the sum over classes is not
// enough. Withdraw returns per-class amounts actually taken.
func (t *Tx) Withdraw(acc, scope util.Uint160, c Class, amount uint64) ([]ClassAmount, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	if err := checkClass(c, true); err != nil {
		return nil, err
	}
	if err := t.checkRegistered(acc); err != nil {
		return nil, err
	}

	b := t.newBatch()
	parts, err := draw(c, amount, func(cl Class) (uint64, error) {
		return b.get(balanceKey(acc, scope, cl))
	})
	if err != nil {
		return nil, err
	}
	for _, p := range parts {
		if err = b.debitAvailable(acc, scope, p.Class, p.Amount); err != nil {
			return nil, fmt.Errorf("debit balance: %w", err)
		}
		if err = b.debitSupply(scope, p.Class, p.Amount); err != nil {
			return nil, fmt.Errorf("debit supply: %w", err)
		}
	}
	b.apply()
	return parts, nil
}

// BalanceOf returns available amount of the account at the scope. None scope
// returns the sum over all scopes, AnyClass returns the sum over classes.
// Unknown accounts and scopes have zero balance.
func (t *Tx) BalanceOf(acc, scope util.Uint160, c Class) (uint64, error) {
	if err := checkClass(c, true); err != nil {
		return 0, err
	}
	return t.sumClasses(c, func(cl Class) []byte {
		return balanceKey(acc, scope, cl)
	})
}

// TotalBalanceOf returns the sum of available and escrowed amounts of the
// account at the scope.
func (t *Tx) TotalBalanceOf(acc, scope util.Uint160, c Class) (uint64, error) {
	avail, err := t.BalanceOf(acc, scope, c)
	if err != nil {
		return 0, err
	}
	esc, err := t.EscrowBalanceOf(acc, scope, None, c)
	if err != nil {
		return 0, err
	}
	return common.Add(avail, esc)
}

// HasScope checks whether the account has ever held value at the scope.
func (t *Tx) HasScope(acc, scope util.Uint160) bool {
	var found bool
	t.seek(prefixWith(balancePrefix, acc, scope), func(_, _ []byte) bool {
		found = true
		return false
	})
	return found
}

// Scopes returns concrete scopes the account has entries at, in key order.
func (t *Tx) Scopes(acc util.Uint160) ([]util.Uint160, error) {
	var (
		res []util.Uint160
		err error
	)
	t.seek(prefixWith(balancePrefix, acc), func(k, _ []byte) bool {
		var hs []util.Uint160
		if hs, _, err = splitKey(k, 2); err != nil {
			return false
		}
		if !hs[1].Equals(None) && (len(res) == 0 || !res[len(res)-1].Equals(hs[1])) {
			res = append(res, hs[1])
		}
		return true
	})
	return res, err
}

func (t *Tx) sumClasses(c Class, key func(Class) []byte) (uint64, error) {
	var sum uint64
	for _, cl := range c.order() {
		v, _, err := common.GetUint64(t.s, key(cl))
		if err != nil {
			return 0, err
		}
		if sum, err = common.Add(sum, v); err != nil {
			return 0, err
		}
	}
	return sum, nil
}
