package ledger

import (
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/ntt-ledger/common"
)

// EscrowDeposit moves amount from the available balance of the account at the
// scope into the escrow entry of the counterparty. The total supply is not
// changed. EscrowDeposit returns per-class amounts moved.
func (t *Tx) EscrowDeposit(acc, scope, party util.Uint160, c Class, amount uint64) ([]ClassAmount, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	if err := checkScope(party); err != nil {
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
		if err = b.creditEscrow(acc, scope, party, p.Class, p.Amount); err != nil {
			return nil, fmt.Errorf("credit escrow: %w", err)
		}
	}
	b.apply()
	return parts, nil
}

// EscrowWithdraw returns amount escrowed from the scope back to the available
// balance of the account at the scope. A concrete counterparty must hold the
// whole amount. With None counterparty the amount is collected over all
// counterparties: class by class in draw-down order, counterparties in key
// order. EscrowWithdraw returns the escrow entries consumed.
func (t *Tx) EscrowWithdraw(acc, scope, party util.Uint160, c Class, amount uint64) ([]Consumed, error) {
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
	consumed, err := t.planEscrow(b, acc, scope, party, c, amount)
	if err != nil {
		return nil, err
	}
	for _, x := range consumed {
		if err = b.debitEscrow(acc, scope, x.Counterparty, x.Class, x.Amount); err != nil {
			return nil, fmt.Errorf("debit escrow: %w", err)
		}
		if err = b.creditAvailable(acc, scope, x.Class, x.Amount); err != nil {
			return nil, fmt.Errorf("credit balance: %w", err)
		}
	}
	b.apply()
	return consumed, nil
}

// EscrowRefund returns given parts escrowed at the counterparty back to the
// available balance. Every part is capped by what is still escrowed, so the
// refund never exceeds the current escrow. EscrowRefund returns parts actually
// refunded.
func (t *Tx) EscrowRefund(acc, scope, party util.Uint160, parts []ClassAmount) ([]ClassAmount, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	if err := checkScope(party); err != nil {
		return nil, err
	}
	if err := t.checkRegistered(acc); err != nil {
		return nil, err
	}

	var (
		b   = t.newBatch()
		res []ClassAmount
	)
	for _, p := range parts {
		if err := checkClass(p.Class, false); err != nil {
			return nil, err
		}
		bal, err := b.get(escrowKey(acc, scope, party, p.Class))
		if err != nil {
			return nil, err
		}
		take := min(bal, p.Amount)
		if take == 0 {
			continue
		}
		if err = b.debitEscrow(acc, scope, party, p.Class, take); err != nil {
			return nil, fmt.Errorf("debit escrow: %w", err)
		}
		if err = b.creditAvailable(acc, scope, p.Class, take); err != nil {
			return nil, fmt.Errorf("credit balance: %w", err)
		}
		res = append(res, ClassAmount{Class: p.Class, Amount: take})
	}
	b.apply()
	return res, nil
}

// EscrowBalanceOf returns amount escrowed by the account from the scope to the
// counterparty. None scope sums all source scopes, None counterparty sums all
// counterparties, AnyClass sums all classes.
func (t *Tx) EscrowBalanceOf(acc, scope, party util.Uint160, c Class) (uint64, error) {
	if err := checkClass(c, true); err != nil {
		return 0, err
	}
	if !scope.Equals(None) {
		return t.sumClasses(c, func(cl Class) []byte {
			return escrowKey(acc, scope, party, cl)
		})
	}

	var (
		sum uint64
		err error
	)
	t.seek(prefixWith(escrowPrefix, acc), func(k, v []byte) bool {
		var (
			hs []util.Uint160
			cl Class
		)
		if hs, cl, err = splitKey(k, 3); err != nil {
			return false
		}
		if !hs[2].Equals(party) || (c != AnyClass && cl != c) {
			return true
		}
		sum, err = common.Add(sum, decodeAmount(v))
		return err == nil
	})
	return sum, err
}

// Counterparties returns escrow entries of the account at the scope with
// non-zero amounts, in key order.
func (t *Tx) Counterparties(acc, scope util.Uint160) ([]Consumed, error) {
	var (
		res []Consumed
		err error
	)
	t.seek(prefixWith(escrowPrefix, acc, scope), func(k, v []byte) bool {
		var (
			hs []util.Uint160
			cl Class
		)
		if hs, cl, err = splitKey(k, 3); err != nil {
			return false
		}
		if amount := decodeAmount(v); amount > 0 && !hs[2].Equals(None) {
			res = append(res, Consumed{Counterparty: hs[2], Class: cl, Amount: amount})
		}
		return true
	})
	return res, err
}

// planEscrow selects escrow entries to take amount from without changing
// anything.
func (t *Tx) planEscrow(b *batch, acc, scope, party util.Uint160, c Class, amount uint64) ([]Consumed, error) {
	if !party.Equals(None) {
		parts, err := draw(c, amount, func(cl Class) (uint64, error) {
			return b.get(escrowKey(acc, scope, party, cl))
		})
		if err != nil {
			return nil, err
		}
		res := make([]Consumed, len(parts))
		for i := range parts {
			res[i] = Consumed{Counterparty: party, Class: parts[i].Class, Amount: parts[i].Amount}
		}
		return res, nil
	}

	entries, err := t.Counterparties(acc, scope)
	if err != nil {
		return nil, fmt.Errorf("list escrow entries: %w", err)
	}

	var (
		res  []Consumed
		rest = amount
	)
	for _, cl := range c.order() {
		for _, e := range entries {
			if rest == 0 {
				break
			}
			if e.Class != cl {
				continue
			}
			bal, err := b.get(escrowKey(acc, scope, e.Counterparty, cl))
			if err != nil {
				return nil, err
			}
			take := min(bal, rest)
			if take == 0 {
				continue
			}
			res = append(res, Consumed{Counterparty: e.Counterparty, Class: cl, Amount: take})
			rest -= take
		}
	}
	if rest != 0 {
		return nil, fmt.Errorf("%w: escrow lacks %d of %d", common.ErrInsufficientBalance, rest, amount)
	}
	return res, nil
}
