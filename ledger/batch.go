package ledger

import (
	"encoding/binary"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/ntt-ledger/common"
)

// batch stages amount updates of a single operation. Staged values shadow the
// store, so the same key may be updated several times. Nothing is written
// until apply.
type batch struct {
	t     *Tx
	order []string
	vals  map[string]uint64
}

func (t *Tx) newBatch() *batch {
	return &batch{t: t, vals: make(map[string]uint64)}
}

func (b *batch) get(key []byte) (uint64, error) {
	if v, ok := b.vals[string(key)]; ok {
		return v, nil
	}
	v, _, err := common.GetUint64(b.t.s, key)
	return v, err
}

func (b *batch) set(key []byte, v uint64) {
	k := string(key)
	if _, ok := b.vals[k]; !ok {
		b.order = append(b.order, k)
	}
	b.vals[k] = v
}

func (b *batch) credit(key []byte, amount uint64) error {
	v, err := b.get(key)
	if err != nil {
		return err
	}
	if v, err = common.Add(v, amount); err != nil {
		return err
	}
	b.set(key, v)
	return nil
}

func (b *batch) debit(key []byte, amount uint64) error {
	v, err := b.get(key)
	if err != nil {
		return err
	}
	if v, err = common.Sub(v, amount); err != nil {
		return err
	}
	b.set(key, v)
	return nil
}

func (b *batch) creditAvailable(acc, scope util.Uint160, c Class, amount uint64) error {
	if err := b.credit(balanceKey(acc, scope, c), amount); err != nil {
		return err
	}
	return b.credit(balanceKey(acc, None, c), amount)
}

func (b *batch) debitAvailable(acc, scope util.Uint160, c Class, amount uint64) error {
	if err := b.debit(balanceKey(acc, scope, c), amount); err != nil {
		return err
	}
	return b.debit(balanceKey(acc, None, c), amount)
}

func (b *batch) creditEscrow(acc, scope, party util.Uint160, c Class, amount uint64) error {
	if err := b.credit(escrowKey(acc, scope, party, c), amount); err != nil {
		return err
	}
	return b.credit(escrowKey(acc, scope, None, c), amount)
}

func (b *batch) debitEscrow(acc, scope, party util.Uint160, c Class, amount uint64) error {
	if err := b.debit(escrowKey(acc, scope, party, c), amount); err != nil {
		return err
	}
	return b.debit(escrowKey(acc, scope, None, c), amount)
}

func (b *batch) creditSupply(scope util.Uint160, c Class, amount uint64) error {
	if err := b.credit(supplyKey(scope, c), amount); err != nil {
		return err
	}
	return b.credit(supplyKey(None, c), amount)
}

func (b *batch) debitSupply(scope util.Uint160, c Class, amount uint64) error {
	if err := b.debit(supplyKey(scope, c), amount); err != nil {
		return err
	}
	return b.debit(supplyKey(None, c), amount)
}

func (b *batch) apply() {
	for _, k := range b.order {
		common.PutUint64(b.t.s, []byte(k), b.vals[k])
	}
}

func decodeAmount(v []byte) uint64 {
	if len(v) != 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(v)
}
