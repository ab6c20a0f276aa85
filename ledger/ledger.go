package ledger

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/core/storage"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/io"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/ntt-ledger/common"
)

// Account is a registration record of the ledger account.
type Account struct {
	Hash util.Uint160
	// Seq is a sequence number of the registration within the store.
	Seq uint64
}

// EncodeBinary implements io.Serializable.
func (a *Account) EncodeBinary(w *io.BinWriter) {
	a.Hash.EncodeBinary(w)
	w.WriteU64LE(a.Seq)
}

// DecodeBinary implements io.Serializable.
func (a *Account) DecodeBinary(r *io.BinReader) {
	a.Hash.DecodeBinary(r)
	a.Seq = r.ReadU64LE()
}

// Ledger is a value ledger over the key-value store. Ledger must be
// constructed with Open.
type Ledger struct {
	store   storage.Store
	version uint64
}

// Open opens the ledger stored in s. Empty store is initialized with the
// current layout version and zero total supply. Open fails if the store has
// an incompatible layout version.
func Open(s storage.Store) (*Ledger, error) {
	tx := &Tx{s: storage.NewMemCachedStore(s)}

	v, ok, err := common.GetUint64(tx.s, []byte{versionKey})
	if err != nil {
		return nil, fmt.Errorf("read store version: %w", err)
	}

	if !ok {
		v = common.Version
		common.PutUint64(tx.s, []byte{versionKey}, v)
		for _, c := range Classes() {
			common.PutUint64(tx.s, supplyKey(None, c), 0)
		}
		if err = tx.Commit(); err != nil {
			return nil, fmt.Errorf("initialize store: %w", err)
		}
	} else if err = common.CheckVersion(v); err != nil {
		return nil, err
	}

	return &Ledger{store: s, version: v}, nil
}

// Version returns layout version of the opened store.
func (l *Ledger) Version() uint64 {
	return l.version
}

// Store returns the backing store.
func (l *Ledger) Store() storage.Store {
	return l.store
}

// Items passes all records of the ledger store into f in key order until f
// returns false. Key and value must not be retained.
func (l *Ledger) Items(f func(k, v []byte) bool) {
	cont := true
	for _, p := range recordPrefixes {
		l.store.Seek(storage.SeekRange{Prefix: []byte{p}}, func(k, v []byte) bool {
			cont = f(k, v)
			return cont
		})
		if !cont {
			return
		}
	}
}

// IsInitialized checks whether s holds a ledger.
func IsInitialized(s storage.Store) (bool, error) {
	_, err := s.Get([]byte{versionKey})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrKeyNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("read store version: %w", err)
	}
}

// Begin starts a new transaction over the current ledger state. Transactions
// which are not committed are simply dropped.
func (l *Ledger) Begin() *Tx {
	return &Tx{s: storage.NewMemCachedStore(l.store)}
}

// Tx is a set of ledger changes applied atomically on Commit. Tx is not safe
// for concurrent use.
type Tx struct {
	s *storage.MemCachedStore
}

// Commit persists all changes made within the transaction.
func (t *Tx) Commit() error {
	if _, err := t.s.PersistSync(); err != nil {
		return fmt.Errorf("persist changes: %w", err)
	}
	return nil
}

// seek passes copies of all items under prefix into f in key order until f
// returns false.
func (t *Tx) seek(prefix []byte, f func(k, v []byte) bool) {
	t.s.Seek(storage.SeekRange{Prefix: prefix}, func(k, v []byte) bool {
		return f(bytes.Clone(k), bytes.Clone(v))
	})
}

// IsRegistered checks whether the account is registered.
func (t *Tx) IsRegistered(acc util.Uint160) (bool, error) {
	var a Account
	return common.GetSerialized(t.s, accountKey(acc), &a)
}

func (t *Tx) checkRegistered(acc util.Uint160) error {
	ok, err := t.IsRegistered(acc)
	if err != nil {
		return fmt.Errorf("read account: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", common.ErrNotRegistered, address.Uint160ToString(acc))
	}
	return nil
}

// Register creates an account with zero None balances of every class.
func (t *Tx) Register(acc util.Uint160) (Account, error) {
	if acc.Equals(None) {
		return Account{}, fmt.Errorf("%w: zero account", common.ErrInvalidScope)
	}
	ok, err := t.IsRegistered(acc)
	if err != nil {
		return Account{}, fmt.Errorf("read account: %w", err)
	}
	if ok {
		return Account{}, fmt.Errorf("%w: %s", common.ErrAlreadyRegistered, address.Uint160ToString(acc))
	}

	seq, _, err := common.GetUint64(t.s, []byte{counterKey})
	if err != nil {
		return Account{}, fmt.Errorf("read registration counter: %w", err)
	}
	seq++

	a := Account{Hash: acc, Seq: seq}
	if err = common.SetSerialized(t.s, accountKey(acc), &a); err != nil {
		return Account{}, err
	}
	common.PutUint64(t.s, []byte{counterKey}, seq)
	for _, c := range Classes() {
		common.PutUint64(t.s, balanceKey(acc, None, c), 0)
	}
	return a, nil
}

// Unregister deletes the account. Without force the account must hold
// neither available nor escrowed value, otherwise common.ErrNonZeroBalance is
// returned. With force, all the value is forfeited and removed from the total
// supply; forfeited amounts are returned per scope and class.
func (t *Tx) Unregister(acc util.Uint160, force bool) ([]Residual, error) {
	if err := t.checkRegistered(acc); err != nil {
		return nil, err
	}

	var (
		keys     [][]byte
		residual []Residual
		index    = make(map[scopeClass]int)
		iterErr  error
	)

	collect := func(scope util.Uint160, c Class, v uint64) {
		if v == 0 {
			return
		}
		sc := scopeClass{scope: scope, class: c}
		i, ok := index[sc]
		if !ok {
			index[sc] = len(residual)
			residual = append(residual, Residual{Scope: scope, Class: c, Amount: v})
			return
		}
		residual[i].Amount += v
	}

	t.seek(prefixWith(balancePrefix, acc), func(k, v []byte) bool {
		keys = append(keys, k)
		hs, c, err := splitKey(k, 2)
		if err != nil {
			iterErr = err
			return false
		}
		if !hs[1].Equals(None) {
			collect(hs[1], c, decodeAmount(v))
		}
		return true
	})
	t.seek(prefixWith(escrowPrefix, acc), func(k, v []byte) bool {
		keys = append(keys, k)
		hs, c, err := splitKey(k, 3)
		if err != nil {
			iterErr = err
			return false
		}
		if !hs[2].Equals(None) {
			collect(hs[1], c, decodeAmount(v))
		}
		return true
	})
	if iterErr != nil {
		return nil, fmt.Errorf("iterate account entries: %w", iterErr)
	}

	if len(residual) > 0 && !force {
		return nil, fmt.Errorf("%w: %s", common.ErrNonZeroBalance, address.Uint160ToString(acc))
	}

	b := t.newBatch()
	for i := range residual {
		if err := b.debitSupply(residual[i].Scope, residual[i].Class, residual[i].Amount); err != nil {
			return nil, fmt.Errorf("forfeit supply: %w", err)
		}
	}
	b.apply()

	for i := range keys {
		t.s.Delete(keys[i])
	}
	t.s.Delete(accountKey(acc))

	return residual, nil
}

// Accounts passes all registered accounts into f in key order until f returns
// false.
func (t *Tx) Accounts(f func(Account) bool) error {
	var err error
	t.seek([]byte{accountPrefix}, func(k, v []byte) bool {
		var a Account
		r := io.NewBinReaderFromBuf(v)
		a.DecodeBinary(r)
		if r.Err != nil {
			err = fmt.Errorf("decode account %x: %w", k, r.Err)
			return false
		}
		return f(a)
	})
	return err
}

type scopeClass struct {
	scope util.Uint160
	class Class
}
