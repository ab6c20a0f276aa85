package dump

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/core/storage"
	"github.com/nspcc-dev/ntt-ledger/ledger"
)

// IterateDumps iterates over all dumps collected by the Creator in the
// specified directory, and passes ID and Reader of each dump into f.
func IterateDumps(dir string, f func(ID, *Reader)) error {
	var id ID
	var r Reader
	var streams dumpStreams

	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, e error) error {
		if errors.Is(e, fs.ErrNotExist) {
			return nil
		}
		if e != nil {
			return e
		}

		if d.IsDir() {
			return nil
		}

		name := d.Name()

		if !strings.HasSuffix(name, stateFileSuffix) {
			return nil
		}

		err := id.decodeString(name)
		if err != nil {
			return fmt.Errorf("decode dump ID from file name '%s': %w", name, err)
		}

		err = initDumpStreams(&streams, filepath.Dir(path), id, true)
		if err != nil {
			return fmt.Errorf("init dump streams ('%s'): %w", name, err)
		}

		err = r.fromDumpStreams(streams.state, streams.storageItems)
		streams.close()
		if err != nil {
			return fmt.Errorf("init dump reader ('%s'): %w", name, err)
		}

		f(id, &r)

		return nil
	})
}

type kv struct {
	kind string
	k, v []byte
}

// Reader reads the ledger collected in the superior dump.
type Reader struct {
	state ledgerState
	items []kv
}

func (x *Reader) fromDumpStreams(rState, rStorageItems io.Reader) error {
	x.state = ledgerState{}
	err := json.NewDecoder(rState).Decode(&x.state)
	if err != nil {
		return fmt.Errorf("decode ledger state from JSON: %w", err)
	}

	var rec []string
	var item kv

	_csv := csv.NewReader(rStorageItems)
	_csv.FieldsPerRecord = 3
	_csv.ReuseRecord = true

	x.items = x.items[:0]

	for {
		rec, err = _csv.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("read next CSV record: %w", err)
		}

		// out-of-range safety guaranteed by csv settings
		item.kind = strings.Clone(rec[0])

		item.k, err = encoding.DecodeString(rec[1])
		if err != nil {
			return fmt.Errorf("decode storage item key: %w", err)
		}

		item.v, err = encoding.DecodeString(rec[2])
		if err != nil {
			return fmt.Errorf("decode storage item value: %w", err)
		}

		x.items = append(x.items, item)
	}

	if len(x.items) != x.state.Items {
		return fmt.Errorf("dump has %d storage items, %d expected", len(x.items), x.state.Items)
	}
	return nil
}

// Version returns layout version of the dumped ledger.
func (x *Reader) Version() string {
	return x.state.Version
}

// Accounts returns number of the dumped ledger accounts.
func (x *Reader) Accounts() int {
	return len(x.state.Accounts)
}

// IterateStorage passes all dumped store items into f.
func (x *Reader) IterateStorage(f func(kind string, key, value []byte)) {
	for i := range x.items {
		f(x.items[i].kind, x.items[i].k, x.items[i].v)
	}
}

// Restore writes the dumped items into the empty store s and opens the
// restored ledger. The ledger is checked to be consistent and to match the
// dump summary.
func (x *Reader) Restore(s storage.Store) (*ledger.Ledger, error) {
	ok, err := ledger.IsInitialized(s)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, errors.New("target store already holds a ledger")
	}

	c := storage.NewMemCachedStore(s)
	for i := range x.items {
		c.Put(x.items[i].k, x.items[i].v)
	}
	if _, err = c.PersistSync(); err != nil {
		return nil, fmt.Errorf("persist storage items: %w", err)
	}

	l, err := ledger.Open(s)
	if err != nil {
		return nil, fmt.Errorf("open restored ledger: %w", err)
	}

	tx := l.Begin()

	var n int
	err = tx.Accounts(func(ledger.Account) bool {
		n++
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("read restored accounts: %w", err)
	}
	if n != len(x.state.Accounts) {
		return nil, fmt.Errorf("restored %d accounts, %d expected", n, len(x.state.Accounts))
	}

	if err = tx.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("check restored ledger: %w", err)
	}

	return l, nil
}
