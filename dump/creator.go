package dump

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/ntt-ledger/common"
	"github.com/nspcc-dev/ntt-ledger/ledger"
)

// Creator dumps the ledger store. Output file format:
//
//	'<label>-<seq>-ledger.json': JSON summary of the ledger
//	'<label>-<seq>-storage.csv': CSV of the store items
//
// Storage CSV are 'kind,key,value' where kind stands for the record kind (see
// ledger.RecordKind) and binary key-value are base64-encoded.
//
// Use IterateDumps to access existing dumps.
type Creator struct {
	dumpStreams

	state ledgerState

	storageItemsCSV *csv.Writer
}

// NewCreator returns Creator which dumps the ledger into given directory. The
// dump is identified by specified ID. Resulting Creator should be closed when
// finished working with it.
//
// NewCreator fails if dump with provided ID already exists.
func NewCreator(dir string, id ID) (*Creator, error) {
	if id.Label == "" || strings.Contains(id.Label, sep) {
		return nil, fmt.Errorf("invalid dump label '%s'", id.Label)
	}

	var res Creator

	err := initDumpStreams(&res.dumpStreams, dir, id, false)
	if err != nil {
		return nil, err
	}

	res.storageItemsCSV = csv.NewWriter(res.dumpStreams.storageItems)

	return &res, nil
}

// DumpLedger writes all items of the ledger store and collects the ledger
// summary. Ledger must not be changed concurrently. Results should be flushed
// via Flush method.
func (x *Creator) DumpLedger(l *ledger.Ledger) error {
	var err error

	l.Items(func(k, v []byte) bool {
		err = x.storageItemsCSV.Write([]string{
			ledger.RecordKind(k),
			encoding.EncodeToString(k),
			encoding.EncodeToString(v),
		})
		if err != nil {
			err = fmt.Errorf("write storage item as CSV data: %w", err)
			return false
		}
		x.state.Items++
		return true
	})
	if err != nil {
		return err
	}

	x.state.Version = common.VersionString(l.Version())

	tx := l.Begin()

	err = tx.Accounts(func(a ledger.Account) bool {
		x.state.Accounts = append(x.state.Accounts, accountState{
			Address: address.Uint160ToString(a.Hash),
			Seq:     a.Seq,
		})
		return true
	})
	if err != nil {
		return fmt.Errorf("read accounts: %w", err)
	}

	err = tx.Supplies(func(s ledger.Supply) bool {
		x.state.Supply = append(x.state.Supply, supplyState{
			Scope:  address.Uint160ToString(s.Scope),
			Class:  s.Class.String(),
			Amount: s.Amount,
		})
		return true
	})
	if err != nil {
		return fmt.Errorf("read total supply: %w", err)
	}

	return nil
}

// Flush flushes accumulated dump to the file system.
func (x *Creator) Flush() error {
	if x.state.Version == "" {
		return errors.New("nothing to flush")
	}

	jEnc := json.NewEncoder(x.dumpStreams.state)
	jEnc.SetIndent("", " ")

	err := jEnc.Encode(x.state)
	if err != nil {
		return fmt.Errorf("encode ledger state to JSON: %w", err)
	}

	x.storageItemsCSV.Flush()

	err = x.storageItemsCSV.Error()
	if err != nil {
		return fmt.Errorf("flush CSV data: %w", err)
	}

	return nil
}

// Close releases underlying resources of the Creator and makes it unusable.
func (x *Creator) Close() {
	x.close()
}
