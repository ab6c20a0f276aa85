package dump

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ID is a unique identifier of the dump.
type ID struct {
	// Label of the dump source (e.g. node name). Must not contain '-'.
	Label string
	// Sequence number of the snapshot, e.g. Unix time it was taken at.
	Seq uint64
}

// String returns hyphen-separated ID fields.
func (x ID) String() string {
	return x.Label + sep + strconv.FormatUint(x.Seq, 10)
}

func (x *ID) decodeString(s string) error {
	ss := strings.Split(s, sep)
	if len(ss) < 2 {
		return fmt.Errorf("expected '%s'-separated string with at least 2 items", sep)
	}

	n, err := strconv.ParseUint(ss[1], 10, 64)
	if err != nil {
		return fmt.Errorf("decode sequence number from '%s': %w", ss[1], err)
	}

	x.Label = ss[0]
	x.Seq = n

	return nil
}

var encoding = base64.StdEncoding

// ledgerState is a JSON-encoded summary of the dumped ledger.
type ledgerState struct {
	Version  string         `json:"version"`
	Items    int            `json:"items"`
	Accounts []accountState `json:"accounts"`
	Supply   []supplyState  `json:"supply"`
}

type accountState struct {
	Address string `json:"address"`
	Seq     uint64 `json:"seq"`
}

type supplyState struct {
	Scope  string `json:"scope"`
	Class  string `json:"class"`
	Amount uint64 `json:"amount"`
}

type dumpStreams struct {
	state, storageItems io.ReadWriteCloser
}

func (x *dumpStreams) close() {
	_ = x.storageItems.Close()
	_ = x.state.Close()
}

const (
	sep               = "-"
	stateFileSuffix   = "ledger.json"
	storageFileSuffix = "storage.csv"
)

// initDumpStreams opens data streams for the dump files located in the
// specified directory. If read flag is set, streams are read-only. Otherwise,
// files must not exist, and streams are write only.
func initDumpStreams(d *dumpStreams, dir string, id ID, read bool) error {
	var err error

	pathStorage := filepath.Join(dir, strings.Join([]string{id.String(), storageFileSuffix}, sep))
	pathState := filepath.Join(dir, strings.Join([]string{id.String(), stateFileSuffix}, sep))

	if !read {
		for _, p := range []string{pathStorage, pathState} {
			if err = checkFileNotExists(p); err != nil {
				return err
			}
		}
	}

	var flag int
	var perm os.FileMode

	if read {
		flag = os.O_RDONLY
	} else {
		flag = os.O_CREATE | os.O_WRONLY
		perm = 0600
	}

	d.storageItems, err = os.OpenFile(pathStorage, flag, perm)
	if err != nil {
		return fmt.Errorf("open file with storage items: %w", err)
	}

	d.state, err = os.OpenFile(pathState, flag, perm)
	if err != nil {
		_ = d.storageItems.Close()
		return fmt.Errorf("open file with ledger state: %w", err)
	}

	return nil
}

// checkFileNotExists checks that there is no file at the specified path.
func checkFileNotExists(p string) error {
	_, err := os.Stat(p)
	if !os.IsNotExist(err) {
		if err == nil {
			err = os.ErrExist
		}
		return fmt.Errorf("file '%s' absence check failed: %w", p, err)
	}
	return nil
}
