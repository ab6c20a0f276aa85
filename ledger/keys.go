package ledger

import (
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/util"
)

const (
	versionKey    = 'v'
	counterKey    = 'n'
	accountPrefix = 'a'
	balancePrefix = 'b'
	escrowPrefix  = 'e'
	supplyPrefix  = 's'
)

// recordPrefixes lists key prefixes of all records in byte order.
var recordPrefixes = []byte{accountPrefix, balancePrefix, escrowPrefix, counterKey, supplyPrefix, versionKey}

const hashLen = util.Uint160Size

func prefixWith(p byte, hashes ...util.Uint160) []byte {
	k := make([]byte, 1, 2+len(hashes)*hashLen)
	k[0] = p
	for i := range hashes {
		k = append(k, hashes[i].BytesBE()...)
	}
	return k
}

func accountKey(acc util.Uint160) []byte {
	return prefixWith(accountPrefix, acc)
}

func balanceKey(acc, scope util.Uint160, c Class) []byte {
	return append(prefixWith(balancePrefix, acc, scope), byte(c))
}

func escrowKey(acc, scope, party util.Uint160, c Class) []byte {
	return append(prefixWith(escrowPrefix, acc, scope, party), byte(c))
}

func supplyKey(scope util.Uint160, c Class) []byte {
	return append(prefixWith(supplyPrefix, scope), byte(c))
}

// splitKey decodes n hashes followed by a class byte after the prefix byte.
func splitKey(k []byte, n int) ([]util.Uint160, Class, error) {
	if len(k) != 2+n*hashLen {
		return nil, 0, fmt.Errorf("invalid key length %d for prefix %q", len(k), k[0])
	}
	res := make([]util.Uint160, n)
	for i := range res {
		u, err := util.Uint160DecodeBytesBE(k[1+i*hashLen : 1+(i+1)*hashLen])
		if err != nil {
			return nil, 0, err
		}
		res[i] = u
	}
	return res, Class(k[len(k)-1]), nil
}

// RecordKind names the kind of the ledger store record by its key.
func RecordKind(key []byte) string {
	if len(key) == 0 {
		return "unknown"
	}
	switch key[0] {
	case versionKey:
		return "version"
	case counterKey:
		return "counter"
	case accountPrefix:
		return "account"
	case balancePrefix:
		return "balance"
	case escrowPrefix:
		return "escrow"
	case supplyPrefix:
		return "supply"
	default:
		return "unknown"
	}
}
