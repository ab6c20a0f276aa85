package common

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/core/storage"
	"github.com/nspcc-dev/neo-go/pkg/io"
)

// Getter is a read-only view of the key-value store.
type Getter interface {
	Get(key []byte) ([]byte, error)
}

// Putter is a write view of the key-value store.
type Putter interface {
	Put(key, value []byte)
}

// GetSerialized reads value stored under the key and decodes it into v. It
// returns false if there is no such key.
func GetSerialized(s Getter, key []byte, v io.Serializable) (bool, error) {
	data, err := s.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}

	r := io.NewBinReaderFromBuf(data)
	v.DecodeBinary(r)
	if r.Err != nil {
		return false, fmt.Errorf("decode %x: %w", key, r.Err)
	}
	return true, nil
}

// SetSerialized serializes data and puts it into the store.
func SetSerialized(s Putter, key []byte, v io.Serializable) error {
	w := io.NewBufBinWriter()
	v.EncodeBinary(w.BinWriter)
	if w.Err != nil {
		return fmt.Errorf("encode %x: %w", key, w.Err)
	}
	s.Put(key, w.Bytes())
	return nil
}

// GetUint64 reads little-endian amount stored under the key. Missing keys are
// reported with ok == false and zero value.
func GetUint64(s Getter, key []byte) (v uint64, ok bool, err error) {
	data, err := s.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if len(data) != 8 {
		return 0, false, fmt.Errorf("invalid amount length %d under %x", len(data), key)
	}
	return binary.LittleEndian.Uint64(data), true, nil
}

// PutUint64 stores little-endian amount under the key.
func PutUint64(s Putter, key []byte, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	s.Put(key, buf[:])
}
